// SPDX-License-Identifier: MIT

package merge

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	xglog "github.com/hlsgrab/hlsgrab/internal/log"
)

// FFmpeg invokes the ffmpeg binary in concat-demuxer mode with stream copy,
// the AAC ADTS-to-ASC bitstream filter and a fast-start container layout.
type FFmpeg struct {
	// Bin overrides the ffmpeg executable path. Empty means $PATH lookup.
	Bin string
}

func (f *FFmpeg) bin() string {
	if f.Bin != "" {
		return f.Bin
	}
	return "ffmpeg"
}

func concatArgs(listPath, outputPath string) []string {
	return []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-bsf:a", "aac_adtstoasc",
		"-movflags", "+faststart",
		"-y", outputPath,
	}
}

// Concat runs ffmpeg with dir as working directory so the relative entries
// of the reference list resolve. A non-zero exit yields a *MergeError
// carrying the exit code and the tail of stderr.
func (f *FFmpeg) Concat(ctx context.Context, dir, listPath, outputPath string) error {
	logger := xglog.WithComponentFromContext(ctx, "ffmpeg")

	cmd := exec.CommandContext(ctx, f.bin(), concatArgs(listPath, outputPath)...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug().Str("bin", f.bin()).Strs("args", cmd.Args[1:]).Msg("invoking muxer")

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &MergeError{ExitCode: exitErr.ExitCode(), Detail: stderrTail(stderr.String())}
		}
		return &MergeError{ExitCode: -1, Detail: err.Error()}
	}
	return nil
}

// stderrTail keeps the last few lines of muxer output, which is where ffmpeg
// puts the actual failure reason.
func stderrTail(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > 4 {
		lines = lines[len(lines)-4:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
