// SPDX-License-Identifier: MIT

package merge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hlsgrab/hlsgrab/internal/download"
)

// stubMuxer records its invocation and optionally fails.
type stubMuxer struct {
	calls    int
	dir      string
	list     string
	output   string
	listBody string
	err      error
}

func (s *stubMuxer) Concat(ctx context.Context, dir, listPath, outputPath string) error {
	s.calls++
	s.dir = dir
	s.list = listPath
	s.output = outputPath
	if body, err := os.ReadFile(filepath.Join(dir, listPath)); err == nil {
		s.listBody = string(body)
	}
	return s.err
}

func writeSegments(t *testing.T, dir string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, download.SegmentFileName(i)), []byte("seg"), 0o644))
	}
}

func TestRunWritesOrderedReferenceList(t *testing.T) {
	dir := t.TempDir()
	writeSegments(t, dir, 3)

	stub := &stubMuxer{}
	require.NoError(t, Run(context.Background(), stub, dir, "out.mp4", 3))

	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, dir, stub.dir)
	assert.Equal(t, "filelist.txt", stub.list)
	assert.Equal(t, "out.mp4", stub.output)
	assert.Equal(t, "file 'index0.ts'\nfile 'index1.ts'\nfile 'index2.ts'\n", stub.listBody)
}

func TestRunRemovesReferenceListAfterUse(t *testing.T) {
	dir := t.TempDir()
	writeSegments(t, dir, 2)

	require.NoError(t, Run(context.Background(), &stubMuxer{}, dir, "out.mp4", 2))
	assert.NoFileExists(t, filepath.Join(dir, "filelist.txt"))
}

func TestRunLeavesSegmentsIntactOnMuxerFailure(t *testing.T) {
	dir := t.TempDir()
	writeSegments(t, dir, 2)

	stub := &stubMuxer{err: &MergeError{ExitCode: 1}}
	err := Run(context.Background(), stub, dir, "out.mp4", 2)

	var me *MergeError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, 1, me.ExitCode)

	for i := 0; i < 2; i++ {
		assert.FileExists(t, filepath.Join(dir, download.SegmentFileName(i)))
	}
	assert.NoFileExists(t, filepath.Join(dir, "filelist.txt"), "reference list is transient either way")
}

func TestCleanupRemovesOnlySegmentArtifacts(t *testing.T) {
	dir := t.TempDir()
	writeSegments(t, dir, 3)
	keep := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(keep, []byte("keep"), 0o644))

	require.NoError(t, Cleanup(dir))

	for i := 0; i < 3; i++ {
		assert.NoFileExists(t, filepath.Join(dir, download.SegmentFileName(i)))
	}
	assert.FileExists(t, keep)
}

func TestCleanupMissingDir(t *testing.T) {
	err := Cleanup(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestConcatArgs(t *testing.T) {
	args := concatArgs("filelist.txt", "movie.mp4")
	assert.Equal(t, []string{
		"-f", "concat",
		"-safe", "0",
		"-i", "filelist.txt",
		"-c", "copy",
		"-bsf:a", "aac_adtstoasc",
		"-movflags", "+faststart",
		"-y", "movie.mp4",
	}, args)
}

func TestFFmpegDefaultBinary(t *testing.T) {
	assert.Equal(t, "ffmpeg", (&FFmpeg{}).bin())
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", (&FFmpeg{Bin: "/opt/ffmpeg/bin/ffmpeg"}).bin())
}

func TestFFmpegConcatReportsExitCode(t *testing.T) {
	// `false` is a muxer that always exits 1 without reading its args.
	f := &FFmpeg{Bin: "false"}
	err := f.Concat(context.Background(), t.TempDir(), "filelist.txt", "out.mp4")

	var me *MergeError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, 1, me.ExitCode)
}

func TestFFmpegConcatMissingBinary(t *testing.T) {
	f := &FFmpeg{Bin: filepath.Join(t.TempDir(), "no-such-ffmpeg")}
	err := f.Concat(context.Background(), t.TempDir(), "filelist.txt", "out.mp4")

	var me *MergeError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, -1, me.ExitCode)
}
