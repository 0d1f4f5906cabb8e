// SPDX-License-Identifier: MIT

// Package merge hands the ordered segment set to an external container
// muxer and cleans up intermediate artifacts afterwards.
package merge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hlsgrab/hlsgrab/internal/download"
	xglog "github.com/hlsgrab/hlsgrab/internal/log"
	"github.com/hlsgrab/hlsgrab/internal/metrics"
)

// referenceListName is the transient ordered file list consumed by the muxer.
const referenceListName = "filelist.txt"

// Muxer concatenates the ordered file references in listPath into a single
// container at outputPath. The core never depends on a specific tool beyond
// this contract.
type Muxer interface {
	Concat(ctx context.Context, dir, listPath, outputPath string) error
}

// MergeError reports a failed muxer invocation.
type MergeError struct {
	ExitCode int
	Detail   string
}

func (e *MergeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("muxer exited with code %d: %s", e.ExitCode, e.Detail)
	}
	return fmt.Sprintf("muxer exited with code %d", e.ExitCode)
}

// Run writes the ordered reference list for segmentCount artifacts in
// segmentsDir, invokes the muxer, and removes the list afterwards. Segment
// artifacts are left intact either way; on failure they remain available for
// a retry.
func Run(ctx context.Context, m Muxer, segmentsDir, outputPath string, segmentCount int) error {
	logger := xglog.WithComponentFromContext(ctx, "merge")

	listPath, err := writeReferenceList(segmentsDir, segmentCount)
	if err != nil {
		return fmt.Errorf("write reference list: %w", err)
	}
	defer func() {
		if err := os.Remove(listPath); err != nil {
			logger.Warn().Err(err).Str("path", listPath).Msg("could not remove reference list")
		}
	}()

	logger.Info().
		Int("segments", segmentCount).
		Str("output", outputPath).
		Msg("merging segments")

	if err := m.Concat(ctx, segmentsDir, referenceListName, outputPath); err != nil {
		metrics.RecordMerge(false)
		return err
	}
	metrics.RecordMerge(true)
	return nil
}

// writeReferenceList emits one "file 'indexN.ts'" line per segment in
// sequence order, the concat format the muxer consumes.
func writeReferenceList(dir string, count int) (string, error) {
	var b strings.Builder
	for i := 0; i < count; i++ {
		fmt.Fprintf(&b, "file '%s'\n", download.SegmentFileName(i))
	}
	path := filepath.Join(dir, referenceListName)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Cleanup removes every segment artifact from dir. Failures are joined and
// reported; the caller treats them as non-fatal.
func Cleanup(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read segments dir: %w", err)
	}
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".ts" {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
