// SPDX-License-Identifier: MIT

// Package app wires one end-to-end run: manifest resolution, concurrent
// segment download, assembly and cleanup.
package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/hlsgrab/hlsgrab/internal/download"
	"github.com/hlsgrab/hlsgrab/internal/httpx"
	xglog "github.com/hlsgrab/hlsgrab/internal/log"
	"github.com/hlsgrab/hlsgrab/internal/merge"
	"github.com/hlsgrab/hlsgrab/internal/playlist"
)

// Options collects the run parameters gathered at the CLI boundary.
type Options struct {
	URL          string
	OutputDir    string   // parent dir; the run gets its own subdirectory
	OutputFile   string   // merged container path
	Concurrency  int      // maximum in-flight segment fetches
	FFmpegPath   string   // optional muxer binary override
	NoMerge      bool     // stop after download
	KeepSegments bool     // keep segment artifacts after a successful merge
	Headers      []string // custom "Name: Value" request headers
}

// RunID names the per-URL segment directory: the first 12 hex characters of
// the source URL's SHA-256, stable across resumed runs of the same URL.
func RunID(sourceURL string) string {
	sum := sha256.Sum256([]byte(sourceURL))
	return hex.EncodeToString(sum[:])[:12]
}

// Run executes one full run with the real ffmpeg muxer.
func Run(ctx context.Context, opts Options) error {
	return run(ctx, opts, &merge.FFmpeg{Bin: opts.FFmpegPath})
}

func run(ctx context.Context, opts Options, muxer merge.Muxer) error {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return fmt.Errorf("invalid source url: %w", err)
	}

	runID := RunID(opts.URL)
	ctx = xglog.ContextWithRunID(ctx, runID)
	logger := xglog.WithComponentFromContext(ctx, "run")

	segmentsDir := filepath.Join(opts.OutputDir, runID)
	if err := os.MkdirAll(segmentsDir, 0o755); err != nil {
		return fmt.Errorf("create segments dir: %w", err)
	}
	logger.Info().Str("dir", segmentsDir).Msg("segments directory ready")

	client := httpx.New(opts.Headers)

	media, err := playlist.NewResolver(client).Resolve(ctx, u)
	if err != nil {
		return err
	}

	result, err := download.NewCoordinator(client, opts.Concurrency).Run(ctx, media, segmentsDir)
	if err != nil {
		return err
	}
	if !result.Ok() {
		for _, f := range result.Failures {
			logger.Error().Err(f.Err).Int("segment", f.Index).Str("url", f.URL).Msg("segment failed")
		}
		// Merging with missing segments would silently produce a corrupt
		// artifact, so a partial download is a hard stop.
		return fmt.Errorf("%d of %d segments failed", result.Failed, result.Total)
	}

	if opts.NoMerge {
		logger.Info().Msg("merge skipped as requested")
		return nil
	}

	if err := merge.Run(ctx, muxer, segmentsDir, opts.OutputFile, result.Total); err != nil {
		logger.Error().Err(err).Str("dir", segmentsDir).Msg("merge failed, segments left in place")
		return err
	}
	logger.Info().Str("output", opts.OutputFile).Msg("merge complete")

	if !opts.KeepSegments {
		if err := merge.Cleanup(segmentsDir); err != nil {
			// Cleanup failure does not change the run's outcome.
			logger.Warn().Err(err).Msg("segment cleanup incomplete")
		}
	}
	return nil
}
