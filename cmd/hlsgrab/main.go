// SPDX-License-Identifier: MIT

// Command hlsgrab downloads an HLS VOD stream: it resolves the playlist,
// fetches all segments of the best variant concurrently, decrypts them when
// the stream is AES-128 protected, and merges the result with ffmpeg.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hlsgrab/hlsgrab/internal/app"
	xglog "github.com/hlsgrab/hlsgrab/internal/log"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

// headerList collects repeatable -H "Name: Value" flags.
type headerList []string

func (h *headerList) String() string { return fmt.Sprint([]string(*h)) }

func (h *headerList) Set(value string) error {
	*h = append(*h, value)
	return nil
}

func main() {
	var headers headerList

	showVersion := flag.Bool("version", false, "print version and exit")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	sourceURL := flag.String("url", "", "playlist URL to download (required)")
	outputDir := flag.String("output-dir", "output", "directory for downloaded segments")
	outputFile := flag.String("output-file", "output_video.mp4", "merged output filename")
	concurrency := flag.Int("concurrency", 10, "maximum concurrent segment downloads")
	ffmpegPath := flag.String("ffmpeg", "", "path to the ffmpeg executable (default: $PATH lookup)")
	noMerge := flag.Bool("no-merge", false, "skip the merge step")
	keepSegments := flag.Bool("keep-segments", false, "keep segment files after merging")
	flag.Var(&headers, "H", `custom HTTP header, repeatable (e.g. -H "Cookie: session=x")`)
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	xglog.Configure(xglog.Config{
		Level:   *logLevel,
		Service: "hlsgrab",
	})
	logger := xglog.WithComponent("main")

	if *sourceURL == "" {
		fmt.Fprintln(os.Stderr, "error: -url is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("url", *sourceURL).Msg("starting download")

	err := app.Run(ctx, app.Options{
		URL:          *sourceURL,
		OutputDir:    *outputDir,
		OutputFile:   *outputFile,
		Concurrency:  *concurrency,
		FFmpegPath:   *ffmpegPath,
		NoMerge:      *noMerge,
		KeepSegments: *keepSegments,
		Headers:      headers,
	})
	if err != nil {
		logger.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}
