// SPDX-License-Identifier: MIT

// Package download drives the concurrent acquisition of media segments: one
// fetcher per segment with retry and backoff, fanned out by a coordinator
// under a fixed concurrency limit.
package download

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/hlsgrab/hlsgrab/internal/aes128"
	"github.com/hlsgrab/hlsgrab/internal/httpx"
	xglog "github.com/hlsgrab/hlsgrab/internal/log"
	"github.com/hlsgrab/hlsgrab/internal/metrics"
)

const (
	maxAttempts    = 3
	initialBackoff = 100 * time.Millisecond
)

// SegmentFileName is the deterministic artifact name for a sequence index.
// Downstream assembly relies on this encoding to reconstruct playback order.
func SegmentFileName(index int) string {
	return fmt.Sprintf("index%d.ts", index)
}

// Fetcher downloads one segment to one file. Safe for concurrent use.
type Fetcher struct {
	client *httpx.Client

	// sleep is the backoff primitive, injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewFetcher(client *httpx.Client) *Fetcher {
	return &Fetcher{client: client, sleep: sleepCtx}
}

// Fetch downloads u into path, decrypting first when key material is given.
// An existing file at path is treated as success without any network call.
// The write is all-or-nothing: the body is buffered in memory and renamed
// into place, so a failed attempt never leaves a partial artifact.
func (f *Fetcher) Fetch(ctx context.Context, u *url.URL, path string, key, iv []byte) error {
	logger := xglog.WithComponentFromContext(ctx, "download")

	if _, err := os.Stat(path); err == nil {
		logger.Debug().Str("path", path).Msg("segment already present, skipping")
		metrics.RecordSegmentSkipped()
		return nil
	}

	data, err := f.fetchWithRetry(ctx, u, logger)
	if err != nil {
		return err
	}

	if key != nil {
		data, err = aes128.Decrypt(data, key, iv)
		if err != nil {
			return fmt.Errorf("decrypt %s: %w", u, err)
		}
	}

	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	metrics.RecordSegmentSuccess(len(data))
	return nil
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, u *url.URL, logger zerolog.Logger) ([]byte, error) {
	delay := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			metrics.RecordSegmentRetry()
			if err := f.sleep(ctx, delay); err != nil {
				return nil, err
			}
			// Saturate instead of overflowing on repeated doubling.
			if next := delay * 2; next > delay {
				delay = next
			}
		}
		body, _, err := f.client.Get(ctx, u)
		if err == nil {
			return body, nil
		}
		if !retryable(ctx, err) {
			return nil, err
		}
		lastErr = err
		logger.Warn().Err(err).
			Str("url", u.String()).
			Int("attempt", attempt).
			Msg("segment fetch failed")
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", maxAttempts, lastErr)
}

// retryable classifies a fetch failure. Connection failures, request
// timeouts, 5xx responses and 429 are worth another attempt; caller
// cancellation and everything else is terminal.
func retryable(ctx context.Context, err error) bool {
	// Cancellation from the caller, not a transient fault of this request.
	if ctx.Err() != nil {
		return false
	}
	var se *httpx.StatusError
	if errors.As(err, &se) {
		return se.Code == 429 || se.Code >= 500
	}
	// Per-request timeouts carry Timeout, wrapped in *url.Error during the
	// request and bare when the deadline hits mid body read.
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	// Dial-level failures: refused connections, resets, DNS.
	var oe *net.OpError
	return errors.As(err, &oe)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
