// SPDX-License-Identifier: MIT

package download

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/hlsgrab/hlsgrab/internal/aes128"
	"github.com/hlsgrab/hlsgrab/internal/httpx"
	xglog "github.com/hlsgrab/hlsgrab/internal/log"
	"github.com/hlsgrab/hlsgrab/internal/metrics"
	"github.com/hlsgrab/hlsgrab/internal/playlist"
)

// ErrURIResolution aborts a run before any network activity when a segment
// URI cannot be resolved against the playlist base.
var ErrURIResolution = errors.New("unresolvable segment uri")

// Outcome is the terminal result of one segment's fetch. Immutable once
// created.
type Outcome struct {
	Index int
	URL   string
	Err   error
}

// Result aggregates every segment outcome of a run.
type Result struct {
	Total     int
	Succeeded int
	Failed    int
	Failures  []Outcome
}

// Ok reports whether every segment reached a successful terminal outcome.
func (r *Result) Ok() bool { return r.Failed == 0 }

// Coordinator fans out segment fetches with a bounded number in flight.
type Coordinator struct {
	fetcher     *Fetcher
	keys        *aes128.KeyResolver
	concurrency int
}

func NewCoordinator(client *httpx.Client, concurrency int) *Coordinator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Coordinator{
		fetcher:     NewFetcher(client),
		keys:        aes128.NewKeyResolver(client),
		concurrency: concurrency,
	}
}

type task struct {
	index int
	url   *url.URL
	path  string
}

// Run downloads every segment of media into outputDir. Each segment is
// driven to a terminal outcome; a failure never aborts sibling fetches. Key
// material is resolved inside each segment's own task because the default IV
// depends on the segment index.
func (c *Coordinator) Run(ctx context.Context, media *playlist.Media, outputDir string) (*Result, error) {
	logger := xglog.WithComponentFromContext(ctx, "coordinator")

	// Fail fast: every URI must resolve before the first byte is fetched.
	tasks := make([]task, 0, len(media.Segments))
	for _, seg := range media.Segments {
		u, err := media.Base.Parse(seg.URI)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrURIResolution, seg.URI, err)
		}
		tasks = append(tasks, task{
			index: seg.Index,
			url:   u,
			path:  filepath.Join(outputDir, SegmentFileName(seg.Index)),
		})
	}

	logger.Info().
		Int("segments", len(tasks)).
		Int("concurrency", c.concurrency).
		Bool("encrypted", media.Key != nil).
		Msg("starting download")

	var done atomic.Int64
	outcomes := make([]Outcome, len(tasks))

	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)
	for i, tk := range tasks {
		i, tk := i, tk
		g.Go(func() error {
			err := c.download(ctx, tk, media.Base, media.Key)
			outcomes[i] = Outcome{Index: tk.index, URL: tk.url.String(), Err: err}
			n := done.Add(1)
			if err != nil {
				metrics.RecordSegmentFailure()
				logger.Warn().Err(err).Int("segment", tk.index).Msg("segment failed")
			} else {
				logger.Debug().
					Int("segment", tk.index).
					Int64("done", n).
					Int("total", len(tasks)).
					Msg("segment complete")
			}
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{Total: len(tasks)}
	for _, o := range outcomes {
		if o.Err != nil {
			result.Failed++
			result.Failures = append(result.Failures, o)
		} else {
			result.Succeeded++
		}
	}
	logger.Info().
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Msg("download finished")
	return result, nil
}

func (c *Coordinator) download(ctx context.Context, tk task, base *url.URL, desc *playlist.KeyDescriptor) error {
	var key, iv []byte
	if desc != nil {
		// A resumed artifact is skipped without any network activity, so
		// the key endpoint must not be consulted for it either.
		if _, err := os.Stat(tk.path); err == nil {
			return c.fetcher.Fetch(ctx, tk.url, tk.path, nil, nil)
		}
		var err error
		key, iv, err = c.keys.Resolve(ctx, *desc, base, tk.index)
		if err != nil {
			return err
		}
	}
	return c.fetcher.Fetch(ctx, tk.url, tk.path, key, iv)
}
