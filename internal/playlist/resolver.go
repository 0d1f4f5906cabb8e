// SPDX-License-Identifier: MIT

// Package playlist resolves an HLS manifest URL down to a flat, ordered
// segment list. Master playlists are followed recursively until a media
// playlist is reached; syntax parsing is delegated to grafov/m3u8.
package playlist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/grafov/m3u8"

	"github.com/hlsgrab/hlsgrab/internal/httpx"
	xglog "github.com/hlsgrab/hlsgrab/internal/log"
)

// maxResolveDepth bounds master -> media indirection. Real-world playlists
// nest one or two levels; anything deeper is a reference loop.
const maxResolveDepth = 5

var (
	// ErrNoVariants is returned when a master playlist carries no variants.
	ErrNoVariants = errors.New("master playlist has no variants")
	// ErrResolutionDepth is returned when master playlists nest deeper than
	// maxResolveDepth levels.
	ErrResolutionDepth = errors.New("playlist resolution depth exceeded")
	// ErrParse classifies manifest content the parser rejected.
	ErrParse = errors.New("invalid playlist")
)

// Segment is one media chunk of a resolved playlist. Index is the segment's
// position in the media timeline and doubles as the on-disk file index.
type Segment struct {
	Index int
	URI   string
}

// KeyDescriptor identifies how and where to obtain decryption key material.
type KeyDescriptor struct {
	Method string
	URI    string
	IV     string // optional explicit hex string, may carry a 0x prefix
}

// Media is the end state of resolution: a flat segment list, the base URL
// all segment and key URIs resolve against (the media playlist's final fetch
// URL, post-redirect), and the key descriptor for the run if the stream is
// encrypted.
//
// The whole run uses the first key descriptor found in segment order; streams
// that rotate keys mid-playlist are not supported.
type Media struct {
	Segments []Segment
	Base     *url.URL
	Key      *KeyDescriptor
}

// Resolver fetches and resolves manifests. Network reads only, no filesystem
// side effects.
type Resolver struct {
	client *httpx.Client
}

func NewResolver(client *httpx.Client) *Resolver {
	return &Resolver{client: client}
}

// Resolve fetches u and follows variant references until a media playlist is
// reached. On a master playlist the variant with the highest bandwidth wins,
// ties broken by first-encountered order.
func (r *Resolver) Resolve(ctx context.Context, u *url.URL) (*Media, error) {
	return r.resolve(ctx, u, 0)
}

func (r *Resolver) resolve(ctx context.Context, u *url.URL, depth int) (*Media, error) {
	if depth >= maxResolveDepth {
		return nil, fmt.Errorf("%w: %d levels while resolving %s", ErrResolutionDepth, maxResolveDepth, u)
	}
	logger := xglog.WithComponentFromContext(ctx, "playlist")
	logger.Info().Str("url", u.String()).Int("depth", depth).Msg("fetching playlist")

	body, finalURL, err := r.client.Get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("fetch playlist %s: %w", u, err)
	}

	parsed, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	switch listType {
	case m3u8.MASTER:
		master := parsed.(*m3u8.MasterPlaylist)
		variant, err := selectVariant(master.Variants)
		if err != nil {
			return nil, err
		}
		logger.Info().
			Int("variants", len(master.Variants)).
			Uint32("bandwidth", variant.Bandwidth).
			Msg("selected variant")
		next, err := finalURL.Parse(variant.URI)
		if err != nil {
			return nil, fmt.Errorf("resolve variant uri %q: %w", variant.URI, err)
		}
		return r.resolve(ctx, next, depth+1)

	case m3u8.MEDIA:
		media := parsed.(*m3u8.MediaPlaylist)
		segments := flatten(media)
		logger.Info().Int("segments", len(segments)).Msg("media playlist resolved")
		return &Media{
			Segments: segments,
			Base:     finalURL,
			Key:      pickKey(media),
		}, nil

	default:
		return nil, fmt.Errorf("%w: unrecognised playlist type", ErrParse)
	}
}

// selectVariant returns the variant with the maximum bandwidth. Ties keep the
// first-encountered variant.
func selectVariant(variants []*m3u8.Variant) (*m3u8.Variant, error) {
	var best *m3u8.Variant
	for _, v := range variants {
		if v == nil {
			continue
		}
		if best == nil || v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	if best == nil {
		return nil, ErrNoVariants
	}
	return best, nil
}

// flatten re-indexes the media playlist's segments densely from zero. The
// parser's segment slice is capacity-sized; a nil entry marks the end.
func flatten(media *m3u8.MediaPlaylist) []Segment {
	var segments []Segment
	for _, seg := range media.Segments {
		if seg == nil {
			break
		}
		segments = append(segments, Segment{Index: len(segments), URI: seg.URI})
	}
	return segments
}

// pickKey returns the descriptor of the first segment carrying one, falling
// back to the playlist-level key. METHOD=NONE sections mean plaintext and are
// skipped. Absence means no decryption for the whole run.
func pickKey(media *m3u8.MediaPlaylist) *KeyDescriptor {
	for _, seg := range media.Segments {
		if seg == nil {
			break
		}
		if d := descriptor(seg.Key); d != nil {
			return d
		}
	}
	return descriptor(media.Key)
}

func descriptor(key *m3u8.Key) *KeyDescriptor {
	if key == nil || key.Method == "" || key.Method == "NONE" {
		return nil
	}
	return &KeyDescriptor{Method: key.Method, URI: key.URI, IV: key.IV}
}
