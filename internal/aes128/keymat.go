// SPDX-License-Identifier: MIT

// Package aes128 covers the decryption stage of a run: fetching and
// normalizing key material, and the AES-128-CBC decode applied to each
// encrypted segment.
package aes128

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/hlsgrab/hlsgrab/internal/httpx"
	"github.com/hlsgrab/hlsgrab/internal/playlist"
)

// keySize is the AES-128 key and block size.
const keySize = 16

var (
	// ErrKeyURI is returned when the key descriptor's URI resolves neither as
	// an absolute URL nor against the playlist base.
	ErrKeyURI = errors.New("unresolvable key uri")
	// ErrIVDecode is returned on a malformed explicit IV hex string.
	ErrIVDecode = errors.New("malformed iv")
)

// KeyResolver turns a key descriptor into the concrete key and IV bytes for
// one segment. No caching: the default IV depends on the segment's own
// sequence index, so material is recomputed per segment.
type KeyResolver struct {
	client *httpx.Client
}

func NewKeyResolver(client *httpx.Client) *KeyResolver {
	return &KeyResolver{client: client}
}

// Resolve fetches the key bytes and derives the IV for the segment at index.
// Key and IV are both normalized to exactly 16 bytes: kept from the front
// when longer, zero-padded at the tail when shorter. That normalization is a
// compatibility rule for non-conformant key servers, not a cryptographic
// one, and is preserved as-is.
func (r *KeyResolver) Resolve(ctx context.Context, desc playlist.KeyDescriptor, base *url.URL, index int) (key, iv []byte, err error) {
	keyURL, err := resolveKeyURL(desc.URI, base)
	if err != nil {
		return nil, nil, err
	}
	keyBytes, _, err := r.client.Get(ctx, keyURL)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch key %s: %w", keyURL, err)
	}
	iv, err = deriveIV(desc.IV, index)
	if err != nil {
		return nil, nil, err
	}
	return normalize16(keyBytes), iv, nil
}

func resolveKeyURL(uri string, base *url.URL) (*url.URL, error) {
	if u, err := url.Parse(uri); err == nil && u.IsAbs() {
		return u, nil
	}
	if base != nil {
		if u, err := base.Parse(uri); err == nil {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrKeyURI, uri)
}

// deriveIV decodes the explicit IV when present, otherwise synthesizes the
// default: the segment index as a 32-hex-digit value, i.e. the index placed
// in the low-order bytes of a 16-byte big-endian integer.
func deriveIV(explicit string, index int) ([]byte, error) {
	s := explicit
	if s == "" {
		s = fmt.Sprintf("%032x", index)
	}
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrIVDecode, explicit, err)
	}
	return normalize16(raw), nil
}

// normalize16 forces b to exactly 16 bytes, keeping the leading bytes of a
// longer value and zero-padding the tail of a shorter one.
func normalize16(b []byte) []byte {
	out := make([]byte, keySize)
	copy(out, b)
	return out
}
