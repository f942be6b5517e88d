// Package fingerprint computes the 64-bit request fingerprints used to
// key dedupe, caching, and DataLoader batching.
package fingerprint

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ID is a 64-bit request fingerprint.
type ID uint64

// Hex renders id as a lowercase hex string (not zero-padded), used as a Redis key
// suffix (internal/cache's RedisStore) where a raw uint64 would need
// its own encoding at every call site.
func Hex(id ID) string {
	return strconv.FormatUint(uint64(id), 16)
}

// Builder accumulates the ordered parts of a rendered I/O request and
// produces a stable fingerprint. Order matters — callers that want a
// canonical fingerprint across equivalent header orderings should sort
// before adding (see HTTP below).
type Builder struct {
	h *xxhash.Digest
}

// NewBuilder returns a fresh fingerprint builder.
func NewBuilder() *Builder {
	return &Builder{h: xxhash.New()}
}

// Add mixes a string part into the fingerprint, using a length prefix
// so "ab"+"c" cannot collide with "a"+"bc".
func (b *Builder) Add(part string) *Builder {
	var lenBuf [8]byte
	n := uint64(len(part))
	for i := 0; i < 8; i++ {
		lenBuf[i] = byte(n >> (8 * i))
	}
	b.h.Write(lenBuf[:])
	b.h.WriteString(part)
	return b
}

// Sum returns the accumulated fingerprint.
func (b *Builder) Sum() ID {
	return ID(b.h.Sum64())
}

// HTTP fingerprints an HTTP request by method, URL, a sorted+deduped
// header set (so that two semantically-identical requests that differ
// only in header order or casing share a fingerprint), and body.
// Headers the upstream call depends on (e.g. Authorization) are part
// of the key, so two users never share a deduped result.
func HTTP(method, url string, headers map[string]string, body string) ID {
	b := NewBuilder().Add(strings.ToUpper(method)).Add(url)

	lower := make(map[string]string, len(headers))
	for k, v := range headers {
		lower[strings.ToLower(k)] = v
	}
	keys := make([]string, 0, len(lower))
	for k := range lower {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.Add(k).Add(lower[k])
	}
	b.Add(body)
	return b.Sum()
}

// SQL fingerprints a rendered SQL statement plus its ordered
// parameters.
func SQL(sql string, params []string) ID {
	b := NewBuilder().Add(sql)
	for _, p := range params {
		b.Add(p)
	}
	return b.Sum()
}

// Bytes fingerprints an arbitrary byte payload (used for gRPC/GraphQL
// upstream requests once rendered to wire bytes).
func Bytes(parts ...string) ID {
	b := NewBuilder()
	for _, p := range parts {
		b.Add(p)
	}
	return b.Sum()
}
