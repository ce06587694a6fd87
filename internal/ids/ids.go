// Package ids generates opaque, kind-prefixed identifiers that sort by
// creation time. An id looks like "evt_0f3kq2mc81a7_k9x2mf04tz": prefix,
// base32 unix-microsecond timestamp, then uuid-derived entropy.
package ids

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind prefixes. An id is unique within its kind.
const (
	PrefixEvent    = "evt"
	PrefixChunk    = "chk"
	PrefixDecision = "dec"
	PrefixCapsule  = "cap"
	PrefixEdit     = "edt"
	PrefixTask     = "tsk"
	PrefixNote     = "kn"
	PrefixEdge     = "edge"
	PrefixArtifact = "art"
	PrefixACB      = "acb"
	PrefixHandoff  = "hand"
)

// base32hex without padding keeps lexicographic order equal to numeric order.
const alphabet = "0123456789abcdefghijklmnopqrstuv"

// timestampWidth fits microsecond timestamps until year ~4147.
const timestampWidth = 11

var (
	mu       sync.Mutex
	lastTick int64
)

// New returns a fresh id for the given kind prefix. Ids created later in the
// same process always compare greater; the monotonic guard bumps the tick
// when the clock hands out the same microsecond twice.
func New(prefix string) string {
	mu.Lock()
	tick := time.Now().UnixMicro()
	if tick <= lastTick {
		tick = lastTick + 1
	}
	lastTick = tick
	mu.Unlock()

	return prefix + "_" + encodeTick(tick) + "_" + entropy()
}

// encodeTick renders a microsecond tick as fixed-width base32hex.
func encodeTick(tick int64) string {
	var buf [timestampWidth]byte
	for i := timestampWidth - 1; i >= 0; i-- {
		buf[i] = alphabet[tick&31]
		tick >>= 5
	}
	return string(buf[:])
}

// entropy returns 10 characters derived from a random UUID.
func entropy() string {
	u := uuid.New()
	var sb strings.Builder
	sb.Grow(10)
	for i := 0; i < 10; i++ {
		sb.WriteByte(alphabet[u[i]&31])
	}
	return sb.String()
}

// Prefix returns the kind prefix of an id, or "" if the id is malformed.
func Prefix(id string) string {
	i := strings.IndexByte(id, '_')
	if i <= 0 {
		return ""
	}
	return id[:i]
}

// HasPrefix reports whether id carries the given kind prefix.
func HasPrefix(id, prefix string) bool {
	return Prefix(id) == prefix
}
