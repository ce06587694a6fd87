package mode

import (
	"strings"
	"sync"

	"memoryd/internal/logging"
)

// stickyMarkers flag a sentence as a hard constraint worth pinning.
var stickyMarkers = []string{"must", "never", "required", "do not", "don't"}

// MaxStickyPerSession bounds the pinned set so a chatty session cannot starve
// the rules budget.
const MaxStickyPerSession = 12

// StickyRegistry pins hard constraints per (tenant, session) so they survive
// into every subsequent context bundle of that session.
type StickyRegistry struct {
	mu       sync.RWMutex
	sessions map[string][]string
}

// NewStickyRegistry builds an empty registry.
func NewStickyRegistry() *StickyRegistry {
	return &StickyRegistry{sessions: make(map[string][]string)}
}

func sessionKey(tenant, session string) string {
	return tenant + "\x00" + session
}

// ExtractInvariants pulls sticky-worthy sentences out of free text. A sentence
// qualifies when it carries a hard-constraint marker.
func ExtractInvariants(text string) []string {
	var out []string
	for _, sentence := range splitSentences(text) {
		lower := strings.ToLower(sentence)
		for _, m := range stickyMarkers {
			if strings.Contains(lower, m) {
				out = append(out, sentence)
				break
			}
		}
	}
	return out
}

func splitSentences(text string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '\n'
	}) {
		s := strings.TrimSpace(part)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Observe extracts invariants from text and pins any new ones for the session.
func (r *StickyRegistry) Observe(tenant, session, text string) {
	invariants := ExtractInvariants(text)
	if len(invariants) == 0 {
		return
	}
	r.Pin(tenant, session, invariants...)
}

// Pin records invariants for the session, deduplicating and respecting the
// per-session cap. Oldest pins win ties against the cap.
func (r *StickyRegistry) Pin(tenant, session string, invariants ...string) {
	key := sessionKey(tenant, session)
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := r.sessions[key]
	for _, inv := range invariants {
		if len(existing) >= MaxStickyPerSession {
			break
		}
		if containsString(existing, inv) {
			continue
		}
		existing = append(existing, inv)
		logging.Mode("Pinned sticky invariant for session %s: %q", session, inv)
	}
	r.sessions[key] = existing
}

// Get returns the pinned invariants for the session in pin order.
func (r *StickyRegistry) Get(tenant, session string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pinned := r.sessions[sessionKey(tenant, session)]
	out := make([]string, len(pinned))
	copy(out, pinned)
	return out
}

// Release drops all pinned invariants for the session. Called on session end
// or explicit user release.
func (r *StickyRegistry) Release(tenant, session string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionKey(tenant, session))
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
