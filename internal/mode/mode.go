// Package mode detects the interaction mode for a request and maps it to a
// budget profile for context assembly. Detection is pure-CPU: a caller-supplied
// intent string dominates when it maps with high confidence, otherwise query
// heuristics adjust the result.
package mode

import (
	"strings"

	"memoryd/internal/logging"
	"memoryd/internal/types"
)

// intentModes maps normalized intent strings to modes. A hit here carries
// confidence 0.9 and dominates over query heuristics.
var intentModes = map[string]types.Mode{
	"task":        types.ModeTask,
	"implement":   types.ModeTask,
	"fix":         types.ModeTask,
	"build":       types.ModeTask,
	"refactor":    types.ModeTask,
	"code":        types.ModeTask,
	"explore":     types.ModeExploration,
	"exploration": types.ModeExploration,
	"research":    types.ModeExploration,
	"brainstorm":  types.ModeExploration,
	"debug":       types.ModeDebugging,
	"debugging":   types.ModeDebugging,
	"diagnose":    types.ModeDebugging,
	"triage":      types.ModeDebugging,
	"learn":       types.ModeLearning,
	"learning":    types.ModeLearning,
	"explain":     types.ModeLearning,
	"teach":       types.ModeLearning,
	"general":     types.ModeGeneral,
	"chat":        types.ModeGeneral,
}

// Keyword groups for the query heuristics. Order of checks below defines
// precedence when a query matches several groups.
var (
	debugSignals = []string{
		"error", "panic", "crash", "stack trace", "traceback", "exception",
		"segfault", "failing", "fails with", "broken", "regression",
		"not working", "why does", "reproduce",
	}
	taskSignals = []string{
		"implement", "fix", "build", "add", "create", "write", "refactor",
		"rename", "migrate", "deploy", "update the", "remove the",
	}
	exploreSignals = []string{
		"thinking", "wondering", "what if", "could we", "explore",
		"options for", "compare", "tradeoff", "trade-off", "alternatives",
	}
	learnSignals = []string{
		"explain", "how does", "what is", "what are", "teach", "tutorial",
		"walk me through", "understand", "learn about",
	}
)

// Detection is the outcome of mode detection.
type Detection struct {
	Mode       types.Mode
	Confidence float64
}

// Detect resolves the mode for a request. The intent mapping dominates when it
// resolves with confidence >= 0.7; otherwise the query heuristics decide, and
// GENERAL is the fallback.
func Detect(intent, queryText string) Detection {
	d := detectIntent(intent)
	if d.Confidence >= 0.7 {
		logging.ModeDebug("Intent %q -> %s (%.2f)", intent, d.Mode, d.Confidence)
		return d
	}

	if h, ok := detectFromQuery(queryText); ok {
		logging.ModeDebug("Query heuristics -> %s (%.2f)", h.Mode, h.Confidence)
		return h
	}
	if d.Confidence > 0 {
		return d
	}
	return Detection{Mode: types.ModeGeneral, Confidence: 0.3}
}

func detectIntent(intent string) Detection {
	norm := strings.ToLower(strings.TrimSpace(intent))
	if norm == "" {
		return Detection{Mode: types.ModeGeneral, Confidence: 0}
	}
	if m, ok := intentModes[norm]; ok {
		return Detection{Mode: m, Confidence: 0.9}
	}
	// A multi-word intent still counts when a known intent word leads it,
	// e.g. "fix the flaky test", but only weakly.
	first, _, _ := strings.Cut(norm, " ")
	if m, ok := intentModes[first]; ok {
		return Detection{Mode: m, Confidence: 0.6}
	}
	return Detection{Mode: types.ModeGeneral, Confidence: 0}
}

func detectFromQuery(queryText string) (Detection, bool) {
	q := strings.ToLower(queryText)
	if q == "" {
		return Detection{}, false
	}
	switch {
	case containsAny(q, debugSignals):
		return Detection{Mode: types.ModeDebugging, Confidence: 0.6}, true
	case containsAny(q, taskSignals):
		return Detection{Mode: types.ModeTask, Confidence: 0.55}, true
	case containsAny(q, exploreSignals):
		return Detection{Mode: types.ModeExploration, Confidence: 0.5}, true
	case containsAny(q, learnSignals):
		return Detection{Mode: types.ModeLearning, Confidence: 0.5}, true
	}
	return Detection{}, false
}

// containsAny reports whether any signal occurs in text as whole words.
// Hyphens bind words together, so "write" never fires inside "write-ahead".
func containsAny(text string, signals []string) bool {
	for _, s := range signals {
		if containsPhrase(text, s) {
			return true
		}
	}
	return false
}

func containsPhrase(text, phrase string) bool {
	for start := 0; ; start++ {
		i := strings.Index(text[start:], phrase)
		if i < 0 {
			return false
		}
		start += i
		if isBoundary(text, start-1) && isBoundary(text, start+len(phrase)) {
			return true
		}
	}
}

// isBoundary reports whether the byte at i does not extend a word match.
// Out-of-range counts as a boundary; hyphens do not, keeping compounds whole.
func isBoundary(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	c := text[i]
	if c == '-' {
		return false
	}
	return !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9')
}
