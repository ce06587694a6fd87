package recorder

import (
	"strings"

	"memoryd/internal/types"
)

// EstimateTokens approximates the token count of text. The heuristic is
// bytes/4, the common average for English prose and code; the assembler
// trusts the estimate stored on the chunk.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := (len(text) + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// entrypointSignals mark tool results that describe how a repo hangs
// together; such chunks are worth slightly more at retrieval time.
var entrypointSignals = []string{
	"README", "readme", "main.go", "main.py", "index.js",
	"package.json", "go.mod", "Cargo.toml", "pyproject.toml",
}

// seedImportance assigns the initial importance for a chunk: 0.5 baseline,
// +0.2 for decisions, +0.1 per pinned tag, +0.1 for README/entrypoint
// signals in tool results. Clamped to [0,1].
func seedImportance(e types.Event) float64 {
	importance := 0.5
	if e.Kind == types.KindDecision {
		importance += 0.2
	}
	for _, tag := range e.Tags {
		if tag == "pinned" {
			importance += 0.1
		}
	}
	if e.Kind == types.KindToolResult {
		content := string(e.Content)
		for _, s := range entrypointSignals {
			if strings.Contains(content, s) {
				importance += 0.1
				break
			}
		}
	}
	if importance > 1 {
		importance = 1
	}
	return importance
}
