// Package policy enforces privacy rules on the write and read paths:
// secret detection and redaction before persistence, and the channel ->
// sensitivity allow-list consulted by retrieval.
package policy

import (
	"math"
	"regexp"
	"strings"

	"memoryd/internal/config"
	"memoryd/internal/logging"
	"memoryd/internal/types"
)

const redactedPlaceholder = "[REDACTED]"

// Patterns for secret material. Ordered roughly by specificity; the entropy
// check below catches what the shapes miss.
var secretPatterns = []*regexp.Regexp{
	// Known provider key shapes
	regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{20,}\b`),
	regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`),
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
	regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`),
	regexp.MustCompile(`\bAIza[0-9A-Za-z_-]{35}\b`),
	// Bearer tokens and basic-auth URLs
	regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]{20,}`),
	regexp.MustCompile(`(?i)\b[a-z][a-z0-9+.-]*://[^/\s:@]+:[^/\s:@]+@`),
	// PEM blocks
	regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`),
	// key=value assignments for credential-looking names
	regexp.MustCompile(`(?i)\b(api[_-]?key|secret|token|passwd|password|credential)s?\s*[:=]\s*['"]?[A-Za-z0-9._~+/=-]{12,}['"]?`),
}

// Engine applies privacy policy. It is read-mostly: SetConfig swaps the
// rules when the config watcher reloads.
type Engine struct {
	cfg config.PrivacyConfig
}

// NewEngine builds a policy engine from privacy config.
func NewEngine(cfg config.PrivacyConfig) *Engine {
	return &Engine{cfg: cfg}
}

// SetConfig swaps the privacy rules (config hot-reload).
func (e *Engine) SetConfig(cfg config.PrivacyConfig) {
	e.cfg = cfg
	logging.Policy("Privacy policy reloaded: never_store_secrets=%v channels=%d",
		cfg.NeverStoreSecrets, len(cfg.ChannelSensitivities))
}

// NeverStoreSecrets reports whether secret material must not be persisted.
func (e *Engine) NeverStoreSecrets() bool {
	return e.cfg.NeverStoreSecrets
}

// AllowedSensitivities returns the sensitivities readable on a channel.
// Unknown channels fall back to none-only.
func (e *Engine) AllowedSensitivities(channel types.Channel) []types.Sensitivity {
	names, ok := e.cfg.ChannelSensitivities[string(channel)]
	if !ok {
		return []types.Sensitivity{types.SensitivityNone}
	}
	out := make([]types.Sensitivity, 0, len(names))
	for _, n := range names {
		out = append(out, types.Sensitivity(n))
	}
	return out
}

// SensitivityAllowed reports whether s may be surfaced on channel.
func (e *Engine) SensitivityAllowed(channel types.Channel, s types.Sensitivity) bool {
	for _, allowed := range e.AllowedSensitivities(channel) {
		if allowed == s {
			return true
		}
	}
	return false
}

// DetectSecrets reports whether text contains secret-looking material.
func DetectSecrets(text string) bool {
	for _, p := range secretPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return hasHighEntropyToken(text)
}

// Redact replaces secret-looking spans with a placeholder and reports
// whether anything was replaced.
func Redact(text string) (string, bool) {
	redacted := text
	found := false
	for _, p := range secretPatterns {
		if p.MatchString(redacted) {
			redacted = p.ReplaceAllString(redacted, redactedPlaceholder)
			found = true
		}
	}

	// High-entropy bare tokens: replace token by token.
	fields := strings.Fields(redacted)
	changed := false
	for i, f := range fields {
		if isHighEntropyToken(f) {
			fields[i] = redactedPlaceholder
			changed = true
		}
	}
	if changed {
		redacted = strings.Join(fields, " ")
		found = true
	}

	if found {
		logging.PolicyDebug("Redacted secret material (%d -> %d bytes)", len(text), len(redacted))
	}
	return redacted, found
}

// RedactStructured replaces secret-looking spans in structured payloads
// (JSON event content) using the shape patterns only. The entropy pass is
// skipped because rejoining fields would destroy the payload's structure.
func RedactStructured(text string) (string, bool) {
	redacted := text
	found := false
	for _, p := range secretPatterns {
		if p.MatchString(redacted) {
			redacted = p.ReplaceAllString(redacted, redactedPlaceholder)
			found = true
		}
	}
	if found {
		logging.PolicyDebug("Redacted secret material in structured payload")
	}
	return redacted, found
}

// hasHighEntropyToken scans whitespace-separated tokens for one that looks
// like random key material.
func hasHighEntropyToken(text string) bool {
	for _, f := range strings.Fields(text) {
		if isHighEntropyToken(f) {
			return true
		}
	}
	return false
}

// isHighEntropyToken flags long, mixed-class tokens with near-uniform byte
// distribution. The length floor keeps prose and identifiers out.
func isHighEntropyToken(tok string) bool {
	tok = strings.Trim(tok, `"'.,;:()[]{}<>`)
	if len(tok) < 32 || len(tok) > 512 {
		return false
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range tok {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case r == '_' || r == '-' || r == '+' || r == '/' || r == '=':
			// common in base64/url-safe key material
		default:
			return false
		}
	}
	if !hasDigit || (!hasUpper && !hasLower) {
		return false
	}
	return shannonEntropy(tok) > 4.0
}

// shannonEntropy returns bits per symbol for the token.
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	freq := make(map[rune]float64)
	for _, r := range s {
		freq[r]++
	}
	n := float64(len(s))
	var h float64
	for _, c := range freq {
		p := c / n
		h -= p * math.Log2(p)
	}
	return h
}
