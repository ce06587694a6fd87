package mode

import (
	"testing"

	"memoryd/internal/types"
)

func TestDetectIntentDominates(t *testing.T) {
	cases := []struct {
		intent string
		query  string
		want   types.Mode
	}{
		{"debug", "implement the new parser", types.ModeDebugging},
		{"implement", "why does this error happen", types.ModeTask},
		{"explore", "", types.ModeExploration},
		{"learning", "fix the build", types.ModeLearning},
		{"TASK", "", types.ModeTask},
	}
	for _, tc := range cases {
		d := Detect(tc.intent, tc.query)
		if d.Mode != tc.want {
			t.Errorf("Detect(%q, %q) = %s, want %s", tc.intent, tc.query, d.Mode, tc.want)
		}
		if d.Confidence < 0.7 {
			t.Errorf("Detect(%q, _): intent hit should carry confidence >= 0.7, got %v", tc.intent, d.Confidence)
		}
	}
}

func TestDetectQueryHeuristics(t *testing.T) {
	cases := []struct {
		query string
		want  types.Mode
	}{
		{"the server keeps returning error 500 on startup", types.ModeDebugging},
		{"panic: runtime error in the scheduler", types.ModeDebugging},
		{"implement retry with backoff for the client", types.ModeTask},
		{"fix the flaky integration suite", types.ModeTask},
		{"I'm wondering what if we sharded by tenant", types.ModeExploration},
		{"explain how does the write-ahead log work", types.ModeLearning},
		{"what is the office address of the vendor", types.ModeLearning},
		{"hello there", types.ModeGeneral},
		{"the terror genre is popular", types.ModeGeneral},
		{"", types.ModeGeneral},
	}
	for _, tc := range cases {
		d := Detect("", tc.query)
		if d.Mode != tc.want {
			t.Errorf("Detect(\"\", %q) = %s, want %s", tc.query, d.Mode, tc.want)
		}
		if d.Confidence >= 0.7 {
			t.Errorf("heuristic match should stay below intent confidence: %v", d.Confidence)
		}
	}
}

func TestDetectUnknownIntentFallsThrough(t *testing.T) {
	d := Detect("yolo", "the deploy fails with a stack trace")
	if d.Mode != types.ModeDebugging {
		t.Errorf("unknown intent should defer to heuristics: %s", d.Mode)
	}
}

func TestProfilesSumWithinBudget(t *testing.T) {
	for _, m := range []types.Mode{types.ModeTask, types.ModeExploration, types.ModeDebugging, types.ModeLearning, types.ModeGeneral} {
		p := ProfileFor(m)
		sum := p.Rules + p.TaskState + p.Decisions + p.Evidence + p.Recent + p.Capsules
		if sum > 1.0+1e-9 {
			t.Errorf("%s profile sums to %v > 1", m, sum)
		}
	}
}

func TestSectionBudgets(t *testing.T) {
	b := SectionBudgets(types.ModeDebugging, 10000)
	if b[SectionEvidence] != 5500 {
		t.Errorf("debugging evidence budget: %d", b[SectionEvidence])
	}
	if b[SectionCapsules] != 0 {
		t.Errorf("debugging capsules budget should be zero: %d", b[SectionCapsules])
	}
	unknown := SectionBudgets(types.Mode("???"), 10000)
	general := SectionBudgets(types.ModeGeneral, 10000)
	for k, v := range general {
		if unknown[k] != v {
			t.Errorf("unknown mode should use GENERAL: %s %d vs %d", k, unknown[k], v)
		}
	}
}

func TestExtractInvariants(t *testing.T) {
	text := "We must keep responses under 2s. The logo is blue. Never write secrets to disk! TLS 1.3 is required."
	got := ExtractInvariants(text)
	if len(got) != 3 {
		t.Fatalf("extracted %d invariants: %v", len(got), got)
	}
}

func TestStickyRegistryLifecycle(t *testing.T) {
	r := NewStickyRegistry()
	r.Observe("t1", "s1", "You must always run the linter before committing")
	r.Observe("t1", "s1", "You must always run the linter before committing") // dedup
	r.Observe("t1", "s1", "the sky is blue today")                            // no marker
	r.Observe("t1", "s2", "Never push directly to main")

	if got := r.Get("t1", "s1"); len(got) != 1 {
		t.Errorf("s1 pins: %v", got)
	}
	if got := r.Get("t1", "s2"); len(got) != 1 {
		t.Errorf("s2 pins: %v", got)
	}
	// Sessions are isolated across tenants too.
	if got := r.Get("t2", "s1"); len(got) != 0 {
		t.Errorf("cross-tenant pins leaked: %v", got)
	}

	r.Release("t1", "s1")
	if got := r.Get("t1", "s1"); len(got) != 0 {
		t.Errorf("release did not clear: %v", got)
	}
	if got := r.Get("t1", "s2"); len(got) != 1 {
		t.Errorf("release cleared wrong session: %v", got)
	}
}

func TestStickyRegistryCap(t *testing.T) {
	r := NewStickyRegistry()
	for i := 0; i < MaxStickyPerSession+5; i++ {
		r.Pin("t1", "s1", "must do thing number "+string(rune('a'+i)))
	}
	if got := r.Get("t1", "s1"); len(got) != MaxStickyPerSession {
		t.Errorf("cap not enforced: %d pins", len(got))
	}
}
