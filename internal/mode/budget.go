package mode

import "memoryd/internal/types"

// Section names in packing priority order.
const (
	SectionRules     = "rules"
	SectionTaskState = "task_state"
	SectionDecisions = "relevant_decisions"
	SectionEvidence  = "retrieved_evidence"
	SectionRecent    = "recent_window"
	SectionCapsules  = "capsules"
)

// PackingOrder is the fixed priority in which sections admit items.
var PackingOrder = []string{
	SectionRules,
	SectionTaskState,
	SectionDecisions,
	SectionEvidence,
	SectionRecent,
	SectionCapsules,
}

// Profile is the per-mode split of the total ACB budget. Fractions sum to
// at most 1; the remainder is slack.
type Profile struct {
	Rules     float64
	TaskState float64
	Decisions float64
	Evidence  float64
	Recent    float64
	Capsules  float64
}

var profiles = map[types.Mode]Profile{
	types.ModeTask:        {Rules: 0.15, TaskState: 0.10, Decisions: 0.15, Evidence: 0.35, Recent: 0.20, Capsules: 0.05},
	types.ModeExploration: {Rules: 0.08, TaskState: 0.05, Decisions: 0.10, Evidence: 0.30, Recent: 0.40, Capsules: 0.07},
	types.ModeDebugging:   {Rules: 0.08, TaskState: 0.10, Decisions: 0.10, Evidence: 0.55, Recent: 0.17, Capsules: 0.00},
	types.ModeLearning:    {Rules: 0.12, TaskState: 0.00, Decisions: 0.10, Evidence: 0.50, Recent: 0.25, Capsules: 0.03},
	types.ModeGeneral:     {Rules: 0.10, TaskState: 0.08, Decisions: 0.12, Evidence: 0.35, Recent: 0.30, Capsules: 0.05},
}

// ProfileFor returns the budget profile for a mode, falling back to GENERAL
// for unknown values.
func ProfileFor(m types.Mode) Profile {
	if p, ok := profiles[m]; ok {
		return p
	}
	return profiles[types.ModeGeneral]
}

// SectionBudgets splits maxTokens across sections per the mode's profile.
// A zero fraction yields a zero budget, which the packer treats as "section
// disabled".
func SectionBudgets(m types.Mode, maxTokens int) map[string]int {
	p := ProfileFor(m)
	total := float64(maxTokens)
	return map[string]int{
		SectionRules:     int(total * p.Rules),
		SectionTaskState: int(total * p.TaskState),
		SectionDecisions: int(total * p.Decisions),
		SectionEvidence:  int(total * p.Evidence),
		SectionRecent:    int(total * p.Recent),
		SectionCapsules:  int(total * p.Capsules),
	}
}
