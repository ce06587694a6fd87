package assembler

import (
	"encoding/json"
	"sort"

	"memoryd/internal/ids"
	"memoryd/internal/mode"
	"memoryd/internal/types"
)

// packer accumulates sections and omissions while admitting items against
// per-section budgets.
type packer struct {
	sections  []types.ACBSection
	omissions map[types.OmissionReason][]string
	usedTotal int
}

func newPacker() *packer {
	return &packer{omissions: make(map[types.OmissionReason][]string)}
}

// addSection admits items in the given order until the budget runs out.
// Overflow item refs are recorded as budget omissions. Zero-budget sections
// are skipped entirely.
func (p *packer) addSection(name string, budget int, items []types.ACBItem) {
	if budget <= 0 {
		for _, it := range items {
			p.omit(types.OmitBudget, it.Refs...)
		}
		return
	}
	sec := types.ACBSection{Name: name}
	for _, it := range items {
		if sec.TokenEst+it.TokenEst > budget {
			p.omit(types.OmitBudget, it.Refs...)
			continue
		}
		sec.Items = append(sec.Items, it)
		sec.TokenEst += it.TokenEst
	}
	if len(sec.Items) > 0 {
		p.usedTotal += sec.TokenEst
		p.sections = append(p.sections, sec)
	}
}

func (p *packer) omit(reason types.OmissionReason, refs ...string) {
	if len(refs) == 0 {
		return
	}
	p.omissions[reason] = append(p.omissions[reason], refs[0])
}

func (p *packer) omissionList() []types.Omission {
	var out []types.Omission
	for _, reason := range []types.OmissionReason{
		types.OmitBudget, types.OmitPrivacy, types.OmitPolicy,
		types.OmitChannelBlocked, types.OmitTruncatedTool,
	} {
		if refs := p.omissions[reason]; len(refs) > 0 {
			out = append(out, types.Omission{Reason: reason, Candidates: refs})
		}
	}
	return out
}

// pack turns the fetched inputs into a final ACB. Inputs are already in their
// natural order; packing never re-fetches.
func (a *Assembler) pack(req Request, detected mode.Detection, maxTokens int, budgets map[string]int, in *sectionInputs, pinned []string) *types.ACB {
	p := newPacker()

	// Rules: sticky invariants first, non-displaceable within their reserve,
	// then the tenant's standing rules view.
	rulesBudget := budgets[mode.SectionRules]
	stickyReserve := int(float64(rulesBudget) * a.cfg.StickyReserveFraction)
	rules := make([]types.ACBItem, 0, len(pinned)+len(in.rules))
	stickyUsed := 0
	for _, inv := range pinned {
		est := estimateTokens(inv)
		if stickyUsed+est > stickyReserve && stickyUsed > 0 {
			break
		}
		stickyUsed += est
		rules = append(rules, types.ACBItem{
			Type: "rule", Text: inv, TokenEst: est, Score: 1.0,
		})
	}
	for _, r := range in.rules {
		text := r.Text
		if r.Title != "" {
			text = r.Title + ": " + r.Text
		}
		rules = append(rules, types.ACBItem{
			Type: "rule", Text: text, Refs: []string{r.ID},
			TokenEst: estimateTokens(text), Score: 0.8,
		})
	}
	p.addSection(mode.SectionRules, rulesBudget, rules)

	// Task state: highest priority first (store order).
	tasks := make([]types.ACBItem, 0, len(in.tasks))
	for _, t := range in.tasks {
		text := "[" + string(t.Status) + "] " + t.Title
		if t.Details != "" {
			text += ": " + t.Details
		}
		tasks = append(tasks, types.ACBItem{
			Type: "task", Text: text, Refs: []string{t.ID},
			TokenEst: estimateTokens(text), Score: float64(t.Priority),
		})
	}
	p.addSection(mode.SectionTaskState, budgets[mode.SectionTaskState], tasks)

	// Decisions arrive in scope-precedence order (policy > project > user >
	// global); admission follows that order.
	decisions := make([]types.ACBItem, 0, len(in.decisions))
	for _, d := range in.decisions {
		text := decisionText(&d)
		decisions = append(decisions, types.ACBItem{
			Type: "decision", Text: text, Refs: []string{d.ID},
			TokenEst: estimateTokens(text),
			Score:    float64(types.ScopePrecedence(d.Scope)),
		})
	}
	p.addSection(mode.SectionDecisions, budgets[mode.SectionDecisions], decisions)

	// Evidence: retrieval results, already score-descending.
	editsApplied := 0
	evidence := make([]types.ACBItem, 0, len(in.evidence))
	for _, r := range in.evidence {
		editsApplied += r.EditsApplied
		evidence = append(evidence, types.ACBItem{
			Type: "chunk", Text: r.Text, Refs: []string{r.ID, r.EventID},
			TokenEst: r.TokenEstimate, Score: r.Score,
		})
	}
	p.addSection(mode.SectionEvidence, budgets[mode.SectionEvidence], evidence)

	// Recent window: chronological; when the budget is tight the oldest
	// events drop first so the tail of the session survives.
	recentItems := recentWindowItems(in.recent, budgets[mode.SectionRecent], p)
	p.addSection(mode.SectionRecent, budgets[mode.SectionRecent], recentItems)

	// Capsules: flatten, best items first.
	var capsulesUsed []string
	var capsuleItems []types.ACBItem
	for _, v := range in.capsules {
		capsulesUsed = append(capsulesUsed, v.Capsule.ID)
		capsuleItems = append(capsuleItems, v.Items...)
	}
	sort.SliceStable(capsuleItems, func(i, j int) bool {
		return capsuleItems[i].Score > capsuleItems[j].Score
	})
	p.addSection(mode.SectionCapsules, budgets[mode.SectionCapsules], capsuleItems)

	return &types.ACB{
		ID:             ids.New(ids.PrefixACB),
		Mode:           detected.Mode,
		ModeConfidence: detected.Confidence,
		BudgetTokens:   maxTokens,
		TokenUsedEst:   p.usedTotal,
		Sections:       p.sections,
		Omissions:      p.omissionList(),
		CapsulesUsed:   capsulesUsed,
		EditsApplied:   editsApplied,
		Provenance: types.Provenance{
			Intent:            req.Intent,
			Mode:              detected.Mode,
			ModeConfidence:    detected.Confidence,
			QueryTerms:        queryTerms(req.QueryText),
			CandidatePoolSize: in.poolSize,
			Filters: map[string]string{
				"channel": string(req.Channel),
				"session": req.Session,
			},
			ScoringWeights:    a.retriever.Weights(),
			CapsulesConsulted: capsulesUsed,
			EditsApplied:      editsApplied,
		},
	}
}

// recentWindowItems renders events chronologically, dropping from the oldest
// end when the budget cannot hold the whole window. Truncated tool outputs
// are flagged as omissions so callers know full payloads exist as artifacts.
func recentWindowItems(events []types.Event, budget int, p *packer) []types.ACBItem {
	rendered := make([]types.ACBItem, 0, len(events))
	for _, e := range events {
		text, truncated := eventText(&e)
		if truncated {
			p.omit(types.OmitTruncatedTool, e.ID)
		}
		if text == "" {
			continue
		}
		rendered = append(rendered, types.ACBItem{
			Type: "event", Text: text, Refs: []string{e.ID},
			TokenEst: estimateTokens(text),
		})
	}
	// Walk from the newest backwards to find the chronological cut point.
	used := 0
	cut := len(rendered)
	for i := len(rendered) - 1; i >= 0; i-- {
		if used+rendered[i].TokenEst > budget {
			break
		}
		used += rendered[i].TokenEst
		cut = i
	}
	for _, dropped := range rendered[:cut] {
		p.omit(types.OmitBudget, dropped.Refs...)
	}
	return rendered[cut:]
}

// eventText extracts the displayable text of an event payload. The bool
// reports a truncated tool output.
func eventText(e *types.Event) (string, bool) {
	switch e.Kind {
	case types.KindMessage:
		var c struct {
			Text string `json:"text"`
		}
		json.Unmarshal(e.Content, &c)
		return c.Text, false
	case types.KindToolResult:
		var c struct {
			ExcerptText string `json:"excerpt_text"`
			Truncated   bool   `json:"truncated"`
		}
		json.Unmarshal(e.Content, &c)
		return c.ExcerptText, c.Truncated
	case types.KindToolCall:
		var c struct {
			Tool string `json:"tool"`
		}
		json.Unmarshal(e.Content, &c)
		if c.Tool == "" {
			return "", false
		}
		return "tool call: " + c.Tool, false
	case types.KindDecision:
		var c struct {
			Decision  string `json:"decision"`
			Rationale string `json:"rationale"`
		}
		json.Unmarshal(e.Content, &c)
		text := c.Decision
		if c.Rationale != "" {
			text += " (rationale: " + c.Rationale + ")"
		}
		return text, false
	case types.KindKnowledgeNote:
		var c struct {
			Text string `json:"text"`
		}
		json.Unmarshal(e.Content, &c)
		return c.Text, false
	case types.KindHandoff:
		var c struct {
			Summary string `json:"summary"`
		}
		json.Unmarshal(e.Content, &c)
		return c.Summary, false
	}
	return "", false
}
