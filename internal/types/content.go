package types

import (
	"encoding/json"
	"strings"
)

// =============================================================================
// PER-KIND CONTENT PAYLOADS
// =============================================================================
// Event content is stored as one polymorphic JSON column; these structs are
// the per-kind schemas the recorder validates against before writing.

// MessageContent is the payload for kind=message.
type MessageContent struct {
	Text string `json:"text"`
}

// ToolCallContent is the payload for kind=tool_call.
type ToolCallContent struct {
	Tool string                 `json:"tool"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// ToolResultContent is the normalized payload for kind=tool_result.
// When Truncated is true, ArtifactID points at the full payload.
type ToolResultContent struct {
	Tool        string `json:"tool"`
	Path        string `json:"path,omitempty"`
	ExcerptText string `json:"excerpt_text"`
	LineRange   string `json:"line_range,omitempty"`
	Truncated   bool   `json:"truncated"`
	ArtifactID  string `json:"artifact_id,omitempty"`
}

// DecisionContent is the payload for kind=decision.
type DecisionContent struct {
	Decision     string   `json:"decision"`
	Rationale    string   `json:"rationale,omitempty"`
	Constraints  []string `json:"constraints,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
	Consequences []string `json:"consequences,omitempty"`
	Supersedes   string   `json:"supersedes,omitempty"`
}

// TaskUpdateContent is the payload for kind=task_update. TaskID is empty for
// a new task; status defaults to open.
type TaskUpdateContent struct {
	TaskID        string     `json:"task_id,omitempty"`
	Title         string     `json:"title,omitempty"`
	Details       string     `json:"details,omitempty"`
	Status        TaskStatus `json:"status,omitempty"`
	Priority      int        `json:"priority,omitempty"`
	BlockedBy     []string   `json:"blocked_by,omitempty"`
	StartDate     string     `json:"start_date,omitempty"` // RFC 3339 date
	DueDate       string     `json:"due_date,omitempty"`
	EstimateHours float64    `json:"estimate_hours,omitempty"`
	Progress      float64    `json:"progress,omitempty"`
	Assignee      string     `json:"assignee,omitempty"`
	Project       string     `json:"project,omitempty"`
}

// ArtifactContent is the payload for kind=artifact.
type ArtifactContent struct {
	Name      string `json:"name"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
}

// HandoffContent is the payload for kind=handoff.
type HandoffContent struct {
	Summary   string   `json:"summary"`
	OpenItems []string `json:"open_items,omitempty"`
	Refs      []string `json:"refs,omitempty"`
}

// KnowledgeNoteContent is the payload for kind=knowledge_note.
type KnowledgeNoteContent struct {
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
	Layer string `json:"layer,omitempty"`
}

// ValidateContent checks that raw parses as the kind's schema and that the
// required fields are present. Returns ErrInvalidInput on violation.
func ValidateContent(kind EventKind, raw json.RawMessage) error {
	if len(raw) == 0 {
		return InvalidInputf("content required for kind %s", kind)
	}

	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()

	switch kind {
	case KindMessage:
		var c MessageContent
		if err := dec.Decode(&c); err != nil {
			return InvalidInputf("message content: %v", err)
		}
		if strings.TrimSpace(c.Text) == "" {
			return InvalidInputf("message content requires text")
		}
	case KindToolCall:
		var c ToolCallContent
		if err := dec.Decode(&c); err != nil {
			return InvalidInputf("tool_call content: %v", err)
		}
		if c.Tool == "" {
			return InvalidInputf("tool_call content requires tool")
		}
	case KindToolResult:
		var c ToolResultContent
		if err := dec.Decode(&c); err != nil {
			return InvalidInputf("tool_result content: %v", err)
		}
		if c.Tool == "" {
			return InvalidInputf("tool_result content requires tool")
		}
		if c.ExcerptText == "" {
			return InvalidInputf("tool_result content requires excerpt_text")
		}
	case KindDecision:
		var c DecisionContent
		if err := dec.Decode(&c); err != nil {
			return InvalidInputf("decision content: %v", err)
		}
		if strings.TrimSpace(c.Decision) == "" {
			return InvalidInputf("decision content requires decision text")
		}
	case KindTaskUpdate:
		var c TaskUpdateContent
		if err := dec.Decode(&c); err != nil {
			return InvalidInputf("task_update content: %v", err)
		}
		if c.TaskID == "" && strings.TrimSpace(c.Title) == "" {
			return InvalidInputf("task_update content requires task_id or title")
		}
		if c.Status != "" && !c.Status.Valid() {
			return InvalidInputf("task_update status %q unknown", c.Status)
		}
	case KindArtifact:
		var c ArtifactContent
		if err := dec.Decode(&c); err != nil {
			return InvalidInputf("artifact content: %v", err)
		}
		if c.Name == "" {
			return InvalidInputf("artifact content requires name")
		}
	case KindHandoff:
		var c HandoffContent
		if err := dec.Decode(&c); err != nil {
			return InvalidInputf("handoff content: %v", err)
		}
		if strings.TrimSpace(c.Summary) == "" {
			return InvalidInputf("handoff content requires summary")
		}
	case KindKnowledgeNote:
		var c KnowledgeNoteContent
		if err := dec.Decode(&c); err != nil {
			return InvalidInputf("knowledge_note content: %v", err)
		}
		if strings.TrimSpace(c.Text) == "" {
			return InvalidInputf("knowledge_note content requires text")
		}
	default:
		return InvalidInputf("unknown event kind %q", kind)
	}

	return nil
}
