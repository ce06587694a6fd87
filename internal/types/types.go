// Package types provides shared type definitions used across memoryd packages.
// This package exists to break import cycles between the recorder, retrieval,
// and assembler layers. Types here are foundational data structures with no
// complex dependencies.
package types

import (
	"encoding/json"
	"time"
)

// =============================================================================
// ENUMS
// =============================================================================

// Channel is the visibility channel an event was observed on.
type Channel string

const (
	ChannelPrivate Channel = "private"
	ChannelPublic  Channel = "public"
	ChannelTeam    Channel = "team"
	ChannelAgent   Channel = "agent"
)

// Valid reports whether the channel is a known value.
func (c Channel) Valid() bool {
	switch c {
	case ChannelPrivate, ChannelPublic, ChannelTeam, ChannelAgent:
		return true
	}
	return false
}

// ActorType identifies who produced an event.
type ActorType string

const (
	ActorHuman ActorType = "human"
	ActorAgent ActorType = "agent"
	ActorTool  ActorType = "tool"
)

// Valid reports whether the actor type is a known value.
func (a ActorType) Valid() bool {
	switch a {
	case ActorHuman, ActorAgent, ActorTool:
		return true
	}
	return false
}

// EventKind classifies the payload shape of an event.
type EventKind string

const (
	KindMessage       EventKind = "message"
	KindToolCall      EventKind = "tool_call"
	KindToolResult    EventKind = "tool_result"
	KindDecision      EventKind = "decision"
	KindTaskUpdate    EventKind = "task_update"
	KindArtifact      EventKind = "artifact"
	KindHandoff       EventKind = "handoff"
	KindKnowledgeNote EventKind = "knowledge_note"
)

// Valid reports whether the kind is a known value.
func (k EventKind) Valid() bool {
	switch k {
	case KindMessage, KindToolCall, KindToolResult, KindDecision,
		KindTaskUpdate, KindArtifact, KindHandoff, KindKnowledgeNote:
		return true
	}
	return false
}

// Sensitivity grades how carefully a memory must be handled.
type Sensitivity string

const (
	SensitivityNone   Sensitivity = "none"
	SensitivityLow    Sensitivity = "low"
	SensitivityHigh   Sensitivity = "high"
	SensitivitySecret Sensitivity = "secret"
)

// Valid reports whether the sensitivity is a known value.
func (s Sensitivity) Valid() bool {
	switch s {
	case SensitivityNone, SensitivityLow, SensitivityHigh, SensitivitySecret:
		return true
	}
	return false
}

// Scope is the axis of validity for a memory.
type Scope string

const (
	ScopeSession Scope = "session"
	ScopeUser    Scope = "user"
	ScopeProject Scope = "project"
	ScopePolicy  Scope = "policy"
	ScopeGlobal  Scope = "global"
)

// Valid reports whether the scope is a known value.
func (s Scope) Valid() bool {
	switch s {
	case ScopeSession, ScopeUser, ScopeProject, ScopePolicy, ScopeGlobal:
		return true
	}
	return false
}

// ScopePrecedence orders scopes for decision selection: policy > project >
// user > global, with session decisions treated like user-level ones.
func ScopePrecedence(s Scope) int {
	switch s {
	case ScopePolicy:
		return 4
	case ScopeProject:
		return 3
	case ScopeUser, ScopeSession:
		return 2
	case ScopeGlobal:
		return 1
	}
	return 0
}

// EditOp is a memory surgery operation.
type EditOp string

const (
	OpRetract    EditOp = "retract"
	OpAmend      EditOp = "amend"
	OpQuarantine EditOp = "quarantine"
	OpAttenuate  EditOp = "attenuate"
	OpBlock      EditOp = "block"
)

// Valid reports whether the op is a known value.
func (o EditOp) Valid() bool {
	switch o {
	case OpRetract, OpAmend, OpQuarantine, OpAttenuate, OpBlock:
		return true
	}
	return false
}

// EditStatus is the lifecycle state of a memory edit.
type EditStatus string

const (
	EditPending  EditStatus = "pending"
	EditApproved EditStatus = "approved"
	EditRejected EditStatus = "rejected"
)

// EditTargetType is what an edit points at.
type EditTargetType string

const (
	TargetChunk    EditTargetType = "chunk"
	TargetEvent    EditTargetType = "event"
	TargetDecision EditTargetType = "decision"
)

// Valid reports whether the target type is a known value.
func (t EditTargetType) Valid() bool {
	switch t {
	case TargetChunk, TargetEvent, TargetDecision:
		return true
	}
	return false
}

// CapsuleStatus is the lifecycle state of a capsule.
type CapsuleStatus string

const (
	CapsuleActive  CapsuleStatus = "active"
	CapsuleRevoked CapsuleStatus = "revoked"
)

// DecisionStatus is the lifecycle state of a decision.
type DecisionStatus string

const (
	DecisionActive     DecisionStatus = "active"
	DecisionSuperseded DecisionStatus = "superseded"
)

// TaskStatus is the Kanban state of a task.
type TaskStatus string

const (
	TaskBacklog TaskStatus = "backlog"
	TaskOpen    TaskStatus = "open"
	TaskDoing   TaskStatus = "doing"
	TaskReview  TaskStatus = "review"
	TaskBlocked TaskStatus = "blocked"
	TaskDone    TaskStatus = "done"
)

// Valid reports whether the task status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskBacklog, TaskOpen, TaskDoing, TaskReview, TaskBlocked, TaskDone:
		return true
	}
	return false
}

// EdgeType is a typed relationship between memory nodes.
type EdgeType string

const (
	EdgeParentOf  EdgeType = "parent_of"
	EdgeChildOf   EdgeType = "child_of"
	EdgeReferences EdgeType = "references"
	EdgeCreatedBy EdgeType = "created_by"
	EdgeRelatedTo EdgeType = "related_to"
	EdgeDependsOn EdgeType = "depends_on"
)

// Valid reports whether the edge type is a known value.
func (t EdgeType) Valid() bool {
	switch t {
	case EdgeParentOf, EdgeChildOf, EdgeReferences, EdgeCreatedBy, EdgeRelatedTo, EdgeDependsOn:
		return true
	}
	return false
}

// Direction selects which edges to follow from a node.
type Direction string

const (
	DirectionIn   Direction = "in"
	DirectionOut  Direction = "out"
	DirectionBoth Direction = "both"
)

// Valid reports whether the direction is a known value.
func (d Direction) Valid() bool {
	switch d {
	case DirectionIn, DirectionOut, DirectionBoth:
		return true
	}
	return false
}

// Mode is the detected interaction mode that selects a budget profile.
type Mode string

const (
	ModeTask        Mode = "TASK"
	ModeExploration Mode = "EXPLORATION"
	ModeDebugging   Mode = "DEBUGGING"
	ModeLearning    Mode = "LEARNING"
	ModeGeneral     Mode = "GENERAL"
)

// OmissionReason explains why a candidate item was left out of an ACB.
type OmissionReason string

const (
	OmitBudget         OmissionReason = "budget"
	OmitPrivacy        OmissionReason = "privacy"
	OmitPolicy         OmissionReason = "policy"
	OmitChannelBlocked OmissionReason = "channel_blocked"
	OmitTruncatedTool  OmissionReason = "truncated_tool_output"
)

// =============================================================================
// CORE ENTITIES
// =============================================================================

// Actor is who produced an event.
type Actor struct {
	Type ActorType `json:"type"`
	ID   string    `json:"id"`
}

// Subject is the noun a memory is about: a (type, id) pair.
type Subject struct {
	Type string `json:"type,omitempty"`
	ID   string `json:"id,omitempty"`
}

// IsZero reports whether no subject was set.
func (s Subject) IsZero() bool {
	return s.Type == "" && s.ID == ""
}

// Event is the append-only ground-truth record of an interaction.
// Events are never mutated or deleted within retention.
type Event struct {
	ID          string          `json:"id"`
	Tenant      string          `json:"tenant"`
	Session     string          `json:"session"`
	Channel     Channel         `json:"channel"`
	Actor       Actor           `json:"actor"`
	Kind        EventKind       `json:"kind"`
	Sensitivity Sensitivity     `json:"sensitivity"`
	Tags        []string        `json:"tags,omitempty"`
	Content     json.RawMessage `json:"content"`
	Refs        []string        `json:"refs,omitempty"`
	Scope       Scope           `json:"scope"`
	Subject     Subject         `json:"subject,omitempty"`
	ProjectID   string          `json:"project_id,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Chunk is the atomic retrieval unit derived from an event.
type Chunk struct {
	ID            string      `json:"id"`
	Tenant        string      `json:"tenant"`
	EventID       string      `json:"event_id"`
	Session       string      `json:"session"`
	Timestamp     time.Time   `json:"timestamp"`
	Kind          EventKind   `json:"kind"`
	Channel       Channel     `json:"channel"`
	Sensitivity   Sensitivity `json:"sensitivity"`
	Tags          []string    `json:"tags,omitempty"`
	TokenEstimate int         `json:"token_estimate"`
	Importance    float64     `json:"importance"`
	Text          string      `json:"text"`
	Scope         Scope       `json:"scope"`
	Subject       Subject     `json:"subject,omitempty"`
	ProjectID     string      `json:"project_id,omitempty"`
}

// EffectiveChunk is a chunk after composing all approved memory edits.
type EffectiveChunk struct {
	Chunk
	IsRetracted     bool      `json:"is_retracted"`
	IsQuarantined   bool      `json:"is_quarantined"`
	BlockedChannels []Channel `json:"blocked_channels,omitempty"`
	EditsApplied    int       `json:"edits_applied"`
}

// EditPatch is the operation-specific payload of a memory edit.
// Shape is enforced per op by surgery.ValidatePatch.
type EditPatch struct {
	Text            *string  `json:"text,omitempty"`
	Importance      *float64 `json:"importance,omitempty"`
	ImportanceDelta *float64 `json:"importance_delta,omitempty"`
	Channel         Channel  `json:"channel,omitempty"`
}

// IsEmpty reports whether the patch carries no fields.
func (p EditPatch) IsEmpty() bool {
	return p.Text == nil && p.Importance == nil && p.ImportanceDelta == nil && p.Channel == ""
}

// MemoryEdit is a non-destructive modifier applied on read.
type MemoryEdit struct {
	ID         string         `json:"id"`
	Tenant     string         `json:"tenant"`
	TargetType EditTargetType `json:"target_type"`
	TargetID   string         `json:"target_id"`
	Op         EditOp         `json:"op"`
	Reason     string         `json:"reason,omitempty"`
	ProposedBy ActorType      `json:"proposed_by"`
	Status     EditStatus     `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	AppliedAt  *time.Time     `json:"applied_at,omitempty"`
	ApprovedBy string         `json:"approved_by,omitempty"`
	Patch      EditPatch      `json:"patch"`
}

// CapsuleItems are the memory items a capsule carries.
type CapsuleItems struct {
	Chunks    []string `json:"chunks,omitempty"`
	Decisions []string `json:"decisions,omitempty"`
	Artifacts []string `json:"artifacts,omitempty"`
}

// Count returns the total number of referenced items.
func (i CapsuleItems) Count() int {
	return len(i.Chunks) + len(i.Decisions) + len(i.Artifacts)
}

// Capsule is a curated, audience-restricted, TTL-bound memory bundle
// transferable between agents.
type Capsule struct {
	ID               string        `json:"id"`
	Tenant           string        `json:"tenant"`
	Scope            Scope         `json:"scope"`
	Subject          Subject       `json:"subject,omitempty"`
	AuthorAgentID    string        `json:"author_agent_id"`
	AudienceAgentIDs []string      `json:"audience_agent_ids"`
	Items            CapsuleItems  `json:"items"`
	Risks            []string      `json:"risks,omitempty"`
	TTLDays          int           `json:"ttl_days"`
	CreatedAt        time.Time     `json:"created_at"`
	ExpiresAt        time.Time     `json:"expires_at"`
	Status           CapsuleStatus `json:"status"`
	RevokedAt        *time.Time    `json:"revoked_at,omitempty"`
}

// Decision is a recorded choice with rationale and lifecycle.
type Decision struct {
	ID           string         `json:"id"`
	Tenant       string         `json:"tenant"`
	Status       DecisionStatus `json:"status"`
	Scope        Scope          `json:"scope"`
	Decision     string         `json:"decision"`
	Rationale    string         `json:"rationale,omitempty"`
	Constraints  []string       `json:"constraints,omitempty"`
	Alternatives []string       `json:"alternatives,omitempty"`
	Consequences []string       `json:"consequences,omitempty"`
	Refs         []string       `json:"refs,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	Supersedes   string         `json:"supersedes,omitempty"`
}

// Task is a unit of agent work projected onto a Kanban board.
type Task struct {
	ID            string     `json:"id"`
	Tenant        string     `json:"tenant"`
	Status        TaskStatus `json:"status"`
	Title         string     `json:"title"`
	Details       string     `json:"details,omitempty"`
	Refs          []string   `json:"refs,omitempty"`
	Priority      int        `json:"priority"`
	BlockedBy     []string   `json:"blocked_by,omitempty"`
	StartDate     *time.Time `json:"start_date,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	EstimateHours float64    `json:"estimate_hours,omitempty"`
	Progress      float64    `json:"progress,omitempty"`
	Assignee      string     `json:"assignee,omitempty"`
	Project       string     `json:"project,omitempty"`
	Session       string     `json:"session,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Edge is a typed relationship between two memory nodes.
type Edge struct {
	ID         string                 `json:"id"`
	Tenant     string                 `json:"tenant"`
	FromNode   string                 `json:"from_node"`
	ToNode     string                 `json:"to_node"`
	Type       EdgeType               `json:"type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// Artifact holds an oversized payload referenced from an event, such as the
// full output of a tool call that exceeded the excerpt cap.
type Artifact struct {
	ID        string    `json:"id"`
	Tenant    string    `json:"tenant"`
	EventID   string    `json:"event_id,omitempty"`
	MediaType string    `json:"media_type,omitempty"`
	Payload   []byte    `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// KnowledgeNote is a durable distilled note, written by agents or by the
// consolidation worker.
type KnowledgeNote struct {
	ID        string    `json:"id"`
	Tenant    string    `json:"tenant"`
	Scope     Scope     `json:"scope"`
	Subject   Subject   `json:"subject,omitempty"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Layer     string    `json:"layer,omitempty"` // metadata | reflection | recent
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionHandoff is a structured baton left by one session for the next.
type SessionHandoff struct {
	ID        string    `json:"id"`
	Tenant    string    `json:"tenant"`
	Session   string    `json:"session"`
	AgentID   string    `json:"agent_id"`
	Summary   string    `json:"summary"`
	OpenItems []string  `json:"open_items,omitempty"`
	Refs      []string  `json:"refs,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// =============================================================================
// ACTIVE CONTEXT BUNDLE
// =============================================================================

// ACBItem is one packed text block inside an ACB section.
type ACBItem struct {
	Type     string   `json:"type"` // chunk | decision | event | capsule_item | rule | task
	Text     string   `json:"text"`
	Refs     []string `json:"refs,omitempty"`
	TokenEst int      `json:"token_est"`
	Score    float64  `json:"score,omitempty"`
}

// ACBSection is one named, budgeted section of an ACB.
type ACBSection struct {
	Name     string    `json:"name"`
	Items    []ACBItem `json:"items"`
	TokenEst int       `json:"token_est"`
}

// Omission records candidates excluded from an ACB and why.
type Omission struct {
	Reason     OmissionReason `json:"reason"`
	Candidates []string       `json:"candidates"`
}

// Provenance traces how an ACB was assembled.
type Provenance struct {
	Intent            string             `json:"intent,omitempty"`
	Mode              Mode               `json:"mode"`
	ModeConfidence    float64            `json:"mode_confidence"`
	QueryTerms        []string           `json:"query_terms,omitempty"`
	CandidatePoolSize int                `json:"candidate_pool_size"`
	Filters           map[string]string  `json:"filters,omitempty"`
	ScoringWeights    map[string]float64 `json:"scoring_weights,omitempty"`
	CapsulesConsulted []string           `json:"capsules_consulted,omitempty"`
	EditsApplied      int                `json:"edits_applied"`
}

// ACB is the per-call, budgeted, ranked bundle of text blocks sent to a model.
type ACB struct {
	ID             string       `json:"acb_id"`
	Mode           Mode         `json:"mode"`
	ModeConfidence float64      `json:"mode_confidence"`
	BudgetTokens   int          `json:"budget_tokens"`
	TokenUsedEst   int          `json:"token_used_est"`
	Sections       []ACBSection `json:"sections"`
	Omissions      []Omission   `json:"omissions,omitempty"`
	Provenance     Provenance   `json:"provenance"`
	CapsulesUsed   []string     `json:"capsules_used,omitempty"`
	EditsApplied   int          `json:"edits_applied"`
}
