// Package recorder is the single write path into memory. It validates input,
// applies privacy policy, derives chunks and entity updates from the event,
// and persists everything in one transaction.
package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"memoryd/internal/config"
	"memoryd/internal/ids"
	"memoryd/internal/logging"
	"memoryd/internal/policy"
	"memoryd/internal/store"
	"memoryd/internal/types"
)

// Recorder ingests events.
type Recorder struct {
	store  *store.LocalStore
	policy *policy.Engine
	cfg    config.IngestionConfig
}

// New builds a recorder.
func New(s *store.LocalStore, p *policy.Engine, cfg config.IngestionConfig) *Recorder {
	return &Recorder{store: s, policy: p, cfg: cfg}
}

// Input is one record_event request.
type Input struct {
	Tenant      string
	Session     string
	Channel     types.Channel
	Actor       types.Actor
	Kind        types.EventKind
	Sensitivity types.Sensitivity
	Content     json.RawMessage
	Tags        []string
	Refs        []string
	Scope       types.Scope
	Subject     types.Subject
	ProjectID   string
}

// Result reports what a record call produced.
type Result struct {
	EventID    string
	ChunkIDs   []string
	DecisionID string
	TaskID     string
	ArtifactID string
	Redacted   bool
}

// Record validates and persists one event with everything derived from it.
func (r *Recorder) Record(ctx context.Context, in Input) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryRecorder, "Record")
	defer timer.Stop()

	if err := ctx.Err(); err != nil {
		return nil, types.ErrDeadlineExceeded
	}
	if err := r.validate(&in); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res := &Result{}

	// Privacy gate: secret sensitivity never persists; detected secret
	// material in any payload is redacted in place.
	if r.policy.NeverStoreSecrets() {
		if in.Sensitivity == types.SensitivitySecret {
			return nil, types.InvalidInputf("sensitivity=secret is never stored")
		}
		if redacted, found := policy.RedactStructured(string(in.Content)); found {
			in.Content = json.RawMessage(redacted)
			res.Redacted = true
			logging.Recorder("Redacted secret material from incoming %s event", in.Kind)
		}
	}

	scope, subject, projectID := r.extractScope(in)

	event := types.Event{
		ID:          ids.New(ids.PrefixEvent),
		Tenant:      in.Tenant,
		Session:     in.Session,
		Channel:     in.Channel,
		Actor:       in.Actor,
		Kind:        in.Kind,
		Sensitivity: in.Sensitivity,
		Tags:        in.Tags,
		Content:     in.Content,
		Refs:        in.Refs,
		Scope:       scope,
		Subject:     subject,
		ProjectID:   projectID,
		Timestamp:   now,
	}

	bundle := &store.RecordBundle{Event: event}

	if err := r.normalizeToolResult(bundle); err != nil {
		return nil, err
	}

	chunkText := r.chunkText(bundle.Event)
	if chunkText != "" {
		chunk := types.Chunk{
			ID:            ids.New(ids.PrefixChunk),
			Tenant:        event.Tenant,
			EventID:       event.ID,
			Session:       event.Session,
			Timestamp:     now,
			Kind:          event.Kind,
			Channel:       event.Channel,
			Sensitivity:   event.Sensitivity,
			Tags:          event.Tags,
			TokenEstimate: EstimateTokens(chunkText),
			Importance:    seedImportance(event),
			Text:          chunkText,
			Scope:         scope,
			Subject:       subject,
			ProjectID:     projectID,
		}
		bundle.Chunks = append(bundle.Chunks, chunk)
		res.ChunkIDs = append(res.ChunkIDs, chunk.ID)
	}

	if err := r.deriveEntities(bundle, res, now); err != nil {
		return nil, err
	}

	err := r.store.WriteBundle(bundle)
	if errors.Is(err, types.ErrConflict) && bundle.SupersededDecisionID == "" {
		// Id collision is the only conflict source on a fresh event;
		// regenerate once and retry. A decision supersede conflict is
		// real and passes through.
		oldID := bundle.Event.ID
		bundle.Event.ID = ids.New(ids.PrefixEvent)
		for i := range bundle.Chunks {
			bundle.Chunks[i].EventID = bundle.Event.ID
		}
		if bundle.Artifact != nil && bundle.Artifact.EventID == oldID {
			bundle.Artifact.EventID = bundle.Event.ID
		}
		err = r.store.WriteBundle(bundle)
	}
	if err != nil {
		return nil, err
	}

	res.EventID = bundle.Event.ID
	if bundle.Artifact != nil {
		res.ArtifactID = bundle.Artifact.ID
	}
	logging.Recorder("Recorded %s event %s (%d chunks) for tenant=%s session=%s",
		event.Kind, res.EventID, len(res.ChunkIDs), event.Tenant, event.Session)
	return res, nil
}

func (r *Recorder) validate(in *Input) error {
	if in.Tenant == "" {
		return types.InvalidInputf("tenant required")
	}
	if in.Session == "" {
		return types.InvalidInputf("session required")
	}
	if !in.Channel.Valid() {
		return types.InvalidInputf("channel %q unknown", in.Channel)
	}
	if !in.Actor.Type.Valid() || in.Actor.ID == "" {
		return types.InvalidInputf("actor requires valid type and id")
	}
	if !in.Kind.Valid() {
		return types.InvalidInputf("kind %q unknown", in.Kind)
	}
	if in.Sensitivity == "" {
		in.Sensitivity = types.SensitivityNone
	}
	if !in.Sensitivity.Valid() {
		return types.InvalidInputf("sensitivity %q unknown", in.Sensitivity)
	}
	if in.Scope != "" && !in.Scope.Valid() {
		return types.InvalidInputf("scope %q unknown", in.Scope)
	}
	return types.ValidateContent(in.Kind, in.Content)
}

// extractScope resolves scope/subject/project: explicit fields win, then tag
// heuristics (user:<id>, project:<id>, subject:<type>:<id>), then channel
// (private implies session scope), then the configured default.
func (r *Recorder) extractScope(in Input) (types.Scope, types.Subject, string) {
	scope := in.Scope
	subject := in.Subject
	projectID := in.ProjectID

	for _, tag := range in.Tags {
		switch {
		case strings.HasPrefix(tag, "user:"):
			if subject.IsZero() {
				subject = types.Subject{Type: "user", ID: strings.TrimPrefix(tag, "user:")}
			}
			if scope == "" {
				scope = types.ScopeUser
			}
		case strings.HasPrefix(tag, "project:"):
			if projectID == "" {
				projectID = strings.TrimPrefix(tag, "project:")
			}
			if scope == "" {
				scope = types.ScopeProject
			}
		case strings.HasPrefix(tag, "subject:"):
			if subject.IsZero() {
				parts := strings.SplitN(strings.TrimPrefix(tag, "subject:"), ":", 2)
				if len(parts) == 2 {
					subject = types.Subject{Type: parts[0], ID: parts[1]}
				}
			}
		}
	}

	if scope == "" && in.Channel == types.ChannelPrivate {
		scope = types.ScopeSession
	}
	if scope == "" {
		scope = types.Scope(r.cfg.DefaultScope)
	}
	if scope == "" || !scope.Valid() {
		scope = types.ScopeGlobal
	}
	return scope, subject, projectID
}

// normalizeToolResult enforces the excerpt cap on tool_result payloads: an
// oversized excerpt moves to an artifact row and the content records
// truncated=true with the artifact id. Large tool outputs never inflate
// chunks.
func (r *Recorder) normalizeToolResult(b *store.RecordBundle) error {
	if b.Event.Kind != types.KindToolResult {
		return nil
	}
	var c types.ToolResultContent
	if err := json.Unmarshal(b.Event.Content, &c); err != nil {
		return types.InvalidInputf("tool_result content: %v", err)
	}
	maxBytes := r.cfg.MaxBytesPerToolResult
	if maxBytes <= 0 || len(c.ExcerptText) <= maxBytes {
		return nil
	}

	artifact := &types.Artifact{
		ID:        ids.New(ids.PrefixArtifact),
		Tenant:    b.Event.Tenant,
		EventID:   b.Event.ID,
		MediaType: "text/plain",
		Payload:   []byte(c.ExcerptText),
		CreatedAt: b.Event.Timestamp,
	}
	c.ExcerptText = truncateUTF8(c.ExcerptText, maxBytes)
	c.Truncated = true
	c.ArtifactID = artifact.ID

	content, err := json.Marshal(c)
	if err != nil {
		return err
	}
	b.Event.Content = content
	b.Artifact = artifact
	logging.Recorder("Tool result truncated to %d bytes; full payload in artifact %s", maxBytes, artifact.ID)
	return nil
}

// chunkText picks the retrieval text for the event's chunk. Empty means the
// event produces no chunk.
func (r *Recorder) chunkText(e types.Event) string {
	switch e.Kind {
	case types.KindMessage:
		var c types.MessageContent
		if json.Unmarshal(e.Content, &c) == nil {
			return c.Text
		}
	case types.KindToolResult:
		var c types.ToolResultContent
		if json.Unmarshal(e.Content, &c) == nil {
			return c.ExcerptText
		}
	case types.KindDecision:
		var c types.DecisionContent
		if json.Unmarshal(e.Content, &c) == nil {
			text := c.Decision
			if c.Rationale != "" {
				text += "\n" + c.Rationale
			}
			return text
		}
	case types.KindKnowledgeNote:
		var c types.KnowledgeNoteContent
		if json.Unmarshal(e.Content, &c) == nil {
			return c.Text
		}
	case types.KindHandoff:
		var c types.HandoffContent
		if json.Unmarshal(e.Content, &c) == nil {
			return c.Summary
		}
	}
	// tool_call, artifact, task_update events carry no retrieval text.
	return ""
}

// deriveEntities populates the bundle's decision/task/note/handoff rows from
// the event content.
func (r *Recorder) deriveEntities(b *store.RecordBundle, res *Result, now time.Time) error {
	e := &b.Event
	switch e.Kind {
	case types.KindDecision:
		var c types.DecisionContent
		if err := json.Unmarshal(e.Content, &c); err != nil {
			return types.InvalidInputf("decision content: %v", err)
		}
		d := &types.Decision{
			ID:           ids.New(ids.PrefixDecision),
			Tenant:       e.Tenant,
			Status:       types.DecisionActive,
			Scope:        e.Scope,
			Decision:     c.Decision,
			Rationale:    c.Rationale,
			Constraints:  c.Constraints,
			Alternatives: c.Alternatives,
			Consequences: c.Consequences,
			Refs:         append([]string{e.ID}, e.Refs...),
			Supersedes:   c.Supersedes,
			CreatedAt:    now,
		}
		if c.Supersedes != "" {
			// Carry the predecessor's refs forward.
			prior, err := r.store.GetDecision(e.Tenant, c.Supersedes)
			if err != nil {
				return err
			}
			d.Refs = append(d.Refs, prior.Refs...)
			b.SupersededDecisionID = c.Supersedes
		}
		b.Decision = d
		res.DecisionID = d.ID

	case types.KindTaskUpdate:
		var c types.TaskUpdateContent
		if err := json.Unmarshal(e.Content, &c); err != nil {
			return types.InvalidInputf("task_update content: %v", err)
		}
		task, err := r.resolveTask(e, c, now)
		if err != nil {
			return err
		}
		b.Task = task
		res.TaskID = task.ID

	case types.KindHandoff:
		var c types.HandoffContent
		if err := json.Unmarshal(e.Content, &c); err != nil {
			return types.InvalidInputf("handoff content: %v", err)
		}
		b.Handoff = &types.SessionHandoff{
			ID:        ids.New(ids.PrefixHandoff),
			Tenant:    e.Tenant,
			Session:   e.Session,
			AgentID:   e.Actor.ID,
			Summary:   c.Summary,
			OpenItems: c.OpenItems,
			Refs:      append([]string{e.ID}, c.Refs...),
			CreatedAt: now,
		}

	case types.KindKnowledgeNote:
		var c types.KnowledgeNoteContent
		if err := json.Unmarshal(e.Content, &c); err != nil {
			return types.InvalidInputf("knowledge_note content: %v", err)
		}
		b.Note = &types.KnowledgeNote{
			ID:        ids.New(ids.PrefixNote),
			Tenant:    e.Tenant,
			Scope:     e.Scope,
			Subject:   e.Subject,
			Title:     c.Title,
			Text:      c.Text,
			Layer:     c.Layer,
			Tags:      e.Tags,
			CreatedAt: now,
		}
	}
	return nil
}

// resolveTask applies a task_update to an existing task or mints a new one.
func (r *Recorder) resolveTask(e *types.Event, c types.TaskUpdateContent, now time.Time) (*types.Task, error) {
	var task *types.Task
	if c.TaskID != "" {
		existing, err := r.store.GetTask(e.Tenant, c.TaskID)
		if err != nil {
			return nil, err
		}
		task = existing
	} else {
		task = &types.Task{
			ID:        ids.New(ids.PrefixTask),
			Tenant:    e.Tenant,
			Status:    types.TaskOpen,
			Session:   e.Session,
			CreatedAt: now,
		}
	}

	if c.Title != "" {
		task.Title = c.Title
	}
	if c.Details != "" {
		task.Details = c.Details
	}
	if c.Status != "" {
		task.Status = c.Status
	}
	if c.Priority != 0 {
		task.Priority = c.Priority
	}
	if len(c.BlockedBy) > 0 {
		task.BlockedBy = c.BlockedBy
	}
	if c.StartDate != "" {
		t, err := time.Parse(time.RFC3339, c.StartDate)
		if err != nil {
			return nil, types.InvalidInputf("start_date: %v", err)
		}
		task.StartDate = &t
	}
	if c.DueDate != "" {
		t, err := time.Parse(time.RFC3339, c.DueDate)
		if err != nil {
			return nil, types.InvalidInputf("due_date: %v", err)
		}
		task.DueDate = &t
	}
	if c.EstimateHours > 0 {
		task.EstimateHours = c.EstimateHours
	}
	if c.Progress > 0 {
		task.Progress = c.Progress
	}
	if c.Assignee != "" {
		task.Assignee = c.Assignee
	}
	if c.Project != "" {
		task.Project = c.Project
	}
	task.Refs = append(task.Refs, e.ID)
	task.UpdatedAt = now
	return task, nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && (s[n]&0xC0) == 0x80 {
		n--
	}
	return s[:n]
}
