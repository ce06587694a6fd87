// Package tools exposes memoryd's operations as a typed tool registry with
// JSON dispatch. Each tool declares a schema; the registry validates required
// arguments, executes the handler, and serializes results and error kinds.
package tools

import (
	"context"
	"encoding/json"
)

// Category classifies tools for manifest grouping.
type Category string

const (
	CategoryIngest  Category = "ingest"  // Event recording
	CategoryContext Category = "context" // ACB assembly
	CategoryMemory  Category = "memory"  // Reads over events/chunks/decisions
	CategorySurgery Category = "surgery" // Memory edits and approvals
	CategoryCapsule Category = "capsule" // Capsule lifecycle
	CategoryGraph   Category = "graph"   // Edges and traversal
	CategoryTask    Category = "task"    // Task board
	CategoryAdmin   Category = "admin"   // Stats and handoffs
)

// Property describes one argument in a tool's schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
	Items       *Items `json:"items,omitempty"`
}

// Items describes array element types.
type Items struct {
	Type string `json:"type"`
}

// Schema is the argument contract of a tool.
type Schema struct {
	Required   []string            `json:"required"`
	Properties map[string]Property `json:"properties"`
}

// HandlerFunc executes a tool. The returned value is JSON-serialized into
// the response; errors are classified by types.ErrorKind.
type HandlerFunc func(ctx context.Context, args Args) (any, error)

// Tool is one registered operation.
type Tool struct {
	Name        string
	Description string
	Category    Category
	Schema      Schema
	Handler     HandlerFunc

	// SessionScoped tools additionally require session_id.
	SessionScoped bool
}

// Validate checks the definition is complete.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Handler == nil {
		return ErrToolHandlerNil
	}
	return nil
}

// Request is one dispatch call.
type Request struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

// ErrorObject carries a failed call's kind and message on the wire.
type ErrorObject struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Response is the dispatch result.
type Response struct {
	Tool       string          `json:"tool"`
	OK         bool            `json:"ok"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *ErrorObject    `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms"`
}

// ManifestEntry is one tool's public description.
type ManifestEntry struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	Schema      Schema   `json:"schema"`
}
