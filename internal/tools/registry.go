package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"memoryd/internal/logging"
	"memoryd/internal/types"
)

// Registry holds the tool set and dispatches JSON requests against it.
// Thread-safe; registration normally happens once at boot.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. Duplicate names are an error.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}
	r.tools[tool.Name] = tool
	logging.APIDebug("Registered tool: %s (category=%s)", tool.Name, tool.Category)
	return nil
}

// MustRegister registers a tool and panics on error. For static registration
// at boot.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", tool.Name, err))
	}
}

// Get returns a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns all tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Manifest describes every tool, sorted by name, for discovery.
func (r *Registry) Manifest() []ManifestEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ManifestEntry, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, ManifestEntry{
			Name:        t.Name,
			Description: t.Description,
			Category:    t.Category,
			Schema:      t.Schema,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dispatch decodes and executes one request. The response always carries the
// tool name and duration; failures carry the error kind and message instead
// of a result.
func (r *Registry) Dispatch(ctx context.Context, req Request) Response {
	start := time.Now()
	fail := func(err error) Response {
		return Response{
			Tool: req.Tool,
			OK:   false,
			Error: &ErrorObject{
				Kind:    types.ErrorKind(err),
				Message: err.Error(),
			},
			DurationMs: time.Since(start).Milliseconds(),
		}
	}

	tool := r.Get(req.Tool)
	if tool == nil {
		return fail(types.InvalidInputf("unknown tool %q", req.Tool))
	}

	var args Args
	if len(req.Args) > 0 {
		if err := json.Unmarshal(req.Args, &args); err != nil {
			return fail(types.InvalidInputf("malformed args: %v", err))
		}
	}
	if args == nil {
		args = Args{}
	}
	if err := validateArgs(tool, args); err != nil {
		return fail(err)
	}

	logging.APIDebug("Dispatching %s", tool.Name)
	result, err := tool.Handler(ctx, args)
	elapsed := time.Since(start)
	if err != nil {
		logging.API("%s failed in %v: %v", tool.Name, elapsed, err)
		return fail(err)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fail(fmt.Errorf("%w: marshal result: %v", types.ErrInternal, err))
	}
	logging.API("%s completed in %v", tool.Name, elapsed)
	return Response{
		Tool:       req.Tool,
		OK:         true,
		Result:     payload,
		DurationMs: elapsed.Milliseconds(),
	}
}

// validateArgs enforces the schema's required list plus the universal
// tenant_id and, for session-scoped tools, session_id.
func validateArgs(tool *Tool, args Args) error {
	if args.String("tenant_id") == "" {
		return types.InvalidInputf("tenant_id required")
	}
	if tool.SessionScoped && args.String("session_id") == "" {
		return types.InvalidInputf("session_id required for %s", tool.Name)
	}
	for _, required := range tool.Schema.Required {
		if !args.Has(required) {
			return types.InvalidInputf("missing required argument %q", required)
		}
	}
	return nil
}
