package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lockwise/support-agent/pkg/domain"
)

// ExecuteFunc runs one tool against its backing connector and returns the
// raw payload. Errors are converted to error-marker payloads by the
// orchestrator, never propagated past it.
type ExecuteFunc func(ctx context.Context, args map[string]any) (map[string]any, error)

// SummarizeFunc renders a raw payload as a short human-readable summary for
// the language-model conversation. It must preserve the specific facts the
// analysis needs (names and counts, not just "data found").
type SummarizeFunc func(raw map[string]any) string

// Handler is one entry in the tool dispatch table: schema, execution
// capability, and summarizer registered together under one name.
type Handler struct {
	Definition domain.ToolDefinition
	Execute    ExecuteFunc
	Summarize  SummarizeFunc

	// ListKey names the payload key holding this tool's record list.
	// Empty for record-shaped tools; list-shaped tools get pagination probing.
	ListKey string
}

// Registry maps tool names to handlers. Registration happens once at
// startup; lookups are concurrent-safe.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty tool registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler to the dispatch table
func (r *Registry) Register(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := h.Definition.Name
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if h.Execute == nil {
		return fmt.Errorf("tool %s has no execute function", name)
	}
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}

	r.handlers[name] = h
	return nil
}

// Get retrieves a handler by name
func (r *Registry) Get(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, exists := r.handlers[name]
	if !exists {
		return Handler{}, fmt.Errorf("tool %s not found", name)
	}
	return h, nil
}

// Definitions returns the static tool catalog in stable name order, in the
// shape handed to the language model.
func (r *Registry) Definitions() []domain.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]domain.ToolDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, r.handlers[name].Definition)
	}
	return defs
}

// Names returns the registered tool names in stable order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
