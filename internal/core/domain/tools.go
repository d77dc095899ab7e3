package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ToolHandler executes one tool call. Arguments arrive as the raw JSON the
// model produced; the handler owns decoding and validation.
type ToolHandler func(ctx context.Context, args json.RawMessage) (string, error)

// ToolDef describes one tool the model may call. Parameters is a JSON
// schema fragment in the shape providers expect.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
	Handler     ToolHandler
}

// ToolRegistry holds the tools available to a run in registration order.
type ToolRegistry struct {
	byName map[string]*ToolDef
	order  []string
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{byName: make(map[string]*ToolDef)}
}

// Register adds a tool. Names must be non-empty and unique.
func (r *ToolRegistry) Register(tool *ToolDef) error {
	if tool == nil || tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if _, exists := r.byName[tool.Name]; exists {
		return fmt.Errorf("tool %s already registered", tool.Name)
	}
	r.byName[tool.Name] = tool
	r.order = append(r.order, tool.Name)
	return nil
}

// Names returns the registered tool names in registration order.
func (r *ToolRegistry) Names() []string {
	return append([]string(nil), r.order...)
}

// Defs returns the registered tools in registration order.
func (r *ToolRegistry) Defs() []*ToolDef {
	defs := make([]*ToolDef, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.byName[name])
	}
	return defs
}

// Execute runs the named tool and returns its output. Failures come back
// as tool output rather than errors so the model can read what went wrong
// and adjust; a missing tool names the ones that exist.
func (r *ToolRegistry) Execute(ctx context.Context, call ToolCall) string {
	tool, ok := r.byName[call.Name]
	if !ok {
		return fmt.Sprintf("Tool '%s' is not available. Available tools: %s.",
			call.Name, strings.Join(r.order, ", "))
	}
	out, err := tool.Handler(ctx, call.Arguments)
	if err != nil {
		return fmt.Sprintf("Tool '%s' failed: %v", call.Name, err)
	}
	return out
}
