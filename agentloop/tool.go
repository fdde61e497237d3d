package agentloop

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// ParamSpec describes one tool parameter for prompt rendering and
// validation. Type is a hint for the model ("string", "int", "bool",
// "number", "list"); the core never coerces values itself.
type ParamSpec struct {
	Description string
	Type        string
	Required    bool
}

// Tool is the capability contract. The top-level XML tag in model output
// must equal Name; parameters arrive as raw strings and the tool performs
// its own coercion, failing with a ToolExecutionError on invalid input.
// Streaming tools surface their block content incrementally; StreamParam
// names the parameter whose content is being streamed.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]ParamSpec
	Execute(ctx context.Context, params map[string]string) (string, error)
	Streaming() bool
	StreamParam() string
}

// Registry manages tool registration and O(1) name lookup. Tools are
// registered at construction time and the set is stable for the lifetime
// of an Agent; registering a name twice replaces the earlier tool.
type Registry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

// NewRegistry creates a Registry holding the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Unregister removes a tool.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a registered tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in sorted order.
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

// Tools returns the registered tools in name order.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Tool, len(names))
	for i, name := range names {
		out[i] = r.tools[name]
	}
	return out
}

// ParserSpecs returns the tool set in the form the StreamParser consumes.
func (r *Registry) ParserSpecs() []ToolSpec {
	tools := r.Tools()
	specs := make([]ToolSpec, len(tools))
	for i, t := range tools {
		specs[i] = ToolSpec{Name: t.Name(), Stream: t.Streaming()}
	}
	return specs
}

// ValidateParams checks a parsed call against the tool's parameter specs:
// required parameters must be present and no unknown parameters are
// accepted.
func ValidateParams(t Tool, params map[string]string) error {
	specs := t.Parameters()
	var missing []string
	for name, spec := range specs {
		if !spec.Required {
			continue
		}
		if _, ok := params[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &ToolExecutionError{
			Tool:    t.Name(),
			Message: "missing required parameters: " + strings.Join(missing, ", "),
		}
	}
	for name := range params {
		if _, ok := specs[name]; !ok {
			return &ToolExecutionError{
				Tool:    t.Name(),
				Message: fmt.Sprintf("unexpected parameter %q", name),
			}
		}
	}
	return nil
}

// Parameter coercion helpers. Tool implementations call these from
// Execute; failures are ToolExecutionError input failures, never core
// errors.

// CoerceInt parses a raw parameter value as an integer.
func CoerceInt(tool, key, value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, &ToolExecutionError{
			Tool:    tool,
			Message: fmt.Sprintf("parameter %q must be an integer, got %q", key, value),
		}
	}
	return n, nil
}

// CoerceBool parses a raw parameter value as "true" or "false".
func CoerceBool(tool, key, value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, &ToolExecutionError{
			Tool:    tool,
			Message: fmt.Sprintf("parameter %q must be true or false, got %q", key, value),
		}
	}
}

// CoerceStringList splits a comma-separated parameter value into trimmed
// elements. An empty value yields nil.
func CoerceStringList(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
