package marvin

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/invopop/jsonschema"
)

// Handler executes a tool call. Arguments arrive as the raw JSON produced by
// the model; the returned string is fed back into the conversation as a
// tool-role message.
type Handler func(ctx context.Context, args json.RawMessage) (string, error)

// Tool describes a local function exposed to the model for optional
// invocation: a registry-unique name, a human-readable description, a JSON
// Schema for the arguments, and the handler itself.
type Tool struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
	Handler     Handler
}

// NewTool builds a tool from a typed handler. The parameter schema is derived
// from A's exported fields; use json tags for names and
// jsonschema_description tags for per-field documentation.
//
// Example:
//
//	type WeatherArgs struct {
//	    City string `json:"city" jsonschema_description:"City to look up."`
//	}
//	tool := marvin.NewTool("get_weather", "Current weather for a city.",
//	    func(ctx context.Context, args WeatherArgs) (string, error) {
//	        return lookup(ctx, args.City)
//	    })
func NewTool[A any](name, description string, fn func(ctx context.Context, args A) (string, error)) Tool {
	return Tool{
		Name:        name,
		Description: description,
		Parameters:  GenerateSchema[A](),
		Handler: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var args A
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &args); err != nil {
					return "", fmt.Errorf("decode %s arguments: %w", name, err)
				}
			}
			return fn(ctx, args)
		},
	}
}

// GenerateSchema derives a JSON Schema from a Go struct type. Definitions are
// inlined and additional properties rejected so the result can be embedded
// directly in a tool descriptor.
func GenerateSchema[A any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v A
	return reflector.Reflect(v)
}

// Registry holds tool descriptors under unique names.
// Registries are safe for concurrent use by multiple goroutines.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry containing the given tools.
// Duplicate names return an error.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool to the registry.
// Returns an error if the name is empty, the handler is nil, or the name is
// already registered.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name required")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %s: handler required", t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %s already registered", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Tools returns all registered tools sorted by name.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
