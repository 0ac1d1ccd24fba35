package tools

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-go-golems/agentic-research/pkg/agent"
	"github.com/pkg/errors"
)

// Registry is a thread-safe set of tool definitions keyed by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Definition
	order []string
}

func NewRegistry() *Registry {
	return &Registry{
		tools: map[string]*Definition{},
	}
}

// Register adds def, replacing a tool with the same name.
func (r *Registry) Register(def *Definition) error {
	if def == nil || def.Name == "" {
		return errors.New("tool name cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[def.Name]; !ok {
		r.order = append(r.order, def.Name)
	}
	r.tools[def.Name] = def
	return nil
}

func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// Schemas returns the schemas of the named tools, in the order given.
// Unknown names are an error.
func (r *Registry) Schemas(names []string) ([]agent.ToolSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ret := make([]agent.ToolSchema, 0, len(names))
	for _, name := range names {
		def, ok := r.tools[name]
		if !ok {
			return nil, errors.Errorf("tool not found: %s", name)
		}
		params, err := json.Marshal(def.Parameters)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to encode parameters of %s", name)
		}
		ret = append(ret, agent.ToolSchema{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  params,
		})
	}
	return ret, nil
}

// Names lists the registered tools in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.order...)
}

// Call executes the named tool and returns its JSON encoded result.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (string, error) {
	def, ok := r.Get(name)
	if !ok {
		return "", errors.Errorf("tool not found: %s", name)
	}
	result, err := def.Execute(ctx, args)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(result)
	if err != nil {
		return "", errors.Wrapf(err, "failed to encode result of %s", name)
	}
	return string(b), nil
}

// Default returns a registry with the built-in tools.
func Default(v *Verifier) (*Registry, error) {
	r := NewRegistry()
	def, err := NewToolFromFunc(VerifyURLName, VerifyURLDescription, v.Verify)
	if err != nil {
		return nil, err
	}
	if err := r.Register(def); err != nil {
		return nil, err
	}
	return r, nil
}
