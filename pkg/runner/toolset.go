// Package runner holds what the agent executors share: resolving the tools
// of an agent and executing the function calls a model asks for.
package runner

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/go-go-golems/agentic-research/pkg/agent"
	"github.com/go-go-golems/agentic-research/pkg/tools"
	"github.com/iancoleman/strcase"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// HandoffToolName is the function a delegating agent calls to transfer
// control to target.
func HandoffToolName(target *agent.Spec) string {
	return "transfer_to_" + strcase.ToSnake(target.Name)
}

var handoffParameters = json.RawMessage(`{"type":"object","properties":{"guidance":{"type":"string","description":"What the target agent should work on."}},"required":["guidance"],"additionalProperties":false}`)

func handoffDescription(target *agent.Spec) string {
	ret := "Handoff to the " + target.Name + " agent to handle the request."
	if target.HandoffDescription != "" {
		ret += " " + target.HandoffDescription
	}
	return ret
}

type route struct {
	server  agent.ToolServer
	handoff *agent.Spec
}

// Toolset is the set of function tools offered to one agent: registry
// tools, tool server tools and handoffs.
type Toolset struct {
	agent    *agent.Spec
	registry *tools.Registry
	schemas  []agent.ToolSchema
	routes   map[string]route
}

// NewToolset resolves the function tools of spec. Handoffs are only
// offered when withHandoffs is set.
func NewToolset(ctx context.Context, spec *agent.Spec, registry *tools.Registry, withHandoffs bool) (*Toolset, error) {
	ret := &Toolset{
		agent:    spec,
		registry: registry,
		routes:   map[string]route{},
	}

	if len(spec.FunctionTools) > 0 {
		if registry == nil {
			return nil, errors.Errorf("agent %s uses function tools but no tool registry is configured", spec.Name)
		}
		schemas, err := registry.Schemas(spec.FunctionTools)
		if err != nil {
			return nil, err
		}
		for _, schema := range schemas {
			ret.add(schema, route{})
		}
	}

	for _, server := range spec.ToolServers {
		schemas, err := server.ListTools(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list tools of %s", server.Name())
		}
		for _, schema := range schemas {
			ret.add(schema, route{server: server})
		}
	}

	if withHandoffs {
		for _, target := range spec.Handoffs {
			ret.add(agent.ToolSchema{
				Name:        HandoffToolName(target),
				Description: handoffDescription(target),
				Parameters:  handoffParameters,
			}, route{handoff: target})
		}
	}

	return ret, nil
}

func (t *Toolset) add(schema agent.ToolSchema, r route) {
	if _, ok := t.routes[schema.Name]; ok {
		log.Warn().Str("agent", t.agent.Name).Str("tool", schema.Name).Msg("Duplicate tool name, keeping the first definition")
		return
	}
	t.routes[schema.Name] = r
	t.schemas = append(t.schemas, schema)
}

func (t *Toolset) Agent() *agent.Spec {
	return t.agent
}

// Functions returns the schemas of all function tools, in resolution order.
func (t *Toolset) Functions() []agent.ToolSchema {
	return t.schemas
}

type Call struct {
	ID        string
	Name      string
	Arguments string
}

type Result struct {
	CallID string
	Output string
}

// Outcome is the result of executing the function calls of one response.
// Target is set when one of the calls was a handoff.
type Outcome struct {
	Results []Result
	Handoff *agent.Handoff
	Target  *agent.Spec
}

func toolError(msg string) string {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}

// Execute runs calls in order. Tool failures are reported back to the model
// as {"error": ...} results; only cancellation aborts. At most one handoff
// is honored per response.
func (t *Toolset) Execute(ctx context.Context, calls []Call) (Outcome, error) {
	var ret Outcome
	for _, c := range calls {
		args := json.RawMessage(c.Arguments)
		if len(bytes.TrimSpace(args)) == 0 {
			args = json.RawMessage("{}")
		}

		var out string
		r, ok := t.routes[c.Name]
		switch {
		case !ok:
			out = toolError("tool not found: " + c.Name)
		case r.handoff != nil:
			if ret.Target != nil {
				out = toolError("multiple handoffs detected, ignoring this one")
				break
			}
			var p struct {
				Guidance string `json:"guidance"`
			}
			if err := json.Unmarshal(args, &p); err != nil {
				log.Warn().Err(err).Str("tool", c.Name).Msg("Could not parse handoff arguments")
			}
			ret.Target = r.handoff
			ret.Handoff = &agent.Handoff{From: t.agent.Name, To: r.handoff.Name, Guidance: p.Guidance}
			b, _ := json.Marshal(map[string]string{"assistant": r.handoff.Name})
			out = string(b)
		case r.server != nil:
			text, err := r.server.CallTool(ctx, c.Name, args)
			if err != nil {
				log.Warn().Err(err).Str("tool", c.Name).Str("server", r.server.Name()).Msg("Tool server call failed")
				out = toolError(err.Error())
			} else {
				out = text
			}
		default:
			result, err := t.registry.Call(ctx, c.Name, args)
			if err != nil {
				log.Warn().Err(err).Str("tool", c.Name).Msg("Tool call failed")
				out = toolError(err.Error())
			} else {
				out = result
			}
		}
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		ret.Results = append(ret.Results, Result{CallID: c.ID, Output: out})
	}
	return ret, nil
}
