// Package agent holds the contracts between the workflow and the
// execution runtime: agent definitions, executors and their event streams.
package agent

import (
	"context"
	"encoding/json"

	"github.com/go-go-golems/agentic-research/pkg/events"
)

// HostedTool is a tool executed on the provider side.
type HostedTool string

const (
	HostedToolWebSearch       HostedTool = "web_search_preview"
	HostedToolCodeInterpreter HostedTool = "code_interpreter"
)

// Spec describes one agent. Handoffs lists agents this one may transfer
// control to; a handoff target's own Handoffs are ignored, delegation is one
// level deep.
type Spec struct {
	Name         string
	Instructions string
	Model        string
	MaxTurns     int
	HostedTools  []HostedTool
	// FunctionTools names locally executed tools, resolved by the executor.
	FunctionTools []string
	ToolServers   []ToolServer
	Handoffs      []*Spec
	// HandoffDescription is shown to the delegating agent.
	HandoffDescription string
}

// ToolSchema is a function tool as advertised to the model.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolServer is an external tool provider (an MCP server). It is owned by
// the stage that opened it.
type ToolServer interface {
	Name() string
	ListTools(ctx context.Context) ([]ToolSchema, error)
	CallTool(ctx context.Context, name string, args json.RawMessage) (string, error)
	Close() error
}

type Request struct {
	Agent *Spec
	Input string
}

// Executor starts the execution of an agent and returns its event stream.
type Executor interface {
	Start(ctx context.Context, req Request) (Stream, error)
}

// Stream is pulled event by event. Next returns io.EOF once the producer
// is done. FinalOutput, Usage and Handoff are meaningful after that.
type Stream interface {
	Next(ctx context.Context) (events.Event, error)
	FinalOutput() string
	// Usage returns the usage accumulated by the execution, nil if the
	// runtime did not report any.
	Usage() *events.Usage
	// Handoff returns the delegation that happened during the execution,
	// nil if the agent completed on its own.
	Handoff() *Handoff
}

type Handoff struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Guidance string `json:"guidance,omitempty"`
}
