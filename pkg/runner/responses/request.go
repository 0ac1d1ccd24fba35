package responses

import (
	"encoding/json"

	"github.com/go-go-golems/agentic-research/pkg/agent"
)

type reasoningParam struct {
	Summary string `json:"summary,omitempty"`
}

type toolParam struct {
	Type        string          `json:"type"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Container   *containerParam `json:"container,omitempty"`
}

type containerParam struct {
	Type string `json:"type"`
}

// functionCallOutput is the input item answering one function call.
type functionCallOutput struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

type responsesRequest struct {
	Model              string          `json:"model"`
	Instructions       string          `json:"instructions,omitempty"`
	Input              interface{}     `json:"input"`
	Tools              []toolParam     `json:"tools,omitempty"`
	PreviousResponseID string          `json:"previous_response_id,omitempty"`
	Reasoning          *reasoningParam `json:"reasoning,omitempty"`
	MaxOutputTokens    *int            `json:"max_output_tokens,omitempty"`
	Stream             bool            `json:"stream"`
}

func hostedToolParam(t agent.HostedTool) toolParam {
	ret := toolParam{Type: string(t)}
	if t == agent.HostedToolCodeInterpreter {
		ret.Container = &containerParam{Type: "auto"}
	}
	return ret
}

func functionToolParam(s agent.ToolSchema) toolParam {
	params := s.Parameters
	if len(params) == 0 {
		params = json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return toolParam{
		Type:        "function",
		Name:        s.Name,
		Description: s.Description,
		Parameters:  params,
	}
}
