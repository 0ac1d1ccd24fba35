// Package chat runs agents against an OpenAI compatible chat completions
// endpoint. Provider hosted tools are not available there and are dropped;
// function tools, tool servers and handoffs work as with the Responses API.
package chat

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-go-golems/agentic-research/pkg/agent"
	"github.com/go-go-golems/agentic-research/pkg/events"
	"github.com/go-go-golems/agentic-research/pkg/runner"
	"github.com/go-go-golems/agentic-research/pkg/security"
	"github.com/go-go-golems/agentic-research/pkg/tools"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

type Executor struct {
	client   *go_openai.Client
	registry *tools.Registry
}

var _ agent.Executor = &Executor{}

type options struct {
	baseURL    string
	httpClient *http.Client
	allowLocal bool
	registry   *tools.Registry
}

type Option func(*options)

func WithBaseURL(url string) Option {
	return func(o *options) {
		o.baseURL = strings.TrimRight(url, "/")
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

func WithAllowLocalBaseURL(allow bool) Option {
	return func(o *options) {
		o.allowLocal = allow
	}
}

func WithToolRegistry(r *tools.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

func New(apiKey string, opts ...Option) (*Executor, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	config := go_openai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		config.BaseURL = o.baseURL
	}
	if err := security.ValidateBaseURL(config.BaseURL, o.allowLocal); err != nil {
		return nil, err
	}
	if o.httpClient != nil {
		config.HTTPClient = o.httpClient
	}

	return &Executor{
		client:   go_openai.NewClientWithConfig(config),
		registry: o.registry,
	}, nil
}

func (e *Executor) Start(ctx context.Context, req agent.Request) (agent.Stream, error) {
	if req.Agent == nil {
		return nil, errors.New("no agent given")
	}
	s := &stream{
		e:        e,
		maxTurns: req.Agent.MaxTurns,
	}
	if err := s.activate(ctx, req.Agent, true); err != nil {
		return nil, err
	}
	s.messages = []go_openai.ChatCompletionMessage{
		{Role: go_openai.ChatMessageRoleSystem, Content: req.Agent.Instructions},
		{Role: go_openai.ChatMessageRoleUser, Content: req.Input},
	}
	s.pending = append(s.pending, events.NewAgentUpdatedEvent(req.Agent.Name))
	return s, nil
}

func (s *stream) activate(ctx context.Context, spec *agent.Spec, withHandoffs bool) error {
	if len(spec.HostedTools) > 0 {
		log.Warn().
			Str("agent", spec.Name).
			Interface("tools", spec.HostedTools).
			Msg("Hosted tools are not available with chat completions, ignoring them")
	}
	toolset, err := runner.NewToolset(ctx, spec, s.e.registry, withHandoffs)
	if err != nil {
		return err
	}
	s.current = spec
	s.toolset = toolset
	s.tools = nil
	for _, schema := range toolset.Functions() {
		var params interface{} = schema.Parameters
		if len(schema.Parameters) == 0 {
			params = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		s.tools = append(s.tools, go_openai.Tool{
			Type: go_openai.ToolTypeFunction,
			Function: &go_openai.FunctionDefinition{
				Name:        schema.Name,
				Description: schema.Description,
				Parameters:  params,
			},
		})
	}
	return nil
}
