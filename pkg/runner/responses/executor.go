// Package responses runs agents against the OpenAI Responses API. A run is
// a sequence of streamed model responses chained by previous_response_id;
// function calls, tool server calls and handoffs are resolved locally
// between responses.
package responses

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
)

const DefaultBaseURL = "https://api.openai.com/v1"

type Executor struct {
	client          *http.Client
	baseURL         string
	apiKey          string
	allowLocal      bool
	registry        *tools.Registry
	reasoning       string
	maxOutputTokens *int
}

var _ agent.Executor = &Executor{}

type Option func(*Executor)

func WithHTTPClient(c *http.Client) Option {
	return func(e *Executor) {
		e.client = c
	}
}

func WithBaseURL(url string) Option {
	return func(e *Executor) {
		e.baseURL = strings.TrimRight(url, "/")
	}
}

// WithAllowLocalBaseURL accepts plain HTTP and local base URLs, for
// proxies and test servers.
func WithAllowLocalBaseURL(allow bool) Option {
	return func(e *Executor) {
		e.allowLocal = allow
	}
}

// WithToolRegistry resolves the function tools named by agent specs.
func WithToolRegistry(r *tools.Registry) Option {
	return func(e *Executor) {
		e.registry = r
	}
}

// WithReasoningSummary sets the reasoning summary mode requested from the
// model, "" to not request one.
func WithReasoningSummary(mode string) Option {
	return func(e *Executor) {
		e.reasoning = mode
	}
}

func WithMaxOutputTokens(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxOutputTokens = &n
		}
	}
}

func New(apiKey string, options ...Option) (*Executor, error) {
	ret := &Executor{
		client:    http.DefaultClient,
		baseURL:   DefaultBaseURL,
		apiKey:    apiKey,
		reasoning: "auto",
	}
	for _, o := range options {
		o(ret)
	}
	if err := security.ValidateBaseURL(ret.baseURL, ret.allowLocal); err != nil {
		return nil, err
	}
	return ret, nil
}

// Start resolves the tools of the requested agent and returns its stream.
// No request is sent before the first call to Next.
func (e *Executor) Start(ctx context.Context, req agent.Request) (agent.Stream, error) {
	if req.Agent == nil {
		return nil, errors.New("no agent given")
	}
	s := &stream{
		e:        e,
		maxTurns: req.Agent.MaxTurns,
		input:    req.Input,
	}
	if err := s.activate(ctx, req.Agent, true); err != nil {
		return nil, err
	}
	s.pending = append(s.pending, events.NewAgentUpdatedEvent(req.Agent.Name))
	log.Debug().
		Str("agent", req.Agent.Name).
		Str("model", req.Agent.Model).
		Int("tools", len(s.toolParams)).
		Msg("Responses: starting agent")
	return s, nil
}

// activate makes spec the agent of the stream. Handoffs are only offered
// to the agent the stream started with.
func (s *stream) activate(ctx context.Context, spec *agent.Spec, withHandoffs bool) error {
	toolset, err := runner.NewToolset(ctx, spec, s.e.registry, withHandoffs)
	if err != nil {
		return err
	}
	s.current = spec
	s.toolset = toolset
	s.toolParams = nil
	for _, t := range spec.HostedTools {
		s.toolParams = append(s.toolParams, hostedToolParam(t))
	}
	for _, schema := range toolset.Functions() {
		s.toolParams = append(s.toolParams, functionToolParam(schema))
	}
	return nil
}
