package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-go-golems/agentic-research/pkg/agent"
	"github.com/go-go-golems/agentic-research/pkg/events"
	"github.com/go-go-golems/agentic-research/pkg/runner"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type inputMessage struct {
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

type stream struct {
	e          *Executor
	current    *agent.Spec
	toolset    *runner.Toolset
	toolParams []toolParam
	maxTurns   int

	// input of the next request: the user input first, function call
	// outputs after that
	input      interface{}
	previousID string
	turn       int

	body   io.ReadCloser
	frames *frameReader

	// state of the response being streamed
	calls     []events.OutputItem
	lastText  string
	completed bool

	pending []events.Event
	final   string
	usage   *events.Usage
	handoff *agent.Handoff
	done    bool
	err     error
}

var _ agent.Stream = &stream{}

func (s *stream) Next(ctx context.Context) (events.Event, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		if s.err != nil {
			s.closeBody()
			return nil, s.err
		}
		if s.done {
			return nil, io.EOF
		}
		if err := ctx.Err(); err != nil {
			s.closeBody()
			return nil, err
		}

		if s.body == nil {
			if err := s.startTurn(ctx); err != nil {
				s.err = err
				continue
			}
		}

		f, err := s.frames.Next()
		if err == io.EOF {
			s.closeBody()
			if err := s.endTurn(ctx); err != nil {
				s.err = err
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				s.err = ctx.Err()
			} else {
				s.err = errors.Wrap(err, "failed to read responses stream")
			}
			continue
		}

		if ev := s.handleFrame(f); ev != nil {
			return ev, nil
		}
	}
}

func (s *stream) startTurn(ctx context.Context) error {
	s.turn++
	if s.maxTurns > 0 && s.turn > s.maxTurns {
		return errors.Errorf("max turns (%d) exceeded", s.maxTurns)
	}

	reqBody := responsesRequest{
		Model:              s.current.Model,
		Instructions:       s.current.Instructions,
		Input:              s.input,
		Tools:              s.toolParams,
		PreviousResponseID: s.previousID,
		MaxOutputTokens:    s.e.maxOutputTokens,
		Stream:             true,
	}
	if s.e.reasoning != "" {
		reqBody.Reasoning = &reasoningParam{Summary: s.e.reasoning}
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return errors.Wrap(err, "failed to encode responses request")
	}

	url := s.e.baseURL + "/responses"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if s.e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.e.apiKey)
	}

	log.Debug().
		Str("agent", s.current.Name).
		Int("turn", s.turn).
		Int("body_len", len(b)).
		Msg("Responses: sending request")

	// #nosec G107 -- base URL is validated in New.
	resp, err := s.e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(err, "responses connection failed")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return errors.Errorf("responses api error: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	s.body = resp.Body
	s.frames = newFrameReader(resp.Body)
	s.calls = nil
	s.lastText = ""
	s.completed = false
	return nil
}

func (s *stream) handleFrame(f frame) events.Event {
	if f.Comment {
		return events.NewPingEvent()
	}
	data := strings.TrimSpace(f.Data)
	if data == "" || data == "[DONE]" {
		return nil
	}

	ev := events.Decode([]byte(data))
	switch ev_ := ev.(type) {
	case *events.EventOutputItem:
		if ev_.Phase() != events.ItemPhaseDone {
			break
		}
		switch ev_.Item.Type {
		case events.ItemTypeFunctionCall:
			s.calls = append(s.calls, ev_.Item)
		case events.ItemTypeMessage:
			s.lastText = ev_.Item.Text()
		}
	case *events.EventResponseCompleted:
		s.completed = true
		s.previousID = ev_.Response.ID
		u := &events.Usage{Requests: 1}
		if ev_.Response.Usage != nil {
			cp := *ev_.Response.Usage
			cp.Requests = 1
			u = &cp
		}
		if s.usage == nil {
			s.usage = &events.Usage{}
		}
		s.usage.Add(u)
	case *events.EventFailure:
		code := ev_.Code
		if code == "" {
			code = string(ev_.Type())
		}
		s.err = errors.Errorf("response failed (%s): %s", code, ev_.ErrorMessage())
	}
	return ev
}

// endTurn resolves the function calls of the completed response. A
// response without function calls ends the run.
func (s *stream) endTurn(ctx context.Context) error {
	if !s.completed {
		return errors.New("responses stream ended before the response completed")
	}

	calls := s.calls
	s.calls = nil
	if len(calls) == 0 {
		s.final = s.lastText
		s.done = true
		return nil
	}

	runCalls := make([]runner.Call, 0, len(calls))
	for _, c := range calls {
		runCalls = append(runCalls, runner.Call{ID: c.CallID, Name: c.Name, Arguments: c.Arguments})
	}
	outcome, err := s.toolset.Execute(ctx, runCalls)
	if err != nil {
		return err
	}

	input := make([]interface{}, 0, len(outcome.Results)+1)
	for _, r := range outcome.Results {
		input = append(input, functionCallOutput{
			Type:   "function_call_output",
			CallID: r.CallID,
			Output: r.Output,
		})
	}

	if outcome.Target != nil {
		s.handoff = outcome.Handoff
		log.Info().Str("from", s.handoff.From).Str("to", s.handoff.To).Msg("Handing off")
		if err := s.activate(ctx, outcome.Target, false); err != nil {
			return err
		}
		s.pending = append(s.pending, events.NewAgentUpdatedEvent(outcome.Target.Name))
		if g := outcome.Handoff.Guidance; g != "" {
			input = append(input, inputMessage{Type: "message", Role: "user", Content: g})
		}
	}

	s.input = input
	return nil
}

func (s *stream) closeBody() {
	if s.body != nil {
		_ = s.body.Close()
		s.body = nil
		s.frames = nil
	}
}

// Close aborts the run. The response being streamed is discarded.
func (s *stream) Close() error {
	s.closeBody()
	s.done = true
	return nil
}

func (s *stream) FinalOutput() string {
	return s.final
}

func (s *stream) Usage() *events.Usage {
	return s.usage
}

func (s *stream) Handoff() *agent.Handoff {
	return s.handoff
}
