package chat

import (
	"context"
	"io"
	"sort"
	"strings"

	"github.com/go-go-golems/agentic-research/pkg/agent"
	"github.com/go-go-golems/agentic-research/pkg/events"
	"github.com/go-go-golems/agentic-research/pkg/runner"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

// toolCallMerger assembles streamed tool call fragments by index.
type toolCallMerger struct {
	calls map[int]*go_openai.ToolCall
}

func newToolCallMerger() *toolCallMerger {
	return &toolCallMerger{calls: map[int]*go_openai.ToolCall{}}
}

func (m *toolCallMerger) add(deltas []go_openai.ToolCall) {
	for _, d := range deltas {
		index := 0
		if d.Index != nil {
			index = *d.Index
		}
		existing, ok := m.calls[index]
		if !ok {
			cp := d
			cp.Index = nil
			m.calls[index] = &cp
			continue
		}
		if d.ID != "" {
			existing.ID = d.ID
		}
		existing.Function.Name += d.Function.Name
		existing.Function.Arguments += d.Function.Arguments
	}
}

func (m *toolCallMerger) toolCalls() []go_openai.ToolCall {
	indices := make([]int, 0, len(m.calls))
	for i := range m.calls {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	ret := make([]go_openai.ToolCall, 0, len(indices))
	for _, i := range indices {
		c := *m.calls[i]
		if c.Type == "" {
			c.Type = go_openai.ToolTypeFunction
		}
		ret = append(ret, c)
	}
	return ret
}

type stream struct {
	e        *Executor
	current  *agent.Spec
	toolset  *runner.Toolset
	tools    []go_openai.Tool
	messages []go_openai.ChatCompletionMessage
	maxTurns int
	turn     int

	resp   *go_openai.ChatCompletionStream
	respID string
	text   strings.Builder
	merger *toolCallMerger

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
			s.closeResponse()
			return nil, s.err
		}
		if s.done {
			return nil, io.EOF
		}
		if err := ctx.Err(); err != nil {
			s.closeResponse()
			return nil, err
		}

		if s.resp == nil {
			if err := s.startTurn(ctx); err != nil {
				s.err = err
				continue
			}
		}

		chunk, err := s.resp.Recv()
		if errors.Is(err, io.EOF) {
			s.closeResponse()
			if err := s.endTurn(ctx); err != nil {
				s.err = err
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				s.err = ctx.Err()
			} else {
				s.err = errors.Wrap(err, "chat completion stream failed")
			}
			continue
		}

		if chunk.ID != "" {
			s.respID = chunk.ID
		}
		if chunk.Usage != nil {
			s.addUsage(&events.Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
				TotalTokens:  chunk.Usage.TotalTokens,
			})
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if len(delta.ToolCalls) > 0 {
			s.merger.add(delta.ToolCalls)
		}
		if delta.Content != "" {
			s.text.WriteString(delta.Content)
			return events.NewTextDeltaEvent(s.respID, delta.Content), nil
		}
	}
}

func (s *stream) addUsage(u *events.Usage) {
	if s.usage == nil {
		s.usage = &events.Usage{}
	}
	// requests are counted in endTurn
	s.usage.InputTokens += u.InputTokens
	s.usage.OutputTokens += u.OutputTokens
	s.usage.TotalTokens += u.TotalTokens
}

func (s *stream) startTurn(ctx context.Context) error {
	s.turn++
	if s.maxTurns > 0 && s.turn > s.maxTurns {
		return errors.Errorf("max turns (%d) exceeded", s.maxTurns)
	}

	req := go_openai.ChatCompletionRequest{
		Model:         s.current.Model,
		Messages:      s.messages,
		Stream:        true,
		StreamOptions: &go_openai.StreamOptions{IncludeUsage: true},
		Tools:         s.tools,
	}
	log.Debug().
		Str("agent", s.current.Name).
		Int("turn", s.turn).
		Int("messages", len(s.messages)).
		Int("tools", len(s.tools)).
		Msg("Chat: sending request")

	resp, err := s.e.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(err, "chat completion request failed")
	}
	s.resp = resp
	s.respID = ""
	s.text.Reset()
	s.merger = newToolCallMerger()
	return nil
}

func (s *stream) endTurn(ctx context.Context) error {
	if s.usage == nil {
		s.usage = &events.Usage{}
	}
	s.usage.Requests++

	text := s.text.String()
	calls := s.merger.toolCalls()

	if len(calls) == 0 {
		s.final = text
		s.done = true
		s.pending = append(s.pending, events.NewOutputItemEvent(events.ItemPhaseDone, 0, events.OutputItem{
			ID:      s.respID,
			Type:    events.ItemTypeMessage,
			Role:    go_openai.ChatMessageRoleAssistant,
			Status:  "completed",
			Content: []events.ContentPart{{Type: "output_text", Text: text}},
		}))
		return nil
	}

	s.messages = append(s.messages, go_openai.ChatCompletionMessage{
		Role:      go_openai.ChatMessageRoleAssistant,
		Content:   text,
		ToolCalls: calls,
	})

	runCalls := make([]runner.Call, 0, len(calls))
	for i, c := range calls {
		runCalls = append(runCalls, runner.Call{ID: c.ID, Name: c.Function.Name, Arguments: c.Function.Arguments})
		s.pending = append(s.pending, events.NewOutputItemEvent(events.ItemPhaseDone, i, events.OutputItem{
			ID:        c.ID,
			Type:      events.ItemTypeFunctionCall,
			Status:    "completed",
			Name:      c.Function.Name,
			CallID:    c.ID,
			Arguments: c.Function.Arguments,
		}))
	}

	outcome, err := s.toolset.Execute(ctx, runCalls)
	if err != nil {
		return err
	}
	for _, r := range outcome.Results {
		s.messages = append(s.messages, go_openai.ChatCompletionMessage{
			Role:       go_openai.ChatMessageRoleTool,
			Content:    r.Output,
			ToolCallID: r.CallID,
		})
	}

	if outcome.Target != nil {
		s.handoff = outcome.Handoff
		log.Info().Str("from", s.handoff.From).Str("to", s.handoff.To).Msg("Handing off")
		if err := s.activate(ctx, outcome.Target, false); err != nil {
			return err
		}
		s.messages[0] = go_openai.ChatCompletionMessage{
			Role:    go_openai.ChatMessageRoleSystem,
			Content: outcome.Target.Instructions,
		}
		if g := outcome.Handoff.Guidance; g != "" {
			s.messages = append(s.messages, go_openai.ChatCompletionMessage{
				Role:    go_openai.ChatMessageRoleUser,
				Content: g,
			})
		}
		s.pending = append(s.pending, events.NewAgentUpdatedEvent(outcome.Target.Name))
	}
	return nil
}

func (s *stream) closeResponse() {
	if s.resp != nil {
		_ = s.resp.Close()
		s.resp = nil
	}
}

func (s *stream) Close() error {
	s.closeResponse()
	s.done = true
	return nil
}

func (s *stream) FinalOutput() string {
	return s.final
}

// Usage returns nil until at least one completion finished.
func (s *stream) Usage() *events.Usage {
	return s.usage
}

func (s *stream) Handoff() *agent.Handoff {
	return s.handoff
}
