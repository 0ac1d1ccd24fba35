package reducer

import (
	"context"

	"github.com/go-go-golems/agentic-research/pkg/usage"
)

type NoticeKind string

const (
	NoticeStreamStarted    NoticeKind = "stream-started"
	NoticeHandoff          NoticeKind = "handoff"
	NoticeWebSearch        NoticeKind = "web-search"
	NoticeReasoningStarted NoticeKind = "reasoning-started"
	NoticeReasoningDone    NoticeKind = "reasoning-done"
	NoticeReasoningSummary NoticeKind = "reasoning-summary"
	NoticeCodeInterpreter  NoticeKind = "code-interpreter"
	NoticeToolCall         NoticeKind = "tool-call"
	NoticeMCPCall          NoticeKind = "mcp-call"
	NoticeToolProgress     NoticeKind = "tool-progress"
	NoticeReasoningTokens  NoticeKind = "reasoning-tokens"
	NoticeTokenUsage       NoticeKind = "token-usage"
	NoticeDebugLogSaved    NoticeKind = "debug-log-saved"

	// workflow level notices
	NoticeMode    NoticeKind = "mode"
	NoticeInfo    NoticeKind = "info"
	NoticeSuccess NoticeKind = "success"
	NoticeWarning NoticeKind = "warning"
	// NoticeOutput carries a stage's final text under Label.
	NoticeOutput NoticeKind = "output"
)

// Notice is a display side effect of processing an event. Text is already
// formatted for the kind (tool call with arguments, search query, ...).
type Notice struct {
	Kind      NoticeKind      `json:"kind"`
	Operation usage.Operation `json:"operation"`
	Label     string          `json:"label,omitempty"`
	Text      string          `json:"text,omitempty"`
	Lines     []string        `json:"lines,omitempty"`
}

// Display renders notices. Show is called synchronously, before the next
// event is pulled from the stream.
type Display interface {
	Show(ctx context.Context, n Notice) error
}

type nullDisplay struct{}

func (nullDisplay) Show(context.Context, Notice) error { return nil }

// NullDisplay discards all notices.
var NullDisplay Display = nullDisplay{}

// DisplayFunc adapts a function to Display.
type DisplayFunc func(ctx context.Context, n Notice) error

func (f DisplayFunc) Show(ctx context.Context, n Notice) error {
	return f(ctx, n)
}
