// Package reducer turns the event stream of one stage execution into its
// final output, a raw event debug log, tool invocation records and a usage
// record in the ledger.
package reducer

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-go-golems/agentic-research/pkg/agent"
	"github.com/go-go-golems/agentic-research/pkg/events"
	"github.com/go-go-golems/agentic-research/pkg/usage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ToolInvocation is a completed tool call seen on the stream.
type ToolInvocation struct {
	Name      string     `json:"name"`
	Arguments string     `json:"arguments,omitempty"`
	Kind      NoticeKind `json:"kind"`
	Display   string     `json:"display"`
}

type Result struct {
	Output      string           `json:"output"`
	Outcome     agent.Outcome    `json:"outcome"`
	Reasoning   string           `json:"reasoning,omitempty"`
	ToolCalls   []ToolInvocation `json:"tools_used"`
	WebSearches []string         `json:"web_searches"`
	Handoffs    []string         `json:"handoffs,omitempty"`
	Usage       *usage.Record    `json:"usage,omitempty"`
	// DebugLogPath is empty when no results directory was configured.
	DebugLogPath string `json:"debug_log_path,omitempty"`
	EventCount   int    `json:"event_count"`
}

type Reducer struct {
	operation  usage.Operation
	model      string
	ledger     *usage.Ledger
	display    Display
	verbose    bool
	resultsDir string
	prefix     string
	now        func() time.Time
}

type Option func(*Reducer)

func WithDisplay(d Display) Option {
	return func(r *Reducer) {
		r.display = d
	}
}

func WithVerbose(verbose bool) Option {
	return func(r *Reducer) {
		r.verbose = verbose
	}
}

// WithResultsDir sets the directory the debug log is saved to.
func WithResultsDir(dir string) Option {
	return func(r *Reducer) {
		r.resultsDir = dir
	}
}

// WithPrefix sets the heading announced before streaming starts.
func WithPrefix(prefix string) Option {
	return func(r *Reducer) {
		r.prefix = prefix
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Reducer) {
		r.now = now
	}
}

// New creates a reducer for one stage execution. Usage is attributed to
// model and op in ledger.
func New(op usage.Operation, model string, ledger *usage.Ledger, options ...Option) *Reducer {
	ret := &Reducer{
		operation: op,
		model:     model,
		ledger:    ledger,
		display:   NullDisplay,
		now:       time.Now,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

// per-run state, kept separate so a Reducer can be run again
type run struct {
	log       DebugLog
	result    Result
	itemNames map[string]string
	reasoning []string
	// usage of the last completed response, the one carrying the output
	outputUsage *events.Usage
}

// Process consumes stream until it is exhausted. The debug log is saved
// and available usage is recorded even when the stream fails, in which
// case the partial result is returned along with the error.
func (r *Reducer) Process(ctx context.Context, stream agent.Stream) (ret *Result, err error) {
	st := &run{
		itemNames: map[string]string{},
		result: Result{
			ToolCalls:   []ToolInvocation{},
			WebSearches: []string{},
		},
	}

	if r.verbose && r.prefix != "" {
		r.show(ctx, Notice{Kind: NoticeStreamStarted, Text: r.prefix})
	}

	defer func() {
		st.result.EventCount = st.log.Len()
		st.result.Reasoning = strings.Join(st.reasoning, "\n")
		r.recordUsage(ctx, stream, st)
		if path, saveErr := r.saveLog(ctx, &st.log); saveErr != nil {
			log.Warn().Err(saveErr).Str("operation", string(r.operation)).Msg("Could not save raw events")
		} else {
			st.result.DebugLogPath = path
		}
		if err != nil {
			ret = &st.result
		}
	}()

	for {
		ev, nextErr := stream.Next(ctx)
		if nextErr == io.EOF {
			break
		}
		if nextErr != nil {
			return nil, errors.Wrapf(nextErr, "failed to process %s events", r.operation)
		}
		if ev == nil || events.IsPing(ev) {
			continue
		}

		st.log.Append(ev)
		r.handle(ctx, st, ev)
	}

	output := stream.FinalOutput()
	st.result.Output = output
	st.result.Outcome = agent.Completed(output)
	if h := stream.Handoff(); h != nil {
		st.result.Outcome = agent.DelegatedTo(h.To, h.Guidance, output)
	}

	return &st.result, nil
}

func (r *Reducer) show(ctx context.Context, n Notice) {
	n.Operation = r.operation
	if err := r.display.Show(ctx, n); err != nil {
		log.Warn().Err(err).Str("kind", string(n.Kind)).Msg("Could not display notice")
	}
}

func (r *Reducer) handle(ctx context.Context, st *run, ev events.Event) {
	switch e := ev.(type) {
	case *events.EventAgentUpdated:
		st.result.Handoffs = append(st.result.Handoffs, e.NewAgent)
		if r.verbose {
			r.show(ctx, Notice{Kind: NoticeHandoff, Text: e.NewAgent})
		}

	case *events.EventOutputItem:
		r.handleItem(ctx, st, e)

	case *events.EventItemProgress:
		if r.verbose && e.ItemType() == events.ItemTypeWebSearch {
			r.show(ctx, Notice{Kind: NoticeToolProgress, Text: "."})
		}

	case *events.EventToolCallDelta:
		if r.verbose && st.itemNames[e.ItemID] == ToolVerifyURL {
			r.show(ctx, Notice{Kind: NoticeToolProgress, Text: "🔧"})
		}

	case *events.EventResponseCompleted:
		if e.Response.Usage != nil {
			st.outputUsage = e.Response.Usage
		}
	}
}

func (r *Reducer) handleItem(ctx context.Context, st *run, e *events.EventOutputItem) {
	item := e.Item
	phase := e.Phase()
	if item.ID != "" && item.Name != "" {
		st.itemNames[item.ID] = item.Name
	}

	if item.IsSearch() {
		query := item.Action.Query
		if query == "" {
			return
		}
		if phase == events.ItemPhaseDone {
			st.result.WebSearches = append(st.result.WebSearches, query)
		}
		if r.verbose {
			r.show(ctx, Notice{Kind: NoticeWebSearch, Label: SearchLabel(r.operation), Text: query})
		}
		return
	}

	switch item.Type {
	case events.ItemTypeReasoning:
		switch phase {
		case events.ItemPhaseAdded:
			if r.verbose {
				r.show(ctx, Notice{Kind: NoticeReasoningStarted})
			}
		case events.ItemPhaseDone:
			summary := item.SummaryText()
			st.reasoning = append(st.reasoning, summary...)
			if r.verbose {
				r.show(ctx, Notice{Kind: NoticeReasoningDone})
				if len(summary) > 0 {
					r.show(ctx, Notice{Kind: NoticeReasoningSummary, Lines: summary})
				}
			}
		}

	case events.ItemTypeCodeInterpreter:
		if phase != events.ItemPhaseDone || item.Code == "" {
			return
		}
		preview := SummarizeCode(item.Code)
		st.result.ToolCalls = append(st.result.ToolCalls, ToolInvocation{
			Name:      string(events.ItemTypeCodeInterpreter),
			Arguments: item.Code,
			Kind:      NoticeCodeInterpreter,
			Display:   preview,
		})
		if r.verbose {
			r.show(ctx, Notice{Kind: NoticeCodeInterpreter, Text: preview})
		}

	case events.ItemTypeFunctionCall:
		if phase != events.ItemPhaseDone || item.Name == "" {
			return
		}
		text, kind := FormatToolCall(item.Name, item.Arguments)
		st.result.ToolCalls = append(st.result.ToolCalls, ToolInvocation{
			Name:      item.Name,
			Arguments: item.Arguments,
			Kind:      kind,
			Display:   text,
		})
		if r.verbose {
			r.show(ctx, Notice{Kind: kind, Text: text})
		}
	}
}

// recordUsage prefers the usage of the whole execution. Runtimes that do not
// report one fall back to the usage of the response that produced the
// output.
func (r *Reducer) recordUsage(ctx context.Context, stream agent.Stream, st *run) {
	result := &st.result
	u := stream.Usage()
	fromContext := u != nil
	if u == nil {
		u = st.outputUsage
	}
	if u == nil {
		log.Debug().Str("operation", string(r.operation)).Msg("No usage reported for stage")
		return
	}

	requests := u.Requests
	if requests == 0 {
		requests = 1
	}
	record := usage.NewRecord(r.model, r.operation, usage.Counts{
		Requests:              requests,
		InputTokens:           u.InputTokens,
		OutputTokens:          u.OutputTokens,
		TotalTokens:           u.TotalTokens,
		CachedInputTokens:     u.CachedTokens(),
		ReasoningOutputTokens: u.ReasoningTokens(),
	}, r.now())
	if r.ledger != nil {
		r.ledger.Record(record)
	}
	result.Usage = &record

	if fromContext && u.ReasoningTokens() > 0 {
		r.show(ctx, Notice{
			Kind: NoticeReasoningTokens,
			Text: fmt.Sprintf("Generated %s reasoning tokens", humanize.Comma(int64(u.ReasoningTokens()))),
		})
	}
	if u.TotalTokens > 0 {
		parts := []string{
			humanize.Comma(int64(u.InputTokens)) + " input",
			humanize.Comma(int64(u.OutputTokens)) + " output",
		}
		if fromContext && u.CachedTokens() > 0 {
			parts = append(parts, humanize.Comma(int64(u.CachedTokens()))+" cached")
		}
		r.show(ctx, Notice{
			Kind: NoticeTokenUsage,
			Text: fmt.Sprintf("Total tokens: %s (%s)", humanize.Comma(int64(u.TotalTokens)), strings.Join(parts, ", ")),
		})
	}
}

func (r *Reducer) saveLog(ctx context.Context, l *DebugLog) (string, error) {
	if r.resultsDir == "" {
		return "", nil
	}
	path, err := l.Save(r.resultsDir, DebugLogFilename(r.operation))
	if err != nil {
		return "", err
	}
	log.Debug().Str("path", path).Int("events", l.Len()).Msg("Saved raw events")
	if r.verbose {
		r.show(ctx, Notice{Kind: NoticeDebugLogSaved, Text: fmt.Sprintf("Raw %s events saved to %s", r.operation, path)})
	}
	return path, nil
}
