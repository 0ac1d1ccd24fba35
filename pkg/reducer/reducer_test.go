package reducer

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-go-golems/agentic-research/pkg/agent"
	"github.com/go-go-golems/agentic-research/pkg/events"
	"github.com/go-go-golems/agentic-research/pkg/usage"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeStream struct {
	events      []events.Event
	pos         int
	failAt      int
	failErr     error
	output      string
	usage       *events.Usage
	handoff     *agent.Handoff
}

func (f *fakeStream) Next(ctx context.Context) (events.Event, error) {
	if f.failErr != nil && f.pos == f.failAt {
		return nil, f.failErr
	}
	if f.pos >= len(f.events) {
		return nil, io.EOF
	}
	ev := f.events[f.pos]
	f.pos++
	return ev, nil
}

func (f *fakeStream) FinalOutput() string     { return f.output }
func (f *fakeStream) Usage() *events.Usage    { return f.usage }
func (f *fakeStream) Handoff() *agent.Handoff { return f.handoff }

var _ agent.Stream = &fakeStream{}

type recordingDisplay struct {
	notices []Notice
}

func (d *recordingDisplay) Show(_ context.Context, n Notice) error {
	d.notices = append(d.notices, n)
	return nil
}

func (d *recordingDisplay) kinds() []NoticeKind {
	ret := []NoticeKind{}
	for _, n := range d.notices {
		ret = append(ret, n.Kind)
	}
	return ret
}

func fixedClock() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func decode(t *testing.T, raw string) events.Event {
	t.Helper()
	return events.Decode([]byte(raw))
}

func readLog(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var entries []map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &entries))
	return entries
}

func TestReasoningPingAndFinalOutput(t *testing.T) {
	dir := t.TempDir()
	stream := &fakeStream{
		events: []events.Event{
			decode(t, `{"type":"response.output_item.added","item":{"id":"rs_1","type":"reasoning"}}`),
			decode(t, `{"type":"response.output_item.done","item":{"id":"rs_1","type":"reasoning","summary":[{"type":"summary_text","text":"S"}]}}`),
			events.NewPingEvent(),
		},
		output: "Done",
	}

	ledger := usage.NewLedger()
	res, err := New(usage.OperationResearch, "o4-mini-deep-research", ledger, WithResultsDir(dir)).
		Process(context.Background(), stream)
	require.NoError(t, err)

	assert.Equal(t, "Done", res.Output)
	assert.Equal(t, agent.Completed("Done"), res.Outcome)
	assert.Equal(t, "S", res.Reasoning)
	assert.Equal(t, 2, res.EventCount)
	assert.Equal(t, filepath.Join(dir, "raw_events_research.json"), res.DebugLogPath)
	assert.Len(t, readLog(t, res.DebugLogPath), 2)
	assert.Equal(t, 0, ledger.Len(), "no usage, nothing recorded")
}

func TestPingsAreExcludedFromLog(t *testing.T) {
	dir := t.TempDir()
	evs := []events.Event{}
	nonPing := 0
	for i := 0; i < 20; i++ {
		switch i % 3 {
		case 0:
			evs = append(evs, events.NewPingEvent())
		case 1:
			evs = append(evs, decode(t, `: ping`))
		default:
			evs = append(evs, decode(t, `{"type":"response.output_text.delta","delta":"x"}`))
			nonPing++
		}
	}

	res, err := New(usage.OperationCritique, "o3-pro", usage.NewLedger(), WithResultsDir(dir)).
		Process(context.Background(), &fakeStream{events: evs})
	require.NoError(t, err)
	assert.Len(t, readLog(t, res.DebugLogPath), nonPing)
	assert.Equal(t, filepath.Join(dir, "raw_events_critique_after_research.json"), res.DebugLogPath)
}

func TestUntaggedPingSubstringIsExcludedFromLog(t *testing.T) {
	dir := t.TempDir()
	stream := &fakeStream{events: []events.Event{
		decode(t, `{"note":"shipping status"}`),
		decode(t, `{"type":"ping"}`),
		decode(t, `{"type":"response.output_text.delta","delta":"ping"}`),
		decode(t, `{"note":"status"}`),
	}}

	res, err := New(usage.OperationResearch, "m", usage.NewLedger(), WithResultsDir(dir)).
		Process(context.Background(), stream)
	require.NoError(t, err)
	assert.Equal(t, 2, res.EventCount)

	entries := readLog(t, res.DebugLogPath)
	require.Len(t, entries, 2)
	b, err := os.ReadFile(res.DebugLogPath)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "shipping status")
	assert.Contains(t, string(b), `"status"`)
}

type unmarshalableEvent struct {
	events.EventImpl
}

func (e *unmarshalableEvent) MarshalJSON() ([]byte, error) {
	return nil, errors.New("no structured form")
}

func (e *unmarshalableEvent) String() string {
	return "unmarshalable event"
}

type brokenEvent struct {
	events.EventImpl
}

func (e *brokenEvent) MarshalJSON() ([]byte, error) {
	return nil, errors.New("no structured form")
}

func (e *brokenEvent) String() string {
	panic("cannot stringify")
}

func TestDegradedSerialization(t *testing.T) {
	dir := t.TempDir()
	stream := &fakeStream{events: []events.Event{
		&unmarshalableEvent{EventImpl: events.EventImpl{Type_: "custom"}},
		&brokenEvent{EventImpl: events.EventImpl{Type_: "custom"}},
	}}

	res, err := New(usage.OperationFinalReport, "o4-mini", usage.NewLedger(), WithResultsDir(dir)).
		Process(context.Background(), stream)
	require.NoError(t, err)

	entries := readLog(t, res.DebugLogPath)
	require.Len(t, entries, 2)
	assert.Equal(t, "unmarshalableEvent", entries[0]["type"])
	assert.Equal(t, "unmarshalable event", entries[0]["str_repr"])
	assert.Equal(t, "custom", entries[0]["event_type"])

	assert.Equal(t, "brokenEvent", entries[1]["type"])
	assert.Contains(t, entries[1]["error"], "Failed to serialize event")
}

func replayEvents(t *testing.T) []events.Event {
	return []events.Event{
		events.NewAgentUpdatedEvent("ResearchAgent"),
		decode(t, `{"type":"response.output_item.done","item":{"type":"web_search_call","status":"completed","action":{"type":"search","query":"copilot soc2 <report>"}}}`),
		decode(t, `{"type":"response.output_item.done","item":{"type":"code_interpreter_call","code":"import pandas\nprint(1)"}}`),
		decode(t, `not even json`),
		decode(t, `{"type":"response.completed","response":{"id":"r1","usage":{"input_tokens":10,"output_tokens":5,"total_tokens":15}}}`),
	}
}

func TestReplayIsIdempotent(t *testing.T) {
	run := func(dir string) (*Result, []byte) {
		res, err := New(usage.OperationResearch, "m", usage.NewLedger(), WithResultsDir(dir), WithClock(fixedClock)).
			Process(context.Background(), &fakeStream{events: replayEvents(t), output: "final"})
		require.NoError(t, err)
		b, err := os.ReadFile(res.DebugLogPath)
		require.NoError(t, err)
		return res, b
	}

	res1, log1 := run(t.TempDir())
	res2, log2 := run(t.TempDir())
	assert.Equal(t, log1, log2)
	assert.Equal(t, res1.Output, res2.Output)
	assert.Equal(t, res1.WebSearches, res2.WebSearches)
	assert.Contains(t, string(log1), "copilot soc2 <report>")
}

func TestUsageFromExecutionContext(t *testing.T) {
	ledger := usage.NewLedger()
	display := &recordingDisplay{}
	stream := &fakeStream{
		usage: &events.Usage{
			Requests: 3, InputTokens: 1200, OutputTokens: 300, TotalTokens: 1500,
			InputTokensDetails:  &events.InputTokensDetails{CachedTokens: 200},
			OutputTokensDetails: &events.OutputTokensDetails{ReasoningTokens: 100},
		},
		events: []events.Event{
			decode(t, `{"type":"response.completed","response":{"id":"r1","usage":{"input_tokens":1,"output_tokens":1,"total_tokens":2}}}`),
		},
	}

	res, err := New(usage.OperationCritiqueOnly, "o3-pro", ledger, WithDisplay(display), WithClock(fixedClock)).
		Process(context.Background(), stream)
	require.NoError(t, err)

	require.Equal(t, 1, ledger.Len())
	rec := ledger.Report().History[0]
	assert.Equal(t, "o3-pro", rec.Model)
	assert.Equal(t, usage.OperationCritiqueOnly, rec.Operation)
	assert.Equal(t, 3, rec.Requests)
	assert.Equal(t, 200, rec.CachedInputTokens)
	assert.Equal(t, 100, rec.ReasoningOutputTokens)
	assert.Equal(t, float64(fixedClock().Unix()), rec.Timestamp)
	assert.Equal(t, &rec, res.Usage)

	// usage is shown even when not verbose
	require.Equal(t, []NoticeKind{NoticeReasoningTokens, NoticeTokenUsage}, display.kinds())
	assert.Equal(t, "Generated 100 reasoning tokens", display.notices[0].Text)
	assert.Equal(t, "Total tokens: 1,500 (1,200 input, 300 output, 200 cached)", display.notices[1].Text)
}

func TestUsageFallsBackToLastResponse(t *testing.T) {
	ledger := usage.NewLedger()
	display := &recordingDisplay{}
	stream := &fakeStream{events: []events.Event{
		decode(t, `{"type":"response.completed","response":{"id":"r1","usage":{"input_tokens":50,"output_tokens":50,"total_tokens":100}}}`),
		decode(t, `{"type":"response.completed","response":{"id":"r2","usage":{"input_tokens":4,"output_tokens":6,"total_tokens":10,"output_tokens_details":{"reasoning_tokens":3}}}}`),
		decode(t, `{"type":"response.completed","response":{"id":"r3"}}`),
	}}
	_, err := New(usage.OperationFinalReport, "o4-mini", ledger, WithDisplay(display)).
		Process(context.Background(), stream)
	require.NoError(t, err)

	require.Equal(t, 1, ledger.Len())
	rec := ledger.Report().History[0]
	assert.Equal(t, 10, rec.TotalTokens)
	assert.Equal(t, 4, rec.InputTokens)
	assert.Equal(t, 1, rec.Requests)
	// reasoning tokens are only announced for execution usage
	assert.Equal(t, []NoticeKind{NoticeTokenUsage}, display.kinds())
}

func TestNoUsageRecordsNothing(t *testing.T) {
	ledger := usage.NewLedger()
	res, err := New(usage.OperationFinalReport, "o4-mini", ledger).
		Process(context.Background(), &fakeStream{events: []events.Event{
			decode(t, `{"type":"response.completed","response":{"id":"r1"}}`),
		}})
	require.NoError(t, err)
	assert.Equal(t, 0, ledger.Len())
	assert.Nil(t, res.Usage)
}

func TestVerboseNotices(t *testing.T) {
	stream := func() *fakeStream {
		return &fakeStream{events: []events.Event{
			events.NewAgentUpdatedEvent("CritiqueAgent"),
			decode(t, `{"type":"response.output_item.added","item":{"id":"ws","type":"web_search_call","action":{"type":"search","query":"q1"}}}`),
			decode(t, `{"type":"response.output_item.added","item":{"id":"fc_1","type":"function_call","name":"verify_url"}}`),
			decode(t, `{"type":"response.function_call_arguments.delta","item_id":"fc_1","delta":"{"}`),
			decode(t, `{"type":"response.output_item.done","item":{"id":"fc_1","type":"function_call","name":"verify_url","arguments":"{\"url\":\"https://a.example\"}"}}`),
			decode(t, `{"type":"response.output_item.done","item":{"type":"function_call","name":"ask_question","arguments":"{\"repoName\":\"openai/openai-python\",\"question\":\"What is it?\"}"}}`),
		}}
	}

	display := &recordingDisplay{}
	res, err := New(usage.OperationCritique, "o3-pro", usage.NewLedger(),
		WithDisplay(display), WithVerbose(true), WithPrefix("📝 Critique")).
		Process(context.Background(), stream())
	require.NoError(t, err)

	assert.Equal(t, []NoticeKind{
		NoticeStreamStarted, NoticeHandoff, NoticeWebSearch, NoticeToolProgress, NoticeToolCall, NoticeMCPCall,
	}, display.kinds())
	assert.Equal(t, "Fact-checking", display.notices[2].Label)
	assert.Equal(t, "verify_url(https://a.example)", display.notices[4].Text)
	assert.Equal(t, "ask_question(openai/openai-python: 'What is it?')", display.notices[5].Text)
	assert.Equal(t, []string{"CritiqueAgent"}, res.Handoffs)
	require.Len(t, res.ToolCalls, 2)
	assert.Equal(t, "verify_url", res.ToolCalls[0].Name)
	assert.Empty(t, res.WebSearches, "searches are recorded when done")

	display = &recordingDisplay{}
	_, err = New(usage.OperationResearch, "m", usage.NewLedger(), WithDisplay(display), WithVerbose(true)).
		Process(context.Background(), stream())
	require.NoError(t, err)
	assert.Equal(t, "Web search", display.notices[1].Label)

	display = &recordingDisplay{}
	_, err = New(usage.OperationResearch, "m", usage.NewLedger(), WithDisplay(display)).
		Process(context.Background(), stream())
	require.NoError(t, err)
	assert.Empty(t, display.notices)
}

func TestStreamFailureKeepsPartialState(t *testing.T) {
	dir := t.TempDir()
	ledger := usage.NewLedger()
	stream := &fakeStream{
		events: []events.Event{
			decode(t, `{"type":"response.output_item.done","item":{"type":"function_call","name":"lookup","arguments":"{}"}}`),
			decode(t, `{"type":"response.output_text.delta","delta":"x"}`),
		},
		failAt:  2,
		failErr: errors.New("connection reset by peer"),
		usage:   &events.Usage{InputTokens: 5, OutputTokens: 5, TotalTokens: 10},
	}

	res, err := New(usage.OperationResearch, "m", ledger, WithResultsDir(dir)).
		Process(context.Background(), stream)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset by peer")
	require.NotNil(t, res)
	assert.Len(t, res.ToolCalls, 1)
	assert.Equal(t, 1, ledger.Len())
	assert.Len(t, readLog(t, filepath.Join(dir, "raw_events_research.json")), 2)
}

func TestDelegatedOutcome(t *testing.T) {
	stream := &fakeStream{
		events: []events.Event{
			events.NewAgentUpdatedEvent("CritiqueAgent"),
			events.NewAgentUpdatedEvent("ResearchAgent"),
		},
		output:  "refined research",
		handoff: &agent.Handoff{From: "CritiqueAgent", To: "ResearchAgent", Guidance: "add pricing data"},
	}
	res, err := New(usage.OperationIterative, "o3-pro", usage.NewLedger()).Process(context.Background(), stream)
	require.NoError(t, err)
	assert.True(t, res.Outcome.Delegated())
	assert.Equal(t, agent.DelegatedTo("ResearchAgent", "add pricing data", "refined research"), res.Outcome)
	assert.Equal(t, []string{"CritiqueAgent", "ResearchAgent"}, res.Handoffs)
}

func TestFormatToolCall(t *testing.T) {
	cases := []struct {
		name, args, want string
		kind             NoticeKind
	}{
		{"verify_url", `{"url":"https://x.test"}`, "verify_url(https://x.test)", NoticeToolCall},
		{"verify_url", `{}`, "verify_url(unknown URL)", NoticeToolCall},
		{"verify_url", `not json`, "verify_url(not json)", NoticeToolCall},
		{"read_wiki_structure", `{"repoName":"facebook/react"}`, "read_wiki_structure(facebook/react)", NoticeMCPCall},
		{"read_wiki_contents", `{}`, "read_wiki_contents(unknown repo)", NoticeMCPCall},
		{"ask_question", `{"repoName":"a/b"}`, "ask_question(a/b: 'unknown question')", NoticeMCPCall},
		{"ask_question", `{oops`, "ask_question({oops)", NoticeMCPCall},
		{"lookup", `{"id":1}`, `lookup({"id":1})`, NoticeToolCall},
	}
	for _, c := range cases {
		got, kind := FormatToolCall(c.name, c.args)
		assert.Equal(t, c.want, got)
		assert.Equal(t, c.kind, kind)
	}
}

func TestSummarizeCode(t *testing.T) {
	assert.Equal(t, "x = 1 | y = 2 | print(x + y)", SummarizeCode("\nx = 1\ny = 2\nprint(x + y)\n"))
	assert.Equal(t, "import math... (4 lines)", SummarizeCode("import math\na = 1\nb = 2\nprint(a)"))
	assert.Equal(t, "print(1)", SummarizeCode("print(1)"))
}

func TestDebugLogFilename(t *testing.T) {
	assert.Equal(t, "raw_events_final_report_only.json", DebugLogFilename(usage.OperationFinalReportOnly))
	assert.Equal(t, "raw_events_iterative.json", DebugLogFilename(usage.OperationIterative))
	assert.Equal(t, "raw_events_critique.json", DebugLogFilename(usage.OperationCritiqueOnly))
	assert.Equal(t, "raw_events_unknown.json", DebugLogFilename(usage.OperationUnknown))
}
