package workflow

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-go-golems/agentic-research/pkg/agent"
	"github.com/go-go-golems/agentic-research/pkg/events"
	"github.com/go-go-golems/agentic-research/pkg/prompts"
	"github.com/go-go-golems/agentic-research/pkg/reducer"
	"github.com/go-go-golems/agentic-research/pkg/results"
	"github.com/go-go-golems/agentic-research/pkg/usage"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedStream struct {
	events  []events.Event
	pos     int
	err     error
	output  string
	usage   *events.Usage
	handoff *agent.Handoff
	closed  int
}

func (s *scriptedStream) Next(ctx context.Context) (events.Event, error) {
	if s.pos < len(s.events) {
		ev := s.events[s.pos]
		s.pos++
		return ev, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, io.EOF
}

func (s *scriptedStream) FinalOutput() string     { return s.output }
func (s *scriptedStream) Usage() *events.Usage    { return s.usage }
func (s *scriptedStream) Handoff() *agent.Handoff { return s.handoff }
func (s *scriptedStream) Close() error {
	s.closed++
	return nil
}

// fakeExecutor returns the scripted stream registered for an agent name
// and records every request it gets.
type fakeExecutor struct {
	streams  map[string]*scriptedStream
	requests []agent.Request
}

func (f *fakeExecutor) Start(ctx context.Context, req agent.Request) (agent.Stream, error) {
	f.requests = append(f.requests, req)
	s, ok := f.streams[req.Agent.Name]
	if !ok {
		return nil, errors.Errorf("no stream for %s", req.Agent.Name)
	}
	return s, nil
}

func (f *fakeExecutor) agents() []string {
	ret := []string{}
	for _, r := range f.requests {
		ret = append(ret, r.Agent.Name)
	}
	return ret
}

func (f *fakeExecutor) request(t *testing.T, name string) agent.Request {
	t.Helper()
	for _, r := range f.requests {
		if r.Agent.Name == name {
			return r
		}
	}
	t.Fatalf("%s was not started", name)
	return agent.Request{}
}

type countingToolServer struct {
	closed int
}

func (c *countingToolServer) Name() string { return "DeepWiki" }
func (c *countingToolServer) ListTools(ctx context.Context) ([]agent.ToolSchema, error) {
	return nil, nil
}
func (c *countingToolServer) CallTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	return "", nil
}
func (c *countingToolServer) Close() error {
	c.closed++
	return nil
}

type noticeRecorder struct {
	notices []reducer.Notice
}

func (n *noticeRecorder) Show(_ context.Context, notice reducer.Notice) error {
	n.notices = append(n.notices, notice)
	return nil
}

func (n *noticeRecorder) texts(kind reducer.NoticeKind) []string {
	ret := []string{}
	for _, notice := range n.notices {
		if notice.Kind == kind {
			ret = append(ret, notice.Text)
		}
	}
	return ret
}

type harness struct {
	executor *fakeExecutor
	server   *countingToolServer
	display  *noticeRecorder
	ledger   *usage.Ledger
	dir      string
	o        *Orchestrator
}

func newHarness(t *testing.T, streams map[string]*scriptedStream) *harness {
	h := &harness{
		executor: &fakeExecutor{streams: streams},
		server:   &countingToolServer{},
		display:  &noticeRecorder{},
		ledger:   usage.NewLedger(),
		dir:      t.TempDir(),
	}
	h.o = New(h.executor, h.ledger, results.NewWriter(h.dir),
		WithDisplay(h.display),
		WithToolServers(func(ctx context.Context) ([]agent.ToolServer, error) {
			return []agent.ToolServer{h.server}, nil
		}),
	)
	return h
}

func (h *harness) run(t *testing.T, req Request) (*Context, error) {
	t.Helper()
	wc := NewContext(req)
	_, err := h.o.Run(context.Background(), wc, SelectPlan(req.Flags))
	return wc, err
}

func TestSelectPlan(t *testing.T) {
	tests := []struct {
		name   string
		flags  Flags
		kind   PlanKind
		stages []Stage
	}{
		{"no flags", Flags{}, PlanResearchOnly, []Stage{StageResearch}},
		{"critique", Flags{Critique: true}, PlanResearchThenCritique, []Stage{StageResearch, StageCritique}},
		{"critique and report", Flags{Critique: true, FinalReport: true}, PlanResearchThenCritique,
			[]Stage{StageResearch, StageCritique, StageFinalReport}},
		{"report without critique", Flags{FinalReport: true}, PlanResearchThenReport,
			[]Stage{StageResearch, StageFinalReport}},
		{"iterative needs critique", Flags{Iterative: true}, PlanResearchOnly, []Stage{StageResearch}},
		{"iterative", Flags{Iterative: true, Critique: true}, PlanIterative, []Stage{StageResearch, StageCritique}},
		{"iterative with report", Flags{Iterative: true, Critique: true, FinalReport: true}, PlanIterative,
			[]Stage{StageResearch, StageCritique, StageFinalReport}},
		{"critique only wins over iterative", Flags{CritiqueOnly: true, Iterative: true, Critique: true},
			PlanCritiqueOnly, []Stage{StageCritique}},
		{"final report only wins", Flags{FinalReportOnly: true, CritiqueOnly: true, Critique: true},
			PlanFinalReportOnly, []Stage{StageFinalReport}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := SelectPlan(tt.flags)
			assert.Equal(t, tt.kind, plan.Kind)
			assert.Equal(t, tt.stages, plan.Stages())
		})
	}

	assert.Equal(t, usage.OperationIterative, SelectPlan(Flags{Iterative: true, Critique: true}).Steps[1].Operation)
	assert.Equal(t, usage.OperationCritiqueOnly, SelectPlan(Flags{CritiqueOnly: true}).Steps[0].Operation)
	assert.Equal(t, usage.OperationFinalReportOnly, SelectPlan(Flags{FinalReportOnly: true}).Steps[0].Operation)
}

func TestResearchOnly(t *testing.T) {
	h := newHarness(t, map[string]*scriptedStream{
		prompts.ResearchAgentName: {
			output: "R1",
			usage:  &events.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
		},
	})
	wc, err := h.run(t, Request{Query: "Q"})
	require.NoError(t, err)

	assert.Equal(t, []string{prompts.ResearchAgentName}, h.executor.agents())
	assert.Equal(t, "Q", h.executor.requests[0].Input)
	assert.Equal(t, "R1", wc.Store.Content(string(StageResearch)))
	assert.Equal(t, 1, h.executor.streams[prompts.ResearchAgentName].closed)

	content, ok := wc.Store.Lookup(results.KeyContent)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(content.(string), "R1\n\n## Token Usage Statistics"))

	for _, name := range []string{results.ResearchTextFile, results.ResearchJSONFile, results.TokenUsageFile, "raw_events_research.json"} {
		_, err := os.Stat(filepath.Join(h.dir, name))
		assert.NoError(t, err, name)
	}
	assert.Equal(t, 15, h.ledger.Totals().TotalTokens)
}

func TestCritiqueFailureIsTagged(t *testing.T) {
	h := newHarness(t, map[string]*scriptedStream{
		prompts.ResearchAgentName: {output: "R1"},
		prompts.CritiqueAgentName: {err: errors.New("model overloaded")},
	})
	wc, err := h.run(t, Request{Query: "Q", Flags: Flags{Critique: true, FinalReport: true}})
	require.Error(t, err)

	assert.Equal(t, StageCritique, FailedStage(err))
	assert.Equal(t, ExitCritiqueError, ExitCodeFor(err))
	assert.Equal(t, "R1", wc.Store.Content(string(StageResearch)))
	assert.Equal(t, []string{prompts.ResearchAgentName, prompts.CritiqueAgentName}, h.executor.agents())
	assert.Equal(t, 1, h.server.closed)

	_, err = os.Stat(filepath.Join(h.dir, results.TokenUsageFile))
	assert.NoError(t, err, "token usage is saved on failure")
}

func TestResearchFailureIsTagged(t *testing.T) {
	h := newHarness(t, map[string]*scriptedStream{
		prompts.ResearchAgentName: {err: errors.New("boom")},
	})
	_, err := h.run(t, Request{Query: "Q", Flags: Flags{Critique: true}})
	require.Error(t, err)
	assert.Equal(t, ExitResearchError, ExitCodeFor(err))
	assert.Equal(t, []string{prompts.ResearchAgentName}, h.executor.agents())
	assert.Equal(t, 0, h.server.closed, "critique never connected its tool servers")
}

func TestCritiqueOnlyFromFile(t *testing.T) {
	h := newHarness(t, map[string]*scriptedStream{
		prompts.CritiqueAgentName: {output: "C1"},
	})
	input := filepath.Join(t.TempDir(), "r.txt")
	require.NoError(t, os.WriteFile(input, []byte("Claim X"), 0o644))

	wc, err := h.run(t, Request{Query: "Q", InputFile: input, Flags: Flags{CritiqueOnly: true}})
	require.NoError(t, err)

	assert.Equal(t, []string{prompts.CritiqueAgentName}, h.executor.agents())
	msg, err := prompts.CritiqueMessage("Q", "Claim X")
	require.NoError(t, err)
	assert.Equal(t, msg, h.executor.requests[0].Input)
	assert.Empty(t, h.executor.requests[0].Agent.Handoffs)

	b, err := os.ReadFile(filepath.Join(h.dir, results.CritiqueFile))
	require.NoError(t, err)
	assert.Contains(t, string(b), "C1")
	_, err = os.Stat(filepath.Join(h.dir, "raw_events_critique.json"))
	assert.NoError(t, err)

	v, _ := wc.Store.Lookup(results.KeyCritiqueOutput)
	assert.Equal(t, "C1", v)
	assert.Equal(t, 1, h.server.closed)
}

func TestFinalReportReceivesResearchAndCritique(t *testing.T) {
	h := newHarness(t, map[string]*scriptedStream{
		prompts.ResearchAgentName:    {output: "R1"},
		prompts.CritiqueAgentName:    {output: "C1"},
		prompts.FinalReportAgentName: {output: "# Report"},
	})
	wc, err := h.run(t, Request{Query: "Q", Flags: Flags{Critique: true, FinalReport: true}})
	require.NoError(t, err)

	assert.Equal(t, []string{prompts.ResearchAgentName, prompts.CritiqueAgentName, prompts.FinalReportAgentName},
		h.executor.agents())

	want, err := prompts.FinalReportMessage(prompts.FinalReportInput{
		Query:    "Q",
		Research: "R1",
		Critique: "C1",
		Models:   []string{DefaultModels.FinalReport},
	})
	require.NoError(t, err)
	assert.Equal(t, want, h.executor.request(t, prompts.FinalReportAgentName).Input)

	critiqueInput := h.executor.request(t, prompts.CritiqueAgentName).Input
	assert.Contains(t, critiqueInput, "Research Content:\nR1\n")

	assert.Equal(t, []string{"FINAL REPORT"}, outputLabels(h.display))
	v, _ := wc.Store.Lookup(results.KeyFinalOutput)
	assert.Equal(t, "# Report", v)
	_, err = os.Stat(filepath.Join(h.dir, results.FinalReportFile))
	assert.NoError(t, err)
}

func outputLabels(d *noticeRecorder) []string {
	ret := []string{}
	for _, n := range d.notices {
		if n.Kind == reducer.NoticeOutput {
			ret = append(ret, n.Label)
		}
	}
	return ret
}

func TestResearchThenReportWithoutCritique(t *testing.T) {
	h := newHarness(t, map[string]*scriptedStream{
		prompts.ResearchAgentName:    {output: "R1"},
		prompts.FinalReportAgentName: {output: "# Report"},
	})
	_, err := h.run(t, Request{Query: "Q", Flags: Flags{FinalReport: true}})
	require.NoError(t, err)

	assert.Equal(t, []string{prompts.ResearchAgentName, prompts.FinalReportAgentName}, h.executor.agents())
	assert.Contains(t, h.executor.request(t, prompts.FinalReportAgentName).Input,
		"CRITIQUE ANALYSIS:\nNo critique was performed for this research.")
	assert.Equal(t, 0, h.server.closed)
}

func TestEmptyResearchSkipsDependentStages(t *testing.T) {
	h := newHarness(t, map[string]*scriptedStream{
		prompts.ResearchAgentName: {output: ""},
	})
	_, err := h.run(t, Request{Query: "Q", Flags: Flags{Critique: true, FinalReport: true}})
	require.NoError(t, err)

	assert.Equal(t, []string{prompts.ResearchAgentName}, h.executor.agents())
	assert.Equal(t, []string{
		"No research content found for critique",
		"No research content found for final report",
	}, h.display.texts(reducer.NoticeWarning))
	assert.Equal(t, 0, h.server.closed)
}

func TestIterativeHandoff(t *testing.T) {
	h := newHarness(t, map[string]*scriptedStream{
		prompts.ResearchAgentName: {output: "R1"},
		prompts.CritiqueAgentName: {
			events: []events.Event{events.NewAgentUpdatedEvent(prompts.ResearchAgentName)},
			output: "R2",
			handoff: &agent.Handoff{
				From:     prompts.CritiqueAgentName,
				To:       prompts.ResearchAgentName,
				Guidance: "verify HIPAA BAA",
			},
		},
	})
	wc, err := h.run(t, Request{Query: "Q", Flags: Flags{Critique: true, Iterative: true}})
	require.NoError(t, err)

	critique := h.executor.request(t, prompts.CritiqueAgentName)
	require.Len(t, critique.Agent.Handoffs, 1)
	assert.Equal(t, prompts.ResearchAgentName, critique.Agent.Handoffs[0].Name)
	assert.Equal(t, DefaultModels.Critique, critique.Agent.Model)

	out, ok := wc.Store.Get(string(StageCritique))
	require.True(t, ok)
	assert.True(t, out.Outcome.Delegated())
	assert.Equal(t, "verify HIPAA BAA", out.Outcome.Guidance)

	v, _ := wc.Store.Lookup(results.KeyIterativeOutput)
	assert.Equal(t, "R2", v)
	_, ok = wc.Store.Lookup(results.KeyHandoff)
	assert.True(t, ok)
	assert.Equal(t, []string{"FINAL OUTPUT"}, outputLabels(h.display))

	assert.Equal(t, 1, h.server.closed)
	_, err = os.Stat(filepath.Join(h.dir, "raw_events_iterative.json"))
	assert.NoError(t, err)
}

func TestToolServerConnectFailureIsCritiqueError(t *testing.T) {
	h := newHarness(t, map[string]*scriptedStream{
		prompts.ResearchAgentName: {output: "R1"},
	})
	h.o.openToolServers = func(ctx context.Context) ([]agent.ToolServer, error) {
		return nil, errors.New("connection refused")
	}
	_, err := h.run(t, Request{Query: "Q", Flags: Flags{Critique: true}})
	require.Error(t, err)
	assert.Equal(t, ExitCritiqueError, ExitCodeFor(err))
	assert.True(t, IsStreamFailure(err))
}

func TestFinalReportOnlyFromFiles(t *testing.T) {
	h := newHarness(t, map[string]*scriptedStream{
		prompts.FinalReportAgentName: {output: "# Report"},
	})
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, results.ResearchTextFile), []byte("R1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, results.CritiqueFile), []byte("C1"), 0o644))

	_, err := h.run(t, Request{Query: "Q", Flags: Flags{FinalReportOnly: true}})
	require.NoError(t, err)
	assert.Equal(t, []string{prompts.FinalReportAgentName}, h.executor.agents())
	assert.Contains(t, h.executor.requests[0].Input, "RESEARCH CONTENT:\nR1\n\nCRITIQUE ANALYSIS:\nC1\n")
	_, err = os.Stat(filepath.Join(h.dir, "raw_events_final_report_only.json"))
	assert.NoError(t, err)
}

func TestCancellationIsGeneral(t *testing.T) {
	h := newHarness(t, map[string]*scriptedStream{
		prompts.ResearchAgentName: {err: context.Canceled},
	})
	_, err := h.run(t, Request{Query: "Q"})
	require.Error(t, err)
	assert.Equal(t, StageGeneral, FailedStage(err))
	assert.Equal(t, ExitGeneralError, ExitCodeFor(err))
	assert.Equal(t, "Workflow interrupted by user", Describe(err))
}

func TestLedgerIsResetBetweenRuns(t *testing.T) {
	h := newHarness(t, map[string]*scriptedStream{
		prompts.ResearchAgentName: {
			output: "R1",
			usage:  &events.Usage{InputTokens: 1, OutputTokens: 1, TotalTokens: 2},
		},
	})
	_, err := h.run(t, Request{Query: "Q"})
	require.NoError(t, err)
	h.executor.streams[prompts.ResearchAgentName].pos = 0
	_, err = h.run(t, Request{Query: "Q"})
	require.NoError(t, err)
	assert.Equal(t, 1, h.ledger.Len())
}

func TestExitCodeFor(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCodeFor(nil))
	assert.Equal(t, ExitValidation, ExitCodeFor(&ValidationError{Message: "x"}))
	assert.Equal(t, ExitResearchError, ExitCodeFor(&StageError{Stage: StageResearch, Err: errors.New("x")}))
	assert.Equal(t, ExitFinalReportError, ExitCodeFor(errors.Wrap(&StageError{Stage: StageFinalReport, Err: errors.New("x")}, "wrapped")))
	assert.Equal(t, ExitGeneralError, ExitCodeFor(errors.New("x")))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Streaming connection failed: stream reset", Describe(errors.New("stream reset")))
	assert.Equal(t, "Workflow execution failed: bad request", Describe(errors.New("bad request")))
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	settings := ValidationSettings{APIKey: "sk-test", ResultsDir: dir, DefaultQuery: "default"}

	_, _, err := Validate(Request{}, ValidationSettings{ResultsDir: dir})
	require.Error(t, err)
	assert.Equal(t, ExitValidation, ExitCodeFor(err))

	req, notes, err := Validate(Request{}, settings)
	require.NoError(t, err)
	assert.Equal(t, "default", req.Query)
	assert.Equal(t, []string{"Using default query: default"}, notes)

	_, _, err = Validate(Request{Query: "Q", Flags: Flags{CritiqueOnly: true}}, settings)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires --input-file")

	_, _, err = Validate(Request{Query: "Q", Flags: Flags{FinalReportOnly: true}}, settings)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "existing research results")

	require.NoError(t, os.WriteFile(filepath.Join(dir, results.ResearchTextFile), []byte("R1"), 0o644))
	req, notes, err = Validate(Request{Query: "Q", Flags: Flags{CritiqueOnly: true}}, settings)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, results.ResearchTextFile), req.InputFile)
	assert.Len(t, notes, 1)

	_, _, err = Validate(Request{InputFile: filepath.Join(dir, results.ResearchTextFile), Flags: Flags{CritiqueOnly: true}}, settings)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires --query")

	_, _, err = Validate(Request{Query: "Q", InputFile: filepath.Join(dir, "missing.txt")}, settings)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input file not found")

	require.NoError(t, os.WriteFile(filepath.Join(dir, results.CritiqueFile), []byte("C1"), 0o644))
	_, notes, err = Validate(Request{Query: "Q", Flags: Flags{FinalReportOnly: true}}, settings)
	require.NoError(t, err)
	assert.Len(t, notes, 2)
}

func TestValidateChecksOnlyTheSelectedPlan(t *testing.T) {
	dir := t.TempDir()
	settings := ValidationSettings{APIKey: "sk-test", ResultsDir: dir, DefaultQuery: "default"}
	research := filepath.Join(dir, results.ResearchTextFile)
	critique := filepath.Join(dir, results.CritiqueFile)
	require.NoError(t, os.WriteFile(research, []byte("R1"), 0o644))
	require.NoError(t, os.WriteFile(critique, []byte("C1"), 0o644))

	flags := Flags{CritiqueOnly: true, FinalReportOnly: true}
	require.Equal(t, PlanFinalReportOnly, SelectPlan(flags).Kind)

	req, notes, err := Validate(Request{Query: "Q", Flags: flags}, settings)
	require.NoError(t, err)
	assert.Empty(t, req.InputFile, "critique-only input is not defaulted")
	assert.Equal(t, []string{"Using research file: " + research, "Using critique file: " + critique}, notes)

	require.NoError(t, os.Remove(critique))
	_, _, err = Validate(Request{Query: "Q", Flags: flags}, settings)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "existing critique results")
}
