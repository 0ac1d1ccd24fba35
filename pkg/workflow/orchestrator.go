package workflow

import (
	"context"
	"io"

	"github.com/go-go-golems/agentic-research/pkg/agent"
	"github.com/go-go-golems/agentic-research/pkg/prompts"
	"github.com/go-go-golems/agentic-research/pkg/reducer"
	"github.com/go-go-golems/agentic-research/pkg/results"
	"github.com/go-go-golems/agentic-research/pkg/usage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Models struct {
	Research    string `yaml:"research"`
	Critique    string `yaml:"critique"`
	FinalReport string `yaml:"final_report"`
}

type MaxTurns struct {
	Research    int
	Critique    int
	FinalReport int
}

// ToolServerOpener connects the tool servers of one critique stage. The
// stage closes them when it is done.
type ToolServerOpener func(ctx context.Context) ([]agent.ToolServer, error)

type Orchestrator struct {
	executor        agent.Executor
	ledger          *usage.Ledger
	writer          *results.Writer
	display         reducer.Display
	openToolServers ToolServerOpener
	models          Models
	turns           MaxTurns
}

type Option func(*Orchestrator)

func WithDisplay(d reducer.Display) Option {
	return func(o *Orchestrator) {
		o.display = d
	}
}

func WithToolServers(open ToolServerOpener) Option {
	return func(o *Orchestrator) {
		o.openToolServers = open
	}
}

func WithModels(m Models) Option {
	return func(o *Orchestrator) {
		o.models = m
	}
}

func WithMaxTurns(t MaxTurns) Option {
	return func(o *Orchestrator) {
		o.turns = t
	}
}

var DefaultModels = Models{
	Research:    "o4-mini-deep-research",
	Critique:    "o3-pro",
	FinalReport: "o4-mini",
}

var DefaultMaxTurns = MaxTurns{
	Research:    15,
	Critique:    25,
	FinalReport: 15,
}

func New(executor agent.Executor, ledger *usage.Ledger, writer *results.Writer, options ...Option) *Orchestrator {
	ret := &Orchestrator{
		executor: executor,
		ledger:   ledger,
		writer:   writer,
		display:  reducer.NullDisplay,
		models:   DefaultModels,
		turns:    DefaultMaxTurns,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Run executes plan. The ledger is reset first and the token usage report
// is saved whatever the outcome. Outputs of the stages that completed stay
// in wc.Store when a later stage fails.
func (o *Orchestrator) Run(ctx context.Context, wc *Context, plan Plan) (usage.Report, error) {
	o.ledger.Reset()
	log.Debug().Str("run_id", wc.RunID).Str("plan", string(plan.Kind)).Msg("Starting workflow")

	err := o.execute(ctx, wc, plan)

	report := o.ledger.Report()
	wc.Store.Set(results.KeyTokenUsage, report)
	if path, saveErr := o.writer.SaveTokenUsage(report); saveErr != nil {
		log.Warn().Err(saveErr).Msg("Could not save token usage")
	} else {
		log.Debug().Str("path", path).Msg("Saved token usage")
	}

	if err != nil {
		log.Error().Err(err).Str("run_id", wc.RunID).Str("stage", string(FailedStage(err))).Msg("Workflow failed")
	}
	return report, err
}

func (o *Orchestrator) execute(ctx context.Context, wc *Context, plan Plan) error {
	if plan.Kind == PlanIterative {
		o.notify(ctx, reducer.Notice{Kind: reducer.NoticeMode, Text: "Iterative Research-Critique Workflow"})
	}

	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return stageError(StageGeneral, err)
		}

		var err error
		switch step.Stage {
		case StageResearch:
			err = o.research(ctx, wc, step)
		case StageCritique:
			err = o.critique(ctx, wc, step)
		case StageFinalReport:
			err = o.finalReport(ctx, wc, plan, step)
		default:
			err = errors.Errorf("unknown stage %s", step.Stage)
		}
		if err != nil {
			return stageError(step.Stage, err)
		}
	}
	return nil
}

func (o *Orchestrator) notify(ctx context.Context, n reducer.Notice) {
	if err := o.display.Show(ctx, n); err != nil {
		log.Warn().Err(err).Str("kind", string(n.Kind)).Msg("Could not display notice")
	}
}

func (o *Orchestrator) verboseNotify(ctx context.Context, wc *Context, n reducer.Notice) {
	if wc.Verbose {
		o.notify(ctx, n)
	}
}

func (o *Orchestrator) warn(ctx context.Context, text string) {
	log.Warn().Msg(text)
	o.notify(ctx, reducer.Notice{Kind: reducer.NoticeWarning, Text: text})
}

// runAgent starts spec on input and reduces its event stream.
func (o *Orchestrator) runAgent(
	ctx context.Context,
	wc *Context,
	op usage.Operation,
	spec *agent.Spec,
	input string,
	prefix string,
) (*reducer.Result, error) {
	stream, err := o.executor.Start(ctx, agent.Request{Agent: spec, Input: input})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to start %s", spec.Name)
	}
	if c, ok := stream.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				log.Warn().Err(err).Str("agent", spec.Name).Msg("Could not close stream")
			}
		}()
	}

	r := reducer.New(op, spec.Model, o.ledger,
		reducer.WithDisplay(o.display),
		reducer.WithVerbose(wc.Verbose),
		reducer.WithResultsDir(o.writer.Dir()),
		reducer.WithPrefix(prefix),
	)
	res, err := r.Process(ctx, stream)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (o *Orchestrator) research(ctx context.Context, wc *Context, step Step) error {
	o.notify(ctx, reducer.Notice{Kind: reducer.NoticeMode, Operation: step.Operation, Text: "Research Mode"})
	o.verboseNotify(ctx, wc, reducer.Notice{Kind: reducer.NoticeInfo, Text: "Starting research: " + wc.Query})

	spec := prompts.ResearchAgent(o.models.Research, o.turns.Research)
	res, err := o.runAgent(ctx, wc, step.Operation, spec, wc.Query, "🔍 Research")
	if err != nil {
		return err
	}
	o.verboseNotify(ctx, wc, reducer.Notice{Kind: reducer.NoticeSuccess, Text: "Research completed"})

	out := results.FromResult(res)
	wc.Store.Put(string(StageResearch), out)
	wc.Store.Set(results.KeyResearchOutput, out.Content)

	doc, err := o.writer.SaveResearch(wc.Query, out, o.ledger.Report())
	if err != nil {
		return errors.Wrap(err, "failed to save research results")
	}
	wc.Store.Set(results.KeyContent, doc.Content)
	o.verboseNotify(ctx, wc, reducer.Notice{
		Kind: reducer.NoticeInfo,
		Text: "Results saved to " + o.writer.Path(results.ResearchTextFile) + " and " + o.writer.Path(results.ResearchJSONFile),
	})
	return nil
}

// critiqueInput returns the research to critique and where it comes from.
func (o *Orchestrator) critiqueInput(wc *Context, step Step) (string, string, error) {
	if step.Operation == usage.OperationCritiqueOnly {
		content, err := results.LoadContent(wc.InputFile)
		if err != nil {
			return "", "", err
		}
		return content, "file: " + wc.InputFile, nil
	}
	return wc.Store.Content(string(StageResearch)), "previous research", nil
}

func (o *Orchestrator) critique(ctx context.Context, wc *Context, step Step) error {
	o.notify(ctx, reducer.Notice{Kind: reducer.NoticeMode, Operation: step.Operation, Text: "Critique Mode"})

	research, source, err := o.critiqueInput(wc, step)
	if err != nil {
		return err
	}
	if research == "" {
		o.warn(ctx, "No research content found for critique")
		return nil
	}

	servers, err := o.connectToolServers(ctx)
	if err != nil {
		return err
	}
	defer closeToolServers(servers)

	iterative := step.Operation == usage.OperationIterative
	var handoff *agent.Spec
	if iterative {
		handoff = prompts.ResearchAgent(o.models.Research, o.turns.Research)
	}
	spec := prompts.CritiqueAgent(o.models.Critique, o.turns.Critique, servers, handoff)

	msg, err := prompts.CritiqueMessage(wc.Query, research)
	if err != nil {
		return err
	}

	o.verboseNotify(ctx, wc, reducer.Notice{Kind: reducer.NoticeInfo, Text: "Starting critique of " + source})
	res, err := o.runAgent(ctx, wc, step.Operation, spec, msg, "📝 Critique")
	if err != nil {
		return err
	}

	out := results.FromResult(res)
	wc.Store.Put(string(StageCritique), out)
	if out.Outcome.Delegated() {
		log.Info().
			Str("from", spec.Name).
			Str("to", out.Outcome.DelegatedTo).
			Msg("Critique delegated to research, using the delegated output")
		wc.Store.Set(results.KeyHandoff, out.Outcome)
	}

	if iterative {
		o.verboseNotify(ctx, wc, reducer.Notice{Kind: reducer.NoticeSuccess, Text: "Iterative workflow completed"})
		wc.Store.Set(results.KeyIterativeOutput, out.Content)
		if out.Content == "" {
			return nil
		}
		o.notify(ctx, reducer.Notice{Kind: reducer.NoticeOutput, Label: "FINAL OUTPUT", Text: out.Content})
	} else {
		o.verboseNotify(ctx, wc, reducer.Notice{Kind: reducer.NoticeSuccess, Text: "Critique completed"})
		wc.Store.Set(results.KeyCritiqueOutput, out.Content)
	}

	saved, err := o.writer.SaveCritique(wc.Query, out.Content, o.ledger.Report())
	if err != nil {
		return errors.Wrap(err, "failed to save critique results")
	}
	wc.Store.Set(results.KeyCritique, saved)
	o.verboseNotify(ctx, wc, reducer.Notice{Kind: reducer.NoticeInfo, Text: "Critique saved to " + o.writer.Path(results.CritiqueFile)})
	return nil
}

func (o *Orchestrator) connectToolServers(ctx context.Context) ([]agent.ToolServer, error) {
	if o.openToolServers == nil {
		return nil, nil
	}
	servers, err := o.openToolServers(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect tool servers")
	}
	return servers, nil
}

func closeToolServers(servers []agent.ToolServer) {
	for _, s := range servers {
		if err := s.Close(); err != nil {
			log.Warn().Err(err).Str("server", s.Name()).Msg("Could not close tool server")
		}
	}
}

// finalReportInputs returns research and critique for the final report.
// Without a critique stage in the plan the critique is not required.
func (o *Orchestrator) finalReportInputs(wc *Context, plan Plan, step Step) (string, string, string, error) {
	if step.Operation == usage.OperationFinalReportOnly {
		researchPath := o.writer.Path(results.ResearchTextFile)
		critiquePath := o.writer.Path(results.CritiqueFile)
		research, err := results.LoadContent(researchPath)
		if err != nil {
			return "", "", "", err
		}
		critique, err := results.LoadContent(critiquePath)
		if err != nil {
			return "", "", "", err
		}
		return research, critique, "files: " + researchPath + " and " + critiquePath, nil
	}
	return wc.Store.Content(string(StageResearch)), wc.Store.Content(string(StageCritique)), "previous workflow steps", nil
}

func (o *Orchestrator) finalReport(ctx context.Context, wc *Context, plan Plan, step Step) error {
	o.notify(ctx, reducer.Notice{Kind: reducer.NoticeMode, Operation: step.Operation, Text: "Final Report Mode"})

	research, critique, source, err := o.finalReportInputs(wc, plan, step)
	if err != nil {
		return err
	}
	if research == "" {
		o.warn(ctx, "No research content found for final report")
		return nil
	}
	critiqueRequired := plan.Has(StageCritique) || step.Operation == usage.OperationFinalReportOnly
	if critique == "" && critiqueRequired {
		o.warn(ctx, "No critique content found for final report")
		return nil
	}

	report := o.ledger.Report()
	models := append([]string{}, report.Models...)
	if !contains(models, o.models.FinalReport) {
		models = append(models, o.models.FinalReport)
	}
	var usageSummary string
	if o.ledger.Len() > 0 {
		usageSummary = report.MarkdownSection(false)
	}
	msg, err := prompts.FinalReportMessage(prompts.FinalReportInput{
		Query:        wc.Query,
		Research:     research,
		Critique:     critique,
		UsageSummary: usageSummary,
		Models:       models,
	})
	if err != nil {
		return err
	}

	o.verboseNotify(ctx, wc, reducer.Notice{Kind: reducer.NoticeInfo, Text: "Starting final report generation from " + source})
	o.notify(ctx, reducer.Notice{
		Kind: reducer.NoticeInfo,
		Text: "📊 Generating comprehensive final report...",
		Lines: []string{
			"(Synthesizing research findings and critique into markdown format)",
		},
	})

	spec := prompts.FinalReportAgent(o.models.FinalReport, o.turns.FinalReport)
	res, err := o.runAgent(ctx, wc, step.Operation, spec, msg, "📊 Final Report")
	if err != nil {
		return err
	}

	out := results.FromResult(res)
	wc.Store.Put(string(StageFinalReport), out)
	wc.Store.Set(results.KeyFinalOutput, out.Content)
	if out.Content != "" {
		o.notify(ctx, reducer.Notice{Kind: reducer.NoticeOutput, Label: "FINAL REPORT", Text: out.Content})
	}
	o.verboseNotify(ctx, wc, reducer.Notice{Kind: reducer.NoticeSuccess, Text: "Final report completed"})

	saved, err := o.writer.SaveFinalReport(wc.Query, out.Content, o.ledger.Report())
	if err != nil {
		return errors.Wrap(err, "failed to save final report")
	}
	wc.Store.Set(results.KeyFinalReport, saved)
	o.verboseNotify(ctx, wc, reducer.Notice{Kind: reducer.NoticeInfo, Text: "Final report saved to " + o.writer.Path(results.FinalReportFile)})
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
