package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-go-golems/agentic-research/pkg/agent"
	"github.com/go-go-golems/agentic-research/pkg/display"
	"github.com/go-go-golems/agentic-research/pkg/helpers"
	"github.com/go-go-golems/agentic-research/pkg/mcp"
	"github.com/go-go-golems/agentic-research/pkg/results"
	"github.com/go-go-golems/agentic-research/pkg/runner/chat"
	"github.com/go-go-golems/agentic-research/pkg/runner/replay"
	"github.com/go-go-golems/agentic-research/pkg/runner/responses"
	"github.com/go-go-golems/agentic-research/pkg/settings"
	"github.com/go-go-golems/agentic-research/pkg/tools"
	"github.com/go-go-golems/agentic-research/pkg/usage"
	"github.com/go-go-golems/agentic-research/pkg/workflow"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

type runOptions struct {
	query      string
	inputFile  string
	flags      workflow.Flags
	echoEvents bool
	replayDir  string
}

func addRunFlags(cmd *cobra.Command, opts *runOptions) {
	f := cmd.Flags()
	f.StringVarP(&opts.query, "query", "q", "", "Research query to process")
	f.BoolVarP(&opts.flags.Critique, "critique", "c", false, "Run critique after research")
	f.BoolVar(&opts.flags.CritiqueOnly, "critique-only", false, "Only run critique on existing research")
	f.BoolVarP(&opts.flags.FinalReport, "final-report", "r", false, "Generate final report after research and critique")
	f.BoolVar(&opts.flags.FinalReportOnly, "final-report-only", false, "Only generate final report from existing research and critique results")
	f.StringVar(&opts.inputFile, "input-file", "", "Input file for critique-only mode")
	f.BoolVarP(&opts.flags.Iterative, "iterative", "i", false, "Enable iterative research-critique loop (critique can request more research)")
	f.BoolVar(&opts.echoEvents, "echo-events", false, "Mirror every notice as a JSON line on stdout")
	f.StringVar(&opts.replayDir, "replay-dir", "", "Replay the raw event logs of a results directory instead of calling the API")
}

func (o *runOptions) request() workflow.Request {
	return workflow.Request{
		Query:     o.query,
		Flags:     o.flags,
		InputFile: o.inputFile,
		Verbose:   viper.GetBool("verbose"),
	}
}

func displayWelcome(w io.Writer) {
	fmt.Fprintln(w, "🔍 Agentic Research Tool")
	fmt.Fprintln(w, strings.Repeat("=", 40))
}

func newExecutor(s *settings.Settings, replayDir string) (agent.Executor, error) {
	if replayDir != "" {
		return replay.FromResultsDir(replayDir)
	}

	registry, err := tools.Default(tools.NewVerifier())
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: s.RequestTimeout}

	switch s.APIType {
	case settings.APITypeChat:
		return chat.New(s.APIKey,
			chat.WithBaseURL(s.BaseURL),
			chat.WithHTTPClient(client),
			chat.WithToolRegistry(registry),
		)
	default:
		return responses.New(s.APIKey,
			responses.WithBaseURL(s.BaseURL),
			responses.WithHTTPClient(client),
			responses.WithToolRegistry(registry),
		)
	}
}

func toolServerOpener(s *settings.Settings, replayDir string) workflow.ToolServerOpener {
	if replayDir != "" {
		return nil
	}
	cfg := s.DeepWiki()
	return func(ctx context.Context) ([]agent.ToolServer, error) {
		c, err := mcp.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return []agent.ToolServer{c}, nil
	}
}

func runResearch(cmd *cobra.Command, opts *runOptions) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	displayWelcome(out)

	s, err := settings.Load(viper.GetViper())
	if err != nil {
		fmt.Fprintf(errOut, "❌ Error: %s\n", err)
		return &exitError{code: workflow.ExitValidation, err: err}
	}

	validation := s.Validation()
	if opts.replayDir != "" && validation.APIKey == "" {
		// replayed runs never reach the API
		validation.APIKey = "replay"
	}
	req, notes, err := workflow.Validate(opts.request(), validation)
	if err != nil {
		fmt.Fprintf(errOut, "❌ Error: %s\n", err)
		return &exitError{code: workflow.ExitValidation, err: err}
	}
	for _, n := range notes {
		fmt.Fprintln(out, n)
	}

	executor, err := newExecutor(s, opts.replayDir)
	if err != nil {
		fmt.Fprintf(errOut, "❌ Error: %s\n", err)
		return &exitError{code: workflow.ExitGeneralError, err: err}
	}

	router, err := display.NewRouter(display.WithVerbose(req.Verbose))
	if err != nil {
		return err
	}
	shared := display.NewSyncWriter(out)
	router.AddHandler("printer", display.NewPrinter(shared).Handle)
	if opts.echoEvents {
		router.AddHandler("ndjson", display.NewNDJSONWriter(shared).Handle)
	}

	wc := workflow.NewContext(req)
	plan := workflow.SelectPlan(req.Flags)
	orchestrator := workflow.New(
		executor,
		usage.NewLedger(),
		results.NewWriter(s.ResultsDir),
		workflow.WithDisplay(router.Display()),
		workflow.WithToolServers(toolServerOpener(s, opts.replayDir)),
		workflow.WithModels(s.Models()),
		workflow.WithMaxTurns(s.MaxTurns()),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var report usage.Report
	var runErr error
	ran := false

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return router.Run(egCtx)
	})
	eg.Go(func() error {
		defer func() {
			_ = router.Close()
		}()
		select {
		case <-router.Running():
		case <-egCtx.Done():
			runErr = egCtx.Err()
			return nil
		}
		runCtx := helpers.ContextWithRunID(egCtx, wc.RunID)
		report, runErr = orchestrator.Run(runCtx, wc, plan)
		ran = true
		return nil
	})
	if err := eg.Wait(); err != nil {
		log.Error().Err(err).Msg("Notice router failed")
	}

	// tokens spent by the stages that completed are reported on failure too
	if req.Verbose && ran {
		report.WriteSummary(out)
	}
	if runErr != nil {
		fmt.Fprintf(errOut, "❌ Error: %s\n", workflow.Describe(runErr))
		return &exitError{code: workflow.ExitCodeFor(runErr), err: runErr}
	}

	fmt.Fprintln(out, "✅ Workflow completed successfully!")
	if req.Verbose {
		fmt.Fprintf(out, "ℹ️  Results saved to: %s/\n", s.ResultsDir)
	}
	return nil
}
