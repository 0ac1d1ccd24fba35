// Package workflow selects the plan of one research invocation and runs its
// stages in order, tagging failures with the stage they happened in.
package workflow

import (
	"os"
	"path/filepath"

	"github.com/go-go-golems/agentic-research/pkg/results"
	"github.com/google/uuid"
)

// Request is one invocation as given on the command line.
type Request struct {
	Query     string `yaml:"query"`
	Flags     Flags  `yaml:"flags"`
	InputFile string `yaml:"input_file,omitempty"`
	Verbose   bool   `yaml:"verbose"`
}

// Context is the state shared by the stages of one invocation.
type Context struct {
	Query             string
	Verbose           bool
	CritiqueRequested bool
	CritiqueOnly      bool
	InputFile         string
	RunID             string
	Store             *results.Store
}

func NewContext(req Request) *Context {
	return &Context{
		Query:             req.Query,
		Verbose:           req.Verbose,
		CritiqueRequested: req.Flags.Critique,
		CritiqueOnly:      req.Flags.CritiqueOnly,
		InputFile:         req.InputFile,
		RunID:             uuid.NewString(),
		Store:             results.NewStore(),
	}
}

// ValidationSettings is what request validation needs besides the request.
type ValidationSettings struct {
	APIKey       string
	ResultsDir   string
	DefaultQuery string
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Validate checks req before any stage runs and fills in defaults: the
// critique-only input file and the default query. The returned notes tell
// the user which defaults were applied.
func Validate(req Request, s ValidationSettings) (Request, []string, error) {
	var notes []string

	if s.APIKey == "" {
		return req, nil, validationErrorf("OPENAI_API_KEY environment variable is required")
	}

	// only the inputs of the plan that will run are required
	plan := SelectPlan(req.Flags)
	switch plan.Kind {
	case PlanCritiqueOnly:
		if req.InputFile == "" {
			defaultInput := filepath.Join(s.ResultsDir, results.ResearchTextFile)
			if !fileExists(defaultInput) {
				return req, nil, validationErrorf("Critique-only mode requires --input-file (default %s not found)", defaultInput)
			}
			req.InputFile = defaultInput
			notes = append(notes, "Using default input file: "+defaultInput)
		}
		if req.Query == "" {
			return req, nil, validationErrorf("Critique-only mode requires --query (original query)")
		}

	case PlanFinalReportOnly:
		research := filepath.Join(s.ResultsDir, results.ResearchTextFile)
		critique := filepath.Join(s.ResultsDir, results.CritiqueFile)
		if !fileExists(research) {
			return req, nil, validationErrorf("Final-report-only mode requires existing research results at %s", research)
		}
		if !fileExists(critique) {
			return req, nil, validationErrorf("Final-report-only mode requires existing critique results at %s", critique)
		}
		if req.Query == "" {
			return req, nil, validationErrorf("Final-report-only mode requires --query (original query)")
		}
		notes = append(notes, "Using research file: "+research, "Using critique file: "+critique)
	}

	if req.InputFile != "" && !fileExists(req.InputFile) {
		return req, nil, validationErrorf("input file not found: %s", req.InputFile)
	}

	if plan.Kind != PlanCritiqueOnly && req.Query == "" {
		req.Query = s.DefaultQuery
		notes = append(notes, "Using default query: "+req.Query)
	}

	return req, notes, nil
}
