// Package results holds stage outputs in memory and persists them to the
// results directory.
package results

import (
	"github.com/go-go-golems/agentic-research/pkg/agent"
	"github.com/go-go-golems/agentic-research/pkg/reducer"
	"github.com/huandu/go-clone"
)

// Keys of the collected outputs.
const (
	KeyContent         = "content"
	KeyCritique        = "critique"
	KeyFinalReport     = "final_report"
	KeyTokenUsage      = "token_usage"
	KeyResearchOutput  = "research_output"
	KeyCritiqueOutput  = "critique_output"
	KeyIterativeOutput = "iterative_output"
	KeyFinalOutput     = "final_report_output"
	KeyHandoff         = "handoff"
)

// StageOutput is what one stage produced.
type StageOutput struct {
	Content     string                   `json:"content"`
	Reasoning   string                   `json:"reasoning,omitempty"`
	ToolCalls   []reducer.ToolInvocation `json:"tools_used,omitempty"`
	WebSearches []string                 `json:"web_searches,omitempty"`
	Outcome     agent.Outcome            `json:"outcome"`
}

// FromResult converts a reducer result into a stage output.
func FromResult(r *reducer.Result) StageOutput {
	return StageOutput{
		Content:     r.Output,
		Reasoning:   r.Reasoning,
		ToolCalls:   r.ToolCalls,
		WebSearches: r.WebSearches,
		Outcome:     r.Outcome,
	}
}

// Store keeps the outputs of the stages of one invocation, keyed by stage
// name, plus the collected outputs exposed to persistence and callers.
// It is mutated only by the stage currently executing.
type Store struct {
	stages    map[string]StageOutput
	order     []string
	collected map[string]interface{}
}

func NewStore() *Store {
	return &Store{
		stages:    map[string]StageOutput{},
		collected: map[string]interface{}{},
	}
}

// Put stores the output of stage, replacing a previous one.
func (s *Store) Put(stage string, out StageOutput) {
	if _, ok := s.stages[stage]; !ok {
		s.order = append(s.order, stage)
	}
	s.stages[stage] = out
}

func (s *Store) Get(stage string) (StageOutput, bool) {
	out, ok := s.stages[stage]
	return out, ok
}

// Content returns the content produced by stage, empty if it did not run.
func (s *Store) Content(stage string) string {
	return s.stages[stage].Content
}

// Stages lists the stages with an output, in the order they were first stored.
func (s *Store) Stages() []string {
	return append([]string{}, s.order...)
}

func (s *Store) Set(key string, value interface{}) {
	s.collected[key] = value
}

func (s *Store) Lookup(key string) (interface{}, bool) {
	v, ok := s.collected[key]
	return v, ok
}

// Collected returns a deep copy of the collected outputs.
func (s *Store) Collected() map[string]interface{} {
	return clone.Clone(s.collected).(map[string]interface{})
}
