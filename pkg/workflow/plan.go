package workflow

import (
	"github.com/go-go-golems/agentic-research/pkg/usage"
)

// Stage is the failure tag of a workflow invocation. A stage error carries
// the stage that was executing, anything else is general.
type Stage string

const (
	StageResearch    Stage = "research"
	StageCritique    Stage = "critique"
	StageFinalReport Stage = "final_report"
	StageGeneral     Stage = "general"
)

// Flags are the mode flags of one invocation.
type Flags struct {
	Critique        bool `yaml:"critique"`
	CritiqueOnly    bool `yaml:"critique_only"`
	FinalReport     bool `yaml:"final_report"`
	FinalReportOnly bool `yaml:"final_report_only"`
	Iterative       bool `yaml:"iterative"`
}

type PlanKind string

const (
	PlanFinalReportOnly      PlanKind = "final-report-only"
	PlanCritiqueOnly         PlanKind = "critique-only"
	PlanIterative            PlanKind = "iterative"
	PlanResearchThenCritique PlanKind = "research-then-critique"
	PlanResearchThenReport   PlanKind = "research-then-report"
	PlanResearchOnly         PlanKind = "research-only"
)

// Step is one stage of a plan, with the operation its usage and raw event
// log are attributed to.
type Step struct {
	Stage     Stage           `yaml:"stage"`
	Operation usage.Operation `yaml:"operation"`
}

// Plan is the ordered set of stages selected for one invocation.
type Plan struct {
	Kind  PlanKind `yaml:"plan"`
	Steps []Step   `yaml:"steps"`
}

// Stages lists the stages of the plan in execution order.
func (p Plan) Stages() []Stage {
	ret := make([]Stage, 0, len(p.Steps))
	for _, s := range p.Steps {
		ret = append(ret, s.Stage)
	}
	return ret
}

func (p Plan) Has(stage Stage) bool {
	for _, s := range p.Steps {
		if s.Stage == stage {
			return true
		}
	}
	return false
}

var (
	researchStep          = Step{Stage: StageResearch, Operation: usage.OperationResearch}
	critiqueStep          = Step{Stage: StageCritique, Operation: usage.OperationCritique}
	critiqueOnlyStep      = Step{Stage: StageCritique, Operation: usage.OperationCritiqueOnly}
	iterativeCritiqueStep = Step{Stage: StageCritique, Operation: usage.OperationIterative}
	finalReportStep       = Step{Stage: StageFinalReport, Operation: usage.OperationFinalReport}
	finalReportOnlyStep   = Step{Stage: StageFinalReport, Operation: usage.OperationFinalReportOnly}
)

// SelectPlan maps mode flags to exactly one plan. Flags are evaluated in
// precedence order: final-report-only, critique-only, iterative critique,
// critique, final report.
func SelectPlan(f Flags) Plan {
	withReport := func(kind PlanKind, steps ...Step) Plan {
		if f.FinalReport {
			steps = append(steps, finalReportStep)
		}
		return Plan{Kind: kind, Steps: steps}
	}

	switch {
	case f.FinalReportOnly:
		return Plan{Kind: PlanFinalReportOnly, Steps: []Step{finalReportOnlyStep}}
	case f.CritiqueOnly:
		return Plan{Kind: PlanCritiqueOnly, Steps: []Step{critiqueOnlyStep}}
	case f.Iterative && f.Critique:
		return withReport(PlanIterative, researchStep, iterativeCritiqueStep)
	case f.Critique:
		return withReport(PlanResearchThenCritique, researchStep, critiqueStep)
	case f.FinalReport:
		return Plan{Kind: PlanResearchThenReport, Steps: []Step{researchStep, finalReportStep}}
	default:
		return Plan{Kind: PlanResearchOnly, Steps: []Step{researchStep}}
	}
}
