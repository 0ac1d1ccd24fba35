package agent

type OutcomeKind string

const (
	OutcomeCompleted OutcomeKind = "completed"
	OutcomeDelegated OutcomeKind = "delegated"
)

// Outcome is the result of one stage execution. A delegated outcome's Text
// is the output of the agent that received control.
type Outcome struct {
	Kind        OutcomeKind `json:"kind"`
	Text        string      `json:"text"`
	DelegatedTo string      `json:"delegated_to,omitempty"`
	Guidance    string      `json:"guidance,omitempty"`
}

func Completed(text string) Outcome {
	return Outcome{Kind: OutcomeCompleted, Text: text}
}

func DelegatedTo(agent, guidance, text string) Outcome {
	return Outcome{
		Kind:        OutcomeDelegated,
		Text:        text,
		DelegatedTo: agent,
		Guidance:    guidance,
	}
}

func (o Outcome) Delegated() bool {
	return o.Kind == OutcomeDelegated
}
