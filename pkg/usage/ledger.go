// Package usage keeps the token usage ledger of a workflow invocation.
//
// Every completed stage execution contributes one Record. The ledger keeps
// the ordered history together with aggregates by model and by operation,
// updated on insertion.
package usage

import (
	"time"
)

// Operation tags the stage execution a record belongs to.
type Operation string

const (
	OperationResearch        Operation = "research"
	OperationCritique        Operation = "critique"
	OperationCritiqueOnly    Operation = "critique_only"
	OperationFinalReport     Operation = "final_report"
	OperationFinalReportOnly Operation = "final_report_only"
	OperationIterative       Operation = "research_critique_iterative"
	OperationUnknown         Operation = "unknown"
)

// Counts holds the six numeric usage fields.
type Counts struct {
	Requests              int `json:"requests" yaml:"requests"`
	InputTokens           int `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens          int `json:"output_tokens" yaml:"output_tokens"`
	TotalTokens           int `json:"total_tokens" yaml:"total_tokens"`
	CachedInputTokens     int `json:"input_tokens_cached" yaml:"input_tokens_cached"`
	ReasoningOutputTokens int `json:"output_tokens_reasoning" yaml:"output_tokens_reasoning"`
}

func (c *Counts) Add(o Counts) {
	c.Requests += o.Requests
	c.InputTokens += o.InputTokens
	c.OutputTokens += o.OutputTokens
	c.TotalTokens += o.TotalTokens
	c.CachedInputTokens += o.CachedInputTokens
	c.ReasoningOutputTokens += o.ReasoningOutputTokens
}

func (c Counts) IsZero() bool {
	return c == Counts{}
}

// Record is the usage of one completed stage execution.
type Record struct {
	Model     string  `json:"model" yaml:"model"`
	Timestamp float64 `json:"timestamp" yaml:"timestamp"`
	Counts    `yaml:",inline"`
	Operation Operation `json:"operation_type" yaml:"operation_type"`
}

// NewRecord builds a record, clamping negative counts to zero. When the
// provider did not report a total, the total is input plus output.
func NewRecord(model string, op Operation, c Counts, at time.Time) Record {
	clamp := func(v int) int {
		if v < 0 {
			return 0
		}
		return v
	}
	c = Counts{
		Requests:              clamp(c.Requests),
		InputTokens:           clamp(c.InputTokens),
		OutputTokens:          clamp(c.OutputTokens),
		TotalTokens:           clamp(c.TotalTokens),
		CachedInputTokens:     clamp(c.CachedInputTokens),
		ReasoningOutputTokens: clamp(c.ReasoningOutputTokens),
	}
	if c.TotalTokens == 0 {
		c.TotalTokens = c.InputTokens + c.OutputTokens
	}
	if model == "" {
		model = "unknown"
	}
	if op == "" {
		op = OperationUnknown
	}
	return Record{
		Model:     model,
		Timestamp: float64(at.UnixNano()) / float64(time.Second),
		Counts:    c,
		Operation: op,
	}
}

// Ledger is not safe for concurrent use; it is only mutated by the stage
// currently executing.
type Ledger struct {
	history     []Record
	byModel     map[string]*Counts
	byOperation map[Operation]*Counts
	// first-seen order, used for stable reporting
	models     []string
	operations []Operation
}

func NewLedger() *Ledger {
	return &Ledger{
		history:     []Record{},
		byModel:     map[string]*Counts{},
		byOperation: map[Operation]*Counts{},
	}
}

// Record appends r to the history and updates both aggregates.
func (l *Ledger) Record(r Record) {
	l.history = append(l.history, r)

	m, ok := l.byModel[r.Model]
	if !ok {
		m = &Counts{}
		l.byModel[r.Model] = m
		l.models = append(l.models, r.Model)
	}
	m.Add(r.Counts)

	o, ok := l.byOperation[r.Operation]
	if !ok {
		o = &Counts{}
		l.byOperation[r.Operation] = o
		l.operations = append(l.operations, r.Operation)
	}
	o.Add(r.Counts)
}

// Totals sums all records in the history.
func (l *Ledger) Totals() Counts {
	ret := Counts{}
	for _, r := range l.history {
		ret.Add(r.Counts)
	}
	return ret
}

func (l *Ledger) Len() int {
	return len(l.history)
}

// Reset empties the ledger.
func (l *Ledger) Reset() {
	*l = *NewLedger()
}

// Report is a snapshot of the ledger. It shares no memory with the ledger.
type Report struct {
	TotalUsage  Counts               `json:"total_usage" yaml:"total_usage"`
	ByModel     map[string]Counts    `json:"by_model" yaml:"by_model"`
	ByOperation map[Operation]Counts `json:"by_operation" yaml:"by_operation"`
	History     []Record             `json:"detailed_history" yaml:"detailed_history"`

	// first-seen order of the ByModel and ByOperation keys
	Models     []string    `json:"model_order" yaml:"model_order"`
	Operations []Operation `json:"operation_order" yaml:"operation_order"`
}

func (l *Ledger) Report() Report {
	ret := Report{
		TotalUsage:  l.Totals(),
		ByModel:     make(map[string]Counts, len(l.byModel)),
		ByOperation: make(map[Operation]Counts, len(l.byOperation)),
		History:     append([]Record{}, l.history...),
		Models:      append([]string{}, l.models...),
		Operations:  append([]Operation{}, l.operations...),
	}
	for k, v := range l.byModel {
		ret.ByModel[k] = *v
	}
	for k, v := range l.byOperation {
		ret.ByOperation[k] = *v
	}
	return ret
}
