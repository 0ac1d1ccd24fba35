package events

type InputTokensDetails struct {
	CachedTokens int `json:"cached_tokens" yaml:"cached_tokens" mapstructure:"cached_tokens"`
}

type OutputTokensDetails struct {
	ReasoningTokens int `json:"reasoning_tokens" yaml:"reasoning_tokens" mapstructure:"reasoning_tokens"`
}

// Usage is the token usage reported for one or more model responses.
// Requests counts the responses that contributed to it; zero means unknown.
type Usage struct {
	Requests            int                  `json:"requests,omitempty" yaml:"requests,omitempty" mapstructure:"requests,omitempty"`
	InputTokens         int                  `json:"input_tokens" yaml:"input_tokens" mapstructure:"input_tokens"`
	OutputTokens        int                  `json:"output_tokens" yaml:"output_tokens" mapstructure:"output_tokens"`
	TotalTokens         int                  `json:"total_tokens" yaml:"total_tokens" mapstructure:"total_tokens"`
	InputTokensDetails  *InputTokensDetails  `json:"input_tokens_details,omitempty" yaml:"input_tokens_details,omitempty" mapstructure:"input_tokens_details,omitempty"`
	OutputTokensDetails *OutputTokensDetails `json:"output_tokens_details,omitempty" yaml:"output_tokens_details,omitempty" mapstructure:"output_tokens_details,omitempty"`
}

func (u *Usage) CachedTokens() int {
	if u == nil || u.InputTokensDetails == nil {
		return 0
	}
	return u.InputTokensDetails.CachedTokens
}

func (u *Usage) ReasoningTokens() int {
	if u == nil || u.OutputTokensDetails == nil {
		return 0
	}
	return u.OutputTokensDetails.ReasoningTokens
}

// Add accumulates o into u, counting o as a single request when it does
// not report its own request count.
func (u *Usage) Add(o *Usage) {
	if o == nil {
		return
	}
	requests := o.Requests
	if requests == 0 {
		requests = 1
	}
	u.Requests += requests
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.TotalTokens += o.TotalTokens
	if c := o.CachedTokens(); c > 0 {
		if u.InputTokensDetails == nil {
			u.InputTokensDetails = &InputTokensDetails{}
		}
		u.InputTokensDetails.CachedTokens += c
	}
	if r := o.ReasoningTokens(); r > 0 {
		if u.OutputTokensDetails == nil {
			u.OutputTokensDetails = &OutputTokensDetails{}
		}
		u.OutputTokensDetails.ReasoningTokens += r
	}
}
