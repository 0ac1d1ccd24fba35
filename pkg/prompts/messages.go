package prompts

import (
	"bytes"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
)

const critiqueMessageTemplate = `Please critique the following research report for the original query: {{ .Query | squote }}

Research Content:
{{ .Research }}

Provide a comprehensive critique analyzing factual accuracy, source quality, completeness, and any gaps or biases.`

const finalReportMessageTemplate = `Please create a comprehensive final markdown report that synthesizes the research findings and critique analysis.

Original Research Query: {{ .Query | squote }}

RESEARCH CONTENT:
{{ .Research }}

CRITIQUE ANALYSIS:
{{ .Critique | default "No critique was performed for this research." }}
{{- if .UsageSummary }}

TOKEN USAGE SO FAR:
{{ .UsageSummary }}
{{- end }}

IMPORTANT: The token usage statistics list every model used in this workflow (e.g. {{ .Models | join ", " }}) with their token counts. You MUST:

1. Extract ALL model names and their token usage from the token usage statistics
2. Use web search to get pricing from https://platform.openai.com/docs/pricing for each model
3. Use code interpreter to calculate costs for ALL models found in the statistics
4. Create a comprehensive cost breakdown table showing each model, token types, and costs

Create a professional, well-formatted markdown report that integrates the research findings with the critique insights and accurate cost calculations for ALL models to provide maximum value to the reader.`

var (
	critiqueTmpl    = template.Must(template.New("critique").Funcs(sprig.TxtFuncMap()).Parse(critiqueMessageTemplate))
	finalReportTmpl = template.Must(template.New("final-report").Funcs(sprig.TxtFuncMap()).Parse(finalReportMessageTemplate))
)

func render(tmpl *template.Template, data interface{}) (string, error) {
	buf := &bytes.Buffer{}
	if err := tmpl.Execute(buf, data); err != nil {
		return "", errors.Wrapf(err, "failed to render %s message", tmpl.Name())
	}
	return buf.String(), nil
}

// CritiqueMessage is the input of the critique agent.
func CritiqueMessage(query, research string) (string, error) {
	return render(critiqueTmpl, struct {
		Query    string
		Research string
	}{query, research})
}

// FinalReportInput is what the final report stage composes its message from.
type FinalReportInput struct {
	Query    string
	Research string
	Critique string
	// UsageSummary is the ledger section at the time the stage starts.
	UsageSummary string
	Models       []string
}

func FinalReportMessage(in FinalReportInput) (string, error) {
	if len(in.Models) == 0 {
		in.Models = []string{"o4-mini-deep-research", "o4-mini"}
	}
	return render(finalReportTmpl, in)
}
