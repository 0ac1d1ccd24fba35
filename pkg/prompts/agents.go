// Package prompts defines the research, critique and final report agents
// and the messages the workflow sends them.
package prompts

import (
	"github.com/go-go-golems/agentic-research/pkg/agent"
)

const (
	ResearchAgentName    = "ResearchAgent"
	CritiqueAgentName    = "CritiqueAgent"
	FinalReportAgentName = "FinalReportAgent"

	VerifyURLTool = "verify_url"
)

const researchInstructions = `You are a professional researcher preparing a structured, data-driven report for the user's query.

If you receive critique feedback, address the specific gaps it identifies and build on the earlier research instead of starting over.

Ground the report in data: specific figures, trends, statistics and measurable outcomes, preferably from original sources. Point out data that would work well as a chart or table. Prefer reliable, current sources such as peer-reviewed research, vendor data and certified testing labs, and cross-check vendor claims that look too general or too good to be true.

Include inline citations with source metadata. List GitHub repositories by name (e.g. "GitHub repositories: facebook/react, openai/openai-python") in a separate section.

Use web search for current information and the code interpreter to analyze data or check calculations.`

const critiqueInstructions = `You are an expert fact checker focused on factual discrepancies and nuances. Distinguish carefully between claims, the links that supposedly support them and the underlying sources. Watch for claims about products unrelated to the query and for incomplete compliance coverage.

Use the verify_url tool on every API endpoint and cited URL you can, to check that it exists and is reachable.

For every GitHub repository mentioned (a name like "facebook/react" or a github.com URL) use the DeepWiki tools: ask_question for what the repository is about, then again for the technical details relevant to the query. If those tools fail or time out, say so in the critique and continue.

Use web search to verify claims where needed.

Assess factual accuracy, source quality and reliability, completeness relative to the query, biases and gaps, quantitative data, and the accessibility of cited URLs.`

const critiqueHandoffInstructions = `

If the research has significant gaps or quality problems, call transfer_to_research_agent with specific guidance on what needs more research. Otherwise give your critique and finish.`

const finalReportInstructions = `You are a professional report writer. Synthesize the research findings and the critique into one polished markdown report.

The report integrates the best findings with the critique's insights, corrects the errors and gaps the critique identified, keeps sources and citations, and states its methodology and limitations.

Cost analysis: look up current pricing for every model listed in the token usage statistics at https://platform.openai.com/docs/pricing using web search, without mapping model names to other models. Compute the costs with the code interpreter, accounting for input, output, cached input and reasoning tokens, and present a table per model and operation with a grand total.

Structure: title, Executive Summary, Research Methodology, Key Findings, Critical Analysis, Conclusions and Recommendations, Sources and References, Limitations and Considerations, Cost Analysis. Use headers, lists, tables, code formatting for endpoints and proper links.`

// ResearchAgent creates a fresh research agent.
func ResearchAgent(model string, maxTurns int) *agent.Spec {
	return &agent.Spec{
		Name:         ResearchAgentName,
		Instructions: researchInstructions,
		Model:        model,
		MaxTurns:     maxTurns,
		HostedTools: []agent.HostedTool{
			agent.HostedToolWebSearch,
			agent.HostedToolCodeInterpreter,
		},
		HandoffDescription: "Performs additional web research following the critique's guidance.",
	}
}

// CritiqueAgent creates the critique agent. When research is not nil the
// critique agent may hand control to it.
func CritiqueAgent(model string, maxTurns int, servers []agent.ToolServer, research *agent.Spec) *agent.Spec {
	ret := &agent.Spec{
		Name:          CritiqueAgentName,
		Instructions:  critiqueInstructions,
		Model:         model,
		MaxTurns:      maxTurns,
		HostedTools:   []agent.HostedTool{agent.HostedToolWebSearch},
		FunctionTools: []string{VerifyURLTool},
		ToolServers:   servers,
	}
	if research != nil {
		ret.Instructions += critiqueHandoffInstructions
		ret.Handoffs = []*agent.Spec{research}
	}
	return ret
}

func FinalReportAgent(model string, maxTurns int) *agent.Spec {
	return &agent.Spec{
		Name:         FinalReportAgentName,
		Instructions: finalReportInstructions,
		Model:        model,
		MaxTurns:     maxTurns,
		HostedTools: []agent.HostedTool{
			agent.HostedToolCodeInterpreter,
			agent.HostedToolWebSearch,
		},
	}
}
