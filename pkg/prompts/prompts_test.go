package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCritiqueMessage(t *testing.T) {
	msg, err := CritiqueMessage("Q", "Claim X")
	require.NoError(t, err)
	assert.Equal(t, "Please critique the following research report for the original query: 'Q'\n\n"+
		"Research Content:\nClaim X\n\n"+
		"Provide a comprehensive critique analyzing factual accuracy, source quality, completeness, and any gaps or biases.", msg)
}

func TestFinalReportMessage(t *testing.T) {
	msg, err := FinalReportMessage(FinalReportInput{
		Query:        "Q",
		Research:     "R1",
		Critique:     "C1",
		UsageSummary: "## Token Usage Statistics",
		Models:       []string{"o4-mini-deep-research", "o3-pro"},
	})
	require.NoError(t, err)
	assert.Contains(t, msg, "Original Research Query: 'Q'")
	assert.Contains(t, msg, "RESEARCH CONTENT:\nR1\n\nCRITIQUE ANALYSIS:\nC1\n\nTOKEN USAGE SO FAR:\n## Token Usage Statistics\n")
	assert.Contains(t, msg, "(e.g. o4-mini-deep-research, o3-pro)")

	msg, err = FinalReportMessage(FinalReportInput{Query: "Q", Research: "R1"})
	require.NoError(t, err)
	assert.Contains(t, msg, "CRITIQUE ANALYSIS:\nNo critique was performed for this research.\n\nIMPORTANT")
	assert.NotContains(t, msg, "TOKEN USAGE SO FAR")
}

func TestAgents(t *testing.T) {
	research := ResearchAgent("o4-mini-deep-research", 15)
	assert.Equal(t, ResearchAgentName, research.Name)
	assert.Empty(t, research.Handoffs)

	standalone := CritiqueAgent("o3-pro", 25, nil, nil)
	assert.Empty(t, standalone.Handoffs)
	assert.NotContains(t, standalone.Instructions, "transfer_to_research_agent")
	assert.Equal(t, []string{VerifyURLTool}, standalone.FunctionTools)

	iterative := CritiqueAgent("o3-pro", 25, nil, research)
	require.Len(t, iterative.Handoffs, 1)
	assert.Same(t, research, iterative.Handoffs[0])
	assert.Contains(t, iterative.Instructions, "transfer_to_research_agent")

	final := FinalReportAgent("o4-mini", 15)
	assert.Equal(t, 15, final.MaxTurns)
}
