package usage

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	markdownHeader            = "## Token Usage Statistics"
	markdownHeaderFinalReport = "## Token Usage Statistics (not included in cost estimates)"
)

func comma(v int) string {
	return humanize.Comma(int64(v))
}

func breakdown(c Counts) string {
	parts := []string{}
	if c.CachedInputTokens > 0 {
		parts = append(parts, comma(c.CachedInputTokens)+" cached")
	}
	if c.ReasoningOutputTokens > 0 {
		parts = append(parts, comma(c.ReasoningOutputTokens)+" reasoning")
	}
	if len(parts) == 0 {
		return ""
	}
	return ", " + strings.Join(parts, ", ")
}

// MarkdownSection renders the report as the statistics section appended to
// persisted stage outputs. The final report variant labels the numbers as
// excluded from the report's own cost estimate.
func (r Report) MarkdownSection(finalReport bool) string {
	header := markdownHeader
	if finalReport {
		header = markdownHeaderFinalReport
	}

	t := r.TotalUsage
	lines := []string{
		header,
		"",
		fmt.Sprintf("**Total Usage:** %s tokens (%s input, %s output)",
			comma(t.TotalTokens), comma(t.InputTokens), comma(t.OutputTokens)),
	}
	if t.CachedInputTokens > 0 {
		lines = append(lines, "**Cached Tokens:** "+comma(t.CachedInputTokens))
	}
	if t.ReasoningOutputTokens > 0 {
		lines = append(lines, "**Reasoning Tokens:** "+comma(t.ReasoningOutputTokens))
	}
	lines = append(lines,
		"**Total Requests:** "+comma(t.Requests),
		"",
		"### By Model:",
	)
	for _, m := range r.Models {
		c := r.ByModel[m]
		lines = append(lines, fmt.Sprintf("- **%s:** %s tokens (%s requests%s)",
			m, comma(c.TotalTokens), comma(c.Requests), breakdown(c)))
	}
	lines = append(lines, "", "### By Operation:")
	for _, o := range r.Operations {
		c := r.ByOperation[o]
		lines = append(lines, fmt.Sprintf("- **%s:** %s tokens (%s requests%s)",
			o, comma(c.TotalTokens), comma(c.Requests), breakdown(c)))
	}

	return strings.Join(lines, "\n")
}

// WriteSummary prints the human readable summary shown at the end of a
// verbose run.
func (r Report) WriteSummary(w io.Writer) {
	t := r.TotalUsage
	fmt.Fprintln(w, "\n📊 Token Usage Summary")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintf(w, "Overall: %s tokens (%s input, %s output)\n",
		comma(t.TotalTokens), comma(t.InputTokens), comma(t.OutputTokens))
	fmt.Fprintf(w, "Cached tokens: %s\n", comma(t.CachedInputTokens))
	fmt.Fprintf(w, "Reasoning tokens: %s\n", comma(t.ReasoningOutputTokens))
	fmt.Fprintf(w, "Total requests: %s\n", comma(t.Requests))

	fmt.Fprintln(w, "\nBy Model:")
	for _, m := range r.Models {
		c := r.ByModel[m]
		fmt.Fprintf(w, "  %s: %s tokens (%s requests%s)\n", m, comma(c.TotalTokens), comma(c.Requests), breakdown(c))
	}
	fmt.Fprintln(w, "\nBy Operation:")
	for _, o := range r.Operations {
		c := r.ByOperation[o]
		fmt.Fprintf(w, "  %s: %s tokens (%s requests%s)\n", o, comma(c.TotalTokens), comma(c.Requests), breakdown(c))
	}
}
