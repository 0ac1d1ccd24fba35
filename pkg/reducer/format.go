package reducer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-go-golems/agentic-research/pkg/usage"
)

const (
	ToolVerifyURL         = "verify_url"
	ToolReadWikiStructure = "read_wiki_structure"
	ToolReadWikiContents  = "read_wiki_contents"
	ToolAskQuestion       = "ask_question"
)

func isDocumentationTool(name string) bool {
	switch name {
	case ToolReadWikiStructure, ToolReadWikiContents, ToolAskQuestion:
		return true
	}
	return false
}

func stringField(m map[string]interface{}, key, fallback string) string {
	if v, ok := m[key]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return fallback
}

// FormatToolCall renders a completed function call for display. The second
// return value is the notice kind: documentation lookups are shown as MCP
// calls, everything else as plain tool calls.
func FormatToolCall(name, arguments string) (string, NoticeKind) {
	var args map[string]interface{}
	parsed := json.Unmarshal([]byte(arguments), &args) == nil && args != nil

	switch {
	case name == ToolVerifyURL:
		if !parsed {
			return fmt.Sprintf("%s(%s)", name, arguments), NoticeToolCall
		}
		return fmt.Sprintf("%s(%s)", name, stringField(args, "url", "unknown URL")), NoticeToolCall

	case isDocumentationTool(name):
		if !parsed {
			return fmt.Sprintf("%s(%s)", name, arguments), NoticeMCPCall
		}
		repo := stringField(args, "repoName", "unknown repo")
		if name == ToolAskQuestion {
			question := stringField(args, "question", "unknown question")
			return fmt.Sprintf("%s(%s: '%s')", name, repo, question), NoticeMCPCall
		}
		return fmt.Sprintf("%s(%s)", name, repo), NoticeMCPCall
	}

	return fmt.Sprintf("%s(%s)", name, arguments), NoticeToolCall
}

// SummarizeCode renders executed code: short snippets are joined on one
// line, longer ones are cut to the first line plus the line count.
func SummarizeCode(code string) string {
	lines := strings.Split(strings.TrimSpace(code), "\n")
	if len(lines) <= 3 {
		return strings.Join(lines, " | ")
	}
	return fmt.Sprintf("%s... (%d lines)", lines[0], len(lines))
}

// SearchLabel is the display label of a web search for an operation.
func SearchLabel(op usage.Operation) string {
	if op == usage.OperationCritique {
		return "Fact-checking"
	}
	return "Web search"
}
