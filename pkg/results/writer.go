package results

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-go-golems/agentic-research/pkg/reducer"
	"github.com/go-go-golems/agentic-research/pkg/usage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	ResearchTextFile = "research_results.txt"
	ResearchJSONFile = "research_results.json"
	CritiqueFile     = "critique_results.txt"
	FinalReportFile  = "final_report.md"
	TokenUsageFile   = "token_usage.json"

	headerTimeFormat = "2006-01-02 15:04:05"
)

// ResearchDocument is the JSON form of the research results.
type ResearchDocument struct {
	Query       string                   `json:"query"`
	Timestamp   string                   `json:"timestamp"`
	Content     string                   `json:"content"`
	Reasoning   string                   `json:"reasoning"`
	ToolsUsed   []reducer.ToolInvocation `json:"tools_used"`
	WebSearches []string                 `json:"web_searches"`
	Sources     []string                 `json:"sources"`
	TokenUsage  usage.Report             `json:"token_usage"`
}

// Writer persists stage outputs to a results directory. Every file is
// overwritten on each invocation.
type Writer struct {
	dir string
	now func() time.Time
}

type WriterOption func(*Writer)

func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) {
		w.now = now
	}
}

func NewWriter(dir string, options ...WriterOption) *Writer {
	ret := &Writer{
		dir: dir,
		now: time.Now,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func (w *Writer) Dir() string {
	return w.dir
}

func (w *Writer) Path(name string) string {
	return filepath.Join(w.dir, name)
}

func fileHeader(title, query string, at time.Time) string {
	return fmt.Sprintf("%s: %s\nGenerated: %s\n%s\n\n", title, query, at.Format(headerTimeFormat), strings.Repeat("=", 50))
}

func (w *Writer) writeFile(name string, data []byte) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create results directory %s", w.dir)
	}
	path := w.Path(name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "failed to write %s", path)
	}
	log.Debug().Str("path", path).Int("bytes", len(data)).Msg("Wrote results file")
	return path, nil
}

func marshalJSON(v interface{}) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WithStats appends the ledger section to content.
func WithStats(content string, report usage.Report, finalReport bool) string {
	return content + "\n\n" + report.MarkdownSection(finalReport)
}

// SaveResearch writes research_results.txt and research_results.json and
// returns the JSON document.
func (w *Writer) SaveResearch(query string, out StageOutput, report usage.Report) (*ResearchDocument, error) {
	now := w.now()
	content := WithStats(out.Content, report, false)

	if _, err := w.writeFile(ResearchTextFile, []byte(fileHeader("Research Query", query, now)+content)); err != nil {
		return nil, err
	}

	toolsUsed := out.ToolCalls
	if toolsUsed == nil {
		toolsUsed = []reducer.ToolInvocation{}
	}
	webSearches := out.WebSearches
	if webSearches == nil {
		webSearches = []string{}
	}
	doc := &ResearchDocument{
		Query:       query,
		Timestamp:   now.Format(time.RFC3339),
		Content:     content,
		Reasoning:   out.Reasoning,
		ToolsUsed:   toolsUsed,
		WebSearches: webSearches,
		Sources:     ExtractSources(out.Content),
		TokenUsage:  report,
	}
	b, err := marshalJSON(doc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode research results")
	}
	if _, err := w.writeFile(ResearchJSONFile, b); err != nil {
		return nil, err
	}
	return doc, nil
}

// mergeIntoResearchJSON updates fields of an existing research JSON file,
// keeping all other fields. A missing file is not an error.
func (w *Writer) mergeIntoResearchJSON(fields map[string]interface{}) error {
	path := w.Path(ResearchJSONFile)
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", path)
	}
	data := map[string]interface{}{}
	if err := json.Unmarshal(b, &data); err != nil {
		return errors.Wrapf(err, "failed to parse %s", path)
	}
	for k, v := range fields {
		data[k] = v
	}
	b, err = marshalJSON(data)
	if err != nil {
		return errors.Wrap(err, "failed to encode research results")
	}
	_, err = w.writeFile(ResearchJSONFile, b)
	return err
}

// SaveCritique writes critique_results.txt and merges the critique into the
// research JSON if present. It returns the critique with statistics.
func (w *Writer) SaveCritique(query, critique string, report usage.Report) (string, error) {
	now := w.now()
	content := WithStats(critique, report, false)
	if _, err := w.writeFile(CritiqueFile, []byte(fileHeader("Critique for Query", query, now)+content)); err != nil {
		return "", err
	}
	err := w.mergeIntoResearchJSON(map[string]interface{}{
		"critique":           content,
		"critique_timestamp": now.Format(time.RFC3339),
		"token_usage":        report,
	})
	return content, err
}

// SaveFinalReport writes final_report.md and merges the report into the
// research JSON if present.
func (w *Writer) SaveFinalReport(query, report string, ledger usage.Report) (string, error) {
	now := w.now()
	content := WithStats(report, ledger, true)

	sb := &strings.Builder{}
	sb.WriteString("# Final Research Report\n\n")
	fmt.Fprintf(sb, "**Original Query:** %s\n\n", query)
	fmt.Fprintf(sb, "**Generated:** %s\n\n", now.Format(headerTimeFormat))
	sb.WriteString("---\n\n")
	sb.WriteString(content)

	if _, err := w.writeFile(FinalReportFile, []byte(sb.String())); err != nil {
		return "", err
	}
	err := w.mergeIntoResearchJSON(map[string]interface{}{
		"final_report":           content,
		"final_report_timestamp": now.Format(time.RFC3339),
		"token_usage":            ledger,
	})
	return content, err
}

func (w *Writer) SaveTokenUsage(report usage.Report) (string, error) {
	b, err := marshalJSON(report)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode token usage")
	}
	return w.writeFile(TokenUsageFile, b)
}

// LoadContent reads a content file. JSON files contribute their content
// field when they have one.
func LoadContent(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Errorf("input file not found: %s", path)
		}
		return "", errors.Wrapf(err, "failed to read %s", path)
	}
	content := string(b)

	if strings.HasSuffix(path, ".json") {
		var doc struct {
			Content *string `json:"content"`
		}
		if err := json.Unmarshal(b, &doc); err == nil && doc.Content != nil {
			return *doc.Content, nil
		}
	}
	return content, nil
}
