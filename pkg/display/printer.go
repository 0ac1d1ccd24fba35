package display

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/agentic-research/pkg/reducer"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
)

const outputRule = 80

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	if s, ok := w.(*SyncWriter); ok {
		w = s.w
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Printer renders notices as console text. Stage outputs are rendered as
// markdown when markdown rendering is enabled.
type Printer struct {
	mu       sync.Mutex
	w        io.Writer
	markdown bool
	style    string
	width    int
	renderer *glamour.TermRenderer
}

var _ reducer.Display = &Printer{}

type PrinterOption func(*Printer)

func WithMarkdown(enabled bool) PrinterOption {
	return func(p *Printer) {
		p.markdown = enabled
	}
}

// WithStyle selects the glamour style used for markdown, "auto" by default.
func WithStyle(style string) PrinterOption {
	return func(p *Printer) {
		p.style = style
	}
}

func WithWordWrap(width int) PrinterOption {
	return func(p *Printer) {
		p.width = width
	}
}

// NewPrinter creates a printer writing to w. Markdown rendering defaults
// to on when w is a terminal.
func NewPrinter(w io.Writer, options ...PrinterOption) *Printer {
	ret := &Printer{
		w:        w,
		markdown: IsTerminal(w),
		style:    "auto",
		width:    100,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func (p *Printer) Show(_ context.Context, n reducer.Notice) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := io.WriteString(p.w, p.format(n))
	return err
}

// Handle is the router handler of the printer.
func (p *Printer) Handle(msg *message.Message) error {
	defer msg.Ack()
	n, err := decodeNotice(msg)
	if err != nil {
		log.Warn().Err(err).Str("message_id", msg.UUID).Msg("Dropping undecodable notice")
		return nil
	}
	return p.Show(msg.Context(), n)
}

func (p *Printer) renderMarkdown(text string) string {
	if !p.markdown {
		return text
	}
	if p.renderer == nil {
		options := []glamour.TermRendererOption{glamour.WithWordWrap(p.width)}
		if p.style == "auto" {
			options = append(options, glamour.WithAutoStyle())
		} else {
			options = append(options, glamour.WithStandardStyle(p.style))
		}
		r, err := glamour.NewTermRenderer(options...)
		if err != nil {
			log.Warn().Err(err).Msg("Could not create markdown renderer, printing raw markdown")
			p.markdown = false
			return text
		}
		p.renderer = r
	}
	out, err := p.renderer.Render(text)
	if err != nil {
		log.Warn().Err(err).Msg("Could not render markdown")
		return text
	}
	return out
}

func (p *Printer) format(n reducer.Notice) string {
	if n.Kind == reducer.NoticeOutput && p.markdown {
		n.Text = strings.TrimRight(p.renderMarkdown(n.Text), "\n")
	}
	return Format(n)
}

// Format renders a notice as plain console text, without markdown.
func Format(n reducer.Notice) string {
	switch n.Kind {
	case reducer.NoticeStreamStarted:
		return fmt.Sprintf("\n%s\n", n.Text)
	case reducer.NoticeHandoff:
		return fmt.Sprintf("\n🔄 Handoff to: %s\n", n.Text)
	case reducer.NoticeWebSearch:
		return fmt.Sprintf("\n🔍 [%s]: %s\n", n.Label, n.Text)
	case reducer.NoticeReasoningStarted:
		return "\n💭 [REASONING]: thinking"
	case reducer.NoticeReasoningDone:
		return " ✓\n"
	case reducer.NoticeReasoningSummary:
		var sb strings.Builder
		for _, l := range n.Lines {
			fmt.Fprintf(&sb, "   %s\n", l)
		}
		return sb.String()
	case reducer.NoticeCodeInterpreter:
		return fmt.Sprintf("\n⚙️  [CODE]: %s\n", n.Text)
	case reducer.NoticeToolCall:
		return fmt.Sprintf("\n🔧 [TOOL]: %s\n", n.Text)
	case reducer.NoticeMCPCall:
		return fmt.Sprintf("\n📚 [DOCS]: %s\n", n.Text)
	case reducer.NoticeToolProgress:
		return n.Text
	case reducer.NoticeReasoningTokens:
		return fmt.Sprintf("\n💭 %s\n", n.Text)
	case reducer.NoticeTokenUsage:
		return fmt.Sprintf("🎯 %s\n", n.Text)
	case reducer.NoticeDebugLogSaved:
		return fmt.Sprintf("💾 %s\n", n.Text)
	case reducer.NoticeMode:
		return fmt.Sprintf("\n🔬 %s\n%s\n", n.Text, strings.Repeat("-", len([]rune(n.Text))+3))
	case reducer.NoticeInfo:
		return fmt.Sprintf("ℹ️  %s\n", n.Text)
	case reducer.NoticeSuccess:
		return fmt.Sprintf("✅ %s\n", n.Text)
	case reducer.NoticeWarning:
		return fmt.Sprintf("⚠️  %s\n", n.Text)
	case reducer.NoticeOutput:
		rule := strings.Repeat("=", outputRule)
		return fmt.Sprintf("\n%s\n%s\n%s\n%s\n%s\n", rule, n.Label, rule, n.Text, rule)
	default:
		if n.Text == "" {
			return ""
		}
		return n.Text + "\n"
	}
}
