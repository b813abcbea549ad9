// Package printer writes human-facing command output. Status lines are
// styled with lipgloss when the destination is a terminal and plain
// otherwise.
package printer

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"
)

type ctxKey struct{}

// Printer writes status lines and tables to a single writer.
type Printer struct {
	w     io.Writer
	links bool

	success lipgloss.Style
	info    lipgloss.Style
	warn    lipgloss.Style
	err     lipgloss.Style
	muted   lipgloss.Style
	bold    lipgloss.Style
}

// New creates a Printer for w. Hyperlinks are only emitted when w is a
// terminal.
func New(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)

	p := &Printer{
		w:       w,
		links:   isTerminal(w),
		success: r.NewStyle().Foreground(lipgloss.Color("#9ece6a")),
		info:    r.NewStyle().Foreground(lipgloss.Color("#7aa2f7")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("#e0af68")),
		err:     r.NewStyle().Foreground(lipgloss.Color("#f7768e")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("#565f89")),
		bold:    r.NewStyle().Bold(true),
	}
	return p
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// NewContext returns a copy of ctx carrying p.
func NewContext(ctx context.Context, p *Printer) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// Ctx returns the Printer stored in ctx, or one writing to stderr.
func Ctx(ctx context.Context) *Printer {
	if p, ok := ctx.Value(ctxKey{}).(*Printer); ok && p != nil {
		return p
	}
	return New(os.Stderr)
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer {
	return p.w
}

func (p *Printer) line(prefix string, style lipgloss.Style, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	_, _ = fmt.Fprintln(p.w, style.Render(prefix)+" "+msg)
}

// Successf prints a line marked as succeeded.
func (p *Printer) Successf(format string, args ...any) {
	p.line("✓", p.success, format, args...)
}

// Infof prints an informational line.
func (p *Printer) Infof(format string, args ...any) {
	p.line("•", p.info, format, args...)
}

// Warnf prints a warning line.
func (p *Printer) Warnf(format string, args ...any) {
	p.line("!", p.warn, format, args...)
}

// Errorf prints an error line. It does not return an error.
func (p *Printer) Errorf(format string, args ...any) {
	p.line("✗", p.err, format, args...)
}

// Printf prints an unmarked line.
func (p *Printer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintln(p.w, fmt.Sprintf(format, args...))
}

// Section prints a bold heading.
func (p *Printer) Section(title string) {
	_, _ = fmt.Fprintln(p.w, p.bold.Render(title))
}

// KV prints an indented key/value pair.
func (p *Printer) KV(key string, value any) {
	_, _ = fmt.Fprintf(p.w, "  %s %v\n", p.muted.Render(key+":"), value)
}

// Muted renders s in the muted color.
func (p *Printer) Muted(s string) string {
	return p.muted.Render(s)
}

// Link wraps text in an OSC 8 hyperlink to url when the output supports it.
func (p *Printer) Link(url, text string) string {
	if !p.links || url == "" {
		return text
	}
	return ansi.SetHyperlink(url) + text + ansi.ResetHyperlink()
}

// Truncate shortens s to at most width cells, ending with an ellipsis when
// anything was cut.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = strings.Join(strings.Fields(s), " ")
	if ansi.StringWidth(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "…")
}
