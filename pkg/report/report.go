// Package report renders manifest run reports and validation failures for
// the terminal.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/jiav/pkg/manifest"
)

var (
	colorGreen = lipgloss.Color("42")
	colorRed   = lipgloss.Color("196")
	colorDim   = lipgloss.Color("240")
	colorCyan  = lipgloss.Color("51")

	okStyle      = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	failStyle    = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
	headingStyle = lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
)

// Options controls rendering. Width 0 disables line truncation.
type Options struct {
	Color bool
	Width int
}

type printer struct {
	w    io.Writer
	opts Options
}

// seg is a run of text rendered in one style.
type seg struct {
	style *lipgloss.Style
	text  string
}

func plain(s string) seg                        { return seg{text: s} }
func styled(style lipgloss.Style, s string) seg { return seg{style: &style, text: s} }

// line writes segs indented by indent. The plain text is cut to the width
// budget first and only then painted, so escapes are never split.
func (p printer) line(indent int, segs ...seg) {
	if p.opts.Width > 0 {
		segs = truncate(segs, p.opts.Width-indent)
	}
	var b strings.Builder
	b.WriteString(strings.Repeat(" ", indent))
	for _, s := range segs {
		if s.style != nil && p.opts.Color {
			b.WriteString(s.style.Render(s.text))
		} else {
			b.WriteString(s.text)
		}
	}
	fmt.Fprintln(p.w, b.String())
}

func truncate(segs []seg, budget int) []seg {
	if budget < 1 {
		budget = 1
	}
	total := 0
	for _, s := range segs {
		total += runewidth.StringWidth(s.text)
	}
	if total <= budget {
		return segs
	}
	remaining := budget - runewidth.StringWidth("…")
	out := make([]seg, 0, len(segs)+1)
	for _, s := range segs {
		w := runewidth.StringWidth(s.text)
		if w <= remaining {
			out = append(out, s)
			remaining -= w
			continue
		}
		if remaining > 0 {
			s.text = runewidth.Truncate(s.text, remaining, "")
			out = append(out, s)
		}
		break
	}
	return append(out, plain("…"))
}

// Render writes a human-readable summary of r.
func Render(w io.Writer, r *manifest.Report, opts Options) {
	p := printer{w: w, opts: opts}
	for _, l := range box(r.Name, opts.Width) {
		p.line(0, styled(headingStyle, l))
	}

	var ok, failed, skipped int
	for _, s := range r.Steps {
		meta := fmt.Sprintf(" [%s, %s]", s.Backend, s.Duration.Round(time.Millisecond))
		switch {
		case s.Skipped:
			skipped++
			p.line(2, styled(dimStyle, "○"), plain(" "+s.Name), styled(dimStyle, " (skipped)"))
			continue
		case s.Successful():
			ok++
			p.line(2, styled(okStyle, "✓"), plain(" "+s.Name), styled(dimStyle, meta))
		default:
			failed++
			p.line(2, styled(failStyle, "✗"), plain(" "+s.Name), styled(dimStyle, meta))
		}
		if s.Error != "" {
			p.line(6, styled(failStyle, "error: "), plain(s.Error))
			continue
		}
		for _, l := range s.Result.Output {
			p.line(6, plain(l))
		}
		for _, l := range s.Result.Errors {
			p.line(6, styled(failStyle, l))
		}
	}
	p.line(0)
	p.line(2, plain(fmt.Sprintf("%d succeeded, %d failed, %d skipped (total: %d)", ok, failed, skipped, len(r.Steps))))
}

// RenderErrors writes numbered validation failures.
func RenderErrors(w io.Writer, errs []*manifest.StepError, opts Options) {
	p := printer{w: w, opts: opts}
	p.line(0, plain(fmt.Sprintf("Validation failed: %d error(s)", len(errs))))
	p.line(0)
	for i, e := range errs {
		p.line(2, plain(fmt.Sprintf("%d. ", i+1)), styled(failStyle, "✗"), plain(" "+e.Error()))
	}
}

// box frames name in three lines sized by display width. A name too wide
// for maxWidth (0 means unlimited) is shortened to fit.
func box(name string, maxWidth int) []string {
	if name == "" {
		name = "manifest"
	}
	if maxWidth > 0 && runewidth.StringWidth(name)+6 > maxWidth {
		name = runewidth.Truncate(name, max(maxWidth-6, 1), "…")
	}
	width := runewidth.StringWidth(name) + 4
	return []string{
		"┌" + strings.Repeat("─", width) + "┐",
		"│" + centerPad(name, width) + "│",
		"└" + strings.Repeat("─", width) + "┘",
	}
}

// centerPad centers s within width using spaces, based on display width.
func centerPad(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	total := width - sw
	left := total / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", total-left)
}
