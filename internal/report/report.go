// Package report renders simulation summaries for terminals.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/JakeFAU/progression/internal/simulate"
)

const defaultBarWidth = 30

// Theme holds the styles used when printing a report.
type Theme struct {
	Bold   lipgloss.Style
	Green  lipgloss.Style
	Yellow lipgloss.Style
	Dim    lipgloss.Style

	Bullet string
}

// DefaultTheme returns the stock colors.
func DefaultTheme() Theme {
	return Theme{
		Bold:   lipgloss.NewStyle().Bold(true),
		Green:  lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		Yellow: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		Dim:    lipgloss.NewStyle().Faint(true),
		Bullet: "•",
	}
}

// Printer writes one bar per run followed by a totals line.
type Printer struct {
	theme Theme
	bar   progress.Model
}

// NewPrinter builds a Printer whose bars are width cells wide.
func NewPrinter(width int) *Printer {
	if width <= 0 {
		width = defaultBarWidth
	}
	return &Printer{
		theme: DefaultTheme(),
		bar:   progress.New(progress.WithWidth(width), progress.WithoutPercentage(), progress.WithSolidFill("6")),
	}
}

// Print renders the runs of summary under title.
func (p *Printer) Print(w io.Writer, title string, summary simulate.Summary) error {
	var b strings.Builder
	b.WriteString(p.theme.Bold.Render(title))
	b.WriteByte('\n')
	for i, v := range summary.FinalValues {
		label := p.theme.Yellow.Render("stopped")
		if v >= 1 {
			label = p.theme.Green.Render("done")
		}
		fmt.Fprintf(&b, "%s run %s %s %5.1f%% %s\n",
			p.theme.Bullet,
			padLeft(humanize.Comma(int64(i+1)), 4),
			p.bar.ViewAs(v),
			v*100,
			label)
	}
	total := len(summary.FinalValues)
	fmt.Fprintf(&b, "%s\n", p.theme.Dim.Render(fmt.Sprintf("%s runs, %s completed, %s cancelled",
		humanize.Comma(int64(total)),
		humanize.Comma(int64(summary.Completed)),
		humanize.Comma(int64(summary.Cancelled)))))
	_, err := io.WriteString(w, b.String())
	return err
}

func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}
