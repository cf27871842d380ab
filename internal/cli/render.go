package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"costalloc/internal/allocation"
	"costalloc/internal/core"
)

// Theme colors (Flexoki Dark)
var (
	ColorBorder    = lipgloss.Color("#282726")
	ColorTextDim   = lipgloss.Color("#575653")
	ColorTextMuted = lipgloss.Color("#6F6E69")
	ColorText      = lipgloss.Color("#FFFCF0")
	ColorAccent    = lipgloss.Color("#3AA99F")
	ColorGreen     = lipgloss.Color("#879A39")
	ColorOrange    = lipgloss.Color("#DA702C")
	ColorRed       = lipgloss.Color("#D14D41")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorText).
			Align(lipgloss.Center)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorAccent)

	valueStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorTextMuted)

	okStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	warnStyle = lipgloss.NewStyle().
			Foreground(ColorOrange)

	errStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	dimStyle = lipgloss.NewStyle().
			Foreground(ColorTextDim)
)

// amounts prints whole amounts with thousands separators.
var amounts = message.NewPrinter(language.English)

// Table is a bordered text table. A row holding the single cell "---" is
// drawn as a separator; a row holding one other cell spans the table as a
// section title.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// RenderTitle renders a centered title bar in a bordered box.
func RenderTitle(title string) string {
	border := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Width(55).
		Align(lipgloss.Center).
		Padding(0, 1)

	return border.Render(titleStyle.Render(title))
}

// RenderTable renders a bordered table. The first column is left-aligned,
// the others right-aligned.
func RenderTable(t Table) string {
	numCols := len(t.Headers)
	if numCols == 0 {
		for _, row := range t.Rows {
			numCols = max(numCols, len(row))
		}
	}
	if numCols == 0 {
		return ""
	}

	widths := make([]int, numCols)
	for i, h := range t.Headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		if len(row) == 1 {
			continue
		}
		for i, cell := range row {
			if i < numCols {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}
	inner := -1
	for _, w := range widths {
		inner += w + 3
	}

	var b strings.Builder
	rule := func(left, mid, right string) {
		b.WriteString(dimStyle.Render(left))
		for i, w := range widths {
			b.WriteString(dimStyle.Render(strings.Repeat("─", w+2)))
			if i < numCols-1 {
				b.WriteString(dimStyle.Render(mid))
			}
		}
		b.WriteString(dimStyle.Render(right))
		b.WriteString("\n")
	}
	cells := func(row []string, style lipgloss.Style) {
		b.WriteString(dimStyle.Render("│"))
		for i := 0; i < numCols; i++ {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			pad := strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
			if i == 0 {
				b.WriteString(style.Render(" " + cell + pad + " "))
			} else {
				b.WriteString(style.Render(" " + pad + cell + " "))
			}
			if i < numCols-1 {
				b.WriteString(dimStyle.Render("│"))
			}
		}
		b.WriteString(dimStyle.Render("│"))
		b.WriteString("\n")
	}

	if t.Title != "" {
		b.WriteString("  ")
		b.WriteString(headerStyle.Render(t.Title))
		b.WriteString("\n")
	}

	rule("╭", "┬", "╮")
	if len(t.Headers) > 0 {
		cells(t.Headers, headerStyle)
		rule("├", "┼", "┤")
	}
	for _, row := range t.Rows {
		switch {
		case len(row) == 1 && row[0] == "---":
			rule("├", "┼", "┤")
		case len(row) == 1:
			label := row[0]
			if w := lipgloss.Width(label); w < inner-2 {
				label += strings.Repeat(" ", inner-2-w)
			}
			b.WriteString(dimStyle.Render("│"))
			b.WriteString(sectionStyle.Render(" " + label + " "))
			b.WriteString(dimStyle.Render("│"))
			b.WriteString("\n")
		default:
			cells(row, valueStyle)
		}
	}
	rule("╰", "┴", "╯")

	return b.String()
}

// FormatAmount rounds to whole units and groups thousands.
func FormatAmount(d decimal.Decimal) string {
	return amounts.Sprintf("%d", d.Round(0).IntPart())
}

// FormatPct prints a percentage with at most two decimals.
func FormatPct(d decimal.Decimal) string {
	return d.Round(2).String() + "%"
}

// WorksheetTable lays out every row of a worksheet. Header rows become
// section titles.
func WorksheetTable(ws *allocation.Worksheet) Table {
	t := Table{
		Title:   fmt.Sprintf("%s · %s", ws.Period.Key(), ws.Type),
		Headers: []string{"Category", "Pct", "Budget", "Carry in", "Need", "Used", "Overrun Q", "Overrun cum", ""},
	}
	for _, row := range ws.Rows {
		switch r := row.(type) {
		case *core.HeaderRow:
			t.Rows = append(t.Rows, []string{r.Cat.Label})
		case *core.FixedRow:
			t.Rows = append(t.Rows, []string{
				r.Cat.Label, "", FormatAmount(r.AllocatedBudget), "", "", FormatAmount(r.UsedTotal()), "", "", "fixed",
			})
		case *core.StandardRow:
			t.Rows = append(t.Rows, []string{
				r.Cat.Label,
				FormatPct(r.Pct),
				FormatAmount(r.AllocatedBudget),
				FormatAmount(r.CarryOverIn),
				FormatAmount(r.Funding.TotalNeed),
				FormatAmount(r.Funding.UsedTotal),
				overrunCell(r.Funding.OverrunThisQuarter),
				overrunCell(r.Funding.OverrunCumulative),
				rowFlags(r),
			})
		}
	}

	s := ws.Summary()
	t.Rows = append(t.Rows,
		[]string{"---"},
		[]string{
			"Total", "", FormatAmount(s.AllocatedBudget), "", "", FormatAmount(s.UsedTotal),
			overrunCell(s.OverrunThisQuarter), overrunCell(s.OverrunCumulative), "",
		})
	return t
}

// ProjectsTable shows the funded amount of every standard row per visible
// project.
func ProjectsTable(ws *allocation.Worksheet) Table {
	std := ws.StandardRows()
	t := Table{
		Title:   "Funded per project",
		Headers: make([]string, 0, len(std)+2),
	}
	t.Headers = append(t.Headers, "Project", "Revenue")
	for _, r := range std {
		t.Headers = append(t.Headers, r.Cat.Label)
	}
	for _, p := range ws.Projects {
		row := make([]string, 0, len(t.Headers))
		row = append(row, p.ProjectID, FormatAmount(p.Revenue))
		for _, r := range std {
			row = append(row, FormatAmount(r.Funding.Funded[p.ProjectID]))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Warn renders a warning line.
func Warn(msg string) string {
	return warnStyle.Render("! " + msg)
}

// OK renders a success line.
func OK(msg string) string {
	return okStyle.Render(msg)
}

func overrunCell(d decimal.Decimal) string {
	if !d.IsPositive() {
		return FormatAmount(decimal.Zero)
	}
	return errStyle.Render(FormatAmount(d))
}

func rowFlags(r *core.StandardRow) string {
	var flags []string
	if r.Funding.Scaled {
		flags = append(flags, "scaled")
	}
	if r.Funding.OverrunFolded {
		flags = append(flags, "folded")
	}
	if r.Dirty {
		flags = append(flags, "dirty")
	}
	return strings.Join(flags, ",")
}
