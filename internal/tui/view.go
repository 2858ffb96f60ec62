package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"chemviz/internal/chart"
	"chemviz/internal/models"
)

var (
	baseStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#" + chart.Palette[0]))

	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle  = lipgloss.NewStyle().Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	busyStyle   = lipgloss.NewStyle().
			Bold(true).
			Padding(1, 4).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#" + chart.Palette[0]))
)

const barWidth = 30

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Chemical Equipment Visualizer"))
	b.WriteString("\n\n")

	switch m.mode {
	case loginMode:
		b.WriteString(m.loginView())
	case uploadMode:
		b.WriteString(m.path.View())
		b.WriteString("\n\n")
		b.WriteString(labelStyle.Render("enter: upload • esc: cancel"))
	default:
		b.WriteString(m.dashboardView())
	}

	b.WriteString("\n")
	b.WriteString(m.footer())
	return b.String()
}

func (m Model) loginView() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.username.View(),
		m.password.View(),
		"",
		labelStyle.Render("tab: next field • enter: sign in • esc: quit"),
	)
}

func (m Model) dashboardView() string {
	if m.busy != "" {
		return busyStyle.Render(m.busy) + "\n"
	}

	var b strings.Builder
	if m.snap.Alert != "" {
		b.WriteString(errorStyle.Render(m.snap.Alert))
		b.WriteString("\n\n")
	}

	if r := m.snap.Report; r != nil {
		b.WriteString(statsView(r))
		b.WriteString("\n\n")
		b.WriteString(distributionView(r))
		b.WriteString("\n")
	} else if m.snap.Error != "" {
		b.WriteString(mutedStyle.Render(m.snap.Error))
		b.WriteString("\n\n")
	}

	b.WriteString(labelStyle.Render("History"))
	b.WriteString("\n")
	b.WriteString(baseStyle.Render(m.history.View()))
	b.WriteString("\n")
	b.WriteString(m.search.View())
	b.WriteString("\n")
	b.WriteString(baseStyle.Render(m.rows.View()))
	b.WriteString("\n")
	return b.String()
}

func statsView(r *models.SummaryReport) string {
	cell := func(label, value string) string {
		return lipgloss.JoinVertical(lipgloss.Left,
			labelStyle.Render(label),
			valueStyle.Render(value),
		)
	}
	gap := "    "
	return lipgloss.JoinHorizontal(lipgloss.Top,
		cell("Dataset", r.FileName), gap,
		cell("Total Equipment", fmt.Sprint(r.TotalCount)), gap,
		cell("Avg Flowrate", fmt.Sprintf("%.1f", r.Averages.Flowrate)), gap,
		cell("Avg Pressure", fmt.Sprintf("%.2f", r.Averages.Pressure)), gap,
		cell("Avg Temperature", fmt.Sprintf("%.1f", r.Averages.Temperature)),
	)
}

// distributionView draws the type distribution as horizontal bars.
func distributionView(r *models.SummaryReport) string {
	types := make([]string, 0, len(r.TypeDistribution))
	peak := 0
	for t, n := range r.TypeDistribution {
		types = append(types, t)
		peak = max(peak, n)
	}
	if peak == 0 {
		return ""
	}
	sort.Strings(types)

	var b strings.Builder
	for i, t := range types {
		n := r.TypeDistribution[t]
		width := max(n*barWidth/peak, 1)
		bar := lipgloss.NewStyle().
			Foreground(lipgloss.Color("#" + chart.Palette[i%len(chart.Palette)])).
			Render(strings.Repeat("█", width))
		fmt.Fprintf(&b, "%-16s %s %d\n", t, bar, n)
	}
	return b.String()
}

func (m Model) footer() string {
	var b strings.Builder
	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render("❌ " + m.err.Error()))
		b.WriteString("\n")
	case m.status != "":
		b.WriteString(statusStyle.Render(m.status))
		b.WriteString("\n")
	}
	if m.mode == dashboardMode {
		b.WriteString(m.help.ShortHelpView(keys.dashboardHelp()))
	}
	return b.String()
}
