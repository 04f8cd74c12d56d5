package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(22)
	modelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1)
)

// Render writes the console summary for a run.
func Render(w io.Writer, s *Summary) error {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Conversation Summary"))
	sb.WriteString("\n\n")

	row := func(label string, value any) {
		fmt.Fprintf(&sb, "%s %v\n", labelStyle.Render(label), value)
	}
	row("Batches", s.Batches)
	row("Conversations", s.Conversations)
	row("Turns", s.Turns)
	if s.Conversations > 0 {
		row("Avg turns/conversation", fmt.Sprintf("%.1f", s.AverageTurns()))
	}
	if s.Empty > 0 {
		row("Empty batches", s.Empty)
	}
	if s.Failed > 0 {
		row("Failed batches", warnStyle.Render(fmt.Sprint(s.Failed)))
	}
	if s.SkippedLines > 0 || s.Dropped > 0 {
		row("Skipped lines", s.SkippedLines)
		row("Dropped records", s.Dropped)
	}

	if len(s.Models) > 0 {
		sb.WriteString("\nModels:\n")
		for _, m := range s.Models {
			fmt.Fprintf(&sb, "  • %s\n", modelStyle.Render(m))
		}
	}

	if len(s.Projects) > 1 {
		projects := append([]ProjectSummary(nil), s.Projects...)
		sort.Slice(projects, func(i, j int) bool { return projects[i].PathID < projects[j].PathID })
		sb.WriteString("\nProjects:\n")
		for _, p := range projects {
			fmt.Fprintf(&sb, "  - %s: %d conversations, %d turns\n", p.PathID, p.Conversations, p.Turns)
		}
	}

	if s.Output != "" {
		fmt.Fprintf(&sb, "\n%s %s", labelStyle.Render("Output"), s.Output)
	}

	_, err := fmt.Fprintln(w, boxStyle.Render(strings.TrimRight(sb.String(), "\n")))
	return err
}
