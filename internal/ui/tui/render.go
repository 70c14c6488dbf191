package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/nickthorpe71/legend/internal/feature"
)

// EmptyMessage is shown instead of a table when no features exist.
const EmptyMessage = "No features tracked yet. Use 'legend update' to add features."

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)

	statusColors = map[feature.Status]lipgloss.Color{
		feature.StatusPending:    lipgloss.Color("#A0A0A0"),
		feature.StatusInProgress: lipgloss.Color("#7D56F4"),
		feature.StatusBlocked:    lipgloss.Color("#FF5F56"),
		feature.StatusComplete:   lipgloss.Color("#04B575"),
	}
)

// RenderTable draws features (already in display order) as a bordered
// table followed by an "N/M features complete" footer.
func RenderTable(features []feature.Feature, stats feature.Stats) string {
	if len(features) == 0 {
		return EmptyMessage + "\n"
	}

	rows := make([][]string, 0, len(features))
	for _, f := range features {
		rows = append(rows, []string{
			Truncate(f.ID, 19),
			Truncate(f.Domain, 13),
			string(f.Status),
			Percent(f.RecencyScore),
			f.Name,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "DOMAIN", "STATUS", "RECENCY", "NAME").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 2 && row >= 0 && row < len(features) {
				return cellStyle.Foreground(statusColors[features[row].Status])
			}
			return cellStyle
		})

	var b strings.Builder
	b.WriteString(t.String())
	b.WriteString("\n")
	b.WriteString(Footer(stats))
	b.WriteString("\n")
	return b.String()
}

// Footer returns "N/M features complete".
func Footer(stats feature.Stats) string {
	return fmt.Sprintf("%d/%d features complete", stats.Complete, stats.Total)
}

// Percent renders a recency score as a whole percentage.
func Percent(score float64) string {
	return fmt.Sprintf("%.0f%%", score*100)
}

// Truncate shortens s to at most limit runes, marking the cut with "..".
func Truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 2 {
		return string(r[:limit])
	}
	return string(r[:limit-2]) + ".."
}

// Detail renders every field of f for the detail pane.
func Detail(f feature.Feature) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", titleStyle.Render(f.Name))
	fmt.Fprintf(&b, "id:       %s\n", f.ID)
	fmt.Fprintf(&b, "domain:   %s\n", f.Domain)
	fmt.Fprintf(&b, "status:   %s\n", lipgloss.NewStyle().Foreground(statusColors[f.Status]).Render(string(f.Status)))
	fmt.Fprintf(&b, "recency:  %s\n", Percent(f.RecencyScore))
	if len(f.Tags) > 0 {
		fmt.Fprintf(&b, "tags:     %s\n", strings.Join(f.Tags, ", "))
	}
	fmt.Fprintf(&b, "\n%s\n", f.Description)
	if f.Context != nil {
		fmt.Fprintf(&b, "\n%s\n%s\n", infoStyle.Render("Context"), *f.Context)
	}
	if len(f.FilesInvolved) > 0 {
		fmt.Fprintf(&b, "\n%s\n", infoStyle.Render("Files"))
		for _, p := range f.FilesInvolved {
			fmt.Fprintf(&b, "  %s\n", p)
		}
	}
	return b.String()
}
