// Package tui renders features for people: a static table for `legend show`
// and an interactive browser for `legend show --interactive`.
package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nickthorpe71/legend/internal/feature"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

// chrome is the number of rows taken by the header, progress bar and help.
const chrome = 8

// Model is the bubbletea model of the feature browser.
type Model struct {
	Title    string
	Features []feature.Feature
	Stats    feature.Stats

	Table    table.Model
	Detail   viewport.Model
	Progress progress.Model

	// DetailFocused routes keys to the detail pane instead of the table.
	DetailFocused bool
	Quitting      bool
	Ready         bool
	Width         int
	Height        int
}

// NewModel builds a browser over features, which should already be in
// display order.
func NewModel(title string, features []feature.Feature, stats feature.Stats) Model {
	rows := make([]table.Row, 0, len(features))
	for _, f := range features {
		rows = append(rows, table.Row{f.ID, string(f.Status), Percent(f.RecencyScore), f.Name})
	}

	t := table.New(
		table.WithColumns(columns(80)),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color("#7D56F4"))
	t.SetStyles(styles)

	return Model{
		Title:    title,
		Features: features,
		Stats:    stats,
		Table:    t,
		Progress: progress.New(progress.WithDefaultGradient()),
	}
}

// columns splits the list pane width between the table columns.
func columns(width int) []table.Column {
	name := width - 20 - 12 - 8 - 8
	if name < 10 {
		name = 10
	}
	return []table.Column{
		{Title: "ID", Width: 20},
		{Title: "STATUS", Width: 12},
		{Title: "RECENCY", Width: 8},
		{Title: "NAME", Width: name},
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

// Selected returns the feature under the cursor.
func (m Model) Selected() (feature.Feature, bool) {
	i := m.Table.Cursor()
	if i < 0 || i >= len(m.Features) {
		return feature.Feature{}, false
	}
	return m.Features[i], true
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.Quitting = true
			return m, tea.Quit
		case "tab":
			m.DetailFocused = !m.DetailFocused
			if m.DetailFocused {
				m.Table.Blur()
			} else {
				m.Table.Focus()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m = m.resize()
		m.Ready = true
	}

	var cmd tea.Cmd
	before := m.Table.Cursor()
	if m.DetailFocused {
		m.Detail, cmd = m.Detail.Update(msg)
	} else {
		m.Table, cmd = m.Table.Update(msg)
	}
	cmds = append(cmds, cmd)

	if m.Ready && m.Table.Cursor() != before {
		m = m.refreshDetail()
	}

	return m, tea.Batch(cmds...)
}

// resize lays out the list on the left and the detail pane on the right.
func (m Model) resize() Model {
	listWidth := m.Width / 2
	detailWidth := m.Width - listWidth - 4
	height := m.Height - chrome
	if height < 3 {
		height = 3
	}

	m.Table.SetColumns(columns(listWidth))
	m.Table.SetWidth(listWidth)
	m.Table.SetHeight(height)

	if !m.Ready {
		m.Detail = viewport.New(detailWidth, height)
	} else {
		m.Detail.Width = detailWidth
		m.Detail.Height = height
	}
	m.Progress.Width = m.Width - 4
	return m.refreshDetail()
}

func (m Model) refreshDetail() Model {
	if f, ok := m.Selected(); ok {
		m.Detail.SetContent(lipgloss.NewStyle().Width(m.Detail.Width).Render(Detail(f)))
	} else {
		m.Detail.SetContent(EmptyMessage)
	}
	m.Detail.GotoTop()
	return m
}

func (m Model) View() string {
	if !m.Ready {
		return "\n  Initializing..."
	}

	header := titleStyle.Render(" " + m.Title + " ")
	summary := infoStyle.Render(" " + Footer(m.Stats) + " ")

	var ratio float64
	if m.Stats.Total > 0 {
		ratio = float64(m.Stats.Complete) / float64(m.Stats.Total)
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		paneStyle.Render(m.Table.View()),
		paneStyle.Render(m.Detail.View()),
	)

	focus := "list"
	if m.DetailFocused {
		focus = "detail"
	}
	help := helpStyle.Render(fmt.Sprintf(" ↑/↓ move • tab switch pane (%s) • q quit", focus))

	view := fmt.Sprintf("%s%s\n\n%s\n\n%s\n%s",
		header, summary,
		body,
		m.Progress.ViewAs(ratio),
		help)

	if m.Quitting {
		return view + "\n  Quitting...\n"
	}

	return view
}
