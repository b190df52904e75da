package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"kmsload/internal/storage"
	"kmsload/internal/tui/styles"
)

type HistoryView struct {
	Store *storage.Store
	Table table.Model

	items []storage.RunRecord
	err   error

	Width  int
	Height int
}

func NewHistoryView(store *storage.Store) HistoryView {
	columns := []table.Column{
		{Title: "ID", Width: 10},
		{Title: "Time", Width: 20},
		{Title: "Scenario", Width: 10},
		{Title: "Target", Width: 36},
		{Title: "Reqs", Width: 8},
		{Title: "Fail", Width: 6},
		{Title: "RPS", Width: 8},
		{Title: "P99 (ms)", Width: 10},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.ColorBorder).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.ColorPrimary)

	s.Selected = s.Selected.
		Foreground(styles.ColorBg).
		Background(styles.ColorPrimary).
		Bold(true)

	t.SetStyles(s)

	m := HistoryView{
		Store: store,
		Table: t,
	}
	m.Refresh()
	return m
}

// Refresh reloads the table, newest run first.
func (m *HistoryView) Refresh() {
	if m.Store == nil {
		return
	}

	m.items, m.err = m.Store.List()
	rows := make([]table.Row, len(m.items))
	for i, item := range m.items {
		rows[i] = table.Row{
			shortID(item.ID),
			item.Timestamp.Format("2006-01-02 15:04:05"),
			item.Scenario,
			item.Summary.Target,
			fmt.Sprintf("%d", item.Summary.TotalRequests),
			fmt.Sprintf("%d", item.Summary.Fail),
			fmt.Sprintf("%.1f", item.Summary.RPS),
			fmt.Sprintf("%.2f", item.Summary.P99LatencyMs),
		}
	}
	m.Table.SetRows(rows)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (m HistoryView) Update(msg tea.Msg) (HistoryView, tea.Cmd) {
	var cmd tea.Cmd
	if msg, ok := msg.(tea.WindowSizeMsg); ok {
		m.Width = msg.Width
		m.Height = msg.Height
		m.Table.SetWidth(msg.Width - 4)
		m.Table.SetHeight(max(msg.Height-8, 3))
	}

	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

func (m HistoryView) View() string {
	s := strings.Builder{}
	s.WriteString(styles.Title.Render("📜 Past Runs"))
	s.WriteString("\n\n")

	switch {
	case m.err != nil:
		s.WriteString(styles.Error.Render("Unable to read history: " + m.err.Error()))
	case len(m.Table.Rows()) == 0:
		s.WriteString(styles.Subtle.Render("No history found.\nFinished runs are saved here."))
	default:
		s.WriteString(styles.Box.Render(m.Table.View()))
	}
	s.WriteString("\n\n")
	s.WriteString(styles.Subtle.Render("[↑/↓] Select  [Ctrl+P] Export Summary"))
	return s.String()
}

func (m HistoryView) GetSelectedItem() *storage.RunRecord {
	idx := m.Table.Cursor()
	if idx >= 0 && idx < len(m.items) {
		item := m.items[idx]
		return &item
	}
	return nil
}
