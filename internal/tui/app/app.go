package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"kmsload/internal/report"
	"kmsload/internal/runner"
	"kmsload/internal/storage"
	"kmsload/internal/tui/styles"
	"kmsload/internal/tui/views"
)

type ClearStatusMsg struct{}

func clearStatusCmd() tea.Cmd {
	return tea.Tick(3*time.Second, func(_ time.Time) tea.Msg {
		return ClearStatusMsg{}
	})
}

// View Enum
type ViewID int

const (
	ViewDashboard ViewID = iota
	ViewHistory
)

type StatsMsg runner.StatsSnapshot

// Model watches a run that is already executing. Stopping or quitting
// cancels it through Cancel; the caller owns Run and the history save.
type Model struct {
	Runner  *runner.Runner
	Store   *storage.Store
	Updates runner.StatsUpdateChan
	Cancel  context.CancelFunc

	Scenario  string
	RunActive bool

	Width  int
	Height int

	CurrentView ViewID
	MenuItems   []string

	DashView    views.DashboardView
	HistoryView views.HistoryView

	StatusMsg string
}

func NewModel(r *runner.Runner, cancel context.CancelFunc, store *storage.Store, scenario, pacing string) Model {
	return Model{
		Runner:      r,
		Updates:     r.Updates,
		Store:       store,
		Cancel:      cancel,
		Scenario:    scenario,
		RunActive:   true,
		CurrentView: ViewDashboard,
		MenuItems:   []string{"[1] Dashboard", "[2] History"},
		DashView:    views.NewDashboardView(r, scenario, pacing, 80, 24),
		HistoryView: views.NewHistoryView(store),
	}
}

func (m Model) Init() tea.Cmd {
	return waitForUpdate(m.Updates)
}

func waitForUpdate(sub runner.StatsUpdateChan) tea.Cmd {
	return func() tea.Msg {
		return StatsMsg(<-sub)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case ClearStatusMsg:
		m.StatusMsg = ""
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+q", "q":
			m.stop()
			return m, tea.Quit

		case "1", "ctrl+d":
			m.CurrentView = ViewDashboard
			return m, nil

		case "2", "ctrl+h":
			m.HistoryView.Refresh()
			m.CurrentView = ViewHistory
			return m, nil

		case "tab", "ctrl+right", "ctrl+left":
			m.CurrentView = (m.CurrentView + 1) % 2
			if m.CurrentView == ViewHistory {
				m.HistoryView.Refresh()
			}
			return m, nil

		case "ctrl+s":
			if m.RunActive {
				m.stop()
				m.StatusMsg = "Stopping run..."
				return m, clearStatusCmd()
			}
			return m, nil

		case "ctrl+p":
			m.StatusMsg = m.export()
			return m, clearStatusCmd()
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		content := tea.WindowSizeMsg{Width: msg.Width, Height: msg.Height - 7}

		m.DashView, _ = m.DashView.Update(content)
		m.HistoryView, _ = m.HistoryView.Update(content)
		return m, nil

	case StatsMsg:
		snap := runner.StatsSnapshot(msg)
		var c tea.Cmd
		m.DashView, c = m.DashView.Update(snap)
		cmds = append(cmds, c)

		if snap.Done {
			m.RunActive = false
			m.DashView.StopReason = m.Runner.StopReason()
			m.StatusMsg = "Run finished: " + string(m.Runner.StopReason())
			cmds = append(cmds, clearStatusCmd())
			return m, tea.Batch(cmds...)
		}
		cmds = append(cmds, waitForUpdate(m.Updates))
		return m, tea.Batch(cmds...)
	}

	// Forward everything else (progress frames, table keys) to the active view
	var c tea.Cmd
	switch m.CurrentView {
	case ViewDashboard:
		m.DashView, c = m.DashView.Update(msg)
	case ViewHistory:
		m.HistoryView, c = m.HistoryView.Update(msg)
	}
	cmds = append(cmds, c)

	return m, tea.Batch(cmds...)
}

func (m *Model) stop() {
	if m.Cancel != nil {
		m.Cancel()
	}
}

// export writes the selected history run, or the live run, as JSON.
func (m Model) export() string {
	ts := time.Now().Format("20060102-150405")
	if m.CurrentView == ViewHistory {
		item := m.HistoryView.GetSelectedItem()
		if item == nil {
			return "No run selected."
		}
		name := fmt.Sprintf("kmsload_history_%s.json", item.ID)
		if err := report.ExportSummary(item.Summary, name); err != nil {
			return fmt.Sprintf("Export Failed: %v", err)
		}
		return "Exported history to " + name
	}

	if m.Runner.Stats.RequestCount() == 0 {
		return "No results to export yet."
	}
	sum := m.Runner.Summary()
	sum.Scenario = m.Scenario
	name := fmt.Sprintf("kmsload_report_%s.json", ts)
	if err := report.ExportSummary(sum, name); err != nil {
		return fmt.Sprintf("Export Failed: %v", err)
	}
	return "Exported to " + name
}

func (m Model) View() string {
	if m.Width == 0 {
		return "Loading..."
	}

	nav := strings.Builder{}
	for i, item := range m.MenuItems {
		if ViewID(i) == m.CurrentView {
			nav.WriteString(styles.TabActive.Render(item))
		} else {
			nav.WriteString(styles.TabBase.Render(item))
		}
	}
	navBar := styles.FooterBase.Width(m.Width).Render(nav.String())

	contentStr := ""
	switch m.CurrentView {
	case ViewDashboard:
		contentStr = m.DashView.View()
	case ViewHistory:
		contentStr = m.HistoryView.View()
	}
	content := styles.Panel.Width(m.Width - 2).Height(m.Height - 6).Render(contentStr)

	keys := []string{
		styles.RenderKey("Tab", "View"),
		styles.RenderKey("Ctrl+S", "Stop"),
		styles.RenderKey("Ctrl+P", "Export"),
		styles.RenderKey("Q", "Quit"),
	}
	footer := styles.FooterBase.Width(m.Width).Render(strings.Join(keys, "   "))

	if m.StatusMsg != "" {
		status := styles.Box.BorderForeground(styles.ColorHighlight).Render(m.StatusMsg)
		return lipgloss.JoinVertical(lipgloss.Left, navBar, content, status, footer)
	}

	return lipgloss.JoinVertical(lipgloss.Left, navBar, content, footer)
}
