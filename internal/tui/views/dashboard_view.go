package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"kmsload/internal/runner"
	"kmsload/internal/stats"
	"kmsload/internal/tui/components"
	"kmsload/internal/tui/styles"
)

type DashboardView struct {
	Stats    runner.StatsSnapshot
	Viewport viewport.Model
	Progress progress.Model

	Scenario string
	Pacing   string
	Config   runner.Config

	// Live per-endpoint and per-failure counts
	Counts *stats.Stats

	RpsLine     components.Sparkline
	LatencyLine components.Sparkline
	lastReqs    uint64
	lastElapsed time.Duration

	StopReason runner.StopReason

	Width  int
	Height int
}

func NewDashboardView(r *runner.Runner, scenario, pacing string, width, height int) DashboardView {
	prog := progress.New(
		progress.WithGradient("#7D56F4", "#04B575"),
		progress.WithWidth(max(width-10, 10)),
		progress.WithoutPercentage(),
	)

	return DashboardView{
		Viewport:    viewport.New(max(width-6, 10), max(height-8, 5)),
		Progress:    prog,
		Scenario:    scenario,
		Pacing:      pacing,
		Config:      r.Cfg,
		Counts:      r.Stats,
		RpsLine:     components.NewSparkline(40, "RPS", styles.Active),
		LatencyLine: components.NewSparkline(40, "P90 ms", styles.Warn),
		Width:       width,
		Height:      height,
	}
}

func (m DashboardView) Update(msg tea.Msg) (DashboardView, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case runner.StatsSnapshot:
		if dt := msg.Elapsed - m.lastElapsed; dt > 0 && msg.Requests >= m.lastReqs {
			m.RpsLine.Add(uint64(float64(msg.Requests-m.lastReqs) / dt.Seconds()))
			m.LatencyLine.Add(uint64(msg.P90Ms))
		}
		m.lastReqs, m.lastElapsed = msg.Requests, msg.Elapsed
		m.Stats = msg

		cmds = append(cmds, m.Progress.SetPercent(m.percent()))

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Progress.Width = msg.Width - 10
		m.Viewport.Width = msg.Width - 6
		m.Viewport.Height = msg.Height - 8

	case progress.FrameMsg:
		newModel, cmd := m.Progress.Update(msg)
		if newModel, ok := newModel.(progress.Model); ok {
			m.Progress = newModel
		}
		cmds = append(cmds, cmd)
	}

	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// percent tracks whichever bound is set: duration first, then the
// request budget. Unbounded runs show an empty bar until they finish.
func (m DashboardView) percent() float64 {
	if m.Stats.Done {
		return 1
	}
	pct := 0.0
	switch {
	case m.Config.Duration > 0:
		pct = float64(m.Stats.Elapsed) / float64(m.Config.Duration)
	case m.Config.MaxRequests > 0:
		pct = float64(m.Stats.Requests) / float64(m.Config.MaxRequests)
	}
	return min(pct, 1.0)
}

func (m DashboardView) View() string {
	s := strings.Builder{}

	title := "⚡ Testing in Progress"
	if m.Stats.Done {
		title = "✅ Run Finished"
	}
	timer := m.Stats.Elapsed.Round(time.Second).String()
	if m.Config.Duration > 0 {
		timer += " / " + m.Config.Duration.String()
	}
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		styles.Title.Render(title),
		lipgloss.NewStyle().MarginLeft(2).Foreground(styles.ColorSubtle).Render(timer),
		lipgloss.NewStyle().MarginLeft(4).Foreground(styles.ColorPrimary).Bold(true).Render("["+m.Scenario+"]"),
	)
	s.WriteString(header)
	s.WriteString("\n\n")

	s.WriteString(m.Progress.View())
	s.WriteString("\n\n")

	rps := 0.0
	if m.Stats.Elapsed.Seconds() > 0 {
		rps = float64(m.Stats.Requests) / m.Stats.Elapsed.Seconds()
	}
	row1 := lipgloss.JoinHorizontal(lipgloss.Top,
		MakeCard("Requests", styles.Value.Render(fmt.Sprintf("%d", m.Stats.Requests))),
		MakeCard("Avg RPS", styles.Value.Render(fmt.Sprintf("%.1f", rps))),
		MakeCard("Inflight", styles.Active.Render(fmt.Sprintf("%d", m.Stats.Inflight))),
		MakeCard("Users", styles.Subtle.Render(fmt.Sprintf("%d", m.Config.Users))),
	)
	s.WriteString(row1)
	s.WriteString("\n")

	errColor := styles.Text
	if m.Stats.Fail > 0 {
		errColor = styles.Error
	}
	row2 := lipgloss.JoinHorizontal(lipgloss.Top,
		MakeCard("P50 Latency", styles.Text.Render(fmt.Sprintf("%.1f ms", m.Stats.P50Ms))),
		MakeCard("P90 Latency", styles.Warn.Render(fmt.Sprintf("%.1f ms", m.Stats.P90Ms))),
		MakeCard("P99 Latency", styles.Error.Render(fmt.Sprintf("%.1f ms", m.Stats.P99Ms))),
		MakeCard("Errors", errColor.Render(fmt.Sprintf("%d", m.Stats.Fail))),
	)
	s.WriteString(row2)
	s.WriteString("\n")
	s.WriteString(styles.Subtle.Render(fmt.Sprintf("pacing %s · skipped %d · max %d ms", m.Pacing, m.Stats.Skipped, m.Stats.MaxMs)))
	s.WriteString("\n\n")

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.RpsLine.View(), "   ", m.LatencyLine.View()))
	s.WriteString("\n\n")

	if m.Counts != nil {
		if names := m.Counts.NameCounts(); len(names) > 0 {
			s.WriteString(styles.Subtle.Render("Requests by Endpoint"))
			s.WriteString("\n")
			s.WriteString(bars(names, 30, func(string) lipgloss.Style { return styles.Value }))
		}
		if errs := m.Counts.ErrorCounts(); len(errs) > 0 {
			s.WriteString("\n")
			s.WriteString(styles.Subtle.Render("Failures"))
			s.WriteString("\n")
			s.WriteString(bars(errs, 30, styles.StatusStyle))
		}
	}

	if m.StopReason != runner.StopNone {
		s.WriteString("\n")
		s.WriteString(styles.Success.Render("Stopped: " + string(m.StopReason)))
	}

	content := styles.Panel.Width(max(m.Width-6, 10)).Render(s.String())
	m.Viewport.SetContent(content)

	return m.Viewport.View()
}

func bars(counts []stats.Count, width int, color func(string) lipgloss.Style) string {
	var maxCount uint64
	for _, c := range counts {
		maxCount = max(maxCount, c.Count)
	}

	var s strings.Builder
	for _, c := range counts {
		w := 0
		if maxCount > 0 {
			w = int(float64(c.Count) / float64(maxCount) * float64(width))
		}
		label := c.Key
		if len(label) > 48 {
			label = label[:45] + "..."
		}
		s.WriteString(fmt.Sprintf("%-48s %s %d\n", label, color(c.Key).Render(strings.Repeat("█", w)), c.Count))
	}
	return s.String()
}

func MakeCard(title, value string) string {
	return styles.Box.Width(18).Align(lipgloss.Center).Render(
		fmt.Sprintf("%s\n%s", styles.Subtle.Render(title), value),
	)
}
