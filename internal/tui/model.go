package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/phonelens/phonelens/internal/core"
)

const recentRows = 10

// ResultMsg carries one finished check.
type ResultMsg struct {
	Result *core.CheckResult
}

// FlushMsg reports a saved batch.
type FlushMsg struct {
	Batch int
	Count int
}

// DoneMsg ends the dashboard.
type DoneMsg struct {
	Summary *core.RunSummary
	Err     error
}

type tickMsg time.Time

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	warnStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("39")).Padding(0, 1)
	statusStyles = map[core.Status]lipgloss.Style{
		core.StatusHasAccount:  lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		core.StatusNoAccount:   lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		core.StatusUnknown:     lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
		core.StatusInvalid:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		core.StatusRateLimited: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		core.StatusError:       errorStyle,
	}
)

// Model is the batch dashboard state.
type Model struct {
	runID     string
	total     int
	processed int
	counts    map[core.Status]int
	recent    []*core.CheckResult
	lastBatch int
	saved     int

	stopping bool
	done     bool
	err      error
	onStop   func()

	startedAt time.Time
	now       func() time.Time
	width     int
}

// NewModel returns a dashboard for a run of total queries. onStop is called
// once, the first time the operator asks to stop.
func NewModel(runID string, total int, onStop func()) Model {
	return Model{
		runID:     runID,
		total:     total,
		counts:    make(map[core.Status]int, len(core.AllStatuses)),
		onStop:    onStop,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "s", "ctrl+c":
			if m.done {
				return m, tea.Quit
			}
			if !m.stopping {
				m.stopping = true
				if m.onStop != nil {
					m.onStop()
				}
			}
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case ResultMsg:
		if msg.Result == nil {
			return m, nil
		}
		m.processed++
		m.counts[msg.Result.Status]++
		m.recent = append(m.recent, msg.Result)
		if len(m.recent) > recentRows {
			m.recent = m.recent[len(m.recent)-recentRows:]
		}
		return m, nil
	case FlushMsg:
		m.lastBatch = msg.Batch
		m.saved = msg.Count
		return m, nil
	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	case tickMsg:
		if m.done {
			return m, nil
		}
		return m, tick()
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("phonelens batch %s", m.runID)))
	b.WriteString("\n\n")
	b.WriteString(m.renderProgress())
	b.WriteString("\n\n")
	b.WriteString(boxStyle.Render(m.renderCounts()))
	b.WriteString("\n")
	b.WriteString(boxStyle.Render(m.renderRecent()))
	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render("Run failed: " + m.err.Error()))
	case m.done:
		b.WriteString(mutedStyle.Render("Run finished."))
	case m.stopping:
		b.WriteString(warnStyle.Render("Stopping after the current number..."))
	default:
		b.WriteString(mutedStyle.Render("s/q: stop after the current number"))
	}
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderProgress() string {
	width := 40
	if m.width > 0 && m.width-30 < width {
		width = max(10, m.width-30)
	}
	filled := 0
	if m.total > 0 {
		filled = m.processed * width / m.total
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	elapsed := m.now().Sub(m.startedAt).Round(time.Second)
	line := fmt.Sprintf("%s %d/%d  %s", bar, m.processed, m.total, elapsed)
	if m.lastBatch > 0 {
		line += mutedStyle.Render(fmt.Sprintf("  batch %d saved (%d rows)", m.lastBatch, m.saved))
	}
	return line
}

func (m Model) renderCounts() string {
	lines := make([]string, 0, len(core.AllStatuses))
	for _, status := range core.AllStatuses {
		lines = append(lines, statusStyles[status].Render(fmt.Sprintf("%-13s %5d", status, m.counts[status])))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderRecent() string {
	if len(m.recent) == 0 {
		return mutedStyle.Render("Waiting for the first result...")
	}
	lines := make([]string, 0, len(m.recent))
	for i := len(m.recent) - 1; i >= 0; i-- {
		result := m.recent[i]
		line := fmt.Sprintf("%-12s %-24s %s", result.Phone, result.StatusLabel(), result.Name)
		lines = append(lines, statusStyles[result.Status].Render(strings.TrimRight(line, " ")))
	}
	return strings.Join(lines, "\n")
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
