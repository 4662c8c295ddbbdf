package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/phonelens/phonelens/internal/core"
)

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func TestModelCountsResults(t *testing.T) {
	m := NewModel("run-1", 3, nil)

	m, _ = update(t, m, ResultMsg{Result: &core.CheckResult{Phone: "0912345678", Status: core.StatusHasAccount, Name: "Nguyen Van A"}})
	m, _ = update(t, m, ResultMsg{Result: &core.CheckResult{Phone: "0912345679", Status: core.StatusNoAccount}})
	m, _ = update(t, m, ResultMsg{Result: &core.CheckResult{Phone: "0912345680", Status: core.StatusError, Reason: "timeout"}})
	m, _ = update(t, m, ResultMsg{})

	require.Equal(t, 3, m.processed)
	require.Equal(t, 1, m.counts[core.StatusHasAccount])
	require.Equal(t, 1, m.counts[core.StatusError])

	view := m.View()
	require.Contains(t, view, "3/3")
	require.Contains(t, view, "Nguyen Van A")
	require.Contains(t, view, "error: timeout")
}

func TestModelKeepsRecentWindow(t *testing.T) {
	m := NewModel("run-1", 20, nil)
	for i := 0; i < 15; i++ {
		m, _ = update(t, m, ResultMsg{Result: &core.CheckResult{Phone: fmt.Sprintf("09123456%02d", i), Status: core.StatusNoAccount}})
	}
	require.Len(t, m.recent, recentRows)
	require.Equal(t, 15, m.processed)
}

func TestModelStopKey(t *testing.T) {
	stops := 0
	m := NewModel("run-1", 5, func() { stops++ })

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	require.Nil(t, cmd)
	require.True(t, m.stopping)
	require.Contains(t, m.View(), "Stopping")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.Equal(t, 1, stops)
	require.False(t, m.done)
}

func TestModelDone(t *testing.T) {
	m := NewModel("run-1", 1, nil)
	m, _ = update(t, m, FlushMsg{Batch: 1, Count: 1})
	require.Contains(t, m.View(), "batch 1 saved")

	m, cmd := update(t, m, DoneMsg{Err: errors.New("flush batch 2: disk full")})
	require.True(t, m.done)
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
	require.Contains(t, m.View(), "disk full")

	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModelElapsed(t *testing.T) {
	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	m := NewModel("run-1", 2, nil)
	m.startedAt = start
	m.now = func() time.Time { return start.Add(90 * time.Second) }
	require.Contains(t, m.View(), "1m30s")
}

func TestDashboardLifecycle(t *testing.T) {
	d := New("run-1", 1, nil, Options{Input: strings.NewReader(""), Output: io.Discard})
	d.Start()

	ctx := context.Background()
	require.NoError(t, d.Record(ctx, &core.CheckResult{Phone: "0912345678", Status: core.StatusNoAccount}))
	require.NoError(t, d.Flush(ctx, 1, nil))
	require.NoError(t, d.Finish(&core.RunSummary{RunID: "run-1"}, nil))
}
