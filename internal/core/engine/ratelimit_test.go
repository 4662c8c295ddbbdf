package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/phonelens/phonelens/internal/browser/browsertest"
	"github.com/phonelens/phonelens/internal/core"
	"github.com/phonelens/phonelens/internal/core/checker"
)

func TestBackoffTableIsMonotonicAndCapped(t *testing.T) {
	policy := &LimitPolicy{}
	for k := 1; k <= 3; k++ {
		current := policy.StepFor(k)
		next := policy.StepFor(k + 1)
		require.GreaterOrEqual(t, next.Min, current.Max, "step %d", k)
	}
	capped := policy.StepFor(4)
	for _, count := range []int{5, 8, 100} {
		require.Equal(t, capped, policy.StepFor(count))
	}
	require.Equal(t, BackoffStep{Min: 30 * time.Second, Max: 60 * time.Second}, policy.StepFor(1))
	require.Equal(t, policy.StepFor(1), policy.StepFor(0))
}

func TestRandomBetweenStaysInRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		wait := RandomBetween(30*time.Second, 60*time.Second)
		require.GreaterOrEqual(t, wait, 30*time.Second)
		require.Less(t, wait, 60*time.Second)
	}
	require.Equal(t, 5*time.Second, RandomBetween(5*time.Second, 5*time.Second))
}

func TestHandleWaitsInChunksAndClears(t *testing.T) {
	b := browsertest.New()
	b.Source = "quá số lần cho phép"
	b.OnNavigate = func(b *browsertest.Browser, url string) { b.Source = "" }
	b.Set("button", &browsertest.Element{Visible: true, Attrs: map[string]string{"textContent": "OK"}})

	clock := newFakeClock()
	policy := &LimitPolicy{
		Browser:     b,
		Page:        checker.NewPage(b, checker.DefaultStrategies(), nil),
		Clock:       clock,
		SettleDelay: 2 * time.Second,
		Jitter:      func(lo, hi time.Duration) time.Duration { return lo + 15*time.Second },
	}
	state := &core.LimitState{}

	cleared, err := policy.Handle(context.Background(), state)
	require.NoError(t, err)
	require.True(t, cleared)
	require.Equal(t, 0, state.Count)
	require.Equal(t, []time.Duration{30 * time.Second, 15 * time.Second, 2 * time.Second}, clock.Sleeps())
	require.Contains(t, b.Calls(), "click button")
	require.Contains(t, b.Calls(), "navigate https://chat.zalo.me/")
}

func TestHandleEscalatesWhileLimited(t *testing.T) {
	b := browsertest.New()
	b.Source = "Vui lòng thử lại sau"

	var ranges []BackoffStep
	policy := &LimitPolicy{
		Browser: b,
		Page:    checker.NewPage(b, checker.DefaultStrategies(), nil),
		Clock:   newFakeClock(),
		Jitter: func(lo, hi time.Duration) time.Duration {
			ranges = append(ranges, BackoffStep{Min: lo, Max: hi})
			return lo
		},
	}
	state := &core.LimitState{}

	for i := 0; i < 5; i++ {
		cleared, err := policy.Handle(context.Background(), state)
		require.NoError(t, err)
		require.False(t, cleared)
	}
	require.Equal(t, 5, state.Count)
	require.Equal(t, DefaultBackoffTable, ranges[:4])
	require.Equal(t, DefaultBackoffTable[3], ranges[4])
}

func TestHandleHonorsCancellation(t *testing.T) {
	b := browsertest.New()
	policy := &LimitPolicy{
		Browser: b,
		Page:    checker.NewPage(b, checker.DefaultStrategies(), nil),
		Clock:   newFakeClock(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cleared, err := policy.Handle(ctx, &core.LimitState{})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, cleared)
}

func TestHandleRequiresConfiguration(t *testing.T) {
	var policy *LimitPolicy
	_, err := policy.Handle(context.Background(), &core.LimitState{})
	require.Error(t, err)
}

func TestParseBackoffTable(t *testing.T) {
	table, err := ParseBackoffTable([]string{"30s-60s", " 2m-3m ", "5m-7m", "10m-15m"})
	require.NoError(t, err)
	require.Equal(t, DefaultBackoffTable, table)

	for _, entries := range [][]string{
		nil,
		{"30s"},
		{"abc-60s"},
		{"60s-30s"},
		{"30s-60s", "45s-90s"},
		{"0s-10s"},
	} {
		_, err := ParseBackoffTable(entries)
		require.Error(t, err, "%v", entries)
	}
}

func TestFormatRemaining(t *testing.T) {
	require.Equal(t, "45s", formatRemaining(45*time.Second))
	require.Equal(t, "2m05s", formatRemaining(125*time.Second))
}
