package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/phonelens/phonelens/internal/core"
)

type scriptedChecker struct {
	calls   []string
	results map[string]*core.CheckResult
	errs    map[string]error
	onRun   func(raw string)
}

func (c *scriptedChecker) Run(ctx context.Context, raw string) (*core.CheckResult, error) {
	c.calls = append(c.calls, raw)
	if c.onRun != nil {
		c.onRun(raw)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("checker saw cancelled context: %w", err)
	}
	if result, ok := c.results[raw]; ok {
		return result, c.errs[raw]
	}
	return &core.CheckResult{Phone: raw, Status: core.StatusNoAccount}, c.errs[raw]
}

type memorySink struct {
	recorded []*core.CheckResult
	flushes  []int
	batches  []int
	err      error
}

func (s *memorySink) Record(_ context.Context, result *core.CheckResult) error {
	s.recorded = append(s.recorded, result)
	return nil
}

func (s *memorySink) Flush(_ context.Context, batch int, results []*core.CheckResult) error {
	s.batches = append(s.batches, batch)
	s.flushes = append(s.flushes, len(results))
	return s.err
}

func phones(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("09000000%02d", i)
	}
	return out
}

func TestRunnerBatchesAndPauses(t *testing.T) {
	clock := newFakeClock()
	checker := &scriptedChecker{}
	runner := &Runner{
		Checker:   checker,
		Clock:     clock,
		BatchSize: 2,
		PauseMin:  10 * time.Second,
		PauseMax:  20 * time.Second,
		Jitter:    func(lo, hi time.Duration) time.Duration { return lo },
		RunID:     "run-7",
	}
	sink := &memorySink{}

	summary, err := runner.Run(context.Background(), phones(5), sink)
	require.NoError(t, err)
	require.Equal(t, phones(5), checker.calls)
	require.Len(t, sink.recorded, 5)
	require.Equal(t, []int{2, 4, 5}, sink.flushes)
	require.Equal(t, []int{1, 2, 3}, sink.batches)
	require.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, clock.Sleeps())

	require.Equal(t, "run-7", summary.RunID)
	require.Equal(t, 5, summary.Total)
	require.Equal(t, 5, summary.Processed)
	require.Equal(t, 5, summary.Counts[core.StatusNoAccount])
	require.False(t, summary.Stopped)
	require.Equal(t, 20*time.Second, summary.Elapsed())
}

func TestRunnerNoPauseAfterLastQuery(t *testing.T) {
	clock := newFakeClock()
	runner := &Runner{Checker: &scriptedChecker{}, Clock: clock, BatchSize: 2, PauseMin: time.Second, PauseMax: 2 * time.Second}
	sink := &memorySink{}

	_, err := runner.Run(context.Background(), phones(4), sink)
	require.NoError(t, err)
	require.Len(t, clock.Sleeps(), 1)
	require.Equal(t, []int{2, 4}, sink.flushes)
}

func TestRunnerStopsAtQueryBoundary(t *testing.T) {
	runner := &Runner{Clock: newFakeClock(), BatchSize: 10}
	checker := &scriptedChecker{}
	checker.onRun = func(raw string) {
		if len(checker.calls) == 3 {
			runner.Stop()
		}
	}
	runner.Checker = checker
	sink := &memorySink{}

	summary, err := runner.Run(context.Background(), phones(8), sink)
	require.NoError(t, err)
	require.True(t, summary.Stopped)
	require.Equal(t, 3, summary.Processed)
	require.Equal(t, []int{3}, sink.flushes)
	runner.Stop()
}

func TestRunnerCancellationLetsInFlightCheckFinish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checker := &scriptedChecker{}
	checker.onRun = func(raw string) {
		if len(checker.calls) == 2 {
			cancel()
		}
	}
	runner := &Runner{Checker: checker, Clock: newFakeClock(), BatchSize: 10}
	sink := &memorySink{}

	summary, err := runner.Run(ctx, phones(5), sink)
	require.NoError(t, err)
	require.True(t, summary.Stopped)
	require.Equal(t, 2, summary.Processed)
	for _, result := range sink.recorded {
		require.Equal(t, core.StatusNoAccount, result.Status)
	}
}

func TestRunnerStopInterruptsPause(t *testing.T) {
	runner := &Runner{
		Clock:     core.SystemClock{},
		BatchSize: 1,
		PauseMin:  time.Hour,
		PauseMax:  time.Hour,
	}
	runner.Checker = &scriptedChecker{onRun: func(string) { runner.Stop() }}

	done := make(chan *core.RunSummary, 1)
	go func() {
		summary, _ := runner.Run(context.Background(), phones(3), &memorySink{})
		done <- summary
	}()

	select {
	case summary := <-done:
		require.True(t, summary.Stopped)
		require.Equal(t, 1, summary.Processed)
	case <-time.After(5 * time.Second):
		t.Fatal("pause was not interrupted")
	}
}

func TestRunnerRecoversAfterSessionLoss(t *testing.T) {
	lost := fmt.Errorf("check 0900000001: %w", core.ErrSessionLost)
	checker := &scriptedChecker{
		results: map[string]*core.CheckResult{
			"0900000001": {Phone: "0900000001", Status: core.StatusError, Reason: "target closed"},
		},
		errs: map[string]error{"0900000001": lost},
	}
	recovered := 0
	runner := &Runner{
		Checker:   checker,
		Clock:     newFakeClock(),
		BatchSize: 10,
		Recover: func(ctx context.Context) error {
			recovered++
			return nil
		},
	}

	summary, err := runner.Run(context.Background(), phones(3), &memorySink{})
	require.NoError(t, err)
	require.Equal(t, 1, recovered)
	require.Equal(t, 3, summary.Processed)
	require.Equal(t, 1, summary.Counts[core.StatusError])
	require.Equal(t, 2, summary.Counts[core.StatusNoAccount])
}

func TestRunnerContinuesWhenRecoveryFails(t *testing.T) {
	checker := &scriptedChecker{errs: map[string]error{"0900000000": core.ErrSessionLost}}
	runner := &Runner{
		Checker:   checker,
		Clock:     newFakeClock(),
		BatchSize: 10,
		Recover:   func(ctx context.Context) error { return errors.New("chrome not found") },
	}

	summary, err := runner.Run(context.Background(), phones(2), nil)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Processed)
}

func TestRunnerSynthesizesMissingResult(t *testing.T) {
	checker := &scriptedChecker{
		results: map[string]*core.CheckResult{"0900000000": nil},
		errs:    map[string]error{"0900000000": errors.New("boom")},
	}
	runner := &Runner{Checker: checker, Clock: newFakeClock()}
	sink := &memorySink{}

	summary, err := runner.Run(context.Background(), phones(1), sink)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Counts[core.StatusError])
	require.Equal(t, "boom", sink.recorded[0].Reason)
}

func TestRunnerFlushFailureAbortsRun(t *testing.T) {
	runner := &Runner{Checker: &scriptedChecker{}, Clock: newFakeClock(), BatchSize: 1}
	sink := &memorySink{err: errors.New("disk full")}

	summary, err := runner.Run(context.Background(), phones(3), sink)
	require.ErrorContains(t, err, "disk full")
	require.Equal(t, 1, summary.Processed)
}
