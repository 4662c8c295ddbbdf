package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/phonelens/phonelens/internal/core"
)

// BackoffStep is a wait range [Min, Max).
type BackoffStep struct {
	Min time.Duration
	Max time.Duration
}

// DefaultBackoffTable escalates with consecutive detections; the last step caps it.
var DefaultBackoffTable = []BackoffStep{
	{Min: 30 * time.Second, Max: 60 * time.Second},
	{Min: 120 * time.Second, Max: 180 * time.Second},
	{Min: 300 * time.Second, Max: 420 * time.Second},
	{Min: 600 * time.Second, Max: 900 * time.Second},
}

// LimitPage is the page surface the backoff policy needs.
type LimitPage interface {
	Limited(ctx context.Context) (bool, error)
	DismissNotice(ctx context.Context) error
	HomeURL() string
}

// LimitEventRecorder persists limit detections.
type LimitEventRecorder interface {
	RecordLimitEvent(ctx context.Context, event core.LimitEvent) error
}

// LimitPolicy waits out platform rate limits. It never loops: one call is one
// escalation step, and the caller decides what to do when it fails.
type LimitPolicy struct {
	Browser core.BrowserPort
	Page    LimitPage
	Clock   core.ClockPort
	Logger  *zap.Logger
	Events  LimitEventRecorder

	Table         []BackoffStep
	ProgressEvery time.Duration
	SettleDelay   time.Duration
	Jitter        func(lo, hi time.Duration) time.Duration
	RunID         string
}

// StepFor returns the wait range for the given consecutive detection count.
func (p *LimitPolicy) StepFor(count int) BackoffStep {
	table := DefaultBackoffTable
	if p != nil && len(p.Table) > 0 {
		table = p.Table
	}
	idx := count - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(table) {
		idx = len(table) - 1
	}
	return table[idx]
}

// Handle runs one backoff step. It returns true when the page is no longer
// limited, in which case the detection count is reset.
func (p *LimitPolicy) Handle(ctx context.Context, state *core.LimitState) (bool, error) {
	if p == nil || p.Browser == nil || p.Page == nil {
		return false, errors.New("limit policy is not configured")
	}
	if state == nil {
		return false, errors.New("limit state is required")
	}

	state.Count++
	step := p.StepFor(state.Count)
	wait := p.jitter(step.Min, step.Max)
	detectedAt := p.now()

	p.logger().Warn("Search limit detected, backing off",
		zap.Int("limit_count", state.Count),
		zap.Duration("wait", wait),
	)

	if err := p.Page.DismissNotice(ctx); err != nil {
		if errors.Is(err, core.ErrSessionLost) {
			return false, err
		}
		p.logger().Debug("Dismissing limit notice failed", zap.Error(err))
	}

	if err := p.wait(ctx, wait); err != nil {
		return false, fmt.Errorf("limit backoff: %w", err)
	}

	if err := p.Browser.Navigate(ctx, p.Page.HomeURL()); err != nil {
		return false, fmt.Errorf("reload after backoff: %w", err)
	}
	if p.SettleDelay > 0 {
		if err := p.clock().Sleep(ctx, p.SettleDelay); err != nil {
			return false, err
		}
	}

	limited, err := p.Page.Limited(ctx)
	if err != nil {
		return false, fmt.Errorf("re-probe after backoff: %w", err)
	}

	p.record(ctx, core.LimitEvent{
		RunID:      p.RunID,
		Count:      state.Count,
		Wait:       wait,
		Recovered:  !limited,
		DetectedAt: detectedAt,
	})

	if limited {
		p.logger().Warn("Still limited after backoff", zap.Int("limit_count", state.Count))
		return false, nil
	}

	p.logger().Info("Search limit cleared", zap.Int("limit_count", state.Count))
	state.Count = 0
	return true, nil
}

func (p *LimitPolicy) wait(ctx context.Context, total time.Duration) error {
	every := p.ProgressEvery
	if every <= 0 {
		every = 30 * time.Second
	}

	remaining := total
	for remaining > 0 {
		chunk := min(remaining, every)
		if err := p.clock().Sleep(ctx, chunk); err != nil {
			return err
		}
		remaining -= chunk
		if remaining > 0 {
			p.logger().Info("Limit cooldown", zap.String("remaining", formatRemaining(remaining)))
		}
	}
	return nil
}

func (p *LimitPolicy) record(ctx context.Context, event core.LimitEvent) {
	if p.Events == nil {
		return
	}
	if err := p.Events.RecordLimitEvent(ctx, event); err != nil {
		p.logger().Warn("Failed to record limit event", zap.Error(err))
	}
}

func (p *LimitPolicy) jitter(lo, hi time.Duration) time.Duration {
	if p.Jitter != nil {
		return p.Jitter(lo, hi)
	}
	return RandomBetween(lo, hi)
}

func (p *LimitPolicy) clock() core.ClockPort {
	if p.Clock != nil {
		return p.Clock
	}
	return core.SystemClock{}
}

func (p *LimitPolicy) now() time.Time {
	return p.clock().Now()
}

func (p *LimitPolicy) logger() *zap.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return zap.NewNop()
}

// RandomBetween draws uniformly from [lo, hi). A degenerate range returns lo.
func RandomBetween(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}

// ParseBackoffTable parses entries such as "30s-60s".
func ParseBackoffTable(entries []string) ([]BackoffStep, error) {
	table := make([]BackoffStep, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		lo, hi, ok := strings.Cut(entry, "-")
		if !ok {
			return nil, fmt.Errorf("invalid backoff step %q: want min-max", entry)
		}
		minWait, err := time.ParseDuration(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid backoff step %q: %w", entry, err)
		}
		maxWait, err := time.ParseDuration(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("invalid backoff step %q: %w", entry, err)
		}
		if minWait <= 0 || maxWait < minWait {
			return nil, fmt.Errorf("invalid backoff step %q: range must be positive and ordered", entry)
		}
		// Any draw from a later step must be at least any draw from an earlier one.
		if n := len(table); n > 0 && minWait < table[n-1].Max {
			return nil, fmt.Errorf("invalid backoff step %q: must start at or after %s", entry, table[n-1].Max)
		}
		table = append(table, BackoffStep{Min: minWait, Max: maxWait})
	}
	if len(table) == 0 {
		return nil, errors.New("backoff table is empty")
	}
	return table, nil
}

func formatRemaining(d time.Duration) string {
	d = d.Round(time.Second)
	minutes := int(d / time.Minute)
	seconds := int((d % time.Minute) / time.Second)
	if minutes > 0 {
		return fmt.Sprintf("%dm%02ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
