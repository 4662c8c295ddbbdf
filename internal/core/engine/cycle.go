package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/phonelens/phonelens/internal/core"
)

const cycleSource = "web"

// Stage is a CheckCycle state.
type Stage string

const (
	StageIdle            Stage = "idle"
	StageNavigated       Stage = "navigated"
	StageAwaitingOutcome Stage = "awaiting_outcome"
	StageClassified      Stage = "classified"
	StageLimitDetected   Stage = "limit_detected"
	StageReset           Stage = "reset"
)

// NoSignalPolicy names the classification used when polling sees neither a
// modal nor a not-found marker. A missed positive (slow load, new markup) and
// a genuine negative look the same from here.
type NoSignalPolicy string

const (
	NoSignalNoAccount NoSignalPolicy = "no_account"
	NoSignalUnknown   NoSignalPolicy = "unknown"
)

// ParseNoSignalPolicy validates a policy name; empty means no_account.
func ParseNoSignalPolicy(value string) (NoSignalPolicy, error) {
	switch NoSignalPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", NoSignalNoAccount:
		return NoSignalNoAccount, nil
	case NoSignalUnknown:
		return NoSignalUnknown, nil
	default:
		return "", fmt.Errorf("unknown no-signal policy: %s", value)
	}
}

func (p NoSignalPolicy) status() core.Status {
	if p == NoSignalUnknown {
		return core.StatusUnknown
	}
	return core.StatusNoAccount
}

// Inspector reads the outcome of a search from the page.
type Inspector interface {
	Limited(ctx context.Context) (bool, error)
	Modal(ctx context.Context) (core.ElementRef, bool, error)
	DisplayName(ctx context.Context, modal core.ElementRef) (string, error)
	NotFound(ctx context.Context) (bool, error)
	Dismiss(ctx context.Context) error
	SearchURL(number string) string
}

// Limiter runs one backoff step against the shared limit state.
type Limiter interface {
	Handle(ctx context.Context, state *core.LimitState) (bool, error)
}

// CheckCycle runs one phone lookup to a terminal classification. It owns the
// process's LimitState and is not safe for concurrent use: the browser it
// drives is a single shared page.
type CheckCycle struct {
	Browser core.BrowserPort
	Page    Inspector
	Limits  Limiter
	Clock   core.ClockPort
	Logger  *zap.Logger

	MinInterval  time.Duration
	PollAttempts int
	PollInterval time.Duration
	ResetTimeout time.Duration
	NoSignal     NoSignalPolicy

	RunID       string
	ToolVersion string

	state core.LimitState
	stage Stage
}

// Run checks one raw phone number. The result is never nil. The error is
// non-nil only when the browser session was lost; the result then carries
// the failure as an error status.
func (c *CheckCycle) Run(ctx context.Context, raw string) (*core.CheckResult, error) {
	requestedAt := c.now()

	query, err := core.NewPhoneQuery(raw)
	if err != nil {
		c.logger().Info("Skipping invalid number", zap.String("input", raw), zap.Error(err))
		return c.result(query.Number, core.StatusInvalid, "", err.Error(), requestedAt), nil
	}

	if c.Browser == nil || c.Page == nil {
		return c.result(query.Number, core.StatusError, "", "check cycle is not configured", requestedAt), nil
	}

	if err := c.throttle(ctx); err != nil {
		return c.failure(query, err, requestedAt)
	}

	result, runErr := c.search(ctx, query, requestedAt)
	c.reset(ctx)
	c.setStage(StageIdle)
	return result, runErr
}

// Reset dismisses any open modal. Failures are logged and swallowed.
func (c *CheckCycle) Reset(ctx context.Context) {
	c.reset(ctx)
	c.setStage(StageIdle)
}

// LimitState returns a copy of the current limit state.
func (c *CheckCycle) LimitState() core.LimitState {
	return c.state
}

// Stage returns the current state machine stage.
func (c *CheckCycle) Stage() Stage {
	if c.stage == "" {
		return StageIdle
	}
	return c.stage
}

func (c *CheckCycle) search(ctx context.Context, query core.PhoneQuery, requestedAt time.Time) (*core.CheckResult, error) {
	limited, err := c.Page.Limited(ctx)
	if err != nil {
		return c.failure(query, err, requestedAt)
	}
	if limited {
		c.setStage(StageLimitDetected)
		if c.Limits == nil {
			return c.result(query.Number, core.StatusRateLimited, "", "search limit exceeded", requestedAt), nil
		}
		cleared, err := c.Limits.Handle(ctx, &c.state)
		if err != nil {
			return c.failure(query, err, requestedAt)
		}
		if !cleared {
			return c.result(query.Number, core.StatusRateLimited, "", "search limit exceeded", requestedAt), nil
		}
	}

	c.logger().Debug("Checking number", zap.String("phone", query.Number))
	if err := c.Browser.Navigate(ctx, c.Page.SearchURL(query.Number)); err != nil {
		return c.failure(query, fmt.Errorf("open search view: %w", err), requestedAt)
	}
	c.setStage(StageNavigated)

	c.setStage(StageAwaitingOutcome)
	attempts := c.PollAttempts
	if attempts <= 0 {
		attempts = 10
	}
	for i := 0; i < attempts; i++ {
		modal, open, err := c.Page.Modal(ctx)
		if err != nil {
			return c.failure(query, err, requestedAt)
		}
		if open {
			name, err := c.Page.DisplayName(ctx, modal)
			if err != nil {
				return c.failure(query, err, requestedAt)
			}
			c.setStage(StageClassified)
			c.logger().Info("Account found", zap.String("phone", query.Number), zap.String("name", name))
			return c.result(query.Number, core.StatusHasAccount, name, "", requestedAt), nil
		}

		notFound, err := c.Page.NotFound(ctx)
		if err != nil {
			return c.failure(query, err, requestedAt)
		}
		if notFound {
			c.setStage(StageClassified)
			c.logger().Info("No account", zap.String("phone", query.Number))
			return c.result(query.Number, core.StatusNoAccount, "", "", requestedAt), nil
		}

		if i < attempts-1 {
			if err := c.clock().Sleep(ctx, c.pollInterval()); err != nil {
				return c.failure(query, err, requestedAt)
			}
		}
	}

	c.setStage(StageClassified)
	status := c.NoSignal.status()
	c.logger().Info("No signal within poll budget",
		zap.String("phone", query.Number),
		zap.String("policy", string(c.NoSignal)),
		zap.String("status", string(status)),
	)
	return c.result(query.Number, status, "", "", requestedAt), nil
}

func (c *CheckCycle) throttle(ctx context.Context) error {
	if !c.state.LastSearch.IsZero() && c.MinInterval > 0 {
		elapsed := c.now().Sub(c.state.LastSearch)
		if elapsed < c.MinInterval {
			if err := c.clock().Sleep(ctx, c.MinInterval-elapsed); err != nil {
				return fmt.Errorf("throttle: %w", err)
			}
		}
	}
	c.state.LastSearch = c.now()
	return nil
}

func (c *CheckCycle) reset(ctx context.Context) {
	c.setStage(StageReset)

	timeout := c.ResetTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	resetCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := c.Page.Dismiss(resetCtx); err != nil {
		c.logger().Debug("Reset failed", zap.Error(err))
	}
}

func (c *CheckCycle) failure(query core.PhoneQuery, err error, requestedAt time.Time) (*core.CheckResult, error) {
	c.logger().Warn("Check failed", zap.String("phone", query.Number), zap.Error(err))
	result := c.result(query.Number, core.StatusError, "", err.Error(), requestedAt)
	if errors.Is(err, core.ErrSessionLost) {
		return result, fmt.Errorf("check %s: %w", query.Number, err)
	}
	return result, nil
}

func (c *CheckCycle) result(phone string, status core.Status, name, reason string, requestedAt time.Time) *core.CheckResult {
	var runID, toolVersion string
	if c != nil {
		runID, toolVersion = c.RunID, c.ToolVersion
	}
	return &core.CheckResult{
		Phone:  phone,
		Status: status,
		Name:   name,
		Reason: reason,
		Provenance: core.Provenance{
			CheckID:     uuid.New().String(),
			RunID:       runID,
			RequestedAt: requestedAt,
			ResolvedAt:  c.now(),
			Source:      cycleSource,
			ToolVersion: toolVersion,
		},
	}
}

func (c *CheckCycle) setStage(stage Stage) {
	if c.stage != stage {
		c.logger().Debug("Check stage", zap.String("from", string(c.Stage())), zap.String("to", string(stage)))
	}
	c.stage = stage
}

func (c *CheckCycle) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return 500 * time.Millisecond
}

func (c *CheckCycle) clock() core.ClockPort {
	if c != nil && c.Clock != nil {
		return c.Clock
	}
	return core.SystemClock{}
}

func (c *CheckCycle) now() time.Time {
	return c.clock().Now()
}

func (c *CheckCycle) logger() *zap.Logger {
	if c != nil && c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}
