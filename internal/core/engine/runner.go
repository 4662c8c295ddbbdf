package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/phonelens/phonelens/internal/core"
)

// Checker runs a single lookup.
type Checker interface {
	Run(ctx context.Context, raw string) (*core.CheckResult, error)
}

// ResultSink receives results as they are produced and the accumulated set
// at every batch boundary.
type ResultSink interface {
	Record(ctx context.Context, result *core.CheckResult) error
	Flush(ctx context.Context, batch int, results []*core.CheckResult) error
}

// Runner drives a Checker over an input list, one query at a time.
type Runner struct {
	Checker Checker
	Clock   core.ClockPort
	Logger  *zap.Logger

	BatchSize int
	PauseMin  time.Duration
	PauseMax  time.Duration
	Jitter    func(lo, hi time.Duration) time.Duration

	// Recover recreates the browser after session loss.
	Recover func(ctx context.Context) error

	RunID string

	stopOnce sync.Once
	stop     chan struct{}
	mu       sync.Mutex
}

// Stop requests cancellation. It takes effect at the next query boundary or
// interrupts an inter-batch pause.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan())
	})
}

func (r *Runner) stopChan() chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop == nil {
		r.stop = make(chan struct{})
	}
	return r.stop
}

func (r *Runner) stopped(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-r.stopChan():
		return true
	default:
		return false
	}
}

// Run processes queries in order and returns the run summary. Per-query
// failures never abort the run; only sink flush failures do.
func (r *Runner) Run(ctx context.Context, queries []string, sink ResultSink) (*core.RunSummary, error) {
	if r == nil || r.Checker == nil {
		return nil, errors.New("runner is not configured")
	}

	runID := r.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	summary := &core.RunSummary{
		RunID:     runID,
		Total:     len(queries),
		Counts:    make(map[core.Status]int, len(core.AllStatuses)),
		StartedAt: r.now(),
	}

	batchSize := r.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}

	r.logger().Info("Starting run",
		zap.String("run_id", runID),
		zap.Int("total", len(queries)),
		zap.Int("batch_size", batchSize),
	)

	results := make([]*core.CheckResult, 0, len(queries))
	batch := 0
	flushed := 0

	flush := func() error {
		if sink == nil || flushed == len(results) {
			return nil
		}
		batch++
		flushed = len(results)
		if err := sink.Flush(context.WithoutCancel(ctx), batch, results); err != nil {
			return fmt.Errorf("flush batch %d: %w", batch, err)
		}
		r.logger().Info("Saved batch", zap.Int("batch", batch), zap.Int("results", len(results)))
		return nil
	}

	for i, raw := range queries {
		if r.stopped(ctx) {
			summary.Stopped = true
			r.logger().Info("Run stopped", zap.Int("processed", summary.Processed))
			break
		}

		result := r.check(ctx, raw)
		results = append(results, result)
		summary.Add(result)

		if sink != nil {
			if err := sink.Record(context.WithoutCancel(ctx), result); err != nil {
				r.logger().Warn("Failed to record result", zap.String("phone", result.Phone), zap.Error(err))
			}
		}

		r.logger().Info("Processed",
			zap.Int("index", i+1),
			zap.Int("total", len(queries)),
			zap.String("phone", result.Phone),
			zap.String("status", string(result.Status)),
		)

		if (i+1)%batchSize == 0 && i+1 < len(queries) {
			if err := flush(); err != nil {
				summary.FinishedAt = r.now()
				return summary, err
			}
			if err := r.pause(ctx); err != nil {
				summary.Stopped = true
				r.logger().Info("Run stopped during pause", zap.Int("processed", summary.Processed))
				break
			}
		}
	}

	if err := flush(); err != nil {
		summary.FinishedAt = r.now()
		return summary, err
	}

	summary.FinishedAt = r.now()
	r.logger().Info("Run finished",
		zap.String("run_id", runID),
		zap.Int("processed", summary.Processed),
		zap.Duration("elapsed", summary.Elapsed()),
		zap.Float64("per_minute", summary.PerMinute()),
	)
	return summary, nil
}

func (r *Runner) check(ctx context.Context, raw string) *core.CheckResult {
	// An in-flight check always finishes; cancellation is observed between queries.
	result, err := r.Checker.Run(context.WithoutCancel(ctx), raw)
	if result == nil {
		reason := "no result"
		if err != nil {
			reason = err.Error()
		}
		now := r.now()
		result = &core.CheckResult{
			Phone:  raw,
			Status: core.StatusError,
			Reason: reason,
			Provenance: core.Provenance{
				CheckID:     uuid.New().String(),
				RunID:       r.RunID,
				RequestedAt: now,
				ResolvedAt:  now,
				Source:      cycleSource,
			},
		}
	}

	if err != nil && errors.Is(err, core.ErrSessionLost) {
		r.logger().Error("Browser session lost", zap.String("phone", result.Phone), zap.Error(err))
		if r.Recover != nil {
			if recoverErr := r.Recover(context.WithoutCancel(ctx)); recoverErr != nil {
				r.logger().Error("Browser recovery failed", zap.Error(recoverErr))
			} else {
				r.logger().Info("Browser recovered")
			}
		}
	}
	return result
}

func (r *Runner) pause(ctx context.Context) error {
	wait := r.jitter(r.PauseMin, r.PauseMax)
	if wait <= 0 {
		return nil
	}
	r.logger().Info("Pausing between batches", zap.Duration("wait", wait))

	pauseCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-r.stopChan():
			cancel()
		case <-done:
		}
	}()

	return r.clock().Sleep(pauseCtx, wait)
}

func (r *Runner) jitter(lo, hi time.Duration) time.Duration {
	if lo <= 0 && hi <= 0 {
		lo, hi = 30*time.Second, 120*time.Second
	}
	if r.Jitter != nil {
		return r.Jitter(lo, hi)
	}
	return RandomBetween(lo, hi)
}

func (r *Runner) clock() core.ClockPort {
	if r.Clock != nil {
		return r.Clock
	}
	return core.SystemClock{}
}

func (r *Runner) now() time.Time {
	return r.clock().Now()
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return zap.NewNop()
}
