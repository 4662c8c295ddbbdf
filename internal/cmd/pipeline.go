package cmd

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/phonelens/phonelens/internal/browser"
	"github.com/phonelens/phonelens/internal/config"
	"github.com/phonelens/phonelens/internal/core"
	"github.com/phonelens/phonelens/internal/core/checker"
	"github.com/phonelens/phonelens/internal/core/engine"
	apperrors "github.com/phonelens/phonelens/internal/errors"
)

// pipeline holds one browser session and the check cycle driving it.
type pipeline struct {
	cfg     *config.Config
	logger  *zap.Logger
	session *browser.Session
	page    *checker.Page
	cycle   *engine.CheckCycle
	gate    *loginGate
}

type pipelineOptions struct {
	RunID  string
	Events engine.LimitEventRecorder
	Prompt io.Reader
	Out    io.Writer
}

func newPipeline(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts pipelineOptions) (*pipeline, error) {
	strategies, err := checker.LoadStrategies(cfg.Checker.StrategiesFile)
	if err != nil {
		return nil, apperrors.WrapConfigInvalid(ctx, err, "failed to load DOM strategies")
	}
	table, err := engine.ParseBackoffTable(cfg.Backoff.Waits)
	if err != nil {
		return nil, apperrors.WrapConfigInvalid(ctx, err, "invalid backoff.waits")
	}
	noSignal, err := engine.ParseNoSignalPolicy(cfg.Checker.NoSignal)
	if err != nil {
		return nil, apperrors.WrapConfigInvalid(ctx, err, "invalid checker.no_signal")
	}

	session, err := browser.New(ctx, cfg.Browser, logger.Named("browser"))
	if err != nil {
		return nil, apperrors.WrapBrowserUnavailable(ctx, err, "failed to start browser")
	}

	clock := core.SystemClock{}
	page := checker.NewPage(session, strategies, logger.Named("page"))
	limits := &engine.LimitPolicy{
		Browser:       session,
		Page:          page,
		Clock:         clock,
		Logger:        logger.Named("backoff"),
		Table:         table,
		ProgressEvery: cfg.Backoff.ProgressInterval,
		SettleDelay:   cfg.Backoff.SettleDelay,
		RunID:         opts.RunID,
	}
	if opts.Events != nil {
		limits.Events = opts.Events
	}

	cycle := &engine.CheckCycle{
		Browser:      session,
		Page:         page,
		Limits:       limits,
		Clock:        clock,
		Logger:       logger.Named("cycle"),
		MinInterval:  cfg.Checker.MinInterval,
		PollAttempts: cfg.Checker.PollAttempts,
		PollInterval: cfg.Checker.PollInterval,
		ResetTimeout: cfg.Checker.ResetTimeout,
		NoSignal:     noSignal,
		RunID:        opts.RunID,
		ToolVersion:  versionInfo.Version,
	}

	return &pipeline{
		cfg:     cfg,
		logger:  logger,
		session: session,
		page:    page,
		cycle:   cycle,
		gate: &loginGate{
			Browser: session,
			Page:    page,
			Clock:   clock,
			Logger:  logger.Named("login"),
			Timeout: cfg.Checker.LoginTimeout,
			Prompt:  opts.Prompt,
			Out:     opts.Out,
		},
	}, nil
}

// Login blocks until the session is authenticated.
func (p *pipeline) Login(ctx context.Context) error {
	if err := p.gate.Wait(ctx); err != nil {
		return apperrors.WrapBrowserUnavailable(ctx, err, "login was not confirmed")
	}
	return nil
}

// Recover replaces a lost browser and waits for the login again. It runs
// without a terminal prompt once a dashboard owns stdin.
func (p *pipeline) Recover(ctx context.Context) error {
	p.logger.Warn("Browser session lost, restarting")
	if err := p.session.Restart(ctx); err != nil {
		return fmt.Errorf("restart browser: %w", err)
	}
	if err := p.gate.Wait(ctx); err != nil {
		return fmt.Errorf("login after restart: %w", err)
	}
	p.cycle.Reset(ctx)
	return nil
}

func (p *pipeline) Close() {
	if err := p.session.Close(); err != nil {
		p.logger.Debug("Browser close failed", zap.Error(err))
	}
}
