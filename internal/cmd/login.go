package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/phonelens/phonelens/internal/core"
)

const loginPollInterval = 2 * time.Second

var errLoginNotConfirmed = errors.New("login not confirmed")

// loginPage is the page surface the login gate needs.
type loginPage interface {
	HomeURL() string
	LoggedIn(ctx context.Context) (bool, error)
}

// loginGate blocks until an authenticated session is observed, or the
// operator confirms one on the terminal.
type loginGate struct {
	Browser core.BrowserPort
	Page    loginPage
	Clock   core.ClockPort
	Logger  *zap.Logger

	Timeout      time.Duration
	PollInterval time.Duration

	// Prompt is nil when no terminal is available, as during a dashboard run.
	Prompt io.Reader
	Out    io.Writer
}

func (g *loginGate) Wait(ctx context.Context) error {
	clock := g.Clock
	if clock == nil {
		clock = core.SystemClock{}
	}
	logger := g.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := g.PollInterval
	if interval <= 0 {
		interval = loginPollInterval
	}

	if err := g.Browser.Navigate(ctx, g.Page.HomeURL()); err != nil {
		return fmt.Errorf("open home page: %w", err)
	}

	deadline := clock.Now().Add(g.Timeout)
	for {
		ok, err := g.Page.LoggedIn(ctx)
		if err != nil && errors.Is(err, core.ErrSessionLost) {
			return err
		}
		if ok {
			logger.Info("Login detected")
			return nil
		}
		if !clock.Now().Before(deadline) {
			break
		}
		if err := clock.Sleep(ctx, interval); err != nil {
			return err
		}
	}

	if g.Prompt == nil {
		return errLoginNotConfirmed
	}

	logger.Warn("Login not detected", zap.Duration("waited", g.Timeout))
	out := g.Out
	if out == nil {
		out = io.Discard
	}
	fmt.Fprintln(out, "Log in in the browser window, then press Enter to continue.")
	return waitForEnter(ctx, g.Prompt)
}

// waitForEnter returns after one line is read from r. A blocked read is
// abandoned when ctx ends.
func waitForEnter(ctx context.Context, r io.Reader) error {
	done := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(r).ReadString('\n')
		if errors.Is(err, io.EOF) {
			err = errLoginNotConfirmed
		}
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
