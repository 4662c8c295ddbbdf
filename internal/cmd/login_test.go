package cmd

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/phonelens/phonelens/internal/browser/browsertest"
	"github.com/phonelens/phonelens/internal/core"
)

type stubLoginPage struct {
	checks   int
	loggedIn func(n int) bool
	err      error
}

func (p *stubLoginPage) HomeURL() string { return "https://chat.example/" }

func (p *stubLoginPage) LoggedIn(context.Context) (bool, error) {
	p.checks++
	if p.err != nil {
		return false, p.err
	}
	return p.loggedIn(p.checks), nil
}

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time { return c.now }

func (c *stepClock) Sleep(ctx context.Context, d time.Duration) error {
	c.now = c.now.Add(d)
	return ctx.Err()
}

func TestLoginGateDetectsLogin(t *testing.T) {
	browser := browsertest.New()
	page := &stubLoginPage{loggedIn: func(n int) bool { return n >= 3 }}
	gate := &loginGate{
		Browser: browser,
		Page:    page,
		Clock:   &stepClock{now: time.Unix(0, 0)},
		Timeout: time.Minute,
	}

	require.NoError(t, gate.Wait(context.Background()))
	require.Equal(t, 3, page.checks)
	require.Equal(t, "https://chat.example/", browser.URL)
}

func TestLoginGateFallsBackToPrompt(t *testing.T) {
	var out strings.Builder
	page := &stubLoginPage{loggedIn: func(int) bool { return false }}
	gate := &loginGate{
		Browser: browsertest.New(),
		Page:    page,
		Clock:   &stepClock{now: time.Unix(0, 0)},
		Timeout: 10 * time.Second,
		Prompt:  strings.NewReader("\n"),
		Out:     &out,
	}

	require.NoError(t, gate.Wait(context.Background()))
	require.Equal(t, 6, page.checks)
	require.Contains(t, out.String(), "press Enter")
}

func TestLoginGateWithoutPromptFails(t *testing.T) {
	gate := &loginGate{
		Browser: browsertest.New(),
		Page:    &stubLoginPage{loggedIn: func(int) bool { return false }},
		Clock:   &stepClock{now: time.Unix(0, 0)},
		Timeout: 4 * time.Second,
	}
	require.ErrorIs(t, gate.Wait(context.Background()), errLoginNotConfirmed)
}

func TestLoginGateClosedPrompt(t *testing.T) {
	gate := &loginGate{
		Browser: browsertest.New(),
		Page:    &stubLoginPage{loggedIn: func(int) bool { return false }},
		Clock:   &stepClock{now: time.Unix(0, 0)},
		Prompt:  strings.NewReader(""),
	}
	require.ErrorIs(t, gate.Wait(context.Background()), errLoginNotConfirmed)
}

func TestLoginGateSessionLost(t *testing.T) {
	gate := &loginGate{
		Browser: browsertest.New(),
		Page:    &stubLoginPage{err: core.ErrSessionLost},
		Clock:   &stepClock{now: time.Unix(0, 0)},
		Timeout: time.Minute,
	}
	require.ErrorIs(t, gate.Wait(context.Background()), core.ErrSessionLost)
}
