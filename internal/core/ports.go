package core

import (
	"context"
	"errors"
	"time"
)

// ErrSessionLost marks browser failures that leave no usable session behind.
// Callers treat it as fatal for the current browser and recreate it.
var ErrSessionLost = errors.New("browser session lost")

// ElementRef is an opaque handle to a DOM element returned by a BrowserPort.
type ElementRef struct {
	Selector string
	Index    int
	Handle   any
}

// BrowserPort is the browser capability a check drives. Calls are blocking.
type BrowserPort interface {
	Navigate(ctx context.Context, url string) error
	FindElements(ctx context.Context, selector string) ([]ElementRef, error)
	IsVisible(ctx context.Context, el ElementRef) (bool, error)
	// GetAttribute returns the attribute value and whether it was present.
	// The pseudo attribute "textContent" reads the element text.
	GetAttribute(ctx context.Context, el ElementRef, name string) (string, bool, error)
	Click(ctx context.Context, el ElementRef) error
	// RunScript executes code as a function body; args are exposed as arguments[i].
	RunScript(ctx context.Context, code string, args ...any) (any, error)
	CurrentURL(ctx context.Context) (string, error)
	PageSource(ctx context.Context) (string, error)
}

// ClockPort abstracts time for throttling and backoff.
type ClockPort interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Sleep blocks for d or until ctx is done.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// LimitEvent records one rate-limit detection and how the backoff ended.
type LimitEvent struct {
	RunID      string        `json:"run_id,omitempty"`
	Count      int           `json:"count"`
	Wait       time.Duration `json:"wait"`
	Recovered  bool          `json:"recovered"`
	DetectedAt time.Time     `json:"detected_at"`
}
