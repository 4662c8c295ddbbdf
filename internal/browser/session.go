// Package browser drives a real Chrome instance over the DevTools protocol.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/phonelens/phonelens/internal/config"
	"github.com/phonelens/phonelens/internal/core"
)

const (
	defaultNavigateTimeout = 30 * time.Second
	defaultActionTimeout   = 10 * time.Second
	shutdownTimeout        = 10 * time.Second
)

const visibleFunction = `function() {
	const rect = this.getBoundingClientRect();
	const style = window.getComputedStyle(this);
	return rect.width > 0 && rect.height > 0 && style.display !== 'none' && style.visibility !== 'hidden' && style.opacity !== '0';
}`

// Session is a chromedp-backed core.BrowserPort. It owns one browser
// process and one tab; callers must not use it concurrently.
type Session struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
}

var _ core.BrowserPort = (*Session)(nil)

// New launches Chrome and opens a tab.
func New(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{cfg: cfg, logger: logger}
	if err := s.start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// AllocatorOptions builds the exec allocator options for cfg.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}
	if dir := strings.TrimSpace(cfg.UserDataDir); dir != "" {
		opts = append(opts, chromedp.UserDataDir(dir))
	}
	if path := strings.TrimSpace(cfg.ExecPath); path != "" {
		opts = append(opts, chromedp.ExecPath(path))
	}
	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		if name, value, ok := strings.Cut(arg, "="); ok {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(arg, true))
		}
	}
	return opts
}

func (s *Session) start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The browser outlives any single request context.
	base := context.WithoutCancel(ctx)
	allocCtx, allocCancel := chromedp.NewExecAllocator(base, AllocatorOptions(s.cfg)...)
	sugar := s.logger.Sugar()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)

	// The first Run launches the browser process.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return fmt.Errorf("launch browser: %w", err)
	}

	s.allocCtx, s.allocCancel = allocCtx, allocCancel
	s.tabCtx, s.tabCancel = tabCtx, tabCancel
	s.logger.Info("Browser started",
		zap.Bool("headless", s.cfg.Headless),
		zap.String("user_data_dir", s.cfg.UserDataDir),
	)
	return nil
}

// Restart tears the browser down and launches a fresh one. It blocks until
// both steps finish and ignores cancellation of ctx.
func (s *Session) Restart(ctx context.Context) error {
	if err := s.Close(); err != nil {
		s.logger.Debug("Browser close before restart failed", zap.Error(err))
	}
	return s.start(context.WithoutCancel(ctx))
}

// Close shuts the browser down.
func (s *Session) Close() error {
	s.mu.Lock()
	tabCtx, tabCancel, allocCancel := s.tabCtx, s.tabCancel, s.allocCancel
	s.tabCtx, s.tabCancel, s.allocCtx, s.allocCancel = nil, nil, nil, nil
	s.mu.Unlock()

	if tabCtx == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- chromedp.Cancel(tabCtx)
	}()

	var err error
	select {
	case err = <-done:
	case <-time.After(shutdownTimeout):
		err = errors.New("browser shutdown timed out")
	}
	tabCancel()
	allocCancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close browser: %w", err)
	}
	s.logger.Debug("Browser closed")
	return nil
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, "navigate", s.timeout(s.cfg.NavigateTimeout, defaultNavigateTimeout), chromedp.Navigate(url))
}

// FindElements returns every element matching selector, possibly none.
func (s *Session) FindElements(ctx context.Context, selector string) ([]core.ElementRef, error) {
	var nodes []*cdp.Node
	err := s.run(ctx, "find "+selector, s.actionTimeout(),
		chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
	)
	if err != nil {
		return nil, err
	}

	refs := make([]core.ElementRef, 0, len(nodes))
	for i, node := range nodes {
		refs = append(refs, core.ElementRef{Selector: selector, Index: i, Handle: node})
	}
	return refs, nil
}

// IsVisible reports whether the element has a box and is not hidden by style.
func (s *Session) IsVisible(ctx context.Context, el core.ElementRef) (bool, error) {
	var visible bool
	present, err := s.callOn(ctx, el, visibleFunction, &visible)
	if err != nil || !present {
		return false, err
	}
	return visible, nil
}

// GetAttribute reads an attribute, or the element text for "textContent".
func (s *Session) GetAttribute(ctx context.Context, el core.ElementRef, name string) (string, bool, error) {
	var fn string
	if name == "textContent" {
		fn = `function() { return this.textContent; }`
	} else {
		quoted, err := json.Marshal(name)
		if err != nil {
			return "", false, err
		}
		fn = fmt.Sprintf(`function() { return this.getAttribute(%s); }`, quoted)
	}

	var value *string
	present, err := s.callOn(ctx, el, fn, &value)
	if err != nil || !present || value == nil {
		return "", false, err
	}
	return *value, true, nil
}

// Click dispatches a mouse click at the element's center.
func (s *Session) Click(ctx context.Context, el core.ElementRef) error {
	node, err := nodeOf(el)
	if err != nil {
		return err
	}
	return s.run(ctx, "click "+el.Selector, s.actionTimeout(), chromedp.MouseClickNode(node))
}

// RunScript runs code as a function body with args bound to arguments[i].
// The return value is round-tripped through JSON.
func (s *Session) RunScript(ctx context.Context, code string, args ...any) (any, error) {
	if args == nil {
		args = []any{}
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode script args: %w", err)
	}
	script := fmt.Sprintf(`JSON.stringify({value: (function() {%s}).apply(null, %s) ?? null})`, code, encoded)

	var raw string
	if err := s.run(ctx, "script", s.actionTimeout(), chromedp.Evaluate(script, &raw)); err != nil {
		return nil, err
	}

	var out struct {
		Value any `json:"value"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode script result: %w", err)
	}
	return out.Value, nil
}

// CurrentURL returns the tab's location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, "location", s.actionTimeout(), chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// PageSource returns the serialized document.
func (s *Session) PageSource(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, "page source", s.actionTimeout(), chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// callOn runs fn with this bound to the element and decodes the result into
// out. present is false when the node no longer exists.
func (s *Session) callOn(ctx context.Context, el core.ElementRef, fn string, out any) (present bool, err error) {
	node, err := nodeOf(el)
	if err != nil {
		return false, err
	}

	err = s.run(ctx, "inspect "+el.Selector, s.actionTimeout(), chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithBackendNodeID(node.BackendNodeID).Do(ctx)
		if err != nil {
			return errStaleNode
		}
		res, exception, err := runtime.CallFunctionOn(fn).
			WithObjectID(obj.ObjectID).
			WithReturnByValue(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exception != nil {
			return fmt.Errorf("script exception: %s", exception.Text)
		}
		if res == nil || len(res.Value) == 0 {
			return json.Unmarshal([]byte("null"), out)
		}
		return json.Unmarshal([]byte(res.Value), out)
	}))
	if errors.Is(err, errStaleNode) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

var errStaleNode = errors.New("stale node")

func (s *Session) run(ctx context.Context, op string, timeout time.Duration, actions ...chromedp.Action) error {
	s.mu.Lock()
	tabCtx := s.tabCtx
	s.mu.Unlock()

	if tabCtx == nil {
		return fmt.Errorf("%s: %w: browser is closed", op, core.ErrSessionLost)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(opCtx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return s.classify(op, tabCtx, err)
}

// classify marks failures that leave no usable tab as session loss.
func (s *Session) classify(op string, tabCtx context.Context, err error) error {
	if tabCtx.Err() != nil || errors.Is(err, chromedp.ErrInvalidContext) || isDisconnect(err) {
		return fmt.Errorf("%s: %w: %w", op, core.ErrSessionLost, err)
	}
	if errors.Is(err, errStaleNode) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isDisconnect(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"target closed",
		"no such target",
		"websocket",
		"connection closed",
		"browser closed",
		"use of closed network connection",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func nodeOf(el core.ElementRef) (*cdp.Node, error) {
	node, ok := el.Handle.(*cdp.Node)
	if !ok || node == nil {
		return nil, fmt.Errorf("element %s#%d has no DOM node", el.Selector, el.Index)
	}
	return node, nil
}

func (s *Session) actionTimeout() time.Duration {
	return s.timeout(s.cfg.ActionTimeout, defaultActionTimeout)
}

func (s *Session) timeout(configured, fallback time.Duration) time.Duration {
	if configured > 0 {
		return configured
	}
	return fallback
}
