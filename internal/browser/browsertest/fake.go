// Package browsertest provides an in-memory BrowserPort for tests.
package browsertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/phonelens/phonelens/internal/core"
)

// Element is a fake DOM node. The "textContent" attribute doubles as its text.
type Element struct {
	Visible bool
	Attrs   map[string]string
}

// Browser is a scripted BrowserPort. Elements are keyed by exact selector.
type Browser struct {
	mu sync.Mutex

	URL      string
	Source   string
	Elements map[string][]*Element

	// Err, when set, is returned by every call.
	Err error

	OnNavigate func(b *Browser, url string)
	OnClick    func(b *Browser, selector string, el *Element)
	OnScript   func(b *Browser, code string)

	calls []string
}

var _ core.BrowserPort = (*Browser)(nil)

// New returns an empty fake browser.
func New() *Browser {
	return &Browser{Elements: map[string][]*Element{}}
}

// Set replaces the elements matching selector.
func (b *Browser) Set(selector string, elements ...*Element) {
	if b.Elements == nil {
		b.Elements = map[string][]*Element{}
	}
	if len(elements) == 0 {
		delete(b.Elements, selector)
		return
	}
	b.Elements[selector] = elements
}

// Calls returns a copy of the recorded call log.
func (b *Browser) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.calls))
	copy(out, b.calls)
	return out
}

// ResetCalls clears the call log.
func (b *Browser) ResetCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = nil
}

func (b *Browser) record(format string, args ...any) error {
	b.mu.Lock()
	b.calls = append(b.calls, fmt.Sprintf(format, args...))
	b.mu.Unlock()
	return b.Err
}

func (b *Browser) Navigate(ctx context.Context, url string) error {
	if err := b.record("navigate %s", url); err != nil {
		return err
	}
	b.URL = url
	if b.OnNavigate != nil {
		b.OnNavigate(b, url)
	}
	return nil
}

func (b *Browser) FindElements(ctx context.Context, selector string) ([]core.ElementRef, error) {
	if err := b.record("find %s", selector); err != nil {
		return nil, err
	}
	elements := b.Elements[selector]
	refs := make([]core.ElementRef, 0, len(elements))
	for i, el := range elements {
		refs = append(refs, core.ElementRef{Selector: selector, Index: i, Handle: el})
	}
	return refs, nil
}

func (b *Browser) IsVisible(ctx context.Context, ref core.ElementRef) (bool, error) {
	if b.Err != nil {
		return false, b.Err
	}
	el, err := element(ref)
	if err != nil {
		return false, err
	}
	return el.Visible, nil
}

func (b *Browser) GetAttribute(ctx context.Context, ref core.ElementRef, name string) (string, bool, error) {
	if b.Err != nil {
		return "", false, b.Err
	}
	el, err := element(ref)
	if err != nil {
		return "", false, err
	}
	value, ok := el.Attrs[name]
	return value, ok, nil
}

func (b *Browser) Click(ctx context.Context, ref core.ElementRef) error {
	if err := b.record("click %s", ref.Selector); err != nil {
		return err
	}
	el, err := element(ref)
	if err != nil {
		return err
	}
	if b.OnClick != nil {
		b.OnClick(b, ref.Selector, el)
	}
	return nil
}

func (b *Browser) RunScript(ctx context.Context, code string, args ...any) (any, error) {
	if err := b.record("script"); err != nil {
		return nil, err
	}
	if b.OnScript != nil {
		b.OnScript(b, code)
	}
	return nil, nil
}

func (b *Browser) CurrentURL(ctx context.Context) (string, error) {
	if b.Err != nil {
		return "", b.Err
	}
	return b.URL, nil
}

func (b *Browser) PageSource(ctx context.Context) (string, error) {
	if err := b.record("source"); err != nil {
		return "", err
	}
	return b.Source, nil
}

func element(ref core.ElementRef) (*Element, error) {
	el, ok := ref.Handle.(*Element)
	if !ok || el == nil {
		return nil, fmt.Errorf("stale element for %s", ref.Selector)
	}
	return el, nil
}
