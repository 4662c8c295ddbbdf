package checker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/phonelens/phonelens/internal/core"
)

// ErrModalStillOpen is returned by Dismiss when every strategy ran and a modal is still visible.
var ErrModalStillOpen = errors.New("modal still open after dismissal")

const clickOutsideScript = `
const x = 2, y = 2;
const target = document.elementFromPoint(x, y) || document.body;
target.dispatchEvent(new MouseEvent('mousedown', {bubbles: true, clientX: x, clientY: y}));
target.dispatchEvent(new MouseEvent('mouseup', {bubbles: true, clientX: x, clientY: y}));
target.dispatchEvent(new MouseEvent('click', {bubbles: true, clientX: x, clientY: y}));
document.dispatchEvent(new KeyboardEvent('keydown', {key: 'Escape', bubbles: true}));
return true;`

const historyBackScript = `window.history.back(); return true;`

// Page reads and drives the search view through a BrowserPort using
// ordered, data-driven strategies. Non-fatal failures of one strategy fall
// through to the next; session loss aborts immediately.
type Page struct {
	Browser    core.BrowserPort
	Strategies Strategies
	Logger     *zap.Logger
}

// NewPage builds a page reader over browser.
func NewPage(browser core.BrowserPort, strategies Strategies, logger *zap.Logger) *Page {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Page{Browser: browser, Strategies: strategies, Logger: logger}
}

// SearchURL returns the search view for a normalized number.
func (p *Page) SearchURL(number string) string {
	return strings.ReplaceAll(p.Strategies.SearchURL, "{phone}", url.QueryEscape(number))
}

// HomeURL returns the neutral landing page.
func (p *Page) HomeURL() string {
	return p.Strategies.HomeURL
}

// Limited reports whether the page shows a rate-limit notice.
func (p *Page) Limited(ctx context.Context) (bool, error) {
	source, err := p.Browser.PageSource(ctx)
	if err != nil {
		return false, fmt.Errorf("read page source: %w", err)
	}
	if containsAny(source, p.Strategies.LimitPhrases, false) {
		return true, nil
	}

	for _, selector := range p.Strategies.LimitSelectors {
		found, err := p.firstVisible(ctx, selector, func(el core.ElementRef) (bool, error) {
			text, _, err := p.Browser.GetAttribute(ctx, el, "textContent")
			if err != nil {
				return false, err
			}
			return containsAny(text, p.Strategies.LimitPhrases, false), nil
		})
		if err != nil {
			return false, err
		}
		if found != nil {
			return true, nil
		}
	}
	return false, nil
}

// Modal returns the first visible account modal.
func (p *Page) Modal(ctx context.Context) (core.ElementRef, bool, error) {
	for _, selector := range p.Strategies.ModalSelectors {
		found, err := p.firstVisible(ctx, selector, nil)
		if err != nil {
			return core.ElementRef{}, false, err
		}
		if found != nil {
			return *found, true, nil
		}
	}
	return core.ElementRef{}, false, nil
}

// DisplayName runs the extractor chain and falls back to the placeholder.
func (p *Page) DisplayName(ctx context.Context, modal core.ElementRef) (string, error) {
	for _, extractor := range p.Strategies.NameExtractors {
		name, err := p.extract(ctx, modal, extractor)
		if err != nil {
			return "", err
		}
		if name != "" {
			return name, nil
		}
	}
	return p.Strategies.NamePlaceholder, nil
}

// NotFound reports whether a not-found marker is on the page.
func (p *Page) NotFound(ctx context.Context) (bool, error) {
	source, err := p.Browser.PageSource(ctx)
	if err != nil {
		return false, fmt.Errorf("read page source: %w", err)
	}
	return containsAny(source, p.Strategies.NotFoundMarkers, true), nil
}

// LoggedIn reports whether a logged-in marker element is present.
func (p *Page) LoggedIn(ctx context.Context) (bool, error) {
	for _, selector := range p.Strategies.LoginSelectors {
		elements, err := p.Browser.FindElements(ctx, selector)
		if err != nil {
			if isFatal(err) {
				return false, err
			}
			continue
		}
		if len(elements) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// Dismiss closes any open modal so the next search starts from a neutral page.
// With no modal open it does nothing, which makes repeated calls idempotent.
func (p *Page) Dismiss(ctx context.Context) error {
	_, open, err := p.Modal(ctx)
	if err != nil {
		return err
	}
	if !open {
		return nil
	}

	dismissals := []struct {
		name string
		run  func(context.Context) error
	}{
		{"close_control", p.clickClose},
		{"click_outside", p.clickOutside},
		{"history_back", p.historyBack},
	}

	for _, dismissal := range dismissals {
		if err := dismissal.run(ctx); err != nil {
			p.Logger.Debug("Dismissal strategy failed", zap.String("strategy", dismissal.name), zap.Error(err))
			if isFatal(err) {
				return err
			}
		}
		_, open, err = p.Modal(ctx)
		if err != nil {
			return err
		}
		if !open {
			p.Logger.Debug("Modal dismissed", zap.String("strategy", dismissal.name))
			return nil
		}
	}
	return ErrModalStillOpen
}

// DismissNotice clicks the first visible notice button, such as a limit toast's close.
func (p *Page) DismissNotice(ctx context.Context) error {
	for _, target := range p.Strategies.NoticeButtons {
		found, err := p.firstVisible(ctx, target.Selector, func(el core.ElementRef) (bool, error) {
			text, _, err := p.Browser.GetAttribute(ctx, el, "textContent")
			if err != nil {
				return false, err
			}
			text = strings.TrimSpace(text)
			for _, want := range target.Texts {
				if strings.EqualFold(text, want) {
					return true, nil
				}
			}
			return false, nil
		})
		if err != nil {
			return err
		}
		if found != nil {
			return p.Browser.Click(ctx, *found)
		}
	}
	return nil
}

func (p *Page) clickClose(ctx context.Context) error {
	for _, selector := range p.Strategies.CloseSelectors {
		found, err := p.firstVisible(ctx, selector, nil)
		if err != nil {
			return err
		}
		if found != nil {
			return p.Browser.Click(ctx, *found)
		}
	}
	return errors.New("no visible close control")
}

func (p *Page) clickOutside(ctx context.Context) error {
	_, err := p.Browser.RunScript(ctx, clickOutsideScript)
	return err
}

func (p *Page) historyBack(ctx context.Context) error {
	_, err := p.Browser.RunScript(ctx, historyBackScript)
	return err
}

func (p *Page) extract(ctx context.Context, modal core.ElementRef, extractor NameExtractor) (string, error) {
	attribute := extractor.Attribute
	if attribute == "" {
		attribute = "textContent"
	}

	if extractor.Selector == "" {
		value, ok, err := p.Browser.GetAttribute(ctx, modal, attribute)
		if err != nil {
			if isFatal(err) {
				return "", err
			}
			return "", nil
		}
		if ok {
			return p.acceptName(value), nil
		}
		return "", nil
	}

	var name string
	_, err := p.firstVisible(ctx, extractor.Selector, func(el core.ElementRef) (bool, error) {
		value, ok, err := p.Browser.GetAttribute(ctx, el, attribute)
		if err != nil || !ok {
			return false, err
		}
		name = p.acceptName(value)
		return name != "", nil
	})
	if err != nil {
		return "", err
	}
	return name, nil
}

func (p *Page) acceptName(value string) string {
	value = strings.Join(strings.Fields(value), " ")
	length := utf8.RuneCountInString(value)
	if value == "" || length < p.Strategies.NameMinRunes {
		return ""
	}
	if p.Strategies.NameMaxRunes > 0 && length > p.Strategies.NameMaxRunes {
		return ""
	}
	return value
}

// firstVisible returns the first visible element for selector that also
// satisfies match. Lookup errors on one selector or element are skipped.
func (p *Page) firstVisible(ctx context.Context, selector string, match func(core.ElementRef) (bool, error)) (*core.ElementRef, error) {
	elements, err := p.Browser.FindElements(ctx, selector)
	if err != nil {
		if isFatal(err) {
			return nil, err
		}
		p.Logger.Debug("Selector lookup failed", zap.String("selector", selector), zap.Error(err))
		return nil, nil
	}

	for _, el := range elements {
		visible, err := p.Browser.IsVisible(ctx, el)
		if err != nil {
			if isFatal(err) {
				return nil, err
			}
			continue
		}
		if !visible {
			continue
		}
		if match != nil {
			ok, err := match(el)
			if err != nil {
				if isFatal(err) {
					return nil, err
				}
				continue
			}
			if !ok {
				continue
			}
		}
		found := el
		return &found, nil
	}
	return nil, nil
}

func containsAny(text string, needles []string, fold bool) bool {
	if fold {
		text = strings.ToLower(text)
	}
	for _, needle := range needles {
		if needle == "" {
			continue
		}
		if fold {
			needle = strings.ToLower(needle)
		}
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}

func isFatal(err error) bool {
	return errors.Is(err, core.ErrSessionLost)
}
