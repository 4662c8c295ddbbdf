package checker

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultNamePlaceholder is reported when an account is found but no name can be read.
const DefaultNamePlaceholder = "Người dùng Zalo"

// NameExtractor reads a display name. An empty Selector targets the modal
// itself; an empty Attribute reads the element text.
type NameExtractor struct {
	Selector  string `yaml:"selector,omitempty"`
	Attribute string `yaml:"attribute,omitempty"`
}

// TextTarget matches visible elements whose text equals one of Texts.
type TextTarget struct {
	Selector string   `yaml:"selector"`
	Texts    []string `yaml:"texts"`
}

// Strategies is the ordered DOM knowledge used to drive and read the page.
// The target site changes its markup often; keep this data, not code.
type Strategies struct {
	HomeURL   string `yaml:"home_url"`
	SearchURL string `yaml:"search_url"`

	LimitPhrases   []string `yaml:"limit_phrases"`
	LimitSelectors []string `yaml:"limit_selectors"`

	ModalSelectors  []string        `yaml:"modal_selectors"`
	NameExtractors  []NameExtractor `yaml:"name_extractors"`
	NamePlaceholder string          `yaml:"name_placeholder"`
	NameMinRunes    int             `yaml:"name_min_runes"`
	NameMaxRunes    int             `yaml:"name_max_runes"`

	NotFoundMarkers []string `yaml:"not_found_markers"`

	CloseSelectors []string     `yaml:"close_selectors"`
	NoticeButtons  []TextTarget `yaml:"notice_buttons"`

	LoginSelectors []string `yaml:"login_selectors"`
}

// DefaultStrategies returns a fresh copy of the built-in strategies.
func DefaultStrategies() Strategies {
	return Strategies{
		HomeURL:   "https://chat.zalo.me/",
		SearchURL: "https://chat.zalo.me/?phone={phone}",
		LimitPhrases: []string{
			"Bạn đã tìm kiếm quá số lần cho phép",
			"quá số lần cho phép",
			"Vui lòng thử lại sau",
		},
		LimitSelectors: []string{
			".error-message",
			".limit-message",
			".zl-toast-message",
			".toast-message",
			`[class*="toast"]`,
			`[class*="limit"]`,
		},
		ModalSelectors: []string{
			".zl-modal__dialog",
			".account-info-modal",
			".pi-mini-info-section",
			`[role="dialog"]`,
			".profile-dialog",
			".user-info-popup",
		},
		NameExtractors: []NameExtractor{
			{Attribute: "title"},
			{},
			{Selector: ".pi-mini-info-section__name", Attribute: "title"},
			{Selector: ".pi-mini-info-section__name"},
			{Selector: ".account-name"},
			{Selector: ".user-name"},
			{Selector: ".profile-name"},
			{Selector: ".display-name"},
			{Selector: `[class*="name"]`},
		},
		NamePlaceholder: DefaultNamePlaceholder,
		NameMinRunes:    2,
		NameMaxRunes:    49,
		NotFoundMarkers: []string{
			"không tồn tại",
			"số điện thoại chưa",
			"not found",
			"không tìm thấy",
			"chưa đăng ký",
			"invalid phone",
		},
		CloseSelectors: []string{
			".zl-modal__close",
			`[aria-label="Close"]`,
			`[data-id="btn_Close"]`,
			".modal-close",
		},
		NoticeButtons: []TextTarget{
			{Selector: "button", Texts: []string{"Hủy", "Đóng", "OK"}},
		},
		LoginSelectors: []string{
			`[data-id*="btn_"]`,
			".conversation-list",
			".chat-list",
		},
	}
}

// LoadStrategies overlays a YAML file on the defaults. Keys present in the
// file replace the default list wholesale.
func LoadStrategies(path string) (Strategies, error) {
	strategies := DefaultStrategies()
	path = strings.TrimSpace(path)
	if path == "" {
		return strategies, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Strategies{}, fmt.Errorf("read strategies: %w", err)
	}
	if err := yaml.Unmarshal(data, &strategies); err != nil {
		return Strategies{}, fmt.Errorf("parse strategies %s: %w", path, err)
	}
	if err := strategies.Validate(); err != nil {
		return Strategies{}, fmt.Errorf("strategies %s: %w", path, err)
	}
	return strategies, nil
}

// Validate checks the minimum a check needs to run.
func (s Strategies) Validate() error {
	if strings.TrimSpace(s.HomeURL) == "" {
		return errors.New("home_url is required")
	}
	if !strings.Contains(s.SearchURL, "{phone}") {
		return errors.New("search_url must contain {phone}")
	}
	if len(s.ModalSelectors) == 0 {
		return errors.New("at least one modal selector is required")
	}
	if s.NameMinRunes < 0 || (s.NameMaxRunes > 0 && s.NameMaxRunes < s.NameMinRunes) {
		return fmt.Errorf("invalid name length bounds %d..%d", s.NameMinRunes, s.NameMaxRunes)
	}
	return nil
}

// YAML renders the strategies for display.
func (s Strategies) YAML() (string, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
