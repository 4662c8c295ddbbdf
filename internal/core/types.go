package core

import (
	"fmt"
	"strings"
	"time"
)

// Status is the terminal classification of a phone lookup.
type Status string

const (
	StatusHasAccount  Status = "has_account"
	StatusNoAccount   Status = "no_account"
	StatusUnknown     Status = "unknown"
	StatusInvalid     Status = "invalid"
	StatusRateLimited Status = "rate_limited"
	StatusError       Status = "error"
)

// AllStatuses lists statuses in reporting order.
var AllStatuses = []Status{
	StatusHasAccount,
	StatusNoAccount,
	StatusUnknown,
	StatusInvalid,
	StatusRateLimited,
	StatusError,
}

// ParseStatus validates and normalizes a status string.
func ParseStatus(value string) (Status, error) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range AllStatuses {
		if normalized == status {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown status: %s", value)
}

// Provenance captures metadata about how a check was resolved.
type Provenance struct {
	CheckID     string    `json:"check_id"`
	RunID       string    `json:"run_id,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
	ResolvedAt  time.Time `json:"resolved_at"`
	Source      string    `json:"source"`
	ToolVersion string    `json:"tool_version,omitempty"`
}

// CheckResult is the single record emitted per phone query.
type CheckResult struct {
	Phone      string     `json:"phone"`
	Status     Status     `json:"status"`
	Name       string     `json:"name"`
	Reason     string     `json:"reason,omitempty"`
	Provenance Provenance `json:"provenance"`
}

// StatusLabel renders the status column, folding the reason into error rows.
func (r *CheckResult) StatusLabel() string {
	if r == nil {
		return ""
	}
	if r.Status == StatusError && strings.TrimSpace(r.Reason) != "" {
		return fmt.Sprintf("%s: %s", r.Status, r.Reason)
	}
	return string(r.Status)
}

// LimitState tracks consecutive rate-limit detections for one checker process.
// It is never persisted.
type LimitState struct {
	Count      int
	LastSearch time.Time
}

// RunSummary aggregates the outcome of a batch run.
type RunSummary struct {
	RunID      string         `json:"run_id"`
	Total      int            `json:"total"`
	Processed  int            `json:"processed"`
	Counts     map[Status]int `json:"counts"`
	Stopped    bool           `json:"stopped"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Add folds a result into the summary.
func (s *RunSummary) Add(result *CheckResult) {
	if s == nil || result == nil {
		return
	}
	if s.Counts == nil {
		s.Counts = make(map[Status]int, len(AllStatuses))
	}
	s.Counts[result.Status]++
	s.Processed++
}

// Elapsed returns the wall time of the run.
func (s *RunSummary) Elapsed() time.Duration {
	if s == nil || s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// PerMinute returns processed numbers per minute.
func (s *RunSummary) PerMinute() float64 {
	elapsed := s.Elapsed()
	if elapsed <= 0 || s.Processed == 0 {
		return 0
	}
	return float64(s.Processed) / elapsed.Minutes()
}
