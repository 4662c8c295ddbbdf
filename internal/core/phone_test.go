package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPhoneQuery(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"912345678", "0912345678"},
		{"0912345678", "0912345678"},
		{" 091-234 5678 ", "0912345678"},
		{"+84912345678", "0912345678"},
		{"84912345678", "0912345678"},
		{"(091) 234.5678", "0912345678"},
	}

	for _, tc := range cases {
		query, err := NewPhoneQuery(tc.raw)
		require.NoError(t, err, tc.raw)
		require.Equal(t, tc.want, query.Number, tc.raw)
		require.Equal(t, tc.raw, query.Raw)
	}
}

func TestNewPhoneQueryInvalid(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"09123abc78",
		"12345",
		"091234567890",
		"0912345678x",
	}

	for _, raw := range cases {
		_, err := NewPhoneQuery(raw)
		require.Error(t, err, raw)
		require.True(t, errors.Is(err, ErrInvalidPhone), raw)
	}
}

func TestNewPhoneQueryKeepsCleanedNumber(t *testing.T) {
	query, err := NewPhoneQuery("+84 12")
	require.Error(t, err)
	require.Equal(t, "012", query.Number)
}

func TestParseStatus(t *testing.T) {
	status, err := ParseStatus(" HAS_ACCOUNT ")
	require.NoError(t, err)
	require.Equal(t, StatusHasAccount, status)

	_, err = ParseStatus("maybe")
	require.Error(t, err)
}

func TestStatusLabel(t *testing.T) {
	result := &CheckResult{Status: StatusError, Reason: "boom"}
	require.Equal(t, "error: boom", result.StatusLabel())

	result = &CheckResult{Status: StatusNoAccount}
	require.Equal(t, "no_account", result.StatusLabel())
}

func TestRunSummary(t *testing.T) {
	summary := &RunSummary{}
	summary.Add(&CheckResult{Status: StatusHasAccount})
	summary.Add(&CheckResult{Status: StatusHasAccount})
	summary.Add(&CheckResult{Status: StatusInvalid})
	summary.Add(nil)

	require.Equal(t, 3, summary.Processed)
	require.Equal(t, 2, summary.Counts[StatusHasAccount])
	require.Equal(t, 1, summary.Counts[StatusInvalid])
	require.Zero(t, summary.PerMinute())
}
