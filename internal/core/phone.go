package core

import (
	"errors"
	"fmt"
	"strings"
)

// NationalLength is the digit count of a normalized national number.
const NationalLength = 10

// ErrInvalidPhone reports input that cannot be normalized.
var ErrInvalidPhone = errors.New("invalid phone number")

// PhoneQuery is a normalized lookup input.
type PhoneQuery struct {
	Raw    string
	Number string
}

var phoneSeparators = strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "")

// CleanPhone strips separators and folds the country prefix without validating.
func CleanPhone(raw string) string {
	value := phoneSeparators.Replace(strings.TrimSpace(raw))

	switch {
	case strings.HasPrefix(value, "+84"):
		value = "0" + value[3:]
	case strings.HasPrefix(value, "84") && len(value) == NationalLength+1:
		value = "0" + value[2:]
	}

	if len(value) == NationalLength-1 && !strings.HasPrefix(value, "0") {
		value = "0" + value
	}
	return value
}

// NewPhoneQuery normalizes raw input into a query.
// On failure the returned query still carries the cleaned number for reporting.
func NewPhoneQuery(raw string) (PhoneQuery, error) {
	query := PhoneQuery{Raw: raw, Number: CleanPhone(raw)}

	if query.Number == "" {
		return query, fmt.Errorf("%w: empty", ErrInvalidPhone)
	}
	for _, r := range query.Number {
		if r < '0' || r > '9' {
			return query, fmt.Errorf("%w: %q contains non-digit characters", ErrInvalidPhone, raw)
		}
	}
	if len(query.Number) != NationalLength {
		return query, fmt.Errorf("%w: %q has %d digits, want %d", ErrInvalidPhone, raw, len(query.Number), NationalLength)
	}
	return query, nil
}
