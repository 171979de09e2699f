package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValidationError reports a malformed mutation or a ledger invariant violation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError with a formatted reason.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func invalid(field, format string, args ...any) *ValidationError {
	return NewValidationError(field, format, args...)
}

// ParseAmount parses user input such as "12.50" into a valid amount.
func ParseAmount(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, invalid("amount", "%q is not a number", s)
	}
	if err := ValidateAmount(v); err != nil {
		return 0, err
	}
	return v, nil
}

// ValidateName checks a person, expense or group name.
func ValidateName(field, name string) error {
	if strings.TrimSpace(name) == "" {
		return invalid(field, "must not be empty")
	}
	return nil
}

// ValidateAmount checks an expense amount.
func ValidateAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return invalid("amount", "must be a number")
	}
	if amount < 0 {
		return invalid("amount", "must not be negative, got %v", amount)
	}
	return nil
}

// Validate checks the ledger invariants: unique person ids, valid amounts and
// references that point at people of this ledger. Dangling references are
// reported here but are tolerated by the settlement engine.
func (l *Ledger) Validate() error {
	seen := make(map[string]bool, len(l.People))
	for _, p := range l.People {
		if p.ID == "" {
			return invalid("people", "person %q has no id", p.Name)
		}
		if seen[p.ID] {
			return invalid("people", "duplicate person id %q", p.ID)
		}
		seen[p.ID] = true
	}

	for _, e := range l.Expenses {
		if err := ValidateAmount(e.Amount); err != nil {
			return invalid("expenses", "expense %q: %v", e.ID, err)
		}
		if e.PaidBy != "" && !seen[e.PaidBy] {
			return invalid("expenses", "expense %q paid by unknown person %q", e.ID, e.PaidBy)
		}
		for _, id := range e.SplitAmong {
			if !seen[id] {
				return invalid("expenses", "expense %q split with unknown person %q", e.ID, id)
			}
		}
	}
	return nil
}
