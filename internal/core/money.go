// Package core holds the domain model and the pure settlement engine:
// split calculation, debt accumulation, netting, and the transfer status
// state machine. Nothing in this package performs I/O.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// ParseAmount converts a user-entered amount string to minor currency
// units. Thousands separators (commas) are tolerated, as in "7,000", but
// misplaced ones like "70,00" are rejected as likely typos. Signs,
// decimals, and any non-digit input are rejected; zero is valid.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidExpense
	}
	if strings.Contains(s, ",") {
		groups := strings.Split(s, ",")
		if len(groups[0]) < 1 || len(groups[0]) > 3 {
			return 0, ErrInvalidExpense
		}
		for _, g := range groups[1:] {
			if len(g) != 3 {
				return 0, ErrInvalidExpense
			}
		}
		s = strings.Join(groups, "")
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidExpense
		}
	}
	units, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ErrInvalidExpense
	}
	return units, nil
}

// String renders the amount with thousands separators for display.
// Computation always uses Units.
func (m Money) String() string {
	neg := m.Units < 0
	units := m.Units
	if neg {
		units = -units
	}
	digits := strconv.FormatInt(units, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte(',')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
