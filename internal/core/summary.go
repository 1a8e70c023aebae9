package core

import (
	"sort"
	"time"
)

// DateKey is the YYYY-MM-DD layout used for trip dates and per-day totals.
const DateKey = "2006-01-02"

type DayTotal struct {
	Date  string
	Total Money
}

type RoomSummary struct {
	RoomID    string
	TripTotal Money
	ByDay     []DayTotal
}

// ExpenseTotal returns the expense's effective total. EQUAL expenses carry
// an authoritative total; for ITEMIZED it is derived from the items.
func ExpenseTotal(e Expense) Money {
	if e.SettlementType != SplitItemized {
		return e.Total
	}
	var sum int64
	for _, it := range e.Items {
		switch it.Mode {
		case ItemPerPerson:
			sum += it.UnitPrice.Units * int64(len(it.Participants))
		case ItemSharedSplit:
			sum += it.TotalPrice.Units
		}
	}
	return Money{Units: sum}
}

// Summarize computes the trip total and per-day totals for a room. When the
// room carries a trip date range, expenses outside it are excluded from the
// totals and every day of the range appears in ByDay, spent or not.
func Summarize(roomID string, expenses []Expense, tripStart, tripEnd string) RoomSummary {
	summary := RoomSummary{RoomID: roomID}

	byDay := make(map[string]int64)
	for _, e := range expenses {
		day := e.SpentAt.Format(DateKey)
		if tripStart != "" && day < tripStart {
			continue
		}
		if tripEnd != "" && day > tripEnd {
			continue
		}
		total := ExpenseTotal(e)
		summary.TripTotal.Units += total.Units
		byDay[day] += total.Units
	}

	for _, day := range dateRange(tripStart, tripEnd, byDay) {
		summary.ByDay = append(summary.ByDay, DayTotal{
			Date:  day,
			Total: Money{Units: byDay[day]},
		})
	}
	return summary
}

// dateRange walks tripStart..tripEnd inclusive; with no range configured it
// falls back to the days that actually saw spending, in order.
func dateRange(start, end string, byDay map[string]int64) []string {
	if start == "" || end == "" {
		days := make([]string, 0, len(byDay))
		for day := range byDay {
			days = append(days, day)
		}
		sort.Strings(days)
		return days
	}

	from, err := time.Parse(DateKey, start)
	if err != nil {
		return nil
	}
	to, err := time.Parse(DateKey, end)
	if err != nil || to.Before(from) {
		return nil
	}

	var days []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(DateKey))
	}
	return days
}
