package model

import (
	"strings"
	"time"

	"bookmarks-billing/internal/domain"
)

type BillingCycle string

const (
	BillingMonthly BillingCycle = "monthly"
	BillingYearly  BillingCycle = "yearly"
)

func ParseBillingCycle(s string) (BillingCycle, error) {
	switch c := BillingCycle(strings.ToLower(strings.TrimSpace(s))); c {
	case BillingMonthly, BillingYearly:
		return c, nil
	}
	return "", domain.ErrInvalidArgument
}

// Advance returns t moved forward by one cycle in calendar terms.
// The day of month is clamped to the last day of the target month, so
// Jan 31 + 1 month is Feb 28/29 and Feb 29 + 1 year is Feb 28.
func (c BillingCycle) Advance(t time.Time) time.Time {
	switch c {
	case BillingYearly:
		return addMonthsClamped(t, 12)
	default:
		return addMonthsClamped(t, 1)
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
