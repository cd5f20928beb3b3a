package shared

import "time"

// BillingPeriod is the calendar-month bucket an expense belongs to,
// labelled like "January 2026". The label is always derived in the
// configured business time zone so deployments in different server zones
// agree on period boundaries.
type BillingPeriod string

// PeriodForTime derives the billing period containing t, evaluated in loc.
func PeriodForTime(t time.Time, loc *time.Location) BillingPeriod {
	if loc == nil {
		loc = time.UTC
	}
	return BillingPeriod(t.In(loc).Format("January 2006"))
}

// String returns the period label.
func (p BillingPeriod) String() string {
	return string(p)
}
