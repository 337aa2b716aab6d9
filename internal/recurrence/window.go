package recurrence

import "time"

// Look-back depth per kind, in days. Rarer patterns get deeper look-back so an
// instance already exists whenever the user next opens the app; daily patterns
// only need a short buffer for missed days.
func lookBackDays(k Kind) int {
	switch k {
	case Daily:
		return 2
	case Weekly:
		return 14
	case Monthly:
		return 60
	case Yearly:
		return 730
	}
	return 0
}

// Window returns the inclusive date range [start, end] that should contain
// materialized instances for kind k as of today. Instances are never
// pre-created past today, so end is always today.
func Window(k Kind, today time.Time) (start, end time.Time) {
	today = DateOf(today)
	return today.AddDate(0, 0, -lookBackDays(k)), today
}

// ExpiryCutoff returns the date before which uncompleted instances of kind k
// are considered stale and deleted. The cutoff never reaches inside the
// materialization window: expiring a date the pass would recreate on its next
// run is pure churn, so the window start bounds the cutoff. Yearly instances
// get a nominal week past due, matching weekly's relative tightness.
func ExpiryCutoff(k Kind, today time.Time) time.Time {
	today = DateOf(today)
	var days int
	switch k {
	case Daily:
		days = 3
	case Weekly:
		days = 7
	case Monthly:
		days = 365
	case Yearly:
		days = 7
	default:
		return today
	}
	cutoff := today.AddDate(0, 0, -days)
	if start, _ := Window(k, today); cutoff.After(start) {
		return start
	}
	return cutoff
}

// FutureCutoff returns the date beyond which no instance of kind k should
// exist yet; anything dated after it is removed.
func FutureCutoff(k Kind, today time.Time) time.Time {
	today = DateOf(today)
	switch k {
	case Daily:
		return today
	case Weekly:
		return today.AddDate(0, 0, 14)
	case Monthly:
		return today.AddDate(0, 0, 60)
	case Yearly:
		return today.AddDate(0, 0, 730)
	}
	return today
}
