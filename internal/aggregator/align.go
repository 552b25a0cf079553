package aggregator

import "time"

// NextBoundary returns the smallest instant at or after now that is a whole
// number of periods past the top of the hour. Periods longer than an hour
// are counted from midnight instead. Counting carries into the next hour or
// day, so a 7m period at 00:58 yields 01:03.
func NextBoundary(now time.Time, period time.Duration) time.Time {
	if period <= 0 {
		return now
	}

	anchor := time.Hour
	if period > time.Hour {
		anchor = 24 * time.Hour
	}
	base := now.Truncate(anchor)

	offset := now.Sub(base)
	n := offset / period
	if offset%period != 0 {
		n++
	}
	return base.Add(n * period)
}

// schedule hands out flush deadlines spaced exactly one period apart so
// that late timer wakeups never shift later boundaries.
type schedule struct {
	period time.Duration
	next   time.Time
}

func newSchedule(start time.Time, period time.Duration) *schedule {
	return &schedule{period: period, next: NextBoundary(start, period)}
}

// advance returns the first deadline strictly after now, skipping any that
// were missed.
func (s *schedule) advance(now time.Time) time.Time {
	for !s.next.After(now) {
		s.next = s.next.Add(s.period)
	}
	return s.next
}
