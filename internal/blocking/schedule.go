package blocking

import (
	"errors"
	"fmt"
	"time"
)

var ErrBadClock = errors.New("clock must be HH:MM")

// Window is a recurring weekly blocking window. Start and End are minutes
// since local midnight. Start > End crosses midnight into the next day and
// Start == End covers the whole listed day.
type Window struct {
	ID      string
	Days    []time.Weekday
	Start   int
	End     int
	Domains []string
	Enabled bool
}

// ParseClock converts "HH:MM" (24h) to minutes since midnight.
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, ErrBadClock
	}
	digits := [4]byte{s[0], s[1], s[3], s[4]}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, ErrBadClock
		}
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if h > 23 || m > 59 {
		return 0, ErrBadClock
	}
	return h*60 + m, nil
}

// FormatClock is the inverse of ParseClock.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func (w Window) onDay(d time.Weekday) bool {
	for _, day := range w.Days {
		if day == d {
			return true
		}
	}
	return false
}

// Active reports whether the window covers now, in now's location.
func (w Window) Active(now time.Time) bool {
	_, ok := w.ActiveUntil(now)
	return ok
}

// ActiveUntil reports whether the window covers now and, if so, when the
// current occurrence ends.
func (w Window) ActiveUntil(now time.Time) (time.Time, bool) {
	if !w.Enabled || len(w.Days) == 0 {
		return time.Time{}, false
	}

	minute := now.Hour()*60 + now.Minute()
	today := now.Weekday()
	yesterday := (today + 6) % 7

	switch {
	case w.Start == w.End:
		if w.onDay(today) {
			return clockOn(now, 1, 0), true
		}
	case w.Start < w.End:
		if w.onDay(today) && minute >= w.Start && minute < w.End {
			return clockOn(now, 0, w.End), true
		}
	default:
		// late part of an occurrence that started today
		if w.onDay(today) && minute >= w.Start {
			return clockOn(now, 1, w.End), true
		}
		// early part of an occurrence that started yesterday
		if w.onDay(yesterday) && minute < w.End {
			return clockOn(now, 0, w.End), true
		}
	}
	return time.Time{}, false
}

// NextBoundary returns the first start or end of an occurrence strictly
// after now.
func (w Window) NextBoundary(now time.Time) (time.Time, bool) {
	if !w.Enabled || len(w.Days) == 0 {
		return time.Time{}, false
	}

	var next time.Time
	consider := func(t time.Time) {
		if t.After(now) && (next.IsZero() || t.Before(next)) {
			next = t
		}
	}
	// yesterday's occurrence may still be running; a week ahead always
	// contains the next start
	for offset := -1; offset <= 7; offset++ {
		day := clockOn(now, offset, 0)
		if !w.onDay(day.Weekday()) {
			continue
		}
		consider(clockOn(now, offset, w.Start))
		switch {
		case w.Start == w.End:
			consider(clockOn(now, offset+1, 0))
		case w.Start < w.End:
			consider(clockOn(now, offset, w.End))
		default:
			consider(clockOn(now, offset+1, w.End))
		}
	}
	return next, !next.IsZero()
}

// clockOn is the wall-clock time minutes past midnight, days after now's
// local date. On DST days the wall-clock hour is kept.
func clockOn(now time.Time, days, minutes int) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day()+days, minutes/60, minutes%60, 0, 0, now.Location())
}

// Covers reports whether the window applies to host. A window with no
// domains of its own applies to every blocked site.
func (w Window) Covers(host string) bool {
	if len(w.Domains) == 0 {
		return true
	}
	return IsDomainBlocked(host, w.Domains)
}
