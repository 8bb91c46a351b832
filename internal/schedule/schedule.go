// Package schedule computes daily and multi-day reset boundaries from a local time-of-day anchor.
package schedule

import (
	"fmt"
	"sync"
	"time"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// epoch is a Monday; multi-day windows are counted from it so weekly windows start on Mondays.
var epochDay = time.Date(1970, time.January, 5, 0, 0, 0, 0, time.UTC)

// Anchor is a daily reset time in a fixed location, e.g. 05:30 Asia/Kolkata.
type Anchor struct {
	Hour, Minute int
	Loc          *time.Location
}

// ParseAnchor parses "HH:MM" and an IANA zone name.
func ParseAnchor(hhmm, zone string) (Anchor, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return Anchor{}, fmt.Errorf("parse reset time %q: %w", hhmm, err)
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return Anchor{}, fmt.Errorf("load zone %q: %w", zone, err)
	}
	return Anchor{Hour: t.Hour(), Minute: t.Minute(), Loc: loc}, nil
}

// MustAnchor is ParseAnchor for constants; it panics on error.
func MustAnchor(hhmm, zone string) Anchor {
	a, err := ParseAnchor(hhmm, zone)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Anchor) loc() *time.Location {
	if a.Loc == nil {
		return time.UTC
	}
	return a.Loc
}

func (a Anchor) at(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, a.Hour, a.Minute, 0, 0, a.loc())
}

// Boundary returns the most recent daily anchor at or before now.
func (a Anchor) Boundary(now time.Time) time.Time {
	l := now.In(a.loc())
	b := a.at(l.Year(), l.Month(), l.Day())
	if b.After(l) {
		b = a.at(l.Year(), l.Month(), l.Day()-1)
	}
	return b
}

// Next returns the daily anchor following boundary b.
func (a Anchor) Next(b time.Time) time.Time {
	l := b.In(a.loc())
	return a.at(l.Year(), l.Month(), l.Day()+1)
}

// DailyReset reports whether a daily reset is due for something last reset at last,
// and returns the boundary to record. A reset is due once the next anchor has passed
// or 24 hours have elapsed, whichever comes first; on a long DST day the upcoming
// anchor is recorded so it does not fire twice.
func (a Anchor) DailyReset(last, now time.Time) (time.Time, bool) {
	next := a.Next(a.Boundary(last))
	switch {
	case !now.Before(next):
		return a.Boundary(now), true
	case !now.Before(last.Add(24 * time.Hour)):
		return next, true
	default:
		return last, false
	}
}

// WindowStart returns the start of the days-long window containing now.
// days == 0 means a single window that never resets (zero time).
func (a Anchor) WindowStart(now time.Time, days uint32) time.Time {
	if days == 0 {
		return time.Time{}
	}
	b := a.Boundary(now)
	if days == 1 {
		return b
	}
	day := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	n := int(day.Sub(epochDay).Hours() / 24)
	off := n % int(days)
	if off < 0 {
		off += int(days)
	}
	return a.at(b.Year(), b.Month(), b.Day()-off)
}

// ManualClock is a settable clock for tests and simulations.
type ManualClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewManualClock returns a clock stopped at t.
func NewManualClock(t time.Time) *ManualClock { return &ManualClock{t: t} }

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}
