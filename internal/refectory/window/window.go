// Package window maps wall-clock time onto the configured daily windows.
//
// Two views of the same day are kept consistent here. Swipe windows are
// minute-granular ranges [Start, End] (equivalently [Start, End+1m)) during
// which cards may be consumed. Roster time points a < b < c split the day
// into three half-open reconciliation windows named after the point that
// closes them; anything at or after c rolls over to the first window.
package window

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrBadClock      = errors.New("clock must be HH:MM")
	ErrBadRange      = errors.New("range must be HH:MM-HH:MM with start <= end")
	ErrRangeOrder    = errors.New("ranges must be ascending and non-overlapping")
	ErrPointOrder    = errors.New("time points must satisfy a < b < c")
	ErrUnknownWindow = errors.New("unknown window id")
)

// Minute is a minute of the day, 0..1439.
type Minute int

const minutesPerDay = 24 * 60

func ParseClock(s string) (Minute, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrBadClock, s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrBadClock, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrBadClock, s)
	}
	return Minute(h*60 + m), nil
}

func MinuteOf(t time.Time) Minute {
	return Minute(t.Hour()*60 + t.Minute())
}

func (m Minute) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// on returns the instant at minute m on t's calendar day, in t's location.
func (m Minute) on(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, int(m)/60, int(m)%60, 0, 0, t.Location())
}

// Range is an inclusive minute range within one day.
type Range struct {
	Start Minute
	End   Minute
}

func ParseRange(s string) (Range, error) {
	a, b, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Range{}, fmt.Errorf("%w: %q", ErrBadRange, s)
	}
	start, err := ParseClock(a)
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q", ErrBadRange, s)
	}
	end, err := ParseClock(b)
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q", ErrBadRange, s)
	}
	if start > end {
		return Range{}, fmt.Errorf("%w: %q", ErrBadRange, s)
	}
	return Range{Start: start, End: end}, nil
}

func (r Range) Contains(m Minute) bool {
	return m >= r.Start && m <= r.End
}

func (r Range) String() string {
	return r.Start.String() + "-" + r.End.String()
}

// Schedule is the ordered set of swipe windows for a day.
type Schedule struct {
	ranges []Range
}

func NewSchedule(ranges ...Range) (Schedule, error) {
	if len(ranges) == 0 {
		return Schedule{}, fmt.Errorf("%w: none configured", ErrBadRange)
	}
	for i := 1; i < len(ranges); i++ {
		if ranges[i].Start <= ranges[i-1].End {
			return Schedule{}, fmt.Errorf("%w: %s then %s", ErrRangeOrder, ranges[i-1], ranges[i])
		}
	}
	out := make([]Range, len(ranges))
	copy(out, ranges)
	return Schedule{ranges: out}, nil
}

// ParseSchedule parses "HH:MM-HH:MM" specs in order.
func ParseSchedule(specs []string) (Schedule, error) {
	rs := make([]Range, 0, len(specs))
	for _, s := range specs {
		r, err := ParseRange(s)
		if err != nil {
			return Schedule{}, err
		}
		rs = append(rs, r)
	}
	return NewSchedule(rs...)
}

// Allows reports whether t falls inside a swipe window, and which one.
func (s Schedule) Allows(t time.Time) (int, bool) {
	m := MinuteOf(t)
	for i, r := range s.ranges {
		if r.Contains(m) {
			return i, true
		}
	}
	return -1, false
}

func (s Schedule) Ranges() []Range {
	out := make([]Range, len(s.ranges))
	copy(out, s.ranges)
	return out
}
