package window

import (
	"fmt"
	"strings"
	"time"
)

// ID names a reconciliation window by the time point that closes it.
type ID string

const (
	First  ID = "a"
	Middle ID = "b"
	Last   ID = "c"
)

var ids = [...]ID{First, Middle, Last}

func ParseID(s string) (ID, error) {
	switch id := ID(strings.ToLower(strings.TrimSpace(s))); id {
	case First, Middle, Last:
		return id, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownWindow, s)
}

// TimePoints are the three daily reconciliation boundaries.
type TimePoints struct {
	points [3]Minute
}

func NewTimePoints(a, b, c Minute) (TimePoints, error) {
	if !(a < b && b < c) || a < 0 || c >= minutesPerDay {
		return TimePoints{}, fmt.Errorf("%w: %s %s %s", ErrPointOrder, a, b, c)
	}
	return TimePoints{points: [3]Minute{a, b, c}}, nil
}

func ParseTimePoints(a, b, c string) (TimePoints, error) {
	var ms [3]Minute
	for i, s := range []string{a, b, c} {
		m, err := ParseClock(s)
		if err != nil {
			return TimePoints{}, err
		}
		ms[i] = m
	}
	return NewTimePoints(ms[0], ms[1], ms[2])
}

// At selects the window for t: t<a → a, a≤t<b → b, b≤t<c → c, t≥c → a.
func (p TimePoints) At(t time.Time) ID {
	m := MinuteOf(t)
	for i, pt := range p.points {
		if m < pt {
			return ids[i]
		}
	}
	return First
}

func (p TimePoints) Boundary(id ID) (Minute, error) {
	for i, x := range ids {
		if x == id {
			return p.points[i], nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownWindow, id)
}

// Next returns the first time point strictly after t and the window it
// is scheduled for.
func (p TimePoints) Next(t time.Time) (time.Time, ID) {
	for i, pt := range p.points {
		if at := pt.on(t); at.After(t) {
			return at, ids[i]
		}
	}
	return p.points[0].on(t.AddDate(0, 0, 1)), First
}

// ShiftRule decides which shift codes may be entitled in which window.
// All-window codes qualify everywhere; day codes only in the first and
// last window.
type ShiftRule struct {
	allWindow map[string]struct{}
	day       map[string]struct{}
}

func NewShiftRule(allWindow, day []string) ShiftRule {
	return ShiftRule{allWindow: codeSet(allWindow), day: codeSet(day)}
}

func (r ShiftRule) Eligible(shift string, id ID) bool {
	shift = strings.ToLower(strings.TrimSpace(shift))
	if _, ok := r.allWindow[shift]; ok {
		return id == First || id == Middle || id == Last
	}
	if _, ok := r.day[shift]; ok {
		return id == First || id == Last
	}
	return false
}

func codeSet(codes []string) map[string]struct{} {
	out := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			out[c] = struct{}{}
		}
	}
	return out
}
