package window_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/refectory/internal/refectory/window"
)

func at(h, m int) time.Time {
	return time.Date(2026, 3, 9, h, m, 30, 0, time.Local)
}

func defaultSchedule(t *testing.T) window.Schedule {
	t.Helper()
	s, err := window.ParseSchedule([]string{"03:25-05:35", "09:20-10:35", "14:55-17:40"})
	require.NoError(t, err)
	return s
}

func TestParseClock(t *testing.T) {
	m, err := window.ParseClock("09:05")
	require.NoError(t, err)
	assert.Equal(t, window.Minute(545), m)
	assert.Equal(t, "09:05", m.String())

	for _, bad := range []string{"", "9", "24:00", "12:60", "ab:cd"} {
		_, err := window.ParseClock(bad)
		assert.ErrorIs(t, err, window.ErrBadClock, bad)
	}
}

func TestSchedule_BoundaryMinutesInclusive(t *testing.T) {
	s := defaultSchedule(t)

	idx, ok := s.Allows(at(3, 25))
	assert.True(t, ok)
	assert.Equal(t, 0, idx)

	idx, ok = s.Allows(at(10, 35))
	assert.True(t, ok, "last minute of the window is accepted")
	assert.Equal(t, 1, idx)

	_, ok = s.Allows(at(3, 24))
	assert.False(t, ok, "one minute before the window")

	_, ok = s.Allows(at(17, 41))
	assert.False(t, ok, "one minute after the window")
}

func TestNewSchedule_RejectsOverlap(t *testing.T) {
	_, err := window.ParseSchedule([]string{"09:00-10:00", "09:30-11:00"})
	assert.ErrorIs(t, err, window.ErrRangeOrder)

	_, err = window.ParseSchedule([]string{"10:00-09:00"})
	assert.ErrorIs(t, err, window.ErrBadRange)
}

func TestTimePoints_At(t *testing.T) {
	p, err := window.ParseTimePoints("03:25", "09:25", "20:24")
	require.NoError(t, err)

	cases := []struct {
		h, m int
		want window.ID
	}{
		{0, 0, window.First},
		{3, 24, window.First},
		{3, 25, window.Middle},
		{9, 24, window.Middle},
		{9, 25, window.Last},
		{20, 23, window.Last},
		{20, 24, window.First},
		{23, 59, window.First},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, p.At(at(c.h, c.m)), "%02d:%02d", c.h, c.m)
	}
}

func TestTimePoints_RequiresOrder(t *testing.T) {
	_, err := window.ParseTimePoints("09:00", "09:00", "10:00")
	assert.ErrorIs(t, err, window.ErrPointOrder)
}

func TestTimePoints_Next(t *testing.T) {
	p, err := window.ParseTimePoints("03:25", "09:25", "20:24")
	require.NoError(t, err)

	next, id := p.Next(at(9, 25))
	assert.Equal(t, window.Last, id)
	assert.Equal(t, 20, next.Hour())
	assert.Equal(t, 24, next.Minute())

	next, id = p.Next(at(21, 0))
	assert.Equal(t, window.First, id)
	assert.Equal(t, 10, next.Day())
	assert.Equal(t, 3, next.Hour())
}

func TestShiftRule_DayShiftSkipsMiddleWindow(t *testing.T) {
	r := window.NewShiftRule([]string{"ns", "LDS"}, []string{"ds"})

	assert.True(t, r.Eligible("ds", window.First))
	assert.False(t, r.Eligible("ds", window.Middle))
	assert.True(t, r.Eligible("DS", window.Last))

	for _, id := range []window.ID{window.First, window.Middle, window.Last} {
		assert.True(t, r.Eligible("ns", id))
		assert.True(t, r.Eligible("lds", id))
		assert.False(t, r.Eligible("off", id))
	}
}

func TestParseID(t *testing.T) {
	id, err := window.ParseID(" B ")
	require.NoError(t, err)
	assert.Equal(t, window.Middle, id)

	_, err = window.ParseID("d")
	assert.ErrorIs(t, err, window.ErrUnknownWindow)
}
