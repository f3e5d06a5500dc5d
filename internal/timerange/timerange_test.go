package timerange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.Local)
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name                           string
		aStart, aEnd, bStart, bEnd     time.Time
		want                           bool
	}{
		{"disjoint before", at(9, 0), at(9, 30), at(10, 0), at(10, 30), false},
		{"disjoint after", at(11, 0), at(11, 30), at(10, 0), at(10, 30), false},
		{"touching boundaries do not overlap", at(9, 0), at(10, 0), at(10, 0), at(11, 0), false},
		{"partial overlap", at(10, 15), at(10, 45), at(10, 0), at(10, 30), true},
		{"contained", at(10, 10), at(10, 20), at(10, 0), at(10, 30), true},
		{"containing", at(9, 0), at(12, 0), at(10, 0), at(10, 30), true},
		{"identical", at(10, 0), at(10, 30), at(10, 0), at(10, 30), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Overlaps(tc.aStart, tc.aEnd, tc.bStart, tc.bEnd))
		})
	}
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, Clock{Hour: 9, Minute: 30}, c)
	assert.Equal(t, "09:30", c.String())

	for _, bad := range []string{"", "9", "9:3:1", "ab:cd", "24:00", "10:60", "-1:00"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestClockAt(t *testing.T) {
	date := time.Date(2026, 3, 2, 17, 42, 11, 0, time.Local)
	got := Clock{Hour: 10, Minute: 0}.At(date)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local), got)
}

func TestClockBefore(t *testing.T) {
	assert.True(t, Clock{9, 0}.Before(Clock{17, 0}))
	assert.True(t, Clock{9, 0}.Before(Clock{9, 30}))
	assert.False(t, Clock{17, 0}.Before(Clock{9, 0}))
	assert.False(t, Clock{9, 30}.Before(Clock{9, 30}))
}

func TestDayBounds(t *testing.T) {
	date := time.Date(2026, 3, 2, 14, 30, 0, 0, time.Local)
	start, end := DayBounds(date)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.Local), start)
	assert.True(t, end.After(time.Date(2026, 3, 2, 23, 59, 58, 0, time.Local)))
	assert.True(t, end.Before(time.Date(2026, 3, 3, 0, 0, 0, 0, time.Local)))
}
