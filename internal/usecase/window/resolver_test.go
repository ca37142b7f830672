package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forum-digest/internal/domain"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestResolveDefaultsToMidnight(t *testing.T) {
	for _, hour := range []int{0, 7, 13, 23} {
		now := time.Date(2024, 5, 17, hour, 42, 19, 500, time.UTC)
		w, err := NewResolver(fixedClock(now)).Resolve("", DefaultMinutes)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC), w.To)
		assert.Equal(t, time.Date(2024, 5, 16, 0, 0, 0, 0, time.UTC), w.From)
	}
}

func TestResolveUsesUTCDayOfNonUTCClock(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	now := time.Date(2024, 5, 18, 2, 0, 0, 0, loc) // 2024-05-17 21:00 UTC
	w, err := NewResolver(fixedClock(now)).Resolve("", 60)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC), w.To)
}

func TestResolveExplicitTo(t *testing.T) {
	r := NewResolver(fixedClock(time.Now()))
	tests := []struct {
		raw  string
		want time.Time
	}{
		{raw: "2013-01-02T10:30:00Z", want: time.Date(2013, 1, 2, 10, 30, 0, 0, time.UTC)},
		{raw: "2013-01-02T10:30:00+02:00", want: time.Date(2013, 1, 2, 8, 30, 0, 0, time.UTC)},
		{raw: "2013-01-02 10:30:00", want: time.Date(2013, 1, 2, 10, 30, 0, 0, time.UTC)},
		{raw: "2013-01-02", want: time.Date(2013, 1, 2, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			w, err := r.Resolve(tt.raw, 90)
			require.NoError(t, err)
			assert.Equal(t, tt.want, w.To)
			assert.Equal(t, tt.want.Add(-90*time.Minute), w.From)
			assert.True(t, w.From.Before(w.To))
		})
	}
}

func TestResolveRejectsBadInput(t *testing.T) {
	r := NewResolver(nil)

	_, err := r.Resolve("yesterday", 10)
	assert.ErrorIs(t, err, domain.ErrInvalidTimeSpec)

	_, err = r.Resolve("", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidTimeSpec)

	_, err = r.Resolve("2013-01-02", -5)
	assert.ErrorIs(t, err, domain.ErrInvalidTimeSpec)

	_, err = r.Resolve("", 1<<40)
	assert.ErrorIs(t, err, domain.ErrInvalidTimeSpec)
}

func TestResolveLongestWindowKeepsDuration(t *testing.T) {
	to := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewResolver(func() time.Time { return to })

	w, err := r.Resolve("", int(maxMinutes))
	require.NoError(t, err)
	assert.Equal(t, time.Duration(maxMinutes)*time.Minute, w.To.Sub(w.From))
}

func TestTimeSlice(t *testing.T) {
	at := func(d, h, m, s int) time.Time { return time.Date(2013, 1, d, h, m, s, 0, time.UTC) }
	tests := []struct {
		minutes  int
		now      time.Time
		from, to time.Time
	}{
		{1, at(1, 0, 0, 0), time.Date(2012, 12, 31, 23, 59, 0, 0, time.UTC), at(1, 0, 0, 0)},
		{1, at(1, 0, 1, 0), at(1, 0, 0, 0), at(1, 0, 1, 0)},
		{1, at(1, 1, 1, 0), at(1, 1, 0, 0), at(1, 1, 1, 0)},
		{15, at(1, 0, 0, 0), time.Date(2012, 12, 31, 23, 45, 0, 0, time.UTC), at(1, 0, 0, 0)},
		{15, at(1, 0, 14, 59), time.Date(2012, 12, 31, 23, 45, 0, 0, time.UTC), at(1, 0, 0, 0)},
		{15, at(1, 0, 15, 0), at(1, 0, 0, 0), at(1, 0, 15, 0)},
		{1440, at(1, 0, 0, 0), time.Date(2012, 12, 31, 0, 0, 0, 0, time.UTC), at(1, 0, 0, 0)},
		{1440, at(1, 23, 59, 0), time.Date(2012, 12, 31, 0, 0, 0, 0, time.UTC), at(1, 0, 0, 0)},
	}
	for _, tt := range tests {
		w, err := TimeSlice(tt.minutes, tt.now)
		require.NoError(t, err)
		assert.Equal(t, tt.from, w.From, "minutes=%d now=%s", tt.minutes, tt.now)
		assert.Equal(t, tt.to, w.To, "minutes=%d now=%s", tt.minutes, tt.now)
	}

	for _, bad := range []int{0, 14, 1441, -15} {
		_, err := TimeSlice(bad, at(2, 0, 0, 0))
		assert.ErrorIs(t, err, domain.ErrInvalidTimeSpec, "minutes=%d", bad)
	}
}
