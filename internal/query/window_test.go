package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope_Boundaries(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		length time.Duration
		want   Scope
	}{
		{time.Hour, ScopeHour},
		{24 * time.Hour, ScopeHour},
		{24*time.Hour + time.Second, ScopeDay},
		{30 * 24 * time.Hour, ScopeDay},
		{90*24*time.Hour - time.Second, ScopeDay},
		{90 * 24 * time.Hour, ScopeWeek},
		{365 * 24 * time.Hour, ScopeWeek},
	}
	for _, c := range cases {
		w := Window{From: from, To: from.Add(c.length)}
		assert.Equal(t, c.want, w.Scope(), c.length.String())
	}
}

func TestWindow_Validate(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, Window{From: from, To: from.Add(time.Minute)}.Validate())
	assert.Error(t, Window{From: from, To: from}.Validate())
	assert.Error(t, Window{To: from}.Validate())
	assert.Error(t, Window{From: from, To: from.Add(MaxWindow + time.Hour)}.Validate())
}

func TestWindow_Previous(t *testing.T) {
	from := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	w := Window{From: from, To: from.Add(48 * time.Hour)}
	prev := w.Previous()
	assert.Equal(t, from.Add(-48*time.Hour), prev.From)
	assert.Equal(t, from, prev.To)
	assert.True(t, prev.OpenEnd)
	assert.Equal(t, w.Length(), prev.Length())
}

func TestScope_Truncate(t *testing.T) {
	// Thursday
	ts := time.Date(2026, 1, 15, 13, 45, 10, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 15, 13, 0, 0, 0, time.UTC), ScopeHour.Truncate(ts))
	assert.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), ScopeDay.Truncate(ts))
	assert.Equal(t, time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC), ScopeWeek.Truncate(ts))

	sunday := time.Date(2026, 1, 18, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC), ScopeWeek.Truncate(sunday))

	monday := time.Date(2026, 1, 19, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, monday, ScopeWeek.Truncate(monday))

	local := time.Date(2026, 1, 15, 1, 30, 0, 0, time.FixedZone("UTC+3", 3*3600))
	assert.Equal(t, time.Date(2026, 1, 14, 0, 0, 0, 0, time.UTC), ScopeDay.Truncate(local))
}

func TestWindow_Buckets(t *testing.T) {
	from := time.Date(2026, 1, 1, 10, 30, 0, 0, time.UTC)
	w := Window{From: from, To: from.Add(3 * time.Hour)}
	got := w.Buckets(ScopeHour)
	require.Len(t, got, 4)
	assert.Equal(t, time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC), got[0])
	assert.Equal(t, time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC), got[3])

	exact := Window{From: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)}
	assert.Len(t, exact.Buckets(ScopeHour), 25)
	exact.OpenEnd = true
	assert.Len(t, exact.Buckets(ScopeHour), 24)
}

func TestWindow_FillDense(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w := Window{From: from, To: from.Add(5 * 24 * time.Hour)}
	sparse := []TimePoint{
		{Time: from.Add(24 * time.Hour), Requests: 5, Errors: 1},
		{Time: from.Add(3 * 24 * time.Hour), Requests: 7},
	}

	dense := w.Fill(sparse, ScopeDay)
	require.Len(t, dense, 6)
	for i, p := range dense {
		assert.Equal(t, from.AddDate(0, 0, i), p.Time)
	}
	assert.Equal(t, int64(0), dense[0].Requests)
	assert.Equal(t, int64(5), dense[1].Requests)
	assert.Equal(t, int64(1), dense[1].Errors)
	assert.Equal(t, int64(7), dense[3].Requests)
	assert.Equal(t, int64(0), dense[5].Requests)
}

func TestWindow_FillDropsOutOfRange(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w := Window{From: from, To: from.Add(2 * time.Hour)}
	dense := w.Fill([]TimePoint{{Time: from.Add(10 * time.Hour), Requests: 9}}, ScopeHour)
	require.Len(t, dense, 3)
	for _, p := range dense {
		assert.Zero(t, p.Requests)
	}
}
