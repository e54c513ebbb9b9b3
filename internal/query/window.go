package query

import (
	"time"

	"originmetrics/internal/apperr"
)

const (
	day = 24 * time.Hour

	// WeeklyThreshold is the window length from which series use weekly buckets.
	WeeklyThreshold = 90 * day

	// MaxWindow bounds a single aggregation window.
	MaxWindow = 5 * 365 * day
)

// Scope is the truncation unit of a time series.
type Scope string

const (
	ScopeHour Scope = "hour"
	ScopeDay  Scope = "day"
	ScopeWeek Scope = "week"
)

// Window is an aggregation time range. Both ends are inclusive unless
// OpenEnd is set, in which case To is excluded.
type Window struct {
	From    time.Time
	To      time.Time
	OpenEnd bool
}

// Validate rejects empty, inverted and oversized windows.
func (w Window) Validate() error {
	if w.From.IsZero() || w.To.IsZero() {
		return apperr.Invalid("from and to are required")
	}
	if !w.To.After(w.From) {
		return apperr.Invalid("to must be after from")
	}
	if w.To.Sub(w.From) > MaxWindow {
		return apperr.Invalid("window must not exceed %d days", int(MaxWindow/day))
	}
	return nil
}

// Length is the duration of the window.
func (w Window) Length() time.Duration {
	return w.To.Sub(w.From)
}

// Previous returns the immediately preceding window of equal length. It
// ends where w starts, exclusive, so a row on the boundary is counted once.
func (w Window) Previous() Window {
	return Window{From: w.From.Add(-w.Length()), To: w.From, OpenEnd: true}
}

// Scope picks the bucket size for a series over w: hourly up to one day,
// weekly from WeeklyThreshold, daily in between.
func (w Window) Scope() Scope {
	switch d := w.Length(); {
	case d <= day:
		return ScopeHour
	case d >= WeeklyThreshold:
		return ScopeWeek
	default:
		return ScopeDay
	}
}

// Truncate returns the start of the bucket holding t, in UTC. Weeks start on
// Monday, as with Postgres date_trunc.
func (s Scope) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch s {
	case ScopeHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	case ScopeWeek:
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(d.Weekday()) + 6) % 7
		return d.AddDate(0, 0, -offset)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// Next returns the start of the bucket after the one starting at t.
func (s Scope) Next(t time.Time) time.Time {
	switch s {
	case ScopeHour:
		return t.Add(time.Hour)
	case ScopeWeek:
		return t.AddDate(0, 0, 7)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// Buckets lists every bucket start that overlaps w.
func (w Window) Buckets(s Scope) []time.Time {
	var out []time.Time
	for t := s.Truncate(w.From); !t.After(w.To); t = s.Next(t) {
		if w.OpenEnd && !t.Before(w.To) {
			break
		}
		out = append(out, t)
	}
	return out
}

// TimePoint is one bucket of a request/error series.
type TimePoint struct {
	Time     time.Time `json:"time"`
	Requests int64     `json:"requests"`
	Errors   int64     `json:"errors"`
}

// Fill returns a dense series over w: every expected bucket appears once,
// zero-valued when points has no entry for it. Points outside w are dropped.
func (w Window) Fill(points []TimePoint, s Scope) []TimePoint {
	byTime := make(map[int64]TimePoint, len(points))
	for _, p := range points {
		k := s.Truncate(p.Time).Unix()
		acc := byTime[k]
		acc.Requests += p.Requests
		acc.Errors += p.Errors
		byTime[k] = acc
	}

	buckets := w.Buckets(s)
	out := make([]TimePoint, 0, len(buckets))
	for _, b := range buckets {
		p := byTime[b.Unix()]
		p.Time = b
		out = append(out, p)
	}
	return out
}
