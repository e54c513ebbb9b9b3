package db

import (
	"context"

	"golang.org/x/sync/errgroup"

	"originmetrics/internal/apperr"
	"originmetrics/internal/query"
)

// errorCondition counts 4xx and 5xx responses. A NULL status is not an error.
const errorCondition = "m.status_code >= 400 AND m.status_code < 600"

// Totals are request and error counts of one window.
type Totals struct {
	TotalRequests int64   `json:"totalRequests"`
	TotalErrors   int64   `json:"totalErrors"`
	ErrorRate     float64 `json:"errorRate"`
}

func newTotals(requests, errors int64) Totals {
	t := Totals{TotalRequests: requests, TotalErrors: errors}
	if requests > 0 {
		t.ErrorRate = float64(errors) / float64(requests)
	}
	return t
}

// Distribution summarises one numeric dimension over a window with nearest
// rank percentiles.
type Distribution struct {
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// General is the headline aggregate: totals for the window and the one
// before it, their growth, and the distributions of every measured dimension.
type General struct {
	Totals
	Previous Totals `json:"previous"`

	TotalRequestsGrowth query.Growth `json:"totalRequestsGrowth"`
	TotalErrorsGrowth   query.Growth `json:"totalErrorsGrowth"`
	ErrorRateGrowth     query.Growth `json:"errorRateGrowth"`

	ResponseTime Distribution `json:"responseTime"`
	RequestSize  Distribution `json:"requestSize"`
	ResponseSize Distribution `json:"responseSize"`
	CPUUsage     Distribution `json:"cpuUsage"`
	MemoryUsage  Distribution `json:"memoryUsage"`
}

// NewGeneral compares current against previous.
func NewGeneral(current, previous Totals) General {
	return General{
		Totals:              current,
		Previous:            previous,
		TotalRequestsGrowth: query.Ratio(float64(current.TotalRequests), float64(previous.TotalRequests)),
		TotalErrorsGrowth:   query.Ratio(float64(current.TotalErrors), float64(previous.TotalErrors)),
		ErrorRateGrowth:     query.Ratio(current.ErrorRate, previous.ErrorRate),
	}
}

// Dimension is a numeric measurement with a distribution.
type Dimension string

const (
	DimResponseTime Dimension = "responseTime"
	DimRequestSize  Dimension = "requestSize"
	DimResponseSize Dimension = "responseSize"
	DimCPUUsage     Dimension = "cpuUsage"
	DimMemoryUsage  Dimension = "memoryUsage"
)

type dimensionColumn struct {
	column string
	// integer columns report averages rounded to the nearest unit
	integer bool
}

var dimensionColumns = map[Dimension]dimensionColumn{
	DimResponseTime: {"m.response_time", true},
	DimRequestSize:  {"m.request_size", true},
	DimResponseSize: {"m.response_size", true},
	DimCPUUsage:     {"m.cpu_usage", false},
	DimMemoryUsage:  {"m.memory_usage", false},
}

// DistributionSQL renders the single query computing the average and every
// percentile of dim.
func DistributionSQL(dim Dimension, where string) (string, error) {
	dc, ok := dimensionColumns[dim]
	if !ok {
		return "", apperr.Invalid("unknown dimension %q", dim)
	}
	avg := "AVG(" + dc.column + ")"
	if dc.integer {
		avg = "ROUND(AVG(" + dc.column + "))"
	}
	pct := func(p, alias string) string {
		return "(percentile_disc(" + p + ") WITHIN GROUP (ORDER BY " + dc.column + "))::float8 AS " + alias
	}
	return `SELECT ` + avg + `::float8 AS avg, ` +
		pct("0.5", "p50") + `, ` +
		pct("0.75", "p75") + `, ` +
		pct("0.9", "p90") + `, ` +
		pct("0.95", "p95") + `, ` +
		pct("0.99", "p99") +
		` FROM metrics m WHERE ` + where, nil
}

type distributionRow struct {
	Avg *float64 `gorm:"column:avg"`
	P50 *float64 `gorm:"column:p50"`
	P75 *float64 `gorm:"column:p75"`
	P90 *float64 `gorm:"column:p90"`
	P95 *float64 `gorm:"column:p95"`
	P99 *float64 `gorm:"column:p99"`
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

// Distribution computes dim over the rows matching p.
func (s *Store) Distribution(ctx context.Context, p query.Predicate, dim Dimension) (Distribution, error) {
	where, args := p.SQL()
	sql, err := DistributionSQL(dim, where)
	if err != nil {
		return Distribution{}, err
	}
	var row distributionRow
	if err := s.db.WithContext(ctx).Raw(sql, args...).Scan(&row).Error; err != nil {
		return Distribution{}, err
	}
	return Distribution{
		Avg: deref(row.Avg),
		P50: deref(row.P50),
		P75: deref(row.P75),
		P90: deref(row.P90),
		P95: deref(row.P95),
		P99: deref(row.P99),
	}, nil
}

// Totals counts requests and errors matching p.
func (s *Store) Totals(ctx context.Context, p query.Predicate) (Totals, error) {
	where, args := p.SQL()
	var row struct {
		Requests int64 `gorm:"column:requests"`
		Errors   int64 `gorm:"column:errors"`
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(*) AS requests, COUNT(*) FILTER (WHERE `+errorCondition+`) AS errors FROM metrics m WHERE `+where,
		args...,
	).Scan(&row).Error
	if err != nil {
		return Totals{}, err
	}
	return newTotals(row.Requests, row.Errors), nil
}

// General runs the current and previous totals and all distributions
// concurrently and joins them.
func (s *Store) General(ctx context.Context, p query.Predicate) (*General, error) {
	var current, previous Totals
	dims := []Dimension{DimResponseTime, DimRequestSize, DimResponseSize, DimCPUUsage, DimMemoryUsage}
	dists := make([]Distribution, len(dims))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = s.Totals(gctx, p)
		return err
	})
	g.Go(func() error {
		var err error
		previous, err = s.Totals(gctx, p.WithWindow(p.Window.Previous()))
		return err
	})
	for i, dim := range dims {
		g.Go(func() error {
			var err error
			dists[i], err = s.Distribution(gctx, p, dim)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperr.Wrap(err, "general metrics")
	}

	out := NewGeneral(current, previous)
	out.ResponseTime = dists[0]
	out.RequestSize = dists[1]
	out.ResponseSize = dists[2]
	out.CPUUsage = dists[3]
	out.MemoryUsage = dists[4]
	return &out, nil
}
