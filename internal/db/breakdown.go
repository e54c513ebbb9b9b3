package db

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"originmetrics/internal/apperr"
	"originmetrics/internal/query"
)

// truncUnit returns the date_trunc field for s. Only the fixed literals below
// ever reach the query text.
func truncUnit(s query.Scope) (string, error) {
	switch s {
	case query.ScopeHour:
		return "hour", nil
	case query.ScopeDay:
		return "day", nil
	case query.ScopeWeek:
		return "week", nil
	}
	return "", apperr.Invalid("unknown scope %q", s)
}

// TimeFrame buckets the rows matching p by scope. Only buckets holding at
// least one row are returned, oldest first.
func (s *Store) TimeFrame(ctx context.Context, p query.Predicate, scope query.Scope) ([]query.TimePoint, error) {
	unit, err := truncUnit(scope)
	if err != nil {
		return nil, err
	}
	where, args := p.SQL()

	var rows []struct {
		Bucket   time.Time `gorm:"column:bucket"`
		Requests int64     `gorm:"column:requests"`
		Errors   int64     `gorm:"column:errors"`
	}
	err = s.db.WithContext(ctx).Raw(`
SELECT date_trunc('`+unit+`', m.created_at AT TIME ZONE 'UTC') AS bucket,
       COUNT(*) AS requests,
       COUNT(*) FILTER (WHERE `+errorCondition+`) AS errors
FROM metrics m
WHERE `+where+`
GROUP BY bucket
ORDER BY bucket`, args...).Scan(&rows).Error
	if err != nil {
		return nil, apperr.Wrap(err, "time frame")
	}

	out := make([]query.TimePoint, 0, len(rows))
	for _, r := range rows {
		// timestamp without time zone comes back as a UTC wall clock
		t := r.Bucket
		out = append(out, query.TimePoint{
			Time:     time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC),
			Requests: r.Requests,
			Errors:   r.Errors,
		})
	}
	return out, nil
}

// EndpointStat is one (method, endpoint) row of the endpoint breakdown. The
// endpoint is the dynamic route pattern when one claimed the path.
type EndpointStat struct {
	Method          string  `json:"method" gorm:"column:method"`
	Endpoint        string  `json:"endpoint" gorm:"column:endpoint"`
	TotalRequests   int64   `json:"totalRequests" gorm:"column:total_requests"`
	TotalErrors     int64   `json:"totalErrors" gorm:"column:total_errors"`
	AvgResponseTime float64 `json:"avgResponseTime" gorm:"column:avg_response_time"`
}

// Endpoints groups the rows matching p by method and classified endpoint,
// busiest first.
func (s *Store) Endpoints(ctx context.Context, p query.Predicate) ([]EndpointStat, error) {
	where, args := p.SQL()
	out := []EndpointStat{}
	err := s.db.WithContext(ctx).Raw(`
SELECT m.method AS method,
       COALESCE(d.pattern, m.path) AS endpoint,
       COUNT(*) AS total_requests,
       COUNT(*) FILTER (WHERE `+errorCondition+`) AS total_errors,
       ROUND(AVG(m.response_time))::float8 AS avg_response_time
FROM metrics m
LEFT JOIN dynamic_routes d ON d.id = m.dynamic_route_id
WHERE `+where+`
GROUP BY m.method, COALESCE(d.pattern, m.path)
ORDER BY total_requests DESC, endpoint, method`, args...).Scan(&out).Error
	if err != nil {
		return nil, apperr.Wrap(err, "endpoint breakdown")
	}
	return out, nil
}

// GeoCount is a request count for one place.
type GeoCount struct {
	Name        string  `json:"name" gorm:"column:name"`
	CountryCode *string `json:"countryCode" gorm:"column:country_code"`
	Requests    int64   `json:"requests" gorm:"column:requests"`
}

// GeoStats holds the three location breakdowns.
type GeoStats struct {
	Countries []GeoCount `json:"countries"`
	Regions   []GeoCount `json:"regions"`
	Cities    []GeoCount `json:"cities"`
}

var geoColumns = [...]string{"m.country", "m.region", "m.city"}

func (s *Store) geoBreakdown(ctx context.Context, column, where string, args []any) ([]GeoCount, error) {
	out := []GeoCount{}
	err := s.db.WithContext(ctx).Raw(`
SELECT `+column+` AS name, m.country_code AS country_code, COUNT(*) AS requests
FROM metrics m
WHERE `+where+` AND `+column+` IS NOT NULL
GROUP BY `+column+`, m.country_code
ORDER BY requests DESC, name`, args...).Scan(&out).Error
	return out, err
}

// GeoLocation runs the country, region and city breakdowns concurrently.
// A row without a value for one level is left out of that level only.
func (s *Store) GeoLocation(ctx context.Context, p query.Predicate) (*GeoStats, error) {
	where, args := p.SQL()
	var results [len(geoColumns)][]GeoCount

	g, gctx := errgroup.WithContext(ctx)
	for i, column := range geoColumns {
		g.Go(func() error {
			var err error
			results[i], err = s.geoBreakdown(gctx, column, where, args)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperr.Wrap(err, "geo breakdown")
	}
	return &GeoStats{Countries: results[0], Regions: results[1], Cities: results[2]}, nil
}

// Count is a request count for one named value.
type Count struct {
	Name     string `json:"name"`
	Requests int64  `json:"requests"`
}

// StatusCount is a request count for one status code.
type StatusCount struct {
	StatusCode int   `json:"statusCode"`
	Requests   int64 `json:"requests"`
}

// MiscStats are the user agent and status code breakdowns.
type MiscStats struct {
	Browsers    []Count       `json:"browsers"`
	OS          []Count       `json:"os"`
	Devices     []Count       `json:"devices"`
	StatusCodes []StatusCount `json:"statusCodes"`
}

// groupingRow is one row of the GROUPING SETS query. A zero grouping flag
// marks the column the row is grouped by.
type groupingRow struct {
	Browser    *string `gorm:"column:browser"`
	OS         *string `gorm:"column:os"`
	Device     *string `gorm:"column:device"`
	StatusCode *int    `gorm:"column:status_code"`
	GBrowser   int     `gorm:"column:g_browser"`
	GOS        int     `gorm:"column:g_os"`
	GDevice    int     `gorm:"column:g_device"`
	GStatus    int     `gorm:"column:g_status"`
	Requests   int64   `gorm:"column:requests"`
}

// splitGroupingSets distributes rows into their breakdowns, dropping groups
// whose value is NULL. Row order is preserved within each breakdown.
func splitGroupingSets(rows []groupingRow) MiscStats {
	out := MiscStats{
		Browsers:    []Count{},
		OS:          []Count{},
		Devices:     []Count{},
		StatusCodes: []StatusCount{},
	}
	for _, r := range rows {
		switch {
		case r.GBrowser == 0:
			if r.Browser != nil {
				out.Browsers = append(out.Browsers, Count{Name: *r.Browser, Requests: r.Requests})
			}
		case r.GOS == 0:
			if r.OS != nil {
				out.OS = append(out.OS, Count{Name: *r.OS, Requests: r.Requests})
			}
		case r.GDevice == 0:
			if r.Device != nil {
				out.Devices = append(out.Devices, Count{Name: *r.Device, Requests: r.Requests})
			}
		case r.GStatus == 0:
			if r.StatusCode != nil {
				out.StatusCodes = append(out.StatusCodes, StatusCount{StatusCode: *r.StatusCode, Requests: r.Requests})
			}
		}
	}
	return out
}

// Misc computes the browser, OS, device and status code breakdowns in a
// single round trip.
func (s *Store) Misc(ctx context.Context, p query.Predicate) (*MiscStats, error) {
	where, args := p.SQL()
	var rows []groupingRow
	err := s.db.WithContext(ctx).Raw(`
SELECT m.browser AS browser, m.os AS os, m.device AS device, m.status_code AS status_code,
       GROUPING(m.browser) AS g_browser,
       GROUPING(m.os) AS g_os,
       GROUPING(m.device) AS g_device,
       GROUPING(m.status_code) AS g_status,
       COUNT(*) AS requests
FROM metrics m
WHERE `+where+`
GROUP BY GROUPING SETS ((m.browser), (m.os), (m.device), (m.status_code))
ORDER BY requests DESC`, args...).Scan(&rows).Error
	if err != nil {
		return nil, apperr.Wrap(err, "misc breakdown")
	}
	stats := splitGroupingSets(rows)
	return &stats, nil
}

// Integration identifies the client library that reported a metric.
type Integration struct {
	Identifier string `json:"identifier"`
	Version    string `json:"version"`
}

// LatestIntegration returns the integration of the origin's most recent
// metric that carried one, or nil when none did.
func (s *Store) LatestIntegration(ctx context.Context, originID string) (*Integration, error) {
	var rows []struct {
		Integration        string `gorm:"column:integration"`
		IntegrationVersion string `gorm:"column:integration_version"`
	}
	err := s.db.WithContext(ctx).Raw(`
SELECT integration, COALESCE(integration_version, '') AS integration_version
FROM metrics
WHERE origin_id = ? AND integration IS NOT NULL
ORDER BY created_at DESC
LIMIT 1`, originID).Scan(&rows).Error
	if err != nil {
		return nil, apperr.Wrap(err, "latest integration")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &Integration{Identifier: rows[0].Integration, Version: rows[0].IntegrationVersion}, nil
}
