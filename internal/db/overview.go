package db

import (
	"context"
	"math"
	"time"

	"originmetrics/internal/apperr"
	"originmetrics/internal/query"
)

// overviewPeriod is the length of each of the two periods Overview compares.
const overviewPeriod = 24 * time.Hour

// Summary is the last-24-hours headline of one origin, read from the hourly
// rollups and compared with the 24 hours before.
type Summary struct {
	Totals
	AvgResponseMs       int64        `json:"avgResponseMs"`
	TotalRequestsGrowth query.Growth `json:"totalRequestsGrowth"`
	ErrorRateGrowth     query.Growth `json:"errorRateGrowth"`
}

type overviewRow struct {
	OriginID     string  `gorm:"column:origin_id"`
	Requests     int64   `gorm:"column:requests"`
	Errors       int64   `gorm:"column:errors"`
	PrevRequests int64   `gorm:"column:prev_requests"`
	PrevErrors   int64   `gorm:"column:prev_errors"`
	WeightedMs   float64 `gorm:"column:weighted_ms"`
}

func (r overviewRow) summary() Summary {
	cur := newTotals(r.Requests, r.Errors)
	prev := newTotals(r.PrevRequests, r.PrevErrors)
	s := Summary{
		Totals:              cur,
		TotalRequestsGrowth: query.Ratio(float64(cur.TotalRequests), float64(prev.TotalRequests)),
		ErrorRateGrowth:     query.Ratio(cur.ErrorRate, prev.ErrorRate),
	}
	if r.Requests > 0 {
		s.AvgResponseMs = int64(math.Round(r.WeightedMs / float64(r.Requests)))
	}
	return s
}

// Overview summarises each of originIDs over the 24 completed hours before
// now. Origins without rollups get a zero Summary.
func (s *Store) Overview(ctx context.Context, originIDs []string, now time.Time) (map[string]Summary, error) {
	out := make(map[string]Summary, len(originIDs))
	if len(originIDs) == 0 {
		return out, nil
	}

	end := now.UTC().Truncate(time.Hour)
	split := end.Add(-overviewPeriod)
	start := split.Add(-overviewPeriod)

	var rows []overviewRow
	err := s.db.WithContext(ctx).Raw(`
SELECT origin_id,
       COALESCE(SUM(total_count) FILTER (WHERE bucket_start >= ?), 0) AS requests,
       COALESCE(SUM(error_count) FILTER (WHERE bucket_start >= ?), 0) AS errors,
       COALESCE(SUM(total_count) FILTER (WHERE bucket_start < ?), 0) AS prev_requests,
       COALESCE(SUM(error_count) FILTER (WHERE bucket_start < ?), 0) AS prev_errors,
       COALESCE(SUM(avg_response_ms * total_count) FILTER (WHERE bucket_start >= ?), 0)::float8 AS weighted_ms
FROM metric_buckets
WHERE origin_id IN ? AND bucket_start >= ? AND bucket_start < ?
GROUP BY origin_id`,
		split, split, split, split, split, originIDs, start, end,
	).Scan(&rows).Error
	if err != nil {
		return nil, apperr.Wrap(err, "origin overview")
	}

	for _, id := range originIDs {
		out[id] = overviewRow{}.summary()
	}
	for _, r := range rows {
		out[r.OriginID] = r.summary()
	}
	return out, nil
}
