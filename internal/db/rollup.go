package db

import (
	"context"
	"math"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	rollupBatch = 5000

	// rollupCatchUp is how many completed hours are rolled up at startup.
	rollupCatchUp = 24
)

type rollupSample struct {
	status *int
	ms     int64
}

// summarize folds one origin's samples for the hour starting at start into
// a bucket. Percentiles use the nearest rank rule.
func summarize(originID string, start time.Time, samples []rollupSample) MetricBucket {
	b := MetricBucket{OriginID: originID, BucketStart: start, TotalCount: int64(len(samples))}
	if len(samples) == 0 {
		return b
	}

	data := make(stats.Float64Data, 0, len(samples))
	for _, s := range samples {
		if s.status != nil && *s.status >= 400 && *s.status < 600 {
			b.ErrorCount++
		}
		data = append(data, float64(s.ms))
	}

	mean, _ := stats.Mean(data)
	b.AvgResponseMs = int64(math.Round(mean))
	b.P50ResponseMs = nearestRank(data, 50)
	b.P95ResponseMs = nearestRank(data, 95)
	b.P99ResponseMs = nearestRank(data, 99)
	return b
}

func nearestRank(data stats.Float64Data, pct float64) int64 {
	v, err := stats.PercentileNearestRank(data, pct)
	if err != nil {
		return 0
	}
	return int64(v)
}

// Rollup recomputes the hourly buckets of the hour starting at hour (UTC)
// from the stored metrics. Excluded traffic is skipped. Buckets of origins
// with no remaining traffic in that hour are removed.
func (s *Store) Rollup(ctx context.Context, hour time.Time) (int, error) {
	return s.rollup(ctx, hour, "")
}

// RollupOrigin recomputes originID's buckets for every completed hour that
// Overview reads at now.
func (s *Store) RollupOrigin(ctx context.Context, originID string, now time.Time) error {
	end := now.UTC().Truncate(time.Hour)
	for hour := end.Add(-2 * overviewPeriod); hour.Before(end); hour = hour.Add(time.Hour) {
		if _, err := s.rollup(ctx, hour, originID); err != nil {
			return err
		}
	}
	return nil
}

// rollup rebuilds the buckets of one hour, for every origin when originID
// is empty.
func (s *Store) rollup(ctx context.Context, hour time.Time, originID string) (int, error) {
	start := hour.UTC().Truncate(time.Hour)
	end := start.Add(time.Hour)

	q := s.db.WithContext(ctx).
		Model(&Metric{}).
		Select("id", "origin_id", "status_code", "response_time").
		Where("created_at >= ? AND created_at < ? AND excluded_route_id IS NULL", start, end)
	if originID != "" {
		q = q.Where("origin_id = ?", originID)
	}

	samples := map[string][]rollupSample{}
	var batch []Metric
	err := q.FindInBatches(&batch, rollupBatch, func(_ *gorm.DB, _ int) error {
		for _, m := range batch {
			samples[m.OriginID] = append(samples[m.OriginID], rollupSample{status: m.StatusCode, ms: m.ResponseTime})
		}
		return nil
	}).Error
	if err != nil {
		return 0, err
	}

	buckets := make([]MetricBucket, 0, len(samples))
	origins := make([]string, 0, len(samples))
	for id, list := range samples {
		buckets = append(buckets, summarize(id, start, list))
		origins = append(origins, id)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stale := tx.Where("bucket_start = ?", start)
		if originID != "" {
			stale = stale.Where("origin_id = ?", originID)
		}
		if len(origins) > 0 {
			stale = stale.Where("origin_id NOT IN ?", origins)
		}
		if err := stale.Delete(&MetricBucket{}).Error; err != nil {
			return err
		}
		if len(buckets) == 0 {
			return nil
		}
		return tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "origin_id"}, {Name: "bucket_start"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"total_count", "error_count", "avg_response_ms",
				"p50_response_ms", "p95_response_ms", "p99_response_ms",
			}),
		}).Create(&buckets).Error
	})
	if err != nil {
		return 0, err
	}
	return len(buckets), nil
}

// ScheduleRollup rolls up the last completed hours in the background and
// registers an hourly job for the hour that just ended.
func ScheduleRollup(c *cron.Cron, s *Store) error {
	go func() {
		now := time.Now().UTC().Truncate(time.Hour)
		for i := rollupCatchUp; i >= 1; i-- {
			hour := now.Add(-time.Duration(i) * time.Hour)
			if _, err := s.Rollup(context.Background(), hour); err != nil {
				zap.L().Error("rollup failed", zap.Time("hour", hour), zap.Error(err))
			}
		}
	}()

	_, err := c.AddFunc("@hourly", func() {
		hour := time.Now().UTC().Truncate(time.Hour).Add(-time.Hour)
		n, err := s.Rollup(context.Background(), hour)
		if err != nil {
			zap.L().Error("rollup failed", zap.Time("hour", hour), zap.Error(err))
			return
		}
		zap.L().Debug("rollup done", zap.Time("hour", hour), zap.Int("origins", n))
	})
	return err
}
