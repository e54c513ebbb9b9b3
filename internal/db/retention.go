package db

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Purge deletes metrics and hourly buckets older than days before now.
// days <= 0 keeps everything.
func (s *Store) Purge(ctx context.Context, now time.Time, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	cutoff := now.UTC().AddDate(0, 0, -days)

	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&Metric{})
	if res.Error != nil {
		return 0, res.Error
	}
	if err := s.db.WithContext(ctx).Where("bucket_start < ?", cutoff).Delete(&MetricBucket{}).Error; err != nil {
		return res.RowsAffected, err
	}
	return res.RowsAffected, nil
}

// ScheduleRetention purges once in the background and then daily.
func ScheduleRetention(c *cron.Cron, s *Store, days int) error {
	if days <= 0 {
		return nil
	}
	run := func() {
		n, err := s.Purge(context.Background(), time.Now(), days)
		if err != nil {
			zap.L().Error("retention cleanup failed", zap.Error(err))
			return
		}
		if n > 0 {
			zap.L().Info("retention cleanup", zap.Int64("metrics", n), zap.Int("days", days))
		}
	}
	go run()

	_, err := c.AddFunc("@daily", run)
	return err
}
