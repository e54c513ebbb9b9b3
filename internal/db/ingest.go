package db

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"originmetrics/internal/apperr"
	"originmetrics/internal/routes"
)

// InsertMetric classifies m against the origin's current routes and appends
// it. The returned Result is the classification that was stored. Inserts
// wait for a route rewrite of the same origin to finish.
func (s *Store) InsertMetric(ctx context.Context, m *Metric) (routes.Result, error) {
	l := s.routeLock(m.OriginID)
	l.RLock()
	defer l.RUnlock()

	res, err := s.insertClassified(ctx, m)
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		// a route was replaced after the cached set was loaded
		s.forget(routeCachePrefix + m.OriginID)
		res, err = s.insertClassified(ctx, m)
	}
	if err != nil {
		return routes.Result{}, apperr.Wrap(err, "persist metric")
	}
	return res, nil
}

func (s *Store) insertClassified(ctx context.Context, m *Metric) (routes.Result, error) {
	set, err := s.RouteSet(ctx, m.OriginID)
	if err != nil {
		return routes.Result{}, err
	}
	res := set.Classify(m.Path)

	m.ID = 0
	m.DynamicRouteID, m.ExcludedRouteID = nil, nil
	if res.Excluded {
		id := res.ExcludedID
		m.ExcludedRouteID = &id
	} else if res.DynamicID != 0 {
		id := res.DynamicID
		m.DynamicRouteID = &id
	}

	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(m).Error; err != nil {
		return routes.Result{}, err
	}
	return res, nil
}
