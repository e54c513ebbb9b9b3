package db

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"originmetrics/internal/apperr"
	"originmetrics/internal/routes"
)

const (
	routeCachePrefix = "routes:"

	// backfillChunk bounds the IN list of a single classification update.
	backfillChunk = 500
)

// RouteKind selects between the two route tables.
type RouteKind int

const (
	KindDynamic RouteKind = iota
	KindExcluded
)

func (k RouteKind) String() string {
	if k == KindExcluded {
		return "excluded"
	}
	return "dynamic"
}

// RouteCount reports how many distinct recorded paths a route matches.
type RouteCount struct {
	ID      uint   `json:"id"`
	Pattern string `json:"pattern"`
	Paths   int64  `json:"paths"`
}

// Plan is the outcome of classifying every distinct path of an origin:
// route id to the paths it claims. Paths matching no route appear in neither.
type Plan struct {
	Dynamic  map[uint][]string
	Excluded map[uint][]string
}

// PlanClassification classifies paths against set. It is the compute phase
// of a backfill and touches no storage.
func PlanClassification(paths []string, set *routes.Set) Plan {
	plan := Plan{Dynamic: map[uint][]string{}, Excluded: map[uint][]string{}}
	for _, p := range paths {
		res := set.Classify(p)
		switch {
		case res.Excluded:
			plan.Excluded[res.ExcludedID] = append(plan.Excluded[res.ExcludedID], p)
		case res.DynamicID != 0:
			plan.Dynamic[res.DynamicID] = append(plan.Dynamic[res.DynamicID], p)
		}
	}
	return plan
}

// Counts lists every route of kind in set with the number of paths the plan
// assigned to it, most specific route first.
func (p Plan) Counts(set *routes.Set, kind RouteKind) []RouteCount {
	rs, assigned := set.Dynamic(), p.Dynamic
	if kind == KindExcluded {
		rs, assigned = set.Excluded(), p.Excluded
	}
	out := make([]RouteCount, 0, len(rs))
	for _, r := range rs {
		out = append(out, RouteCount{ID: r.ID, Pattern: r.Pattern, Paths: int64(len(assigned[r.ID]))})
	}
	return out
}

func loadRouteSet(tx *gorm.DB, originID string) (*routes.Set, error) {
	var dyn []DynamicRoute
	if err := tx.Where("origin_id = ?", originID).Find(&dyn).Error; err != nil {
		return nil, err
	}
	var exc []ExcludedRoute
	if err := tx.Where("origin_id = ?", originID).Find(&exc).Error; err != nil {
		return nil, err
	}

	dynamic := make([]routes.Route, 0, len(dyn))
	for _, d := range dyn {
		r, err := routes.Load(d.ID, d.Pattern, d.Regex)
		if err != nil {
			return nil, err
		}
		dynamic = append(dynamic, r)
	}
	excluded := make([]routes.Route, 0, len(exc))
	for _, e := range exc {
		r, err := routes.Load(e.ID, e.Pattern, e.Regex)
		if err != nil {
			return nil, err
		}
		excluded = append(excluded, r)
	}
	return routes.NewSet(dynamic, excluded), nil
}

// RouteSet returns the origin's current route configuration, cached for the
// store's cache TTL and dropped whenever this store rewrites it.
func (s *Store) RouteSet(ctx context.Context, originID string) (*routes.Set, error) {
	key := routeCachePrefix + originID
	if v, ok := s.cached(key); ok {
		return v.(*routes.Set), nil
	}
	gen := s.generation(key)
	set, err := loadRouteSet(s.db.WithContext(ctx), originID)
	if err != nil {
		return nil, apperr.Wrap(err, "load routes")
	}
	s.rememberAt(key, set, gen)
	return set, nil
}

// ListRoutes returns the routes of kind with their current matching-path counts.
func (s *Store) ListRoutes(ctx context.Context, originID string, kind RouteKind) ([]RouteCount, error) {
	set, err := loadRouteSet(s.db.WithContext(ctx), originID)
	if err != nil {
		return nil, apperr.Wrap(err, "load routes")
	}

	column := "dynamic_route_id"
	rs := set.Dynamic()
	if kind == KindExcluded {
		column = "excluded_route_id"
		rs = set.Excluded()
	}

	type countRow struct {
		ID    uint
		Paths int64
	}
	var rows []countRow
	err = s.db.WithContext(ctx).Raw(
		`SELECT `+column+` AS id, COUNT(DISTINCT path) AS paths FROM metrics WHERE origin_id = ? AND `+column+` IS NOT NULL GROUP BY `+column,
		originID,
	).Scan(&rows).Error
	if err != nil {
		return nil, apperr.Wrap(err, "count route paths")
	}
	byID := make(map[uint]int64, len(rows))
	for _, r := range rows {
		byID[r.ID] = r.Paths
	}

	out := make([]RouteCount, 0, len(rs))
	for _, r := range rs {
		out = append(out, RouteCount{ID: r.ID, Pattern: r.Pattern, Paths: byID[r.ID]})
	}
	return out, nil
}

// ReplaceRoutes swaps the origin's routes of kind for patterns and
// reclassifies its stored metrics, all in one transaction. Colliding
// patterns are rejected with a Conflict before anything is written.
func (s *Store) ReplaceRoutes(ctx context.Context, originID string, kind RouteKind, patterns []string) ([]RouteCount, error) {
	compiled, err := routes.CompileAll(patterns)
	if err != nil {
		return nil, err
	}

	var counts []RouteCount
	err = s.rewriteRoutes(ctx, originID, func(tx *gorm.DB) error {
		if err := replaceRouteRows(tx, originID, kind, compiled); err != nil {
			return err
		}
		set, err := loadRouteSet(tx, originID)
		if err != nil {
			return err
		}
		plan, err := backfill(tx, originID, set)
		if err != nil {
			return err
		}
		counts = plan.Counts(set, kind)
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("two %s routes match the same paths", kind)
		}
		zap.L().Error("route replacement rolled back",
			zap.String("origin", originID), zap.Stringer("kind", kind), zap.Error(err))
		return nil, apperr.Wrap(err, "replace routes")
	}

	zap.L().Info("routes replaced",
		zap.String("origin", originID), zap.Stringer("kind", kind), zap.Int("routes", len(compiled)))
	s.refreshRollups(ctx, originID)
	return counts, nil
}

// rewriteRoutes runs fn in a transaction while holding the origin's route
// lock, and drops the cached route set before the lock is released so no
// insert can classify against the replaced routes.
func (s *Store) rewriteRoutes(ctx context.Context, originID string, fn func(tx *gorm.DB) error) error {
	l := s.routeLock(originID)
	l.Lock()
	defer l.Unlock()

	err := s.db.WithContext(ctx).Transaction(fn)
	s.forget(routeCachePrefix + originID)
	return err
}

// refreshRollups rebuilds the origin's hourly buckets that Overview reads.
// The classification is already committed, so a failure only leaves the
// overview stale until the next rollup of those hours.
func (s *Store) refreshRollups(ctx context.Context, originID string) {
	if err := s.RollupOrigin(ctx, originID, time.Now()); err != nil {
		zap.L().Warn("rollup refresh after reclassification failed",
			zap.String("origin", originID), zap.Error(err))
	}
}

func replaceRouteRows(tx *gorm.DB, originID string, kind RouteKind, compiled []routes.Route) error {
	if kind == KindExcluded {
		if err := tx.Where("origin_id = ?", originID).Delete(&ExcludedRoute{}).Error; err != nil {
			return err
		}
		if len(compiled) == 0 {
			return nil
		}
		rows := make([]ExcludedRoute, 0, len(compiled))
		for _, r := range compiled {
			rows = append(rows, ExcludedRoute{OriginID: originID, Pattern: r.Pattern, Regex: r.Regex})
		}
		return tx.Omit(clause.Associations).Create(&rows).Error
	}

	if err := tx.Where("origin_id = ?", originID).Delete(&DynamicRoute{}).Error; err != nil {
		return err
	}
	if len(compiled) == 0 {
		return nil
	}
	rows := make([]DynamicRoute, 0, len(compiled))
	for _, r := range compiled {
		rows = append(rows, DynamicRoute{OriginID: originID, Pattern: r.Pattern, Regex: r.Regex})
	}
	return tx.Omit(clause.Associations).Create(&rows).Error
}

// Reclassify recomputes the classification keys of every stored metric of
// the origin from its current routes. It is the recovery path when stored
// classification has drifted from the configuration.
func (s *Store) Reclassify(ctx context.Context, originID string) (Plan, error) {
	var plan Plan
	err := s.rewriteRoutes(ctx, originID, func(tx *gorm.DB) error {
		set, err := loadRouteSet(tx, originID)
		if err != nil {
			return err
		}
		plan, err = backfill(tx, originID, set)
		return err
	})
	if err != nil {
		zap.L().Warn("backfill failed; stored classification is stale until reclassified",
			zap.String("origin", originID), zap.Error(err))
		return Plan{}, apperr.Wrap(err, "reclassify metrics")
	}
	s.refreshRollups(ctx, originID)
	return plan, nil
}

// backfill runs both phases: plan in memory, then rewrite the keys.
func backfill(tx *gorm.DB, originID string, set *routes.Set) (Plan, error) {
	var paths []string
	if err := tx.Model(&Metric{}).Where("origin_id = ?", originID).Distinct("path").Pluck("path", &paths).Error; err != nil {
		return Plan{}, err
	}
	plan := PlanClassification(paths, set)

	reset := tx.Model(&Metric{}).
		Where("origin_id = ? AND (dynamic_route_id IS NOT NULL OR excluded_route_id IS NOT NULL)", originID).
		Updates(map[string]any{"dynamic_route_id": nil, "excluded_route_id": nil})
	if reset.Error != nil {
		return Plan{}, reset.Error
	}

	if err := applyAssignments(tx, originID, "dynamic_route_id", plan.Dynamic); err != nil {
		return Plan{}, err
	}
	if err := applyAssignments(tx, originID, "excluded_route_id", plan.Excluded); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

func applyAssignments(tx *gorm.DB, originID, column string, assigned map[uint][]string) error {
	ids := make([]uint, 0, len(assigned))
	for id := range assigned {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		paths := assigned[id]
		for start := 0; start < len(paths); start += backfillChunk {
			end := min(start+backfillChunk, len(paths))
			err := tx.Model(&Metric{}).
				Where("origin_id = ? AND path IN ?", originID, paths[start:end]).
				Update(column, id).Error
			if err != nil {
				return err
			}
		}
	}
	return nil
}
