package handlers

import (
	"context"
	"time"

	dbpkg "originmetrics/internal/db"
	"originmetrics/internal/http/middleware"
	"originmetrics/internal/query"
	"originmetrics/internal/routes"
)

// Store is the part of *db.Store the HTTP layer depends on.
type Store interface {
	middleware.UserLookup
	middleware.KeyLookup
	middleware.MemberLookup

	Authenticate(ctx context.Context, username, password string) (*dbpkg.User, error)

	OriginsForUser(ctx context.Context, userID uint) ([]dbpkg.Origin, error)
	CreateOrigin(ctx context.Context, userID uint, name string) (*dbpkg.Origin, error)
	Overview(ctx context.Context, originIDs []string, now time.Time) (map[string]dbpkg.Summary, error)

	RouteSet(ctx context.Context, originID string) (*routes.Set, error)
	ListRoutes(ctx context.Context, originID string, kind dbpkg.RouteKind) ([]dbpkg.RouteCount, error)
	ReplaceRoutes(ctx context.Context, originID string, kind dbpkg.RouteKind, patterns []string) ([]dbpkg.RouteCount, error)
	Reclassify(ctx context.Context, originID string) (dbpkg.Plan, error)

	InsertMetric(ctx context.Context, m *dbpkg.Metric) (routes.Result, error)

	General(ctx context.Context, p query.Predicate) (*dbpkg.General, error)
	TimeFrame(ctx context.Context, p query.Predicate, scope query.Scope) ([]query.TimePoint, error)
	Endpoints(ctx context.Context, p query.Predicate) ([]dbpkg.EndpointStat, error)
	GeoLocation(ctx context.Context, p query.Predicate) (*dbpkg.GeoStats, error)
	Misc(ctx context.Context, p query.Predicate) (*dbpkg.MiscStats, error)
	LatestIntegration(ctx context.Context, originID string) (*dbpkg.Integration, error)
}

var _ Store = (*dbpkg.Store)(nil)
