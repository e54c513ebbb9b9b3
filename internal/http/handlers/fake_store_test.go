package handlers

import (
	"context"
	"sync"
	"time"

	"originmetrics/internal/apperr"
	dbpkg "originmetrics/internal/db"
	"originmetrics/internal/query"
	"originmetrics/internal/routes"
)

// fakeStore is an in-memory Store. Origins are keyed by slug and every user
// is a member of every origin with the role in roles.
type fakeStore struct {
	mu sync.Mutex

	users    map[string]*dbpkg.User
	password string
	origins  map[string]*dbpkg.Origin
	roles    map[string]dbpkg.Role
	set      *routes.Set

	general   *dbpkg.General
	points    []query.TimePoint
	endpoints []dbpkg.EndpointStat
	version   *dbpkg.Integration

	replaceErr error
	replaced   []string
	predicates []query.Predicate
	inserted   []*dbpkg.Metric
	calls      int
}

func newFakeStore() *fakeStore {
	origin := &dbpkg.Origin{ID: "00000000-0000-0000-0000-000000000001", Name: "Shop", Slug: "shop", APIKey: "om_key"}
	dyn, _ := routes.Compile("/users/<id>")
	dyn.ID = 1
	return &fakeStore{
		users: map[string]*dbpkg.User{
			"alice": {ID: 1, Username: "alice"},
		},
		password: "s3cret",
		origins:  map[string]*dbpkg.Origin{"shop": origin},
		roles:    map[string]dbpkg.Role{"shop": dbpkg.RoleViewer},
		set:      routes.NewSet([]routes.Route{dyn}, nil),
		general:  &dbpkg.General{},
	}
}

func (f *fakeStore) record(p query.Predicate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.predicates = append(f.predicates, p)
}

func (f *fakeStore) UserByUsername(_ context.Context, username string) (*dbpkg.User, error) {
	if u, ok := f.users[username]; ok {
		return u, nil
	}
	return nil, apperr.NotFound("user not found")
}

func (f *fakeStore) Authenticate(ctx context.Context, username, password string) (*dbpkg.User, error) {
	u, err := f.UserByUsername(ctx, username)
	if err != nil || password != f.password {
		return nil, apperr.Unauthenticated("invalid username or password")
	}
	return u, nil
}

func (f *fakeStore) OriginByAPIKey(_ context.Context, key string) (*dbpkg.Origin, error) {
	for _, o := range f.origins {
		if o.APIKey == key {
			return o, nil
		}
	}
	return nil, apperr.InvalidCredential("invalid API key")
}

func (f *fakeStore) OriginAccess(_ context.Context, _ uint, slug string) (*dbpkg.Origin, error) {
	o, ok := f.origins[slug]
	if !ok {
		return nil, apperr.NotFound("Origin not found")
	}
	out := *o
	out.Role = f.roles[slug]
	return &out, nil
}

func (f *fakeStore) OriginsForUser(ctx context.Context, userID uint) ([]dbpkg.Origin, error) {
	var out []dbpkg.Origin
	for slug := range f.origins {
		o, _ := f.OriginAccess(ctx, userID, slug)
		out = append(out, *o)
	}
	return out, nil
}

func (f *fakeStore) CreateOrigin(_ context.Context, _ uint, name string) (*dbpkg.Origin, error) {
	if name == "" {
		return nil, apperr.Invalid("name must contain at least one letter or digit")
	}
	return &dbpkg.Origin{ID: "new", Name: name, Slug: dbpkg.Slugify(name), Role: dbpkg.RoleOwner}, nil
}

func (f *fakeStore) Overview(_ context.Context, ids []string, _ time.Time) (map[string]dbpkg.Summary, error) {
	out := map[string]dbpkg.Summary{}
	for _, id := range ids {
		out[id] = dbpkg.Summary{Totals: dbpkg.Totals{TotalRequests: 7}}
	}
	return out, nil
}

func (f *fakeStore) RouteSet(context.Context, string) (*routes.Set, error) {
	return f.set, nil
}

func (f *fakeStore) ListRoutes(_ context.Context, _ string, kind dbpkg.RouteKind) ([]dbpkg.RouteCount, error) {
	if kind == dbpkg.KindExcluded {
		return []dbpkg.RouteCount{}, nil
	}
	return []dbpkg.RouteCount{{ID: 1, Pattern: "/users/<id>", Paths: 2}}, nil
}

func (f *fakeStore) ReplaceRoutes(_ context.Context, _ string, _ dbpkg.RouteKind, patterns []string) ([]dbpkg.RouteCount, error) {
	if f.replaceErr != nil {
		return nil, f.replaceErr
	}
	f.replaced = patterns
	out := make([]dbpkg.RouteCount, 0, len(patterns))
	for i, p := range patterns {
		out = append(out, dbpkg.RouteCount{ID: uint(i + 1), Pattern: p})
	}
	return out, nil
}

func (f *fakeStore) Reclassify(context.Context, string) (dbpkg.Plan, error) {
	return dbpkg.Plan{Dynamic: map[uint][]string{1: {"/users/1", "/users/2"}}, Excluded: map[uint][]string{}}, nil
}

func (f *fakeStore) InsertMetric(_ context.Context, m *dbpkg.Metric) (routes.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, m)
	return f.set.Classify(m.Path), nil
}

func (f *fakeStore) General(_ context.Context, p query.Predicate) (*dbpkg.General, error) {
	f.record(p)
	return f.general, nil
}

func (f *fakeStore) TimeFrame(_ context.Context, p query.Predicate, _ query.Scope) ([]query.TimePoint, error) {
	f.record(p)
	return f.points, nil
}

func (f *fakeStore) Endpoints(_ context.Context, p query.Predicate) ([]dbpkg.EndpointStat, error) {
	f.record(p)
	if f.endpoints == nil {
		return []dbpkg.EndpointStat{}, nil
	}
	return f.endpoints, nil
}

func (f *fakeStore) GeoLocation(_ context.Context, p query.Predicate) (*dbpkg.GeoStats, error) {
	f.record(p)
	return &dbpkg.GeoStats{Countries: []dbpkg.GeoCount{}, Regions: []dbpkg.GeoCount{}, Cities: []dbpkg.GeoCount{}}, nil
}

func (f *fakeStore) Misc(_ context.Context, p query.Predicate) (*dbpkg.MiscStats, error) {
	f.record(p)
	return &dbpkg.MiscStats{}, nil
}

func (f *fakeStore) LatestIntegration(context.Context, string) (*dbpkg.Integration, error) {
	return f.version, nil
}
