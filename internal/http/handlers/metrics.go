package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/sync/errgroup"

	"originmetrics/internal/apperr"
	"originmetrics/internal/query"
)

// Aggregate families served by OriginMetrics.
const (
	statGeneral     = "general"
	statTimeFrame   = "timeFrame"
	statEndpoint    = "endpoint"
	statGeoLocation = "geoLocation"
	statMisc        = "misc"
)

var allStats = []string{statGeneral, statTimeFrame, statEndpoint, statGeoLocation, statMisc}

func validStat(s string) bool {
	for _, v := range allStats {
		if v == s {
			return true
		}
	}
	return false
}

func parseTime(args *fasthttp.Args, key string) (time.Time, error) {
	v := string(args.Peek(key))
	if v == "" {
		return time.Time{}, apperr.Invalid("%s is required", key)
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, apperr.Invalid("%s must be an RFC 3339 timestamp", key)
	}
	return t.UTC(), nil
}

// parseFilter reads the window and the optional filters of a metrics request.
func parseFilter(args *fasthttp.Args) (query.Filter, error) {
	from, err := parseTime(args, "from")
	if err != nil {
		return query.Filter{}, err
	}
	to, err := parseTime(args, "to")
	if err != nil {
		return query.Filter{}, err
	}
	f := query.Filter{
		Window:     query.Window{From: from, To: to},
		Method:     string(args.Peek("method")),
		Endpoint:   string(args.Peek("endpoint")),
		StatusCode: string(args.Peek("statusCode")),
		Browser:    string(args.Peek("browser")),
		OS:         string(args.Peek("os")),
		Device:     string(args.Peek("device")),
		Country:    string(args.Peek("country")),
		Region:     string(args.Peek("region")),
		City:       string(args.Peek("city")),
	}
	if err := f.Window.Validate(); err != nil {
		return query.Filter{}, err
	}
	return f, nil
}

// runStat computes one aggregate family. The time series is densified so
// every bucket of the window is present.
func runStat(ctx context.Context, store Store, stat string, p query.Predicate) (any, error) {
	defer observeQuery(stat, time.Now())

	switch stat {
	case statGeneral:
		return store.General(ctx, p)
	case statTimeFrame:
		scope := p.Window.Scope()
		points, err := store.TimeFrame(ctx, p, scope)
		if err != nil {
			return nil, err
		}
		return p.Window.Fill(points, scope), nil
	case statEndpoint:
		return store.Endpoints(ctx, p)
	case statGeoLocation:
		return store.GeoLocation(ctx, p)
	case statMisc:
		return store.Misc(ctx, p)
	}
	return nil, apperr.Invalid("unknown stat %q", stat)
}

// OriginMetrics serves GET /origins/{slug}/metrics. With ?stat= it returns
// that one aggregate family; without it, all of them computed concurrently
// and keyed by family name.
func OriginMetrics(store Store) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		origin, ok := MustOrigin(ctx)
		if !ok {
			return
		}

		args := ctx.QueryArgs()
		stat := string(args.Peek("stat"))
		if stat != "" && !validStat(stat) {
			errResponse(ctx, apperr.Invalid("stat must be one of general, timeFrame, endpoint, geoLocation, misc"))
			return
		}
		f, err := parseFilter(args)
		if err != nil {
			errResponse(ctx, err)
			return
		}

		set, err := store.RouteSet(ctx, origin.ID)
		if err != nil {
			errResponse(ctx, err)
			return
		}
		p, err := query.Build(origin.ID, f, set)
		if err != nil {
			errResponse(ctx, err)
			return
		}

		if stat != "" {
			data, err := runStat(ctx, store, stat, p)
			if err != nil {
				errResponse(ctx, err)
				return
			}
			jsonResponse(ctx, fasthttp.StatusOK, data)
			return
		}

		var mu sync.Mutex
		out := make(map[string]any, len(allStats))
		g, gctx := errgroup.WithContext(ctx)
		for _, s := range allStats {
			g.Go(func() error {
				data, err := runStat(gctx, store, s, p)
				if err != nil {
					return err
				}
				mu.Lock()
				out[s] = data
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			errResponse(ctx, err)
			return
		}
		jsonResponse(ctx, fasthttp.StatusOK, out)
	}
}

// MetricsVersion returns the newest integration seen for the origin, or
// null data when it never reported one.
func MetricsVersion(store Store) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		origin, ok := MustOrigin(ctx)
		if !ok {
			return
		}
		integration, err := store.LatestIntegration(ctx, origin.ID)
		if err != nil {
			errResponse(ctx, err)
			return
		}
		if integration == nil {
			jsonResponse(ctx, fasthttp.StatusOK, nil)
			return
		}
		jsonResponse(ctx, fasthttp.StatusOK, integration)
	}
}
