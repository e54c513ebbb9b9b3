package handlers

import (
	"github.com/valyala/fasthttp"

	"originmetrics/internal/apperr"
	dbpkg "originmetrics/internal/db"
)

// MaxRoutes bounds the size of one route list.
const MaxRoutes = 500

// ListRoutes lists the origin's routes of kind with their matching-path counts.
func ListRoutes(store Store, kind dbpkg.RouteKind) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		origin, ok := MustOrigin(ctx)
		if !ok {
			return
		}
		counts, err := store.ListRoutes(ctx, origin.ID, kind)
		if err != nil {
			errResponse(ctx, err)
			return
		}
		jsonResponse(ctx, fasthttp.StatusOK, counts)
	}
}

// ReplaceRoutes replaces the origin's routes of kind with the JSON array of
// patterns in the body and responds with the recomputed path counts.
func ReplaceRoutes(store Store, kind dbpkg.RouteKind) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		origin, ok := MustOrigin(ctx)
		if !ok {
			return
		}

		var patterns []string
		if err := decodeJSON(ctx, &patterns); err != nil {
			errResponse(ctx, apperr.Invalid("body must be a JSON array of route patterns"))
			return
		}
		if patterns == nil {
			errResponse(ctx, apperr.Invalid("body must be a JSON array of route patterns"))
			return
		}
		if len(patterns) > MaxRoutes {
			errResponse(ctx, apperr.Invalid("at most %d routes are allowed", MaxRoutes))
			return
		}

		counts, err := store.ReplaceRoutes(ctx, origin.ID, kind, patterns)
		if err != nil {
			errResponse(ctx, err)
			return
		}
		jsonResponse(ctx, fasthttp.StatusOK, counts)
	}
}

// Reclassify recomputes the stored classification of every metric of the
// origin from its current routes.
func Reclassify(store Store) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		origin, ok := MustOrigin(ctx)
		if !ok {
			return
		}
		plan, err := store.Reclassify(ctx, origin.ID)
		if err != nil {
			errResponse(ctx, err)
			return
		}
		set, err := store.RouteSet(ctx, origin.ID)
		if err != nil {
			errResponse(ctx, err)
			return
		}
		jsonResponse(ctx, fasthttp.StatusOK, map[string]any{
			"dynamic":  plan.Counts(set, dbpkg.KindDynamic),
			"excluded": plan.Counts(set, dbpkg.KindExcluded),
		})
	}
}
