package handlers

import (
	"time"

	"github.com/valyala/fasthttp"

	dbpkg "originmetrics/internal/db"
)

type originView struct {
	dbpkg.Origin
	Overview dbpkg.Summary `json:"overview"`
}

// ListOrigins lists the caller's origins with their last-24-hours overview.
// API keys are only shown to admins and owners.
func ListOrigins(store Store) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}

		origins, err := store.OriginsForUser(ctx, user.ID)
		if err != nil {
			errResponse(ctx, err)
			return
		}
		ids := make([]string, 0, len(origins))
		for _, o := range origins {
			ids = append(ids, o.ID)
		}
		overview, err := store.Overview(ctx, ids, time.Now())
		if err != nil {
			errResponse(ctx, err)
			return
		}

		out := make([]originView, 0, len(origins))
		for _, o := range origins {
			if !o.Role.AtLeast(dbpkg.RoleAdmin) {
				o.APIKey = ""
			}
			out = append(out, originView{Origin: o, Overview: overview[o.ID]})
		}
		jsonResponse(ctx, fasthttp.StatusOK, out)
	}
}

type createOriginRequest struct {
	Name string `json:"name"`
}

// CreateOrigin creates an origin owned by the caller.
func CreateOrigin(store Store) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}

		var req createOriginRequest
		if err := decodeJSON(ctx, &req); err != nil {
			errResponse(ctx, err)
			return
		}

		origin, err := store.CreateOrigin(ctx, user.ID, req.Name)
		if err != nil {
			errResponse(ctx, err)
			return
		}
		jsonResponse(ctx, fasthttp.StatusCreated, origin)
	}
}
