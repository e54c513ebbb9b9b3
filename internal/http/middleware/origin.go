package middleware

import (
	"context"

	"github.com/valyala/fasthttp"

	"originmetrics/internal/apperr"
	dbpkg "originmetrics/internal/db"
	httpctx "originmetrics/internal/http/ctx"
)

type MemberLookup interface {
	OriginAccess(ctx context.Context, userID uint, slug string) (*dbpkg.Origin, error)
}

// OriginAccess loads the origin named by the {slug} route parameter for the
// signed-in user. Non-members get a 404, members below min a 403. It must
// run after SessionAuth.
func OriginAccess(origins MemberLookup, min dbpkg.Role) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			user, ok := httpctx.UserFromCtx(ctx)
			if !ok {
				fail(ctx, apperr.Unauthenticated("not signed in"))
				return
			}
			slug, _ := ctx.UserValue("slug").(string)

			origin, err := origins.OriginAccess(ctx, user.ID, slug)
			if err != nil {
				fail(ctx, err)
				return
			}
			if !origin.Role.AtLeast(min) {
				fail(ctx, apperr.Forbidden("%s role required", min))
				return
			}

			httpctx.SetOrigin(ctx, origin)
			next(ctx)
		}
	}
}
