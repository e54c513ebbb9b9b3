package ctx

import (
	"github.com/valyala/fasthttp"

	dbpkg "originmetrics/internal/db"
)

const (
	UserKey   = "user"
	OriginKey = "origin"
)

func SetUser(ctx *fasthttp.RequestCtx, user *dbpkg.User) {
	ctx.SetUserValue(UserKey, user)
}

func UserFromCtx(ctx *fasthttp.RequestCtx) (*dbpkg.User, bool) {
	u, ok := ctx.UserValue(UserKey).(*dbpkg.User)
	return u, ok && u != nil
}

// SetOrigin stores the origin the request is scoped to, either resolved
// from an API key or from a slug the user is a member of.
func SetOrigin(ctx *fasthttp.RequestCtx, origin *dbpkg.Origin) {
	ctx.SetUserValue(OriginKey, origin)
}

func OriginFromCtx(ctx *fasthttp.RequestCtx) (*dbpkg.Origin, bool) {
	o, ok := ctx.UserValue(OriginKey).(*dbpkg.Origin)
	return o, ok && o != nil
}
