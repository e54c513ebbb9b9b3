package handlers

import (
	"encoding/json"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"originmetrics/internal/apperr"
	dbpkg "originmetrics/internal/db"
	httpctx "originmetrics/internal/http/ctx"
)

// MustUser returns the current user from context, or sends 401 and returns (nil, false).
func MustUser(ctx *fasthttp.RequestCtx) (*dbpkg.User, bool) {
	user, ok := httpctx.UserFromCtx(ctx)
	if !ok {
		errResponse(ctx, apperr.Unauthenticated("not signed in"))
		return nil, false
	}
	return user, true
}

// MustOrigin returns the origin the request was scoped to by middleware.
func MustOrigin(ctx *fasthttp.RequestCtx) (*dbpkg.Origin, bool) {
	origin, ok := httpctx.OriginFromCtx(ctx)
	if !ok {
		errResponse(ctx, apperr.NotFound("Origin not found"))
		return nil, false
	}
	return origin, true
}

// jsonResponse writes {"data": data} with the given status.
func jsonResponse(ctx *fasthttp.RequestCtx, status int, data any) {
	body, err := json.Marshal(map[string]any{"data": data})
	if err != nil {
		errResponse(ctx, apperr.Wrap(err, "encode response"))
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

// errResponse writes {"message": ...} with the status of err's kind.
// Unclassified errors are logged and reported as a generic 500.
func errResponse(ctx *fasthttp.RequestCtx, err error) {
	status := apperr.StatusOf(err)
	if status >= fasthttp.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.ByteString("method", ctx.Method()),
			zap.ByteString("path", ctx.Path()),
			zap.Error(err))
	}
	body, _ := json.Marshal(map[string]string{"message": apperr.MessageOf(err)})
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

// decodeJSON unmarshals the request body into v.
func decodeJSON(ctx *fasthttp.RequestCtx, v any) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return apperr.Invalid("request body is required")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperr.Invalid("invalid JSON body")
	}
	return nil
}

// RequestLogger returns fasthttp middleware that logs method, path, status, duration.
func RequestLogger(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)
		zap.L().Info("request",
			zap.ByteString("method", ctx.Method()),
			zap.ByteString("path", ctx.Path()),
			zap.Int("status", ctx.Response.StatusCode()),
			zap.Duration("took", time.Since(start)),
			zap.String("ip", ctx.RemoteAddr().String()))
	}
}
