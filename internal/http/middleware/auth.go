package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/valyala/fasthttp"

	"originmetrics/internal/apperr"
	dbpkg "originmetrics/internal/db"
	httpctx "originmetrics/internal/http/ctx"
	"originmetrics/internal/session"
)

type UserLookup interface {
	UserByUsername(ctx context.Context, username string) (*dbpkg.User, error)
}

type KeyLookup interface {
	OriginByAPIKey(ctx context.Context, key string) (*dbpkg.Origin, error)
}

// fail writes err as a JSON {message} body with its classified status.
func fail(ctx *fasthttp.RequestCtx, err error) {
	body, _ := json.Marshal(map[string]string{"message": apperr.MessageOf(err)})
	ctx.SetStatusCode(apperr.StatusOf(err))
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

// SessionAuth loads the user named by the signed session cookie and sets it
// on the context. Requests without a valid session get a 401.
func SessionAuth(codec *session.Codec, users UserLookup) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			cookie := ctx.Request.Header.Cookie(session.CookieName)
			if len(cookie) == 0 {
				fail(ctx, apperr.Unauthenticated("not signed in"))
				return
			}
			username, err := codec.Parse(string(cookie))
			if err != nil {
				fail(ctx, apperr.Unauthenticated("session is invalid or expired"))
				return
			}

			user, err := users.UserByUsername(ctx, username)
			if err != nil {
				if apperr.KindOf(err) == apperr.KindNotFound {
					err = apperr.Unauthenticated("session is invalid or expired")
				}
				fail(ctx, err)
				return
			}

			httpctx.SetUser(ctx, user)
			next(ctx)
		}
	}
}

// APIKeyAuth resolves the ingestion key to its origin. The key is read from
// a Bearer token, the api-key query argument or the apiKey field of a JSON
// body, in that order. A missing key is a 401, an unknown one a 403.
func APIKeyAuth(origins KeyLookup) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			key := apiKeyFrom(ctx)
			if key == "" {
				fail(ctx, apperr.Unauthenticated("missing API key"))
				return
			}

			origin, err := origins.OriginByAPIKey(ctx, key)
			if err != nil {
				fail(ctx, err)
				return
			}

			httpctx.SetOrigin(ctx, origin)
			next(ctx)
		}
	}
}

func apiKeyFrom(ctx *fasthttp.RequestCtx) string {
	const prefix = "Bearer "
	if auth := ctx.Request.Header.Peek("Authorization"); bytes.HasPrefix(auth, []byte(prefix)) {
		if token := strings.TrimSpace(string(auth[len(prefix):])); token != "" {
			return token
		}
	}
	if v := ctx.QueryArgs().Peek("api-key"); len(v) > 0 {
		return string(v)
	}
	if body := ctx.PostBody(); len(body) > 0 {
		var b struct {
			APIKey string `json:"apiKey"`
		}
		if json.Unmarshal(body, &b) == nil {
			return strings.TrimSpace(b.APIKey)
		}
	}
	return ""
}
