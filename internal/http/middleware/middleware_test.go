package middleware

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"originmetrics/internal/apperr"
	"originmetrics/internal/config"
	dbpkg "originmetrics/internal/db"
	httpctx "originmetrics/internal/http/ctx"
	"originmetrics/internal/session"
)

type lookups struct{}

func (lookups) UserByUsername(_ context.Context, username string) (*dbpkg.User, error) {
	if username == "alice" {
		return &dbpkg.User{ID: 1, Username: "alice"}, nil
	}
	return nil, apperr.NotFound("user not found")
}

func (lookups) OriginByAPIKey(_ context.Context, key string) (*dbpkg.Origin, error) {
	if key == "om_key" {
		return &dbpkg.Origin{ID: "o1", Slug: "shop"}, nil
	}
	return nil, apperr.InvalidCredential("invalid API key")
}

func (lookups) OriginAccess(_ context.Context, _ uint, slug string) (*dbpkg.Origin, error) {
	if slug == "shop" {
		return &dbpkg.Origin{ID: "o1", Slug: "shop", Role: dbpkg.RoleViewer}, nil
	}
	return nil, apperr.NotFound("Origin not found")
}

func ok(ctx *fasthttp.RequestCtx) { ctx.SetStatusCode(fasthttp.StatusNoContent) }

func message(t *testing.T, ctx *fasthttp.RequestCtx) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
	return body["message"]
}

func TestSessionAuth(t *testing.T) {
	codec := session.NewCodec([]byte("0123456789abcdef0123456789abcdef"), nil)
	h := SessionAuth(codec, lookups{})(func(ctx *fasthttp.RequestCtx) {
		user, found := httpctx.UserFromCtx(ctx)
		require.True(t, found)
		assert.Equal(t, "alice", user.Username)
		ok(ctx)
	})

	var missing fasthttp.RequestCtx
	h(&missing)
	assert.Equal(t, fasthttp.StatusUnauthorized, missing.Response.StatusCode())

	gone, err := codec.Issue("bob")
	require.NoError(t, err)
	var deleted fasthttp.RequestCtx
	deleted.Request.Header.SetCookie(session.CookieName, gone)
	h(&deleted)
	assert.Equal(t, fasthttp.StatusUnauthorized, deleted.Response.StatusCode())
	assert.Equal(t, "session is invalid or expired", message(t, &deleted))

	valid, err := codec.Issue("alice")
	require.NoError(t, err)
	var signed fasthttp.RequestCtx
	signed.Request.Header.SetCookie(session.CookieName, valid)
	h(&signed)
	assert.Equal(t, fasthttp.StatusNoContent, signed.Response.StatusCode())
}

func TestAPIKeyAuth_Sources(t *testing.T) {
	h := APIKeyAuth(lookups{})(func(ctx *fasthttp.RequestCtx) {
		origin, found := httpctx.OriginFromCtx(ctx)
		require.True(t, found)
		assert.Equal(t, "o1", origin.ID)
		ok(ctx)
	})

	cases := map[string]func(*fasthttp.RequestCtx){
		"bearer": func(ctx *fasthttp.RequestCtx) { ctx.Request.Header.Set("Authorization", "Bearer om_key") },
		"query":  func(ctx *fasthttp.RequestCtx) { ctx.Request.SetRequestURI("/v1/metrics?api-key=om_key") },
		"body":   func(ctx *fasthttp.RequestCtx) { ctx.Request.SetBodyString(`{"apiKey":"om_key","path":"/"}`) },
	}
	for name, prepare := range cases {
		t.Run(name, func(t *testing.T) {
			var ctx fasthttp.RequestCtx
			prepare(&ctx)
			h(&ctx)
			assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())
		})
	}
}

func TestAPIKeyAuth_Failures(t *testing.T) {
	h := APIKeyAuth(lookups{})(ok)

	var missing fasthttp.RequestCtx
	missing.Request.SetBodyString(`{"path":"/"}`)
	h(&missing)
	assert.Equal(t, fasthttp.StatusUnauthorized, missing.Response.StatusCode())
	assert.Equal(t, "missing API key", message(t, &missing))

	var unknown fasthttp.RequestCtx
	unknown.Request.Header.Set("Authorization", "Bearer om_other")
	h(&unknown)
	assert.Equal(t, fasthttp.StatusForbidden, unknown.Response.StatusCode())
}

func TestOriginAccess(t *testing.T) {
	withUser := func(ctx *fasthttp.RequestCtx, slug string) {
		httpctx.SetUser(ctx, &dbpkg.User{ID: 1})
		ctx.SetUserValue("slug", slug)
	}

	viewer := OriginAccess(lookups{}, dbpkg.RoleViewer)(ok)
	var member fasthttp.RequestCtx
	withUser(&member, "shop")
	viewer(&member)
	assert.Equal(t, fasthttp.StatusNoContent, member.Response.StatusCode())

	var stranger fasthttp.RequestCtx
	withUser(&stranger, "elsewhere")
	viewer(&stranger)
	assert.Equal(t, fasthttp.StatusNotFound, stranger.Response.StatusCode())
	assert.Equal(t, "Origin not found", message(t, &stranger))

	admin := OriginAccess(lookups{}, dbpkg.RoleAdmin)(ok)
	var weak fasthttp.RequestCtx
	withUser(&weak, "shop")
	admin(&weak)
	assert.Equal(t, fasthttp.StatusForbidden, weak.Response.StatusCode())

	var anonymous fasthttp.RequestCtx
	anonymous.SetUserValue("slug", "shop")
	viewer(&anonymous)
	assert.Equal(t, fasthttp.StatusUnauthorized, anonymous.Response.StatusCode())
}

func TestInternalReporting_DisabledWithoutKey(t *testing.T) {
	next := fasthttp.RequestHandler(ok)
	mw := InternalReporting(&config.Config{}, "http://localhost/v1/events")
	var ctx fasthttp.RequestCtx
	mw(next)(&ctx)
	assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())
}

func TestReporting_SendsEvent(t *testing.T) {
	sent := make(chan []byte, 1)
	h := reporting(func(body []byte) error {
		sent <- body
		return nil
	})(func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusTeapot)
		ctx.SetBodyString("short and stout")
	})

	var ctx fasthttp.RequestCtx
	ctx.Request.SetRequestURI("/origins/shop/metrics?stat=general")
	ctx.Request.Header.SetMethod(fasthttp.MethodGet)
	h(&ctx)

	select {
	case body := <-sent:
		var ev internalEvent
		require.NoError(t, json.Unmarshal(body, &ev))
		assert.Equal(t, "/origins/shop/metrics", ev.Path)
		assert.Equal(t, "GET", ev.Method)
		assert.Equal(t, fasthttp.StatusTeapot, ev.StatusCode)
		assert.EqualValues(t, len("short and stout"), ev.ResponseSize)
		assert.Equal(t, "originmetrics", ev.Integration)
	case <-time.After(time.Second):
		t.Fatal("event was not sent")
	}
}

func TestReporting_SkipsIngestion(t *testing.T) {
	sent := make(chan []byte, 1)
	h := reporting(func(body []byte) error {
		sent <- body
		return nil
	})(ok)

	var ctx fasthttp.RequestCtx
	ctx.Request.SetRequestURI("/v1/events")
	h(&ctx)

	select {
	case <-sent:
		t.Fatal("ingestion traffic must not be reported")
	case <-time.After(50 * time.Millisecond):
	}
}
