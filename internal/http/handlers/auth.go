package handlers

import (
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"originmetrics/internal/apperr"
	"originmetrics/internal/session"
)

func setSessionCookie(ctx *fasthttp.RequestCtx, value string, maxAge time.Duration) {
	var c fasthttp.Cookie
	c.SetKey(session.CookieName)
	c.SetValue(value)
	c.SetPath("/")
	c.SetHTTPOnly(true)
	c.SetSecure(ctx.IsTLS())
	c.SetSameSite(fasthttp.CookieSameSiteLaxMode)
	if maxAge > 0 {
		c.SetMaxAge(int(maxAge / time.Second))
	} else {
		c.SetMaxAge(-1)
	}
	ctx.Response.Header.SetCookie(&c)
}

// Login checks the form credentials and issues a signed session cookie.
func Login(store Store, codec *session.Codec) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		username := strings.TrimSpace(string(ctx.PostArgs().Peek("username")))
		password := string(ctx.PostArgs().Peek("password"))
		if username == "" || password == "" {
			errResponse(ctx, apperr.Invalid("username and password are required"))
			return
		}

		user, err := store.Authenticate(ctx, username, password)
		if err != nil {
			errResponse(ctx, err)
			return
		}

		value, err := codec.Issue(user.Username)
		if err != nil {
			errResponse(ctx, apperr.Wrap(err, "issue session"))
			return
		}
		setSessionCookie(ctx, value, session.MaxAge)
		jsonResponse(ctx, fasthttp.StatusOK, user)
	}
}

func Logout() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		setSessionCookie(ctx, "", 0)
		jsonResponse(ctx, fasthttp.StatusOK, nil)
	}
}

// Me returns the signed-in user.
func Me() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		jsonResponse(ctx, fasthttp.StatusOK, user)
	}
}
