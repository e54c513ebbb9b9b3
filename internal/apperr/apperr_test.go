package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{Invalid("bad from"), fasthttp.StatusBadRequest},
		{Unauthenticated("login"), fasthttp.StatusUnauthorized},
		{InvalidCredential("bad key"), fasthttp.StatusForbidden},
		{Forbidden("role"), fasthttp.StatusForbidden},
		{NotFound("Origin not found"), fasthttp.StatusNotFound},
		{Conflict("dup"), fasthttp.StatusConflict},
		{errors.New("boom"), fasthttp.StatusInternalServerError},
		{fmt.Errorf("outer: %w", NotFound("inner")), fasthttp.StatusNotFound},
	}
	for _, c := range cases {
		assert.Equal(t, c.status, StatusOf(c.err), c.err.Error())
	}
}

func TestMessageOf_HidesInternals(t *testing.T) {
	assert.Equal(t, "internal error", MessageOf(errors.New("dial tcp 10.0.0.1:5432: refused")))
	assert.Equal(t, "internal error", MessageOf(Wrap(errors.New("pq: oops"), "query failed")))
	assert.Equal(t, "Origin not found", MessageOf(NotFound("Origin not found")))
}

func TestWrap_KeepsClassification(t *testing.T) {
	conflict := Conflict("patterns collide")
	wrapped := Wrap(conflict, "replace routes")
	assert.Same(t, conflict, wrapped)
	assert.Nil(t, Wrap(nil, "noop"))

	base := errors.New("base")
	internal := Wrap(base, "query failed")
	assert.ErrorIs(t, internal, base)
	assert.Equal(t, KindInternal, KindOf(internal))
	assert.Equal(t, "query failed: base", internal.Error())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "conflict", KindConflict.String())
	assert.Equal(t, "internal", Kind(99).String())
}
