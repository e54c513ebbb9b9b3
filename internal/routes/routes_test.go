package routes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"originmetrics/internal/apperr"
)

func mustCompile(t *testing.T, id uint, pattern string) Route {
	t.Helper()
	r, err := Compile(pattern)
	require.NoError(t, err)
	r.ID = id
	return r
}

func TestCompileRegex(t *testing.T) {
	cases := map[string]string{
		"/":                     `^/$`,
		"/users":                `^/users$`,
		"/users/<id>":           `^/users/[^/]+$`,
		"/users/<id>/posts/<p>": `^/users/[^/]+/posts/[^/]+$`,
		"/v1.0/files+(x)":       `^/v1\.0/files\+\(x\)$`,
		"/users/":               `^/users/$`,
		"/a/<user_id>/b":        `^/a/[^/]+/b$`,
		"/search/[beta]/<q>/*":  `^/search/\[beta\]/[^/]+/\*$`,
		"/files/<id>.json":      `^/files/[^/]+\.json$`,
		"/users/x<id>":          `^/users/x[^/]+$`,
		"/v<major>.<minor>/a":   `^/v[^/]+\.[^/]+/a$`,
	}
	for pattern, want := range cases {
		got, err := CompileRegex(pattern)
		require.NoError(t, err, pattern)
		assert.Equal(t, want, got, pattern)
	}
}

func TestCompileRegex_Invalid(t *testing.T) {
	for _, pattern := range []string{"", "users/<id>", "//users", "/a//b", "/users/<id", "/users/<id>>", "/users/<<id>", "/a b", "/a?b=1"} {
		_, err := CompileRegex(pattern)
		require.Error(t, err, pattern)
		assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err), pattern)
	}
}

func TestRouteMatches(t *testing.T) {
	r := mustCompile(t, 1, "/users/<id>")

	assert.True(t, r.Matches("/users/1"))
	assert.True(t, r.Matches("/users/abc-def"))
	assert.False(t, r.Matches("/users/"))
	assert.False(t, r.Matches("/users"))
	assert.False(t, r.Matches("/users/1/posts"))
	assert.False(t, r.Matches("/api/users/1"))

	literal := mustCompile(t, 2, "/v1.0/items")
	assert.True(t, literal.Matches("/v1.0/items"))
	assert.False(t, literal.Matches("/v1x0/items"), "dot must be literal")
}

func TestRouteMatches_EmbeddedPlaceholder(t *testing.T) {
	r := mustCompile(t, 1, "/files/<id>.json")

	assert.True(t, r.Matches("/files/42.json"))
	assert.True(t, r.Matches("/files/a.b.json"))
	assert.False(t, r.Matches("/files/.json"))
	assert.False(t, r.Matches("/files/42.xml"))
	assert.False(t, r.Matches("/files/4/2.json"))
}

func TestCompileAll_Collision(t *testing.T) {
	_, err := CompileAll([]string{"/users/<id>", "/orders/<id>", "/users/<uid>"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Contains(t, apperr.MessageOf(err), "/users/<id>")
	assert.Contains(t, apperr.MessageOf(err), "/users/<uid>")

	rs, err := CompileAll([]string{"/users/<id>", "/users/me", " /orders/<id> "})
	require.NoError(t, err)
	require.Len(t, rs, 3)
	assert.Equal(t, "/orders/<id>", rs[2].Pattern)
}

func TestLoad(t *testing.T) {
	r, err := Load(7, "/users/<id>", `^/users/[^/]+$`)
	require.NoError(t, err)
	assert.Equal(t, uint(7), r.ID)
	assert.True(t, r.Matches("/users/9"))

	_, err = Load(8, "/bad", `^(`)
	assert.Error(t, err)
}

func TestSortBySpecificity(t *testing.T) {
	rs := []Route{
		mustCompile(t, 1, "/a/<id>"),
		mustCompile(t, 2, "/a/<id>/b"),
		mustCompile(t, 3, "/b/<id>"),
	}
	SortBySpecificity(rs)
	assert.Equal(t, []uint{2, 1, 3}, []uint{rs[0].ID, rs[1].ID, rs[2].ID})
}
