// Package routes resolves raw request paths to logical endpoint labels using
// an origin's dynamic-route and excluded-route patterns.
//
// A pattern such as /users/<id>/posts matches a path with the same number of
// slash-delimited segments whose literal segments are equal and whose
// placeholder segments hold any non-empty, slash-free content. A placeholder
// may also sit inside a segment next to literal text, as in /files/<id>.json.
package routes

import (
	"errors"
	"regexp"
	"sort"
	"strings"

	"originmetrics/internal/apperr"
)

// MaxPatternLength bounds a single route pattern.
const MaxPatternLength = 512

var placeholder = regexp.MustCompile(`<[^<>/]+>`)

// Route is a compiled route pattern. Regex is the anchored expression stored
// alongside the pattern; it is also the collision key for an origin.
type Route struct {
	ID      uint
	Pattern string
	Regex   string

	re *regexp.Regexp
}

// Matches reports whether path satisfies the route.
func (r Route) Matches(path string) bool {
	return r.re != nil && r.re.MatchString(path)
}

// CompileRegex derives the anchored regular expression for pattern.
func CompileRegex(pattern string) (string, error) {
	if pattern == "" || pattern[0] != '/' {
		return "", apperr.Invalid("route %q must start with /", pattern)
	}
	if len(pattern) > MaxPatternLength {
		return "", apperr.Invalid("route %q exceeds %d characters", pattern[:32]+"...", MaxPatternLength)
	}
	if strings.ContainsAny(pattern, " \t\r\n?#") {
		return "", apperr.Invalid("route %q contains whitespace or a query/fragment marker", pattern)
	}

	segments := strings.Split(pattern[1:], "/")
	var b strings.Builder
	b.WriteString("^")
	for i, seg := range segments {
		b.WriteString("/")
		switch {
		case seg == "":
			// only the root pattern or a trailing slash may leave a segment empty
			if i != len(segments)-1 {
				return "", apperr.Invalid("route %q has an empty segment", pattern)
			}
		default:
			if err := writeSegment(&b, seg); err != nil {
				return "", apperr.Invalid("route %q has a malformed placeholder in %q", pattern, seg)
			}
		}
	}
	b.WriteString("$")
	return b.String(), nil
}

// writeSegment quotes the literal parts of seg and turns each placeholder
// into a non-empty, slash-free wildcard.
func writeSegment(b *strings.Builder, seg string) error {
	last := 0
	for _, loc := range placeholder.FindAllStringIndex(seg, -1) {
		if err := writeLiteral(b, seg[last:loc[0]]); err != nil {
			return err
		}
		b.WriteString("[^/]+")
		last = loc[1]
	}
	return writeLiteral(b, seg[last:])
}

func writeLiteral(b *strings.Builder, lit string) error {
	if strings.ContainsAny(lit, "<>") {
		return errMalformed
	}
	b.WriteString(regexp.QuoteMeta(lit))
	return nil
}

var errMalformed = errors.New("malformed placeholder")

// Compile validates pattern and builds its Route.
func Compile(pattern string) (Route, error) {
	pattern = strings.TrimSpace(pattern)
	expr, err := CompileRegex(pattern)
	if err != nil {
		return Route{}, err
	}
	return Route{Pattern: pattern, Regex: expr, re: regexp.MustCompile(expr)}, nil
}

// Load rebuilds a Route from its stored form.
func Load(id uint, pattern, expr string) (Route, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Route{}, apperr.Wrap(err, "stored route regex does not compile")
	}
	return Route{ID: id, Pattern: pattern, Regex: expr, re: re}, nil
}

// CompileAll compiles a full replacement list and rejects patterns that would
// collide: two patterns whose derived expressions are equal match exactly
// the same paths and could never be told apart.
func CompileAll(patterns []string) ([]Route, error) {
	out := make([]Route, 0, len(patterns))
	seen := make(map[string]string, len(patterns))
	for _, p := range patterns {
		r, err := Compile(p)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[r.Regex]; ok {
			return nil, apperr.Conflict("routes %q and %q match the same paths", prev, r.Pattern)
		}
		seen[r.Regex] = r.Pattern
		out = append(out, r)
	}
	return out, nil
}

// SortBySpecificity orders routes most specific first: the longer pattern
// string wins, and equal lengths fall back to lexical order.
func SortBySpecificity(rs []Route) {
	sort.SliceStable(rs, func(i, j int) bool {
		if len(rs[i].Pattern) != len(rs[j].Pattern) {
			return len(rs[i].Pattern) > len(rs[j].Pattern)
		}
		return rs[i].Pattern < rs[j].Pattern
	})
}
