// Package query turns caller-supplied filters into parameterised SQL
// predicates over the metrics table, and holds the window arithmetic shared
// by every aggregation.
package query

import (
	"strconv"
	"strings"

	"originmetrics/internal/apperr"
	"originmetrics/internal/routes"
)

// Filter is the raw filter set of one aggregation request. Empty strings
// leave a dimension unconstrained.
type Filter struct {
	Window Window

	Method     string
	Endpoint   string
	StatusCode string
	Browser    string
	OS         string
	Device     string
	Country    string
	Region     string
	City       string
}

// Clause is one predicate fragment with its bound values. Fragments only
// ever contain fixed column names and `?` placeholders.
type Clause struct {
	SQL  string
	Args []any
}

// Predicate is an AND-composed list of clauses scoped to one origin. The
// metrics table is expected under alias m.
type Predicate struct {
	OriginID string
	Window   Window

	clauses []Clause
}

func (p *Predicate) and(sql string, args ...any) {
	p.clauses = append(p.clauses, Clause{SQL: sql, Args: args})
}

// Clauses returns the filter clauses in their fixed order, excluding the
// origin and window scope.
func (p Predicate) Clauses() []Clause {
	return append([]Clause(nil), p.clauses...)
}

// WithWindow returns a copy of p bound to another time window.
func (p Predicate) WithWindow(w Window) Predicate {
	p.Window = w
	p.clauses = append([]Clause(nil), p.clauses...)
	return p
}

// SQL renders the predicate as a WHERE body and its arguments.
func (p Predicate) SQL() (string, []any) {
	parts := make([]string, 0, len(p.clauses)+3)
	args := make([]any, 0, len(p.clauses)+3)

	parts = append(parts, "m.origin_id = ?")
	args = append(args, p.OriginID)

	if p.Window.OpenEnd {
		parts = append(parts, "m.created_at >= ? AND m.created_at < ?")
	} else {
		parts = append(parts, "m.created_at >= ? AND m.created_at <= ?")
	}
	args = append(args, p.Window.From, p.Window.To)

	parts = append(parts, "m.excluded_route_id IS NULL")

	for _, c := range p.clauses {
		parts = append(parts, c.SQL)
		args = append(args, c.Args...)
	}
	return strings.Join(parts, " AND "), args
}

// Build validates f and composes its predicate for originID. set resolves an
// endpoint filter naming a dynamic route pattern to that route; any other
// endpoint value matches the literal path.
//
// Every filter contributes a clause whether or not it is set, so all
// predicates of one window kind render the same SQL and differ only in
// their arguments. An unset filter binds its match-anything value.
func Build(originID string, f Filter, set *routes.Set) (Predicate, error) {
	if originID == "" {
		return Predicate{}, apperr.Invalid("origin is required")
	}
	if err := f.Window.Validate(); err != nil {
		return Predicate{}, err
	}

	p := Predicate{OriginID: originID, Window: f.Window}

	method := strings.ToUpper(strings.TrimSpace(f.Method))
	p.and("(?::text = '' OR m.method = ?)", method, method)

	endpoint := strings.TrimSpace(f.Endpoint)
	var routeID int64
	if id, ok := set.Lookup(endpoint); ok && endpoint != "" {
		routeID, endpoint = int64(id), ""
	}
	p.and("(?::bigint = 0 OR m.dynamic_route_id = ?)", routeID, routeID)
	p.and("(?::text = '' OR m.path = ?)", endpoint, endpoint)

	if err := addStatus(&p, strings.TrimSpace(f.StatusCode)); err != nil {
		return Predicate{}, err
	}

	optional := []struct {
		column string
		value  string
	}{
		{"m.browser", f.Browser},
		{"m.os", f.OS},
		{"m.device", f.Device},
		{"m.country", f.Country},
		{"m.region", f.Region},
		{"m.city", f.City},
	}
	for _, o := range optional {
		v := strings.TrimSpace(o.value)
		p.and("(?::text = '' OR "+o.column+" = ?)", v, v)
	}

	return p, nil
}

// Status filter modes bound into the status clause.
const (
	statusAny     = "any"
	statusUnknown = "unknown"
	statusRange   = "range"
)

const statusClause = "(?::text = 'any' OR (?::text = 'unknown' AND m.status_code IS NULL) OR (m.status_code >= ? AND m.status_code < ?))"

// addStatus accepts nothing, an exact code ("404"), a class ("5xx") or
// "unknown" for rows recorded without a status.
func addStatus(p *Predicate, v string) error {
	lower := strings.ToLower(v)
	switch {
	case lower == "":
		p.and(statusClause, statusAny, statusAny, 0, 0)
		return nil
	case lower == statusUnknown:
		p.and(statusClause, statusUnknown, statusUnknown, 0, 0)
		return nil
	case len(lower) == 3 && strings.HasSuffix(lower, "xx") && lower[0] >= '1' && lower[0] <= '5':
		base := int(lower[0]-'0') * 100
		p.and(statusClause, statusRange, statusRange, base, base+100)
		return nil
	}
	code, err := strconv.Atoi(v)
	if err != nil || code < 100 || code > 599 {
		return apperr.Invalid("statusCode must be a code such as 404, a class such as 5xx, or unknown")
	}
	p.and(statusClause, statusRange, statusRange, code, code+1)
	return nil
}
