package routes

// Result is the classification of one path.
type Result struct {
	// Endpoint is the dynamic route pattern, or the raw path when no dynamic
	// route matched. Empty when Excluded.
	Endpoint   string
	DynamicID  uint
	ExcludedID uint
	Excluded   bool
}

// Set is an origin's route configuration. It is immutable once built and
// safe for concurrent use.
type Set struct {
	dynamic   []Route
	excluded  []Route
	byPattern map[string]uint
}

// NewSet builds a Set. Both slices are copied and ordered by specificity.
func NewSet(dynamic, excluded []Route) *Set {
	s := &Set{
		dynamic:   append([]Route(nil), dynamic...),
		excluded:  append([]Route(nil), excluded...),
		byPattern: make(map[string]uint, len(dynamic)),
	}
	SortBySpecificity(s.dynamic)
	SortBySpecificity(s.excluded)
	for _, r := range s.dynamic {
		s.byPattern[r.Pattern] = r.ID
	}
	return s
}

// Classify resolves path. Exclusion takes precedence over any dynamic match.
func (s *Set) Classify(path string) Result {
	if s == nil {
		return Result{Endpoint: path}
	}
	for _, r := range s.excluded {
		if r.Matches(path) {
			return Result{ExcludedID: r.ID, Excluded: true}
		}
	}
	for _, r := range s.dynamic {
		if r.Matches(path) {
			return Result{Endpoint: r.Pattern, DynamicID: r.ID}
		}
	}
	return Result{Endpoint: path}
}

// Lookup returns the id of the dynamic route whose pattern is exactly pattern.
func (s *Set) Lookup(pattern string) (uint, bool) {
	if s == nil {
		return 0, false
	}
	id, ok := s.byPattern[pattern]
	return id, ok
}

// Dynamic returns the dynamic routes, most specific first.
func (s *Set) Dynamic() []Route {
	if s == nil {
		return nil
	}
	return append([]Route(nil), s.dynamic...)
}

// Excluded returns the excluded routes, most specific first.
func (s *Set) Excluded() []Route {
	if s == nil {
		return nil
	}
	return append([]Route(nil), s.excluded...)
}
