package koseki

import "slices"

// EntityQueryBuilder is the fluent query surface of the EntityManager.
// Constraints accumulate across calls; Execute lowers the component
// constraints to the component index where possible and applies the
// remaining predicates linearly.
//
// Builders are single-use values: build, execute, discard.
type EntityQueryBuilder struct {
	manager *EntityManager

	all  []ComponentTypeID
	any  []ComponentTypeID
	none []ComponentTypeID

	tags    []string
	notTags []string

	activeOnly  bool
	enabledOnly bool

	predicates []func(*Entity) bool
}

// WithAll requires every given component type.
func (q *EntityQueryBuilder) WithAll(ids ...ComponentTypeID) *EntityQueryBuilder {
	q.all = append(q.all, ids...)
	return q
}

// WithAny requires at least one of the given component types.
func (q *EntityQueryBuilder) WithAny(ids ...ComponentTypeID) *EntityQueryBuilder {
	q.any = append(q.any, ids...)
	return q
}

// Without rejects entities holding any of the given component types.
func (q *EntityQueryBuilder) Without(ids ...ComponentTypeID) *EntityQueryBuilder {
	q.none = append(q.none, ids...)
	return q
}

// WithTag requires the tag.
func (q *EntityQueryBuilder) WithTag(tag string) *EntityQueryBuilder {
	q.tags = append(q.tags, tag)
	return q
}

// WithoutTag rejects entities carrying the tag.
func (q *EntityQueryBuilder) WithoutTag(tag string) *EntityQueryBuilder {
	q.notTags = append(q.notTags, tag)
	return q
}

// Active restricts the query to active entities.
func (q *EntityQueryBuilder) Active() *EntityQueryBuilder {
	q.activeOnly = true
	return q
}

// Enabled restricts the query to enabled entities.
func (q *EntityQueryBuilder) Enabled() *EntityQueryBuilder {
	q.enabledOnly = true
	return q
}

// Where appends an arbitrary predicate evaluated last, after every indexed
// constraint.
func (q *EntityQueryBuilder) Where(pred func(*Entity) bool) *EntityQueryBuilder {
	q.predicates = append(q.predicates, pred)
	return q
}

// Execute runs the query and returns the matches sorted by numeric ID.
//
// Candidate seeding: WithAll constraints narrow through an index AND query,
// otherwise WithAny constraints narrow through an index OR query, otherwise
// the query scans the full entity population. Every remaining constraint is
// then applied linearly.
func (q *EntityQueryBuilder) Execute() []*Entity {
	matched := q.collect()
	slices.SortFunc(matched, func(x, y *Entity) int {
		switch {
		case x.id < y.id:
			return -1
		case x.id > y.id:
			return 1
		}
		return 0
	})
	return matched
}

// First returns the match with the lowest numeric ID, nil when nothing
// matches.
func (q *EntityQueryBuilder) First() *Entity {
	var first *Entity
	for _, e := range q.collect() {
		if first == nil || e.id < first.id {
			first = e
		}
	}
	return first
}

// Count returns the number of matches without materializing a sorted slice.
func (q *EntityQueryBuilder) Count() int {
	return len(q.collect())
}

// ForEach invokes fn for every match in ascending numeric ID order.
func (q *EntityQueryBuilder) ForEach(fn func(*Entity)) {
	for _, e := range q.Execute() {
		fn(e)
	}
}

func (q *EntityQueryBuilder) collect() []*Entity {
	m := q.manager
	var out []*Entity

	switch {
	case len(q.all) > 0:
		for e := range m.index.QueryMultiple(q.all, CombineAnd) {
			if q.matches(e) {
				out = append(out, e)
			}
		}
	case len(q.any) > 0:
		for e := range m.index.QueryMultiple(q.any, CombineOr) {
			if q.matches(e) {
				out = append(out, e)
			}
		}
	default:
		for _, e := range m.entities {
			if q.matches(e) {
				out = append(out, e)
			}
		}
	}
	return out
}

func (q *EntityQueryBuilder) matches(e *Entity) bool {
	if e == nil || e.destroyed {
		return false
	}
	if q.activeOnly && !e.active {
		return false
	}
	if q.enabledOnly && !e.enabled {
		return false
	}
	for _, id := range q.all {
		if !e.HasComponentType(id) {
			return false
		}
	}
	if len(q.any) > 0 {
		found := false
		for _, id := range q.any {
			if e.HasComponentType(id) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, id := range q.none {
		if e.HasComponentType(id) {
			return false
		}
	}
	for _, tag := range q.tags {
		if !e.HasTag(tag) {
			return false
		}
	}
	for _, tag := range q.notTags {
		if e.HasTag(tag) {
			return false
		}
	}
	for _, pred := range q.predicates {
		if !pred(e) {
			return false
		}
	}
	return true
}
