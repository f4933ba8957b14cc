package koseki

// Matcher is a declarative query predicate over component masks. A matcher
// accepts an entity when all of the All types are present, none of the
// Exclude types are present, and (if any One types were given) at least one
// of the One types is present.
//
// Term lists can be extended freely while building the matcher; the three
// masks are only recompiled on the next evaluation after a mutation, so a
// chain of All/Exclude/One calls costs nothing until the matcher is used.
type Matcher struct {
	registry *ComponentRegistry

	allTypes     []ComponentTypeID
	excludeTypes []ComponentTypeID
	oneTypes     []ComponentTypeID

	allBits       *Bits
	exclusionBits *Bits
	oneBits       *Bits
	dirty         bool
}

// NewMatcher creates an empty matcher bound to a component registry. An empty
// matcher accepts every entity.
func NewMatcher(registry *ComponentRegistry) *Matcher {
	return &Matcher{registry: registry, dirty: true}
}

// All requires every given component type to be present. Returns the matcher
// for chaining.
func (m *Matcher) All(ids ...ComponentTypeID) *Matcher {
	m.allTypes = append(m.allTypes, ids...)
	m.dirty = true
	return m
}

// Exclude rejects entities holding any of the given component types. Returns
// the matcher for chaining.
func (m *Matcher) Exclude(ids ...ComponentTypeID) *Matcher {
	m.excludeTypes = append(m.excludeTypes, ids...)
	m.dirty = true
	return m
}

// One requires at least one of the given component types to be present.
// Returns the matcher for chaining.
func (m *Matcher) One(ids ...ComponentTypeID) *Matcher {
	m.oneTypes = append(m.oneTypes, ids...)
	m.dirty = true
	return m
}

// Matches evaluates the predicate against a raw component mask.
func (m *Matcher) Matches(mask *Bits) bool {
	if m.dirty {
		m.rebuild()
	}
	if m.allBits != nil && !mask.ContainsAll(m.allBits) {
		return false
	}
	if m.exclusionBits != nil && mask.Intersects(m.exclusionBits) {
		return false
	}
	if m.oneBits != nil && !mask.Intersects(m.oneBits) {
		return false
	}
	return true
}

// MatchesEntity evaluates the predicate against an entity's component mask.
// A nil or destroyed entity never matches.
func (m *Matcher) MatchesEntity(e *Entity) bool {
	if e == nil || e.destroyed {
		return false
	}
	return m.Matches(e.mask)
}

// rebuild recompiles the three masks from the term lists. Mask construction
// panics on unregistered IDs, so a matcher over unknown types fails at first
// evaluation rather than matching garbage.
func (m *Matcher) rebuild() {
	if len(m.allTypes) > 0 {
		m.allBits = m.registry.MaskOf(m.allTypes...)
	} else {
		m.allBits = nil
	}
	if len(m.excludeTypes) > 0 {
		m.exclusionBits = m.registry.MaskOf(m.excludeTypes...)
	} else {
		m.exclusionBits = nil
	}
	if len(m.oneTypes) > 0 {
		m.oneBits = m.registry.MaskOf(m.oneTypes...)
	} else {
		m.oneBits = nil
	}
	m.dirty = false
}
