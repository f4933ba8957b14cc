package koseki

import "testing"

func matcherFixture(t *testing.T) (*ComponentRegistry, ComponentTypeID, ComponentTypeID, ComponentTypeID) {
	t.Helper()
	r := NewComponentRegistry()
	pos := r.RegisterNamed("Position")
	vel := r.RegisterNamed("Velocity")
	dead := r.RegisterNamed("Dead")
	return r, pos, vel, dead
}

func maskWith(ids ...ComponentTypeID) *Bits {
	m := NewBits(0)
	for _, id := range ids {
		m.Set(int(id))
	}
	return m
}

func TestMatcherAll(t *testing.T) {
	r, pos, vel, _ := matcherFixture(t)
	m := NewMatcher(r).All(pos, vel)
	if !m.Matches(maskWith(pos, vel)) {
		t.Error("mask with both types must match")
	}
	if m.Matches(maskWith(pos)) {
		t.Error("mask missing Velocity must not match")
	}
}

func TestMatcherExclude(t *testing.T) {
	r, pos, vel, dead := matcherFixture(t)
	m := NewMatcher(r).All(pos, vel).Exclude(dead)
	if !m.Matches(maskWith(pos, vel)) {
		t.Error("mask without Dead must match")
	}
	if m.Matches(maskWith(pos, vel, dead)) {
		t.Error("mask with Dead must not match")
	}
}

func TestMatcherOne(t *testing.T) {
	r, pos, vel, dead := matcherFixture(t)
	m := NewMatcher(r).One(vel, dead)
	if !m.Matches(maskWith(pos, vel)) {
		t.Error("Velocity satisfies the one-of clause")
	}
	if m.Matches(maskWith(pos)) {
		t.Error("no one-of type present, must not match")
	}
}

func TestMatcherEmptyMatchesEverything(t *testing.T) {
	r, pos, _, _ := matcherFixture(t)
	m := NewMatcher(r)
	if !m.Matches(maskWith()) || !m.Matches(maskWith(pos)) {
		t.Error("empty matcher must accept every mask")
	}
}

func TestMatcherLazyRecompile(t *testing.T) {
	r, pos, vel, dead := matcherFixture(t)
	m := NewMatcher(r).All(pos)
	if !m.Matches(maskWith(pos, vel)) {
		t.Fatal("initial terms must match")
	}
	// mutate the term lists after an evaluation; masks must recompile
	m.All(vel).Exclude(dead)
	if !m.Matches(maskWith(pos, vel)) {
		t.Error("extended matcher must still match pos+vel")
	}
	if m.Matches(maskWith(pos)) {
		t.Error("extended matcher requires Velocity now")
	}
	if m.Matches(maskWith(pos, vel, dead)) {
		t.Error("extended matcher excludes Dead now")
	}
}

func TestMatcherUnregisteredTypePanicsAtEvaluation(t *testing.T) {
	r, _, _, _ := matcherFixture(t)
	m := NewMatcher(r).All(ComponentTypeID(500))
	defer func() {
		if recover() == nil {
			t.Error("expected panic evaluating a matcher over an unregistered type")
		}
	}()
	m.Matches(maskWith())
}

func TestMatcherEntity(t *testing.T) {
	r, pos, vel, _ := matcherFixture(t)
	e := newEntity(1, makeEntityID(1, 0), "")
	e.AddComponentType(pos)
	e.AddComponentType(vel)
	m := NewMatcher(r).All(pos, vel)
	if !m.MatchesEntity(e) {
		t.Error("entity with both components must match")
	}
	e.RemoveComponentType(vel)
	if m.MatchesEntity(e) {
		t.Error("entity without Velocity must not match")
	}
	if m.MatchesEntity(nil) {
		t.Error("nil entity never matches")
	}
}
