package koseki_test

import (
	"testing"

	"github.com/mizushiro/koseki"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queryFixture struct {
	*managerFixture
	mover   *koseki.Entity
	static  *koseki.Entity
	corpse  *koseki.Entity
	dormant *koseki.Entity
}

// mover: pos+vel, tagged "enemy"; static: pos; corpse: pos+vel+dead;
// dormant: pos+vel but inactive and disabled.
func newQueryFixture(t *testing.T) *queryFixture {
	t.Helper()
	f := &queryFixture{managerFixture: newManagerFixture(t)}
	m := f.manager

	f.mover = m.CreateEntity("mover")
	m.AddComponents(f.mover, f.pos, f.vel)
	m.AddTag(f.mover, "enemy")

	f.static = m.CreateEntity("static")
	m.AddComponents(f.static, f.pos)

	f.corpse = m.CreateEntity("corpse")
	m.AddComponents(f.corpse, f.pos, f.vel, f.dead)

	f.dormant = m.CreateEntity("dormant")
	m.AddComponents(f.dormant, f.pos, f.vel)
	f.dormant.SetActive(false)
	f.dormant.SetEnabled(false)
	return f
}

func TestQueryWithAll(t *testing.T) {
	f := newQueryFixture(t)
	got := f.manager.Query().WithAll(f.pos, f.vel).Execute()
	require.Len(t, got, 3)
	assert.Same(t, f.mover, got[0])
	assert.Same(t, f.corpse, got[1])
	assert.Same(t, f.dormant, got[2])
}

func TestQueryWithout(t *testing.T) {
	f := newQueryFixture(t)
	got := f.manager.Query().WithAll(f.pos, f.vel).Without(f.dead).Execute()
	require.Len(t, got, 2)
	assert.NotContains(t, got, f.corpse)
}

func TestQueryWithAny(t *testing.T) {
	f := newQueryFixture(t)
	got := f.manager.Query().WithAny(f.vel, f.dead).Execute()
	assert.Len(t, got, 3, "static has neither velocity nor dead")
	assert.NotContains(t, got, f.static)
}

func TestQueryTags(t *testing.T) {
	f := newQueryFixture(t)
	got := f.manager.Query().WithTag("enemy").Execute()
	require.Len(t, got, 1)
	assert.Same(t, f.mover, got[0])

	got = f.manager.Query().WithAll(f.pos).WithoutTag("enemy").Execute()
	assert.Len(t, got, 3)
	assert.NotContains(t, got, f.mover)
}

func TestQueryActiveEnabled(t *testing.T) {
	f := newQueryFixture(t)
	got := f.manager.Query().WithAll(f.pos, f.vel).Active().Enabled().Execute()
	assert.Len(t, got, 2)
	assert.NotContains(t, got, f.dormant)
}

func TestQueryWhere(t *testing.T) {
	f := newQueryFixture(t)
	got := f.manager.Query().
		WithAll(f.pos).
		Where(func(e *koseki.Entity) bool { return e.Name() == "static" }).
		Execute()
	require.Len(t, got, 1)
	assert.Same(t, f.static, got[0])
}

func TestQueryFirstAndCount(t *testing.T) {
	f := newQueryFixture(t)
	q := f.manager.Query().WithAll(f.pos, f.vel).Without(f.dead)
	assert.Equal(t, 2, q.Count())
	assert.Same(t, f.mover, q.First(), "First returns the lowest numeric ID")

	empty := f.manager.Query().WithTag("nonexistent")
	assert.Zero(t, empty.Count())
	assert.Nil(t, empty.First())
}

func TestQueryForEachOrder(t *testing.T) {
	f := newQueryFixture(t)
	var seen []uint64
	f.manager.Query().WithAll(f.pos).ForEach(func(e *koseki.Entity) {
		seen = append(seen, e.ID())
	})
	require.Len(t, seen, 4)
	for i := 1; i < len(seen); i++ {
		assert.Less(t, seen[i-1], seen[i], "iteration must ascend by ID")
	}
}

func TestQueryUnconstrainedScansAll(t *testing.T) {
	f := newQueryFixture(t)
	assert.Equal(t, f.manager.Count(), f.manager.Query().Count())
}

func TestQuerySkipsDestroyed(t *testing.T) {
	f := newQueryFixture(t)
	f.manager.DestroyEntity(f.mover)
	got := f.manager.Query().WithAll(f.pos, f.vel).Execute()
	assert.Len(t, got, 2)
	assert.NotContains(t, got, f.mover)
}

// End-to-end: matcher and query agree, destruction invalidates every
// reference scheme.
func TestQueryMatcherScenario(t *testing.T) {
	f := newQueryFixture(t)
	m := f.manager

	matcher := m.Matcher().All(f.pos, f.vel).Exclude(f.dead)
	var matched []*koseki.Entity
	for _, e := range m.Query().WithAll(f.pos).Execute() {
		if matcher.MatchesEntity(e) {
			matched = append(matched, e)
		}
	}
	require.Len(t, matched, 2)

	victim := matched[0]
	handle := victim.Handle()
	g := m.GlobalIDFor(victim)
	require.False(t, g.IsNil())

	require.True(t, m.DestroyEntity(victim))
	assert.False(t, m.IDs().IsValid(handle))
	assert.Nil(t, m.FindByGlobalID(g))
	assert.False(t, matcher.MatchesEntity(victim), "destroyed entities never match")
	assert.Equal(t, 1, m.Query().WithAll(f.pos, f.vel).Without(f.dead).Count())
}
