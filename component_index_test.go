package koseki

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexEntity(id uint64, types ...ComponentTypeID) *Entity {
	e := newEntity(id, makeEntityID(1, uint32(id)), "")
	for _, t := range types {
		e.AddComponentType(t)
	}
	return e
}

func setIDs(set EntitySet) map[uint64]struct{} {
	out := make(map[uint64]struct{}, len(set))
	for e := range set {
		out[e.ID()] = struct{}{}
	}
	return out
}

// Both strategies must answer every query identically over the same
// population.
func TestIndexStrategiesAreEquivalent(t *testing.T) {
	const (
		pos  = ComponentTypeID(0)
		vel  = ComponentTypeID(1)
		hp   = ComponentTypeID(2)
		cold = ComponentTypeID(3) // never indexed
	)

	population := []*Entity{
		indexEntity(1, pos, vel),
		indexEntity(2, pos),
		indexEntity(3, vel, hp),
		indexEntity(4, pos, vel, hp),
		indexEntity(5),
	}

	for _, tc := range []struct {
		name  string
		build func() ComponentIndex
	}{
		{"hash", func() ComponentIndex { return NewHashComponentIndex() }},
		{"bitmap", func() ComponentIndex { return NewBitmapComponentIndex() }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			x := tc.build()
			for _, e := range population {
				x.AddEntity(e)
			}
			assert.Equal(t, len(population), x.Size())

			assert.Equal(t, map[uint64]struct{}{1: {}, 2: {}, 4: {}}, setIDs(x.Query(pos)))
			assert.Empty(t, x.Query(cold))

			and := x.QueryMultiple([]ComponentTypeID{pos, vel}, CombineAnd)
			assert.Equal(t, map[uint64]struct{}{1: {}, 4: {}}, setIDs(and))

			or := x.QueryMultiple([]ComponentTypeID{vel, hp}, CombineOr)
			assert.Equal(t, map[uint64]struct{}{1: {}, 3: {}, 4: {}}, setIDs(or))

			assert.Empty(t, x.QueryMultiple([]ComponentTypeID{pos, cold}, CombineAnd),
				"an unseen type annihilates an AND")
			assert.Empty(t, x.QueryMultiple(nil, CombineAnd))

			// removal drops the entity from every answer
			x.RemoveEntity(population[3])
			assert.Equal(t, map[uint64]struct{}{1: {}}, setIDs(x.QueryMultiple([]ComponentTypeID{pos, vel}, CombineAnd)))
			assert.Equal(t, len(population)-1, x.Size())

			// re-add after a component change refreshes the snapshot
			population[1].AddComponentType(vel)
			x.AddEntity(population[1])
			assert.Contains(t, setIDs(x.QueryMultiple([]ComponentTypeID{pos, vel}, CombineAnd)), uint64(2))
			population[1].RemoveComponentType(vel)
			x.AddEntity(population[1])
			assert.NotContains(t, setIDs(x.Query(vel)), uint64(2))

			x.Clear()
			assert.Zero(t, x.Size())
			assert.Empty(t, x.Query(pos))
		})
	}
}

func TestIndexQueryReturnsCopies(t *testing.T) {
	x := NewHashComponentIndex()
	e := indexEntity(1, 0)
	x.AddEntity(e)

	out := x.Query(0)
	delete(out, e)
	assert.Len(t, x.Query(0), 1, "mutating a result set must not touch the index")
}

func TestIndexManagerSwitchPreservesContents(t *testing.T) {
	cfg := DefaultIndexManagerConfig()
	cfg.AutoSwitch = false
	m := NewComponentIndexManager(cfg, nil)

	for i := uint64(1); i <= 20; i++ {
		types := []ComponentTypeID{0}
		if i%2 == 0 {
			types = append(types, 1)
		}
		m.AddEntity(indexEntity(i, types...))
	}
	before := setIDs(m.QueryMultiple([]ComponentTypeID{0, 1}, CombineAnd))
	require.Len(t, before, 10)

	m.SwitchTo(IndexKindBitmap)
	assert.Equal(t, IndexKindBitmap, m.Kind())
	assert.Equal(t, before, setIDs(m.QueryMultiple([]ComponentTypeID{0, 1}, CombineAnd)),
		"switching strategies must not change query answers")

	m.SwitchTo(IndexKindHash)
	assert.Equal(t, before, setIDs(m.QueryMultiple([]ComponentTypeID{0, 1}, CombineAnd)))
	assert.Equal(t, 2, m.Stats().Switches)
}

func TestIndexManagerSwitchToSameKindIsNoop(t *testing.T) {
	m := NewComponentIndexManager(DefaultIndexManagerConfig(), nil)
	m.SwitchTo(IndexKindHash)
	assert.Zero(t, m.Stats().Switches)
}

func TestIndexManagerMemoryTriggeredSwitch(t *testing.T) {
	cfg := DefaultIndexManagerConfig()
	cfg.MemoryThreshold = 1 << 10 // tiny, so a small population trips it
	m := NewComponentIndexManager(cfg, nil)

	for i := uint64(1); i <= 64; i++ {
		m.AddEntity(indexEntity(i, 0, 1, 2))
	}
	assert.Equal(t, IndexKindBitmap, m.Kind(), "exceeding the memory threshold must switch to bitmap")
	assert.Equal(t, 1, m.Stats().Switches)
	assert.Len(t, m.Query(0), 64, "switch must carry the population over")
}

func TestIndexManagerLatencyTriggeredSwitch(t *testing.T) {
	cfg := DefaultIndexManagerConfig()
	cfg.Initial = IndexKindBitmap
	cfg.LatencyThreshold = time.Millisecond
	m := NewComponentIndexManager(cfg, nil)
	m.AddEntity(indexEntity(1, 0))

	// fake clock: every query appears to take 2ms
	var tick time.Time
	m.now = func() time.Time {
		tick = tick.Add(2 * time.Millisecond)
		return tick
	}
	for i := 0; i < 40 && m.Kind() == IndexKindBitmap; i++ {
		m.Query(0)
	}
	assert.Equal(t, IndexKindHash, m.Kind(), "sustained slow queries must switch to hash")
	assert.Len(t, m.Query(0), 1)
}

func TestIndexManagerReindexIgnoresUntracked(t *testing.T) {
	m := NewComponentIndexManager(DefaultIndexManagerConfig(), nil)
	stray := indexEntity(99, 0)
	m.Reindex(stray)
	assert.Empty(t, m.Query(0), "reindex of an untracked entity must not file it")
}

func TestIndexManagerStats(t *testing.T) {
	m := NewComponentIndexManager(DefaultIndexManagerConfig(), nil)
	m.AddEntity(indexEntity(1, 0))
	m.Query(0)
	m.QueryMultiple([]ComponentTypeID{0}, CombineAnd)

	s := m.Stats()
	assert.Equal(t, IndexKindHash, s.Kind)
	assert.Equal(t, 1, s.Size)
	assert.Equal(t, uint64(2), s.QueryCount)
	assert.Positive(t, s.MemoryUsage)
	assert.False(t, s.LastUpdated.IsZero())
}

func TestIndexManagerClear(t *testing.T) {
	m := NewComponentIndexManager(DefaultIndexManagerConfig(), nil)
	m.AddEntity(indexEntity(1, 0))
	m.Clear()
	assert.Empty(t, m.Query(0))
	assert.Zero(t, m.Stats().QueryCount)

	// cleared replay set: a later switch starts empty
	m.SwitchTo(IndexKindBitmap)
	assert.Empty(t, m.Query(0))
}

func TestIndexKindAndOpStrings(t *testing.T) {
	assert.Equal(t, "hash", IndexKindHash.String())
	assert.Equal(t, "bitmap", IndexKindBitmap.String())
	assert.Equal(t, "AND", fmt.Sprint(CombineAnd))
	assert.Equal(t, "OR", fmt.Sprint(CombineOr))
}
