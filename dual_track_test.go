package koseki

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDualTrackAllocateRelease(t *testing.T) {
	d := NewDualTrackIDSystem(16)

	id := d.Allocate()
	require.False(t, id.IsNil())
	assert.True(t, d.IsValid(id))

	require.True(t, d.Release(id))
	assert.False(t, d.IsValid(id))
	assert.False(t, d.Release(id), "double release must return false")
}

func TestDualTrackGlobalRoundTrip(t *testing.T) {
	d := NewDualTrackIDSystem(16)
	id := d.Allocate()

	g := d.GlobalFor(id)
	require.False(t, g.IsNil())
	assert.Equal(t, g, d.GlobalFor(id), "GlobalFor must be idempotent")
	assert.Equal(t, id, d.LocalFor(g))
}

func TestDualTrackGlobalForDeadEntity(t *testing.T) {
	d := NewDualTrackIDSystem(16)
	id := d.Allocate()
	g := d.GlobalFor(id)
	require.False(t, g.IsNil())

	d.Release(id)
	assert.True(t, d.GlobalFor(id).IsNil(), "dead IDs get no global")
	assert.Equal(t, EntityID(0), d.LocalFor(g), "stale globals must resolve to 0")
}

func TestDualTrackReleaseDropsMapping(t *testing.T) {
	d := NewDualTrackIDSystem(16)
	id := d.Allocate()
	g := d.GlobalFor(id)

	d.Release(id)
	d.ForceProcessRecycle()

	// the slot reissues under a new generation; the old global must not
	// leak onto the newcomer
	fresh := d.Allocate()
	require.Equal(t, id.Slot(), fresh.Slot())
	assert.Equal(t, EntityID(0), d.LocalFor(g))
	g2 := d.GlobalFor(fresh)
	assert.NotEqual(t, g.Low, g2.Low)
	assert.Equal(t, fresh, d.LocalFor(g2))
}

func TestDualTrackBatch(t *testing.T) {
	d := NewDualTrackIDSystem(0)
	ids := d.AllocateBatch(100)
	require.Len(t, ids, 100)
	for _, id := range ids {
		assert.True(t, d.IsValid(id))
	}
	assert.Equal(t, 100, d.ReleaseBatch(ids))
	assert.Equal(t, 0, d.ReleaseBatch(ids), "second release finds nothing live")
	assert.Equal(t, 0, d.Pool().Live())
}
