package koseki

// DualTrackIDSystem composes the compressed pool and the global mapper into
// one identifier façade: compact local IDs for hot-path simulation, 64-bit
// global IDs for references that cross the process boundary (editors, saved
// references, network peers).
type DualTrackIDSystem struct {
	pool   *CompressedEntityPool
	mapper *GlobalIDMapper
}

// NewDualTrackIDSystem constructs the façade with a pool preallocated for
// hint slots.
func NewDualTrackIDSystem(hint int) *DualTrackIDSystem {
	return &DualTrackIDSystem{
		pool:   NewCompressedEntityPool(hint),
		mapper: NewGlobalIDMapper(),
	}
}

// Allocate issues a new local identifier, 0 on pool exhaustion.
func (d *DualTrackIDSystem) Allocate() EntityID {
	return d.pool.Allocate()
}

// AllocateBatch issues up to n local identifiers.
func (d *DualTrackIDSystem) AllocateBatch(n int) []EntityID {
	return d.pool.AllocateBatch(n)
}

// Release removes the identifier's global mapping (if any) and recycles the
// local identifier. Returns false if the identifier was not live.
func (d *DualTrackIDSystem) Release(id EntityID) bool {
	if !d.pool.IsValid(id) {
		return false
	}
	d.mapper.RemoveMapping(id)
	return d.pool.Recycle(id)
}

// ReleaseBatch releases every given identifier, returning how many were live.
func (d *DualTrackIDSystem) ReleaseBatch(ids []EntityID) int {
	released := 0
	for _, id := range ids {
		if d.Release(id) {
			released++
		}
	}
	return released
}

// IsValid reports whether the local identifier is currently live.
func (d *DualTrackIDSystem) IsValid(id EntityID) bool {
	return d.pool.IsValid(id)
}

// GlobalFor returns the global identifier for a live local identifier,
// creating the mapping on first use. Returns the zero GlobalID for dead
// identifiers.
func (d *DualTrackIDSystem) GlobalFor(id EntityID) GlobalID {
	if !d.pool.IsValid(id) {
		return GlobalID{}
	}
	return d.mapper.GetOrCreateGlobalID(id)
}

// LocalFor resolves a global identifier to the live local identifier it maps
// to, or 0 when the mapping is missing or the entity has since died.
func (d *DualTrackIDSystem) LocalFor(g GlobalID) EntityID {
	id := d.mapper.FindEntityID(g.High, g.Low)
	if id.IsNil() || !d.pool.IsValid(id) {
		return 0
	}
	return id
}

// ForceProcessRecycle drains the pool's delayed-recycle queue immediately.
func (d *DualTrackIDSystem) ForceProcessRecycle() {
	d.pool.ForceProcessRecycle()
}

// Pool exposes the underlying compressed pool for diagnostics.
func (d *DualTrackIDSystem) Pool() *CompressedEntityPool {
	return d.pool
}

// Mapper exposes the underlying global mapper for diagnostics.
func (d *DualTrackIDSystem) Mapper() *GlobalIDMapper {
	return d.mapper
}
