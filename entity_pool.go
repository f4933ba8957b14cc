package koseki

// EntityID is a compressed 32-bit entity identifier packed as
// (generation << 20) | slot. The slot indexes the pool's generation array and
// the generation detects stale handles: recycling a slot bumps its stored
// generation, which permanently invalidates every outstanding copy of the old
// ID.
//
// The zero EntityID is reserved to mean "no entity"; generation 0 is never
// issued.
type EntityID uint32

const (
	slotBits = 20
	slotMask = 1<<slotBits - 1

	// MaxPoolSlots is the hard capacity of a pool: 2^20 live+reserved slots.
	MaxPoolSlots = 1 << slotBits

	// MaxGeneration is the largest generation value; the counter wraps back
	// to 1 past this, never to 0.
	MaxGeneration = 1<<12 - 1

	// RecycleQueueSize bounds the delayed-recycle ring. Recycled slots sit
	// here until the next allocation drains them, so an ID freed during an
	// update pass cannot be reissued within that same pass.
	RecycleQueueSize = 256
)

// Slot returns the slot index encoded in the identifier.
func (id EntityID) Slot() uint32 {
	return uint32(id) & slotMask
}

// Generation returns the generation counter encoded in the identifier.
func (id EntityID) Generation() uint32 {
	return uint32(id) >> slotBits
}

// IsNil reports whether the identifier is the reserved "no entity" value.
func (id EntityID) IsNil() bool {
	return id == 0
}

func makeEntityID(generation, slot uint32) EntityID {
	return EntityID(generation<<slotBits | slot)
}

// CompressedEntityPool allocates and recycles compressed entity identifiers.
// It keeps a free-slot stack for reused slots, a monotonically increasing
// cursor for virgin slots, and a bounded ring of slots awaiting reuse.
//
// The pool is single-writer like the rest of the core.
type CompressedEntityPool struct {
	generations []uint16 // stored generation per slot, index = slot
	freeSlots   []uint32
	nextSlot    uint32

	pending      [RecycleQueueSize]uint32
	pendingHead  int
	pendingCount int

	live int
}

// NewCompressedEntityPool constructs an empty pool with storage preallocated
// for hint slots.
func NewCompressedEntityPool(hint int) *CompressedEntityPool {
	if hint < 0 {
		hint = 0
	}
	if hint > MaxPoolSlots {
		hint = MaxPoolSlots
	}
	return &CompressedEntityPool{
		generations: make([]uint16, 0, hint),
		freeSlots:   make([]uint32, 0, min(hint, 1024)),
	}
}

// Allocate issues a new entity identifier. It first drains the delayed
// recycle queue into the free stack, then reuses a free slot if one exists
// and claims a virgin slot otherwise. Returns 0 when the pool is exhausted at
// MaxPoolSlots live+reserved slots; callers must check the sentinel.
func (p *CompressedEntityPool) Allocate() EntityID {
	p.drainRecycleQueue()
	return p.allocateOne()
}

// AllocateBatch issues up to n identifiers, amortizing the queue drain across
// the whole batch. The returned slice is shorter than n if the pool runs out
// of slots mid-batch.
func (p *CompressedEntityPool) AllocateBatch(n int) []EntityID {
	if n <= 0 {
		return nil
	}
	p.drainRecycleQueue()
	out := make([]EntityID, 0, n)
	for i := 0; i < n; i++ {
		id := p.allocateOne()
		if id.IsNil() {
			break
		}
		out = append(out, id)
	}
	return out
}

// Recycle invalidates the identifier and schedules its slot for reuse.
// Returns false if the identifier's format is invalid or its generation does
// not match the slot's stored generation — double-recycling and recycling a
// stale handle are benign no-ops, not errors.
func (p *CompressedEntityPool) Recycle(id EntityID) bool {
	if !p.IsValid(id) {
		return false
	}
	slot := id.Slot()
	gen := p.generations[slot] + 1
	if gen > MaxGeneration {
		// Saturate-and-wrap: after 4095 recycles of one slot a stale ID could
		// in principle collide again. Accepted trade-off.
		gen = 1
	}
	p.generations[slot] = gen
	p.live--
	p.pushPending(slot)
	return true
}

// RecycleBatch recycles every given identifier, returning how many were
// actually live.
func (p *CompressedEntityPool) RecycleBatch(ids []EntityID) int {
	recycled := 0
	for _, id := range ids {
		if p.Recycle(id) {
			recycled++
		}
	}
	return recycled
}

// IsValid reports whether the identifier refers to a currently allocated
// entity: its slot must have been handed out and its generation must match
// the slot's stored generation. O(1), a bounds check plus one compare.
func (p *CompressedEntityPool) IsValid(id EntityID) bool {
	slot := id.Slot()
	gen := id.Generation()
	if gen == 0 || slot >= p.nextSlot {
		return false
	}
	return uint32(p.generations[slot]) == gen
}

// ForceProcessRecycle drains the delayed-recycle queue immediately instead of
// waiting for the next allocation.
func (p *CompressedEntityPool) ForceProcessRecycle() {
	p.drainRecycleQueue()
}

// Live returns the number of currently allocated identifiers.
func (p *CompressedEntityPool) Live() int {
	return p.live
}

// PendingRecycle returns how many slots are waiting in the delayed ring.
func (p *CompressedEntityPool) PendingRecycle() int {
	return p.pendingCount
}

// PoolStats is a snapshot of the pool's occupancy.
type PoolStats struct {
	Live           int
	FreeSlots      int
	PendingRecycle int
	SlotsUsed      int
}

// Stats returns a snapshot of the pool's occupancy counters.
func (p *CompressedEntityPool) Stats() PoolStats {
	return PoolStats{
		Live:           p.live,
		FreeSlots:      len(p.freeSlots),
		PendingRecycle: p.pendingCount,
		SlotsUsed:      int(p.nextSlot),
	}
}

func (p *CompressedEntityPool) allocateOne() EntityID {
	var slot uint32
	if n := len(p.freeSlots); n > 0 {
		slot = p.freeSlots[n-1]
		p.freeSlots = p.freeSlots[:n-1]
	} else {
		if p.nextSlot >= MaxPoolSlots {
			return 0
		}
		slot = p.nextSlot
		p.nextSlot++
		p.generations = append(p.generations, 1)
	}
	p.live++
	return makeEntityID(uint32(p.generations[slot]), slot)
}

func (p *CompressedEntityPool) pushPending(slot uint32) {
	if p.pendingCount == RecycleQueueSize {
		// Ring full: spill the oldest pending slot straight to the free
		// stack. Only the newest RecycleQueueSize frees keep the full
		// one-tick reuse lag.
		oldest := p.pending[p.pendingHead]
		p.pendingHead = (p.pendingHead + 1) % RecycleQueueSize
		p.pendingCount--
		p.freeSlots = append(p.freeSlots, oldest)
	}
	tail := (p.pendingHead + p.pendingCount) % RecycleQueueSize
	p.pending[tail] = slot
	p.pendingCount++
}

func (p *CompressedEntityPool) drainRecycleQueue() {
	for p.pendingCount > 0 {
		slot := p.pending[p.pendingHead]
		p.pendingHead = (p.pendingHead + 1) % RecycleQueueSize
		p.pendingCount--
		p.freeSlots = append(p.freeSlots, slot)
	}
}
