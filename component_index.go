package koseki

import (
	"time"

	"github.com/sirupsen/logrus"
)

// IndexKind names a component index strategy.
type IndexKind uint8

const (
	// IndexKindHash is the map-of-sets strategy: fastest lookups, highest
	// memory.
	IndexKindHash IndexKind = iota
	// IndexKindBitmap is the packed-bitmap strategy: slower AND scans, lower
	// memory.
	IndexKindBitmap
)

func (k IndexKind) String() string {
	if k == IndexKindBitmap {
		return "bitmap"
	}
	return "hash"
}

// CombineOp selects how a multi-component query combines its terms.
type CombineOp uint8

const (
	// CombineAnd intersects: entities holding every queried type.
	CombineAnd CombineOp = iota
	// CombineOr unions: entities holding at least one queried type.
	CombineOr
)

func (op CombineOp) String() string {
	if op == CombineOr {
		return "OR"
	}
	return "AND"
}

// EntitySet is the result currency of index queries. Returned sets are fresh
// copies owned by the caller.
type EntitySet map[*Entity]struct{}

// ComponentIndex maintains component-type to entity-set structures and
// answers single and multi-component membership queries.
type ComponentIndex interface {
	AddEntity(e *Entity)
	RemoveEntity(e *Entity)
	Query(id ComponentTypeID) EntitySet
	QueryMultiple(ids []ComponentTypeID, op CombineOp) EntitySet
	Size() int
	MemoryUsage() int64
	Clear()
}

// IndexStats is per-strategy telemetry driving the auto-switch heuristic. It
// is diagnostic output, not authoritative state.
type IndexStats struct {
	Kind         IndexKind
	Size         int
	MemoryUsage  int64
	QueryCount   uint64
	AvgQueryTime time.Duration
	LastUpdated  time.Time
	Switches     int
}

// ----------------------------------------
// Hash strategy
// ----------------------------------------

// HashComponentIndex stores a set of entities per component type plus a
// reverse map per entity for O(1) removal.
type HashComponentIndex struct {
	byType   map[ComponentTypeID]EntitySet
	byEntity map[*Entity]map[ComponentTypeID]struct{}
}

// NewHashComponentIndex constructs an empty hash index.
func NewHashComponentIndex() *HashComponentIndex {
	return &HashComponentIndex{
		byType:   make(map[ComponentTypeID]EntitySet),
		byEntity: make(map[*Entity]map[ComponentTypeID]struct{}),
	}
}

// AddEntity files the entity under every component type it currently holds.
// Re-adding an already indexed entity refreshes its snapshot.
func (x *HashComponentIndex) AddEntity(e *Entity) {
	if _, ok := x.byEntity[e]; ok {
		x.RemoveEntity(e)
	}
	types := make(map[ComponentTypeID]struct{}, len(e.types))
	for id := range e.types {
		types[id] = struct{}{}
		set, ok := x.byType[id]
		if !ok {
			set = make(EntitySet)
			x.byType[id] = set
		}
		set[e] = struct{}{}
	}
	x.byEntity[e] = types
}

// RemoveEntity unfiles the entity from every type set it was indexed under.
func (x *HashComponentIndex) RemoveEntity(e *Entity) {
	types, ok := x.byEntity[e]
	if !ok {
		return
	}
	for id := range types {
		if set, ok := x.byType[id]; ok {
			delete(set, e)
			if len(set) == 0 {
				delete(x.byType, id)
			}
		}
	}
	delete(x.byEntity, e)
}

// Query returns the entities indexed under a single component type.
func (x *HashComponentIndex) Query(id ComponentTypeID) EntitySet {
	out := make(EntitySet, len(x.byType[id]))
	for e := range x.byType[id] {
		out[e] = struct{}{}
	}
	return out
}

// QueryMultiple answers an AND or OR query over several component types.
// AND picks the smallest candidate set first and filters by membership in
// the rest, avoiding a full cross product.
func (x *HashComponentIndex) QueryMultiple(ids []ComponentTypeID, op CombineOp) EntitySet {
	out := make(EntitySet)
	if len(ids) == 0 {
		return out
	}
	if op == CombineOr {
		for _, id := range ids {
			for e := range x.byType[id] {
				out[e] = struct{}{}
			}
		}
		return out
	}
	smallest := -1
	var seed EntitySet
	for _, id := range ids {
		set, ok := x.byType[id]
		if !ok {
			return out
		}
		if smallest < 0 || len(set) < smallest {
			smallest = len(set)
			seed = set
		}
	}
candidates:
	for e := range seed {
		for _, id := range ids {
			if _, ok := x.byType[id][e]; !ok {
				continue candidates
			}
		}
		out[e] = struct{}{}
	}
	return out
}

// Size returns the number of indexed entities.
func (x *HashComponentIndex) Size() int {
	return len(x.byEntity)
}

// MemoryUsage estimates the index footprint in bytes. Per membership the
// index pays twice (forward set entry plus reverse map entry).
func (x *HashComponentIndex) MemoryUsage() int64 {
	const perBucket, perEntry = 48, 32
	total := int64(len(x.byType)+len(x.byEntity)) * perBucket
	for _, set := range x.byType {
		total += int64(len(set)) * perEntry * 2
	}
	return total
}

// Clear drops all index state.
func (x *HashComponentIndex) Clear() {
	x.byType = make(map[ComponentTypeID]EntitySet)
	x.byEntity = make(map[*Entity]map[ComponentTypeID]struct{})
}

// ----------------------------------------
// Bitmap strategy
// ----------------------------------------

// BitmapComponentIndex assigns each component type a bit position in
// first-seen order and stores one packed bitmap per entity, plus per-bit
// reverse sets for single-type and OR queries. AND queries scan the entity
// bitmaps instead of materializing per-type sets, trading CPU for memory.
type BitmapComponentIndex struct {
	bitFor   map[ComponentTypeID]int
	bitTypes []ComponentTypeID

	entityBitmap map[*Entity]*Bits
	byBit        []EntitySet
}

// NewBitmapComponentIndex constructs an empty bitmap index.
func NewBitmapComponentIndex() *BitmapComponentIndex {
	return &BitmapComponentIndex{
		bitFor:       make(map[ComponentTypeID]int),
		entityBitmap: make(map[*Entity]*Bits),
	}
}

// AddEntity records the entity's current component set as a packed bitmap.
// Re-adding refreshes the snapshot.
func (x *BitmapComponentIndex) AddEntity(e *Entity) {
	if _, ok := x.entityBitmap[e]; ok {
		x.RemoveEntity(e)
	}
	bm := NewBits(len(x.bitTypes))
	for id := range e.types {
		bit := x.bitOf(id)
		bm.Set(bit)
		x.byBit[bit][e] = struct{}{}
	}
	x.entityBitmap[e] = bm
}

// RemoveEntity drops the entity's bitmap and reverse-set memberships.
func (x *BitmapComponentIndex) RemoveEntity(e *Entity) {
	bm, ok := x.entityBitmap[e]
	if !ok {
		return
	}
	bm.ForEachSet(func(bit int) {
		delete(x.byBit[bit], e)
	})
	delete(x.entityBitmap, e)
}

// Query returns the entities whose bitmap has the type's bit set.
func (x *BitmapComponentIndex) Query(id ComponentTypeID) EntitySet {
	bit, ok := x.bitFor[id]
	if !ok {
		return make(EntitySet)
	}
	out := make(EntitySet, len(x.byBit[bit]))
	for e := range x.byBit[bit] {
		out[e] = struct{}{}
	}
	return out
}

// QueryMultiple answers an AND or OR query. AND builds a target mask and
// tests every entity bitmap for containment, O(entities) with no per-type
// allocation; OR unions the per-bit reverse sets.
func (x *BitmapComponentIndex) QueryMultiple(ids []ComponentTypeID, op CombineOp) EntitySet {
	out := make(EntitySet)
	if len(ids) == 0 {
		return out
	}
	if op == CombineOr {
		for _, id := range ids {
			if bit, ok := x.bitFor[id]; ok {
				for e := range x.byBit[bit] {
					out[e] = struct{}{}
				}
			}
		}
		return out
	}
	target := NewBits(len(x.bitTypes))
	for _, id := range ids {
		bit, ok := x.bitFor[id]
		if !ok {
			// a type never seen by this index matches nothing
			return out
		}
		target.Set(bit)
	}
	for e, bm := range x.entityBitmap {
		if bm.ContainsAll(target) {
			out[e] = struct{}{}
		}
	}
	return out
}

// Size returns the number of indexed entities.
func (x *BitmapComponentIndex) Size() int {
	return len(x.entityBitmap)
}

// MemoryUsage estimates the index footprint in bytes.
func (x *BitmapComponentIndex) MemoryUsage() int64 {
	const perBucket, perEntry = 48, 32
	wordBytes := int64((len(x.bitTypes) + bitsPerWord - 1) / bitsPerWord * 4)
	total := int64(len(x.entityBitmap)) * (perBucket + wordBytes)
	for _, set := range x.byBit {
		total += int64(len(set)) * perEntry
	}
	return total
}

// Clear drops all index state including the bit assignments.
func (x *BitmapComponentIndex) Clear() {
	x.bitFor = make(map[ComponentTypeID]int)
	x.bitTypes = nil
	x.entityBitmap = make(map[*Entity]*Bits)
	x.byBit = nil
}

func (x *BitmapComponentIndex) bitOf(id ComponentTypeID) int {
	if bit, ok := x.bitFor[id]; ok {
		return bit
	}
	bit := len(x.bitTypes)
	x.bitFor[id] = bit
	x.bitTypes = append(x.bitTypes, id)
	x.byBit = append(x.byBit, make(EntitySet))
	return bit
}

// ----------------------------------------
// Manager
// ----------------------------------------

// IndexManagerConfig tunes the auto-switch policy.
type IndexManagerConfig struct {
	// Initial selects the starting strategy. Defaults to hash.
	Initial IndexKind
	// AutoSwitch enables the latency/memory heuristic. On by default via
	// DefaultIndexManagerConfig.
	AutoSwitch bool
	// LatencyThreshold switches to the hash strategy once the running
	// average query time exceeds it.
	LatencyThreshold time.Duration
	// MemoryThreshold switches to the bitmap strategy once the estimated
	// footprint exceeds it.
	MemoryThreshold int64
}

// DefaultIndexManagerConfig returns the production defaults: hash first,
// switch to hash above 1ms average query time, to bitmap above 10MB.
func DefaultIndexManagerConfig() IndexManagerConfig {
	return IndexManagerConfig{
		Initial:          IndexKindHash,
		AutoSwitch:       true,
		LatencyThreshold: time.Millisecond,
		MemoryThreshold:  10 << 20,
	}
}

// ComponentIndexManager owns the active index strategy and self-tunes
// between hash and bitmap based on observed query latency and memory
// footprint. Switching rebuilds the new strategy from the manager's live
// entity set before discarding the old one, so no index contents are lost
// across a swap.
type ComponentIndexManager struct {
	cfg    IndexManagerConfig
	kind   IndexKind
	active ComponentIndex

	entities EntitySet // live population, replayed on switch

	queryCount  uint64
	totalQuery  time.Duration
	lastUpdated time.Time
	switches    int

	now func() time.Time
	log *logrus.Entry
}

// NewComponentIndexManager constructs a manager with the given config and
// logger entry. A nil logger disables switch diagnostics.
func NewComponentIndexManager(cfg IndexManagerConfig, log *logrus.Entry) *ComponentIndexManager {
	if cfg.LatencyThreshold <= 0 {
		cfg.LatencyThreshold = time.Millisecond
	}
	if cfg.MemoryThreshold <= 0 {
		cfg.MemoryThreshold = 10 << 20
	}
	m := &ComponentIndexManager{
		cfg:      cfg,
		kind:     cfg.Initial,
		entities: make(EntitySet),
		now:      time.Now,
		log:      log,
	}
	m.active = newIndexOfKind(cfg.Initial)
	return m
}

// Kind returns the active strategy.
func (m *ComponentIndexManager) Kind() IndexKind {
	return m.kind
}

// AddEntity files the entity into the active index and tracks it for
// replay on strategy switches.
func (m *ComponentIndexManager) AddEntity(e *Entity) {
	m.entities[e] = struct{}{}
	m.active.AddEntity(e)
	m.lastUpdated = m.now()
	m.maybeSwitchOnMemory()
}

// RemoveEntity unfiles the entity.
func (m *ComponentIndexManager) RemoveEntity(e *Entity) {
	delete(m.entities, e)
	m.active.RemoveEntity(e)
	m.lastUpdated = m.now()
}

// Reindex refreshes the entity's snapshot after its component set changed.
func (m *ComponentIndexManager) Reindex(e *Entity) {
	if _, ok := m.entities[e]; !ok {
		return
	}
	m.active.AddEntity(e)
	m.lastUpdated = m.now()
}

// Query returns the entities holding the component type.
func (m *ComponentIndexManager) Query(id ComponentTypeID) EntitySet {
	start := m.now()
	out := m.active.Query(id)
	m.recordQuery(m.now().Sub(start))
	return out
}

// QueryMultiple answers a multi-type AND/OR query.
func (m *ComponentIndexManager) QueryMultiple(ids []ComponentTypeID, op CombineOp) EntitySet {
	start := m.now()
	out := m.active.QueryMultiple(ids, op)
	m.recordQuery(m.now().Sub(start))
	return out
}

// Stats returns the current telemetry snapshot.
func (m *ComponentIndexManager) Stats() IndexStats {
	var avg time.Duration
	if m.queryCount > 0 {
		avg = m.totalQuery / time.Duration(m.queryCount)
	}
	return IndexStats{
		Kind:         m.kind,
		Size:         m.active.Size(),
		MemoryUsage:  m.active.MemoryUsage(),
		QueryCount:   m.queryCount,
		AvgQueryTime: avg,
		LastUpdated:  m.lastUpdated,
		Switches:     m.switches,
	}
}

// SwitchTo rebuilds the index under the given strategy, replaying every live
// entity into the new structures, and resets the latency telemetry so the
// heuristic judges the new strategy on its own numbers.
func (m *ComponentIndexManager) SwitchTo(kind IndexKind) {
	if kind == m.kind {
		return
	}
	next := newIndexOfKind(kind)
	for e := range m.entities {
		next.AddEntity(e)
	}
	m.active.Clear()
	m.active = next
	m.kind = kind
	m.switches++
	m.queryCount = 0
	m.totalQuery = 0
	m.lastUpdated = m.now()
	if m.log != nil {
		m.log.WithFields(logrus.Fields{
			"strategy": kind.String(),
			"entities": len(m.entities),
			"switches": m.switches,
		}).Info("component index strategy switched")
	}
}

// Clear drops the index contents and the replay set.
func (m *ComponentIndexManager) Clear() {
	m.entities = make(EntitySet)
	m.active.Clear()
	m.queryCount = 0
	m.totalQuery = 0
	m.lastUpdated = m.now()
}

func (m *ComponentIndexManager) recordQuery(elapsed time.Duration) {
	m.queryCount++
	m.totalQuery += elapsed
	m.lastUpdated = m.now()
	if !m.cfg.AutoSwitch || m.kind == IndexKindHash || m.queryCount < 16 {
		return
	}
	if m.totalQuery/time.Duration(m.queryCount) > m.cfg.LatencyThreshold {
		m.SwitchTo(IndexKindHash)
	}
}

func (m *ComponentIndexManager) maybeSwitchOnMemory() {
	if !m.cfg.AutoSwitch || m.kind == IndexKindBitmap {
		return
	}
	if m.active.MemoryUsage() > m.cfg.MemoryThreshold {
		m.SwitchTo(IndexKindBitmap)
	}
}

func newIndexOfKind(kind IndexKind) ComponentIndex {
	if kind == IndexKindBitmap {
		return NewBitmapComponentIndex()
	}
	return NewHashComponentIndex()
}
