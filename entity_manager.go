package koseki

import (
	"slices"
	"time"

	"github.com/sirupsen/logrus"
)

// EntityManagerConfig configures a manager and its subsystems.
type EntityManagerConfig struct {
	// Logger receives diagnostics. Defaults to the logrus standard logger.
	Logger *logrus.Logger
	// CapacityHint preallocates pool and map storage.
	CapacityHint int
	// Index tunes the component index auto-switch policy.
	Index IndexManagerConfig
	// Dirty tunes the dirty tracker's drain bounds.
	Dirty DirtyTrackerConfig
	// ArchetypeCacheTTL overrides the archetype query cache TTL.
	ArchetypeCacheTTL time.Duration
}

// DefaultEntityManagerConfig returns the production defaults.
func DefaultEntityManagerConfig() EntityManagerConfig {
	return EntityManagerConfig{
		CapacityHint:      1024,
		Index:             DefaultIndexManagerConfig(),
		Dirty:             DefaultDirtyTrackerConfig(),
		ArchetypeCacheTTL: DefaultArchetypeCacheTTL,
	}
}

// OptimizationStats aggregates the read-only telemetry of every subsystem
// for tooling such as an editor debug panel. Reading it has no side effects.
type OptimizationStats struct {
	Entities       int
	Index          IndexStats
	Archetypes     ArchetypeStats
	Dirty          DirtyStats
	Pool           PoolStats
	GlobalMappings int
}

// EntityManager is the orchestrating facade of the core: entity lifecycle,
// name/tag secondary indexes, component-membership bookkeeping, and the
// query surface. All indexes are owned exclusively by one manager instance;
// nothing here tolerates multiple writer goroutines.
type EntityManager struct {
	registry *ComponentRegistry
	ids      *DualTrackIDSystem

	nextID   uint64
	entities map[uint64]*Entity
	byHandle map[EntityID]*Entity
	byName   map[string]*Entity
	byTag    map[string]EntitySet

	index      *ComponentIndexManager
	archetypes *ArchetypeSystem
	dirty      *DirtyTrackingSystem
	bus        *EventBus

	log *logrus.Entry
}

// NewEntityManager constructs a manager bound to a component registry with
// the default configuration.
func NewEntityManager(registry *ComponentRegistry) *EntityManager {
	return NewEntityManagerWithConfig(registry, DefaultEntityManagerConfig())
}

// NewEntityManagerWithConfig constructs a manager with explicit tuning.
func NewEntityManagerWithConfig(registry *ComponentRegistry, cfg EntityManagerConfig) *EntityManager {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	m := &EntityManager{
		registry:   registry,
		ids:        NewDualTrackIDSystem(cfg.CapacityHint),
		entities:   make(map[uint64]*Entity, cfg.CapacityHint),
		byHandle:   make(map[EntityID]*Entity, cfg.CapacityHint),
		byName:     make(map[string]*Entity),
		byTag:      make(map[string]EntitySet),
		dirty:      NewDirtyTrackingSystem(cfg.Dirty),
		bus:        NewEventBus(),
		archetypes: NewArchetypeSystem(registry),
		log:        logger.WithField("component", "entity-manager"),
	}
	m.index = NewComponentIndexManager(cfg.Index, logger.WithField("component", "component-index"))
	if cfg.ArchetypeCacheTTL > 0 {
		m.archetypes.SetCacheTTL(cfg.ArchetypeCacheTTL)
	}
	return m
}

// Registry returns the component registry this manager was built with.
func (m *EntityManager) Registry() *ComponentRegistry {
	return m.registry
}

// Bus returns the manager's event bus.
func (m *EntityManager) Bus() *EventBus {
	return m.bus
}

// IDs returns the dual-track identifier system for diagnostics and
// cross-boundary reference resolution.
func (m *EntityManager) IDs() *DualTrackIDSystem {
	return m.ids
}

// CreateEntity creates and registers a new entity. The name may be empty for
// an anonymous entity; a non-empty name replaces any previous holder in the
// name index (last writer wins). Returns nil when the identifier pool is
// exhausted; callers must check.
func (m *EntityManager) CreateEntity(name string) *Entity {
	handle := m.ids.Allocate()
	if handle.IsNil() {
		m.log.Warn("entity pool exhausted, create refused")
		return nil
	}
	m.nextID++
	e := newEntity(m.nextID, handle, name)

	m.entities[e.id] = e
	m.byHandle[handle] = e
	if name != "" {
		m.byName[name] = e
	}
	m.index.AddEntity(e)
	m.archetypes.AddEntity(e)
	m.dirty.MarkDirty(e, DirtyComponentAdded)
	Publish(m.bus, EntityCreatedEvent{Entity: e})
	return e
}

// CreateEntities creates a batch of anonymous entities, amortizing the pool
// drain. The slice is shorter than n if the pool runs out.
func (m *EntityManager) CreateEntities(n int) []*Entity {
	handles := m.ids.AllocateBatch(n)
	out := make([]*Entity, 0, len(handles))
	for _, handle := range handles {
		m.nextID++
		e := newEntity(m.nextID, handle, "")
		m.entities[e.id] = e
		m.byHandle[handle] = e
		m.index.AddEntity(e)
		m.archetypes.AddEntity(e)
		m.dirty.MarkDirty(e, DirtyComponentAdded)
		Publish(m.bus, EntityCreatedEvent{Entity: e})
		out = append(out, e)
	}
	if len(out) < n {
		m.log.WithFields(logrus.Fields{"requested": n, "created": len(out)}).Warn("entity pool exhausted mid-batch")
	}
	return out
}

// DestroyEntity removes the entity from every index, releases both of its
// identifiers, and publishes EntityDestroyedEvent. Destroying an already
// destroyed or unknown entity returns false.
func (m *EntityManager) DestroyEntity(e *Entity) bool {
	if e == nil || e.destroyed {
		return false
	}
	if m.entities[e.id] != e {
		return false
	}

	m.index.RemoveEntity(e)
	m.archetypes.RemoveEntity(e)
	m.dirty.Forget(e)

	if e.name != "" && m.byName[e.name] == e {
		delete(m.byName, e.name)
	}
	for tag := range e.tags {
		if set, ok := m.byTag[tag]; ok {
			delete(set, e)
			if len(set) == 0 {
				delete(m.byTag, tag)
			}
		}
	}
	delete(m.entities, e.id)
	delete(m.byHandle, e.handle)

	handle := e.handle
	m.ids.Release(handle)
	e.destroyed = true
	Publish(m.bus, EntityDestroyedEvent{Entity: e, Handle: handle})
	return true
}

// DestroyEntityByName destroys the entity currently holding the name.
func (m *EntityManager) DestroyEntityByName(name string) bool {
	return m.DestroyEntity(m.byName[name])
}

// DestroyEntityByID destroys the entity with the numeric identifier.
func (m *EntityManager) DestroyEntityByID(id uint64) bool {
	return m.DestroyEntity(m.entities[id])
}

// DestroyEntities destroys every given entity, returning how many were live.
func (m *EntityManager) DestroyEntities(entities []*Entity) int {
	destroyed := 0
	for _, e := range entities {
		if m.DestroyEntity(e) {
			destroyed++
		}
	}
	return destroyed
}

// Entity returns the entity with the numeric identifier, nil if unknown.
func (m *EntityManager) Entity(id uint64) *Entity {
	return m.entities[id]
}

// EntityByHandle resolves a compressed pool identifier to its entity,
// validating the handle's generation first.
func (m *EntityManager) EntityByHandle(handle EntityID) *Entity {
	if !m.ids.IsValid(handle) {
		return nil
	}
	return m.byHandle[handle]
}

// EntityByName returns the entity currently holding the name, nil if none.
func (m *EntityManager) EntityByName(name string) *Entity {
	return m.byName[name]
}

// EntitiesByTag returns the entities carrying the tag, sorted by numeric ID.
func (m *EntityManager) EntitiesByTag(tag string) []*Entity {
	return sortEntities(m.byTag[tag])
}

// Count returns the number of live entities.
func (m *EntityManager) Count() int {
	return len(m.entities)
}

// AddTag tags the entity and updates the tag index.
func (m *EntityManager) AddTag(e *Entity, tag string) {
	if e == nil || e.destroyed || tag == "" {
		return
	}
	if _, ok := e.tags[tag]; ok {
		return
	}
	e.tags[tag] = struct{}{}
	set, ok := m.byTag[tag]
	if !ok {
		set = make(EntitySet)
		m.byTag[tag] = set
	}
	set[e] = struct{}{}
}

// RemoveTag untags the entity and updates the tag index.
func (m *EntityManager) RemoveTag(e *Entity, tag string) {
	if e == nil {
		return
	}
	if _, ok := e.tags[tag]; !ok {
		return
	}
	delete(e.tags, tag)
	if set, ok := m.byTag[tag]; ok {
		delete(set, e)
		if len(set) == 0 {
			delete(m.byTag, tag)
		}
	}
}

// AddComponents records the component types on the entity and re-indexes it,
// marking it dirty with DirtyComponentAdded for the types that actually
// joined the set.
func (m *EntityManager) AddComponents(e *Entity, ids ...ComponentTypeID) {
	if e == nil || e.destroyed {
		return
	}
	added := make([]ComponentTypeID, 0, len(ids))
	for _, id := range ids {
		if e.AddComponentType(id) {
			added = append(added, id)
		}
	}
	if len(added) > 0 {
		m.MarkEntityDirty(e, DirtyComponentAdded, added...)
	}
}

// RemoveComponents removes the component types from the entity and
// re-indexes it, marking it dirty with DirtyComponentRemoved for the types
// that actually left the set.
func (m *EntityManager) RemoveComponents(e *Entity, ids ...ComponentTypeID) {
	if e == nil || e.destroyed {
		return
	}
	removed := make([]ComponentTypeID, 0, len(ids))
	for _, id := range ids {
		if e.RemoveComponentType(id) {
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		m.MarkEntityDirty(e, DirtyComponentRemoved, removed...)
	}
}

// MarkEntityDirty is the push-based consistency hook: call it after mutating
// an entity's component set so the component index and archetype grouping
// catch up. The core does not intercept component mutation automatically.
func (m *EntityManager) MarkEntityDirty(e *Entity, flags DirtyFlag, modified ...ComponentTypeID) {
	if e == nil || e.destroyed {
		return
	}
	m.index.Reindex(e)
	m.archetypes.AddEntity(e)
	m.dirty.MarkDirty(e, flags, modified...)
}

// GetEntitiesWithComponent returns the entities holding the component type,
// sorted by numeric ID.
func (m *EntityManager) GetEntitiesWithComponent(id ComponentTypeID) []*Entity {
	return sortEntities(m.index.Query(id))
}

// QueryWithComponentIndex answers a multi-type AND/OR query straight from
// the component index, sorted by numeric ID.
func (m *EntityManager) QueryWithComponentIndex(ids []ComponentTypeID, op CombineOp) []*Entity {
	return sortEntities(m.index.QueryMultiple(ids, op))
}

// QueryArchetypes exposes archetype-level queries.
func (m *EntityManager) QueryArchetypes(ids []ComponentTypeID, op CombineOp) ArchetypeQueryResult {
	return m.archetypes.QueryArchetypes(ids, op)
}

// Query starts a fluent entity query.
func (m *EntityManager) Query() *EntityQueryBuilder {
	return &EntityQueryBuilder{manager: m}
}

// Matcher creates a matcher bound to the manager's registry.
func (m *EntityManager) Matcher() *Matcher {
	return NewMatcher(m.registry)
}

// GlobalIDFor returns the entity's global identifier, creating the mapping
// on first use.
func (m *EntityManager) GlobalIDFor(e *Entity) GlobalID {
	if e == nil || e.destroyed {
		return GlobalID{}
	}
	return m.ids.GlobalFor(e.handle)
}

// FindByGlobalID resolves a global identifier back to the live entity, nil
// when the mapping is gone or the entity died.
func (m *EntityManager) FindByGlobalID(g GlobalID) *Entity {
	local := m.ids.LocalFor(g)
	if local.IsNil() {
		return nil
	}
	return m.byHandle[local]
}

// DirtyTracker exposes the dirty tracking subsystem for listener
// registration and manual draining.
func (m *EntityManager) DirtyTracker() *DirtyTrackingSystem {
	return m.dirty
}

// ComponentIndex exposes the index manager for diagnostics and manual
// strategy switches.
func (m *EntityManager) ComponentIndex() *ComponentIndexManager {
	return m.index
}

// Archetypes exposes the archetype system.
func (m *EntityManager) Archetypes() *ArchetypeSystem {
	return m.archetypes
}

// BeginFrame advances the dirty tracker's frame counter.
func (m *EntityManager) BeginFrame() {
	m.dirty.BeginFrame()
}

// EndFrame drains the dirty queue (bounded) and the pool's delayed recycle
// queue.
func (m *EntityManager) EndFrame() {
	m.dirty.EndFrame()
	m.ids.ForceProcessRecycle()
}

// GetOptimizationStats returns the aggregated telemetry snapshot.
func (m *EntityManager) GetOptimizationStats() OptimizationStats {
	return OptimizationStats{
		Entities:       len(m.entities),
		Index:          m.index.Stats(),
		Archetypes:     m.archetypes.Stats(),
		Dirty:          m.dirty.Stats(),
		Pool:           m.ids.Pool().Stats(),
		GlobalMappings: m.ids.Mapper().Count(),
	}
}

// Clear destroys every entity and resets all subsystem state. Identifier
// slots are recycled, not reallocated.
func (m *EntityManager) Clear() {
	for _, e := range m.entities {
		e.destroyed = true
		m.ids.Release(e.handle)
	}
	m.entities = make(map[uint64]*Entity)
	m.byHandle = make(map[EntityID]*Entity)
	m.byName = make(map[string]*Entity)
	m.byTag = make(map[string]EntitySet)
	m.index.Clear()
	m.archetypes.Clear()
	m.dirty.Clear()
	m.ids.ForceProcessRecycle()
}

// sortEntities orders a query result set by numeric ID so callers see an
// explicit, deterministic order instead of map iteration order.
func sortEntities(set EntitySet) []*Entity {
	out := make([]*Entity, 0, len(set))
	for e := range set {
		out = append(out, e)
	}
	slices.SortFunc(out, func(x, y *Entity) int {
		switch {
		case x.id < y.id:
			return -1
		case x.id > y.id:
			return 1
		}
		return 0
	})
	return out
}
