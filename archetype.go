package koseki

import (
	"slices"
	"strings"
	"time"
)

// DefaultArchetypeCacheTTL bounds how long a cached archetype query result
// may be served.
const DefaultArchetypeCacheTTL = 5 * time.Second

// Archetype groups the entities sharing one exact component-type signature.
// An entity belongs to exactly one archetype at a time and is re-filed
// whenever its component set changes.
type Archetype struct {
	id      string
	types   []ComponentTypeID
	mask    *Bits
	members EntitySet

	createdAt time.Time
	updatedAt time.Time
}

// ID returns the archetype's signature: the sorted component-type names
// joined with commas.
func (a *Archetype) ID() string {
	return a.id
}

// ComponentTypes returns the signature's component types in ascending order.
func (a *Archetype) ComponentTypes() []ComponentTypeID {
	return slices.Clone(a.types)
}

// Size returns the number of member entities.
func (a *Archetype) Size() int {
	return len(a.members)
}

// Entities returns the member entities sorted by numeric ID. Iteration order
// of the underlying set is not meaningful, so the order is made explicit
// here.
func (a *Archetype) Entities() []*Entity {
	return sortEntities(a.members)
}

// Contains reports whether the entity is a member.
func (a *Archetype) Contains(e *Entity) bool {
	_, ok := a.members[e]
	return ok
}

// CreatedAt returns when the archetype was first created.
func (a *Archetype) CreatedAt() time.Time {
	return a.createdAt
}

// UpdatedAt returns when membership last changed.
func (a *Archetype) UpdatedAt() time.Time {
	return a.updatedAt
}

// ArchetypeQueryResult is the outcome of QueryArchetypes.
type ArchetypeQueryResult struct {
	Archetypes    []*Archetype
	TotalEntities int
	ExecutionTime time.Duration
	FromCache     bool
}

// ArchetypeStats is the diagnostics snapshot of the system.
type ArchetypeStats struct {
	Archetypes   int
	Entities     int
	CacheEntries int
	CacheHits    uint64
	CacheMisses  uint64
}

type archetypeCacheEntry struct {
	result  ArchetypeQueryResult
	expires time.Time
}

// ArchetypeSystem files entities into archetypes by exact component-type
// signature and answers archetype-level AND/OR queries through a TTL-bounded
// cache. The cache is invalidated wholesale on any membership change:
// correctness over precision — a cached result never reflects stale
// membership, though within the TTL window it may reflect stale attribute
// order.
type ArchetypeSystem struct {
	registry *ComponentRegistry

	bySignature map[string]*Archetype
	byEntity    map[*Entity]*Archetype
	byType      map[ComponentTypeID]map[*Archetype]struct{}

	cache    map[string]archetypeCacheEntry
	cacheTTL time.Duration
	hits     uint64
	misses   uint64

	now func() time.Time
}

// NewArchetypeSystem constructs an empty system with the default cache TTL.
func NewArchetypeSystem(registry *ComponentRegistry) *ArchetypeSystem {
	return &ArchetypeSystem{
		registry:    registry,
		bySignature: make(map[string]*Archetype),
		byEntity:    make(map[*Entity]*Archetype),
		byType:      make(map[ComponentTypeID]map[*Archetype]struct{}),
		cache:       make(map[string]archetypeCacheEntry),
		cacheTTL:    DefaultArchetypeCacheTTL,
		now:         time.Now,
	}
}

// SetCacheTTL overrides the query cache TTL.
func (s *ArchetypeSystem) SetCacheTTL(ttl time.Duration) {
	s.cacheTTL = ttl
}

// AddEntity recomputes the entity's signature from its current component set
// and files it under the matching archetype, creating the archetype if this
// is the first entity with that exact signature. Also used to re-file an
// entity after its component set changed.
func (s *ArchetypeSystem) AddEntity(e *Entity) {
	types := e.ComponentTypes()
	sig := s.signature(types)

	if current, ok := s.byEntity[e]; ok {
		if current.id == sig {
			return
		}
		s.detach(e, current)
	}

	arch, ok := s.bySignature[sig]
	if !ok {
		now := s.now()
		arch = &Archetype{
			id:        sig,
			types:     types,
			mask:      s.registry.MaskOf(types...),
			members:   make(EntitySet),
			createdAt: now,
			updatedAt: now,
		}
		s.bySignature[sig] = arch
		for _, id := range types {
			set, ok := s.byType[id]
			if !ok {
				set = make(map[*Archetype]struct{})
				s.byType[id] = set
			}
			set[arch] = struct{}{}
		}
	}
	arch.members[e] = struct{}{}
	arch.updatedAt = s.now()
	s.byEntity[e] = arch
	s.invalidate()
}

// RemoveEntity unfiles the entity from its archetype. Returns false if the
// entity was never filed.
func (s *ArchetypeSystem) RemoveEntity(e *Entity) bool {
	arch, ok := s.byEntity[e]
	if !ok {
		return false
	}
	s.detach(e, arch)
	s.invalidate()
	return true
}

// ArchetypeOf returns the archetype currently holding the entity, nil if the
// entity is not filed.
func (s *ArchetypeSystem) ArchetypeOf(e *Entity) *Archetype {
	return s.byEntity[e]
}

// QueryArchetypes answers an archetype-level query. AND matches every
// archetype whose signature is a superset of the queried types; OR unions
// the reverse index of each type. Results are served from the cache when a
// fresh entry exists for the same operation and type set.
func (s *ArchetypeSystem) QueryArchetypes(ids []ComponentTypeID, op CombineOp) ArchetypeQueryResult {
	start := s.now()
	key := s.cacheKey(ids, op)
	if entry, ok := s.cache[key]; ok && start.Before(entry.expires) {
		s.hits++
		result := entry.result
		result.FromCache = true
		result.ExecutionTime = s.now().Sub(start)
		return result
	}
	s.misses++

	var matched []*Archetype
	switch op {
	case CombineOr:
		seen := make(map[*Archetype]struct{})
		for _, id := range ids {
			for arch := range s.byType[id] {
				seen[arch] = struct{}{}
			}
		}
		matched = make([]*Archetype, 0, len(seen))
		for arch := range seen {
			matched = append(matched, arch)
		}
	default:
		target := s.registry.MaskOf(ids...)
		for _, arch := range s.bySignature {
			if arch.mask.ContainsAll(target) {
				matched = append(matched, arch)
			}
		}
	}
	slices.SortFunc(matched, func(x, y *Archetype) int {
		return strings.Compare(x.id, y.id)
	})

	total := 0
	for _, arch := range matched {
		total += len(arch.members)
	}
	result := ArchetypeQueryResult{
		Archetypes:    matched,
		TotalEntities: total,
		ExecutionTime: s.now().Sub(start),
	}
	s.cache[key] = archetypeCacheEntry{result: result, expires: s.now().Add(s.cacheTTL)}
	return result
}

// ArchetypeCount returns the number of distinct signatures seen so far,
// including currently empty ones.
func (s *ArchetypeSystem) ArchetypeCount() int {
	return len(s.bySignature)
}

// Stats returns the diagnostics snapshot.
func (s *ArchetypeSystem) Stats() ArchetypeStats {
	return ArchetypeStats{
		Archetypes:   len(s.bySignature),
		Entities:     len(s.byEntity),
		CacheEntries: len(s.cache),
		CacheHits:    s.hits,
		CacheMisses:  s.misses,
	}
}

// Clear drops every archetype, filing, and cache entry.
func (s *ArchetypeSystem) Clear() {
	s.bySignature = make(map[string]*Archetype)
	s.byEntity = make(map[*Entity]*Archetype)
	s.byType = make(map[ComponentTypeID]map[*Archetype]struct{})
	s.cache = make(map[string]archetypeCacheEntry)
}

func (s *ArchetypeSystem) detach(e *Entity, arch *Archetype) {
	delete(arch.members, e)
	arch.updatedAt = s.now()
	delete(s.byEntity, e)
}

func (s *ArchetypeSystem) invalidate() {
	clear(s.cache)
}

// signature builds the archetype key: sorted type names joined with commas.
// The empty signature ("") is the archetype of component-less entities.
func (s *ArchetypeSystem) signature(types []ComponentTypeID) string {
	if len(types) == 0 {
		return ""
	}
	names := make([]string, len(types))
	for i, id := range types {
		names[i] = s.registry.Name(id)
	}
	slices.Sort(names)
	return strings.Join(names, ",")
}

func (s *ArchetypeSystem) cacheKey(ids []ComponentTypeID, op CombineOp) string {
	return op.String() + ":" + s.signature(ids)
}
