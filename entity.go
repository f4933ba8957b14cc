package koseki

import (
	"fmt"
	"slices"
)

// Entity is a live entity record. The core tracks component presence and
// identity only; component data and behavior live with the caller.
//
// An entity carries two coexisting identifiers: a monotonically increasing
// numeric ID handed out by the manager's identifier sequence, and a
// compressed pool handle whose generation detects stale references. The two
// schemes must not be confused: the numeric ID names the entity in secondary
// indexes and events, the handle is what the identifier pool validates and
// recycles.
type Entity struct {
	id     uint64
	handle EntityID
	name   string

	tags  map[string]struct{}
	types map[ComponentTypeID]struct{}
	mask  *Bits

	active    bool
	enabled   bool
	destroyed bool
}

// ID returns the entity's numeric sequence identifier.
func (e *Entity) ID() uint64 {
	return e.id
}

// Handle returns the entity's compressed pool identifier.
func (e *Entity) Handle() EntityID {
	return e.handle
}

// Name returns the entity's name, empty if it was created anonymous.
func (e *Entity) Name() string {
	return e.name
}

// Active reports the entity's active flag. Inactive entities are skipped by
// queries built with Active().
func (e *Entity) Active() bool {
	return e.active
}

// SetActive sets the active flag.
func (e *Entity) SetActive(active bool) {
	e.active = active
}

// Enabled reports the entity's enabled flag.
func (e *Entity) Enabled() bool {
	return e.enabled
}

// SetEnabled sets the enabled flag.
func (e *Entity) SetEnabled(enabled bool) {
	e.enabled = enabled
}

// Destroyed reports whether the entity has been destroyed by its manager.
func (e *Entity) Destroyed() bool {
	return e.destroyed
}

// HasTag reports whether the entity carries the tag. Tag membership is
// maintained through the manager so the tag index stays consistent.
func (e *Entity) HasTag(tag string) bool {
	_, ok := e.tags[tag]
	return ok
}

// Tags returns the entity's tags sorted alphabetically.
func (e *Entity) Tags() []string {
	out := make([]string, 0, len(e.tags))
	for t := range e.tags {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// HasComponentType reports whether the entity's component set contains id.
func (e *Entity) HasComponentType(id ComponentTypeID) bool {
	_, ok := e.types[id]
	return ok
}

// ComponentTypes returns the entity's component types in ascending ID order.
func (e *Entity) ComponentTypes() []ComponentTypeID {
	out := make([]ComponentTypeID, 0, len(e.types))
	for id := range e.types {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// ComponentCount returns the size of the entity's component set.
func (e *Entity) ComponentCount() int {
	return len(e.types)
}

// Mask returns the entity's component presence mask. The returned bitset is
// live and must be treated as read-only by callers.
func (e *Entity) Mask() *Bits {
	return e.mask
}

// AddComponentType records id in the entity's component set. This mutates
// presence only: the caller must follow up with MarkEntityDirty on the
// manager so the component index and archetype grouping catch up. Returns
// true if the set changed.
func (e *Entity) AddComponentType(id ComponentTypeID) bool {
	if _, ok := e.types[id]; ok {
		return false
	}
	e.types[id] = struct{}{}
	e.mask.Set(int(id))
	return true
}

// RemoveComponentType removes id from the entity's component set. Like
// AddComponentType this is presence-only; re-indexing is the caller's follow
// up. Returns true if the set changed.
func (e *Entity) RemoveComponentType(id ComponentTypeID) bool {
	if _, ok := e.types[id]; !ok {
		return false
	}
	delete(e.types, id)
	e.mask.Clear(int(id))
	return true
}

// String renders the entity for debugging.
func (e *Entity) String() string {
	if e.name != "" {
		return fmt.Sprintf("Entity(%d %q)", e.id, e.name)
	}
	return fmt.Sprintf("Entity(%d)", e.id)
}

func newEntity(id uint64, handle EntityID, name string) *Entity {
	return &Entity{
		id:      id,
		handle:  handle,
		name:    name,
		tags:    make(map[string]struct{}),
		types:   make(map[ComponentTypeID]struct{}),
		mask:    NewBits(0),
		active:  true,
		enabled: true,
	}
}
