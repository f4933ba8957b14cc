package koseki

import (
	"fmt"
	"reflect"
)

// ComponentTypeID is a unique identifier for a component type. IDs are
// assigned on first registration, are stable for the lifetime of the
// registry, and are never reused even if every component of that type is
// removed.
type ComponentTypeID uint32

// MaxComponentTypes caps the number of distinct component types a registry
// will hand out IDs for.
const MaxComponentTypes = 1024

// ComponentRegistry assigns stable integer IDs to component types and builds
// Bits masks from component lists. It is an explicit value passed into the
// EntityManager, Matcher, and index strategies at construction time; there is
// no package-level singleton, so multiple independent worlds can coexist in
// one process.
type ComponentRegistry struct {
	typeToID map[reflect.Type]ComponentTypeID
	nameToID map[string]ComponentTypeID
	names    []string
	nextID   ComponentTypeID
}

// NewComponentRegistry constructs an empty registry.
func NewComponentRegistry() *ComponentRegistry {
	return &ComponentRegistry{
		typeToID: make(map[reflect.Type]ComponentTypeID, 16),
		nameToID: make(map[string]ComponentTypeID, 16),
	}
}

// RegisterComponent registers the Go type T as a component type and returns
// its ID. Registering the same type again returns the existing ID. It panics
// once MaxComponentTypes distinct types have been registered.
func RegisterComponent[T any](r *ComponentRegistry) ComponentTypeID {
	t := reflect.TypeFor[T]()
	if id, ok := r.typeToID[t]; ok {
		return id
	}
	id := r.register(t.Name())
	r.typeToID[t] = id
	return id
}

// TypeID returns the registered ID for the Go type T.
func TypeID[T any](r *ComponentRegistry) (ComponentTypeID, bool) {
	id, ok := r.typeToID[reflect.TypeFor[T]()]
	return id, ok
}

// MustTypeID returns the registered ID for the Go type T and panics if the
// type was never registered. Missing registration is a programmer error, not
// a runtime condition.
func MustTypeID[T any](r *ComponentRegistry) ComponentTypeID {
	id, ok := r.typeToID[reflect.TypeFor[T]()]
	if !ok {
		panic(fmt.Sprintf("koseki: component type %s not registered", reflect.TypeFor[T]()))
	}
	return id
}

// RegisterNamed registers a component type by explicit string tag, for
// callers that have no Go type to key off (scripted or data-driven
// components). Registering an existing name returns the existing ID.
func (r *ComponentRegistry) RegisterNamed(name string) ComponentTypeID {
	if id, ok := r.nameToID[name]; ok {
		return id
	}
	return r.register(name)
}

// IDByName looks up a component type ID by its display name.
func (r *ComponentRegistry) IDByName(name string) (ComponentTypeID, bool) {
	id, ok := r.nameToID[name]
	return id, ok
}

// Name returns the display name for a registered component type ID, or the
// empty string for an unknown ID.
func (r *ComponentRegistry) Name(id ComponentTypeID) string {
	if int(id) >= len(r.names) {
		return ""
	}
	return r.names[id]
}

// Count returns the number of registered component types.
func (r *ComponentRegistry) Count() int {
	return len(r.names)
}

// Registered reports whether id was handed out by this registry.
func (r *ComponentRegistry) Registered(id ComponentTypeID) bool {
	return int(id) < len(r.names)
}

// SingleMask builds a mask with only the given component type's bit set. It
// panics if the ID was never registered: querying an unregistered type
// indicates a missing registration call and is intentionally fatal rather
// than silently matching nothing.
func (r *ComponentRegistry) SingleMask(id ComponentTypeID) *Bits {
	if !r.Registered(id) {
		panic(fmt.Sprintf("koseki: component type id %d not registered", id))
	}
	m := NewBits(int(id) + 1)
	m.Set(int(id))
	return m
}

// MaskOf builds a combined mask covering every given component type. Each ID
// must have been registered; an unregistered ID panics like SingleMask.
func (r *ComponentRegistry) MaskOf(ids ...ComponentTypeID) *Bits {
	m := NewBits(len(r.names))
	for _, id := range ids {
		if !r.Registered(id) {
			panic(fmt.Sprintf("koseki: component type id %d not registered", id))
		}
		m.Set(int(id))
	}
	return m
}

// MaskContainsAll reports whether mask has the bit of every given type set.
func (r *ComponentRegistry) MaskContainsAll(mask *Bits, ids ...ComponentTypeID) bool {
	for _, id := range ids {
		if !mask.Get(int(id)) {
			return false
		}
	}
	return true
}

func (r *ComponentRegistry) register(name string) ComponentTypeID {
	if int(r.nextID) >= MaxComponentTypes {
		panic(fmt.Sprintf("koseki: cannot register component %q: maximum number of component types (%d) reached", name, MaxComponentTypes))
	}
	id := r.nextID
	r.nextID++
	r.nameToID[name] = id
	r.names = append(r.names, name)
	return id
}
