package metadata

import "sync"

// Registry holds the collection definitions and the booking attribute catalog.
// Attributes are reloaded after admin mutations.
type Registry struct {
	mu         sync.RWMutex
	entities   map[string]*Entity
	attributes []*BookingAttribute
	byName     map[string]*BookingAttribute
}

func NewRegistry() *Registry {
	r := &Registry{
		entities: make(map[string]*Entity),
		byName:   make(map[string]*BookingAttribute),
	}
	r.Load(Collections())
	return r
}

// GetEntity returns the entity with the given name, or nil.
func (r *Registry) GetEntity(name string) *Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entities[name]
}

// AllEntities returns all registered entities.
func (r *Registry) AllEntities() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entities := make([]*Entity, 0, len(r.entities))
	for _, e := range r.entities {
		entities = append(entities, e)
	}
	return entities
}

// Load replaces all entities in the registry.
func (r *Registry) Load(entities []*Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entities = make(map[string]*Entity, len(entities))
	for _, e := range entities {
		r.entities[e.Name] = e
	}
}

// LoadAttributes replaces the booking attribute catalog.
func (r *Registry) LoadAttributes(attrs []*BookingAttribute) {
	sorted := make([]*BookingAttribute, len(attrs))
	copy(sorted, attrs)
	SortAttributes(sorted)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.attributes = sorted
	r.byName = make(map[string]*BookingAttribute, len(sorted))
	for _, a := range sorted {
		r.byName[a.Name] = a
	}
}

// Attributes returns the catalog in display order.
func (r *Registry) Attributes() []*BookingAttribute {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*BookingAttribute, len(r.attributes))
	copy(out, r.attributes)
	return out
}

// GetAttribute returns the attribute with the given name, or nil.
func (r *Registry) GetAttribute(name string) *BookingAttribute {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}
