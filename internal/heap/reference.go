package heap

import "maps"

// Reference is a placeholder for a related entity known only by key. It
// resolves to an entity, or to nil, on first access.
type Reference struct {
	role     string
	scope    map[string]any
	resolved bool
	value    any
}

// NewReference creates an unresolved reference to role addressed by scope.
func NewReference(role string, scope map[string]any) *Reference {
	return &Reference{role: role, scope: maps.Clone(scope)}
}

// Role returns the referenced role.
func (r *Reference) Role() string {
	return r.role
}

// Scope returns the key values addressing the referenced row.
func (r *Reference) Scope() map[string]any {
	return maps.Clone(r.scope)
}

// Resolved reports whether the reference was resolved.
func (r *Reference) Resolved() bool {
	return r.resolved
}

// Value returns the resolved entity, which may be nil.
func (r *Reference) Value() any {
	return r.value
}

// Resolve binds the reference to entity.
func (r *Reference) Resolve(entity any) {
	r.resolved = true
	r.value = entity
}
