package mapper

import (
	"fmt"
	"reflect"

	"github.com/roach88/persist/internal/ir"
)

// Mapper reads and writes the declared fields and relation slots of the
// entities of one role. The engine never inspects entities directly.
type Mapper interface {
	// Schema returns the role descriptor the mapper serves.
	Schema() *ir.RoleSchema

	// Extract returns the current value of every declared field.
	Extract(entity any) (map[string]any, error)

	// ExtractChanges returns the declared fields whose value differs from
	// snapshot, including fields the snapshot lacks.
	ExtractChanges(entity any, snapshot map[string]any) (map[string]any, error)

	// Hydrate writes fields back into the entity.
	Hydrate(entity any, fields map[string]any) error

	// Relation reads the named relation slot.
	Relation(entity any, name string) (any, error)

	// SetRelation writes the named relation slot.
	SetRelation(entity any, name string, value any) error
}

// Table returns the table of m's role.
func Table(m Mapper) string { return m.Schema().Table }

// Database returns the connection name of m's role.
func Database(m Mapper) string { return m.Schema().Database }

// Roler is implemented by entities that know their own role.
type Roler interface {
	Role() string
}

// Registry resolves entities to roles and mappers. It is also the schema
// provider of the engine.
type Registry struct {
	schema  *ir.Schema
	mappers map[string]Mapper
	types   map[reflect.Type]Mapper
}

// NewRegistry creates a registry for schema with a RecordMapper per role.
func NewRegistry(schema *ir.Schema) *Registry {
	r := &Registry{
		schema:  schema,
		mappers: make(map[string]Mapper),
		types:   make(map[reflect.Type]Mapper),
	}
	for name, rs := range schema.Roles {
		r.mappers[name] = NewRecordMapper(rs)
	}
	return r
}

// Schema returns the compiled schema.
func (r *Registry) Schema() *ir.Schema {
	return r.schema
}

// Role returns the descriptor of a role.
func (r *Registry) Role(name string) (*ir.RoleSchema, bool) {
	return r.schema.Role(name)
}

// RegisterStruct maps the struct types of prototypes onto role. Several Go
// types may stand in for one role.
func (r *Registry) RegisterStruct(role string, prototypes ...any) error {
	rs, ok := r.schema.Role(role)
	if !ok {
		return fmt.Errorf("register %s: unknown role", role)
	}
	for _, p := range prototypes {
		m, err := NewStructMapper(rs, reflect.TypeOf(p))
		if err != nil {
			return fmt.Errorf("register %s: %w", role, err)
		}
		r.types[m.typ] = m
	}
	return nil
}

// RoleOf returns the role of entity.
func (r *Registry) RoleOf(entity any) (string, error) {
	m, err := r.For(entity)
	if err != nil {
		return "", err
	}
	return m.Schema().Role, nil
}

// For returns the mapper of entity.
func (r *Registry) For(entity any) (Mapper, error) {
	if entity == nil {
		return nil, ir.NewRoleResolutionError(entity, fmt.Errorf("nil entity"))
	}
	if m, ok := r.types[reflect.TypeOf(entity)]; ok {
		return m, nil
	}
	if rl, ok := entity.(Roler); ok {
		if m, ok := r.mappers[rl.Role()]; ok {
			return m, nil
		}
		return nil, ir.NewRoleResolutionError(entity, fmt.Errorf("unknown role %q", rl.Role()))
	}
	return nil, ir.NewRoleResolutionError(entity, fmt.Errorf("type not registered"))
}

// Mapper returns the record mapper of a role.
func (r *Registry) Mapper(role string) (Mapper, error) {
	m, ok := r.mappers[role]
	if !ok {
		return nil, &ir.WriteError{Code: ir.ErrCodeRoleResolution, Message: "unknown role", Role: role}
	}
	return m, nil
}

// Items returns the elements of a collection relation value. Any slice or
// array qualifies; nil yields no items. ok is false for non-collections.
func Items(v any) (items []any, ok bool) {
	if v == nil {
		return nil, true
	}
	if s, isAny := v.([]any); isAny {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Kind() == reflect.Slice && rv.IsNil() {
		return nil, true
	}
	items = make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

func changed(fields, snapshot map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range fields {
		cur, ok := snapshot[k]
		if ok && ir.SameValue(cur, v) {
			continue
		}
		out[k] = v
	}
	return out
}
