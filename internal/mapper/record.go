package mapper

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/persist/internal/ir"
)

// Record is a dynamic entity: named fields plus named relation slots.
// Collection relations hold []any.
type Record struct {
	role      string
	fields    map[string]any
	relations map[string]any
}

// NewRecord creates a record of role with initial field values.
func NewRecord(role string, fields map[string]any) *Record {
	r := &Record{role: role, fields: make(map[string]any), relations: make(map[string]any)}
	maps.Copy(r.fields, fields)
	return r
}

// Role implements Roler.
func (r *Record) Role() string { return r.role }

// Get returns a field value.
func (r *Record) Get(field string) any { return r.fields[field] }

// Set assigns a field value.
func (r *Record) Set(field string, value any) { r.fields[field] = value }

// Fields returns a copy of all field values.
func (r *Record) Fields() map[string]any { return maps.Clone(r.fields) }

// Related returns a relation slot.
func (r *Record) Related(name string) any { return r.relations[name] }

// SetRelated assigns a relation slot. Collections are copied.
func (r *Record) SetRelated(name string, value any) {
	if items, ok := value.([]any); ok {
		value = slices.Clone(items)
	}
	r.relations[name] = value
}

// Add appends items to a collection relation.
func (r *Record) Add(name string, items ...any) {
	cur, _ := r.relations[name].([]any)
	r.relations[name] = append(slices.Clone(cur), items...)
}

// Remove drops item from a collection relation by identity.
func (r *Record) Remove(name string, item any) {
	cur, _ := r.relations[name].([]any)
	out := make([]any, 0, len(cur))
	for _, c := range cur {
		if c != item {
			out = append(out, c)
		}
	}
	r.relations[name] = out
}

func (r *Record) String() string {
	return fmt.Sprintf("%s%v", r.role, r.fields)
}

// RecordMapper maps Records of one role.
type RecordMapper struct {
	schema *ir.RoleSchema
}

// NewRecordMapper creates the mapper of rs.
func NewRecordMapper(rs *ir.RoleSchema) *RecordMapper {
	return &RecordMapper{schema: rs}
}

// Schema implements Mapper.
func (m *RecordMapper) Schema() *ir.RoleSchema { return m.schema }

func (m *RecordMapper) record(entity any) (*Record, error) {
	rec, ok := entity.(*Record)
	if !ok {
		return nil, ir.NewRoleResolutionError(entity, fmt.Errorf("%s mapper expects *Record", m.schema.Role))
	}
	return rec, nil
}

// Extract implements Mapper.
func (m *RecordMapper) Extract(entity any) (map[string]any, error) {
	rec, err := m.record(entity)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(m.schema.Fields))
	for _, f := range m.schema.Fields {
		out[f.Name] = rec.fields[f.Name]
	}
	return out, nil
}

// ExtractChanges implements Mapper.
func (m *RecordMapper) ExtractChanges(entity any, snapshot map[string]any) (map[string]any, error) {
	fields, err := m.Extract(entity)
	if err != nil {
		return nil, err
	}
	return changed(fields, snapshot), nil
}

// Hydrate implements Mapper.
func (m *RecordMapper) Hydrate(entity any, fields map[string]any) error {
	rec, err := m.record(entity)
	if err != nil {
		return err
	}
	for k, v := range fields {
		if m.schema.HasField(k) {
			rec.fields[k] = v
		}
	}
	return nil
}

// Relation implements Mapper.
func (m *RecordMapper) Relation(entity any, name string) (any, error) {
	rec, err := m.record(entity)
	if err != nil {
		return nil, err
	}
	if _, ok := m.schema.Relation(name); !ok {
		return nil, fmt.Errorf("%s has no relation %q", m.schema.Role, name)
	}
	return rec.relations[name], nil
}

// SetRelation implements Mapper.
func (m *RecordMapper) SetRelation(entity any, name string, value any) error {
	rec, err := m.record(entity)
	if err != nil {
		return err
	}
	if _, ok := m.schema.Relation(name); !ok {
		return fmt.Errorf("%s has no relation %q", m.schema.Role, name)
	}
	rec.SetRelated(name, value)
	return nil
}
