package mapper

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/persist/internal/ir"
)

// StructMapper maps pointers to structs. Fields carry `db:"name"` tags
// naming the schema field; relation slots carry `rel:"name"` tags.
//
// Pointer fields hold nullable values. A zero primary key reads as nil so
// the database can generate it.
type StructMapper struct {
	schema    *ir.RoleSchema
	typ       reflect.Type
	fields    map[string]int
	relations map[string]int
}

// NewStructMapper builds the mapper of rs for typ, which must be a pointer
// to a struct declaring every schema field.
func NewStructMapper(rs *ir.RoleSchema, typ reflect.Type) (*StructMapper, error) {
	if typ == nil || typ.Kind() != reflect.Pointer || typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("%v is not a pointer to struct", typ)
	}
	m := &StructMapper{
		schema:    rs,
		typ:       typ,
		fields:    make(map[string]int),
		relations: make(map[string]int),
	}
	st := typ.Elem()
	for i := 0; i < st.NumField(); i++ {
		sf := st.Field(i)
		if !sf.IsExported() {
			continue
		}
		if name := tagName(sf.Tag.Get("db")); name != "" {
			m.fields[name] = i
		}
		if name := tagName(sf.Tag.Get("rel")); name != "" {
			m.relations[name] = i
		}
	}
	for _, f := range rs.Fields {
		if _, ok := m.fields[f.Name]; !ok {
			return nil, fmt.Errorf("%v has no field tagged db:%q", typ, f.Name)
		}
	}
	for name := range m.relations {
		if _, ok := rs.Relation(name); !ok {
			return nil, fmt.Errorf("%v tags unknown relation %q", typ, name)
		}
	}
	return m, nil
}

func tagName(tag string) string {
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return ""
	}
	return name
}

// Schema implements Mapper.
func (m *StructMapper) Schema() *ir.RoleSchema { return m.schema }

func (m *StructMapper) value(entity any) (reflect.Value, error) {
	rv := reflect.ValueOf(entity)
	if rv.Type() != m.typ {
		return reflect.Value{}, ir.NewRoleResolutionError(entity, fmt.Errorf("%s mapper expects %v", m.schema.Role, m.typ))
	}
	if rv.IsNil() {
		return reflect.Value{}, ir.NewRoleResolutionError(entity, fmt.Errorf("nil %v", m.typ))
	}
	return rv.Elem(), nil
}

// Extract implements Mapper.
func (m *StructMapper) Extract(entity any) (map[string]any, error) {
	sv, err := m.value(entity)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(m.schema.Fields))
	for _, f := range m.schema.Fields {
		fv := sv.Field(m.fields[f.Name])
		var v any
		switch {
		case fv.Kind() == reflect.Pointer:
			if !fv.IsNil() {
				v = fv.Elem().Interface()
			}
		case f.Name == m.schema.PrimaryKey && fv.IsZero():
			v = nil
		default:
			v = fv.Interface()
		}
		out[f.Name] = v
	}
	return out, nil
}

// ExtractChanges implements Mapper.
func (m *StructMapper) ExtractChanges(entity any, snapshot map[string]any) (map[string]any, error) {
	fields, err := m.Extract(entity)
	if err != nil {
		return nil, err
	}
	return changed(fields, snapshot), nil
}

// Hydrate implements Mapper.
func (m *StructMapper) Hydrate(entity any, fields map[string]any) error {
	sv, err := m.value(entity)
	if err != nil {
		return err
	}
	for name, v := range fields {
		idx, ok := m.fields[name]
		if !ok {
			continue
		}
		if err := assign(sv.Field(idx), v); err != nil {
			return fmt.Errorf("hydrate %s.%s: %w", m.schema.Role, name, err)
		}
	}
	return nil
}

// Relation implements Mapper.
func (m *StructMapper) Relation(entity any, name string) (any, error) {
	sv, err := m.value(entity)
	if err != nil {
		return nil, err
	}
	idx, ok := m.relations[name]
	if !ok {
		return nil, m.untagged(name)
	}
	fv := sv.Field(idx)
	switch fv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
		if fv.IsNil() {
			return nil, nil
		}
	}
	return fv.Interface(), nil
}

// SetRelation implements Mapper.
func (m *StructMapper) SetRelation(entity any, name string, value any) error {
	sv, err := m.value(entity)
	if err != nil {
		return err
	}
	idx, ok := m.relations[name]
	if !ok {
		return m.untagged(name)
	}
	fv := sv.Field(idx)
	if fv.Kind() == reflect.Slice {
		items, isColl := Items(value)
		if !isColl {
			return fmt.Errorf("relation %q expects a collection, got %T", name, value)
		}
		out := reflect.MakeSlice(fv.Type(), 0, len(items))
		for _, it := range items {
			iv := reflect.ValueOf(it)
			if !iv.Type().AssignableTo(fv.Type().Elem()) {
				return fmt.Errorf("relation %q: cannot hold %T", name, it)
			}
			out = reflect.Append(out, iv)
		}
		fv.Set(out)
		return nil
	}
	return assign(fv, value)
}

// untagged handles a relation the struct has no slot for: one declared by
// the role reads as never loaded, anything else is an error.
func (m *StructMapper) untagged(name string) error {
	if _, ok := m.schema.Relation(name); ok {
		return nil
	}
	return fmt.Errorf("%v has no relation %q", m.typ, name)
}

// assign stores v into fv, converting numeric widths and allocating
// pointers for nullable fields.
func assign(fv reflect.Value, v any) error {
	if v == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(fv.Type()) {
		fv.Set(rv)
		return nil
	}
	if fv.Kind() == reflect.Pointer {
		elem := reflect.New(fv.Type().Elem())
		if err := assign(elem.Elem(), v); err != nil {
			return err
		}
		fv.Set(elem)
		return nil
	}
	if rv.Type().ConvertibleTo(fv.Type()) && convertible(rv.Kind(), fv.Kind()) {
		fv.Set(rv.Convert(fv.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %v", v, fv.Type())
}

// convertible rejects the conversions reflect allows but that lose meaning,
// such as int to string.
func convertible(from, to reflect.Kind) bool {
	numeric := func(k reflect.Kind) bool {
		return k >= reflect.Int && k <= reflect.Float64
	}
	switch {
	case numeric(from) && numeric(to):
		return true
	case from == reflect.Slice && to == reflect.String:
		return true
	case from == to:
		return true
	}
	return false
}
