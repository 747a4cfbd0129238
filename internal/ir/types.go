package ir

import "sort"

// RelationKind names one of the closed set of relation strategies.
type RelationKind string

const (
	HasOne     RelationKind = "hasOne"
	HasMany    RelationKind = "hasMany"
	BelongsTo  RelationKind = "belongsTo"
	RefersTo   RelationKind = "refersTo"
	ManyToMany RelationKind = "manyToMany"
)

// Valid reports whether k is one of the supported relation kinds.
func (k RelationKind) Valid() bool {
	switch k {
	case HasOne, HasMany, BelongsTo, RefersTo, ManyToMany:
		return true
	}
	return false
}

// Owning reports whether the related side carries the foreign key and is
// owned by the declaring role (claims, cascade delete).
func (k RelationKind) Owning() bool {
	return k == HasOne || k == HasMany
}

// KeyGeneration describes how a role's primary key gets its value.
type KeyGeneration string

const (
	// GeneratedAuto means the database assigns the key on insert.
	GeneratedAuto KeyGeneration = "auto"

	// GeneratedUUID means a UUIDv7 is assigned before the insert is queued.
	GeneratedUUID KeyGeneration = "uuid"

	// GeneratedNone means the application always supplies the key.
	GeneratedNone KeyGeneration = "none"
)

// DefaultDatabase is the connection name used when a role does not name one.
const DefaultDatabase = "default"

// Schema is the compiled, immutable description of every role.
type Schema struct {
	Roles map[string]*RoleSchema `json:"roles"`
}

// Role returns the schema for a role name.
func (s *Schema) Role(name string) (*RoleSchema, bool) {
	if s == nil {
		return nil, false
	}
	r, ok := s.Roles[name]
	return r, ok
}

// RoleNames returns role names in sorted order.
func (s *Schema) RoleNames() []string {
	names := make([]string, 0, len(s.Roles))
	for name := range s.Roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RoleSchema describes one logical entity type.
type RoleSchema struct {
	Role       string           `json:"role"`
	Database   string           `json:"database"`
	Table      string           `json:"table"`
	PrimaryKey string           `json:"primary_key"`
	Generated  KeyGeneration    `json:"generated"`
	Fields     []Field          `json:"fields"`
	Indexes    []string         `json:"indexes,omitempty"`
	Relations  []RelationSchema `json:"relations,omitempty"`
}

// Field maps an entity field to its storage column.
type Field struct {
	Name   string `json:"name"`
	Column string `json:"column"`
}

// HasField reports whether the role declares the named field.
func (r *RoleSchema) HasField(name string) bool {
	for _, f := range r.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// FieldNames returns field names in declaration order.
func (r *RoleSchema) FieldNames() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}
	return names
}

// Columns returns the field to column mapping.
func (r *RoleSchema) Columns() map[string]string {
	cols := make(map[string]string, len(r.Fields))
	for _, f := range r.Fields {
		cols[f.Name] = f.Column
	}
	return cols
}

// Relation returns the named relation descriptor.
func (r *RoleSchema) Relation(name string) (RelationSchema, bool) {
	for _, rel := range r.Relations {
		if rel.Name == name {
			return rel, true
		}
	}
	return RelationSchema{}, false
}

// IndexKeys returns the keys the heap indexes this role by: the primary key
// followed by the declared secondary indexes.
func (r *RoleSchema) IndexKeys() []string {
	keys := make([]string, 0, len(r.Indexes)+1)
	keys = append(keys, r.PrimaryKey)
	for _, k := range r.Indexes {
		if k != r.PrimaryKey {
			keys = append(keys, k)
		}
	}
	return keys
}

// RelationSchema describes one relation of a role. InnerKey is a field of
// the declaring role and OuterKey a field of the target role.
type RelationSchema struct {
	Name     string        `json:"name"`
	Kind     RelationKind  `json:"kind"`
	Target   string        `json:"target"`
	InnerKey string        `json:"inner_key"`
	OuterKey string        `json:"outer_key"`
	Cascade  bool          `json:"cascade"`
	Nullable bool          `json:"nullable"`
	MorphKey string        `json:"morph_key,omitempty"`
	Through  *ThroughTable `json:"through,omitempty"`
}

// ThroughTable is the pivot table of a many-to-many relation. InnerKey
// holds the owner's key and OuterKey the target's key.
type ThroughTable struct {
	Database string `json:"database"`
	Table    string `json:"table"`
	InnerKey string `json:"inner_key"`
	OuterKey string `json:"outer_key"`
}
