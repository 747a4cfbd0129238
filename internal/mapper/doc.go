// Package mapper converts between entities and field maps.
//
// Two entity shapes are supported. Records are dynamic and carry their role
// by name; the harness and CLI use them. Struct types are registered per
// role with RegisterStruct and mapped by reflection over db and rel tags.
package mapper
