// Package relation decides what a role's relations must write and in which
// order.
//
// Each relation kind has one resolver, selected when the Table is built.
// For an owner entity the unit of work asks every resolver to Prepare
// (classify the relation value) and then to Queue (emit commands). Keys
// move between commands in one of two ways. A key the builder already
// knows is assigned to the dependent command and its node. A key that is
// only produced when a command executes is routed: the dependent waits on
// it and the producer forwards it through its context channel.
//
// Resolvers:
//
//	hasOne, hasMany  store children after the owner, claim them, and
//	                 delete or unlink children that left the relation
//	belongsTo        store the parent before the owner and copy its key
//	refersTo         copy the key of an entity stored elsewhere, splitting
//	                 the owner's insert when the key comes later
//	manyToMany       insert and delete pivot rows
package relation
