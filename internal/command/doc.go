// Package command implements the write command graph.
//
// Atomic commands (Insert, Update, Delete) write one statement through a
// Writer obtained from Connections. Branch commands (Nil, Sequence,
// Condition, Split) implement the same Command contract by delegating to
// their members, so a scheduler can treat a whole subtree as one command.
//
// Context channel: a Carrier waits for named values before it is ready and
// forwards the values it produces to other commands. Forwarding is the only
// mechanism used to resolve foreign keys between commands whose execution
// order differs from the order their entities were persisted in.
//
// Lifecycle calls return Events instead of invoking hooks. Executed events
// carry the Deliveries the consumer applies; Completed events carry the
// values generated by the database.
package command
