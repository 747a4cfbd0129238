// Package engine implements the unit of work: the write-path scheduler.
//
// Callers queue entities with Persist and Delete, then call Run.
//
// ARCHITECTURE:
//
// Build:
// Each queued operation becomes one root command. The builder asks every
// relation resolver of the entity's role to prepare and queue its
// commands: dependency relations are placed before the entity's own
// write, dependent relations after it. Nodes already visited in the run
// are not visited again. Relations that cannot be resolved yet are
// retried once every queued entity has been visited; any still
// unresolved make the run fail with an ordering failure.
//
// Execute:
// The scheduler makes passes over the roots. A pass executes every ready
// root in order and applies the events it returns: executed values go
// into the owning node, forwarded values go into the waiting commands. A
// pass that executes nothing while roots remain is an ordering failure
// naming the stuck roots. Transactions are opened lazily, one per
// database.
//
// Finish:
// On success transactions commit in the order they were opened, roots
// complete, and every touched node is synchronized: deleted unclaimed
// entities leave the heap, all others are re-hydrated and re-indexed. On
// any failure transactions roll back in reverse order, roots roll back in
// reverse order, and every touched node is reset.
//
// Runs are single-threaded and synchronous. No two runs may share a heap
// at the same time.
package engine
