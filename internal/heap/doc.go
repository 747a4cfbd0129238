// Package heap implements the identity map of a persistence session.
//
// A Heap maps entity instances to Nodes. A Node holds the persisted
// snapshot of its entity and, while a unit of work runs, a State with the
// pending changes, the claim counter, the relation values seen by the run
// and the entity's pending write command.
//
// Status lifecycle within one run:
//
//	NEW     -> SCHEDULED_INSERT -> MANAGED
//	MANAGED -> SCHEDULED_UPDATE -> MANAGED
//	any     -> SCHEDULED_DELETE -> (detached)
//
// SyncState commits a run's changes into the snapshot; ResetState discards
// them after a rollback.
package heap
