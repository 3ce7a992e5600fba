// Package schema defines the entities and history records shared by the
// local store, the undo engine, the stash and the sync reconciler.
//
// # Entities
//
// Todo and Category are current-state records. Each carries a stable id,
// an UpdatedAt revision advanced on every local mutation, and a SyncStatus:
//
//   - pending  - changed locally, not yet confirmed by the remote
//   - synced   - confirmed by the remote store
//   - conflict - tied with a differing remote copy; re-uploaded on next sync
//
// # Snapshots
//
// A Snapshot is a tagged envelope around exactly one entity. It serializes
// with an explicit kind discriminant so a stored snapshot can never decode
// into the wrong entity shape:
//
//	{
//	  "kind": "todo",
//	  "todo": {"id": "...", "title": "Buy milk", ...}
//	}
//
// # Operations
//
// An Operation is one entry of the append-only history. The nullability of
// PreviousState and NewState is fixed by the operation type:
//
//	create              previous=nil  new=set
//	delete              previous=set  new=nil
//	update/complete/
//	uncomplete          previous=set  new=set
//	stash               previous=set  new=nil
//	unstash             previous=nil  new=set
//
// Undone is the only field that changes after an entry is written.
package schema
