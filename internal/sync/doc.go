// Package sync reconciles the local store with a remote.
//
// A sync is one push-then-pull pass made of independent steps:
//
//  1. upload categories, then todos, that are Pending or Conflict
//  2. download categories, then todos, changed since the last checkpoint
//  3. push local deletions (todos first) as remote soft deletes
//  4. sweep tombstones the remote has acknowledged
//
// Categories move before todos so a todo never arrives ahead of the
// category it references. Cancellation is checked between steps, and every
// step can be re-run, so an interrupted sync only leaves rows Pending for
// the next attempt.
//
// Conflict policy is last-write-wins on updated_at, enforced on both
// sides. The remote only accepts an upload whose updated_at is strictly
// newer than the row it holds; a refused upload is replaced locally by the
// remote copy. A download replaces the local row only when the remote
// revision is strictly newer. A tie keeps the local row, and if the tied
// rows differ the local row is marked Conflict; its next upload is refused
// and the remote copy is adopted. On a tie the revision that reached the
// remote first therefore wins on every device.
//
// Deletions are remembered as tombstones. While a tombstone exists the
// download step ignores the id, so a row deleted here is never pulled back
// from a remote that has not yet seen the deletion. A tombstone is swept
// once the remote confirms the soft delete.
//
// Sync never writes to the operation log; downloaded changes cannot be
// undone.
//
// Example:
//
//	store, err := sync.Dial(ctx, os.Getenv("TODOEE_DATABASE_URL"))
//	if errors.Is(err, sync.ErrNotConfigured) {
//	    return nil // sync disabled
//	}
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	result, err := sync.New(database, store, logger).Sync(ctx)
//	if errors.Is(err, sync.ErrOffline) {
//	    fmt.Println("offline; changes will sync later")
//	}
package sync
