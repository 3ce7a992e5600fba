package sync

import (
	"context"
	"fmt"
	"strings"
)

// Reconciler merges the local store with a remote.
type Reconciler interface {
	// Sync runs one full push-then-pull pass.
	//
	// On error the returned Result still reports the work finished before
	// the failing step. Transport failures wrap ErrOffline; entities that
	// were not confirmed stay Pending and are retried by the next call.
	//
	// Calling Sync twice with no changes on either side performs no writes
	// on the second call.
	//
	// Example:
	//   result, err := reconciler.Sync(ctx)
	Sync(ctx context.Context) (*Result, error)
}

// Result counts what a sync changed.
type Result struct {
	UploadedCategories   int
	UploadedTodos        int
	DownloadedCategories int
	DownloadedTodos      int

	// Removed counts local rows dropped because the remote deleted them.
	Removed int

	// Conflicts counts local rows marked Conflict because the remote held
	// different content that was not newer.
	Conflicts int

	// Rejected counts uploads the remote refused because it already held a
	// revision at least as new. The remote copy replaces the local row.
	Rejected int

	// DeletesPushed counts tombstones sent to the remote.
	DeletesPushed int

	// TombstonesSwept counts acknowledged tombstones dropped locally.
	TombstonesSwept int
}

// Writes returns the total number of local or remote writes.
func (r *Result) Writes() int {
	return r.UploadedCategories + r.UploadedTodos +
		r.DownloadedCategories + r.DownloadedTodos +
		r.Removed + r.Conflicts + r.Rejected + r.DeletesPushed + r.TombstonesSwept
}

// String summarizes the result for humans.
func (r *Result) String() string {
	if r.Writes() == 0 {
		return "already up to date"
	}
	var parts []string
	add := func(n int, what string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, what))
		}
	}
	add(r.UploadedCategories+r.UploadedTodos, "uploaded")
	add(r.DownloadedCategories+r.DownloadedTodos, "downloaded")
	add(r.Removed, "removed")
	add(r.DeletesPushed, "deletions pushed")
	add(r.Conflicts, "conflicts")
	add(r.Rejected, "replaced by newer remote copies")
	add(r.TombstonesSwept, "tombstones cleared")
	return strings.Join(parts, ", ")
}
