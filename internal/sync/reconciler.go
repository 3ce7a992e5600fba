package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/todoee/todoee/internal/db"
	"github.com/todoee/todoee/internal/remote"
	"github.com/todoee/todoee/internal/schema"
)

const (
	checkpointCategories = "categories"
	checkpointTodos      = "todos"
)

// reconciler implements the Reconciler interface.
type reconciler struct {
	db     *db.DB
	remote remote.Store
	log    *logrus.Entry
}

// New creates a Reconciler for database and store.
//
// If logger is nil, a logger writing warnings to stderr is used.
func New(database *db.DB, store remote.Store, logger *logrus.Logger) Reconciler {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &reconciler{
		db:     database,
		remote: store,
		log:    logger.WithField("component", "sync"),
	}
}

type step struct {
	name string
	run  func(ctx context.Context, res *Result) error
}

// Sync implements Reconciler.Sync.
func (r *reconciler) Sync(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{}

	steps := []step{
		{"upload categories", r.uploadCategories},
		{"upload todos", r.uploadTodos},
		{"download categories", r.downloadCategories},
		{"download todos", r.downloadTodos},
		{"push deletions", r.pushDeletions},
		{"sweep tombstones", r.sweepTombstones},
	}
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return res, classify(err)
		}
		if err := s.run(ctx, res); err != nil {
			err = classify(err)
			r.log.WithError(err).WithField("step", s.name).Warn("sync aborted")
			return res, fmt.Errorf("%s: %w", s.name, err)
		}
	}

	r.log.WithFields(logrus.Fields{
		"uploaded":   res.UploadedCategories + res.UploadedTodos,
		"downloaded": res.DownloadedCategories + res.DownloadedTodos,
		"removed":    res.Removed,
		"conflicts":  res.Conflicts,
		"rejected":   res.Rejected,
		"deletes":    res.DeletesPushed,
		"duration":   time.Since(start).String(),
	}).Info("sync complete")
	return res, nil
}

func (r *reconciler) uploadCategories(ctx context.Context, res *Result) error {
	pending, err := r.db.ListCategoriesNeedingUpload(ctx)
	if err != nil {
		return err
	}
	for _, c := range pending {
		applied, err := r.remote.UpsertCategory(ctx, c)
		if err != nil {
			return err
		}
		if !applied {
			if err := r.adoptCategory(ctx, c, res); err != nil {
				return err
			}
			continue
		}
		if _, err := r.db.MarkCategorySynced(ctx, c.ID, c.UpdatedAt); err != nil {
			return err
		}
		res.UploadedCategories++
		r.log.WithField("id", c.ID).Debug("uploaded category")
	}
	return nil
}

// adoptCategory replaces a rejected local category with the remote copy,
// unless the local row changed again while the upload was in flight.
func (r *reconciler) adoptCategory(ctx context.Context, sent *schema.Category, res *Result) error {
	row, err := r.remote.Category(ctx, sent.ID)
	if errors.Is(err, remote.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return r.db.Atomic(ctx, func(ctx context.Context, q *db.Queries) error {
		current, err := q.GetCategory(ctx, sent.ID)
		if errors.Is(err, db.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !current.UpdatedAt.Equal(sent.UpdatedAt) {
			return nil
		}
		switch {
		case row.Deleted:
			res.Removed++
			return q.EvictCategory(ctx, sent.ID)
		case row.Entity.SameContent(current):
			_, err := q.MarkCategorySynced(ctx, sent.ID, sent.UpdatedAt)
			return err
		}
		res.Rejected++
		r.log.WithField("id", sent.ID).Debug("remote kept newer category")
		return q.SaveSyncedCategory(ctx, row.Entity)
	})
}

func (r *reconciler) uploadTodos(ctx context.Context, res *Result) error {
	pending, err := r.db.ListTodosNeedingUpload(ctx)
	if err != nil {
		return err
	}
	for _, t := range pending {
		applied, err := r.remote.UpsertTodo(ctx, t)
		if err != nil {
			return err
		}
		if !applied {
			if err := r.adoptTodo(ctx, t, res); err != nil {
				return err
			}
			continue
		}
		if _, err := r.db.MarkTodoSynced(ctx, t.ID, t.UpdatedAt); err != nil {
			return err
		}
		res.UploadedTodos++
		r.log.WithField("id", t.ID).Debug("uploaded todo")
	}
	return nil
}

// adoptTodo is adoptCategory for todos.
func (r *reconciler) adoptTodo(ctx context.Context, sent *schema.Todo, res *Result) error {
	row, err := r.remote.Todo(ctx, sent.ID)
	if errors.Is(err, remote.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return r.db.Atomic(ctx, func(ctx context.Context, q *db.Queries) error {
		current, err := q.GetTodo(ctx, sent.ID)
		if errors.Is(err, db.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !current.UpdatedAt.Equal(sent.UpdatedAt) {
			return nil
		}
		switch {
		case row.Deleted:
			res.Removed++
			return q.EvictTodo(ctx, sent.ID)
		case row.Entity.SameContent(current):
			_, err := q.MarkTodoSynced(ctx, sent.ID, sent.UpdatedAt)
			return err
		}
		res.Rejected++
		r.log.WithField("id", sent.ID).Debug("remote kept newer todo")
		return q.SaveSyncedTodo(ctx, row.Entity)
	})
}

// action is what the download step does with one remote row.
type action int

const (
	actionNone action = iota
	actionSave
	actionEvict
	actionConflict
)

// local describes the local copy of a downloaded row.
type local struct {
	exists    bool
	status    schema.SyncStatus
	updatedAt time.Time
	same      bool
}

// decide applies last-write-wins to one remote row. A tie keeps the local
// row; if the tied rows differ, the local row is marked Conflict and the
// next upload resolves it against the remote guard. Tombstoned and stashed
// ids are filtered out before this point.
func decide(l local, remoteUpdated time.Time, deleted bool) action {
	switch {
	case deleted && !l.exists:
		return actionNone
	case deleted && l.status.NeedsUpload():
		return actionNone
	case deleted:
		return actionEvict
	case !l.exists:
		return actionSave
	case remoteUpdated.After(l.updatedAt):
		return actionSave
	case l.same || l.status.NeedsUpload():
		return actionNone
	}
	return actionConflict
}

// skip reports whether downloads must ignore id.
func skip(ctx context.Context, q *db.Queries, id string, stashed map[string]bool) (bool, error) {
	if stashed[id] {
		return true, nil
	}
	return q.HasTombstone(ctx, id)
}

func (r *reconciler) downloadCategories(ctx context.Context, res *Result) error {
	checkpoint, err := r.db.Checkpoint(ctx, checkpointCategories)
	if err != nil {
		return err
	}
	rows, err := r.remote.CategoriesSince(ctx, checkpoint)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	return r.db.Atomic(ctx, func(ctx context.Context, q *db.Queries) error {
		stashed, err := q.StashedIDs(ctx)
		if err != nil {
			return err
		}
		for _, row := range rows {
			c := row.Entity
			if ignore, err := skip(ctx, q, c.ID, stashed); err != nil {
				return err
			} else if ignore {
				continue
			}

			l := local{}
			current, err := q.GetSnapshot(ctx, schema.EntityCategory, c.ID)
			if err != nil {
				return err
			}
			if current != nil {
				l = local{exists: true, status: current.Category.SyncStatus, updatedAt: current.Category.UpdatedAt, same: current.Category.SameContent(c)}
			}

			switch decide(l, c.UpdatedAt, row.Deleted) {
			case actionSave:
				err = q.SaveSyncedCategory(ctx, c)
				res.DownloadedCategories++
			case actionEvict:
				err = q.EvictCategory(ctx, c.ID)
				res.Removed++
			case actionConflict:
				err = q.MarkCategoryConflict(ctx, c.ID)
				res.Conflicts++
			}
			if err != nil {
				return err
			}
		}
		return advanceCheckpoint(ctx, q, checkpointCategories, checkpoint, rows[len(rows)-1].SyncedAt)
	})
}

func (r *reconciler) downloadTodos(ctx context.Context, res *Result) error {
	checkpoint, err := r.db.Checkpoint(ctx, checkpointTodos)
	if err != nil {
		return err
	}
	rows, err := r.remote.TodosSince(ctx, checkpoint)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	return r.db.Atomic(ctx, func(ctx context.Context, q *db.Queries) error {
		stashed, err := q.StashedIDs(ctx)
		if err != nil {
			return err
		}
		for _, row := range rows {
			t := row.Entity
			if ignore, err := skip(ctx, q, t.ID, stashed); err != nil {
				return err
			} else if ignore {
				continue
			}

			l := local{}
			current, err := q.GetSnapshot(ctx, schema.EntityTodo, t.ID)
			if err != nil {
				return err
			}
			if current != nil {
				l = local{exists: true, status: current.Todo.SyncStatus, updatedAt: current.Todo.UpdatedAt, same: current.Todo.SameContent(t)}
			}

			switch decide(l, t.UpdatedAt, row.Deleted) {
			case actionSave:
				err = q.SaveSyncedTodo(ctx, t)
				res.DownloadedTodos++
			case actionEvict:
				err = q.EvictTodo(ctx, t.ID)
				res.Removed++
			case actionConflict:
				err = q.MarkTodoConflict(ctx, t.ID)
				res.Conflicts++
			}
			if err != nil {
				return err
			}
		}
		return advanceCheckpoint(ctx, q, checkpointTodos, checkpoint, rows[len(rows)-1].SyncedAt)
	})
}

func advanceCheckpoint(ctx context.Context, q *db.Queries, key, previous, next string) error {
	if next <= previous {
		return nil
	}
	return q.SetCheckpoint(ctx, key, next)
}

// pushDeletions sends unconfirmed tombstones, todos before categories.
func (r *reconciler) pushDeletions(ctx context.Context, res *Result) error {
	for _, kind := range []schema.EntityType{schema.EntityTodo, schema.EntityCategory} {
		tombstones, err := r.db.ListTombstones(ctx, kind, true)
		if err != nil {
			return err
		}
		for _, ts := range tombstones {
			if kind == schema.EntityTodo {
				err = r.remote.DeleteTodo(ctx, ts.EntityID, ts.DeletedAt)
			} else {
				err = r.remote.DeleteCategory(ctx, ts.EntityID, ts.DeletedAt)
			}
			if err != nil {
				return err
			}
			if err := r.db.ConfirmTombstone(ctx, ts.EntityID, ts.DeletedAt); err != nil {
				return err
			}
			res.DeletesPushed++
			r.log.WithFields(logrus.Fields{"id": ts.EntityID, "kind": kind}).Debug("pushed deletion")
		}
	}
	return nil
}

func (r *reconciler) sweepTombstones(ctx context.Context, res *Result) error {
	n, err := r.db.SweepConfirmedTombstones(ctx)
	if err != nil {
		return err
	}
	res.TombstonesSwept = int(n)
	return nil
}
