package sync

import (
	"context"
	"errors"
	gosync "sync"

	"github.com/sirupsen/logrus"

	"github.com/todoee/todoee/internal/db"
	"github.com/todoee/todoee/internal/remote"
)

// DialingReconciler connects to the remote on first use and again after a
// transport failure, so a long-running process can start while offline.
type DialingReconciler struct {
	db     *db.DB
	url    string
	logger *logrus.Logger

	mu    gosync.Mutex
	store *remote.SQLStore
}

// NewDialing returns a Reconciler for the remote at url that dials lazily.
// Close releases the connection.
func NewDialing(database *db.DB, url string, logger *logrus.Logger) *DialingReconciler {
	return &DialingReconciler{db: database, url: url, logger: logger}
}

// Sync implements Reconciler.
func (d *DialingReconciler) Sync(ctx context.Context) (*Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.store == nil {
		store, err := Dial(ctx, d.url)
		if err != nil {
			return &Result{}, err
		}
		d.store = store
	}

	res, err := New(d.db, d.store, d.logger).Sync(ctx)
	if errors.Is(err, ErrOffline) {
		_ = d.store.Close()
		d.store = nil
	}
	return res, err
}

// Close closes the remote connection if one is open.
func (d *DialingReconciler) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.store == nil {
		return nil
	}
	err := d.store.Close()
	d.store = nil
	return err
}
