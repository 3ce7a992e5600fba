// Package daemon runs todoee in the background.
//
// The daemon:
//  1. Syncs with the remote every SyncInterval
//  2. Watches the local database files and, after writes settle, publishes
//     fresh counts and syncs if anything is waiting for upload
//  3. Checks reminders every ReminderInterval and announces each todo once
//  4. Optionally streams all of the above to feed clients
//
// The CLI and the daemon share the store only through SQLite's own file
// locking.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/todoee/todoee/internal/db"
	"github.com/todoee/todoee/internal/feed"
	"github.com/todoee/todoee/internal/logging"
	"github.com/todoee/todoee/internal/schema"
	todosync "github.com/todoee/todoee/internal/sync"
)

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often to run a full sync.
	SyncInterval time.Duration

	// SyncTimeout bounds a single sync.
	SyncTimeout time.Duration

	// DebounceInterval is how long database writes must settle before the
	// daemon reacts to them.
	DebounceInterval time.Duration

	// ReminderInterval is how often reminders are checked.
	ReminderInterval time.Duration

	// ReminderAdvance announces reminders this long before they are due.
	ReminderAdvance time.Duration

	// RemindersEnabled turns the reminder check on.
	RemindersEnabled bool

	// Logger for daemon activity.
	Logger *logrus.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     5 * time.Minute,
		SyncTimeout:      30 * time.Second,
		DebounceInterval: 2 * time.Second,
		ReminderInterval: time.Minute,
		ReminderAdvance:  15 * time.Minute,
		RemindersEnabled: true,
		Logger:           logging.Discard(),
	}
}

// Daemon ties the periodic jobs together.
type Daemon struct {
	db     *db.DB
	sync   todosync.Reconciler
	feed   *feed.Server
	config *Config
	log    *logrus.Entry

	watcher *fsnotify.Watcher

	changeMu   sync.Mutex
	lastChange time.Time

	// syncMu serializes sync passes from the ticker and the watcher.
	syncMu sync.Mutex

	remindedMu sync.Mutex
	reminded   map[string]bool

	now func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Daemon for database.
//
// reconciler may be nil when no remote is configured; server may be nil
// when no feed is served. Use Start to run.
func New(database *db.DB, reconciler todosync.Reconciler, server *feed.Server, config *Config) (*Daemon, error) {
	if database == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = logging.Discard()
	}
	if config.DebounceInterval <= 0 || config.SyncInterval <= 0 || config.ReminderInterval <= 0 {
		return nil, fmt.Errorf("daemon intervals must be positive")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		db:       database,
		sync:     reconciler,
		feed:     server,
		config:   config,
		log:      config.Logger.WithField("component", "daemon"),
		reminded: make(map[string]bool),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start runs an initial sync, starts the watcher and the periodic jobs,
// and blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.log.WithFields(logrus.Fields{
		"db":       d.db.Path(),
		"sync":     d.sync != nil,
		"interval": d.config.SyncInterval.String(),
	}).Info("starting daemon")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory: SQLite replaces and creates the -wal file.
	if err := watcher.Add(filepath.Dir(d.db.Path())); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch database directory: %w", err)
	}
	d.watcher = watcher

	if d.sync != nil {
		d.runSync()
	}

	d.wg.Add(4)
	go d.watchEvents()
	go d.processChanges()
	go d.periodicSync()
	go d.periodicReminders()

	select {
	case <-ctx.Done():
		d.log.Info("shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop shuts the daemon down and waits for its goroutines.
func (d *Daemon) Stop() error {
	d.cancel()
	var err error
	if d.watcher != nil {
		err = d.watcher.Close()
	}
	d.wg.Wait()
	d.log.Info("daemon stopped")
	return err
}

// isStoreFile reports whether name is the database file or its WAL.
func (d *Daemon) isStoreFile(name string) bool {
	base := filepath.Base(d.db.Path())
	file := filepath.Base(name)
	return file == base || file == base+"-wal"
}

func (d *Daemon) watchEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || !d.isStoreFile(event.Name) {
				continue
			}
			d.changeMu.Lock()
			d.lastChange = d.now()
			d.changeMu.Unlock()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.log.WithError(err).Warn("watcher error")
		}
	}
}

// processChanges reacts once writes have been quiet for DebounceInterval.
func (d *Daemon) processChanges() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if d.settled() {
				d.HandleChange(d.ctx)
			}
		}
	}
}

// settled consumes a pending change that is older than the debounce window.
func (d *Daemon) settled() bool {
	d.changeMu.Lock()
	defer d.changeMu.Unlock()

	if d.lastChange.IsZero() || d.now().Sub(d.lastChange) < d.config.DebounceInterval {
		return false
	}
	d.lastChange = time.Time{}
	return true
}

// HandleChange publishes current counts and syncs when local rows wait for
// upload. The writes a sync makes are seen as another change, which finds
// nothing pending and stops there.
func (d *Daemon) HandleChange(ctx context.Context) {
	stats, err := d.db.GetStats(ctx)
	if err != nil {
		d.log.WithError(err).Warn("failed to read stats")
		return
	}
	d.publish(feed.MessageTypeStats, feed.NewStatsData(stats))

	if d.sync != nil && stats.PendingUploads+stats.Tombstones > 0 {
		d.log.WithField("pending", stats.PendingUploads+stats.Tombstones).Debug("local changes, syncing")
		d.runSync()
	}
}

func (d *Daemon) periodicSync() {
	defer d.wg.Done()
	if d.sync == nil {
		return
	}

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.runSync()
		}
	}
}

// runSync performs one bounded sync pass and publishes the outcome.
func (d *Daemon) runSync() {
	if _, err := d.SyncNow(d.ctx); err != nil && !errors.Is(err, context.Canceled) {
		entry := d.log.WithError(err)
		if errors.Is(err, todosync.ErrOffline) {
			entry.Info("remote unreachable; changes stay pending")
		} else {
			entry.Error("sync failed")
		}
	}
}

// SyncNow runs one sync pass, publishes a sync event and fresh counts,
// and returns the result.
func (d *Daemon) SyncNow(ctx context.Context) (*todosync.Result, error) {
	if d.sync == nil {
		return nil, todosync.ErrNotConfigured
	}
	d.syncMu.Lock()
	defer d.syncMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, d.config.SyncTimeout)
	defer cancel()

	start := d.now()
	res, err := d.sync.Sync(ctx)

	data := feed.SyncData{DurationMS: d.now().Sub(start).Milliseconds()}
	if res != nil {
		data.Uploaded = res.UploadedCategories + res.UploadedTodos
		data.Downloaded = res.DownloadedCategories + res.DownloadedTodos
		data.Removed = res.Removed
		data.Conflicts = res.Conflicts
		data.Rejected = res.Rejected
		data.Deletes = res.DeletesPushed
	}
	if err != nil {
		data.Offline = errors.Is(err, todosync.ErrOffline)
		data.Error = err.Error()
	}
	d.publish(feed.MessageTypeSync, data)

	if stats, statsErr := d.db.GetStats(ctx); statsErr == nil {
		d.publish(feed.MessageTypeStats, feed.NewStatsData(stats))
	}
	return res, err
}

func (d *Daemon) periodicReminders() {
	defer d.wg.Done()
	if !d.config.RemindersEnabled {
		return
	}

	ticker := time.NewTicker(d.config.ReminderInterval)
	defer ticker.Stop()

	for {
		if _, err := d.CheckReminders(d.ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.log.WithError(err).Warn("reminder check failed")
		}
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// CheckReminders announces open todos whose reminder falls between one
// check interval ago and ReminderAdvance from now. Each todo is announced
// at most once per daemon lifetime.
func (d *Daemon) CheckReminders(ctx context.Context) ([]*schema.Todo, error) {
	now := d.now().UTC()
	due, err := d.db.ListTodosWithReminders(ctx, now.Add(-d.config.ReminderInterval), now.Add(d.config.ReminderAdvance))
	if err != nil {
		return nil, err
	}

	d.remindedMu.Lock()
	defer d.remindedMu.Unlock()

	var fresh []*schema.Todo
	for _, t := range due {
		if d.reminded[t.ID] {
			continue
		}
		d.reminded[t.ID] = true
		fresh = append(fresh, t)

		d.log.WithFields(logrus.Fields{
			"id":    t.ID,
			"title": t.Title,
			"at":    t.ReminderAt.Format(time.RFC3339),
		}).Warn(reminderText(t, now))
		d.publish(feed.MessageTypeReminder, feed.ReminderData{
			TodoID:     t.ID,
			Title:      t.Title,
			ReminderAt: *t.ReminderAt,
			DueDate:    t.DueDate,
		})
	}
	return fresh, nil
}

func reminderText(t *schema.Todo, now time.Time) string {
	var b strings.Builder
	b.WriteString("reminder: ")
	b.WriteString(t.Title)
	if t.DueDate != nil {
		if wait := t.DueDate.Sub(now).Round(time.Minute); wait > 0 {
			fmt.Fprintf(&b, " (due in %s)", wait)
		} else {
			b.WriteString(" (due now)")
		}
	}
	return b.String()
}

func (d *Daemon) publish(typ feed.MessageType, data any) {
	if d.feed != nil {
		d.feed.Publish(typ, data)
	}
}
