package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/todoee/todoee/internal/db"
	"github.com/todoee/todoee/internal/feed"
	"github.com/todoee/todoee/internal/logging"
	"github.com/todoee/todoee/internal/schema"
	todosync "github.com/todoee/todoee/internal/sync"
	"github.com/todoee/todoee/internal/tasks"
)

var base = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

// stubReconciler returns canned results and counts calls.
type stubReconciler struct {
	calls  int
	result *todosync.Result
	err    error
}

func (s *stubReconciler) Sync(ctx context.Context) (*todosync.Result, error) {
	s.calls++
	return s.result, s.err
}

func setupDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	database.SetClock(func() time.Time { return base })
	return database
}

func testConfig() *Config {
	config := DefaultConfig()
	config.Logger = logging.Discard()
	return config
}

func newDaemon(t *testing.T, database *db.DB, r todosync.Reconciler, server *feed.Server) *Daemon {
	t.Helper()
	d, err := New(database, r, server, testConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	d.now = func() time.Time { return base }
	return d
}

func at(d time.Duration) *time.Time {
	ts := base.Add(d)
	return &ts
}

func TestNew(t *testing.T) {
	database := setupDB(t)

	if _, err := New(nil, nil, nil, nil); err == nil {
		t.Error("expected error for nil database")
	}

	bad := testConfig()
	bad.DebounceInterval = 0
	if _, err := New(database, nil, nil, bad); err == nil {
		t.Error("expected error for zero debounce interval")
	}

	d, err := New(database, nil, nil, nil)
	if err != nil {
		t.Fatalf("New with defaults failed: %v", err)
	}
	if d.config.SyncInterval != 5*time.Minute {
		t.Errorf("unexpected default sync interval %v", d.config.SyncInterval)
	}
	if d.config.Logger == logrus.StandardLogger() {
		t.Error("default config must not log through the package-global logger")
	}

	noLogger := testConfig()
	noLogger.Logger = nil
	d, err = New(database, nil, nil, noLogger)
	if err != nil {
		t.Fatalf("New without logger failed: %v", err)
	}
	if d.config.Logger == nil || d.config.Logger == logrus.StandardLogger() {
		t.Error("nil logger must fall back to a private logger")
	}
}

func TestCheckReminders(t *testing.T) {
	ctx := context.Background()
	database := setupDB(t)
	svc := tasks.New(database)

	add := func(title string, reminder *time.Time) *schema.Todo {
		t.Helper()
		todo, err := svc.AddTodo(ctx, &schema.Todo{Title: title, ReminderAt: reminder})
		if err != nil {
			t.Fatalf("AddTodo failed: %v", err)
		}
		return todo
	}

	soon := add("Call dentist", at(10*time.Minute))
	add("Too late", at(-5*time.Minute))
	add("Too early", at(2*time.Hour))
	add("No reminder", nil)
	done := add("Finished", at(5*time.Minute))
	if _, err := svc.CompleteTodo(ctx, done.ID); err != nil {
		t.Fatalf("CompleteTodo failed: %v", err)
	}

	d := newDaemon(t, database, nil, nil)

	fired, err := d.CheckReminders(ctx)
	if err != nil {
		t.Fatalf("CheckReminders failed: %v", err)
	}
	if len(fired) != 1 || fired[0].ID != soon.ID {
		t.Fatalf("expected only %q to fire, got %v", soon.Title, fired)
	}

	fired, err = d.CheckReminders(ctx)
	if err != nil {
		t.Fatalf("CheckReminders failed: %v", err)
	}
	if len(fired) != 0 {
		t.Errorf("reminder fired twice: %v", fired)
	}
}

func TestReminderText(t *testing.T) {
	todo := &schema.Todo{Title: "Stand-up", DueDate: at(30 * time.Minute)}
	if got := reminderText(todo, base); got != "reminder: Stand-up (due in 30m0s)" {
		t.Errorf("unexpected text %q", got)
	}
	todo.DueDate = at(-time.Minute)
	if got := reminderText(todo, base); got != "reminder: Stand-up (due now)" {
		t.Errorf("unexpected text %q", got)
	}
	todo.DueDate = nil
	if got := reminderText(todo, base); got != "reminder: Stand-up" {
		t.Errorf("unexpected text %q", got)
	}
}

func TestSyncNow_NotConfigured(t *testing.T) {
	d := newDaemon(t, setupDB(t), nil, nil)
	if _, err := d.SyncNow(context.Background()); !errors.Is(err, todosync.ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSyncNow_PublishesResult(t *testing.T) {
	database := setupDB(t)
	server := feed.NewServer(feed.Config{Addr: "127.0.0.1:0", Stats: database.GetStats})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start feed: %v", err)
	}
	t.Cleanup(func() { server.Stop() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	readMessage(t, ctx, conn) // greeting

	stub := &stubReconciler{result: &todosync.Result{UploadedTodos: 2, DownloadedCategories: 1, Conflicts: 1}}
	d := newDaemon(t, database, stub, server)

	res, err := d.SyncNow(ctx)
	if err != nil {
		t.Fatalf("SyncNow failed: %v", err)
	}
	if res.UploadedTodos != 2 || stub.calls != 1 {
		t.Errorf("unexpected result %+v after %d calls", res, stub.calls)
	}

	msg := readMessage(t, ctx, conn)
	if msg.Type != feed.MessageTypeSync {
		t.Fatalf("expected sync event, got %s", msg.Type)
	}
	var data feed.SyncData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal sync data: %v", err)
	}
	if data.Uploaded != 2 || data.Downloaded != 1 || data.Conflicts != 1 || data.Offline {
		t.Errorf("unexpected sync data %+v", data)
	}

	if msg := readMessage(t, ctx, conn); msg.Type != feed.MessageTypeStats {
		t.Errorf("expected stats after sync, got %s", msg.Type)
	}
}

func TestSyncNow_Offline(t *testing.T) {
	stub := &stubReconciler{result: &todosync.Result{}, err: todosync.ErrOffline}
	d := newDaemon(t, setupDB(t), stub, nil)

	if _, err := d.SyncNow(context.Background()); !errors.Is(err, todosync.ErrOffline) {
		t.Errorf("expected ErrOffline, got %v", err)
	}
}

func TestHandleChange_SyncsOnlyWhenPending(t *testing.T) {
	ctx := context.Background()
	database := setupDB(t)
	stub := &stubReconciler{result: &todosync.Result{}}
	d := newDaemon(t, database, stub, nil)

	d.HandleChange(ctx)
	if stub.calls != 0 {
		t.Fatalf("empty store should not sync, got %d calls", stub.calls)
	}

	if _, err := tasks.New(database).AddTodo(ctx, &schema.Todo{Title: "Buy milk"}); err != nil {
		t.Fatalf("AddTodo failed: %v", err)
	}
	d.HandleChange(ctx)
	if stub.calls != 1 {
		t.Errorf("pending todo should trigger one sync, got %d calls", stub.calls)
	}
}

func TestSettled(t *testing.T) {
	d := newDaemon(t, setupDB(t), nil, nil)

	if d.settled() {
		t.Fatal("no change recorded yet")
	}
	d.lastChange = base.Add(-time.Second)
	if d.settled() {
		t.Fatal("change inside the debounce window should wait")
	}
	d.lastChange = base.Add(-d.config.DebounceInterval)
	if !d.settled() {
		t.Fatal("change outside the debounce window should fire")
	}
	if d.settled() {
		t.Error("a settled change fires only once")
	}
}

func TestIsStoreFile(t *testing.T) {
	database := setupDB(t)
	d := newDaemon(t, database, nil, nil)
	dir := filepath.Dir(database.Path())

	tests := []struct {
		name string
		want bool
	}{
		{database.Path(), true},
		{database.Path() + "-wal", true},
		{database.Path() + "-shm", false},
		{filepath.Join(dir, "config.toml"), false},
		{filepath.Join(dir, "daemon.log"), false},
	}
	for _, tt := range tests {
		if got := d.isStoreFile(tt.name); got != tt.want {
			t.Errorf("isStoreFile(%s) = %v, want %v", filepath.Base(tt.name), got, tt.want)
		}
	}
}

func TestStartStop(t *testing.T) {
	database := setupDB(t)
	d := newDaemon(t, database, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) feed.Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg feed.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}
