package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/todoee/todoee/internal/daemon"
	"github.com/todoee/todoee/internal/feed"
	"github.com/todoee/todoee/internal/logging"
	todosync "github.com/todoee/todoee/internal/sync"
)

func newDaemonCmd(a *app) *cobra.Command {
	var (
		listen  string
		console bool
	)
	cmd := &cobra.Command{
		Use:     "daemon",
		GroupID: "sync",
		Short:   "Run in the foreground: sync periodically and announce reminders",
		Long: `The daemon syncs every sync.interval, syncs shortly after local changes,
and logs reminders notifications.advance_minutes before they are due.

With --listen it also serves a live event feed:

  GET /ws          websocket stream of sync, reminder and stats events
  GET /health      liveness
  GET /api/stats   store counts

Logs go to daemon.log in the config directory unless --console is set.
The CLI and the daemon may run at the same time; they share the store
through SQLite's file locking only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := logging.Options{
				Level:   a.cfg.Log.Level,
				Verbose: a.verbose,
				JSON:    true,
				Out:     cmd.ErrOrStderr(),
			}
			if !console {
				opts.File = a.cfg.LogPath()
			}
			logger, err := logging.New(opts)
			if err != nil {
				return err
			}
			defer logging.Close(logger)

			var reconciler todosync.Reconciler
			if url := a.cfg.RemoteURL(); url != "" {
				r := todosync.NewDialing(a.db, url, logger)
				defer r.Close()
				reconciler = r
			} else {
				logger.Info("no remote configured; sync disabled")
			}

			var server *feed.Server
			if listen != "" {
				server = feed.NewServer(feed.Config{Addr: listen, Stats: a.db.GetStats, Logger: logger})
				if err := server.Start(); err != nil {
					return err
				}
				defer server.Stop()
				cmd.Printf("Feed listening on http://%s\n", server.Addr())
			}

			config := daemon.DefaultConfig()
			config.SyncInterval = a.cfg.Sync.Interval
			config.SyncTimeout = a.cfg.Sync.Timeout
			config.RemindersEnabled = a.cfg.Notifications.Enabled
			config.ReminderAdvance = time.Duration(a.cfg.Notifications.AdvanceMinutes) * time.Minute
			config.Logger = logger

			d, err := daemon.New(a.db, reconciler, server, config)
			if err != nil {
				return err
			}
			cmd.Printf("Daemon running (store %s); press Ctrl-C to stop\n", a.db.Path())
			return d.Start(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", `serve the event feed on this address, e.g. "127.0.0.1:7420"`)
	cmd.Flags().BoolVar(&console, "console", false, "log to stderr instead of daemon.log")
	return cmd
}
