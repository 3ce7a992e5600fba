package remote

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// dialect holds the SQL that differs between remote backends.
type dialect struct {
	name   string
	driver string

	// now is an SQL expression for the remote clock, rendered as a
	// fixed-width string so it sorts in time order.
	now string

	schema []string

	// upsertTail renders the conflict clause updating cols of table. The
	// update only applies when the incoming updated_at is strictly newer.
	upsertTail func(table string, cols []string) string
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS categories (
		id VARCHAR(64) PRIMARY KEY,
		name TEXT NOT NULL,
		color TEXT,
		is_ai_generated INTEGER NOT NULL DEFAULT 0,
		created_at VARCHAR(40) NOT NULL,
		updated_at VARCHAR(40) NOT NULL,
		deleted_at VARCHAR(40),
		synced_at VARCHAR(40) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_categories_synced_at ON categories(synced_at)`,
	`CREATE TABLE IF NOT EXISTS todos (
		id VARCHAR(64) PRIMARY KEY,
		category_id VARCHAR(64),
		title TEXT NOT NULL,
		description TEXT,
		due_date VARCHAR(40),
		reminder_at VARCHAR(40),
		priority INTEGER NOT NULL DEFAULT 2,
		is_completed INTEGER NOT NULL DEFAULT 0,
		completed_at VARCHAR(40),
		ai_metadata TEXT,
		created_at VARCHAR(40) NOT NULL,
		updated_at VARCHAR(40) NOT NULL,
		deleted_at VARCHAR(40),
		synced_at VARCHAR(40) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_todos_synced_at ON todos(synced_at)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS categories (
		id VARCHAR(64) PRIMARY KEY,
		name TEXT NOT NULL,
		color TEXT,
		is_ai_generated TINYINT NOT NULL DEFAULT 0,
		created_at VARCHAR(40) NOT NULL,
		updated_at VARCHAR(40) NOT NULL,
		deleted_at VARCHAR(40),
		synced_at VARCHAR(40) NOT NULL,
		INDEX idx_categories_synced_at (synced_at)
	)`,
	`CREATE TABLE IF NOT EXISTS todos (
		id VARCHAR(64) PRIMARY KEY,
		category_id VARCHAR(64),
		title TEXT NOT NULL,
		description TEXT,
		due_date VARCHAR(40),
		reminder_at VARCHAR(40),
		priority INT NOT NULL DEFAULT 2,
		is_completed TINYINT NOT NULL DEFAULT 0,
		completed_at VARCHAR(40),
		ai_metadata TEXT,
		created_at VARCHAR(40) NOT NULL,
		updated_at VARCHAR(40) NOT NULL,
		deleted_at VARCHAR(40),
		synced_at VARCHAR(40) NOT NULL,
		INDEX idx_todos_synced_at (synced_at)
	)`,
}

func sqliteUpsert(table string, cols []string) string {
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = excluded." + c
	}
	return " ON CONFLICT(id) DO UPDATE SET " + strings.Join(sets, ", ") +
		" WHERE excluded.updated_at > " + table + ".updated_at"
}

// mysqlUpsert guards each assignment separately. MySQL evaluates the
// assignments left to right, so updated_at must be the last column.
func mysqlUpsert(_ string, cols []string) string {
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = IF(VALUES(updated_at) > updated_at, VALUES(" + c + "), " + c + ")"
	}
	return " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}

var (
	sqliteDialect = dialect{
		name:       "sqlite",
		driver:     "sqlite3",
		now:        `strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		schema:     sqliteSchema,
		upsertTail: sqliteUpsert,
	}
	libsqlDialect = dialect{
		name:       "libsql",
		driver:     "libsql",
		now:        `strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		schema:     sqliteSchema,
		upsertTail: sqliteUpsert,
	}
	mysqlDialect = dialect{
		name:       "mysql",
		driver:     "mysql",
		now:        `DATE_FORMAT(UTC_TIMESTAMP(6), '%Y-%m-%dT%H:%i:%s.%fZ')`,
		schema:     mysqlSchema,
		upsertTail: mysqlUpsert,
	}
)

// parseURL picks the dialect for rawURL and builds the driver DSN.
func parseURL(rawURL string) (dialect, string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return dialect{}, "", fmt.Errorf("%w: empty", ErrUnsupportedURL)
	}

	// Bare paths and file: URIs go straight to SQLite.
	if strings.HasPrefix(rawURL, "file:") {
		return sqliteDialect, rawURL, nil
	}
	if !strings.Contains(rawURL, "://") {
		return sqliteDialect, sqliteDSN(rawURL), nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return dialect{}, "", fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "libsql", "http", "https", "ws", "wss":
		return libsqlDialect, rawURL, nil
	case "sqlite", "sqlite3":
		path := u.Path
		if u.Host != "" {
			path = filepath.Join(u.Host, u.Path)
		}
		return sqliteDialect, sqliteDSN(path), nil
	case "mysql":
		return mysqlDialect, mysqlDSN(u), nil
	}
	return dialect{}, "", fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, u.Scheme)
}

func sqliteDSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
}

func mysqlDSN(u *url.URL) string {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if u.Port() == "" {
		cfg.Addr = u.Hostname() + ":3306"
	}
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	cfg.DBName = strings.TrimPrefix(u.Path, "/")

	params := u.Query()
	if len(params) > 0 {
		cfg.Params = make(map[string]string, len(params))
		for k := range params {
			cfg.Params[k] = params.Get(k)
		}
	}
	return cfg.FormatDSN()
}
