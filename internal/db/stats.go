package db

import (
	"context"
	"fmt"
)

// Stats summarizes the store for status output.
type Stats struct {
	Todos          int
	OpenTodos      int
	Categories     int
	Operations     int
	Stashed        int
	PendingUploads int
	Tombstones     int
}

// GetStats counts rows in every table.
func (q *Queries) GetStats(ctx context.Context) (*Stats, error) {
	var s Stats
	query := `SELECT
		(SELECT COUNT(*) FROM todos),
		(SELECT COUNT(*) FROM todos WHERE is_completed = 0),
		(SELECT COUNT(*) FROM categories),
		(SELECT COUNT(*) FROM operations),
		(SELECT COUNT(*) FROM stash),
		(SELECT COUNT(*) FROM todos WHERE sync_status != 'synced') +
			(SELECT COUNT(*) FROM categories WHERE sync_status != 'synced'),
		(SELECT COUNT(*) FROM tombstones WHERE confirmed_at IS NULL)`

	err := q.q.QueryRowContext(ctx, query).Scan(
		&s.Todos,
		&s.OpenTodos,
		&s.Categories,
		&s.Operations,
		&s.Stashed,
		&s.PendingUploads,
		&s.Tombstones,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}
	return &s, nil
}
