package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/desertthunder/tidex/internal/shared"
)

// BlacklistRepository persists ISRCs with no destination match.
//
// Entries are never removed.
type BlacklistRepository struct {
	db *sql.DB
}

// NewBlacklistRepository creates a new BlacklistRepository with the given database connection
func NewBlacklistRepository(db *sql.DB) *BlacklistRepository {
	return &BlacklistRepository{db: db}
}

// Contains reports whether isrc is blacklisted.
func (r *BlacklistRepository) Contains(ctx context.Context, isrc string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM blacklist WHERE isrc = ?)", shared.NormalizeISRC(isrc)).Scan(&exists)
	if err != nil {
		return false, ledgerErr("check blacklist", err)
	}
	return exists, nil
}

// Add records isrc. Adding an existing entry is a no-op.
func (r *BlacklistRepository) Add(ctx context.Context, isrc string) error {
	_, err := r.db.ExecContext(ctx, "INSERT OR IGNORE INTO blacklist (isrc, created_at) VALUES (?, ?)",
		shared.NormalizeISRC(isrc), time.Now().UTC())
	if err != nil {
		return ledgerErr("add blacklist", err)
	}
	return nil
}

// List returns all blacklisted ISRCs, oldest first.
func (r *BlacklistRepository) List(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT isrc FROM blacklist ORDER BY created_at ASC, isrc ASC")
	if err != nil {
		return nil, ledgerErr("query blacklist", err)
	}
	defer rows.Close()

	isrcs := []string{}
	for rows.Next() {
		var isrc string
		if err := rows.Scan(&isrc); err != nil {
			return nil, ledgerErr("scan blacklist", err)
		}
		isrcs = append(isrcs, isrc)
	}

	if err := rows.Err(); err != nil {
		return nil, ledgerErr("row iteration", err)
	}
	return isrcs, nil
}
