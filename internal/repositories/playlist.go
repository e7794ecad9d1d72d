package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tidex/internal/models"
)

// ErrDestinationReassigned is returned when an upsert tries to point an existing mapping at a different destination playlist.
var ErrDestinationReassigned = errors.New("destination playlist id cannot be reassigned")

// PlaylistRepository persists [models.PlaylistRecord] rows keyed by source playlist id.
type PlaylistRepository struct {
	db *sql.DB
}

// NewPlaylistRepository creates a new PlaylistRepository with the given database connection
func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// Exists reports whether a mapping exists for sourceID.
func (r *PlaylistRepository) Exists(ctx context.Context, sourceID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM playlists WHERE source_id = ?)", sourceID).Scan(&exists)
	if err != nil {
		return false, ledgerErr("check playlist", err)
	}
	return exists, nil
}

// Get retrieves the mapping for sourceID. Returns (nil, nil) when the playlist has not been ingested.
func (r *PlaylistRepository) Get(ctx context.Context, sourceID string) (*models.PlaylistRecord, error) {
	query := `
		SELECT source_id, dest_id, name, last_modified, created_at, updated_at
		FROM playlists
		WHERE source_id = ?
	`

	record, err := scanPlaylist(r.db.QueryRowContext(ctx, query, sourceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, ledgerErr("get playlist", err)
	}
	return record, nil
}

// Upsert inserts the mapping or updates its name and watermark.
//
// dest_id is written on insert only. An upsert carrying a different dest_id for an existing row fails with
// [ErrDestinationReassigned] and leaves the row untouched.
func (r *PlaylistRepository) Upsert(ctx context.Context, record *models.PlaylistRecord) error {
	if record.SourceID == "" || record.DestID == "" {
		return fmt.Errorf("validation failed: source_id and dest_id are required")
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO playlists (source_id, dest_id, name, last_modified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE
		SET name = excluded.name, last_modified = excluded.last_modified, updated_at = excluded.updated_at
		WHERE playlists.dest_id = excluded.dest_id
	`

	result, err := r.db.ExecContext(ctx, query, record.SourceID, record.DestID, record.Name, record.LastModified, now, now)
	if err != nil {
		return ledgerErr("upsert playlist", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return ledgerErr("upsert playlist", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrDestinationReassigned, record.SourceID)
	}

	record.UpdatedAt = now
	return nil
}

// List returns every mapping ordered by name.
func (r *PlaylistRepository) List(ctx context.Context) ([]*models.PlaylistRecord, error) {
	query := `
		SELECT source_id, dest_id, name, last_modified, created_at, updated_at
		FROM playlists
		ORDER BY name ASC, source_id ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, ledgerErr("query playlists", err)
	}
	defer rows.Close()

	var records []*models.PlaylistRecord
	for rows.Next() {
		record, err := scanPlaylist(rows)
		if err != nil {
			return nil, ledgerErr("scan playlist", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, ledgerErr("row iteration", err)
	}

	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanPlaylist scans a [sql.Row] or [sql.Rows] into a [models.PlaylistRecord]
func scanPlaylist(s scanner) (*models.PlaylistRecord, error) {
	var record models.PlaylistRecord
	err := s.Scan(&record.SourceID, &record.DestID, &record.Name, &record.LastModified, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &record, nil
}
