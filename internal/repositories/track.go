package repositories

import (
	"context"
	"database/sql"

	"github.com/desertthunder/tidex/internal/shared"
)

// TrackRepository persists the expected, ordered ISRC membership of each mirrored playlist.
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// List returns the ISRCs recorded for sourceID in source order.
//
// A source id without a playlist row yields an empty slice.
func (r *TrackRepository) List(ctx context.Context, sourceID string) ([]string, error) {
	query := `
		SELECT isrc
		FROM playlist_tracks
		WHERE playlist_source_id = ?
		ORDER BY position ASC
	`

	rows, err := r.db.QueryContext(ctx, query, sourceID)
	if err != nil {
		return nil, ledgerErr("query tracks", err)
	}
	defer rows.Close()

	isrcs := []string{}
	for rows.Next() {
		var isrc string
		if err := rows.Scan(&isrc); err != nil {
			return nil, ledgerErr("scan track", err)
		}
		isrcs = append(isrcs, isrc)
	}

	if err := rows.Err(); err != nil {
		return nil, ledgerErr("row iteration", err)
	}
	return isrcs, nil
}

// Replace swaps the recorded membership of sourceID for isrcs in one transaction.
//
// ISRCs are normalized and deduplicated, keeping the first occurrence's position. Blank values are dropped.
func (r *TrackRepository) Replace(ctx context.Context, sourceID string, isrcs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return ledgerErr("begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM playlist_tracks WHERE playlist_source_id = ?", sourceID); err != nil {
		return ledgerErr("clear tracks", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO playlist_tracks (playlist_source_id, position, isrc) VALUES (?, ?, ?)")
	if err != nil {
		return ledgerErr("prepare insert", err)
	}
	defer stmt.Close()

	seen := make(map[string]struct{}, len(isrcs))
	position := 0
	for _, raw := range isrcs {
		isrc := shared.NormalizeISRC(raw)
		if isrc == "" {
			continue
		}
		if _, ok := seen[isrc]; ok {
			continue
		}
		seen[isrc] = struct{}{}

		if _, err := stmt.ExecContext(ctx, sourceID, position, isrc); err != nil {
			return ledgerErr("insert track", err)
		}
		position++
	}

	if err := tx.Commit(); err != nil {
		return ledgerErr("commit tracks", err)
	}
	return nil
}
