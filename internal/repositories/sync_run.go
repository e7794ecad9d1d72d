package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tidex/internal/models"
	"github.com/desertthunder/tidex/internal/shared"
)

// SyncRunRepository records run history.
type SyncRunRepository struct {
	db *sql.DB
}

// NewSyncRunRepository creates a new SyncRunRepository with the given database connection
func NewSyncRunRepository(db *sql.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// Start inserts a running [models.SyncRun] with a generated ID and the next sequence number.
func (r *SyncRunRepository) Start(ctx context.Context) (*models.SyncRun, error) {
	sequence, err := NextSequence(ctx, r.db, "sync_runs")
	if err != nil {
		return nil, ledgerErr("generate sequence", err)
	}

	run := &models.SyncRun{
		ID:        shared.GenerateID(),
		Sequence:  sequence,
		StartedAt: time.Now().UTC(),
		Status:    models.RunRunning,
	}

	query := `
		INSERT INTO sync_runs (id, sequence, started_at, status)
		VALUES (?, ?, ?, ?)
	`
	if _, err := r.db.ExecContext(ctx, query, run.ID, run.Sequence, run.StartedAt, run.Status); err != nil {
		return nil, ledgerErr("insert sync run", err)
	}
	return run, nil
}

// Finish stamps run with its final status and counters.
func (r *SyncRunRepository) Finish(ctx context.Context, run *models.SyncRun) error {
	finished := time.Now().UTC()
	query := `
		UPDATE sync_runs
		SET finished_at = ?, status = ?, playlists_total = ?, playlists_synced = ?, playlists_failed = ?,
			tracks_added = ?, tracks_blacklisted = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, finished, run.Status, run.PlaylistsTotal, run.PlaylistsSynced,
		run.PlaylistsFailed, run.TracksAdded, run.TracksBlacklisted, run.ID)
	if err != nil {
		return ledgerErr("finish sync run", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return ledgerErr("finish sync run", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: sync run %s not found", shared.ErrLedger, run.ID)
	}

	run.FinishedAt = &finished
	return nil
}

// Get retrieves a run by ID. Returns (nil, nil) when absent.
func (r *SyncRunRepository) Get(ctx context.Context, id string) (*models.SyncRun, error) {
	query := `
		SELECT id, sequence, started_at, finished_at, status, playlists_total, playlists_synced,
			playlists_failed, tracks_added, tracks_blacklisted
		FROM sync_runs
		WHERE id = ?
	`

	run, err := scanSyncRun(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, ledgerErr("get sync run", err)
	}
	return run, nil
}

// List returns up to limit runs, newest first. A non-positive limit returns all runs.
func (r *SyncRunRepository) List(ctx context.Context, limit int) ([]*models.SyncRun, error) {
	query := `
		SELECT id, sequence, started_at, finished_at, status, playlists_total, playlists_synced,
			playlists_failed, tracks_added, tracks_blacklisted
		FROM sync_runs
		ORDER BY sequence DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ledgerErr("query sync runs", err)
	}
	defer rows.Close()

	var runs []*models.SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, ledgerErr("scan sync run", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, ledgerErr("row iteration", err)
	}
	return runs, nil
}

func scanSyncRun(s scanner) (*models.SyncRun, error) {
	var (
		run      models.SyncRun
		finished sql.NullTime
		status   string
	)
	err := s.Scan(&run.ID, &run.Sequence, &run.StartedAt, &finished, &status, &run.PlaylistsTotal,
		&run.PlaylistsSynced, &run.PlaylistsFailed, &run.TracksAdded, &run.TracksBlacklisted)
	if err != nil {
		return nil, err
	}

	run.Status = models.RunStatus(status)
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return &run, nil
}
