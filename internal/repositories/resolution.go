package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/desertthunder/tidex/internal/shared"
)

// ResolutionRepository remembers which destination track an ISRC search settled on.
type ResolutionRepository struct {
	db *sql.DB
}

// NewResolutionRepository creates a new ResolutionRepository with the given database connection
func NewResolutionRepository(db *sql.DB) *ResolutionRepository {
	return &ResolutionRepository{db: db}
}

// Save records trackID as the match for isrc, replacing any earlier match.
func (r *ResolutionRepository) Save(ctx context.Context, isrc, trackID string) error {
	_, err := r.db.ExecContext(ctx, "INSERT OR REPLACE INTO resolutions (isrc, track_id, created_at) VALUES (?, ?, ?)",
		shared.NormalizeISRC(isrc), trackID, time.Now().UTC())
	if err != nil {
		return ledgerErr("save resolution", err)
	}
	return nil
}

// Lookup returns the recorded track id for each of isrcs that has one, keyed by normalized ISRC.
func (r *ResolutionRepository) Lookup(ctx context.Context, isrcs []string) (map[string]string, error) {
	found := make(map[string]string, len(isrcs))
	if len(isrcs) == 0 {
		return found, nil
	}

	stmt, err := r.db.PrepareContext(ctx, "SELECT track_id FROM resolutions WHERE isrc = ?")
	if err != nil {
		return nil, ledgerErr("prepare resolution lookup", err)
	}
	defer stmt.Close()

	for _, isrc := range isrcs {
		isrc = shared.NormalizeISRC(isrc)
		if _, ok := found[isrc]; ok {
			continue
		}

		var trackID string
		switch err := stmt.QueryRowContext(ctx, isrc).Scan(&trackID); err {
		case nil:
			found[isrc] = trackID
		case sql.ErrNoRows:
		default:
			return nil, ledgerErr("lookup resolution", err)
		}
	}
	return found, nil
}
