package repositories

import (
	"context"
	"database/sql"

	"github.com/desertthunder/tidex/internal/models"
)

// Ledger is the durable record of mirrored playlists, their expected tracks, and the ISRC blacklist.
type Ledger struct {
	Playlists   *PlaylistRepository
	Tracks      *TrackRepository
	Blacklist   *BlacklistRepository
	Resolutions *ResolutionRepository
}

// NewLedger creates a Ledger backed by db. The schema must already be migrated.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{
		Playlists:   NewPlaylistRepository(db),
		Tracks:      NewTrackRepository(db),
		Blacklist:   NewBlacklistRepository(db),
		Resolutions: NewResolutionRepository(db),
	}
}

func (l *Ledger) PlaylistExists(ctx context.Context, sourceID string) (bool, error) {
	return l.Playlists.Exists(ctx, sourceID)
}

func (l *Ledger) GetPlaylist(ctx context.Context, sourceID string) (*models.PlaylistRecord, error) {
	return l.Playlists.Get(ctx, sourceID)
}

func (l *Ledger) UpsertPlaylist(ctx context.Context, record *models.PlaylistRecord) error {
	return l.Playlists.Upsert(ctx, record)
}

func (l *Ledger) ListPlaylists(ctx context.Context) ([]*models.PlaylistRecord, error) {
	return l.Playlists.List(ctx)
}

func (l *Ledger) GetTracks(ctx context.Context, sourceID string) ([]string, error) {
	return l.Tracks.List(ctx, sourceID)
}

func (l *Ledger) ReplaceTracks(ctx context.Context, sourceID string, isrcs []string) error {
	return l.Tracks.Replace(ctx, sourceID, isrcs)
}

func (l *Ledger) IsBlacklisted(ctx context.Context, isrc string) (bool, error) {
	return l.Blacklist.Contains(ctx, isrc)
}

func (l *Ledger) AddBlacklist(ctx context.Context, isrc string) error {
	return l.Blacklist.Add(ctx, isrc)
}

func (l *Ledger) ListBlacklist(ctx context.Context) ([]string, error) {
	return l.Blacklist.List(ctx)
}

func (l *Ledger) SaveResolution(ctx context.Context, isrc, trackID string) error {
	return l.Resolutions.Save(ctx, isrc, trackID)
}

func (l *Ledger) LookupResolutions(ctx context.Context, isrcs []string) (map[string]string, error) {
	return l.Resolutions.Lookup(ctx, isrcs)
}
