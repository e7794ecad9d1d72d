// package services defines the Source and Destination interfaces for playlist mirroring
//
// TIDAL (source), Spotify (destination)
package services

import (
	"context"

	"github.com/desertthunder/tidex/internal/models"
)

// Source lists the user's playlists and the ISRCs they contain.
type Source interface {
	// Playlists walks every page of the user's playlist collection, in service order.
	Playlists(ctx context.Context) ([]models.SourcePlaylist, error)

	// PlaylistISRCs returns the ISRCs of playlist's tracks in source order.
	// Tracks without an ISRC are omitted.
	PlaylistISRCs(ctx context.Context, playlist models.SourcePlaylist) ([]string, error)

	// Name returns the name of the service (e.g., "TIDAL")
	Name() string
}

// Destination creates playlists, reads their membership, and appends tracks.
type Destination interface {
	// CreatePlaylist creates a playlist owned by the authenticated user and returns its ID.
	CreatePlaylist(ctx context.Context, name, description string, public bool) (string, error)

	// PlaylistTracks returns the current membership of playlistID in playlist order.
	PlaylistTracks(ctx context.Context, playlistID string) ([]models.DestinationTrack, error)

	// AddTracks appends trackIDs to playlistID in order.
	AddTracks(ctx context.Context, playlistID string, trackIDs []string) error

	// SearchISRC returns catalog tracks carrying isrc, best match first. No match is an empty slice, not an error.
	SearchISRC(ctx context.Context, isrc string) ([]models.TrackRef, error)

	// Name returns the name of the service (e.g., "Spotify")
	Name() string
}
