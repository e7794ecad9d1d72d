package tasks

import (
	"fmt"

	"github.com/desertthunder/tidex/internal/models"
)

// ProgressUpdate represents a progress event during a sync run.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current playlist number within the run
	Total   int    // Total playlists in the run
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	FetchPlaylists Phase = iota
	SyncPlaylist
	FetchTracks
	CreatePlaylist
	ResolveTracks
	AddTracks
	Verify
	PlaylistDone
	PlaylistFailed
)

func (p Phase) String() string {
	switch p {
	case FetchPlaylists:
		return "fetch_playlists"
	case SyncPlaylist:
		return "sync_playlist"
	case FetchTracks:
		return "fetch_tracks"
	case CreatePlaylist:
		return "create_playlist"
	case ResolveTracks:
		return "resolve_tracks"
	case AddTracks:
		return "add_tracks"
	case Verify:
		return "verify"
	case PlaylistDone:
		return "playlist_done"
	case PlaylistFailed:
		return "playlist_failed"
	default:
		return ""
	}
}

func fetchingPlaylistsUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylists,
		Message: "Fetching playlists from TIDAL...",
	}
}

func foundPlaylistsUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylists,
		Total:   total,
		Message: fmt.Sprintf("Found %d playlists", total),
	}
}

func syncPlaylistUpdate(step, total int, src models.SourcePlaylist) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s", step, total, src.Name),
		Data:    src,
	}
}

func fetchTracksUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Fetching tracks (%s)...", name),
	}
}

func createPlaylistUpdate(step, total int, name, destID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreatePlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Playlist created: %s (ID: %s)", name, destID),
	}
}

func resolveTracksUpdate(step, total, missing int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Resolving %d missing tracks...", missing),
	}
}

func addTracksUpdate(step, total, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   AddTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Adding %d tracks...", count),
	}
}

func verifyUpdate(step, total int, ok bool) ProgressUpdate {
	msg := "Verified destination matches ledger"
	if !ok {
		msg = "Destination differs from ledger"
	}
	return ProgressUpdate{Phase: Verify, Step: step, Total: total, Message: msg, Data: ok}
}

func playlistDoneUpdate(step, total int, result models.PlaylistResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PlaylistDone,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%s, +%d)", step, total, result.Name, result.Outcome, result.Added),
		Data:    result,
	}
}

func playlistFailedUpdate(step, total int, result models.PlaylistResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PlaylistFailed,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, result.Name, result.Err),
		Data:    result,
	}
}
