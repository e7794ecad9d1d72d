// package models defines the data model for the playlist mirror
package models

import (
	"time"
)

// SourcePlaylist is a playlist as listed by the source service.
type SourcePlaylist struct {
	ID           string
	Name         string
	LastModified string // opaque, lexically comparable timestamp; empty when the service omits it
	ItemsURL     string // cursor entry point for the playlist's items
}

// PlaylistRecord is the ledger row for a mirrored playlist.
type PlaylistRecord struct {
	SourceID     string    `json:"source_id"`
	DestID       string    `json:"dest_id"`
	Name         string    `json:"name"`
	LastModified string    `json:"last_modified"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Unchanged reports whether the ledger watermark covers the source's modification timestamp.
//
// A missing timestamp on either side counts as changed so the track list is re-fetched.
func (r *PlaylistRecord) Unchanged(src SourcePlaylist) bool {
	if r == nil || r.LastModified == "" || src.LastModified == "" {
		return false
	}
	return r.LastModified >= src.LastModified
}

// TrackRef is a destination track matched from an ISRC.
type TrackRef struct {
	ID   string
	URI  string
	Name string
	ISRC string
}

// DestinationTrack is one item in a destination playlist.
type DestinationTrack struct {
	ID   string
	ISRC string
}

// RunStatus is the terminal state of a [SyncRun].
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunAborted   RunStatus = "aborted"
)

// SyncRun records one execution of the reconciliation engine.
type SyncRun struct {
	ID                string     `json:"id"`
	Sequence          int        `json:"sequence"`
	StartedAt         time.Time  `json:"started_at"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
	Status            RunStatus  `json:"status"`
	PlaylistsTotal    int        `json:"playlists_total"`
	PlaylistsSynced   int        `json:"playlists_synced"`
	PlaylistsFailed   int        `json:"playlists_failed"`
	TracksAdded       int        `json:"tracks_added"`
	TracksBlacklisted int        `json:"tracks_blacklisted"`
}

// PlaylistOutcome describes what happened to a playlist during a run.
type PlaylistOutcome string

const (
	OutcomeCreated   PlaylistOutcome = "created"
	OutcomeUpdated   PlaylistOutcome = "updated"
	OutcomeUnchanged PlaylistOutcome = "unchanged"
	OutcomeFailed    PlaylistOutcome = "failed"
)

// PlaylistResult is the per-playlist line of a [RunReport].
type PlaylistResult struct {
	SourceID    string
	Name        string
	DestID      string
	Outcome     PlaylistOutcome
	Expected    int
	Added       int
	Blacklisted []string
	Verified    *bool // nil when verification was skipped
	Err         error
}

// RunReport summarizes a run for display.
type RunReport struct {
	Run       SyncRun
	Playlists []PlaylistResult
}
