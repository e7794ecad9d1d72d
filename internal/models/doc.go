// Package models defines the domain types shared by the fetcher, ledger, and reconciliation engine.
//
// The package contains two categories of types:
//
// 1. Catalog views: what the engine reads from the services
//   - [SourcePlaylist] : TIDAL playlist metadata, including the modification watermark
//   - [TrackRef] : a Spotify track matched by ISRC
//   - [DestinationTrack] : one entry of a Spotify playlist's current membership
//
// 2. Ledger entities: the durable record of what has been mirrored
//   - [PlaylistRecord] : source playlist -> destination playlist mapping with watermark
//   - [SyncRun] : bookkeeping for a single run of the engine
//
// [RunReport] and [PlaylistResult] summarize a run for the CLI.
package models
