// Package repositories implements SQLite persistence for the mirror's ledger.
//
// Each repository owns one table and wraps every driver failure with [shared.ErrLedger], which the
// reconciliation engine treats as run-fatal.
//
// Key Implementations:
//   - [PlaylistRepository] : source playlist -> destination playlist mapping and watermark
//   - [TrackRepository] : ordered expected membership per playlist
//   - [BlacklistRepository] : append-only set of unresolvable ISRCs
//   - [CredentialRepository] : OAuth tokens per service
//   - [SyncRunRepository] : run history with sequence numbers
//
// [Ledger] composes the first three into the store the engine, resolver, and verifier depend on.
//
// Writes that touch more than one row run inside a single transaction, so a reader never observes
// a half-replaced track list. A track list without a playlist row is unreachable: lookups always
// start from the playlist record.
package repositories
