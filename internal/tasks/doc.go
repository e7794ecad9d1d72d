// Package tasks reconciles source playlists onto the destination service.
//
// # Engine
//
// [Engine.Run] walks every source playlist in order, one at a time:
//
//  1. Unknown playlists are fetched, created on the destination, and recorded in the [Ledger].
//  2. Playlists whose watermark covers the source timestamp reuse the ledger's track list.
//  3. Changed playlists (or ones without a timestamp) are re-fetched and their track list replaced.
//
// Every playlist then gets an additive diff: ISRCs the destination lacks are resolved through the
// [Resolver] and appended. Tracks are never removed from the destination.
//
// # Failures
//
// A failure inside one playlist is recorded and the run moves on. Ledger and credential failures
// abort the run; see [IsRunFatal].
//
// # Progress Reporting
//
// [ProgressUpdate] values are sent on an optional channel with select/default so a slow reader
// never stalls a run.
package tasks
