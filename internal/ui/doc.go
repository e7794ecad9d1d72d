// Package ui renders a live view of a sync run using bubbletea's Elm architecture.
//
// The TUI has two views:
//  1. [RunView] : spinner, current playlist, and the most recently finished playlists
//  2. [ResultView] : a scrollable list of per-playlist results
//
// Progress updates flow through a channel from the engine; the run itself happens in a goroutine
// and its report is handed back to the caller through [Model.Report] after the program exits.
//
// The package also exposes the lipgloss palette used for plain CLI output.
package ui
