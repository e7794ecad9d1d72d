// package formatter renders run reports and exports the ledger to CSV, Markdown, and plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/desertthunder/tidex/internal/models"
)

const timeLayout = "2006-01-02 15:04:05"

// ReportToText renders a run report as plain text, one line per playlist
func ReportToText(report *models.RunReport) ([]byte, error) {
	var buf bytes.Buffer
	run := report.Run

	buf.WriteString(fmt.Sprintf("Run #%d: %s\n", run.Sequence, run.Status))
	buf.WriteString(fmt.Sprintf("Playlists: %d synced, %d failed, %d total\n", run.PlaylistsSynced, run.PlaylistsFailed, run.PlaylistsTotal))
	buf.WriteString(fmt.Sprintf("Tracks: %d added, %d blacklisted\n", run.TracksAdded, run.TracksBlacklisted))
	if d := runDuration(run); d > 0 {
		buf.WriteString(fmt.Sprintf("Duration: %s\n", d))
	}

	if len(report.Playlists) > 0 {
		buf.WriteString("\n")
	}
	for i, p := range report.Playlists {
		buf.WriteString(fmt.Sprintf("%d. %s [%s]", i+1, p.Name, p.Outcome))
		if p.Err != nil {
			buf.WriteString(fmt.Sprintf(" error: %v\n", p.Err))
			continue
		}
		buf.WriteString(fmt.Sprintf(" %d expected, +%d added", p.Expected, p.Added))
		if n := len(p.Blacklisted); n > 0 {
			buf.WriteString(fmt.Sprintf(", %d unavailable", n))
		}
		buf.WriteString(verifiedSuffix(p.Verified))
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

// ReportToMarkdown renders a run report with a summary and a per-playlist table
func ReportToMarkdown(report *models.RunReport) ([]byte, error) {
	var buf bytes.Buffer
	run := report.Run

	buf.WriteString(fmt.Sprintf("# Sync run #%d\n\n", run.Sequence))
	buf.WriteString(fmt.Sprintf("**Status**: %s\n", run.Status))
	if !run.StartedAt.IsZero() {
		buf.WriteString(fmt.Sprintf("**Started**: %s\n", run.StartedAt.Format(timeLayout)))
	}
	if d := runDuration(run); d > 0 {
		buf.WriteString(fmt.Sprintf("**Duration**: %s\n", d))
	}
	buf.WriteString(fmt.Sprintf("**Playlists**: %d synced, %d failed, %d total\n", run.PlaylistsSynced, run.PlaylistsFailed, run.PlaylistsTotal))
	buf.WriteString(fmt.Sprintf("**Tracks**: %d added, %d blacklisted\n\n", run.TracksAdded, run.TracksBlacklisted))

	buf.WriteString("## Playlists\n\n")
	if len(report.Playlists) == 0 {
		buf.WriteString("_No playlists processed._\n")
		return buf.Bytes(), nil
	}

	buf.WriteString("| Playlist | Outcome | Expected | Added | Unavailable | Verified |\n")
	buf.WriteString("|---|---|---|---|---|---|\n")
	for _, p := range report.Playlists {
		verified := "-"
		if p.Verified != nil {
			verified = strconv.FormatBool(*p.Verified)
		}
		buf.WriteString(fmt.Sprintf("| %s | %s | %d | %d | %d | %s |\n",
			p.Name, p.Outcome, p.Expected, p.Added, len(p.Blacklisted), verified))
	}

	var failed []models.PlaylistResult
	for _, p := range report.Playlists {
		if p.Err != nil {
			failed = append(failed, p)
		}
	}
	if len(failed) > 0 {
		buf.WriteString("\n## Failures\n\n")
		for _, p := range failed {
			buf.WriteString(fmt.Sprintf("- **%s** (`%s`): %v\n", p.Name, p.SourceID, p.Err))
		}
	}

	return buf.Bytes(), nil
}

// RunsToText renders sync run history, newest first as given
func RunsToText(runs []*models.SyncRun) ([]byte, error) {
	var buf bytes.Buffer
	if len(runs) == 0 {
		buf.WriteString("No sync runs recorded.\n")
		return buf.Bytes(), nil
	}

	for _, run := range runs {
		buf.WriteString(fmt.Sprintf("#%d  %s  %-9s  %d/%d playlists  +%d tracks  %d blacklisted\n",
			run.Sequence, run.StartedAt.Local().Format(timeLayout), run.Status,
			run.PlaylistsSynced, run.PlaylistsTotal, run.TracksAdded, run.TracksBlacklisted))
	}
	return buf.Bytes(), nil
}

// PlaylistsToCSV converts ledger playlist rows to CSV with columns: SourceID, DestID, Name, LastModified, UpdatedAt
func PlaylistsToCSV(records []*models.PlaylistRecord) ([]byte, error) {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{r.SourceID, r.DestID, r.Name, r.LastModified, formatTime(r.UpdatedAt)})
	}
	return toCSV([]string{"SourceID", "DestID", "Name", "LastModified", "UpdatedAt"}, rows)
}

// TracksToCSV converts expected tracks keyed by source playlist to CSV with columns: SourceID, Position, ISRC.
//
// Rows follow the order of sourceIDs.
func TracksToCSV(sourceIDs []string, tracks map[string][]string) ([]byte, error) {
	var rows [][]string
	for _, id := range sourceIDs {
		for i, isrc := range tracks[id] {
			rows = append(rows, []string{id, strconv.Itoa(i), isrc})
		}
	}
	return toCSV([]string{"SourceID", "Position", "ISRC"}, rows)
}

// BlacklistToCSV converts blacklisted ISRCs to a single-column CSV
func BlacklistToCSV(isrcs []string) ([]byte, error) {
	rows := make([][]string, 0, len(isrcs))
	for _, isrc := range isrcs {
		rows = append(rows, []string{isrc})
	}
	return toCSV([]string{"ISRC"}, rows)
}

// RunsToCSV converts sync run history to CSV
func RunsToCSV(runs []*models.SyncRun) ([]byte, error) {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		finished := ""
		if run.FinishedAt != nil {
			finished = formatTime(*run.FinishedAt)
		}
		rows = append(rows, []string{
			run.ID,
			strconv.Itoa(run.Sequence),
			formatTime(run.StartedAt),
			finished,
			string(run.Status),
			strconv.Itoa(run.PlaylistsTotal),
			strconv.Itoa(run.PlaylistsSynced),
			strconv.Itoa(run.PlaylistsFailed),
			strconv.Itoa(run.TracksAdded),
			strconv.Itoa(run.TracksBlacklisted),
		})
	}
	headers := []string{"ID", "Sequence", "StartedAt", "FinishedAt", "Status", "PlaylistsTotal",
		"PlaylistsSynced", "PlaylistsFailed", "TracksAdded", "TracksBlacklisted"}
	return toCSV(headers, rows)
}

// LedgerSnapshot is everything [WriteLedgerExport] writes.
type LedgerSnapshot struct {
	Playlists []*models.PlaylistRecord
	Tracks    map[string][]string // expected ISRCs by source ID
	Blacklist []string
}

// LedgerExportResult contains the paths of files created by WriteLedgerExport
type LedgerExportResult struct {
	Directory     string
	PlaylistsFile string
	TracksFile    string
	BlacklistFile string
}

// WriteLedgerExport writes playlists.csv, tracks.csv and blacklist.csv into outputDir, creating it if needed.
//
// Defaults to ledger-export as the directory name.
func WriteLedgerExport(snapshot LedgerSnapshot, outputDir string) (*LedgerExportResult, error) {
	if outputDir == "" {
		outputDir = "ledger-export"
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	playlistsCSV, err := PlaylistsToCSV(snapshot.Playlists)
	if err != nil {
		return nil, fmt.Errorf("failed to generate playlists CSV: %w", err)
	}

	ids := make([]string, 0, len(snapshot.Playlists))
	for _, p := range snapshot.Playlists {
		ids = append(ids, p.SourceID)
	}
	tracksCSV, err := TracksToCSV(ids, snapshot.Tracks)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tracks CSV: %w", err)
	}

	blacklistCSV, err := BlacklistToCSV(snapshot.Blacklist)
	if err != nil {
		return nil, fmt.Errorf("failed to generate blacklist CSV: %w", err)
	}

	result := &LedgerExportResult{
		Directory:     outputDir,
		PlaylistsFile: filepath.Join(outputDir, "playlists.csv"),
		TracksFile:    filepath.Join(outputDir, "tracks.csv"),
		BlacklistFile: filepath.Join(outputDir, "blacklist.csv"),
	}

	files := []struct {
		path string
		data []byte
	}{
		{result.PlaylistsFile, playlistsCSV},
		{result.TracksFile, tracksCSV},
		{result.BlacklistFile, blacklistCSV},
	}
	for _, f := range files {
		if err := os.WriteFile(f.path, f.data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.path, err)
		}
	}

	return result, nil
}

// WriteReport writes a run report to path as Markdown.
//
// Defaults to sync-run-{sequence}.md as the filename.
func WriteReport(report *models.RunReport, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("sync-run-%d.md", report.Run.Sequence)
	}

	data, err := ReportToMarkdown(report)
	if err != nil {
		return "", fmt.Errorf("failed to generate Markdown: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return path, nil
}

func toCSV(headers []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

func verifiedSuffix(v *bool) string {
	switch {
	case v == nil:
		return ""
	case *v:
		return ", verified"
	default:
		return ", mismatch"
	}
}

func runDuration(run models.SyncRun) time.Duration {
	if run.FinishedAt == nil || run.StartedAt.IsZero() {
		return 0
	}
	return run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
