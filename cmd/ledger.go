package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tidex/internal/formatter"
	"github.com/desertthunder/tidex/internal/shared"
	"github.com/desertthunder/tidex/internal/ui"
)

// LedgerPlaylists lists mirrored playlists.
func (r *Runner) LedgerPlaylists(ctx context.Context, cmd *cli.Command) error {
	if err := r.prepare(cmd); err != nil {
		return err
	}
	if err := r.openLedger(); err != nil {
		return err
	}
	defer r.close()

	records, err := r.ledger.ListPlaylists(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(records, cmd.Bool("pretty"))
	}

	if len(records) == 0 {
		return r.writePlain("No playlists synced yet.\n")
	}

	r.writePlain("%s\n", ui.Title(fmt.Sprintf("Synced playlists (%d)", len(records))))
	for _, rec := range records {
		watermark := rec.LastModified
		if watermark == "" {
			watermark = "never"
		}
		r.writePlain("%s  %s → %s  %s\n", rec.Name, rec.SourceID, rec.DestID, ui.Help("modified "+watermark))
	}
	return nil
}

// LedgerTracks lists a playlist's expected ISRCs in source order.
func (r *Runner) LedgerTracks(ctx context.Context, cmd *cli.Command) error {
	if err := r.prepare(cmd); err != nil {
		return err
	}
	if err := r.openLedger(); err != nil {
		return err
	}
	defer r.close()

	id := cmd.String("source-id")
	record, err := r.ledger.GetPlaylist(ctx, id)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("%w: %s has not been synced", shared.ErrPlaylistNotFound, id)
	}

	isrcs, err := r.ledger.GetTracks(ctx, id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{"playlist": record, "isrcs": isrcs}, cmd.Bool("pretty"))
	}

	r.writePlain("%s\n", ui.Title(fmt.Sprintf("%s (%d tracks)", record.Name, len(isrcs))))
	for i, isrc := range isrcs {
		blacklisted, err := r.ledger.IsBlacklisted(ctx, isrc)
		if err != nil {
			return err
		}
		if blacklisted {
			r.writePlain("%d. %s %s\n", i+1, isrc, ui.Warning("(no Spotify match)"))
		} else {
			r.writePlain("%d. %s\n", i+1, isrc)
		}
	}
	return nil
}

// LedgerBlacklist lists ISRCs with no destination match.
func (r *Runner) LedgerBlacklist(ctx context.Context, cmd *cli.Command) error {
	if err := r.prepare(cmd); err != nil {
		return err
	}
	if err := r.openLedger(); err != nil {
		return err
	}
	defer r.close()

	isrcs, err := r.ledger.ListBlacklist(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(isrcs, cmd.Bool("pretty"))
	}

	if len(isrcs) == 0 {
		return r.writePlain("Blacklist is empty.\n")
	}
	r.writePlain("%s\n", ui.Title(fmt.Sprintf("Blacklisted ISRCs (%d)", len(isrcs))))
	for _, isrc := range isrcs {
		r.writePlain("%s\n", isrc)
	}
	return nil
}

// LedgerExport writes the ledger to CSV files.
func (r *Runner) LedgerExport(ctx context.Context, cmd *cli.Command) error {
	if err := r.prepare(cmd); err != nil {
		return err
	}
	if err := r.openLedger(); err != nil {
		return err
	}
	defer r.close()

	records, err := r.ledger.ListPlaylists(ctx)
	if err != nil {
		return err
	}

	tracks := make(map[string][]string, len(records))
	for _, rec := range records {
		isrcs, err := r.ledger.GetTracks(ctx, rec.SourceID)
		if err != nil {
			return err
		}
		tracks[rec.SourceID] = isrcs
	}

	blacklist, err := r.ledger.ListBlacklist(ctx)
	if err != nil {
		return err
	}

	result, err := formatter.WriteLedgerExport(formatter.LedgerSnapshot{
		Playlists: records,
		Tracks:    tracks,
		Blacklist: blacklist,
	}, cmd.String("dir"))
	if err != nil {
		return err
	}

	r.logger.Info("ledger exported", "dir", result.Directory)
	r.writePlain("✓ Exported %d playlists to %s\n", len(records), result.Directory)
	r.writePlain("  %s\n  %s\n  %s\n", result.PlaylistsFile, result.TracksFile, result.BlacklistFile)
	return nil
}

// History lists recent sync runs.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	if err := r.prepare(cmd); err != nil {
		return err
	}
	if err := r.openLedger(); err != nil {
		return err
	}
	defer r.close()

	runs, err := r.runs.List(ctx, cmd.Int("limit"))
	if err != nil {
		return err
	}

	var data []byte
	switch {
	case cmd.Bool("json"):
		return r.writeJSON(runs, true)
	case cmd.Bool("csv"):
		data, err = formatter.RunsToCSV(runs)
	default:
		data, err = formatter.RunsToText(runs)
	}
	if err != nil {
		return err
	}
	return r.writePlain("%s", data)
}
