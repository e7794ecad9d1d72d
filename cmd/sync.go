package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tidex/internal/formatter"
	"github.com/desertthunder/tidex/internal/models"
	"github.com/desertthunder/tidex/internal/tasks"
	"github.com/desertthunder/tidex/internal/ui"
)

// playlistJSON is the JSON shape of a [models.PlaylistResult]
type playlistJSON struct {
	SourceID    string   `json:"source_id"`
	Name        string   `json:"name"`
	DestID      string   `json:"dest_id,omitempty"`
	Outcome     string   `json:"outcome"`
	Expected    int      `json:"expected"`
	Added       int      `json:"added"`
	Blacklisted []string `json:"blacklisted,omitempty"`
	Verified    *bool    `json:"verified,omitempty"`
	Error       string   `json:"error,omitempty"`
}

type reportJSON struct {
	Run       models.SyncRun `json:"run"`
	Playlists []playlistJSON `json:"playlists"`
}

func toReportJSON(report *models.RunReport) reportJSON {
	out := reportJSON{Run: report.Run, Playlists: make([]playlistJSON, 0, len(report.Playlists))}
	for _, p := range report.Playlists {
		item := playlistJSON{
			SourceID:    p.SourceID,
			Name:        p.Name,
			DestID:      p.DestID,
			Outcome:     string(p.Outcome),
			Expected:    p.Expected,
			Added:       p.Added,
			Blacklisted: p.Blacklisted,
			Verified:    p.Verified,
		}
		if p.Err != nil {
			item.Error = p.Err.Error()
		}
		out.Playlists = append(out.Playlists, item)
	}
	return out
}

// Sync mirrors every TIDAL playlist to Spotify.
//
// Per-playlist failures are reported and the command still succeeds; a run-fatal error is returned.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	if err := r.prepare(cmd); err != nil {
		return err
	}

	useTUI := cmd.Bool("tui")
	if useTUI {
		restore, err := r.redirectLogs(cmd.String("log-file"))
		if err != nil {
			return err
		}
		defer restore()
	}

	if err := r.openLedger(); err != nil {
		return err
	}
	defer r.close()

	if err := r.connect(ctx); err != nil {
		return err
	}

	sync := r.config.Sync
	if cmd.IsSet("verify") {
		sync.VerifyAfterSync = cmd.Bool("verify")
	}
	engine := r.engine(sync)

	var (
		report *models.RunReport
		runErr error
	)
	if useTUI {
		report, runErr = r.runTUI(ctx, engine)
	} else {
		report, runErr = r.runPlain(ctx, engine, cmd.Bool("json"))
	}

	if report != nil {
		if err := r.printReport(report, cmd.Bool("json"), cmd.Bool("pretty")); err != nil {
			return err
		}

		if path := cmd.String("report"); path != "" {
			written, err := formatter.WriteReport(report, path)
			if err != nil {
				return err
			}
			r.logger.Info("run report written", "path", written)
		}
	}

	return runErr
}

// runPlain runs engine while echoing playlist progress to the output, or to the debug log when quiet.
func (r *Runner) runPlain(ctx context.Context, engine *tasks.Engine, quiet bool) (*models.RunReport, error) {
	progress := make(chan tasks.ProgressUpdate, 100)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for update := range progress {
			if quiet {
				r.logger.Debug(update.Message, "phase", update.Phase)
				continue
			}

			switch update.Phase {
			case tasks.PlaylistDone:
				r.writePlain("%s\n", ui.Success(update.Message))
			case tasks.PlaylistFailed:
				r.writePlain("%s\n", ui.Error(update.Message))
			case tasks.SyncPlaylist, tasks.FetchPlaylists:
				r.writePlain("%s\n", update.Message)
			default:
				r.logger.Debug(update.Message, "phase", update.Phase)
			}
		}
	}()

	report, err := engine.Run(ctx, progress)
	close(progress)
	<-done
	return report, err
}

func (r *Runner) printReport(report *models.RunReport, asJSON, pretty bool) error {
	if asJSON {
		return r.writeJSON(toReportJSON(report), pretty)
	}

	text, err := formatter.ReportToText(report)
	if err != nil {
		return err
	}

	title := ui.Success("Sync complete")
	switch {
	case report.Run.Status == models.RunAborted:
		title = ui.Error("Sync aborted")
	case report.Run.PlaylistsFailed > 0:
		title = ui.Warning("Sync complete with failures")
	}
	return r.writePlainln("%s\n%s", title, text)
}

// Verify checks one playlist, or every synced playlist, against the ledger.
func (r *Runner) Verify(ctx context.Context, cmd *cli.Command) error {
	if err := r.prepare(cmd); err != nil {
		return err
	}
	if err := r.openLedger(); err != nil {
		return err
	}
	defer r.close()

	if err := r.connect(ctx); err != nil {
		return err
	}
	verifier := r.engine(r.config.Sync).Verifier()

	ids := []string{}
	names := map[string]string{}
	if id := cmd.String("source-id"); id != "" {
		ids = append(ids, id)
	} else {
		records, err := r.ledger.ListPlaylists(ctx)
		if err != nil {
			return err
		}
		for _, rec := range records {
			ids = append(ids, rec.SourceID)
			names[rec.SourceID] = rec.Name
		}
	}

	if len(ids) == 0 {
		return r.writePlain("No synced playlists to verify.\n")
	}

	var mismatched int
	for _, id := range ids {
		label := id
		if name := names[id]; name != "" {
			label = fmt.Sprintf("%s (%s)", name, id)
		}

		ok, err := verifier.Verify(ctx, id)
		if err != nil {
			if tasks.IsRunFatal(err) || len(ids) == 1 {
				return err
			}
			mismatched++
			r.writePlain("%s %s: %v\n", ui.Error("✗"), label, err)
			continue
		}

		if ok {
			r.writePlain("%s %s\n", ui.Success("✓"), label)
		} else {
			mismatched++
			r.writePlain("%s %s: destination differs from ledger\n", ui.Warning("✗"), label)
		}
	}

	if mismatched > 0 {
		return r.writePlainln("%d of %d playlists differ (see logs for details)", mismatched, len(ids))
	}
	return r.writePlainln("All %d playlists match", len(ids))
}

var errInterrupted = errors.New("sync interrupted before completion")
