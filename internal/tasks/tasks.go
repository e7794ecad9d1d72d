package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/tidex/internal/models"
	"github.com/desertthunder/tidex/internal/services"
	"github.com/desertthunder/tidex/internal/shared"
)

// addBatchSize is the most track ids a single destination add carries.
const addBatchSize = 100

// Ledger is the persistence the engine, resolver and verifier need.
//
// Implemented by repositories.Ledger. Every error it returns is run-fatal.
type Ledger interface {
	GetPlaylist(ctx context.Context, sourceID string) (*models.PlaylistRecord, error)
	UpsertPlaylist(ctx context.Context, record *models.PlaylistRecord) error
	GetTracks(ctx context.Context, sourceID string) ([]string, error)
	ReplaceTracks(ctx context.Context, sourceID string, isrcs []string) error
	IsBlacklisted(ctx context.Context, isrc string) (bool, error)
	AddBlacklist(ctx context.Context, isrc string) error
	SaveResolution(ctx context.Context, isrc, trackID string) error
	LookupResolutions(ctx context.Context, isrcs []string) (map[string]string, error)
}

// RunRecorder persists run history. Implemented by repositories.SyncRunRepository.
type RunRecorder interface {
	Start(ctx context.Context) (*models.SyncRun, error)
	Finish(ctx context.Context, run *models.SyncRun) error
}

// EngineOpts configures an [Engine]. Runs and Logger are optional.
type EngineOpts struct {
	Source      services.Source
	Destination services.Destination
	Ledger      Ledger
	Runs        RunRecorder
	Sync        shared.SyncConfig
	Logger      *log.Logger
}

// Engine reconciles every source playlist onto the destination, one playlist at a time.
type Engine struct {
	source   services.Source
	dest     services.Destination
	ledger   Ledger
	runs     RunRecorder
	sync     shared.SyncConfig
	logger   *log.Logger
	resolver *Resolver
	verifier *Verifier
}

// NewEngine creates an Engine from opts.
func NewEngine(opts EngineOpts) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &Engine{
		source:   opts.Source,
		dest:     opts.Destination,
		ledger:   opts.Ledger,
		runs:     opts.Runs,
		sync:     opts.Sync,
		logger:   logger,
		resolver: NewResolver(opts.Ledger, opts.Destination, logger),
		verifier: NewVerifier(opts.Ledger, opts.Destination, logger),
	}
}

// Verifier returns the engine's integrity verifier.
func (e *Engine) Verifier() *Verifier {
	return e.verifier
}

// IsRunFatal reports whether err must abort the whole run rather than a single playlist.
//
// Ledger and credential failures leave no safe way to continue; cancellation means the process is exiting.
func IsRunFatal(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, shared.ErrLedger),
		errors.Is(err, shared.ErrNotAuthenticated),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return true
	default:
		return false
	}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *Engine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Run mirrors every source playlist. Per-playlist failures are recorded in the report and the run continues.
//
// A run-fatal error (see [IsRunFatal]) stops the run; the partial report is returned alongside it.
func (e *Engine) Run(ctx context.Context, progress chan<- ProgressUpdate) (*models.RunReport, error) {
	if e.source == nil || e.dest == nil || e.ledger == nil {
		return nil, fmt.Errorf("%w: engine is missing a source, destination, or ledger", shared.ErrServiceUnavailable)
	}

	run, err := e.startRun(ctx)
	if err != nil {
		return nil, err
	}
	report := &models.RunReport{}
	e.resolver.Reset()

	logger := e.logger.With("run", run.Sequence)
	logger.Info("sync started", "source", e.source.Name(), "destination", e.dest.Name())

	e.sendProgress(progress, fetchingPlaylistsUpdate())
	playlists, err := e.source.Playlists(ctx)
	if err != nil {
		return e.abort(ctx, run, report, fmt.Errorf("list %s playlists: %w", e.source.Name(), err))
	}

	total := len(playlists)
	run.PlaylistsTotal = total
	e.sendProgress(progress, foundPlaylistsUpdate(total))

	for i, src := range playlists {
		step := i + 1
		e.sendProgress(progress, syncPlaylistUpdate(step, total, src))

		result, err := e.syncPlaylist(ctx, src, step, total, progress)
		if err != nil {
			result.Outcome = models.OutcomeFailed
			result.Err = err
			report.Playlists = append(report.Playlists, result)
			run.PlaylistsFailed++

			if IsRunFatal(err) {
				return e.abort(ctx, run, report, err)
			}

			logger.Warn("playlist failed", "playlist", src.Name, "id", src.ID, "error", err)
			e.sendProgress(progress, playlistFailedUpdate(step, total, result))
			continue
		}

		report.Playlists = append(report.Playlists, result)
		run.PlaylistsSynced++
		run.TracksAdded += result.Added
		e.sendProgress(progress, playlistDoneUpdate(step, total, result))
	}

	run.Status = models.RunCompleted
	run.TracksBlacklisted = e.resolver.Blacklisted()
	if err := e.finishRun(ctx, run); err != nil {
		report.Run = *run
		return report, err
	}

	report.Run = *run
	logger.Info("sync finished",
		"playlists", run.PlaylistsTotal, "synced", run.PlaylistsSynced, "failed", run.PlaylistsFailed,
		"added", run.TracksAdded, "blacklisted", run.TracksBlacklisted)
	return report, nil
}

func (e *Engine) startRun(ctx context.Context) (*models.SyncRun, error) {
	if e.runs == nil {
		return &models.SyncRun{ID: shared.GenerateID(), StartedAt: time.Now().UTC(), Status: models.RunRunning}, nil
	}
	return e.runs.Start(ctx)
}

func (e *Engine) finishRun(ctx context.Context, run *models.SyncRun) error {
	if e.runs == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
		return nil
	}
	return e.runs.Finish(context.WithoutCancel(ctx), run)
}

// abort marks run as aborted and records it on a best-effort basis, since the ledger may be the cause.
func (e *Engine) abort(ctx context.Context, run *models.SyncRun, report *models.RunReport, cause error) (*models.RunReport, error) {
	run.Status = models.RunAborted
	run.TracksBlacklisted = e.resolver.Blacklisted()
	if err := e.finishRun(ctx, run); err != nil {
		e.logger.Warn("could not record aborted run", "run", run.Sequence, "error", err)
	}
	report.Run = *run
	e.logger.Error("sync aborted", "run", run.Sequence, "error", cause)
	return report, cause
}

// syncPlaylist brings one playlist's ledger entry and destination copy up to date.
func (e *Engine) syncPlaylist(ctx context.Context, src models.SourcePlaylist, step, total int, progress chan<- ProgressUpdate) (models.PlaylistResult, error) {
	logger := e.logger.With("playlist", src.Name, "id", src.ID)
	result := models.PlaylistResult{SourceID: src.ID, Name: src.Name}

	record, err := e.ledger.GetPlaylist(ctx, src.ID)
	if err != nil {
		return result, err
	}

	switch {
	case record == nil:
		e.sendProgress(progress, fetchTracksUpdate(step, total, src.Name))
		isrcs, err := e.source.PlaylistISRCs(ctx, src)
		if err != nil {
			return result, err
		}

		name := e.sync.PlaylistName(src.Name)
		destID, err := e.dest.CreatePlaylist(ctx, name, e.sync.Description, e.sync.Public)
		if err != nil {
			return result, err
		}
		logger.Info("destination playlist created", "dest_id", destID, "name", name)
		e.sendProgress(progress, createPlaylistUpdate(step, total, name, destID))

		record = &models.PlaylistRecord{SourceID: src.ID, DestID: destID, Name: src.Name}
		if err := e.ingest(ctx, record, src, isrcs); err != nil {
			return result, err
		}
		result.Outcome = models.OutcomeCreated

	case record.Unchanged(src):
		logger.Debug("watermark current, using ledger tracks", "last_modified", record.LastModified)
		result.Outcome = models.OutcomeUnchanged

	default:
		e.sendProgress(progress, fetchTracksUpdate(step, total, src.Name))
		isrcs, err := e.source.PlaylistISRCs(ctx, src)
		if err != nil {
			return result, err
		}

		record.Name = src.Name
		if err := e.ingest(ctx, record, src, isrcs); err != nil {
			return result, err
		}
		result.Outcome = models.OutcomeUpdated
	}

	result.DestID = record.DestID

	expected, err := e.ledger.GetTracks(ctx, src.ID)
	if err != nil {
		return result, err
	}
	result.Expected = len(expected)

	final, added, blacklisted, err := e.reconcile(ctx, logger, record.DestID, expected, step, total, progress)
	if err != nil {
		return result, err
	}
	result.Added = added
	result.Blacklisted = blacklisted

	if e.sync.VerifyAfterSync {
		ok, err := e.verifier.Compare(ctx, logger, expected, final)
		if err != nil {
			return result, err
		}
		result.Verified = &ok
		e.sendProgress(progress, verifyUpdate(step, total, ok))
	}

	logger.Info("playlist synced", "outcome", result.Outcome, "expected", result.Expected, "added", added)
	return result, nil
}

// ingest records the playlist row, replaces its expected tracks, and only then advances the watermark,
// so an interrupted ingest is retried on the next run.
func (e *Engine) ingest(ctx context.Context, record *models.PlaylistRecord, src models.SourcePlaylist, isrcs []string) error {
	watermark := src.LastModified

	record.LastModified = ""
	if err := e.ledger.UpsertPlaylist(ctx, record); err != nil {
		return err
	}
	if err := e.ledger.ReplaceTracks(ctx, src.ID, isrcs); err != nil {
		return err
	}

	record.LastModified = watermark
	return e.ledger.UpsertPlaylist(ctx, record)
}

// reconcile appends every expected track the destination lacks. It never removes tracks.
//
// It returns the post-diff destination membership, the number of tracks added, and the ISRCs skipped as blacklisted.
func (e *Engine) reconcile(ctx context.Context, logger *log.Logger, destID string, expected []string, step, total int, progress chan<- ProgressUpdate) ([]models.DestinationTrack, int, []string, error) {
	current, err := e.dest.PlaylistTracks(ctx, destID)
	if err != nil {
		return nil, 0, nil, err
	}

	resolved, err := e.ledger.LookupResolutions(ctx, expected)
	if err != nil {
		return nil, 0, nil, err
	}

	haveISRC := make(map[string]struct{}, len(current))
	haveID := make(map[string]struct{}, len(current))
	for _, t := range current {
		if t.ISRC != "" {
			haveISRC[t.ISRC] = struct{}{}
		}
		haveID[t.ID] = struct{}{}
	}

	// An ISRC counts as present when the track it resolved to is, whatever that track reports as its own ISRC.
	var missing []string
	for _, isrc := range expected {
		if _, ok := haveISRC[isrc]; ok {
			continue
		}
		if id, ok := resolved[isrc]; ok {
			if _, ok := haveID[id]; ok {
				continue
			}
		}
		missing = append(missing, isrc)
	}
	if len(missing) == 0 {
		return current, 0, nil, nil
	}

	e.sendProgress(progress, resolveTracksUpdate(step, total, len(missing)))

	var (
		ids         []string
		blacklisted []string
		final       = current
	)
	for _, isrc := range missing {
		ref, err := e.resolver.Resolve(ctx, isrc)
		if err != nil {
			if IsRunFatal(err) {
				return nil, 0, nil, err
			}
			logger.Warn("track search failed, skipping", "isrc", isrc, "error", err)
			continue
		}
		if ref == nil {
			blacklisted = append(blacklisted, isrc)
			continue
		}
		if _, ok := haveID[ref.ID]; ok {
			logger.Debug("track already present", "isrc", isrc, "track_id", ref.ID)
			continue
		}

		actual := shared.NormalizeISRC(ref.ISRC)
		if actual == "" {
			actual = isrc
		}
		haveID[ref.ID] = struct{}{}
		ids = append(ids, ref.ID)
		final = append(final, models.DestinationTrack{ID: ref.ID, ISRC: actual})
	}

	if len(ids) == 0 {
		return final, 0, blacklisted, nil
	}

	e.sendProgress(progress, addTracksUpdate(step, total, len(ids)))
	for start := 0; start < len(ids); start += addBatchSize {
		end := min(start+addBatchSize, len(ids))
		if err := e.dest.AddTracks(ctx, destID, ids[start:end]); err != nil {
			return nil, 0, nil, err
		}
	}

	return final, len(ids), blacklisted, nil
}
