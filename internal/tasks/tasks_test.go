package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/tidex/internal/models"
	"github.com/desertthunder/tidex/internal/repositories"
	"github.com/desertthunder/tidex/internal/shared"
	tu "github.com/desertthunder/tidex/internal/testing"
)

const (
	isrcA = "USRC11700001"
	isrcB = "USRC11700002"
	isrcC = "USRC11700003"
	isrcD = "USRC11700004"
	isrcE = "USRC11700005"

	jan = "2024-01-01T00:00:00Z"
	feb = "2024-02-01T00:00:00Z"
)

type harness struct {
	db     *sql.DB
	src    *tu.FakeSource
	dest   *tu.FakeDestination
	ledger *repositories.Ledger
	runs   *repositories.SyncRunRepository
	engine *Engine
}

func testSyncConfig() shared.SyncConfig {
	return shared.SyncConfig{
		NameFormat:      "%s [TIDAL]",
		Description:     "Automatically synced TIDAL playlist",
		Public:          true,
		VerifyAfterSync: true,
	}
}

// newHarness wires an engine to fakes and a migrated temp-file ledger.
func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := shared.NewDatabase(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	require.NoError(t, shared.RunMigrations(db))
	t.Cleanup(func() { db.Close() })

	h := &harness{
		db:     db,
		src:    tu.NewFakeSource(),
		dest:   tu.NewFakeDestination(),
		ledger: repositories.NewLedger(db),
		runs:   repositories.NewSyncRunRepository(db),
	}
	h.engine = NewEngine(EngineOpts{
		Source:      h.src,
		Destination: h.dest,
		Ledger:      h.ledger,
		Runs:        h.runs,
		Sync:        testSyncConfig(),
	})

	h.dest.AddCatalog(isrcA, "t1")
	h.dest.AddCatalog(isrcB, "t2")
	h.dest.AddCatalog(isrcD, "t4")
	return h
}

func (h *harness) run(t *testing.T) *models.RunReport {
	t.Helper()
	report, err := h.engine.Run(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, report)
	return report
}

func TestEngineNewPlaylist(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.src.SetPlaylist("p1", "Road Trip", jan, isrcA, isrcB, isrcC)

	report := h.run(t)

	require.Len(t, report.Playlists, 1)
	result := report.Playlists[0]
	assert.Equal(t, models.OutcomeCreated, result.Outcome)
	assert.Equal(t, 3, result.Expected)
	assert.Equal(t, 2, result.Added)
	assert.Equal(t, []string{isrcC}, result.Blacklisted)
	require.NotNil(t, result.Verified)
	assert.True(t, *result.Verified)
	assert.NoError(t, result.Err)

	assert.Equal(t, []string{"t1", "t2"}, h.dest.Tracks(result.DestID))
	assert.Equal(t, "Road Trip [TIDAL]", h.dest.PlaylistName(result.DestID))

	record, err := h.ledger.GetPlaylist(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, result.DestID, record.DestID)
	assert.Equal(t, jan, record.LastModified)

	tracks, err := h.ledger.GetTracks(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{isrcA, isrcB, isrcC}, tracks)

	blacklisted, err := h.ledger.IsBlacklisted(ctx, isrcC)
	require.NoError(t, err)
	assert.True(t, blacklisted)

	assert.Equal(t, models.RunCompleted, report.Run.Status)
	assert.Equal(t, 1, report.Run.Sequence)
	assert.Equal(t, 1, report.Run.PlaylistsTotal)
	assert.Equal(t, 1, report.Run.PlaylistsSynced)
	assert.Equal(t, 2, report.Run.TracksAdded)
	assert.Equal(t, 1, report.Run.TracksBlacklisted)
	assert.NotNil(t, report.Run.FinishedAt)
}

func TestEngineIdempotent(t *testing.T) {
	h := newHarness(t)
	h.src.SetPlaylist("p1", "Road Trip", jan, isrcA, isrcB, isrcC)

	first := h.run(t)
	second := h.run(t)

	destID := first.Playlists[0].DestID
	result := second.Playlists[0]

	t.Run("second run changes nothing", func(t *testing.T) {
		assert.Equal(t, models.OutcomeUnchanged, result.Outcome)
		assert.Equal(t, destID, result.DestID)
		assert.Zero(t, result.Added)
		assert.Equal(t, 1, h.dest.Created())
		assert.Equal(t, 1, h.dest.Adds())
		assert.Equal(t, []string{"t1", "t2"}, h.dest.Tracks(destID))
	})

	t.Run("watermark short-circuits the track fetch", func(t *testing.T) {
		assert.Equal(t, 1, h.src.Fetches("p1"))
	})

	t.Run("blacklisted ISRC is never searched again", func(t *testing.T) {
		assert.Equal(t, 1, h.dest.Searches(isrcC))
		assert.Equal(t, []string{isrcC}, result.Blacklisted)
		assert.Zero(t, second.Run.TracksBlacklisted)
	})

	t.Run("run sequence advances", func(t *testing.T) {
		assert.Equal(t, 2, second.Run.Sequence)
	})
}

func TestEngineChangedPlaylist(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.src.SetPlaylist("p1", "Road Trip", jan, isrcA, isrcB, isrcC)
	first := h.run(t)
	destID := first.Playlists[0].DestID

	h.src.SetPlaylist("p1", "Road Trip II", feb, isrcB, isrcC, isrcD)
	report := h.run(t)

	result := report.Playlists[0]
	assert.Equal(t, models.OutcomeUpdated, result.Outcome)
	assert.Equal(t, 2, h.src.Fetches("p1"))
	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 1, h.dest.Created())

	// t1 left the source but stays on the destination.
	assert.Equal(t, []string{"t1", "t2", "t4"}, h.dest.Tracks(destID))
	require.NotNil(t, result.Verified)
	assert.False(t, *result.Verified)

	tracks, err := h.ledger.GetTracks(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{isrcB, isrcC, isrcD}, tracks)

	record, err := h.ledger.GetPlaylist(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, feb, record.LastModified)
	assert.Equal(t, "Road Trip II", record.Name)
	assert.Equal(t, destID, record.DestID)
}

func TestEngineMissingWatermark(t *testing.T) {
	h := newHarness(t)
	h.src.SetPlaylist("p1", "No Timestamp", "", isrcA)

	h.run(t)
	report := h.run(t)

	assert.Equal(t, 2, h.src.Fetches("p1"))
	assert.Equal(t, models.OutcomeUpdated, report.Playlists[0].Outcome)
	assert.Zero(t, report.Playlists[0].Added)
}

func TestEngineNeverRemoves(t *testing.T) {
	h := newHarness(t)
	h.src.SetPlaylist("p1", "Road Trip", jan, isrcA)
	first := h.run(t)
	destID := first.Playlists[0].DestID

	h.dest.Insert(destID, models.DestinationTrack{ID: "user-1", ISRC: "GBAYE0000001"})
	h.src.SetPlaylist("p1", "Road Trip", feb, isrcA, isrcB)
	h.run(t)

	assert.Equal(t, []string{"t1", "user-1", "t2"}, h.dest.Tracks(destID))
}

func TestEngineSkipsTracksPresentByID(t *testing.T) {
	h := newHarness(t)
	h.dest.AddCatalog(isrcE, "t1")
	h.src.SetPlaylist("p1", "Duplicates", jan, isrcA, isrcE)

	report := h.run(t)

	assert.Equal(t, 1, report.Playlists[0].Added)
	assert.Equal(t, []string{"t1"}, h.dest.Tracks(report.Playlists[0].DestID))
}

func TestEngineMatchReportingAnotherISRC(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.dest.AddCatalogAs(isrcE, "t5", "GBALT0000005")
	h.src.SetPlaylist("p1", "Remasters", jan, isrcA, isrcE)

	first := h.run(t)
	result := first.Playlists[0]
	destID := result.DestID

	assert.Equal(t, 2, result.Added)
	assert.Equal(t, []string{"t1", "t5"}, h.dest.Tracks(destID))
	require.NotNil(t, result.Verified)
	assert.True(t, *result.Verified)

	ok, err := h.engine.Verifier().Verify(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, ok, "standalone verify must agree with the post-sync check")

	h.src.SetPlaylist("p1", "Remasters", feb, isrcA, isrcE)
	second := h.run(t)
	result = second.Playlists[0]

	assert.Equal(t, models.OutcomeUpdated, result.Outcome)
	assert.Zero(t, result.Added)
	assert.Equal(t, 1, h.dest.Searches(isrcE))
	assert.Equal(t, 1, h.dest.Adds())
	assert.Equal(t, []string{"t1", "t5"}, h.dest.Tracks(destID))
	require.NotNil(t, result.Verified)
	assert.True(t, *result.Verified)
}

func TestEngineSearchFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.src.SetPlaylist("p1", "Road Trip", jan, isrcA, isrcB)
	h.dest.SearchErr[isrcB] = fmt.Errorf("%w: status 500", shared.ErrAPIRequest)

	first := h.run(t)
	destID := first.Playlists[0].DestID

	assert.Equal(t, models.OutcomeCreated, first.Playlists[0].Outcome)
	assert.Equal(t, 1, first.Playlists[0].Added)
	assert.Equal(t, []string{"t1"}, h.dest.Tracks(destID))

	blacklisted, err := h.ledger.IsBlacklisted(ctx, isrcB)
	require.NoError(t, err)
	assert.False(t, blacklisted, "a failed search must not blacklist")

	delete(h.dest.SearchErr, isrcB)
	second := h.run(t)

	assert.Equal(t, 1, second.Playlists[0].Added)
	assert.Equal(t, []string{"t1", "t2"}, h.dest.Tracks(destID))
	assert.Equal(t, 1, h.src.Fetches("p1"))
}

func TestEnginePlaylistFailures(t *testing.T) {
	apiErr := fmt.Errorf("%w: status 500", shared.ErrAPIRequest)

	tests := []struct {
		name   string
		inject func(h *harness, d *flakyDestination)
		// whether the failed playlist leaves a ledger row behind
		recorded bool
	}{
		{
			name:   "source track fetch",
			inject: func(h *harness, d *flakyDestination) { h.src.TrackErr["p1"] = apiErr },
		},
		{
			name:   "destination create",
			inject: func(h *harness, d *flakyDestination) { d.createErr = apiErr },
		},
		{
			name:     "destination membership",
			inject:   func(h *harness, d *flakyDestination) { d.tracksErr = apiErr },
			recorded: true,
		},
		{
			name:     "destination add",
			inject:   func(h *harness, d *flakyDestination) { d.addErr = apiErr },
			recorded: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			h.src.SetPlaylist("p1", "Broken", jan, isrcA)
			h.src.SetPlaylist("p2", "Healthy", jan, isrcB)

			dest := &flakyDestination{FakeDestination: h.dest}
			tt.inject(h, dest)
			engine := NewEngine(EngineOpts{Source: h.src, Destination: dest, Ledger: h.ledger, Runs: h.runs, Sync: testSyncConfig()})

			report, err := engine.Run(ctx, nil)
			require.NoError(t, err)
			require.Len(t, report.Playlists, 2)

			failed := report.Playlists[0]
			assert.Equal(t, models.OutcomeFailed, failed.Outcome)
			assert.ErrorIs(t, failed.Err, shared.ErrAPIRequest)

			assert.Equal(t, models.OutcomeCreated, report.Playlists[1].Outcome)
			assert.Equal(t, models.RunCompleted, report.Run.Status)
			assert.Equal(t, 1, report.Run.PlaylistsFailed)
			assert.Equal(t, 1, report.Run.PlaylistsSynced)

			exists, err := h.ledger.PlaylistExists(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, tt.recorded, exists)
		})
	}
}

func TestEngineRunFatal(t *testing.T) {
	ctx := context.Background()

	t.Run("credential failure aborts", func(t *testing.T) {
		h := newHarness(t)
		h.src.SetPlaylist("p1", "First", jan, isrcA)
		h.src.SetPlaylist("p2", "Second", jan, isrcB)
		h.src.TrackErr["p1"] = fmt.Errorf("%w: refresh token revoked", shared.ErrNotAuthenticated)

		report, err := h.engine.Run(ctx, nil)
		require.ErrorIs(t, err, shared.ErrNotAuthenticated)
		require.NotNil(t, report)
		assert.Equal(t, models.RunAborted, report.Run.Status)
		assert.Len(t, report.Playlists, 1)
		assert.Zero(t, h.src.Fetches("p2"))

		runs, err := h.runs.List(ctx, 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, models.RunAborted, runs[0].Status)
	})

	t.Run("search credential failure aborts", func(t *testing.T) {
		h := newHarness(t)
		h.src.SetPlaylist("p1", "First", jan, isrcA)
		h.dest.SearchErr[isrcA] = fmt.Errorf("%w", shared.ErrNotAuthenticated)

		_, err := h.engine.Run(ctx, nil)
		assert.ErrorIs(t, err, shared.ErrNotAuthenticated)
	})

	t.Run("listing failure aborts", func(t *testing.T) {
		h := newHarness(t)
		h.src.ListErr = fmt.Errorf("%w: status 503", shared.ErrAPIRequest)

		report, err := h.engine.Run(ctx, nil)
		assert.ErrorIs(t, err, shared.ErrAPIRequest)
		require.NotNil(t, report)
		assert.Equal(t, models.RunAborted, report.Run.Status)
	})

	t.Run("ledger failure aborts", func(t *testing.T) {
		h := newHarness(t)
		h.src.SetPlaylist("p1", "First", jan, isrcA)
		engine := NewEngine(EngineOpts{Source: h.src, Destination: h.dest, Ledger: h.ledger, Sync: testSyncConfig()})
		require.NoError(t, h.db.Close())

		report, err := engine.Run(ctx, nil)
		assert.ErrorIs(t, err, shared.ErrLedger)
		require.NotNil(t, report)
		assert.Equal(t, models.RunAborted, report.Run.Status)
		assert.Zero(t, h.dest.Created())
	})

	t.Run("cancellation aborts", func(t *testing.T) {
		h := newHarness(t)
		h.src.SetPlaylist("p1", "First", jan, isrcA)
		h.src.TrackErr["p1"] = context.Canceled

		_, err := h.engine.Run(ctx, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestEngineMissingDependencies(t *testing.T) {
	engine := NewEngine(EngineOpts{})
	_, err := engine.Run(context.Background(), nil)
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
}

func TestEngineMemoizesWithinRun(t *testing.T) {
	h := newHarness(t)
	h.src.SetPlaylist("p1", "One", jan, isrcA, isrcC)
	h.src.SetPlaylist("p2", "Two", jan, isrcA, isrcC)

	report := h.run(t)

	assert.Equal(t, 1, h.dest.Searches(isrcA))
	assert.Equal(t, 1, h.dest.Searches(isrcC))
	assert.Equal(t, 1, report.Run.TracksBlacklisted)
	assert.Equal(t, []string{"t1"}, h.dest.Tracks(report.Playlists[1].DestID))
}

func TestEngineRecordsRuns(t *testing.T) {
	h := newHarness(t)
	h.src.SetPlaylist("p1", "One", jan, isrcA)
	h.run(t)
	h.run(t)

	runs, err := h.runs.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 2, runs[0].Sequence)
	assert.Equal(t, models.RunCompleted, runs[0].Status)
	assert.Equal(t, 1, runs[1].TracksAdded)
}

func TestEngineProgress(t *testing.T) {
	t.Run("sends updates", func(t *testing.T) {
		h := newHarness(t)
		h.src.SetPlaylist("p1", "One", jan, isrcA, isrcC)

		progress := make(chan ProgressUpdate, 64)
		_, err := h.engine.Run(context.Background(), progress)
		require.NoError(t, err)
		close(progress)

		var phases []Phase
		for update := range progress {
			phases = append(phases, update.Phase)
		}
		assert.Equal(t, []Phase{
			FetchPlaylists, FetchPlaylists, SyncPlaylist, FetchTracks, CreatePlaylist,
			ResolveTracks, AddTracks, Verify, PlaylistDone,
		}, phases)
	})

	t.Run("never blocks on a full channel", func(t *testing.T) {
		h := newHarness(t)
		h.src.SetPlaylist("p1", "One", jan, isrcA)

		progress := make(chan ProgressUpdate)
		report, err := h.engine.Run(context.Background(), progress)
		require.NoError(t, err)
		assert.Equal(t, models.RunCompleted, report.Run.Status)
	})
}

func TestIsRunFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"ledger", fmt.Errorf("%w: upsert: disk I/O error", shared.ErrLedger), true},
		{"credentials", fmt.Errorf("%w: %w", shared.ErrNotAuthenticated, shared.ErrRefreshFailed), true},
		{"canceled", context.Canceled, true},
		{"deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), true},
		{"api", fmt.Errorf("%w: status 500", shared.ErrAPIRequest), false},
		{"not found", shared.ErrPlaylistNotFound, false},
		{"other", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRunFatal(tt.err))
		})
	}
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "fetch_playlists", FetchPlaylists.String())
	assert.Equal(t, "resolve_tracks", ResolveTracks.String())
	assert.Equal(t, "playlist_failed", PlaylistFailed.String())
	assert.Equal(t, "", Phase(99).String())
}

// flakyDestination fails the first call of each injected kind, then behaves normally.
type flakyDestination struct {
	*tu.FakeDestination
	createErr error
	tracksErr error
	addErr    error
}

func (f *flakyDestination) CreatePlaylist(ctx context.Context, name, description string, public bool) (string, error) {
	if err := once(&f.createErr); err != nil {
		return "", err
	}
	return f.FakeDestination.CreatePlaylist(ctx, name, description, public)
}

func (f *flakyDestination) PlaylistTracks(ctx context.Context, id string) ([]models.DestinationTrack, error) {
	if err := once(&f.tracksErr); err != nil {
		return nil, err
	}
	return f.FakeDestination.PlaylistTracks(ctx, id)
}

func (f *flakyDestination) AddTracks(ctx context.Context, id string, trackIDs []string) error {
	if err := once(&f.addErr); err != nil {
		return err
	}
	return f.FakeDestination.AddTracks(ctx, id, trackIDs)
}

func once(slot *error) error {
	err := *slot
	*slot = nil
	return err
}
