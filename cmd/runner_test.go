package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/desertthunder/tidex/internal/models"
	"github.com/desertthunder/tidex/internal/repositories"
	"github.com/desertthunder/tidex/internal/shared"
	tu "github.com/desertthunder/tidex/internal/testing"
)

const (
	isrcOne   = "USRC11700001"
	isrcTwo   = "USRC11700002"
	isrcThree = "USRC11700003"
)

type testEnv struct {
	runner *Runner
	output *bytes.Buffer
	db     *sql.DB
	src    *tu.FakeSource
	dest   *tu.FakeDestination
	dir    string
}

// newTestEnv builds a runner over fakes and a migrated temp-file database.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(dir, "ledger.db")

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	src := tu.NewFakeSource()
	dest := tu.NewFakeDestination()
	output := &bytes.Buffer{}

	return &testEnv{
		runner: NewRunner(RunnerOpts{
			Config:      config,
			DB:          db,
			Source:      src,
			Destination: dest,
			Logger:      shared.NewLogger(&bytes.Buffer{}),
			Output:      output,
		}),
		output: output,
		db:     db,
		src:    src,
		dest:   dest,
		dir:    dir,
	}
}

// run executes args against the registered commands.
func (e *testEnv) run(t *testing.T, args ...string) error {
	t.Helper()
	e.output.Reset()

	app := &cli.Command{Name: "tidex", Commands: e.runner.register()}
	return app.Run(context.Background(), append([]string{"tidex"}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			src := tu.NewFakeSource()
			dest := tu.NewFakeDestination()

			runner := NewRunner(RunnerOpts{
				Config:      config,
				Logger:      logger,
				Output:      output,
				HTTPClient:  httpClient,
				Source:      src,
				Destination: dest,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.source != src {
				t.Error("expected source to be set")
			}
			if runner.destination != dest {
				t.Error("expected destination to be set")
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config != nil {
				t.Error("expected config to be loaded lazily")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to stdout")
			}
			if runner.httpClient != http.DefaultClient {
				t.Error("expected default http client")
			}
			if runner.openBrowser == nil {
				t.Error("expected browser opener to be set")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if result := output.String(); result != expected {
				t.Errorf("expected %q, got %q", expected, result)
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if result := output.String(); result != "hello world" {
				t.Errorf("expected 'hello world', got %q", result)
			}
		})

		t.Run("writePlainln pads with newlines", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlainln("done"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if result := output.String(); result != "\ndone\n" {
				t.Errorf("expected %q, got %q", "\ndone\n", result)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			if err := runner.writePlain("test"); err == nil {
				t.Fatal("expected error from failing writer")
			}
			if err := runner.writePlainln("test"); err == nil {
				t.Fatal("expected error from failing writer")
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		names := map[string]bool{}
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			names[cmd.Name] = true
		}

		for _, want := range []string{"setup", "auth", "sync", "verify", "ledger", "history"} {
			if !names[want] {
				t.Errorf("expected %q command to be registered", want)
			}
		}
	})

	t.Run("prepare", func(t *testing.T) {
		t.Run("missing config file", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}, Logger: shared.NewLogger(&bytes.Buffer{})})
			app := &cli.Command{Name: "tidex", Commands: runner.register()}

			missing := filepath.Join(t.TempDir(), "nope.toml")
			err := app.Run(context.Background(), []string{"tidex", "history", "--config", missing})
			if !errors.Is(err, shared.ErrMissingConfig) {
				t.Errorf("expected ErrMissingConfig, got %v", err)
			}
		})

		t.Run("invalid injected config", func(t *testing.T) {
			env := newTestEnv(t)
			env.runner.config.Sync.CountryCode = ""

			if err := env.run(t, "history"); !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	})
}

func TestSetupCommands(t *testing.T) {
	t.Run("config writes template", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output, Logger: shared.NewLogger(&bytes.Buffer{})})
		app := &cli.Command{Name: "tidex", Commands: runner.register()}

		if err := app.Run(context.Background(), []string{"tidex", "setup", "config", "--config", path}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		tu.AssertFileExists(t, path)
		if !strings.Contains(output.String(), "Config written to") {
			t.Errorf("unexpected output: %s", output.String())
		}

		if err := app.Run(context.Background(), []string{"tidex", "setup", "config", "--config", path}); err == nil {
			t.Error("expected error when config already exists")
		}
	})

	t.Run("database creates config and schema", func(t *testing.T) {
		dir := t.TempDir()
		wd := tu.MustGetwd(t)
		tu.MustChdir(t, dir)
		t.Cleanup(func() { tu.MustChdir(t, wd) })

		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output, Logger: shared.NewLogger(&bytes.Buffer{})})
		app := &cli.Command{Name: "tidex", Commands: runner.register()}

		if err := app.Run(context.Background(), []string{"tidex", "setup", "database"}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		tu.AssertFileExists(t, filepath.Join(dir, "config.toml"))
		tu.AssertFileExists(t, filepath.Join(dir, runner.config.Database.Path))
		if !strings.Contains(output.String(), "Database ready") {
			t.Errorf("unexpected output: %s", output.String())
		}
	})

	t.Run("rollback steps back one version", func(t *testing.T) {
		env := newTestEnv(t)
		before, err := shared.CurrentVersion(env.db)
		if err != nil {
			t.Fatalf("failed to read version: %v", err)
		}

		if err := env.run(t, "setup", "rollback"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		after, err := shared.CurrentVersion(env.db)
		if err != nil {
			t.Fatalf("failed to read version: %v", err)
		}
		if after != before-1 {
			t.Errorf("expected version %d, got %d", before-1, after)
		}
	})
}

func TestAuthCommands(t *testing.T) {
	t.Run("status reports stored credentials", func(t *testing.T) {
		env := newTestEnv(t)
		creds := repositories.NewCredentialRepository(env.db)
		err := creds.Save(context.Background(), "tidal", &oauth2.Token{AccessToken: "a", RefreshToken: "r"})
		if err != nil {
			t.Fatalf("failed to save token: %v", err)
		}

		if err := env.run(t, "auth", "status"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		out := env.output.String()
		if !strings.Contains(out, "TIDAL") || !strings.Contains(out, "Spotify") {
			t.Errorf("expected both services listed, got %s", out)
		}
		if !strings.Contains(out, "not connected") {
			t.Errorf("expected spotify to be disconnected, got %s", out)
		}
	})

	t.Run("logout deletes credentials", func(t *testing.T) {
		env := newTestEnv(t)
		creds := repositories.NewCredentialRepository(env.db)
		ctx := context.Background()
		if err := creds.Save(ctx, "spotify", &oauth2.Token{AccessToken: "a"}); err != nil {
			t.Fatalf("failed to save token: %v", err)
		}

		if err := env.run(t, "auth", "logout", "spotify"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		token, err := creds.Load(ctx, "spotify")
		if err != nil {
			t.Fatalf("failed to load token: %v", err)
		}
		if token != nil {
			t.Error("expected token to be deleted")
		}
	})

	t.Run("logout validates service", func(t *testing.T) {
		env := newTestEnv(t)

		if err := env.run(t, "auth", "logout"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
		if err := env.run(t, "auth", "logout", "deezer"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestSyncCommand(t *testing.T) {
	seed := func(env *testEnv) {
		env.src.SetPlaylist("pl-1", "Morning", "2024-01-01T00:00:00Z", isrcOne, isrcTwo, isrcThree)
		env.dest.AddCatalog(isrcOne, "t1")
		env.dest.AddCatalog(isrcTwo, "t2")
	}

	t.Run("mirrors playlists and prints report", func(t *testing.T) {
		env := newTestEnv(t)
		seed(env)

		if err := env.run(t, "sync"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if env.dest.Created() != 1 {
			t.Errorf("expected one destination playlist, got %d", env.dest.Created())
		}
		if got := env.dest.Tracks("dest-1"); len(got) != 2 {
			t.Errorf("expected 2 tracks added, got %v", got)
		}

		out := env.output.String()
		if !strings.Contains(out, "Morning") {
			t.Errorf("expected playlist in output, got %s", out)
		}
		if !strings.Contains(out, "Sync complete") {
			t.Errorf("expected completion title, got %s", out)
		}
	})

	t.Run("json output and markdown report", func(t *testing.T) {
		env := newTestEnv(t)
		seed(env)
		reportPath := filepath.Join(env.dir, "run.md")

		if err := env.run(t, "sync", "--json", "--pretty=false", "--report", reportPath); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var report reportJSON
		if err := json.Unmarshal(env.output.Bytes(), &report); err != nil {
			t.Fatalf("expected JSON report, got %q: %v", env.output.String(), err)
		}
		if report.Run.Status != models.RunCompleted {
			t.Errorf("expected completed run, got %s", report.Run.Status)
		}
		if len(report.Playlists) != 1 || report.Playlists[0].Added != 2 {
			t.Errorf("unexpected playlists: %+v", report.Playlists)
		}
		if got := report.Playlists[0].Blacklisted; len(got) != 1 || got[0] != isrcThree {
			t.Errorf("expected %s blacklisted, got %v", isrcThree, got)
		}

		content := tu.MustReadFile(t, reportPath)
		if !strings.Contains(content, "Morning") {
			t.Errorf("expected playlist in markdown report, got %s", content)
		}
	})

	t.Run("second run adds nothing", func(t *testing.T) {
		env := newTestEnv(t)
		seed(env)

		if err := env.run(t, "sync"); err != nil {
			t.Fatalf("first run failed: %v", err)
		}
		adds := env.dest.Adds()

		if err := env.run(t, "sync", "--verify"); err != nil {
			t.Fatalf("second run failed: %v", err)
		}
		if env.dest.Adds() != adds {
			t.Errorf("expected no additional adds, got %d", env.dest.Adds()-adds)
		}
		if env.dest.Created() != 1 {
			t.Errorf("expected no new playlists, got %d", env.dest.Created())
		}
	})

	t.Run("playlist failure still succeeds", func(t *testing.T) {
		env := newTestEnv(t)
		seed(env)
		env.src.SetPlaylist("pl-2", "Evening", "2024-01-01T00:00:00Z", isrcOne)
		env.src.TrackErr = map[string]error{"pl-2": shared.ErrAPIRequest}

		if err := env.run(t, "sync"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(env.output.String(), "failures") {
			t.Errorf("expected failure title, got %s", env.output.String())
		}
	})

	t.Run("run-fatal error is returned", func(t *testing.T) {
		env := newTestEnv(t)
		env.src.ListErr = shared.ErrNotAuthenticated

		if err := env.run(t, "sync"); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
		if !strings.Contains(env.output.String(), "Sync aborted") {
			t.Errorf("expected aborted title, got %s", env.output.String())
		}
	})
}

func TestVerifyCommand(t *testing.T) {
	setup := func(t *testing.T) *testEnv {
		env := newTestEnv(t)
		env.src.SetPlaylist("pl-1", "Morning", "2024-01-01T00:00:00Z", isrcOne, isrcTwo)
		env.dest.AddCatalog(isrcOne, "t1")
		env.dest.AddCatalog(isrcTwo, "t2")
		if err := env.run(t, "sync"); err != nil {
			t.Fatalf("sync failed: %v", err)
		}
		return env
	}

	t.Run("all playlists match", func(t *testing.T) {
		env := setup(t)

		if err := env.run(t, "verify"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(env.output.String(), "All 1 playlists match") {
			t.Errorf("unexpected output: %s", env.output.String())
		}
	})

	t.Run("reports drift without repairing", func(t *testing.T) {
		env := setup(t)
		env.dest.Remove("dest-1", "t2")

		if err := env.run(t, "verify", "--source-id", "pl-1"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(env.output.String(), "1 of 1 playlists differ") {
			t.Errorf("unexpected output: %s", env.output.String())
		}
		if got := env.dest.Tracks("dest-1"); len(got) != 1 {
			t.Errorf("expected verify not to repair, got %v", got)
		}
	})

	t.Run("unknown playlist", func(t *testing.T) {
		env := setup(t)

		if err := env.run(t, "verify", "--source-id", "missing"); !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound, got %v", err)
		}
	})

	t.Run("empty ledger", func(t *testing.T) {
		env := newTestEnv(t)

		if err := env.run(t, "verify"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(env.output.String(), "No synced playlists") {
			t.Errorf("unexpected output: %s", env.output.String())
		}
	})
}

func TestLedgerCommands(t *testing.T) {
	env := newTestEnv(t)
	env.src.SetPlaylist("pl-1", "Morning", "2024-01-01T00:00:00Z", isrcOne, isrcThree)
	env.dest.AddCatalog(isrcOne, "t1")
	if err := env.run(t, "sync"); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	t.Run("playlists as JSON", func(t *testing.T) {
		if err := env.run(t, "ledger", "playlists", "--json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var records []models.PlaylistRecord
		if err := json.Unmarshal(env.output.Bytes(), &records); err != nil {
			t.Fatalf("expected JSON, got %q: %v", env.output.String(), err)
		}
		if len(records) != 1 || records[0].SourceID != "pl-1" || records[0].DestID != "dest-1" {
			t.Errorf("unexpected records: %+v", records)
		}
	})

	t.Run("playlists as text", func(t *testing.T) {
		if err := env.run(t, "ledger", "playlists"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(env.output.String(), "pl-1") {
			t.Errorf("unexpected output: %s", env.output.String())
		}
	})

	t.Run("tracks marks blacklisted", func(t *testing.T) {
		if err := env.run(t, "ledger", "tracks", "--source-id", "pl-1"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		out := env.output.String()
		if !strings.Contains(out, "1. "+isrcOne) {
			t.Errorf("expected ordered tracks, got %s", out)
		}
		if !strings.Contains(out, "no Spotify match") {
			t.Errorf("expected blacklisted marker, got %s", out)
		}
	})

	t.Run("tracks requires a known playlist", func(t *testing.T) {
		if err := env.run(t, "ledger", "tracks", "--source-id", "nope"); !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound, got %v", err)
		}
	})

	t.Run("blacklist", func(t *testing.T) {
		if err := env.run(t, "ledger", "blacklist"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(env.output.String(), isrcThree) {
			t.Errorf("unexpected output: %s", env.output.String())
		}
	})

	t.Run("export", func(t *testing.T) {
		dir := filepath.Join(env.dir, "export")

		if err := env.run(t, "ledger", "export", "--dir", dir); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		tu.AssertDirExists(t, dir)
		for _, name := range []string{"playlists.csv", "tracks.csv", "blacklist.csv"} {
			tu.AssertFileExists(t, filepath.Join(dir, name))
		}
		if !strings.Contains(tu.MustReadFile(t, filepath.Join(dir, "tracks.csv")), isrcOne) {
			t.Error("expected tracks.csv to contain ledger tracks")
		}
	})
}

func TestHistoryCommand(t *testing.T) {
	env := newTestEnv(t)
	env.src.SetPlaylist("pl-1", "Morning", "2024-01-01T00:00:00Z", isrcOne)
	env.dest.AddCatalog(isrcOne, "t1")
	for range 2 {
		if err := env.run(t, "sync"); err != nil {
			t.Fatalf("sync failed: %v", err)
		}
	}

	t.Run("text lists newest first", func(t *testing.T) {
		if err := env.run(t, "history"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		out := env.output.String()
		first, second := strings.Index(out, "#2"), strings.Index(out, "#1")
		if first < 0 || second < 0 || first > second {
			t.Errorf("expected run #2 before #1, got %s", out)
		}
	})

	t.Run("limit and JSON", func(t *testing.T) {
		if err := env.run(t, "history", "--limit", "1", "--json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var runs []models.SyncRun
		if err := json.Unmarshal(env.output.Bytes(), &runs); err != nil {
			t.Fatalf("expected JSON, got %q: %v", env.output.String(), err)
		}
		if len(runs) != 1 || runs[0].Sequence != 2 {
			t.Errorf("unexpected runs: %+v", runs)
		}
	})

	t.Run("CSV", func(t *testing.T) {
		if err := env.run(t, "history", "--csv"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if lines := strings.Split(strings.TrimSpace(env.output.String()), "\n"); len(lines) != 3 {
			t.Errorf("expected header and two rows, got %d lines", len(lines))
		}
	})
}
