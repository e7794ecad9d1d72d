package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/desertthunder/tidex/internal/auth"
	"github.com/desertthunder/tidex/internal/repositories"
	"github.com/desertthunder/tidex/internal/services"
	"github.com/desertthunder/tidex/internal/shared"
	"github.com/desertthunder/tidex/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Dependencies left nil are built lazily from the loaded configuration.
type Runner struct {
	config      *shared.Config
	db          *sql.DB
	ownsDB      bool
	ledger      *repositories.Ledger
	runs        *repositories.SyncRunRepository
	credentials *repositories.CredentialRepository
	source      services.Source
	destination services.Destination
	httpClient  *http.Client
	logger      *log.Logger
	output      io.Writer
	openBrowser func(string) error
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config      *shared.Config
	DB          *sql.DB
	Source      services.Source
	Destination services.Destination
	HTTPClient  *http.Client
	Logger      *log.Logger
	Output      io.Writer
	OpenBrowser func(string) error
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}

	return &Runner{
		config:      opts.Config,
		db:          opts.DB,
		source:      opts.Source,
		destination: opts.Destination,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		output:      opts.Output,
		openBrowser: opts.OpenBrowser,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, syncCommand, verifyCommand, ledgerCommand, historyCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// prepare loads and validates the configuration named by the --config flag unless one was injected.
func (r *Runner) prepare(cmd *cli.Command) error {
	if r.config == nil {
		path := cmd.String("config")
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%w: %s (run 'tidex setup config' to create one)", shared.ErrMissingConfig, path)
		}

		config, err := shared.LoadConfig(path)
		if err != nil {
			return fmt.Errorf("%w: %w", shared.ErrInvalidConfig, err)
		}
		r.config = config
	}

	if err := r.config.Validate(); err != nil {
		return err
	}
	shared.SetLogLevel(r.logger, r.config.Log.Level)
	return nil
}

// openLedger opens and migrates the database unless one was injected, then builds the repositories.
func (r *Runner) openLedger() error {
	if r.db == nil {
		db, err := shared.NewDatabase(r.config.Database.Path)
		if err != nil {
			return fmt.Errorf("%w: %w", shared.ErrLedger, err)
		}
		shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

		if err := shared.RunMigrations(db); err != nil {
			db.Close()
			return fmt.Errorf("%w: failed to run migrations: %w", shared.ErrLedger, err)
		}
		r.db = db
		r.ownsDB = true
	}

	r.ledger = repositories.NewLedger(r.db)
	r.runs = repositories.NewSyncRunRepository(r.db)
	r.credentials = repositories.NewCredentialRepository(r.db)
	return nil
}

// close releases a database opened by openLedger.
func (r *Runner) close() {
	if r.ownsDB && r.db != nil {
		if err := r.db.Close(); err != nil {
			r.logger.Warn("failed to close database", "error", err)
		}
		r.db = nil
		r.ownsDB = false
	}
}

// connect builds the TIDAL and Spotify clients that were not injected.
func (r *Runner) connect(ctx context.Context) error {
	if r.source == nil {
		client, err := r.serviceClient(ctx, auth.ServiceTidal, r.config.Credentials.Tidal, 0)
		if err != nil {
			return err
		}
		r.source = services.NewTidalService(client,
			services.WithCountryCode(r.config.Sync.CountryCode),
			services.WithTrackBatchSize(r.config.Sync.TrackBatchSize),
			services.WithRateBudget(services.NewRateBudget(r.config.Sync.WaitStep())),
			services.WithTidalLogger(shared.WithLogger(r.logger, "service", "tidal")),
		)
	}

	if r.destination == nil {
		client, err := r.serviceClient(ctx, auth.ServiceSpotify, r.config.Credentials.Spotify, r.config.Sync.RequestsPerSecond)
		if err != nil {
			return err
		}
		r.destination = services.NewSpotifyService(client, services.WithSpotifyLogger(shared.WithLogger(r.logger, "service", "spotify")))
	}
	return nil
}

func (r *Runner) serviceClient(ctx context.Context, service string, creds shared.OAuthConfig, rps float64) (*http.Client, error) {
	config, err := auth.Config(service, creds)
	if err != nil {
		return nil, err
	}

	refreshCtx := context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	provider := auth.NewProvider(refreshCtx, service, config, r.credentials, shared.WithLogger(r.logger, "service", service))

	return services.NewHTTPClient(services.TransportConfig{
		Credential:        provider,
		DefaultRetryAfter: r.config.Sync.DefaultRetryAfter(),
		RequestsPerSecond: rps,
		Logger:            shared.WithLogger(r.logger, "service", service),
		Base:              r.httpClient.Transport,
	}), nil
}

func (r *Runner) engine(sync shared.SyncConfig) *tasks.Engine {
	return tasks.NewEngine(tasks.EngineOpts{
		Source:      r.source,
		Destination: r.destination,
		Ledger:      r.ledger,
		Runs:        r.runs,
		Sync:        sync,
		Logger:      r.logger,
	})
}

// callbackAddr is the bind address of the local OAuth callback server.
func (r *Runner) callbackAddr(redirectURI string) string {
	fallback := net.JoinHostPort(r.config.Server.Host, strconv.Itoa(r.config.Server.Port))
	return auth.ListenAddr(redirectURI, fallback)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
