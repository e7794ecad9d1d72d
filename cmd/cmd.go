// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
		Sources: cli.EnvVars("TIDEX_CONFIG"),
	}
}

// setupCommand handles configuration and database setup.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config.toml template",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize the ledger database and run migrations",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent database migration",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupRollback,
			},
		},
	}
}

// authCommand handles OAuth authorization for both services.
func authCommand(r *Runner) *cli.Command {
	authorizeFlags := func() []cli.Flag {
		return []cli.Flag{
			configFlag(),
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the browser callback",
			},
		}
	}

	return &cli.Command{
		Name:  "auth",
		Usage: "Manage TIDAL and Spotify authorization",
		Commands: []*cli.Command{
			{
				Name:   "tidal",
				Usage:  "Authorize read access to your TIDAL playlists",
				Flags:  authorizeFlags(),
				Action: r.Authorize,
			},
			{
				Name:   "spotify",
				Usage:  "Authorize playlist management on Spotify",
				Flags:  authorizeFlags(),
				Action: r.Authorize,
			},
			{
				Name:   "status",
				Usage:  "Show stored credentials",
				Flags:  []cli.Flag{configFlag()},
				Action: r.AuthStatus,
			},
			{
				Name:  "logout",
				Usage: "Delete stored credentials for a service",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "service"},
				},
				Flags:  []cli.Flag{configFlag()},
				Action: r.AuthLogout,
			},
		},
	}
}

// syncCommand runs the reconciliation engine.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Mirror every TIDAL playlist to Spotify",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "verify",
				Usage: "Verify each playlist after syncing (overrides sync.verify_after_sync)",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show live progress in an interactive terminal UI",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Where logs go while the TUI is running",
				Value: "tidex-tui.log",
			},
			&cli.StringFlag{
				Name:    "report",
				Aliases: []string{"r"},
				Usage:   "Write a Markdown run report to this path",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output the run report as JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print JSON output",
				Value: true,
			},
		},
		Action: r.Sync,
	}
}

// verifyCommand compares destination playlists with the ledger.
func verifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Check that Spotify playlists carry the ledger's tracks in order",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "source-id",
				Usage: "TIDAL playlist ID to verify (default: every synced playlist)",
			},
		},
		Action: r.Verify,
	}
}

// ledgerCommand inspects and exports the local ledger.
func ledgerCommand(r *Runner) *cli.Command {
	outputFlags := func() []cli.Flag {
		return []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print JSON output",
				Value: true,
			},
		}
	}

	return &cli.Command{
		Name:  "ledger",
		Usage: "Inspect the local sync ledger",
		Commands: []*cli.Command{
			{
				Name:   "playlists",
				Usage:  "List mirrored playlists",
				Flags:  outputFlags(),
				Action: r.LedgerPlaylists,
			},
			{
				Name:   "tracks",
				Usage:  "List the expected ISRCs of a mirrored playlist",
				Flags:  append(outputFlags(), &cli.StringFlag{Name: "source-id", Usage: "TIDAL playlist ID", Required: true}),
				Action: r.LedgerTracks,
			},
			{
				Name:   "blacklist",
				Usage:  "List ISRCs with no Spotify match",
				Flags:  outputFlags(),
				Action: r.LedgerBlacklist,
			},
			{
				Name:  "export",
				Usage: "Export playlists, tracks, and blacklist as CSV",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:    "dir",
						Aliases: []string{"o"},
						Usage:   "Output directory",
						Value:   "ledger-export",
					},
				},
				Action: r.LedgerExport,
			},
		},
	}
}

// historyCommand lists recorded sync runs.
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recent sync runs",
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs to show (0 for all)",
				Value: 20,
			},
			&cli.BoolFlag{
				Name:  "csv",
				Usage: "Output CSV",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.History,
	}
}
