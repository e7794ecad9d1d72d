package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tidex/internal/auth"
	"github.com/desertthunder/tidex/internal/shared"
	"github.com/desertthunder/tidex/internal/ui"
)

var authServices = []string{auth.ServiceTidal, auth.ServiceSpotify}

// Authorize runs the interactive OAuth flow for the service named by the subcommand and stores the token.
//
// Starts a local HTTP server, opens the browser for user authorization, and exchanges the code with PKCE.
func (r *Runner) Authorize(ctx context.Context, cmd *cli.Command) error {
	service := cmd.Name
	if err := r.prepare(cmd); err != nil {
		return err
	}

	creds := r.credentialsFor(service)
	config, err := auth.Config(service, creds)
	if err != nil {
		return fmt.Errorf("%w: set credentials.%s client_id and client_secret in your config", err, service)
	}

	if err := r.openLedger(); err != nil {
		return err
	}
	defer r.close()

	token, err := auth.Authorize(ctx, auth.AuthorizeOpts{
		Service:     service,
		Config:      config,
		Addr:        r.callbackAddr(creds.RedirectURI),
		Timeout:     cmd.Duration("timeout"),
		OpenBrowser: r.openBrowser,
		Output:      r.output,
		Logger:      r.logger,
	})
	if err != nil {
		return err
	}

	if err := r.credentials.Save(ctx, service, token); err != nil {
		return err
	}

	r.logger.Info("credentials stored", "service", service)
	return r.writePlainln("%s", ui.Success(fmt.Sprintf("✓ %s authorization successful", auth.DisplayName(service))))
}

// AuthStatus reports which services have stored credentials.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.prepare(cmd); err != nil {
		return err
	}
	if err := r.openLedger(); err != nil {
		return err
	}
	defer r.close()

	for _, service := range authServices {
		name := auth.DisplayName(service)
		token, err := r.credentials.Load(ctx, service)
		if err != nil {
			return err
		}

		switch {
		case token == nil:
			r.writePlain("%s: %s\n", name, ui.Error("✗ not connected"))
		case token.Valid() && token.Expiry.IsZero():
			r.writePlain("%s: %s\n", name, ui.Success("✓ connected"))
		case token.Valid():
			r.writePlain("%s: %s (expires %s)\n", name, ui.Success("✓ connected"), token.Expiry.Local().Format(time.RFC1123))
		case token.RefreshToken != "":
			r.writePlain("%s: %s\n", name, ui.Warning("✓ connected, token will refresh on next use"))
		default:
			r.writePlain("%s: %s\n", name, ui.Error(fmt.Sprintf("✗ expired, run 'tidex auth %s'", service)))
		}
	}
	return nil
}

// AuthLogout deletes the stored token for a service.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	service := cmd.StringArg("service")
	if service == "" {
		return fmt.Errorf("%w: service (tidal or spotify)", shared.ErrMissingArgument)
	}
	if service != auth.ServiceTidal && service != auth.ServiceSpotify {
		return fmt.Errorf("%w: unknown service %q", shared.ErrInvalidArgument, service)
	}

	if err := r.prepare(cmd); err != nil {
		return err
	}
	if err := r.openLedger(); err != nil {
		return err
	}
	defer r.close()

	if err := r.credentials.Delete(ctx, service); err != nil {
		return err
	}
	return r.writePlain("✓ Removed %s credentials\n", auth.DisplayName(service))
}

func (r *Runner) credentialsFor(service string) shared.OAuthConfig {
	if service == auth.ServiceTidal {
		return r.config.Credentials.Tidal
	}
	return r.config.Credentials.Spotify
}
