package auth

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/tidex/internal/server"
	"github.com/desertthunder/tidex/internal/shared"
)

const defaultAuthorizeTimeout = 2 * time.Minute

// AuthorizeOpts configures an interactive authorization.
type AuthorizeOpts struct {
	Service     string
	Config      *oauth2.Config
	Addr        string // callback server bind address
	Timeout     time.Duration
	OpenBrowser func(url string) error
	Output      io.Writer
	Logger      *log.Logger
}

// Authorize runs the PKCE authorization-code flow and returns the exchanged token.
func Authorize(ctx context.Context, opts AuthorizeOpts) (*oauth2.Token, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultAuthorizeTimeout
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	name := DisplayName(opts.Service)

	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}
	verifier := oauth2.GenerateVerifier()

	authURL := opts.Config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))
	handler := server.NewOAuthHandler(opts.Config, name, state, oauth2.VerifierOption(verifier))

	router := server.NewCallbackRouter()
	router.Use(server.RequestLogger(opts.Logger))
	router.Handler(handler)

	httpServer, serverErrors, err := server.Start(opts.Addr, router)
	if err != nil {
		return nil, err
	}
	opts.Logger.Infof("started OAuth callback server for %s at %v", name, opts.Addr)

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			opts.Logger.Warn("error shutting down server", "error", err)
		}
	}()

	fmt.Fprintf(opts.Output, "→ Opening browser for %s authorization...\n", name)
	if err := opts.OpenBrowser(authURL); err != nil {
		opts.Logger.Warnf("failed to open browser automatically %v", err)
		fmt.Fprintln(opts.Output, "⚠ Could not open browser automatically.")
		fmt.Fprintf(opts.Output, "Please open this URL in your browser:\n%s\n\n", authURL)
	}

	fmt.Fprintf(opts.Output, "→ Waiting for authorization (%s timeout)...\n", opts.Timeout)

	timeout := time.NewTimer(opts.Timeout)
	defer timeout.Stop()

	var result server.OAuthResult
	select {
	case result = <-handler.Result():
	case err := <-serverErrors:
		return nil, fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, opts.Timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrAuthFailed, result.Error())
	}
	if result.Token == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}

	return result.Token, nil
}
