package auth

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"

	"github.com/charmbracelet/log"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/desertthunder/tidex/internal/services"
	"github.com/desertthunder/tidex/internal/shared"
)

const (
	ServiceTidal   = "tidal"
	ServiceSpotify = "spotify"
)

// CredentialStore persists tokens by service name.
//
// Load returns (nil, nil) when no token has been stored.
type CredentialStore interface {
	Load(ctx context.Context, service string) (*oauth2.Token, error)
	Save(ctx context.Context, service string, token *oauth2.Token) error
}

// Config builds the OAuth2 client configuration for service from its configured credentials.
func Config(service string, creds shared.OAuthConfig) (*oauth2.Config, error) {
	if !creds.Configured() {
		return nil, fmt.Errorf("%w: %s client_id and client_secret must be set in config.toml", shared.ErrMissingCredentials, service)
	}

	config := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURI,
	}

	switch service {
	case ServiceTidal:
		config.Endpoint = oauth2.Endpoint{AuthURL: services.TidalAuthURL, TokenURL: services.TidalTokenURL}
		config.Scopes = []string{"playlists.read", "collection.read", "user.read"}
	case ServiceSpotify:
		config.Endpoint = oauth2.Endpoint{AuthURL: spotifyauth.AuthURL, TokenURL: spotifyauth.TokenURL}
		config.Scopes = []string{
			spotifyauth.ScopePlaylistReadPrivate,
			spotifyauth.ScopePlaylistModifyPublic,
			spotifyauth.ScopePlaylistModifyPrivate,
			spotifyauth.ScopeUserReadPrivate,
		}
	default:
		return nil, fmt.Errorf("%w: unknown service %q (expected tidal or spotify)", shared.ErrInvalidArgument, service)
	}

	return config, nil
}

// DisplayName returns the service's name for user-facing output.
func DisplayName(service string) string {
	switch service {
	case ServiceTidal:
		return "TIDAL"
	case ServiceSpotify:
		return "Spotify"
	default:
		return service
	}
}

// ListenAddr returns the host:port the callback server must bind for redirectURI, falling back when the URI
// carries no explicit port.
func ListenAddr(redirectURI, fallback string) string {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Port() == "" {
		return fallback
	}
	return net.JoinHostPort(u.Hostname(), u.Port())
}

// Provider hands out a valid access token for one service, refreshing and persisting it as needed.
type Provider struct {
	ctx     context.Context
	service string
	config  *oauth2.Config
	store   CredentialStore
	logger  *log.Logger

	mu    sync.Mutex
	token *oauth2.Token
}

// NewProvider creates a Provider. ctx carries the HTTP client used for refresh requests (see [oauth2.HTTPClient]).
func NewProvider(ctx context.Context, service string, config *oauth2.Config, store CredentialStore, logger *log.Logger) *Provider {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Provider{ctx: ctx, service: service, config: config, store: store, logger: logger}
}

// Token returns a valid token, loading it from the store on first use and refreshing it once expired.
func (p *Provider) Token() (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token == nil {
		token, err := p.store.Load(p.ctx, p.service)
		if err != nil {
			return nil, err
		}
		if token == nil {
			return nil, fmt.Errorf("%w: no %s credentials stored, run `tidex auth %s`", shared.ErrNotAuthenticated, DisplayName(p.service), p.service)
		}
		p.token = token
	}

	if p.token.Valid() {
		return p.token, nil
	}

	return p.refresh()
}

// Invalidate discards the cached access token so the next [Provider.Token] call refreshes it.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != nil {
		stale := *p.token
		stale.AccessToken = ""
		p.token = &stale
		p.logger.Debug("access token invalidated", "service", p.service)
	}
}

func (p *Provider) refresh() (*oauth2.Token, error) {
	if p.token.RefreshToken == "" {
		return nil, fmt.Errorf("%w: %w: %s token has no refresh token, run `tidex auth %s`",
			shared.ErrNotAuthenticated, shared.ErrTokenExpired, DisplayName(p.service), p.service)
	}

	fresh, err := p.config.TokenSource(p.ctx, &oauth2.Token{RefreshToken: p.token.RefreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %s: %w", shared.ErrNotAuthenticated, shared.ErrRefreshFailed, DisplayName(p.service), err)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = p.token.RefreshToken
	}

	if err := p.store.Save(p.ctx, p.service, fresh); err != nil {
		return nil, err
	}

	p.logger.Debug("refreshed access token", "service", p.service, "expiry", fresh.Expiry)
	p.token = fresh
	return fresh, nil
}
