// Spotify Web API implementation of [Destination]
//
// Requests go through github.com/zmb3/spotify/v2; rate limiting and token refresh are handled by
// the http.Client handed to [NewSpotifyService].
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/zmb3/spotify/v2"

	"github.com/desertthunder/tidex/internal/models"
	"github.com/desertthunder/tidex/internal/shared"
)

const (
	maxTracksPerRequest = 100
	searchLimit         = 10
)

// SpotifyService implements [Destination] for the Spotify Web API.
type SpotifyService struct {
	api    *spotify.Client
	logger *log.Logger

	mu     sync.Mutex
	userID string
}

// SpotifyOption configures a [SpotifyService].
type SpotifyOption func(*spotifyOptions)

type spotifyOptions struct {
	baseURL string
	logger  *log.Logger
}

// WithSpotifyBaseURL overrides the API root, e.g. for an httptest server.
func WithSpotifyBaseURL(u string) SpotifyOption {
	return func(o *spotifyOptions) {
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		o.baseURL = u
	}
}

// WithSpotifyLogger sets the logger for debug output.
func WithSpotifyLogger(l *log.Logger) SpotifyOption {
	return func(o *spotifyOptions) { o.logger = l }
}

// NewSpotifyService creates a Spotify destination over httpClient, which is expected to carry authentication.
//
// The SDK's own 429 retry is disabled; [RetryTransport] in httpClient covers it.
func NewSpotifyService(httpClient *http.Client, opts ...SpotifyOption) *SpotifyService {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	o := spotifyOptions{logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(&o)
	}

	clientOpts := []spotify.ClientOption{spotify.WithRetry(false)}
	if o.baseURL != "" {
		clientOpts = append(clientOpts, spotify.WithBaseURL(o.baseURL))
	}

	return &SpotifyService{
		api:    spotify.New(httpClient, clientOpts...),
		logger: o.logger,
	}
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// UserID returns the authenticated user's ID, fetching it once.
func (s *SpotifyService) UserID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.userID != "" {
		return s.userID, nil
	}

	user, err := s.api.CurrentUser(ctx)
	if err != nil {
		return "", spotifyErr("fetching current user", err)
	}

	s.userID = user.ID
	return s.userID, nil
}

// CreatePlaylist creates a new playlist for the current user and returns its ID.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, name, description string, public bool) (string, error) {
	userID, err := s.UserID(ctx)
	if err != nil {
		return "", err
	}

	playlist, err := s.api.CreatePlaylistForUser(ctx, userID, name, description, public, false)
	if err != nil {
		return "", spotifyErr("creating playlist", err)
	}
	if playlist.ID == "" {
		return "", fmt.Errorf("%w: created playlist has no id", shared.ErrMalformedPayload)
	}

	return playlist.ID.String(), nil
}

// AddTracks appends tracks to a playlist in batches of 100.
func (s *SpotifyService) AddTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}

	ids := make([]spotify.ID, len(trackIDs))
	for i, id := range trackIDs {
		ids[i] = spotify.ID(id)
	}

	for i := 0; i < len(ids); i += maxTracksPerRequest {
		end := min(i+maxTracksPerRequest, len(ids))

		if _, err := s.api.AddTracksToPlaylist(ctx, spotify.ID(playlistID), ids[i:end]...); err != nil {
			return spotifyErr(fmt.Sprintf("adding tracks (batch %d-%d)", i+1, end), err)
		}
		s.logger.Debug("added tracks", "playlist", playlistID, "from", i+1, "to", end)
	}

	return nil
}

// PlaylistTracks walks every page of a playlist's items. Episodes and local files without a catalog track are skipped.
func (s *SpotifyService) PlaylistTracks(ctx context.Context, playlistID string) ([]models.DestinationTrack, error) {
	page, err := s.api.GetPlaylistItems(ctx, spotify.ID(playlistID))
	if err != nil {
		return nil, spotifyErr("fetching playlist items", err)
	}

	var tracks []models.DestinationTrack
	for {
		for _, item := range page.Items {
			track := item.Track.Track
			if track == nil || track.ID == "" {
				continue
			}
			tracks = append(tracks, models.DestinationTrack{
				ID:   track.ID.String(),
				ISRC: shared.NormalizeISRC(track.ExternalIDs["isrc"]),
			})
		}

		err = s.api.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, spotifyErr("fetching next page of playlist items", err)
		}
	}

	return tracks, nil
}

// SearchISRC searches the catalog with an isrc: field filter.
func (s *SpotifyService) SearchISRC(ctx context.Context, isrc string) ([]models.TrackRef, error) {
	isrc = shared.NormalizeISRC(isrc)
	result, err := s.api.Search(ctx, "isrc:"+isrc, spotify.SearchTypeTrack, spotify.Limit(searchLimit))
	if err != nil {
		return nil, spotifyErr("searching isrc "+isrc, err)
	}

	refs := []models.TrackRef{}
	if result.Tracks == nil {
		return refs, nil
	}

	for _, t := range result.Tracks.Tracks {
		if t.ID == "" {
			continue
		}
		refs = append(refs, models.TrackRef{
			ID:   t.ID.String(),
			URI:  string(t.URI),
			Name: t.Name,
			ISRC: shared.NormalizeISRC(t.ExternalIDs["isrc"]),
		})
	}
	return refs, nil
}

// spotifyErr classifies an SDK error: rejected credentials are [shared.ErrNotAuthenticated], anything else is
// [shared.ErrAPIRequest].
func spotifyErr(op string, err error) error {
	if errors.Is(err, shared.ErrNotAuthenticated) {
		return fmt.Errorf("spotify: %s: %w", op, err)
	}

	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: spotify: %s: %w", shared.ErrNotAuthenticated, op, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: spotify: %s: %w", shared.ErrPlaylistNotFound, op, err)
		}
	}
	return fmt.Errorf("%w: spotify: %s: %w", shared.ErrAPIRequest, op, err)
}
