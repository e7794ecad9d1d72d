// TIDAL Open API implementation of [Source]
//
// Response types follow the JSON:API documents described at https://developer.tidal.com/apiref
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/tidex/internal/models"
	"github.com/desertthunder/tidex/internal/shared"
)

// OAuth2 endpoints for TIDAL.
const (
	TidalAuthURL  = "https://login.tidal.com/authorize"
	TidalTokenURL = "https://auth.tidal.com/v1/oauth2/token"
)

const (
	tidalBaseURL = "https://openapi.tidal.com/v2"

	tidalMediaType        = "application/vnd.api+json"
	defaultTrackBatchSize = 20
	untitledPlaylist      = "Untitled"
)

// tidalDocument is a JSON:API top-level document with a collection as primary data.
type tidalDocument[T any] struct {
	Data  []T        `json:"data"`
	Links tidalLinks `json:"links"`
}

type tidalLinks struct {
	Self string `json:"self"`
	Next string `json:"next"`
}

type tidalRelationship struct {
	Links tidalLinks `json:"links"`
}

// TidalPlaylist is a playlist resource object.
type TidalPlaylist struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Name           *string `json:"name"`
		Description    string  `json:"description"`
		LastModifiedAt string  `json:"lastModifiedAt"`
		NumberOfItems  int     `json:"numberOfItems"`
	} `json:"attributes"`
	Relationships struct {
		Items tidalRelationship `json:"items"`
	} `json:"relationships"`
}

// TidalResourceID is a resource identifier object, as found in relationship data.
type TidalResourceID struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// TidalTrack is a track resource object.
type TidalTrack struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Title string `json:"title"`
		ISRC  string `json:"isrc"`
	} `json:"attributes"`
}

// TidalService implements [Source] for the TIDAL Open API.
//
// Every request passes through the instance's [RateBudget]; 429 and 401 handling belong to the
// http.Client's transport (see [NewHTTPClient]).
type TidalService struct {
	baseURL     string
	countryCode string
	batchSize   int
	httpClient  *http.Client
	budget      *RateBudget
	logger      *log.Logger
}

// TidalOption configures a [TidalService].
type TidalOption func(*TidalService)

// WithTidalBaseURL overrides the API root, e.g. for an httptest server.
func WithTidalBaseURL(u string) TidalOption {
	return func(s *TidalService) { s.baseURL = strings.TrimSuffix(u, "/") }
}

// WithCountryCode sets the catalog region used for track lookups.
func WithCountryCode(code string) TidalOption {
	return func(s *TidalService) {
		if code != "" {
			s.countryCode = code
		}
	}
}

// WithTrackBatchSize sets how many track ids are resolved per lookup (1..20).
func WithTrackBatchSize(n int) TidalOption {
	return func(s *TidalService) {
		if n > 0 && n <= defaultTrackBatchSize {
			s.batchSize = n
		}
	}
}

// WithRateBudget replaces the default budget.
func WithRateBudget(b *RateBudget) TidalOption {
	return func(s *TidalService) { s.budget = b }
}

// WithTidalLogger sets the logger for debug output.
func WithTidalLogger(l *log.Logger) TidalOption {
	return func(s *TidalService) { s.logger = l }
}

// NewTidalService creates a TIDAL source over httpClient, which is expected to carry authentication.
func NewTidalService(httpClient *http.Client, opts ...TidalOption) *TidalService {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	s := &TidalService{
		baseURL:     tidalBaseURL,
		countryCode: "US",
		batchSize:   defaultTrackBatchSize,
		httpClient:  httpClient,
		budget:      NewRateBudget(defaultWaitStep),
		logger:      log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TidalService) Name() string {
	return "TIDAL"
}

// Budget exposes the instance's rate budget.
func (s *TidalService) Budget() *RateBudget {
	return s.budget
}

// Playlists retrieves every playlist owned by the authenticated user.
//
// A playlist without a name is reported as "Untitled"; one without lastModifiedAt has an empty watermark.
func (s *TidalService) Playlists(ctx context.Context) ([]models.SourcePlaylist, error) {
	resources, err := paginate[TidalPlaylist](ctx, s, "/playlists/me")
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}

	playlists := make([]models.SourcePlaylist, 0, len(resources))
	for _, p := range resources {
		if p.ID == "" {
			return nil, fmt.Errorf("%w: playlist resource without id", shared.ErrMalformedPayload)
		}

		name := untitledPlaylist
		if p.Attributes.Name != nil && strings.TrimSpace(*p.Attributes.Name) != "" {
			name = *p.Attributes.Name
		}

		itemsURL := p.Relationships.Items.Links.Self
		if itemsURL == "" {
			itemsURL = "/playlists/" + url.PathEscape(p.ID) + "/relationships/items"
		}

		playlists = append(playlists, models.SourcePlaylist{
			ID:           p.ID,
			Name:         name,
			LastModified: p.Attributes.LastModifiedAt,
			ItemsURL:     itemsURL,
		})
	}

	return playlists, nil
}

// PlaylistISRCs walks the playlist's items and resolves each track's ISRC in batches.
//
// Non-track items (videos) and tracks without an ISRC are skipped.
func (s *TidalService) PlaylistISRCs(ctx context.Context, playlist models.SourcePlaylist) ([]string, error) {
	itemsURL := playlist.ItemsURL
	if itemsURL == "" {
		itemsURL = "/playlists/" + url.PathEscape(playlist.ID) + "/relationships/items"
	}

	items, err := paginate[TidalResourceID](ctx, s, itemsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to list items of playlist %s: %w", playlist.ID, err)
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.Type != "" && item.Type != "tracks" {
			s.logger.Debug("skipping non-track item", "playlist", playlist.ID, "id", item.ID, "type", item.Type)
			continue
		}
		ids = append(ids, item.ID)
	}

	isrcs := make([]string, 0, len(ids))
	for start := 0; start < len(ids); start += s.batchSize {
		batch := ids[start:min(start+s.batchSize, len(ids))]

		byID, err := s.trackISRCs(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch track details for playlist %s: %w", playlist.ID, err)
		}

		for _, id := range batch {
			isrc := byID[id]
			if isrc == "" {
				s.logger.Debug("track has no ISRC", "playlist", playlist.ID, "track", id)
				continue
			}
			isrcs = append(isrcs, isrc)
		}
	}

	return isrcs, nil
}

// trackISRCs looks up a batch of track ids and maps each to its normalized ISRC.
func (s *TidalService) trackISRCs(ctx context.Context, ids []string) (map[string]string, error) {
	query := url.Values{}
	query.Set("countryCode", s.countryCode)
	query.Set("filter[id]", strings.Join(ids, ","))

	var doc tidalDocument[TidalTrack]
	if err := s.doRequest(ctx, "/tracks?"+query.Encode(), &doc); err != nil {
		return nil, err
	}

	byID := make(map[string]string, len(doc.Data))
	for _, t := range doc.Data {
		byID[t.ID] = shared.NormalizeISRC(t.Attributes.ISRC)
	}
	return byID, nil
}

// paginate follows links.next from path until the cursor is exhausted, collecting every page's data.
//
// Any page failure discards what was collected so far.
func paginate[T any](ctx context.Context, s *TidalService, path string) ([]T, error) {
	var all []T
	seen := make(map[string]bool)

	for next := path; next != ""; {
		if seen[next] {
			return nil, fmt.Errorf("%w: pagination cursor repeats %s", shared.ErrMalformedPayload, next)
		}
		seen[next] = true

		var page tidalDocument[T]
		if err := s.doRequest(ctx, next, &page); err != nil {
			return nil, err
		}

		all = append(all, page.Data...)
		next = page.Links.Next
	}

	return all, nil
}

// doRequest performs a budgeted GET against the API and decodes the JSON:API document into result.
func (s *TidalService) doRequest(ctx context.Context, link string, result any) error {
	if err := s.budget.Wait(ctx); err != nil {
		return err
	}

	apiURL := s.resolve(link)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", tidalMediaType)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	s.budget.Observe(resp.Header)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: tidal rejected credentials for %s", shared.ErrNotAuthenticated, apiURL)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s: status %d", shared.ErrPlaylistNotFound, apiURL, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: tidal API error: %s: status %d", shared.ErrAPIRequest, apiURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %w", shared.ErrAPIRequest, err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return fmt.Errorf("%w: %s", shared.ErrEmptyResponse, apiURL)
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("%w: %s: %w", shared.ErrMalformedPayload, apiURL, err)
	}
	return nil
}

// resolve turns a relative JSON:API link into an absolute URL under the API root.
func (s *TidalService) resolve(link string) string {
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	if !strings.HasPrefix(link, "/") {
		link = "/" + link
	}
	return s.baseURL + link
}
