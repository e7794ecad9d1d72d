package testing

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/desertthunder/tidex/internal/models"
)

// FakeSource is an in-memory [services.Source].
//
// ISRCs are keyed by playlist ID. Errors set in ListErr or TrackErr are returned verbatim.
type FakeSource struct {
	mu       sync.Mutex
	lists    []models.SourcePlaylist
	isrcs    map[string][]string
	ListErr  error
	TrackErr map[string]error
	fetches  map[string]int
}

// NewFakeSource creates an empty FakeSource.
func NewFakeSource() *FakeSource {
	return &FakeSource{isrcs: map[string][]string{}, TrackErr: map[string]error{}, fetches: map[string]int{}}
}

// SetPlaylist adds or replaces a playlist with the given timestamp and ISRCs.
func (f *FakeSource) SetPlaylist(id, name, lastModified string, isrcs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := models.SourcePlaylist{ID: id, Name: name, LastModified: lastModified}
	if i := slices.IndexFunc(f.lists, func(s models.SourcePlaylist) bool { return s.ID == id }); i >= 0 {
		f.lists[i] = p
	} else {
		f.lists = append(f.lists, p)
	}
	f.isrcs[id] = slices.Clone(isrcs)
}

func (f *FakeSource) Name() string { return "FakeSource" }

func (f *FakeSource) Playlists(ctx context.Context) ([]models.SourcePlaylist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return slices.Clone(f.lists), nil
}

func (f *FakeSource) PlaylistISRCs(ctx context.Context, p models.SourcePlaylist) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches[p.ID]++
	if err := f.TrackErr[p.ID]; err != nil {
		return nil, err
	}
	return slices.Clone(f.isrcs[p.ID]), nil
}

// Fetches returns how many times the tracks of playlist id were requested.
func (f *FakeSource) Fetches(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[id]
}

// FakeDestination is an in-memory [services.Destination] with a searchable catalog.
type FakeDestination struct {
	mu        sync.Mutex
	catalog   map[string]models.TrackRef // by ISRC
	playlists map[string][]models.DestinationTrack
	names     map[string]string
	searches  map[string]int
	adds      int
	nextID    int

	SearchErr map[string]error
	CreateErr error
	AddErr    error
	TracksErr error
}

// NewFakeDestination creates an empty FakeDestination.
func NewFakeDestination() *FakeDestination {
	return &FakeDestination{
		catalog:   map[string]models.TrackRef{},
		playlists: map[string][]models.DestinationTrack{},
		names:     map[string]string{},
		searches:  map[string]int{},
		SearchErr: map[string]error{},
	}
}

// AddCatalog makes isrc searchable as track id.
func (f *FakeDestination) AddCatalog(isrc, id string) {
	f.AddCatalogAs(isrc, id, isrc)
}

// AddCatalogAs makes isrc searchable as track id, where the track itself reports trackISRC.
func (f *FakeDestination) AddCatalogAs(isrc, id, trackISRC string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalog[isrc] = models.TrackRef{ID: id, URI: "spotify:track:" + id, Name: id, ISRC: trackISRC}
}

func (f *FakeDestination) Name() string { return "FakeDestination" }

func (f *FakeDestination) CreatePlaylist(ctx context.Context, name, description string, public bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	f.nextID++
	id := fmt.Sprintf("dest-%d", f.nextID)
	f.playlists[id] = []models.DestinationTrack{}
	f.names[id] = name
	return id, nil
}

func (f *FakeDestination) PlaylistTracks(ctx context.Context, id string) ([]models.DestinationTrack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TracksErr != nil {
		return nil, f.TracksErr
	}
	tracks, ok := f.playlists[id]
	if !ok {
		return nil, fmt.Errorf("fake destination: playlist %s does not exist", id)
	}
	return slices.Clone(tracks), nil
}

func (f *FakeDestination) AddTracks(ctx context.Context, id string, trackIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AddErr != nil {
		return f.AddErr
	}
	if _, ok := f.playlists[id]; !ok {
		return fmt.Errorf("fake destination: playlist %s does not exist", id)
	}
	f.adds++
	for _, trackID := range trackIDs {
		f.playlists[id] = append(f.playlists[id], models.DestinationTrack{ID: trackID, ISRC: f.isrcOf(trackID)})
	}
	return nil
}

func (f *FakeDestination) SearchISRC(ctx context.Context, isrc string) ([]models.TrackRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches[isrc]++
	if err := f.SearchErr[isrc]; err != nil {
		return nil, err
	}
	if ref, ok := f.catalog[isrc]; ok {
		return []models.TrackRef{ref}, nil
	}
	return nil, nil
}

// Insert places a track directly into a playlist, as a user editing it by hand would.
func (f *FakeDestination) Insert(id string, track models.DestinationTrack) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playlists[id] = append(f.playlists[id], track)
}

// Remove deletes every occurrence of trackID from a playlist.
func (f *FakeDestination) Remove(id, trackID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playlists[id] = slices.DeleteFunc(f.playlists[id], func(t models.DestinationTrack) bool { return t.ID == trackID })
}

// Tracks returns the track ids of a playlist in order.
func (f *FakeDestination) Tracks(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.playlists[id]))
	for _, t := range f.playlists[id] {
		ids = append(ids, t.ID)
	}
	return ids
}

// PlaylistName returns the name a playlist was created with.
func (f *FakeDestination) PlaylistName(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.names[id]
}

// Created returns how many playlists have been created.
func (f *FakeDestination) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.playlists)
}

// Searches returns how many times isrc was searched.
func (f *FakeDestination) Searches(isrc string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searches[isrc]
}

// Adds returns how many add calls succeeded.
func (f *FakeDestination) Adds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.adds
}

func (f *FakeDestination) isrcOf(trackID string) string {
	for _, ref := range f.catalog {
		if ref.ID == trackID {
			return ref.ISRC
		}
	}
	return ""
}
