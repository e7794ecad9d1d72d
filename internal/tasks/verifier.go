package tasks

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/tidex/internal/models"
	"github.com/desertthunder/tidex/internal/services"
	"github.com/desertthunder/tidex/internal/shared"
)

// Verifier checks that a destination playlist carries the ledger's expected tracks in order.
//
// Blacklisted ISRCs are excluded from the expectation. Mismatches are logged, never repaired.
type Verifier struct {
	ledger Ledger
	dest   services.Destination
	logger *log.Logger
}

// NewVerifier creates a Verifier over ledger and dest.
func NewVerifier(ledger Ledger, dest services.Destination, logger *log.Logger) *Verifier {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Verifier{ledger: ledger, dest: dest, logger: logger}
}

// Verify fetches the destination membership of the playlist mirrored from sourceID and compares it with the ledger.
func (v *Verifier) Verify(ctx context.Context, sourceID string) (bool, error) {
	record, err := v.ledger.GetPlaylist(ctx, sourceID)
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, fmt.Errorf("%w: %s has not been synced", shared.ErrPlaylistNotFound, sourceID)
	}

	expected, err := v.ledger.GetTracks(ctx, sourceID)
	if err != nil {
		return false, err
	}

	current, err := v.dest.PlaylistTracks(ctx, record.DestID)
	if err != nil {
		return false, err
	}

	return v.Compare(ctx, v.logger.With("playlist", record.Name, "id", sourceID), expected, current)
}

// Compare reports whether actual's ISRC sequence equals expected minus blacklisted ISRCs.
//
// A destination track whose own ISRC differs from the one it was resolved from still counts as that ISRC.
func (v *Verifier) Compare(ctx context.Context, logger *log.Logger, expected []string, actual []models.DestinationTrack) (bool, error) {
	want := make([]string, 0, len(expected))
	for _, isrc := range expected {
		blacklisted, err := v.ledger.IsBlacklisted(ctx, isrc)
		if err != nil {
			return false, err
		}
		if !blacklisted {
			want = append(want, isrc)
		}
	}

	resolved, err := v.ledger.LookupResolutions(ctx, want)
	if err != nil {
		return false, err
	}

	wanted := make(map[string]struct{}, len(want))
	byID := make(map[string]string, len(resolved))
	for _, isrc := range want {
		wanted[isrc] = struct{}{}
		if id, ok := resolved[isrc]; ok {
			if _, seen := byID[id]; !seen {
				byID[id] = isrc
			}
		}
	}

	// Tracks are identified by their own ISRC, then by the ISRC they were resolved from.
	// Anything else, including tracks without an ISRC, is an extra.
	got := make([]string, 0, len(actual))
	unidentified := 0
	for _, t := range actual {
		if _, ok := wanted[t.ISRC]; ok {
			got = append(got, t.ISRC)
			continue
		}
		if isrc, ok := byID[t.ID]; ok {
			got = append(got, isrc)
			continue
		}
		if t.ISRC == "" {
			unidentified++
		}
		got = append(got, t.ISRC)
	}

	if slices.Equal(want, got) {
		return true, nil
	}

	missing := difference(want, got)
	extra := difference(got, want)
	logger.Warn("destination does not match ledger",
		"expected", len(want), "actual", len(got), "missing", len(missing), "extra", len(extra),
		"unidentified", unidentified, "order_only", len(missing) == 0 && len(extra) == 0)
	if len(missing) > 0 {
		logger.Debug("missing from destination", "isrcs", missing)
	}
	return false, nil
}

// difference returns the members of a not present in b, in a's order.
func difference(a, b []string) []string {
	in := make(map[string]struct{}, len(b))
	for _, s := range b {
		in[s] = struct{}{}
	}

	var out []string
	for _, s := range a {
		if _, ok := in[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}
