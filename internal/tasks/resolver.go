package tasks

import (
	"context"
	"io"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/tidex/internal/models"
	"github.com/desertthunder/tidex/internal/services"
	"github.com/desertthunder/tidex/internal/shared"
)

// Resolver maps ISRCs to destination tracks.
//
// A blacklisted ISRC is answered without a network call. A search with zero matches blacklists the ISRC
// permanently. A match is recorded in the ledger against the searched ISRC. Answers are memoized until
// [Resolver.Reset].
type Resolver struct {
	ledger Ledger
	dest   services.Destination
	logger *log.Logger

	memo        map[string]*models.TrackRef
	blacklisted int
}

// NewResolver creates a Resolver over ledger and dest.
func NewResolver(ledger Ledger, dest services.Destination, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Resolver{ledger: ledger, dest: dest, logger: logger, memo: map[string]*models.TrackRef{}}
}

// Resolve returns the first destination match for isrc, or nil when the ISRC is (or becomes) blacklisted.
//
// A search failure is returned as an error and does not blacklist.
func (r *Resolver) Resolve(ctx context.Context, isrc string) (*models.TrackRef, error) {
	isrc = shared.NormalizeISRC(isrc)
	if ref, ok := r.memo[isrc]; ok {
		return ref, nil
	}

	blacklisted, err := r.ledger.IsBlacklisted(ctx, isrc)
	if err != nil {
		return nil, err
	}
	if blacklisted {
		r.memo[isrc] = nil
		return nil, nil
	}

	refs, err := r.dest.SearchISRC(ctx, isrc)
	if err != nil {
		return nil, err
	}

	if len(refs) == 0 {
		if err := r.ledger.AddBlacklist(ctx, isrc); err != nil {
			return nil, err
		}
		r.logger.Info("no destination match, blacklisted", "isrc", isrc)
		r.memo[isrc] = nil
		r.blacklisted++
		return nil, nil
	}

	ref := refs[0]
	if err := r.ledger.SaveResolution(ctx, isrc, ref.ID); err != nil {
		return nil, err
	}
	if got := shared.NormalizeISRC(ref.ISRC); got != "" && got != isrc {
		r.logger.Debug("match carries a different ISRC", "isrc", isrc, "track_id", ref.ID, "track_isrc", got)
	}
	r.memo[isrc] = &ref
	return &ref, nil
}

// Blacklisted returns how many ISRCs this resolver added to the blacklist since the last reset.
func (r *Resolver) Blacklisted() int {
	return r.blacklisted
}

// Reset clears memoized answers and counters.
func (r *Resolver) Reset() {
	clear(r.memo)
	r.blacklisted = 0
}
