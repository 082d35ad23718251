// Package match ranks users by semantic similarity of their profiles.
package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/skillswap/skillmatch/internal/embed"
	"github.com/skillswap/skillmatch/internal/idmap"
	"github.com/skillswap/skillmatch/internal/snapshot"
	"github.com/skillswap/skillmatch/internal/userstore"
	"github.com/skillswap/skillmatch/internal/vecindex"
)

// Common errors for match queries.
var (
	ErrIndexUnavailable = errors.New("match: no snapshot loaded")
	ErrUnknownUser      = errors.New("match: user not in index")
	ErrInvalidArgument  = errors.New("match: invalid argument")
)

// DefaultTopK is the result cap applied when a request does not set one.
const DefaultTopK = 10

// enrichConcurrency bounds parallel document lookups per query.
const enrichConcurrency = 8

// Result is one ranked match.
type Result struct {
	UserID string          `json:"userId"`
	Score  float32         `json:"score"`
	User   *userstore.User `json:"user,omitempty"`
}

// Matcher serves similarity queries against the currently published
// snapshot. It is safe for concurrent use; every query borrows one snapshot
// for its whole lifetime, so a rebuild finishing mid-query is harmless.
type Matcher struct {
	snapshots *snapshot.Holder
	provider  embed.Provider
	users     userstore.Store
	log       *slog.Logger
}

// NewMatcher creates a Matcher.
func NewMatcher(snapshots *snapshot.Holder, provider embed.Provider, users userstore.Store, log *slog.Logger) *Matcher {
	return &Matcher{
		snapshots: snapshots,
		provider:  provider,
		users:     users,
		log:       log,
	}
}

// ByUser returns up to topK users most similar to an already indexed user.
// The query user never appears in its own results.
func (m *Matcher) ByUser(ctx context.Context, userID string, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidArgument, topK)
	}

	snap := m.snapshots.Load()
	if snap == nil {
		return nil, ErrIndexUnavailable
	}

	slot, err := snap.IDs.Slot(userID)
	if err != nil {
		if errors.Is(err, idmap.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
		}
		return nil, err
	}

	query, err := snap.Index.Reconstruct(slot)
	if err != nil {
		// The map produced this slot, so reconstruction can only fail if
		// index and map are desynchronized.
		m.log.Error("index/map desync: reconstruct failed for mapped slot",
			"user", userID, "slot", slot, "error", err)
		return nil, fmt.Errorf("resolve query vector: %w", err)
	}

	// Over-fetch by one: the query user matches itself with the maximum
	// score and is dropped below by slot identity, not by score, so a
	// genuine near-duplicate profile still surfaces as a neighbor.
	hits, err := snap.Index.Search(query, topK+1)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	results, err := m.resolve(snap, hits, slot, topK)
	if err != nil {
		return nil, err
	}

	return m.enrich(ctx, results)
}

// ByProfile returns up to topK users similar to an ad-hoc skills profile.
// At least one of have and want must be non-empty.
func (m *Matcher) ByProfile(ctx context.Context, have, want []string, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidArgument, topK)
	}
	if len(have) == 0 && len(want) == 0 {
		return nil, fmt.Errorf("%w: provide skillsHave or skillsWant", ErrInvalidArgument)
	}

	snap := m.snapshots.Load()
	if snap == nil {
		return nil, ErrIndexUnavailable
	}

	query, err := m.provider.Embed(ctx, QueryText(have, want))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := snap.Index.Search(query, topK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	results, err := m.resolve(snap, hits, -1, topK)
	if err != nil {
		return nil, err
	}

	return m.enrich(ctx, results)
}

// QueryText builds the free-text query string from skill lists. The shape
// is a stable contract shared with historic index builds; changing it would
// move ad-hoc queries to a different region of the embedding space than the
// indexed profiles.
func QueryText(have, want []string) string {
	return strings.Join(have, ", ") + " | " + " WANT: " + strings.Join(want, ", ")
}

// resolve maps search hits to external ids, dropping the query user's own
// slot and capping the list at topK.
func (m *Matcher) resolve(snap *snapshot.Snapshot, hits []vecindex.Result, selfSlot, topK int) ([]Result, error) {
	results := make([]Result, 0, topK)
	for _, hit := range hits {
		if hit.Slot == selfSlot {
			continue
		}

		id, err := snap.IDs.ID(hit.Slot)
		if err != nil {
			// A slot the index returned but the map cannot resolve means
			// the snapshot is internally inconsistent. Fail the request
			// rather than serve results from a broken snapshot.
			m.log.Error("index/map desync: unmapped slot in search results",
				"slot", hit.Slot, "snapshot", snap.Version, "error", err)
			return nil, fmt.Errorf("resolve slot %d: %w", hit.Slot, err)
		}

		results = append(results, Result{UserID: id, Score: hit.Score})
		if len(results) == topK {
			break
		}
	}
	return results, nil
}

// enrich attaches the full user record to each result. Lookups run
// concurrently; a result whose user document is missing is dropped, while a
// store outage fails the whole query as retryable.
func (m *Matcher) enrich(ctx context.Context, results []Result) ([]Result, error) {
	users := make([]*userstore.User, len(results))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)

	for i := range results {
		i := i
		g.Go(func() error {
			u, err := m.users.GetByID(ctx, results[i].UserID)
			if err != nil {
				if errors.Is(err, userstore.ErrNotFound) {
					m.log.Debug("dropping match without user document", "user", results[i].UserID)
					return nil
				}
				return err
			}
			users[i] = u
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("enrich results: %w", err)
	}

	enriched := make([]Result, 0, len(results))
	for i, r := range results {
		if users[i] == nil {
			continue
		}
		r.User = users[i]
		enriched = append(enriched, r)
	}

	return enriched, nil
}
