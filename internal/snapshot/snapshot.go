// Package snapshot ties a vector index and its identity map into one
// immutable, atomically publishable unit.
//
// A snapshot is only ever created whole: Build takes ids and vectors in the
// same row order and constructs both structures from it, so slot assignment
// can never diverge between the index and the map.
package snapshot

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skillswap/skillmatch/internal/idmap"
	"github.com/skillswap/skillmatch/internal/vecindex"
)

// ErrRowMismatch is returned when ids and vectors disagree in length.
var ErrRowMismatch = errors.New("snapshot: id and vector counts differ")

// Snapshot is an immutable (index, identity map) pair plus metadata.
// Once built it is read-only and safe to share across goroutines.
type Snapshot struct {
	Version   string
	Model     string
	CreatedAt time.Time

	Index *vecindex.Index
	IDs   *idmap.Map
}

// Build constructs a snapshot from one row order: vectors[i] belongs to
// ids[i], which becomes slot i in both the index and the map.
func Build(ids []string, vectors [][]float32, model string) (*Snapshot, error) {
	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("%w: %d ids, %d vectors", ErrRowMismatch, len(ids), len(vectors))
	}

	ix, err := vecindex.New(vectors)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}

	m, err := idmap.New(ids)
	if err != nil {
		return nil, fmt.Errorf("build id map: %w", err)
	}

	return &Snapshot{
		Version:   uuid.NewString(),
		Model:     model,
		CreatedAt: time.Now().UTC(),
		Index:     ix,
		IDs:       m,
	}, nil
}

// Dimension returns the vector dimension of the snapshot.
func (s *Snapshot) Dimension() int {
	return s.Index.Dimension()
}

// Count returns the number of users in the snapshot.
func (s *Snapshot) Count() int {
	return s.Index.Count()
}
