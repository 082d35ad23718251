// Package vecindex provides an exact inner-product vector index.
//
// Vectors are expected to be L2-normalized so that inner product equals
// cosine similarity. The index is immutable after construction and safe
// for unlimited concurrent readers.
package vecindex

import (
	"errors"
	"fmt"
	"sort"
)

// Common errors for index construction and lookup.
var (
	ErrEmptyIndex        = errors.New("vecindex: no vectors")
	ErrDimensionMismatch = errors.New("vecindex: dimension mismatch")
	ErrSlotOutOfRange    = errors.New("vecindex: slot out of range")
	ErrInvalidK          = errors.New("vecindex: k must be non-negative")
)

// Index stores N vectors of a shared dimension in a single contiguous
// backing array. Slot i is the vector passed at position i to New.
type Index struct {
	dim   int
	count int
	data  []float32 // count*dim values, row-major
}

// Result is a single search hit.
type Result struct {
	Slot  int
	Score float32
}

// New builds an index from vectors in slot order: vectors[i] becomes slot i.
// All vectors must share the same non-zero length.
func New(vectors [][]float32) (*Index, error) {
	if len(vectors) == 0 {
		return nil, ErrEmptyIndex
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: zero-length vector at row 0", ErrDimensionMismatch)
	}

	data := make([]float32, 0, len(vectors)*dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
		data = append(data, v...)
	}

	return &Index{dim: dim, count: len(vectors), data: data}, nil
}

// Dimension returns the shared vector dimension.
func (ix *Index) Dimension() int {
	return ix.dim
}

// Count returns the number of stored vectors.
func (ix *Index) Count() int {
	return ix.count
}

// Search returns up to k slots ordered by descending inner-product score.
// Ties are broken by ascending slot so results are deterministic. The
// result length is min(k, Count).
func (ix *Index) Search(query []float32, k int) ([]Result, error) {
	if k < 0 {
		return nil, ErrInvalidK
	}
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: query has %d values, want %d", ErrDimensionMismatch, len(query), ix.dim)
	}
	if k == 0 {
		return nil, nil
	}

	results := make([]Result, ix.count)
	for slot := 0; slot < ix.count; slot++ {
		row := ix.data[slot*ix.dim : (slot+1)*ix.dim]
		var score float32
		for j, q := range query {
			score += q * row[j]
		}
		results[slot] = Result{Slot: slot, Score: score}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Slot < results[j].Slot
	})

	if k < len(results) {
		results = results[:k]
	}

	return results, nil
}

// Reconstruct returns a copy of the exact vector stored at slot. Storage is
// lossless, so the returned vector is bit-identical to the one indexed.
func (ix *Index) Reconstruct(slot int) ([]float32, error) {
	if slot < 0 || slot >= ix.count {
		return nil, fmt.Errorf("%w: slot %d, count %d", ErrSlotOutOfRange, slot, ix.count)
	}

	v := make([]float32, ix.dim)
	copy(v, ix.data[slot*ix.dim:(slot+1)*ix.dim])
	return v, nil
}
