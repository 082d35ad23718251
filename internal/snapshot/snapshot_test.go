package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillswap/skillmatch/internal/idmap"
	"github.com/skillswap/skillmatch/internal/vecindex"
)

func testSnapshot(t *testing.T) *Snapshot {
	t.Helper()

	s, err := Build(
		[]string{"user-a", "user-b", "user-c"},
		[][]float32{
			{1, 0, 0},
			{0, 1, 0},
			{0, 0, 1},
		},
		"test-model",
	)
	require.NoError(t, err)
	return s
}

func TestBuildCoIndexing(t *testing.T) {
	s := testSnapshot(t)

	require.NotEmpty(t, s.Version)
	assert.Equal(t, 3, s.Count())
	assert.Equal(t, 3, s.Dimension())

	// Vector at slot i must belong to the id at slot i.
	slot, err := s.IDs.Slot("user-b")
	require.NoError(t, err)
	v, err := s.Index.Reconstruct(slot)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0}, v)
}

func TestBuildRowMismatch(t *testing.T) {
	_, err := Build([]string{"a", "b"}, [][]float32{{1}}, "m")
	require.ErrorIs(t, err, ErrRowMismatch)
}

func TestBuildPropagatesConstructionErrors(t *testing.T) {
	_, err := Build(nil, nil, "m")
	require.ErrorIs(t, err, vecindex.ErrEmptyIndex)

	_, err = Build([]string{"a", "a"}, [][]float32{{1}, {2}}, "m")
	require.ErrorIs(t, err, idmap.ErrDuplicateID)
}

func TestHolderPublish(t *testing.T) {
	h := NewHolder()
	assert.Nil(t, h.Load())

	first := testSnapshot(t)
	h.Publish(first)
	assert.Same(t, first, h.Load())

	second := testSnapshot(t)
	h.Publish(second)
	assert.Same(t, second, h.Load())
}

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	st := NewStore(filepath.Join(dir, "snapshots"))

	_, err := st.Load()
	require.ErrorIs(t, err, ErrNoSnapshot)

	s := testSnapshot(t)
	require.NoError(t, st.Save(s))

	loaded, err := st.Load()
	require.NoError(t, err)

	assert.Equal(t, s.Version, loaded.Version)
	assert.Equal(t, s.Model, loaded.Model)
	assert.Equal(t, s.Count(), loaded.Count())
	assert.Equal(t, s.Dimension(), loaded.Dimension())
	assert.Equal(t, s.IDs.IDs(), loaded.IDs.IDs())

	for slot := 0; slot < s.Count(); slot++ {
		want, err := s.Index.Reconstruct(slot)
		require.NoError(t, err)
		got, err := loaded.Index.Reconstruct(slot)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestStorePrunesOldVersions(t *testing.T) {
	st := NewStore(t.TempDir())

	first := testSnapshot(t)
	require.NoError(t, st.Save(first))
	second := testSnapshot(t)
	require.NoError(t, st.Save(second))

	entries, err := os.ReadDir(st.Dir())
	require.NoError(t, err)

	for _, e := range entries {
		if e.Name() == "manifest.json" {
			continue
		}
		assert.Contains(t, e.Name(), second.Version, "artifacts of the old version must be pruned")
	}

	m, err := st.Manifest()
	require.NoError(t, err)
	assert.Equal(t, second.Version, m.Version)
}
