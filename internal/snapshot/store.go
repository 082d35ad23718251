package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skillswap/skillmatch/internal/idmap"
	"github.com/skillswap/skillmatch/internal/vecindex"
)

// ErrNoSnapshot is returned by Load when no snapshot has been persisted yet.
var ErrNoSnapshot = errors.New("snapshot: none persisted")

const manifestFile = "manifest.json"

// Manifest describes the persisted artifacts of one snapshot version.
// Writing it is the commit point of a Save: a reader either sees the old
// manifest with its artifacts intact, or the new one.
type Manifest struct {
	Version   string    `json:"version"`
	Model     string    `json:"model"`
	Dimension int       `json:"dimension"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"created_at"`
	IndexFile string    `json:"index_file"`
	IDMapFile string    `json:"idmap_file"`
}

type idmapFile struct {
	Version string   `json:"version"`
	IDs     []string `json:"ids"`
}

// Store persists snapshots to a directory so a process restart can serve
// without recomputing embeddings.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir. The directory is created on the
// first Save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the snapshot directory.
func (st *Store) Dir() string {
	return st.dir
}

// Save writes the snapshot's artifacts and commits them by renaming the
// manifest into place. Artifacts of superseded versions are pruned after a
// successful commit; a failed Save leaves the previous version untouched.
func (st *Store) Save(s *Snapshot) error {
	if err := os.MkdirAll(st.dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	indexName := "index-" + s.Version + ".bin"
	idmapName := "idmap-" + s.Version + ".json"

	err := writeAtomic(filepath.Join(st.dir, indexName), func(w io.Writer) error {
		_, err := s.Index.WriteTo(w)
		return err
	})
	if err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	err = writeAtomic(filepath.Join(st.dir, idmapName), func(w io.Writer) error {
		return json.NewEncoder(w).Encode(idmapFile{Version: s.Version, IDs: s.IDs.IDs()})
	})
	if err != nil {
		return fmt.Errorf("write id map: %w", err)
	}

	manifest := Manifest{
		Version:   s.Version,
		Model:     s.Model,
		Dimension: s.Dimension(),
		Count:     s.Count(),
		CreatedAt: s.CreatedAt,
		IndexFile: indexName,
		IDMapFile: idmapName,
	}
	err = writeAtomic(filepath.Join(st.dir, manifestFile), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(manifest)
	})
	if err != nil {
		return fmt.Errorf("commit manifest: %w", err)
	}

	st.prune(s.Version)
	return nil
}

// Manifest reads the current manifest without loading the artifacts.
func (st *Store) Manifest() (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(st.dir, manifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// Load reads the committed snapshot back from disk.
func (st *Store) Load() (*Snapshot, error) {
	m, err := st.Manifest()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(st.dir, m.IndexFile))
	if err != nil {
		return nil, fmt.Errorf("open index artifact: %w", err)
	}
	defer f.Close()

	ix, err := vecindex.Load(f)
	if err != nil {
		return nil, fmt.Errorf("load index %s: %w", m.IndexFile, err)
	}

	data, err := os.ReadFile(filepath.Join(st.dir, m.IDMapFile))
	if err != nil {
		return nil, fmt.Errorf("read id map artifact: %w", err)
	}

	var mf idmapFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("decode id map %s: %w", m.IDMapFile, err)
	}
	if mf.Version != m.Version {
		return nil, fmt.Errorf("id map version %s does not match manifest %s", mf.Version, m.Version)
	}

	ids, err := idmap.New(mf.IDs)
	if err != nil {
		return nil, fmt.Errorf("rebuild id map: %w", err)
	}

	if ids.Len() != ix.Count() || ix.Count() != m.Count {
		return nil, fmt.Errorf("artifact mismatch: index %d vectors, map %d ids, manifest %d",
			ix.Count(), ids.Len(), m.Count)
	}
	if ix.Dimension() != m.Dimension {
		return nil, fmt.Errorf("artifact mismatch: index dimension %d, manifest %d", ix.Dimension(), m.Dimension)
	}

	return &Snapshot{
		Version:   m.Version,
		Model:     m.Model,
		CreatedAt: m.CreatedAt,
		Index:     ix,
		IDs:       ids,
	}, nil
}

// prune removes artifacts that belong to versions other than keep.
// Best-effort: a leftover file is harmless, the manifest decides what is live.
func (st *Store) prune(keep string) {
	entries, err := os.ReadDir(st.dir)
	if err != nil {
		return
	}

	for _, e := range entries {
		name := e.Name()
		if name == manifestFile || strings.Contains(name, keep) {
			continue
		}
		if strings.HasPrefix(name, "index-") || strings.HasPrefix(name, "idmap-") {
			_ = os.Remove(filepath.Join(st.dir, name))
		}
	}
}

// writeAtomic writes to a temp file in the target directory, fsyncs it and
// renames it into place.
func writeAtomic(path string, fn func(io.Writer) error) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err := fn(tmp); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	name := tmp.Name()
	tmp = nil
	return os.Rename(name, path)
}
