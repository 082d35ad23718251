package rebuild

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/skillswap/skillmatch/internal/embed"
	"github.com/skillswap/skillmatch/internal/snapshot"
	"github.com/skillswap/skillmatch/internal/userstore"
)

// hashProvider derives a deterministic embedding from the text content.
type hashProvider struct {
	dims  int
	calls int
}

func (h *hashProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, h.dims)
	for i, c := range text {
		v[i%h.dims] += float32(c%13) + 1
	}
	return embed.Normalize(v), nil
}

func (h *hashProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	h.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (h *hashProvider) Model() string              { return "hash" }
func (h *hashProvider) Dimensions() int            { return h.dims }
func (h *hashProvider) Ping(context.Context) error { return nil }

// listStore returns a fixed corpus in a fixed order.
type listStore struct {
	profiles []userstore.User
}

func (s *listStore) ListProfiles(ctx context.Context) ([]userstore.User, error) {
	out := make([]userstore.User, len(s.profiles))
	copy(out, s.profiles)
	return out, nil
}

func (s *listStore) GetByID(ctx context.Context, id string) (*userstore.User, error) {
	for i := range s.profiles {
		if s.profiles[i].ExternalID() == id {
			return &s.profiles[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", userstore.ErrNotFound, id)
}

func (s *listStore) Ping(context.Context) error  { return nil }
func (s *listStore) Close(context.Context) error { return nil }

func testCorpus() *listStore {
	return &listStore{profiles: []userstore.User{
		{
			ID:             primitive.NewObjectID(),
			SkillsOffered:  []string{"python"},
			SkillsRequired: []string{"go"},
		},
		{
			ID:             primitive.NewObjectID(),
			SkillsOffered:  []string{"go"},
			SkillsRequired: []string{"python"},
		},
		{
			ID:             primitive.NewObjectID(),
			SkillsOffered:  []string{"rust"},
			SkillsRequired: []string{},
		},
	}}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProfileTextLayout(t *testing.T) {
	u := &userstore.User{
		SkillsOffered:       []string{"python", "sql"},
		SkillsRequired:      []string{"go"},
		FieldOfStudy:        "CS",
		ResearchInterests:   []string{"nlp"},
		LearningPreferences: []string{},
		SubjectStrengths:    []string{"algorithms"},
		AcademicGoals:       []string{"PhD"},
		StudyHabits:         []string{"morning person"},
		Institution:         "MIT",
		Degree:              "BSc",
	}

	want := "Skills Offered: python, sql | Skills Required: go | Field of Study: CS | " +
		"Research Interests: nlp | Learning Preferences:  | Subject Strengths: algorithms | " +
		"Academic Goals: PhD | Study Habits: morning person | Institution: MIT | Degree: BSc"

	if got := ProfileText(u); got != want {
		t.Errorf("ProfileText:\n got  %q\n want %q", got, want)
	}
}

func TestProfileTextEmptyUser(t *testing.T) {
	got := ProfileText(&userstore.User{})
	want := "Skills Offered:  | Skills Required:  | Field of Study:  | Research Interests:  | " +
		"Learning Preferences:  | Subject Strengths:  | Academic Goals:  | Study Habits:  | " +
		"Institution:  | Degree: "
	if got != want {
		t.Errorf("ProfileText(empty):\n got  %q\n want %q", got, want)
	}
}

func TestRebuildPublishesSnapshot(t *testing.T) {
	store := snapshot.NewStore(t.TempDir())
	holder := snapshot.NewHolder()
	corpus := testCorpus()
	provider := &hashProvider{dims: 8}

	p := New(corpus, provider, store, holder, discard())

	res, err := p.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	if res.Users != 3 || res.Dimension != 8 {
		t.Errorf("result = %+v, want 3 users, dimension 8", res)
	}
	if provider.calls != 1 {
		t.Errorf("EmbedBatch called %d times, want exactly 1", provider.calls)
	}

	snap := holder.Load()
	if snap == nil {
		t.Fatal("snapshot not published")
	}
	if snap.Version != res.Version {
		t.Errorf("published version %s != result version %s", snap.Version, res.Version)
	}

	// Co-indexing: slot i must hold the embedding of profile i.
	for i := range corpus.profiles {
		id := corpus.profiles[i].ExternalID()
		slot, err := snap.IDs.Slot(id)
		if err != nil {
			t.Fatalf("user %s missing from id map: %v", id, err)
		}
		if slot != i {
			t.Errorf("user %d assigned slot %d", i, slot)
		}

		want, _ := provider.Embed(context.Background(), ProfileText(&corpus.profiles[i]))
		got, err := snap.Index.Reconstruct(slot)
		if err != nil {
			t.Fatalf("reconstruct slot %d: %v", slot, err)
		}
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("slot %d holds the wrong vector", slot)
			}
		}
	}

	// The snapshot must also be loadable from disk without the embedder.
	reloaded, err := store.Load()
	if err != nil {
		t.Fatalf("reload persisted snapshot: %v", err)
	}
	if reloaded.Count() != 3 {
		t.Errorf("persisted snapshot has %d users, want 3", reloaded.Count())
	}
}

func TestRebuildDeterminism(t *testing.T) {
	corpus := testCorpus()
	provider := &hashProvider{dims: 8}

	first, err := New(corpus, provider, snapshot.NewStore(t.TempDir()), nil, discard()).Rebuild(context.Background())
	if err != nil {
		t.Fatalf("first rebuild: %v", err)
	}
	second, err := New(corpus, provider, snapshot.NewStore(t.TempDir()), nil, discard()).Rebuild(context.Background())
	if err != nil {
		t.Fatalf("second rebuild: %v", err)
	}

	if first.Users != second.Users || first.Dimension != second.Dimension {
		t.Errorf("rebuilds disagree: %+v vs %+v", first, second)
	}

	// Same corpus, same order: derived texts and slot assignments match.
	users, _ := corpus.ListProfiles(context.Background())
	for i := range users {
		a := ProfileText(&users[i])
		b := ProfileText(&users[i])
		if a != b {
			t.Errorf("profile text for user %d is not deterministic", i)
		}
	}
}

func TestRebuildEmptyCorpus(t *testing.T) {
	store := snapshot.NewStore(t.TempDir())
	holder := snapshot.NewHolder()

	p := New(&listStore{}, &hashProvider{dims: 8}, store, holder, discard())

	res, err := p.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if res.Users != 0 {
		t.Errorf("got %d users, want 0", res.Users)
	}

	if holder.Load() != nil {
		t.Error("empty corpus must not publish a snapshot")
	}
	if _, err := store.Load(); err == nil {
		t.Error("empty corpus must not persist a snapshot")
	}
}

func TestRebuildKeepsOldSnapshotOnFailure(t *testing.T) {
	store := snapshot.NewStore(t.TempDir())
	holder := snapshot.NewHolder()
	corpus := testCorpus()

	p := New(corpus, &hashProvider{dims: 8}, store, holder, discard())
	if _, err := p.Rebuild(context.Background()); err != nil {
		t.Fatalf("initial rebuild: %v", err)
	}
	old := holder.Load()

	failing := New(corpus, &failingProvider{}, store, holder, discard())
	if _, err := failing.Rebuild(context.Background()); err == nil {
		t.Fatal("expected rebuild to fail")
	}

	if holder.Load() != old {
		t.Error("failed rebuild replaced the published snapshot")
	}
	reloaded, err := store.Load()
	if err != nil {
		t.Fatalf("persisted snapshot unreadable after failed rebuild: %v", err)
	}
	if reloaded.Version != old.Version {
		t.Error("failed rebuild replaced the persisted snapshot")
	}
}

type failingProvider struct{}

func (failingProvider) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("model server down")
}

func (failingProvider) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("model server down")
}

func (failingProvider) Model() string              { return "down" }
func (failingProvider) Dimensions() int            { return 0 }
func (failingProvider) Ping(context.Context) error { return fmt.Errorf("down") }
