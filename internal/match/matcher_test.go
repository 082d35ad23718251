package match

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/skillswap/skillmatch/internal/embed"
	"github.com/skillswap/skillmatch/internal/snapshot"
	"github.com/skillswap/skillmatch/internal/userstore"
)

// fakeProvider returns canned embeddings keyed by text.
type fakeProvider struct {
	vectors map[string][]float32
	dims    int
}

func (f *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	v, ok := f.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no embedding for %q", text)
	}
	out := make([]float32, len(v))
	copy(out, v)
	return embed.Normalize(out), nil
}

func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeProvider) Model() string            { return "fake" }
func (f *fakeProvider) Dimensions() int          { return f.dims }
func (f *fakeProvider) Ping(context.Context) error { return nil }

// fakeStore serves users from a map.
type fakeStore struct {
	users map[string]*userstore.User
	err   error
}

func (f *fakeStore) GetByID(ctx context.Context, id string) (*userstore.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", userstore.ErrNotFound, id)
	}
	return u, nil
}

func (f *fakeStore) ListProfiles(ctx context.Context) ([]userstore.User, error) {
	return nil, nil
}

func (f *fakeStore) Ping(context.Context) error  { return nil }
func (f *fakeStore) Close(context.Context) error { return nil }

type fixture struct {
	matcher *Matcher
	holder  *snapshot.Holder
	store   *fakeStore
	ids     []string
}

// newFixture builds a three-user snapshot: users 0 and 1 have similar
// vectors, user 2 is orthogonal to both.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	ids := make([]string, 3)
	store := &fakeStore{users: make(map[string]*userstore.User)}
	for i := range ids {
		oid := primitive.NewObjectID()
		ids[i] = oid.Hex()
		store.users[ids[i]] = &userstore.User{
			ID:   oid,
			Name: fmt.Sprintf("user %d", i),
		}
	}

	snap, err := snapshot.Build(ids, [][]float32{
		{1, 0, 0},
		{0.9, 0.4359, 0}, // close to user 0
		{0, 0, 1},
	}, "fake")
	if err != nil {
		t.Fatalf("build snapshot: %v", err)
	}

	holder := snapshot.NewHolder()
	holder.Publish(snap)

	provider := &fakeProvider{dims: 3, vectors: map[string][]float32{
		QueryText([]string{"python"}, []string{"go"}): {1, 0, 0},
	}}

	return &fixture{
		matcher: NewMatcher(holder, provider, store, slog.New(slog.NewTextHandler(io.Discard, nil))),
		holder:  holder,
		store:   store,
		ids:     ids,
	}
}

func TestByUserExcludesSelf(t *testing.T) {
	f := newFixture(t)

	results, err := f.matcher.ByUser(context.Background(), f.ids[0], 2)
	if err != nil {
		t.Fatalf("ByUser failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, r := range results {
		if r.UserID == f.ids[0] {
			t.Errorf("query user %s appeared in its own results", f.ids[0])
		}
		if r.User == nil {
			t.Errorf("result %s not enriched", r.UserID)
		}
	}

	// User 1 is the nearest neighbor of user 0.
	if results[0].UserID != f.ids[1] {
		t.Errorf("top match = %s, want %s", results[0].UserID, f.ids[1])
	}
	if results[0].Score < results[1].Score {
		t.Errorf("results not sorted by score: %f < %f", results[0].Score, results[1].Score)
	}
}

func TestByUserCapsAtTopK(t *testing.T) {
	f := newFixture(t)

	results, err := f.matcher.ByUser(context.Background(), f.ids[0], 1)
	if err != nil {
		t.Fatalf("ByUser failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1 even though the engine searches top_k+1", len(results))
	}
}

func TestByUserUnknown(t *testing.T) {
	f := newFixture(t)

	_, err := f.matcher.ByUser(context.Background(), primitive.NewObjectID().Hex(), 2)
	if !errors.Is(err, ErrUnknownUser) {
		t.Errorf("got %v, want ErrUnknownUser", err)
	}
}

func TestInvalidTopK(t *testing.T) {
	f := newFixture(t)

	for _, topK := range []int{0, -1} {
		if _, err := f.matcher.ByUser(context.Background(), f.ids[0], topK); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("ByUser(top_k=%d): got %v, want ErrInvalidArgument", topK, err)
		}
		if _, err := f.matcher.ByProfile(context.Background(), []string{"go"}, nil, topK); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("ByProfile(top_k=%d): got %v, want ErrInvalidArgument", topK, err)
		}
	}
}

func TestNoSnapshotLoaded(t *testing.T) {
	f := newFixture(t)
	f.holder.Publish(nil)

	if _, err := f.matcher.ByUser(context.Background(), f.ids[0], 2); !errors.Is(err, ErrIndexUnavailable) {
		t.Errorf("ByUser: got %v, want ErrIndexUnavailable", err)
	}
	if _, err := f.matcher.ByProfile(context.Background(), []string{"python"}, []string{"go"}, 1); !errors.Is(err, ErrIndexUnavailable) {
		t.Errorf("ByProfile: got %v, want ErrIndexUnavailable", err)
	}
}

func TestByProfile(t *testing.T) {
	f := newFixture(t)

	results, err := f.matcher.ByProfile(context.Background(), []string{"python"}, []string{"go"}, 1)
	if err != nil {
		t.Fatalf("ByProfile failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want exactly 1", len(results))
	}
	// Query vector equals user 0's vector, and there is no self to drop.
	if results[0].UserID != f.ids[0] {
		t.Errorf("top match = %s, want %s", results[0].UserID, f.ids[0])
	}
}

func TestByProfileRequiresSkills(t *testing.T) {
	f := newFixture(t)

	_, err := f.matcher.ByProfile(context.Background(), nil, nil, 5)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("got %v, want ErrInvalidArgument", err)
	}
}

func TestMissingDocumentDropsResult(t *testing.T) {
	f := newFixture(t)
	delete(f.store.users, f.ids[1])

	results, err := f.matcher.ByUser(context.Background(), f.ids[0], 2)
	if err != nil {
		t.Fatalf("ByUser failed: %v", err)
	}

	// User 1's document is gone: the match is dropped, not the request.
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].UserID != f.ids[2] {
		t.Errorf("surviving match = %s, want %s", results[0].UserID, f.ids[2])
	}
}

func TestStoreOutageFailsQuery(t *testing.T) {
	f := newFixture(t)
	f.store.err = errors.New("connection refused")

	if _, err := f.matcher.ByUser(context.Background(), f.ids[0], 2); err == nil {
		t.Error("expected error when the document store is unavailable")
	}
}

func TestDuplicateProfileSurfacesAsNeighbor(t *testing.T) {
	// Two users with identical vectors: self-exclusion is by slot, so the
	// duplicate must still appear as a (perfect-score) neighbor.
	store := &fakeStore{users: make(map[string]*userstore.User)}
	ids := make([]string, 2)
	for i := range ids {
		oid := primitive.NewObjectID()
		ids[i] = oid.Hex()
		store.users[ids[i]] = &userstore.User{ID: oid}
	}

	snap, err := snapshot.Build(ids, [][]float32{
		{0.6, 0.8},
		{0.6, 0.8},
	}, "fake")
	if err != nil {
		t.Fatalf("build snapshot: %v", err)
	}

	holder := snapshot.NewHolder()
	holder.Publish(snap)
	m := NewMatcher(holder, &fakeProvider{dims: 2}, store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	results, err := m.ByUser(context.Background(), ids[0], 5)
	if err != nil {
		t.Fatalf("ByUser failed: %v", err)
	}
	if len(results) != 1 || results[0].UserID != ids[1] {
		t.Fatalf("results = %+v, want just the duplicate user %s", results, ids[1])
	}
	if results[0].Score < 0.999 {
		t.Errorf("duplicate score = %f, want ~1", results[0].Score)
	}
}

func TestQueryText(t *testing.T) {
	got := QueryText([]string{"python", "sql"}, []string{"go"})
	want := "python, sql |  WANT: go"
	if got != want {
		t.Errorf("QueryText = %q, want %q", got, want)
	}

	if got := QueryText(nil, []string{"go"}); got != " |  WANT: go" {
		t.Errorf("QueryText(nil, [go]) = %q", got)
	}
}
