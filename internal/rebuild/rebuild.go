// Package rebuild recomputes the match index from the full user corpus.
package rebuild

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/skillswap/skillmatch/internal/embed"
	"github.com/skillswap/skillmatch/internal/snapshot"
	"github.com/skillswap/skillmatch/internal/userstore"
)

// Pipeline pulls every user profile, embeds the derived texts in one batch
// and publishes the resulting snapshot. It is an offline/batch operation:
// a failure at any stage leaves the previously published snapshot and the
// persisted artifacts untouched.
type Pipeline struct {
	users    userstore.Store
	provider embed.Provider
	store    *snapshot.Store
	holder   *snapshot.Holder // nil when running as a standalone tool
	log      *slog.Logger
}

// Result summarizes a completed rebuild.
type Result struct {
	Version   string
	Users     int
	Dimension int
	Took      time.Duration
}

// New creates a Pipeline. holder may be nil; the rebuild then only persists
// the snapshot without publishing it into a running server.
func New(users userstore.Store, provider embed.Provider, store *snapshot.Store, holder *snapshot.Holder, log *slog.Logger) *Pipeline {
	return &Pipeline{
		users:    users,
		provider: provider,
		store:    store,
		holder:   holder,
		log:      log,
	}
}

// Rebuild runs the full pipeline. An empty corpus is not an error: it
// returns a zero-user Result and builds, persists and publishes nothing.
func (p *Pipeline) Rebuild(ctx context.Context) (*Result, error) {
	start := time.Now()

	users, err := p.users.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	if len(users) == 0 {
		p.log.Warn("no users in corpus, skipping index build")
		return &Result{Users: 0, Took: time.Since(start)}, nil
	}

	ids := make([]string, len(users))
	texts := make([]string, len(users))
	for i := range users {
		ids[i] = users[i].ExternalID()
		texts[i] = ProfileText(&users[i])
	}

	p.log.Info("computing embeddings", "users", len(users), "model", p.provider.Model())

	vectors, err := p.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed corpus: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}

	// Index and map are built from the same row order in one call; this is
	// the invariant that makes slot i mean the same user in both.
	snap, err := snapshot.Build(ids, vectors, p.provider.Model())
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}

	if err := p.store.Save(snap); err != nil {
		return nil, fmt.Errorf("persist snapshot: %w", err)
	}

	if p.holder != nil {
		p.holder.Publish(snap)
	}

	res := &Result{
		Version:   snap.Version,
		Users:     snap.Count(),
		Dimension: snap.Dimension(),
		Took:      time.Since(start),
	}
	p.log.Info("rebuild complete",
		"version", res.Version,
		"users", res.Users,
		"dimension", res.Dimension,
		"took", res.Took)

	return res, nil
}

// profileSeparator joins the labeled fields of a profile text.
const profileSeparator = " | "

// ProfileText derives the embedding input for one user. Field order and
// labels are a stable external contract: changing either shifts every user
// in embedding space and makes scores incomparable across rebuilds.
func ProfileText(u *userstore.User) string {
	parts := []string{
		"Skills Offered: " + strings.Join(u.SkillsOffered, ", "),
		"Skills Required: " + strings.Join(u.SkillsRequired, ", "),
		"Field of Study: " + u.FieldOfStudy,
		"Research Interests: " + strings.Join(u.ResearchInterests, ", "),
		"Learning Preferences: " + strings.Join(u.LearningPreferences, ", "),
		"Subject Strengths: " + strings.Join(u.SubjectStrengths, ", "),
		"Academic Goals: " + strings.Join(u.AcademicGoals, ", "),
		"Study Habits: " + strings.Join(u.StudyHabits, ", "),
		"Institution: " + u.Institution,
		"Degree: " + u.Degree,
	}
	return strings.Join(parts, profileSeparator)
}
