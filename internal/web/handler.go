package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/skillswap/skillmatch/internal/embed"
	"github.com/skillswap/skillmatch/internal/match"
	"github.com/skillswap/skillmatch/internal/snapshot"
	"github.com/skillswap/skillmatch/internal/userstore"
	"github.com/skillswap/skillmatch/internal/version"
)

// Handler handles HTTP requests for the match API.
type Handler struct {
	matcher   *match.Matcher
	snapshots *snapshot.Holder
	provider  embed.Provider
	log       *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(matcher *match.Matcher, snapshots *snapshot.Holder, provider embed.Provider, log *slog.Logger) *Handler {
	return &Handler{
		matcher:   matcher,
		snapshots: snapshots,
		provider:  provider,
		log:       log,
	}
}

// matchRequest accepts either an existing user id or an ad-hoc skills
// profile, never both semantics at once: a non-empty userId wins.
type matchRequest struct {
	UserID     string   `json:"userId"`
	SkillsHave []string `json:"skillsHave"`
	SkillsWant []string `json:"skillsWant"`
	TopK       int      `json:"top_k"`
}

type matchResponse struct {
	Matches []match.Result `json:"matches"`
}

// Match serves POST /match.
func (h *Handler) Match(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.TopK == 0 {
		req.TopK = match.DefaultTopK
	}

	var (
		results []match.Result
		err     error
	)
	if req.UserID != "" {
		results, err = h.matcher.ByUser(r.Context(), req.UserID, req.TopK)
	} else {
		results, err = h.matcher.ByProfile(r.Context(), req.SkillsHave, req.SkillsWant, req.TopK)
	}
	if err != nil {
		h.matchError(w, err)
		return
	}

	if results == nil {
		results = []match.Result{}
	}
	h.jsonResponse(w, matchResponse{Matches: results})
}

// matchError maps engine errors to HTTP status codes.
func (h *Handler) matchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, match.ErrInvalidArgument):
		h.jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, match.ErrUnknownUser), errors.Is(err, userstore.ErrNotFound):
		h.jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, match.ErrIndexUnavailable):
		h.jsonError(w, "index not loaded; run a rebuild", http.StatusServiceUnavailable)
	case errors.Is(err, embed.ErrProviderUnavailable):
		h.jsonError(w, "embedding provider unavailable", http.StatusBadGateway)
	default:
		h.log.Error("match request failed", "error", err)
		h.jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

// Health serves GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshots.Load()

	payload := map[string]interface{}{
		"ok":           true,
		"index_loaded": snap != nil,
		"vectors":      0,
	}
	if snap != nil {
		payload["vectors"] = snap.Count()
	}
	h.jsonResponse(w, payload)
}

// Status serves GET /status with snapshot and embedder details.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{
		"version":              version.Version,
		"embedding_model":      h.provider.Model(),
		"embedding_dimensions": h.provider.Dimensions(),
		"index_loaded":         false,
	}

	if snap := h.snapshots.Load(); snap != nil {
		payload["index_loaded"] = true
		payload["snapshot"] = map[string]interface{}{
			"version":    snap.Version,
			"model":      snap.Model,
			"users":      snap.Count(),
			"dimension":  snap.Dimension(),
			"created_at": snap.CreatedAt,
		}
	}

	h.jsonResponse(w, payload)
}

func (h *Handler) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("encode response", "error", err)
	}
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
