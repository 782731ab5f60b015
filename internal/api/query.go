package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kurakb/kura/internal/knowledge"
	"github.com/kurakb/kura/internal/log"
	"github.com/kurakb/kura/internal/retrieve"
)

// queryRequest is the body of POST /api/v1/query.
type queryRequest struct {
	Text     string   `json:"text"`
	K        int      `json:"k,omitempty"`
	MinScore *float32 `json:"min_score,omitempty"`
}

// queryMatch is one retrieval result in the response.
type queryMatch struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Content         string    `json:"content"`
	Score           float32   `json:"score"`
	SourceTimestamp time.Time `json:"source_timestamp"`
}

// queryResponse is the body of a successful query.
type queryResponse struct {
	Matches []queryMatch `json:"matches"`
}

type queryHandler struct {
	engine Retriever
	maxK   int
	logger log.Logger
}

func (h *queryHandler) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}
	if req.K < 0 || (h.maxK > 0 && req.K > h.maxK) {
		writeError(w, http.StatusBadRequest, "invalid_request", "k out of range")
		return
	}
	if req.MinScore != nil && (*req.MinScore < -1 || *req.MinScore > 1) {
		writeError(w, http.StatusBadRequest, "invalid_request", "min_score must be in [-1, 1]")
		return
	}

	matches, err := h.engine.Answer(r.Context(), retrieve.Query{
		Text:     req.Text,
		K:        req.K,
		MinScore: req.MinScore,
	})
	if err != nil {
		h.logger.Warn("query failed",
			"error", err,
			"request_id", requestIDFromContext(r.Context()))
		writeError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "retrieval is temporarily unavailable")
		return
	}

	// An empty result is a valid answer, not an error.
	out := make([]queryMatch, 0, len(matches))
	for _, m := range matches {
		out = append(out, toQueryMatch(m))
	}
	writeJSON(w, http.StatusOK, queryResponse{Matches: out})
}

func toQueryMatch(m knowledge.Match) queryMatch {
	return queryMatch{
		ID:              m.ID,
		Title:           m.Meta.Title,
		Content:         m.Meta.Content,
		Score:           m.Score,
		SourceTimestamp: m.Meta.SourceTimestamp,
	}
}
