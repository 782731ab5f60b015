package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kurakb/kura/internal/api"
	"github.com/kurakb/kura/internal/knowledge"
	"github.com/kurakb/kura/internal/refresh"
	"github.com/kurakb/kura/internal/retrieve"
)

type stubRetriever struct {
	matches []knowledge.Match
	err     error
	lastQ   retrieve.Query
}

func (s *stubRetriever) Answer(_ context.Context, q retrieve.Query) ([]knowledge.Match, error) {
	s.lastQ = q
	return s.matches, s.err
}

type stubRefresher struct {
	state     refresh.State
	triggered chan struct{}
}

func (s *stubRefresher) Trigger(context.Context) bool {
	if s.triggered != nil {
		close(s.triggered)
	}
	return true
}

func (s *stubRefresher) State() refresh.State { return s.state }

func newTestServer(t *testing.T, ret api.Retriever, ref api.Refresher) http.Handler {
	t.Helper()
	srv, err := api.NewServer(api.ServerConfig{
		Retriever: ret,
		Refresher: ref,
		MaxK:      100,
		RateBurst: 1000,
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return srv.Handler()
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:51234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "203.0.113.7:51234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestQueryEndpoint_Success(t *testing.T) {
	ts := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	ret := &stubRetriever{matches: []knowledge.Match{
		{ID: "doc2", Score: 0.93, Meta: knowledge.Metadata{Title: "Farming", Content: "cucumbers", SourceTimestamp: ts}},
		{ID: "doc1", Score: 0.41, Meta: knowledge.Metadata{Title: "Scheduler", Content: "cron"}},
	}}
	h := newTestServer(t, ret, &stubRefresher{})

	rec := postJSON(t, h, "/api/v1/query", `{"text":"how do I grow cucumbers?","k":2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Matches []struct {
			ID    string  `json:"id"`
			Title string  `json:"title"`
			Score float32 `json:"score"`
		} `json:"matches"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if len(resp.Matches) != 2 || resp.Matches[0].ID != "doc2" || resp.Matches[0].Score != 0.93 {
		t.Errorf("matches = %+v", resp.Matches)
	}
	if ret.lastQ.Text != "how do I grow cucumbers?" || ret.lastQ.K != 2 {
		t.Errorf("engine received query %+v", ret.lastQ)
	}
}

func TestQueryEndpoint_EmptyResultIsOK(t *testing.T) {
	h := newTestServer(t, &stubRetriever{}, &stubRefresher{})

	rec := postJSON(t, h, "/api/v1/query", `{"text":"anything"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"matches":[]`) {
		t.Errorf("body = %s, want empty matches array", rec.Body.String())
	}
}

func TestQueryEndpoint_Validation(t *testing.T) {
	h := newTestServer(t, &stubRetriever{}, &stubRefresher{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed JSON", `{"text":`},
		{"empty text", `{"text":""}`},
		{"negative k", `{"text":"q","k":-1}`},
		{"k above limit", `{"text":"q","k":101}`},
		{"min_score too low", `{"text":"q","min_score":-1.5}`},
		{"min_score too high", `{"text":"q","min_score":1.5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, h, "/api/v1/query", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), "invalid_request") {
				t.Errorf("body = %s, want invalid_request", rec.Body.String())
			}
		})
	}
}

func TestQueryEndpoint_RetrievalFailure(t *testing.T) {
	ret := &stubRetriever{err: errors.New("embedding backend down")}
	h := newTestServer(t, ret, &stubRefresher{})

	rec := postJSON(t, h, "/api/v1/query", `{"text":"q"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "temporarily_unavailable") {
		t.Errorf("body = %s, want temporarily_unavailable", rec.Body.String())
	}
}

func TestRefreshEndpoint_Starts(t *testing.T) {
	ref := &stubRefresher{triggered: make(chan struct{})}
	h := newTestServer(t, &stubRetriever{}, ref)

	rec := postJSON(t, h, "/api/v1/refresh", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "started") {
		t.Errorf("body = %s, want started", rec.Body.String())
	}

	select {
	case <-ref.triggered:
	case <-time.After(5 * time.Second):
		t.Fatal("Trigger was never called")
	}
}

func TestRefreshEndpoint_AlreadyRunning(t *testing.T) {
	ref := &stubRefresher{state: refresh.State{InProgress: true}}
	h := newTestServer(t, &stubRetriever{}, ref)

	rec := postJSON(t, h, "/api/v1/refresh", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "already_running") {
		t.Errorf("body = %s, want already_running", rec.Body.String())
	}
}

func TestRefreshStatusEndpoint(t *testing.T) {
	last := time.Date(2025, 7, 1, 6, 0, 0, 0, time.UTC)
	ref := &stubRefresher{state: refresh.State{LastRun: last, LastSuccess: last, LastError: "partial feed listing"}}
	h := newTestServer(t, &stubRetriever{}, ref)

	rec := get(t, h, "/api/v1/refresh/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var state refresh.State
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if !state.LastSuccess.Equal(last) || state.LastError != "partial feed listing" {
		t.Errorf("state = %+v", state)
	}
}

func TestHealthEndpoints(t *testing.T) {
	h := newTestServer(t, &stubRetriever{}, &stubRefresher{})

	if rec := get(t, h, "/health"); rec.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200", rec.Code)
	}
	// Nil pool: readiness always reports ready
	if rec := get(t, h, "/ready"); rec.Code != http.StatusOK {
		t.Errorf("/ready status = %d, want 200", rec.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	h := newTestServer(t, &stubRetriever{}, &stubRefresher{})

	rec := postJSON(t, h, "/api/v1/query", `{"text":"q"}`)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}

	// A valid incoming id is echoed back unchanged
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(`{"text":"q"}`))
	req.RemoteAddr = "203.0.113.7:51234"
	req.Header.Set("X-Request-ID", "0e0f8f4e-2c9a-4f7e-9d1b-1f2a3b4c5d6e")
	out := httptest.NewRecorder()
	h.ServeHTTP(out, req)
	if got := out.Header().Get("X-Request-ID"); got != "0e0f8f4e-2c9a-4f7e-9d1b-1f2a3b4c5d6e" {
		t.Errorf("X-Request-ID = %q, want echoed id", got)
	}
}

type panicRetriever struct{}

func (panicRetriever) Answer(context.Context, retrieve.Query) ([]knowledge.Match, error) {
	panic("boom")
}

func TestRecoveryMiddleware(t *testing.T) {
	h := newTestServer(t, panicRetriever{}, &stubRefresher{})

	rec := postJSON(t, h, "/api/v1/query", `{"text":"q"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	srv, err := api.NewServer(api.ServerConfig{
		Retriever: &stubRetriever{},
		Refresher: &stubRefresher{},
		RateBurst: 2,
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	h := srv.Handler()

	var limited bool
	for range 5 {
		rec := postJSON(t, h, "/api/v1/query", `{"text":"q"}`)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			if rec.Header().Get("Retry-After") == "" {
				t.Error("429 without Retry-After header")
			}
			break
		}
	}
	if !limited {
		t.Error("burst of 2 never produced a 429 across 5 requests")
	}
}
