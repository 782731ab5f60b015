package notion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kurakb/kura/internal/log"
	"github.com/kurakb/kura/internal/source"
)

// notionStub serves canned search and block-children responses.
func notionStub(t *testing.T, pages []Page, blocks map[string][]Block) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/search":
			results := make([]json.RawMessage, 0, len(pages))
			for _, p := range pages {
				p.Object = "page"
				raw, err := json.Marshal(p)
				if err != nil {
					t.Fatalf("marshal page: %v", err)
				}
				results = append(results, raw)
			}
			_ = json.NewEncoder(w).Encode(SearchResponse{Object: "list", Results: results})

		case strings.HasPrefix(r.URL.Path, "/v1/blocks/"):
			parts := strings.Split(r.URL.Path, "/")
			blockID := parts[3]
			_ = json.NewEncoder(w).Encode(BlockChildrenResponse{
				Object:  "list",
				Results: blocks[blockID],
			})

		default:
			http.NotFound(w, r)
		}
	}))
}

func paragraph(text string) Block {
	return Block{
		Object:    "block",
		Type:      "paragraph",
		Paragraph: &TextBlock{RichText: []RichText{{Type: "text", PlainText: text}}},
	}
}

func titledPage(id, title string, edited time.Time) Page {
	return Page{
		ID:             id,
		LastEditedTime: edited,
		Properties: map[string]Property{
			"Name": {Type: "title", Title: []RichText{{Type: "text", PlainText: title}}},
		},
	}
}

func newTestFeed(t *testing.T, srv *httptest.Server, maxDocs int) *Feed {
	t.Helper()
	client, err := NewClient("ntn_test_token", log.NewNop(), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return NewFeed(client, maxDocs, log.NewNop())
}

func TestFeed_Documents(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	srv := notionStub(t,
		[]Page{
			titledPage("p1", "First Page", now),
			titledPage("p2", "Old Page", now.Add(-48*time.Hour)),
		},
		map[string][]Block{
			"p1": {paragraph("fresh content")},
			"p2": {paragraph("stale content")},
		})
	defer srv.Close()

	feed := newTestFeed(t, srv, 0)

	docs, err := feed.Documents(context.Background(), now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Documents() error = %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("Documents() = %d docs, want 1 (since filter)", len(docs))
	}

	doc := docs[0]
	if doc.ID != "notion_p1" {
		t.Errorf("ID = %q, want notion_p1", doc.ID)
	}
	if doc.Title != "First Page" {
		t.Errorf("Title = %q, want First Page", doc.Title)
	}
	if doc.Content != "fresh content" {
		t.Errorf("Content = %q, want fresh content", doc.Content)
	}
	if !doc.SourceTimestamp.Equal(now) {
		t.Errorf("SourceTimestamp = %v, want %v", doc.SourceTimestamp, now)
	}
	if doc.ContentHash != source.Hash("fresh content") {
		t.Errorf("ContentHash = %q, want hash of content", doc.ContentHash)
	}
}

func TestFeed_SkipsEmptyPages(t *testing.T) {
	now := time.Now()
	srv := notionStub(t,
		[]Page{titledPage("p1", "Empty", now)},
		map[string][]Block{"p1": {}})
	defer srv.Close()

	feed := newTestFeed(t, srv, 0)

	docs, err := feed.Documents(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("Documents() error = %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("Documents() = %d docs, want 0 for empty pages", len(docs))
	}
}

func TestFeed_MaxDocs(t *testing.T) {
	now := time.Now()
	srv := notionStub(t,
		[]Page{
			titledPage("p1", "One", now),
			titledPage("p2", "Two", now),
			titledPage("p3", "Three", now),
		},
		map[string][]Block{
			"p1": {paragraph("one")},
			"p2": {paragraph("two")},
			"p3": {paragraph("three")},
		})
	defer srv.Close()

	feed := newTestFeed(t, srv, 2)

	docs, err := feed.Documents(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("Documents() error = %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("Documents() = %d docs, want 2 (max_docs limit)", len(docs))
	}
}

func TestFeed_SearchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	feed := newTestFeed(t, srv, 0)

	_, err := feed.Documents(context.Background(), time.Time{})
	if err == nil {
		t.Fatal("Documents() = nil error, want search failure")
	}
}

func TestNewClient_RequiresToken(t *testing.T) {
	if _, err := NewClient("", log.NewNop()); err == nil {
		t.Fatal("NewClient(\"\") = nil error, want token required")
	}
}

func TestClient_SetsAuthHeaders(t *testing.T) {
	var gotAuth, gotVersion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotVersion = r.Header.Get("Notion-Version")
		_ = json.NewEncoder(w).Encode(SearchResponse{Object: "list"})
	}))
	defer srv.Close()

	client, err := NewClient("ntn_secret", log.NewNop(), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if _, err := client.Search(context.Background(), ""); err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if gotAuth != "Bearer ntn_secret" {
		t.Errorf("Authorization = %q, want Bearer ntn_secret", gotAuth)
	}
	if gotVersion != APIVersion {
		t.Errorf("Notion-Version = %q, want %q", gotVersion, APIVersion)
	}
}

func TestExtractText(t *testing.T) {
	rich := func(s string) []RichText { return []RichText{{Type: "text", PlainText: s}} }

	blocks := []Block{
		{Type: "heading_1", Heading1: &TextBlock{RichText: rich("Title")}},
		{Type: "paragraph", Paragraph: &TextBlock{RichText: rich("Body text.")}},
		{Type: "bulleted_list_item", BulletedListItem: &TextBlock{RichText: rich("Point")}},
		{Type: "code", Code: &CodeBlock{RichText: rich("x := 1"), Language: "go"}},
		{Type: "quote", Quote: &TextBlock{RichText: rich("Wise words")}},
		{Type: "to_do", ToDo: &ToDoBlock{RichText: rich("Ship it"), Checked: true}},
		{Type: "unsupported_widget"},
	}

	got := ExtractText(blocks)
	want := "# Title\n\nBody text.\n\n• Point\n\n```go\nx := 1\n```\n\n> Wise words\n\n[x] Ship it"
	if got != want {
		t.Errorf("ExtractText() = %q, want %q", got, want)
	}
}

func TestExtractPageTitle(t *testing.T) {
	page := titledPage("p1", "My Page", time.Now())
	if got := ExtractPageTitle(&page); got != "My Page" {
		t.Errorf("ExtractPageTitle() = %q, want My Page", got)
	}

	untitled := Page{ID: "p2"}
	if got := ExtractPageTitle(&untitled); got != "Untitled (ID: p2)" {
		t.Errorf("ExtractPageTitle() = %q, want fallback", got)
	}
}
