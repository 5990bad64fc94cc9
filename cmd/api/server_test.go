package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"condense/internal/docstore"
	"condense/internal/llm"
	"condense/internal/segment"
	"condense/internal/service"
	"condense/internal/store"
	"condense/internal/types"
)

func newTestRouter() http.Handler {
	svc := service.New(docstore.NewMemoryStore(), store.NewMemoryStore(), llm.NewFakeClient(), segment.DefaultOptions(), zerolog.Nop())
	return buildRouter(newAPIServer(svc, zerolog.Nop()))
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIngestAndListSegments(t *testing.T) {
	h := newTestRouter()

	rec := doJSON(t, h, http.MethodPost, "/api/documents", map[string]string{
		"title": "Notes",
		"text":  "First paragraph.\n\nSecond paragraph.",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("ingest status = %d, body %s", rec.Code, rec.Body)
	}
	var created struct {
		Document docstore.Document       `json:"document"`
		Segments []types.DocumentSegment `json:"segments"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Document.SourceID == "" {
		t.Fatalf("missing source id")
	}
	if created.Document.Text != "" {
		t.Fatalf("ingest response should not echo text")
	}

	rec = doJSON(t, h, http.MethodGet, "/api/documents/"+created.Document.SourceID+"/segments", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("segments status = %d", rec.Code)
	}
}

func TestIngestRejectsEmptyBody(t *testing.T) {
	h := newTestRouter()
	rec := doJSON(t, h, http.MethodPost, "/api/documents", map[string]string{"title": "x", "text": "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRegenerateAndSummaryLifecycle(t *testing.T) {
	h := newTestRouter()

	rec := doJSON(t, h, http.MethodPost, "/api/documents", map[string]string{
		"title": "Notes",
		"text":  "Body for the summary lifecycle.",
	})
	var created struct {
		Document docstore.Document `json:"document"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &created)
	sourceID := created.Document.SourceID

	rec = doJSON(t, h, http.MethodPost,
		fmt.Sprintf("/api/documents/%s/summaries/executive/regenerate", sourceID), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("regenerate status = %d, body %s", rec.Code, rec.Body)
	}
	var sum types.Summary
	_ = json.Unmarshal(rec.Body.Bytes(), &sum)
	if sum.Kind != types.KindExecutive || sum.Version != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}

	rec = doJSON(t, h, http.MethodGet,
		fmt.Sprintf("/api/documents/%s/summaries/executive", sourceID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("current status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPatch, "/api/summaries/"+sum.ID, map[string]string{
		"content": "edited summary body",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("edit status = %d, body %s", rec.Code, rec.Body)
	}
	var edited types.Summary
	_ = json.Unmarshal(rec.Body.Bytes(), &edited)
	if edited.WordCount != 3 {
		t.Fatalf("word count = %d, want 3", edited.WordCount)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/summaries/"+sum.ID+"/rating", map[string]int{"rating": 9})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("rating status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/summaries/"+sum.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodDelete, "/api/summaries/"+sum.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestUnknownKindRejected(t *testing.T) {
	h := newTestRouter()
	rec := doJSON(t, h, http.MethodGet, "/api/documents/whatever/summaries/bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestWatchUnknownRun(t *testing.T) {
	h := newTestRouter()
	rec := doJSON(t, h, http.MethodGet, "/api/watch/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCollectionRoutes(t *testing.T) {
	h := newTestRouter()

	rec := doJSON(t, h, http.MethodPost, "/api/collections", map[string]string{"name": "reading"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	var col types.SummaryCollection
	_ = json.Unmarshal(rec.Body.Bytes(), &col)

	// Aggregating an empty collection is a client error, not a crash.
	rec = doJSON(t, h, http.MethodPost, "/api/collections/"+col.ID+"/aggregate", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("aggregate status = %d, want 400, body %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/collections/"+col.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
}
