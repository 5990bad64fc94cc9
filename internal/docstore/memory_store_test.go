package docstore

import (
	"context"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Put(ctx, Document{SourceID: "doc-1", Title: "Notes", Text: "body text"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	doc, err := s.Get(ctx, "doc-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Title != "Notes" || doc.Text != "body text" {
		t.Fatalf("unexpected doc: %+v", doc)
	}
	if doc.CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be set")
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get(context.Background(), "nope"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreListOmitsText(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Put(ctx, Document{SourceID: "b", Text: "bbb"})
	_ = s.Put(ctx, Document{SourceID: "a", Text: "aaa"})

	docs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 2 || docs[0].SourceID != "a" || docs[1].SourceID != "b" {
		t.Fatalf("unexpected list: %+v", docs)
	}
	if docs[0].Text != "" {
		t.Fatalf("list should not carry text")
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Put(ctx, Document{SourceID: "doc-1", Text: "x"})

	if err := s.Delete(ctx, "doc-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "doc-1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
