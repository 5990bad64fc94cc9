// Package docstore holds the raw text of ingested documents. Summaries
// and segments reference a document by source ID; the text itself lives
// here, in memory or in an S3-compatible bucket.
package docstore

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("document not found")

type Document struct {
	SourceID  string    `json:"sourceId"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store defines operations for persisting document text.
type Store interface {
	Put(ctx context.Context, doc Document) error
	Get(ctx context.Context, sourceID string) (Document, error)
	List(ctx context.Context) ([]Document, error)
	Delete(ctx context.Context, sourceID string) error
}
