// Package store persists segments, summaries, collections and concepts.
// Two backends implement the same contract: an in-memory store for tests
// and offline runs, and a SQL store (Postgres via pgx, or a local SQLite
// file). The load-bearing invariant is summary versioning: within one
// (sourceID, kind) scope exactly one row is current and it carries the
// highest version; insert flips the old current and writes the new row
// as one atomic operation.
package store

import (
	"context"
	"errors"

	"condense/internal/types"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrInvalid  = errors.New("store: invalid input")
)

type SummaryStore interface {
	// Insert assigns version max+1 within the (SourceID, Kind) scope,
	// marks every older row non-current and writes the new row as
	// current, atomically with respect to concurrent writers.
	Insert(ctx context.Context, in types.CreateSummaryInput) (types.Summary, error)
	// InsertBatch inserts the drafts in order within a single atomic
	// unit, reading each scope's base version exactly once.
	InsertBatch(ctx context.Context, ins []types.CreateSummaryInput) ([]types.Summary, error)
	Get(ctx context.Context, id string) (types.Summary, error)
	Current(ctx context.Context, sourceID string, kind types.SummaryKind) (types.Summary, error)
	ListCurrent(ctx context.Context, sourceID string) ([]types.Summary, error)
	// Versions lists every version in a scope, oldest first.
	Versions(ctx context.Context, sourceID string, kind types.SummaryKind) ([]types.Summary, error)
	// UpdateContent edits title/content in place and recomputes the
	// word count. It does not create a new version.
	UpdateContent(ctx context.Context, id, title, content string) (types.Summary, error)
	Rate(ctx context.Context, id string, rating int) error
	Delete(ctx context.Context, id string) error
}

type SegmentStore interface {
	// Replace swaps a document's segment records for the given list.
	Replace(ctx context.Context, sourceID string, segs []types.DocumentSegment) error
	List(ctx context.Context, sourceID string) ([]types.DocumentSegment, error)
}

type CollectionStore interface {
	Create(ctx context.Context, name, description string) (types.SummaryCollection, error)
	Get(ctx context.Context, id string) (types.SummaryCollection, error)
	List(ctx context.Context) ([]types.SummaryCollection, error)
	Delete(ctx context.Context, id string) error
	// AddSource upserts a membership row; membership is unique per
	// (collection, source).
	AddSource(ctx context.Context, collectionID, sourceID string, sequence int, weight float64) error
	RemoveSource(ctx context.Context, collectionID, sourceID string) error
	// Sources lists memberships ordered by sequence.
	Sources(ctx context.Context, collectionID string) ([]types.CollectionSource, error)
}

type ConceptStore interface {
	// ReplaceForSummary swaps the concepts extracted from one summary.
	ReplaceForSummary(ctx context.Context, summaryID string, concepts []types.Concept) error
	ListBySummaries(ctx context.Context, summaryIDs []string) ([]types.Concept, error)
}

// Store bundles the repositories behind one handle.
type Store interface {
	Summaries() SummaryStore
	Segments() SegmentStore
	Collections() CollectionStore
	Concepts() ConceptStore
	Close() error
}
