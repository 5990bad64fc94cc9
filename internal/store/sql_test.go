package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"condense/internal/types"
)

func openSQLite(t *testing.T) *SQLStore {
	t.Helper()
	st, err := Open(context.Background(), filepath.Join(t.TempDir(), "condense.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSQLInsertFlipsCurrent(t *testing.T) {
	ctx := context.Background()
	st := openSQLite(t)

	for i := 1; i <= 3; i++ {
		row, err := st.Summaries().Insert(ctx, draft("doc-1", types.KindKeyPoints, fmt.Sprintf("content %d", i)))
		require.NoError(t, err)
		require.Equal(t, i, row.Version)
	}

	versions, err := st.Summaries().Versions(ctx, "doc-1", types.KindKeyPoints)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	for _, row := range versions {
		require.Equal(t, row.Version == 3, row.IsCurrent)
	}

	cur, err := st.Summaries().Current(ctx, "doc-1", types.KindKeyPoints)
	require.NoError(t, err)
	require.Equal(t, "content 3", cur.Content)
	require.Equal(t, 2, cur.WordCount)
}

func TestSQLBatchReadsBaseVersionOnce(t *testing.T) {
	ctx := context.Background()
	st := openSQLite(t)

	out, err := st.Summaries().InsertBatch(ctx, []types.CreateSummaryInput{
		draft("doc-1", types.KindSegment, "a"),
		draft("doc-1", types.KindSegment, "b"),
		draft("doc-1", types.KindSegment, "c"),
	})
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, []int{out[0].Version, out[1].Version, out[2].Version})

	versions, err := st.Summaries().Versions(ctx, "doc-1", types.KindSegment)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	require.True(t, versions[2].IsCurrent)
	require.False(t, versions[0].IsCurrent)
}

func TestSQLCurrentCacheInvalidation(t *testing.T) {
	ctx := context.Background()
	st := openSQLite(t)

	row, err := st.Summaries().Insert(ctx, draft("doc-1", types.KindExecutive, "first"))
	require.NoError(t, err)

	// Warm the cache, then mutate through every path that must bust it.
	cur, err := st.Summaries().Current(ctx, "doc-1", types.KindExecutive)
	require.NoError(t, err)
	require.Equal(t, "first", cur.Content)

	_, err = st.Summaries().UpdateContent(ctx, row.ID, "", "edited body")
	require.NoError(t, err)
	cur, err = st.Summaries().Current(ctx, "doc-1", types.KindExecutive)
	require.NoError(t, err)
	require.Equal(t, "edited body", cur.Content)

	next, err := st.Summaries().Insert(ctx, draft("doc-1", types.KindExecutive, "second"))
	require.NoError(t, err)
	require.Equal(t, 2, next.Version)
	cur, err = st.Summaries().Current(ctx, "doc-1", types.KindExecutive)
	require.NoError(t, err)
	require.Equal(t, "second", cur.Content)

	require.NoError(t, st.Summaries().Delete(ctx, next.ID))
	_, err = st.Summaries().Current(ctx, "doc-1", types.KindExecutive)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLRatingAndMetadataRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := openSQLite(t)

	in := draft("doc-1", types.KindDetailed, "detailed body text")
	in.Model = "gemini-2.0-flash"
	in.InputTokens = 1200
	in.OutputTokens = 300
	row, err := st.Summaries().Insert(ctx, in)
	require.NoError(t, err)

	require.NoError(t, st.Summaries().Rate(ctx, row.ID, 5))
	got, err := st.Summaries().Get(ctx, row.ID)
	require.NoError(t, err)
	require.Equal(t, "gemini-2.0-flash", got.Model)
	require.Equal(t, 1200, got.InputTokens)
	require.Equal(t, 300, got.OutputTokens)
	require.NotNil(t, got.UserRating)
	require.Equal(t, 5, *got.UserRating)
	require.Nil(t, got.QualityScore)
	require.False(t, got.CreatedAt.IsZero())
}

func TestSQLSegmentsRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := openSQLite(t)

	require.NoError(t, st.Segments().Replace(ctx, "doc-1", []types.DocumentSegment{
		{SegmentIndex: 0, StartIndex: 0, EndIndex: 80, SectionTitle: "Intro", Level: 1, EstimatedTokens: 20, Text: "raw"},
		{SegmentIndex: 1, StartIndex: 80, EndIndex: 200, SectionTitle: "Methods", Level: 2, EstimatedTokens: 31},
	}))

	got, err := st.Segments().List(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Intro", got[0].SectionTitle)
	require.Equal(t, 31, got[1].EstimatedTokens)
	require.Empty(t, got[0].Text)
}

func TestSQLCollectionsAndConcepts(t *testing.T) {
	ctx := context.Background()
	st := openSQLite(t)

	col, err := st.Collections().Create(ctx, "reading", "")
	require.NoError(t, err)

	require.NoError(t, st.Collections().AddSource(ctx, col.ID, "doc-2", 1, 1))
	require.NoError(t, st.Collections().AddSource(ctx, col.ID, "doc-1", 0, 1))
	require.NoError(t, st.Collections().AddSource(ctx, col.ID, "doc-2", 2, 0.25))

	sources, err := st.Collections().Sources(ctx, col.ID)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	require.Equal(t, "doc-1", sources[0].SourceID)
	require.Equal(t, 0.25, sources[1].Weight)

	row, err := st.Summaries().Insert(ctx, draft("doc-1", types.KindKeyPoints, "x"))
	require.NoError(t, err)
	require.NoError(t, st.Concepts().ReplaceForSummary(ctx, row.ID, []types.Concept{
		{Name: "Edge Computing", Normalized: "edge computing", Importance: 0.7},
	}))
	concepts, err := st.Concepts().ListBySummaries(ctx, []string{row.ID, "missing"})
	require.NoError(t, err)
	require.Len(t, concepts, 1)

	require.NoError(t, st.Collections().Delete(ctx, col.ID))
	_, err = st.Collections().Sources(ctx, col.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLConcurrentInsertsKeepVersionsDense(t *testing.T) {
	ctx := context.Background()
	st := openSQLite(t)

	const writers = 12
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := st.Summaries().Insert(ctx, draft("doc-1", types.KindKeyPoints, fmt.Sprintf("content %d", i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	versions, err := st.Summaries().Versions(ctx, "doc-1", types.KindKeyPoints)
	require.NoError(t, err)
	require.Len(t, versions, writers)
	current := 0
	for i, row := range versions {
		require.Equal(t, i+1, row.Version)
		if row.IsCurrent {
			current++
			require.Equal(t, writers, row.Version)
		}
	}
	require.Equal(t, 1, current)

	cur, err := st.Summaries().Current(ctx, "doc-1", types.KindKeyPoints)
	require.NoError(t, err)
	require.Equal(t, writers, cur.Version)
}

func TestUniqueViolationDetection(t *testing.T) {
	require.False(t, isUniqueViolation(nil))
	require.False(t, isUniqueViolation(errors.New("connection reset")))
	require.True(t, isUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: summaries.source_id, summaries.kind, summaries.version")))
	require.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	require.False(t, isUniqueViolation(&pgconn.PgError{Code: "40001"}))
}
