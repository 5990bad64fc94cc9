package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"condense/internal/types"
)

func draft(sourceID string, kind types.SummaryKind, content string) types.CreateSummaryInput {
	return types.CreateSummaryInput{
		SourceID: sourceID,
		Kind:     kind,
		Title:    "t",
		Content:  content,
		Model:    "fake",
	}
}

func TestInsertAssignsSequentialVersions(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	for i := 1; i <= 4; i++ {
		row, err := st.Summaries().Insert(ctx, draft("doc-1", types.KindExecutive, fmt.Sprintf("content %d", i)))
		require.NoError(t, err)
		require.Equal(t, i, row.Version)
		require.True(t, row.IsCurrent)
	}

	versions, err := st.Summaries().Versions(ctx, "doc-1", types.KindExecutive)
	require.NoError(t, err)
	require.Len(t, versions, 4)
	currentCount := 0
	for i, row := range versions {
		require.Equal(t, i+1, row.Version)
		if row.IsCurrent {
			currentCount++
			require.Equal(t, 4, row.Version)
		}
	}
	require.Equal(t, 1, currentCount)

	cur, err := st.Summaries().Current(ctx, "doc-1", types.KindExecutive)
	require.NoError(t, err)
	require.Equal(t, "content 4", cur.Content)
}

func TestVersionScopesAreIndependent(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	_, err := st.Summaries().Insert(ctx, draft("doc-1", types.KindExecutive, "a"))
	require.NoError(t, err)
	kp, err := st.Summaries().Insert(ctx, draft("doc-1", types.KindKeyPoints, "b"))
	require.NoError(t, err)
	other, err := st.Summaries().Insert(ctx, draft("doc-2", types.KindExecutive, "c"))
	require.NoError(t, err)

	require.Equal(t, 1, kp.Version)
	require.Equal(t, 1, other.Version)

	current, err := st.Summaries().ListCurrent(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, current, 2)
}

func TestInsertBatchNumbersSameScopeSequentially(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	_, err := st.Summaries().Insert(ctx, draft("doc-1", types.KindSegment, "base"))
	require.NoError(t, err)

	out, err := st.Summaries().InsertBatch(ctx, []types.CreateSummaryInput{
		draft("doc-1", types.KindSegment, "seg a"),
		draft("doc-1", types.KindSegment, "seg b"),
		draft("doc-1", types.KindExecutive, "exec"),
	})
	require.NoError(t, err)
	require.Equal(t, 2, out[0].Version)
	require.Equal(t, 3, out[1].Version)
	require.Equal(t, 1, out[2].Version)

	cur, err := st.Summaries().Current(ctx, "doc-1", types.KindSegment)
	require.NoError(t, err)
	require.Equal(t, "seg b", cur.Content)
}

func TestInsertRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	_, err := st.Summaries().Insert(ctx, draft("", types.KindExecutive, "x"))
	require.ErrorIs(t, err, ErrInvalid)
	_, err = st.Summaries().Insert(ctx, draft("doc-1", "bogus", "x"))
	require.ErrorIs(t, err, ErrInvalid)
	_, err = st.Summaries().Insert(ctx, draft("doc-1", types.KindExecutive, "   "))
	require.ErrorIs(t, err, ErrInvalid)
}

func TestUpdateContentRecomputesWordCount(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	row, err := st.Summaries().Insert(ctx, draft("doc-1", types.KindDetailed, "one two three"))
	require.NoError(t, err)
	require.Equal(t, 3, row.WordCount)

	updated, err := st.Summaries().UpdateContent(ctx, row.ID, "", "one two three four five")
	require.NoError(t, err)
	require.Equal(t, 5, updated.WordCount)
	require.Equal(t, "t", updated.Title)
	require.Equal(t, row.Version, updated.Version)

	_, err = st.Summaries().UpdateContent(ctx, "missing", "", "x")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRateAndDelete(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	row, err := st.Summaries().Insert(ctx, draft("doc-1", types.KindExecutive, "x"))
	require.NoError(t, err)

	require.ErrorIs(t, st.Summaries().Rate(ctx, row.ID, 0), ErrInvalid)
	require.ErrorIs(t, st.Summaries().Rate(ctx, row.ID, 6), ErrInvalid)
	require.NoError(t, st.Summaries().Rate(ctx, row.ID, 4))

	got, err := st.Summaries().Get(ctx, row.ID)
	require.NoError(t, err)
	require.NotNil(t, got.UserRating)
	require.Equal(t, 4, *got.UserRating)

	require.NoError(t, st.Summaries().Delete(ctx, row.ID))
	_, err = st.Summaries().Get(ctx, row.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, st.Summaries().Delete(ctx, row.ID), ErrNotFound)
}

func TestSegmentReplaceAndList(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	segs := []types.DocumentSegment{
		{SegmentIndex: 1, StartIndex: 50, EndIndex: 100, SectionTitle: "B", Text: "raw"},
		{SegmentIndex: 0, StartIndex: 0, EndIndex: 50, SectionTitle: "A", Text: "raw"},
	}
	require.NoError(t, st.Segments().Replace(ctx, "doc-1", segs))

	got, err := st.Segments().List(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "A", got[0].SectionTitle)
	require.Equal(t, "B", got[1].SectionTitle)
	require.Empty(t, got[0].Text)

	require.NoError(t, st.Segments().Replace(ctx, "doc-1", segs[:1]))
	got, err = st.Segments().List(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestCollectionMembershipIsUnique(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	col, err := st.Collections().Create(ctx, "research", "q3 reading")
	require.NoError(t, err)

	require.NoError(t, st.Collections().AddSource(ctx, col.ID, "doc-1", 2, 1))
	require.NoError(t, st.Collections().AddSource(ctx, col.ID, "doc-2", 1, 1))
	// Re-adding updates the row instead of duplicating it.
	require.NoError(t, st.Collections().AddSource(ctx, col.ID, "doc-1", 0, 0.5))

	sources, err := st.Collections().Sources(ctx, col.ID)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	require.Equal(t, "doc-1", sources[0].SourceID)
	require.Equal(t, 0.5, sources[0].Weight)
	require.Equal(t, "doc-2", sources[1].SourceID)

	require.NoError(t, st.Collections().RemoveSource(ctx, col.ID, "doc-2"))
	require.ErrorIs(t, st.Collections().RemoveSource(ctx, col.ID, "doc-2"), ErrNotFound)

	require.ErrorIs(t, st.Collections().AddSource(ctx, "missing", "doc-1", 0, 1), ErrNotFound)
}

func TestConceptsReplaceAndList(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	row, err := st.Summaries().Insert(ctx, draft("doc-1", types.KindKeyPoints, "x"))
	require.NoError(t, err)

	require.NoError(t, st.Concepts().ReplaceForSummary(ctx, row.ID, []types.Concept{
		{Name: "Machine Learning", Normalized: "machine learning", Importance: 0.9},
		{Name: "APIs", Normalized: "api", Importance: 0.5},
	}))
	require.NoError(t, st.Concepts().ReplaceForSummary(ctx, row.ID, []types.Concept{
		{Name: "APIs", Normalized: "api", Importance: 0.5},
	}))

	got, err := st.Concepts().ListBySummaries(ctx, []string{row.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, row.ID, got[0].SummaryID)
	require.NotEmpty(t, got[0].ID)
}

func TestConcurrentInsertsKeepVersionsDense(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := st.Summaries().Insert(ctx, draft("doc-1", types.KindExecutive, fmt.Sprintf("content %d", i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	versions, err := st.Summaries().Versions(ctx, "doc-1", types.KindExecutive)
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
}
