package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"condense/internal/types"
)

// MemoryStore keeps everything in process memory behind one mutex, which
// makes the version-assign-and-flip trivially atomic.
type MemoryStore struct {
	mu          sync.RWMutex
	summaries   map[string]types.Summary
	segments    map[string][]types.DocumentSegment
	collections map[string]types.SummaryCollection
	members     map[string][]types.CollectionSource
	concepts    map[string][]types.Concept
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		summaries:   map[string]types.Summary{},
		segments:    map[string][]types.DocumentSegment{},
		collections: map[string]types.SummaryCollection{},
		members:     map[string][]types.CollectionSource{},
		concepts:    map[string][]types.Concept{},
	}
}

func (s *MemoryStore) Summaries() SummaryStore      { return s }
func (s *MemoryStore) Segments() SegmentStore       { return memSegments{s} }
func (s *MemoryStore) Collections() CollectionStore { return memCollections{s} }
func (s *MemoryStore) Concepts() ConceptStore       { return s }
func (s *MemoryStore) Close() error                 { return nil }

func validateSummaryInput(in types.CreateSummaryInput) error {
	if strings.TrimSpace(in.SourceID) == "" {
		return fmt.Errorf("%w: source id is required", ErrInvalid)
	}
	if !in.Kind.Valid() {
		return fmt.Errorf("%w: unknown summary type %q", ErrInvalid, in.Kind)
	}
	if strings.TrimSpace(in.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalid)
	}
	return nil
}

type scopeKey struct {
	sourceID string
	kind     types.SummaryKind
}

func (s *MemoryStore) Insert(ctx context.Context, in types.CreateSummaryInput) (types.Summary, error) {
	out, err := s.InsertBatch(ctx, []types.CreateSummaryInput{in})
	if err != nil {
		return types.Summary{}, err
	}
	return out[0], nil
}

func (s *MemoryStore) InsertBatch(_ context.Context, ins []types.CreateSummaryInput) ([]types.Summary, error) {
	for _, in := range ins {
		if err := validateSummaryInput(in); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Each scope's base version is read exactly once per batch; rows for
	// the same scope then number sequentially.
	next := map[scopeKey]int{}
	now := time.Now().UTC()
	out := make([]types.Summary, 0, len(ins))
	for _, in := range ins {
		key := scopeKey{sourceID: in.SourceID, kind: in.Kind}
		if _, seen := next[key]; !seen {
			next[key] = s.maxVersionLocked(key)
		}
		next[key]++

		for id, existing := range s.summaries {
			if existing.SourceID == key.sourceID && existing.Kind == key.kind && existing.IsCurrent {
				existing.IsCurrent = false
				s.summaries[id] = existing
			}
		}

		row := types.Summary{
			ID:              uuid.NewString(),
			SourceID:        in.SourceID,
			Kind:            in.Kind,
			Title:           in.Title,
			Content:         in.Content,
			WordCount:       types.WordCount(in.Content),
			Version:         next[key],
			IsCurrent:       true,
			ParentVersionID: in.ParentVersionID,
			Model:           in.Model,
			DurationMS:      in.Duration.Milliseconds(),
			InputTokens:     in.InputTokens,
			OutputTokens:    in.OutputTokens,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		s.summaries[row.ID] = row
		out = append(out, row)
	}
	return out, nil
}

func (s *MemoryStore) maxVersionLocked(key scopeKey) int {
	max := 0
	for _, existing := range s.summaries {
		if existing.SourceID == key.sourceID && existing.Kind == key.kind && existing.Version > max {
			max = existing.Version
		}
	}
	return max
}

func (s *MemoryStore) Get(_ context.Context, id string) (types.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.summaries[id]
	if !ok {
		return types.Summary{}, ErrNotFound
	}
	return row, nil
}

func (s *MemoryStore) Current(_ context.Context, sourceID string, kind types.SummaryKind) (types.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, row := range s.summaries {
		if row.SourceID == sourceID && row.Kind == kind && row.IsCurrent {
			return row, nil
		}
	}
	return types.Summary{}, ErrNotFound
}

func (s *MemoryStore) ListCurrent(_ context.Context, sourceID string) ([]types.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Summary
	for _, row := range s.summaries {
		if row.SourceID == sourceID && row.IsCurrent {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}

func (s *MemoryStore) Versions(_ context.Context, sourceID string, kind types.SummaryKind) ([]types.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Summary
	for _, row := range s.summaries {
		if row.SourceID == sourceID && row.Kind == kind {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (s *MemoryStore) UpdateContent(_ context.Context, id, title, content string) (types.Summary, error) {
	if strings.TrimSpace(content) == "" {
		return types.Summary{}, fmt.Errorf("%w: content is required", ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.summaries[id]
	if !ok {
		return types.Summary{}, ErrNotFound
	}
	if strings.TrimSpace(title) != "" {
		row.Title = title
	}
	row.Content = content
	row.WordCount = types.WordCount(content)
	row.UpdatedAt = time.Now().UTC()
	s.summaries[id] = row
	return row, nil
}

func (s *MemoryStore) Rate(_ context.Context, id string, rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: rating must be in 1..5", ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.summaries[id]
	if !ok {
		return ErrNotFound
	}
	row.UserRating = &rating
	row.UpdatedAt = time.Now().UTC()
	s.summaries[id] = row
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.summaries[id]; !ok {
		return ErrNotFound
	}
	delete(s.summaries, id)
	delete(s.concepts, id)
	return nil
}

func (s *MemoryStore) ReplaceForSummary(_ context.Context, summaryID string, concepts []types.Concept) error {
	if strings.TrimSpace(summaryID) == "" {
		return fmt.Errorf("%w: summary id is required", ErrInvalid)
	}
	cp := make([]types.Concept, len(concepts))
	copy(cp, concepts)
	for i := range cp {
		if cp[i].ID == "" {
			cp[i].ID = uuid.NewString()
		}
		cp[i].SummaryID = summaryID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.concepts[summaryID] = cp
	return nil
}

func (s *MemoryStore) ListBySummaries(_ context.Context, summaryIDs []string) ([]types.Concept, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Concept
	for _, id := range summaryIDs {
		out = append(out, s.concepts[id]...)
	}
	return out, nil
}

type memSegments struct{ s *MemoryStore }

func (m memSegments) Replace(_ context.Context, sourceID string, segs []types.DocumentSegment) error {
	if strings.TrimSpace(sourceID) == "" {
		return fmt.Errorf("%w: source id is required", ErrInvalid)
	}
	cp := make([]types.DocumentSegment, len(segs))
	copy(cp, segs)
	for i := range cp {
		cp[i].SourceID = sourceID
		cp[i].Text = "" // transient, never persisted
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.segments[sourceID] = cp
	return nil
}

func (m memSegments) List(_ context.Context, sourceID string) ([]types.DocumentSegment, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	segs := m.s.segments[sourceID]
	out := make([]types.DocumentSegment, len(segs))
	copy(out, segs)
	sort.Slice(out, func(i, j int) bool { return out[i].SegmentIndex < out[j].SegmentIndex })
	return out, nil
}

type memCollections struct{ s *MemoryStore }

func (m memCollections) Create(_ context.Context, name, description string) (types.SummaryCollection, error) {
	if strings.TrimSpace(name) == "" {
		return types.SummaryCollection{}, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	col := types.SummaryCollection{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.collections[col.ID] = col
	return col, nil
}

func (m memCollections) Get(_ context.Context, id string) (types.SummaryCollection, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	col, ok := m.s.collections[id]
	if !ok {
		return types.SummaryCollection{}, ErrNotFound
	}
	return col, nil
}

func (m memCollections) List(_ context.Context) ([]types.SummaryCollection, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := make([]types.SummaryCollection, 0, len(m.s.collections))
	for _, col := range m.s.collections {
		out = append(out, col)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m memCollections) Delete(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.collections[id]; !ok {
		return ErrNotFound
	}
	delete(m.s.collections, id)
	delete(m.s.members, id)
	return nil
}

func (m memCollections) AddSource(_ context.Context, collectionID, sourceID string, sequence int, weight float64) error {
	if strings.TrimSpace(sourceID) == "" {
		return fmt.Errorf("%w: source id is required", ErrInvalid)
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.collections[collectionID]; !ok {
		return ErrNotFound
	}
	rows := m.s.members[collectionID]
	for i, mb := range rows {
		if mb.SourceID == sourceID {
			rows[i].Sequence = sequence
			rows[i].Weight = weight
			return nil
		}
	}
	m.s.members[collectionID] = append(rows, types.CollectionSource{
		CollectionID: collectionID,
		SourceID:     sourceID,
		Sequence:     sequence,
		Weight:       weight,
	})
	return nil
}

func (m memCollections) RemoveSource(_ context.Context, collectionID, sourceID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	rows := m.s.members[collectionID]
	for i, mb := range rows {
		if mb.SourceID == sourceID {
			m.s.members[collectionID] = append(rows[:i], rows[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m memCollections) Sources(_ context.Context, collectionID string) ([]types.CollectionSource, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	if _, ok := m.s.collections[collectionID]; !ok {
		return nil, ErrNotFound
	}
	rows := m.s.members[collectionID]
	out := make([]types.CollectionSource, len(rows))
	copy(out, rows)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sequence != out[j].Sequence {
			return out[i].Sequence < out[j].Sequence
		}
		return out[i].SourceID < out[j].SourceID
	})
	return out, nil
}
