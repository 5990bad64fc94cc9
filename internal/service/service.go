// Package service wires the document store, the summary repository and
// the LLM pipeline into the operations the API exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"condense/internal/aggregate"
	"condense/internal/docstore"
	"condense/internal/llm"
	"condense/internal/segment"
	"condense/internal/store"
	"condense/internal/summarize"
	"condense/internal/types"
)

var ErrEmptyDocument = summarize.ErrEmptyDocument

// runTimeout bounds a whole background summarization run.
const runTimeout = 10 * time.Minute

type Service struct {
	docs    docstore.Store
	store   store.Store
	llm     llm.TextClient
	model   string
	options segment.Options
	runs    *RunRegistry
	logger  zerolog.Logger
}

func New(docs docstore.Store, st store.Store, client llm.TextClient, opts segment.Options, logger zerolog.Logger) *Service {
	return &Service{
		docs:    docs,
		store:   st,
		llm:     client,
		model:   client.Name(),
		options: opts,
		runs:    NewRunRegistry(),
		logger:  logger,
	}
}

func (s *Service) Runs() *RunRegistry { return s.runs }

// Ingest stores the raw text and persists the segmentation so segment
// metadata can be listed without re-splitting.
func (s *Service) Ingest(ctx context.Context, title, text string) (docstore.Document, []types.DocumentSegment, error) {
	if strings.TrimSpace(text) == "" {
		return docstore.Document{}, nil, ErrEmptyDocument
	}
	doc := docstore.Document{
		SourceID:  uuid.NewString(),
		Title:     title,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.docs.Put(ctx, doc); err != nil {
		return docstore.Document{}, nil, fmt.Errorf("store document: %w", err)
	}
	segs := segment.Split(text, s.options)
	for i := range segs {
		segs[i].SourceID = doc.SourceID
	}
	if err := s.store.Segments().Replace(ctx, doc.SourceID, segs); err != nil {
		return docstore.Document{}, nil, fmt.Errorf("store segments: %w", err)
	}
	s.logger.Info().Str("source_id", doc.SourceID).Int("segments", len(segs)).Msg("document ingested")
	return doc, segs, nil
}

func (s *Service) Document(ctx context.Context, sourceID string) (docstore.Document, error) {
	return s.docs.Get(ctx, sourceID)
}

func (s *Service) Documents(ctx context.Context) ([]docstore.Document, error) {
	return s.docs.List(ctx)
}

func (s *Service) DeleteDocument(ctx context.Context, sourceID string) error {
	return s.docs.Delete(ctx, sourceID)
}

func (s *Service) Segments(ctx context.Context, sourceID string) ([]types.DocumentSegment, error) {
	return s.store.Segments().List(ctx, sourceID)
}

// Summarize starts a background pipeline run and returns its run ID.
// Progress is observable through Runs().Watch.
func (s *Service) Summarize(ctx context.Context, sourceID string) (string, error) {
	doc, err := s.docs.Get(ctx, sourceID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(doc.Text) == "" {
		return "", ErrEmptyDocument
	}

	runID := uuid.NewString()
	s.runs.create(runID)

	go s.executeRun(runID, doc)
	return runID, nil
}

func (s *Service) executeRun(runID string, doc docstore.Document) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	logger := s.logger.With().Str("run_id", runID).Str("source_id", doc.SourceID).Logger()

	pipe := summarize.New(s.llm, s.options, logger)
	pipe.Progress = func(step string, percent int) {
		s.runs.publish(runID, Event{Type: EventProgress, Step: step, Percent: percent})
	}

	started := time.Now()
	out, err := pipe.Run(ctx, doc.SourceID, doc.Title, doc.Text)
	if err != nil {
		logger.Error().Err(err).Msg("summarization run failed")
		s.runs.finish(runID, Event{Type: EventError, Message: err.Error()})
		return
	}

	if err := s.store.Segments().Replace(ctx, doc.SourceID, out.Segments); err != nil {
		logger.Error().Err(err).Msg("persist segments failed")
		s.runs.finish(runID, Event{Type: EventError, Message: err.Error()})
		return
	}
	if _, err := s.store.Summaries().InsertBatch(ctx, out.Summaries); err != nil {
		logger.Error().Err(err).Msg("persist summaries failed")
		s.runs.finish(runID, Event{Type: EventError, Message: err.Error()})
		return
	}

	logger.Info().
		Int("summaries", len(out.Summaries)).
		Dur("elapsed", time.Since(started)).
		Msg("summarization run complete")
	s.runs.finish(runID, Event{Type: EventComplete, Percent: 100})
}

// Regenerate re-runs a single summary kind for a document and persists
// the result as a new version.
func (s *Service) Regenerate(ctx context.Context, sourceID string, kind types.SummaryKind) (types.Summary, error) {
	doc, err := s.docs.Get(ctx, sourceID)
	if err != nil {
		return types.Summary{}, err
	}
	pipe := summarize.New(s.llm, s.options, s.logger)
	out, err := pipe.RunSingle(ctx, doc.SourceID, doc.Title, doc.Text, kind)
	if err != nil {
		return types.Summary{}, err
	}
	if len(out.Summaries) == 0 {
		return types.Summary{}, fmt.Errorf("regenerate %s: no draft produced", kind)
	}
	// RunSingle may re-derive dependencies; only the requested kind is
	// persisted as a new version.
	target := out.Summaries[len(out.Summaries)-1]
	if target.Kind != kind {
		return types.Summary{}, fmt.Errorf("regenerate %s: unexpected draft kind %s", kind, target.Kind)
	}
	return s.store.Summaries().Insert(ctx, target)
}

func (s *Service) Summary(ctx context.Context, id string) (types.Summary, error) {
	return s.store.Summaries().Get(ctx, id)
}

func (s *Service) CurrentSummaries(ctx context.Context, sourceID string) ([]types.Summary, error) {
	return s.store.Summaries().ListCurrent(ctx, sourceID)
}

func (s *Service) CurrentSummary(ctx context.Context, sourceID string, kind types.SummaryKind) (types.Summary, error) {
	return s.store.Summaries().Current(ctx, sourceID, kind)
}

func (s *Service) SummaryVersions(ctx context.Context, sourceID string, kind types.SummaryKind) ([]types.Summary, error) {
	return s.store.Summaries().Versions(ctx, sourceID, kind)
}

func (s *Service) EditSummary(ctx context.Context, id, title, content string) (types.Summary, error) {
	return s.store.Summaries().UpdateContent(ctx, id, title, content)
}

func (s *Service) RateSummary(ctx context.Context, id string, rating int) error {
	return s.store.Summaries().Rate(ctx, id, rating)
}

func (s *Service) DeleteSummary(ctx context.Context, id string) error {
	return s.store.Summaries().Delete(ctx, id)
}

func (s *Service) CreateCollection(ctx context.Context, name, description string) (types.SummaryCollection, error) {
	return s.store.Collections().Create(ctx, name, description)
}

func (s *Service) Collection(ctx context.Context, id string) (types.SummaryCollection, error) {
	return s.store.Collections().Get(ctx, id)
}

func (s *Service) Collections(ctx context.Context) ([]types.SummaryCollection, error) {
	return s.store.Collections().List(ctx)
}

func (s *Service) DeleteCollection(ctx context.Context, id string) error {
	return s.store.Collections().Delete(ctx, id)
}

// AddToCollection verifies the document exists before adding it.
func (s *Service) AddToCollection(ctx context.Context, collectionID, sourceID string, sequence int, weight float64) error {
	if _, err := s.docs.Get(ctx, sourceID); err != nil {
		return err
	}
	return s.store.Collections().AddSource(ctx, collectionID, sourceID, sequence, weight)
}

func (s *Service) RemoveFromCollection(ctx context.Context, collectionID, sourceID string) error {
	return s.store.Collections().RemoveSource(ctx, collectionID, sourceID)
}

func (s *Service) CollectionSources(ctx context.Context, collectionID string) ([]types.CollectionSource, error) {
	return s.store.Collections().Sources(ctx, collectionID)
}

// AggregateCollection synthesizes across the collection's current
// key_points summaries. Sources without one are skipped; at least one
// is required. The aggregated summary is versioned under the
// collection's ID.
func (s *Service) AggregateCollection(ctx context.Context, collectionID string, opts aggregate.Options, withEnrichments bool) (types.AggregationResult, error) {
	col, err := s.store.Collections().Get(ctx, collectionID)
	if err != nil {
		return types.AggregationResult{}, err
	}
	members, err := s.store.Collections().Sources(ctx, collectionID)
	if err != nil {
		return types.AggregationResult{}, err
	}

	inputs := make([]aggregate.SourceSummary, 0, len(members))
	for _, m := range members {
		sum, err := s.store.Summaries().Current(ctx, m.SourceID, types.KindKeyPoints)
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn().Str("source_id", m.SourceID).Msg("source has no key_points summary, skipping")
			continue
		}
		if err != nil {
			return types.AggregationResult{}, err
		}
		inputs = append(inputs, aggregate.SourceSummary{
			SourceID:  sum.SourceID,
			Title:     sum.Title,
			Content:   sum.Content,
			CreatedAt: sum.CreatedAt,
		})
	}
	if len(inputs) == 0 {
		return types.AggregationResult{}, aggregate.ErrNoSummaries
	}

	agg := aggregate.New(s.llm, s.logger)
	res, err := agg.GenerateAggregatedSummary(ctx, inputs, col.Name, opts, withEnrichments)
	if err != nil {
		return types.AggregationResult{}, err
	}

	row, err := s.store.Summaries().Insert(ctx, types.CreateSummaryInput{
		SourceID:     collectionID,
		Kind:         types.KindExecutive,
		Title:        col.Name,
		Content:      res.Synthesis.Text,
		Model:        res.Synthesis.Model,
		Duration:     res.Synthesis.Duration,
		InputTokens:  res.Synthesis.InputTokens,
		OutputTokens: res.Synthesis.OutputTokens,
	})
	if err != nil {
		return types.AggregationResult{}, err
	}
	return types.AggregationResult{
		Summary:        row,
		CommonThemes:   res.Themes,
		UniqueInsights: res.Insights,
	}, nil
}

// RecordConcepts replaces a summary's concept list, normalizing names
// for later duplicate matching.
func (s *Service) RecordConcepts(ctx context.Context, summaryID string, concepts []types.Concept) error {
	if _, err := s.store.Summaries().Get(ctx, summaryID); err != nil {
		return err
	}
	for i := range concepts {
		if concepts[i].Normalized == "" {
			concepts[i].Normalized = aggregate.NormalizeConcept(concepts[i].Name)
		}
	}
	return s.store.Concepts().ReplaceForSummary(ctx, summaryID, concepts)
}

// DuplicateConcepts reports concepts shared by at least two of the
// collection's current key_points summaries.
func (s *Service) DuplicateConcepts(ctx context.Context, collectionID string) ([]aggregate.ConceptGroup, error) {
	members, err := s.store.Collections().Sources(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	var summaryIDs []string
	for _, m := range members {
		sum, err := s.store.Summaries().Current(ctx, m.SourceID, types.KindKeyPoints)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		summaryIDs = append(summaryIDs, sum.ID)
	}
	concepts, err := s.store.Concepts().ListBySummaries(ctx, summaryIDs)
	if err != nil {
		return nil, err
	}
	return aggregate.FindDuplicateConcepts(concepts), nil
}
