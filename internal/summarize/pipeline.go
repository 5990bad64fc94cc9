// Package summarize orchestrates the multi-pass summarization pipeline:
// per-segment summaries first, then key points synthesized from them,
// then the executive summary condensed from the key points; the detailed
// summary is derived from the segment summaries in parallel with that
// chain.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"condense/internal/llm"
	"condense/internal/segment"
	"condense/internal/token"
	"condense/internal/types"
)

// Step names carried in context for hooks and the fake client.
const (
	StepSegment   = "segment_summary"
	StepKeyPoints = "key_points"
	StepExecutive = "executive"
	StepDetailed  = "detailed"
)

// Per-step output token caps.
const (
	maxSegmentSummaryTokens = 1024
	maxKeyPointsTokens      = 1024
	maxExecutiveTokens      = 512
	maxDetailedTokens       = 2048
)

var ErrEmptyDocument = errors.New("summarize: document text is empty")

// ProgressFunc receives advisory completion percentages. Reported values
// never decrease; the callback must not block for long and cannot affect
// control flow.
type ProgressFunc func(step string, percent int)

// Pipeline turns one document into its summary hierarchy.
type Pipeline struct {
	LLM      llm.TextClient
	Options  segment.Options
	Progress ProgressFunc
	Logger   zerolog.Logger
}

func New(client llm.TextClient, opts segment.Options, logger zerolog.Logger) *Pipeline {
	return &Pipeline{LLM: client, Options: opts, Logger: logger}
}

// Output is what a run produces. Summaries are drafts: whether they are
// persisted is the caller's decision.
type Output struct {
	Segments  []types.DocumentSegment
	Summaries []types.CreateSummaryInput
}

// Run segments text and generates one summary per segment plus the
// key_points, executive and detailed summaries, in dependency order.
// On success len(Summaries) == len(Segments)+3. On error the drafts
// completed so far are still returned alongside the error.
func (p *Pipeline) Run(ctx context.Context, sourceID, sourceTitle, text string) (Output, error) {
	if strings.TrimSpace(text) == "" {
		return Output{}, ErrEmptyDocument
	}

	prog := newProgress(p.Progress)

	segs := segment.Split(text, p.Options)
	for i := range segs {
		segs[i].SourceID = sourceID
	}
	out := Output{Segments: segs}
	prog.emit("segmented", 5)
	p.Logger.Info().Str("source_id", sourceID).Int("segments", len(segs)).Msg("document segmented")

	segmentTexts := make([]string, 0, len(segs))
	for i, seg := range segs {
		draft, err := p.generateDraft(ctx, sourceID, StepSegment,
			fmt.Sprintf("segment summary %d", i),
			segmentSystemPrompt,
			buildSegmentPrompt(sourceTitle, seg.SectionTitle, seg.Text),
			maxSegmentSummaryTokens,
			types.KindSegment,
			segmentTitle(seg),
		)
		if err != nil {
			return out, err
		}
		out.Summaries = append(out.Summaries, draft)
		segmentTexts = append(segmentTexts, draft.Content)
		prog.emit(StepSegment, 5+55*(i+1)/len(segs))
	}

	synthesis := buildSynthesisPrompt(sourceTitle, segmentTexts)

	// The detailed summary depends only on the segment summaries, so it
	// runs concurrently with the key_points -> executive chain.
	type detResult struct {
		draft types.CreateSummaryInput
		err   error
	}
	detCh := make(chan detResult, 1)
	go func() {
		draft, err := p.generateDraft(ctx, sourceID, StepDetailed, "detailed summary",
			detailedSystemPrompt, synthesis, maxDetailedTokens,
			types.KindDetailed, sourceTitle+" - Detailed Summary")
		detCh <- detResult{draft: draft, err: err}
	}()

	keyPoints, err := p.generateDraft(ctx, sourceID, StepKeyPoints, "key points summary",
		keyPointsSystemPrompt, synthesis, maxKeyPointsTokens,
		types.KindKeyPoints, sourceTitle+" - Key Points")
	if err != nil {
		<-detCh
		return out, err
	}
	out.Summaries = append(out.Summaries, keyPoints)
	prog.emit(StepKeyPoints, 70)

	executive, err := p.generateDraft(ctx, sourceID, StepExecutive, "executive summary",
		executiveSystemPrompt, buildExecutivePrompt(sourceTitle, keyPoints.Content), maxExecutiveTokens,
		types.KindExecutive, sourceTitle+" - Executive Summary")
	if err != nil {
		<-detCh
		return out, err
	}
	out.Summaries = append(out.Summaries, executive)
	prog.emit(StepExecutive, 80)

	det := <-detCh
	if det.err != nil {
		return out, det.err
	}
	out.Summaries = append(out.Summaries, det.draft)
	prog.emit(StepDetailed, 90)

	prog.emit("done", 100)
	return out, nil
}

// RunSingle regenerates exactly one summary kind. For kinds other than
// segment the dependencies are re-derived (the document is re-segmented
// and segment summaries regenerated); for kind segment the whole text is
// treated as one implicit segment.
func (p *Pipeline) RunSingle(ctx context.Context, sourceID, sourceTitle, text string, kind types.SummaryKind) (Output, error) {
	if strings.TrimSpace(text) == "" {
		return Output{}, ErrEmptyDocument
	}
	if !kind.Valid() {
		return Output{}, fmt.Errorf("summarize: unknown summary type %q", kind)
	}

	if kind == types.KindSegment {
		seg := types.DocumentSegment{
			SourceID:        sourceID,
			StartIndex:      0,
			EndIndex:        len(text),
			EstimatedTokens: token.Estimate(text),
			Text:            text,
		}
		draft, err := p.generateDraft(ctx, sourceID, StepSegment, "segment summary",
			segmentSystemPrompt, buildSegmentPrompt(sourceTitle, "", text), maxSegmentSummaryTokens,
			types.KindSegment, segmentTitle(seg))
		if err != nil {
			return Output{Segments: []types.DocumentSegment{seg}}, err
		}
		return Output{
			Segments:  []types.DocumentSegment{seg},
			Summaries: []types.CreateSummaryInput{draft},
		}, nil
	}

	segs := segment.Split(text, p.Options)
	for i := range segs {
		segs[i].SourceID = sourceID
	}
	out := Output{Segments: segs}

	segmentTexts := make([]string, 0, len(segs))
	for i, seg := range segs {
		draft, err := p.generateDraft(ctx, sourceID, StepSegment,
			fmt.Sprintf("segment summary %d", i),
			segmentSystemPrompt,
			buildSegmentPrompt(sourceTitle, seg.SectionTitle, seg.Text),
			maxSegmentSummaryTokens,
			types.KindSegment, segmentTitle(seg))
		if err != nil {
			return out, err
		}
		segmentTexts = append(segmentTexts, draft.Content)
	}
	synthesis := buildSynthesisPrompt(sourceTitle, segmentTexts)

	var draft types.CreateSummaryInput
	var err error
	switch kind {
	case types.KindDetailed:
		draft, err = p.generateDraft(ctx, sourceID, StepDetailed, "detailed summary",
			detailedSystemPrompt, synthesis, maxDetailedTokens,
			types.KindDetailed, sourceTitle+" - Detailed Summary")
	case types.KindKeyPoints:
		draft, err = p.generateDraft(ctx, sourceID, StepKeyPoints, "key points summary",
			keyPointsSystemPrompt, synthesis, maxKeyPointsTokens,
			types.KindKeyPoints, sourceTitle+" - Key Points")
	case types.KindExecutive:
		var keyPoints types.CreateSummaryInput
		keyPoints, err = p.generateDraft(ctx, sourceID, StepKeyPoints, "key points summary",
			keyPointsSystemPrompt, synthesis, maxKeyPointsTokens,
			types.KindKeyPoints, sourceTitle+" - Key Points")
		if err == nil {
			draft, err = p.generateDraft(ctx, sourceID, StepExecutive, "executive summary",
				executiveSystemPrompt, buildExecutivePrompt(sourceTitle, keyPoints.Content), maxExecutiveTokens,
				types.KindExecutive, sourceTitle+" - Executive Summary")
		}
	}
	if err != nil {
		return out, err
	}
	out.Summaries = []types.CreateSummaryInput{draft}
	return out, nil
}

// generateDraft performs one generation call and wraps it into a draft
// summary record. A failed call, or one returning only whitespace, fails
// fast with the step label.
func (p *Pipeline) generateDraft(ctx context.Context, sourceID, step, label, system, prompt string, maxTokens int, kind types.SummaryKind, title string) (types.CreateSummaryInput, error) {
	start := time.Now()
	res, err := p.LLM.Generate(llm.WithStep(ctx, step), system, prompt, maxTokens)
	elapsed := time.Since(start)
	if err != nil {
		return types.CreateSummaryInput{}, fmt.Errorf("failed to generate %s: %w", label, err)
	}
	if strings.TrimSpace(res.Text) == "" {
		return types.CreateSummaryInput{}, fmt.Errorf("failed to generate %s: %w", label, llm.ErrEmptyCompletion)
	}
	p.Logger.Debug().
		Str("source_id", sourceID).
		Str("step", step).
		Dur("took", elapsed).
		Int("output_tokens", res.OutputTokens).
		Msg("generation step complete")
	return types.CreateSummaryInput{
		SourceID:     sourceID,
		Kind:         kind,
		Title:        title,
		Content:      res.Text,
		Model:        p.LLM.Name(),
		Duration:     elapsed,
		InputTokens:  res.InputTokens,
		OutputTokens: res.OutputTokens,
	}, nil
}

func segmentTitle(seg types.DocumentSegment) string {
	if seg.SectionTitle != "" {
		return seg.SectionTitle
	}
	return fmt.Sprintf("Segment %d", seg.SegmentIndex+1)
}

// progress clamps reported percentages so they never decrease even when
// concurrent steps finish out of order.
type progress struct {
	mu   sync.Mutex
	last int
	fn   ProgressFunc
}

func newProgress(fn ProgressFunc) *progress {
	return &progress{fn: fn}
}

func (p *progress) emit(step string, percent int) {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	if percent < p.last {
		percent = p.last
	}
	p.last = percent
	p.mu.Unlock()
	p.fn(step, percent)
}
