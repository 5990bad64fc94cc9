// Package aggregate synthesizes one cross-source summary from many
// documents' key-points summaries, plus common-theme and unique-insight
// enrichments and concept deduplication utilities.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"condense/internal/llm"
	"condense/internal/types"
)

// Step names carried in context for hooks and the fake client.
const (
	StepAggregate = "aggregate"
	StepThemes    = "common_themes"
	StepInsights  = "unique_insights"
)

const (
	maxAggregateTokens  = 2048
	maxEnrichmentTokens = 1024
	maxThemes           = 10
)

var ErrNoSummaries = errors.New("aggregate: at least one summary is required")

// Options controls prompt construction. WeightByRecency only reorders
// the sources in the prompt, newest first.
type Options struct {
	WeightByRecency          bool
	IncludeSourceAttribution bool
	MaxKeyPoints             int
}

func DefaultOptions() Options {
	return Options{
		WeightByRecency:          false,
		IncludeSourceAttribution: true,
		MaxKeyPoints:             15,
	}
}

// SourceSummary is one input: a document's current key-points summary.
type SourceSummary struct {
	SourceID  string
	Title     string
	Content   string
	CreatedAt time.Time
}

// Synthesis is the primary aggregation artifact with its token usage.
type Synthesis struct {
	Text         string
	Model        string
	Duration     time.Duration
	InputTokens  int
	OutputTokens int
}

// Result bundles the synthesis with its enrichments. Themes and
// Insights are empty (never nil semantics beyond that) when enrichment
// was skipped or degraded.
type Result struct {
	Synthesis Synthesis
	Themes    []types.Theme
	Insights  []types.Insight
}

type Aggregator struct {
	LLM    llm.TextClient
	Logger zerolog.Logger
}

func New(client llm.TextClient, logger zerolog.Logger) *Aggregator {
	return &Aggregator{LLM: client, Logger: logger}
}

// Aggregate builds one combined prompt over all inputs and asks for a
// synthesized summary targeting opts.MaxKeyPoints points.
func (a *Aggregator) Aggregate(ctx context.Context, summaries []SourceSummary, collectionName string, opts Options) (Synthesis, error) {
	if len(summaries) == 0 {
		return Synthesis{}, ErrNoSummaries
	}
	if opts.MaxKeyPoints <= 0 {
		opts.MaxKeyPoints = DefaultOptions().MaxKeyPoints
	}

	ordered := orderForPrompt(summaries, opts.WeightByRecency)

	system := fmt.Sprintf(`You are synthesizing a single summary from the key points of %d
related documents. Merge overlapping material, resolve minor disagreements in favor
of the majority, and produce at most %d key points covering all sources.
Output one point per line, each starting with "- ".`, len(ordered), opts.MaxKeyPoints)
	if opts.IncludeSourceAttribution {
		system += "\nAfter each point, name the contributing sources in parentheses, e.g. (Source 1, Source 3)."
	}

	start := time.Now()
	res, err := a.LLM.Generate(llm.WithStep(ctx, StepAggregate), system, buildSourceList(collectionName, ordered), maxAggregateTokens)
	elapsed := time.Since(start)
	if err != nil {
		return Synthesis{}, fmt.Errorf("failed to generate aggregated summary: %w", err)
	}
	if strings.TrimSpace(res.Text) == "" {
		return Synthesis{}, fmt.Errorf("failed to generate aggregated summary: %w", llm.ErrEmptyCompletion)
	}
	return Synthesis{
		Text:         res.Text,
		Model:        a.LLM.Name(),
		Duration:     elapsed,
		InputTokens:  res.InputTokens,
		OutputTokens: res.OutputTokens,
	}, nil
}

// FindCommonThemes asks for themes shared by several sources. A
// malformed response degrades to an empty list; only the call itself
// failing is an error.
func (a *Aggregator) FindCommonThemes(ctx context.Context, summaries []SourceSummary) ([]types.Theme, error) {
	if len(summaries) == 0 {
		return nil, ErrNoSummaries
	}
	system := `Identify the themes that recur across these document summaries.
Return 5-10 themes as a JSON array, most important first:
[{"theme": "...", "description": "...", "sourceCount": 2, "importance": 0.9}]
Respond with JSON only.`
	res, err := a.LLM.Generate(llm.WithStep(ctx, StepThemes), system, buildSourceList("", summaries), maxEnrichmentTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to find common themes: %w", err)
	}
	themes, ok := parseThemes(res.Text)
	if !ok {
		a.Logger.Warn().Msg("unparseable themes response, returning none")
		return []types.Theme{}, nil
	}
	if len(themes) > maxThemes {
		themes = themes[:maxThemes]
	}
	return themes, nil
}

// ExtractUniqueInsights asks for per-source insights. Entries whose
// sourceIndex is out of range are dropped with a warning rather than
// failing the batch; a malformed response degrades to an empty list.
func (a *Aggregator) ExtractUniqueInsights(ctx context.Context, summaries []SourceSummary) ([]types.Insight, error) {
	if len(summaries) == 0 {
		return nil, ErrNoSummaries
	}
	system := `For each document summary below, extract insights that appear in that
source alone. Return a JSON array:
[{"sourceIndex": 0, "insight": "...", "significance": "..."}]
sourceIndex is the zero-based position of the source in the input list.
Respond with JSON only.`
	res, err := a.LLM.Generate(llm.WithStep(ctx, StepInsights), system, buildSourceList("", summaries), maxEnrichmentTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to extract unique insights: %w", err)
	}
	parsed, ok := parseInsights(res.Text)
	if !ok {
		a.Logger.Warn().Msg("unparseable insights response, returning none")
		return []types.Insight{}, nil
	}
	out := make([]types.Insight, 0, len(parsed))
	for _, in := range parsed {
		if in.SourceIndex < 0 || in.SourceIndex >= len(summaries) {
			a.Logger.Warn().Int("source_index", in.SourceIndex).Int("sources", len(summaries)).
				Msg("dropping insight with out-of-range source index")
			continue
		}
		in.SourceID = summaries[in.SourceIndex].SourceID
		out = append(out, in)
	}
	return out, nil
}

// GenerateAggregatedSummary composes the synthesis and, unless skipped,
// both enrichments concurrently. The synthesis failing is fatal; a
// failing enrichment degrades to an empty list since themes and insights
// are enrichments, not the primary artifact.
func (a *Aggregator) GenerateAggregatedSummary(ctx context.Context, summaries []SourceSummary, collectionName string, opts Options, withEnrichments bool) (Result, error) {
	if len(summaries) == 0 {
		return Result{}, ErrNoSummaries
	}

	var (
		wg       sync.WaitGroup
		syn      Synthesis
		synErr   error
		themes   = []types.Theme{}
		insights = []types.Insight{}
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		syn, synErr = a.Aggregate(ctx, summaries, collectionName, opts)
	}()

	if withEnrichments {
		wg.Add(2)
		go func() {
			defer wg.Done()
			t, err := a.FindCommonThemes(ctx, summaries)
			if err != nil {
				a.Logger.Warn().Err(err).Msg("theme extraction degraded")
				return
			}
			themes = t
		}()
		go func() {
			defer wg.Done()
			i, err := a.ExtractUniqueInsights(ctx, summaries)
			if err != nil {
				a.Logger.Warn().Err(err).Msg("insight extraction degraded")
				return
			}
			insights = i
		}()
	}

	wg.Wait()
	if synErr != nil {
		return Result{}, synErr
	}
	return Result{Synthesis: syn, Themes: themes, Insights: insights}, nil
}

// orderForPrompt returns a copy, newest first when byRecency is set.
func orderForPrompt(summaries []SourceSummary, byRecency bool) []SourceSummary {
	out := make([]SourceSummary, len(summaries))
	copy(out, summaries)
	if byRecency {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	}
	return out
}

func buildSourceList(collectionName string, summaries []SourceSummary) string {
	var b strings.Builder
	if collectionName != "" {
		fmt.Fprintf(&b, "Collection: %s\n", collectionName)
	}
	fmt.Fprintf(&b, "Sources (%d):\n\n", len(summaries))
	for i, s := range summaries {
		title := s.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&b, "[Source %d] %s\n%s\n\n", i+1, title, s.Content)
	}
	return b.String()
}
