// Package types holds the domain entities shared across the summarization
// pipeline, the aggregator and the stores.
package types

import (
	"strings"
	"time"
)

// SummaryKind identifies one level of the summary hierarchy.
// The kinds form a fixed dependency order: segment summaries feed the
// key_points summary, which feeds the executive summary; the detailed
// summary is derived from segment summaries alone.
type SummaryKind string

const (
	KindExecutive SummaryKind = "executive"
	KindKeyPoints SummaryKind = "key_points"
	KindDetailed  SummaryKind = "detailed"
	KindSegment   SummaryKind = "segment"
)

func (k SummaryKind) Valid() bool {
	switch k {
	case KindExecutive, KindKeyPoints, KindDetailed, KindSegment:
		return true
	}
	return false
}

// DocumentSegment is one contiguous, budget-bounded span of a source
// document. Segments of a document are non-overlapping, ordered, and
// SegmentIndex is dense in emission order.
type DocumentSegment struct {
	SourceID        string `json:"sourceId"`
	SegmentIndex    int    `json:"segmentIndex"`
	StartIndex      int    `json:"startIndex"`
	EndIndex        int    `json:"endIndex"`
	SectionTitle    string `json:"sectionTitle,omitempty"`
	Level           int    `json:"level"`
	EstimatedTokens int    `json:"estimatedTokens"`

	// Text is the raw span content. It is carried through the pipeline
	// but never persisted.
	Text string `json:"-"`
}

// Summary is one stored summary record. Within a (SourceID, Kind) scope
// at most one row is current, and that row carries the highest version.
type Summary struct {
	ID              string      `json:"id"`
	SourceID        string      `json:"sourceId"`
	Kind            SummaryKind `json:"summaryType"`
	Title           string      `json:"title"`
	Content         string      `json:"content"`
	WordCount       int         `json:"wordCount"`
	Version         int         `json:"version"`
	IsCurrent       bool        `json:"isCurrent"`
	ParentVersionID string      `json:"parentVersionId,omitempty"`

	Model        string `json:"model,omitempty"`
	DurationMS   int64  `json:"durationMs,omitempty"`
	InputTokens  int    `json:"inputTokens,omitempty"`
	OutputTokens int    `json:"outputTokens,omitempty"`

	QualityScore *float64 `json:"qualityScore,omitempty"`
	UserRating   *int     `json:"userRating,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateSummaryInput is what the pipeline and the aggregator hand to the
// store. Version, currency and word count are assigned on insert.
type CreateSummaryInput struct {
	SourceID        string
	Kind            SummaryKind
	Title           string
	Content         string
	ParentVersionID string

	Model        string
	Duration     time.Duration
	InputTokens  int
	OutputTokens int
}

// SummaryCollection is a named grouping of source documents.
type SummaryCollection struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CollectionSource is one membership row. Membership is unique per
// (collection, source). Weight is stored and returned but not consumed
// by the aggregation prompt; only ordering hints are.
type CollectionSource struct {
	CollectionID string  `json:"collectionId"`
	SourceID     string  `json:"sourceId"`
	Sequence     int     `json:"sequence"`
	Weight       float64 `json:"weight"`
}

// Concept is a named idea extracted from a summary. Normalized is the
// case-folded, pluralization-collapsed form used only for duplicate
// matching. Importance is in [0,1].
type Concept struct {
	ID         string  `json:"id"`
	SummaryID  string  `json:"summaryId"`
	Name       string  `json:"name"`
	Normalized string  `json:"normalized"`
	Importance float64 `json:"importance"`
}

// Theme is one cross-source common theme from aggregation.
type Theme struct {
	Theme       string  `json:"theme"`
	Description string  `json:"description"`
	SourceCount int     `json:"sourceCount"`
	Importance  float64 `json:"importance"`
}

// Insight is one source-specific unique insight from aggregation.
// SourceIndex refers to the position in the aggregation input list;
// SourceID is resolved from it.
type Insight struct {
	SourceID     string `json:"sourceId"`
	SourceIndex  int    `json:"sourceIndex"`
	Insight      string `json:"insight"`
	Significance string `json:"significance"`
}

// AggregationResult is the cross-source artifact: the synthesized
// summary plus theme/insight enrichments (possibly empty).
type AggregationResult struct {
	Summary        Summary   `json:"summary"`
	CommonThemes   []Theme   `json:"commonThemes"`
	UniqueInsights []Insight `json:"uniqueInsights"`
}

// WordCount counts whitespace-delimited words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
