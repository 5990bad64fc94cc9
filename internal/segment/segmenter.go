// Package segment splits a document into an ordered, contiguous list of
// token-budgeted segments, preferring to align segment edges with the
// structural boundaries found by the structure package.
package segment

import (
	"strings"

	"condense/internal/structure"
	"condense/internal/token"
	"condense/internal/types"
)

// DefaultMaxTokens is the whole-document passthrough threshold: anything
// estimated at or under this stays a single segment.
const DefaultMaxTokens = 15000

// Options controls splitting. OverlapTokens is accepted and carried for
// callers but the splitter itself does not apply overlap.
type Options struct {
	MaxTokensPerSegment int
	RespectBoundaries   bool
	OverlapTokens       int
}

func DefaultOptions() Options {
	return Options{
		MaxTokensPerSegment: DefaultMaxTokens,
		RespectBoundaries:   true,
		OverlapTokens:       100,
	}
}

// Split segments text. Guarantees, for any non-empty input: segments are
// emitted in order, contiguous (each segment ends where the next one
// starts, the first starts at 0, the last ends at len(text)), and each
// stays within the token budget unless a single atomic paragraph alone
// exceeds it. Empty or whitespace-only input yields nil.
func Split(text string, opts Options) []types.DocumentSegment {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if opts.MaxTokensPerSegment <= 0 {
		opts.MaxTokensPerSegment = DefaultMaxTokens
	}

	layout := structure.Detect(text)

	if total := token.Estimate(text); total <= opts.MaxTokensPerSegment {
		seg := types.DocumentSegment{
			StartIndex:      0,
			EndIndex:        len(text),
			EstimatedTokens: total,
			Text:            text,
		}
		if h, ok := layout.FirstHeading(); ok {
			seg.SectionTitle = h.Title
			seg.Level = h.Level
		}
		return index([]types.DocumentSegment{seg})
	}

	var segs []types.DocumentSegment
	if opts.RespectBoundaries && len(layout.Boundaries) > 1 {
		segs = splitByBoundaries(text, layout, opts.MaxTokensPerSegment)
	} else {
		segs = splitByParagraphs(text, 0, len(text), opts.MaxTokensPerSegment, "", 0)
	}
	return index(segs)
}

// section is the span between two consecutive boundaries.
type section struct {
	start, end int
	title      string
	level      int
}

func sectionsOf(text string, layout structure.Layout) []section {
	bounds := layout.Boundaries
	secs := make([]section, 0, len(bounds))
	for i, b := range bounds {
		end := len(text)
		if i+1 < len(bounds) {
			end = bounds[i+1].Offset
		}
		if end <= b.Offset {
			continue
		}
		secs = append(secs, section{start: b.Offset, end: end, title: b.Title, level: b.Level})
	}
	return secs
}

// splitByBoundaries walks sections in order, accumulating consecutive
// sections into a pending buffer. A section that alone exceeds the
// budget flushes the buffer and is size-split by paragraph, its
// sub-segments tagged with the section's title and level. A section
// that would overflow the buffer flushes it and starts a new one.
func splitByBoundaries(text string, layout structure.Layout, budget int) []types.DocumentSegment {
	var out []types.DocumentSegment

	type pending struct {
		start, end int
		title      string
		level      int
		tokens     int
	}
	var buf *pending
	flush := func() {
		if buf == nil {
			return
		}
		out = append(out, makeSegment(text, buf.start, buf.end, buf.title, buf.level))
		buf = nil
	}

	for _, sec := range sectionsOf(text, layout) {
		secTokens := token.Estimate(text[sec.start:sec.end])
		switch {
		case secTokens > budget:
			flush()
			sub := splitByParagraphs(text, sec.start, sec.end, budget, sec.title, sec.level)
			out = append(out, sub...)
		case buf == nil:
			buf = &pending{start: sec.start, end: sec.end, title: sec.title, level: sec.level, tokens: secTokens}
		case buf.tokens+secTokens > budget:
			flush()
			buf = &pending{start: sec.start, end: sec.end, title: sec.title, level: sec.level, tokens: secTokens}
		default:
			buf.end = sec.end
			buf.tokens += secTokens
		}
	}
	flush()
	return out
}

// splitByParagraphs greedily packs blank-line-delimited blocks of
// text[start:end] into segments within the character budget derived from
// the token budget. It never splits inside a block; a block that alone
// exceeds the budget becomes its own (oversized) segment. The produced
// sub-segments inherit title and level from the enclosing section.
func splitByParagraphs(text string, start, end, budget int, title string, level int) []types.DocumentSegment {
	charBudget := token.ToChars(budget)

	starts := paragraphStarts(text, start, end)
	if len(starts) == 0 {
		return []types.DocumentSegment{makeSegment(text, start, end, title, level)}
	}
	// Anchor the first block at the region start so coverage is exact.
	starts[0] = start

	var out []types.DocumentSegment
	curStart := start
	curLen := 0
	for i, s := range starts {
		blockEnd := end
		if i+1 < len(starts) {
			blockEnd = starts[i+1]
		}
		blockLen := blockEnd - s
		if curLen > 0 && curLen+blockLen > charBudget {
			out = append(out, makeSegment(text, curStart, s, title, level))
			curStart = s
			curLen = 0
		}
		curLen += blockLen
	}
	out = append(out, makeSegment(text, curStart, end, title, level))
	return out
}

// paragraphStarts returns the offsets of blank-line-delimited block
// starts within text[start:end].
func paragraphStarts(text string, start, end int) []int {
	var starts []int
	offset := start
	prevBlank := true
	for _, line := range strings.Split(text[start:end], "\n") {
		if strings.TrimSpace(line) == "" {
			prevBlank = true
		} else {
			if prevBlank {
				starts = append(starts, offset)
			}
			prevBlank = false
		}
		offset += len(line) + 1
	}
	return starts
}

func makeSegment(text string, start, end int, title string, level int) types.DocumentSegment {
	span := text[start:end]
	return types.DocumentSegment{
		StartIndex:      start,
		EndIndex:        end,
		SectionTitle:    title,
		Level:           level,
		EstimatedTokens: token.Estimate(span),
		Text:            span,
	}
}

// index assigns dense segment indexes in emission order.
func index(segs []types.DocumentSegment) []types.DocumentSegment {
	for i := range segs {
		segs[i].SegmentIndex = i
	}
	return segs
}
