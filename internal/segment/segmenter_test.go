package segment

import (
	"fmt"
	"strings"
	"testing"

	"condense/internal/token"
	"condense/internal/types"
)

// words returns n space-separated filler words ending with a period so
// paragraphs look like prose.
func words(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("lorem")
	}
	b.WriteByte('.')
	return b.String()
}

// paragraphs builds count paragraphs of wordsEach words separated by
// blank lines.
func paragraphs(count, wordsEach int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = words(wordsEach)
	}
	return strings.Join(parts, "\n\n")
}

func checkContiguous(t *testing.T, segs []types.DocumentSegment, textLen int) {
	t.Helper()
	if segs[0].StartIndex != 0 {
		t.Fatalf("first segment starts at %d, want 0", segs[0].StartIndex)
	}
	if segs[len(segs)-1].EndIndex != textLen {
		t.Fatalf("last segment ends at %d, want %d", segs[len(segs)-1].EndIndex, textLen)
	}
	for i := range segs {
		if segs[i].SegmentIndex != i {
			t.Fatalf("segment %d has index %d", i, segs[i].SegmentIndex)
		}
		if segs[i].EndIndex <= segs[i].StartIndex {
			t.Fatalf("segment %d is empty or inverted: [%d,%d)", i, segs[i].StartIndex, segs[i].EndIndex)
		}
		if i > 0 && segs[i].StartIndex != segs[i-1].EndIndex {
			t.Fatalf("gap between segment %d and %d: %d != %d",
				i-1, i, segs[i-1].EndIndex, segs[i].StartIndex)
		}
	}
}

func TestSplitEmpty(t *testing.T) {
	if segs := Split("", DefaultOptions()); segs != nil {
		t.Fatalf("empty input: got %d segments", len(segs))
	}
	if segs := Split("  \n\t \n ", DefaultOptions()); segs != nil {
		t.Fatalf("whitespace input: got %d segments", len(segs))
	}
}

func TestSplitWholeDocumentPassthrough(t *testing.T) {
	// Three markdown sections of ~200 tokens each against a 5000 token
	// budget: a single segment spanning the whole document.
	var b strings.Builder
	for i := 1; i <= 3; i++ {
		fmt.Fprintf(&b, "## Section %d\n\n%s\n\n", i, words(150))
	}
	text := b.String()

	opts := DefaultOptions()
	opts.MaxTokensPerSegment = 5000
	segs := Split(text, opts)
	if len(segs) != 1 {
		t.Fatalf("got %d segments, want 1", len(segs))
	}
	seg := segs[0]
	if seg.StartIndex != 0 || seg.EndIndex != len(text) {
		t.Fatalf("segment span [%d,%d), want [0,%d)", seg.StartIndex, seg.EndIndex, len(text))
	}
	if seg.SectionTitle != "Section 1" || seg.Level != 2 {
		t.Fatalf("title/level from first boundary: got (%q, %d)", seg.SectionTitle, seg.Level)
	}
	if seg.Text != text {
		t.Fatal("segment text must be the whole document")
	}
}

func TestSplitOversizedSectionsSplitByParagraph(t *testing.T) {
	// Three sections of ~6000 tokens against a 5000 budget: every
	// section exceeds the budget on its own, so each is paragraph-split
	// and all sub-segments carry the parent section title.
	var b strings.Builder
	for i := 1; i <= 3; i++ {
		fmt.Fprintf(&b, "## Topic %d\n\n%s\n\n", i, paragraphs(23, 200))
	}
	text := b.String()

	opts := DefaultOptions()
	opts.MaxTokensPerSegment = 5000
	segs := Split(text, opts)
	if len(segs) < 3 {
		t.Fatalf("got %d segments, want at least 3", len(segs))
	}
	checkContiguous(t, segs, len(text))

	titles := map[string]bool{}
	for _, seg := range segs {
		if seg.SectionTitle == "" {
			t.Fatalf("segment %d lost its parent section title", seg.SegmentIndex)
		}
		if seg.Level != 2 {
			t.Fatalf("segment %d level: got %d, want 2", seg.SegmentIndex, seg.Level)
		}
		titles[seg.SectionTitle] = true
	}
	for i := 1; i <= 3; i++ {
		if !titles[fmt.Sprintf("Topic %d", i)] {
			t.Fatalf("no segment tagged with Topic %d", i)
		}
	}
}

func TestSplitAccumulatesSmallSections(t *testing.T) {
	// Sections of ~260 tokens, budget 600: roughly two sections per
	// segment, edges on section boundaries.
	var b strings.Builder
	for i := 1; i <= 6; i++ {
		fmt.Fprintf(&b, "## Part %d\n\n%s\n\n", i, words(200))
	}
	text := b.String()

	opts := DefaultOptions()
	opts.MaxTokensPerSegment = 600
	segs := Split(text, opts)
	if len(segs) < 2 {
		t.Fatalf("got %d segments, want several", len(segs))
	}
	checkContiguous(t, segs, len(text))
	for _, seg := range segs {
		if seg.EstimatedTokens > opts.MaxTokensPerSegment {
			t.Fatalf("segment %d over budget: %d > %d",
				seg.SegmentIndex, seg.EstimatedTokens, opts.MaxTokensPerSegment)
		}
		// A merged run of sections keeps the first section's title.
		if !strings.HasPrefix(seg.SectionTitle, "Part ") {
			t.Fatalf("segment %d title: %q", seg.SegmentIndex, seg.SectionTitle)
		}
		if !strings.HasPrefix(seg.Text, "## "+seg.SectionTitle) {
			t.Fatalf("segment %d does not start at its section boundary", seg.SegmentIndex)
		}
	}
}

func TestSplitNoBoundariesPacksParagraphs(t *testing.T) {
	text := paragraphs(40, 120)
	opts := DefaultOptions()
	opts.MaxTokensPerSegment = 500
	segs := Split(text, opts)
	if len(segs) < 2 {
		t.Fatalf("got %d segments, want several", len(segs))
	}
	checkContiguous(t, segs, len(text))
	charBudget := token.ToChars(opts.MaxTokensPerSegment)
	for _, seg := range segs {
		if len(seg.Text) > charBudget {
			t.Fatalf("segment %d exceeds char budget: %d > %d",
				seg.SegmentIndex, len(seg.Text), charBudget)
		}
		if seg.SectionTitle != "" {
			t.Fatalf("untitled document produced titled segment %q", seg.SectionTitle)
		}
	}
	// Paragraph edges only: every segment after the first starts at a
	// block start, i.e. right after a blank line.
	for _, seg := range segs[1:] {
		before := text[:seg.StartIndex]
		if !strings.HasSuffix(before, "\n\n") && !strings.HasSuffix(before, "\n") {
			t.Fatalf("segment %d does not start on a paragraph edge", seg.SegmentIndex)
		}
	}
}

func TestSplitOversizedParagraphKeptWhole(t *testing.T) {
	// One atomic paragraph far over budget must be emitted as-is, never
	// split mid-paragraph or dropped.
	big := words(3000)
	text := paragraphs(2, 50) + "\n\n" + big + "\n\n" + paragraphs(2, 50)
	opts := DefaultOptions()
	opts.MaxTokensPerSegment = 400
	segs := Split(text, opts)
	checkContiguous(t, segs, len(text))

	found := false
	for _, seg := range segs {
		if strings.Contains(seg.Text, big) {
			found = true
			if seg.EstimatedTokens <= opts.MaxTokensPerSegment {
				t.Fatal("oversized paragraph should report an over-budget estimate")
			}
		}
	}
	if !found {
		t.Fatal("oversized paragraph was split or dropped")
	}
}

func TestSplitRespectBoundariesDisabled(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 4; i++ {
		fmt.Fprintf(&b, "## Heading %d\n\n%s\n\n", i, paragraphs(5, 150))
	}
	text := b.String()

	opts := DefaultOptions()
	opts.MaxTokensPerSegment = 700
	opts.RespectBoundaries = false
	segs := Split(text, opts)
	if len(segs) < 2 {
		t.Fatalf("got %d segments, want several", len(segs))
	}
	checkContiguous(t, segs, len(text))
}
