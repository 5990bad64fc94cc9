package summarize

import (
	"fmt"
	"strings"
)

// One fixed system instruction per generation step.
const (
	segmentSystemPrompt = `You are an expert reader summarizing one part of a longer document.
Produce a comprehensive extraction of this segment: capture every substantive claim,
argument, definition, number and conclusion it contains, in the order they appear.
Do not add outside knowledge, do not editorialize, and do not mention that this is
a segment or a summary. Write plain prose.`

	keyPointsSystemPrompt = `You are synthesizing the key points of a document from the
summaries of its parts. Produce 10-15 key points covering the whole document.
Merge overlapping points into one; never repeat the same point twice. Order points
from most to least central. Output one point per line, each starting with "- ".`

	executiveSystemPrompt = `You are writing an executive summary of a document from its
key points. Lead with the single most important conclusion, then support it.
Write 150-250 words of flowing prose for a reader who will read nothing else.
No headings, no bullet points.`

	detailedSystemPrompt = `You are writing a detailed summary of a document from the
summaries of its parts. Produce a structured summary of 500-1000 words with a short
heading per section, following the document's own structure. Preserve important
details, numbers and caveats; compress repetition ruthlessly.`
)

func buildSegmentPrompt(docTitle string, sectionTitle string, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document: %s\n", docTitle)
	if sectionTitle != "" {
		fmt.Fprintf(&b, "Section: %s\n", sectionTitle)
	}
	b.WriteString("\n")
	b.WriteString(text)
	return b.String()
}

// buildSynthesisPrompt lists all segment summaries in document order.
// Used by both the key_points and the detailed step.
func buildSynthesisPrompt(docTitle string, segmentSummaries []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document: %s\n", docTitle)
	fmt.Fprintf(&b, "Part summaries, in document order (%d parts):\n\n", len(segmentSummaries))
	for i, s := range segmentSummaries {
		fmt.Fprintf(&b, "[Part %d]\n%s\n\n", i+1, s)
	}
	return b.String()
}

func buildExecutivePrompt(docTitle string, keyPoints string) string {
	return fmt.Sprintf("Document: %s\nKey points:\n\n%s", docTitle, keyPoints)
}
