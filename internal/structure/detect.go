// Package structure scans plain text for heading-like markers and turns
// them into ordered boundary offsets with inferred titles and nesting
// levels. Detection is heuristic and best-effort: a line either matches
// one of a fixed, ordered pattern list or it is body text.
package structure

import (
	"regexp"
	"strings"
)

// Boundary marks the start offset of a structural unit. Level 0 is a
// document part, larger levels nest deeper. Heading is false only for
// the synthetic document-start boundary emitted when the first line is
// not a heading.
type Boundary struct {
	Offset  int
	Title   string
	Level   int
	Heading bool
}

// Layout is the ordered boundary list for one document. Boundaries are
// sorted by offset, offsets are distinct, and the list always starts at
// offset 0.
type Layout struct {
	Boundaries []Boundary
}

// FirstHeading returns the first detected (non-synthetic) boundary.
func (l Layout) FirstHeading() (Boundary, bool) {
	for _, b := range l.Boundaries {
		if b.Heading {
			return b, true
		}
	}
	return Boundary{}, false
}

// headingPattern pairs a line regexp with the level assigned to matches.
// The title is taken from the last capture group; when the group is
// empty the whole trimmed line is used.
type headingPattern struct {
	re    *regexp.Regexp
	level int
}

// Ordered: first match wins for a line. More specific numbering comes
// before the generic numbered-list form so "2.1 Title" is not consumed
// as "2." + "1 Title".
var headingPatterns = []headingPattern{
	{regexp.MustCompile(`^(?i)part\s+(?:[IVXLCDM]+|\d+)\b[\s.:-]*(.*)$`), 0},
	{regexp.MustCompile(`^(?i)chapter\s+(?:\d+|[IVXLCDM]+)\b[\s.:-]*(.*)$`), 1},
	{regexp.MustCompile(`^(?i)section\s+\d+(?:\.\d+)*\b[\s.:-]*(.*)$`), 2},
	{regexp.MustCompile(`^[IVXLCDM]+[.)]\s+(.+)$`), 1},
	{regexp.MustCompile(`^#\s+(.+?)\s*$`), 1},
	{regexp.MustCompile(`^##\s+(.+?)\s*$`), 2},
	{regexp.MustCompile(`^###\s+(.+?)\s*$`), 3},
	{regexp.MustCompile(`^#{4,}\s+(.+?)\s*$`), 4},
	{regexp.MustCompile(`^\d+(?:\.\d+)+[.)]?\s+(.+)$`), 3},
	{regexp.MustCompile(`^\d+[.)]\s+(.+)$`), 2},
}

const (
	allCapsMinLen = 4
	allCapsMaxLen = 100
	allCapsLevel  = 1
)

// Detect scans text line by line and returns the document layout.
// If no line matches any pattern the layout is a single untitled
// top-level boundary at offset 0.
func Detect(text string) Layout {
	var bounds []Boundary
	offset := 0
	for _, line := range strings.Split(text, "\n") {
		if b, ok := matchHeading(line); ok {
			b.Offset = offset
			bounds = append(bounds, b)
		}
		offset += len(line) + 1
	}
	if len(bounds) == 0 || bounds[0].Offset != 0 {
		bounds = append([]Boundary{{Offset: 0}}, bounds...)
	}
	return Layout{Boundaries: bounds}
}

func matchHeading(line string) (Boundary, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Boundary{}, false
	}
	for _, p := range headingPatterns {
		m := p.re.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		title := strings.TrimSpace(m[len(m)-1])
		if title == "" {
			title = trimmed
		}
		return Boundary{Title: title, Level: p.level, Heading: true}, true
	}
	if isAllCapsHeading(trimmed) {
		return Boundary{Title: trimmed, Level: allCapsLevel, Heading: true}, true
	}
	return Boundary{}, false
}

// isAllCapsHeading accepts short lines made of upper-case letters,
// digits and separators, e.g. "INTRODUCTION" or "PART TWO - RESULTS".
func isAllCapsHeading(line string) bool {
	if len(line) < allCapsMinLen || len(line) > allCapsMaxLen {
		return false
	}
	letters := 0
	for _, r := range line {
		switch {
		case r >= 'a' && r <= 'z':
			return false
		case r >= 'A' && r <= 'Z':
			letters++
		}
	}
	return letters >= allCapsMinLen
}
