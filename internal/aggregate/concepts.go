package aggregate

import (
	"sort"
	"strings"

	"condense/internal/types"
)

// abbreviations maps short forms to their expansions, applied after
// case folding and pluralization collapse.
var abbreviations = map[string]string{
	"ai":  "artificial intelligence",
	"ml":  "machine learning",
	"api": "application programming interface",
}

var quoteReplacer = strings.NewReplacer(
	"“", `"`, "”", `"`, "„", `"`,
	"‘", "'", "’", "'",
)

// NormalizeConcept folds a concept name into the canonical form used for
// duplicate matching: lower-cased, whitespace collapsed, quotes unified,
// naive pluralization collapsed ("ies" -> "y", single trailing "s"
// stripped) and known abbreviations expanded. Deterministic and pure.
func NormalizeConcept(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = quoteReplacer.Replace(s)
	s = strings.Join(strings.Fields(s), " ")

	switch {
	case len(s) > 4 && strings.HasSuffix(s, "ies"):
		s = s[:len(s)-3] + "y"
	case len(s) > 3 && strings.HasSuffix(s, "s") && !strings.HasSuffix(s, "ss"):
		s = s[:len(s)-1]
	}

	if full, ok := abbreviations[s]; ok {
		return full
	}
	return s
}

// ConceptGroup is one set of concepts sharing a normalized form across
// at least two distinct summaries.
type ConceptGroup struct {
	Normalized string
	Concepts   []types.Concept
	SummaryIDs []string
}

// FindDuplicateConcepts groups concepts by normalized form and returns
// only the groups referenced by more than one summary. Groups are
// ordered by normalized form; SummaryIDs are distinct and sorted.
func FindDuplicateConcepts(concepts []types.Concept) []ConceptGroup {
	byNorm := map[string][]types.Concept{}
	for _, c := range concepts {
		norm := c.Normalized
		if norm == "" {
			norm = NormalizeConcept(c.Name)
		}
		byNorm[norm] = append(byNorm[norm], c)
	}

	var out []ConceptGroup
	for norm, group := range byNorm {
		ids := map[string]bool{}
		for _, c := range group {
			ids[c.SummaryID] = true
		}
		if len(ids) < 2 {
			continue
		}
		distinct := make([]string, 0, len(ids))
		for id := range ids {
			distinct = append(distinct, id)
		}
		sort.Strings(distinct)
		out = append(out, ConceptGroup{Normalized: norm, Concepts: group, SummaryIDs: distinct})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Normalized < out[j].Normalized })
	return out
}
