package aggregate

import (
	"condense/internal/jsonx"
	"condense/internal/types"
)

// Repair-or-degrade parsing of the structured enrichment responses:
// accept a bare JSON array or a {"themes": [...]} / {"insights": [...]}
// wrapper, tolerate fences and surrounding prose, and never fail:
// ok=false means the caller degrades to an empty result.

func parseThemes(text string) ([]types.Theme, bool) {
	raw, ok := jsonx.Extract(text)
	if !ok {
		return nil, false
	}
	var direct []types.Theme
	if err := jsonx.UnmarshalFlex(raw, &direct); err == nil {
		return direct, true
	}
	var wrapped struct {
		Themes []types.Theme `json:"themes"`
	}
	if err := jsonx.UnmarshalFlex(raw, &wrapped); err == nil && wrapped.Themes != nil {
		return wrapped.Themes, true
	}
	return nil, false
}

func parseInsights(text string) ([]types.Insight, bool) {
	raw, ok := jsonx.Extract(text)
	if !ok {
		return nil, false
	}
	var direct []types.Insight
	if err := jsonx.UnmarshalFlex(raw, &direct); err == nil {
		return direct, true
	}
	var wrapped struct {
		Insights []types.Insight `json:"insights"`
	}
	if err := jsonx.UnmarshalFlex(raw, &wrapped); err == nil && wrapped.Insights != nil {
		return wrapped.Insights, true
	}
	return nil, false
}
