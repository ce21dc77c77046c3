package workflow

import (
	"maps"
	"slices"
)

// Panels holds one value per panel. The page panel backs the main list or
// entity view; the side panel backs the drill-down layered on top of it.
type Panels[T any] struct {
	Page      T `json:"page"`
	SidePanel T `json:"side_panel"`
}

// Search is a panel's search filter. A key may carry several values.
type Search map[string][]string

// Clone returns a deep copy of s.
func (s Search) Clone() Search {
	if s == nil {
		return nil
	}
	out := make(Search, len(s))
	for k, v := range s {
		out[k] = slices.Clone(v)
	}
	return out
}

// Keys returns the search keys in lexical order.
func (s Search) Keys() []string {
	return slices.Sorted(maps.Keys(s))
}

// SortOption orders a table by one column.
type SortOption struct {
	ID   string `json:"id"`
	Desc bool   `json:"desc"`
}

// Sort is a panel's ordered list of sort options.
type Sort []SortOption

func clonePanels(search Panels[Search], sort Panels[Sort], paging Panels[int]) (Panels[Search], Panels[Sort], Panels[int]) {
	return Panels[Search]{Page: search.Page.Clone(), SidePanel: search.SidePanel.Clone()},
		Panels[Sort]{Page: slices.Clone(sort.Page), SidePanel: slices.Clone(sort.SidePanel)},
		paging
}
