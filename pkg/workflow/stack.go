package workflow

import (
	"slices"

	"github.com/rmax-ai/wayfinder/pkg/entity"
	"github.com/rmax-ai/wayfinder/pkg/graph"
)

// ValidStack reports whether stack is a valid drill-down path in g.
//
// A stack is invalid when a type occurs twice as a list frame or twice as an
// entity frame. Once more than two distinct types take part, every adjacent
// pair of differing types (prev, cur) must also respect the graph: cur may
// not be a parent of prev; if prev contains cur the pair is fine; otherwise
// cur may not be an extended match of prev, and mutual pure matches are only
// allowed as the final pair.
//
// A nil graph only applies the duplicate rule.
func ValidStack(g *graph.Graph, stack []entity.Entity) bool {
	lists := map[entity.Type]bool{}
	singles := map[entity.Type]bool{}
	distinct := map[entity.Type]bool{}
	for _, f := range stack {
		seen := singles
		if f.IsList() {
			seen = lists
		}
		if seen[f.Type] {
			return false
		}
		seen[f.Type] = true
		distinct[f.Type] = true
	}

	if g == nil || len(distinct) <= 2 {
		return true
	}

	last := len(stack) - 1
	for i := 1; i < len(stack); i++ {
		prev, cur := stack[i-1].Type, stack[i].Type
		if prev == cur {
			continue
		}
		if g.IsParent(prev, cur) {
			return false
		}
		if g.IsContained(prev, cur) {
			continue
		}
		if g.IsExtendedMatch(prev, cur) {
			return false
		}
		if i != last && g.IsPureMatch(prev, cur) && g.IsPureMatch(cur, prev) {
			return false
		}
	}
	return true
}

// Skim shortens stack to its canonical tail: the current entity alone, or
// the preceding frame plus the current list. Stacks shorter than two frames
// are returned as is.
func Skim(stack []entity.Entity) []entity.Entity {
	n := len(stack)
	if n < 2 {
		return slices.Clone(stack)
	}
	if !stack[n-1].IsList() {
		return []entity.Entity{stack[n-1]}
	}
	return slices.Clone(stack[n-2:])
}

// PageStack returns the frames shown by the page itself. The remainder of
// the stack belongs to the side panel.
//
// A single list, or a list whose next frame selects a row, owns just its
// first frame; an entity followed by a tab list owns both.
func (s State) PageStack() []entity.Entity {
	if len(s.stack) < 2 {
		return s.cloneStack()
	}
	if s.stack[0].IsList() || !s.stack[1].IsList() {
		return []entity.Entity{s.stack[0]}
	}
	return slices.Clone(s.stack[:2])
}

// SidePanelActive reports whether frames beyond the page stack exist.
func (s State) SidePanelActive() bool {
	return len(s.PageStack()) < len(s.stack)
}

// CurrentEntity returns the top frame.
func (s State) CurrentEntity() (entity.Entity, bool) {
	if len(s.stack) == 0 {
		return entity.Entity{}, false
	}
	return s.stack[len(s.stack)-1], true
}

// CurrentEntityType returns the type of the top frame, or "" when empty.
func (s State) CurrentEntityType() entity.Type {
	e, _ := s.CurrentEntity()
	return e.Type
}

// BaseEntity returns the first frame.
func (s State) BaseEntity() (entity.Entity, bool) {
	if len(s.stack) == 0 {
		return entity.Entity{}, false
	}
	return s.stack[0], true
}

// BaseEntityType returns the type of the first frame, or "" when empty.
func (s State) BaseEntityType() entity.Type {
	e, _ := s.BaseEntity()
	return e.Type
}

// SingleAncestorOfType returns the first entity frame of type t.
func (s State) SingleAncestorOfType(t entity.Type) (entity.Entity, bool) {
	for _, f := range s.stack {
		if f.Type == t && !f.IsList() {
			return f, true
		}
	}
	return entity.Entity{}, false
}

// SelectedTableRow returns the frame the side panel opened with: the first
// frame after the page stack. On a list page that is the second frame; on an
// entity page with a tab it is the third.
func (s State) SelectedTableRow() (entity.Entity, bool) {
	page := len(s.PageStack())
	if page >= len(s.stack) {
		return entity.Entity{}, false
	}
	return s.stack[page], true
}

// EntityContext maps every entity frame's type to its id. Later frames win.
func (s State) EntityContext() map[entity.Type]string {
	ctx := make(map[entity.Type]string)
	for _, f := range s.stack {
		if !f.IsList() {
			ctx[f.Type] = f.ID
		}
	}
	return ctx
}

// IsBaseList reports whether the stack is just the list view of t.
func (s State) IsBaseList(t entity.Type) bool {
	return len(s.stack) == 1 && s.stack[0].Type == t && s.stack[0].IsList()
}

// IsPreceding reports whether the frame below the top has type t.
func (s State) IsPreceding(t entity.Type) bool {
	n := len(s.stack)
	return n >= 2 && s.stack[n-2].Type == t
}

// IsPrecedingSingle reports whether the frame below the top is an entity of
// type t.
func (s State) IsPrecedingSingle(t entity.Type) bool {
	n := len(s.stack)
	return n >= 2 && s.stack[n-2].Type == t && !s.stack[n-2].IsList()
}

// IsCurrentSingle reports whether the top frame is an entity of type t.
func (s State) IsCurrentSingle(t entity.Type) bool {
	e, ok := s.CurrentEntity()
	return ok && e.Type == t && !e.IsList()
}
