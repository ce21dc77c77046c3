package workflow

import (
	"encoding/json"
	"reflect"
	"slices"

	"github.com/rmax-ai/wayfinder/pkg/entity"
	"github.com/rmax-ai/wayfinder/pkg/graph"
)

// State is an immutable navigation state: a drill-down stack of entity frames
// plus per-panel search, sort and paging. Every mutator returns a new State
// and leaves the receiver untouched, so a State may be shared freely.
type State struct {
	useCase entity.UseCase
	stack   []entity.Entity
	search  Panels[Search]
	sort    Panels[Sort]
	paging  Panels[int]
}

// Option configures the auxiliary panel state of New.
type Option func(*State)

// WithSearch sets the search filters of both panels.
func WithSearch(p Panels[Search]) Option {
	return func(s *State) { s.search = p }
}

// WithSort sets the sort options of both panels.
func WithSort(p Panels[Sort]) Option {
	return func(s *State) { s.sort = p }
}

// WithPaging sets the page offsets of both panels.
func WithPaging(p Panels[int]) Option {
	return func(s *State) { s.paging = p }
}

// New builds a state for useCase over a copy of stack.
func New(useCase entity.UseCase, stack []entity.Entity, opts ...Option) State {
	s := State{useCase: useCase}
	for _, opt := range opts {
		opt(&s)
	}
	s.stack = slices.Clone(stack)
	s.search, s.sort, s.paging = clonePanels(s.search, s.sort, s.paging)
	return s
}

// with returns a copy of s carrying stack.
func (s State) with(stack []entity.Entity) State {
	search, sort, paging := clonePanels(s.search, s.sort, s.paging)
	return State{useCase: s.useCase, stack: stack, search: search, sort: sort, paging: paging}
}

func (s State) cloneStack() []entity.Entity {
	return slices.Clone(s.stack)
}

// UseCase returns the use case the state navigates in.
func (s State) UseCase() entity.UseCase { return s.useCase }

// Stack returns a copy of the navigation stack, base first.
func (s State) Stack() []entity.Entity { return s.cloneStack() }

// Len returns the stack depth.
func (s State) Len() int { return len(s.stack) }

// Search returns a copy of both panels' search filters.
func (s State) Search() Panels[Search] {
	search, _, _ := clonePanels(s.search, s.sort, s.paging)
	return search
}

// Sort returns a copy of both panels' sort options.
func (s State) Sort() Panels[Sort] {
	_, sort, _ := clonePanels(s.search, s.sort, s.paging)
	return sort
}

// Paging returns both panels' page offsets.
func (s State) Paging() Panels[int] { return s.paging }

// Graph returns the relationship graph of the state's use case, if any.
func (s State) Graph() (*graph.Graph, bool) {
	return graph.ForUseCase(s.useCase)
}

// Clear empties the stack. It is the only way to reach a zero-length stack.
func (s State) Clear() State {
	return New(s.useCase, nil)
}

// Reset starts over in useCase from a single frame. An empty useCase keeps
// the current one.
func (s State) Reset(useCase entity.UseCase, t entity.Type, id string, opts ...Option) State {
	if useCase == "" {
		useCase = s.useCase
	}
	return New(useCase, []entity.Entity{{Type: t, ID: id}}, opts...)
}

// ResetPage replaces the stack with a single frame and clears search, sort
// and paging.
func (s State) ResetPage(t entity.Type, id string) State {
	return New(s.useCase, []entity.Entity{{Type: t, ID: id}})
}

// Base truncates the stack to its first frame. Side-panel parameters go with
// the frames they belonged to.
func (s State) Base() State {
	if len(s.stack) == 0 {
		return s
	}
	next := s.with(s.stack[:1:1])
	next.dropSidePanelParams()
	return next
}

// Pop removes the current frame. A single-frame stack is left as is.
func (s State) Pop() State {
	if len(s.stack) <= 1 {
		return s
	}
	return s.with(s.cloneStack()[:len(s.stack)-1])
}

// PushList opens the list view of t. A list on top of the stack is replaced
// rather than stacked, which models switching tabs.
func (s State) PushList(t entity.Type) State {
	stack := s.cloneStack()
	if n := len(stack); n > 0 && stack[n-1].IsList() {
		stack = stack[:n-1]
	}
	stack = append(stack, entity.List(t))
	return s.trimmed(stack)
}

// PushListItem selects row id in the current list. If the top frame is
// already an entity, the selection is replaced.
func (s State) PushListItem(id string) State {
	n := len(s.stack)
	if n == 0 {
		return s
	}
	stack := s.cloneStack()
	top := stack[n-1]
	if top.IsList() {
		stack = append(stack, entity.Single(top.Type, id))
	} else {
		stack[n-1] = entity.Single(top.Type, id)
	}
	return s.with(stack)
}

// PushRelatedEntity jumps from the current entity to a related instance.
// From a list there is no current entity, so the state is returned unchanged.
func (s State) PushRelatedEntity(t entity.Type, id string) State {
	n := len(s.stack)
	if n > 0 && s.stack[n-1].IsList() {
		return s
	}
	stack := append(s.cloneStack(), entity.Single(t, id))
	return s.trimmed(stack)
}

// trimmed keeps stack when it is valid and skims it otherwise. Paging of
// the panel that shows the result is reset when skimming dropped frames.
func (s State) trimmed(stack []entity.Entity) State {
	if s.validStack(stack) {
		return s.with(stack)
	}
	skimmed := Skim(stack)
	next := s.with(skimmed)
	if len(skimmed) != len(stack) {
		if next.SidePanelActive() {
			next.paging.SidePanel = 0
		} else {
			next.paging.Page = 0
		}
	}
	return next
}

func (s State) validStack(stack []entity.Entity) bool {
	g, _ := s.Graph()
	return ValidStack(g, stack)
}

// IsStackValid reports whether the current stack satisfies the relationship
// ordering rules of the use case.
func (s State) IsStackValid() bool {
	return s.validStack(s.stack)
}

// RemoveSidePanelParams closes the side panel: the stack is cut back to the
// page stack and side-panel search, sort and paging are dropped.
func (s State) RemoveSidePanelParams() State {
	next := s.with(s.PageStack())
	next.dropSidePanelParams()
	return next
}

func (s *State) dropSidePanelParams() {
	s.search.SidePanel = nil
	s.sort.SidePanel = nil
	s.paging.SidePanel = 0
}

// SkimmedStack returns the canonical shareable form of the state: the stack
// is skimmed regardless of validity and the side panel's search, sort and
// paging are promoted to the page.
func (s State) SkimmedStack() State {
	search, sort, paging := clonePanels(s.search, s.sort, s.paging)
	return State{
		useCase: s.useCase,
		stack:   Skim(s.stack),
		search:  Panels[Search]{Page: search.SidePanel},
		sort:    Panels[Sort]{Page: sort.SidePanel},
		paging:  Panels[int]{Page: paging.SidePanel},
	}
}

// SetSearch sets the search filter of the active panel.
func (s State) SetSearch(search Search) State {
	next := s.with(s.stack)
	if next.SidePanelActive() {
		next.search.SidePanel = search.Clone()
	} else {
		next.search.Page = search.Clone()
	}
	return next
}

// ClearSearch clears the search filter of the active panel.
func (s State) ClearSearch() State {
	return s.SetSearch(nil)
}

// SetSort sets the sort options of the active panel.
func (s State) SetSort(sort Sort) State {
	next := s.with(s.stack)
	if next.SidePanelActive() {
		next.sort.SidePanel = slices.Clone(sort)
	} else {
		next.sort.Page = slices.Clone(sort)
	}
	return next
}

// ClearSort clears the sort options of the active panel.
func (s State) ClearSort() State {
	return s.SetSort(nil)
}

// SetPage sets the page offset of the active panel.
func (s State) SetPage(page int) State {
	next := s.with(s.stack)
	if next.SidePanelActive() {
		next.paging.SidePanel = page
	} else {
		next.paging.Page = page
	}
	return next
}

// ClearPage resets the page offset of the active panel.
func (s State) ClearPage() State {
	return s.SetPage(0)
}

// Equal reports whether two states have the same use case, stack, search,
// sort and paging. Nil and empty collections compare equal.
func (s State) Equal(o State) bool {
	a, b := s.normalized(), o.normalized()
	return reflect.DeepEqual(a, b)
}

func (s State) normalized() stateJSON {
	w := s.wire()
	if len(w.StateStack) == 0 {
		w.StateStack = nil
	}
	for _, p := range []*Search{&w.Search.Page, &w.Search.SidePanel} {
		if len(*p) == 0 {
			*p = nil
		}
	}
	for _, p := range []*Sort{&w.Sort.Page, &w.Sort.SidePanel} {
		if len(*p) == 0 {
			*p = nil
		}
	}
	return w
}

type stateJSON struct {
	UseCase    entity.UseCase  `json:"use_case"`
	StateStack []entity.Entity `json:"state_stack"`
	Search     Panels[Search]  `json:"search"`
	Sort       Panels[Sort]    `json:"sort"`
	Paging     Panels[int]     `json:"paging"`
}

func (s State) wire() stateJSON {
	search, sort, paging := clonePanels(s.search, s.sort, s.paging)
	return stateJSON{
		UseCase:    s.useCase,
		StateStack: s.cloneStack(),
		Search:     search,
		Sort:       sort,
		Paging:     paging,
	}
}

// MarshalJSON implements json.Marshaler.
func (s State) MarshalJSON() ([]byte, error) {
	w := s.wire()
	if w.StateStack == nil {
		w.StateStack = []entity.Entity{}
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *State) UnmarshalJSON(data []byte) error {
	var w stateJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = New(w.UseCase, w.StateStack, WithSearch(w.Search), WithSort(w.Sort), WithPaging(w.Paging))
	return nil
}
