// Package urlcodec converts navigation states to URLs and back.
//
// The path names the page: a dashboard, a list, or an entity with an
// optional tab. Every frame that does not fit in the path travels in the
// query string together with both panels' search, sort and paging.
package urlcodec

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/rmax-ai/wayfinder/pkg/entity"
	"github.com/rmax-ai/wayfinder/pkg/graph"
	"github.com/rmax-ai/wayfinder/pkg/workflow"
)

var (
	ErrNoUseCase      = errors.New("state has no use case")
	ErrUnknownUseCase = errors.New("use case has no path map")
	ErrNoPathTemplate = errors.New("no path template for page")
	ErrMalformedSort  = errors.New("malformed sort option")
)

// Location is the part of a URL the parser reads.
type Location struct {
	Pathname string `json:"pathname"`
	Search   string `json:"search"`
}

// LocationFromURL splits raw into a Location. Unparseable input yields an
// empty Location.
func LocationFromURL(raw string) Location {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}
	}
	return Location{Pathname: u.EscapedPath(), Search: u.RawQuery}
}

// Match describes which template a pathname matched.
type Match struct {
	UseCase  entity.UseCase    `json:"use_case"`
	PageType PageType          `json:"page_type"`
	Template string            `json:"template"`
	Params   map[string]string `json:"params"`
}

// PageTypeOf classifies a page stack.
func PageTypeOf(pageStack []entity.Entity) PageType {
	switch {
	case len(pageStack) == 0:
		return PageDashboard
	case !pageStack[0].IsList():
		return PageEntity
	default:
		return PageList
	}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }

// Generate renders s with the default registry.
func Generate(s workflow.State) (string, error) { return defaultRegistry.Generate(s) }

// Parse reads a state from loc with the default registry.
func Parse(loc Location) workflow.State { return defaultRegistry.Parse(loc) }

// ParseURL reads a state from a raw URL with the default registry.
func ParseURL(raw string) workflow.State { return defaultRegistry.Parse(LocationFromURL(raw)) }

// Generate renders s as a path plus query string.
func (r *Registry) Generate(s workflow.State) (string, error) {
	uc := s.UseCase()
	if uc == "" {
		return "", ErrNoUseCase
	}
	cm, ok := r.lookup(uc)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownUseCase, uc)
	}

	stack := s.Stack()
	page := s.PageStack()
	pt := PageTypeOf(page)
	tmpl, ok := cm.byPage[pt]
	if !ok {
		return "", fmt.Errorf("%w: %s %s", ErrNoPathTemplate, uc, pt)
	}

	var (
		params map[string]string
		inPath int
		err    error
	)
	if cm.paths.workflow {
		params, inPath, err = workflowParams(uc, pt, page, stack)
	} else {
		params, inPath, err = legacyParams(cm.paths, pt, page)
	}
	if err != nil {
		return "", err
	}
	params[ParamContext] = string(uc)

	path, err := tmpl.expand(params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoPathTemplate, err)
	}
	query, err := encodeQuery(stack[inPath:], s)
	if err != nil {
		return "", err
	}
	if query == "" {
		return path, nil
	}
	return path + "?" + query, nil
}

// workflowParams fills the workflow placeholders. It returns how many stack
// frames the path carries.
func workflowParams(uc entity.UseCase, pt PageType, page, stack []entity.Entity) (map[string]string, int, error) {
	params := map[string]string{}
	inPath := len(page)
	switch pt {
	case PageList:
		name, ok := entity.ListName(page[0].Type)
		if !ok {
			return nil, 0, fmt.Errorf("%w: %s has no list name", ErrNoPathTemplate, page[0].Type)
		}
		params[ParamPageEntityListType] = name
	case PageEntity:
		name, ok := entity.EntityName(page[0].Type)
		if !ok {
			return nil, 0, fmt.Errorf("%w: %s has no entity name", ErrNoPathTemplate, page[0].Type)
		}
		params[ParamPageEntityType] = name
		params[ParamPageEntityID] = unescapeID(page[0].ID)
		if len(page) > 1 {
			tab, ok := entity.ListName(page[1].Type)
			if !ok {
				return nil, 0, fmt.Errorf("%w: %s has no list name", ErrNoPathTemplate, page[1].Type)
			}
			params[ParamEntityType1] = tab
		}
	}

	if uc != entity.ConfigManagement {
		return params, inPath, nil
	}
	return foldConfigManagement(params, page, stack, inPath)
}

// foldConfigManagement moves the selected row, and the frame opened from it,
// from the query string into entityId1, entityType2 and entityId2.
func foldConfigManagement(params map[string]string, page, stack []entity.Entity, inPath int) (map[string]string, int, error) {
	qs := stack[inPath:]
	if len(page) == 0 || len(qs) == 0 {
		return params, inPath, nil
	}
	last := page[len(page)-1]
	if qs[0].IsList() || !last.IsList() || qs[0].Type != last.Type {
		return params, inPath, nil
	}
	params[ParamEntityID1] = unescapeID(qs[0].ID)
	inPath++
	if len(qs) < 2 {
		return params, inPath, nil
	}
	next := qs[1]
	if next.IsList() {
		name, ok := entity.ListName(next.Type)
		if !ok {
			return params, inPath, nil
		}
		params[ParamEntityType2] = name
	} else {
		name, ok := entity.EntityName(next.Type)
		if !ok {
			return params, inPath, nil
		}
		params[ParamEntityType2] = name
		params[ParamEntityID2] = unescapeID(next.ID)
	}
	return params, inPath + 1, nil
}

func legacyParams(m PathMap, pt PageType, page []entity.Entity) (map[string]string, int, error) {
	params := map[string]string{}
	if pt == PageDashboard {
		return params, 0, nil
	}
	frame := page[0]
	if m.TypeParam != "" {
		seg, ok := m.segmentFor(frame.Type)
		if !ok {
			return nil, 0, fmt.Errorf("%w: no segment for %s", ErrNoPathTemplate, frame.Type)
		}
		params[m.TypeParam] = seg
	} else if frame.Type != m.EntityType {
		return nil, 0, fmt.Errorf("%w: %s pages hold %s, not %s", ErrNoPathTemplate, pt, m.EntityType, frame.Type)
	}
	if !frame.IsList() {
		params[m.IDParam] = unescapeID(frame.ID)
	}
	return params, 1, nil
}

// unescapeID decodes an id that arrived percent-encoded so that expansion
// encodes it exactly once.
func unescapeID(id string) string {
	v, err := url.PathUnescape(id)
	if err != nil {
		return id
	}
	return v
}

// Match reports which registered template recognises pathname.
func (r *Registry) Match(pathname string) (Match, bool) {
	parts := decodePath(pathname)
	for _, cm := range r.snapshot() {
		if m, ok := cm.match(parts); ok {
			return m, true
		}
	}
	return Match{}, false
}

// Parse reads a state from loc. It never fails: an unknown path yields an
// empty stack, malformed query fragments are ignored, and the stack ends
// before the first type the use case's graph does not declare.
func (r *Registry) Parse(loc Location) workflow.State {
	q := decodeQuery(loc.Search)

	var (
		uc    entity.UseCase
		stack []entity.Entity
	)
	if m, ok := r.Match(loc.Pathname); ok {
		uc = m.UseCase
		cm, _ := r.lookup(uc)
		stack = cm.pathStack(m)
	}
	stack = append(stack, q.stack...)
	stack = declaredPrefix(uc, stack)

	return workflow.New(uc, stack,
		workflow.WithSearch(q.search),
		workflow.WithSort(q.sort),
		workflow.WithPaging(q.paging),
	)
}

// declaredPrefix cuts the stack at the first frame whose type the use
// case's graph does not declare. Use cases without a graph keep every frame.
func declaredPrefix(uc entity.UseCase, stack []entity.Entity) []entity.Entity {
	g, ok := graph.ForUseCase(uc)
	if !ok {
		return stack
	}
	for i, f := range stack {
		if !g.Has(f.Type) {
			return stack[:i]
		}
	}
	return stack
}

func (cm compiledMap) match(parts []string) (Match, bool) {
	if cm.paths.workflow {
		return cm.matchWorkflow(parts)
	}
	for _, pt := range []PageType{PageEntity, PageList, PageDashboard} {
		tmpl, ok := cm.byPage[pt]
		if !ok {
			continue
		}
		params, ok := tmpl.match(parts)
		if !ok || !cm.contextMatches(tmpl, params) {
			continue
		}
		return Match{UseCase: cm.useCase, PageType: cm.legacyPageType(params), Template: tmpl.String(), Params: params}, true
	}
	return Match{}, false
}

func (cm compiledMap) contextMatches(tmpl pathTemplate, params map[string]string) bool {
	return !tmpl.hasParam(ParamContext) || params[ParamContext] == string(cm.useCase)
}

func (cm compiledMap) legacyPageType(params map[string]string) PageType {
	if params[cm.paths.IDParam] != "" {
		return PageEntity
	}
	if _, ok := cm.legacyType(params); ok {
		return PageList
	}
	return PageDashboard
}

func (cm compiledMap) legacyType(params map[string]string) (entity.Type, bool) {
	if cm.paths.TypeParam == "" {
		return cm.paths.EntityType, true
	}
	t, ok := cm.paths.Segments[params[cm.paths.TypeParam]]
	return t, ok
}

// matchWorkflow tries the dashboard template first, then resolves the
// segment after the context as a list name before an entity name.
func (cm compiledMap) matchWorkflow(parts []string) (Match, bool) {
	try := func(pt PageType, typeParam string, resolve func(string) (entity.Type, bool)) (Match, bool) {
		tmpl, ok := cm.byPage[pt]
		if !ok {
			return Match{}, false
		}
		params, ok := tmpl.match(parts)
		if !ok || !cm.contextMatches(tmpl, params) {
			return Match{}, false
		}
		if typeParam != "" {
			if _, ok := resolve(params[typeParam]); !ok {
				return Match{}, false
			}
		}
		return Match{UseCase: cm.useCase, PageType: pt, Template: tmpl.String(), Params: params}, true
	}

	if m, ok := try(PageDashboard, "", nil); ok {
		return m, true
	}
	if m, ok := try(PageList, ParamPageEntityListType, entity.TypeFromListName); ok {
		return m, true
	}
	return try(PageEntity, ParamPageEntityType, entity.TypeFromEntityName)
}

// pathStack rebuilds the frames carried by a matched path.
func (cm compiledMap) pathStack(m Match) []entity.Entity {
	if !cm.paths.workflow {
		if m.PageType == PageDashboard {
			return nil
		}
		t, ok := cm.legacyType(m.Params)
		if !ok {
			return nil
		}
		return []entity.Entity{entity.Single(t, m.Params[cm.paths.IDParam])}
	}

	p := m.Params
	var stack []entity.Entity
	switch m.PageType {
	case PageDashboard:
		return nil
	case PageList:
		t, _ := entity.TypeFromListName(p[ParamPageEntityListType])
		stack = append(stack, entity.List(t))
	case PageEntity:
		t, _ := entity.TypeFromEntityName(p[ParamPageEntityType])
		stack = append(stack, entity.Single(t, p[ParamPageEntityID]))
		if tab, ok := entity.TypeFromListName(p[ParamEntityType1]); ok && p[ParamPageEntityID] != "" {
			stack = append(stack, entity.List(tab))
		}
	}

	if cm.useCase != entity.ConfigManagement {
		return stack
	}
	return unfoldConfigManagement(stack, p)
}

func unfoldConfigManagement(stack []entity.Entity, p map[string]string) []entity.Entity {
	last := stack[len(stack)-1]
	if p[ParamEntityID1] == "" || !last.IsList() {
		return stack
	}
	stack = append(stack, entity.Single(last.Type, p[ParamEntityID1]))
	name := p[ParamEntityType2]
	if name == "" {
		return stack
	}
	t, _, ok := entity.TypeFromName(name)
	if !ok {
		return stack
	}
	return append(stack, entity.Single(t, p[ParamEntityID2]))
}

// String renders m for logs.
func (m Match) String() string {
	return fmt.Sprintf("%s %s %s", m.UseCase, m.PageType, m.Template)
}
