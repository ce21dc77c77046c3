package urlcodec

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/rmax-ai/wayfinder/pkg/entity"
	"github.com/rmax-ai/wayfinder/pkg/workflow"
)

// Query parameter names.
const (
	paramStack     = "workflowState"
	paramSearch    = "s"
	paramSearch2   = "s2"
	paramSort      = "sort"
	paramSort2     = "sort2"
	paramPaging    = "p"
	paramPaging2   = "p2"
	stackTypeField = "t"
	stackIDField   = "i"
	sortIDField    = "id"
	sortDescField  = "desc"
)

// queryEscape percent-encodes s for a query key part or value. Spaces become
// %20 rather than "+".
func queryEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

type queryWriter struct {
	b strings.Builder
}

func (w *queryWriter) add(base string, parts []string, value string) {
	if w.b.Len() > 0 {
		w.b.WriteByte('&')
	}
	w.b.WriteString(base)
	for _, p := range parts {
		w.b.WriteByte('[')
		w.b.WriteString(queryEscape(p))
		w.b.WriteByte(']')
	}
	w.b.WriteByte('=')
	w.b.WriteString(queryEscape(value))
}

func (w *queryWriter) stack(frames []entity.Entity) {
	for i, f := range frames {
		idx := strconv.Itoa(i)
		w.add(paramStack, []string{idx, stackTypeField}, string(f.Type))
		if !f.IsList() {
			w.add(paramStack, []string{idx, stackIDField}, f.ID)
		}
	}
}

func (w *queryWriter) search(base string, s workflow.Search) {
	for _, key := range s.Keys() {
		values := s[key]
		switch len(values) {
		case 0:
		case 1:
			w.add(base, []string{key}, values[0])
		default:
			for i, v := range values {
				w.add(base, []string{key, strconv.Itoa(i)}, v)
			}
		}
	}
}

func (w *queryWriter) sort(base string, s workflow.Sort) error {
	for i, opt := range s {
		if opt.ID == "" {
			return fmt.Errorf("%w: %s[%d] has no id", ErrMalformedSort, base, i)
		}
		idx := strconv.Itoa(i)
		w.add(base, []string{idx, sortIDField}, opt.ID)
		w.add(base, []string{idx, sortDescField}, strconv.FormatBool(opt.Desc))
	}
	return nil
}

func (w *queryWriter) paging(base string, page int) {
	if page != 0 {
		w.add(base, nil, strconv.Itoa(page))
	}
}

func (w *queryWriter) String() string { return w.b.String() }

// encodeQuery renders the query string for the frames that do not fit in the
// path, followed by both panels' search, sort and paging.
func encodeQuery(frames []entity.Entity, s workflow.State) (string, error) {
	var w queryWriter
	w.stack(frames)
	search := s.Search()
	w.search(paramSearch, search.Page)
	w.search(paramSearch2, search.SidePanel)
	sortOpts := s.Sort()
	if err := w.sort(paramSort, sortOpts.Page); err != nil {
		return "", err
	}
	if err := w.sort(paramSort2, sortOpts.SidePanel); err != nil {
		return "", err
	}
	paging := s.Paging()
	w.paging(paramPaging, paging.Page)
	w.paging(paramPaging2, paging.SidePanel)
	return w.String(), nil
}

// queryField is one decoded key=value pair with its bracket path split out.
type queryField struct {
	base  string
	parts []string
	value string
}

// splitKey separates "base[a][b]" into base and its bracket parts. Unbalanced
// brackets leave the key unsplit.
func splitKey(raw string) (string, []string) {
	open := strings.IndexByte(raw, '[')
	if open < 0 {
		return unescapeQuery(raw), nil
	}
	base := unescapeQuery(raw[:open])
	var parts []string
	rest := raw[open:]
	for rest != "" {
		if rest[0] != '[' {
			return unescapeQuery(raw), nil
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return unescapeQuery(raw), nil
		}
		parts = append(parts, unescapeQuery(rest[1:end]))
		rest = rest[end+1:]
	}
	return base, parts
}

func unescapeQuery(s string) string {
	v, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return v
}

func parseFields(rawQuery string) []queryField {
	rawQuery = strings.TrimPrefix(rawQuery, "?")
	var fields []queryField
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		if !strings.Contains(key, "[") && strings.Contains(strings.ToUpper(key), "%5B") {
			key = unescapeQuery(key)
		}
		base, parts := splitKey(key)
		fields = append(fields, queryField{base: base, parts: parts, value: unescapeQuery(value)})
	}
	return fields
}

// decodedQuery is the lenient reading of a query string. Malformed
// fragments are dropped.
type decodedQuery struct {
	stack  []entity.Entity
	search workflow.Panels[workflow.Search]
	sort   workflow.Panels[workflow.Sort]
	paging workflow.Panels[int]
}

type indexed[T any] map[int]*T

func (m indexed[T]) at(i int) *T {
	if v, ok := m[i]; ok {
		return v
	}
	v := new(T)
	m[i] = v
	return v
}

func (m indexed[T]) ordered() []*T {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]*T, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

func parseIndex(s string) (int, bool) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

type rawFrame struct{ t, id string }

type rawSort struct {
	id   string
	desc string
}

type searchAcc struct {
	single map[string]string
	multi  map[string]indexed[string]
}

func newSearchAcc() *searchAcc {
	return &searchAcc{single: map[string]string{}, multi: map[string]indexed[string]{}}
}

func (a *searchAcc) add(f queryField) {
	switch len(f.parts) {
	case 1:
		a.single[f.parts[0]] = f.value
	case 2:
		i, ok := parseIndex(f.parts[1])
		if !ok {
			return
		}
		m, ok := a.multi[f.parts[0]]
		if !ok {
			m = indexed[string]{}
			a.multi[f.parts[0]] = m
		}
		*m.at(i) = f.value
	}
}

func (a *searchAcc) build() workflow.Search {
	if len(a.single) == 0 && len(a.multi) == 0 {
		return nil
	}
	out := workflow.Search{}
	for k, v := range a.single {
		out[k] = []string{v}
	}
	for k, m := range a.multi {
		if _, ok := out[k]; ok {
			continue
		}
		for _, v := range m.ordered() {
			out[k] = append(out[k], *v)
		}
	}
	return out
}

func decodeQuery(rawQuery string) decodedQuery {
	frames := indexed[rawFrame]{}
	sorts := map[string]indexed[rawSort]{paramSort: {}, paramSort2: {}}
	searches := map[string]*searchAcc{paramSearch: newSearchAcc(), paramSearch2: newSearchAcc()}
	var q decodedQuery

	for _, f := range parseFields(rawQuery) {
		switch f.base {
		case paramStack:
			if len(f.parts) != 2 {
				continue
			}
			i, ok := parseIndex(f.parts[0])
			if !ok {
				continue
			}
			switch f.parts[1] {
			case stackTypeField:
				frames.at(i).t = f.value
			case stackIDField:
				frames.at(i).id = f.value
			}
		case paramSearch, paramSearch2:
			searches[f.base].add(f)
		case paramSort, paramSort2:
			if len(f.parts) != 2 {
				continue
			}
			i, ok := parseIndex(f.parts[0])
			if !ok {
				continue
			}
			switch f.parts[1] {
			case sortIDField:
				sorts[f.base].at(i).id = f.value
			case sortDescField:
				sorts[f.base].at(i).desc = f.value
			}
		case paramPaging:
			q.paging.Page = parsePage(f)
		case paramPaging2:
			q.paging.SidePanel = parsePage(f)
		}
	}

	for _, f := range frames.ordered() {
		t := entity.Type(f.t)
		if !t.Valid() {
			continue
		}
		q.stack = append(q.stack, entity.Single(t, f.id))
	}
	q.search.Page = searches[paramSearch].build()
	q.search.SidePanel = searches[paramSearch2].build()
	q.sort.Page = buildSort(sorts[paramSort])
	q.sort.SidePanel = buildSort(sorts[paramSort2])
	return q
}

func parsePage(f queryField) int {
	if len(f.parts) != 0 {
		return 0
	}
	n, err := strconv.Atoi(f.value)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func buildSort(m indexed[rawSort]) workflow.Sort {
	var out workflow.Sort
	for _, s := range m.ordered() {
		if s.id == "" {
			continue
		}
		out = append(out, workflow.SortOption{ID: s.id, Desc: s.desc == "true"})
	}
	return out
}
