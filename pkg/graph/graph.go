package graph

import (
	"fmt"
	"slices"
	"sort"

	"github.com/rmax-ai/wayfinder/pkg/entity"
)

// UnknownTypeError is raised when a graph is asked about a type it does not
// declare. Tables are exhaustive per use case, so this is a configuration
// error rather than a lookup miss.
type UnknownTypeError struct {
	Graph string
	Type  entity.Type
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("entity type %q is not declared in the %s relationship graph", e.Type, e.Graph)
}

// UnknownRelationshipError reports an unsupported relationship tag.
type UnknownRelationshipError struct {
	Relationship string
}

func (e *UnknownRelationshipError) Error() string {
	return fmt.Sprintf("unknown relationship %q", e.Relationship)
}

// Graph is a built, read-only relationship graph. It is safe for concurrent
// use.
type Graph struct {
	name     string
	table    Table
	contains map[entity.Type][]entity.Type
}

// Build validates table and precomputes the transitive contains relation.
func Build(name string, table Table) (*Graph, error) {
	for t, rel := range table {
		for _, group := range [][]entity.Type{rel.Children, rel.Parents, rel.Matches, rel.ExtendedMatches} {
			for _, ref := range group {
				if _, ok := table[ref]; !ok {
					return nil, fmt.Errorf("%s graph: %s references undeclared type %s", name, t, ref)
				}
			}
		}
	}

	g := &Graph{
		name:     name,
		table:    table,
		contains: make(map[entity.Type][]entity.Type, len(table)),
	}
	for t := range table {
		g.contains[t] = g.walkContains(t, t, map[entity.Type]bool{})
	}
	return g, nil
}

// MustBuild is like Build but panics on an invalid table.
func MustBuild(name string, table Table) *Graph {
	g, err := Build(name, table)
	if err != nil {
		panic(err)
	}
	return g
}

// walkContains collects, for every direct child of t, the child itself, its
// pure matches and everything the child contains. root is never included.
func (g *Graph) walkContains(root, t entity.Type, visiting map[entity.Type]bool) []entity.Type {
	if visiting[t] {
		return nil
	}
	visiting[t] = true
	defer delete(visiting, t)

	var out []entity.Type
	seen := map[entity.Type]bool{root: true}
	add := func(types ...entity.Type) {
		for _, x := range types {
			if !seen[x] {
				seen[x] = true
				out = append(out, x)
			}
		}
	}
	for _, child := range g.table[t].Children {
		add(child)
		add(g.table[child].Matches...)
		add(g.walkContains(root, child, visiting)...)
	}
	return out
}

// Name returns the graph name.
func (g *Graph) Name() string {
	return g.name
}

// Has reports whether t is declared in the graph.
func (g *Graph) Has(t entity.Type) bool {
	_, ok := g.table[t]
	return ok
}

// Types returns the declared types in lexical order.
func (g *Graph) Types() []entity.Type {
	types := make([]entity.Type, 0, len(g.table))
	for t := range g.table {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Lookup returns the declared relationships of t without panicking.
func (g *Graph) Lookup(t entity.Type) (Relationships, error) {
	rel, ok := g.table[t]
	if !ok {
		return Relationships{}, &UnknownTypeError{Graph: g.name, Type: t}
	}
	return rel, nil
}

func (g *Graph) mustLookup(t entity.Type) Relationships {
	rel, err := g.Lookup(t)
	if err != nil {
		panic(err)
	}
	return rel
}

// Children returns the direct children of t.
func (g *Graph) Children(t entity.Type) []entity.Type {
	return slices.Clone(g.mustLookup(t).Children)
}

// Parents returns the direct parents of t.
func (g *Graph) Parents(t entity.Type) []entity.Type {
	return slices.Clone(g.mustLookup(t).Parents)
}

// PureMatches returns the types t matches one-to-one.
func (g *Graph) PureMatches(t entity.Type) []entity.Type {
	return slices.Clone(g.mustLookup(t).Matches)
}

// ExtendedMatches returns the types t matches through an intermediate.
func (g *Graph) ExtendedMatches(t entity.Type) []entity.Type {
	return slices.Clone(g.mustLookup(t).ExtendedMatches)
}

// Matches returns pure and extended matches of t.
func (g *Graph) Matches(t entity.Type) []entity.Type {
	rel := g.mustLookup(t)
	out := make([]entity.Type, 0, len(rel.Matches)+len(rel.ExtendedMatches))
	out = append(out, rel.Matches...)
	return append(out, rel.ExtendedMatches...)
}

// Contains returns every type reachable from t through children and the
// pure matches of children.
func (g *Graph) Contains(t entity.Type) []entity.Type {
	g.mustLookup(t)
	return slices.Clone(g.contains[t])
}

// IsChild reports whether b is a direct child of a.
func (g *Graph) IsChild(a, b entity.Type) bool {
	return slices.Contains(g.mustLookup(a).Children, b)
}

// IsParent reports whether b is a direct parent of a.
func (g *Graph) IsParent(a, b entity.Type) bool {
	return slices.Contains(g.mustLookup(a).Parents, b)
}

// IsPureMatch reports whether a matches b one-to-one.
func (g *Graph) IsPureMatch(a, b entity.Type) bool {
	return slices.Contains(g.mustLookup(a).Matches, b)
}

// IsExtendedMatch reports whether a matches b through an intermediate.
func (g *Graph) IsExtendedMatch(a, b entity.Type) bool {
	return slices.Contains(g.mustLookup(a).ExtendedMatches, b)
}

// IsMatch reports whether b is any kind of match of a.
func (g *Graph) IsMatch(a, b entity.Type) bool {
	return g.IsPureMatch(a, b) || g.IsExtendedMatch(a, b)
}

// IsContained reports whether a contains b.
func (g *Graph) IsContained(a, b entity.Type) bool {
	g.mustLookup(a)
	return slices.Contains(g.contains[a], b)
}

// IsContainedInferred reports whether a contains b only through a multi-hop
// or match path.
func (g *Graph) IsContainedInferred(a, b entity.Type) bool {
	return a != b && g.IsContained(a, b) && !g.IsChild(a, b)
}

// EntityTypesByRelationship dispatches to the query named by rel.
//
// CONTAINS hides NODE/IMAGE cross edges: NODE never lists IMAGE, and IMAGE,
// DEPLOYMENT and NAMESPACE never list NODE, even where the shared component
// and CVE types would infer it.
func (g *Graph) EntityTypesByRelationship(t entity.Type, rel Relationship) []entity.Type {
	switch rel {
	case RelContains:
		contains := g.Contains(t)
		switch t {
		case entity.Node:
			return without(contains, entity.Image)
		case entity.Image, entity.Deployment, entity.Namespace:
			return without(contains, entity.Node)
		}
		return contains
	case RelMatches:
		return g.Matches(t)
	case RelParents:
		return g.Parents(t)
	case RelChildren:
		return g.Children(t)
	}
	panic(&UnknownRelationshipError{Relationship: string(rel)})
}

func without(types []entity.Type, drop entity.Type) []entity.Type {
	return slices.DeleteFunc(types, func(t entity.Type) bool { return t == drop })
}

// Export renders the graph as nodes and directed edges.
func (g *Graph) Export() *Snapshot {
	s := &Snapshot{Name: g.name}
	for _, t := range g.Types() {
		rel := g.table[t]
		s.Nodes = append(s.Nodes, &Node{ID: t, Label: string(t), Contains: g.EntityTypesByRelationship(t, RelContains)})
		for _, e := range []struct {
			types []entity.Type
			kind  EdgeType
		}{
			{rel.Children, EdgeChild},
			{rel.Parents, EdgeParent},
			{rel.Matches, EdgeMatch},
			{rel.ExtendedMatches, EdgeExtendedMatch},
		} {
			for _, to := range e.types {
				s.Edges = append(s.Edges, &Edge{FromID: t, ToID: to, Type: e.kind})
			}
		}
	}
	return s
}
