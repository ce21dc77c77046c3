package graph

import "github.com/rmax-ai/wayfinder/pkg/entity"

// Relationship tags the kind of edge a query walks.
type Relationship string

const (
	RelContains Relationship = "CONTAINS"
	RelMatches  Relationship = "MATCHES"
	RelParents  Relationship = "PARENTS"
	RelChildren Relationship = "CHILDREN"
)

// ParseRelationship validates a relationship tag from external input.
func ParseRelationship(s string) (Relationship, error) {
	switch r := Relationship(s); r {
	case RelContains, RelMatches, RelParents, RelChildren:
		return r, nil
	}
	return "", &UnknownRelationshipError{Relationship: s}
}

// Relationships declares the direct edges of one entity type.
type Relationships struct {
	Children        []entity.Type `json:"children,omitempty"`
	Parents         []entity.Type `json:"parents,omitempty"`
	Matches         []entity.Type `json:"matches,omitempty"`
	ExtendedMatches []entity.Type `json:"extended_matches,omitempty"`
}

// Table is the authored relationship data for one use case. It must name
// every type that any edge points at.
type Table map[entity.Type]Relationships

// EdgeType represents the semantic relationship between two nodes.
type EdgeType string

const (
	EdgeChild         EdgeType = "child"
	EdgeParent        EdgeType = "parent"
	EdgeMatch         EdgeType = "match"
	EdgeExtendedMatch EdgeType = "extended_match"
)

// Node represents an entity type in an exported graph.
type Node struct {
	ID       entity.Type   `json:"id"`
	Label    string        `json:"label"`
	Contains []entity.Type `json:"contains,omitempty"`
}

// Edge represents a directed connection between two nodes.
type Edge struct {
	FromID entity.Type `json:"from_id"`
	ToID   entity.Type `json:"to_id"`
	Type   EdgeType    `json:"type"`
}

// Snapshot is a serialisable view of a relationship graph.
type Snapshot struct {
	Name  string  `json:"name"`
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}
