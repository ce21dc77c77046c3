package entity

import "fmt"

// Entity is one frame of a navigation stack. Without an ID it denotes the
// list view of Type, with an ID it denotes a single instance.
//
// Entity is a comparable value; two frames are equal when both fields match.
type Entity struct {
	Type Type   `json:"t"`
	ID   string `json:"i,omitempty"`
}

// List returns a list frame for t.
func List(t Type) Entity {
	return Entity{Type: t}
}

// Single returns an entity frame for the instance id of type t.
func Single(t Type, id string) Entity {
	return Entity{Type: t, ID: id}
}

// IsList reports whether e is a list frame.
func (e Entity) IsList() bool {
	return e.ID == ""
}

func (e Entity) String() string {
	if e.ID == "" {
		return string(e.Type)
	}
	return fmt.Sprintf("%s-%s", e.Type, e.ID)
}
