package cache

import (
	"encoding/json"
	"strings"
)

// ListID is the tag id naming the collection of a type rather than one member.
const ListID = "LIST"

// Tag labels cached data so mutations can invalidate it.
type Tag struct {
	Type string
	ID   string
}

// T builds a tag; numeric ids are rendered in base 10 by the caller.
func T(typ, id string) Tag { return Tag{Type: typ, ID: id} }

// List is the collection tag of a type.
func List(typ string) Tag { return Tag{Type: typ, ID: ListID} }

// Matches reports whether invalidating t hits a provided tag p. An empty ID
// matches every tag of the same type.
func (t Tag) Matches(p Tag) bool {
	if t.Type != p.Type {
		return false
	}
	return t.ID == "" || t.ID == p.ID
}

func (t Tag) String() string {
	if t.ID == "" {
		return t.Type
	}
	return t.Type + ":" + t.ID
}

func intersects(invalidated, provided []Tag) bool {
	for _, inv := range invalidated {
		for _, p := range provided {
			if inv.Matches(p) {
				return true
			}
		}
	}
	return false
}

// Key derives the entry key for an endpoint called with args. Arguments are
// encoded as JSON so equal argument values share an entry.
func Key(endpoint string, args any) string {
	if args == nil {
		return endpoint + "()"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return endpoint + "(" + strings.TrimSpace(err.Error()) + ")"
	}
	return endpoint + "(" + string(data) + ")"
}
