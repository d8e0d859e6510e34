package cache

import "fmt"

// ListID marks a tag that covers a whole collection rather than one item.
const ListID = "LIST"

// Tag is an invalidation marker: a (resource type, id) pair. Cached
// entries hold tag sets; mutations declare which tags they invalidate,
// and every entry whose set intersects goes stale.
type Tag struct {
	Type string
	ID   string
}

func NewTag(resourceType, id string) Tag {
	return Tag{Type: resourceType, ID: id}
}

func ListTag(resourceType string) Tag {
	return Tag{Type: resourceType, ID: ListID}
}

func IDTag(resourceType string, id int64) Tag {
	return Tag{Type: resourceType, ID: fmt.Sprintf("%d", id)}
}

func (t Tag) String() string {
	return t.Type + ":" + t.ID
}
