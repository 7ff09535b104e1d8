package model

import (
	"cmp"
	"encoding/json"
	"slices"
	"time"

	"github.com/idilsaglam/livetodo/internal/store"
)

// TodoItem is the domain model for a todo entry, one per remote document.
type TodoItem struct {
	ID        string
	Content   string
	Completed bool
	CreatedAt time.Time
}

// Fields is the stored body of a todo document.
type Fields struct {
	Content   string    `json:"content"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"createdAt"`
}

// Fields returns the document body for the item.
func (it TodoItem) Fields() Fields {
	return Fields{Content: it.Content, Completed: it.Completed, CreatedAt: it.CreatedAt}
}

// FromDocuments maps a collection snapshot to a fresh list, newest first.
// Bodies are not validated: each field is decoded on its own, a field that
// is missing or fails to decode stays at its zero value, and the item is
// kept.
func FromDocuments(docs []store.Document) []TodoItem {
	items := make([]TodoItem, 0, len(docs))
	for _, d := range docs {
		items = append(items, fromDocument(d))
	}
	SortNewestFirst(items)
	return items
}

func fromDocument(d store.Document) TodoItem {
	it := TodoItem{ID: d.ID}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(d.Data, &raw); err != nil {
		return it
	}
	decodeField(raw, "content", &it.Content)
	decodeField(raw, "completed", &it.Completed)
	decodeField(raw, "createdAt", &it.CreatedAt)
	return it
}

// decodeField unmarshals raw[key] into dst, leaving dst untouched when the
// key is absent or its value does not fit.
func decodeField[T any](raw map[string]json.RawMessage, key string, dst *T) {
	b, ok := raw[key]
	if !ok {
		return
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return
	}
	*dst = v
}

// SortNewestFirst orders items by CreatedAt descending. Equal timestamps
// fall back to ID descending so a snapshot always renders the same way.
func SortNewestFirst(items []TodoItem) {
	slices.SortFunc(items, func(a, b TodoItem) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}

// Stats counts completed and pending items.
func Stats(items []TodoItem) (done, pending int) {
	for _, it := range items {
		if it.Completed {
			done++
		} else {
			pending++
		}
	}
	return
}
