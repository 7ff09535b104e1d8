// Package app holds the to-do list state and the operations that change it.
//
// The controller never edits its list in response to a user action. Every
// action becomes a store write, and the list changes only when the store
// pushes the next snapshot, so the subscription stays the single source of
// truth for every surface.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/idilsaglam/livetodo/internal/logging"
	"github.com/idilsaglam/livetodo/internal/metrics"
	"github.com/idilsaglam/livetodo/internal/model"
	"github.com/idilsaglam/livetodo/internal/store"
)

// DefaultCollection is the namespace holding every item.
const DefaultCollection = "todo-list"

// deleteSeparator splits delete control ids into control name and item id.
const deleteSeparator = "-"

// Handlers receive controller events. Either may be nil.
type Handlers struct {
	// OnChange gets the freshly mapped list after every snapshot.
	OnChange func(items []model.TodoItem)
	// OnError gets subscription errors after they are logged.
	OnError func(err error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithCollection overrides the collection name.
func WithCollection(name string) Option {
	return func(c *Controller) { c.collection = name }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithClock replaces time.Now for createdAt stamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller owns the in-memory replica of the collection.
type Controller struct {
	store      store.DocumentStore
	collection string
	logger     *log.Logger
	metrics    *metrics.Recorder
	now        func() time.Time

	mu    sync.RWMutex
	items []model.TodoItem
}

// New returns a controller over st with an empty list.
func New(st store.DocumentStore, opts ...Option) *Controller {
	c := &Controller{
		store:      st,
		collection: DefaultCollection,
		now:        func() time.Time { return time.Now().UTC() },
		items:      []model.TodoItem{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	return c
}

// Collection returns the collection name.
func (c *Controller) Collection() string { return c.collection }

// Items returns a copy of the current list, newest first.
func (c *Controller) Items() []model.TodoItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.TodoItem, len(c.items))
	copy(out, c.items)
	return out
}

// Lookup finds an item in the current list.
func (c *Controller) Lookup(id string) (model.TodoItem, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, it := range c.items {
		if it.ID == id {
			return it, true
		}
	}
	return model.TodoItem{}, false
}

// Apply replaces the held list with the mapped snapshot and returns a copy.
func (c *Controller) Apply(docs []store.Document) []model.TodoItem {
	items := model.FromDocuments(docs)
	c.mu.Lock()
	c.items = items
	c.mu.Unlock()

	c.metrics.Snapshot(len(items))
	c.logger.Debug("snapshot applied", "collection", c.collection, "items", len(items))

	out := make([]model.TodoItem, len(items))
	copy(out, items)
	return out
}

// Fetch reads the whole collection once and applies it.
func (c *Controller) Fetch(ctx context.Context) ([]model.TodoItem, error) {
	docs, err := c.store.FetchAll(ctx, c.collection)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", c.collection, err)
	}
	return c.Apply(docs), nil
}

// Start runs the bootstrap sequence: one full fetch, a render through
// h.OnChange, then the live subscription. The subscription stays open until
// ctx ends or the returned handle is stopped. Subscription errors are logged
// and passed on; nothing is retried.
func (c *Controller) Start(ctx context.Context, h Handlers) (store.Subscription, error) {
	items, err := c.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if h.OnChange != nil {
		h.OnChange(items)
	}

	sub, err := c.store.Subscribe(ctx, c.collection,
		func(docs []store.Document) {
			items := c.Apply(docs)
			if h.OnChange != nil {
				h.OnChange(items)
			}
		},
		func(err error) {
			c.metrics.SubscriptionError()
			c.logger.Error("subscription error", "collection", c.collection, "err", err)
			if h.OnError != nil {
				h.OnError(err)
			}
		},
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", c.collection, err)
	}
	c.logger.Info("subscribed", "collection", c.collection, "items", len(items))
	return sub, nil
}

// Add creates a new unchecked item stamped with the current time. Content is
// stored as given; an empty string is a valid item.
func (c *Controller) Add(ctx context.Context, content string) *Write {
	f := model.Fields{Content: content, Completed: false, CreatedAt: c.now()}
	return c.dispatch(ctx, OpAdd, "", func(ctx context.Context) (string, error) {
		data, err := json.Marshal(f)
		if err != nil {
			return "", fmt.Errorf("encode: %w", err)
		}
		return c.store.Create(ctx, c.collection, data)
	})
}

// Toggle rewrites the completed flag of a listed item, keeping its content and
// creation time. Ids that are not in the current list are skipped rather than
// written, so a stale row cannot recreate a deleted document.
func (c *Controller) Toggle(ctx context.Context, id string, checked bool) *Write {
	item, ok := c.Lookup(id)
	if !ok {
		c.logger.Debug("toggle skipped, item not listed", "id", id)
		return c.skip(OpToggle, id)
	}
	f := item.Fields()
	f.Completed = checked
	return c.dispatch(ctx, OpToggle, id, func(ctx context.Context) (string, error) {
		data, err := json.Marshal(f)
		if err != nil {
			return "", fmt.Errorf("encode: %w", err)
		}
		return id, c.store.Set(ctx, c.collection, id, data)
	})
}

// Delete removes the item named by a delete control id ("delete-<id>").
// Control ids without an item id are ignored. Deleting an id the store does
// not hold is not an error.
func (c *Controller) Delete(ctx context.Context, controlID string) *Write {
	id, ok := ParseDeleteControlID(controlID)
	if !ok {
		c.logger.Debug("delete skipped, no item id", "control", controlID)
		return c.skip(OpDelete, "")
	}
	return c.dispatch(ctx, OpDelete, id, func(ctx context.Context) (string, error) {
		return id, c.store.Delete(ctx, c.collection, id)
	})
}

// DeleteControlID returns the delete control id for an item.
func DeleteControlID(itemID string) string {
	return "delete" + deleteSeparator + itemID
}

// ParseDeleteControlID extracts the item id from a delete control id. The id
// is everything after the first separator.
func ParseDeleteControlID(controlID string) (string, bool) {
	_, id, found := strings.Cut(controlID, deleteSeparator)
	if !found || id == "" {
		return "", false
	}
	return id, true
}

// dispatch runs fn in the background and returns its handle immediately.
func (c *Controller) dispatch(ctx context.Context, op Op, id string, fn func(context.Context) (string, error)) *Write {
	w := newWrite(op, id)
	go func() {
		gotID, err := fn(ctx)
		if err != nil {
			c.metrics.Write(string(op), metrics.ResultError)
			c.logger.Error("write failed", "op", op, "id", id, "err", err)
		} else {
			c.metrics.Write(string(op), metrics.ResultOK)
			c.logger.Debug("write done", "op", op, "id", gotID)
		}
		w.finish(gotID, err)
	}()
	return w
}

func (c *Controller) skip(op Op, id string) *Write {
	c.metrics.Write(string(op), metrics.ResultSkipped)
	w := newWrite(op, id)
	w.skipped = true
	w.finish(id, nil)
	return w
}
