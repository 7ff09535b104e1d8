// Package store defines the document store the to-do client syncs against.
package store

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"
)

// ErrClosed is returned by operations on a store after Close.
var ErrClosed = errors.New("store closed")

// Document is a single record in a collection. Data holds the JSON-encoded
// fields; the store never interprets it.
type Document struct {
	ID   string
	Data []byte
}

// Subscription is a standing registration for collection snapshots.
type Subscription interface {
	Stop()
}

// DocumentStore is a collection-oriented store with a live subscription.
//
// Subscribe delivers the full collection once when the subscription opens and
// again after every insert, update or delete. Callbacks belonging to one
// subscription never run concurrently.
type DocumentStore interface {
	Create(ctx context.Context, collection string, data []byte) (string, error)
	Set(ctx context.Context, collection, id string, data []byte) error
	Delete(ctx context.Context, collection, id string) error
	FetchAll(ctx context.Context, collection string) ([]Document, error)
	Subscribe(ctx context.Context, collection string, onChange func([]Document), onError func(error)) (Subscription, error)
	Close() error
}

// NewID returns a fresh opaque document id.
func NewID() string {
	return ulid.Make().String()
}

// SubscriptionFunc adapts a plain function to Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Stop() { f() }
