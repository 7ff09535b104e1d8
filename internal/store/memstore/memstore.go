// Package memstore is an in-process document store used by tests and the
// "memory" backend.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/idilsaglam/livetodo/internal/store"
)

var _ store.DocumentStore = (*Store)(nil)

// Store keeps collections in memory. Safe for concurrent use.
type Store struct {
	mu          sync.Mutex
	collections map[string]map[string][]byte
	subs        map[string]map[*subscription]struct{}
	closed      bool
}

// New returns an empty store.
func New() *Store {
	return &Store{
		collections: make(map[string]map[string][]byte),
		subs:        make(map[string]map[*subscription]struct{}),
	}
}

func (s *Store) Create(ctx context.Context, collection string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := store.NewID()
	if err := s.put(collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("set %s: empty id", collection)
	}
	return s.put(collection, id, data)
}

func (s *Store) put(collection, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string][]byte)
		s.collections[collection] = docs
	}
	docs[id] = append([]byte(nil), data...)
	s.notifyLocked(collection)
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	docs := s.collections[collection]
	if _, ok := docs[id]; !ok {
		return nil
	}
	delete(docs, id)
	s.notifyLocked(collection)
	return nil
}

func (s *Store) FetchAll(ctx context.Context, collection string) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	return s.snapshotLocked(collection), nil
}

// snapshotLocked returns documents ordered by id; callers must not rely on it.
func (s *Store) snapshotLocked(collection string) []store.Document {
	docs := s.collections[collection]
	out := make([]store.Document, 0, len(docs))
	for id, data := range docs {
		out = append(out, store.Document{ID: id, Data: append([]byte(nil), data...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Subscribe(ctx context.Context, collection string, onChange func([]store.Document), onError func(error)) (store.Subscription, error) {
	if onChange == nil {
		return nil, fmt.Errorf("subscribe %s: nil change handler", collection)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, store.ErrClosed
	}
	sub := &subscription{
		store:      s,
		collection: collection,
		onChange:   onChange,
		pending:    make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	if s.subs[collection] == nil {
		s.subs[collection] = make(map[*subscription]struct{})
	}
	s.subs[collection][sub] = struct{}{}
	sub.pending <- struct{}{}
	s.mu.Unlock()

	go sub.run(ctx)
	return sub, nil
}

// notifyLocked marks every subscriber of collection dirty. Pending marks
// coalesce: a subscriber reads the latest state when it gets to run.
func (s *Store) notifyLocked(collection string) {
	for sub := range s.subs[collection] {
		select {
		case sub.pending <- struct{}{}:
		default:
		}
	}
}

func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var all []*subscription
	for _, subs := range s.subs {
		for sub := range subs {
			all = append(all, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range all {
		sub.Stop()
	}
	return nil
}

type subscription struct {
	store      *Store
	collection string
	onChange   func([]store.Document)
	pending    chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
}

func (sub *subscription) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			sub.Stop()
			return
		case <-sub.done:
			return
		case <-sub.pending:
			sub.store.mu.Lock()
			docs := sub.store.snapshotLocked(sub.collection)
			sub.store.mu.Unlock()

			select {
			case <-sub.done:
				return
			default:
			}
			sub.onChange(docs)
		}
	}
}

func (sub *subscription) Stop() {
	sub.stopOnce.Do(func() {
		sub.store.mu.Lock()
		delete(sub.store.subs[sub.collection], sub)
		sub.store.mu.Unlock()
		close(sub.done)
	})
}
