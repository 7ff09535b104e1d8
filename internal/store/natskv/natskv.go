// Package natskv stores collections in NATS JetStream key-value buckets, one
// bucket per collection, keyed by document id.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/idilsaglam/livetodo/internal/store"
)

var _ store.DocumentStore = (*Store)(nil)

// ErrWatchClosed is reported when the server side of a watch goes away.
var ErrWatchClosed = errors.New("kv watch closed")

// Options configures the connection.
type Options struct {
	URL            string
	ConnectTimeout time.Duration
	// Name is reported to the server as the client connection name.
	Name string
}

// Store is a DocumentStore over JetStream KV.
type Store struct {
	nc *nats.Conn
	js jetstream.JetStream

	mu      sync.Mutex
	buckets map[string]jetstream.KeyValue
}

// Connect dials the server and prepares a JetStream context.
func Connect(ctx context.Context, opts Options) (*Store, error) {
	if opts.URL == "" {
		opts.URL = nats.DefaultURL
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.Name == "" {
		opts.Name = "livetodo"
	}
	nc, err := nats.Connect(opts.URL, nats.Name(opts.Name), nats.Timeout(opts.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", opts.URL, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Store{nc: nc, js: js, buckets: make(map[string]jetstream.KeyValue)}, nil
}

// bucket returns the KV bucket for collection, creating it on first use.
func (s *Store) bucket(ctx context.Context, collection string) (jetstream.KeyValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nc == nil || s.nc.IsClosed() {
		return nil, store.ErrClosed
	}
	if kv, ok := s.buckets[collection]; ok {
		return kv, nil
	}
	kv, err := s.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      collection,
		Description: "livetodo collection " + collection,
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("kv bucket %s: %w", collection, err)
	}
	s.buckets[collection] = kv
	return kv, nil
}

func (s *Store) Create(ctx context.Context, collection string, data []byte) (string, error) {
	kv, err := s.bucket(ctx, collection)
	if err != nil {
		return "", err
	}
	id := store.NewID()
	if _, err := kv.Create(ctx, id, data); err != nil {
		return "", fmt.Errorf("create %s/%s: %w", collection, id, err)
	}
	return id, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, data []byte) error {
	if id == "" {
		return fmt.Errorf("set %s: empty id", collection)
	}
	kv, err := s.bucket(ctx, collection)
	if err != nil {
		return err
	}
	if _, err := kv.Put(ctx, id, data); err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if id == "" {
		return nil
	}
	kv, err := s.bucket(ctx, collection)
	if err != nil {
		return err
	}
	if _, err := kv.Get(ctx, id); err != nil {
		// A key the bucket cannot hold is as absent as one it does not.
		if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrInvalidKey) {
			return nil
		}
		return fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	if err := kv.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) FetchAll(ctx context.Context, collection string) ([]store.Document, error) {
	kv, err := s.bucket(ctx, collection)
	if err != nil {
		return nil, err
	}
	lister, err := kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return []store.Document{}, nil
		}
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer lister.Stop()

	var docs []store.Document
	for key := range lister.Keys() {
		entry, err := kv.Get(ctx, key)
		if err != nil {
			// Deleted between list and get.
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}
			return nil, fmt.Errorf("get %s/%s: %w", collection, key, err)
		}
		docs = append(docs, store.Document{ID: key, Data: entry.Value()})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	if docs == nil {
		docs = []store.Document{}
	}
	return docs, nil
}

// Subscribe watches every key in the collection bucket. The watcher replays
// current values first, then signals the end of replay with a nil entry; the
// first snapshot is delivered at that point and one more after every update.
func (s *Store) Subscribe(ctx context.Context, collection string, onChange func([]store.Document), onError func(error)) (store.Subscription, error) {
	if onChange == nil {
		return nil, fmt.Errorf("subscribe %s: nil change handler", collection)
	}
	kv, err := s.bucket(ctx, collection)
	if err != nil {
		return nil, err
	}
	watchCtx, cancel := context.WithCancel(ctx)
	watcher, err := kv.WatchAll(watchCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch %s: %w", collection, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer watcher.Stop()

		r := newReplica()
		ready := false
		for {
			select {
			case <-watchCtx.Done():
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					if watchCtx.Err() == nil && onError != nil {
						onError(fmt.Errorf("%s: %w", collection, ErrWatchClosed))
					}
					return
				}
				if entry == nil {
					ready = true
					onChange(r.snapshot())
					continue
				}
				r.apply(entry.Operation(), entry.Key(), entry.Value())
				if ready {
					onChange(r.snapshot())
				}
			}
		}
	}()

	var once sync.Once
	return store.SubscriptionFunc(func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}), nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nc == nil {
		return nil
	}
	err := s.nc.Drain()
	s.nc = nil
	s.buckets = nil
	if err != nil {
		return fmt.Errorf("drain: %w", err)
	}
	return nil
}

// replica mirrors a bucket from watch entries.
type replica struct {
	docs map[string][]byte
}

func newReplica() *replica {
	return &replica{docs: make(map[string][]byte)}
}

func (r *replica) apply(op jetstream.KeyValueOp, key string, value []byte) {
	switch op {
	case jetstream.KeyValuePut:
		r.docs[key] = append([]byte(nil), value...)
	case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
		delete(r.docs, key)
	}
}

func (r *replica) snapshot() []store.Document {
	out := make([]store.Document, 0, len(r.docs))
	for id, data := range r.docs {
		out = append(out, store.Document{ID: id, Data: append([]byte(nil), data...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
