package jsonstore

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/idilsaglam/livetodo/internal/store"
)

// JSON-backed storage. One human-readable file per collection, an object
// keyed by document id. Writes replace the file atomically so watchers in
// other processes never observe a half-written collection.

const fileExt = ".json"

var _ store.DocumentStore = (*Store)(nil)

// Store keeps each collection in <dir>/<collection>.json.
type Store struct {
	dir string

	mu     sync.Mutex
	closed bool
	subs   map[*subscription]struct{}
}

// New opens a store rooted at dir, creating the directory when missing.
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	return &Store{dir: abs, subs: make(map[*subscription]struct{})}, nil
}

// Dir returns the absolute data directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) dataPath(collection string) (string, error) {
	if collection == "" || strings.ContainsAny(collection, `/\`) || collection == "." || collection == ".." {
		return "", fmt.Errorf("invalid collection name %q", collection)
	}
	return filepath.Join(s.dir, collection+fileExt), nil
}

func (s *Store) load(collection string) (map[string]json.RawMessage, error) {
	p, err := s.dataPath(collection)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	docs := map[string]json.RawMessage{}
	if len(b) == 0 {
		return docs, nil
	}
	if err := json.Unmarshal(b, &docs); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}
	return docs, nil
}

func (s *Store) save(collection string, docs map[string]json.RawMessage) error {
	p, err := s.dataPath(collection)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, "."+collection+fileExt+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("chmod: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// update runs fn on the collection under the store lock and persists the
// result when fn reports a change.
func (s *Store) update(collection string, fn func(docs map[string]json.RawMessage) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	docs, err := s.load(collection)
	if err != nil {
		return err
	}
	if !fn(docs) {
		return nil
	}
	if err := s.save(collection, docs); err != nil {
		return err
	}
	for sub := range s.subs {
		if sub.collection == collection {
			sub.poke()
		}
	}
	return nil
}

func (s *Store) Create(ctx context.Context, collection string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !json.Valid(data) {
		return "", fmt.Errorf("create %s: document body is not JSON", collection)
	}
	id := store.NewID()
	err := s.update(collection, func(docs map[string]json.RawMessage) bool {
		docs[id] = append(json.RawMessage(nil), data...)
		return true
	})
	if err != nil {
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
	if !json.Valid(data) {
		return fmt.Errorf("set %s/%s: document body is not JSON", collection, id)
	}
	return s.update(collection, func(docs map[string]json.RawMessage) bool {
		docs[id] = append(json.RawMessage(nil), data...)
		return true
	})
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.update(collection, func(docs map[string]json.RawMessage) bool {
		if _, ok := docs[id]; !ok {
			return false
		}
		delete(docs, id)
		return true
	})
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
	docs, err := s.load(collection)
	if err != nil {
		return nil, err
	}
	return toDocuments(docs), nil
}

func toDocuments(docs map[string]json.RawMessage) []store.Document {
	out := make([]store.Document, 0, len(docs))
	for id, data := range docs {
		out = append(out, store.Document{ID: id, Data: []byte(data)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Subscribe watches the collection file. Changes made through this Store and
// changes written by other processes both produce a snapshot; snapshots whose
// content matches the previous delivery are skipped.
func (s *Store) Subscribe(ctx context.Context, collection string, onChange func([]store.Document), onError func(error)) (store.Subscription, error) {
	if onChange == nil {
		return nil, fmt.Errorf("subscribe %s: nil change handler", collection)
	}
	p, err := s.dataPath(collection)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(s.dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", s.dir, err)
	}

	sub := &subscription{
		store:      s,
		collection: collection,
		fileName:   filepath.Base(p),
		watcher:    fsw,
		onChange:   onChange,
		onError:    onError,
		pending:    make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		fsw.Close()
		return nil, store.ErrClosed
	}
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	sub.poke()
	go sub.run(ctx)
	return sub, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := make([]*subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Stop()
	}
	return nil
}

type subscription struct {
	store      *Store
	collection string
	fileName   string
	watcher    *fsnotify.Watcher
	onChange   func([]store.Document)
	onError    func(error)

	pending  chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	lastHash [sha256.Size]byte
	primed   bool
}

func (sub *subscription) poke() {
	select {
	case sub.pending <- struct{}{}:
	default:
	}
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
			sub.deliver()
		case ev, ok := <-sub.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != sub.fileName {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				sub.deliver()
			}
		case err, ok := <-sub.watcher.Errors:
			if !ok {
				return
			}
			sub.fail(fmt.Errorf("watch %s: %w", sub.collection, err))
		}
	}
}

func (sub *subscription) deliver() {
	sub.store.mu.Lock()
	docs, err := sub.store.load(sub.collection)
	sub.store.mu.Unlock()
	if err != nil {
		sub.fail(err)
		return
	}

	// json.Marshal sorts map keys, which makes the hash canonical.
	canonical, err := json.Marshal(docs)
	if err != nil {
		sub.fail(fmt.Errorf("json marshal: %w", err))
		return
	}
	h := sha256.Sum256(canonical)
	if sub.primed && h == sub.lastHash {
		return
	}
	sub.lastHash = h
	sub.primed = true

	select {
	case <-sub.done:
		return
	default:
	}
	sub.onChange(toDocuments(docs))
}

func (sub *subscription) fail(err error) {
	if sub.onError != nil {
		sub.onError(err)
	}
}

func (sub *subscription) Stop() {
	sub.stopOnce.Do(func() {
		sub.store.mu.Lock()
		delete(sub.store.subs, sub)
		sub.store.mu.Unlock()
		close(sub.done)
		sub.watcher.Close()
	})
}
