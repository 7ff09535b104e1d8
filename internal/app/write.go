package app

import (
	"context"
	"sync"
)

// Op names a store write.
type Op string

const (
	OpAdd    Op = "add"
	OpToggle Op = "toggle"
	OpDelete Op = "delete"
)

// Write is the handle of one dispatched store write. Callers may ignore it;
// the next snapshot reflects success either way.
type Write struct {
	Op Op

	done    chan struct{}
	once    sync.Once
	skipped bool

	mu  sync.Mutex
	id  string
	err error
}

func newWrite(op Op, id string) *Write {
	return &Write{Op: op, id: id, done: make(chan struct{})}
}

func (w *Write) finish(id string, err error) {
	w.once.Do(func() {
		w.mu.Lock()
		w.id = id
		w.err = err
		w.mu.Unlock()
		close(w.done)
	})
}

// Done is closed when the write settles.
func (w *Write) Done() <-chan struct{} { return w.done }

// Wait blocks until the write settles or ctx ends.
func (w *Write) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return w.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err is the write's error, nil while pending.
func (w *Write) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// ID is the document id the write touched. For adds it is known only once
// the store has assigned it.
func (w *Write) ID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.id
}

// Skipped reports that the input named nothing to write.
func (w *Write) Skipped() bool { return w.skipped }
