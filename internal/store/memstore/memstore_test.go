package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idilsaglam/livetodo/internal/store"
)

const coll = "todo-list"

func TestCreateFetchDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	id, err := s.Create(ctx, coll, []byte(`{"content":"a"}`))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	docs, err := s.FetchAll(ctx, coll)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, id, docs[0].ID)
	assert.JSONEq(t, `{"content":"a"}`, string(docs[0].Data))

	require.NoError(t, s.Delete(ctx, coll, id))
	docs, err = s.FetchAll(ctx, coll)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestDeleteMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	_, err := s.Create(ctx, coll, []byte(`{}`))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, coll, "nope"))
	docs, err := s.FetchAll(ctx, coll)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestSetUpserts(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	require.NoError(t, s.Set(ctx, coll, "x", []byte(`{"v":1}`)))
	require.NoError(t, s.Set(ctx, coll, "x", []byte(`{"v":2}`)))

	docs, err := s.FetchAll(ctx, coll)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.JSONEq(t, `{"v":2}`, string(docs[0].Data))

	assert.Error(t, s.Set(ctx, coll, "", []byte(`{}`)))
}

func TestCollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	_, err := s.Create(ctx, "a", []byte(`{}`))
	require.NoError(t, err)

	docs, err := s.FetchAll(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestSubscribeDeliversSnapshots(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New()
	defer s.Close()

	snaps := make(chan []store.Document, 16)
	sub, err := s.Subscribe(ctx, coll, func(docs []store.Document) { snaps <- docs }, nil)
	require.NoError(t, err)
	defer sub.Stop()

	first := recv(t, snaps)
	assert.Empty(t, first)

	id, err := s.Create(ctx, coll, []byte(`{"content":"milk"}`))
	require.NoError(t, err)
	got := waitFor(t, snaps, func(docs []store.Document) bool { return len(docs) == 1 })
	assert.Equal(t, id, got[0].ID)

	require.NoError(t, s.Delete(ctx, coll, id))
	waitFor(t, snaps, func(docs []store.Document) bool { return len(docs) == 0 })
}

func TestStopEndsDelivery(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	snaps := make(chan []store.Document, 16)
	sub, err := s.Subscribe(ctx, coll, func(docs []store.Document) { snaps <- docs }, nil)
	require.NoError(t, err)
	recv(t, snaps)

	sub.Stop()
	sub.Stop()

	_, err = s.Create(ctx, coll, []byte(`{}`))
	require.NoError(t, err)

	select {
	case docs := <-snaps:
		t.Fatalf("unexpected snapshot after stop: %v", docs)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClosedStoreRejectsWrites(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Create(context.Background(), coll, []byte(`{}`))
	assert.ErrorIs(t, err, store.ErrClosed)
	_, err = s.Subscribe(context.Background(), coll, func([]store.Document) {}, nil)
	assert.ErrorIs(t, err, store.ErrClosed)
}

func recv(t *testing.T, ch <-chan []store.Document) []store.Document {
	t.Helper()
	select {
	case docs := <-ch:
		return docs
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func waitFor(t *testing.T, ch <-chan []store.Document, ok func([]store.Document) bool) []store.Document {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case docs := <-ch:
			if ok(docs) {
				return docs
			}
		case <-deadline:
			t.Fatal("timed out waiting for matching snapshot")
			return nil
		}
	}
}
