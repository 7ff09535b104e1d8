package natskv

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idilsaglam/livetodo/internal/store"
)

func TestReplicaTracksPutsAndDeletes(t *testing.T) {
	r := newReplica()
	assert.Empty(t, r.snapshot())

	r.apply(jetstream.KeyValuePut, "b", []byte(`{"content":"b"}`))
	r.apply(jetstream.KeyValuePut, "a", []byte(`{"content":"a"}`))
	r.apply(jetstream.KeyValuePut, "b", []byte(`{"content":"b2"}`))

	snap := r.snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].ID)
	assert.Equal(t, "b", snap[1].ID)
	assert.Equal(t, `{"content":"b2"}`, string(snap[1].Data))

	r.apply(jetstream.KeyValueDelete, "a", nil)
	r.apply(jetstream.KeyValuePurge, "missing", nil)
	snap = r.snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "b", snap[0].ID)
}

func TestReplicaSnapshotIsACopy(t *testing.T) {
	r := newReplica()
	value := []byte(`{"x":1}`)
	r.apply(jetstream.KeyValuePut, "k", value)
	value[2] = 'y'

	snap := r.snapshot()
	snap[0].Data[2] = 'z'
	assert.Equal(t, `{"x":1}`, string(r.snapshot()[0].Data))
}

func TestClosedStore(t *testing.T) {
	s := &Store{}
	_, err := s.FetchAll(context.Background(), "todo-list")
	assert.ErrorIs(t, err, store.ErrClosed)
	assert.NoError(t, s.Close())
}

// startServer runs an in-process JetStream server for the test.
func startServer(t *testing.T) string {
	t.Helper()
	ns, err := server.NewServer(&server.Options{
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	require.NoError(t, err)
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("embedded NATS server failed to start")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns.ClientURL()
}

func connect(t *testing.T) *Store {
	t.Helper()
	url := startServer(t)
	s, err := Connect(context.Background(), Options{URL: url})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFetchAllEmpty(t *testing.T) {
	s := connect(t)
	docs, err := s.FetchAll(context.Background(), "todo-list")
	require.NoError(t, err)
	require.NotNil(t, docs)
	assert.Empty(t, docs)
}

func TestCreateSetFetch(t *testing.T) {
	ctx := context.Background()
	s := connect(t)

	id, err := s.Create(ctx, "todo-list", []byte(`{"content":"a"}`))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, s.Set(ctx, "todo-list", id, []byte(`{"content":"a","completed":true}`)))
	require.NoError(t, s.Set(ctx, "todo-list", "fixed", []byte(`{"content":"b"}`)))

	docs, err := s.FetchAll(ctx, "todo-list")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	byID := map[string]string{}
	for _, d := range docs {
		byID[d.ID] = string(d.Data)
	}
	assert.Equal(t, `{"content":"a","completed":true}`, byID[id])
	assert.Equal(t, `{"content":"b"}`, byID["fixed"])
}

func TestDeleteMissingIsNotAnError(t *testing.T) {
	ctx := context.Background()
	s := connect(t)

	id, err := s.Create(ctx, "todo-list", []byte(`{}`))
	require.NoError(t, err)

	assert.NoError(t, s.Delete(ctx, "todo-list", "nope"))
	assert.NoError(t, s.Delete(ctx, "todo-list", "has space"))
	assert.NoError(t, s.Delete(ctx, "todo-list", ""))

	require.NoError(t, s.Delete(ctx, "todo-list", id))
	assert.NoError(t, s.Delete(ctx, "todo-list", id))

	docs, err := s.FetchAll(ctx, "todo-list")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestSubscribeDeliversSnapshots(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := connect(t)

	snaps := make(chan []store.Document, 16)
	sub, err := s.Subscribe(ctx, "todo-list",
		func(docs []store.Document) { snaps <- docs },
		func(err error) { t.Errorf("subscription error: %v", err) },
	)
	require.NoError(t, err)
	defer sub.Stop()

	next := func() []store.Document {
		t.Helper()
		select {
		case docs := <-snaps:
			return docs
		case <-time.After(5 * time.Second):
			t.Fatal("no snapshot")
			return nil
		}
	}

	assert.Empty(t, next(), "initial snapshot")

	id, err := s.Create(ctx, "todo-list", []byte(`{"content":"a"}`))
	require.NoError(t, err)
	docs := next()
	require.Len(t, docs, 1)
	assert.Equal(t, id, docs[0].ID)

	require.NoError(t, s.Set(ctx, "todo-list", id, []byte(`{"content":"b"}`)))
	docs = next()
	require.Len(t, docs, 1)
	assert.Equal(t, `{"content":"b"}`, string(docs[0].Data))

	require.NoError(t, s.Delete(ctx, "todo-list", id))
	assert.Empty(t, next())
}

func TestSubscribeReplaysExistingKeys(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := connect(t)

	_, err := s.Create(ctx, "todo-list", []byte(`{"content":"a"}`))
	require.NoError(t, err)
	_, err = s.Create(ctx, "todo-list", []byte(`{"content":"b"}`))
	require.NoError(t, err)

	snaps := make(chan []store.Document, 16)
	sub, err := s.Subscribe(ctx, "todo-list", func(docs []store.Document) { snaps <- docs }, nil)
	require.NoError(t, err)
	defer sub.Stop()

	select {
	case docs := <-snaps:
		assert.Len(t, docs, 2)
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot")
	}
}

func TestOperationsAfterClose(t *testing.T) {
	ctx := context.Background()
	s := connect(t)
	require.NoError(t, s.Close())

	_, err := s.Create(ctx, "todo-list", []byte(`{}`))
	assert.ErrorIs(t, err, store.ErrClosed)
	_, err = s.FetchAll(ctx, "todo-list")
	assert.ErrorIs(t, err, store.ErrClosed)
}
