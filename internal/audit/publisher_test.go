package audit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certgate/internal/audit"
	auditmem "certgate/internal/audit/store/memory"
)

func TestPublisher_Sync(t *testing.T) {
	store := auditmem.New()
	p := audit.NewPublisher(store)

	err := p.Emit(context.Background(), audit.Event{
		Actor:       "alice",
		Fingerprint: "fp-1",
		Stage:       audit.StageIssuance,
		Decision:    audit.DecisionIssued,
	})
	require.NoError(t, err)

	events := store.All()
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].ID)
	assert.False(t, events[0].Timestamp.IsZero())
	assert.Equal(t, "alice", events[0].Actor)
}

func TestPublisher_PreservesCallerIDAndTimestamp(t *testing.T) {
	store := auditmem.New()
	p := audit.NewPublisher(store)

	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := p.Emit(context.Background(), audit.Event{
		ID:        "fixed-id",
		Timestamp: stamp,
	})
	require.NoError(t, err)

	events := store.All()
	require.Len(t, events, 1)
	assert.Equal(t, "fixed-id", events[0].ID)
	assert.Equal(t, stamp, events[0].Timestamp)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := auditmem.New()
	p := audit.NewPublisher(store, audit.WithAsyncBuffer(64))

	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, p.Emit(context.Background(), audit.Event{Fingerprint: "fp-1"}))
	}
	p.Close()

	assert.Len(t, store.All(), n)

	// double close is safe
	p.Close()
}

func TestPublisher_EmitAfterCloseWritesThrough(t *testing.T) {
	store := auditmem.New()
	p := audit.NewPublisher(store, audit.WithAsyncBuffer(8))

	require.NoError(t, p.Emit(context.Background(), audit.Event{ID: "before"}))
	p.Close()

	require.NoError(t, p.Emit(context.Background(), audit.Event{ID: "after"}))

	events := store.All()
	require.Len(t, events, 2)
	assert.Equal(t, "after", events[1].ID)
}

// blockingSink signals when a write starts and holds it until released, to
// force a full queue deterministically.
type blockingSink struct {
	store   *auditmem.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingSink) Record(ctx context.Context, event audit.Event) error {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.release
	return s.store.Record(ctx, event)
}

func (s *blockingSink) Release() {
	s.once.Do(func() { close(s.release) })
}

func TestPublisher_FullQueueFallsBackToSyncWrite(t *testing.T) {
	sink := &blockingSink{
		store:   auditmem.New(),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	p := audit.NewPublisher(sink, audit.WithAsyncBuffer(1))

	// first event occupies the worker...
	require.NoError(t, p.Emit(context.Background(), audit.Event{ID: "queued-1"}))
	<-sink.entered
	// ...second fills the buffer
	require.NoError(t, p.Emit(context.Background(), audit.Event{ID: "queued-2"}))

	// the third cannot queue; Emit must write through instead of dropping
	done := make(chan error, 1)
	go func() {
		done <- p.Emit(context.Background(), audit.Event{ID: "sync-3"})
	}()

	select {
	case <-done:
		t.Fatal("write-through completed while the sink was blocked")
	case <-time.After(20 * time.Millisecond):
	}

	sink.Release()
	require.NoError(t, <-done)
	p.Close()

	assert.Len(t, sink.store.All(), 3)
}

// failingSink rejects every write.
type failingSink struct{}

func (failingSink) Record(context.Context, audit.Event) error {
	return errors.New("sink unavailable")
}

func TestPublisher_SinkFailureSurfacesInSyncMode(t *testing.T) {
	p := audit.NewPublisher(failingSink{})

	err := p.Emit(context.Background(), audit.Event{})
	require.Error(t, err)
}

func TestPublisher_AsyncSinkFailureDoesNotBlockClose(t *testing.T) {
	p := audit.NewPublisher(failingSink{}, audit.WithAsyncBuffer(8))

	require.NoError(t, p.Emit(context.Background(), audit.Event{}))
	p.Close()
}

func TestMemoryStore_ListByFingerprint(t *testing.T) {
	store := auditmem.New()
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, audit.Event{ID: "1", Fingerprint: "fp-a"}))
	require.NoError(t, store.Record(ctx, audit.Event{ID: "2", Fingerprint: "fp-b"}))
	require.NoError(t, store.Record(ctx, audit.Event{ID: "3", Fingerprint: "fp-a"}))

	matched, err := store.ListByFingerprint(ctx, "fp-a")
	require.NoError(t, err)
	require.Len(t, matched, 2)
	// append order is preserved
	assert.Equal(t, "1", matched[0].ID)
	assert.Equal(t, "3", matched[1].ID)

	none, err := store.ListByFingerprint(ctx, "fp-missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}
