package queue

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reflexsoar/reflex-agent-go/internal/event"
)

func mustEvent(t *testing.T, title string) *event.Event {
	t.Helper()
	e, err := event.NewFromObservables(title, "", "", "test", 1, 0, nil, nil)
	require.NoError(t, err)
	return e
}

func TestPushDrainFIFOOrder(t *testing.T) {
	q := NewEventQueue(0)
	e1, e2, e3 := mustEvent(t, "a"), mustEvent(t, "b"), mustEvent(t, "c")
	q.Push(e1)
	q.Push(e2)
	q.Push(e3)

	batch := q.Drain(2)
	require.Len(t, batch, 2)
	assert.Equal(t, "a", batch[0].Title)
	assert.Equal(t, "b", batch[1].Title)
	assert.Equal(t, 1, q.Size())

	rest := q.Drain(10)
	require.Len(t, rest, 1)
	assert.Equal(t, "c", rest[0].Title)
}

func TestDrainMoreThanAvailable(t *testing.T) {
	q := NewEventQueue(0)
	q.Push(mustEvent(t, "only"))
	batch := q.Drain(50)
	assert.Len(t, batch, 1)
	assert.Equal(t, 0, q.Size())
}

type fakeSender struct {
	mu      sync.Mutex
	batches [][]json.RawMessage
	fail    bool
}

func (f *fakeSender) BulkEvents(_ context.Context, events []json.RawMessage) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, events)
	return !f.fail, nil
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func TestSpoolerDrainsAndSends(t *testing.T) {
	q := NewEventQueue(0)
	for i := 0; i < 5; i++ {
		q.Push(mustEvent(t, "evt"))
	}
	sender := &fakeSender{}
	sp := NewSpooler(q, sender, 2, nil)

	ctx, cancel := context.WithCancel(context.Background())
	sp.Start(ctx)

	require.Eventually(t, func() bool {
		return q.Size() == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	sp.Stop(false)
	assert.GreaterOrEqual(t, sender.callCount(), 3)
}

func TestSpoolerStopBlocksUntilExit(t *testing.T) {
	q := NewEventQueue(0)
	sp := NewSpooler(q, &fakeSender{}, 10, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sp.Start(ctx)

	sp.Stop(false)
	select {
	case <-sp.Done():
	default:
		t.Fatal("expected spooler to have exited after Stop")
	}
}
