package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbittq01/vehicle-manage/message"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func commandEnvelope(kind message.Kind) *message.Envelope {
	return &message.Envelope{
		Type:      kind,
		Data:      &message.RawPayload{MessageKind: kind, Fields: map[string]any{}},
		Timestamp: "2026-08-23T10:00:00Z",
	}
}

func TestDispatchInvokesRegisteredHandler(t *testing.T) {
	d := NewDispatcher(testLogger())

	var mu sync.Mutex
	var gotKinds []message.Kind
	handler := func(_ context.Context, payload message.Payload, env *message.Envelope) error {
		mu.Lock()
		defer mu.Unlock()
		gotKinds = append(gotKinds, payload.Kind())
		assert.Equal(t, env.Type, payload.Kind())
		return nil
	}
	require.NoError(t, d.Register(message.KindStartProcessing, handler))

	require.NoError(t, d.Start(context.Background()))
	d.Enqueue(context.Background(), commandEnvelope(message.KindStartProcessing))
	require.NoError(t, d.Stop(time.Second))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, gotKinds, 1)
	assert.Equal(t, message.KindStartProcessing, gotKinds[0])
	assert.Equal(t, int64(1), d.Snapshot().Dispatched)
}

func TestUnmatchedKindIsDroppedSilently(t *testing.T) {
	d := NewDispatcher(testLogger())
	require.NoError(t, d.Start(context.Background()))

	d.Enqueue(context.Background(), commandEnvelope("rotate_camera"))
	require.NoError(t, d.Stop(time.Second))

	stats := d.Snapshot()
	assert.Equal(t, int64(1), stats.Unmatched)
	assert.Equal(t, int64(0), stats.Failed)
}

func TestHandlerErrorDoesNotStopDispatch(t *testing.T) {
	d := NewDispatcher(testLogger())

	var mu sync.Mutex
	calls := 0
	require.NoError(t, d.Register(message.KindGetStatus,
		func(context.Context, message.Payload, *message.Envelope) error {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls == 1 {
				return fmt.Errorf("status snapshot unavailable")
			}
			return nil
		}))

	require.NoError(t, d.Start(context.Background()))
	d.Enqueue(context.Background(), commandEnvelope(message.KindGetStatus))
	d.Enqueue(context.Background(), commandEnvelope(message.KindGetStatus))
	require.NoError(t, d.Stop(time.Second))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(1), d.Snapshot().Failed)
	assert.Equal(t, int64(1), d.Snapshot().Dispatched)
}

func TestFramesHandledInArrivalOrder(t *testing.T) {
	d := NewDispatcher(testLogger())

	var mu sync.Mutex
	var order []string
	record := func(name string) HandlerFunc {
		return func(context.Context, message.Payload, *message.Envelope) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}
	require.NoError(t, d.Register(message.KindStartProcessing, record("start")))
	require.NoError(t, d.Register(message.KindStopProcessing, record("stop")))
	require.NoError(t, d.Register(message.KindGetStatus, record("status")))

	require.NoError(t, d.Start(context.Background()))
	kinds := []message.Kind{
		message.KindStartProcessing,
		message.KindGetStatus,
		message.KindStopProcessing,
		message.KindGetStatus,
	}
	for _, k := range kinds {
		d.Enqueue(context.Background(), commandEnvelope(k))
	}
	require.NoError(t, d.Stop(time.Second))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"start", "status", "stop", "status"}, order)
}

func TestDuplicateRegistrationRejected(t *testing.T) {
	d := NewDispatcher(testLogger())
	noop := func(context.Context, message.Payload, *message.Envelope) error { return nil }

	require.NoError(t, d.Register(message.KindStartProcessing, noop))
	assert.Error(t, d.Register(message.KindStartProcessing, noop))
}

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	d := NewDispatcher(testLogger(), WithQueueSize(1))
	require.NoError(t, d.Register(message.KindGetStatus,
		func(context.Context, message.Payload, *message.Envelope) error {
			<-block
			return nil
		}))

	require.NoError(t, d.Start(context.Background()))

	// Fill the worker and the queue, then overflow
	d.Enqueue(context.Background(), commandEnvelope(message.KindGetStatus))
	waitForQueueDrain(t, d)
	d.Enqueue(context.Background(), commandEnvelope(message.KindGetStatus))
	d.Enqueue(context.Background(), commandEnvelope(message.KindGetStatus))

	assert.Equal(t, int64(1), d.Snapshot().Dropped)

	close(block)
	require.NoError(t, d.Stop(time.Second))
}

func waitForQueueDrain(t *testing.T, d *Dispatcher) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if d.pool.Stats().QueueDepth == 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("queue did not drain")
}
