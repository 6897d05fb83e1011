package progress_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/frontier-design/projectory-web-to-print/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBroker is an in-process pub/sub with Redis semantics: no backlog,
// slow receivers lose messages, publish returns the number of receivers.
type fakeBroker struct {
	mu      sync.Mutex
	subs    map[string][]chan []byte
	failSub error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{subs: make(map[string][]chan []byte)}
}

func (b *fakeBroker) Publish(_ context.Context, channel string, payload []byte) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return int64(len(b.subs[channel])), nil
}

func (b *fakeBroker) Subscribe(_ context.Context, channel string) (<-chan []byte, func() error, error) {
	if b.failSub != nil {
		return nil, nil, b.failSub
	}
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	stop := func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[channel]
		for i, c := range list {
			if c == ch {
				b.subs[channel] = append(list[:i], list[i+1:]...)
				close(ch)
				break
			}
		}
		return nil
	}
	return ch, stop, nil
}

func (b *fakeBroker) NumSubscribers(_ context.Context, channel string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.subs[channel])), nil
}

var _ progress.Broker = (*fakeBroker)(nil)

func waitForEvents(t *testing.T, rec *recorder, n int) []progress.Event {
	t.Helper()
	require.Eventually(t, func() bool { return len(rec.snapshot()) >= n }, time.Second, 5*time.Millisecond)
	return rec.snapshot()
}

// stalledBroker never completes a publish until released.
type stalledBroker struct {
	*fakeBroker
	release chan struct{}
}

func (b *stalledBroker) Publish(ctx context.Context, _ string, _ []byte) (int64, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return 0, errors.New("publish stalled")
}

func newRedisRegistry(t *testing.T, broker progress.Broker) *progress.RedisRegistry {
	t.Helper()
	reg := progress.NewRedisRegistry(broker)
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

// --- RedisRegistry ---

func TestRedisRegistry_EmitWithoutSubscriberIsDropped(t *testing.T) {
	broker := newFakeBroker()
	early := progress.NewRedisRegistry(broker)
	early.Emit("job-1", progress.EventStart, "Starting PDF generation...", nil)
	require.NoError(t, early.Close())
	assert.False(t, early.HasSubscriber("job-1"))

	streaming := newRedisRegistry(t, broker)
	generating := newRedisRegistry(t, broker)
	rec := &recorder{}
	streaming.Register("job-1", rec)
	require.True(t, generating.Emit("job-1", progress.EventProgress, "Loading fonts...", nil))

	events := waitForEvents(t, rec, 1)
	require.Len(t, events, 1)
	assert.Equal(t, progress.EventProgress, events[0].Type)
}

func TestRedisRegistry_EmitRejectsBlankInput(t *testing.T) {
	reg := newRedisRegistry(t, newFakeBroker())

	assert.False(t, reg.Emit("", progress.EventStart, "x", nil))
	assert.False(t, reg.Emit("job-1", "", "x", nil))
}

func TestRedisRegistry_CrossInstanceDelivery(t *testing.T) {
	broker := newFakeBroker()
	streaming := newRedisRegistry(t, broker)
	generating := newRedisRegistry(t, broker)

	rec := &recorder{}
	streaming.Register("job-1", rec)

	assert.True(t, generating.HasSubscriber("job-1"))
	assert.True(t, generating.Emit("job-1", progress.EventImageProgress, "Generated image 1/3", map[string]any{"current": 1, "total": 3}))

	events := waitForEvents(t, rec, 1)
	assert.Equal(t, progress.EventImageProgress, events[0].Type)
	assert.Equal(t, float64(3), events[0].Data["total"])
}

func TestRedisRegistry_LastWriterWins(t *testing.T) {
	broker := newFakeBroker()
	reg := newRedisRegistry(t, broker)
	first, second := &recorder{}, &recorder{}
	reg.Register("job-1", first)
	reg.Register("job-1", second)

	require.True(t, reg.Emit("job-1", progress.EventProgress, "hello", nil))

	waitForEvents(t, second, 1)
	assert.Empty(t, first.snapshot())
	n, _ := broker.NumSubscribers(context.Background(), progress.ChannelName("job-1"))
	assert.Equal(t, int64(1), n)
}

func TestRedisRegistry_UnregisterAndDetach(t *testing.T) {
	broker := newFakeBroker()
	reg := newRedisRegistry(t, broker)
	stale, current := &recorder{}, &recorder{}
	reg.Register("job-1", stale)
	reg.Register("job-1", current)

	reg.Detach("job-1", stale)
	assert.True(t, reg.HasSubscriber("job-1"))

	reg.Unregister("job-1")
	reg.Unregister("job-1")
	require.Eventually(t, func() bool { return !reg.HasSubscriber("job-1") }, time.Second, 5*time.Millisecond)
	assert.Empty(t, current.snapshot())
}

func TestRedisRegistry_DetachEndsSubscription(t *testing.T) {
	broker := newFakeBroker()
	reg := newRedisRegistry(t, broker)
	rec := &recorder{}
	reg.Register("job-1", rec)

	require.True(t, reg.Emit("job-1", progress.EventBatchStart, "Starting batch 1/1", nil))
	waitForEvents(t, rec, 1)
	reg.Detach("job-1", rec)

	assert.False(t, reg.HasSubscriber("job-1"))
	n, _ := broker.NumSubscribers(context.Background(), progress.ChannelName("job-1"))
	assert.Zero(t, n)
}

func TestRedisRegistry_TerminalEventSurvivesUnregister(t *testing.T) {
	for i := 0; i < 100; i++ {
		reg := newRedisRegistry(t, newFakeBroker())
		rec := &recorder{}
		reg.Register("job-1", rec)

		em := progress.NewEmitter(reg, "job-1")
		em.Emit(progress.EventComplete, "PDF generation completed!", map[string]any{"successCount": 1})
		em.Done()

		require.Eventually(t, func() bool { return !reg.HasSubscriber("job-1") }, time.Second, time.Millisecond,
			"run %d: binding not released", i)
		events := rec.snapshot()
		require.Len(t, events, 1, "run %d", i)
		assert.Equal(t, progress.EventComplete, events[0].Type)
	}
}

func TestRedisRegistry_JobEndReleasesRemoteStream(t *testing.T) {
	broker := newFakeBroker()
	streaming := newRedisRegistry(t, broker)
	generating := newRedisRegistry(t, broker)

	rec := &recorder{}
	streaming.Register("job-1", rec)
	require.True(t, streaming.HasSubscriber("job-1"))

	em := progress.NewEmitter(generating, "job-1")
	em.Emit(progress.EventComplete, "PDF generation completed!", nil)
	em.Done()

	require.Eventually(t, func() bool { return !streaming.HasSubscriber("job-1") }, time.Second, 5*time.Millisecond)
	events := rec.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, progress.EventComplete, events[0].Type)
}

func TestRedisRegistry_EmitDoesNotWaitOnBroker(t *testing.T) {
	broker := &stalledBroker{fakeBroker: newFakeBroker(), release: make(chan struct{})}
	reg := progress.NewRedisRegistry(broker)
	t.Cleanup(func() {
		close(broker.release)
		_ = reg.Close()
	})

	start := time.Now()
	accepted, dropped := 0, 0
	for i := 0; i < 1000; i++ {
		if reg.Emit("job-1", progress.EventImageProgress, "Generated image", nil) {
			accepted++
		} else {
			dropped++
		}
	}

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Positive(t, accepted)
	assert.Positive(t, dropped)
}

func TestRedisRegistry_CloseStopsAcceptingEvents(t *testing.T) {
	reg := progress.NewRedisRegistry(newFakeBroker())

	require.NoError(t, reg.Close())
	require.NoError(t, reg.Close())
	assert.False(t, reg.Emit("job-1", progress.EventProgress, "x", nil))
}

func TestRedisRegistry_SubscribeFailure(t *testing.T) {
	broker := newFakeBroker()
	broker.failSub = errors.New("redis down")
	reg := newRedisRegistry(t, broker)

	reg.Register("job-1", &recorder{})

	assert.False(t, reg.HasSubscriber("job-1"))
}
