package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Broker is the pub/sub transport a RedisRegistry needs.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)
	// Subscribe returns a message stream and a func that ends the subscription.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error)
	NumSubscribers(ctx context.Context, channel string) (int64, error)
}

const (
	brokerOpTimeout  = 2 * time.Second
	publishQueueSize = 256
	// unregisterGrace bounds how long a local binding waits for its job-end
	// marker before the subscription is dropped anyway.
	unregisterGrace = 5 * time.Second
	closeTimeout    = 5 * time.Second
)

// eventJobEnd travels on the job's channel after its last event. It is
// consumed by the registry and never delivered to subscribers.
const eventJobEnd EventType = "job-end"

// ChannelName is the pub/sub channel carrying events for jobID.
func ChannelName(jobID string) string {
	return fmt.Sprintf("progress:%s", jobID)
}

// RedisRegistry fans progress events out over a Broker so the instance
// running a job and the instance holding the stream need not be the same.
// Last writer wins per instance; each instance keeps at most one local
// subscriber per job ID.
//
// Emit never waits on the broker. Events go through a bounded queue that a
// single goroutine publishes in order; when the queue is full the event is
// dropped.
type RedisRegistry struct {
	broker Broker

	mu    sync.Mutex
	local map[string]*remoteBinding
	now   func() time.Time

	qmu     sync.RWMutex
	queue   chan outbound
	closed  bool
	stopped chan struct{}
}

type outbound struct {
	jobID   string
	typ     EventType
	payload []byte
}

type remoteBinding struct {
	sub  Subscriber
	stop func() error
	once sync.Once
}

// NewRedisRegistry creates a RedisRegistry over broker and starts its
// publisher. Call Close to stop it.
func NewRedisRegistry(broker Broker) *RedisRegistry {
	r := &RedisRegistry{
		broker:  broker,
		local:   make(map[string]*remoteBinding),
		now:     time.Now,
		queue:   make(chan outbound, publishQueueSize),
		stopped: make(chan struct{}),
	}
	go r.publishLoop()
	return r
}

func (r *RedisRegistry) Register(jobID string, sub Subscriber) {
	if jobID == "" || sub == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), brokerOpTimeout)
	defer cancel()
	msgs, stop, err := r.broker.Subscribe(ctx, ChannelName(jobID))
	if err != nil {
		slog.Error("progress subscribe failed", "job_id", jobID, "error", err)
		return
	}

	b := &remoteBinding{sub: sub, stop: stop}

	r.mu.Lock()
	prev := r.local[jobID]
	r.local[jobID] = b
	r.mu.Unlock()

	if prev != nil {
		prev.unsubscribe(jobID)
	}

	go r.forward(jobID, b, msgs)
}

// forward pushes broker messages to the local subscriber until the broker
// closes msgs. Unsubscribing only ends the subscription, so messages that
// already arrived are still delivered.
func (r *RedisRegistry) forward(jobID string, b *remoteBinding, msgs <-chan []byte) {
	for payload := range msgs {
		var e Event
		if err := json.Unmarshal(payload, &e); err != nil {
			slog.Warn("dropping malformed progress payload", "job_id", jobID, "error", err)
			continue
		}
		if e.Type == eventJobEnd {
			r.release(jobID, b)
			continue
		}
		deliver(jobID, b.sub, e)
	}
}

func (b *remoteBinding) unsubscribe(jobID string) {
	b.once.Do(func() {
		if err := b.stop(); err != nil {
			slog.Warn("progress unsubscribe failed", "job_id", jobID, "error", err)
		}
	})
}

// release drops b if it is still the local binding for jobID and ends its
// subscription either way.
func (r *RedisRegistry) release(jobID string, b *remoteBinding) {
	r.mu.Lock()
	if r.local[jobID] == b {
		delete(r.local, jobID)
	}
	r.mu.Unlock()
	b.unsubscribe(jobID)
}

// Unregister ends the job on every instance. A job-end marker is queued
// behind the job's pending events; each instance drops its binding when the
// marker arrives. A local binding is dropped after unregisterGrace if the
// marker never makes it back.
func (r *RedisRegistry) Unregister(jobID string) {
	if jobID == "" {
		return
	}
	payload, _ := json.Marshal(map[string]string{"type": string(eventJobEnd)})
	r.enqueue(outbound{jobID: jobID, typ: eventJobEnd, payload: payload})

	r.mu.Lock()
	b := r.local[jobID]
	delete(r.local, jobID)
	r.mu.Unlock()

	if b != nil {
		time.AfterFunc(unregisterGrace, func() { b.unsubscribe(jobID) })
	}
}

func (r *RedisRegistry) Detach(jobID string, sub Subscriber) {
	r.mu.Lock()
	b := r.local[jobID]
	if b == nil || !sameSubscriber(b.sub, sub) {
		r.mu.Unlock()
		return
	}
	delete(r.local, jobID)
	r.mu.Unlock()

	b.unsubscribe(jobID)
}

func (r *RedisRegistry) HasSubscriber(jobID string) bool {
	r.mu.Lock()
	_, ok := r.local[jobID]
	r.mu.Unlock()
	if ok {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), brokerOpTimeout)
	defer cancel()
	n, err := r.broker.NumSubscribers(ctx, ChannelName(jobID))
	if err != nil {
		slog.Warn("progress subscriber lookup failed", "job_id", jobID, "error", err)
		return false
	}
	return n > 0
}

// Emit queues the event for publishing. It reports whether the event was
// accepted; whether anyone receives it is only known to the publisher,
// which logs events nobody was listening for.
func (r *RedisRegistry) Emit(jobID string, typ EventType, message string, data map[string]any) bool {
	if jobID == "" || typ == "" {
		slog.Warn("progress emit rejected", "job_id", jobID, "type", typ)
		return false
	}

	payload, err := json.Marshal(Event{
		Type:      typ,
		Message:   message,
		Timestamp: r.now(),
		Data:      data,
	})
	if err != nil {
		slog.Error("progress event encode failed", "job_id", jobID, "type", typ, "error", err)
		return false
	}
	return r.enqueue(outbound{jobID: jobID, typ: typ, payload: payload})
}

func (r *RedisRegistry) enqueue(msg outbound) bool {
	r.qmu.RLock()
	defer r.qmu.RUnlock()
	if r.closed {
		return false
	}
	select {
	case r.queue <- msg:
		return true
	default:
		slog.Warn("progress publish queue full, dropping event", "job_id", msg.jobID, "type", msg.typ)
		return false
	}
}

func (r *RedisRegistry) publishLoop() {
	defer close(r.stopped)
	for msg := range r.queue {
		r.publish(msg)
	}
}

func (r *RedisRegistry) publish(msg outbound) {
	ctx, cancel := context.WithTimeout(context.Background(), brokerOpTimeout)
	defer cancel()
	n, err := r.broker.Publish(ctx, ChannelName(msg.jobID), msg.payload)
	if err != nil {
		slog.Warn("progress publish failed", "job_id", msg.jobID, "type", msg.typ, "error", err)
		return
	}
	if n == 0 && msg.typ != eventJobEnd {
		slog.Debug("no progress subscriber", "job_id", msg.jobID, "type", msg.typ)
	}
}

// Close stops accepting events and waits up to closeTimeout for queued ones
// to be published.
func (r *RedisRegistry) Close() error {
	r.qmu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.qmu.Unlock()

	select {
	case <-r.stopped:
		return nil
	case <-time.After(closeTimeout):
		return fmt.Errorf("progress publisher did not drain within %s", closeTimeout)
	}
}

var _ Registry = (*RedisRegistry)(nil)
