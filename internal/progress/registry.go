package progress

import (
	"log/slog"
	"sync"
	"time"
)

// Registry correlates job IDs with their current subscriber. A single
// process-lifetime instance is shared by the generation handler and the
// status stream handler.
type Registry interface {
	// Register binds sub to jobID, replacing any previous subscriber.
	Register(jobID string, sub Subscriber)
	// Unregister drops whatever subscriber is bound to jobID.
	Unregister(jobID string)
	// Detach drops the binding only if sub is still the current subscriber,
	// so a stale stream closing cannot evict its replacement.
	Detach(jobID string, sub Subscriber)
	HasSubscriber(jobID string) bool
	// Emit publishes an event without blocking. It returns false when no
	// subscriber is registered or delivery was refused.
	Emit(jobID string, typ EventType, message string, data map[string]any) bool
}

type registration struct {
	sub       Subscriber
	startTime time.Time
}

// MemoryRegistry is a Registry for a single server process.
type MemoryRegistry struct {
	mu   sync.RWMutex
	subs map[string]registration
	now  func() time.Time
}

// NewMemoryRegistry creates an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		subs: make(map[string]registration),
		now:  time.Now,
	}
}

func (r *MemoryRegistry) Register(jobID string, sub Subscriber) {
	if jobID == "" || sub == nil {
		return
	}
	r.mu.Lock()
	r.subs[jobID] = registration{sub: sub, startTime: r.now()}
	r.mu.Unlock()
}

func (r *MemoryRegistry) Unregister(jobID string) {
	r.mu.Lock()
	delete(r.subs, jobID)
	r.mu.Unlock()
}

func (r *MemoryRegistry) Detach(jobID string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg, ok := r.subs[jobID]; ok && sameSubscriber(reg.sub, sub) {
		delete(r.subs, jobID)
	}
}

func (r *MemoryRegistry) HasSubscriber(jobID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[jobID]
	return ok
}

func (r *MemoryRegistry) Emit(jobID string, typ EventType, message string, data map[string]any) bool {
	if jobID == "" || typ == "" {
		slog.Warn("progress emit rejected", "job_id", jobID, "type", typ)
		return false
	}

	r.mu.RLock()
	reg, ok := r.subs[jobID]
	r.mu.RUnlock()
	if !ok {
		slog.Debug("no progress subscriber", "job_id", jobID, "type", typ)
		return false
	}

	return deliver(jobID, reg.sub, Event{
		Type:      typ,
		Message:   message,
		Timestamp: r.now(),
		Data:      data,
	})
}

// deliver hands e to sub and converts a panicking subscriber into a refusal.
func deliver(jobID string, sub Subscriber, e Event) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("progress subscriber panicked", "job_id", jobID, "type", e.Type, "error", rec)
			ok = false
		}
	}()
	if !sub.Send(e) {
		slog.Warn("progress event not delivered", "job_id", jobID, "type", e.Type)
		return false
	}
	return true
}

// sameSubscriber compares subscribers by identity. Non-comparable dynamic
// types (such as SubscriberFunc) never match.
func sameSubscriber(a, b Subscriber) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

// Compile-time check that MemoryRegistry implements Registry.
var _ Registry = (*MemoryRegistry)(nil)
