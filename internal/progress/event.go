// Package progress delivers typed job progress events to at most one live
// subscriber per job ID. Delivery is best effort: events emitted while nobody
// is subscribed are dropped, never queued.
package progress

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType enumerates the progress messages a job can produce.
type EventType string

const (
	EventConnected     EventType = "connected"
	EventStart         EventType = "start"
	EventProgress      EventType = "progress"
	EventBatchStart    EventType = "batch-start"
	EventImageGen      EventType = "image-gen"
	EventImageProgress EventType = "image-progress"
	EventImageComplete EventType = "image-complete"
	EventBatchComplete EventType = "batch-complete"
	EventWarning       EventType = "warning"
	EventComplete      EventType = "complete"
	EventError         EventType = "error"
	EventTest          EventType = "test"
)

const timestampLayout = "2006-01-02T15:04:05.000Z"

// Event is one progress message. Data fields are flattened next to type,
// message and timestamp on the wire.
type Event struct {
	Type      EventType
	Message   string
	Timestamp time.Time
	Data      map[string]any
}

func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Data)+3)
	for k, v := range e.Data {
		out[k] = v
	}
	out["type"] = e.Type
	out["message"] = e.Message
	out["timestamp"] = e.Timestamp.UTC().Format(timestampLayout)
	return json.Marshal(out)
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	typ, _ := raw["type"].(string)
	if typ == "" {
		return fmt.Errorf("progress event without type")
	}
	e.Type = EventType(typ)
	e.Message, _ = raw["message"].(string)
	if ts, ok := raw["timestamp"].(string); ok {
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return fmt.Errorf("parse timestamp: %w", err)
		}
		e.Timestamp = parsed
	}
	delete(raw, "type")
	delete(raw, "message")
	delete(raw, "timestamp")
	if len(raw) > 0 {
		e.Data = raw
	} else {
		e.Data = nil
	}
	return nil
}

// Subscriber receives events for one job. Send must not block; it reports
// whether the event was accepted for delivery.
type Subscriber interface {
	Send(Event) bool
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(Event) bool

func (f SubscriberFunc) Send(e Event) bool { return f(e) }
