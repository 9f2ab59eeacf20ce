package logic

import (
	"sync"
	"time"

	"github.com/pccr10001/smsnotify/internal/sms"
	"github.com/pccr10001/smsnotify/internal/worker"
	"github.com/pccr10001/smsnotify/pkg/logger"
)

const (
	EventQueued    = "queued"
	EventDelivered = "delivered"
	EventFailed    = "failed"
	EventModem     = "modem"
)

// Event is what live subscribers receive.
type Event struct {
	Type      string         `json:"type"`
	JobID     string         `json:"job_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventBus fans events out to subscribers. Slow subscribers miss events
// rather than holding up the publisher.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	buffer      int
}

func NewEventBus(buffer int) *EventBus {
	if buffer <= 0 {
		buffer = 64
	}
	return &EventBus{subscribers: make(map[chan Event]struct{}), buffer: buffer}
}

// Subscribe returns the event channel and a func that unsubscribes and
// closes it.
func (b *EventBus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *EventBus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			logger.Log.Debugf("Event subscriber is slow, dropping %s event", ev.Type)
		}
	}
}

func (b *EventBus) Queued(job worker.Job) {
	b.Publish(Event{
		Type:  EventQueued,
		JobID: job.ID,
		Data: map[string]any{
			"destination": job.Destination,
			"source":      job.Source,
		},
	})
}

func (b *EventBus) Delivered(job worker.Job, res sms.Result) {
	typ := EventDelivered
	if !res.Success {
		typ = EventFailed
	}
	data := map[string]any{
		"destination": job.Destination,
		"source":      job.Source,
		"attempts":    res.Attempts,
		"waited_ms":   time.Since(job.EnqueuedAt).Milliseconds(),
	}
	if res.Success {
		data["message_id"] = res.MessageID
	} else {
		data["error"] = res.Error
	}
	b.Publish(Event{Type: typ, JobID: job.ID, Data: data})
}
