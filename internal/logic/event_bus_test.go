package logic_test

import (
	"testing"
	"time"

	"github.com/pccr10001/smsnotify/internal/logic"
	"github.com/pccr10001/smsnotify/internal/sms"
	"github.com/pccr10001/smsnotify/internal/worker"
)

func TestEventBus(t *testing.T) {
	bus := logic.NewEventBus(1)
	events, unsubscribe := bus.Subscribe()

	job := worker.Job{ID: "j1", Destination: "+40722000000", EnqueuedAt: time.Now()}
	bus.Delivered(job, sms.Result{Error: "boom", Attempts: 2})
	// Buffer is full; this one is dropped instead of blocking.
	bus.Queued(job)

	select {
	case ev := <-events:
		if ev.Type != logic.EventFailed || ev.JobID != "j1" || ev.Data["error"] != "boom" {
			t.Errorf("unexpected event: %+v", ev)
		}
		if ev.Timestamp.IsZero() {
			t.Error("timestamp should be set")
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	select {
	case ev := <-events:
		t.Errorf("expected the second event to be dropped, got %+v", ev)
	default:
	}

	unsubscribe()
	unsubscribe()
	if bus.Subscribers() != 0 {
		t.Errorf("expected no subscribers, got %d", bus.Subscribers())
	}
	if _, ok := <-events; ok {
		t.Error("channel should be closed after unsubscribe")
	}
	bus.Publish(logic.Event{Type: logic.EventModem})
}
