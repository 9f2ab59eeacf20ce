package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pccr10001/smsnotify/internal/sms"
	"github.com/pccr10001/smsnotify/pkg/logger"
)

var (
	ErrQueueFull   = errors.New("delivery queue is full")
	ErrQueueClosed = errors.New("delivery queue is closed")
)

const DefaultCapacity = 100

// Overflow decides what Enqueue does when the queue is at capacity.
type Overflow string

const (
	OverflowDrop  Overflow = "drop"
	OverflowBlock Overflow = "block"
)

// Job is one accepted notification. It is never modified after Enqueue.
type Job struct {
	ID          string    `json:"id"`
	Destination string    `json:"destination"`
	Text        string    `json:"text"`
	Source      string    `json:"source"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

const DefaultSource = "queue"

type sourceKey struct{}

// WithSource tags jobs enqueued with ctx, e.g. "notification" or "mcp".
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

func sourceFrom(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok && s != "" {
		return s
	}
	return DefaultSource
}

// Sender delivers one message synchronously. *sms.Engine implements it.
type Sender interface {
	Send(ctx context.Context, destination, text string) sms.Result
}

// Observer receives job lifecycle events. Queued is called from the
// enqueuing goroutine, Delivered from the worker, so Delivered may arrive
// before Queued returns.
type Observer interface {
	Queued(job Job)
	Delivered(job Job, res sms.Result)
}

type Options struct {
	Capacity int
	Overflow Overflow
}

// Queue decouples callers from the modem. A single worker takes jobs in
// FIFO order and sends them one at a time; outcomes go to observers only.
type Queue struct {
	sender    Sender
	overflow  Overflow
	observers []Observer

	jobs    chan Job
	closing chan struct{}
	mu      sync.RWMutex
	once    sync.Once
	done    chan struct{}

	statsMu sync.Mutex
	stats   Stats
}

// Stats are running counters since the queue was created.
type Stats struct {
	Accepted int  `json:"accepted"`
	Rejected int  `json:"rejected"`
	Sent     int  `json:"sent"`
	Failed   int  `json:"failed"`
	Depth    int  `json:"depth"`
	Capacity int  `json:"capacity"`
	Closed   bool `json:"closed"`
}

// NewQueue starts the worker. Call Close to stop intake and Wait for the
// worker to finish what was accepted.
func NewQueue(sender Sender, opts Options, observers ...Observer) (*Queue, error) {
	if sender == nil {
		return nil, errors.New("worker: nil sender")
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	switch opts.Overflow {
	case "":
		opts.Overflow = OverflowDrop
	case OverflowDrop, OverflowBlock:
	default:
		return nil, fmt.Errorf("worker: unknown overflow policy %q", opts.Overflow)
	}

	q := &Queue{
		sender:    sender,
		overflow:  opts.Overflow,
		observers: observers,
		jobs:      make(chan Job, opts.Capacity),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
	}
	go q.run()
	logger.Log.Infof("Delivery queue started (capacity=%d, overflow=%s)", opts.Capacity, opts.Overflow)
	return q, nil
}

// Enqueue accepts a message for background delivery and returns without
// waiting for the modem. Under the drop policy a full queue yields
// ErrQueueFull at once; under block it waits for room or ctx.
func (q *Queue) Enqueue(ctx context.Context, destination, text string) (Job, error) {
	job := Job{
		ID:          uuid.NewString(),
		Destination: destination,
		Text:        text,
		Source:      sourceFrom(ctx),
		EnqueuedAt:  time.Now(),
	}

	if err := q.push(ctx, job); err != nil {
		q.count(func(s *Stats) { s.Rejected++ })
		logger.Log.Warnf("Job for %s not queued: %v", destination, err)
		return Job{}, err
	}

	q.count(func(s *Stats) { s.Accepted++ })
	logger.Log.Debugf("Job %s queued for %s", job.ID, destination)
	for _, o := range q.observers {
		q.safely(job, func() { o.Queued(job) })
	}
	return job, nil
}

func (q *Queue) push(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	select {
	case <-q.closing:
		return ErrQueueClosed
	default:
	}

	if q.overflow == OverflowDrop {
		select {
		case q.jobs <- job:
			return nil
		default:
			return ErrQueueFull
		}
	}

	select {
	case q.jobs <- job:
		return nil
	case <-q.closing:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops intake. Jobs already accepted are still delivered.
func (q *Queue) Close() {
	q.once.Do(func() {
		close(q.closing)
		q.mu.Lock()
		close(q.jobs)
		q.mu.Unlock()
		logger.Log.Infof("Delivery queue closing, %d job(s) left", len(q.jobs))
	})
}

// Wait blocks until the worker has drained the queue after Close, or ctx
// ends.
func (q *Queue) Wait(ctx context.Context) error {
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Depth() int    { return len(q.jobs) }
func (q *Queue) Capacity() int { return cap(q.jobs) }

func (q *Queue) Stats() Stats {
	q.statsMu.Lock()
	s := q.stats
	q.statsMu.Unlock()

	s.Depth = q.Depth()
	s.Capacity = q.Capacity()
	select {
	case <-q.closing:
		s.Closed = true
	default:
	}
	return s
}

func (q *Queue) run() {
	defer close(q.done)
	for job := range q.jobs {
		q.deliver(job)
	}
	logger.Log.Info("Delivery queue worker stopped")
}

func (q *Queue) deliver(job Job) {
	var res sms.Result
	q.safely(job, func() {
		res = q.sender.Send(context.Background(), job.Destination, job.Text)
	})
	if res.Error == "" && !res.Success {
		res.Error = "send aborted"
	}

	if res.Success {
		q.count(func(s *Stats) { s.Sent++ })
		logger.Log.Infof("Job %s delivered to %s (id=%q, waited %s)", job.ID, job.Destination, res.MessageID, time.Since(job.EnqueuedAt).Round(time.Millisecond))
	} else {
		q.count(func(s *Stats) { s.Failed++ })
		logger.Log.Warnf("Job %s to %s failed: %s", job.ID, job.Destination, res.Error)
	}

	for _, o := range q.observers {
		q.safely(job, func() { o.Delivered(job, res) })
	}
}

// safely keeps a panicking sender or observer from taking the worker down.
func (q *Queue) safely(job Job, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Errorf("Job %s: recovered panic: %v", job.ID, r)
		}
	}()
	fn()
}

func (q *Queue) count(fn func(*Stats)) {
	q.statsMu.Lock()
	fn(&q.stats)
	q.statsMu.Unlock()
}
