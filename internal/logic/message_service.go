package logic

import (
	"github.com/pccr10001/smsnotify/internal/model"
	"github.com/pccr10001/smsnotify/internal/sms"
	"github.com/pccr10001/smsnotify/internal/worker"
	"github.com/pccr10001/smsnotify/pkg/logger"
)

// MessageStore is the part of repository.MessageRepository the recorder
// writes through.
type MessageStore interface {
	Create(msg *model.Message) error
	SaveResult(msg *model.Message) error
}

// MessageRecorder keeps the outbound log: a row per job when it is queued,
// updated with the outcome once the worker is done with it. Synchronous
// sends are recorded directly with Record.
type MessageRecorder struct {
	store MessageStore
}

func NewMessageRecorder(store MessageStore) *MessageRecorder {
	return &MessageRecorder{store: store}
}

func (r *MessageRecorder) Queued(job worker.Job) {
	msg := &model.Message{
		ID:          job.ID,
		Destination: job.Destination,
		Text:        job.Text,
		Source:      job.Source,
		Status:      model.MessageQueued,
		CreatedAt:   job.EnqueuedAt,
	}
	if err := r.store.Create(msg); err != nil {
		logger.Log.Errorf("Failed to record queued job %s: %v", job.ID, err)
	}
}

func (r *MessageRecorder) Delivered(job worker.Job, res sms.Result) {
	r.save(job, res)
}

// Record stores the outcome of a send that did not go through the queue.
func (r *MessageRecorder) Record(job worker.Job, res sms.Result) {
	r.save(job, res)
}

func (r *MessageRecorder) save(job worker.Job, res sms.Result) {
	msg := &model.Message{
		ID:          job.ID,
		Destination: job.Destination,
		Text:        job.Text,
		Source:      job.Source,
		Status:      model.MessageFailed,
		MessageRef:  res.MessageID,
		Attempts:    res.Attempts,
		Segments:    res.Segments,
		Oversize:    res.Oversize,
		Error:       res.Error,
		Transcript:  res.Transcript,
		CreatedAt:   job.EnqueuedAt,
	}
	if res.Success {
		msg.Status = model.MessageSent
	}
	if err := r.store.SaveResult(msg); err != nil {
		logger.Log.Errorf("Failed to record result of job %s: %v", job.ID, err)
	}
}
