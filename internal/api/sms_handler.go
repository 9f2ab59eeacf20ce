package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pccr10001/smsnotify/internal/logic"
	"github.com/pccr10001/smsnotify/internal/repository"
	"github.com/pccr10001/smsnotify/internal/sms"
	"github.com/pccr10001/smsnotify/internal/worker"
	"gorm.io/gorm"
)

const SourceAPI = "api"

type Sender interface {
	Send(ctx context.Context, destination, text string) sms.Result
}

type Enqueuer interface {
	Enqueue(ctx context.Context, destination, text string) (worker.Job, error)
}

type SMSHandler struct {
	sender   Sender
	queue    Enqueuer
	messages *repository.MessageRepository
	recorder *logic.MessageRecorder
}

func NewSMSHandler(sender Sender, queue Enqueuer, messages *repository.MessageRepository, recorder *logic.MessageRecorder) *SMSHandler {
	return &SMSHandler{sender: sender, queue: queue, messages: messages, recorder: recorder}
}

type sendRequest struct {
	To   string `json:"to" binding:"required"`
	Text string `json:"text" binding:"required"`
}

// SendSMS sends synchronously and answers with the full result, transcript
// included. It waits behind any queued send that holds the modem.
func (h *SMSHandler) SendSMS(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job := worker.Job{
		ID:          uuid.NewString(),
		Destination: req.To,
		Text:        req.Text,
		Source:      SourceAPI,
		EnqueuedAt:  time.Now(),
	}
	res := h.sender.Send(c.Request.Context(), req.To, req.Text)
	if h.recorder != nil {
		h.recorder.Record(job, res)
	}

	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{
		"id":     job.ID,
		"result": res,
	})
}

// EnqueueSMS accepts the message for background delivery.
func (h *SMSHandler) EnqueueSMS(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.queue.Enqueue(worker.WithSource(c.Request.Context(), SourceAPI), req.To, req.Text)
	if err != nil {
		c.JSON(enqueueStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"job_id":   job.ID,
		"segments": sms.Segments(req.Text),
	})
}

func enqueueStatus(err error) int {
	switch {
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrQueueClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *SMSHandler) ListSMS(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page <= 0 {
		page = 1
	}

	list, total, err := h.messages.List(repository.MessageFilter{
		Status:      c.Query("status"),
		Destination: c.Query("to"),
		Limit:       limit,
		Offset:      (page - 1) * limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  list,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

func (h *SMSHandler) GetSMS(c *gin.Context) {
	msg, err := h.messages.FindByID(c.Param("id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, msg)
}
