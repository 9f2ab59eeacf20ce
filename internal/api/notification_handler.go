package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pccr10001/smsnotify/internal/logic"
)

type NotificationHandler struct {
	notifier *logic.NotificationService
}

func NewNotificationHandler(notifier *logic.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifier: notifier}
}

// NotifyReservation is called by the booking system after a reservation is
// confirmed. It answers as soon as the messages are queued.
func (h *NotificationHandler) NotifyReservation(c *gin.Context) {
	var r logic.Reservation
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobs, err := h.notifier.NotifyReservation(c.Request.Context(), r)
	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}

	switch {
	case errors.Is(err, logic.ErrInvalidReservation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil && len(jobs) == 0:
		c.JSON(enqueueStatus(err), gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusAccepted, gin.H{"job_ids": ids, "error": err.Error()})
	default:
		c.JSON(http.StatusAccepted, gin.H{"job_ids": ids})
	}
}
