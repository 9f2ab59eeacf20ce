package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pccr10001/smsnotify/internal/logic"
	"github.com/pccr10001/smsnotify/internal/mccmnc"
	"github.com/pccr10001/smsnotify/internal/repository"
	"github.com/pccr10001/smsnotify/internal/sms"
	"github.com/pccr10001/smsnotify/internal/worker"
	"github.com/pccr10001/smsnotify/pkg/logger"
)

// Modem is the engine surface the admin endpoints use.
type Modem interface {
	Probe() (string, error)
	Reconnect() error
	Command(cmd string, timeout time.Duration) (string, error)
}

type QueueStats interface {
	Stats() worker.Stats
}

type ModemHandler struct {
	modem     Modem
	portName  string
	queue     QueueStats
	messages  *repository.MessageRepository
	listPorts func() ([]string, error)
	operators *mccmnc.Directory
	events    *logic.EventBus
}

func NewModemHandler(modem Modem, portName string, queue QueueStats, messages *repository.MessageRepository, listPorts func() ([]string, error)) *ModemHandler {
	return &ModemHandler{modem: modem, portName: portName, queue: queue, messages: messages, listPorts: listPorts}
}

// SetOperators enables operator names in Status.
func (h *ModemHandler) SetOperators(d *mccmnc.Directory) {
	h.operators = d
}

// SetEvents makes Reconnect announce itself on the event stream.
func (h *ModemHandler) SetEvents(bus *logic.EventBus) {
	h.events = bus
}

// Status probes the modem with AT and reports the network it is registered
// on along with queue and log counters.
func (h *ModemHandler) Status(c *gin.Context) {
	start := time.Now()
	transcript, err := h.modem.Probe()
	latency := time.Since(start)

	resp := gin.H{
		"port":       h.portName,
		"responsive": err == nil,
		"latency_ms": latency.Milliseconds(),
		"transcript": transcript,
		"queue":      h.queue.Stats(),
	}
	if err != nil {
		resp["error"] = err.Error()
	} else if cops, err := h.modem.Command("AT+COPS?", 2*time.Second); err == nil {
		if reg, ok := mccmnc.ParseCOPS(cops); ok {
			resp["network"] = h.operators.Resolve(reg)
		}
	}
	if h.messages != nil {
		if counts, err := h.messages.CountByStatus(); err == nil {
			resp["messages"] = counts
		} else {
			logger.Log.Warnf("Failed to count messages: %v", err)
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ModemHandler) ListPorts(c *gin.Context) {
	ports, err := h.listPorts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"configured": h.portName, "ports": ports})
}

func (h *ModemHandler) Reconnect(c *gin.Context) {
	err := h.modem.Reconnect()
	if h.events != nil {
		data := map[string]any{"action": "reconnect", "port": h.portName, "ok": err == nil}
		if err != nil {
			data["error"] = err.Error()
		}
		h.events.Publish(logic.Event{Type: logic.EventModem, Data: data})
	}
	if err != nil {
		logger.Log.Errorf("Manual reconnect of %s failed: %v", h.portName, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	logger.Log.Infof("Modem %s reconnected by request", h.portName)
	c.JSON(http.StatusOK, gin.H{"status": "reconnected"})
}

// ExecuteAT runs one diagnostic AT command. It waits for any send in
// progress.
func (h *ModemHandler) ExecuteAT(c *gin.Context) {
	var req struct {
		Cmd     string `json:"cmd" binding:"required"`
		Timeout int    `json:"timeout"` // ms
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	timeout := 10 * time.Second
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Millisecond
	}

	resp, err := h.modem.Command(req.Cmd, timeout)
	if errors.Is(err, sms.ErrInvalidCommand) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "response": resp})
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": resp})
}
