// Package mcpserver exposes the SMS operations as MCP tools so assistants
// can send notifications over the same modem.
package mcpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/pccr10001/smsnotify/internal/sms"
	"github.com/pccr10001/smsnotify/internal/worker"
	"github.com/pccr10001/smsnotify/pkg/logger"
)

// SourceMCP tags jobs enqueued through MCP.
const SourceMCP = "mcp"

type Sender interface {
	Send(ctx context.Context, destination, text string) sms.Result
}

type Queue interface {
	Enqueue(ctx context.Context, destination, text string) (worker.Job, error)
	Stats() worker.Stats
}

type Recorder interface {
	Record(job worker.Job, res sms.Result)
}

type SMSInput struct {
	To   string `json:"to" jsonschema:"destination phone number, e.g. +40722000000"`
	Text string `json:"text" jsonschema:"message body; over 160 characters is sent anyway but may be split"`
}

type SendOutput struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Attempts  int    `json:"attempts"`
	Segments  int    `json:"segments"`
	Error     string `json:"error,omitempty"`
}

type EnqueueOutput struct {
	JobID    string `json:"job_id"`
	Segments int    `json:"segments"`
}

type StatusInput struct{}

type Server struct {
	sender   Sender
	queue    Queue
	recorder Recorder
	server   *mcp.Server
}

// New builds the MCP server. recorder may be nil.
func New(version string, sender Sender, queue Queue, recorder Recorder) *Server {
	s := &Server{
		sender:   sender,
		queue:    queue,
		recorder: recorder,
		server:   mcp.NewServer(&mcp.Implementation{Name: "smsnotify", Version: version}, nil),
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "send_sms",
		Description: "Send an SMS now and wait for the modem to confirm it. Takes up to half a minute.",
	}, s.sendSMS)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "enqueue_sms",
		Description: "Queue an SMS for background delivery and return immediately.",
	}, s.enqueueSMS)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "queue_status",
		Description: "Report delivery queue depth and counters.",
	}, s.queueStatus)

	return s
}

// MCPServer returns the underlying server, e.g. to connect a transport.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

// Handler serves the streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}

func (s *Server) sendSMS(ctx context.Context, _ *mcp.CallToolRequest, in SMSInput) (*mcp.CallToolResult, SendOutput, error) {
	if in.To == "" || in.Text == "" {
		return nil, SendOutput{}, errors.New("to and text are required")
	}
	logger.Log.Infof("MCP send_sms to %s", in.To)

	res := s.sender.Send(ctx, in.To, in.Text)
	if s.recorder != nil {
		s.recorder.Record(worker.Job{
			ID:          uuid.NewString(),
			Destination: in.To,
			Text:        in.Text,
			Source:      SourceMCP,
			EnqueuedAt:  time.Now(),
		}, res)
	}
	return nil, SendOutput{
		Success:   res.Success,
		MessageID: res.MessageID,
		Attempts:  res.Attempts,
		Segments:  res.Segments,
		Error:     res.Error,
	}, nil
}

func (s *Server) enqueueSMS(ctx context.Context, _ *mcp.CallToolRequest, in SMSInput) (*mcp.CallToolResult, EnqueueOutput, error) {
	if in.To == "" || in.Text == "" {
		return nil, EnqueueOutput{}, errors.New("to and text are required")
	}
	job, err := s.queue.Enqueue(worker.WithSource(ctx, SourceMCP), in.To, in.Text)
	if err != nil {
		return nil, EnqueueOutput{}, err
	}
	return nil, EnqueueOutput{JobID: job.ID, Segments: sms.Segments(in.Text)}, nil
}

func (s *Server) queueStatus(context.Context, *mcp.CallToolRequest, StatusInput) (*mcp.CallToolResult, worker.Stats, error) {
	return nil, s.queue.Stats(), nil
}
