package mcpserver_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/pccr10001/smsnotify/internal/mcpserver"
	"github.com/pccr10001/smsnotify/internal/sms"
	"github.com/pccr10001/smsnotify/internal/worker"
)

type fakeSender struct{ result sms.Result }

func (f fakeSender) Send(context.Context, string, string) sms.Result { return f.result }

type fakeQueue struct {
	mu           sync.Mutex
	destinations []string
	err          error
}

func (q *fakeQueue) Enqueue(ctx context.Context, dest, text string) (worker.Job, error) {
	if q.err != nil {
		return worker.Job{}, q.err
	}
	q.mu.Lock()
	q.destinations = append(q.destinations, dest)
	q.mu.Unlock()
	return worker.Job{ID: "job-1", Destination: dest, Text: text}, nil
}

func (q *fakeQueue) Stats() worker.Stats {
	return worker.Stats{Accepted: 3, Sent: 2, Depth: 1, Capacity: 100}
}

type recorder struct {
	jobs []worker.Job
}

func (r *recorder) Record(job worker.Job, _ sms.Result) { r.jobs = append(r.jobs, job) }

func connect(t *testing.T, s *mcpserver.Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	ss, err := s.MCPServer().Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func call(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any, out any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool %s: %v", name, err)
	}
	if out != nil && !res.IsError {
		raw, err := json.Marshal(res.StructuredContent)
		if err != nil {
			t.Fatalf("marshal structured content: %v", err)
		}
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("decode %s output %s: %v", name, raw, err)
		}
	}
	return res
}

func TestTools(t *testing.T) {
	rec := &recorder{}
	queue := &fakeQueue{}
	s := mcpserver.New("test", fakeSender{result: sms.Result{Success: true, MessageID: "42", Attempts: 1, Segments: 1}}, queue, rec)
	cs := connect(t, s)

	tools, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	names := map[string]bool{}
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"send_sms", "enqueue_sms", "queue_status"} {
		if !names[want] {
			t.Errorf("tool %s not registered", want)
		}
	}

	t.Run("send_sms", func(t *testing.T) {
		var out mcpserver.SendOutput
		res := call(t, cs, "send_sms", map[string]any{"to": "+40722000000", "text": "Test"}, &out)
		if res.IsError || !out.Success || out.MessageID != "42" {
			t.Fatalf("unexpected result: %+v %+v", res, out)
		}
		if len(rec.jobs) != 1 || rec.jobs[0].Source != mcpserver.SourceMCP {
			t.Errorf("send not recorded as mcp: %+v", rec.jobs)
		}
	})

	t.Run("send_sms missing text", func(t *testing.T) {
		res := call(t, cs, "send_sms", map[string]any{"to": "+40722000000", "text": ""}, nil)
		if !res.IsError {
			t.Error("expected tool error")
		}
	})

	t.Run("enqueue_sms", func(t *testing.T) {
		var out mcpserver.EnqueueOutput
		call(t, cs, "enqueue_sms", map[string]any{"to": "+40722000000", "text": "Test"}, &out)
		if out.JobID != "job-1" || out.Segments != 1 {
			t.Errorf("unexpected output: %+v", out)
		}
	})

	t.Run("enqueue_sms full", func(t *testing.T) {
		queue.err = worker.ErrQueueFull
		defer func() { queue.err = nil }()
		res := call(t, cs, "enqueue_sms", map[string]any{"to": "+40722000000", "text": "Test"}, nil)
		if !res.IsError {
			t.Error("expected tool error when queue is full")
		}
	})

	t.Run("queue_status", func(t *testing.T) {
		var out worker.Stats
		call(t, cs, "queue_status", map[string]any{}, &out)
		if out.Accepted != 3 || out.Depth != 1 || out.Capacity != 100 {
			t.Errorf("unexpected stats: %+v", out)
		}
	})
}
