package logic

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/pccr10001/smsnotify/internal/model"
	"github.com/pccr10001/smsnotify/internal/sms"
	"github.com/pccr10001/smsnotify/internal/worker"
	"github.com/pccr10001/smsnotify/pkg/logger"
)

const defaultAlertTemplate = "SMS to {{.Destination}} failed after {{.Attempts}} attempt(s): {{.Error}}"

// WebhookSource lists the alert targets. *repository.WebhookRepository
// implements it.
type WebhookSource interface {
	FindEnabled() ([]model.Webhook, error)
}

// Alert is the data available to webhook templates.
type Alert struct {
	JobID       string    `json:"job_id"`
	Destination string    `json:"destination"`
	Text        string    `json:"text"`
	Source      string    `json:"source"`
	Error       string    `json:"error"`
	Attempts    int       `json:"attempts"`
	Transcript  string    `json:"transcript"`
	FailedAt    time.Time `json:"failed_at"`
}

// WebhookService posts failed deliveries to the configured webhooks. It is
// a queue observer; successful jobs are ignored.
type WebhookService struct {
	repo   WebhookSource
	static []model.Webhook
	client *http.Client
	wg     sync.WaitGroup
}

// NewWebhookService builds the alerter. static holds webhooks from the
// config file and is used in addition to the stored ones.
func NewWebhookService(repo WebhookSource, static ...model.Webhook) *WebhookService {
	return &WebhookService{
		repo:   repo,
		static: static,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *WebhookService) Queued(worker.Job) {}

func (s *WebhookService) Delivered(job worker.Job, res sms.Result) {
	if res.Success {
		return
	}
	s.Dispatch(Alert{
		JobID:       job.ID,
		Destination: job.Destination,
		Text:        job.Text,
		Source:      job.Source,
		Error:       res.Error,
		Attempts:    res.Attempts,
		Transcript:  res.Transcript,
		FailedAt:    time.Now(),
	})
}

// Dispatch sends alert to every enabled webhook in the background.
func (s *WebhookService) Dispatch(alert Alert) {
	webhooks := append([]model.Webhook(nil), s.static...)
	if s.repo != nil {
		stored, err := s.repo.FindEnabled()
		if err != nil {
			logger.Log.Errorf("Failed to fetch webhooks: %v", err)
		}
		webhooks = append(webhooks, stored...)
	}

	for _, wh := range webhooks {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.sendWebhook(wh, alert)
		}()
	}
}

// Wait blocks until in-flight webhook posts are done.
func (s *WebhookService) Wait() {
	s.wg.Wait()
}

func (s *WebhookService) sendWebhook(wh model.Webhook, alert Alert) {
	content := render(wh.Template, alert)

	var body map[string]any
	switch wh.Platform {
	case "telegram":
		body = map[string]any{"text": content}
		if wh.ChannelID != "" {
			body["chat_id"] = wh.ChannelID
		}
	case "slack":
		body = map[string]any{"text": content}
	default:
		body = map[string]any{"text": content, "alert": alert}
	}
	if strings.Contains(wh.URL, "hooks.slack.com") {
		body = map[string]any{"text": content}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		logger.Log.Errorf("Failed to marshal webhook payload: %v", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, wh.URL, bytes.NewReader(payload))
	if err != nil {
		logger.Log.Errorf("Failed to create request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		logger.Log.Errorf("Failed to send webhook to %s: %v", wh.URL, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		logger.Log.Errorf("Webhook %s returned status: %d", wh.URL, resp.StatusCode)
	} else {
		logger.Log.Infof("Alert for job %s sent to %s", alert.JobID, wh.URL)
	}
}

func render(tmplText string, alert Alert) string {
	if tmplText == "" {
		tmplText = defaultAlertTemplate
	}
	tmpl, err := template.New("alert").Parse(tmplText)
	if err != nil {
		logger.Log.Warnf("Bad webhook template, using default: %v", err)
		tmpl = template.Must(template.New("alert").Parse(defaultAlertTemplate))
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, alert); err != nil {
		return alert.Destination + ": " + alert.Error
	}
	return buf.String()
}
