package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wiffzack/printspool/internal/config"
	"github.com/wiffzack/printspool/internal/core"
)

type Payload struct {
	Event     string       `json:"event"`
	Timestamp time.Time    `json:"timestamp"`
	Data      JobEventData `json:"data"`
	Signature string       `json:"signature,omitempty"`
}

type JobEventData struct {
	JobID        string `json:"job_id"`
	InvoiceID    int64  `json:"invoice_id"`
	Template     string `json:"template"`
	Output       string `json:"output"`
	Status       string `json:"status"`
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Duration     int64  `json:"duration_ms,omitempty"`
	RetryCount   int    `json:"retry_count,omitempty"`
}

type task struct {
	endpoint config.WebhookEndpoint
	payload  *Payload
	attempt  int
}

// statusError is a non-2xx answer. 4xx answers are not retried.
type statusError struct {
	code int
}

func (e *statusError) Error() string { return fmt.Sprintf("http error: %d", e.code) }

// Sender posts signed job notifications to the configured endpoints. It is
// the dead-letter channel for jobs the queue gives up on.
type Sender struct {
	endpoints   []config.WebhookEndpoint
	httpClient  *http.Client
	retryCount  int
	retryDelay  time.Duration
	workerCount int
	queue       chan *task
	stopCh      chan struct{}
	wg          sync.WaitGroup
	logger      *zap.Logger
}

func NewSender(cfg config.WebhookConfig, logger *zap.Logger) *Sender {
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 3
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Sender{
		endpoints: cfg.Endpoints,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		retryCount:  cfg.RetryCount,
		retryDelay:  cfg.RetryDelay,
		workerCount: cfg.WorkerCount,
		queue:       make(chan *task, cfg.QueueSize),
		stopCh:      make(chan struct{}),
		logger:      logger,
	}
}

func (s *Sender) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

// Stop abandons queued notifications and waits for in-flight sends.
func (s *Sender) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Sender) OnJobEvent(ev core.JobEvent) {
	if ev.Type == core.EventJobQueued {
		return
	}

	data := JobEventData{
		JobID:      ev.Job.ID,
		InvoiceID:  ev.Job.InvoiceID,
		Template:   ev.Job.Template,
		Output:     string(ev.Job.Output),
		Status:     string(statusFor(ev.Type)),
		Duration:   ev.Duration.Milliseconds(),
		RetryCount: ev.Job.Tries,
	}
	if ev.Err != nil {
		data.ErrorKind = string(core.Classify(ev.Err))
		data.ErrorMessage = ev.Err.Error()
	}
	s.enqueue(string(ev.Type), data)
}

func statusFor(t core.JobEventType) core.JobStatus {
	switch t {
	case core.EventJobStarted:
		return core.JobStatusProcessing
	case core.EventJobCompleted:
		return core.JobStatusCompleted
	case core.EventJobRetrying:
		return core.JobStatusRetrying
	case core.EventJobFailed:
		return core.JobStatusFailed
	}
	return core.JobStatusPending
}

func (s *Sender) enqueue(event string, data JobEventData) {
	for _, ep := range s.endpoints {
		if !subscribed(ep, event) {
			continue
		}

		t := &task{
			endpoint: ep,
			payload: &Payload{
				Event:     event,
				Timestamp: time.Now(),
				Data:      data,
			},
		}

		select {
		case s.queue <- t:
		default:
			s.logger.Warn("webhook queue full, dropping notification",
				zap.String("webhook", ep.Name),
				zap.String("event", event),
			)
		}
	}
}

// subscribed treats an empty event list as "job_failed only".
func subscribed(ep config.WebhookEndpoint, event string) bool {
	if len(ep.Events) == 0 {
		return event == string(core.EventJobFailed)
	}
	for _, e := range ep.Events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}

func (s *Sender) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case t := <-s.queue:
			if err := s.sendWithRetry(t); err != nil {
				s.logger.Error("webhook delivery failed",
					zap.Int("worker", id),
					zap.String("webhook", t.endpoint.Name),
					zap.String("event", t.payload.Event),
					zap.Int("attempts", t.attempt),
					zap.Error(err),
				)
			}
		}
	}
}

func (s *Sender) sendWithRetry(t *task) error {
	var lastErr error
	for t.attempt < s.retryCount {
		t.attempt++

		err := s.sendRequest(t.endpoint, t.payload)
		if err == nil {
			return nil
		}
		lastErr = err

		if isClientError(err) {
			return err
		}

		if t.attempt < s.retryCount {
			backoff := s.retryDelay * time.Duration(1<<(t.attempt-1))
			s.logger.Debug("retrying webhook",
				zap.String("webhook", t.endpoint.Name),
				zap.Int("attempt", t.attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)

			select {
			case <-s.stopCh:
				return fmt.Errorf("shutdown requested: %w", lastErr)
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (s *Sender) sendRequest(ep config.WebhookEndpoint, payload *Payload) error {
	dataBytes, err := json.Marshal(payload.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	if ep.Secret != "" {
		payload.Signature = Sign(dataBytes, ep.Secret)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", payload.Event)
	if payload.Signature != "" {
		req.Header.Set("X-Webhook-Signature", payload.Signature)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of the JSON encoded event data.
func Sign(data []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func isClientError(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code >= 400 && se.code < 500
}
