// Package webhook delivers job lifecycle events to the URL a caller attached
// to a generation request.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/mitdave95/luma-interview/pkg/models"
)

// Sentinel errors for delivery failures.
var (
	ErrUnreachable = errors.New("webhook unreachable")
	ErrRejected    = errors.New("webhook rejected")
	ErrTimeout     = errors.New("webhook timeout")
)

// Event types.
const (
	EventJobCompleted = "job.completed"
	EventJobFailed    = "job.failed"
	EventJobCancelled = "job.cancelled"
	EventJobExpired   = "job.expired"
)

// Event is the JSON body posted to a webhook.
type Event struct {
	Type      string           `json:"type"`
	JobID     string           `json:"job_id"`
	Status    models.JobStatus `json:"status"`
	VideoID   string           `json:"video_id,omitempty"`
	Error     string           `json:"error,omitempty"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// EventFor builds the event announcing that j reached a terminal state. It
// reports false for jobs that are not terminal.
func EventFor(j models.Job, now time.Time) (Event, bool) {
	var typ string
	switch j.Status {
	case models.JobStatusCompleted:
		typ = EventJobCompleted
	case models.JobStatusFailed:
		typ = EventJobFailed
	case models.JobStatusCancelled:
		typ = EventJobCancelled
	case models.JobStatusExpired:
		typ = EventJobExpired
	default:
		return Event{}, false
	}
	return Event{
		Type:      typ,
		JobID:     j.ID,
		Status:    j.Status,
		VideoID:   j.ResultRef,
		Error:     j.Error,
		Metadata:  j.Params.Metadata,
		Timestamp: now.UTC(),
	}, true
}

// Sender posts events.
type Sender interface {
	Send(ctx context.Context, url string, e Event) error
}

// HTTPClient implements Sender over plain HTTP POSTs.
type HTTPClient struct {
	userAgent string
	client    *http.Client
}

// NewHTTPClient creates a client whose requests time out after timeout.
func NewHTTPClient(userAgent string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Send(ctx context.Context, url string, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(req, e)

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// StatusError reports a non-2xx webhook response. It matches ErrRejected.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d", ErrRejected, e.Code)
}

func (e *StatusError) Is(target error) bool { return target == ErrRejected }

func (c *HTTPClient) setHeaders(req *http.Request, e Event) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", e.Type)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// Compile-time check that HTTPClient implements Sender.
var _ Sender = (*HTTPClient)(nil)
