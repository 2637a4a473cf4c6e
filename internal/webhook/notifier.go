package webhook

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mitdave95/luma-interview/pkg/models"
)

// Config tunes delivery.
type Config struct {
	Attempts int
	Backoff  time.Duration
	Timeout  time.Duration
}

// Notifier delivers terminal job events in the background with retries.
// Only server errors and transport failures are retried.
type Notifier struct {
	sender Sender
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	wg sync.WaitGroup
}

func NewNotifier(s Sender, cfg Config, logger *slog.Logger) *Notifier {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{sender: s, cfg: cfg, logger: logger, now: time.Now}
}

// JobFinished schedules delivery for j when it carries a webhook URL. It
// never blocks on the network.
func (n *Notifier) JobFinished(ctx context.Context, j models.Job) {
	url := j.Params.WebhookURL
	if url == "" {
		return
	}
	e, ok := EventFor(j, n.now())
	if !ok {
		return
	}

	ctx = context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliver(ctx, url, e)
	}()
}

func (n *Notifier) deliver(ctx context.Context, url string, e Event) {
	backoff := n.cfg.Backoff
	for attempt := 1; ; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
		err := n.sender.Send(sendCtx, url, e)
		cancel()
		if err == nil {
			n.logger.Info("webhook delivered", "job_id", e.JobID, "event", e.Type, "attempt", attempt)
			return
		}
		if attempt >= n.cfg.Attempts || !retryable(err) {
			n.logger.Warn("webhook delivery failed",
				"job_id", e.JobID,
				"event", e.Type,
				"attempts", attempt,
				"error", err)
			return
		}
		time.Sleep(backoff)
		backoff *= 2
	}
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == 429
	}
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrTimeout)
}

// Wait blocks until every scheduled delivery has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
