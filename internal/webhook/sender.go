package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ContentRewriter/internal/domain"
	"ContentRewriter/internal/ports"
)

// Sender posts signed payloads to callback URLs.
type Sender struct {
	client *http.Client
	now    func() time.Time
	logger *slog.Logger
}

var _ ports.WebhookSender = (*Sender)(nil)

// NewSender wires an HTTP client; timeout defaults to 30s.
func NewSender(timeout time.Duration, logger *slog.Logger) *Sender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Sender{
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
		logger: logger,
	}
}

// Send signs the exact JSON body it posts; any non-2xx is a delivery error.
func (s *Sender) Send(ctx context.Context, url, secret string, payload domain.WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.Wrap(domain.KindInternal, "marshal webhook payload", err)
	}

	ts := s.now().Unix()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.Wrap(domain.KindDelivery, "new webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TimestampHeader, strconv.FormatInt(ts, 10))
	req.Header.Set(SignatureHeader, Sign(body, secret, ts))

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.Wrap(domain.KindDelivery, "post webhook", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Wrap(domain.KindDelivery, "post webhook",
			fmt.Errorf("callback returned %s: %s", resp.Status, strings.TrimSpace(string(snippet))))
	}

	if s.logger != nil {
		s.logger.Debug("webhook delivered", "task_id", payload.TaskID, "status", payload.Status)
	}
	return nil
}
