package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ContentRewriter/internal/domain"
)

func TestSenderSignsExactBody(t *testing.T) {
	t.Parallel()

	var got domain.WebhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ts, ok := ParseTimestamp(r.Header.Get(TimestampHeader))
		if !ok {
			t.Errorf("missing timestamp header")
		}
		if !Verify(body, "secret", r.Header.Get(SignatureHeader), ts, time.Now()) {
			t.Errorf("signature does not verify")
		}
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewSender(time.Second, nil)
	err := sender.Send(context.Background(), server.URL, "secret", domain.WebhookPayload{
		TaskID: "t1",
		Status: domain.TaskCompleted,
	})
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if got.TaskID != "t1" || got.Status != domain.TaskCompleted {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestSenderNon2xxIsDeliveryError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer server.Close()

	err := NewSender(time.Second, nil).Send(context.Background(), server.URL, "s", domain.WebhookPayload{TaskID: "t"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if domain.KindOf(err) != domain.KindDelivery {
		t.Fatalf("expected delivery error, got %v", domain.KindOf(err))
	}
}
