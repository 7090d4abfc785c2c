package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quartostays/booking-engine/internal/app"
	"github.com/quartostays/booking-engine/internal/domain"
	"go.uber.org/zap"
)

type fakeWebhookProcessor struct {
	result app.ProcessResult
	err    error

	gotBody      []byte
	gotSignature string
}

func (f *fakeWebhookProcessor) Process(_ context.Context, rawBody []byte, signature string) (app.ProcessResult, error) {
	f.gotBody = rawBody
	f.gotSignature = signature
	return f.result, f.err
}

func postWebhook(handler http.HandlerFunc, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHandlePaymentWebhook(t *testing.T) {
	t.Parallel()

	t.Run("acknowledges a processed event", func(t *testing.T) {
		svc := &fakeWebhookProcessor{}
		rec := postWebhook(HandlePaymentWebhook(svc, zap.NewNop()), `{"id":"evt-1"}`, "sig")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp map[string]bool
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if !resp["received"] || resp["duplicate"] {
			t.Fatalf("unexpected response: %v", resp)
		}
		if string(svc.gotBody) != `{"id":"evt-1"}` || svc.gotSignature != "sig" {
			t.Fatalf("unexpected call: body=%s sig=%s", svc.gotBody, svc.gotSignature)
		}
	})

	t.Run("flags duplicates in the ack", func(t *testing.T) {
		svc := &fakeWebhookProcessor{result: app.ProcessResult{Duplicate: true}}
		rec := postWebhook(HandlePaymentWebhook(svc, zap.NewNop()), `{"id":"evt-1"}`, "sig")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp map[string]bool
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if !resp["received"] || !resp["duplicate"] {
			t.Fatalf("unexpected response: %v", resp)
		}
	})

	t.Run("bad signature is 400", func(t *testing.T) {
		svc := &fakeWebhookProcessor{err: domain.ErrInvalidSignature}
		rec := postWebhook(HandlePaymentWebhook(svc, zap.NewNop()), `{}`, "bad")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("internal error is 500 so the provider retries", func(t *testing.T) {
		svc := &fakeWebhookProcessor{err: errors.New("db down")}
		rec := postWebhook(HandlePaymentWebhook(svc, zap.NewNop()), `{}`, "sig")

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
	})

	t.Run("only POST is accepted", func(t *testing.T) {
		svc := &fakeWebhookProcessor{}
		req := httptest.NewRequest(http.MethodGet, "/webhooks/payments", nil)
		rec := httptest.NewRecorder()
		HandlePaymentWebhook(svc, zap.NewNop())(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", rec.Code)
		}
	})
}
