package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/quartostays/booking-engine/internal/app"
	"github.com/quartostays/booking-engine/internal/domain"
	"go.uber.org/zap"
)

const signatureHeader = "X-Payment-Signature"

const maxWebhookBody = 1 << 20

// WebhookProcessor is the slice of the webhook service the transport needs.
type WebhookProcessor interface {
	Process(ctx context.Context, rawBody []byte, signature string) (app.ProcessResult, error)
}

// HandlePaymentWebhook serves POST /webhooks/payments. The contract with the
// provider: 200 once verified and recorded, 400 only on a bad signature, 500
// only on an unexpected internal error the provider should retry.
func HandlePaymentWebhook(svc WebhookProcessor, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "unreadable body")
			return
		}

		result, err := svc.Process(r.Context(), body, r.Header.Get(signatureHeader))
		if err != nil {
			if errors.Is(err, domain.ErrInvalidSignature) || errors.Is(err, domain.ErrMalformedWebhookEvent) {
				writeError(w, http.StatusBadRequest, codeInvalidSignature, err.Error())
				return
			}
			logger.Error("webhook processing failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}

		resp := map[string]bool{"received": true}
		if result.Duplicate {
			resp["duplicate"] = true
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
