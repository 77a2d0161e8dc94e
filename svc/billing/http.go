package billing

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	core "github.com/billstate/billstate/pkg/billing"
)

// SignatureHeader carries the gateway's hex HMAC digest of the raw body.
const SignatureHeader = "X-Razorpay-Signature"

// maxWebhookBody bounds the request body read; gateway notifications are
// small JSON documents.
const maxWebhookBody = 1 << 20

// WebhookHandler is the inbound HTTP boundary for gateway notifications:
// 200 for processed or intentionally ignored, 400 for bad signatures or
// malformed payloads, 500 for internal failures (the gateway retries on
// non-2xx). Routing stays with the caller.
func WebhookHandler(svc *core.Service, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		result, err := svc.HandleWebhook(r.Context(), payload, r.Header.Get(SignatureHeader))
		switch {
		case err == nil:
			if result.ProjectionErr != nil {
				// Processed-with-error: redelivery cannot fix a config or
				// projection problem, so acknowledge and let the sweep and
				// the alert on this log line take it from here.
				log.ErrorContext(r.Context(), "webhook processed with projection error",
					slog.Any("error", result.ProjectionErr))
			}
			w.WriteHeader(http.StatusOK)

		case errors.Is(err, core.ErrInvalidSignature), errors.Is(err, core.ErrMalformedEvent):
			w.WriteHeader(http.StatusBadRequest)

		default:
			log.ErrorContext(r.Context(), "webhook processing failed", slog.Any("error", err))
			w.WriteHeader(http.StatusInternalServerError)
		}
	})
}
