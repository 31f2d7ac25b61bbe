// Billing webhook HTTP handler.
//
// This file exposes the payment-provider delivery endpoint:
//   - POST /webhook/stripe
//
// The handler reads the raw body bytes untouched (signature verification
// runs over exactly what arrived on the wire) and hands them to the billing
// ingestor together with the signature header. Responses follow the
// provider's retry contract: 200 acknowledges, 400 rejects a delivery that
// must not be retried as-is, 500 asks for a retry.
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/deepanshu1531/gemini-backend-clone/internal/billing"
	"github.com/deepanshu1531/gemini-backend-clone/internal/http/middleware"
)

// maxWebhookBody caps the accepted delivery size (64 KiB).
const maxWebhookBody = 64 << 10

// StripeWebhook verifies and applies one webhook delivery. The body is read
// raw; any JSON re-encoding before verification would break the MAC.
func (h *Handlers) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable body")
		return
	}
	if len(payload) > maxWebhookBody {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "payload too large")
		return
	}

	sig := c.GetHeader(billing.SignatureHeader)
	if err := h.webhook.HandleDelivery(c.Request.Context(), payload, sig); err != nil {
		if errors.Is(err, billing.ErrSignature) || errors.Is(err, billing.ErrMissingUser) {
			fail(c, http.StatusBadRequest, ErrCodeSignatureInvalid, "webhook rejected")
			return
		}
		// Transient failure; the provider retries the delivery.
		lg := middleware.LoggerFrom(c)
		lg.Error().Err(err).Msg("webhook processing failed")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "webhook processing failed")
		return
	}

	ok(c, http.StatusOK, gin.H{"received": true})
}
