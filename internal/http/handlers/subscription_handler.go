// Subscription HTTP handlers.
//
// This file exposes the subscription status endpoint:
//   - GET /subscription/status
//
// The response combines the caller's plan and billing state with today's
// quota usage so clients can render both in one call.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/deepanshu1531/gemini-backend-clone/internal/http/middleware"
)

// SubscriptionStatus returns the caller's plan, billing state, and remaining
// daily allowance. A user who never subscribed is reported on the basic plan
// rather than as an error.
func (h *Handlers) SubscriptionStatus(c *gin.Context) {
	st, err := h.quotaSvc.Status(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, st)
}
