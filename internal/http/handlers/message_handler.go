// Message HTTP handlers.
//
// This file exposes the send-message endpoint:
//   - POST /chatrooms/{id}/messages
//
// Sending is asynchronous: the handler checks the daily quota, appends the
// user message, enqueues a durable generation job, and responds 202 Accepted
// immediately. The AI reply is produced later by the worker pool and shows
// up in the chatroom detail once processed.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/deepanshu1531/gemini-backend-clone/internal/domain"
	"github.com/deepanshu1531/gemini-backend-clone/internal/http/middleware"
	"github.com/deepanshu1531/gemini-backend-clone/internal/services"
)

//
// DTOs
//

// PostMessageRequest is the JSON payload for sending a user message.
// Content is normalized (line endings, excessive blank lines) before being
// passed to the service layer.
type PostMessageRequest struct {
	// Content is the user prompt. It must be non-empty.
	Content string `json:"content" binding:"required,min=1"`
}

// PostMessageResponse acknowledges an accepted send. Message is the stored
// user message; JobID identifies the queued generation work whose result
// arrives asynchronously.
type PostMessageResponse struct {
	Message *domain.Message `json:"message"`
	JobID   string          `json:"job_id"`
	Status  string          `json:"status"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text: CRLF/CR to LF, runs of 3+ LFs to
// exactly two, surrounding whitespace trimmed.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// discoverMaxPromptRunes inspects the concrete ChatroomService for a
// configured prompt-length limit, with a conservative fallback.
func discoverMaxPromptRunes(roomSvc ChatroomService) int {
	const fallback = 4000
	if cs, ok := roomSvc.(*services.ChatroomService); ok {
		if cs.MaxPromptRunes > 0 {
			return cs.MaxPromptRunes
		}
	}
	return fallback
}

//
// Handlers
//

// PostMessage validates the prompt, consumes one unit of the caller's daily
// quota, appends the user message, and enqueues the generation job. The
// response is 202 Accepted with the job id; a 429 with code quota_exceeded
// means the basic-plan daily cap is reached.
func (h *Handlers) PostMessage(c *gin.Context) {
	ctx := c.Request.Context()
	chatroomID := c.Param("id")

	if _, err := uuid.Parse(chatroomID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chatroom id must be a UUID")
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	// Sanitize and fail fast on oversize at the edge; the service has a
	// second guard for length.
	content := sanitizeContent(req.Content)
	maxRunes := discoverMaxPromptRunes(h.roomSvc)
	if maxRunes > 0 && utf8.RuneCountInString(content) > maxRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d runes", maxRunes))
		return
	}
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	currentUser := middleware.UserID(c)

	// Quota gate. Pro users pass without consuming; everyone else burns one
	// unit of the daily allowance here, before any state is written.
	if err := h.quotaSvc.CheckAndConsume(ctx, currentUser); err != nil {
		if errors.Is(err, services.ErrQuotaExceeded) {
			fail(c, http.StatusTooManyRequests, ErrCodeQuotaExceeded, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	msg, job, err := h.roomSvc.SendMessage(ctx, currentUser, chatroomID, content)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrChatroomNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "chatroom not found")
		case errors.Is(err, services.ErrTooLong):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d runes", maxRunes))
		case errors.Is(err, services.ErrEmptyPrompt):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeSendFailed, err.Error())
		}
		return
	}

	ok(c, http.StatusAccepted, PostMessageResponse{
		Message: msg,
		JobID:   job.ID,
		Status:  "queued",
	})
}
