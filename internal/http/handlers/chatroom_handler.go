// Chatroom HTTP handlers.
//
// This file exposes REST endpoints for chatroom resources:
//   - POST /chatrooms       (create)
//   - GET  /chatrooms       (list, served through the read-through cache)
//   - GET  /chatrooms/{id}  (detail with a page of messages)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses. List responses carry
// an X-Cache header (HIT/MISS) so clients and tests can observe whether the
// cache served the request.
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/deepanshu1531/gemini-backend-clone/internal/domain"
	"github.com/deepanshu1531/gemini-backend-clone/internal/http/middleware"
	"github.com/deepanshu1531/gemini-backend-clone/internal/services"
	"github.com/deepanshu1531/gemini-backend-clone/internal/utils"
)

//
// Service contracts (context-aware)
//

// ChatroomService defines the chatroom lifecycle operations consumed by the
// HTTP handlers. Implementations must be safe for concurrent use and honor
// the provided context.
type ChatroomService interface {
	// Create starts a new chatroom for userID with an optional title.
	Create(ctx context.Context, userID, title string) (*domain.Chatroom, error)
	// List returns the user's chatroom summaries and whether the cache
	// served them.
	List(ctx context.Context, userID string) ([]domain.ChatroomSummary, bool, error)
	// Get returns one chatroom with a page of messages and the total count.
	Get(ctx context.Context, userID, chatroomID string, page, pageSize int) (*domain.Chatroom, []domain.Message, int64, error)
	// SendMessage appends a user message and enqueues a generation job.
	SendMessage(ctx context.Context, userID, chatroomID, content string) (*domain.Message, *domain.Job, error)
}

// QuotaService gates message sends against the caller's plan and daily
// allowance.
type QuotaService interface {
	// CheckAndConsume returns nil when one more send is allowed today and
	// ErrQuotaExceeded when the daily cap is reached.
	CheckAndConsume(ctx context.Context, userID string) error
	// Status reports the caller's plan and usage.
	Status(ctx context.Context, userID string) (*services.Status, error)
}

// WebhookIngestor processes raw billing webhook deliveries.
type WebhookIngestor interface {
	HandleDelivery(ctx context.Context, payload []byte, sigHeader string) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for chatrooms, messages, subscriptions,
// and webhooks. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	roomSvc  ChatroomService
	quotaSvc QuotaService
	webhook  WebhookIngestor
}

// New constructs a Handlers instance bound to the given services.
func New(roomSvc ChatroomService, quotaSvc QuotaService, webhook WebhookIngestor) *Handlers {
	return &Handlers{roomSvc: roomSvc, quotaSvc: quotaSvc, webhook: webhook}
}

//
// DTOs
//

// CreateChatroomRequest is the JSON payload for creating a chatroom.
type CreateChatroomRequest struct {
	// Title optionally names the chatroom; a default is used when empty.
	Title string `json:"title"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListChatroomsResponse wraps the user's chatroom summaries.
type ListChatroomsResponse struct {
	Chatrooms []domain.ChatroomSummary `json:"chatrooms"`
}

// ChatroomDetailResponse is the chatroom detail with a page of messages.
type ChatroomDetailResponse struct {
	Chatroom   *domain.Chatroom `json:"chatroom"`
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

//
// Handlers
//

// CreateChatroom creates a chatroom for the current user and returns the
// resource with 201.
func (h *Handlers) CreateChatroom(c *gin.Context) {
	var req CreateChatroomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	title := strings.TrimSpace(req.Title)

	room, err := h.roomSvc.Create(c.Request.Context(), middleware.UserID(c), title)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, room)
}

// ListChatrooms returns the user's chatrooms, most recently active first.
// The X-Cache response header reports HIT when the read-through cache served
// the request without touching the store.
func (h *Handlers) ListChatrooms(c *gin.Context) {
	items, fromCache, err := h.roomSvc.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if fromCache {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
	ok(c, http.StatusOK, ListChatroomsResponse{Chatrooms: items})
}

// GetChatroom returns one chatroom owned by the current user together with a
// page of its messages in conversation order.
func (h *Handlers) GetChatroom(c *gin.Context) {
	chatroomID := c.Param("id")
	if _, err := uuid.Parse(chatroomID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chatroom id must be a UUID")
		return
	}
	page, pageSize := clampPagination(c)

	room, msgs, total, err := h.roomSvc.Get(c.Request.Context(), middleware.UserID(c), chatroomID, page, pageSize)
	if err != nil {
		if err == services.ErrChatroomNotFound {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "chatroom not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ChatroomDetailResponse{
		Chatroom: room,
		Messages: msgs,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
