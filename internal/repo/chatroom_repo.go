// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Chatroom
// and Message models.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a chatroom is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/deepanshu1531/gemini-backend-clone/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateChatroom inserts a new Chatroom row owned by userID with the given
// title. The id is a randomly generated UUID and timestamps are UTC.
func CreateChatroom(ctx context.Context, db *gorm.DB, userID, title string) (*domain.Chatroom, error) {
	now := time.Now().UTC()
	c := &domain.Chatroom{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// GetChatroom fetches a single chatroom by its ID and owner (userID). If the
// record does not exist or belongs to someone else, it returns ErrNotFound.
func GetChatroom(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Chatroom, error) {
	var c domain.Chatroom
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListChatroomSummaries returns the listing projection of all chatrooms
// belonging to userID, ordered by last update descending (most recently
// active first). Message bodies are never loaded.
func ListChatroomSummaries(ctx context.Context, db *gorm.DB, userID string) ([]domain.ChatroomSummary, error) {
	var out []domain.ChatroomSummary
	err := db.WithContext(ctx).
		Model(&domain.Chatroom{}).
		Where("user_id = ?", userID).
		Order("updated_at desc").
		Find(&out).Error
	if out == nil {
		out = []domain.ChatroomSummary{}
	}
	return out, err
}

// AppendMessage inserts a message into chatroomID and touches the parent
// chatroom's updated_at inside one transaction, so the listing order and the
// message append can never diverge. The chatroom row is re-checked inside
// the transaction; a missing chatroom returns ErrNotFound.
func AppendMessage(ctx context.Context, db *gorm.DB, chatroomID, sender, content string) (*domain.Message, error) {
	m := &domain.Message{
		ID:         uuid.NewString(),
		ChatroomID: chatroomID,
		Sender:     sender,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Chatroom{}).
			Where("id = ?", chatroomID).
			Update("updated_at", m.CreatedAt)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Create(m).Error
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CountMessages returns the number of messages in a chatroom. A raw COUNT is
// used so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, chatroomID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM messages WHERE chatroom_id = ? AND deleted_at IS NULL", chatroomID).
		Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice ordered by insertion
// (CreatedAt ASC, ID ASC). The order is deterministic and never rewritten.
func ListMessagesPage(ctx context.Context, db *gorm.DB, chatroomID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("chatroom_id = ?", chatroomID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdateChatroomTitle updates the title of a chatroom identified by id.
// If no rows are affected the chatroom is missing and ErrNotFound is
// returned.
func UpdateChatroomTitle(ctx context.Context, db *gorm.DB, id, title string) error {
	res := db.WithContext(ctx).
		Model(&domain.Chatroom{}).
		Where("id = ?", id).
		Update("title", title)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
