// Package services – production repository wiring.
//
// This file adapts the repo package's free functions to the ChatroomRepo
// interface. Services stay decoupled from the concrete repo package while
// production wiring reuses the existing functions unchanged; tests swap in
// fakes.
package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/deepanshu1531/gemini-backend-clone/internal/domain"
	"github.com/deepanshu1531/gemini-backend-clone/internal/repo"
)

// gormChatroomRepo proxies ChatroomRepo calls to the repo free functions.
type gormChatroomRepo struct{}

func (gormChatroomRepo) CreateChatroom(ctx context.Context, db *gorm.DB, userID, title string) (*domain.Chatroom, error) {
	return repo.CreateChatroom(ctx, db, userID, title)
}

func (gormChatroomRepo) GetChatroom(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Chatroom, error) {
	return repo.GetChatroom(ctx, db, id, userID)
}

func (gormChatroomRepo) ListChatroomSummaries(ctx context.Context, db *gorm.DB, userID string) ([]domain.ChatroomSummary, error) {
	return repo.ListChatroomSummaries(ctx, db, userID)
}

func (gormChatroomRepo) AppendMessage(ctx context.Context, db *gorm.DB, chatroomID, sender, content string) (*domain.Message, error) {
	return repo.AppendMessage(ctx, db, chatroomID, sender, content)
}

func (gormChatroomRepo) CountMessages(ctx context.Context, db *gorm.DB, chatroomID string) (int64, error) {
	return repo.CountMessages(ctx, db, chatroomID)
}

func (gormChatroomRepo) ListMessagesPage(ctx context.Context, db *gorm.DB, chatroomID string, offset, limit int) ([]domain.Message, error) {
	return repo.ListMessagesPage(ctx, db, chatroomID, offset, limit)
}

func (gormChatroomRepo) UpdateChatroomTitle(ctx context.Context, db *gorm.DB, id, title string) error {
	return repo.UpdateChatroomTitle(ctx, db, id, title)
}

// NewGormChatroomRepo returns the production ChatroomRepo backed by the repo
// package.
func NewGormChatroomRepo() ChatroomRepo { return gormChatroomRepo{} }
