// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the
// ProcessedEvent model used to deduplicate webhook deliveries.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/deepanshu1531/gemini-backend-clone/internal/domain"
)

// ErrDuplicateEvent indicates that a webhook event id was already recorded,
// i.e. this delivery is a re-delivery and must not be re-applied.
var ErrDuplicateEvent = errors.New("event already processed")

// WasEventProcessed reports whether eventID has a non-expired record.
func WasEventProcessed(ctx context.Context, db *gorm.DB, eventID string, now time.Time) (bool, error) {
	var rec domain.ProcessedEvent
	err := db.WithContext(ctx).
		Where("id = ? AND expires_at > ?", eventID, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkEventProcessed records eventID and returns ErrDuplicateEvent when a
// concurrent delivery already inserted it. The primary key on the event id
// makes the insert the deduplication point.
func MarkEventProcessed(ctx context.Context, db *gorm.DB, eventID, kind string, ttl time.Duration) error {
	now := time.Now().UTC()
	rec := &domain.ProcessedEvent{
		ID:        eventID,
		Kind:      kind,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed") {
			return ErrDuplicateEvent
		}
		return err
	}
	return nil
}

// ReapProcessedEvents deletes expired event records and returns the number
// removed.
func ReapProcessedEvents(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.ProcessedEvent{})
	return res.RowsAffected, res.Error
}
