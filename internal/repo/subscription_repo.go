// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Subscription model, written by the webhook ingestor and read by the
// quota gate.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/deepanshu1531/gemini-backend-clone/internal/domain"
)

// GetSubscription returns the subscription row for userID, or ErrNotFound.
// At most one row exists per user (unique index on user_id).
func GetSubscription(ctx context.Context, db *gorm.DB, userID string) (*domain.Subscription, error) {
	var s domain.Subscription
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertSubscription creates or replaces the subscription state for a user
// with absolute values. Handlers assign, never add deltas, so re-applying
// the same event converges to the same row.
func UpsertSubscription(ctx context.Context, db *gorm.DB, sub domain.Subscription) (*domain.Subscription, error) {
	now := time.Now().UTC()
	return upsert(ctx, db, sub.UserID, func(existing *domain.Subscription) {
		existing.StripeCustomerID = sub.StripeCustomerID
		existing.Plan = sub.Plan
		existing.Status = sub.Status
		existing.CurrentPeriodEnd = sub.CurrentPeriodEnd
		existing.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
		existing.UpdatedAt = now
	})
}

// UpdateSubscriptionBilling updates status, period end, and cancel flag for
// an existing subscription matched by user id. The plan is left unchanged.
// A missing row is created with the basic plan so out-of-order provider
// events still land somewhere deterministic.
func UpdateSubscriptionBilling(ctx context.Context, db *gorm.DB, userID, status string, periodEnd time.Time, cancelAtPeriodEnd bool) (*domain.Subscription, error) {
	now := time.Now().UTC()
	return upsert(ctx, db, userID, func(existing *domain.Subscription) {
		existing.Status = status
		existing.CurrentPeriodEnd = periodEnd
		existing.CancelAtPeriodEnd = cancelAtPeriodEnd
		existing.UpdatedAt = now
	})
}

// CancelSubscription sets status to canceled for userID. The plan and the
// period end are left untouched. Missing rows return ErrNotFound.
func CancelSubscription(ctx context.Context, db *gorm.DB, userID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"status":     domain.StatusCanceled,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// upsert loads-or-creates the user's subscription row inside a transaction
// and applies mutate before saving.
func upsert(ctx context.Context, db *gorm.DB, userID string, mutate func(*domain.Subscription)) (*domain.Subscription, error) {
	var out domain.Subscription
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s domain.Subscription
		err := tx.Where("user_id = ?", userID).First(&s).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			now := time.Now().UTC()
			s = domain.Subscription{
				ID:        uuid.NewString(),
				UserID:    userID,
				Plan:      domain.PlanBasic,
				Status:    domain.StatusActive,
				CreatedAt: now,
				UpdatedAt: now,
			}
		case err != nil:
			return err
		}
		mutate(&s)
		if err := tx.Save(&s).Error; err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
