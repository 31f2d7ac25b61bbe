// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the per-user daily usage counter
// consulted by the quota gate.
//
// The check-and-increment is performed inside a single transaction so two
// concurrent requests from the same user cannot both observe count = cap-1
// and both increment past the cap. SQLite serializes writers, which makes
// the transaction a true atomic compare-and-increment here.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/deepanshu1531/gemini-backend-clone/internal/domain"
)

// DayKey formats t as the UTC calendar day used for counter resets.
// The day boundary is pinned to UTC so quota windows do not shift with
// server deployment region.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// GetUsage returns the usage counter for userID. A missing row is reported
// as a zeroed counter for the current day, not an error.
func GetUsage(ctx context.Context, db *gorm.DB, userID string, now time.Time) (*domain.UsageCounter, error) {
	var u domain.UsageCounter
	err := db.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.UsageCounter{UserID: userID, Day: DayKey(now)}, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// IncrementUsage atomically applies the daily quota rule for userID:
//
//   - if the stored day differs from now's UTC date, the count resets to 0
//     and the day is set to today;
//   - if the (possibly reset) count is already >= limit, nothing is mutated
//     and allowed=false is returned together with the current count;
//   - otherwise the count is incremented, persisted, and allowed=true is
//     returned with the new count.
//
// The whole read-modify-write runs in one transaction.
func IncrementUsage(ctx context.Context, db *gorm.DB, userID string, limit int, now time.Time) (allowed bool, count int, err error) {
	day := DayKey(now)
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u domain.UsageCounter
		gerr := tx.Where("user_id = ?", userID).First(&u).Error
		switch {
		case errors.Is(gerr, gorm.ErrRecordNotFound):
			u = domain.UsageCounter{UserID: userID, Day: day}
		case gerr != nil:
			return gerr
		}

		reset := u.Day != day
		if reset {
			u.Day = day
			u.Count = 0
		}
		if u.Count >= limit {
			allowed = false
			count = u.Count
			if !reset {
				return nil // rejected: no state mutated
			}
			// A day rollover still has to stick even when the request is
			// rejected, otherwise a stale date could shadow the counter.
			u.UpdatedAt = now.UTC()
			return tx.Save(&u).Error
		}

		u.Count++
		u.UpdatedAt = now.UTC()
		if serr := tx.Save(&u).Error; serr != nil {
			return serr
		}
		allowed = true
		count = u.Count
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	return allowed, count, nil
}
