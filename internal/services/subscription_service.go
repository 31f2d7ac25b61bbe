// Package services – SubscriptionService
//
// This file implements the subscription status view and the quota gate that
// decides whether a message send may proceed. Pro users with an active (or
// trialing) subscription bypass the daily counter entirely; everyone else
// consumes one unit of the daily allowance per successful check, atomically,
// so concurrent sends cannot overshoot the cap.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/deepanshu1531/gemini-backend-clone/internal/domain"
	"github.com/deepanshu1531/gemini-backend-clone/internal/repo"
)

// SubscriptionRepo defines the persistence contract required by
// SubscriptionService.
type SubscriptionRepo interface {
	// GetSubscription returns the user's subscription row, or
	// gorm.ErrRecordNotFound when the user has never subscribed.
	GetSubscription(ctx context.Context, db *gorm.DB, userID string) (*domain.Subscription, error)

	// GetUsage returns the user's daily usage counter; a missing row reads
	// as a zeroed counter for the current day.
	GetUsage(ctx context.Context, db *gorm.DB, userID string, now time.Time) (*domain.UsageCounter, error)

	// IncrementUsage atomically applies the daily quota rule and reports
	// whether the request is allowed together with the resulting count.
	IncrementUsage(ctx context.Context, db *gorm.DB, userID string, limit int, now time.Time) (allowed bool, count int, err error)
}

// gormSubscriptionRepo adapts the package-level repo functions to the
// SubscriptionRepo interface for production wiring.
type gormSubscriptionRepo struct{}

func (gormSubscriptionRepo) GetSubscription(ctx context.Context, db *gorm.DB, userID string) (*domain.Subscription, error) {
	return repo.GetSubscription(ctx, db, userID)
}

func (gormSubscriptionRepo) GetUsage(ctx context.Context, db *gorm.DB, userID string, now time.Time) (*domain.UsageCounter, error) {
	return repo.GetUsage(ctx, db, userID, now)
}

func (gormSubscriptionRepo) IncrementUsage(ctx context.Context, db *gorm.DB, userID string, limit int, now time.Time) (allowed bool, count int, err error) {
	return repo.IncrementUsage(ctx, db, userID, limit, now)
}

// NewGormSubscriptionRepo returns the production SubscriptionRepo backed by
// the repo package.
func NewGormSubscriptionRepo() SubscriptionRepo { return gormSubscriptionRepo{} }

// Status is the user-facing view of a subscription combined with today's
// usage. Unlimited reports whether the quota gate is bypassed; Remaining is
// meaningful only when Unlimited is false.
type Status struct {
	Plan              string     `json:"plan"`
	Status            string     `json:"status"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	Unlimited         bool       `json:"unlimited"`
	DailyLimit        int        `json:"daily_limit"`
	UsedToday         int        `json:"used_today"`
	Remaining         int        `json:"remaining"`
}

// SubscriptionService answers subscription status queries and enforces the
// daily prompt quota for basic-plan users.
type SubscriptionService struct {
	DB         *gorm.DB
	Repo       SubscriptionRepo
	DailyQuota int
	Log        zerolog.Logger

	// Now allows tests to pin the clock; nil means time.Now.
	Now func() time.Time
}

// Status returns the user's plan, billing state, and today's quota usage.
// A user without a subscription row is reported on the basic plan with no
// billing status rather than as an error.
func (s *SubscriptionService) Status(ctx context.Context, userID string) (*Status, error) {
	tr := otel.Tracer("services/SubscriptionService")
	ctx, span := tr.Start(ctx, "Status",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	now := s.now()
	out := &Status{
		Plan:       domain.PlanBasic,
		Status:     "none",
		DailyLimit: s.quota(),
	}

	sub, err := s.Repo.GetSubscription(ctx, s.DB, userID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// basic defaults already set
	case err != nil:
		return nil, err
	default:
		out.Plan = sub.Plan
		out.Status = sub.Status
		out.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
		if !sub.CurrentPeriodEnd.IsZero() {
			end := sub.CurrentPeriodEnd
			out.CurrentPeriodEnd = &end
		}
		out.Unlimited = sub.Plan == domain.PlanPro && sub.IsActive()
	}

	usage, err := s.Repo.GetUsage(ctx, s.DB, userID, now)
	if err != nil {
		return nil, err
	}
	if usage.Day == repo.DayKey(now) {
		out.UsedToday = usage.Count
	}
	if !out.Unlimited {
		out.Remaining = s.quota() - out.UsedToday
		if out.Remaining < 0 {
			out.Remaining = 0
		}
	}
	return out, nil
}

// CheckAndConsume decides whether userID may send one more message today.
// Pro users with an active subscription always pass and consume nothing.
// Everyone else runs through the atomic daily counter; a rejection returns
// ErrQuotaExceeded and leaves the counter untouched.
func (s *SubscriptionService) CheckAndConsume(ctx context.Context, userID string) error {
	tr := otel.Tracer("services/SubscriptionService")
	ctx, span := tr.Start(ctx, "CheckAndConsume",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	sub, err := s.Repo.GetSubscription(ctx, s.DB, userID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if sub != nil && sub.Plan == domain.PlanPro && sub.IsActive() {
		span.SetAttributes(attribute.Bool("quota.bypassed", true))
		return nil
	}

	allowed, count, err := s.Repo.IncrementUsage(ctx, s.DB, userID, s.quota(), s.now())
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("quota.count", count))
	if !allowed {
		s.Log.Info().
			Str("user_id", userID).
			Int("count", count).
			Int("limit", s.quota()).
			Msg("daily quota exhausted")
		return ErrQuotaExceeded
	}
	return nil
}

// quota returns the configured daily allowance, defaulting to 5.
func (s *SubscriptionService) quota() int {
	if s.DailyQuota > 0 {
		return s.DailyQuota
	}
	return 5
}

// now returns the service clock.
func (s *SubscriptionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
