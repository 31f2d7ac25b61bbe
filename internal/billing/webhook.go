// Package billing implements the webhook ingestor: an idempotent state
// machine that applies externally-signed payment-provider events to
// Subscription records.
//
// The provider controls delivery, so the ingestor must tolerate duplicates
// and out-of-order arrival. Two layers provide that: handlers assign
// absolute values (never deltas), so re-applying an event converges to the
// same state; and processed event ids are persisted, so an exact
// re-delivery is skipped entirely and cannot double-apply side effects to
// logs or audit trails.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/deepanshu1531/gemini-backend-clone/internal/domain"
	"github.com/deepanshu1531/gemini-backend-clone/internal/repo"
)

// Event kinds the state machine understands. Unknown kinds are acknowledged
// and ignored so the provider does not retry deliveries we will never use.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// fallbackPeriod approximates the billing period when an event carries no
// authoritative current_period_end.
const fallbackPeriod = 30 * 24 * time.Hour

// ErrMissingUser is returned when an event's metadata does not identify the
// affected user. Such an event can never be applied and is non-retryable.
var ErrMissingUser = errors.New("webhook event has no userId metadata")

// Event is the parsed provider delivery.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object EventObject `json:"object"`
	} `json:"data"`
}

// EventObject is the subscription (or checkout session) the event is about.
// CurrentPeriodEnd is the provider's authoritative period end in unix
// seconds; zero means absent.
type EventObject struct {
	Mode              string            `json:"mode,omitempty"` // checkout sessions only
	Customer          string            `json:"customer"`
	Status            string            `json:"status"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64             `json:"current_period_end"`
	Metadata          map[string]string `json:"metadata"`
}

// UserID returns the user the event applies to, from metadata.
func (o EventObject) UserID() string { return o.Metadata["userId"] }

// Ingestor verifies, deduplicates, and applies webhook deliveries.
type Ingestor struct {
	DB        *gorm.DB
	Secret    string        // shared endpoint secret for signature checks
	Tolerance time.Duration // accepted timestamp skew
	EventTTL  time.Duration // retention for processed event ids
	Log       zerolog.Logger
}

// HandleDelivery processes one raw delivery end to end: verify the
// signature against the untouched payload bytes, parse, skip duplicates,
// and dispatch by event kind. A returned ErrSignature means the delivery
// must be rejected and never retried as-is; nil means the provider can
// consider the event received.
func (i *Ingestor) HandleDelivery(ctx context.Context, payload []byte, sigHeader string) error {
	tr := otel.Tracer("billing/Ingestor")
	ctx, span := tr.Start(ctx, "HandleDelivery")
	defer span.End()

	if err := VerifySignature(payload, sigHeader, i.Secret, i.Tolerance, time.Now()); err != nil {
		i.Log.Warn().Err(err).Msg("webhook rejected")
		return err
	}

	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return fmt.Errorf("%w: unparseable payload", ErrSignature)
	}
	span.SetAttributes(
		attribute.String("event.id", evt.ID),
		attribute.String("event.type", evt.Type),
	)

	// Deduplicate by event id before touching any state. An event without
	// an id (should not happen) is applied unconditionally; handlers are
	// idempotent either way.
	if evt.ID != "" {
		seen, err := repo.WasEventProcessed(ctx, i.DB, evt.ID, time.Now().UTC())
		if err != nil {
			return err
		}
		if seen {
			i.Log.Info().Str("event_id", evt.ID).Str("type", evt.Type).Msg("duplicate webhook delivery skipped")
			return nil
		}
	}

	if err := i.apply(ctx, evt); err != nil {
		return err
	}

	if evt.ID != "" {
		if err := repo.MarkEventProcessed(ctx, i.DB, evt.ID, evt.Type, i.EventTTL); err != nil &&
			!errors.Is(err, repo.ErrDuplicateEvent) {
			return err
		}
	}
	return nil
}

// apply dispatches a verified, novel event to its handler.
func (i *Ingestor) apply(ctx context.Context, evt Event) error {
	tr := otel.Tracer("billing/Ingestor")
	ctx, span := tr.Start(ctx, "apply",
		trace.WithAttributes(attribute.String("event.type", evt.Type)),
	)
	defer span.End()

	obj := evt.Data.Object
	switch evt.Type {
	case EventCheckoutCompleted:
		return i.applyCheckoutCompleted(ctx, obj)
	case EventSubscriptionUpdated:
		return i.applySubscriptionUpdated(ctx, obj)
	case EventSubscriptionDeleted:
		return i.applySubscriptionDeleted(ctx, obj)
	default:
		i.Log.Debug().Str("type", evt.Type).Msg("ignoring unhandled webhook event")
		return nil
	}
}

// applyCheckoutCompleted upserts the user's subscription to the pro plan
// with the provider's reported status. Non-subscription checkouts (one-off
// payments) are ignored.
func (i *Ingestor) applyCheckoutCompleted(ctx context.Context, obj EventObject) error {
	if obj.Mode != "subscription" {
		return nil
	}
	userID := obj.UserID()
	if userID == "" {
		return ErrMissingUser
	}
	sub, err := repo.UpsertSubscription(ctx, i.DB, domain.Subscription{
		UserID:            userID,
		StripeCustomerID:  obj.Customer,
		Plan:              domain.PlanPro,
		Status:            obj.Status,
		CurrentPeriodEnd:  i.periodEnd(obj),
		CancelAtPeriodEnd: obj.CancelAtPeriodEnd,
	})
	if err != nil {
		return err
	}
	i.Log.Info().
		Str("user_id", userID).
		Str("status", sub.Status).
		Time("period_end", sub.CurrentPeriodEnd).
		Msg("subscription upgraded to pro")
	return nil
}

// applySubscriptionUpdated refreshes status, period end, and cancel flag for
// the user's subscription. The plan is not changed here.
func (i *Ingestor) applySubscriptionUpdated(ctx context.Context, obj EventObject) error {
	userID := obj.UserID()
	if userID == "" {
		return ErrMissingUser
	}
	sub, err := repo.UpdateSubscriptionBilling(ctx, i.DB, userID, obj.Status, i.periodEnd(obj), obj.CancelAtPeriodEnd)
	if err != nil {
		return err
	}
	i.Log.Info().
		Str("user_id", userID).
		Str("status", sub.Status).
		Msg("subscription updated")
	return nil
}

// applySubscriptionDeleted marks the subscription canceled. Plan and period
// end stay as they were; a vanished subscription for an unknown user is
// nothing to do, not an error.
func (i *Ingestor) applySubscriptionDeleted(ctx context.Context, obj EventObject) error {
	userID := obj.UserID()
	if userID == "" {
		return ErrMissingUser
	}
	err := repo.CancelSubscription(ctx, i.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		i.Log.Warn().Str("user_id", userID).Msg("delete event for unknown subscription")
		return nil
	}
	if err != nil {
		return err
	}
	i.Log.Info().Str("user_id", userID).Msg("subscription canceled")
	return nil
}

// periodEnd prefers the provider's authoritative current_period_end and
// falls back to the 30-day approximation when the event omits it.
func (i *Ingestor) periodEnd(obj EventObject) time.Time {
	if obj.CurrentPeriodEnd > 0 {
		return time.Unix(obj.CurrentPeriodEnd, 0).UTC()
	}
	return time.Now().UTC().Add(fallbackPeriod)
}
