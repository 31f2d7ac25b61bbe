package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/deepanshu1531/gemini-backend-clone/internal/domain"
	"github.com/deepanshu1531/gemini-backend-clone/internal/repo"
)

const testSecret = "whsec_test"

func newBillingDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("billing_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := db.AutoMigrate(&domain.Subscription{}, &domain.ProcessedEvent{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newIngestor(db *gorm.DB) *Ingestor {
	return &Ingestor{
		DB:        db,
		Secret:    testSecret,
		Tolerance: 5 * time.Minute,
		EventTTL:  72 * time.Hour,
		Log:       zerolog.Nop(),
	}
}

// delivery marshals evt and signs it like the provider would.
func delivery(t *testing.T, evt Event) (payload []byte, header string) {
	t.Helper()
	payload, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload, signHeader(payload, testSecret, time.Now())
}

func checkoutEvent(id, userID string, periodEnd int64) Event {
	var evt Event
	evt.ID = id
	evt.Type = EventCheckoutCompleted
	evt.Data.Object = EventObject{
		Mode:             "subscription",
		Customer:         "cus_42",
		Status:           domain.StatusActive,
		CurrentPeriodEnd: periodEnd,
		Metadata:         map[string]string{"userId": userID},
	}
	return evt
}

func TestHandleDelivery_CheckoutUpgradesToPro(t *testing.T) {
	db := newBillingDB(t)
	ing := newIngestor(db)
	end := time.Now().Add(30 * 24 * time.Hour).Unix()

	payload, header := delivery(t, checkoutEvent("evt_1", "u1", end))
	if err := ing.HandleDelivery(context.Background(), payload, header); err != nil {
		t.Fatalf("HandleDelivery: %v", err)
	}

	sub, err := repo.GetSubscription(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if sub.Plan != domain.PlanPro || sub.Status != domain.StatusActive {
		t.Fatalf("subscription: %+v", sub)
	}
	if sub.CurrentPeriodEnd.Unix() != end {
		t.Fatalf("period end = %v, want provider value", sub.CurrentPeriodEnd)
	}
}

func TestHandleDelivery_InvalidSignatureMutatesNothing(t *testing.T) {
	db := newBillingDB(t)
	ing := newIngestor(db)

	payload, _ := delivery(t, checkoutEvent("evt_1", "u1", 0))
	badHeader := signHeader(payload, "whsec_wrong", time.Now())

	err := ing.HandleDelivery(context.Background(), payload, badHeader)
	if !errors.Is(err, ErrSignature) {
		t.Fatalf("err = %v, want ErrSignature", err)
	}
	if _, err := repo.GetSubscription(context.Background(), db, "u1"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatal("rejected delivery still created a subscription")
	}
	seen, _ := repo.WasEventProcessed(context.Background(), db, "evt_1", time.Now().UTC())
	if seen {
		t.Fatal("rejected delivery was recorded as processed")
	}
}

func TestHandleDelivery_DuplicateEventSkipped(t *testing.T) {
	db := newBillingDB(t)
	ing := newIngestor(db)
	ctx := context.Background()

	payload, header := delivery(t, checkoutEvent("evt_dup", "u1", 0))
	if err := ing.HandleDelivery(ctx, payload, header); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	before, _ := repo.GetSubscription(ctx, db, "u1")

	// Exact re-delivery acknowledges without re-applying.
	if err := ing.HandleDelivery(ctx, payload, header); err != nil {
		t.Fatalf("re-delivery: %v", err)
	}
	after, _ := repo.GetSubscription(ctx, db, "u1")
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatal("duplicate delivery re-applied the event")
	}
	var n int64
	if err := db.Model(&domain.Subscription{}).Count(&n).Error; err != nil || n != 1 {
		t.Fatalf("subscription rows = %d, %v", n, err)
	}
}

func TestHandleDelivery_SubscriptionUpdated(t *testing.T) {
	db := newBillingDB(t)
	ing := newIngestor(db)
	ctx := context.Background()

	// Upgrade first, then the provider reports a billing change.
	payload, header := delivery(t, checkoutEvent("evt_1", "u1", 0))
	if err := ing.HandleDelivery(ctx, payload, header); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	newEnd := time.Now().Add(60 * 24 * time.Hour).Unix()
	var upd Event
	upd.ID = "evt_2"
	upd.Type = EventSubscriptionUpdated
	upd.Data.Object = EventObject{
		Status:            domain.StatusPastDue,
		CancelAtPeriodEnd: true,
		CurrentPeriodEnd:  newEnd,
		Metadata:          map[string]string{"userId": "u1"},
	}
	payload, header = delivery(t, upd)
	if err := ing.HandleDelivery(ctx, payload, header); err != nil {
		t.Fatalf("update: %v", err)
	}

	sub, _ := repo.GetSubscription(ctx, db, "u1")
	if sub.Plan != domain.PlanPro {
		t.Fatalf("update changed plan: %q", sub.Plan)
	}
	if sub.Status != domain.StatusPastDue || !sub.CancelAtPeriodEnd || sub.CurrentPeriodEnd.Unix() != newEnd {
		t.Fatalf("billing fields: %+v", sub)
	}
}

func TestHandleDelivery_SubscriptionDeleted(t *testing.T) {
	db := newBillingDB(t)
	ing := newIngestor(db)
	ctx := context.Background()

	payload, header := delivery(t, checkoutEvent("evt_1", "u1", 0))
	if err := ing.HandleDelivery(ctx, payload, header); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	var del Event
	del.ID = "evt_2"
	del.Type = EventSubscriptionDeleted
	del.Data.Object = EventObject{Metadata: map[string]string{"userId": "u1"}}
	payload, header = delivery(t, del)
	if err := ing.HandleDelivery(ctx, payload, header); err != nil {
		t.Fatalf("delete: %v", err)
	}

	sub, _ := repo.GetSubscription(ctx, db, "u1")
	if sub.Status != domain.StatusCanceled {
		t.Fatalf("status = %q, want canceled", sub.Status)
	}
}

func TestHandleDelivery_DeleteForUnknownUserAcknowledged(t *testing.T) {
	db := newBillingDB(t)
	ing := newIngestor(db)

	var del Event
	del.ID = "evt_1"
	del.Type = EventSubscriptionDeleted
	del.Data.Object = EventObject{Metadata: map[string]string{"userId": "stranger"}}
	payload, header := delivery(t, del)

	if err := ing.HandleDelivery(context.Background(), payload, header); err != nil {
		t.Fatalf("delete for unknown user must acknowledge, got %v", err)
	}
}

func TestHandleDelivery_UnknownEventTypeAcknowledged(t *testing.T) {
	db := newBillingDB(t)
	ing := newIngestor(db)

	var evt Event
	evt.ID = "evt_1"
	evt.Type = "invoice.paid"
	payload, header := delivery(t, evt)

	if err := ing.HandleDelivery(context.Background(), payload, header); err != nil {
		t.Fatalf("unknown event type must acknowledge, got %v", err)
	}
}

func TestHandleDelivery_NonSubscriptionCheckoutIgnored(t *testing.T) {
	db := newBillingDB(t)
	ing := newIngestor(db)

	evt := checkoutEvent("evt_1", "u1", 0)
	evt.Data.Object.Mode = "payment" // one-off purchase
	payload, header := delivery(t, evt)

	if err := ing.HandleDelivery(context.Background(), payload, header); err != nil {
		t.Fatalf("HandleDelivery: %v", err)
	}
	if _, err := repo.GetSubscription(context.Background(), db, "u1"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatal("one-off payment created a subscription")
	}
}

func TestHandleDelivery_MissingUserRejected(t *testing.T) {
	db := newBillingDB(t)
	ing := newIngestor(db)

	evt := checkoutEvent("evt_1", "u1", 0)
	evt.Data.Object.Metadata = nil
	payload, header := delivery(t, evt)

	if err := ing.HandleDelivery(context.Background(), payload, header); !errors.Is(err, ErrMissingUser) {
		t.Fatalf("err = %v, want ErrMissingUser", err)
	}
}

func TestHandleDelivery_UnparseablePayload(t *testing.T) {
	db := newBillingDB(t)
	ing := newIngestor(db)

	payload := []byte("not json at all")
	header := signHeader(payload, testSecret, time.Now())

	if err := ing.HandleDelivery(context.Background(), payload, header); !errors.Is(err, ErrSignature) {
		t.Fatalf("err = %v, want ErrSignature-wrapped rejection", err)
	}
}

func TestPeriodEnd_FallbackWhenAbsent(t *testing.T) {
	ing := newIngestor(nil)

	before := time.Now().UTC().Add(29 * 24 * time.Hour)
	got := ing.periodEnd(EventObject{})
	after := time.Now().UTC().Add(31 * 24 * time.Hour)
	if got.Before(before) || got.After(after) {
		t.Fatalf("fallback period end = %v, want ~30 days out", got)
	}
}
