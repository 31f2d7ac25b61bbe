// Package domain defines the persistence models for chatrooms, messages,
// subscriptions, and usage counters. These types are mapped with GORM and
// form the core data layer of the application.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Message sender values.
const (
	SenderUser = "user"
	SenderAI   = "ai"
)

// Subscription plans.
const (
	PlanBasic = "basic"
	PlanPro   = "pro"
)

// Subscription statuses as reported by the payment provider.
const (
	StatusActive            = "active"
	StatusPastDue           = "past_due"
	StatusUnpaid            = "unpaid"
	StatusCanceled          = "canceled"
	StatusIncomplete        = "incomplete"
	StatusIncompleteExpired = "incomplete_expired"
	StatusTrialing          = "trialing"
)

// Chatroom represents a conversation owned by a user. Each chatroom has a
// title and contains an ordered sequence of messages exchanged between the
// user and the AI.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID: identifier of the owner; indexed for efficient retrieval.
//     Ownership never changes after creation.
//   - Title: human-readable title (defaults to "New Chat").
//   - CreatedAt / UpdatedAt: timestamps managed by GORM. UpdatedAt is touched
//     on every message append so listings can order by recency.
//   - DeletedAt: soft deletion marker.
type Chatroom struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_user_chatrooms"`
	Title     string         `json:"title"      gorm:"type:varchar(255);not null;default:'New Chat'"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"index"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Chatroom.
func (Chatroom) TableName() string { return "chatrooms" }

// ChatroomSummary is the listing projection of a chatroom: everything except
// the message bodies. This is the shape that gets cached per user.
type ChatroomSummary struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a single utterance within a chatroom, authored either by the
// "user" or the "ai". Messages are append-only and ordered by insertion.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - ChatroomID: foreign key to the owning chatroom (indexed).
//   - Sender: "user" or "ai" (enforced by DB constraint).
//   - Content: full text content of the message.
//   - CreatedAt: insertion timestamp; the (chatroom, created_at, id) order is
//     the canonical message order and is never rewritten.
type Message struct {
	ID         string         `json:"id"          gorm:"type:char(36);primaryKey"`
	ChatroomID string         `json:"chatroom_id" gorm:"type:char(36);not null;index:idx_chatroom_msgs,priority:1"`
	Sender     string         `json:"sender"      gorm:"type:varchar(16);not null;check:sender IN ('user','ai')"`
	Content    string         `json:"content"     gorm:"type:text;not null"`
	CreatedAt  time.Time      `json:"created_at"  gorm:"index:idx_chatroom_msgs,priority:2"`
	DeletedAt  gorm.DeletedAt `json:"-"           gorm:"index"`

	// Chatroom is the parent conversation. Messages are cascade-deleted
	// if their chatroom is removed.
	Chatroom Chatroom `json:"-" gorm:"foreignKey:ChatroomID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Subscription holds the billing state for exactly one user (unique index).
// It is written only by the webhook ingestor and read by the quota gate.
//
// Fields:
//   - UserID: owner; exactly one subscription row exists per user.
//   - Plan: "basic" or "pro".
//   - Status: provider-reported lifecycle status.
//   - CurrentPeriodEnd: end of the current billing period.
//   - CancelAtPeriodEnd: provider's cancel flag.
//   - StripeCustomerID: provider customer handle, kept for support tooling.
type Subscription struct {
	ID                string         `json:"id"                   gorm:"type:char(36);primaryKey"`
	UserID            string         `json:"user_id"              gorm:"type:varchar(64);not null;uniqueIndex:ux_subscription_user"`
	StripeCustomerID  string         `json:"-"                    gorm:"type:varchar(64);index"`
	Plan              string         `json:"plan"                 gorm:"type:varchar(16);not null;default:'basic';check:plan IN ('basic','pro')"`
	Status            string         `json:"status"               gorm:"type:varchar(32);not null;default:'active'"`
	CurrentPeriodEnd  time.Time      `json:"current_period_end"`
	CancelAtPeriodEnd bool           `json:"cancel_at_period_end" gorm:"not null;default:false"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `json:"-"                    gorm:"index"`
}

// TableName returns the database table name for Subscription.
func (Subscription) TableName() string { return "subscriptions" }

// IsActive reports whether the subscription counts as active for quota
// purposes ("active" or "trialing").
func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive || s.Status == StatusTrialing
}

// UsageCounter tracks per-user daily prompt usage for the quota gate.
// The counter resets whenever Day differs from the current UTC date.
type UsageCounter struct {
	UserID    string    `json:"user_id"     gorm:"type:varchar(64);primaryKey"`
	Day       string    `json:"day"         gorm:"type:char(10);not null"` // YYYY-MM-DD, UTC
	Count     int       `json:"daily_count" gorm:"not null;default:0"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for UsageCounter.
func (UsageCounter) TableName() string { return "usage_counters" }

// ProcessedEvent records a webhook event id that has already been applied,
// so re-deliveries from the payment provider are skipped instead of
// re-applied. Rows expire and can be reaped after ExpiresAt.
type ProcessedEvent struct {
	ID        string    `json:"id"         gorm:"type:varchar(128);primaryKey"` // provider event id
	Kind      string    `json:"kind"       gorm:"type:varchar(64);not null"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at" gorm:"index"`
}

// TableName returns the database table name for ProcessedEvent.
func (ProcessedEvent) TableName() string { return "processed_events" }
