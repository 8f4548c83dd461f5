// Package domain defines the persistence models for subscriptions, newsletter
// issues, and the delivery queue. These types are mapped with GORM and form
// the core data layer of the newsletter application.
package domain

import "time"

// Subscription statuses. A subscriber only receives newsletters once their
// subscription has been confirmed via the emailed confirmation link.
const (
	SubscriptionPending   = "pending"
	SubscriptionConfirmed = "confirmed"
)

// Subscription represents a newsletter sign-up. New subscriptions start in
// the "pending" state and move to "confirmed" when the subscriber follows
// the confirmation link carrying their token.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Email: subscriber address; unique so repeated sign-ups are rejected.
//   - Name: display name provided at sign-up.
//   - Status: "pending" or "confirmed" (enforced by DB constraint).
//   - ConfirmationToken: opaque UUID used by the confirmation endpoint.
//   - SubscribedAt: UTC timestamp of the original sign-up.
type Subscription struct {
	ID                string    `json:"id"                 gorm:"type:char(36);primaryKey"`
	Email             string    `json:"email"              gorm:"type:varchar(320);not null;uniqueIndex:ux_subscriptions_email"`
	Name              string    `json:"name"               gorm:"type:varchar(255);not null"`
	Status            string    `json:"status"             gorm:"type:varchar(16);not null;check:status IN ('pending','confirmed');index:idx_subscriptions_status"`
	ConfirmationToken string    `json:"-"                  gorm:"type:char(36);not null;uniqueIndex:ux_subscriptions_token"`
	SubscribedAt      time.Time `json:"subscribed_at"`
}

// TableName returns the database table name for Subscription.
func (Subscription) TableName() string { return "subscriptions" }

// NewsletterIssue is a published newsletter. An issue is written exactly once,
// inside the same transaction that fans out its delivery queue rows, and is
// immutable afterwards; the delivery worker only ever reads it back.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Title: subject line used for every outgoing email.
//   - TextContent / HTMLContent: the two bodies sent to subscribers.
//   - PublishedAt: UTC timestamp of acceptance (not of delivery).
type NewsletterIssue struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	Title       string    `json:"title"        gorm:"type:varchar(255);not null"`
	TextContent string    `json:"text_content" gorm:"type:text;not null"`
	HTMLContent string    `json:"html_content" gorm:"type:text;not null"`
	PublishedAt time.Time `json:"published_at"`
}

// TableName returns the database table name for NewsletterIssue.
func (NewsletterIssue) TableName() string { return "newsletter_issues" }

// DeliveryQueueEntry is one pending email delivery: (issue, subscriber) with
// no identity beyond that pair. Row existence is the only state: a row is
// deleted after its single delivery attempt, so "pending" means "row exists".
//
// ClaimToken and ClaimedAt implement the claim-lease dequeue: a worker stamps
// a fresh token on one row to take exclusive ownership, sends without holding
// any database transaction, and deletes the row on completion. A claim older
// than the configured lease TTL is considered abandoned (crashed worker) and
// the row becomes claimable again.
type DeliveryQueueEntry struct {
	NewsletterID    string     `json:"newsletter_id"    gorm:"type:char(36);not null;primaryKey;priority:1"`
	SubscriberEmail string     `json:"subscriber_email" gorm:"type:varchar(320);not null;primaryKey;priority:2"`
	ClaimToken      *string    `json:"-"                gorm:"type:char(36);index:idx_delivery_queue_claim"`
	ClaimedAt       *time.Time `json:"-"`
}

// TableName returns the database table name for DeliveryQueueEntry.
func (DeliveryQueueEntry) TableName() string { return "delivery_queue" }
