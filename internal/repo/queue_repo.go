// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file is the durable delivery queue: one row per
// (issue, confirmed subscriber), fanned out atomically with the issue insert
// and drained one row at a time by the delivery workers.
//
// Dequeueing uses a claim lease instead of SELECT ... FOR UPDATE SKIP LOCKED,
// which SQLite does not offer. A single UPDATE stamps a fresh claim token on
// one claimable row; SQLite executes the statement atomically, so two
// concurrent workers can never stamp the same row. Rows whose claim is older
// than the lease TTL count as claimable again; that expiry is the queue's
// sole crash-recovery mechanism and what makes dequeueing at-least-once.
//
// Crucially, a claim is just a stamped row, not an open transaction: the
// worker holds no database lock while it waits on the email transport.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// ErrLeaseExpired is returned by CompleteEntry when the claimed row no longer
// carries the lease's token: the claim aged past the lease TTL and another
// worker reclaimed (and likely re-sent) the row.
var ErrLeaseExpired = errors.New("delivery lease expired")

// Lease is exclusive ownership of one dequeued row, held until CompleteEntry.
type Lease struct {
	NewsletterID    string
	SubscriberEmail string

	token string
}

// EnqueueAllConfirmed fans out one delivery row per currently-confirmed
// subscriber, as a single set-based insert inside the caller's transaction,
// the same transaction that inserted the issue, so a reader never observes an
// issue without its queue rows or vice versa. Confirmation status is
// evaluated exactly once, here: later confirms and unsubscribes do not change
// the committed fan-out. Returns the number of rows created.
func EnqueueAllConfirmed(tx *gorm.DB, newsletterID string) (int64, error) {
	res := tx.Exec(`
		INSERT INTO delivery_queue (newsletter_id, subscriber_email)
		SELECT ?, email FROM subscriptions WHERE status = ?`,
		newsletterID, domain.SubscriptionConfirmed,
	)
	return res.RowsAffected, res.Error
}

// ClaimOne attempts to take exclusive ownership of one pending row. It
// returns (nil, nil) when no row is claimable: the queue is empty, or every
// remaining row is under a live claim younger than leaseTTL.
//
// The claim UPDATE and the follow-up read run outside any explicit
// transaction; the token makes the claimed row uniquely recoverable.
func ClaimOne(ctx context.Context, db *gorm.DB, leaseTTL time.Duration) (*Lease, error) {
	token := uuid.NewString()
	now := time.Now().UTC()
	stale := now.Add(-leaseTTL)

	res := db.WithContext(ctx).Exec(`
		UPDATE delivery_queue
		SET claim_token = ?, claimed_at = ?
		WHERE (newsletter_id, subscriber_email) IN (
			SELECT newsletter_id, subscriber_email
			FROM delivery_queue
			WHERE claim_token IS NULL OR claimed_at < ?
			LIMIT 1
		)`,
		token, now, stale,
	)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	var entry domain.DeliveryQueueEntry
	if err := db.WithContext(ctx).
		Where("claim_token = ?", token).
		First(&entry).Error; err != nil {
		return nil, err
	}
	return &Lease{
		NewsletterID:    entry.NewsletterID,
		SubscriberEmail: entry.SubscriberEmail,
		token:           token,
	}, nil
}

// CompleteEntry deletes the claimed row, ending the lease. It must be called
// exactly once per lease, on success and on logged failure alike: a row is
// never retried once its single attempt concluded. ErrLeaseExpired means a
// reclaim beat us to the row; the caller should log and move on.
func CompleteEntry(ctx context.Context, db *gorm.DB, lease *Lease) error {
	res := db.WithContext(ctx).
		Where("newsletter_id = ? AND subscriber_email = ? AND claim_token = ?",
			lease.NewsletterID, lease.SubscriberEmail, lease.token).
		Delete(&domain.DeliveryQueueEntry{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrLeaseExpired
	}
	return nil
}

// CountPending returns the number of rows currently in the queue, claimed or
// not. Row existence is the only pending state.
func CountPending(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.DeliveryQueueEntry{}).
		Count(&total).Error
	return total, err
}
