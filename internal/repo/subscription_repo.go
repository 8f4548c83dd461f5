// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Subscription model: sign-up, confirmation, and the queries that feed the
// delivery fan-out.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// CreateSubscription inserts a pending subscription with a fresh confirmation
// token. Returns ErrDuplicate when the email is already subscribed.
func CreateSubscription(ctx context.Context, db *gorm.DB, email, name string) (*domain.Subscription, error) {
	sub := &domain.Subscription{
		ID:                uuid.NewString(),
		Email:             email,
		Name:              name,
		Status:            domain.SubscriptionPending,
		ConfirmationToken: uuid.NewString(),
		SubscribedAt:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(sub).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return sub, nil
}

// ConfirmSubscription flips the subscription carrying token to "confirmed".
// Confirming twice is a no-op success; an unknown token returns ErrNotFound.
func ConfirmSubscription(ctx context.Context, db *gorm.DB, token string) error {
	res := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("confirmation_token = ?", token).
		Update("status", domain.SubscriptionConfirmed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetSubscriptionByEmail fetches a subscription by address, or ErrNotFound.
func GetSubscriptionByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := db.WithContext(ctx).
		Where("email = ?", email).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// CountConfirmed returns the number of confirmed subscribers, the size of
// the fan-out a publish would produce right now.
func CountConfirmed(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("status = ?", domain.SubscriptionConfirmed).
		Count(&total).Error
	return total, err
}
