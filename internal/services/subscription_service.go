// Package services – SubscriptionService
//
// Sign-up and confirmation for newsletter subscribers. New subscriptions are
// stored as "pending" with a confirmation token; only confirmed subscribers
// are included in a publish fan-out.

package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const maxNameRunes = 255

// SubscriptionService owns the subscriber lifecycle up to confirmation.
type SubscriptionService struct {
	DB *gorm.DB
}

// Subscribe validates the address and name and stores a pending
// subscription. The returned record carries the confirmation token that the
// confirmation email embeds.
func (s *SubscriptionService) Subscribe(ctx context.Context, email, name string) (*domain.Subscription, error) {
	tr := otel.Tracer("services/SubscriptionService")
	ctx, span := tr.Start(ctx, "Subscribe")
	defer span.End()

	addr, err := domain.NewSubscriberEmail(email)
	if err != nil {
		return nil, ErrInvalidEmail
	}
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > maxNameRunes {
		return nil, ErrInvalidName
	}

	sub, err := repo.CreateSubscription(ctx, s.DB, addr.String(), name)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrDuplicateSubscription
	}
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("subscription.id", sub.ID))
	return sub, nil
}

// Confirm flips the subscription carrying token to confirmed. Confirming an
// already-confirmed subscription succeeds; an unknown token is
// ErrTokenNotFound.
func (s *SubscriptionService) Confirm(ctx context.Context, token string) error {
	tr := otel.Tracer("services/SubscriptionService")
	ctx, span := tr.Start(ctx, "Confirm")
	defer span.End()

	token = strings.TrimSpace(token)
	if token == "" {
		return ErrTokenNotFound
	}
	err := repo.ConfirmSubscription(ctx, s.DB, token)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrTokenNotFound
	}
	return err
}

// ConfirmedCount reports how many subscribers a publish would reach now.
func (s *SubscriptionService) ConfirmedCount(ctx context.Context) (int64, error) {
	return repo.CountConfirmed(ctx, s.DB)
}
