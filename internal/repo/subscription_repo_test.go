package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

func TestCreateSubscription_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	sub, err := CreateSubscription(ctx, db, "a@example.com", "A")
	if err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
	if sub.Status != domain.SubscriptionPending || sub.ConfirmationToken == "" {
		t.Fatalf("unexpected new subscription: %+v", sub)
	}

	_, err = CreateSubscription(ctx, db, "a@example.com", "A again")
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestConfirmSubscription_TokenLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	sub, err := CreateSubscription(ctx, db, "a@example.com", "A")
	if err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}

	if err := ConfirmSubscription(ctx, db, sub.ConfirmationToken); err != nil {
		t.Fatalf("ConfirmSubscription: %v", err)
	}
	got, err := GetSubscriptionByEmail(ctx, db, "a@example.com")
	if err != nil {
		t.Fatalf("GetSubscriptionByEmail: %v", err)
	}
	if got.Status != domain.SubscriptionConfirmed {
		t.Fatalf("status = %q, want confirmed", got.Status)
	}

	// Re-confirming with the same token is a no-op success.
	if err := ConfirmSubscription(ctx, db, sub.ConfirmationToken); err != nil {
		t.Fatalf("re-confirm: %v", err)
	}

	if err := ConfirmSubscription(ctx, db, "bogus-token"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown token, got %v", err)
	}
}

func TestCountConfirmed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, e := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		sub, err := CreateSubscription(ctx, db, e, "N")
		if err != nil {
			t.Fatalf("create %s: %v", e, err)
		}
		if e != "c@example.com" {
			if err := ConfirmSubscription(ctx, db, sub.ConfirmationToken); err != nil {
				t.Fatalf("confirm %s: %v", e, err)
			}
		}
	}

	n, err := CountConfirmed(ctx, db)
	if err != nil {
		t.Fatalf("CountConfirmed: %v", err)
	}
	if n != 2 {
		t.Fatalf("CountConfirmed = %d, want 2", n)
	}

	_, err = GetSubscriptionByEmail(ctx, db, "nobody@example.com")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
