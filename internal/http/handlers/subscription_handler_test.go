package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/services"
)

func TestSubscribe_Success(t *testing.T) {
	sub := &fakeSubscriptionService{
		subscribe: func(ctx context.Context, email, name string) (*domain.Subscription, error) {
			if email != "jane@example.com" || name != "Jane" {
				t.Errorf("service called with %q %q", email, name)
			}
			return &domain.Subscription{ID: "sub-1", Status: domain.SubscriptionPending}, nil
		},
	}
	r := newRouter(&fakePublishService{}, sub)

	w := doJSON(t, r, http.MethodPost, "/subscriptions", gin.H{
		"email": "jane@example.com",
		"name":  "Jane",
	}, nil)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp SubscribeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "sub-1" || resp.Status != domain.SubscriptionPending {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSubscribe_BindingRejectsBadPayloads(t *testing.T) {
	sub := &fakeSubscriptionService{
		subscribe: func(ctx context.Context, email, name string) (*domain.Subscription, error) {
			t.Fatal("service must not be called for invalid payloads")
			return nil, nil
		},
	}
	r := newRouter(&fakePublishService{}, sub)

	for _, body := range []gin.H{
		{},
		{"email": "jane@example.com"},
		{"name": "Jane"},
		{"email": "not-an-email", "name": "Jane"},
	} {
		w := doJSON(t, r, http.MethodPost, "/subscriptions", body, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %v: status = %d, want 400", body, w.Code)
		}
	}
}

func TestSubscribe_ServiceErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"duplicate", services.ErrDuplicateSubscription, http.StatusConflict},
		{"invalid email", services.ErrInvalidEmail, http.StatusBadRequest},
		{"invalid name", services.ErrInvalidName, http.StatusBadRequest},
		{"store error", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub := &fakeSubscriptionService{
				subscribe: func(ctx context.Context, email, name string) (*domain.Subscription, error) {
					return nil, tc.err
				},
			}
			r := newRouter(&fakePublishService{}, sub)

			w := doJSON(t, r, http.MethodPost, "/subscriptions", gin.H{
				"email": "jane@example.com",
				"name":  "Jane",
			}, nil)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestConfirmSubscription(t *testing.T) {
	sub := &fakeSubscriptionService{
		confirm: func(ctx context.Context, token string) error {
			if token == "good-token" {
				return nil
			}
			return services.ErrTokenNotFound
		},
	}
	r := newRouter(&fakePublishService{}, sub)

	w := doJSON(t, r, http.MethodGet, "/subscriptions/confirm?token=good-token", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/subscriptions/confirm?token=bad-token", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown token: status = %d, want 404", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/subscriptions/confirm", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing token: status = %d, want 400", w.Code)
	}
}
