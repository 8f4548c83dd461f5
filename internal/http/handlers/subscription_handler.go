// Subscription HTTP handlers.
//
// This file exposes REST endpoints for the subscriber lifecycle:
//   - POST /subscriptions          (sign up, stored as pending)
//   - GET  /subscriptions/confirm  (confirm via emailed token)
//
// A subscriber only receives newsletters after confirming; the publish fan-out
// selects confirmed rows exclusively.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-newsletter-backend/internal/services"
)

// SubscribeRequest is the JSON payload for creating a subscription.
type SubscribeRequest struct {
	// Email is the subscriber address; must be a valid email.
	Email string `json:"email" binding:"required,email" example:"jane@example.com"`
	// Name is the subscriber display name (1–255 chars).
	Name string `json:"name" binding:"required,min=1,max=255" example:"Jane Doe"`
}

// SubscribeResponse acknowledges a pending subscription.
type SubscribeResponse struct {
	// ID identifies the new subscription.
	ID string `json:"id" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	// Status is always "pending" until the address is confirmed.
	Status string `json:"status" example:"pending"`
}

// Subscribe godoc
// @ID          subscribe
// @Summary     Sign up for the newsletter
// @Description Stores a pending subscription; the address receives newsletters only after confirmation.
// @Tags        Subscriptions
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.SubscribeRequest  true  "Subscriber details"
//
// @Success     201  {object}  handlers.SubscribeResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse  "Address already subscribed"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /subscriptions [post]
func (h *Handlers) Subscribe(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "valid email and name required")
		return
	}

	sub, err := h.subSvc.Subscribe(c.Request.Context(), req.Email, req.Name)
	if err != nil {
		switch err {
		case services.ErrInvalidEmail, services.ErrInvalidName:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case services.ErrDuplicateSubscription:
			fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeSubscribeFailed, err.Error())
		}
		return
	}

	ok(c, http.StatusCreated, SubscribeResponse{ID: sub.ID, Status: sub.Status})
}

// ConfirmSubscription godoc
// @ID          confirmSubscription
// @Summary     Confirm a subscription
// @Description Activates the subscription matching the emailed confirmation token. Re-confirming succeeds.
// @Tags        Subscriptions
// @Produce     json
//
// @Param       token  query  string  true  "Confirmation token"
//
// @Success     200  {object}  map[string]string
// @Failure     400  {object}  handlers.ErrorResponse  "Missing token"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown token"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /subscriptions/confirm [get]
func (h *Handlers) ConfirmSubscription(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "token query parameter required")
		return
	}

	if err := h.subSvc.Confirm(c.Request.Context(), token); err != nil {
		switch err {
		case services.ErrTokenNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "confirmation token not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, gin.H{"status": "confirmed"})
}
