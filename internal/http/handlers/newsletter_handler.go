// Newsletter HTTP handlers.
//
// This file exposes REST endpoints for newsletter issues:
//   - POST /newsletters        (publish an issue, idempotent)
//   - GET  /newsletters        (list published issues, paginated)
//   - GET  /newsletters/{id}   (fetch one issue)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
//
// Idempotency:
// POST /newsletters requires an Idempotency-Key header. A retry of a completed
// publish and a concurrent duplicate both receive the same deterministic
// conflict error, so clients can treat "conflict" as "this key is spent". The
// issue and its delivery fan-out are created at most once per (user, key).
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/http/middleware"
	"github.com/tbourn/go-newsletter-backend/internal/services"
	"github.com/tbourn/go-newsletter-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// PublishService defines newsletter publication operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type PublishService interface {
	// Publish admits one publication per (userID, key) and fans out delivery.
	Publish(ctx context.Context, userID, key string, content services.IssueContent) (*services.PublishResult, error)
	// GetIssue returns a published issue by id.
	GetIssue(ctx context.Context, issueID string) (*domain.NewsletterIssue, error)
	// ListIssuesPage returns a page of issues, newest first, and the total count.
	ListIssuesPage(ctx context.Context, page, pageSize int) ([]domain.NewsletterIssue, int64, error)
}

// SubscriptionService defines subscriber lifecycle operations consumed by HTTP
// handlers.
type SubscriptionService interface {
	// Subscribe stores a pending subscription and returns it.
	Subscribe(ctx context.Context, email, name string) (*domain.Subscription, error)
	// Confirm flips the subscription carrying token to confirmed.
	Confirm(ctx context.Context, token string) error
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for newsletters and subscriptions.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	pubSvc PublishService
	subSvc SubscriptionService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(pubSvc PublishService, subSvc SubscriptionService) *Handlers {
	return &Handlers{pubSvc: pubSvc, subSvc: subSvc}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// PublishNewsletterRequest is the JSON payload for publishing an issue.
type PublishNewsletterRequest struct {
	// Title is the issue title and email subject line (1–255 chars).
	Title string `json:"title" binding:"required,min=1,max=255" example:"Release notes, May edition"`
	// Content carries both renderings of the issue body.
	Content NewsletterContent `json:"content" binding:"required"`
}

// NewsletterContent is the dual-rendering issue body.
type NewsletterContent struct {
	// Text is the plaintext rendering.
	Text string `json:"text" binding:"required,min=1" example:"Plaintext body"`
	// HTML is the rich rendering.
	HTML string `json:"html" binding:"required,min=1" example:"<p>HTML body</p>"`
}

// PublishNewsletterResponse is the JSON envelope for an accepted publication.
//
// Accepted means stored and fanned out, not delivered: the delivery workers
// drain the queue asynchronously.
type PublishNewsletterResponse struct {
	// IssueID identifies the newly stored issue.
	IssueID string `json:"issue_id" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	// SubscribersEnqueued is the number of confirmed subscribers queued for
	// delivery at publish time.
	SubscribersEnqueued int64 `json:"subscribers_enqueued" example:"42"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListNewslettersResponse wraps a page of issues and pagination information.
type ListNewslettersResponse struct {
	Newsletters []domain.NewsletterIssue `json:"newsletters"`
	Pagination  Pagination               `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

//
// Handlers
//

// PublishNewsletter godoc
// @ID          publishNewsletter
// @Summary     Publish a newsletter issue
// @Description Stores the issue and enqueues one delivery per confirmed subscriber, atomically.
// @Description Requires an Idempotency-Key header; reusing a key yields a deterministic conflict.
// @Tags        Newsletters
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  true  "Publishing user"  example(editor1)
// @Param       Idempotency-Key  header  string  true  "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.PublishNewsletterRequest  true  "Issue payload"
//
// @Success     201  {object}  handlers.PublishNewsletterResponse  "Issue stored and fan-out enqueued"
// @Failure     400  {object}  handlers.ErrorResponse              "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse              "Idempotency key already used or in flight"
// @Failure     500  {object}  handlers.ErrorResponse              "Internal error"
// @Router      /newsletters [post]
func (h *Handlers) PublishNewsletter(c *gin.Context) {
	ctx := c.Request.Context()

	key, okKey := middleware.GetIdempotencyKey(c)
	if !okKey {
		// Fallback for routes mounted without the validator (tests).
		key = strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
	}
	if key == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Idempotency-Key header required")
		return
	}

	var req PublishNewsletterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title and content.text/content.html required")
		return
	}

	res, err := h.pubSvc.Publish(ctx, userID(c), key, services.IssueContent{
		Title: req.Title,
		Text:  req.Content.Text,
		HTML:  req.Content.HTML,
	})
	if err != nil {
		switch err {
		case services.ErrInvalidIdempotencyKey:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid Idempotency-Key")
		case services.ErrEmptyTitle:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title required (1–255 chars)")
		case services.ErrEmptyContent:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content.text and content.html required")
		case services.ErrAlreadyPublished:
			fail(c, http.StatusConflict, ErrCodeConflict, services.ErrAlreadyPublished.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodePublishFailed, err.Error())
		}
		return
	}
	if res.Replayed {
		// The saved response proves the publish completed; per the API
		// contract a reused key is a conflict, not a second success.
		fail(c, http.StatusConflict, ErrCodeConflict, services.ErrAlreadyPublished.Error())
		return
	}

	ok(c, http.StatusCreated, PublishNewsletterResponse{
		IssueID:             res.IssueID,
		SubscribersEnqueued: res.EnqueuedRows,
	})
}

// GetNewsletter godoc
// @ID          getNewsletter
// @Summary     Fetch a newsletter issue
// @Description Returns a published issue by id.
// @Tags        Newsletters
// @Produce     json
//
// @Param       id  path  string  true  "Issue ID (UUID)"  format(uuid)
//
// @Success     200  {object} domain.NewsletterIssue
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Issue not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /newsletters/{id} [get]
func (h *Handlers) GetNewsletter(c *gin.Context) {
	issueID := c.Param("id")
	if _, err := uuid.Parse(issueID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "newsletter id must be a UUID")
		return
	}

	issue, err := h.pubSvc.GetIssue(c.Request.Context(), issueID)
	if err != nil {
		switch err {
		case services.ErrIssueNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "newsletter not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, issue)
}

// ListNewsletters godoc
// @ID          listNewsletters
// @Summary     List newsletter issues (paginated)
// @Description Returns a page of published issues, newest first.
// @Tags        Newsletters
// @Produce     json
//
// @Param       page       query  int  false "Page number"    minimum(1) default(1)
// @Param       page_size  query  int  false "Items per page" minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListNewslettersResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /newsletters [get]
func (h *Handlers) ListNewsletters(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.pubSvc.ListIssuesPage(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListNewslettersResponse{
		Newsletters: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
