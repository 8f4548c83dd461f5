// Package services – PublishService
//
// This file implements PublishService, the application-level component that
// owns newsletter publication. It validates input, runs the idempotency
// guard, and persists the issue together with its delivery fan-out in one
// transaction, so that "newsletter accepted" is decoupled from the slow,
// failure-prone email delivery drained later by the worker.
//
// Exactly-once shape: the guard admits at most one processing attempt per
// (user, key); the issue insert, the set-based fan-out, and the saved HTTP
// response commit atomically. Retries of the same key observe the saved
// response; a concurrent duplicate observes a conflict. Nothing here sends
// email.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include user identifiers and issue ids where applicable.

package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// defaultMaxKeyLen caps idempotency keys when the service is not
	// configured otherwise. Matches the transport-layer validator.
	defaultMaxKeyLen = 200

	maxTitleRunes = 255
)

// IssueContent is the payload of a publish request.
type IssueContent struct {
	Title string
	Text  string
	HTML  string
}

// PublishResult is the outcome of a publish call.
//
// When Replayed is true the request was a retry of an already-completed
// publish: Response carries the previously saved bytes and no new issue or
// queue rows were created.
type PublishResult struct {
	IssueID      string
	EnqueuedRows int64
	Response     repo.StoredResponse
	Replayed     bool
}

// PublishService coordinates the idempotency guard, the issue repository,
// and the delivery queue fan-out.
type PublishService struct {
	DB *gorm.DB

	// PendingTTL is how long a pending idempotency record blocks its key
	// before the next attempt may take it over (crashed-request recovery).
	// Zero disables takeover.
	PendingTTL time.Duration

	// MaxKeyLen caps accepted idempotency keys; <= 0 defaults to 200.
	MaxKeyLen int
}

// Publish validates the request, admits it through the idempotency guard,
// and, on first admission, inserts the issue, fans out one delivery row
// per confirmed subscriber, and saves the response, all in one transaction.
//
// Error mapping: a mid-flight duplicate and a completed duplicate both
// surface as ErrAlreadyPublished at the HTTP layer; the completed case is
// additionally distinguished by Replayed=true with the saved response, so
// callers that want byte-identical replays can serve them.
func (s *PublishService) Publish(ctx context.Context, userID, key string, content IssueContent) (*PublishResult, error) {
	tr := otel.Tracer("services/PublishService")
	ctx, span := tr.Start(ctx, "Publish",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	key = strings.TrimSpace(key)
	maxLen := s.MaxKeyLen
	if maxLen <= 0 {
		maxLen = defaultMaxKeyLen
	}
	if key == "" || len(key) > maxLen {
		return nil, ErrInvalidIdempotencyKey
	}

	content.Title = strings.TrimSpace(content.Title)
	if content.Title == "" || len([]rune(content.Title)) > maxTitleRunes {
		return nil, ErrEmptyTitle
	}
	if strings.TrimSpace(content.Text) == "" || strings.TrimSpace(content.HTML) == "" {
		return nil, ErrEmptyContent
	}

	tx, saved, err := repo.BeginOrReuse(ctx, s.DB, userID, key, s.PendingTTL)
	if err != nil {
		if errors.Is(err, repo.ErrInFlight) {
			return nil, ErrAlreadyPublished
		}
		return nil, err
	}
	if saved != nil {
		return &PublishResult{Response: *saved, Replayed: true}, nil
	}

	issueID, enqueued, err := s.storeIssue(tx, content)
	if err != nil {
		tx.Rollback()
		// Without the release a failed attempt would block its key until
		// the pending record ages out.
		_ = repo.ReleasePending(ctx, s.DB, userID, key)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("issue.id", issueID),
		attribute.Int64("issue.enqueued_rows", enqueued),
	)

	resp, err := buildPublishResponse(issueID, enqueued)
	if err != nil {
		tx.Rollback()
		_ = repo.ReleasePending(ctx, s.DB, userID, key)
		return nil, err
	}
	if err := repo.SaveResponse(tx, userID, key, resp.Status, resp.Headers, resp.Body); err != nil {
		// SaveResponse rolled the transaction back already.
		_ = repo.ReleasePending(ctx, s.DB, userID, key)
		return nil, err
	}

	return &PublishResult{
		IssueID:      issueID,
		EnqueuedRows: enqueued,
		Response:     *resp,
	}, nil
}

// storeIssue runs the guarded side effects inside tx: the immutable issue
// row plus one queue row per currently-confirmed subscriber.
func (s *PublishService) storeIssue(tx *gorm.DB, content IssueContent) (string, int64, error) {
	issueID, err := repo.InsertIssue(tx, content.Title, content.Text, content.HTML)
	if err != nil {
		return "", 0, err
	}
	enqueued, err := repo.EnqueueAllConfirmed(tx, issueID)
	if err != nil {
		return "", 0, err
	}
	return issueID, enqueued, nil
}

// GetIssue returns a published issue by id.
func (s *PublishService) GetIssue(ctx context.Context, issueID string) (*domain.NewsletterIssue, error) {
	tr := otel.Tracer("services/PublishService")
	ctx, span := tr.Start(ctx, "GetIssue",
		trace.WithAttributes(attribute.String("issue.id", issueID)),
	)
	defer span.End()

	issue, err := repo.GetIssue(ctx, s.DB, issueID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrIssueNotFound
	}
	return issue, err
}

// ListIssuesPage returns paginated issues, newest first, with the total count.
func (s *PublishService) ListIssuesPage(ctx context.Context, page, pageSize int) ([]domain.NewsletterIssue, int64, error) {
	tr := otel.Tracer("services/PublishService")
	ctx, span := tr.Start(ctx, "ListIssuesPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountIssues(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.NewsletterIssue{}, 0, nil
	}
	items, err := repo.ListIssuesPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}

// buildPublishResponse constructs the response that is both returned to the
// first caller and persisted for replays.
func buildPublishResponse(issueID string, enqueued int64) (*repo.StoredResponse, error) {
	body, err := json.Marshal(map[string]any{
		"issue_id":             issueID,
		"subscribers_enqueued": enqueued,
	})
	if err != nil {
		return nil, err
	}
	headers := http.Header{}
	headers.Set("Content-Type", "application/json; charset=utf-8")
	return &repo.StoredResponse{
		Status:  http.StatusCreated,
		Headers: headers,
		Body:    body,
	}, nil
}
