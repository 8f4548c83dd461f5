// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// NewsletterIssue model.
//
// Error semantics:
//   - When an issue is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// InsertIssue writes a new immutable issue row inside the caller's
// transaction and returns its generated UUID. It deliberately does not
// commit: the commit belongs to the idempotency guard via SaveResponse, so
// that the issue, its fan-out rows, and the saved response land atomically.
func InsertIssue(tx *gorm.DB, title, textContent, htmlContent string) (string, error) {
	issue := &domain.NewsletterIssue{
		ID:          uuid.NewString(),
		Title:       title,
		TextContent: textContent,
		HTMLContent: htmlContent,
		PublishedAt: time.Now().UTC(),
	}
	if err := tx.Create(issue).Error; err != nil {
		return "", err
	}
	return issue.ID, nil
}

// GetIssue fetches a single issue by ID, or ErrNotFound if missing. The
// delivery worker calls this for every dequeued row; a missing issue should
// not happen given the shared transaction boundary, but manual data deletion
// must still be handled.
func GetIssue(ctx context.Context, db *gorm.DB, id string) (*domain.NewsletterIssue, error) {
	var issue domain.NewsletterIssue
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&issue).Error
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

// CountIssues returns the total number of published issues.
func CountIssues(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.NewsletterIssue{}).
		Count(&total).Error
	return total, err
}

// ListIssuesPage returns a paginated slice of issues ordered by publication
// time descending. The caller computes offset and limit.
func ListIssuesPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.NewsletterIssue, error) {
	var out []domain.NewsletterIssue
	err := db.WithContext(ctx).
		Order("published_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
