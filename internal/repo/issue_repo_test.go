package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

func TestInsertIssue_And_GetIssue(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	tx := db.Begin()
	id, err := InsertIssue(tx, "Launch", "plain text", "<h1>hi</h1>")
	if err != nil {
		t.Fatalf("InsertIssue: %v", err)
	}
	if err := tx.Commit().Error; err != nil {
		t.Fatalf("commit: %v", err)
	}

	issue, err := GetIssue(ctx, db, id)
	if err != nil {
		t.Fatalf("GetIssue: %v", err)
	}
	if issue.Title != "Launch" || issue.TextContent != "plain text" || issue.HTMLContent != "<h1>hi</h1>" {
		t.Fatalf("unexpected issue: %+v", issue)
	}
	if issue.PublishedAt.IsZero() {
		t.Fatalf("PublishedAt not set")
	}
}

func TestGetIssue_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := GetIssue(context.Background(), db, "missing-id")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListIssuesPage_OrderAndPaging(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Insert with explicit publication times so the ordering is unambiguous.
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		issue := &domain.NewsletterIssue{
			ID:          fmt.Sprintf("issue-%d", i),
			Title:       fmt.Sprintf("Issue %d", i),
			TextContent: "t",
			HTMLContent: "<p>h</p>",
			PublishedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.Create(issue).Error; err != nil {
			t.Fatalf("seed issue %d: %v", i, err)
		}
	}

	total, err := CountIssues(ctx, db)
	if err != nil || total != 5 {
		t.Fatalf("CountIssues = %d, %v", total, err)
	}

	page, err := ListIssuesPage(ctx, db, 0, 2)
	if err != nil {
		t.Fatalf("ListIssuesPage: %v", err)
	}
	if len(page) != 2 || page[0].ID != "issue-4" || page[1].ID != "issue-3" {
		t.Fatalf("expected newest first, got %+v", page)
	}

	page, err = ListIssuesPage(ctx, db, 4, 2)
	if err != nil {
		t.Fatalf("ListIssuesPage offset: %v", err)
	}
	if len(page) != 1 || page[0].ID != "issue-0" {
		t.Fatalf("expected last page with oldest issue, got %+v", page)
	}
}
