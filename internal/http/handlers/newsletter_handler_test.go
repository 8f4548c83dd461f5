package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/services"
)

func init() { gin.SetMode(gin.TestMode) }

// fakePublishService implements PublishService with pluggable funcs.
type fakePublishService struct {
	publish func(ctx context.Context, userID, key string, content services.IssueContent) (*services.PublishResult, error)
	get     func(ctx context.Context, issueID string) (*domain.NewsletterIssue, error)
	list    func(ctx context.Context, page, pageSize int) ([]domain.NewsletterIssue, int64, error)
}

func (f *fakePublishService) Publish(ctx context.Context, userID, key string, content services.IssueContent) (*services.PublishResult, error) {
	return f.publish(ctx, userID, key, content)
}

func (f *fakePublishService) GetIssue(ctx context.Context, issueID string) (*domain.NewsletterIssue, error) {
	return f.get(ctx, issueID)
}

func (f *fakePublishService) ListIssuesPage(ctx context.Context, page, pageSize int) ([]domain.NewsletterIssue, int64, error) {
	return f.list(ctx, page, pageSize)
}

// fakeSubscriptionService implements SubscriptionService with pluggable funcs.
type fakeSubscriptionService struct {
	subscribe func(ctx context.Context, email, name string) (*domain.Subscription, error)
	confirm   func(ctx context.Context, token string) error
}

func (f *fakeSubscriptionService) Subscribe(ctx context.Context, email, name string) (*domain.Subscription, error) {
	return f.subscribe(ctx, email, name)
}

func (f *fakeSubscriptionService) Confirm(ctx context.Context, token string) error {
	return f.confirm(ctx, token)
}

func newRouter(pub PublishService, sub SubscriptionService) *gin.Engine {
	r := gin.New()
	h := New(pub, sub)
	r.POST("/newsletters", h.PublishNewsletter)
	r.GET("/newsletters", h.ListNewsletters)
	r.GET("/newsletters/:id", h.GetNewsletter)
	r.POST("/subscriptions", h.Subscribe)
	r.GET("/subscriptions/confirm", h.ConfirmSubscription)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPublishNewsletter_Success(t *testing.T) {
	var gotUser, gotKey string
	pub := &fakePublishService{
		publish: func(ctx context.Context, userID, key string, content services.IssueContent) (*services.PublishResult, error) {
			gotUser, gotKey = userID, key
			if content.Title != "Week 1" || content.Text != "t" || content.HTML != "<p>h</p>" {
				t.Errorf("unexpected content: %+v", content)
			}
			return &services.PublishResult{IssueID: "issue-1", EnqueuedRows: 7}, nil
		},
	}
	r := newRouter(pub, &fakeSubscriptionService{})

	w := doJSON(t, r, http.MethodPost, "/newsletters", gin.H{
		"title":   "Week 1",
		"content": gin.H{"text": "t", "html": "<p>h</p>"},
	}, map[string]string{
		"Idempotency-Key": "key-1",
		"X-User-ID":       "editor1",
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if gotUser != "editor1" || gotKey != "key-1" {
		t.Fatalf("service called with user=%q key=%q", gotUser, gotKey)
	}
	var resp PublishNewsletterResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.IssueID != "issue-1" || resp.SubscribersEnqueued != 7 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestPublishNewsletter_MissingKey(t *testing.T) {
	pub := &fakePublishService{
		publish: func(ctx context.Context, userID, key string, content services.IssueContent) (*services.PublishResult, error) {
			t.Fatal("service must not be called without a key")
			return nil, nil
		},
	}
	r := newRouter(pub, &fakeSubscriptionService{})

	w := doJSON(t, r, http.MethodPost, "/newsletters", gin.H{
		"title":   "Week 1",
		"content": gin.H{"text": "t", "html": "h"},
	}, nil)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestPublishNewsletter_MalformedBody(t *testing.T) {
	pub := &fakePublishService{
		publish: func(ctx context.Context, userID, key string, content services.IssueContent) (*services.PublishResult, error) {
			t.Fatal("service must not be called for malformed bodies")
			return nil, nil
		},
	}
	r := newRouter(pub, &fakeSubscriptionService{})

	for _, body := range []gin.H{
		{},
		{"title": "T"},
		{"title": "T", "content": gin.H{"text": "t"}},
		{"title": "T", "content": gin.H{"html": "h"}},
	} {
		w := doJSON(t, r, http.MethodPost, "/newsletters", body,
			map[string]string{"Idempotency-Key": "k"})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %v: status = %d, want 400", body, w.Code)
		}
	}
}

func TestPublishNewsletter_ConflictMapping(t *testing.T) {
	cases := []struct {
		name string
		res  *services.PublishResult
		err  error
		want int
	}{
		{"in flight", nil, services.ErrAlreadyPublished, http.StatusConflict},
		{"replayed", &services.PublishResult{Replayed: true}, nil, http.StatusConflict},
		{"store error", nil, errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pub := &fakePublishService{
				publish: func(ctx context.Context, userID, key string, content services.IssueContent) (*services.PublishResult, error) {
					return tc.res, tc.err
				},
			}
			r := newRouter(pub, &fakeSubscriptionService{})

			w := doJSON(t, r, http.MethodPost, "/newsletters", gin.H{
				"title":   "Week 1",
				"content": gin.H{"text": "t", "html": "h"},
			}, map[string]string{"Idempotency-Key": "key-1"})

			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tc.want, w.Body.String())
			}
			if tc.want == http.StatusConflict {
				var resp ErrorResponse
				if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if resp.Code != ErrCodeConflict || resp.Message != services.ErrAlreadyPublished.Error() {
					t.Fatalf("unexpected envelope: %+v", resp)
				}
			}
		})
	}
}

func TestGetNewsletter(t *testing.T) {
	const id = "141add05-4415-4938-b5a1-17e0d3171aff"
	pub := &fakePublishService{
		get: func(ctx context.Context, issueID string) (*domain.NewsletterIssue, error) {
			if issueID != id {
				return nil, services.ErrIssueNotFound
			}
			return &domain.NewsletterIssue{ID: id, Title: "Week 1"}, nil
		},
	}
	r := newRouter(pub, &fakeSubscriptionService{})

	w := doJSON(t, r, http.MethodGet, "/newsletters/"+id, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/newsletters/9a9d9f4c-1b2a-4c3d-8e9f-0123456789ab", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing issue: status = %d, want 404", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/newsletters/not-a-uuid", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad id: status = %d, want 400", w.Code)
	}
}

func TestListNewsletters_Pagination(t *testing.T) {
	var gotPage, gotSize int
	pub := &fakePublishService{
		list: func(ctx context.Context, page, pageSize int) ([]domain.NewsletterIssue, int64, error) {
			gotPage, gotSize = page, pageSize
			return []domain.NewsletterIssue{{ID: "i1"}, {ID: "i2"}}, 5, nil
		},
	}
	r := newRouter(pub, &fakeSubscriptionService{})

	w := doJSON(t, r, http.MethodGet, "/newsletters?page=2&page_size=2", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if gotPage != 2 || gotSize != 2 {
		t.Fatalf("service called with page=%d size=%d", gotPage, gotSize)
	}
	var resp ListNewslettersResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Pagination.Total != 5 || resp.Pagination.TotalPages != 3 || !resp.Pagination.HasNext {
		t.Fatalf("unexpected pagination: %+v", resp.Pagination)
	}

	// Out-of-range params are clamped before hitting the service.
	doJSON(t, r, http.MethodGet, "/newsletters?page=0&page_size=9999", nil, nil)
	if gotPage != 1 || gotSize != 100 {
		t.Fatalf("clamped to page=%d size=%d, want 1/100", gotPage, gotSize)
	}
}
