// Package email implements the outbound email transport used by the
// delivery worker. The client speaks a Postmark-style HTTP API: one POST per
// message, authenticated with a server token header.
//
// The transport is deliberately dumb: no retries, no queueing. Delivery
// policy (single attempt per queue row, bounded send time) lives in the
// worker; this client only reports success or failure for one send.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// authTokenHeader carries the provider server token on every request.
const authTokenHeader = "X-Postmark-Server-Token"

// Client sends email through the provider's REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	sender     domain.SubscriberEmail
	authToken  string
}

// NewClient builds a Client. timeout bounds every request end-to-end and is
// the transport's own ceiling; callers may impose a shorter one per send via
// the context.
func NewClient(baseURL string, sender domain.SubscriberEmail, authToken string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		sender:     sender,
		authToken:  authToken,
	}
}

// sendEmailRequest is the provider's wire format (PascalCase fields).
type sendEmailRequest struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HTMLBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// Send delivers one message to a single recipient. A non-2xx provider
// response is an error; the body is not read beyond the status line.
func (c *Client) Send(ctx context.Context, to domain.SubscriberEmail, subject, htmlBody, textBody string) error {
	payload, err := json.Marshal(sendEmailRequest{
		From:     c.sender.String(),
		To:       to.String(),
		Subject:  subject,
		HTMLBody: htmlBody,
		TextBody: textBody,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/email", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(authTokenHeader, c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("email api returned status %d", resp.StatusCode)
	}
	return nil
}
