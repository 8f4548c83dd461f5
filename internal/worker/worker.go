// Package worker implements the newsletter delivery worker loop: the
// long-running process that drains the durable delivery queue.
//
// Each iteration claims one queue row (claim-lease dequeue, no database
// transaction held), resolves the subscriber address, reads the issue back,
// invokes the email transport with a bounded timeout, and completes the row.
// Completion happens whether the send succeeded or failed: one attempt per
// row, with failures logged: the explicit at-most-one-attempt policy traded
// for simplicity and queue liveness. Crash recovery comes solely from claim
// expiry: a worker that dies mid-task leaves its claim to age out, after
// which the row is dequeued again (at-least-once).
//
// The loop itself never exits on a single task's failure; only context
// cancellation stops it.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

// Prometheus delivery counters. Skips are split by reason; the reasons are a
// small fixed set so cardinality stays bounded.
var (
	emailsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "newsletter_emails_delivered_total",
		Help: "Total number of newsletter emails handed to the transport successfully.",
	})

	emailsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "newsletter_emails_failed_total",
		Help: "Total number of transport send failures (not retried).",
	})

	emailsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "newsletter_emails_skipped_total",
		Help: "Total number of queue rows completed without a send attempt.",
	}, []string{"reason"})

	emptyPolls = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "newsletter_queue_empty_polls_total",
		Help: "Total number of polls that found no claimable queue row.",
	})
)

func init() {
	prometheus.MustRegister(emailsDelivered, emailsFailed, emailsSkipped, emptyPolls)
}

// Sender is the outbound email transport contract the worker depends on.
// email.Client satisfies it; tests substitute fakes.
type Sender interface {
	Send(ctx context.Context, to domain.SubscriberEmail, subject, htmlBody, textBody string) error
}

// outcome of a single loop iteration.
type outcome int

const (
	outcomeEmpty outcome = iota
	outcomeTask
)

// Worker drains the delivery queue. Multiple Workers may run concurrently
// against the same database; the claim-lease dequeue keeps them off each
// other's rows.
type Worker struct {
	DB     *gorm.DB
	Sender Sender
	Log    zerolog.Logger

	// PollInterval is the sleep after finding the queue empty; <= 0
	// defaults to 10s.
	PollInterval time.Duration
	// ErrorBackoff is the sleep after an unexpected store error; <= 0
	// defaults to 1s.
	ErrorBackoff time.Duration
	// LeaseTTL is how long a claim shields a row from other workers; <= 0
	// defaults to 5m. It must exceed SendTimeout, otherwise a slow send
	// could overlap a reclaim and double-deliver.
	LeaseTTL time.Duration
	// SendTimeout bounds each transport call; <= 0 defaults to 10s. The
	// claim is not a database lock, so a slow transport blocks only this
	// worker, never the queue.
	SendTimeout time.Duration
}

// Run executes the worker loop until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.Log.Info().
		Dur("poll_interval", w.pollInterval()).
		Dur("lease_ttl", w.leaseTTL()).
		Msg("delivery worker started")

	for {
		out, err := w.tryExecuteTask(ctx)
		switch {
		case ctx.Err() != nil:
			w.Log.Info().Msg("delivery worker stopped")
			return
		case err != nil:
			w.Log.Error().Err(err).Msg("delivery task failed")
			if !w.sleep(ctx, w.errorBackoff()) {
				return
			}
		case out == outcomeEmpty:
			emptyPolls.Inc()
			if !w.sleep(ctx, w.pollInterval()) {
				return
			}
		}
	}
}

// tryExecuteTask claims one row, attempts its delivery, and completes it.
//
// Error handling is asymmetric on purpose: store errors before the send are
// returned without completing the row (the claim ages out and the row is
// retried), while validation and transport failures are logged and the row
// is completed anyway; those attempts are terminal.
func (w *Worker) tryExecuteTask(ctx context.Context) (outcome, error) {
	tr := otel.Tracer("worker/Delivery")
	ctx, span := tr.Start(ctx, "tryExecuteTask")
	defer span.End()

	lease, err := repo.ClaimOne(ctx, w.DB, w.leaseTTL())
	if err != nil {
		return outcomeTask, err
	}
	if lease == nil {
		return outcomeEmpty, nil
	}
	span.SetAttributes(
		attribute.String("newsletter.id", lease.NewsletterID),
		attribute.String("subscriber.email", lease.SubscriberEmail),
	)

	log := w.Log.With().
		Str("newsletter_id", lease.NewsletterID).
		Str("subscriber_email", lease.SubscriberEmail).
		Logger()

	if err := w.deliver(ctx, log, lease); err != nil {
		return outcomeTask, err
	}

	if err := repo.CompleteEntry(ctx, w.DB, lease); err != nil {
		if errors.Is(err, repo.ErrLeaseExpired) {
			// Another worker reclaimed the row after our claim aged out;
			// it owns the row now.
			log.Warn().Msg("delivery lease expired before completion")
			return outcomeTask, nil
		}
		return outcomeTask, err
	}
	return outcomeTask, nil
}

// deliver performs the single send attempt for a claimed row. Only store
// errors are returned; everything else is terminal for the row.
func (w *Worker) deliver(ctx context.Context, log zerolog.Logger, lease *repo.Lease) error {
	addr, err := domain.NewSubscriberEmail(lease.SubscriberEmail)
	if err != nil {
		log.Error().Err(err).Msg("skipping a confirmed subscriber, their details are invalid")
		emailsSkipped.WithLabelValues("invalid_email").Inc()
		return nil
	}

	issue, err := repo.GetIssue(ctx, w.DB, lease.NewsletterID)
	if errors.Is(err, repo.ErrNotFound) {
		// Should not happen given the shared transaction boundary; covers
		// manual data deletion without wedging the queue.
		log.Error().Msg("newsletter issue missing, skipping delivery")
		emailsSkipped.WithLabelValues("issue_missing").Inc()
		return nil
	}
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.sendTimeout())
	defer cancel()
	if err := w.Sender.Send(sendCtx, addr, issue.Title, issue.HTMLContent, issue.TextContent); err != nil {
		log.Error().Err(err).Msg("failed to deliver newsletter to a confirmed subscriber, skipping")
		emailsFailed.Inc()
		return nil
	}
	emailsDelivered.Inc()
	return nil
}

// sleep waits for d or until ctx is cancelled; it reports whether the loop
// should continue.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (w *Worker) pollInterval() time.Duration {
	if w.PollInterval > 0 {
		return w.PollInterval
	}
	return 10 * time.Second
}

func (w *Worker) errorBackoff() time.Duration {
	if w.ErrorBackoff > 0 {
		return w.ErrorBackoff
	}
	return time.Second
}

func (w *Worker) leaseTTL() time.Duration {
	if w.LeaseTTL > 0 {
		return w.LeaseTTL
	}
	return 5 * time.Minute
}

func (w *Worker) sendTimeout() time.Duration {
	if w.SendTimeout > 0 {
		return w.SendTimeout
	}
	return 10 * time.Second
}
