package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-newsletter-backend/internal/config"
	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/email"
	httpapi "github.com/tbourn/go-newsletter-backend/internal/http"
	"github.com/tbourn/go-newsletter-backend/internal/observability"
	"github.com/tbourn/go-newsletter-backend/internal/worker"
)

// ServeCmd returns the serve command: the HTTP API plus the configured number
// of embedded delivery workers, all sharing one SQLite database.
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with embedded delivery workers",
		Long: `Start the newsletter HTTP API and WORKER_COUNT delivery worker loops in
one process. Publishing an issue enqueues one delivery per confirmed
subscriber; the workers drain that queue in the background. The process
shuts down gracefully on SIGINT/SIGTERM.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}
	if cfg.Email.Sender == "" || cfg.Email.AuthToken == "" {
		return errors.New("EMAIL_SENDER and EMAIL_AUTH_TOKEN must be set to deliver newsletters")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(c)
	}()

	db, err := openDB(cfg)
	if err != nil {
		return err
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, cfg)

	sender, err := newSender(cfg)
	if err != nil {
		return err
	}

	// Delivery workers share the database; the claim-lease dequeue keeps
	// them off each other's rows.
	var wg sync.WaitGroup
	for i := 0; i < cfg.Worker.Count; i++ {
		w := &worker.Worker{
			DB:           db,
			Sender:       sender,
			Log:          log.With().Int("worker", i).Logger(),
			PollInterval: cfg.Worker.PollInterval,
			ErrorBackoff: cfg.Worker.ErrorBackoff,
			LeaseTTL:     cfg.Worker.LeaseTTL,
			SendTimeout:  cfg.Email.SendTimeout,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Int("workers", cfg.Worker.Count).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		stop()
		wg.Wait()
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	wg.Wait()
	log.Info().Msg("server stopped")
	return nil
}

// newSender builds the outbound email transport from config, validating the
// From address up front so misconfiguration fails at startup, not per send.
func newSender(cfg config.Config) (worker.Sender, error) {
	from, err := domain.NewSubscriberEmail(cfg.Email.Sender)
	if err != nil {
		return nil, fmt.Errorf("EMAIL_SENDER: %w", err)
	}
	return email.NewClient(cfg.Email.BaseURL, from, cfg.Email.AuthToken, cfg.Email.SendTimeout), nil
}
