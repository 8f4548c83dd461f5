package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-newsletter-backend/internal/observability"
	"github.com/tbourn/go-newsletter-backend/internal/worker"
)

// WorkerCmd returns the worker command: delivery loops only, no HTTP API.
// Useful for scaling delivery independently of the API process.
func WorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run delivery workers without the HTTP API",
		Long: `Start WORKER_COUNT delivery worker loops against the configured database
and nothing else. Each loop claims one queued delivery at a time, attempts the
send once, and removes the row. Stops gracefully on SIGINT/SIGTERM.`,
		RunE: runWorker,
	}
}

func runWorker(cmd *cobra.Command, args []string) error {
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
	sender, err := newSender(cfg)
	if err != nil {
		return err
	}

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

	log.Info().Int("workers", cfg.Worker.Count).Msg("delivery workers started")
	<-ctx.Done()
	wg.Wait()
	log.Info().Msg("delivery workers stopped")
	return nil
}
