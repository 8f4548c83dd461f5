package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-newsletter-backend/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "newsletterd",
		Short:   "Newsletter backend: subscriptions, publishing, and delivery",
		Version: cli.Version(),
		Long: `newsletterd serves the newsletter HTTP API and drains the durable
delivery queue. Publishing an issue is idempotent per (user, key) and fans out
one queued delivery per confirmed subscriber; workers send the emails
asynchronously.`,
	}

	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.WorkerCmd())
	rootCmd.AddCommand(cli.MigrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
