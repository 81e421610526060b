package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd() *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs one scrape job and prints its records",
		Long: `Submits a scrape job for --subject, waits for it to finish and writes
the resulting records to stdout as a JSON array. Exits non-zero on failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScrapeCommand(cmd, subject)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "account name to scrape")
	_ = cmd.MarkFlagRequired("subject") //nolint:errcheck // flag is defined above
	return cmd
}

func runScrapeCommand(cmd *cobra.Command, subject string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	res, err := appInstance.Scrape(cmd.Context(), subject)
	if err != nil {
		appInstance.Logger().Error("scrape failed", zap.String("subject", subject), zap.Error(err))
		// PersistentPostRunE is skipped on error; flush the run log here.
		_ = appInstance.Close(context.WithoutCancel(cmd.Context())) //nolint:errcheck // exiting anyway
		return fmt.Errorf("scrape %q: %w", subject, err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	appInstance.Logger().Info("scrape finished", zap.String("subject", subject), zap.Int("records", res.Len()))
	return nil
}
