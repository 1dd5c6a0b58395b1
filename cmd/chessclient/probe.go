package main

import (
	"context"
	"fmt"

	"github.com/park285/nochess-client/internal/authority"
	"github.com/park285/nochess-client/internal/obslog"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check that the authority answers its health endpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := initLogging(true); err != nil {
			return err
		}
		client := authority.NewClient(cfg.ServerURL,
			authority.WithTimeout(cfg.RequestTimeout),
			authority.WithLogger(obslog.L().Named("authority")),
		)
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RequestTimeout)
		defer cancel()
		msg, err := client.Health(ctx)
		if err != nil {
			obslog.L().Error("probe_failed", zap.String("server", cfg.ServerURL), zap.Error(err))
			return fmt.Errorf("probe %s: %w", cfg.ServerURL, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s ok: %s\n", cfg.ServerURL, msg)
		return nil
	},
}
