package cmd

import (
	"Guardline/internal/dispatch"
	"Guardline/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var sweepSilentModeCmd = &cobra.Command{
	Use:   "sweep-silent-mode",
	Short: "Close silent mode sessions past their expiry",
	RunE:  runSweepSilentMode,
}

func runSweepSilentMode(cmd *cobra.Command, args []string) error {
	cfg, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	n, err := dispatch.NewDBSilentMode(db, newDispatcher(cfg), dispatch.SystemClock).SweepExpired(cmd.Context())
	if err != nil {
		return err
	}
	logger.Info("silent mode sweep", zap.Int64("expired", n))
	return nil
}
