package cmd

import (
	"errors"
	"fmt"

	"Guardline/internal/listeners"
	"Guardline/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var reindexMax int

var reindexSearchCmd = &cobra.Command{
	Use:   "reindex-search",
	Short: "Rebuild the on-disk request search index from the database",
	RunE:  runReindexSearch,
}

func init() {
	reindexSearchCmd.Flags().IntVar(&reindexMax, "max", 100000, "maximum number of requests to index")
}

func runReindexSearch(cmd *cobra.Command, args []string) error {
	cfg, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()
	if cfg.SearchPath == "" {
		return errors.New("reindex-search: SEARCH_PATH is not set")
	}

	index, err := openSearch(cfg)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	defer index.Close()

	n, err := listeners.Backfill(cmd.Context(), db, index, reindexMax)
	if err != nil {
		return fmt.Errorf("reindex-search: %w", err)
	}
	logger.Info("reindex-search: ok", zap.Int("requests", n))
	return nil
}
