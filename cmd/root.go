package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MASanner/findbottomlessmimosas-com/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "mimosa",
	Short: "Bottomless mimosa venue catalog ingestion",
	Long:  "Scrapes brunch listing pages, scores venues for bottomless mimosa evidence, and merges them into the venue catalog.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
