package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sheetmap/sheetmap/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "sheetmap",
	Short: "Spreadsheet-to-map embed generator",
	Long:  "Reads location rows from a published spreadsheet CSV, resolves addresses to coordinates through a cached geocoder, and renders an embeddable interactive marker map.",
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
