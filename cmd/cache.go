package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sheetmap/sheetmap/internal/geocache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the geocode cache",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show fresh and expired cache entry counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		store, err := geocache.Open(ctx, cfg.Cache.Driver, cfg.Cache.DSN)
		if err != nil {
			return eris.Wrap(err, "cache status: open store")
		}
		defer store.Close() //nolint:errcheck

		stats, err := store.Stats(ctx)
		if err != nil {
			return eris.Wrap(err, "cache status")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(stats), "cache status: encode")
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete cache entries past the retention window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		store, err := geocache.Open(ctx, cfg.Cache.Driver, cfg.Cache.DSN)
		if err != nil {
			return eris.Wrap(err, "cache prune: open store")
		}
		defer store.Close() //nolint:errcheck

		n, err := store.Prune(ctx)
		if err != nil {
			return eris.Wrap(err, "cache prune")
		}

		zap.L().Info("cache prune complete", zap.Int("removed", n))
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}
