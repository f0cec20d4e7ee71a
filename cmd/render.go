package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sheetmap/sheetmap/internal/pipeline"
	"github.com/sheetmap/sheetmap/internal/render"
)

var renderOut string

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Run the pipeline once and emit the map document",
	Long: `Fetches the published CSV, resolves every row to coordinates, and writes a
self-contained interactive map HTML document to --out (or stdout).

On a fatal failure the static "unable to load" document is written instead
and the command exits non-zero.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		result, err := e.Pipeline.Run(ctx)
		if err != nil {
			kind, _ := pipeline.KindOf(err)
			zap.L().Error("render: run failed",
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
			if renderOut != "" {
				_ = os.WriteFile(renderOut, render.StaticErrorDocument(cfg.Embed.ContainerID), 0o644)
			}
			return err
		}

		if renderOut == "" {
			_, err = os.Stdout.Write(result.Document)
			return eris.Wrap(err, "render: write stdout")
		}
		if err := os.WriteFile(renderOut, result.Document, 0o644); err != nil {
			return eris.Wrapf(err, "render: write %s", renderOut)
		}

		zap.L().Info("render: document written",
			zap.String("out", renderOut),
			zap.Int("entries", len(result.Entries)),
		)
		return nil
	},
}

func init() {
	renderCmd.Flags().StringVar(&renderOut, "out", "", "output file (default stdout)")
	rootCmd.AddCommand(renderCmd)
}
