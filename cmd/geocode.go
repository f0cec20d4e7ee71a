package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode <address>",
	Short: "Resolve one address through the cached geocoder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		result, err := e.Resolver.Resolve(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "geocode")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(result), "geocode: encode result")
	},
}

func init() {
	rootCmd.AddCommand(geocodeCmd)
}
