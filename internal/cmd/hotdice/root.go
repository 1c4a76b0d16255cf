// Package hotdice implements the hotdice command line interface.
package hotdice

import (
	"context"

	"github.com/spf13/cobra"
)

var version = "dev"

// Execute runs the root command against the given context.
func Execute(ctx context.Context) error {
	root := &cobra.Command{
		Use:   "hotdice",
		Short: "Weighted-dice loadout optimizer",
		Long: `hotdice searches an inventory of weighted six-sided dice for the
six-die loadout that best meets a scoring objective, using staged Monte
Carlo evaluation with a persistent result cache.`,
	}
	root.Version = version
	root.SetVersionTemplate("{{.Version}}\n")
	// main reports the error through config.Exitf; keep cobra from
	// printing it a second time.
	root.SilenceErrors = true
	root.AddCommand(optimizeCmd())
	root.AddCommand(cacheCmd())
	root.AddCommand(catalogCmd())
	return root.ExecuteContext(ctx)
}
