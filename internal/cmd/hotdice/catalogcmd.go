package hotdice

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/louisbranch/hotdice/internal/catalog"
	"github.com/louisbranch/hotdice/internal/core/dice"
	"github.com/louisbranch/hotdice/internal/core/search"
)

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Work with the dice probability catalog",
	}
	cmd.AddCommand(catalogValidateCmd())
	return cmd
}

func catalogValidateCmd() *cobra.Command {
	var path string
	var perDie int
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a catalog file and show the derived inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.LoadFile(path)
			if err != nil {
				return err
			}
			inventory := catalog.Inventory(cat, perDie)

			out := cmd.OutOrStdout()
			for i, d := range cat {
				fmt.Fprintf(out, "%-24s quality %6.2f  inventory %d\n", d.Name, d.Quality(), inventory[i])
			}
			total := search.CountCombinations(inventory, dice.LoadoutSize)
			fmt.Fprintf(out, "%d dice, %d feasible loadouts\n", len(cat), total)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "catalog", "dice.json", "path to the dice probability catalog")
	cmd.Flags().IntVar(&perDie, "per-die", catalog.DefaultPerDie, "inventory per weighted die design")
	return cmd
}
