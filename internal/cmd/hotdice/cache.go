package hotdice

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/louisbranch/hotdice/internal/storage"
	"github.com/louisbranch/hotdice/internal/storage/sqlite"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the result cache",
	}
	cmd.AddCommand(cacheStatsCmd())
	cmd.AddCommand(cacheClearCmd())
	return cmd
}

func openCache() (*sqlite.Store, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return sqlite.Open(cfg.CachePath())
}

func cacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cached entry counts by kind",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCache()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			for _, kind := range []storage.Kind{storage.KindPilot, storage.KindFull} {
				n, err := store.Count(ctx, kind)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-6s %d\n", kind, n)
			}
			return nil
		},
	}
}

func cacheClearCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete cached results",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCache()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			if kind == "" {
				if err := store.ClearAll(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
				return nil
			}
			k := storage.Kind(kind)
			if !k.Valid() {
				return fmt.Errorf("unknown cache kind %q", kind)
			}
			if err := store.ClearKind(ctx, k); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s entries\n", k)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "only clear one kind: pilot or full")
	return cmd
}
