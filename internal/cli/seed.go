package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"go-forecast-pipeline/internal/store"
)

func newSeedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Fill the origin database with deterministic mock sales",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := a.cfg.SeedWindow()
			if err != nil {
				return err
			}
			p, err := a.provider()
			if err != nil {
				return err
			}
			defer p.Close()

			if err := p.Store.Seed(cmd.Context(), store.SeedOptions{
				Start:    start,
				End:      end,
				Products: a.cfg.Seed.Products,
				Stores:   a.cfg.Seed.Stores,
				Seed:     a.cfg.RunParam.RandomSeed,
			}); err != nil {
				return err
			}
			counts, err := p.Store.Counts(cmd.Context())
			if err != nil {
				return err
			}
			tables := make([]string, 0, len(counts))
			for t := range counts {
				tables = append(tables, t)
			}
			sort.Strings(tables)
			for _, t := range tables {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", t, counts[t])
			}
			return nil
		},
	}
}
