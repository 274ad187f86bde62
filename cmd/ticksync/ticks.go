package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bft-labs/ticksync/internal/adapters/leveldb"
	"github.com/bft-labs/ticksync/internal/domain"
	"github.com/bft-labs/ticksync/internal/ports"
)

func newTicksCmd() *cobra.Command {
	var pool, dir string
	var minTick, maxTick int32 = domain.MinTick, domain.MaxTick
	var spacing int32 = 1
	cmd := &cobra.Command{
		Use:   "ticks",
		Short: "List the initialized ticks stored in a mirror directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pool == "" || dir == "" {
				return fmt.Errorf("--pool and --mirror-dir are required")
			}
			m, err := leveldb.Open(dir)
			if err != nil {
				return fmt.Errorf("open mirror: %w", err)
			}
			defer m.Close()
			return printTicks(cmd.Context(), cmd.OutOrStdout(), m, pool, minTick, maxTick, spacing)
		},
	}
	cmd.Flags().StringVar(&pool, "pool", "", "pool contract address")
	cmd.Flags().StringVar(&dir, "mirror-dir", "", "leveldb directory written by a previous run")
	cmd.Flags().Int32Var(&minTick, "min-tick", minTick, "lowest tick of the range")
	cmd.Flags().Int32Var(&maxTick, "max-tick", maxTick, "highest tick of the range")
	cmd.Flags().Int32Var(&spacing, "tick-spacing", spacing, "tick spacing of the pool")
	return cmd
}

func printTicks(ctx context.Context, w io.Writer, m ports.Mirror, pool string, minTick, maxTick, spacing int32) error {
	iv, err := domain.NewWordInterval(minTick, maxTick, spacing)
	if err != nil {
		return err
	}
	words, err := m.Load(ctx, pool, iv)
	if err != nil {
		return err
	}
	var n int
	for _, idx := range words.Indices() {
		for _, tick := range domain.InitializedTicks(idx, words[idx], spacing) {
			if tick < minTick || tick > maxTick {
				continue
			}
			fmt.Fprintln(w, tick)
			n++
		}
	}
	fmt.Fprintf(w, "%d initialized ticks in %d stored words\n", n, len(words))
	return nil
}
