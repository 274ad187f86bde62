package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bft-labs/ticksync/internal/domain"
)

func newWordCmd() *cobra.Command {
	var spacing int32 = 1
	cmd := &cobra.Command{
		Use:   "word TICK",
		Short: "Print the bitmap word and bit position of a tick",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tick, err := parseTick(args[0])
			if err != nil {
				return err
			}
			return printWord(cmd.OutOrStdout(), tick, spacing)
		},
	}
	cmd.Flags().Int32Var(&spacing, "tick-spacing", spacing, "tick spacing of the pool")
	return cmd
}

func printWord(w io.Writer, tick, spacing int32) error {
	if spacing < 1 {
		return domain.ErrInvalidSpacing
	}
	if err := domain.CheckTick(tick); err != nil {
		return err
	}
	word, bit := domain.TickPosition(tick, spacing)
	fmt.Fprintf(w, "tick %d spacing %d: word %d bit %d\n", tick, spacing, word, bit)
	return nil
}
