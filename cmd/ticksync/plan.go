package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bft-labs/ticksync/internal/batch"
	"github.com/bft-labs/ticksync/internal/domain"
)

type planOptions struct {
	minTick, maxTick, spacing int32
	policy                    domain.BatchPolicy
}

func newPlanCmd() *cobra.Command {
	o := planOptions{
		minTick: domain.MinTick,
		maxTick: domain.MaxTick,
		spacing: 1,
		policy:  domain.DefaultBatchPolicy(),
	}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the batch schedule for a tick range without contacting a node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printPlan(cmd.OutOrStdout(), o)
		},
	}
	cmd.Flags().Int32Var(&o.minTick, "min-tick", o.minTick, "lowest tick of the range")
	cmd.Flags().Int32Var(&o.maxTick, "max-tick", o.maxTick, "highest tick of the range")
	cmd.Flags().Int32Var(&o.spacing, "tick-spacing", o.spacing, "tick spacing of the pool")
	cmd.Flags().IntVar(&o.policy.MaxBatchSize, "max-batch-size", o.policy.MaxBatchSize, "maximum words per request")
	cmd.Flags().IntVar(&o.policy.GroupCap, "group-cap", o.policy.GroupCap, "words per group")
	return cmd
}

func printPlan(w io.Writer, o planOptions) error {
	iv, err := domain.NewWordInterval(o.minTick, o.maxTick, o.spacing)
	if err != nil {
		return err
	}
	batches, err := batch.Schedule(iv, o.policy)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "words %s (%d words), %d batches, at most %d\n",
		iv, iv.Len(), len(batches), batch.MaxBatches(iv.Len(), o.policy))

	st := batch.NewState(iv)
	for i, b := range batches {
		var crossed bool
		st, crossed = batch.Advance(st, b, o.policy)
		line := fmt.Sprintf("%4d  start %6d  end %6d  count %5d", i+1, b.Start, b.End(), b.Count)
		if crossed && !st.Done() {
			line += "  group boundary"
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func parseTick(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse tick %q: %w", s, err)
	}
	return int32(v), nil
}
