package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/replay"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/resolver"
)

var replayFixture string

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a fixture and compare layouts against expectations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := replay.LoadFixture(replayFixture)
		if err != nil {
			return err
		}
		reg, err := f.Registry()
		if err != nil {
			return err
		}

		results := replay.Replay(reg, f.ToSteps(), f.Config.ToResolverConfig(), resolver.WithLogger(logger))
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Fixture: %s\n", replayFixture)
		if f.Description != "" {
			fmt.Fprintf(out, "         %s\n", f.Description)
		}
		fmt.Fprintf(out, "\n%-20s  %-10s  %-20s  %-16s  %s\n", "STEP", "DECISION", "PROTOCOL", "STAGE", "SERIES")
		for _, r := range results {
			l := r.Result.Layout
			fmt.Fprintf(out, "%-20s  %-10s  %-20s  %-16s  %v\n", r.StepID, r.Decision, l.ProtocolID, l.StageID, l.SeriesIDs())
		}

		s := replay.Summarize(results)
		fmt.Fprintf(out, "\nSteps: %d  resolved: %d  fallback: %d  idle: %d\n", s.TotalSteps, s.Resolved, s.Fallbacks, s.Idle)

		mismatches := replay.Compare(results, f.ExpectedResults)
		if len(mismatches) == 0 {
			fmt.Fprintf(out, "All %d expectations matched\n", len(f.ExpectedResults))
			return nil
		}
		for _, m := range mismatches {
			fmt.Fprintf(out, "MISMATCH %s\n", m)
		}
		return fmt.Errorf("%d mismatch(es)", len(mismatches))
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayFixture, "fixture", "", "Fixture JSON file")
	replayCmd.MarkFlagRequired("fixture")
}
