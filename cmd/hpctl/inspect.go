package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/store"
)

var (
	inspectLast int
	inspectPass string
	inspectJSON bool
)

type listRow struct {
	PassID     string   `json:"pass_id"`
	Decision   string   `json:"decision"`
	ProtocolID string   `json:"protocol_id,omitempty"`
	StageID    string   `json:"stage_id,omitempty"`
	Score      float64  `json:"score"`
	Series     []string `json:"series"`
	CreatedAt  string   `json:"created_at"`
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show recorded resolution passes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.NewStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer st.Close()

		out := cmd.OutOrStdout()
		if inspectPass != "" {
			rec, err := st.GetPass(inspectPass)
			if err != nil {
				return err
			}
			if inspectJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rec.Layout)
			}
			fmt.Fprintf(out, "Decision:  %s\n", rec.Decision)
			fmt.Fprintf(out, "Created:   %s\n", rec.CreatedAt.Format(time.RFC3339))
			fmt.Fprintf(out, "Snapshot:  %s\n", rec.SnapshotHash)
			printLayout(out, rec.PassID, rec.Layout)
			return nil
		}

		recs, err := st.ListPasses(inspectLast)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "no passes recorded")
			return nil
		}

		// store returns newest first, show chronologically
		rows := make([]listRow, len(recs))
		for i, rec := range recs {
			rows[len(recs)-1-i] = listRow{
				PassID:     rec.PassID,
				Decision:   rec.Decision,
				ProtocolID: rec.ProtocolID,
				StageID:    rec.StageID,
				Score:      rec.Score,
				Series:     rec.Layout.SeriesIDs(),
				CreatedAt:  rec.CreatedAt.Format(time.RFC3339),
			}
		}
		if inspectJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}

		fmt.Fprintf(out, "%-12s  %-10s  %-20s  %-14s  %6s  %s\n", "PASS", "DECISION", "PROTOCOL", "STAGE", "SCORE", "SERIES")
		for _, r := range rows {
			fmt.Fprintf(out, "%-12s  %-10s  %-20s  %-14s  %6.2f  %s\n",
				truncate(r.PassID, 12), r.Decision, r.ProtocolID, r.StageID, r.Score, strings.Join(r.Series, ","))
		}
		return nil
	},
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func init() {
	inspectCmd.Flags().IntVar(&inspectLast, "last", 20, "Show N most recent passes")
	inspectCmd.Flags().StringVar(&inspectPass, "pass", "", "Show one pass in detail")
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Output as JSON")
}
