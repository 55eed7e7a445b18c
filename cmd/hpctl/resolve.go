package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/resolver"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/store"
)

var (
	resolveSession  string
	resolveDICOM    string
	resolveProtocol string
	resolveStage    string
	resolveJSON     bool
	resolveRecord   bool
	resolveDetails  bool
	resolveStep     int
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a layout for a session file or DICOM folder",
	Example: `  hpctl resolve --session session.json
  hpctl resolve --dicom /data/exam --stage fusion --json
  hpctl resolve --session session.json --stage-step 1`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newResolver()
		if err != nil {
			return err
		}
		snap, err := loadSnapshot(cmd.Context(), resolveSession, resolveDICOM)
		if err != nil {
			return err
		}

		res := r.Resolve(snap, resolver.Request{ProtocolID: resolveProtocol, StageID: resolveStage})
		res = stepStages(r, res, resolveStep)

		if resolveRecord {
			st, err := store.NewStore(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()
			if err := record(st, res, r.Config(), "cli"); err != nil {
				return fmt.Errorf("record pass: %w", err)
			}
		}

		out := cmd.OutOrStdout()
		if resolveJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if resolveDetails {
				return enc.Encode(res.Record(r.Config()))
			}
			return enc.Encode(res.Layout)
		}

		printLayout(out, res.PassID, res.Layout)
		if resolveDetails {
			fmt.Fprintf(out, "\n%-24s  %8s  %s\n", "PROTOCOL", "SCORE", "STATUS")
			for _, d := range res.Decisions {
				status := "eligible"
				if d.Disqualified {
					status = "disqualified"
					for _, v := range d.Vetoes {
						status += " " + string(v.Type)
					}
				}
				fmt.Fprintf(out, "%-24s  %8.2f  %s\n", d.ProtocolID, d.Score, status)
			}
		}
		return nil
	},
}

// stepStages navigates n stages forward, or back when n is negative,
// stopping at the last stage that can be shown.
func stepStages(r *resolver.Resolver, res resolver.Result, n int) resolver.Result {
	dir := 1
	if n < 0 {
		dir, n = -1, -n
	}
	for ; n > 0; n-- {
		next, ok := r.Navigate(res, dir)
		if !ok {
			logger.Warn("no further stage to navigate to",
				zap.String("protocol_id", res.Layout.ProtocolID),
				zap.String("stage_id", res.Layout.StageID),
			)
			break
		}
		res = next
	}
	return res
}

func init() {
	resolveCmd.Flags().StringVar(&resolveSession, "session", "", "Session snapshot JSON file")
	resolveCmd.Flags().StringVar(&resolveDICOM, "dicom", "", "Folder of DICOM files")
	resolveCmd.Flags().StringVar(&resolveProtocol, "protocol", "", "Force a protocol id")
	resolveCmd.Flags().StringVar(&resolveStage, "stage", "", "Request a stage id")
	resolveCmd.Flags().BoolVar(&resolveJSON, "json", false, "Output as JSON")
	resolveCmd.Flags().BoolVar(&resolveRecord, "record", false, "Record the pass in the history database")
	resolveCmd.Flags().BoolVar(&resolveDetails, "details", false, "Show per-protocol scores")
	resolveCmd.Flags().IntVar(&resolveStep, "stage-step", 0, "Move this many stages forward (negative: back) after resolving")
}
