package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/dicomsrc"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/logging"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/resolver"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/store"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/watch"
)

var (
	watchDICOM  string
	watchRecord bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-resolve the layout whenever a DICOM folder changes",
	Long: `Watches a folder of DICOM files. Each change reloads the folder and submits
the new session to a resolver driver; changes that arrive while a pass is
running are folded into one re-run on the latest contents.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newResolver()
		if err != nil {
			return err
		}
		loader, err := dicomsrc.NewLoader(cfg.DICOMCache, dicomsrc.WithLogger(logger))
		if err != nil {
			return err
		}

		var st *store.Store
		if watchRecord {
			st, err = store.NewStore(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()
		}

		out := cmd.OutOrStdout()
		driver := resolver.NewDriver(r,
			resolver.OnApply(func(res resolver.Result) {
				printLayout(out, res.PassID, res.Layout)
				fmt.Fprintln(out)
				if st != nil {
					if err := record(st, res, r.Config(), "watch"); err != nil {
						logger.Warn("record pass failed", zap.Error(err))
					}
				}
			}),
			resolver.OnSuperseded(func(res resolver.Result) {
				if st == nil {
					return
				}
				if err := logging.LogRecord(st.DB(), "watch", logging.DecisionSuperseded, "newer snapshot submitted", res.Record(r.Config())); err != nil {
					logger.Warn("provenance log failed", zap.Error(err))
				}
			}),
		)

		wcfg := watch.DefaultConfig()
		wcfg.Debounce = cfg.Debounce
		w, err := watch.New(watchDICOM, loader, driver, wcfg, logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()

		err = driver.Run(ctx)
		stats := driver.Stats()
		logger.Info("watch stopped",
			zap.Uint64("submitted", stats.Submitted),
			zap.Uint64("passes", stats.Passes),
			zap.Uint64("superseded", stats.Superseded),
		)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchDICOM, "dicom", "", "Folder of DICOM files to watch")
	watchCmd.Flags().BoolVar(&watchRecord, "record", false, "Record applied passes in the history database")
	watchCmd.MarkFlagRequired("dicom")
}
