package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/dicomsrc"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/layout"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/logging"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/protocol"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/resolver"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/session"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/store"
)

// #region setup

// loadRegistry builds the protocol registry from the built-ins and the
// configured library directory. Rejected protocols are logged and skipped.
func loadRegistry() (*protocol.Registry, error) {
	reg := protocol.NewRegistry(logger)
	if !noBuiltins {
		if _, err := protocol.LoadBuiltins(reg); err != nil {
			return nil, fmt.Errorf("load built-in protocols: %w", err)
		}
	}
	if cfg.ProtocolsDir != "" {
		n, err := protocol.LoadDir(reg, cfg.ProtocolsDir)
		if err != nil {
			logger.Warn("some protocols were rejected", zap.String("dir", cfg.ProtocolsDir), zap.Error(err))
		}
		logger.Debug("loaded protocol library", zap.String("dir", cfg.ProtocolsDir), zap.Int("protocols", n))
	}
	return reg, nil
}

func resolverConfig() (resolver.Config, error) {
	rc := resolver.DefaultConfig()
	rc.MinimumScore = cfg.MinimumScore
	switch resolver.TieBreak(tieBreak) {
	case resolver.TieBreakRegistration, resolver.TieBreakProtocolID:
		rc.TieBreak = resolver.TieBreak(tieBreak)
	default:
		return rc, fmt.Errorf("unknown tie-break %q", tieBreak)
	}
	return rc, nil
}

func newResolver() (*resolver.Resolver, error) {
	reg, err := loadRegistry()
	if err != nil {
		return nil, err
	}
	rc, err := resolverConfig()
	if err != nil {
		return nil, err
	}
	return resolver.New(reg, rc, resolver.WithLogger(logger)), nil
}

// loadSnapshot reads a session from a JSON file or a DICOM folder.
func loadSnapshot(ctx context.Context, sessionPath, dicomDir string) (session.Snapshot, error) {
	switch {
	case sessionPath != "" && dicomDir != "":
		return session.Snapshot{}, fmt.Errorf("use either --session or --dicom, not both")
	case sessionPath != "":
		return session.LoadFile(sessionPath)
	case dicomDir != "":
		loader, err := dicomsrc.NewLoader(cfg.DICOMCache, dicomsrc.WithLogger(logger))
		if err != nil {
			return session.Snapshot{}, err
		}
		return loader.LoadDir(ctx, dicomDir)
	default:
		return session.Snapshot{}, fmt.Errorf("one of --session or --dicom is required")
	}
}

// record stores a pass and its provenance row.
func record(st *store.Store, res resolver.Result, rc resolver.Config, trigger string) error {
	if _, err := st.RecordPass(store.NewPassRecord(res.PassID, res.Layout, res.SnapshotHash, res.Decision())); err != nil {
		return err
	}
	return logging.LogRecord(st.DB(), trigger, res.Decision(), "", res.Record(rc))
}

// #endregion setup

// #region output

func printLayout(w io.Writer, passID string, l layout.Resolved) {
	switch {
	case l.Fallback:
		fmt.Fprintf(w, "Protocol:  (default layout)\n")
	case l.ProtocolID == "":
		fmt.Fprintf(w, "Protocol:  (idle)\n")
	default:
		fmt.Fprintf(w, "Protocol:  %s\n", l.ProtocolID)
		fmt.Fprintf(w, "Stage:     %s (#%d)\n", l.StageID, l.StageIndex)
		fmt.Fprintf(w, "Score:     %.2f\n", l.Score)
	}
	fmt.Fprintf(w, "Grid:      %dx%d\n", l.Rows, l.Columns)
	fmt.Fprintf(w, "Pass:      %s\n\n", passID)

	fmt.Fprintf(w, "%-4s  %-16s  %-8s  %-24s  %s\n", "#", "VIEWPORT", "TYPE", "SELECTOR", "SERIES")
	fmt.Fprintf(w, "%-4s+-%-16s+-%-8s+-%-24s+-%s\n", "----", strings.Repeat("-", 16), strings.Repeat("-", 8), strings.Repeat("-", 24), strings.Repeat("-", 12))
	for _, vp := range l.Viewports {
		series := vp.SeriesID
		switch {
		case vp.Unmatched:
			series = "(empty)"
		case vp.FromDefault:
			series += " *"
		}
		for _, o := range vp.Overlays {
			series += " + " + o.SeriesID
		}
		sel := vp.SelectorID
		if sel != "" {
			sel = fmt.Sprintf("%s[%d]", sel, vp.MatchIndex)
		}
		fmt.Fprintf(w, "%-4d  %-16s  %-8s  %-24s  %s\n", vp.Index, vp.ViewportID, vp.ViewportType, sel, series)
	}
}

// #endregion output
