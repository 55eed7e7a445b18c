package resolver

import (
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/layout"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/logging"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/matcher"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/scorer"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/stage"
)

// #region config

// TieBreak orders protocols that score the same.
type TieBreak string

const (
	TieBreakRegistration TieBreak = "registration"
	TieBreakProtocolID   TieBreak = "protocol_id"
)

// Config holds the resolver thresholds.
type Config struct {
	// MinimumScore is the lowest score a protocol may win with. Protocols
	// without matching rules score 0.
	MinimumScore        float64
	TieBreak            TieBreak
	DeduplicateFallback bool
}

// DefaultConfig returns the resolver defaults: catch-all protocols are
// eligible and ties go to the earliest registered protocol.
func DefaultConfig() Config {
	return Config{
		MinimumScore: 0,
		TieBreak:     TieBreakRegistration,
	}
}

// #endregion config

// #region result

// State is the resolver state for a session.
type State string

const (
	StateIdle     State = "idle"
	StateResolved State = "resolved"
)

// Request optionally forces a protocol or asks for a stage.
type Request struct {
	ProtocolID string
	StageID    string
	StageIndex *int
}

// Result is one resolution pass.
type Result struct {
	PassID       string
	State        State
	Layout       layout.Resolved
	Decisions    []scorer.Decision
	Stages       []stage.Evaluation
	Matches      matcher.Set
	SnapshotHash string
	StudyCount   int
	SeriesCount  int
}

// Record converts the result into its provenance form.
func (r Result) Record(cfg Config) logging.DecisionRecord {
	rec := logging.DecisionRecord{
		PassID:       r.PassID,
		SnapshotHash: r.SnapshotHash,
		StudyCount:   r.StudyCount,
		SeriesCount:  r.SeriesCount,
		Thresholds: logging.Thresholds{
			MinimumScore: cfg.MinimumScore,
			TieBreak:     string(cfg.TieBreak),
		},
		ProtocolID: r.Layout.ProtocolID,
		StageID:    r.Layout.StageID,
		Score:      r.Layout.Score,
		Fallback:   r.Layout.Fallback,
		SeriesIDs:  r.Layout.SeriesIDs(),
	}
	for _, d := range r.Decisions {
		c := logging.CandidateRecord{ProtocolID: d.ProtocolID, Score: d.Score, Disqualified: d.Disqualified}
		for _, v := range d.Vetoes {
			c.Vetoes = append(c.Vetoes, string(v.Type))
		}
		rec.Candidates = append(rec.Candidates, c)
	}
	for _, s := range r.Stages {
		rec.Stages = append(rec.Stages, logging.StageRecord{
			StageID:          s.StageID,
			Status:           string(s.Status),
			ViewportsMatched: s.ViewportsMatched,
		})
	}
	return rec
}

// Decision returns the provenance decision label for the result.
func (r Result) Decision() string {
	switch {
	case r.State == StateIdle:
		return logging.DecisionIdle
	case r.Layout.Fallback:
		return logging.DecisionFallback
	default:
		return logging.DecisionResolved
	}
}

// #endregion result
