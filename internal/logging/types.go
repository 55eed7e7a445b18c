package logging

import "time"

// Decision values written to provenance_log.decision.
const (
	DecisionResolved   = "resolved"
	DecisionFallback   = "fallback"
	DecisionIdle       = "idle"
	DecisionSuperseded = "superseded"
)

// #region provenance-entry
// ProvenanceEntry is a single row in the provenance_log table.
type ProvenanceEntry struct {
	PassID       string
	SnapshotHash string
	TriggerType  string // "manual" | "watch" | "rpc" | "replay"
	ProtocolID   string
	DetailsJSON  string
	Decision     string // "resolved" | "fallback" | "idle" | "superseded"
	Reason       string
	CreatedAt    time.Time
}

// #endregion provenance-entry

// #region decision-record
// DecisionRecord captures everything one resolution pass looked at.
// Serialized as JSON into provenance_log.details_json for replay.
type DecisionRecord struct {
	PassID       string `json:"pass_id"`
	SnapshotHash string `json:"snapshot_hash,omitempty"`
	StudyCount   int    `json:"study_count"`
	SeriesCount  int    `json:"series_count"`

	// Every registered protocol, in registration order
	Candidates []CandidateRecord `json:"candidates"`

	// Stage checks of the winning protocol
	Stages []StageRecord `json:"stages,omitempty"`

	// Thresholds active at decision time
	Thresholds Thresholds `json:"thresholds"`

	// Outcome
	ProtocolID string   `json:"protocol_id,omitempty"`
	StageID    string   `json:"stage_id,omitempty"`
	Score      float64  `json:"score"`
	Fallback   bool     `json:"fallback"`
	SeriesIDs  []string `json:"series_ids"`
}

// CandidateRecord is one protocol's score.
type CandidateRecord struct {
	ProtocolID   string   `json:"protocol_id"`
	Score        float64  `json:"score"`
	Disqualified bool     `json:"disqualified"`
	Vetoes       []string `json:"vetoes,omitempty"`
}

// StageRecord is one stage's activation check.
type StageRecord struct {
	StageID          string `json:"stage_id"`
	Status           string `json:"status"`
	ViewportsMatched int    `json:"viewports_matched"`
}

// Thresholds captures the resolver config active at decision time.
type Thresholds struct {
	MinimumScore float64 `json:"minimum_score"`
	TieBreak     string  `json:"tie_break"`
}

// #endregion decision-record
