package store

import (
	"time"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/layout"
)

// #region pass-record
// PassRecord is one resolution pass as stored in history.
type PassRecord struct {
	ID           string
	PassID       string
	SnapshotHash string
	ProtocolID   string
	StageID      string
	StageIndex   int
	Score        float64
	Fallback     bool
	Decision     string // "resolved" | "fallback" | "idle" | "superseded"
	Layout       layout.Resolved
	CreatedAt    time.Time
}

// NewPassRecord builds a history row from an assembled layout.
func NewPassRecord(passID string, l layout.Resolved, snapshotHash, decision string) PassRecord {
	return PassRecord{
		PassID:       passID,
		SnapshotHash: snapshotHash,
		ProtocolID:   l.ProtocolID,
		StageID:      l.StageID,
		StageIndex:   l.StageIndex,
		Score:        l.Score,
		Fallback:     l.Fallback,
		Decision:     decision,
		Layout:       l,
	}
}
// #endregion pass-record
