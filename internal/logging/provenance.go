package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// #region log-decision
// LogDecision writes a provenance entry to the provenance_log table.
func LogDecision(db *sql.DB, entry ProvenanceEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO provenance_log (pass_id, snapshot_hash, trigger_type, protocol_id, details_json, decision, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.PassID,
		nullIfEmpty(entry.SnapshotHash),
		entry.TriggerType,
		nullIfEmpty(entry.ProtocolID),
		nullIfEmpty(entry.DetailsJSON),
		entry.Decision,
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// LogRecord serializes rec into a provenance entry and writes it.
func LogRecord(db *sql.DB, trigger, decision, reason string, rec DecisionRecord) error {
	details, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal decision record: %w", err)
	}
	return LogDecision(db, ProvenanceEntry{
		PassID:       rec.PassID,
		SnapshotHash: rec.SnapshotHash,
		TriggerType:  trigger,
		ProtocolID:   rec.ProtocolID,
		DetailsJSON:  string(details),
		Decision:     decision,
		Reason:       reason,
	})
}

// #endregion log-decision

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
