package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// #region snapshot

// Series is one display set: the unit a viewport shows.
type Series struct {
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes"`
}

// Study groups the series of one StudyInstanceUID.
type Study struct {
	StudyInstanceUID string         `json:"StudyInstanceUID"`
	Attributes       map[string]any `json:"attributes,omitempty"`
	Series           []Series       `json:"series"`
}

// Snapshot is the set of studies loaded in a viewer session at one moment.
// Studies[0] is the current (active) study; later entries are priors in
// load order. Series order inside a study is discovery order.
type Snapshot struct {
	Studies []Study        `json:"studies"`
	Options map[string]any `json:"options,omitempty"`
}

// Empty reports whether no study is loaded.
func (s Snapshot) Empty() bool {
	return len(s.Studies) == 0
}

// SeriesCount returns the number of series across all studies.
func (s Snapshot) SeriesCount() int {
	n := 0
	for _, st := range s.Studies {
		n += len(st.Series)
	}
	return n
}

// Fingerprint hashes the snapshot's JSON form. Map keys marshal in sorted
// order so equal snapshots hash equally.
func (s Snapshot) Fingerprint() string {
	data, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// LoadFile reads a snapshot from a JSON file.
func LoadFile(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read session: %w", err)
	}
	return Parse(data)
}

// Parse decodes a snapshot from JSON.
func Parse(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("parse session: %w", err)
	}
	return s, nil
}

// #endregion snapshot
