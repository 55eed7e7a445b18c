package scorer

import "github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/rules"

// VetoType names why a protocol was disqualified.
type VetoType string

const (
	VetoRequiredRule      VetoType = "required_rule"
	VetoInsufficientPrior VetoType = "insufficient_priors"
	VetoMinSeriesLoaded   VetoType = "min_series_loaded"
)

// Veto is one hard disqualification.
type Veto struct {
	Type   VetoType `json:"type"`
	Reason string   `json:"reason"`
}

// Decision is the scorer's verdict on one protocol. Score is meaningful only
// when Disqualified is false.
type Decision struct {
	ProtocolID   string         `json:"protocol_id"`
	Score        float64        `json:"score"`
	Disqualified bool           `json:"disqualified"`
	Vetoes       []Veto         `json:"vetoes,omitempty"`
	Details      []rules.Detail `json:"details,omitempty"`
}
