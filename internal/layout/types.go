package layout

import "github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/protocol"

// #region resolved

// Binding is an extra display set shown in a viewport on top of the primary
// series, such as a PET overlay on a CT.
type Binding struct {
	SelectorID string `json:"selector_id"`
	MatchIndex int    `json:"match_index"`
	SeriesID   string `json:"series_id,omitempty"`
}

// Viewport is one resolved grid slot. SeriesID is empty when the slot shows
// nothing.
type Viewport struct {
	Index        int                  `json:"index"`
	ViewportID   string               `json:"viewport_id"`
	ViewportType string               `json:"viewport_type"`
	ToolGroupID  string               `json:"tool_group_id,omitempty"`
	SyncGroups   []protocol.SyncGroup `json:"sync_groups,omitempty"`
	SeriesID     string               `json:"resolved_series_id"`
	SelectorID   string               `json:"selector_id,omitempty"`
	MatchIndex   int                  `json:"match_index"`
	Unmatched    bool                 `json:"unmatched,omitempty"`
	FromDefault  bool                 `json:"from_default,omitempty"`
	Overlays     []Binding            `json:"overlays,omitempty"`
}

// Resolved is the layout one resolution pass produced. It depends only on
// the registry, the snapshot and the request.
type Resolved struct {
	ProtocolID string     `json:"protocol_id,omitempty"`
	StageID    string     `json:"stage_id,omitempty"`
	StageIndex int        `json:"stage_index"`
	Score      float64    `json:"score"`
	Fallback   bool       `json:"fallback,omitempty"`
	Rows       int        `json:"rows"`
	Columns    int        `json:"columns"`
	Viewports  []Viewport `json:"viewports"`
}

// SeriesIDs lists the series shown per slot in grid order, "" for empty
// slots.
func (r Resolved) SeriesIDs() []string {
	out := make([]string, len(r.Viewports))
	for i, vp := range r.Viewports {
		out[i] = vp.SeriesID
	}
	return out
}

// #endregion resolved

// Options tunes assembly.
type Options struct {
	// DeduplicateFallback makes default-viewport fallbacks skip series that
	// another slot already shows.
	DeduplicateFallback bool
}
