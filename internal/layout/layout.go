package layout

import (
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/matcher"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/protocol"
)

// #region assemble

// Assemble binds each viewport of the chosen stage to a series. A slot whose
// display set has no match at the requested rank is left empty when the
// viewport or its selector allows unmatched views; otherwise it falls back
// to the default viewport's resolution, and is left empty if that also
// fails. Slots without display sets always try the default viewport and
// never repeat a series another slot shows.
func Assemble(p *protocol.Protocol, stageIndex int, matches matcher.Set, opts Options) Resolved {
	st := &p.Stages[stageIndex]
	out := Resolved{
		ProtocolID: p.ID,
		StageID:    st.ID,
		StageIndex: stageIndex,
		Rows:       st.Rows,
		Columns:    st.Columns,
		Viewports:  make([]Viewport, len(st.Viewports)),
	}

	shown := make(map[string]bool)
	pending := make([]int, 0)

	// Direct resolutions first so fallbacks can see what is already shown.
	for i, slot := range st.Viewports {
		vp := Viewport{
			Index:        i,
			ViewportID:   slot.Options.ViewportID,
			ViewportType: slot.Options.ViewportType,
			ToolGroupID:  slot.Options.ToolGroupID,
			SyncGroups:   slot.Options.SyncGroups,
		}
		if len(slot.DisplaySets) > 0 {
			primary := slot.DisplaySets[0]
			vp.SelectorID = primary.SelectorID
			vp.MatchIndex = primary.MatchIndex
			if m, ok := matches.Resolve(primary.SelectorID, primary.MatchIndex); ok {
				vp.SeriesID = m.SeriesID
				shown[m.SeriesID] = true
			}
			for _, extra := range slot.DisplaySets[1:] {
				b := Binding{SelectorID: extra.SelectorID, MatchIndex: extra.MatchIndex}
				if m, ok := matches.Resolve(extra.SelectorID, extra.MatchIndex); ok {
					b.SeriesID = m.SeriesID
				}
				vp.Overlays = append(vp.Overlays, b)
			}
		}
		if vp.SeriesID == "" {
			pending = append(pending, i)
		}
		out.Viewports[i] = vp
	}

	fallback := p.FallbackViewport(stageIndex)
	for _, i := range pending {
		slot := st.Viewports[i]
		vp := &out.Viewports[i]

		generated := len(slot.DisplaySets) == 0
		if !generated && allowsUnmatched(p, slot) {
			vp.Unmatched = true
			continue
		}

		m, ok := resolveFallback(fallback, matches, shown, generated || opts.DeduplicateFallback)
		if !ok {
			vp.Unmatched = true
			continue
		}
		vp.SeriesID = m.SeriesID
		vp.SelectorID = m.SelectorID
		vp.MatchIndex = m.Rank
		vp.FromDefault = true
		shown[m.SeriesID] = true
	}
	return out
}

func allowsUnmatched(p *protocol.Protocol, slot protocol.Viewport) bool {
	if slot.Options.AllowUnmatchedView {
		return true
	}
	sel, ok := p.Selectors[slot.DisplaySets[0].SelectorID]
	return ok && sel.AllowUnmatchedView
}

func resolveFallback(fb *protocol.Viewport, matches matcher.Set, shown map[string]bool, dedupe bool) (matcher.Match, bool) {
	if fb == nil || len(fb.DisplaySets) == 0 {
		return matcher.Match{}, false
	}
	ref := fb.DisplaySets[0]
	if !dedupe {
		return matches.Resolve(ref.SelectorID, ref.MatchIndex)
	}
	ms := matches[ref.SelectorID]
	for i := ref.MatchIndex; i < len(ms); i++ {
		if !shown[ms[i].SeriesID] {
			return ms[i], true
		}
	}
	return matcher.Match{}, false
}

// #endregion assemble

// #region defaults

// Single is the application's one-viewport layout. An empty seriesID gives
// the idle layout.
func Single(seriesID string) Resolved {
	vp := Viewport{
		ViewportID:   "viewport-0",
		ViewportType: "stack",
		ToolGroupID:  "default",
		SeriesID:     seriesID,
		Unmatched:    seriesID == "",
	}
	return Resolved{
		Rows:      1,
		Columns:   1,
		Viewports: []Viewport{vp},
	}
}

// #endregion defaults
