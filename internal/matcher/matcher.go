package matcher

import (
	"sort"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/protocol"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/rules"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/session"
)

// #region types

// Match is one candidate series that satisfied a selector.
type Match struct {
	SelectorID string  `json:"selector_id"`
	SeriesID   string  `json:"series_id"`
	StudyIndex int     `json:"study_index"`
	Score      float64 `json:"score"`
	Rank       int     `json:"rank"`
}

// Set maps selector id to its ranked matches.
type Set map[string][]Match

// Resolve returns the series at the given rank of a selector, or false when
// the selector has fewer matches.
func (s Set) Resolve(selectorID string, index int) (Match, bool) {
	ms := s[selectorID]
	if index < 0 || index >= len(ms) {
		return Match{}, false
	}
	return ms[index], true
}

// #endregion types

// #region match

// Options narrows which candidates a selector may consider.
type Options struct {
	// ActiveStudyOnly restricts candidates to study index 0.
	ActiveStudyOnly bool
}

// Rank evaluates a selector against every candidate in the view and
// returns qualifying series best first. Candidates failing a required rule
// are dropped. Ties break on ascending SeriesNumber (series without one sort
// last), then on discovery order.
func Rank(sel protocol.Selector, view session.View, opts Options) []Match {
	studyScores := make([]rules.Outcome, len(view.Studies))
	for i, st := range view.Studies {
		studyScores[i] = rules.EvaluateAll(sel.StudyRules, st.Bag, st.Options)
	}

	type scored struct {
		Match
		order        int
		seriesNumber float64
		hasNumber    bool
	}
	var kept []scored
	for _, c := range view.Candidates {
		if opts.ActiveStudyOnly && c.StudyIndex != 0 {
			continue
		}
		study := studyScores[c.StudyIndex]
		if study.RequiredFailed {
			continue
		}
		series := rules.EvaluateAll(sel.SeriesRules, c.Bag, view.Studies[c.StudyIndex].Options)
		if series.RequiredFailed {
			continue
		}
		kept = append(kept, scored{
			Match: Match{
				SelectorID: sel.ID,
				SeriesID:   c.SeriesID,
				StudyIndex: c.StudyIndex,
				Score:      study.Score + series.Score,
			},
			order:        c.Order,
			seriesNumber: c.SeriesNumber,
			hasNumber:    c.HasSeriesNumber,
		})
	}

	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.hasNumber != b.hasNumber {
			return a.hasNumber
		}
		if a.hasNumber && a.seriesNumber != b.seriesNumber {
			return a.seriesNumber < b.seriesNumber
		}
		return a.order < b.order
	})

	out := make([]Match, len(kept))
	for i, k := range kept {
		k.Rank = i
		out[i] = k.Match
	}
	return out
}

// MatchAll ranks every selector of a protocol. A protocol with
// NumberOfPriorsReferenced of -1 only sees the active study.
func MatchAll(p *protocol.Protocol, view session.View) Set {
	opts := Options{ActiveStudyOnly: p.NumberOfPriorsReferenced == -1}
	out := make(Set, len(p.Selectors))
	for id, sel := range p.Selectors {
		if sel.ID == "" {
			sel.ID = id
		}
		out[id] = Rank(sel, view, opts)
	}
	return out
}

// #endregion match
