package stage

import (
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/matcher"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/protocol"
)

// #region evaluate

// Evaluate checks every stage of p against the ranked matches. Slots
// without display sets count as matched as far as the stage's default
// viewport can fill them with distinct series.
func Evaluate(p *protocol.Protocol, matches matcher.Set) []Evaluation {
	out := make([]Evaluation, len(p.Stages))
	for i := range p.Stages {
		st := &p.Stages[i]
		ev := Evaluation{Index: i, StageID: st.ID, Status: StatusDisabled}

		generated := 0
		for _, vp := range st.Viewports {
			if len(vp.DisplaySets) == 0 {
				generated++
				continue
			}
			if ViewportMatched(vp, matches) {
				ev.ViewportsMatched++
			}
		}
		ev.ViewportsMatched += fillable(p.FallbackViewport(i), matches, generated)

		enabled := st.EnabledActivation()
		missing := missingSelectors(enabled.DisplaySetSelectorsMatched, matches)
		switch {
		case ev.ViewportsMatched >= enabled.MinViewportsMatched && len(missing) == 0:
			ev.Status = StatusEnabled
		case st.Passive != nil:
			passiveMissing := missingSelectors(st.Passive.DisplaySetSelectorsMatched, matches)
			if ev.ViewportsMatched >= st.Passive.MinViewportsMatched && len(passiveMissing) == 0 {
				ev.Status = StatusPassive
			} else {
				missing = passiveMissing
			}
		}
		ev.MissingSelectors = missing
		out[i] = ev
	}
	return out
}

// ViewportMatched reports whether every display set of the viewport
// resolves. A viewport without display sets never counts.
func ViewportMatched(vp protocol.Viewport, matches matcher.Set) bool {
	if len(vp.DisplaySets) == 0 {
		return false
	}
	for _, ref := range vp.DisplaySets {
		if _, ok := matches.Resolve(ref.SelectorID, ref.MatchIndex); !ok {
			return false
		}
	}
	return true
}

// fillable counts how many of n empty slots the default viewport can fill
// without repeating a series.
func fillable(fb *protocol.Viewport, matches matcher.Set, n int) int {
	if n == 0 || fb == nil || len(fb.DisplaySets) == 0 {
		return 0
	}
	ref := fb.DisplaySets[0]
	avail := len(matches[ref.SelectorID]) - ref.MatchIndex
	switch {
	case avail < 0:
		return 0
	case avail > n:
		return n
	}
	return avail
}

func missingSelectors(ids []string, matches matcher.Set) []string {
	var missing []string
	for _, id := range ids {
		if len(matches[id]) == 0 {
			missing = append(missing, id)
		}
	}
	return missing
}

// #endregion evaluate

// #region select

// Select returns the first enabled stage, or false when the protocol cannot
// be activated by its matches.
func Select(p *protocol.Protocol, matches matcher.Set) (*protocol.Stage, int, bool) {
	for _, ev := range Evaluate(p, matches) {
		if ev.Status == StatusEnabled {
			return &p.Stages[ev.Index], ev.Index, true
		}
	}
	return nil, -1, false
}

// Choose picks the stage to show: the requested one unless it is disabled,
// otherwise the first enabled stage, otherwise the first passive stage.
func Choose(evals []Evaluation, req Request) (int, bool) {
	if req.StageID != "" {
		for _, ev := range evals {
			if ev.StageID == req.StageID && ev.Status != StatusDisabled {
				return ev.Index, true
			}
		}
	}
	if req.StageIndex != nil {
		i := *req.StageIndex
		if i >= 0 && i < len(evals) && evals[i].Status != StatusDisabled {
			return i, true
		}
	}
	for _, want := range []Status{StatusEnabled, StatusPassive} {
		for _, ev := range evals {
			if ev.Status == want {
				return ev.Index, true
			}
		}
	}
	return -1, false
}

// Next returns the first non-disabled stage after current.
func Next(evals []Evaluation, current int) (int, bool) {
	for i := current + 1; i < len(evals); i++ {
		if evals[i].Status != StatusDisabled {
			return i, true
		}
	}
	return current, false
}

// Previous returns the last non-disabled stage before current.
func Previous(evals []Evaluation, current int) (int, bool) {
	if current > len(evals) {
		current = len(evals)
	}
	for i := current - 1; i >= 0; i-- {
		if evals[i].Status != StatusDisabled {
			return i, true
		}
	}
	return current, false
}

// #endregion select
