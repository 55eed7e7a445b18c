package scorer

import (
	"fmt"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/protocol"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/rules"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/session"
)

// #region score

// Score rates a protocol against session-level facts. Hard vetoes are
// checked first; a protocol that survives them scores the summed weight of
// its passing matching rules. A protocol with no rules scores 0.
func Score(p *protocol.Protocol, view session.View) Decision {
	d := Decision{ProtocolID: p.ID}

	// --- Hard veto pass ---

	if p.NumberOfPriorsReferenced > 0 && view.Priors() < p.NumberOfPriorsReferenced {
		d.Vetoes = append(d.Vetoes, Veto{
			Type:   VetoInsufficientPrior,
			Reason: fmt.Sprintf("needs %d priors, %d loaded", p.NumberOfPriorsReferenced, view.Priors()),
		})
	}

	if p.MinSeriesLoaded > 0 && len(view.Candidates) < p.MinSeriesLoaded {
		d.Vetoes = append(d.Vetoes, Veto{
			Type:   VetoMinSeriesLoaded,
			Reason: fmt.Sprintf("needs %d series, %d loaded", p.MinSeriesLoaded, len(view.Candidates)),
		})
	}

	options := view.Options
	if len(view.Studies) > 0 {
		options = view.Studies[0].Options
	}
	out := rules.EvaluateAll(p.MatchingRules, view.Session, options)
	d.Details = out.Details
	if out.RequiredFailed {
		for _, det := range out.Details {
			if det.Required && !det.Passed {
				d.Vetoes = append(d.Vetoes, Veto{
					Type:   VetoRequiredRule,
					Reason: fmt.Sprintf("required rule on %s (%s) failed", det.Attribute, det.Kind),
				})
			}
		}
	}

	if len(d.Vetoes) > 0 {
		d.Disqualified = true
		return d
	}

	// --- Soft score ---

	d.Score = out.Score
	return d
}

// ScoreAll scores every protocol in order.
func ScoreAll(ps []*protocol.Protocol, view session.View) []Decision {
	out := make([]Decision, len(ps))
	for i, p := range ps {
		out[i] = Score(p, view)
	}
	return out
}

// #endregion score
