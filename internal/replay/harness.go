package replay

import (
	"fmt"
	"slices"
	"strings"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/protocol"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/resolver"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/session"
)

// #region types
// Step is one recorded session state to resolve.
type Step struct {
	StepID   string
	Snapshot session.Snapshot
	Request  resolver.Request
}

// StepResult captures the outcome of replaying one step.
type StepResult struct {
	StepID   string
	Decision string // "resolved" | "fallback" | "idle"
	Result   resolver.Result
}

// Mismatch is one difference between an expected and a replayed step.
type Mismatch struct {
	StepID string
	Field  string
	Want   string
	Got    string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: %s want %q, got %q", m.StepID, m.Field, m.Want, m.Got)
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalSteps int
	Resolved   int
	Fallbacks  int
	Idle       int
	Protocols  map[string]int
}

// #endregion types

// #region replay
// Replay resolves every step in order with a fresh resolver over reg.
// Steps are independent: resolution depends only on the snapshot.
func Replay(reg *protocol.Registry, steps []Step, config resolver.Config, opts ...resolver.Option) []StepResult {
	r := resolver.New(reg, config, opts...)
	results := make([]StepResult, 0, len(steps))
	for _, st := range steps {
		res := r.Resolve(st.Snapshot, st.Request)
		results = append(results, StepResult{
			StepID:   st.StepID,
			Decision: res.Decision(),
			Result:   res,
		})
	}
	return results
}

// Compare checks replayed results against expectations by step id. A
// missing step is reported as a mismatch on "step".
func Compare(results []StepResult, expected []FixtureExpectedResult) []Mismatch {
	byID := make(map[string]StepResult, len(results))
	for _, r := range results {
		byID[r.StepID] = r
	}

	var out []Mismatch
	for _, exp := range expected {
		r, ok := byID[exp.StepID]
		if !ok {
			out = append(out, Mismatch{StepID: exp.StepID, Field: "step", Want: "present", Got: "missing"})
			continue
		}
		l := r.Result.Layout
		check := func(field, want, got string) {
			if want != "" && want != got {
				out = append(out, Mismatch{StepID: exp.StepID, Field: field, Want: want, Got: got})
			}
		}
		check("protocol_id", exp.ProtocolID, l.ProtocolID)
		check("stage_id", exp.StageID, l.StageID)
		check("decision", exp.Decision, r.Decision)
		if exp.SeriesIDs != nil && !slices.Equal(exp.SeriesIDs, l.SeriesIDs()) {
			out = append(out, Mismatch{
				StepID: exp.StepID,
				Field:  "series_ids",
				Want:   strings.Join(exp.SeriesIDs, ","),
				Got:    strings.Join(l.SeriesIDs(), ","),
			})
		}
	}
	return out
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []StepResult) ReplaySummary {
	s := ReplaySummary{
		TotalSteps: len(results),
		Protocols:  make(map[string]int),
	}
	for _, r := range results {
		switch r.Decision {
		case "resolved":
			s.Resolved++
			s.Protocols[r.Result.Layout.ProtocolID]++
		case "fallback":
			s.Fallbacks++
		case "idle":
			s.Idle++
		}
	}
	return s
}

// #endregion replay
