package resolver

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/protocol"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/rules"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/session"
)

// #region helpers

func fixedIDs() Option {
	n := 0
	return WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("pass-%d", n)
	})
}

func constantID() Option {
	return WithIDGenerator(func() string { return "pass" })
}

func imageSeries(id string, attrs map[string]any) session.Series {
	a := map[string]any{"numImageFrames": 10}
	for k, v := range attrs {
		a[k] = v
	}
	return session.Series{ID: id, Attributes: a}
}

func snapshot(studies ...session.Study) session.Snapshot {
	return session.Snapshot{Studies: studies}
}

func oneViewport(selector string, idx int) protocol.Viewport {
	return protocol.Viewport{DisplaySets: []protocol.DisplaySetRef{{SelectorID: selector, MatchIndex: idx}}}
}

func catchAll() *protocol.Protocol {
	return &protocol.Protocol{
		ID: "default",
		Selectors: map[string]protocol.Selector{"any": {SeriesRules: []rules.Rule{
			rules.NewRule("numImageFrames", rules.GreaterThan(0), rules.Required()),
		}}},
		Stages: []protocol.Stage{{ID: "1x1", Rows: 1, Columns: 1, Viewports: []protocol.Viewport{oneViewport("any", 0)}}},
	}
}

func newRegistry(t *testing.T, ps ...*protocol.Protocol) *protocol.Registry {
	t.Helper()
	reg := protocol.NewRegistry(nil)
	for _, p := range ps {
		if err := reg.Register(p); err != nil {
			t.Fatalf("register %s: %v", p.ID, err)
		}
	}
	return reg
}

// #endregion helpers

// #region scenarios

func TestResolve_ScenarioA_SessionRuleScore(t *testing.T) {
	p := catchAll()
	p.ID = "images"
	p.MatchingRules = []rules.Rule{
		rules.NewRule("numberOfDisplaySetsWithImages", rules.GreaterThan(0), rules.Weight(25)),
	}
	r := New(newRegistry(t, p), DefaultConfig(), fixedIDs())

	res := r.Resolve(snapshot(session.Study{StudyInstanceUID: "s1", Series: []session.Series{
		imageSeries("a", nil), imageSeries("b", nil),
	}}), Request{})

	if res.Decisions[0].Disqualified || res.Decisions[0].Score != 25 {
		t.Fatalf("decision = %+v", res.Decisions[0])
	}
	if res.Layout.ProtocolID != "images" || res.Layout.Score != 25 {
		t.Fatalf("layout = %+v", res.Layout)
	}
}

func TestResolve_ScenarioB_PriorSelectorWithoutPrior(t *testing.T) {
	p := &protocol.Protocol{
		ID: "compare",
		Selectors: map[string]protocol.Selector{
			"current": {},
			"prior": {SeriesRules: []rules.Rule{
				rules.NewRule("studyInstanceUIDsIndex", rules.Equals(1), rules.FromOptions(), rules.Required()),
			}},
		},
		Stages: []protocol.Stage{{ID: "1x2", Rows: 1, Columns: 2, Viewports: []protocol.Viewport{
			oneViewport("current", 0), oneViewport("prior", 0),
		}}},
	}
	r := New(newRegistry(t, p), DefaultConfig(), fixedIDs())
	res := r.Resolve(snapshot(session.Study{StudyInstanceUID: "s1", Series: []session.Series{imageSeries("a", nil)}}), Request{})

	if len(res.Matches["prior"]) != 0 {
		t.Fatalf("prior selector should not match: %+v", res.Matches["prior"])
	}
	vp := res.Layout.Viewports[1]
	if vp.SeriesID != "" || !vp.Unmatched {
		t.Fatalf("prior slot should be unmatched, got %+v", vp)
	}
	if res.Layout.Viewports[0].SeriesID != "a" {
		t.Fatalf("current slot = %+v", res.Layout.Viewports[0])
	}
}

func TestResolve_ScenarioC_SecondRankUnmatched(t *testing.T) {
	p := &protocol.Protocol{
		ID:        "pair",
		Selectors: map[string]protocol.Selector{"ct": {SeriesRules: []rules.Rule{rules.NewRule("Modality", rules.Equals("CT"), rules.Required())}}},
		Stages: []protocol.Stage{{ID: "1x2", Rows: 1, Columns: 2, Viewports: []protocol.Viewport{
			oneViewport("ct", 0), oneViewport("ct", 1),
		}}},
	}
	r := New(newRegistry(t, p), DefaultConfig(), fixedIDs())
	res := r.Resolve(snapshot(session.Study{StudyInstanceUID: "s1", Series: []session.Series{
		imageSeries("ct", map[string]any{"Modality": "CT"}),
		imageSeries("mr", map[string]any{"Modality": "MR"}),
	}}), Request{})

	ids := res.Layout.SeriesIDs()
	if ids[0] != "ct" || ids[1] != "" || !res.Layout.Viewports[1].Unmatched {
		t.Fatalf("series = %v, viewports = %+v", ids, res.Layout.Viewports)
	}
}

func TestResolve_ScenarioD_StageWithoutMatchesSkipped(t *testing.T) {
	p := &protocol.Protocol{
		ID: "staged",
		Selectors: map[string]protocol.Selector{
			"mr":  {SeriesRules: []rules.Rule{rules.NewRule("Modality", rules.Equals("MR"), rules.Required())}},
			"any": {},
		},
		Stages: []protocol.Stage{
			{ID: "mr", Rows: 1, Columns: 1, Viewports: []protocol.Viewport{oneViewport("mr", 0)}},
			{ID: "any", Rows: 1, Columns: 1, Viewports: []protocol.Viewport{oneViewport("any", 0)}},
		},
	}
	r := New(newRegistry(t, p), DefaultConfig(), fixedIDs())
	res := r.Resolve(snapshot(session.Study{StudyInstanceUID: "s1", Series: []session.Series{
		imageSeries("ct", map[string]any{"Modality": "CT"}),
	}}), Request{})

	if res.Layout.StageID != "any" || res.Layout.StageIndex != 1 {
		t.Fatalf("expected second stage, got %s (%d)", res.Layout.StageID, res.Layout.StageIndex)
	}
}

func TestResolve_ScenarioD_DefaultLayoutWhenNoStage(t *testing.T) {
	p := &protocol.Protocol{
		ID:        "mr-only",
		Selectors: map[string]protocol.Selector{"mr": {SeriesRules: []rules.Rule{rules.NewRule("Modality", rules.Equals("MR"), rules.Required())}}},
		Stages:    []protocol.Stage{{ID: "mr", Rows: 1, Columns: 1, Viewports: []protocol.Viewport{oneViewport("mr", 0)}}},
	}
	r := New(newRegistry(t, p), DefaultConfig(), fixedIDs())
	res := r.Resolve(snapshot(session.Study{StudyInstanceUID: "s1", Series: []session.Series{
		imageSeries("first", map[string]any{"Modality": "CT"}),
		imageSeries("latest", map[string]any{"Modality": "CT"}),
		{ID: "report", Attributes: map[string]any{"Modality": "SR"}},
	}}), Request{})

	if !res.Layout.Fallback || res.Decision() != "fallback" {
		t.Fatalf("expected fallback layout, got %+v", res.Layout)
	}
	if got := res.Layout.SeriesIDs(); len(got) != 1 || got[0] != "latest" {
		t.Fatalf("fallback should show the most recent image series, got %v", got)
	}
}

// Literal substring matching: only the description that contains the word
// gets the weight.
func TestResolve_ScenarioE_ContainsWeight(t *testing.T) {
	p := &protocol.Protocol{
		ID: "dental",
		Selectors: map[string]protocol.Selector{"bw": {SeriesRules: []rules.Rule{
			rules.NewRule("SeriesDescription", rules.Contains("bitewing"), rules.Weight(10)),
		}}},
		Stages: []protocol.Stage{{ID: "1x1", Rows: 1, Columns: 1, Viewports: []protocol.Viewport{oneViewport("bw", 0)}}},
	}
	r := New(newRegistry(t, p), DefaultConfig(), fixedIDs())
	res := r.Resolve(snapshot(session.Study{StudyInstanceUID: "s1", Series: []session.Series{
		imageSeries("pano", map[string]any{"SeriesDescription": "Panoramic", "SeriesNumber": 1}),
		imageSeries("bw", map[string]any{"SeriesDescription": "bitewing BW 1", "SeriesNumber": 2}),
	}}), Request{})

	ms := res.Matches["bw"]
	if len(ms) != 2 {
		t.Fatalf("both series should match the non-required rule, got %+v", ms)
	}
	if ms[0].SeriesID != "bw" || ms[0].Score != 10 || ms[1].Score != 0 {
		t.Fatalf("ranking = %+v", ms)
	}
	if res.Layout.Viewports[0].SeriesID != "bw" {
		t.Fatalf("viewport shows %q", res.Layout.Viewports[0].SeriesID)
	}
}

// #endregion scenarios

// #region properties

func TestResolve_Idempotent(t *testing.T) {
	reg := protocol.NewRegistry(nil)
	if _, err := protocol.LoadBuiltins(reg); err != nil {
		t.Fatalf("LoadBuiltins: %v", err)
	}
	r := New(reg, DefaultConfig())
	snap := snapshot(
		session.Study{StudyInstanceUID: "cur", Series: []session.Series{
			imageSeries("ct", map[string]any{"Modality": "CT", "SeriesNumber": 1}),
			imageSeries("pt", map[string]any{"Modality": "PT", "SeriesNumber": 2}),
		}},
		session.Study{StudyInstanceUID: "prior", Series: []session.Series{imageSeries("old", map[string]any{"Modality": "CT"})}},
	)

	a := r.Resolve(snap, Request{})
	b := r.Resolve(snap, Request{})
	if diff := cmp.Diff(a.Layout, b.Layout); diff != "" {
		t.Fatalf("layout not idempotent (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(a, b, cmpopts.IgnoreFields(Result{}, "PassID")); diff != "" {
		t.Fatalf("resolution not idempotent (-first +second):\n%s", diff)
	}
	if a.PassID == "" || a.PassID == b.PassID {
		t.Fatalf("each pass needs its own id, got %q and %q", a.PassID, b.PassID)
	}
}

func TestResolve_TieGoesToFirstRegistered(t *testing.T) {
	first, second := catchAll(), catchAll()
	first.ID, second.ID = "zeta", "alpha"
	r := New(newRegistry(t, first, second), DefaultConfig(), fixedIDs())
	snap := snapshot(session.Study{StudyInstanceUID: "s", Series: []session.Series{imageSeries("a", nil)}})

	for i := 0; i < 20; i++ {
		if got := r.Resolve(snap, Request{}).Layout.ProtocolID; got != "zeta" {
			t.Fatalf("run %d picked %s", i, got)
		}
	}

	byID := New(newRegistry(t, catchAllWithID("zeta"), catchAllWithID("alpha")), Config{TieBreak: TieBreakProtocolID}, fixedIDs())
	if got := byID.Resolve(snap, Request{}).Layout.ProtocolID; got != "alpha" {
		t.Fatalf("protocol id tie-break picked %s", got)
	}
}

func catchAllWithID(id string) *protocol.Protocol {
	p := catchAll()
	p.ID = id
	return p
}

func TestResolve_HigherScoreWins(t *testing.T) {
	low, high := catchAllWithID("low"), catchAllWithID("high")
	high.MatchingRules = []rules.Rule{rules.NewRule("ModalitiesInStudy", rules.Contains("CT"), rules.Weight(3))}
	r := New(newRegistry(t, low, high), DefaultConfig(), fixedIDs())
	res := r.Resolve(snapshot(session.Study{StudyInstanceUID: "s", Series: []session.Series{
		imageSeries("a", map[string]any{"Modality": "CT"}),
	}}), Request{})
	if res.Layout.ProtocolID != "high" {
		t.Fatalf("picked %s", res.Layout.ProtocolID)
	}
}

func TestResolve_MinimumScore(t *testing.T) {
	r := New(newRegistry(t, catchAll()), Config{MinimumScore: 1}, fixedIDs())
	res := r.Resolve(snapshot(session.Study{StudyInstanceUID: "s", Series: []session.Series{imageSeries("a", nil)}}), Request{})
	if !res.Layout.Fallback {
		t.Fatalf("score 0 is below the minimum, expected fallback: %+v", res.Layout)
	}
}

func TestResolve_RequiredRuleEliminates(t *testing.T) {
	strict := catchAllWithID("strict")
	strict.MatchingRules = []rules.Rule{
		rules.NewRule("ModalitiesInStudy", rules.Contains("CT"), rules.Weight(100)),
		rules.NewRule("ModalitiesInStudy", rules.Contains("MG"), rules.Required()),
	}
	r := New(newRegistry(t, strict, catchAll()), DefaultConfig(), fixedIDs())
	res := r.Resolve(snapshot(session.Study{StudyInstanceUID: "s", Series: []session.Series{
		imageSeries("a", map[string]any{"Modality": "CT"}),
	}}), Request{})
	if res.Layout.ProtocolID != "default" {
		t.Fatalf("disqualified protocol won: %s", res.Layout.ProtocolID)
	}
}

// #endregion properties

// #region states

// A stage without viewports is filled from the default viewport and is
// picked like any other stage.
// A forced protocol without an activatable stage gives way to the ranking
// instead of the default layout.
func TestResolve_ForcedProtocolWithoutStage(t *testing.T) {
	mr := catchAllWithID("mr")
	mr.Selectors = map[string]protocol.Selector{"mr": {SeriesRules: []rules.Rule{
		rules.NewRule("Modality", rules.Equals("MR"), rules.Required()),
	}}}
	mr.Stages = []protocol.Stage{{ID: "1x1", Rows: 1, Columns: 1, Viewports: []protocol.Viewport{oneViewport("mr", 0)}}}
	r := New(newRegistry(t, mr, catchAll()), DefaultConfig(), fixedIDs())

	res := r.Resolve(snapshot(session.Study{StudyInstanceUID: "s", Series: []session.Series{
		imageSeries("ct", map[string]any{"Modality": "CT"}),
	}}), Request{ProtocolID: "mr"})
	if res.Layout.Fallback || res.Layout.ProtocolID != "default" {
		t.Fatalf("expected the ranked protocol, got %+v", res.Layout)
	}
}

func TestResolve_GeneratedViewports(t *testing.T) {
	p := catchAllWithID("grid")
	fb := oneViewport("any", 0)
	p.DefaultViewport = &fb
	p.Stages = []protocol.Stage{{ID: "1x2", Rows: 1, Columns: 2}}
	r := New(newRegistry(t, p), DefaultConfig(), fixedIDs())

	res := r.Resolve(snapshot(session.Study{StudyInstanceUID: "s", Series: []session.Series{
		imageSeries("a", nil),
		imageSeries("b", nil),
	}}), Request{})
	if res.Layout.Fallback || res.Layout.ProtocolID != "grid" || res.Layout.StageID != "1x2" {
		t.Fatalf("layout = %+v", res.Layout)
	}
	if diff := cmp.Diff([]string{"a", "b"}, res.Layout.SeriesIDs()); diff != "" {
		t.Fatalf("series (-want +got):\n%s", diff)
	}
	for _, vp := range res.Layout.Viewports {
		if !vp.FromDefault {
			t.Fatalf("viewport %d not filled from the default viewport", vp.Index)
		}
	}
}

func TestResolve_IdleWithoutStudies(t *testing.T) {
	r := New(newRegistry(t, catchAll()), DefaultConfig(), fixedIDs())
	res := r.Resolve(session.Snapshot{}, Request{})
	if res.State != StateIdle || res.Decision() != "idle" {
		t.Fatalf("state = %s", res.State)
	}
	if len(res.Layout.Viewports) != 1 || res.Layout.Viewports[0].SeriesID != "" {
		t.Fatalf("idle layout = %+v", res.Layout)
	}
}

func TestResolve_ForcedProtocol(t *testing.T) {
	rich := catchAllWithID("rich")
	rich.MatchingRules = []rules.Rule{rules.NewRule("numberOfStudies", rules.Equals(1), rules.Weight(9))}
	r := New(newRegistry(t, rich, catchAll()), DefaultConfig(), fixedIDs())
	snap := snapshot(session.Study{StudyInstanceUID: "s", Series: []session.Series{imageSeries("a", nil)}})

	if got := r.Resolve(snap, Request{ProtocolID: "default"}).Layout.ProtocolID; got != "default" {
		t.Fatalf("forced protocol ignored, got %s", got)
	}
	if got := r.Resolve(snap, Request{ProtocolID: "missing"}).Layout.ProtocolID; got != "rich" {
		t.Fatalf("unknown forced protocol should fall back to ranking, got %s", got)
	}
}

func TestResolve_BuiltinsPickPetCT(t *testing.T) {
	reg := protocol.NewRegistry(nil)
	if _, err := protocol.LoadBuiltins(reg); err != nil {
		t.Fatalf("LoadBuiltins: %v", err)
	}
	r := New(reg, DefaultConfig(), fixedIDs())
	res := r.Resolve(snapshot(session.Study{StudyInstanceUID: "s", Series: []session.Series{
		imageSeries("ct", map[string]any{"Modality": "CT", "SeriesDescription": "CT WB", "SeriesNumber": 2}),
		imageSeries("pt", map[string]any{"Modality": "PT", "SeriesDescription": "PET AC", "SeriesNumber": 3}),
	}}), Request{})

	if res.Layout.ProtocolID != "pet-ct" || res.Layout.StageID != "ctpt" {
		t.Fatalf("picked %s/%s", res.Layout.ProtocolID, res.Layout.StageID)
	}
	if ids := res.Layout.SeriesIDs(); ids[0] != "ct" || ids[1] != "pt" {
		t.Fatalf("series = %v", ids)
	}
	if vp := res.Layout.Viewports[0]; vp.ViewportType != "volume" || vp.ToolGroupID != "petct" || len(vp.SyncGroups) != 1 {
		t.Fatalf("viewport options not carried: %+v", vp)
	}

	next, ok := r.Navigate(res, 1)
	if !ok || next.Layout.StageID != "fusion" {
		t.Fatalf("Navigate(+1) = %s, %v", next.Layout.StageID, ok)
	}
	if vp := next.Layout.Viewports[0]; vp.SeriesID != "ct" || len(vp.Overlays) != 1 || vp.Overlays[0].SeriesID != "pt" {
		t.Fatalf("fusion viewport = %+v", vp)
	}
	back, ok := r.Navigate(next, -1)
	if !ok || back.Layout.StageID != "ctpt" {
		t.Fatalf("Navigate(-1) = %s, %v", back.Layout.StageID, ok)
	}
	if _, ok := r.Navigate(back, -1); ok {
		t.Fatal("no stage before the first")
	}
}

func TestResolve_RequestPassiveStage(t *testing.T) {
	reg := protocol.NewRegistry(nil)
	if _, err := protocol.LoadBuiltins(reg); err != nil {
		t.Fatalf("LoadBuiltins: %v", err)
	}
	r := New(reg, DefaultConfig(), fixedIDs())
	res := r.Resolve(snapshot(session.Study{StudyInstanceUID: "s", Series: []session.Series{
		imageSeries("ct", map[string]any{"Modality": "CT"}),
		imageSeries("pt", map[string]any{"Modality": "PT"}),
	}}), Request{StageID: "fusion"})
	if res.Layout.StageID != "fusion" {
		t.Fatalf("requested stage ignored: %s", res.Layout.StageID)
	}
}

func TestResult_Record(t *testing.T) {
	r := New(newRegistry(t, catchAll()), DefaultConfig(), constantID())
	res := r.Resolve(snapshot(session.Study{StudyInstanceUID: "s", Series: []session.Series{imageSeries("a", nil)}}), Request{})

	rec := res.Record(r.Config())
	if rec.PassID != "pass" || rec.ProtocolID != "default" || rec.StageID != "1x1" {
		t.Fatalf("record = %+v", rec)
	}
	if len(rec.Candidates) != 1 || len(rec.Stages) != 1 || rec.Stages[0].Status != "enabled" {
		t.Fatalf("record detail = %+v", rec)
	}
	if rec.SeriesCount != 1 || rec.Thresholds.TieBreak != "registration" {
		t.Fatalf("record counts = %+v", rec)
	}
}

// #endregion states
