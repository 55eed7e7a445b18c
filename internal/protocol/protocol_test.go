package protocol

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/rules"
)

func minimalProtocol(id string) *Protocol {
	return &Protocol{
		ID: id,
		Selectors: map[string]Selector{
			"ct": {SeriesRules: []rules.Rule{rules.NewRule("Modality", rules.Equals("CT"), rules.Required())}},
		},
		Stages: []Stage{{
			ID: "one", Rows: 1, Columns: 1,
			Viewports: []Viewport{{DisplaySets: []DisplaySetRef{{SelectorID: "ct"}}}},
		}},
	}
}

func TestRegister_AppendsInOrder(t *testing.T) {
	reg := NewRegistry(nil)
	for _, id := range []string{"b", "a", "c"} {
		if err := reg.Register(minimalProtocol(id)); err != nil {
			t.Fatalf("Register(%s): %v", id, err)
		}
	}
	ps := reg.Protocols()
	if len(ps) != 3 || ps[0].ID != "b" || ps[1].ID != "a" || ps[2].ID != "c" {
		t.Fatalf("unexpected order: %v", ids(ps))
	}
	if _, ok := reg.Get("a"); !ok {
		t.Fatal("Get(a) failed")
	}
}

func TestRegister_RejectsDuplicate(t *testing.T) {
	reg := NewRegistry(nil)
	if err := reg.Register(minimalProtocol("x")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := reg.Register(minimalProtocol("x"))
	if !errors.Is(err, ErrDuplicateProtocol) {
		t.Fatalf("expected ErrDuplicateProtocol, got %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("registry changed on rejection: %d", reg.Len())
	}
}

func TestValidate_Problems(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Protocol)
		want   error
	}{
		{"unknown selector", func(p *Protocol) {
			p.Stages[0].Viewports[0].DisplaySets[0].SelectorID = "mr"
		}, ErrUnknownSelector},
		{"negative index", func(p *Protocol) {
			p.Stages[0].Viewports[0].DisplaySets[0].MatchIndex = -1
		}, ErrNegativeMatchIndex},
		{"too many viewports", func(p *Protocol) {
			p.Stages[0].Viewports = append(p.Stages[0].Viewports, p.Stages[0].Viewports[0])
		}, ErrTooManyViewports},
		{"no stages", func(p *Protocol) { p.Stages = nil }, ErrNoStages},
		{"bad grid", func(p *Protocol) { p.Stages[0].Rows = 0 }, ErrInvalidGrid},
		{"missing id", func(p *Protocol) { p.ID = "" }, ErrMissingID},
		{"bad priors", func(p *Protocol) { p.NumberOfPriorsReferenced = -2 }, ErrInvalidPriors},
		{"activation selector", func(p *Protocol) {
			p.Stages[0].Enabled = &Activation{MinViewportsMatched: 1, DisplaySetSelectorsMatched: []string{"nope"}}
		}, ErrUnknownSelector},
		{"invalid rule", func(p *Protocol) {
			p.MatchingRules = []rules.Rule{rules.NewRule("x", rules.Equals(1), rules.Weight(-3))}
		}, ErrInvalidRule},
		{"duplicate stage", func(p *Protocol) {
			p.Stages = append(p.Stages, p.Stages[0])
		}, ErrDuplicateStage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := minimalProtocol("p")
			tt.mutate(p)
			reg := NewRegistry(nil)
			err := reg.Register(p)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var re *RegistrationError
			if !errors.As(err, &re) {
				t.Fatalf("expected *RegistrationError, got %T", err)
			}
			if reg.Len() != 0 {
				t.Fatal("rejected protocol was registered")
			}
		})
	}
}

func TestNormalize_AutoViewportsAndDefaults(t *testing.T) {
	p := minimalProtocol("auto")
	p.DefaultViewport = &Viewport{
		Options:     ViewportOptions{ToolGroupID: "mpr", ViewportType: "volume"},
		DisplaySets: []DisplaySetRef{{SelectorID: "ct"}},
	}
	p.Stages[0] = Stage{Name: "grid", Rows: 2, Columns: 2}

	Normalize(p)

	st := p.Stages[0]
	if st.ID != "grid" {
		t.Fatalf("stage id should default to name, got %q", st.ID)
	}
	if len(st.Viewports) != 4 {
		t.Fatalf("expected 4 generated viewports, got %d", len(st.Viewports))
	}
	for i, vp := range st.Viewports {
		if vp.Options.ToolGroupID != "mpr" || vp.Options.ViewportType != "volume" {
			t.Errorf("viewport %d did not inherit options: %+v", i, vp.Options)
		}
		if len(vp.DisplaySets) != 0 {
			t.Errorf("generated viewport %d should have no display sets", i)
		}
	}
	if st.Viewports[3].Options.ViewportID != "viewport-3" {
		t.Errorf("viewport id = %q", st.Viewports[3].Options.ViewportID)
	}
	if st.EnabledActivation().MinViewportsMatched != 1 {
		t.Error("enabled activation should default to 1")
	}
}

func TestFallbackViewport_StageOverridesProtocol(t *testing.T) {
	p := minimalProtocol("fb")
	p.DefaultViewport = &Viewport{Options: ViewportOptions{ToolGroupID: "protocol"}}
	stageDefault := &Viewport{Options: ViewportOptions{ToolGroupID: "stage"}}
	p.Stages[0].DefaultViewport = stageDefault

	if got := p.FallbackViewport(0); got != stageDefault {
		t.Fatalf("expected stage default viewport, got %+v", got)
	}
	if got := p.FallbackViewport(5); got != p.DefaultViewport {
		t.Fatalf("out of range stage should use protocol default")
	}
}

const yamlLibrary = `
id: ct-axial
protocolMatchingRules:
  - attribute: ModalitiesInStudy
    constraint:
      contains: {value: CT}
    weight: 3
displaySetSelectors:
  axial:
    seriesMatchingRules:
      - attribute: SeriesDescription
        constraint:
          contains: AXIAL
stages:
  - name: main
    stageActivation:
      passive: {}
    viewportStructure:
      properties: {rows: 1, columns: 2}
    viewports:
      - displaySets: [{id: axial}]
      - displaySets: [{id: axial, matchedDisplaySetsIndex: 1}]
---
id: broken
displaySetSelectors: {}
stages:
  - viewportStructure:
      properties: {rows: 1, columns: 1}
    viewports:
      - displaySets: [{id: ghost}]
`

func TestLoadFile_KeepsValidProtocols(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "library.yaml")
	if err := os.WriteFile(path, []byte(yamlLibrary), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	reg := NewRegistry(nil)
	n, err := LoadFile(reg, path)
	if n != 1 {
		t.Fatalf("expected 1 protocol loaded, got %d", n)
	}
	if !errors.Is(err, ErrUnknownSelector) {
		t.Fatalf("expected ErrUnknownSelector for the broken protocol, got %v", err)
	}

	p, ok := reg.Get("ct-axial")
	if !ok {
		t.Fatal("ct-axial not registered")
	}
	if p.MatchingRules[0].Weight != 3 || p.MatchingRules[0].Constraint.Value != "CT" {
		t.Fatalf("rule decoded wrong: %+v", p.MatchingRules[0])
	}
	st := p.Stages[0]
	if st.ID != "main" || st.Passive == nil || st.Passive.MinViewportsMatched != 0 {
		t.Fatalf("stage decoded wrong: %+v", st)
	}
	if st.Viewports[1].DisplaySets[0].MatchIndex != 1 {
		t.Fatalf("match index decoded wrong")
	}
}

func TestLoadDir_JSON(t *testing.T) {
	dir := t.TempDir()
	js := `{"id":"mg","displaySetSelectors":{"mg":{"seriesMatchingRules":[{"attribute":"Modality","constraint":{"equals":{"value":"MG"}},"required":true}]}},
	"stages":[{"viewportStructure":{"properties":{"rows":1,"columns":1}},"viewports":[{"displaySets":[{"id":"mg"}]}]}]}`
	if err := os.WriteFile(filepath.Join(dir, "mg.json"), []byte(js), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	reg := NewRegistry(nil)
	n, err := LoadDir(reg, dir)
	if err != nil || n != 1 {
		t.Fatalf("LoadDir = %d, %v", n, err)
	}
	p, _ := reg.Get("mg")
	if p.Stages[0].ID != "stage-0" {
		t.Fatalf("stage id = %q", p.Stages[0].ID)
	}
}

func TestLoadBuiltins(t *testing.T) {
	reg := NewRegistry(nil)
	n, err := LoadBuiltins(reg)
	if err != nil {
		t.Fatalf("LoadBuiltins: %v", err)
	}
	if n != reg.Len() || n < 2 {
		t.Fatalf("loaded %d, registry has %d", n, reg.Len())
	}
	ps := reg.Protocols()
	if ps[len(ps)-1].ID != "default" {
		t.Fatalf("catch-all must be registered last, got %v", ids(ps))
	}
	if len(ps[len(ps)-1].MatchingRules) != 0 {
		t.Fatal("catch-all protocol must not have matching rules")
	}
}

func ids(ps []*Protocol) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}
