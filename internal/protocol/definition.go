package protocol

import (
	"fmt"
	"sort"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/rules"
)

// #region definition-types
// Definition mirrors the protocol file format. Unknown keys are ignored so
// protocol files exported from other viewers still load.
type Definition struct {
	ID                       string                        `yaml:"id" json:"id"`
	Name                     string                        `yaml:"name,omitempty" json:"name,omitempty"`
	Description              string                        `yaml:"description,omitempty" json:"description,omitempty"`
	NumberOfPriorsReferenced *int                          `yaml:"numberOfPriorsReferenced,omitempty" json:"numberOfPriorsReferenced,omitempty"`
	InitiationCriteria       *InitiationCriteria           `yaml:"hpInitiationCriteria,omitempty" json:"hpInitiationCriteria,omitempty"`
	ProtocolMatchingRules    []rules.Definition            `yaml:"protocolMatchingRules,omitempty" json:"protocolMatchingRules,omitempty"`
	DisplaySetSelectors      map[string]SelectorDefinition `yaml:"displaySetSelectors" json:"displaySetSelectors"`
	DefaultViewport          *ViewportDefinition           `yaml:"defaultViewport,omitempty" json:"defaultViewport,omitempty"`
	Stages                   []StageDefinition             `yaml:"stages" json:"stages"`
}

type InitiationCriteria struct {
	MinSeriesLoaded int `yaml:"minSeriesLoaded" json:"minSeriesLoaded"`
}

type SelectorDefinition struct {
	AllowUnmatchedView  bool               `yaml:"allowUnmatchedView,omitempty" json:"allowUnmatchedView,omitempty"`
	StudyMatchingRules  []rules.Definition `yaml:"studyMatchingRules,omitempty" json:"studyMatchingRules,omitempty"`
	SeriesMatchingRules []rules.Definition `yaml:"seriesMatchingRules,omitempty" json:"seriesMatchingRules,omitempty"`
}

type DisplaySetDefinition struct {
	ID                      string `yaml:"id" json:"id"`
	MatchedDisplaySetsIndex int    `yaml:"matchedDisplaySetsIndex,omitempty" json:"matchedDisplaySetsIndex,omitempty"`
}

type ViewportDefinition struct {
	ViewportOptions ViewportOptions        `yaml:"viewportOptions" json:"viewportOptions"`
	DisplaySets     []DisplaySetDefinition `yaml:"displaySets" json:"displaySets"`
}

type ActivationDefinition struct {
	MinViewportsMatched        *int     `yaml:"minViewportsMatched,omitempty" json:"minViewportsMatched,omitempty"`
	DisplaySetSelectorsMatched []string `yaml:"displaySetSelectorsMatched,omitempty" json:"displaySetSelectorsMatched,omitempty"`
}

type StageActivationDefinition struct {
	Enabled *ActivationDefinition `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Passive *ActivationDefinition `yaml:"passive,omitempty" json:"passive,omitempty"`
}

type ViewportStructure struct {
	LayoutType string `yaml:"layoutType,omitempty" json:"layoutType,omitempty"`
	Properties struct {
		Rows    int `yaml:"rows" json:"rows"`
		Columns int `yaml:"columns" json:"columns"`
	} `yaml:"properties" json:"properties"`
}

type StageDefinition struct {
	ID                string                    `yaml:"id,omitempty" json:"id,omitempty"`
	Name              string                    `yaml:"name,omitempty" json:"name,omitempty"`
	StageActivation   StageActivationDefinition `yaml:"stageActivation,omitempty" json:"stageActivation,omitempty"`
	ViewportStructure ViewportStructure         `yaml:"viewportStructure" json:"viewportStructure"`
	DefaultViewport   *ViewportDefinition       `yaml:"defaultViewport,omitempty" json:"defaultViewport,omitempty"`
	Viewports         []ViewportDefinition      `yaml:"viewports,omitempty" json:"viewports,omitempty"`
}

// #endregion definition-types

// #region build

// Build converts a definition into a normalized, validated Protocol. Every
// problem found is reported in one *RegistrationError.
func (d Definition) Build() (*Protocol, error) {
	var problems []error

	p := &Protocol{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Selectors:   make(map[string]Selector, len(d.DisplaySetSelectors)),
	}
	if d.NumberOfPriorsReferenced != nil {
		p.NumberOfPriorsReferenced = *d.NumberOfPriorsReferenced
	}
	if d.InitiationCriteria != nil {
		p.MinSeriesLoaded = d.InitiationCriteria.MinSeriesLoaded
	}

	buildRules := func(where string, defs []rules.Definition) []rules.Rule {
		out := make([]rules.Rule, 0, len(defs))
		for i, rd := range defs {
			r, err := rd.Build()
			if err != nil {
				problems = append(problems, fmt.Errorf("%s rule %d: %w: %w", where, i, ErrInvalidRule, err))
				continue
			}
			out = append(out, r)
		}
		return out
	}

	p.MatchingRules = buildRules("protocolMatchingRules", d.ProtocolMatchingRules)
	ids := make([]string, 0, len(d.DisplaySetSelectors))
	for id := range d.DisplaySetSelectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		sd := d.DisplaySetSelectors[id]
		p.Selectors[id] = Selector{
			ID:                 id,
			AllowUnmatchedView: sd.AllowUnmatchedView,
			StudyRules:         buildRules("selector "+id+" study", sd.StudyMatchingRules),
			SeriesRules:        buildRules("selector "+id+" series", sd.SeriesMatchingRules),
		}
	}
	p.DefaultViewport = d.DefaultViewport.build()

	for _, sd := range d.Stages {
		st := Stage{
			ID:              sd.ID,
			Name:            sd.Name,
			Rows:            sd.ViewportStructure.Properties.Rows,
			Columns:         sd.ViewportStructure.Properties.Columns,
			Enabled:         sd.StageActivation.Enabled.build(1),
			Passive:         sd.StageActivation.Passive.build(0),
			DefaultViewport: sd.DefaultViewport.build(),
		}
		for _, vd := range sd.Viewports {
			st.Viewports = append(st.Viewports, *vd.build())
		}
		p.Stages = append(p.Stages, st)
	}

	Normalize(p)
	if err := Validate(p); err != nil {
		if re, ok := err.(*RegistrationError); ok {
			problems = append(problems, re.Problems...)
		} else {
			problems = append(problems, err)
		}
	}
	if len(problems) > 0 {
		return nil, &RegistrationError{ProtocolID: d.ID, Problems: problems}
	}
	return p, nil
}

func (vd *ViewportDefinition) build() *Viewport {
	if vd == nil {
		return nil
	}
	vp := &Viewport{Options: vd.ViewportOptions}
	vp.Options.SyncGroups = append([]SyncGroup(nil), vd.ViewportOptions.SyncGroups...)
	for _, ds := range vd.DisplaySets {
		vp.DisplaySets = append(vp.DisplaySets, DisplaySetRef{
			SelectorID: ds.ID,
			MatchIndex: ds.MatchedDisplaySetsIndex,
		})
	}
	return vp
}

func (ad *ActivationDefinition) build(defaultMin int) *Activation {
	if ad == nil {
		return nil
	}
	a := &Activation{
		MinViewportsMatched:        defaultMin,
		DisplaySetSelectorsMatched: append([]string(nil), ad.DisplaySetSelectorsMatched...),
	}
	if ad.MinViewportsMatched != nil {
		a.MinViewportsMatched = *ad.MinViewportsMatched
	}
	return a
}

// #endregion build
