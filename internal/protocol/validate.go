package protocol

import (
	"fmt"
	"sort"
)

const (
	defaultViewportType = "stack"
	defaultToolGroupID  = "default"
)

// #region normalize

// Normalize fills in defaults in place: names and ids, viewport ids and
// options inherited from the default viewport, and auto-generated viewports
// for stages that declare none. Calling it twice is harmless.
func Normalize(p *Protocol) {
	if p.Name == "" {
		p.Name = p.ID
	}
	if p.Selectors == nil {
		p.Selectors = map[string]Selector{}
	}
	for id, sel := range p.Selectors {
		if sel.ID == "" {
			sel.ID = id
			p.Selectors[id] = sel
		}
	}

	for i := range p.Stages {
		st := &p.Stages[i]
		if st.ID == "" {
			st.ID = st.Name
		}
		if st.ID == "" {
			st.ID = fmt.Sprintf("stage-%d", i)
		}
		if st.Name == "" {
			st.Name = st.ID
		}

		fallback := p.FallbackViewport(i)
		if len(st.Viewports) == 0 && st.Cells() > 0 {
			for n := 0; n < st.Cells(); n++ {
				vp := Viewport{}
				if fallback != nil {
					vp.Options = fallback.Options
					vp.Options.ViewportID = ""
				}
				st.Viewports = append(st.Viewports, vp)
			}
		}
		for n := range st.Viewports {
			inheritOptions(&st.Viewports[n].Options, fallback)
			if st.Viewports[n].Options.ViewportID == "" {
				st.Viewports[n].Options.ViewportID = fmt.Sprintf("viewport-%d", n)
			}
		}
	}
}

func inheritOptions(o *ViewportOptions, from *Viewport) {
	if from != nil {
		if o.ToolGroupID == "" {
			o.ToolGroupID = from.Options.ToolGroupID
		}
		if o.ViewportType == "" {
			o.ViewportType = from.Options.ViewportType
		}
	}
	if o.ToolGroupID == "" {
		o.ToolGroupID = defaultToolGroupID
	}
	if o.ViewportType == "" {
		o.ViewportType = defaultViewportType
	}
}

// #endregion normalize

// #region validate

// Validate reports every structural problem in p as a *RegistrationError,
// or nil when p can be registered.
func Validate(p *Protocol) error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if p.ID == "" {
		add("%w", ErrMissingID)
	}
	if p.NumberOfPriorsReferenced < -1 {
		add("%w: %d", ErrInvalidPriors, p.NumberOfPriorsReferenced)
	}
	if len(p.Stages) == 0 {
		add("%w", ErrNoStages)
	}

	for i, r := range p.MatchingRules {
		if err := r.Validate(); err != nil {
			add("protocol rule %d: %w: %w", i, ErrInvalidRule, err)
		}
	}

	selectorIDs := make([]string, 0, len(p.Selectors))
	for id := range p.Selectors {
		selectorIDs = append(selectorIDs, id)
	}
	sort.Strings(selectorIDs)
	for _, id := range selectorIDs {
		sel := p.Selectors[id]
		for i, r := range sel.StudyRules {
			if err := r.Validate(); err != nil {
				add("selector %s study rule %d: %w: %w", id, i, ErrInvalidRule, err)
			}
		}
		for i, r := range sel.SeriesRules {
			if err := r.Validate(); err != nil {
				add("selector %s series rule %d: %w: %w", id, i, ErrInvalidRule, err)
			}
		}
	}

	checkRefs := func(where string, refs []DisplaySetRef) {
		for _, ref := range refs {
			if _, ok := p.Selectors[ref.SelectorID]; !ok {
				add("%s: %w: %q", where, ErrUnknownSelector, ref.SelectorID)
			}
			if ref.MatchIndex < 0 {
				add("%s: %w: %d", where, ErrNegativeMatchIndex, ref.MatchIndex)
			}
		}
	}
	checkActivation := func(where string, a *Activation) {
		if a == nil {
			return
		}
		for _, id := range a.DisplaySetSelectorsMatched {
			if _, ok := p.Selectors[id]; !ok {
				add("%s: %w: %q", where, ErrUnknownSelector, id)
			}
		}
	}

	if p.DefaultViewport != nil {
		checkRefs("defaultViewport", p.DefaultViewport.DisplaySets)
	}

	seen := make(map[string]bool, len(p.Stages))
	for i := range p.Stages {
		st := &p.Stages[i]
		where := fmt.Sprintf("stage %q", st.ID)
		if seen[st.ID] {
			add("%s: %w", where, ErrDuplicateStage)
		}
		seen[st.ID] = true

		if st.Rows < 1 || st.Columns < 1 {
			add("%s: %w: %dx%d", where, ErrInvalidGrid, st.Rows, st.Columns)
		} else if len(st.Viewports) > st.Cells() {
			add("%s: %w: %d viewports for %d cells", where, ErrTooManyViewports, len(st.Viewports), st.Cells())
		}
		checkActivation(where+" enabled", st.Enabled)
		checkActivation(where+" passive", st.Passive)
		if st.DefaultViewport != nil {
			checkRefs(where+" defaultViewport", st.DefaultViewport.DisplaySets)
		}
		for n, vp := range st.Viewports {
			checkRefs(fmt.Sprintf("%s viewport %d", where, n), vp.DisplaySets)
		}
	}

	if len(problems) > 0 {
		return &RegistrationError{ProtocolID: p.ID, Problems: problems}
	}
	return nil
}

// #endregion validate
