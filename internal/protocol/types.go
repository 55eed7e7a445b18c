package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/rules"
)

// #region errors
var (
	ErrMissingID          = errors.New("protocol id is empty")
	ErrNoStages           = errors.New("protocol has no stages")
	ErrDuplicateProtocol  = errors.New("protocol id already registered")
	ErrDuplicateStage     = errors.New("duplicate stage id")
	ErrUnknownSelector    = errors.New("viewport references an unknown display set selector")
	ErrNegativeMatchIndex = errors.New("matchedDisplaySetsIndex must not be negative")
	ErrTooManyViewports   = errors.New("stage declares more viewports than grid cells")
	ErrInvalidGrid        = errors.New("stage grid needs at least one row and one column")
	ErrInvalidPriors      = errors.New("numberOfPriorsReferenced must be -1 or greater")
	ErrInvalidRule        = errors.New("invalid matching rule")
)

// RegistrationError lists every problem found in one protocol.
type RegistrationError struct {
	ProtocolID string
	Problems   []error
}

func (e *RegistrationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return fmt.Sprintf("protocol %q rejected: %s", e.ProtocolID, strings.Join(msgs, "; "))
}

// Unwrap exposes the individual problems to errors.Is and errors.As.
func (e *RegistrationError) Unwrap() []error {
	return e.Problems
}

// #endregion errors

// #region model

// SyncGroup links viewports that share camera, VOI or similar state.
type SyncGroup struct {
	Type   string `yaml:"type" json:"type"`
	ID     string `yaml:"id" json:"id"`
	Source bool   `yaml:"source,omitempty" json:"source,omitempty"`
	Target bool   `yaml:"target,omitempty" json:"target,omitempty"`
}

// ViewportOptions are passed through to the rendered viewport.
type ViewportOptions struct {
	ViewportID         string      `yaml:"viewportId,omitempty" json:"viewportId,omitempty"`
	ViewportType       string      `yaml:"viewportType,omitempty" json:"viewportType,omitempty"`
	ToolGroupID        string      `yaml:"toolGroupId,omitempty" json:"toolGroupId,omitempty"`
	AllowUnmatchedView bool        `yaml:"allowUnmatchedView,omitempty" json:"allowUnmatchedView,omitempty"`
	SyncGroups         []SyncGroup `yaml:"syncGroups,omitempty" json:"syncGroups,omitempty"`
}

// DisplaySetRef picks the MatchIndex-th ranked match of a selector.
type DisplaySetRef struct {
	SelectorID string
	MatchIndex int
}

// Viewport is one grid slot. The first display set is the primary one;
// further entries are overlays such as a PET fused onto a CT.
type Viewport struct {
	Options     ViewportOptions
	DisplaySets []DisplaySetRef
}

// Selector describes which series qualify for a viewport.
type Selector struct {
	ID                 string
	AllowUnmatchedView bool
	StudyRules         []rules.Rule
	SeriesRules        []rules.Rule
}

// Activation is the threshold for a stage status.
type Activation struct {
	MinViewportsMatched        int
	DisplaySetSelectorsMatched []string
}

// Stage is one layout of a protocol.
type Stage struct {
	ID      string
	Name    string
	Rows    int
	Columns int
	// Enabled defaults to one matched viewport when nil.
	Enabled *Activation
	// Passive stages are never picked automatically but can be requested.
	Passive         *Activation
	DefaultViewport *Viewport
	Viewports       []Viewport
}

// EnabledActivation returns the enabled threshold with defaults applied.
func (s *Stage) EnabledActivation() Activation {
	if s.Enabled == nil {
		return Activation{MinViewportsMatched: 1}
	}
	return *s.Enabled
}

// Cells returns the grid size.
func (s *Stage) Cells() int {
	return s.Rows * s.Columns
}

// Protocol is a registered hanging protocol. Treat it as read-only once
// registered; passes share it without copying.
type Protocol struct {
	ID          string
	Name        string
	Description string
	// NumberOfPriorsReferenced: -1 restricts matching to the active study,
	// 0 accepts any session, N>0 disqualifies sessions with fewer priors.
	NumberOfPriorsReferenced int
	MinSeriesLoaded          int
	MatchingRules            []rules.Rule
	Selectors                map[string]Selector
	DefaultViewport          *Viewport
	Stages                   []Stage
}

// FallbackViewport returns the stage's default viewport, falling back to the
// protocol-level one.
func (p *Protocol) FallbackViewport(stageIndex int) *Viewport {
	if stageIndex >= 0 && stageIndex < len(p.Stages) && p.Stages[stageIndex].DefaultViewport != nil {
		return p.Stages[stageIndex].DefaultViewport
	}
	return p.DefaultViewport
}

// StageIndex finds a stage by id.
func (p *Protocol) StageIndex(id string) (int, bool) {
	for i := range p.Stages {
		if p.Stages[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

// #endregion model
