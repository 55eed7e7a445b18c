package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/attr"
)

// ErrDuplicateAttribute is returned when a custom attribute name is taken.
var ErrDuplicateAttribute = errors.New("custom attribute already registered")

// #region custom-attributes

// Level is the bag a custom attribute is computed into.
type Level int

const (
	LevelStudy Level = iota
	LevelSeries
)

func (l Level) String() string {
	if l == LevelSeries {
		return "series"
	}
	return "study"
}

// Scope is what a custom attribute callback may look at.
type Scope struct {
	Snapshot   *Snapshot
	StudyIndex int
	Study      *Study
	Series     *Series // nil for study-level attributes
}

// CustomAttribute derives a value that is not stored on the study or series
// itself. It is only consulted when the bag lacks Name.
type CustomAttribute struct {
	Name    string
	Level   Level
	Compute func(Scope) any
}

// Attributes is the registry of custom attributes applied by Freeze.
type Attributes struct {
	mu    sync.RWMutex
	items []CustomAttribute
	names map[string]bool
}

// NewAttributes returns a registry preloaded with the built-in attributes.
func NewAttributes() *Attributes {
	a := &Attributes{names: make(map[string]bool)}
	for _, ca := range builtinAttributes() {
		_ = a.Register(ca)
	}
	return a
}

// Register adds a custom attribute. Names are unique per level.
func (a *Attributes) Register(ca CustomAttribute) error {
	if ca.Name == "" || ca.Compute == nil {
		return fmt.Errorf("custom attribute needs a name and a compute function")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	key := ca.Level.String() + "/" + ca.Name
	if a.names[key] {
		return fmt.Errorf("%w: %s", ErrDuplicateAttribute, key)
	}
	a.names[key] = true
	a.items = append(a.items, ca)
	return nil
}

func (a *Attributes) forLevel(level Level) []CustomAttribute {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []CustomAttribute
	for _, ca := range a.items {
		if ca.Level == level {
			out = append(out, ca)
		}
	}
	return out
}

// apply fills in every custom attribute the bag does not already carry.
func (a *Attributes) apply(level Level, bag attr.Bag, scope Scope) attr.Bag {
	for _, ca := range a.forLevel(level) {
		if bag.Has(ca.Name) {
			continue
		}
		if v := ca.Compute(scope); v != nil {
			bag = bag.With(ca.Name, v)
		}
	}
	return bag
}

// #endregion custom-attributes

// #region builtins

func builtinAttributes() []CustomAttribute {
	return []CustomAttribute{
		{Name: "StudyInstanceUID", Level: LevelStudy, Compute: func(s Scope) any {
			if s.Study.StudyInstanceUID == "" {
				return nil
			}
			return s.Study.StudyInstanceUID
		}},
		{Name: "ModalitiesInStudy", Level: LevelStudy, Compute: func(s Scope) any {
			seen := make(map[string]bool)
			var out []string
			for _, se := range s.Study.Series {
				m := attr.Text(se.Attributes["Modality"])
				if m == "" || seen[m] {
					continue
				}
				seen[m] = true
				out = append(out, m)
			}
			return out
		}},
		{Name: "seriesDescriptions", Level: LevelStudy, Compute: func(s Scope) any {
			out := make([]string, 0, len(s.Study.Series))
			for _, se := range s.Study.Series {
				if d := attr.Text(se.Attributes["SeriesDescription"]); d != "" {
					out = append(out, d)
				}
			}
			return out
		}},
		{Name: "numberOfDisplaySets", Level: LevelStudy, Compute: func(s Scope) any {
			return len(s.Study.Series)
		}},
		{Name: "numberOfDisplaySetsWithImages", Level: LevelStudy, Compute: func(s Scope) any {
			return countWithImages(s.Study.Series)
		}},
		{Name: "StudyInstanceUID", Level: LevelSeries, Compute: func(s Scope) any {
			if s.Study.StudyInstanceUID == "" {
				return nil
			}
			return s.Study.StudyInstanceUID
		}},
		{Name: "isDisplaySetFromUrl", Level: LevelSeries, Compute: func(Scope) any {
			return false
		}},
		{Name: "numImageFrames", Level: LevelSeries, Compute: func(s Scope) any {
			if n, ok := attr.Number(s.Series.Attributes["NumberOfFrames"]); ok {
				return n
			}
			return nil
		}},
	}
}

// HasImages reports whether a series carries at least one image frame,
// judged by numImageFrames or NumberOfFrames.
func HasImages(attributes map[string]any) bool {
	for _, key := range []string{"numImageFrames", "NumberOfFrames"} {
		if n, ok := attr.Number(attributes[key]); ok {
			return n > 0
		}
	}
	return false
}

func countWithImages(series []Series) int {
	n := 0
	for _, se := range series {
		if HasImages(se.Attributes) {
			n++
		}
	}
	return n
}

// #endregion builtins
