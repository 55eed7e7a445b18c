package session

import (
	"fmt"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/attr"
)

var defaultAttributes = NewAttributes()

// #region view

// StudyContext is a frozen study with its per-study session options.
type StudyContext struct {
	Index   int
	UID     string
	Bag     attr.Bag
	Options attr.Bag
}

// Candidate is a frozen series that selectors can match.
type Candidate struct {
	SeriesID        string
	StudyIndex      int
	Order           int
	SeriesNumber    float64
	HasSeriesNumber bool
	HasImages       bool
	Bag             attr.Bag
}

// View is the immutable form of a Snapshot that one resolution pass works
// on. Building it once per pass gives every component the same facts.
type View struct {
	Studies    []StudyContext
	Candidates []Candidate
	// Session holds the active study's attributes overlaid with
	// session-wide counts. Protocol matching rules evaluate against it.
	Session attr.Bag
	Options attr.Bag
}

// Empty reports whether the view has no studies.
func (v View) Empty() bool {
	return len(v.Studies) == 0
}

// Priors returns the number of loaded studies besides the active one.
func (v View) Priors() int {
	if len(v.Studies) == 0 {
		return 0
	}
	return len(v.Studies) - 1
}

// MostRecent returns the last discovered series with images, or the last
// series of all when none has images.
func (v View) MostRecent() (Candidate, bool) {
	for i := len(v.Candidates) - 1; i >= 0; i-- {
		if v.Candidates[i].HasImages {
			return v.Candidates[i], true
		}
	}
	if len(v.Candidates) == 0 {
		return Candidate{}, false
	}
	return v.Candidates[len(v.Candidates)-1], true
}

// Freeze builds the view for one pass. attrs may be nil to use the
// built-in custom attributes only.
func Freeze(s Snapshot, attrs *Attributes) View {
	if attrs == nil {
		attrs = defaultAttributes
	}

	view := View{Options: attr.New(s.Options)}
	if s.Empty() {
		view.Session = attr.Empty()
		return view
	}

	activeUID := s.Studies[0].StudyInstanceUID
	numberOfStudies := len(s.Studies)
	totalSeries, totalWithImages := 0, 0

	order := 0
	for i := range s.Studies {
		study := &s.Studies[i]
		scope := Scope{Snapshot: &s, StudyIndex: i, Study: study}

		options := view.Options.Merge(attr.New(map[string]any{
			"studyInstanceUIDsIndex": i,
			"activeStudyUID":         activeUID,
			"numberOfStudies":        numberOfStudies,
			"numberOfPriors":         numberOfStudies - 1,
			"isActiveStudy":          i == 0,
		}))
		view.Studies = append(view.Studies, StudyContext{
			Index:   i,
			UID:     study.StudyInstanceUID,
			Bag:     attrs.apply(LevelStudy, attr.New(study.Attributes), scope),
			Options: options,
		})

		for j := range study.Series {
			series := &study.Series[j]
			scope.Series = series

			id := series.ID
			if id == "" {
				id = fmt.Sprintf("%d.%d", i, j)
			}
			bag := attrs.apply(LevelSeries, attr.New(series.Attributes), scope)
			c := Candidate{
				SeriesID:   id,
				StudyIndex: i,
				Order:      order,
				HasImages:  HasImages(series.Attributes),
				Bag:        bag,
			}
			if v, ok := bag.Get("SeriesNumber"); ok {
				c.SeriesNumber, c.HasSeriesNumber = attr.Number(v)
			}
			view.Candidates = append(view.Candidates, c)

			order++
			totalSeries++
			if c.HasImages {
				totalWithImages++
			}
		}
	}

	view.Session = view.Studies[0].Bag.Merge(attr.New(map[string]any{
		"numberOfStudies":               numberOfStudies,
		"numberOfPriors":                numberOfStudies - 1,
		"numberOfDisplaySets":           totalSeries,
		"numberOfDisplaySetsWithImages": totalWithImages,
	}))
	return view
}

// #endregion view
