package dicomsrc

import (
	"sort"
	"strings"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/attr"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/session"
)

// #region group
// Group builds a session snapshot from instance headers. Studies are
// ordered newest StudyDate first so index 0 is the current study, ties by
// StudyInstanceUID. Series are ordered by SeriesNumber, then UID. Each
// series takes its attributes from its first instance (by path) and gets
// numImageFrames summed over its instances.
func Group(headers []Header) session.Snapshot {
	sorted := make([]Header, len(headers))
	copy(sorted, headers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	type seriesAcc struct {
		uid       string
		attrs     map[string]any
		frames    int
		instances int
	}
	type studyAcc struct {
		uid    string
		date   string
		attrs  map[string]any
		series map[string]*seriesAcc
	}

	studies := make(map[string]*studyAcc)
	for _, h := range sorted {
		st, ok := studies[h.StudyInstanceUID]
		if !ok {
			st = &studyAcc{uid: h.StudyInstanceUID, date: h.StudyDate, attrs: h.Study, series: make(map[string]*seriesAcc)}
			studies[h.StudyInstanceUID] = st
		}
		se, ok := st.series[h.SeriesInstanceUID]
		if !ok {
			se = &seriesAcc{uid: h.SeriesInstanceUID, attrs: h.Series}
			st.series[h.SeriesInstanceUID] = se
		}
		se.frames += h.Frames
		se.instances++
	}

	ordered := make([]*studyAcc, 0, len(studies))
	for _, st := range studies {
		ordered = append(ordered, st)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].date != ordered[j].date {
			return ordered[i].date > ordered[j].date
		}
		return ordered[i].uid < ordered[j].uid
	})

	snap := session.Snapshot{Studies: make([]session.Study, 0, len(ordered))}
	for _, st := range ordered {
		series := make([]*seriesAcc, 0, len(st.series))
		for _, se := range st.series {
			series = append(series, se)
		}
		sort.Slice(series, func(i, j int) bool {
			ni, iok := attr.Number(series[i].attrs["SeriesNumber"])
			nj, jok := attr.Number(series[j].attrs["SeriesNumber"])
			if iok != jok {
				return iok
			}
			if iok && ni != nj {
				return ni < nj
			}
			return series[i].uid < series[j].uid
		})

		study := session.Study{StudyInstanceUID: st.uid, Attributes: copyMap(st.attrs)}
		for _, se := range series {
			a := copyMap(se.attrs)
			a["numImageFrames"] = se.frames
			a["NumberOfSeriesRelatedInstances"] = se.instances
			if n, ok := attr.Number(a["SeriesNumber"]); ok {
				a["SeriesNumber"] = n
			}
			study.Series = append(study.Series, session.Series{ID: se.uid, Attributes: a})
		}
		snap.Studies = append(snap.Studies, study)
	}
	return snap
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func frames(v any) (int, bool) {
	n, ok := attr.Number(v)
	if !ok || n < 1 || n != float64(int(n)) {
		return 0, false
	}
	return int(n), true
}

// isHidden reports whether a path element is a dotfile.
func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// #endregion group
