package dicomsrc

import (
	"errors"

	"github.com/gradienthealth/dicom"
	"github.com/gradienthealth/dicom/dicomtag"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/attr"
)

// ErrMissingUID is returned for instances without a study or series UID.
var ErrMissingUID = errors.New("dicomsrc: instance has no study or series instance UID")

// #region header
// Header is the metadata of one DICOM instance that matching rules can see.
type Header struct {
	Path              string
	StudyInstanceUID  string
	SeriesInstanceUID string
	StudyDate         string
	Study             map[string]any
	Series            map[string]any
	// Frames is NumberOfFrames, or 1 for single-frame instances.
	Frames int
}

type field struct {
	name string
	tag  dicomtag.Tag
	// numeric fields hold IS or DS strings and are stored as numbers.
	numeric bool
}

var studyFields = []field{
	{"StudyInstanceUID", dicomtag.StudyInstanceUID, false},
	{"StudyDate", dicomtag.StudyDate, false},
	{"StudyDescription", dicomtag.StudyDescription, false},
	{"AccessionNumber", dicomtag.AccessionNumber, false},
	{"PatientID", dicomtag.PatientID, false},
	{"PatientName", dicomtag.PatientName, false},
}

var seriesFields = []field{
	{"SeriesInstanceUID", dicomtag.SeriesInstanceUID, false},
	{"Modality", dicomtag.Modality, false},
	{"SeriesDescription", dicomtag.SeriesDescription, false},
	{"SeriesNumber", dicomtag.SeriesNumber, true},
	{"SeriesDate", dicomtag.SeriesDate, false},
	{"BodyPartExamined", dicomtag.BodyPartExamined, false},
	{"ProtocolName", dicomtag.ProtocolName, false},
	{"ImageType", dicomtag.ImageType, false},
	{"SOPClassUID", dicomtag.SOPClassUID, false},
}

// HeaderFromDataSet extracts the study and series attributes of a parsed
// instance.
func HeaderFromDataSet(ds *dicom.DataSet) (Header, error) {
	h := Header{
		Study:  make(map[string]any),
		Series: make(map[string]any),
		Frames: 1,
	}
	for _, f := range studyFields {
		if v, ok := fieldValue(ds, f); ok {
			h.Study[f.name] = v
		}
	}
	for _, f := range seriesFields {
		if v, ok := fieldValue(ds, f); ok {
			h.Series[f.name] = v
		}
	}
	h.StudyInstanceUID, _ = h.Study["StudyInstanceUID"].(string)
	h.SeriesInstanceUID, _ = h.Series["SeriesInstanceUID"].(string)
	h.StudyDate, _ = h.Study["StudyDate"].(string)
	if h.StudyInstanceUID == "" || h.SeriesInstanceUID == "" {
		return Header{}, ErrMissingUID
	}

	if v, ok := elementValue(ds, dicomtag.NumberOfFrames); ok {
		if n, ok := frames(v); ok {
			h.Frames = n
		}
	}
	return h, nil
}

func fieldValue(ds *dicom.DataSet, f field) (any, bool) {
	v, ok := elementValue(ds, f.tag)
	if !ok || !f.numeric {
		return v, ok
	}
	if l, isList := v.([]any); isList {
		for i, e := range l {
			l[i] = toNumber(e)
		}
		return l, true
	}
	return toNumber(v), true
}

// toNumber parses an IS or DS value, keeping the text when it does not parse.
func toNumber(v any) any {
	if n, ok := attr.Number(v); ok {
		return n
	}
	return v
}

// elementValue returns the value of a tag: a single value as itself,
// multi-valued elements as []any. Text values are trimmed of DICOM padding.
func elementValue(ds *dicom.DataSet, tag dicomtag.Tag) (any, bool) {
	elem, err := ds.FindElementByTag(tag)
	if err != nil || len(elem.Value) == 0 {
		return nil, false
	}
	if len(elem.Value) == 1 {
		return clean(elem.Value[0]), true
	}
	out := make([]any, len(elem.Value))
	for i, v := range elem.Value {
		out[i] = clean(v)
	}
	return out, true
}

func clean(v any) any {
	if s, ok := v.(string); ok {
		return trimPadding(s)
	}
	return v
}

func trimPadding(s string) string {
	end := len(s)
	for end > 0 && (s[end-1] == ' ' || s[end-1] == 0) {
		end--
	}
	return s[:end]
}

// #endregion header
