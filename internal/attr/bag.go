package attr

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// #region bag
// Bag is an immutable snapshot of named attribute values describing one
// study, series or session. Values are normalized on construction: every
// numeric type becomes float64, string slices become []any, and nested maps
// are copied so the caller cannot mutate a bag after handing it over.
type Bag struct {
	values map[string]any
}

// New copies values into a new Bag.
func New(values map[string]any) Bag {
	b := Bag{values: make(map[string]any, len(values))}
	for k, v := range values {
		b.values[k] = Normalize(v)
	}
	return b
}

// Empty returns a bag with no attributes.
func Empty() Bag {
	return Bag{}
}

// Len reports the number of top-level attributes.
func (b Bag) Len() int {
	return len(b.values)
}

// Get returns a top-level attribute.
func (b Bag) Get(key string) (any, bool) {
	v, ok := b.values[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Has reports whether a top-level attribute is present and non-nil.
func (b Bag) Has(key string) bool {
	_, ok := b.Get(key)
	return ok
}

// Lookup resolves a dotted path such as "Modality" or "frame.rows".
// An exact top-level key wins over path traversal, so keys containing dots
// remain addressable. Numeric segments index into lists.
func (b Bag) Lookup(path string) (any, bool) {
	if v, ok := b.Get(path); ok {
		return v, true
	}
	if !strings.Contains(path, ".") {
		return nil, false
	}

	var cur any = b.values
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// With returns a copy of the bag with key set to v.
func (b Bag) With(key string, v any) Bag {
	out := Bag{values: make(map[string]any, len(b.values)+1)}
	for k, existing := range b.values {
		out.values[k] = existing
	}
	out.values[key] = Normalize(v)
	return out
}

// Merge returns a copy of b overlaid with every attribute of other.
func (b Bag) Merge(other Bag) Bag {
	out := Bag{values: make(map[string]any, len(b.values)+len(other.values))}
	for k, v := range b.values {
		out.values[k] = v
	}
	for k, v := range other.values {
		out.values[k] = v
	}
	return out
}

// Keys returns the top-level attribute names in sorted order.
func (b Bag) Keys() []string {
	keys := make([]string, 0, len(b.values))
	for k := range b.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a deep copy of the bag's values.
func (b Bag) Map() map[string]any {
	out := make(map[string]any, len(b.values))
	for k, v := range b.values {
		out[k] = Normalize(v)
	}
	return out
}

// #endregion bag

// #region coercion

// Number coerces v to a float64. Strings are parsed after trimming DICOM
// padding; bools and lists are never numbers.
func Number(v any) (float64, bool) {
	switch n := Normalize(v).(type) {
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	case string:
		s := strings.TrimSpace(strings.TrimRight(n, "\x00"))
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Text renders a scalar value as a string. Lists render their elements
// joined by a backslash, the DICOM multi-value separator.
func Text(v any) string {
	switch t := Normalize(v).(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = Text(e)
		}
		return strings.Join(parts, `\`)
	default:
		return ""
	}
}

// List returns v as a list when it is one.
func List(v any) ([]any, bool) {
	l, ok := Normalize(v).([]any)
	return l, ok
}

// Normalize converts v to the canonical attribute representation used by Bag.
func Normalize(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []float64:
		out := make([]any, len(t))
		for i, f := range t {
			out[i] = f
		}
		return out
	case []int:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = float64(n)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Normalize(e)
		}
		return out
	case Bag:
		return t.Map()
	default:
		return v
	}
}

// #endregion coercion
