package rules

import (
	"fmt"
	"math"
	"sort"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/attr"
)

// #region definition
// Definition is the on-disk form of a rule as found in protocol files.
// Both `source: options` and the older `from: options` spelling are read.
type Definition struct {
	ID         string         `yaml:"id,omitempty" json:"id,omitempty"`
	Attribute  string         `yaml:"attribute" json:"attribute"`
	Constraint map[string]any `yaml:"constraint" json:"constraint"`
	Weight     *float64       `yaml:"weight,omitempty" json:"weight,omitempty"`
	Required   bool           `yaml:"required,omitempty" json:"required,omitempty"`
	Source     string         `yaml:"source,omitempty" json:"source,omitempty"`
	From       string         `yaml:"from,omitempty" json:"from,omitempty"`
}

// Build converts a definition into a validated Rule. Weight defaults to 1.
func (d Definition) Build() (Rule, error) {
	c, err := ParseConstraint(d.Constraint)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %s: %w", d.label(), err)
	}

	r := NewRule(d.Attribute, c, WithID(d.ID))
	if d.Weight != nil {
		r.Weight = *d.Weight
	}
	r.Required = d.Required

	src := d.Source
	if src == "" {
		src = d.From
	}
	switch src {
	case "", "bag":
	case "options":
		r.Source = SourceOptions
	default:
		return Rule{}, fmt.Errorf("rule %s: unknown source %q", d.label(), src)
	}

	if err := r.Validate(); err != nil {
		return Rule{}, fmt.Errorf("rule %s: %w", d.label(), err)
	}
	return r, nil
}

func (d Definition) label() string {
	if d.ID != "" {
		return d.ID
	}
	return d.Attribute
}

// BuildAll builds every definition, stopping at the first invalid one.
func BuildAll(defs []Definition) ([]Rule, error) {
	out := make([]Rule, 0, len(defs))
	for i, d := range defs {
		r, err := d.Build()
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// #endregion definition

// #region parse

// ParseConstraint decodes a constraint object. Accepted shapes:
//
//	{equals: {value: "CT"}}
//	{equals: "CT"}
//	{greaterThan: 0}
//	{numericality: {greaterThan: 0}}
//	{odd: true}
func ParseConstraint(raw map[string]any) (Comparator, error) {
	if len(raw) == 0 {
		return Comparator{}, ErrEmptyConstraint
	}
	if len(raw) > 1 {
		keys := make([]string, 0, len(raw))
		for k := range raw {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return Comparator{}, fmt.Errorf("%w: %v", ErrMultipleComparators, keys)
	}

	var name string
	var operand any
	for k, v := range raw {
		name, operand = k, v
	}

	if name == "numericality" {
		inner, ok := operand.(map[string]any)
		if !ok {
			return Comparator{}, fmt.Errorf("numericality: %w", ErrEmptyConstraint)
		}
		c, err := ParseConstraint(inner)
		if err != nil {
			return Comparator{}, fmt.Errorf("numericality: %w", err)
		}
		if !c.Kind.Numeric() {
			return Comparator{}, fmt.Errorf("numericality: %w: %s is not numeric", ErrUnknownComparator, c.Kind)
		}
		return c, nil
	}

	kind, err := ParseKind(name)
	if err != nil {
		return Comparator{}, err
	}
	if m, ok := operand.(map[string]any); ok {
		if v, has := m["value"]; has {
			operand = v
		} else if !kind.TakesValue() && len(m) == 0 {
			operand = nil
		}
	}
	if !kind.TakesValue() {
		if !flagOperand(operand) {
			return Comparator{}, fmt.Errorf("%s %v: %w", kind, operand, ErrNonNumericLiteral)
		}
		return Comparator{Kind: kind}, nil
	}
	c := Comparator{Kind: kind, Value: attr.Normalize(operand)}
	if kind.Numeric() {
		n, ok := attr.Number(operand)
		if !ok {
			return Comparator{}, fmt.Errorf("%s %v: %w", kind, operand, ErrNonNumericLiteral)
		}
		c.Value = n
	}
	return c, nil
}

// #endregion parse

// #region validate

// Validate rejects rules that could never be evaluated meaningfully.
func (r Rule) Validate() error {
	if r.Attribute == "" {
		return ErrEmptyAttribute
	}
	if math.IsNaN(r.Weight) || math.IsInf(r.Weight, 0) || r.Weight < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidWeight, r.Weight)
	}
	if _, ok := kindNames[r.Constraint.Kind]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownComparator, r.Constraint.Kind)
	}
	switch {
	case !r.Constraint.Kind.TakesValue():
		if !flagOperand(r.Constraint.Value) {
			return fmt.Errorf("%s %v: %w", r.Constraint.Kind, r.Constraint.Value, ErrNonNumericLiteral)
		}
	case r.Constraint.Kind.Numeric():
		if _, ok := attr.Number(r.Constraint.Value); !ok {
			return fmt.Errorf("%s %v: %w", r.Constraint.Kind, r.Constraint.Value, ErrNonNumericLiteral)
		}
	}
	return nil
}

// flagOperand reports whether v can accompany a comparator that takes no
// value: nothing, a bool flag, or a number.
func flagOperand(v any) bool {
	switch attr.Normalize(v).(type) {
	case nil, bool, float64:
		return true
	}
	return false
}

// #endregion validate
