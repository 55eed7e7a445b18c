package rules

import (
	"errors"
	"fmt"
)

// #region errors
var (
	ErrUnknownComparator   = errors.New("unknown comparator")
	ErrNonNumericLiteral   = errors.New("numeric comparator requires a numeric literal")
	ErrMultipleComparators = errors.New("constraint must name exactly one comparator")
	ErrEmptyConstraint     = errors.New("constraint is empty")
	ErrEmptyAttribute      = errors.New("rule attribute is empty")
	ErrInvalidWeight       = errors.New("rule weight must be a finite non-negative number")
)

// #endregion errors

// #region kind
// Kind identifies one comparator variant.
type Kind int

const (
	KindEquals Kind = iota + 1
	KindDoesNotEqual
	KindContains
	KindContainsI
	KindDoesNotContain
	KindStartsWith
	KindEndsWith
	KindOnlyInteger
	KindGreaterThan
	KindGreaterThanOrEqualTo
	KindLessThan
	KindLessThanOrEqualTo
	KindOdd
	KindEven
)

var kindNames = map[Kind]string{
	KindEquals:               "equals",
	KindDoesNotEqual:         "doesNotEqual",
	KindContains:             "contains",
	KindContainsI:            "containsI",
	KindDoesNotContain:       "doesNotContain",
	KindStartsWith:           "startsWith",
	KindEndsWith:             "endsWith",
	KindOnlyInteger:          "onlyInteger",
	KindGreaterThan:          "greaterThan",
	KindGreaterThanOrEqualTo: "greaterThanOrEqualTo",
	KindLessThan:             "lessThan",
	KindLessThanOrEqualTo:    "lessThanOrEqualTo",
	KindOdd:                  "odd",
	KindEven:                 "even",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a comparator name as written in protocol files to its Kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownComparator, name)
}

// Numeric reports whether the kind belongs to the numeric family.
func (k Kind) Numeric() bool {
	switch k {
	case KindOnlyInteger, KindGreaterThan, KindGreaterThanOrEqualTo,
		KindLessThan, KindLessThanOrEqualTo, KindOdd, KindEven:
		return true
	}
	return false
}

// TakesValue reports whether the comparator needs a literal operand.
func (k Kind) TakesValue() bool {
	switch k {
	case KindOnlyInteger, KindOdd, KindEven:
		return false
	}
	return true
}

// passesWhenAbsent is true only for the negative comparators.
func (k Kind) passesWhenAbsent() bool {
	return k == KindDoesNotEqual || k == KindDoesNotContain
}

// #endregion kind

// #region comparator
// Comparator is a tagged comparator: Kind selects the test and Value holds
// the literal operand (nil for onlyInteger, odd and even).
type Comparator struct {
	Kind  Kind
	Value any
}

func Equals(v any) Comparator         { return Comparator{Kind: KindEquals, Value: v} }
func DoesNotEqual(v any) Comparator   { return Comparator{Kind: KindDoesNotEqual, Value: v} }
func Contains(v any) Comparator       { return Comparator{Kind: KindContains, Value: v} }
func ContainsI(v any) Comparator      { return Comparator{Kind: KindContainsI, Value: v} }
func DoesNotContain(v any) Comparator { return Comparator{Kind: KindDoesNotContain, Value: v} }
func StartsWith(s string) Comparator  { return Comparator{Kind: KindStartsWith, Value: s} }
func EndsWith(s string) Comparator    { return Comparator{Kind: KindEndsWith, Value: s} }
func OnlyInteger() Comparator         { return Comparator{Kind: KindOnlyInteger} }
func Odd() Comparator                 { return Comparator{Kind: KindOdd} }
func Even() Comparator                { return Comparator{Kind: KindEven} }

func GreaterThan(n float64) Comparator {
	return Comparator{Kind: KindGreaterThan, Value: n}
}

func GreaterThanOrEqualTo(n float64) Comparator {
	return Comparator{Kind: KindGreaterThanOrEqualTo, Value: n}
}

func LessThan(n float64) Comparator {
	return Comparator{Kind: KindLessThan, Value: n}
}

func LessThanOrEqualTo(n float64) Comparator {
	return Comparator{Kind: KindLessThanOrEqualTo, Value: n}
}

func (c Comparator) String() string {
	if !c.Kind.TakesValue() {
		return c.Kind.String()
	}
	return fmt.Sprintf("%s(%v)", c.Kind, c.Value)
}

// #endregion comparator

// #region rule

// Source selects where a rule reads its attribute from.
type Source int

const (
	// SourceBag reads from the study or series being evaluated.
	SourceBag Source = iota
	// SourceOptions reads from session options such as studyInstanceUIDsIndex.
	SourceOptions
)

func (s Source) String() string {
	if s == SourceOptions {
		return "options"
	}
	return "bag"
}

// Rule is one weighted matching rule.
type Rule struct {
	ID         string
	Attribute  string
	Constraint Comparator
	Weight     float64
	Required   bool
	Source     Source
}

// RuleOption customizes a rule built by NewRule.
type RuleOption func(*Rule)

// Weight sets the rule weight.
func Weight(w float64) RuleOption {
	return func(r *Rule) { r.Weight = w }
}

// Required marks the rule as a hard requirement.
func Required() RuleOption {
	return func(r *Rule) { r.Required = true }
}

// FromOptions makes the rule read session options instead of the bag.
func FromOptions() RuleOption {
	return func(r *Rule) { r.Source = SourceOptions }
}

// WithID names the rule for diagnostics.
func WithID(id string) RuleOption {
	return func(r *Rule) { r.ID = id }
}

// NewRule builds a rule with weight 1, not required, reading from the bag.
func NewRule(attribute string, c Comparator, opts ...RuleOption) Rule {
	r := Rule{
		Attribute:  attribute,
		Constraint: c,
		Weight:     1,
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// #endregion rule

// #region result

// Result is the outcome of evaluating one rule. Weight is non-zero only
// when the rule passed; RequiredFailed flags a hard disqualification.
type Result struct {
	Passed         bool
	Weight         float64
	RequiredFailed bool
}

// Detail records how a single rule fared inside EvaluateAll.
type Detail struct {
	RuleID    string  `json:"rule_id,omitempty"`
	Attribute string  `json:"attribute"`
	Kind      string  `json:"kind"`
	Passed    bool    `json:"passed"`
	Required  bool    `json:"required,omitempty"`
	Weight    float64 `json:"weight"`
}

// Outcome aggregates a rule list against one bag.
type Outcome struct {
	Score          float64
	Passed         int
	Failed         int
	RequiredFailed bool
	Details        []Detail
}

// #endregion result
