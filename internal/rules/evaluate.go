package rules

import (
	"math"
	"strings"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/attr"
)

// #region evaluate

// Evaluate runs a single rule against a bag. Rules with SourceOptions read
// from options instead. A missing attribute fails every comparator except
// doesNotEqual and doesNotContain.
func Evaluate(rule Rule, bag attr.Bag, options attr.Bag) Result {
	src := bag
	if rule.Source == SourceOptions {
		src = options
	}

	var passed bool
	if v, ok := src.Lookup(rule.Attribute); ok {
		passed = Compare(rule.Constraint, v)
	} else {
		passed = rule.Constraint.Kind.passesWhenAbsent()
	}

	if passed {
		return Result{Passed: true, Weight: rule.Weight}
	}
	return Result{RequiredFailed: rule.Required}
}

// EvaluateAll evaluates every rule and sums the weights of those that pass.
// All rules are evaluated even after a required failure so the details are
// complete; the caller decides what a required failure means.
func EvaluateAll(rs []Rule, bag attr.Bag, options attr.Bag) Outcome {
	out := Outcome{Details: make([]Detail, 0, len(rs))}
	for _, r := range rs {
		res := Evaluate(r, bag, options)
		if res.Passed {
			out.Passed++
			out.Score += res.Weight
		} else {
			out.Failed++
		}
		if res.RequiredFailed {
			out.RequiredFailed = true
		}
		out.Details = append(out.Details, Detail{
			RuleID:    r.ID,
			Attribute: r.Attribute,
			Kind:      r.Constraint.Kind.String(),
			Passed:    res.Passed,
			Required:  r.Required,
			Weight:    res.Weight,
		})
	}
	return out
}

// #endregion evaluate

// #region compare

// Compare applies c to a present attribute value.
func Compare(c Comparator, v any) bool {
	v = attr.Normalize(v)
	switch c.Kind {
	case KindEquals:
		return equal(v, attr.Normalize(c.Value))
	case KindDoesNotEqual:
		return !equal(v, attr.Normalize(c.Value))
	case KindContains:
		return contains(v, attr.Normalize(c.Value), false)
	case KindContainsI:
		return contains(v, attr.Normalize(c.Value), true)
	case KindDoesNotContain:
		return !contains(v, attr.Normalize(c.Value), false)
	case KindStartsWith:
		return anyText(v, func(s string) bool { return strings.HasPrefix(s, attr.Text(c.Value)) })
	case KindEndsWith:
		return anyText(v, func(s string) bool { return strings.HasSuffix(s, attr.Text(c.Value)) })
	case KindOnlyInteger:
		n, ok := number(v)
		return ok && isInteger(n)
	case KindOdd:
		n, ok := number(v)
		return ok && isInteger(n) && math.Mod(math.Abs(n), 2) == 1
	case KindEven:
		n, ok := number(v)
		return ok && isInteger(n) && math.Mod(math.Abs(n), 2) == 0
	case KindGreaterThan, KindGreaterThanOrEqualTo, KindLessThan, KindLessThanOrEqualTo:
		n, ok := number(v)
		if !ok {
			return false
		}
		lit, ok := attr.Number(c.Value)
		if !ok {
			return false
		}
		switch c.Kind {
		case KindGreaterThan:
			return n > lit
		case KindGreaterThanOrEqualTo:
			return n >= lit
		case KindLessThan:
			return n < lit
		default:
			return n <= lit
		}
	default:
		return false
	}
}

// equal is strict: both sides must be the same kind of value and equal.
// Numbers compare after normalization to float64, so 2 and 2.0 are equal
// but 2 and "2" are not. Lists are equal element by element.
func equal(a, b any) bool {
	la, aList := a.([]any)
	lb, bList := b.([]any)
	if aList || bList {
		if !aList || !bList || len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !equal(la[i], lb[i]) {
				return false
			}
		}
		return true
	}

	switch x := a.(type) {
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case float64:
		y, ok := b.(float64)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	}
	return false
}

// contains treats list-valued attributes as sets and list-valued literals
// as alternatives: the test passes when any attribute element contains any
// expected element.
func contains(v, want any, fold bool) bool {
	if wants, ok := want.([]any); ok {
		for _, w := range wants {
			if contains(v, w, fold) {
				return true
			}
		}
		return false
	}
	if items, ok := v.([]any); ok {
		for _, item := range items {
			if contains(item, want, fold) {
				return true
			}
		}
		return false
	}

	s, sub := attr.Text(v), attr.Text(want)
	if fold {
		s, sub = strings.ToLower(s), strings.ToLower(sub)
	}
	return strings.Contains(s, sub)
}

func anyText(v any, pred func(string) bool) bool {
	if items, ok := v.([]any); ok {
		for _, item := range items {
			if pred(attr.Text(item)) {
				return true
			}
		}
		return false
	}
	return pred(attr.Text(v))
}

func number(v any) (float64, bool) {
	return attr.Number(unwrap(v))
}

func unwrap(v any) any {
	if l, ok := v.([]any); ok && len(l) == 1 {
		return l[0]
	}
	return v
}

func isInteger(n float64) bool {
	return !math.IsInf(n, 0) && n == math.Trunc(n)
}

// #endregion compare
