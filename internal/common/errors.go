package common

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies pricing failures. Every kind is terminal for a single calculation.
type Kind string

const (
	KindInvalidAmount    Kind = "invalid_amount"
	KindInvalidModifier  Kind = "invalid_modifier"
	KindNoApplicableRate Kind = "no_applicable_rate"
	KindAmbiguousRate    Kind = "ambiguous_rate"
	KindEmptyLineItems   Kind = "empty_line_items"
	KindValidationFailed Kind = "validation_failed"
)

var (
	// ErrInvalidAmount matches any money value built from malformed or out-of-range input.
	ErrInvalidAmount = &Error{Kind: KindInvalidAmount}
	// ErrInvalidModifier matches discount modifiers with bad percentages or windows.
	ErrInvalidModifier = &Error{Kind: KindInvalidModifier}
	// ErrNoApplicableRate matches lookups with no active tax rule.
	ErrNoApplicableRate = &Error{Kind: KindNoApplicableRate}
	// ErrAmbiguousRate matches lookups where more than one tax rule is active.
	ErrAmbiguousRate = &Error{Kind: KindAmbiguousRate}
	// ErrEmptyLineItems matches calculations requested without items.
	ErrEmptyLineItems = &Error{Kind: KindEmptyLineItems}
	// ErrValidationFailed matches request precondition failures.
	ErrValidationFailed = &Error{Kind: KindValidationFailed}
)

// RuleQuery describes the tax rule lookup that failed.
type RuleQuery struct {
	Category string
	Region   string
	AsOf     string
	Matches  []string
}

// Error is the typed failure returned by every pricing component. It carries enough detail
// (field, value, rule query) for a caller to act without re-deriving state.
type Error struct {
	Kind   Kind
	Field  string
	Value  any
	Reason string
	Rule   *RuleQuery
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Value != nil {
		fmt.Fprintf(&b, " (value=%v)", e.Value)
	}
	if e.Rule != nil {
		fmt.Fprintf(&b, " (category=%s region=%s as_of=%s", e.Rule.Category, e.Rule.Region, e.Rule.AsOf)
		if len(e.Rule.Matches) > 0 {
			fmt.Fprintf(&b, " matches=%s", strings.Join(e.Rule.Matches, ","))
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so the package sentinels match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

// NewError constructs an Error of the given kind.
func NewError(kind Kind, field, reason string, value any) *Error {
	return &Error{Kind: kind, Field: field, Reason: reason, Value: value}
}

// KindOf extracts the kind of a pricing error, or "" when err is not one.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return ""
}

// IsPricingError checks whether the error is a pricing Error.
func IsPricingError(err error) bool {
	var target *Error
	return errors.As(err, &target)
}
