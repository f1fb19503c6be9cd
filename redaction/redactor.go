// Package redaction masks personal data in extracted text before it is
// stored or indexed.
package redaction

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
)

// Redactor rewrites text with sensitive values masked. A redactor never
// fails: on any internal error it returns the input unchanged.
type Redactor interface {
	Redact(ctx context.Context, text string) string
}

// Rule masks every match of Pattern with Replacement. When Valid is set,
// only matches it accepts are masked.
type Rule struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
	Valid       func(match string) bool
}

// DefaultRules covers card numbers, SSNs, email addresses and phone numbers.
// Card numbers come first so their digit groups are not taken for phones.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:        "card",
			Pattern:     regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`),
			Replacement: "[REDACTED CARD]",
			Valid:       luhn,
		},
		{
			Name:        "ssn",
			Pattern:     regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			Replacement: "[REDACTED SSN]",
		},
		{
			Name:        "email",
			Pattern:     regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
			Replacement: "[REDACTED EMAIL]",
		},
		{
			Name:        "phone",
			Pattern:     regexp.MustCompile(`(?:\+?1[-. ]?)?(?:\(\d{3}\)|\b\d{3})[-. ]?\d{3}[-. ]\d{4}\b`),
			Replacement: "[REDACTED PHONE]",
		},
	}
}

// PatternRedactor applies an ordered list of rules.
type PatternRedactor struct {
	rules  []Rule
	logger *slog.Logger
}

var _ Redactor = (*PatternRedactor)(nil)

// New returns a redactor for rules, or for DefaultRules when none are given.
func New(rules ...Rule) *PatternRedactor {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &PatternRedactor{
		rules:  rules,
		logger: slog.Default().With("component", "redactor"),
	}
}

// Redact masks every rule match in text.
func (r *PatternRedactor) Redact(ctx context.Context, text string) (out string) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("redaction failed, keeping original text", "err", fmt.Sprint(p))
			out = text
		}
	}()

	out = text
	counts := make(map[string]int)
	for _, rule := range r.rules {
		if ctx.Err() != nil {
			r.logger.Warn("redaction interrupted, keeping original text", "err", ctx.Err())
			return text
		}
		out = rule.Pattern.ReplaceAllStringFunc(out, func(match string) string {
			if rule.Valid != nil && !rule.Valid(match) {
				return match
			}
			counts[rule.Name]++
			return rule.Replacement
		})
	}
	if len(counts) > 0 {
		r.logger.Debug("redacted sensitive values", "counts", counts)
	}
	return out
}

// Nop leaves text untouched.
type Nop struct{}

func (Nop) Redact(_ context.Context, text string) string { return text }

// luhn validates the check digit of a card number, ignoring separators.
func luhn(s string) bool {
	var sum, n int
	double := false
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c == ' ' || c == '-' {
			continue
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
		n++
	}
	return n >= 13 && sum%10 == 0
}
