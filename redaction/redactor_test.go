package redaction

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatternRedactor_Defaults(t *testing.T) {
	r := New()
	ctx := context.Background()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"email", "mail jane.doe+x@example.co.uk now", "mail [REDACTED EMAIL] now"},
		{"ssn", "SSN 123-45-6789.", "SSN [REDACTED SSN]."},
		{"phone dashes", "call 555-123-4567 today", "call [REDACTED PHONE] today"},
		{"phone parens", "call (555) 123-4567", "call [REDACTED PHONE]"},
		{"phone country", "call +1 555.123.4567", "call [REDACTED PHONE]"},
		{"card", "card 4111 1111 1111 1111 ok", "card [REDACTED CARD] ok"},
		{"bad luhn", "order 4111 1111 1111 1112", "order 4111 1111 1111 1112"},
		{"nothing", "plain prose with 42 numbers", "plain prose with 42 numbers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Redact(ctx, tt.in))
		})
	}
}

func TestPatternRedactor_CustomRules(t *testing.T) {
	r := New(Rule{Name: "secret", Pattern: regexp.MustCompile(`secret-\w+`), Replacement: "***"})
	assert.Equal(t, "key *** end", r.Redact(context.Background(), "key secret-abc end"))
	assert.Equal(t, "a@b.com", r.Redact(context.Background(), "a@b.com"))
}

func TestPatternRedactor_FailureKeepsOriginal(t *testing.T) {
	r := New(Rule{
		Name:    "boom",
		Pattern: regexp.MustCompile(`x`),
		Valid:   func(string) bool { panic("bad rule") },
	})
	assert.Equal(t, "xyz", r.Redact(context.Background(), "xyz"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, "me@example.com", New().Redact(ctx, "me@example.com"))
}

func TestNop(t *testing.T) {
	assert.Equal(t, "me@example.com", Nop{}.Redact(context.Background(), "me@example.com"))
}

func TestLuhn(t *testing.T) {
	assert.True(t, luhn("4111111111111111"))
	assert.True(t, luhn("5500-0000-0000-0004"))
	assert.False(t, luhn("4111111111111112"))
	assert.False(t, luhn("0000"))
}
