package sql

import (
	"testing"
)

func TestCheckLiteralForInjection(t *testing.T) {
	tests := []struct {
		name              string
		literal           string
		expectInjection   bool
		expectFingerprint bool // True if we expect a non-empty fingerprint
	}{
		// Clean values - should pass
		{name: "clean identifier value", literal: "12345"},
		{name: "clean email address", literal: "user@example.com"},
		{name: "clean date string", literal: "2024-01-15"},
		{name: "clean UUID", literal: "550e8400-e29b-41d4-a716-446655440000"},
		{name: "clean search term", literal: "laptop computers"},
		{name: "clean multi-word value", literal: "This is a normal description with spaces"},

		// Classic SQL injection patterns
		{name: "classic quote injection", literal: "' OR '1'='1", expectInjection: true, expectFingerprint: true},
		{name: "drop table injection", literal: "'; DROP TABLE users--", expectInjection: true, expectFingerprint: true},
		{name: "union select injection", literal: "1 UNION SELECT * FROM passwords", expectInjection: true, expectFingerprint: true},
		{name: "comment injection", literal: "admin'--", expectInjection: true, expectFingerprint: true},
		{name: "OR injection", literal: "' OR 1=1--", expectInjection: true, expectFingerprint: true},
		{name: "time-based blind injection", literal: "1' AND SLEEP(5)--", expectInjection: true, expectFingerprint: true},

		// Edge cases
		{name: "empty string", literal: ""},
		{name: "single quote alone (legitimate apostrophe)", literal: "O'Brien"},
		{name: "double dash in text", literal: "This is a note -- with dashes"},
		{name: "SQL keywords without injection context", literal: "SELECT the best option from the menu"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckLiteralForInjection(tt.literal)

			if tt.expectInjection {
				if result == nil {
					t.Errorf("expected injection detection, got nil")
					return
				}
				if !result.IsSQLi {
					t.Errorf("expected IsSQLi=true, got false")
				}
				if result.Literal != tt.literal {
					t.Errorf("expected Literal=%q, got %q", tt.literal, result.Literal)
				}
				if tt.expectFingerprint && result.Fingerprint == "" {
					t.Errorf("expected non-empty fingerprint, got empty string")
				}
				return
			}

			if result != nil {
				t.Errorf("expected no injection, got fingerprint %q", result.Fingerprint)
			}
		})
	}
}

func TestCheckStatementLiterals(t *testing.T) {
	tests := []struct {
		name            string
		stmt            string
		expectInjection bool
		expectLiteral   string
	}{
		{
			name: "no literals",
			stmt: "SELECT id, name FROM reps",
		},
		{
			name: "clean literals",
			stmt: "SELECT id FROM deals WHERE stage = 'won' AND closed_at >= '2024-01-01'",
		},
		{
			name:            "escaped quotes are unescaped before checking",
			stmt:            "SELECT id FROM reps WHERE name = ''' OR ''1''=''1'",
			expectInjection: true,
			expectLiteral:   "' OR '1'='1",
		},
		{
			name:            "dollar quoted body",
			stmt:            "SELECT id FROM reps WHERE name = $$admin'--$$",
			expectInjection: true,
			expectLiteral:   "admin'--",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckStatementLiterals(tt.stmt)
			if !tt.expectInjection {
				if result != nil {
					t.Errorf("expected no injection, got %q", result.Literal)
				}
				return
			}
			if result == nil {
				t.Fatalf("expected injection detection, got nil")
			}
			if result.Literal != tt.expectLiteral {
				t.Errorf("expected Literal=%q, got %q", tt.expectLiteral, result.Literal)
			}
		})
	}
}
