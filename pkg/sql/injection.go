package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult contains the result of an injection check on a string literal.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Literal     string // The literal contents that were checked
}

// CheckLiteralForInjection uses libinjection to detect SQL injection patterns
// in the contents of a string literal.
//
// Returns nil if no injection is detected, or an InjectionCheckResult with
// details about the detected pattern.
//
// Example:
//
//	// Safe value - no injection
//	result := CheckLiteralForInjection("2024-01-15")
//	// result == nil
//
//	// Injection attempt detected
//	result := CheckLiteralForInjection("1' OR '1'='1")
//	// result.IsSQLi == true
//	// result.Fingerprint == "s&sos" (or similar)
func CheckLiteralForInjection(literal string) *InjectionCheckResult {
	if literal == "" {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(literal)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			Literal:     literal,
		}
	}

	return nil
}

// CheckStatementLiterals runs CheckLiteralForInjection over every string
// literal in stmt and returns the first hit, or nil when all are clean.
func CheckStatementLiterals(stmt string) *InjectionCheckResult {
	for _, literal := range stringLiterals(stmt) {
		if result := CheckLiteralForInjection(literal); result != nil {
			return result
		}
	}
	return nil
}
