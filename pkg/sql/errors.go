package sql

import (
	"errors"
	"fmt"
)

// ErrRejected matches every *RejectedError with errors.Is.
var ErrRejected = errors.New("sql rejected")

// RejectionReason identifies the guard stage that refused a statement.
type RejectionReason string

const (
	ReasonEmpty            RejectionReason = "Empty"
	ReasonMultiStatement   RejectionReason = "MultiStatement"
	ReasonNotReadOnly      RejectionReason = "NotReadOnly"
	ReasonBlockedKeyword   RejectionReason = "BlockedKeyword"
	ReasonBlockedFunction  RejectionReason = "BlockedFunction"
	ReasonSelectStar       RejectionReason = "SelectStar"
	ReasonSensitiveField   RejectionReason = "SensitiveField"
	ReasonInjectionPattern RejectionReason = "InjectionPattern"
)

// RejectedError is returned by Guard.Check when a statement is refused.
// Detail is safe to show to the caller. Injection is set only for
// ReasonInjectionPattern.
type RejectedError struct {
	Reason    RejectionReason
	Detail    string
	Injection *InjectionCheckResult
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("SQL rejected: %s", e.Detail)
}

func (e *RejectedError) Unwrap() error {
	return ErrRejected
}

func reject(reason RejectionReason, format string, args ...any) *RejectedError {
	return &RejectedError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ReasonOf extracts the rejection reason from err, if err is or wraps a *RejectedError.
func ReasonOf(err error) (RejectionReason, bool) {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected.Reason, true
	}
	return "", false
}
