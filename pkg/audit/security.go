// Package audit provides security audit logging for SIEM consumption.
// Events are emitted as structured JSON under the "security_audit" logger so
// they can be filtered and forwarded separately from application logs.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/logging"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventGuardRejection is logged when the SQL guard refuses model-generated SQL.
	EventGuardRejection SecurityEventType = "sql_guard_rejection"
	// EventSQLInjectionAttempt is logged when libinjection flags a string literal.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventQueryExecution is logged for every validated query that was executed.
	EventQueryExecution SecurityEventType = "query_execution"
)

// SecurityEvent represents an auditable security event.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	RequestID uuid.UUID         `json:"request_id"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// GuardRejectionDetails describes a refused SQL candidate.
type GuardRejectionDetails struct {
	Reason   string `json:"reason"`
	Detail   string `json:"detail"`
	Question string `json:"question"`
	SQL      string `json:"sql"`
}

type clientIPKey struct{}

// WithClientIP stores the caller address so audit events can report it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIPFromContext returns the caller address stored by WithClientIP.
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewSecurityAuditor creates a security auditor under the "security_audit" namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{
		logger: logger.Named("security_audit"),
		now:    time.Now,
	}
}

// LogGuardRejection records SQL that the guard refused. Refusals of
// blocked keywords or functions are warnings; the rest are informational
// since they usually reflect model mistakes rather than attacks.
func (a *SecurityAuditor) LogGuardRejection(ctx context.Context, requestID uuid.UUID, details GuardRejectionDetails) {
	severity := "info"
	switch details.Reason {
	case "BlockedKeyword", "BlockedFunction", "MultiStatement", "NotReadOnly":
		severity = "warning"
	case "InjectionPattern":
		severity = "critical"
	}

	details.SQL = logging.SanitizeQuery(details.SQL)
	details.Question = logging.TruncateString(details.Question, logging.MaxQueryLogLength)

	event := a.newEvent(ctx, EventGuardRejection, requestID, details, severity)

	a.log(severity, "SQL rejected by guard", event,
		zap.String("reason", details.Reason),
		zap.String("detail", details.Detail),
	)
}

// LogInjectionAttempt records a string literal that libinjection flagged.
func (a *SecurityAuditor) LogInjectionAttempt(ctx context.Context, requestID uuid.UUID, fingerprint, literal string) {
	details := map[string]string{
		"fingerprint": fingerprint,
		"literal":     logging.TruncateString(literal, logging.MaxQueryLogLength),
	}
	event := a.newEvent(ctx, EventSQLInjectionAttempt, requestID, details, "critical")

	a.log("critical", "SQL injection pattern detected", event,
		zap.String("fingerprint", fingerprint),
	)
}

// LogQueryExecution records a validated query that reached the database.
// This can generate high log volume in production.
func (a *SecurityAuditor) LogQueryExecution(ctx context.Context, requestID uuid.UUID, sql string, rowCount int) {
	details := map[string]any{
		"sql":       logging.SanitizeQuery(sql),
		"row_count": rowCount,
	}
	event := a.newEvent(ctx, EventQueryExecution, requestID, details, "info")

	a.log("info", "Query executed", event,
		zap.Int("row_count", rowCount),
	)
}

func (a *SecurityAuditor) newEvent(ctx context.Context, eventType SecurityEventType, requestID uuid.UUID, details any, severity string) SecurityEvent {
	return SecurityEvent{
		Timestamp: a.now().UTC(),
		EventType: eventType,
		RequestID: requestID,
		ClientIP:  ClientIPFromContext(ctx),
		Details:   details,
		Severity:  severity,
	}
}

func (a *SecurityAuditor) log(severity, msg string, event SecurityEvent, fields ...zap.Field) {
	// Marshaling known types does not fail.
	eventJSON, _ := json.Marshal(event)

	fields = append([]zap.Field{
		zap.String("event_json", string(eventJSON)),
		zap.String("request_id", event.RequestID.String()),
		zap.String("client_ip", event.ClientIP),
		zap.String("severity", severity),
	}, fields...)

	switch severity {
	case "critical":
		a.logger.Error(msg, fields...)
	case "warning":
		a.logger.Warn(msg, fields...)
	default:
		a.logger.Info(msg, fields...)
	}
}
