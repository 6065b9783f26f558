package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MaxHistoryTurns is the number of most recent turns kept from a request's history.
// Older turns are dropped, never summarized.
const MaxHistoryTurns = 10

// ChatRole identifies the author of a ChatTurn.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatTurn is one message of the conversation history supplied by the caller.
type ChatTurn struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// TimeRange is the caller-resolved time window hint passed to the model.
type TimeRange string

const (
	TimeRangeCalendarMonth TimeRange = "calendar_month"
	TimeRangeLast30Days    TimeRange = "last_30_days"
	TimeRangeThisQuarter   TimeRange = "this_quarter"
	TimeRangeAllTime       TimeRange = "all_time"
)

// IsValid reports whether r is one of the known time ranges.
func (r TimeRange) IsValid() bool {
	switch r {
	case TimeRangeCalendarMonth, TimeRangeLast30Days, TimeRangeThisQuarter, TimeRangeAllTime:
		return true
	}
	return false
}

// ResolvedFilters carries caller-supplied hints. They are not validated against the schema.
type ResolvedFilters struct {
	TimeRange TimeRange `json:"time_range"`
}

// ChatRequest is the input of the text-to-SQL pipeline.
type ChatRequest struct {
	Message  string           `json:"message"`
	Resolved *ResolvedFilters `json:"resolved,omitempty"`
	History  []ChatTurn       `json:"history,omitempty"`
}

// Validate checks the request shape. It does not inspect the message content.
func (r *ChatRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("message is required")
	}
	if r.Resolved != nil && r.Resolved.TimeRange != "" && !r.Resolved.TimeRange.IsValid() {
		return fmt.Errorf("resolved.time_range %q is not one of calendar_month, last_30_days, this_quarter, all_time", r.Resolved.TimeRange)
	}
	for i, turn := range r.History {
		if turn.Role != ChatRoleUser && turn.Role != ChatRoleAssistant {
			return fmt.Errorf("history[%d].role must be user or assistant", i)
		}
	}
	return nil
}

// EffectiveFilters returns the resolved filters with defaults applied.
func (r *ChatRequest) EffectiveFilters() ResolvedFilters {
	if r.Resolved == nil || r.Resolved.TimeRange == "" {
		return ResolvedFilters{TimeRange: TimeRangeAllTime}
	}
	return *r.Resolved
}

// RecentHistory returns at most MaxHistoryTurns of the most recent turns.
func (r *ChatRequest) RecentHistory() []ChatTurn {
	return LastTurns(r.History, MaxHistoryTurns)
}

// LastTurns returns the last n turns of history without copying the elements.
func LastTurns(history []ChatTurn, n int) []ChatTurn {
	if n <= 0 {
		return nil
	}
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// OutputType tags the two shapes the model may answer with.
type OutputType string

const (
	OutputTypeAnswer  OutputType = "answer"
	OutputTypeClarify OutputType = "clarify"
)

// NormalizeOutputType lowercases and trims a raw tag and folds the
// "final" and "result" aliases into answer.
func NormalizeOutputType(raw string) OutputType {
	t := strings.ToLower(strings.TrimSpace(raw))
	switch t {
	case "final", "result":
		return OutputTypeAnswer
	}
	return OutputType(t)
}

// ModelOutput is the validated model response: exactly one of *Answer or *Clarify.
type ModelOutput interface {
	OutputType() OutputType
	isModelOutput()
}

// VisualizationType is the chart hint for an answer.
type VisualizationType string

const (
	VisualizationLine  VisualizationType = "line"
	VisualizationBar   VisualizationType = "bar"
	VisualizationTable VisualizationType = "table"
)

// IsValid reports whether t is a supported chart type.
func (t VisualizationType) IsValid() bool {
	switch t {
	case VisualizationLine, VisualizationBar, VisualizationTable:
		return true
	}
	return false
}

// Visualization tells the caller how to render the result rows.
type Visualization struct {
	Type VisualizationType `json:"type"`
	XKey string            `json:"xKey,omitempty"`
	YKey string            `json:"yKey,omitempty"`
}

// DefaultVisualization is used when the model does not suggest one.
func DefaultVisualization() Visualization {
	return Visualization{Type: VisualizationTable}
}

// Answer is a model response carrying a candidate SQL statement.
// SQL is untrusted until it has passed the SQL guard.
type Answer struct {
	SQL           string         `json:"sql"`
	Answer        string         `json:"answer"`
	Insights      []string       `json:"insights"`
	Followups     []string       `json:"followups"`
	Visualization *Visualization `json:"visualization,omitempty"`
}

func (*Answer) OutputType() OutputType { return OutputTypeAnswer }
func (*Answer) isModelOutput()         {}

// Clarify is a model response that asks the user a disambiguating question instead of producing SQL.
type Clarify struct {
	ClarifyingQuestion string   `json:"clarifying_question"`
	Options            []string `json:"options"`
}

func (*Clarify) OutputType() OutputType { return OutputTypeClarify }
func (*Clarify) isModelOutput()         {}

// ChatResponse is the caller-facing envelope. Exactly one of the answer,
// clarify or error shapes is serialized depending on OK and Type.
type ChatResponse struct {
	OK   bool
	Type OutputType

	SQL           string
	Answer        string
	Insights      []string
	Followups     []string
	Visualization Visualization
	Result        *QueryResult

	ClarifyingQuestion string
	Options            []string

	Error string
}

type answerEnvelope struct {
	OK            bool          `json:"ok"`
	Type          OutputType    `json:"type"`
	SQL           string        `json:"sql"`
	Answer        string        `json:"answer"`
	Insights      []string      `json:"insights"`
	Followups     []string      `json:"followups"`
	Visualization Visualization `json:"visualization"`
	Result        QueryResult   `json:"result"`
}

type clarifyEnvelope struct {
	OK                 bool       `json:"ok"`
	Type               OutputType `json:"type"`
	ClarifyingQuestion string     `json:"clarifying_question"`
	Options            []string   `json:"options"`
}

type errorEnvelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// NewErrorResponse builds the failure envelope.
func NewErrorResponse(message string) *ChatResponse {
	return &ChatResponse{OK: false, Error: message}
}

// MarshalJSON renders the envelope for the active shape. Slices are never
// serialized as null.
func (r ChatResponse) MarshalJSON() ([]byte, error) {
	if !r.OK {
		return json.Marshal(errorEnvelope{OK: false, Error: r.Error})
	}
	switch r.Type {
	case OutputTypeClarify:
		return json.Marshal(clarifyEnvelope{
			OK:                 true,
			Type:               OutputTypeClarify,
			ClarifyingQuestion: r.ClarifyingQuestion,
			Options:            nonNil(r.Options),
		})
	case OutputTypeAnswer:
		result := QueryResult{}
		if r.Result != nil {
			result = *r.Result
		}
		result.Rows = nonNilRows(result.Rows)
		result.Fields = nonNil(result.Fields)
		return json.Marshal(answerEnvelope{
			OK:            true,
			Type:          OutputTypeAnswer,
			SQL:           r.SQL,
			Answer:        r.Answer,
			Insights:      nonNil(r.Insights),
			Followups:     nonNil(r.Followups),
			Visualization: r.Visualization,
			Result:        result,
		})
	default:
		return nil, fmt.Errorf("chat response has unknown type %q", r.Type)
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilRows(rows []map[string]any) []map[string]any {
	if rows == nil {
		return []map[string]any{}
	}
	return rows
}
