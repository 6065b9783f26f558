package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-askdb/pkg/llm"
	"github.com/ekaya-inc/ekaya-askdb/pkg/models"
)

// ParseError means the model reply held no JSON object at all.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string {
	return "model output parse error: " + e.Message
}

// SchemaMismatchError means the reply was JSON but matched neither output shape.
type SchemaMismatchError struct {
	Field   string
	Message string
}

func (e *SchemaMismatchError) Error() string {
	if e.Field == "" {
		return "model output schema mismatch: " + e.Message
	}
	return fmt.Sprintf("model output schema mismatch: %s: %s", e.Field, e.Message)
}

func mismatch(field, format string, args ...any) error {
	return &SchemaMismatchError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ValidateModelOutput parses a raw model reply into an *models.Answer or a
// *models.Clarify. The reply is parsed as JSON directly and, failing that,
// from the first '{' to the last '}'. The type tag is case-insensitive and
// "final" or "result" mean answer. Optional lists default to empty and a
// visualization without a type defaults to table. Unknown fields are ignored.
func ValidateModelOutput(raw string) (models.ModelOutput, error) {
	obj, err := parseObject(raw)
	if err != nil {
		return nil, err
	}

	tagRaw, ok := obj["type"]
	if !ok || isNull(tagRaw) {
		return nil, mismatch("type", "is required")
	}
	var tag string
	if err := json.Unmarshal(tagRaw, &tag); err != nil {
		return nil, mismatch("type", "must be a string")
	}

	switch models.NormalizeOutputType(tag) {
	case models.OutputTypeAnswer:
		return validateAnswer(obj)
	case models.OutputTypeClarify:
		return validateClarify(obj)
	default:
		return nil, mismatch("type", "unknown output type %q", tag)
	}
}

func parseObject(raw string) (map[string]json.RawMessage, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &ParseError{Message: "empty or unparsable response"}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil && obj != nil {
		return obj, nil
	}

	candidate, ok := llm.ExtractObject(trimmed)
	if !ok {
		return nil, &ParseError{Message: "empty or unparsable response"}
	}
	obj = nil
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil || obj == nil {
		return nil, &ParseError{Message: "empty or unparsable response"}
	}
	return obj, nil
}

func validateAnswer(obj map[string]json.RawMessage) (*models.Answer, error) {
	sql, err := requiredString(obj, "sql")
	if err != nil {
		return nil, err
	}
	answerText, err := requiredString(obj, "answer")
	if err != nil {
		return nil, err
	}
	insights, err := optionalStrings(obj, "insights")
	if err != nil {
		return nil, err
	}
	followups, err := optionalStrings(obj, "followups")
	if err != nil {
		return nil, err
	}
	viz, err := optionalVisualization(obj)
	if err != nil {
		return nil, err
	}

	return &models.Answer{
		SQL:           sql,
		Answer:        answerText,
		Insights:      insights,
		Followups:     followups,
		Visualization: viz,
	}, nil
}

func validateClarify(obj map[string]json.RawMessage) (*models.Clarify, error) {
	question, err := requiredString(obj, "clarifying_question")
	if err != nil {
		return nil, err
	}
	options, err := optionalStrings(obj, "options")
	if err != nil {
		return nil, err
	}
	return &models.Clarify{ClarifyingQuestion: question, Options: options}, nil
}

func requiredString(obj map[string]json.RawMessage, field string) (string, error) {
	raw, ok := obj[field]
	if !ok || isNull(raw) {
		return "", mismatch(field, "is required")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", mismatch(field, "must be a string")
	}
	if strings.TrimSpace(s) == "" {
		return "", mismatch(field, "must not be empty")
	}
	return s, nil
}

func optionalString(obj map[string]json.RawMessage, field string) (string, error) {
	raw, ok := obj[field]
	if !ok || isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", mismatch(field, "must be a string")
	}
	return s, nil
}

func optionalStrings(obj map[string]json.RawMessage, field string) ([]string, error) {
	raw, ok := obj[field]
	if !ok || isNull(raw) {
		return []string{}, nil
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, mismatch(field, "must be an array of strings")
	}
	if items == nil {
		items = []string{}
	}
	return items, nil
}

func optionalVisualization(obj map[string]json.RawMessage) (*models.Visualization, error) {
	raw, ok := obj["visualization"]
	if !ok || isNull(raw) {
		return nil, nil
	}
	var vizObj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &vizObj); err != nil {
		return nil, mismatch("visualization", "must be an object")
	}

	vizType, err := optionalString(vizObj, "type")
	if err != nil {
		return nil, mismatch("visualization.type", "must be a string")
	}
	viz := models.DefaultVisualization()
	if vizType != "" {
		viz.Type = models.VisualizationType(vizType)
		if !viz.Type.IsValid() {
			return nil, mismatch("visualization.type", "must be one of line, bar, table; got %q", vizType)
		}
	}
	if viz.XKey, err = optionalString(vizObj, "xKey"); err != nil {
		return nil, mismatch("visualization.xKey", "must be a string")
	}
	if viz.YKey, err = optionalString(vizObj, "yKey"); err != nil {
		return nil, mismatch("visualization.yKey", "must be a string")
	}
	return &viz, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || strings.TrimSpace(string(raw)) == "null"
}
