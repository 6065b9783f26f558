package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-askdb/pkg/models"
)

func TestValidateModelOutput_Answer(t *testing.T) {
	raw := `{"type":"answer","sql":"SELECT name FROM reps","answer":"Top reps.","insights":["a"],"followups":["b"],"visualization":{"type":"bar","xKey":"name","yKey":"revenue"}}`

	out, err := ValidateModelOutput(raw)
	require.NoError(t, err)

	answer, ok := out.(*models.Answer)
	require.True(t, ok, "expected *models.Answer, got %T", out)
	assert.Equal(t, "SELECT name FROM reps", answer.SQL)
	assert.Equal(t, "Top reps.", answer.Answer)
	assert.Equal(t, []string{"a"}, answer.Insights)
	assert.Equal(t, []string{"b"}, answer.Followups)
	require.NotNil(t, answer.Visualization)
	assert.Equal(t, models.Visualization{Type: models.VisualizationBar, XKey: "name", YKey: "revenue"}, *answer.Visualization)
}

func TestValidateModelOutput_AnswerDefaults(t *testing.T) {
	out, err := ValidateModelOutput(`{"type":"answer","sql":"SELECT 1","answer":"one"}`)
	require.NoError(t, err)

	answer := out.(*models.Answer)
	assert.NotNil(t, answer.Insights)
	assert.Empty(t, answer.Insights)
	assert.NotNil(t, answer.Followups)
	assert.Empty(t, answer.Followups)
	assert.Nil(t, answer.Visualization)
}

func TestValidateModelOutput_VisualizationTypeDefaultsToTable(t *testing.T) {
	out, err := ValidateModelOutput(`{"type":"answer","sql":"SELECT 1","answer":"one","visualization":{"xKey":"x"}}`)
	require.NoError(t, err)

	viz := out.(*models.Answer).Visualization
	require.NotNil(t, viz)
	assert.Equal(t, models.VisualizationTable, viz.Type)
	assert.Equal(t, "x", viz.XKey)
}

func TestValidateModelOutput_TagNormalization(t *testing.T) {
	tests := []struct {
		tag  string
		want models.OutputType
	}{
		{"answer", models.OutputTypeAnswer},
		{"ANSWER", models.OutputTypeAnswer},
		{"FINAL", models.OutputTypeAnswer},
		{" final ", models.OutputTypeAnswer},
		{"Result", models.OutputTypeAnswer},
		{"Clarify", models.OutputTypeClarify},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			raw := `{"type":"` + tt.tag + `","sql":"SELECT 1","answer":"one","clarifying_question":"which?"}`
			out, err := ValidateModelOutput(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.OutputType())
		})
	}
}

func TestValidateModelOutput_Clarify(t *testing.T) {
	out, err := ValidateModelOutput(`{"type":"clarify","clarifying_question":"Which quarter?","options":["Q1","Q2"]}`)
	require.NoError(t, err)

	clarify, ok := out.(*models.Clarify)
	require.True(t, ok)
	assert.Equal(t, "Which quarter?", clarify.ClarifyingQuestion)
	assert.Equal(t, []string{"Q1", "Q2"}, clarify.Options)

	out, err = ValidateModelOutput(`{"type":"clarify","clarifying_question":"Which quarter?"}`)
	require.NoError(t, err)
	assert.Equal(t, []string{}, out.(*models.Clarify).Options)
}

func TestValidateModelOutput_ExtractsEmbeddedObject(t *testing.T) {
	raw := "Sure! Here is the JSON:\n```json\n{\"type\":\"answer\",\"sql\":\"SELECT 1\",\"answer\":\"one\"}\n```\nLet me know."

	out, err := ValidateModelOutput(raw)

	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", out.(*models.Answer).SQL)
}

func TestValidateModelOutput_ParseErrors(t *testing.T) {
	inputs := map[string]string{
		"empty":          "",
		"whitespace":     "   \n ",
		"no braces":      "I cannot help with that.",
		"broken object":  `{"type": "answer", "sql": }`,
		"json array":     `["answer"]`,
		"json null":      `null`,
		"reversed brace": "} {",
	}

	for name, raw := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := ValidateModelOutput(raw)
			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr), "expected ParseError, got %v", err)
			assert.Equal(t, "empty or unparsable response", parseErr.Message)
		})
	}
}

func TestValidateModelOutput_SchemaMismatch(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		field string
	}{
		{"missing type", `{"sql":"SELECT 1","answer":"x"}`, "type"},
		{"non-string type", `{"type":1,"sql":"SELECT 1","answer":"x"}`, "type"},
		{"unknown type", `{"type":"table","sql":"SELECT 1","answer":"x"}`, "type"},
		{"missing sql", `{"type":"answer","answer":"x"}`, "sql"},
		{"empty sql", `{"type":"answer","sql":"  ","answer":"x"}`, "sql"},
		{"numeric sql", `{"type":"answer","sql":42,"answer":"x"}`, "sql"},
		{"missing answer", `{"type":"answer","sql":"SELECT 1"}`, "answer"},
		{"insights not array", `{"type":"answer","sql":"SELECT 1","answer":"x","insights":"one"}`, "insights"},
		{"followups with numbers", `{"type":"answer","sql":"SELECT 1","answer":"x","followups":[1,2]}`, "followups"},
		{"visualization not object", `{"type":"answer","sql":"SELECT 1","answer":"x","visualization":"bar"}`, "visualization"},
		{"invalid chart type", `{"type":"answer","sql":"SELECT 1","answer":"x","visualization":{"type":"pie"}}`, "visualization.type"},
		{"numeric xKey", `{"type":"answer","sql":"SELECT 1","answer":"x","visualization":{"xKey":3}}`, "visualization.xKey"},
		{"missing clarifying question", `{"type":"clarify","options":["a"]}`, "clarifying_question"},
		{"options not strings", `{"type":"clarify","clarifying_question":"q","options":[{"a":1}]}`, "options"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateModelOutput(tt.raw)
			var mismatchErr *SchemaMismatchError
			require.True(t, errors.As(err, &mismatchErr), "expected SchemaMismatchError, got %v", err)
			assert.Equal(t, tt.field, mismatchErr.Field)
		})
	}
}

func TestValidateModelOutput_NullOptionalFields(t *testing.T) {
	out, err := ValidateModelOutput(`{"type":"answer","sql":"SELECT 1","answer":"one","insights":null,"visualization":null}`)
	require.NoError(t, err)

	answer := out.(*models.Answer)
	assert.Equal(t, []string{}, answer.Insights)
	assert.Nil(t, answer.Visualization)
}

func TestSchemaMismatchError_Error(t *testing.T) {
	assert.Equal(t, "model output schema mismatch: sql: is required", (&SchemaMismatchError{Field: "sql", Message: "is required"}).Error())
	assert.Equal(t, "model output schema mismatch: bad", (&SchemaMismatchError{Message: "bad"}).Error())
	assert.Equal(t, "model output parse error: x", (&ParseError{Message: "x"}).Error())
}
