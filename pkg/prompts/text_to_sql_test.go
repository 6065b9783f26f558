package prompts

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/ekaya-askdb/pkg/models"
)

func TestSystemPrompt(t *testing.T) {
	prompt := SystemPrompt()

	assert.Contains(t, prompt, "Return ONLY valid JSON")
	assert.Contains(t, prompt, `"type": "answer"`)
	assert.Contains(t, prompt, `"type": "clarify"`)
	assert.Contains(t, prompt, "SINGLE statement only")
	assert.Contains(t, prompt, "ONLY SELECT / WITH")
	assert.Contains(t, prompt, "LIMIT <= 200")
	assert.Contains(t, prompt, "Never use SELECT *")
	assert.Equal(t, prompt, SystemPrompt(), "system prompt must be deterministic")
}

func TestSchemaText(t *testing.T) {
	tables := []models.Table{
		{Name: "reps", Columns: []models.Column{{Name: "id", Type: "integer"}, {Name: "name", Type: "text"}}},
		{Name: "deals", Columns: []models.Column{{Name: "rep_id", Type: "integer"}, {Name: "amount", Type: "numeric"}}},
		{Name: "empty"},
	}

	assert.Equal(t, "reps(id:integer, name:text)\ndeals(rep_id:integer, amount:numeric)\nempty()", SchemaText(tables))
	assert.Equal(t, "", SchemaText(nil))
}

func TestSchemaText_CapsColumns(t *testing.T) {
	var cols []models.Column
	for i := 0; i < MaxColumnsPerTable+10; i++ {
		cols = append(cols, models.Column{Name: fmt.Sprintf("c%d", i), Type: "int"})
	}

	text := SchemaText([]models.Table{{Name: "wide", Columns: cols}})

	assert.Equal(t, MaxColumnsPerTable, strings.Count(text, ":int"))
	assert.Contains(t, text, fmt.Sprintf("c%d:int", MaxColumnsPerTable-1))
	assert.NotContains(t, text, fmt.Sprintf("c%d:int", MaxColumnsPerTable))
}

func TestUserPrompt(t *testing.T) {
	var history []models.ChatTurn
	for i := 0; i < 8; i++ {
		history = append(history, models.ChatTurn{Role: models.ChatRoleUser, Content: fmt.Sprintf("turn-%d", i)})
	}

	prompt := UserPrompt(UserPromptInput{
		Tables:   []models.Table{{Name: "reps", Columns: []models.Column{{Name: "id", Type: "integer"}}}},
		Resolved: models.ResolvedFilters{TimeRange: models.TimeRangeThisQuarter},
		History:  history,
		Question: "Top reps by revenue",
	})

	assert.True(t, strings.HasPrefix(prompt, "SCHEMA (PostgreSQL):\nreps(id:integer)\n\n"))
	assert.Contains(t, prompt, "RESOLVED:\n{\"time_range\":\"this_quarter\"}\n\n")
	assert.Contains(t, prompt, "QUESTION:\nTop reps by revenue\n\n")
	assert.True(t, strings.HasSuffix(prompt, "Return JSON only."))

	// Only the last six turns are embedded.
	assert.NotContains(t, prompt, "turn-1\"")
	assert.Contains(t, prompt, "turn-2")
	assert.Contains(t, prompt, "turn-7")
	assert.Contains(t, prompt, `{"role":"user","content":"turn-2"}`)
}

func TestUserPrompt_EmptyHistory(t *testing.T) {
	prompt := UserPrompt(UserPromptInput{
		Resolved: models.ResolvedFilters{TimeRange: models.TimeRangeAllTime},
		Question: "q",
	})

	assert.Contains(t, prompt, "HISTORY (last turns):\n[]\n\n")
	assert.Contains(t, prompt, `{"time_range":"all_time"}`)
}

func TestRepairPrompt(t *testing.T) {
	prompt := RepairPrompt("not json at all")

	assert.Contains(t, prompt, "could not be parsed/validated")
	assert.Contains(t, prompt, `{"type":"answer","sql":"SELECT ..."`)
	assert.Contains(t, prompt, `{"type":"clarify","clarifying_question":"..."`)
	assert.True(t, strings.HasSuffix(prompt, "BAD_OUTPUT (clipped):\nnot json at all"))
}

func TestRepairPrompt_ClipsRuneSafe(t *testing.T) {
	bad := strings.Repeat("é", MaxRepairOutputChars+100)

	prompt := RepairPrompt(bad)

	clipped := prompt[strings.Index(prompt, "BAD_OUTPUT (clipped):\n")+len("BAD_OUTPUT (clipped):\n"):]
	assert.Equal(t, MaxRepairOutputChars, len([]rune(clipped)))
	assert.Equal(t, strings.Repeat("é", MaxRepairOutputChars), clipped)
}

func TestRepairPrompt_EmptyOutput(t *testing.T) {
	prompt := RepairPrompt("")
	assert.True(t, strings.HasSuffix(prompt, "BAD_OUTPUT (clipped):"))
}
