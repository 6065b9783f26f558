package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-askdb/pkg/models"
)

const (
	// MaxColumnsPerTable caps the columns serialized for each table.
	MaxColumnsPerTable = 50
	// PromptHistoryTurns is how many of the most recent turns the user prompt embeds.
	PromptHistoryTurns = 6
	// MaxRepairOutputChars caps the previous model output quoted in a repair prompt.
	MaxRepairOutputChars = 4000
)

// UserPromptInput is everything the user prompt is built from.
type UserPromptInput struct {
	Tables   []models.Table
	Resolved models.ResolvedFilters
	History  []models.ChatTurn
	Question string
}

// SystemPrompt returns the fixed instruction that constrains the model to the
// two JSON shapes and to safe, read-only SQL.
func SystemPrompt() string {
	var prompt strings.Builder

	prompt.WriteString("You are a senior data analyst for a PostgreSQL database.\n\n")

	prompt.WriteString("OUTPUT FORMAT (STRICT):\n")
	prompt.WriteString("Return ONLY valid JSON. No markdown. No extra text.\n\n")

	prompt.WriteString("Allowed JSON shapes:\n\n")
	prompt.WriteString("1) Answer:\n")
	prompt.WriteString("{\n")
	prompt.WriteString("  \"type\": \"answer\",\n")
	prompt.WriteString("  \"sql\": \"SELECT ...\",\n")
	prompt.WriteString("  \"answer\": \"1-2 line business explanation\",\n")
	prompt.WriteString("  \"insights\": [\"...\"],        // optional\n")
	prompt.WriteString("  \"followups\": [\"...\"],       // optional\n")
	prompt.WriteString("  \"visualization\": { \"type\": \"line|bar|table\", \"xKey\": \"...\", \"yKey\": \"...\" } // optional\n")
	prompt.WriteString("}\n\n")
	prompt.WriteString("2) Clarify (only if truly impossible):\n")
	prompt.WriteString("{\n")
	prompt.WriteString("  \"type\": \"clarify\",\n")
	prompt.WriteString("  \"clarifying_question\": \"...\",\n")
	prompt.WriteString("  \"options\": [\"...\"]\n")
	prompt.WriteString("}\n\n")

	prompt.WriteString("SQL RULES:\n")
	prompt.WriteString("- SINGLE statement only\n")
	prompt.WriteString("- ONLY SELECT / WITH\n")
	prompt.WriteString("- Use ONLY the provided schema tables/columns\n")
	prompt.WriteString("- Prefer aggregation; avoid huge raw dumps\n")
	prompt.WriteString("- Always include LIMIT <= 200 unless aggregating small results\n")
	prompt.WriteString("- Never use SELECT *")

	return prompt.String()
}

// UserPrompt builds the per-question prompt: the shortlisted schema, the
// resolved filters, the last PromptHistoryTurns turns and the question.
func UserPrompt(input UserPromptInput) string {
	history := models.LastTurns(input.History, PromptHistoryTurns)
	if history == nil {
		history = []models.ChatTurn{}
	}

	var prompt strings.Builder

	prompt.WriteString("SCHEMA (PostgreSQL):\n")
	prompt.WriteString(SchemaText(input.Tables))
	prompt.WriteString("\n\n")

	prompt.WriteString("RESOLVED:\n")
	prompt.WriteString(toJSON(input.Resolved))
	prompt.WriteString("\n\n")

	prompt.WriteString("HISTORY (last turns):\n")
	prompt.WriteString(toJSON(history))
	prompt.WriteString("\n\n")

	prompt.WriteString("QUESTION:\n")
	prompt.WriteString(input.Question)
	prompt.WriteString("\n\n")

	prompt.WriteString("Return JSON only.")

	return prompt.String()
}

// RepairPrompt asks the model to restate badOutput as exactly one of the two
// JSON shapes. The quoted output is clipped to MaxRepairOutputChars characters.
func RepairPrompt(badOutput string) string {
	var prompt strings.Builder

	prompt.WriteString("Your previous output could not be parsed/validated.\n\n")
	prompt.WriteString("Convert it into EXACTLY one of these JSON shapes (and output JSON only):\n\n")
	prompt.WriteString("Answer:\n")
	prompt.WriteString(`{"type":"answer","sql":"SELECT ...","answer":"...","insights":["..."],"followups":["..."],"visualization":{"type":"line|bar|table","xKey":"...","yKey":"..."}}`)
	prompt.WriteString("\n\n")
	prompt.WriteString("Clarify:\n")
	prompt.WriteString(`{"type":"clarify","clarifying_question":"...","options":["..."]}`)
	prompt.WriteString("\n\n")
	prompt.WriteString("BAD_OUTPUT (clipped):\n")
	prompt.WriteString(strings.TrimSpace(clip(badOutput, MaxRepairOutputChars)))

	return strings.TrimSpace(prompt.String())
}

// SchemaText renders one line per table as name(col:type, ...), keeping at
// most MaxColumnsPerTable columns per table.
func SchemaText(tables []models.Table) string {
	lines := make([]string, 0, len(tables))
	for _, table := range tables {
		columns := table.Columns
		if len(columns) > MaxColumnsPerTable {
			columns = columns[:MaxColumnsPerTable]
		}
		cols := make([]string, 0, len(columns))
		for _, col := range columns {
			cols = append(cols, fmt.Sprintf("%s:%s", col.Name, col.Type))
		}
		lines = append(lines, fmt.Sprintf("%s(%s)", table.Name, strings.Join(cols, ", ")))
	}
	return strings.Join(lines, "\n")
}

func clip(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}

func toJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}
