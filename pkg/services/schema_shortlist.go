package services

import (
	"regexp"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/ekaya-askdb/pkg/models"
)

const (
	// DefaultShortlistTables is how many tables are sent to the model per question.
	DefaultShortlistTables = 8

	minTokenLength  = 3
	tableNameWeight = 5
	columnWeight    = 1
)

var tokenSplitPattern = regexp.MustCompile(`[^a-z0-9_]+`)

// ShortlistOptions controls table selection.
type ShortlistOptions struct {
	// MaxTables caps the number of returned tables. Values below 1 use DefaultShortlistTables.
	MaxTables int
	// MatchSingular adds the singular form of each question token, so "reps" also scores rep_id.
	MatchSingular bool
}

// DefaultShortlistOptions returns the production settings. Singular
// matching is opt-in because it changes the ranking.
func DefaultShortlistOptions() ShortlistOptions {
	return ShortlistOptions{MaxTables: DefaultShortlistTables}
}

type scoredTable struct {
	table models.Table
	score int
}

// Shortlist ranks tables by keyword overlap with the question and returns at
// most opts.MaxTables of them. A table scores tableNameWeight for every token
// found in its name and columnWeight for every column containing a token.
// When nothing scores, the first tables in schema order are returned, so the
// result is never empty for a non-empty schema. The input is not modified.
func Shortlist(summary *models.SchemaSummary, question string, opts ShortlistOptions) []models.Table {
	if summary == nil || len(summary.Tables) == 0 {
		return []models.Table{}
	}

	maxTables := opts.MaxTables
	if maxTables < 1 {
		maxTables = DefaultShortlistTables
	}

	tokens := questionTokens(question, opts.MatchSingular)

	scored := make([]scoredTable, len(summary.Tables))
	anyScore := false
	for i, table := range summary.Tables {
		scored[i] = scoredTable{table: table, score: scoreTable(table, tokens)}
		if scored[i].score > 0 {
			anyScore = true
		}
	}

	n := min(maxTables, len(scored))
	selected := make([]models.Table, 0, n)

	if !anyScore {
		return append(selected, summary.Tables[:n]...)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	for _, s := range scored[:n] {
		selected = append(selected, s.table)
	}
	return selected
}

// questionTokens lowercases the question, splits it on anything outside
// [a-z0-9_] and keeps unique tokens of at least minTokenLength characters in
// first-seen order.
func questionTokens(question string, matchSingular bool) []string {
	seen := make(map[string]bool)
	var tokens []string

	add := func(tok string) {
		if len(tok) < minTokenLength || seen[tok] {
			return
		}
		seen[tok] = true
		tokens = append(tokens, tok)
	}

	for _, tok := range tokenSplitPattern.Split(strings.ToLower(question), -1) {
		add(tok)
		if matchSingular {
			add(inflection.Singular(tok))
		}
	}
	return tokens
}

func scoreTable(table models.Table, tokens []string) int {
	name := strings.ToLower(table.Name)
	columns := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		columns[i] = strings.ToLower(col.Name)
	}

	score := 0
	for _, tok := range tokens {
		if strings.Contains(name, tok) {
			score += tableNameWeight
		}
		for _, col := range columns {
			if strings.Contains(col, tok) {
				score += columnWeight
			}
		}
	}
	return score
}
