// Package sql implements the safety guard that every model-generated
// statement must pass before it reaches the database.
//
// The guard is not a parser. It is a fixed pipeline of lexical checks that
// accepts well-formed read-only analytic queries and rejects anything it
// cannot classify. It performs no I/O.
package sql

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	DefaultLimit = 200
	MaxLimit     = 500
)

// Statements that write, change session state or run procedural code.
var blockedKeywords = []string{
	"insert", "update", "delete", "drop", "alter", "truncate", "create",
	"grant", "revoke", "copy", "call", "execute", "prepare", "deallocate",
	"refresh", "vacuum", "analyze", "begin", "commit", "rollback", "set",
	"listen", "notify",
}

// Functions that reach the server filesystem or other databases.
var blockedFunctions = []string{
	"pg_read_file", "pg_read_binary_file", "pg_ls_dir", "pg_stat_file",
	"lo_import", "lo_export", "dblink", "postgres_fdw",
}

// Column-name tokens that identify personal data.
var sensitiveTokens = []string{
	"email", "e_mail", "phone", "mobile", "contact", "nid", "ssn",
	"passport", "dob", "address",
}

var (
	leadingFenceRe  = regexp.MustCompile("(?i)^```(?:sql)?[ \\t]*\\r?\\n?")
	trailingFenceRe = regexp.MustCompile("\\r?\\n?[ \\t]*```$")
	readOnlyRe      = regexp.MustCompile(`^(?:select|with)\b`)
	selectStarRe    = regexp.MustCompile(`(?i)\bselect\s+(?:(?:distinct|all)\s+)?\*`)
	limitRe         = regexp.MustCompile(`(?i)\blimit\s+(\d+)`)

	// U&"..." identifiers can spell any name with escapes.
	unicodeIdentRe   = regexp.MustCompile(`(?i)\bu&["']`)
	blockedFuncRe    = regexp.MustCompile(`(?i)\b(` + strings.Join(blockedFunctions, "|") + `)"?\s*\(`)
	sensitiveTokenRe = regexp.MustCompile(`(?i)\b(` + strings.Join(sensitiveTokens, "|") + `)\b`)
)

// Options tunes the guard. The zero value is not useful; start from DefaultOptions.
type Options struct {
	DefaultLimit          int      // appended when the statement has no LIMIT
	MaxLimit              int      // explicit LIMIT values above this are clamped
	DisallowSelectStar    bool     // reject unqualified SELECT *
	BlockPIIColumns       bool     // reject references to sensitive column names
	ExtraBlockedKeywords  []string // merged into the keyword blocklist
	CheckLiteralInjection bool     // run libinjection over string literal contents
}

// DefaultOptions returns the guard defaults.
func DefaultOptions() Options {
	return Options{
		DefaultLimit:       DefaultLimit,
		MaxLimit:           MaxLimit,
		DisallowSelectStar: true,
		BlockPIIColumns:    true,
	}
}

// ValidatedSQL is a statement that passed Guard.Check. Only the guard can
// produce a non-zero value, so holding one proves the checks ran.
type ValidatedSQL struct {
	sql string
}

// String returns the rewritten statement.
func (v ValidatedSQL) String() string { return v.sql }

// IsZero reports whether v was not produced by the guard.
func (v ValidatedSQL) IsZero() bool { return v.sql == "" }

// Guard checks and rewrites candidate statements. It is safe for concurrent use.
type Guard struct {
	opts      Options
	keywordRe *regexp.Regexp
}

// NewGuard builds a guard. Non-positive limits fall back to the defaults and
// a DefaultLimit above MaxLimit is lowered to MaxLimit.
func NewGuard(opts Options) *Guard {
	if opts.MaxLimit < 1 {
		opts.MaxLimit = MaxLimit
	}
	if opts.DefaultLimit < 1 {
		opts.DefaultLimit = DefaultLimit
	}
	if opts.DefaultLimit > opts.MaxLimit {
		opts.DefaultLimit = opts.MaxLimit
	}

	keywords := append([]string(nil), blockedKeywords...)
	for _, kw := range opts.ExtraBlockedKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			keywords = append(keywords, regexp.QuoteMeta(kw))
		}
	}

	return &Guard{
		opts:      opts,
		keywordRe: regexp.MustCompile(`(?i)\b(` + strings.Join(keywords, "|") + `)\b`),
	}
}

// Options returns the effective options after defaults were applied.
func (g *Guard) Options() Options {
	return g.opts
}

// Check runs the guard pipeline over candidate. Each stage works on the
// output of the previous one and the first failure is returned as a
// *RejectedError. On success the statement is trimmed, comment-free and
// carries a LIMIT within [1, MaxLimit]. Check is idempotent on its output.
//
// Keyword and function scans run over the whole comment-free text before the
// statement is split, so a trailing write after a semicolon is reported as a
// blocked keyword rather than as a second statement. Semicolons inside
// literals still count as separators.
func (g *Guard) Check(candidate string) (ValidatedSQL, error) {
	text := stripFences(strings.TrimSpace(candidate))
	text = strings.TrimSpace(stripComments(text))
	if text == "" {
		return ValidatedSQL{}, reject(ReasonEmpty, "SQL is empty")
	}

	if m := g.keywordRe.FindStringSubmatch(text); m != nil {
		return ValidatedSQL{}, reject(ReasonBlockedKeyword, "blocked keyword %q", strings.ToLower(m[1]))
	}
	if m := blockedFuncRe.FindStringSubmatch(text); m != nil {
		return ValidatedSQL{}, reject(ReasonBlockedFunction, "blocked function %q", strings.ToLower(m[1]))
	}
	if unicodeIdentRe.MatchString(text) {
		return ValidatedSQL{}, reject(ReasonBlockedFunction, "unicode escaped identifiers and strings are not allowed")
	}

	stmt, err := singleStatement(text)
	if err != nil {
		return ValidatedSQL{}, err
	}

	if !readOnlyRe.MatchString(strings.ToLower(stmt)) {
		return ValidatedSQL{}, reject(ReasonNotReadOnly, "only SELECT or WITH queries are allowed")
	}
	if g.opts.DisallowSelectStar && selectStarRe.MatchString(stmt) {
		return ValidatedSQL{}, reject(ReasonSelectStar, "SELECT * is not allowed; list the columns explicitly")
	}
	if g.opts.BlockPIIColumns {
		if m := sensitiveTokenRe.FindStringSubmatch(stmt); m != nil {
			return ValidatedSQL{}, reject(ReasonSensitiveField, "query references sensitive field %q", strings.ToLower(m[1]))
		}
	}
	if g.opts.CheckLiteralInjection {
		if hit := CheckStatementLiterals(stmt); hit != nil {
			rejected := reject(ReasonInjectionPattern, "string literal matches an injection pattern (fingerprint %s)", hit.Fingerprint)
			rejected.Injection = hit
			return ValidatedSQL{}, rejected
		}
	}

	return ValidatedSQL{sql: strings.TrimSpace(g.enforceLimit(stmt))}, nil
}

// stripFences removes one leading ``` or ```sql fence and one trailing ``` fence.
func stripFences(s string) string {
	s = leadingFenceRe.ReplaceAllString(s, "")
	s = trailingFenceRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// singleStatement splits on every semicolon and requires exactly one
// non-empty segment.
func singleStatement(text string) (string, error) {
	var parts []string
	for _, part := range strings.Split(text, ";") {
		if p := strings.TrimSpace(part); p != "" {
			parts = append(parts, p)
		}
	}
	switch len(parts) {
	case 0:
		return "", reject(ReasonEmpty, "SQL is empty")
	case 1:
		return parts[0], nil
	default:
		return "", reject(ReasonMultiStatement, "only a single SQL statement is allowed")
	}
}

// enforceLimit appends the default LIMIT when none is present and rewrites
// every explicit LIMIT outside [1, MaxLimit] in place. Matches inside
// literals and quoted identifiers are ignored.
func (g *Guard) enforceLimit(stmt string) string {
	matches := limitRe.FindAllStringSubmatchIndex(maskLiterals(stmt), -1)
	if len(matches) == 0 {
		return stmt + " LIMIT " + strconv.Itoa(g.opts.DefaultLimit)
	}

	out := stmt
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		n, err := strconv.Atoi(stmt[m[2]:m[3]])
		switch {
		case err != nil || n > g.opts.MaxLimit:
			n = g.opts.MaxLimit
		case n < 1:
			n = 1
		default:
			continue
		}
		out = out[:m[0]] + "LIMIT " + strconv.Itoa(n) + out[m[1]:]
	}
	return out
}
