// Package sqlguard classifies model-generated SQL as allowed or rejected.
//
// The checks are keyword and pattern heuristics over the raw text. They decide
// which statement kinds may reach the database; they do not parse SQL and do
// not make a statement injection-proof.
package sqlguard

import (
	"fmt"
	"regexp"
	"strings"
)

type Policy string

const (
	// PolicyStrict admits SELECT statements only.
	PolicyStrict Policy = "strict"
	// PolicyPermissive admits SELECT, INSERT, UPDATE and DELETE. UPDATE and
	// DELETE additionally need a WHERE clause.
	PolicyPermissive Policy = "permissive"
	// PolicyLegacy is the first SELECT-only rule set: a wider keyword list,
	// substring patterns instead of word boundaries, and a LIMIT 100 appended
	// by the sanitizer.
	PolicyLegacy Policy = "legacy"
)

// Rule names reported in a Verdict.
const (
	RuleEmpty                = "empty"
	RuleVerb                 = "verb"
	RuleMutationWithoutWhere = "mutation_without_where"
)

const (
	legacyRowLimit  = 100
	rejectSelect    = "Generated query failed safety validation. Only SELECT queries are allowed."
	rejectMutations = "Generated query failed safety validation. Only SELECT, INSERT, UPDATE and DELETE queries are allowed."
	// RejectionReason accompanies every rejection.
	RejectionReason = "Query contains potentially dangerous operations"
)

var baseKeywords = []string{
	"drop", "truncate", "alter", "grant", "revoke", "commit", "rollback", "begin",
	"transaction", "lock", "unlock", "exec", "execute", "call",
	"procedure", "function", "trigger", "index", "view", "schema",
	"database", "constraint", "sequence",
}

var legacyExtraKeywords = []string{"create", "table", "column"}

type pattern struct {
	name    string
	re      *regexp.Regexp
	literal string
}

func (p pattern) matches(cleaned string) bool {
	if p.re != nil {
		return p.re.MatchString(cleaned)
	}
	return strings.Contains(cleaned, p.literal)
}

var boundaryPatterns = []pattern{
	{name: "line_comment", re: regexp.MustCompile(`--`)},
	{name: "block_comment_open", re: regexp.MustCompile(`/\*`)},
	{name: "block_comment_close", re: regexp.MustCompile(`\*/`)},
	{name: "xp_prefix", re: regexp.MustCompile(`\bxp_`)},
	{name: "sp_prefix", re: regexp.MustCompile(`\bsp_`)},
	{name: "global_variable", re: regexp.MustCompile(`@@`)},
	{name: "char_cast", re: regexp.MustCompile(`\bchar\(`)},
	{name: "waitfor", re: regexp.MustCompile(`\bwaitfor\b`)},
}

var legacyPatterns = []pattern{
	{name: "line_comment", literal: "--"},
	{name: "block_comment_open", literal: "/*"},
	{name: "block_comment_close", literal: "*/"},
	{name: "xp_prefix", literal: "xp_"},
	{name: "sp_prefix", literal: "sp_"},
	{name: "global_variable", literal: "@@"},
	{name: "char_cast", literal: "char("},
	{name: "waitfor", literal: "waitfor"},
	{name: "statement_separator", literal: ";"},
	{name: "union", literal: "union"},
	{name: "cast", literal: "cast("},
	{name: "convert", literal: "convert("},
}

type ruleSet struct {
	verbs         []string
	keywords      []string
	patterns      []pattern
	mutationGuard bool
	appendLimit   bool
}

var ruleSets = map[Policy]ruleSet{
	PolicyStrict: {
		verbs:    []string{"select"},
		keywords: baseKeywords,
		patterns: boundaryPatterns,
	},
	PolicyPermissive: {
		verbs:         []string{"select", "insert", "update", "delete"},
		keywords:      baseKeywords,
		patterns:      boundaryPatterns,
		mutationGuard: true,
	},
	PolicyLegacy: {
		verbs:       []string{"select"},
		keywords:    append(append([]string{}, baseKeywords...), legacyExtraKeywords...),
		patterns:    legacyPatterns,
		appendLimit: true,
	},
}

// ParsePolicy maps a configured policy name to a Policy. An empty name selects
// PolicyStrict.
func ParsePolicy(raw string) (Policy, error) {
	name := Policy(strings.ToLower(strings.TrimSpace(raw)))
	if name == "" {
		return PolicyStrict, nil
	}
	if _, ok := ruleSets[name]; !ok {
		return "", fmt.Errorf("unknown safety policy %q", raw)
	}
	return name, nil
}

// Verdict is the outcome of a check. Rule names the first check that failed
// and is empty when the statement is allowed.
type Verdict struct {
	Allowed bool
	Rule    string
}

type Filter struct {
	policy Policy
	rules  ruleSet
}

func New(policy Policy) (*Filter, error) {
	rules, ok := ruleSets[policy]
	if !ok {
		return nil, fmt.Errorf("unknown safety policy %q", policy)
	}
	return &Filter{policy: policy, rules: rules}, nil
}

func (f *Filter) Policy() Policy {
	return f.policy
}

// AllowsMutations reports whether INSERT, UPDATE or DELETE can pass the verb gate.
func (f *Filter) AllowsMutations() bool {
	return len(f.rules.verbs) > 1
}

func (f *Filter) Allow(sql string) bool {
	return f.Check(sql).Allowed
}

// Check runs the gates in order and stops at the first failure. Keyword and
// pattern matching are plain lower-case substring tests, so identifiers such
// as viewed_at trip the "view" keyword.
func (f *Filter) Check(sql string) Verdict {
	cleaned := strings.ToLower(strings.TrimSpace(sql))
	if cleaned == "" {
		return reject(RuleEmpty)
	}

	if !hasAnyPrefix(cleaned, f.rules.verbs) {
		return reject(RuleVerb)
	}
	for _, keyword := range f.rules.keywords {
		if strings.Contains(cleaned, keyword) {
			return reject("keyword:" + keyword)
		}
	}
	for _, p := range f.rules.patterns {
		if p.matches(cleaned) {
			return reject("pattern:" + p.name)
		}
	}
	if f.rules.mutationGuard && hasAnyPrefix(cleaned, []string{"update", "delete"}) {
		if !strings.Contains(cleaned, " where ") {
			return reject(RuleMutationWithoutWhere)
		}
	}
	return Verdict{Allowed: true}
}

// Sanitize trims the statement and, under PolicyLegacy, appends a row limit
// when none is present. Applying it twice gives the same result as once.
func (f *Filter) Sanitize(sql string) string {
	cleaned := strings.TrimSpace(sql)
	if cleaned == "" || !f.rules.appendLimit {
		return cleaned
	}
	if strings.Contains(strings.ToLower(cleaned), "limit") {
		return cleaned
	}
	cleaned = strings.TrimSpace(strings.TrimRight(cleaned, "; \t\r\n"))
	return fmt.Sprintf("%s LIMIT %d", cleaned, legacyRowLimit)
}

func (f *Filter) RejectionMessage() string {
	if f.AllowsMutations() {
		return rejectMutations
	}
	return rejectSelect
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalize collapses whitespace runs to single spaces, trims, and drops one
// trailing semicolon. The result is what the filter inspects.
func Normalize(sql string) string {
	collapsed := strings.TrimSpace(whitespaceRun.ReplaceAllString(sql, " "))
	return strings.TrimSuffix(collapsed, ";")
}

func reject(rule string) Verdict {
	return Verdict{Allowed: false, Rule: rule}
}

func hasAnyPrefix(value string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}
