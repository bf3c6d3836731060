package nl2sql

import (
	"errors"
	"fmt"
	"strings"
)

type StatementKind string

const (
	KindSelect StatementKind = "SELECT"
	KindInsert StatementKind = "INSERT"
	KindUpdate StatementKind = "UPDATE"
	KindDelete StatementKind = "DELETE"
)

// Mode controls how the target statement kind is chosen.
type Mode int

const (
	// ModeSelectOnly always asks for a SELECT.
	ModeSelectOnly Mode = iota
	// ModeVerbRouted picks the kind from the first word of the question.
	ModeVerbRouted
)

var ErrEmptyQuestion = errors.New("question is required")

var verbBuckets = map[string]StatementKind{
	"add":      KindInsert,
	"create":   KindInsert,
	"insert":   KindInsert,
	"new":      KindInsert,
	"make":     KindInsert,
	"generate": KindInsert,
	"update":   KindUpdate,
	"change":   KindUpdate,
	"modify":   KindUpdate,
	"delete":   KindDelete,
	"remove":   KindDelete,
}

// DetectStatementKind matches the first whitespace-delimited word of the
// question, case-insensitively, against fixed verb buckets. There is no
// stemming: "adding" and "updates" fall through to SELECT.
func DetectStatementKind(question string) StatementKind {
	fields := strings.Fields(question)
	if len(fields) == 0 {
		return KindSelect
	}
	if kind, ok := verbBuckets[strings.ToLower(fields[0])]; ok {
		return kind
	}
	return KindSelect
}

type Prompt struct {
	Text string
	Kind StatementKind
}

type PromptBuilder struct {
	catalog Catalog
	mode    Mode
}

func NewPromptBuilder(catalog Catalog, mode Mode) *PromptBuilder {
	return &PromptBuilder{catalog: catalog, mode: mode}
}

func (b *PromptBuilder) Catalog() Catalog {
	return b.catalog
}

func (b *PromptBuilder) Build(question string) (Prompt, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Prompt{}, ErrEmptyQuestion
	}
	kind := KindSelect
	if b.mode == ModeVerbRouted {
		kind = DetectStatementKind(question)
	}

	dialect := b.catalog.Dialect
	var text strings.Builder
	fmt.Fprintf(&text, "You are a %s expert. Convert the following natural language question to a single %s statement.\n\n", dialect, kind)
	text.WriteString("Database Schema:\n")
	text.WriteString(b.catalog.Describe())
	text.WriteString("\n\nRules:\n")
	for i, rule := range rulesFor(kind, dialect) {
		fmt.Fprintf(&text, "%d. %s\n", i+1, rule)
	}
	fmt.Fprintf(&text, "\nQuestion: %q\n\nSQL Query:", question)

	return Prompt{Text: text.String(), Kind: kind}, nil
}

func rulesFor(kind StatementKind, dialect string) []string {
	rules := []string{
		fmt.Sprintf("Return ONLY one valid %s %s statement", dialect, kind),
		"Do NOT include explanations or markdown formatting",
		"Use exact table and column names from the schema",
	}
	switch kind {
	case KindSelect:
		rules = append(rules,
			"Use proper table joins when needed",
			"Limit results to 100 rows maximum",
		)
	case KindInsert:
		rules = append(rules,
			"Omit SERIAL primary key columns so the database assigns them",
			"Use CURRENT_TIMESTAMP for created_at and order_date when no value is given",
		)
	case KindUpdate, KindDelete:
		rules = append(rules,
			"Always include a WHERE clause that targets specific rows",
			"Never affect every row of a table",
		)
	}
	return rules
}
