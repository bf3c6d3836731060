package nl2sql

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed schema.yaml
var defaultCatalogYAML []byte

type Column struct {
	Name       string `yaml:"name" json:"name"`
	Type       string `yaml:"type" json:"type"`
	References string `yaml:"references,omitempty" json:"references,omitempty"`
}

type Table struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Columns     []Column `yaml:"columns" json:"columns"`
}

// Catalog describes the tables the model may reference.
type Catalog struct {
	Dialect string  `yaml:"dialect" json:"dialect"`
	Tables  []Table `yaml:"tables" json:"tables"`
}

func DefaultCatalog() Catalog {
	catalog, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded schema catalog: %v", err))
	}
	return catalog
}

func LoadCatalogFile(path string) (Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read schema catalog: %w", err)
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) (Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("decode schema catalog: %w", err)
	}
	if len(catalog.Tables) == 0 {
		return Catalog{}, fmt.Errorf("schema catalog has no tables")
	}
	seen := map[string]struct{}{}
	for _, table := range catalog.Tables {
		name := strings.TrimSpace(table.Name)
		if name == "" {
			return Catalog{}, fmt.Errorf("schema catalog has a table without a name")
		}
		if _, dup := seen[name]; dup {
			return Catalog{}, fmt.Errorf("schema catalog lists table %q twice", name)
		}
		seen[name] = struct{}{}
		if len(table.Columns) == 0 {
			return Catalog{}, fmt.Errorf("table %q has no columns", name)
		}
	}
	if strings.TrimSpace(catalog.Dialect) == "" {
		catalog.Dialect = "PostgreSQL"
	}
	return catalog, nil
}

// Describe renders one line per table, e.g.
// "- orders: order_id (SERIAL PRIMARY KEY), customer_id (INT), ...".
func (c Catalog) Describe() string {
	var b strings.Builder
	for i, table := range c.Tables {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(table.Name)
		b.WriteString(": ")
		for j, column := range table.Columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(column.Name)
			if column.Type != "" {
				b.WriteString(" (")
				b.WriteString(column.Type)
				b.WriteString(")")
			}
		}
	}
	return b.String()
}
