package catalog

import (
	"fmt"

	"github.com/roach88/vsptd/internal/queryir"
	"github.com/roach88/vsptd/internal/triple"
)

// MetadataSchema names the metadata tables and their columns.
type MetadataSchema struct {
	AgentsTable      string `mapstructure:"agents_table" yaml:"agents_table"`
	AgentNameColumn  string `mapstructure:"agent_name_column" yaml:"agent_name_column"`
	AgentTableColumn string `mapstructure:"agent_table_column" yaml:"agent_table_column"`

	VocabularyTable        string `mapstructure:"vocabulary_table" yaml:"vocabulary_table"`
	VocabularyPrefixColumn string `mapstructure:"vocabulary_prefix_column" yaml:"vocabulary_prefix_column"`
	VocabularyNameColumn   string `mapstructure:"vocabulary_name_column" yaml:"vocabulary_name_column"`
	VocabularyAgentColumn  string `mapstructure:"vocabulary_agent_column" yaml:"vocabulary_agent_column"`
	VocabularyColumnColumn string `mapstructure:"vocabulary_column_column" yaml:"vocabulary_column_column"`
}

// DefaultMetadataSchema returns AGENTS(NAME, DB) and
// ONTOLOGY(PREFIX, NAME, AGENT, CLN).
func DefaultMetadataSchema() MetadataSchema {
	return MetadataSchema{
		AgentsTable:      "AGENTS",
		AgentNameColumn:  "NAME",
		AgentTableColumn: "DB",

		VocabularyTable:        "ONTOLOGY",
		VocabularyPrefixColumn: "PREFIX",
		VocabularyNameColumn:   "NAME",
		VocabularyAgentColumn:  "AGENT",
		VocabularyColumnColumn: "CLN",
	}
}

// Validate checks every configured name as an identifier.
func (m MetadataSchema) Validate() error {
	for field, name := range map[string]string{
		"agents_table":             m.AgentsTable,
		"agent_name_column":        m.AgentNameColumn,
		"agent_table_column":       m.AgentTableColumn,
		"vocabulary_table":         m.VocabularyTable,
		"vocabulary_prefix_column": m.VocabularyPrefixColumn,
		"vocabulary_name_column":   m.VocabularyNameColumn,
		"vocabulary_agent_column":  m.VocabularyAgentColumn,
		"vocabulary_column_column": m.VocabularyColumnColumn,
	} {
		if err := queryir.ValidateIdentifier(name); err != nil {
			return fmt.Errorf("metadata schema %s: %w", field, err)
		}
	}
	return nil
}

// agentTableQuery selects the table owned by agent. Metadata lookups read
// one row and never order by rowid, so metadata tables may lack one.
func (m MetadataSchema) agentTableQuery(agent string) queryir.Select {
	return queryir.Select{
		From:    m.AgentsTable,
		Columns: []string{m.AgentTableColumn},
		Filter:  queryir.Equals{Column: m.AgentNameColumn, Value: triple.String(agent)},

		WithoutRowID: true,
	}
}

// vocabularyQuery selects the column bound to (prefix, name) for agent.
func (m MetadataSchema) vocabularyQuery(prefix, name, agent string) queryir.Select {
	return queryir.Select{
		From:    m.VocabularyTable,
		Columns: []string{m.VocabularyColumnColumn},
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.Equals{Column: m.VocabularyPrefixColumn, Value: triple.String(prefix)},
			queryir.Equals{Column: m.VocabularyNameColumn, Value: triple.String(name)},
			queryir.Equals{Column: m.VocabularyAgentColumn, Value: triple.String(agent)},
		}},
		WithoutRowID: true,
	}
}

// text renders a scanned cell as a name. Numbers use their literal form.
func text(v any) string {
	switch val := triple.FromDriver(v).(type) {
	case triple.String:
		return string(val)
	case triple.Number:
		return val.Literal()
	}
	return ""
}
