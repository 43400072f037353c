package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/vsptd/internal/engine"
	"github.com/roach88/vsptd/internal/ruleerr"
)

// Scenario defines a rule scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// MetadataSetup is the SQL script that builds the metadata store.
	MetadataSetup string `yaml:"metadata_setup"`

	// StoreSetup is the SQL script that builds the agent's data store.
	StoreSetup string `yaml:"store_setup"`

	Context ScenarioContext `yaml:"context"`

	// Steps run in order. A failing rule does not stop the scenario.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final data store.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ScenarioContext is the agent context shared by every step. Store
// locators are supplied by the harness.
type ScenarioContext struct {
	Agent     string `yaml:"agent"`
	Triples   string `yaml:"triples,omitempty"`
	Reference string `yaml:"reference,omitempty"`
}

// Step evaluates one rule.
type Step struct {
	Rule string `yaml:"rule"`

	// Triples, when set, replaces the primary pool for this step.
	Triples *string `yaml:"triples,omitempty"`

	// Expect is optional. Without it the step only contributes to the trace.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies how a step must end.
type Expect struct {
	// Outcome is an engine outcome, e.g. "found" or "already_exists".
	Outcome string `yaml:"outcome,omitempty"`

	// Triples is the expected find result in triplex form.
	Triples *string `yaml:"triples,omitempty"`

	// Error is an expected error code, e.g. "UNRESOLVED_COLUMN".
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the final state of the data store.
type Assertion struct {
	// Type specifies the assertion type:
	// - "row_count": count rows of Table matching Where
	Type string `yaml:"type"`

	Table string `yaml:"table"`

	// Where filters rows by column equality. Empty means every row.
	Where map[string]any `yaml:"where,omitempty"`

	Count int `yaml:"count"`
}

// Assertion type constants.
const (
	AssertRowCount = "row_count"
)

var knownOutcomes = map[string]bool{
	string(engine.OutcomeNoMatch):       true,
	string(engine.OutcomeFound):         true,
	string(engine.OutcomeInserted):      true,
	string(engine.OutcomeAlreadyExists): true,
	string(engine.OutcomeDeleted):       true,
	string(engine.OutcomeNotFound):      true,
}

var knownCodes = map[string]bool{
	string(ruleerr.MalformedRule):        true,
	string(ruleerr.MalformedAction):      true,
	string(ruleerr.UnresolvedTriplet):    true,
	string(ruleerr.UnresolvedColumn):     true,
	string(ruleerr.StoreNotFound):        true,
	string(ruleerr.UnsupportedStoreKind): true,
	string(ruleerr.UnknownAgent):         true,
	string(ruleerr.InvalidIdentifier):    true,
	string(ruleerr.MalformedTriples):     true,
	string(ruleerr.MalformedCondition):   true,
	string(ruleerr.InvalidContext):       true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.MetadataSetup == "" {
		return fmt.Errorf("metadata_setup is required")
	}
	if s.Context.Agent == "" {
		return fmt.Errorf("context.agent is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps must contain at least one step")
	}

	for i, step := range s.Steps {
		if err := validateStep(step, i); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a, i); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step Step, index int) error {
	if step.Rule == "" {
		return fmt.Errorf("steps[%d]: rule is required", index)
	}
	if step.Expect == nil {
		return nil
	}

	e := step.Expect
	switch {
	case e.Outcome == "" && e.Error == "":
		return fmt.Errorf("steps[%d]: expect needs an outcome or an error", index)
	case e.Outcome != "" && e.Error != "":
		return fmt.Errorf("steps[%d]: expect cannot name both an outcome and an error", index)
	case e.Outcome != "" && !knownOutcomes[e.Outcome]:
		return fmt.Errorf("steps[%d]: unknown outcome %q", index, e.Outcome)
	case e.Error != "" && !knownCodes[e.Error]:
		return fmt.Errorf("steps[%d]: unknown error code %q", index, e.Error)
	case e.Triples != nil && e.Outcome != string(engine.OutcomeFound):
		return fmt.Errorf("steps[%d]: expect.triples requires outcome %q", index, engine.OutcomeFound)
	}
	return nil
}

func validateAssertion(a Assertion, index int) error {
	switch a.Type {
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
