package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a filter scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Primary names the pipeline run for every event. Empty selects the
	// first definition.
	Primary string `yaml:"primary,omitempty"`

	// MaxDepth overrides the nested invocation limit.
	MaxDepth int `yaml:"max_depth,omitempty"`

	// Definitions holds the pipeline definitions document inline.
	Definitions yaml.Node `yaml:"definitions,omitempty"`

	// DefinitionsFile points at a JSON, YAML or CUE definitions file.
	DefinitionsFile string `yaml:"definitions_file,omitempty"`

	// Batches are filtered in order.
	Batches []BatchStep `yaml:"batches"`

	// Assertions validate the whole run.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// BatchStep is one batch of input events.
type BatchStep struct {
	// Events are records in the codec layout ("@timestamp", "@metadata").
	Events []map[string]any `yaml:"events"`

	// Expect checks the batch result. If nil, no validation is performed.
	Expect *BatchExpect `yaml:"expect,omitempty"`
}

// BatchExpect specifies the expected batch result.
type BatchExpect struct {
	// Outcomes lists "transformed" or "dropped" per event, in order.
	Outcomes []string `yaml:"outcomes,omitempty"`

	// Error is a substring of the expected batch error. A batch with an
	// expected error produces no outcomes.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "outcome_count": Count events with Outcome
	// - "matched_count": Count match notifications
	// - "field_equals": Check Field of event Index in Batch equals Value
	// - "field_absent": Check Field of event Index in Batch is not set
	// - "cycle": Check the registry reported a cycle with Path
	Type string `yaml:"type"`

	Outcome string `yaml:"outcome,omitempty"`
	Count   int    `yaml:"count,omitempty"`

	Batch int    `yaml:"batch,omitempty"`
	Index int    `yaml:"index,omitempty"`
	Field string `yaml:"field,omitempty"`
	Value any    `yaml:"value,omitempty"`

	Path []string `yaml:"path,omitempty"`
}

// Assertion type constants.
const (
	AssertOutcomeCount = "outcome_count"
	AssertMatchedCount = "matched_count"
	AssertFieldEquals  = "field_equals"
	AssertFieldAbsent  = "field_absent"
	AssertCycle        = "cycle"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.DefinitionsFile != "" && !filepath.IsAbs(scenario.DefinitionsFile) {
		scenario.DefinitionsFile = filepath.Join(filepath.Dir(path), scenario.DefinitionsFile)
	}
	if scenario.DefinitionsFile != "" {
		if _, err := os.Stat(scenario.DefinitionsFile); err != nil {
			return nil, fmt.Errorf("invalid scenario: definitions file not found: %s", scenario.DefinitionsFile)
		}
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields to catch typos like "assertion:" vs "assertions:"
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

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	inline := !s.Definitions.IsZero()
	switch {
	case inline && s.DefinitionsFile != "":
		return fmt.Errorf("definitions and definitions_file are mutually exclusive")
	case !inline && s.DefinitionsFile == "":
		return fmt.Errorf("definitions or definitions_file is required")
	}

	if len(s.Batches) == 0 {
		return fmt.Errorf("batches list is required and must be non-empty")
	}
	for i, b := range s.Batches {
		if b.Events == nil {
			return fmt.Errorf("batches[%d]: events is required (use empty list if no events)", i)
		}
		if b.Expect == nil {
			continue
		}
		if b.Expect.Error != "" && len(b.Expect.Outcomes) > 0 {
			return fmt.Errorf("batches[%d].expect: error and outcomes are mutually exclusive", i)
		}
		if len(b.Expect.Outcomes) > 0 && len(b.Expect.Outcomes) != len(b.Events) {
			return fmt.Errorf("batches[%d].expect: %d outcomes for %d events", i, len(b.Expect.Outcomes), len(b.Events))
		}
		for j, o := range b.Expect.Outcomes {
			if !validOutcome(o) {
				return fmt.Errorf("batches[%d].expect.outcomes[%d]: unknown outcome %q", i, j, o)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, len(s.Batches)); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, batches int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertOutcomeCount:
		if !validOutcome(a.Outcome) {
			return fmt.Errorf("assertions[%d]: unknown outcome %q for outcome_count", index, a.Outcome)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for outcome_count", index)
		}
	case AssertMatchedCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for matched_count", index)
		}
	case AssertFieldEquals, AssertFieldAbsent:
		if a.Field == "" {
			return fmt.Errorf("assertions[%d]: field is required for %s", index, a.Type)
		}
		if a.Batch < 0 || a.Batch >= batches {
			return fmt.Errorf("assertions[%d]: batch %d out of range", index, a.Batch)
		}
	case AssertCycle:
		if len(a.Path) < 2 {
			return fmt.Errorf("assertions[%d]: path needs at least two pipelines for cycle", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func validOutcome(o string) bool {
	return o == "transformed" || o == "dropped"
}
