package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a sync scenario: payload files applied in order and
// assertions on the resulting database.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Store selects the backing store: "memory" (default) or "sqlite".
	Store string `yaml:"store,omitempty"`

	// Steps are synced in order, each in its own run.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final database state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step syncs one payload file.
type Step struct {
	// Payload is the payload file path, relative to the scenario file.
	Payload string `yaml:"payload"`

	// Expect specifies the expected sync outcome.
	// If nil, the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Status is "ok" or "error".
	Status string `yaml:"status"`

	// Code is the expected error code of a failed step.
	Code string `yaml:"code,omitempty"`

	// Created and Updated are checked only when set.
	Created *int `yaml:"created,omitempty"`
	Updated *int `yaml:"updated,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "counts": stored record counts per kind
	// - "bom": exploded bill of materials totals
	// - "used_in": assemblies containing a component revision
	// - "versions": synced version count of a component or design
	// - "runs": number of ledger runs
	Type string `yaml:"type"`

	// Component is the component uuid (bom, used_in, versions).
	Component string `yaml:"component,omitempty"`

	// Design is the design uuid (versions).
	Design string `yaml:"design,omitempty"`

	// Version selects the component revision; 0 means latest (bom, used_in).
	Version int `yaml:"version,omitempty"`

	// Counts maps a record kind to its expected count (counts).
	// Subset match - only specified kinds are validated.
	Counts map[string]int `yaml:"counts,omitempty"`

	// Totals maps "uuid@version" to its total quantity (bom).
	Totals map[string]int `yaml:"totals,omitempty"`

	// Parents lists the expected "uuid@version" assemblies in report order
	// (used_in).
	Parents []string `yaml:"parents,omitempty"`

	// Count is the expected number (versions, runs).
	Count *int `yaml:"count,omitempty"`

	// Status filters runs by status (runs).
	Status string `yaml:"status,omitempty"`
}

// Assertion type constants.
const (
	AssertCounts   = "counts"
	AssertBOM      = "bom"
	AssertUsedIn   = "used_in"
	AssertVersions = "versions"
	AssertRuns     = "runs"
)

// Store kinds.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// countKinds are the keys accepted by a counts assertion.
var countKinds = map[string]bool{
	"users":               true,
	"components":          true,
	"component_revisions": true,
	"assembly_edges":      true,
	"designs":             true,
	"design_revisions":    true,
}

// LoadScenario reads and parses a scenario YAML file, resolving payload
// paths relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	baseDir := filepath.Dir(path)
	for i, step := range scenario.Steps {
		if step.Payload != "" && !filepath.IsAbs(step.Payload) {
			scenario.Steps[i].Payload = filepath.Join(baseDir, step.Payload)
		}
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

	switch s.Store {
	case "", StoreMemory, StoreSQLite:
	default:
		return fmt.Errorf("unknown store %q (want %s or %s)", s.Store, StoreMemory, StoreSQLite)
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Payload == "" {
			return fmt.Errorf("steps[%d]: payload is required", i)
		}
		if _, err := os.Stat(step.Payload); os.IsNotExist(err) {
			return fmt.Errorf("steps[%d]: payload file not found: %s", i, step.Payload)
		}
		if step.Expect == nil {
			continue
		}
		switch step.Expect.Status {
		case "ok":
			if step.Expect.Code != "" {
				return fmt.Errorf("steps[%d].expect: code requires status error", i)
			}
		case "error":
			if step.Expect.Created != nil || step.Expect.Updated != nil {
				return fmt.Errorf("steps[%d].expect: created and updated require status ok", i)
			}
		default:
			return fmt.Errorf("steps[%d].expect: status must be ok or error, got %q", i, step.Expect.Status)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertCounts:
		if len(a.Counts) == 0 {
			return fmt.Errorf("assertions[%d]: counts is required for counts", index)
		}
		for kind := range a.Counts {
			if !countKinds[kind] {
				return fmt.Errorf("assertions[%d]: unknown record kind %q", index, kind)
			}
		}
	case AssertBOM:
		if a.Component == "" {
			return fmt.Errorf("assertions[%d]: component is required for bom", index)
		}
		if a.Totals == nil {
			return fmt.Errorf("assertions[%d]: totals is required for bom (use {} for a leaf)", index)
		}
	case AssertUsedIn:
		if a.Component == "" {
			return fmt.Errorf("assertions[%d]: component is required for used_in", index)
		}
	case AssertVersions:
		if (a.Component == "") == (a.Design == "") {
			return fmt.Errorf("assertions[%d]: exactly one of component or design is required for versions", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for versions", index)
		}
	case AssertRuns:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for runs", index)
		}
		switch a.Status {
		case "", "succeeded", "failed":
		default:
			return fmt.Errorf("assertions[%d]: unknown run status %q", index, a.Status)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
