package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/fusionsync/internal/payload"
)

// TraceSnapshot captures the event trace of a scenario execution.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario"`
	Steps        []StepResult `json:"steps"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// Entity ids are left out: they depend on the store's id allocation.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	steps := make([]any, len(s.Steps))
	for i, step := range s.Steps {
		events := make([]any, len(step.Events))
		for j, e := range step.Events {
			events[j] = map[string]any{
				"seq":    e.Seq,
				"kind":   string(e.Kind),
				"key":    e.ExternalKey,
				"action": string(e.Action),
			}
		}
		stepMap := map[string]any{
			"step":   step.Step,
			"file":   step.File,
			"run":    step.RunID,
			"status": step.Status,
			"events": events,
		}
		if step.Code != "" {
			stepMap["code"] = step.Code
		}
		steps[i] = stepMap
	}

	return map[string]any{
		"scenario": s.ScenarioName,
		"steps":    steps,
	}
}

// MarshalTrace renders the trace of result as canonical JSON.
func MarshalTrace(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Steps:        result.Steps,
	}
	return payload.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
