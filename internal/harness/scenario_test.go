package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes a payload file and a scenario referencing it
// relatively, returning the scenario path.
func writeScenario(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "payloads"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "payloads", "a.json"), []byte(`{"uuid": "a"}`), 0644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "scenario.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: test_scenario
description: "Test scenario for validation"
store: sqlite
steps:
  - payload: payloads/a.json
    expect: { status: ok, created: 1 }
assertions:
  - type: counts
    counts: { designs: 1 }
  - type: versions
    design: a
    count: 0
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	assert.Equal(t, StoreSQLite, scenario.Store)
	require.Len(t, scenario.Steps, 1)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "payloads", "a.json"), scenario.Steps[0].Payload)
	require.NotNil(t, scenario.Steps[0].Expect)
	assert.Equal(t, 1, *scenario.Steps[0].Expect.Created)
	assert.Nil(t, scenario.Steps[0].Expect.Updated)
	require.Len(t, scenario.Assertions, 2)
	assert.Equal(t, map[string]int{"designs": 1}, scenario.Assertions[0].Counts)
	assert.Equal(t, 0, *scenario.Assertions[1].Count)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: "Misspelled key"
steps:
  - payload: payloads/a.json
assertion:
  - type: counts
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
	assert.Contains(t, err.Error(), "assertion")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing name",
			body:    "description: d\nsteps:\n  - payload: payloads/a.json\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			body:    "name: n\nsteps:\n  - payload: payloads/a.json\n",
			wantErr: "description is required",
		},
		{
			name:    "unknown store",
			body:    "name: n\ndescription: d\nstore: mysql\nsteps:\n  - payload: payloads/a.json\n",
			wantErr: `unknown store "mysql"`,
		},
		{
			name:    "no steps",
			body:    "name: n\ndescription: d\n",
			wantErr: "steps list is required",
		},
		{
			name:    "empty payload",
			body:    "name: n\ndescription: d\nsteps:\n  - expect: { status: ok }\n",
			wantErr: "steps[0]: payload is required",
		},
		{
			name:    "payload not found",
			body:    "name: n\ndescription: d\nsteps:\n  - payload: payloads/b.json\n",
			wantErr: "steps[0]: payload file not found",
		},
		{
			name:    "bad status",
			body:    "name: n\ndescription: d\nsteps:\n  - payload: payloads/a.json\n    expect: { status: maybe }\n",
			wantErr: "status must be ok or error",
		},
		{
			name:    "code on success",
			body:    "name: n\ndescription: d\nsteps:\n  - payload: payloads/a.json\n    expect: { status: ok, code: CONFLICT }\n",
			wantErr: "code requires status error",
		},
		{
			name:    "counts on failure",
			body:    "name: n\ndescription: d\nsteps:\n  - payload: payloads/a.json\n    expect: { status: error, created: 0 }\n",
			wantErr: "created and updated require status ok",
		},
		{
			name:    "missing assertion type",
			body:    "name: n\ndescription: d\nsteps:\n  - payload: payloads/a.json\nassertions:\n  - component: a\n",
			wantErr: "assertions[0]: type is required",
		},
		{
			name:    "unknown assertion type",
			body:    "name: n\ndescription: d\nsteps:\n  - payload: payloads/a.json\nassertions:\n  - type: trace_order\n",
			wantErr: `unknown assertion type "trace_order"`,
		},
		{
			name:    "unknown count kind",
			body:    "name: n\ndescription: d\nsteps:\n  - payload: payloads/a.json\nassertions:\n  - type: counts\n    counts: { widgets: 1 }\n",
			wantErr: `unknown record kind "widgets"`,
		},
		{
			name:    "bom without totals",
			body:    "name: n\ndescription: d\nsteps:\n  - payload: payloads/a.json\nassertions:\n  - type: bom\n    component: a\n",
			wantErr: "totals is required for bom",
		},
		{
			name:    "used_in without component",
			body:    "name: n\ndescription: d\nsteps:\n  - payload: payloads/a.json\nassertions:\n  - type: used_in\n",
			wantErr: "component is required for used_in",
		},
		{
			name:    "versions with both subjects",
			body:    "name: n\ndescription: d\nsteps:\n  - payload: payloads/a.json\nassertions:\n  - type: versions\n    component: a\n    design: a\n    count: 1\n",
			wantErr: "exactly one of component or design",
		},
		{
			name:    "runs without count",
			body:    "name: n\ndescription: d\nsteps:\n  - payload: payloads/a.json\nassertions:\n  - type: runs\n",
			wantErr: "non-negative count is required for runs",
		},
		{
			name:    "runs with bad status",
			body:    "name: n\ndescription: d\nsteps:\n  - payload: payloads/a.json\nassertions:\n  - type: runs\n    status: pending\n    count: 1\n",
			wantErr: `unknown run status "pending"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
