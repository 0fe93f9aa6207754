package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fusionsync/internal/domain"
	"github.com/roach88/fusionsync/internal/testutil"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return scenario
}

func TestRun_BracketResync(t *testing.T) {
	scenario := loadTestScenario(t, "bracket_resync")

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Steps, 3)
	assert.Equal(t, "run-0001", result.Steps[0].RunID)
	assert.Len(t, result.Steps[0].Events, 8)
	assert.Equal(t, "run-0002", result.Steps[1].RunID)
	assert.Empty(t, result.Steps[1].Events)
	assert.Equal(t, "error", result.Steps[2].Status)
	assert.Equal(t, "SELF_REFERENCE", result.Steps[2].Code)
}

func TestRun_GearboxRevisionOnSQLite(t *testing.T) {
	scenario := loadTestScenario(t, "gearbox_revision")
	require.Equal(t, StoreSQLite, scenario.Store)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Equal(t, 11, result.Steps[0].Created)
	assert.Equal(t, 2, result.Steps[1].Created)
}

func TestRun_Deterministic(t *testing.T) {
	scenario := loadTestScenario(t, "bracket_resync")

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := MarshalTrace(scenario.Name, first)
	require.NoError(t, err)
	b, err := MarshalTrace(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_ReportsFailures(t *testing.T) {
	dir := t.TempDir()
	payloads, err := filepath.Abs(filepath.Join("testdata", "scenarios", "payloads"))
	require.NoError(t, err)

	content := `
name: wrong_expectations
description: "Every expectation here is wrong"
steps:
  - payload: ` + filepath.Join(payloads, "bracket.yaml") + `
    expect: { status: ok, created: 3 }
  - payload: ` + filepath.Join(payloads, "loop.json") + `
assertions:
  - type: counts
    counts: { components: 5 }
  - type: bom
    component: plate
    totals: { "bolt@1": 2 }
  - type: used_in
    component: bolt
    parents: []
  - type: versions
    design: bracket
    count: 4
  - type: runs
    status: succeeded
    count: 2
`
	path := filepath.Join(dir, "wrong.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 7)

	joined := strings.Join(result.Errors, "\n")
	assert.Contains(t, joined, "step 1 (bracket.yaml): expected 3 created, got 8")
	assert.Contains(t, joined, "step 2 (loop.json): expected success, got SELF_REFERENCE")
	assert.Contains(t, joined, "Expected: components=5")
	assert.Contains(t, joined, "Actual: {bolt@1=4}")
	assert.Contains(t, joined, "Actual: [plate@1]")
	assert.Contains(t, joined, "Actual: 1 versions")
	assert.Contains(t, joined, "Actual: 1 succeeded runs")
}

func TestRun_UnknownComponentFailsAssertion(t *testing.T) {
	dir := t.TempDir()
	payload, err := filepath.Abs(filepath.Join("testdata", "scenarios", "payloads", "bracket.yaml"))
	require.NoError(t, err)

	content := `
name: missing_component
description: "Reports on an unknown component fail"
steps:
  - payload: ` + payload + `
assertions:
  - type: bom
    component: axle
    totals: {}
`
	path := filepath.Join(dir, "missing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "assertion[0]")
	assert.Contains(t, result.Errors[0], "axle")
}

func TestCheckExpect(t *testing.T) {
	ok := StepResult{Status: "ok", Created: 2, Updated: 1}
	failed := StepResult{Status: "error", Code: "MISSING_IDENTIFIER"}

	tests := []struct {
		name   string
		sr     StepResult
		expect *Expect
		want   []string
	}{
		{"nil expect success", ok, nil, nil},
		{"nil expect failure", failed, nil, []string{"expected success, got MISSING_IDENTIFIER"}},
		{"counts match", ok, &Expect{Status: "ok", Created: testutil.Ptr(2), Updated: testutil.Ptr(1)}, nil},
		{"created mismatch", ok, &Expect{Status: "ok", Created: testutil.Ptr(0)}, []string{"expected 0 created, got 2"}},
		{"updated mismatch", ok, &Expect{Status: "ok", Updated: testutil.Ptr(3)}, []string{"expected 3 updated, got 1"}},
		{"code match", failed, &Expect{Status: "error", Code: "MISSING_IDENTIFIER"}, nil},
		{"any error", failed, &Expect{Status: "error"}, nil},
		{"code mismatch", failed, &Expect{Status: "error", Code: "SELF_REFERENCE"}, []string{"expected code SELF_REFERENCE, got MISSING_IDENTIFIER"}},
		{"status mismatch", failed, &Expect{Status: "ok"}, []string{"expected status ok, got error MISSING_IDENTIFIER"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checkExpect(tt.sr, tt.expect))
		})
	}
}

func TestMarshalTrace_OmitsEntityIDs(t *testing.T) {
	result := NewResult()
	result.Steps = append(result.Steps, StepResult{
		Step:   1,
		File:   "a.json",
		RunID:  "run-0001",
		Status: "ok",
		Events: []domain.SyncEvent{
			{RunID: "run-0001", Seq: 1, Kind: domain.KindComponent, EntityID: 42, ExternalKey: "bolt", Action: domain.ActionUpdated},
		},
	})

	data, err := MarshalTrace("one", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario":"one","steps":[{"events":[{"action":"updated","key":"bolt","kind":"component","seq":1}],"file":"a.json","run":"run-0001","status":"ok","step":1}]}`,
		string(data))
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertBOM,
		Subject:  "housing@1",
		Expected: "{bolt@1=14}",
		Actual:   "{bolt@1=12}",
	}
	assert.Equal(t, "Assertion failed: bom (housing@1)\n  Expected: {bolt@1=14}\n  Actual: {bolt@1=12}", err.Error())
}
