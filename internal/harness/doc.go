// Package harness runs sync scenarios end to end against a fresh store.
//
// A scenario replays a list of payload files through the reconciliation
// engine, checks each sync outcome, then asserts on the stored records and
// reports. The per-step event trace is deterministic and can be compared
// against a golden file.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: bracket_resync
//	description: "Resyncing an unchanged payload creates nothing"
//	store: memory            # or sqlite, default memory
//	steps:
//	  - payload: payloads/bracket.yaml
//	    expect: { status: ok, created: 8 }
//	  - payload: payloads/bracket.yaml
//	    expect: { status: ok, created: 0, updated: 0 }
//	assertions:
//	  - type: counts
//	    counts: { components: 2, assembly_edges: 1 }
//	  - type: bom
//	    component: plate
//	    totals: { "bolt@1": 4 }
//
// Payload paths are relative to the scenario file. Files ending in .yaml or
// .yml are decoded as YAML, everything else as JSON.
//
// # Assertion Types
//
//   - counts: stored record counts per kind (subset match)
//   - bom: total quantities of an exploded bill of materials (exact match)
//   - used_in: assemblies containing a component revision, nearest first
//   - versions: number of synced versions of a component or design
//   - runs: number of ledger runs, optionally filtered by status
//
// # Determinism
//
// Every scenario runs with a fake clock starting at 2024-01-01T00:00:00Z and
// sequential run ids (run-0001, run-0002, ...), so traces are stable across
// runs and machines.
//
// # Golden Files
//
// RunWithGolden and AssertGolden compare the trace as canonical JSON
// against testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
