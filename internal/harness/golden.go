package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/revgraph/internal/ir"
)

// toCanonicalMap converts a snapshot to a map[string]any for canonical JSON
// serialization. ir.MarshalCanonical only handles IR values and primitives,
// so revision numbers are widened to int64 here.
func (s *Snapshot) toCanonicalMap(scenarioName string) map[string]any {
	nodes := make([]any, len(s.Nodes))
	for i, n := range s.Nodes {
		nodes[i] = map[string]any{
			"number":   int64(n.Number),
			"parent":   int64(n.Parent),
			"child":    int64(n.Child),
			"branches": numberList(n.Branches),
		}
	}

	revisions := make([]any, len(s.Revisions))
	for i, r := range s.Revisions {
		entities := make([]any, len(r.Entities))
		for j, e := range r.Entities {
			entities[j] = string(e)
		}
		rev := map[string]any{
			"number":   int64(r.Number),
			"parent":   int64(r.Parent),
			"kind":     string(r.Kind),
			"entities": entities,
		}
		if !r.Target.IsNone() {
			rev["target"] = int64(r.Target)
		}
		if r.Origin != "" {
			rev["origin"] = r.Origin
		}
		revisions[i] = rev
	}

	steps := make([]any, len(s.Steps))
	for i, st := range s.Steps {
		steps[i] = map[string]any{
			"op":       st.Op,
			"revision": int64(st.Revision),
		}
	}

	states := make(map[string]any, len(s.States))
	for e, obj := range s.States {
		states[string(e)] = obj
	}

	return map[string]any{
		"scenario_name": scenarioName,
		"steps":         steps,
		"nodes":         nodes,
		"current":       int64(s.Current),
		"tip":           int64(s.Tip),
		"can_undo":      s.CanUndo,
		"can_redo":      s.CanRedo,
		"revisions":     revisions,
		"states":        states,
	}
}

func numberList(ns []ir.RevisionNumber) []any {
	out := make([]any, len(ns))
	for i, n := range ns {
		out[i] = int64(n)
	}
	return out
}

// SnapshotJSON renders a result's snapshot as canonical JSON, the format
// golden files are stored in.
func SnapshotJSON(scenarioName string, result *Result) ([]byte, error) {
	return ir.MarshalCanonical(result.Snapshot.toCanonicalMap(scenarioName))
}

// RunWithGolden executes a scenario and compares the snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
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

// AssertGolden compares the given result's snapshot against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := SnapshotJSON(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
