package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/revgraph/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes the executed steps to help debug the failure.
type AssertionError struct {
	Type     string        // Assertion type for categorization
	Expected string        // Human-readable expected outcome
	Actual   string        // Human-readable actual outcome
	Steps    []StepOutcome // Executed steps for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nSteps:\n")
	for i, s := range e.Steps {
		fmt.Fprintf(&buf, "  [%d] %s -> %s\n", i+1, s.Op, s.Revision)
	}

	return buf.String()
}

func toNumbers(ns []uint64) []ir.RevisionNumber {
	out := make([]ir.RevisionNumber, len(ns))
	for i, n := range ns {
		out[i] = ir.RevisionNumber(n)
	}
	return out
}

func nodeNumbers(nodes []NodeSnapshot) []ir.RevisionNumber {
	out := make([]ir.RevisionNumber, len(nodes))
	for i, n := range nodes {
		out[i] = n.Number
	}
	return out
}

// assertNodes checks the track's nodes, oldest first.
func assertNodes(snap *Snapshot, a Assertion) error {
	want := toNumbers(a.Nodes)
	got := nodeNumbers(snap.Nodes)
	if slices.Equal(want, got) {
		return nil
	}
	return &AssertionError{
		Type:     AssertNodes,
		Expected: fmt.Sprint(want),
		Actual:   fmt.Sprint(got),
		Steps:    snap.Steps,
	}
}

// assertCurrent checks the node under the cursor.
func assertCurrent(snap *Snapshot, a Assertion) error {
	want := ir.RevisionNumber(a.Revision)
	if snap.Current == want {
		return nil
	}
	return &AssertionError{
		Type:     AssertCurrent,
		Expected: want.String(),
		Actual:   snap.Current.String(),
		Steps:    snap.Steps,
	}
}

// assertBranches checks the secondary branches of a node on the track.
func assertBranches(snap *Snapshot, a Assertion) error {
	at := ir.RevisionNumber(a.Revision)
	want := toNumbers(a.Nodes)
	for _, n := range snap.Nodes {
		if n.Number != at {
			continue
		}
		if slices.Equal(want, n.Branches) {
			return nil
		}
		return &AssertionError{
			Type:     AssertBranches,
			Expected: fmt.Sprintf("%s branches %v", at, want),
			Actual:   fmt.Sprintf("%s branches %v", at, n.Branches),
			Steps:    snap.Steps,
		}
	}
	return &AssertionError{
		Type:     AssertBranches,
		Expected: fmt.Sprintf("node %s on the track", at),
		Actual:   fmt.Sprintf("nodes %v", nodeNumbers(snap.Nodes)),
		Steps:    snap.Steps,
	}
}

// assertState checks an entity's attributes at the tip (exact match).
func assertState(snap *Snapshot, a Assertion) error {
	entity := ir.EntityID(a.Entity)
	got, exists := snap.States[entity]

	if a.Absent {
		if !exists {
			return nil
		}
		return &AssertionError{
			Type:     AssertState,
			Expected: fmt.Sprintf("%s absent", entity),
			Actual:   formatState(got),
			Steps:    snap.Steps,
		}
	}

	want, err := ir.ObjectFromMap(a.Expect)
	if err != nil {
		return fmt.Errorf("state %s: invalid expect: %w", entity, err)
	}
	if exists && ir.Equal(want, got) {
		return nil
	}
	actual := "absent"
	if exists {
		actual = formatState(got)
	}
	return &AssertionError{
		Type:     AssertState,
		Expected: formatState(want),
		Actual:   actual,
		Steps:    snap.Steps,
	}
}

func formatState(obj ir.Object) string {
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}

// assertFlag checks can_undo or can_redo.
func assertFlag(snap *Snapshot, a Assertion) error {
	got := snap.CanUndo
	if a.Type == AssertCanRedo {
		got = snap.CanRedo
	}
	if got == *a.Value {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprint(*a.Value),
		Actual:   fmt.Sprint(got),
		Steps:    snap.Steps,
	}
}

// assertRevisionCount checks the number of revisions in the store.
func assertRevisionCount(snap *Snapshot, a Assertion) error {
	if len(snap.Revisions) == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertRevisionCount,
		Expected: fmt.Sprintf("%d revisions", a.Count),
		Actual:   fmt.Sprintf("%d revisions", len(snap.Revisions)),
		Steps:    snap.Steps,
	}
}

// EvaluateAssertions evaluates all assertions against the result's snapshot.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string
	snap := &result.Snapshot

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertNodes:
			err = assertNodes(snap, assertion)
		case AssertCurrent:
			err = assertCurrent(snap, assertion)
		case AssertBranches:
			err = assertBranches(snap, assertion)
		case AssertState:
			err = assertState(snap, assertion)
		case AssertCanUndo, AssertCanRedo:
			if assertion.Value == nil {
				err = fmt.Errorf("assertion[%d]: %s requires a value", i, assertion.Type)
			} else {
				err = assertFlag(snap, assertion)
			}
		case AssertRevisionCount:
			err = assertRevisionCount(snap, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
