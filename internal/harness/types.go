package harness

import "github.com/roach88/revgraph/internal/ir"

// StepOutcome records what one step did.
type StepOutcome struct {
	Op string `json:"op"`
	// Revision is the revision a step produced or moved to, ir.None when
	// the step was a no-op (undo with nothing to undo, back at the start).
	Revision ir.RevisionNumber `json:"revision"`
}

// NodeSnapshot is a node of the track as captured at the end of a scenario.
type NodeSnapshot struct {
	Number   ir.RevisionNumber   `json:"number"`
	Parent   ir.RevisionNumber   `json:"parent"`
	Child    ir.RevisionNumber   `json:"child"`
	Branches []ir.RevisionNumber `json:"branches"`
}

// RevisionSnapshot summarizes a stored revision.
type RevisionSnapshot struct {
	Number   ir.RevisionNumber `json:"number"`
	Parent   ir.RevisionNumber `json:"parent"`
	Kind     ir.Kind           `json:"kind"`
	Target   ir.RevisionNumber `json:"target,omitempty"`
	Origin   string            `json:"origin,omitempty"`
	Entities []ir.EntityID     `json:"entities"`
}

// Snapshot is the observable state of a scenario after its last step.
type Snapshot struct {
	Steps     []StepOutcome             `json:"steps"`
	Nodes     []NodeSnapshot            `json:"nodes"`
	Current   ir.RevisionNumber         `json:"current"`
	Tip       ir.RevisionNumber         `json:"tip"`
	CanUndo   bool                      `json:"can_undo"`
	CanRedo   bool                      `json:"can_redo"`
	Revisions []RevisionSnapshot        `json:"revisions"`
	States    map[ir.EntityID]ir.Object `json:"states"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if all assertions hold.
	Pass bool `json:"pass"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Snapshot is the final track and graph state, used for golden comparison.
	Snapshot Snapshot `json:"snapshot"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
		Snapshot: Snapshot{
			Steps:     []StepOutcome{},
			Nodes:     []NodeSnapshot{},
			Revisions: []RevisionSnapshot{},
			States:    make(map[ir.EntityID]ir.Object),
		},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a step outcome.
func (r *Result) AddStep(op string, rev ir.RevisionNumber) {
	r.Snapshot.Steps = append(r.Snapshot.Steps, StepOutcome{Op: op, Revision: rev})
}
