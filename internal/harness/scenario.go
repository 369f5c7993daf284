package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a history scenario.
// A scenario builds a revision graph step by step over a fresh store,
// drives a history track over it, and asserts on the resulting track.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Tracked lists the entities the history track follows.
	// An empty list is valid and yields an empty track.
	Tracked []string `yaml:"tracked"`

	// InnerObjects includes entities composed by tracked entities.
	InnerObjects bool `yaml:"inner_objects,omitempty"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the track after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one operation of a scenario.
type Step struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	// Parent is the parent of a commit. Defaults to the latest revision;
	// 0 makes a new root.
	Parent *uint64 `yaml:"parent,omitempty"`

	// Origin marks a commit as received from that synchronization client.
	Origin string `yaml:"origin,omitempty"`

	// Changes are the entity changes of a commit.
	Changes []ChangeStep `yaml:"changes,omitempty"`

	// Revision is the branch revision for select.
	Revision uint64 `yaml:"revision,omitempty"`
}

// ChangeStep describes one entity change of a commit step.
type ChangeStep struct {
	Entity string `yaml:"entity"`

	// Composer moves the entity under another entity. Nil keeps the
	// composer it has at the parent; "" makes it top-level.
	Composer *string `yaml:"composer,omitempty"`

	// After is the attribute snapshot after the change.
	After map[string]any `yaml:"after,omitempty"`

	// Remove deletes the entity. Mutually exclusive with After.
	Remove bool `yaml:"remove,omitempty"`
}

// Step operations.
const (
	OpCommit       = "commit"
	OpUndo         = "undo"
	OpRedo         = "redo"
	OpSelect       = "select"
	OpSelectLatest = "select_latest"
	OpBack         = "back"
	OpForward      = "forward"
)

// Assertion validates the track after the last step.
type Assertion struct {
	// Type specifies the assertion type:
	// - "nodes": the track's node numbers, oldest first
	// - "current": the node under the cursor (0 for none)
	// - "branches": the secondary branches of the node at Revision
	// - "state": an entity's attributes at the tip
	// - "can_undo", "can_redo": undo/redo availability
	// - "revision_count": number of revisions in the store
	Type string `yaml:"type"`

	// Nodes are the expected node numbers (used by nodes and branches).
	Nodes []uint64 `yaml:"nodes,omitempty"`

	// Revision is the node inspected (used by current and branches).
	Revision uint64 `yaml:"revision,omitempty"`

	// Entity is the entity inspected (used by state).
	Entity string `yaml:"entity,omitempty"`

	// Expect is the exact expected attribute snapshot (used by state).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Absent expects the entity to have no state (used by state).
	Absent bool `yaml:"absent,omitempty"`

	// Value is the expected flag (used by can_undo and can_redo).
	Value *bool `yaml:"value,omitempty"`

	// Count is the expected revision count (used by revision_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertNodes         = "nodes"
	AssertCurrent       = "current"
	AssertBranches      = "branches"
	AssertState         = "state"
	AssertCanUndo       = "can_undo"
	AssertCanRedo       = "can_redo"
	AssertRevisionCount = "revision_count"
)

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
	// Strict field validation catches typos like "assertion:" vs "assertions:"
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

	for i, id := range s.Tracked {
		if id == "" {
			return fmt.Errorf("tracked[%d]: entity id must be non-empty", i)
		}
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep validates a single step based on its operation.
func validateStep(index int, s *Step) error {
	switch s.Op {
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	case OpCommit:
		if len(s.Changes) == 0 {
			return fmt.Errorf("steps[%d]: changes are required for commit", index)
		}
		for j, c := range s.Changes {
			if c.Entity == "" {
				return fmt.Errorf("steps[%d].changes[%d]: entity is required", index, j)
			}
			if c.Remove && c.After != nil {
				return fmt.Errorf("steps[%d].changes[%d]: remove and after are mutually exclusive", index, j)
			}
			if !c.Remove && c.After == nil {
				return fmt.Errorf("steps[%d].changes[%d]: after is required (use remove to delete)", index, j)
			}
		}
	case OpSelect:
		if s.Revision == 0 {
			return fmt.Errorf("steps[%d]: revision is required for select", index)
		}
	case OpUndo, OpRedo, OpSelectLatest, OpBack, OpForward:
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, s.Op)
	}

	if s.Op != OpCommit && (s.Parent != nil || s.Origin != "" || len(s.Changes) > 0) {
		return fmt.Errorf("steps[%d]: parent, origin and changes only apply to commit", index)
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertNodes, AssertCurrent:
	case AssertBranches:
		if a.Revision == 0 {
			return fmt.Errorf("assertions[%d]: revision is required for branches", index)
		}
	case AssertState:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for state", index)
		}
		if a.Absent == (a.Expect != nil) {
			return fmt.Errorf("assertions[%d]: exactly one of expect or absent is required for state", index)
		}
	case AssertCanUndo, AssertCanRedo:
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for %s", index, a.Type)
		}
	case AssertRevisionCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for revision_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
