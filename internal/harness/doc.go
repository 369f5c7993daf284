// Package harness runs history scenarios against a fresh revision store.
//
// A scenario builds a revision graph step by step, drives a history track
// over it, and validates the track with assertions and golden snapshots.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	tracked: [doc]
//	inner_objects: false
//	steps:
//	  - op: commit
//	    changes:
//	      - entity: doc
//	        after: { title: "draft" }
//	  - op: commit
//	    parent: 1
//	    origin: c1
//	    changes:
//	      - entity: para
//	        composer: doc
//	        after: { text: "hello" }
//	  - op: undo
//	  - op: select
//	    revision: 2
//	assertions:
//	  - type: nodes
//	    nodes: [1, 2]
//	  - type: state
//	    entity: doc
//	    expect: { title: "draft" }
//	  - type: can_redo
//	    value: true
//
// # Step Operations
//
//   - commit: appends a revision; parent defaults to the latest revision
//   - undo, redo: editing operations of the track
//   - select, select_latest: choose the active branch
//   - back, forward: move the cursor
//
// # Assertion Types
//
//   - nodes: the track's node numbers, oldest first
//   - current: the node under the cursor
//   - branches: secondary branches of a node
//   - state: an entity's attributes at the tip, or absent
//   - can_undo, can_redo: editing availability
//   - revision_count: number of revisions in the store
//
// # Golden Snapshots
//
// The final snapshot (steps, nodes, cursor, tip, revisions, entity states)
// is rendered as canonical JSON and compared against
// testdata/golden/{name}.golden. Revision numbers are assigned by the store
// starting at 1, so snapshots are reproducible across runs.
package harness
