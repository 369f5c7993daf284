// Package ir provides the shared data model for revgraph.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Revisions are immutable once committed and identified by a strictly
//     increasing RevisionNumber. Number 0 means "no revision".
//   - Attribute values are restricted to Value (no floats), so that revision
//     content hashes are stable across encodings.
//   - All JSON tags use snake_case.
//   - Wire messages are canonical JSON (RFC 8785) so the same revision always
//     produces the same bytes.
package ir
