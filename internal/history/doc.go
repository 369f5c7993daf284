// Package history presents a filtered, navigable view of the revision graph.
//
// A HistoryTrack follows a set of tracked entities through the graph. Its
// nodes are the revisions on the active path (the ancestry of the tip) that
// change a tracked entity, or, with inner objects included, an entity the
// tracked set composes. Nodes are ordered oldest first.
//
// Undo and redo never rewrite history. Each one appends a new revision whose
// changes invert (or re-apply) an earlier edit, so every client of a shared
// store observes them as ordinary commits.
//
// The node list is cached and rebuilt whenever the store's latest revision
// number differs from the number recorded at the last rebuild. Reads never
// return nodes computed against an older graph.
package history
