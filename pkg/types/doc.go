// Package types defines the core data model of the skillgraph engine:
// artifacts, embeddings, similarity edges, community assignments, and the
// result shapes returned by detection, topology export, and hybrid search.
//
// The engine treats artifacts as a read-only input supplied by the
// content-management collaborator; only the fields needed for filtering,
// ranking, and display are modeled here.
package types
