// Package roots tracks per-connection root boundaries and answers URI
// access questions.
//
// A root boundary is a URI subtree a connection is scoped to: the root URI
// itself and everything below it on a path-segment boundary. A connection
// with zero registered roots is unrestricted: ValidateAccess returns true
// for any URI. That permissive default is a documented compatibility
// behavior, not an oversight, and callers must not tighten it.
package roots
