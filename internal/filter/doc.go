// Package filter decides which discovered capabilities are visible.
//
// Two independent mechanisms apply:
//
// Static exclusion happens once, at registration time. A capability named in
// its connection's exclude set is dropped before any descriptor exists, so
// it is invisible even to introspection and indistinguishable from a
// capability that never existed.
//
// Dynamic relevance weighting happens per request, at list/call time.
// Connections with routing weight 1.0 always expose everything; weighted
// connections (weight below 1.0) expose only the capabilities a pluggable
// Scorer judges relevant to the caller's task context. Similarity-based and
// model-judged scorers are interchangeable behind the Scorer interface.
package filter
