// Package router maintains the capability routing tables and picks which
// connection serves an unscoped request.
//
// The tables map capability names to the connections that provide them,
// separately per class: tools and prompts by name, resources by URI. They
// are built purely from registration events; call traffic never mutates
// them.
//
// Selection is deterministic and intentionally simple:
//
//  1. A single provider wins outright.
//  2. Among several, primary connections (routing weight 1.0) beat backup
//     connections (weight below 1.0).
//  3. Among equal-priority providers, the first-registered connection wins.
//
// The registration-order tie-break is a behavioral contract: callers that do
// not name a connection rely on repeated calls resolving identically.
package router
