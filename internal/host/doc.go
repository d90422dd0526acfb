// Package host is the orchestrator that owns every connection's lifecycle
// and exposes the aggregated capability surface.
//
// Each configured connection gets one supervisor goroutine. That goroutine
// opens the transport, runs the protocol handshake and capability discovery,
// registers everything the connection contributes (root boundaries,
// credential grants, capability descriptors, routing entries), signals
// readiness, then parks until shutdown and closes the session itself. The
// session is therefore always opened and closed by the same goroutine, and
// no call path ever closes a session out from under another.
//
// Startup is a concurrent fan-out: one failing connection never aborts its
// siblings. The outcome is collected in a StartupReport so the caller can
// decide whether a partial host is good enough.
//
// Shutdown unwinds connections in reverse registration order and is
// idempotent: every call after the first returns the first call's result.
package host
