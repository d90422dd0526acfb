// Package capability holds the per-class capability managers: tools,
// prompts, and resources.
//
// Each manager owns the authoritative descriptor registry for its class.
// Registration applies the static exclusion list before anything is stored,
// so excluded components never become visible anywhere in the host. The
// managers feed the router with the names they keep and consult the dynamic
// relevance filter when listing.
//
// Managers never hold their registry locks across session I/O: lookups
// snapshot the descriptor and release the lock before the outbound call is
// dispatched. Sessions themselves are obtained through a SessionSource at
// call time, so a manager never observes a half-open connection.
package capability
