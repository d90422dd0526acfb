// ABOUTME: Shared capability-manager types: descriptors and the session source.
// ABOUTME: Managers resolve sessions lazily so routing never races a teardown.

package capability

import (
	"errors"

	"github.com/2389/fold-host/internal/session"
)

// ErrConnectionUnavailable indicates the connection that should serve a call
// is not in a ready state (still starting, failed, or already closed).
var ErrConnectionUnavailable = errors.New("connection unavailable")

// SessionSource hands out live sessions by connection name. Implementations
// must wrap ErrConnectionUnavailable when the connection cannot carry calls.
type SessionSource interface {
	ReadySession(connection string) (session.Session, error)
}
