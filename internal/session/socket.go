// ABOUTME: Persistent-socket transport: long-lived TCP with newline JSON-RPC.
// ABOUTME: Reconnects are not attempted; transport failure surfaces to the supervisor.

package session

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/2389/fold-host/internal/config"
)

// socketSession holds one persistent TCP connection to a server.
type socketSession struct {
	ops
	conn      *lineConn
	netConn   net.Conn
	logger    *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

// openSocket dials the server address from the descriptor.
func openSocket(ctx context.Context, connCfg config.Connection, logger *slog.Logger) (Session, error) {
	dialer := &net.Dialer{Timeout: connCfg.Timeout()}
	netConn, err := dialer.DialContext(ctx, "tcp", connCfg.Address)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", connCfg.Address, err)
	}

	logger.Debug("dialed server socket",
		"connection", connCfg.Name,
		"address", connCfg.Address,
	)

	s := &socketSession{
		conn:    newLineConn(connCfg.Name, netConn, netConn, logger),
		netConn: netConn,
		logger:  logger,
	}
	s.ops = ops{rt: s.conn, timeout: connCfg.Timeout(), name: connCfg.Name}
	return s, nil
}

// Close shuts the socket down. Idempotent.
func (s *socketSession) Close() error {
	s.closeOnce.Do(func() {
		s.conn.close()
		if err := s.netConn.Close(); err != nil {
			s.closeErr = fmt.Errorf("closing socket: %w", err)
		}
		s.logger.Debug("closed socket session", "connection", s.ops.name)
	})
	return s.closeErr
}

var _ Session = (*socketSession)(nil)
