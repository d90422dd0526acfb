// ABOUTME: Subprocess transport: spawn a server and speak JSON-RPC over its pipes.
// ABOUTME: The process is owned by the session; Close terminates it.

package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/2389/fold-host/internal/config"
)

// stdioSession runs an external server as a child process and speaks
// newline-delimited JSON-RPC over its stdin/stdout. Stderr is passed
// through so server diagnostics stay visible.
type stdioSession struct {
	ops
	conn      *lineConn
	cmd       *exec.Cmd
	logger    *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

// openStdio spawns the subprocess described by the connection descriptor.
func openStdio(_ context.Context, connCfg config.Connection, logger *slog.Logger) (Session, error) {
	// The command deliberately gets no context: its lifetime is governed by
	// Close from the owning supervisor, not by the open call's deadline.
	cmd := exec.Command(connCfg.Command, connCfg.Args...)
	cmd.Env = os.Environ()
	for k, v := range connCfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %q: %w", connCfg.Command, err)
	}

	logger.Debug("spawned server process",
		"connection", connCfg.Name,
		"command", connCfg.Command,
		"pid", cmd.Process.Pid,
	)

	s := &stdioSession{
		conn:   newLineConn(connCfg.Name, stdout, stdin, logger),
		cmd:    cmd,
		logger: logger,
	}
	s.ops = ops{rt: s.conn, timeout: connCfg.Timeout(), name: connCfg.Name}
	return s, nil
}

// Close terminates the subprocess and releases the pipes. Idempotent.
func (s *stdioSession) Close() error {
	s.closeOnce.Do(func() {
		s.conn.close()

		if s.cmd.Process != nil {
			if err := s.cmd.Process.Kill(); err != nil {
				s.closeErr = fmt.Errorf("killing process: %w", err)
			}
		}
		// Reap the child regardless; Wait's error after Kill is expected.
		_ = s.cmd.Wait()

		s.logger.Debug("closed stdio session", "connection", s.ops.name)
	})
	return s.closeErr
}

var _ Session = (*stdioSession)(nil)
