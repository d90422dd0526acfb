// ABOUTME: Newline-delimited JSON-RPC framing over a reader/writer pair.
// ABOUTME: Shared by the stdio and persistent-socket transports.

package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/fold-host/internal/protocol"
)

// maxLineSize bounds a single JSON-RPC frame (4MB).
const maxLineSize = 4 << 20

// lineConn speaks newline-delimited JSON-RPC over an arbitrary
// reader/writer pair. A background goroutine reads frames and dispatches
// responses to pending callers.
type lineConn struct {
	name    string
	writer  io.Writer
	pending *pendingRequests
	logger  *slog.Logger

	writeMu   sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
}

func newLineConn(name string, r io.Reader, w io.Writer, logger *slog.Logger) *lineConn {
	c := &lineConn{
		name:    name,
		writer:  w,
		pending: newPendingRequests(logger),
		logger:  logger,
		closed:  make(chan struct{}),
	}
	go c.readLoop(r)
	return c
}

// roundTrip sends one request and waits for its correlated response.
func (c *lineConn) roundTrip(ctx context.Context, method string, params any) (json.RawMessage, error) {
	select {
	case <-c.closed:
		return nil, ErrSessionClosed
	default:
	}

	requestID := uuid.New().String()
	req, err := protocol.NewRequest(requestID, method, params)
	if err != nil {
		return nil, err
	}

	respCh, err := c.pending.create(requestID)
	if err != nil {
		return nil, err
	}
	defer c.pending.remove(requestID)

	if err := c.writeFrame(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	select {
	case resp, ok := <-respCh:
		if !ok {
			return nil, ErrSessionClosed
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, ErrSessionClosed
	}
}

// writeFrame marshals a request and writes it as one newline-terminated line.
func (c *lineConn) writeFrame(req *protocol.Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closed:
		return ErrSessionClosed
	default:
	}

	if _, err := c.writer.Write(data); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// readLoop scans frames until the reader fails, dispatching responses.
// Server-initiated requests and notifications are logged and dropped; this
// host does not act as a server for its connections.
func (c *lineConn) readLoop(r io.Reader) {
	defer c.pending.closeAll()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg struct {
			protocol.Response
			Method string `json:"method"`
		}
		if err := json.Unmarshal(line, &msg); err != nil {
			c.logger.Warn("discarding unparseable frame", "connection", c.name, "error", err)
			continue
		}

		if msg.Method != "" {
			c.logger.Debug("ignoring server-initiated message",
				"connection", c.name,
				"method", msg.Method,
			)
			continue
		}

		c.pending.dispatch(&msg.Response)
	}

	if err := scanner.Err(); err != nil {
		select {
		case <-c.closed:
			// Expected during close; the reader was pulled out from under us.
		default:
			c.logger.Warn("read loop terminated", "connection", c.name, "error", err)
		}
	}
}

// close marks the conn closed and unblocks all waiters. Idempotent.
func (c *lineConn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.pending.closeAll()
	})
}
