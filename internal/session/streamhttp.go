// ABOUTME: Streaming HTTP transport: JSON-RPC over POST with an SSE side channel.
// ABOUTME: Server pushes (notifications) arrive over SSE and are logged, not routed.

package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"

	"github.com/2389/fold-host/internal/config"
	"github.com/2389/fold-host/internal/protocol"
)

// streamHTTPSession speaks JSON-RPC over HTTP POST. Responses come back in
// the POST body; a long-lived SSE subscription to the same endpoint carries
// server-initiated messages.
type streamHTTPSession struct {
	ops
	url        string
	headers    map[string]string
	httpClient *http.Client
	logger     *slog.Logger

	cancelStream context.CancelFunc
	streamDone   chan struct{}
	closeOnce    sync.Once
}

// openStreamHTTP builds the session and starts the SSE listener. The
// endpoint is not contacted for the POST path until the first call, so open
// itself cannot block on a slow server beyond the SSE dial.
func openStreamHTTP(_ context.Context, connCfg config.Connection, logger *slog.Logger) (Session, error) {
	streamCtx, cancel := context.WithCancel(context.Background())

	s := &streamHTTPSession{
		url:          connCfg.URL,
		headers:      connCfg.Headers,
		httpClient:   &http.Client{},
		logger:       logger,
		cancelStream: cancel,
		streamDone:   make(chan struct{}),
	}
	s.ops = ops{rt: s, timeout: connCfg.Timeout(), name: connCfg.Name}

	go s.listenStream(streamCtx)

	return s, nil
}

// roundTrip POSTs one JSON-RPC request and decodes the response body.
func (s *streamHTTPSession) roundTrip(ctx context.Context, method string, params any) (json.RawMessage, error) {
	req, err := protocol.NewRequest(uuid.New().String(), method, params)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range s.headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code %d", ErrTransport, httpResp.StatusCode)
	}

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxLineSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %v", ErrTransport, err)
	}

	var resp protocol.Response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrTransport, err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

// listenStream subscribes to the endpoint's SSE stream for server pushes.
// A server that does not offer a stream is tolerated: the subscription
// fails quietly and the POST path keeps working.
func (s *streamHTTPSession) listenStream(ctx context.Context) {
	defer close(s.streamDone)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Debug("no server event stream", "connection", s.ops.name, "error", err)
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Debug("server event stream unavailable",
			"connection", s.ops.name,
			"status", resp.StatusCode,
		)
		return
	}

	for ev, err := range sse.Read(resp.Body, &sse.ReadConfig{MaxEventSize: maxLineSize}) {
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.logger.Debug("event stream ended", "connection", s.ops.name, "error", err)
			}
			return
		}
		// Server-initiated messages (list-changed notifications and the
		// like) are not routed anywhere yet.
		s.logger.Debug("server event", "connection", s.ops.name, "type", ev.Type)
	}
}

// Close stops the SSE listener and idles the HTTP client. Idempotent.
func (s *streamHTTPSession) Close() error {
	s.closeOnce.Do(func() {
		s.cancelStream()
		<-s.streamDone
		s.httpClient.CloseIdleConnections()
		s.logger.Debug("closed http session", "connection", s.ops.name)
	})
	return nil
}

var _ Session = (*streamHTTPSession)(nil)
