// ABOUTME: Correlation of in-flight JSON-RPC requests with their responses.
// ABOUTME: Pending channels keyed by request id, safe against late or unknown replies.

package session

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/2389/fold-host/internal/protocol"
)

// ErrDuplicateRequestID indicates a request id is already in flight.
var ErrDuplicateRequestID = errors.New("duplicate request ID")

// pendingRequests tracks outstanding requests awaiting responses.
type pendingRequests struct {
	mu      sync.Mutex
	pending map[string]chan *protocol.Response
	logger  *slog.Logger
}

func newPendingRequests(logger *slog.Logger) *pendingRequests {
	return &pendingRequests{
		pending: make(map[string]chan *protocol.Response),
		logger:  logger,
	}
}

// create registers a new pending request and returns its response channel.
func (p *pendingRequests) create(requestID string) (chan *protocol.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.pending[requestID]; exists {
		return nil, ErrDuplicateRequestID
	}

	ch := make(chan *protocol.Response, 1)
	p.pending[requestID] = ch
	return ch, nil
}

// remove closes and removes the response channel for a request.
func (p *pendingRequests) remove(requestID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ch, ok := p.pending[requestID]; ok {
		close(ch)
		delete(p.pending, requestID)
	}
}

// dispatch routes an incoming response to its waiting caller.
// Responses for unknown ids are logged and dropped; that happens when a
// caller timed out and already removed its pending entry.
func (p *pendingRequests) dispatch(resp *protocol.Response) {
	requestID := resp.RequestID()

	// Hold the lock while sending so remove cannot close the channel
	// between lookup and send.
	p.mu.Lock()
	ch, ok := p.pending[requestID]
	if !ok {
		p.mu.Unlock()
		p.logger.Debug("received response for unknown request", "request_id", requestID)
		return
	}

	select {
	case ch <- resp:
		p.mu.Unlock()
	default:
		p.mu.Unlock()
		p.logger.Warn("response channel full, dropping response", "request_id", requestID)
	}
}

// closeAll closes every pending channel to unblock waiters during teardown.
func (p *pendingRequests) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for requestID, ch := range p.pending {
		close(ch)
		delete(p.pending, requestID)
	}
}
