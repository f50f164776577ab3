package analytics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/wayfindercollective/funnel-backend/internal/common/logger"
)

// Transport delivers a serialized event to the remote collector
type Transport interface {
	Send(ctx context.Context, payload []byte) error
}

// HTTPTransport posts events to the collector endpoint. The response body
// is never consumed beyond draining the connection.
type HTTPTransport struct {
	url        string
	httpClient *http.Client
}

// NewHTTPTransport creates a transport for the collector URL
func NewHTTPTransport(url string) *HTTPTransport {
	return &HTTPTransport{
		url: url,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (t *HTTPTransport) Send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("collector unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("collector returned %d", resp.StatusCode)
	}

	return nil
}

// Forwarder delivers events to the remote collector without ever blocking
// or failing the capture path. Events are queued and drained by a single
// background worker; when the queue is full the event is dropped (the local
// log remains the system of record). Close flushes what is queued within a
// short deadline so late events survive service shutdown.
type Forwarder struct {
	transport Transport
	logger    *logger.Logger

	mu     sync.Mutex
	closed bool
	queue  chan []byte
	done   chan struct{}
}

// NewForwarder starts the delivery worker. A nil transport yields a
// forwarder that silently drops everything, which keeps call sites simple
// when forwarding is disabled.
func NewForwarder(transport Transport, queueSize int, log *logger.Logger) *Forwarder {
	if queueSize <= 0 {
		queueSize = 256
	}

	f := &Forwarder{
		transport: transport,
		logger:    log,
		queue:     make(chan []byte, queueSize),
		done:      make(chan struct{}),
	}

	go f.run()

	return f
}

func (f *Forwarder) run() {
	defer close(f.done)
	for payload := range f.queue {
		if f.transport == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := f.transport.Send(ctx, payload); err != nil {
			f.logger.Warnf("analytics delivery failed: %v", err)
		}
		cancel()
	}
}

// Enqueue queues an event for delivery. Never blocks; drops on saturation.
func (f *Forwarder) Enqueue(payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.queue <- payload:
	default:
		f.logger.Warn("analytics forward queue full, dropping event")
	}
}

// Close stops accepting events and flushes the queue, waiting at most
// flushTimeout for in-flight deliveries.
func (f *Forwarder) Close(flushTimeout time.Duration) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	close(f.queue)
	f.mu.Unlock()

	select {
	case <-f.done:
	case <-time.After(flushTimeout):
		f.logger.Warn("analytics forwarder close timed out before flush completed")
	}
}
