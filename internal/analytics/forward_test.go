package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/wayfindercollective/funnel-backend/internal/common/logger"
)

type captureTransport struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (t *captureTransport) Send(_ context.Context, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.payloads = append(t.payloads, payload)
	return nil
}

func (t *captureTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.payloads)
}

func TestForwarderFlushOnClose(t *testing.T) {
	transport := &captureTransport{}
	f := NewForwarder(transport, 16, logger.New("forwarder-test"))

	for i := 0; i < 5; i++ {
		f.Enqueue([]byte(`{"eventType":"question_view"}`))
	}
	f.Close(2 * time.Second)

	if got := transport.count(); got != 5 {
		t.Errorf("delivered = %d, want 5", got)
	}
}

func TestForwarderEnqueueAfterClose(t *testing.T) {
	transport := &captureTransport{}
	f := NewForwarder(transport, 16, logger.New("forwarder-test"))
	f.Close(time.Second)

	// must not panic on the closed queue
	f.Enqueue([]byte(`{"eventType":"drop_off"}`))

	if got := transport.count(); got != 0 {
		t.Errorf("delivered = %d, want 0", got)
	}
}
