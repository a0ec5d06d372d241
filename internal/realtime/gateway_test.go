package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tradegate/tradegate/internal/config"
	"github.com/tradegate/tradegate/internal/logger"
)

type recorderStub struct {
	mu     sync.Mutex
	events []string
}

func (r *recorderStub) Record(ctx context.Context, eventType string, accountID, ip, userAgent string, data map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func newTestGateway() *Gateway {
	cfg := config.RealtimeConfig{
		AuthGracePeriod: time.Minute,
		WriteTimeout:    time.Second,
		SendBuffer:      4,
	}
	return NewGateway(cfg, nil, &recorderStub{}, logger.New("error", "text"))
}

func TestEnqueueAfterDisconnectDropsEvent(t *testing.T) {
	g := newTestGateway()
	c := newClient(nil, "10.0.0.1", "ua", 4)
	g.clients[c] = true

	g.disconnect(c)

	// A grace-period timer firing after the connection dropped must see
	// the event dropped, not a send on a torn-down channel.
	if c.enqueue(envelope{Type: "auth_error", Message: "Authentication timeout"}) {
		t.Error("enqueue succeeded on a disconnected client")
	}

	// Disconnect is idempotent.
	g.disconnect(c)
	if got := g.ConnectionCount(); got != 0 {
		t.Errorf("connections = %d, want 0", got)
	}
}

func TestBroadcastDuringDisconnect(t *testing.T) {
	g := newTestGateway()
	c := newClient(nil, "10.0.0.1", "ua", 1)
	c.subscribe("admin")
	g.clients[c] = true

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			g.broadcast("admin", envelope{Type: "order_created"})
		}
	}()
	g.disconnect(c)
	<-done
}
