package realtime

import (
	"testing"

	"github.com/tradegate/tradegate/internal/model"
)

func TestClientEnqueueDropsWhenFull(t *testing.T) {
	c := newClient(nil, "10.0.0.1", "ua", 2)

	if !c.enqueue(envelope{Type: "a"}) || !c.enqueue(envelope{Type: "b"}) {
		t.Fatal("enqueue failed with free buffer space")
	}
	// Third event exceeds the buffer and is dropped, never blocked on.
	if c.enqueue(envelope{Type: "c"}) {
		t.Error("enqueue succeeded on a full buffer")
	}
	if len(c.send) != 2 {
		t.Errorf("queued = %d, want 2", len(c.send))
	}
}

func TestClientStateTransitions(t *testing.T) {
	c := newClient(nil, "10.0.0.1", "ua", 1)

	if _, ok := c.authenticated(); ok {
		t.Fatal("fresh connection reports authenticated")
	}

	identity := &model.Identity{AccountID: "acc_1", Role: model.RoleSuperAdmin}
	c.setAuthenticated(identity)

	got, ok := c.authenticated()
	if !ok || got.AccountID != "acc_1" {
		t.Fatal("identity not retrievable after authentication")
	}

	c.markClosed()
	if _, ok := c.authenticated(); ok {
		t.Error("closed connection reports authenticated")
	}
}

func TestClientEnqueueAfterCloseDrops(t *testing.T) {
	c := newClient(nil, "10.0.0.1", "ua", 2)
	c.markClosed()

	if c.enqueue(envelope{Type: "a"}) {
		t.Error("enqueue succeeded on a closed client")
	}
	if len(c.send) != 0 {
		t.Errorf("queued = %d, want 0", len(c.send))
	}
	select {
	case <-c.done:
	default:
		t.Error("done not signalled after close")
	}

	// A second close is a no-op.
	c.markClosed()
}

func TestClientSubscriptions(t *testing.T) {
	c := newClient(nil, "10.0.0.1", "ua", 1)

	if c.subscribedTo("admin") {
		t.Fatal("subscribed before subscribe")
	}
	c.subscribe("admin")
	if !c.subscribedTo("admin") {
		t.Fatal("subscribe did not register")
	}
	c.unsubscribe("admin")
	if c.subscribedTo("admin") {
		t.Error("unsubscribe did not remove")
	}
}

func TestPersonalChannel(t *testing.T) {
	if got := personalChannel("acc_1"); got != "account:acc_1" {
		t.Errorf("personalChannel = %q", got)
	}
}
