package emmer

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMaintainerResendsStaleConversation(t *testing.T) {
	transport := newFakeTransport()
	registry := NewRegistry()
	clock := newFakeClock(time.Unix(1000, 0))

	conv := NewConversation("127.0.0.1", 6000, NewRouteTable(), testLogEntry(), clock.Now, nil)
	conv.cachedPacket = Ack{Block: 1}
	registry.Insert("127.0.0.1", 6000, conv)

	m := NewMaintainer(transport, registry, testLogEntry(), clock.Now, nil, 5*time.Second, 3)
	clock.advance(6 * time.Second)
	m.sweep()

	select {
	case out := <-transport.outbox:
		if p := Parse(out.data); p != (Ack{Block: 1}) {
			t.Fatalf("resent packet = %#v, want Ack{Block: 1}", p)
		}
	default:
		t.Fatal("expected a resend")
	}

	if registry.Size() != 1 {
		t.Fatalf("registry size = %d, want 1 (conversation should survive a retry)", registry.Size())
	}
	_, _, retries := conv.snapshot()
	if retries != 1 {
		t.Fatalf("retriesMade = %d, want 1", retries)
	}
	if got := testutil.ToFloat64(m.metrics.Retransmits); got != 1 {
		t.Fatalf("Retransmits counter = %v, want 1", got)
	}
}

func TestMaintainerTimesOutAfterRetryBudget(t *testing.T) {
	transport := newFakeTransport()
	registry := NewRegistry()
	clock := newFakeClock(time.Unix(2000, 0))

	conv := NewConversation("127.0.0.1", 6001, NewRouteTable(), testLogEntry(), clock.Now, nil)
	conv.cachedPacket = Ack{Block: 1}
	conv.retriesMade = 3
	registry.Insert("127.0.0.1", 6001, conv)

	m := NewMaintainer(transport, registry, testLogEntry(), clock.Now, nil, 5*time.Second, 3)
	clock.advance(6 * time.Second)
	m.sweep()

	select {
	case out := <-transport.outbox:
		e, ok := Parse(out.data).(ErrorPacket)
		if !ok || e.Code != ErrNotDefined {
			t.Fatalf("timeout packet = %#v, want ErrorPacket{Code: ErrNotDefined}", e)
		}
	default:
		t.Fatal("expected a timeout notice")
	}

	if registry.Size() != 0 {
		t.Fatalf("registry size = %d, want 0 after timeout", registry.Size())
	}
	if got := testutil.ToFloat64(m.metrics.Timeouts); got != 1 {
		t.Fatalf("Timeouts counter = %v, want 1", got)
	}
}

func TestMaintainerReapsCompletedConversations(t *testing.T) {
	transport := newFakeTransport()
	registry := NewRegistry()
	clock := newFakeClock(time.Unix(3000, 0))

	conv := NewConversation("127.0.0.1", 6002, NewRouteTable(), testLogEntry(), clock.Now, nil)
	conv.state = Completed
	registry.Insert("127.0.0.1", 6002, conv)

	m := NewMaintainer(transport, registry, testLogEntry(), clock.Now, nil, 5*time.Second, 3)
	m.sweep()

	if registry.Size() != 0 {
		t.Fatalf("registry size = %d, want 0 after reaping a completed conversation", registry.Size())
	}
	select {
	case out := <-transport.outbox:
		t.Fatalf("expected no packet sent while reaping, got %v", out.data)
	default:
	}
	if got := testutil.ToFloat64(m.metrics.Reaped); got != 1 {
		t.Fatalf("Reaped counter = %v, want 1", got)
	}
}

func TestMaintainerIgnoresFreshConversations(t *testing.T) {
	transport := newFakeTransport()
	registry := NewRegistry()
	clock := newFakeClock(time.Unix(4000, 0))

	conv := NewConversation("127.0.0.1", 6003, NewRouteTable(), testLogEntry(), clock.Now, nil)
	registry.Insert("127.0.0.1", 6003, conv)

	m := NewMaintainer(transport, registry, testLogEntry(), clock.Now, nil, 5*time.Second, 3)
	m.sweep()

	if registry.Size() != 1 {
		t.Fatalf("registry size = %d, want 1 (fresh conversations must not be touched)", registry.Size())
	}
}

func TestMaintainerRunStopsOnContextCancel(t *testing.T) {
	transport := newFakeTransport()
	registry := NewRegistry()
	m := NewMaintainer(transport, registry, testLogEntry(), nil, nil, time.Second, 3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
