package pansim

import (
	"context"
	"testing"
	"time"
)

func TestBusSendAndInboxDeliverToCorrectRank(t *testing.T) {
	bus := NewBus(3, 4)
	env := &Envelope{Schema: "state"}

	ctx := context.Background()
	if err := bus.Send(ctx, 1, env); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case got := <-bus.Inbox(1):
		if got != env {
			t.Errorf("received envelope %+v, want the same pointer sent", got)
		}
	default:
		t.Fatal("expected an envelope waiting in rank 1's inbox")
	}

	select {
	case <-bus.Inbox(0):
		t.Fatal("rank 0's inbox should be empty")
	default:
	}
}

func TestCollectBarrierWaitsForExactlyNEnvelopes(t *testing.T) {
	bus := NewBus(1, 4)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := bus.Send(ctx, 0, &Envelope{Schema: "state"}); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	got, err := CollectBarrier(ctx, bus.Inbox(0), 3)
	if err != nil {
		t.Fatalf("CollectBarrier: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("got %d envelopes, want 3", len(got))
	}
}

func TestCollectBarrierRespectsContextCancellation(t *testing.T) {
	bus := NewBus(1, 4)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Only one envelope ever arrives, but the barrier expects two: it
	// must return once the deadline fires rather than blocking forever.
	if err := bus.Send(context.Background(), 0, &Envelope{Schema: "state"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	_, err := CollectBarrier(ctx, bus.Inbox(0), 2)
	if err == nil {
		t.Fatal("expected an error when the barrier never reaches its count before the context is done")
	}
	if !IsKind(err, TransportError) {
		t.Errorf("error kind = %v, want TransportError", err)
	}
}

func TestBusSendRespectsContextCancellationWhenInboxIsFull(t *testing.T) {
	bus := NewBus(1, 1)
	if err := bus.Send(context.Background(), 0, &Envelope{Schema: "state"}); err != nil {
		t.Fatalf("filling the inbox: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := bus.Send(ctx, 0, &Envelope{Schema: "state"}); err == nil {
		t.Fatal("expected an error sending into a full inbox past the context deadline")
	}
}
