package pansim

import "context"

// Bus is the in-process channel transport every rank's actors send
// envelopes over. The original distributed implementation runs ranks
// as separate processes exchanging messages through xactor; this
// implementation's ranks are goroutines instead, so the bus is a fixed
// set of buffered channels keyed by destination rank rather than a
// network socket. The same explicit-empty-message, count-to-N barrier
// semantics apply either way (spec section 4.5/5): a source with no
// rows for a destination still sends an envelope, just with an empty
// payload, so the destination's barrier counter always reaches the
// expected total.
type Bus struct {
	inboxes []chan *Envelope
}

// NewBus allocates a bus with one inbox per rank, each buffered to
// bufSize so a rank that is momentarily behind doesn't stall its
// senders.
func NewBus(nRanks, bufSize int) *Bus {
	b := &Bus{inboxes: make([]chan *Envelope, nRanks)}
	for i := range b.inboxes {
		b.inboxes[i] = make(chan *Envelope, bufSize)
	}
	return b
}

// Send delivers env to rank to's inbox, honoring ctx cancellation so a
// tick timeout (Config.TickTimeout) can unblock a stuck send.
func (b *Bus) Send(ctx context.Context, to int, env *Envelope) error {
	select {
	case b.inboxes[to] <- env:
		return nil
	case <-ctx.Done():
		return Wrap(TransportError, ctx.Err(), "send canceled")
	}
}

// Inbox returns rank's receive-only inbox.
func (b *Bus) Inbox(rank int) <-chan *Envelope {
	return b.inboxes[rank]
}

// CollectBarrier receives exactly n envelopes from ch, implementing the
// count-to-N barrier spec section 5 requires: a rank proceeds to the
// next stage only once it has heard from every source that owes it a
// message for this tick, empty or not.
func CollectBarrier(ctx context.Context, ch <-chan *Envelope, n int) ([]*Envelope, error) {
	out := make([]*Envelope, 0, n)
	for i := 0; i < n; i++ {
		select {
		case env := <-ch:
			out = append(out, env)
		case <-ctx.Done():
			return nil, Wrap(TransportError, ctx.Err(), "barrier wait canceled")
		}
	}
	return out, nil
}
