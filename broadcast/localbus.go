package broadcast

import (
	"context"
	"sync"

	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/interfaces"
)

const localChannelBuffer = 256

// LocalBus connects replicas running in the same process. Every event
// broadcast through one endpoint is delivered to all other endpoints.
//
// The bus can be configured to redeliver each event, exercising the
// at-least-once duplication the merge logic must absorb.
type LocalBus struct {
	mu        sync.Mutex
	endpoints []*LocalChannel
	redeliver int
	closed    bool
}

// NewLocalBus creates a bus with exact-once local delivery.
func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

// NewDuplicatingLocalBus creates a bus that delivers every event to each
// endpoint 1+redeliver times.
func NewDuplicatingLocalBus(redeliver int) *LocalBus {
	return &LocalBus{redeliver: redeliver}
}

// Endpoint creates a new channel attached to the bus.
func (b *LocalBus) Endpoint() *LocalChannel {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := &LocalChannel{
		bus:    b,
		events: make(chan interfaces.Event, localChannelBuffer),
	}
	b.endpoints = append(b.endpoints, ch)
	return ch
}

func (b *LocalBus) broadcast(ctx context.Context, from *LocalChannel, ev interfaces.Event) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return interfaces.ErrChannelClosed
	}
	targets := make([]*LocalChannel, 0, len(b.endpoints))
	for _, endpoint := range b.endpoints {
		if endpoint != from && !endpoint.isClosed() {
			targets = append(targets, endpoint)
		}
	}
	redeliver := b.redeliver
	b.mu.Unlock()

	for _, target := range targets {
		for i := 0; i <= redeliver; i++ {
			select {
			case target.events <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// Close shuts down the bus and all attached endpoints.
func (b *LocalBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, endpoint := range b.endpoints {
		_ = endpoint.Close()
	}
}

// LocalChannel is one replica's attachment to a LocalBus.
type LocalChannel struct {
	bus    *LocalBus
	events chan interfaces.Event

	mu     sync.Mutex
	closed bool
}

// Broadcast publishes an event to all other endpoints on the bus.
func (c *LocalChannel) Broadcast(ctx context.Context, ev interfaces.Event) error {
	if c.isClosed() {
		return interfaces.ErrChannelClosed
	}
	return c.bus.broadcast(ctx, c, ev)
}

// Events returns the stream of events broadcast by other endpoints.
func (c *LocalChannel) Events() <-chan interfaces.Event {
	return c.events
}

// Close detaches the endpoint from the bus.
func (c *LocalChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

func (c *LocalChannel) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.events)
}

func (c *LocalChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
