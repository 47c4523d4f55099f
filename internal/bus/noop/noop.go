// Package noop provides a single-node bus.PubSub that never delivers
// anything; used when Cedrus runs without a cluster.
package noop

import (
	"context"

	"cedrus/internal/bus"
)

// Bus implements bus.PubSub as a no-op.
type Bus struct{}

// New returns a no-op bus.
func New() *Bus { return &Bus{} }

func (b *Bus) Publish(context.Context, bus.Event) error { return nil }

func (b *Bus) Subscribe(context.Context) (<-chan bus.Event, error) {
	ch := make(chan bus.Event)
	return ch, nil
}

func (b *Bus) Close() error { return nil }
