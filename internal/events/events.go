package events

import (
	"context"
	"errors"
	"time"
)

// Kind names a strategy lifecycle transition.
type Kind string

const (
	KindApplied Kind = "strategy_applied"
	KindStopped Kind = "strategy_stopped"
)

// Event is emitted after the registry has been updated. It is an
// observation only; nothing reads events back into the registry.
type Event struct {
	Kind       Kind           `json:"kind"`
	StrategyID string         `json:"strategy_id"`
	Data       map[string]any `json:"data,omitempty"`
	At         time.Time      `json:"at"`
	// Existed is true when apply overwrote a record or stop removed one.
	Existed bool `json:"existed"`
}

// Sink receives lifecycle events.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// Fanout publishes every event to all of its sinks, even when some fail.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
