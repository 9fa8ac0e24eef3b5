package strategy

import (
	"context"
	"log/slog"
	"time"

	"stratlink/internal/events"
)

// TimestampLayout is the ISO-8601 form used in responses.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// sinks get a bounded amount of time so a slow Redis cannot stall requests
const publishTimeout = 2 * time.Second

// Outcome is what a lifecycle operation reports back to the caller.
type Outcome struct {
	StrategyID string
	Timestamp  time.Time
}

// FormattedTimestamp returns the timestamp in TimestampLayout.
func (o Outcome) FormattedTimestamp() string {
	return o.Timestamp.Format(TimestampLayout)
}

// Service applies and stops strategies against a Registry and reports each
// transition to an events.Sink.
type Service struct {
	registry *Registry
	sink     events.Sink
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Service)

func WithSink(sink events.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(registry *Registry, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		sink:     events.Nop{},
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Registry() *Registry {
	return s.registry
}

// Apply records data as the active strategy for its id, replacing any
// previous record.
func (s *Service) Apply(ctx context.Context, data map[string]any) Outcome {
	id := StrategyID(data)
	rec, replaced := s.registry.Apply(id, data, s.now())

	s.logger.Info("strategy_applied",
		"strategy_id", id,
		"replaced", replaced,
	)
	s.publish(ctx, events.Event{
		Kind:       events.KindApplied,
		StrategyID: id,
		Data:       rec.CompleteData,
		At:         rec.StartTime,
		Existed:    replaced,
	})

	return Outcome{StrategyID: id, Timestamp: rec.StartTime}
}

// Stop removes the strategy for data's id. Stopping an inactive strategy
// succeeds.
func (s *Service) Stop(ctx context.Context, data map[string]any) Outcome {
	id := StrategyID(data)
	_, existed := s.registry.Stop(id)
	at := s.now()

	s.logger.Info("strategy_stopped",
		"strategy_id", id,
		"existed", existed,
	)
	s.publish(ctx, events.Event{
		Kind:       events.KindStopped,
		StrategyID: id,
		Data:       data,
		At:         at,
		Existed:    existed,
	})

	return Outcome{StrategyID: id, Timestamp: at}
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := s.sink.Publish(ctx, ev); err != nil {
		s.logger.Warn("event_publish_failed",
			"strategy_id", ev.StrategyID,
			"kind", ev.Kind,
			"error", err,
		)
	}
}
