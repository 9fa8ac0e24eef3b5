package strategy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"stratlink/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Publish(ctx context.Context, ev events.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestService_ApplyAndStop(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 30, 0, 123456000, time.UTC)
	sink := new(mockSink)
	sink.On("Publish", mock.Anything, mock.MatchedBy(func(ev events.Event) bool {
		return ev.Kind == events.KindApplied && ev.StrategyID == "equity_7" && !ev.Existed
	})).Return(nil).Once()
	sink.On("Publish", mock.Anything, mock.MatchedBy(func(ev events.Event) bool {
		return ev.Kind == events.KindStopped && ev.StrategyID == "equity_7" && ev.Existed
	})).Return(nil).Once()

	svc := NewService(NewRegistry(), WithSink(sink), WithClock(fixedClock(now)), WithLogger(quietLogger()))
	data := map[string]any{"table_type": "equity", "row_id": 7}

	out := svc.Apply(context.Background(), data)
	assert.Equal(t, "equity_7", out.StrategyID)
	assert.Equal(t, "2026-10-15T09:30:00.123456Z", out.FormattedTimestamp())
	assert.Equal(t, 1, svc.Registry().Len())

	out = svc.Stop(context.Background(), data)
	assert.Equal(t, "equity_7", out.StrategyID)
	assert.Zero(t, svc.Registry().Len())

	sink.AssertExpectations(t)
}

func TestService_StopUnknownSucceeds(t *testing.T) {
	svc := NewService(NewRegistry(), WithLogger(quietLogger()))

	for i := 0; i < 2; i++ {
		out := svc.Stop(context.Background(), map[string]any{"table_type": "fx", "row_id": 99})
		assert.Equal(t, "fx_99", out.StrategyID)
	}
}

func TestService_SinkFailureDoesNotFailRequest(t *testing.T) {
	sink := new(mockSink)
	sink.On("Publish", mock.Anything, mock.Anything).Return(errors.New("redis down"))

	svc := NewService(NewRegistry(), WithSink(sink), WithLogger(quietLogger()))
	out := svc.Apply(context.Background(), map[string]any{"table_type": "equity", "row_id": 1})

	assert.Equal(t, "equity_1", out.StrategyID)
	_, ok := svc.Registry().Get("equity_1")
	assert.True(t, ok)
}

func TestService_PublishHasDeadline(t *testing.T) {
	sink := new(mockSink)
	sink.On("Publish", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), mock.Anything).Return(nil)

	svc := NewService(NewRegistry(), WithSink(sink), WithLogger(quietLogger()))
	svc.Apply(context.Background(), nil)

	sink.AssertExpectations(t)
}
