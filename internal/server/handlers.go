package server

import (
	"context"

	"stratlink/internal/protocol"
	"stratlink/internal/strategy"
)

// RegisterStrategyHandlers wires apply_strategy and stop_strategy to svc.
func RegisterStrategyHandlers(d *Dispatcher, svc *strategy.Service) {
	d.Handle(protocol.ActionApplyStrategy, func(ctx context.Context, data map[string]any) (protocol.Response, error) {
		out := svc.Apply(ctx, data)
		return success("Strategy applied successfully", out), nil
	})
	d.Handle(protocol.ActionStopStrategy, func(ctx context.Context, data map[string]any) (protocol.Response, error) {
		out := svc.Stop(ctx, data)
		return success("Strategy stopped successfully", out), nil
	})
}

func success(message string, out strategy.Outcome) protocol.Response {
	return protocol.Response{
		Status:     protocol.StatusSuccess,
		Message:    message,
		StrategyID: out.StrategyID,
		Timestamp:  out.FormattedTimestamp(),
	}
}
