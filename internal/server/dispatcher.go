package server

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"stratlink/internal/protocol"
)

// HandlerFunc serves one action. A returned error becomes an error
// response; the connection stays open.
type HandlerFunc func(ctx context.Context, data map[string]any) (protocol.Response, error)

// Dispatcher routes requests to handlers by action name.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	logger   *slog.Logger
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// Handle registers h for action, replacing any previous handler.
func (d *Dispatcher) Handle(action string, h HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[action] = h
}

// Actions lists the registered actions in sorted order.
func (d *Dispatcher) Actions() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	actions := make([]string, 0, len(d.handlers))
	for a := range d.handlers {
		actions = append(actions, a)
	}
	slices.Sort(actions)
	return actions
}

// Dispatch always produces a response: unknown actions, handler errors and
// handler panics are all turned into status "error".
func (d *Dispatcher) Dispatch(ctx context.Context, req protocol.Request) (resp protocol.Response) {
	d.mu.RLock()
	h, ok := d.handlers[req.Action]
	d.mu.RUnlock()
	if !ok {
		return protocol.ErrorResponse("Unknown action: %s", req.Action)
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler_panic",
				"action", req.Action,
				"panic", r,
			)
			resp = protocol.ErrorResponse("%v", r)
		}
	}()

	var err error
	resp, err = h(ctx, req.Data)
	if err != nil {
		d.logger.Warn("handler_failed",
			"action", req.Action,
			"error", err,
		)
		return protocol.ErrorResponse("%s", err.Error())
	}
	return resp
}
