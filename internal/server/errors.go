package server

import (
	"errors"
	"fmt"
)

// ErrServerClosed is returned by Serve after Stop has been called.
var ErrServerClosed = errors.New("server: closed")

// BindError reports that the listening socket could not be created.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}
