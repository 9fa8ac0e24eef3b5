package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Actions understood by the strategy server.
const (
	ActionApplyStrategy = "apply_strategy"
	ActionStopStrategy  = "stop_strategy"
)

// Response status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Request is the only shape a client sends. Routing happens on Action,
// the frame itself carries no type.
type Request struct {
	Action string         `json:"action"`
	Data   map[string]any `json:"data"`
}

// Response is returned for every request. StrategyID and Timestamp are only
// set by the strategy actions on success.
type Response struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	StrategyID string `json:"strategy_id,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
}

// OK reports whether the response carries status "success".
func (r Response) OK() bool {
	return r.Status == StatusSuccess
}

// ErrorResponse builds a {"status":"error"} response.
func ErrorResponse(format string, args ...any) Response {
	return Response{Status: StatusError, Message: fmt.Sprintf(format, args...)}
}

// RequestError is a well-framed payload that is valid JSON but not a usable
// request. Unlike framing errors it leaves the stream aligned, so the
// connection can keep going.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return "invalid request: " + e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// ReadRequest reads one frame and parses it as a Request.
// Framing problems are returned as-is (see IsFramingError); a payload with
// the wrong shape is returned as *RequestError.
func ReadRequest(r io.Reader) (Request, error) {
	var raw json.RawMessage
	if err := Decode(r, &raw); err != nil {
		return Request{}, err
	}
	return ParseRequest(raw)
}

// ParseRequest turns a JSON payload into a Request. A missing or null
// "data" becomes an empty map.
func ParseRequest(payload []byte) (Request, error) {
	var fields map[string]json.RawMessage
	if err := unmarshalJSON(payload, &fields); err != nil {
		return Request{}, &RequestError{Err: errors.New("payload must be a JSON object")}
	}

	var req Request
	if action, ok := fields["action"]; ok {
		if err := unmarshalJSON(action, &req.Action); err != nil {
			return Request{}, &RequestError{Err: errors.New("action must be a string")}
		}
	}
	if data, ok := fields["data"]; ok {
		if err := unmarshalJSON(data, &req.Data); err != nil {
			return Request{}, &RequestError{Err: errors.New("data must be a JSON object")}
		}
	}
	if req.Data == nil {
		req.Data = map[string]any{}
	}
	return req, nil
}
