package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest([]byte(`{"action":"apply_strategy","data":{"table_type":"equity","row_id":7}}`))
	require.NoError(t, err)

	assert.Equal(t, ActionApplyStrategy, req.Action)
	assert.Equal(t, map[string]any{"table_type": "equity", "row_id": json.Number("7")}, req.Data)
}

func TestParseRequest_MissingFields(t *testing.T) {
	for _, payload := range []string{`{}`, `{"action":null,"data":null}`} {
		req, err := ParseRequest([]byte(payload))
		require.NoError(t, err, payload)
		assert.Empty(t, req.Action)
		assert.NotNil(t, req.Data)
		assert.Empty(t, req.Data)
	}
}

func TestParseRequest_WrongShape(t *testing.T) {
	tests := map[string]string{
		"array payload":   `[1,2]`,
		"number action":   `{"action":5,"data":{}}`,
		"data not object": `{"action":"stop_strategy","data":"row-1"}`,
	}

	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRequest([]byte(payload))

			var reqErr *RequestError
			require.True(t, errors.As(err, &reqErr))
			assert.False(t, IsFramingError(err))
		})
	}
}

func TestReadRequest_RequestErrorKeepsStreamAligned(t *testing.T) {
	var stream bytes.Buffer
	require.NoError(t, WriteMessage(&stream, []int{1}))
	require.NoError(t, WriteMessage(&stream, Request{Action: ActionStopStrategy}))

	_, err := ReadRequest(&stream)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)

	req, err := ReadRequest(&stream)
	require.NoError(t, err)
	assert.Equal(t, ActionStopStrategy, req.Action)
}

func TestResponse_OmitsEmptyStrategyFields(t *testing.T) {
	frame, err := Encode(ErrorResponse("Unknown action: %s", "noop"))
	require.NoError(t, err)
	assert.Equal(t, `{"status":"error","message":"Unknown action: noop"}`, string(frame[HeaderSize:]))

	var resp Response
	require.NoError(t, Decode(bytes.NewReader(frame), &resp))
	assert.False(t, resp.OK())
}
