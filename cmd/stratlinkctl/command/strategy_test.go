package command

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stratlink/internal/client"
	"stratlink/internal/protocol"
	"stratlink/internal/server"
	"stratlink/internal/strategy"
)

// startServer runs a server on an ephemeral port and returns that port.
func startServer(t *testing.T) (string, *strategy.Registry) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry := strategy.NewRegistry()
	d := server.NewDispatcher(logger)
	server.RegisterStrategyHandlers(d, strategy.NewService(registry, strategy.WithLogger(logger)))

	srv := server.New(d, server.Options{Logger: logger})
	require.NoError(t, srv.Listen("127.0.0.1", 0))
	go srv.Serve()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return strconv.Itoa(srv.Addr().(*net.TCPAddr).Port), registry
}

func execute(t *testing.T, args ...string) (protocol.Response, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()

	var resp protocol.Response
	if out.Len() > 0 {
		require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	}
	return resp, err
}

func TestApplyAndStopCommands(t *testing.T) {
	port, registry := startServer(t)

	resp, err := execute(t, "apply", "--port", port, "--table-type", "equity", "--row-id", "7", "--data", `{"symbol":"AAPL"}`)
	require.NoError(t, err)
	assert.Equal(t, "Strategy applied successfully", resp.Message)
	assert.Equal(t, "equity_7", resp.StrategyID)

	rec, ok := registry.Get("equity_7")
	require.True(t, ok)
	assert.Equal(t, "AAPL", rec.CompleteData["symbol"])
	assert.Equal(t, json.Number("7"), rec.CompleteData["row_id"])

	resp, err = execute(t, "stop", "--port", port, "--table-type", "equity", "--row-id", "7")
	require.NoError(t, err)
	assert.Equal(t, "Strategy stopped successfully", resp.Message)
	assert.Zero(t, registry.Len())
}

func TestApplyCommand_FlagsOverrideData(t *testing.T) {
	port, _ := startServer(t)

	resp, err := execute(t, "apply", "--port", port, "--data", `{"table_type":"bond","row_id":1}`, "--row-id", "eurusd")
	require.NoError(t, err)
	assert.Equal(t, "bond_eurusd", resp.StrategyID)
}

func TestSendCommand(t *testing.T) {
	port, _ := startServer(t)

	resp, err := execute(t, "send", "--port", port, "--action", "apply_strategy", "--data", `{"table_type":"fx","row_id":3}`)
	require.NoError(t, err)
	assert.Equal(t, "fx_3", resp.StrategyID)
}

func TestSendCommand_UnknownActionFails(t *testing.T) {
	port, _ := startServer(t)

	resp, err := execute(t, "send", "--port", port, "--action", "noop")

	var statusErr *client.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, protocol.StatusError, resp.Status)
	assert.Equal(t, "Unknown action: noop", resp.Message)
}

func TestSendCommand_RequiresAction(t *testing.T) {
	_, err := execute(t, "send", "--data", `{}`)
	assert.Error(t, err)
}

func TestInvalidDataFlag(t *testing.T) {
	for _, data := range []string{`[1,2]`, `null`, `{"a":`} {
		_, err := execute(t, "apply", "--data", data)
		assert.ErrorContains(t, err, "--data must be a JSON object", data)
	}
}

func TestUnreachableServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)
	ln.Close()

	_, err = execute(t, "apply", "--port", port, "--timeout", "500ms")
	assert.ErrorContains(t, err, "connection failed")
}

func TestRowIDValue(t *testing.T) {
	assert.Equal(t, json.Number("7"), rowIDValue("7"))
	assert.Equal(t, json.Number("-3"), rowIDValue("-3"))
	assert.Equal(t, json.Number("7.0"), rowIDValue("7.0"))
	assert.Equal(t, "eurusd", rowIDValue("eurusd"))
	assert.Equal(t, "true", rowIDValue("true"))
	assert.Equal(t, "7abc", rowIDValue("7abc"))
	assert.Equal(t, "", rowIDValue(""))
}
