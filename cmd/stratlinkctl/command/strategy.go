package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"stratlink/internal/client"
	"stratlink/internal/protocol"
)

// dataFlags are the flags that build a request's data map.
type dataFlags struct {
	tableType string
	rowID     string
	data      string
}

func (f *dataFlags) register(cmd *cobra.Command, withRow bool) {
	cmd.Flags().StringVar(&f.data, "data", "", `extra data as a JSON object, e.g. '{"symbol":"AAPL"}'`)
	if withRow {
		cmd.Flags().StringVar(&f.tableType, "table-type", "", "table type part of the strategy id")
		cmd.Flags().StringVar(&f.rowID, "row-id", "", "row id part of the strategy id")
	}
}

// build merges --data with --table-type/--row-id; the explicit flags win.
func (f *dataFlags) build(cmd *cobra.Command) (map[string]any, error) {
	data := map[string]any{}
	if f.data != "" {
		dec := json.NewDecoder(strings.NewReader(f.data))
		dec.UseNumber()
		if err := dec.Decode(&data); err != nil || data == nil {
			return nil, fmt.Errorf("--data must be a JSON object")
		}
	}
	if cmd.Flags().Changed("table-type") {
		data["table_type"] = f.tableType
	}
	if cmd.Flags().Changed("row-id") {
		data["row_id"] = rowIDValue(f.rowID)
	}
	return data, nil
}

// rowIDValue sends numeric row ids as JSON numbers, everything else as a string.
func rowIDValue(s string) any {
	if s != "" && (s[0] == '-' || (s[0] >= '0' && s[0] <= '9')) && json.Valid([]byte(s)) {
		return json.Number(s)
	}
	return s
}

func newApplyCmd(opts *globalOptions) *cobra.Command {
	flags := &dataFlags{}
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply (start or replace) a strategy",
		Example: `  stratlinkctl apply --table-type equity --row-id 7
  stratlinkctl apply --table-type fx --row-id eurusd --data '{"size":100}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := flags.build(cmd)
			if err != nil {
				return err
			}
			return send(cmd, opts, protocol.Request{Action: protocol.ActionApplyStrategy, Data: data})
		},
	}
	flags.register(cmd, true)
	return cmd
}

func newStopCmd(opts *globalOptions) *cobra.Command {
	flags := &dataFlags{}
	cmd := &cobra.Command{
		Use:     "stop",
		Short:   "Stop a strategy (stopping an unknown strategy succeeds)",
		Example: `  stratlinkctl stop --table-type equity --row-id 7`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := flags.build(cmd)
			if err != nil {
				return err
			}
			return send(cmd, opts, protocol.Request{Action: protocol.ActionStopStrategy, Data: data})
		},
	}
	flags.register(cmd, true)
	return cmd
}

func newSendCmd(opts *globalOptions) *cobra.Command {
	var action string
	flags := &dataFlags{}
	cmd := &cobra.Command{
		Use:     "send",
		Short:   "Send a raw action with a data object",
		Example: `  stratlinkctl send --action apply_strategy --data '{"table_type":"bond","row_id":3}'`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := flags.build(cmd)
			if err != nil {
				return err
			}
			return send(cmd, opts, protocol.Request{Action: action, Data: data})
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "action name")
	cmd.MarkFlagRequired("action")
	flags.register(cmd, false)
	return cmd
}

// send performs the call and prints the response. A status "error"
// response is still printed before the error is returned.
func send(cmd *cobra.Command, opts *globalOptions, req protocol.Request) error {
	resp, err := opts.client().Do(cmd.Context(), req)
	var statusErr *client.StatusError
	if err != nil && !errors.As(err, &statusErr) {
		return err
	}

	out, mErr := json.MarshalIndent(resp, "", "  ")
	if mErr != nil {
		return mErr
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
