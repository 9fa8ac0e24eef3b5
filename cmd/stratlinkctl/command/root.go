package command

// root.go defines the root command for stratlinkctl.
// Global flags select the server and the per-call timeout.

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"stratlink/internal/client"
	"stratlink/internal/server"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	host    string
	port    int
	timeout time.Duration
}

func (o *globalOptions) client() *client.Client {
	return client.New(o.host, o.port, o.timeout)
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "stratlinkctl",
		Short: "stratlinkctl - send commands to a stratlinkd server",
		Long: `stratlinkctl sends a single command to a stratlinkd server and prints
the JSON response. Every call opens its own connection.

The exit status is non-zero when the server answers with status "error"
or the server cannot be reached.

Use "stratlinkctl command --help" to see the flags of each command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global persistent flags = available to all subcommands
	rootCmd.PersistentFlags().StringVar(&opts.host, "host", server.DefaultHost, "server host")
	rootCmd.PersistentFlags().IntVar(&opts.port, "port", server.DefaultPort, "server port")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", client.DefaultTimeout, "dial and round-trip timeout")

	rootCmd.AddCommand(newApplyCmd(opts), newStopCmd(opts), newSendCmd(opts))
	return rootCmd
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err) // Print error to standard error
		os.Exit(1)
	}
}
