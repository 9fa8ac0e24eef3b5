package main

// root.go = the stratlinkd command: load config, apply --host/--port, run
// until SIGINT/SIGTERM.

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"stratlink/internal/config"
	"stratlink/internal/server"
)

func newRootCmd() *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "stratlinkd",
		Short: "stratlinkd - strategy command server",
		Long: `stratlinkd accepts length-prefixed JSON commands over TCP and keeps
the set of running strategies in memory. Supported actions are
apply_strategy and stop_strategy.

Everything except the listen address is configured through the
environment (or a .env file in the working directory).`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			// flags win over the environment
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := cfg.NewLogger(os.Stdout)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&host, "host", server.DefaultHost, "address to bind")
	cmd.Flags().IntVar(&port, "port", server.DefaultPort, "port to bind")
	return cmd
}
