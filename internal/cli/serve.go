package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/voxloop/voxloop/internal/gateway"
	"github.com/voxloop/voxloop/internal/orchestrator"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local gateway server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// The hub must exist before the orchestrator so turn events
			// reach WebSocket subscribers.
			var srv *gateway.Server
			orch, cleanup, err := buildOrchestrator(ctx, &cfg, orchestrator.SinkFunc(func(ev orchestrator.TurnEvent) {
				if srv != nil {
					srv.Hub().TurnCompleted(ev)
				}
			}))
			if err != nil {
				return err
			}
			defer cleanup()

			srv = gateway.New(cfg.Gateway, orch, log)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan)")
	return cmd
}
