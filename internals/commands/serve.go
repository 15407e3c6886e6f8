package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newServeCmd(env envFunc) *cobra.Command {
	var (
		memory bool
		port   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the funnel HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := env()
			if port != "" {
				cfg.Port = port
			}

			app, cleanup, err := BuildApp(cfg, log, AppOptions{Memory: memory})
			if err != nil {
				return err
			}
			defer cleanup()

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("port", cfg.Port).Msg("listening")
				errCh <- app.Listen("0.0.0.0:" + cfg.Port)
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case <-quit:
			}

			log.Info().Msg("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return app.ShutdownWithContext(ctx)
		},
	}

	cmd.Flags().BoolVar(&memory, "memory", false, "keep sessions in memory and simulate payments")
	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides PORT)")
	return cmd
}
