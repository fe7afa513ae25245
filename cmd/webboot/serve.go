package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webboot/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	var (
		addr        string
		root        string
		workerScope string
		rps         int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a site directory with service worker and wasm headers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("addr") {
				c.cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("root") {
				c.cfg.Server.Root = root
			}
			logger := c.logger.Logger

			srv, err := server.New(server.Options{
				Addr:        c.cfg.Server.Addr,
				Root:        c.cfg.Server.Root,
				WorkerScope: workerScope,
				Development: c.cfg.Logging.Development,
				RateLimit:   server.RateLimitConfig{RequestsPerSecond: rps, Burst: rps * 2},
				Logger:      logger,
			})
			if err != nil {
				return err
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			errChan := make(chan error, 1)
			go func() {
				errChan <- srv.Run()
			}()

			select {
			case <-sigChan:
				logger.Info("shutting down gracefully")
				ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(ctx); err != nil {
					logger.Error("error during shutdown", zap.Error(err))
					return err
				}
				return nil
			case err := <-errChan:
				return err
			}
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&addr, "addr", "", "listen address (default from WEBBOOT_SERVE_ADDR)")
	flags.StringVar(&root, "root", "", "site directory (default from WEBBOOT_SERVE_ROOT)")
	flags.StringVar(&workerScope, "worker-scope", "/", "Service-Worker-Allowed value for scripts")
	flags.IntVar(&rps, "rate-limit", 0, "requests per second per client, 0 disables")
	return cmd
}
