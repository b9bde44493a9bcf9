package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	httpctrl "github.com/secmon-lab/moderato/pkg/controller/http"
	tgctrl "github.com/secmon-lab/moderato/pkg/controller/telegram"
	slacksvc "github.com/secmon-lab/moderato/pkg/service/slack"
	"github.com/secmon-lab/moderato/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 10 * time.Second

func cmdServe() *cli.Command {
	var addr string
	var adminToken string
	var engCfg engineConfig

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("MODERATO_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "admin-token",
			Usage:       "Bearer token of the admin API. The API is disabled when empty",
			Sources:     cli.EnvVars("MODERATO_ADMIN_TOKEN"),
			Destination: &adminToken,
		},
	}
	flags = append(flags, engCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Run the moderation engine with its command transports",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			eng, err := engCfg.build(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			// Actions that expired while the process was down are lifted
			// before any command is accepted
			if err := eng.sweeper.Start(ctx); err != nil {
				return goerr.Wrap(err, "failed to start expiry sweeper")
			}
			defer eng.sweeper.Stop()

			httpOpts := []httpctrl.Options{
				httpctrl.WithAdminAPI(eng.uc.Moderation, adminToken),
			}
			if engCfg.slack.IsCommandConfigured() {
				httpOpts = append(httpOpts, httpctrl.WithSlackCommand(eng.uc.Command, engCfg.slack.SigningSecret(), slacksvc.Respond))
				logger.Info("Slack slash command enabled")
			}
			if adminToken == "" {
				logger.Warn("Admin token is not set, admin API is disabled")
			}

			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(httpOpts...),
				ReadHeaderTimeout: 30 * time.Second,
			}

			transportCtx, stopTransports := context.WithCancel(ctx)
			defer stopTransports()

			errCh := make(chan error, 2)
			go func() {
				logger.Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			if eng.telegram != nil {
				handler := tgctrl.New(eng.uc.Command, eng.telegram)
				go func() {
					logger.Info("Starting Telegram polling")
					if err := eng.telegram.Start(transportCtx, handler.HandleUpdate); err != nil {
						errCh <- goerr.Wrap(err, "telegram polling stopped")
					}
				}()
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			var runErr error
			select {
			case runErr = <-errCh:
			case sig := <-sigCh:
				logger.Info("Received shutdown signal", "signal", sig)
			case <-ctx.Done():
			}

			// Stop accepting commands first, then let the sweeper finish its pass
			stopTransports()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to shutdown server gracefully")
			}

			eng.sweeper.Stop()
			if n := eng.uc.Moderation.PendingCount(); n > 0 {
				logger.Warn("Unpersisted actions are left at shutdown", "count", n)
			}

			logger.Info("Server shutdown completed")
			return runErr
		},
	}
}
