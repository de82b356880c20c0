package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/trogers1052/twstock-service/internal/api"
	"github.com/trogers1052/twstock-service/internal/kafka"
	"github.com/trogers1052/twstock-service/internal/scheduler"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the update scheduler and the Kafka consumer",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "Apply database migrations before serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if serveMigrate {
		if err := a.db.MigrateUp(cfg.Database.MigrationsPath); err != nil {
			return err
		}
	}

	if cfg.Schedule.Enabled {
		sched := scheduler.New(a.updater, cfg.Schedule.Symbols, cfg.Pipeline.BatchTimeout.Duration, logger)
		if err := sched.Start(cfg.Schedule.Cron); err != nil {
			return err
		}
		defer sched.Stop()
	}

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.RequestsTopic, cfg.Kafka.GroupID, a.updater, logger)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("Kafka consumer stopped")
			}
		}()
	}

	handler := api.NewHandler(a.db, a.updater, a.catalog, logger)
	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           api.SetupRoutes(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
