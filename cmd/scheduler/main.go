package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	webpushgo "github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"household_scheduler/internal/infra/config"
	idb "household_scheduler/internal/infra/database"
	"household_scheduler/internal/infra/httpapi"
	"household_scheduler/internal/infra/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "scheduler",
		Short:         "Household reminder and bill scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newScanCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newVAPIDKeysCommand())
	return cmd
}

func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("could not load application configuration: %w", err)
	}
	logger.Init(cfg)
	return cfg, nil
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scan scheduler and the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := logger.Component("main")
			log.WithFields(logrus.Fields{
				"store":       cfg.StoreDriver,
				"environment": cfg.Environment,
				"cron":        cfg.CronSpecScan,
			}).Info("Household scheduler starting...")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := buildRuntime(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.scheduler.Start(); err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           httpapi.SetupRouter(rt.httpDeps()),
				ReadHeaderTimeout: 10 * time.Second,
			}
			serveErr := make(chan error, 1)
			go func() {
				log.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			select {
			case <-ctx.Done():
			case err := <-serveErr:
				if err != nil {
					log.WithError(err).Error("HTTP server failed")
				}
			}

			log.Info("Shutting down application...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Warn("HTTP server did not shut down cleanly")
			}
			rt.scheduler.Stop()
			log.Info("Application shut down gracefully.")
			return nil
		},
	}
}

func newScanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run a single due-item scan pass and print its summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rt, err := buildRuntime(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.ScanTimeout)
			defer cancel()
			summary, ran := rt.scheduler.RunOnce(ctx)
			if !ran {
				return errors.New("scan lease is held by another instance")
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.StoreDriver != config.StoreDriverPostgres {
				return fmt.Errorf("migrate requires STORE_DRIVER=%s", config.StoreDriverPostgres)
			}
			db, err := idb.NewPostgresConnection(cmd.Context(), cfg.DatabaseURL, poolConfig(cfg))
			if err != nil {
				return fmt.Errorf("could not connect to database: %w", err)
			}
			defer db.Close()
			return idb.Migrate(cmd.Context(), db, logger.Component("migrate"))
		},
	}
}

func newVAPIDKeysCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "vapid-keys",
		Short: "Generate a VAPID key pair for VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			privateKey, publicKey, err := webpushgo.GenerateVAPIDKeys()
			if err != nil {
				return fmt.Errorf("could not generate VAPID keys: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n", publicKey, privateKey)
			return nil
		},
	}
}
