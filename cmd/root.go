// Package cmd wires the nestga daemon together: config, auth, the poll
// loop, the MQTT bridge and the HTTP API.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/trymwestin/nestga/internal/config"
	"github.com/trymwestin/nestga/internal/core/auth"
	"github.com/trymwestin/nestga/internal/core/devices"
	"github.com/trymwestin/nestga/internal/core/nest"
	"github.com/trymwestin/nestga/internal/core/transport"
	"github.com/trymwestin/nestga/internal/dropcam"
	"github.com/trymwestin/nestga/internal/httpapi"
	"github.com/trymwestin/nestga/internal/mqtt"
)

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "nestgad",
		Short:         "Nest bridge daemon: polls the Nest cloud API and exposes it over MQTT and HTTP",
		Long:          "nestgad logs into the Nest consumer API with a Google account, polls thermostats, cameras, protects and structures, and bridges them to Home Assistant over MQTT and to local consumers over a small HTTP API.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), configPath)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")

	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newLogger(cfg config.Log) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func runDaemon(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := newLogger(cfg.Log)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	authenticator := auth.New(cfg.Nest.IssueToken, cfg.Nest.Cookie, cfg.Nest.Region, log)
	sessions := auth.NewSessionStore(authenticator, log)

	log.Info("logging in to Nest")
	if _, err := sessions.Refresh(ctx); err != nil {
		return fmt.Errorf("initial login failed: %w", err)
	}
	log.Info("logged in", "user_id", sessions.Current().UserID)

	bus := devices.NewBus(log)
	api := transport.New(cfg.Nest.APIBase, sessions, log)
	client := nest.NewClient(api, sessions, bus, log)
	cams := dropcam.New(sessions, cfg.Nest.Region, log)

	poller := nest.NewPoller(client, 0, log)
	if err := poller.Start(ctx); err != nil {
		return err
	}
	defer poller.Stop(context.Background())

	var publisher mqtt.Publisher
	if cfg.MQTT.Enabled {
		publisher = mqtt.NewHAPublisher(mqtt.Config{
			Broker:          cfg.MQTT.Broker,
			Username:        cfg.MQTT.Username,
			Password:        cfg.MQTT.Password,
			TopicPrefix:     cfg.MQTT.TopicPrefix,
			DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
			DeviceID:        cfg.MQTT.DeviceID,
			Structures:      cfg.Nest.Structures,
		}, client, cams, bus, log)
	} else {
		publisher = mqtt.NewStubPublisher(log)
	}
	if err := publisher.Start(ctx); err != nil {
		return err
	}
	defer publisher.Stop(context.Background())

	apiServer := httpapi.NewServer(client, cams, sessions, cfg.HTTP.CORSAll, log)
	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: apiServer.Handler(),
	}

	errC := make(chan error, 1)
	go func() {
		log.Info("HTTP API listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errC <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errC:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}
	return nil
}
