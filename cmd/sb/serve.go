package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/agentapi"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/fetch"
	"github.com/zulandar/switchboard/internal/gateway"
	"github.com/zulandar/switchboard/internal/polish"
	"github.com/zulandar/switchboard/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		listen     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay gateway",
		Long:  "Serves the gateway HTTP API: targets, polishing, chunked sends with retries, reply requests, rooms and conversation loops.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Gateway.Listen = listen
			}
			return runServe(cmd, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides gateway.listen)")
	return cmd
}

func runServe(cmd *cobra.Command, cfg *config.Config) error {
	if err := cfg.ValidateGateway(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle OS signals for graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	gormDB, err := store.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return err
	}
	sweeper, err := store.NewSweeper(gormDB, cfg.Store.Sweep)
	if err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	api := agentapi.NewClient(cfg.Agent.BaseURL, cfg.Agent.APIKey)
	fetcher, err := fetch.New(fetch.Opts{GitHubToken: cfg.GitHub.Token})
	if err != nil {
		return err
	}
	polisher, err := polish.New(ctx, cfg.Polish)
	if err != nil {
		return err
	}

	sender, err := gateway.NewSender(gateway.SenderOpts{
		API:            api,
		Fetcher:        fetcher,
		MaxLen:         cfg.Agent.MaxMessageLength,
		MaxRetries:     cfg.Agent.MaxRetries,
		InitialBackoff: cfg.Agent.InitialBackoff(),
		Jitter:         cfg.Agent.Jitter(),
	})
	if err != nil {
		return err
	}

	hub := gateway.NewHub()
	var srv *gateway.Server
	loops, err := gateway.NewLoopManager(gateway.LoopManagerOpts{
		DB:       gormDB,
		Sender:   sender,
		API:      api,
		Polisher: polisher,
		Hub:      hub,
		Names: func(agentID string) string {
			if srv == nil {
				return ""
			}
			return srv.Name(agentID)
		},
		TurnInterval: cfg.Loop.TurnInterval(),
		MaxDuration:  cfg.Loop.MaxDuration(),
	})
	if err != nil {
		return err
	}

	srv, err = gateway.NewServer(gateway.ServerOpts{
		API:          api,
		Sender:       sender,
		Polisher:     polisher,
		Loops:        loops,
		Hub:          hub,
		DefaultAgent: cfg.Agent.DefaultAgent,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Store: %s, polish: %s (%s)\n", cfg.Store.Driver, cfg.Polish.Provider, cfg.Polish.Model)
	return gateway.Start(ctx, gateway.StartOpts{
		Server: srv,
		Listen: cfg.Gateway.Listen,
		Out:    cmd.OutOrStdout(),
	})
}
