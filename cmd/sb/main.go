package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/agentapi"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/console"
	"github.com/zulandar/switchboard/internal/gateway"
	"github.com/zulandar/switchboard/internal/relay"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const defaultConfigPath = "switchboard.yaml"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sb",
		Short: "Switchboard — operator relay for companion agents",
		Long:  "Switchboard relays an operator's typed or spoken messages to companion agents and rooms, and runs agent conversation loops.",
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConsoleCmd())
	cmd.AddCommand(newSendCmd())
	cmd.AddCommand(newPolishCmd())
	cmd.AddCommand(newTargetsCmd())
	cmd.AddCommand(newLoopCmd())
	cmd.AddCommand(newRoomsCmd())
	cmd.AddCommand(newMCPCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sb %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

// loadConfig reads the config file at path and fills missing credentials
// from the environment. A missing default config file is not an error.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	switch {
	case err == nil:
	case path == defaultConfigPath && errors.Is(err, fs.ErrNotExist):
		cfg = config.Default()
	default:
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// clientFlags are shared by the commands that talk to a running gateway.
type clientFlags struct {
	configPath string
	gatewayURL string
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&f.gatewayURL, "gateway", "", "gateway URL (overrides gateway.url)")
}

// gatewayAPI is what the client commands need from a running gateway.
type gatewayAPI interface {
	relay.Backend
	console.EventSource
	Health(ctx context.Context) error
	Loops(ctx context.Context, activeOnly bool) ([]gateway.LoopInfo, error)
	CreateRoom(ctx context.Context, req gateway.CreateRoomRequest) (*agentapi.Room, error)
	DeleteRoom(ctx context.Context, roomID string) (string, error)
}

// dialGateway is swapped out in tests.
var dialGateway = func(url string) gatewayAPI {
	return gateway.NewClient(url)
}

func (f *clientFlags) client() (gatewayAPI, *config.Config, error) {
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return nil, nil, err
	}
	url := f.gatewayURL
	if url == "" {
		url = cfg.Gateway.URL
	}
	return dialGateway(url), cfg, nil
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	// Optional; values already in the environment win.
	_ = godotenv.Load()
	os.Exit(execute(newRootCmd()))
}
