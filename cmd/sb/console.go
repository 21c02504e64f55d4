package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/console"
	"github.com/zulandar/switchboard/internal/mirror"
	"github.com/zulandar/switchboard/internal/relay"
	"github.com/zulandar/switchboard/internal/speech"
	"golang.org/x/term"
)

func newConsoleCmd() *cobra.Command {
	var (
		flags   clientFlags
		logFile string
	)

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Open the operator console",
		Long:  "Interactive terminal UI for talking to agents and rooms through a running gateway, with optional speech capture and transcript mirrors.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("console: stdout is not a TTY; use sb send instead")
			}
			client, cfg, err := flags.client()
			if err != nil {
				return err
			}
			if err := client.Health(cmd.Context()); err != nil {
				return fmt.Errorf("console: gateway not reachable: %s", relay.Describe(err))
			}
			ctrl, closeFn, err := buildController(client, cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
			defer stop()
			return console.Run(ctx, console.Opts{
				Controller: ctrl,
				Events:     client,
				LogFile:    logFile,
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&logFile, "log-file", "switchboard-console.log", "where console logs are written")
	return cmd
}

// buildController wires the relay controller to the gateway, the speech
// recognizer and any configured mirrors. The returned func releases them.
func buildController(backend relay.Backend, cfg *config.Config) (*relay.Controller, func(), error) {
	var mirrors []*mirror.Mirror
	if cfg.Mirror.Slack.Enabled() {
		m, err := mirror.NewSlack(mirror.SlackOpts{
			BotToken: cfg.Mirror.Slack.BotToken,
			Channel:  cfg.Mirror.Slack.Channel,
		})
		if err != nil {
			return nil, nil, err
		}
		mirrors = append(mirrors, m)
	}
	if cfg.Mirror.Discord.Enabled() {
		m, err := mirror.NewDiscord(mirror.DiscordOpts{
			BotToken: cfg.Mirror.Discord.BotToken,
			Channel:  cfg.Mirror.Discord.Channel,
		})
		if err != nil {
			closeMirrors(mirrors)
			return nil, nil, err
		}
		mirrors = append(mirrors, m)
	}

	opts := relay.ControllerOpts{
		Backend:       backend,
		WarnThreshold: cfg.Relay.ChunkWarnThreshold,
		OperatorName:  cfg.Relay.OperatorName,
		LoopAgent:     cfg.Relay.LoopAgent,
	}
	for _, m := range mirrors {
		opts.Renderers = append(opts.Renderers, m)
	}
	// Only assign on success so a nil *Command never becomes a non-nil
	// Recognizer.
	rec, err := speech.Detect(cfg.Speech)
	switch {
	case err == nil:
		opts.Recognizer = rec
	case errors.Is(err, speech.ErrNoCommand):
	default:
		log.Printf("sb: speech capture disabled: %v", err)
	}

	ctrl, err := relay.NewController(opts)
	if err != nil {
		closeMirrors(mirrors)
		return nil, nil, err
	}
	return ctrl, func() {
		ctrl.Close()
		closeMirrors(mirrors)
	}, nil
}

func closeMirrors(mirrors []*mirror.Mirror) {
	for _, m := range mirrors {
		m.Close()
		if n := m.Dropped(); n > 0 {
			log.Printf("sb: %s mirror dropped %d messages", m.Name(), n)
		}
	}
}
