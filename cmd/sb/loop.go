package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/gateway"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/relay"
)

func newLoopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loop",
		Short: "Manage conversation loops",
		Long:  "A loop posts a prompt to a room, asks an agent to reply, polishes the reply and posts it back, turn after turn, until the duration elapses or it is stopped.",
	}

	cmd.AddCommand(newLoopStartCmd())
	cmd.AddCommand(newLoopStopCmd())
	cmd.AddCommand(newLoopStatusCmd())
	return cmd
}

func newLoopStartCmd() *cobra.Command {
	var (
		flags    clientFlags
		room     string
		agent    string
		duration string
		tone     string
	)

	cmd := &cobra.Command{
		Use:   "start <prompt>",
		Short: "Start a loop in a room",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := flags.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			d, err := relay.ParseDuration(duration)
			if err != nil {
				return fmt.Errorf("loop: %s", relay.Describe(err))
			}
			target, err := resolveTarget(ctx, client, room)
			if err != nil {
				return err
			}
			if !target.IsRoom() {
				return fmt.Errorf("loop: %s is not a room", target.Label())
			}

			agentID := agent
			switch {
			case agentID != "":
				a, err := resolveTarget(ctx, client, agentID)
				if err != nil {
					return err
				}
				agentID = a.ID
			case len(target.Members) > 0:
				agentID = target.Members[0]
			default:
				agentID = cfg.Relay.LoopAgent
			}

			status, err := client.StartLoop(ctx, relay.LoopRequest{
				RoomID:   target.ID,
				AgentID:  agentID,
				Prompt:   strings.Join(args, " "),
				Mode:     tone,
				Duration: d,
			})
			if err != nil {
				return fmt.Errorf("loop: %s", relay.Describe(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), status)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&room, "room", "", "room id or name")
	cmd.Flags().StringVar(&agent, "agent", "", "agent that replies each turn (defaults to the room's first member)")
	cmd.Flags().StringVarP(&duration, "duration", "d", "300", "loop duration in seconds")
	cmd.Flags().StringVar(&tone, "tone", "casual", "polish tone for each turn")
	cmd.MarkFlagRequired("room")
	return cmd
}

func newLoopStopCmd() *cobra.Command {
	var (
		flags clientFlags
		room  string
	)

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the loop in a room",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := flags.client()
			if err != nil {
				return err
			}
			target, err := resolveTarget(cmd.Context(), client, room)
			if err != nil {
				return err
			}
			status, err := client.StopLoop(cmd.Context(), target.ID)
			if err != nil {
				return fmt.Errorf("loop: %s", relay.Describe(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), status)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&room, "room", "", "room id or name")
	cmd.MarkFlagRequired("room")
	return cmd
}

func newLoopStatusCmd() *cobra.Command {
	var (
		flags clientFlags
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List loops",
		Long:  "Lists running loops, or with --all every recent loop and how it ended.",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := flags.client()
			if err != nil {
				return err
			}
			loops, err := client.Loops(cmd.Context(), !all)
			if err != nil {
				return fmt.Errorf("loop: %s", relay.Describe(err))
			}
			printLoops(cmd.OutOrStdout(), loops, time.Now())
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include finished loops")
	return cmd
}

func printLoops(out io.Writer, loops []gateway.LoopInfo, now time.Time) {
	if len(loops) == 0 {
		fmt.Fprintln(out, "No loops.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tROOM\tSTATUS\tTURNS\tREMAINING\tERROR")
	for _, l := range loops {
		remaining := "-"
		if l.Status == models.LoopActive {
			left := l.ExpiresAt.Sub(now).Round(time.Second)
			if left < 0 {
				left = 0
			}
			remaining = left.String()
		}
		errText := l.LastError
		if errText == "" {
			errText = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n", l.ID, l.RoomID, l.Status, l.Turns, remaining, errText)
	}
	w.Flush()
}
