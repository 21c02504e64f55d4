package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/relay"
)

func newSendCmd() *cobra.Command {
	var (
		flags  clientFlags
		to     string
		mode   string
		review bool
		tone   string
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send a message to an agent or room",
		Long: `Sends a message through the gateway. --to takes an agent or room id or name;
without it the configured default agent is used. Rooms accept --mode code (GitHub
file reference) and --mode url (page to fetch). With --review the message is
polished first and only sent once confirmed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := flags.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			query := to
			if query == "" {
				query = cfg.Agent.DefaultAgent
			}
			if query == "" {
				return fmt.Errorf("send: --to is required when agent.default_agent is not set")
			}
			target, err := resolveTarget(ctx, client, query)
			if err != nil {
				return err
			}

			text := strings.Join(args, " ")
			if review {
				text, err = reviewText(ctx, cmd, client, text, tone, yes)
				if err != nil || text == "" {
					return err
				}
			}
			return runSend(ctx, cmd.OutOrStdout(), client, target, text, mode)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&to, "to", "t", "", "agent or room id or name")
	cmd.Flags().StringVarP(&mode, "mode", "m", "plaintext", "room send mode: plaintext, code or url")
	cmd.Flags().BoolVarP(&review, "review", "r", false, "polish and confirm before sending")
	cmd.Flags().StringVar(&tone, "tone", "casual", "polish tone used with --review")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "send the polished text without asking")
	return cmd
}

func runSend(ctx context.Context, out io.Writer, backend relay.Backend, target relay.Target, text, mode string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("send: message is empty")
	}
	var (
		res relay.SendResult
		err error
	)
	if target.IsRoom() {
		res, err = backend.SendRoom(ctx, target.ID, text, mode)
	} else {
		if mode != "" && mode != "plaintext" {
			return fmt.Errorf("send: mode %q only applies to rooms", mode)
		}
		res, err = backend.SendDirect(ctx, target.ID, text)
	}
	if err != nil {
		return fmt.Errorf("send: %s", relay.Describe(err))
	}

	status := res.Status
	if status == "" {
		status = "Message sent."
	}
	fmt.Fprintf(out, "%s → %s\n", status, target.Label())
	if res.Reply != "" {
		from := res.From
		if from == "" {
			from = target.Label()
		}
		fmt.Fprintf(out, "%s: %s\n", from, res.Reply)
	}
	return nil
}

// reviewText polishes text and asks the operator to confirm it. An empty
// result means the operator declined.
func reviewText(ctx context.Context, cmd *cobra.Command, backend relay.Backend, text, tone string, yes bool) (string, error) {
	polished, err := backend.Polish(ctx, text, tone)
	if err != nil {
		return "", fmt.Errorf("polish: %s", relay.Describe(err))
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Polished (%s):\n%s\n", tone, polished)
	if yes {
		return polished, nil
	}

	fmt.Fprint(out, "Send this? [y/N] ")
	answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return polished, nil
	}
	fmt.Fprintln(out, "Discarded.")
	return "", nil
}

// resolveTarget finds a target by exact id, or by case-insensitive name.
func resolveTarget(ctx context.Context, backend relay.Backend, query string) (relay.Target, error) {
	targets, err := backend.Targets(ctx)
	if err != nil {
		return relay.Target{}, fmt.Errorf("list targets: %s", relay.Describe(err))
	}
	for _, t := range targets {
		if t.ID == query {
			return t, nil
		}
	}
	var matches []relay.Target
	for _, t := range targets {
		if strings.EqualFold(t.Name, query) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return relay.Target{}, fmt.Errorf("no agent or room named %q", query)
	case 1:
		return matches[0], nil
	default:
		return relay.Target{}, fmt.Errorf("%q is ambiguous (%d matches); use an id", query, len(matches))
	}
}

func newPolishCmd() *cobra.Command {
	var (
		flags clientFlags
		tone  string
	)

	cmd := &cobra.Command{
		Use:   "polish <text>",
		Short: "Polish text without sending it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := flags.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			polished, err := client.Polish(ctx, strings.Join(args, " "), tone)
			if err != nil {
				return fmt.Errorf("polish: %s", relay.Describe(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), polished)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&tone, "tone", "casual", "tone, e.g. casual, formal, friendly")
	return cmd
}

func newTargetsCmd() *cobra.Command {
	var flags clientFlags

	cmd := &cobra.Command{
		Use:   "targets",
		Short: "List agents and rooms",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := flags.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			targets, err := client.Targets(ctx)
			if err != nil {
				return fmt.Errorf("targets: %s", relay.Describe(err))
			}
			printTargets(cmd.OutOrStdout(), targets)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func printTargets(out io.Writer, targets []relay.Target) {
	if len(targets) == 0 {
		fmt.Fprintln(out, "No agents or rooms.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tNAME\tID\tMEMBERS")
	for _, t := range targets {
		members := "-"
		if t.IsRoom() {
			members = fmt.Sprintf("%d", len(t.Members))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Kind, t.Name, t.ID, members)
	}
	w.Flush()
}
