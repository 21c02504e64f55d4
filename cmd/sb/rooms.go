package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/gateway"
	"github.com/zulandar/switchboard/internal/relay"
)

func newRoomsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "Manage rooms",
	}

	cmd.AddCommand(newRoomsListCmd())
	cmd.AddCommand(newRoomsCreateCmd())
	cmd.AddCommand(newRoomsDeleteCmd())
	return cmd
}

func newRoomsListCmd() *cobra.Command {
	var flags clientFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rooms",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := flags.client()
			if err != nil {
				return err
			}
			targets, err := client.Targets(cmd.Context())
			if err != nil {
				return fmt.Errorf("rooms: %s", relay.Describe(err))
			}
			var rooms []relay.Target
			for _, t := range targets {
				if t.IsRoom() {
					rooms = append(rooms, t)
				}
			}
			printTargets(cmd.OutOrStdout(), rooms)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func newRoomsCreateCmd() *cobra.Command {
	var (
		flags            clientFlags
		note             string
		agents           []string
		noBackchanneling bool
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := flags.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			ids := make([]string, 0, len(agents))
			for _, a := range agents {
				t, err := resolveTarget(ctx, client, a)
				if err != nil {
					return err
				}
				if t.IsRoom() {
					return fmt.Errorf("rooms: %s is a room, not an agent", t.Label())
				}
				ids = append(ids, t.ID)
			}

			req := gateway.CreateRoomRequest{Name: args[0], Note: note, AgentIDs: ids}
			if noBackchanneling {
				off := false
				req.Backchanneling = &off
			}
			room, err := client.CreateRoom(ctx, req)
			if err != nil {
				return fmt.Errorf("rooms: %s", relay.Describe(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created room %s (%s) with %d agents\n", room.Name, room.UUID, len(room.Nomis))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&note, "note", "", "room note shown to its agents")
	cmd.Flags().StringArrayVarP(&agents, "agent", "a", nil, "member agent id or name (repeatable)")
	cmd.Flags().BoolVar(&noBackchanneling, "no-backchanneling", false, "disable backchanneling")
	cmd.MarkFlagRequired("agent")
	return cmd
}

func newRoomsDeleteCmd() *cobra.Command {
	var flags clientFlags

	cmd := &cobra.Command{
		Use:   "delete <room>",
		Short: "Delete a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := flags.client()
			if err != nil {
				return err
			}
			target, err := resolveTarget(cmd.Context(), client, args[0])
			if err != nil {
				return err
			}
			if !target.IsRoom() {
				return fmt.Errorf("rooms: %s is not a room", target.Label())
			}
			status, err := client.DeleteRoom(cmd.Context(), target.ID)
			if err != nil {
				return fmt.Errorf("rooms: %s", relay.Describe(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), status)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
