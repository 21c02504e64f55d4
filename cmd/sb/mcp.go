package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/mcptools"
)

func newMCPCmd() *cobra.Command {
	var flags clientFlags

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the gateway as MCP tools over stdio",
		Long:  "Runs an MCP server on stdin/stdout so assistants can list targets, send messages, request replies and drive loops through a running gateway.",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := flags.client()
			if err != nil {
				return err
			}
			if err := mcptools.Serve(mcptools.Opts{Backend: client, Version: Version}); err != nil {
				return fmt.Errorf("mcp: %w", err)
			}
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
