package main

import (
	"fmt"
	"log"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	realmmcp "github.com/aileks/realm-sync/internal/mcp"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP (Model Context Protocol) server over stdio",
		Long: `Starts an MCP JSON-RPC 2.0 server that reads from stdin and writes to stdout.
All diagnostic logs go to stderr so that stdout remains exclusively MCP protocol traffic.

Every tool call acts as mcp.user_id (or --user).

Tools exposed:
  list_entities, find_similar, confirm_entity, reject_entity,
  merge_entities, remove_entity, list_facts, confirm_fact,
  reject_fact, remove_fact, process_document, project_stats`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()

			userID := cfg.MCP.UserID
			if userFlag != "" {
				userID = userFlag
			}
			if userID == "" {
				return fmt.Errorf("mcp: set mcp.user_id or pass --user")
			}

			svc, cleanup, err := openServices(cmd.Context(), logger)
			if err != nil {
				// Start anyway; tool calls report the outage.
				logger.Error("mcp: failed to open services; tool calls will fail", "error", err)
				svc, cleanup = nil, func() {}
			}
			defer cleanup()

			srv := realmmcp.NewServer(svc, userID, logger)

			// Use a standard log.Logger pointing at stderr for the mcp-go error logger.
			errLogger := log.New(os.Stderr, "mcp: ", log.LstdFlags)

			logger.Info("mcp: realm-sync MCP server starting", "transport", "stdio", "user_id", userID)

			return mcpserver.ServeStdio(
				srv.MCPServer(),
				mcpserver.WithErrorLogger(errLogger),
			)
		},
	}

	return cmd
}
