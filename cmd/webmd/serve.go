package main

import (
	"github.com/reinhart/webmd/internal/mcpserver"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose parseWebpageToMarkdown as an MCP server",
	Long: `Serve the webpage-to-Markdown tool over the Model Context Protocol.
Without --http the server speaks MCP on stdin/stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		httpAddress, _ := cmd.Flags().GetString("http")

		server := mcpserver.New(newConverter(cfg), version)
		if httpAddress != "" {
			return mcpserver.ServeHTTP(server, httpAddress)
		}
		return mcpserver.ServeStdio(cmd.Context(), server)
	},
}

func init() {
	serveCmd.Flags().String("http", "", "listen address for the streamable HTTP transport, e.g. localhost:8080")
	rootCmd.AddCommand(serveCmd)
}
