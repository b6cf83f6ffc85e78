// Package mcpserver publishes the webpage converter as an MCP tool so other
// agents can call it over stdio or streamable HTTP.
package mcpserver

import (
	"context"
	"net/http"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/reinhart/webmd/internal/assistant"
	"github.com/reinhart/webmd/internal/logger"
)

type ParseWebpageArgs struct {
	URL string `json:"url" jsonschema:"The URL of the webpage to parse"`
}

// New returns a server exposing parseWebpageToMarkdown backed by conv.
func New(conv assistant.WebpageConverter, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "webmd", Version: version}, nil)

	def := (&assistant.WebpageTool{}).Definition()
	mcp.AddTool(server, &mcp.Tool{
		Name:        def.Name,
		Description: def.Description,
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ParseWebpageArgs) (*mcp.CallToolResult, any, error) {
		logger.Info("MCP %s(%s)", def.Name, args.URL)
		md, err := conv.ParseWebpageToMarkdown(ctx, args.URL)
		if err != nil {
			logger.Warn("MCP %s failed: %v", def.Name, err)
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
			}, nil, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: md}},
		}, nil, nil
	})

	return server
}

func ServeStdio(ctx context.Context, server *mcp.Server) error {
	transport := &mcp.StdioTransport{}
	t := &mcp.LoggingTransport{Transport: transport, Writer: os.Stderr}
	logger.Info("Starting webmd MCP server with stdio transport")
	return server.Run(ctx, t)
}

// Handler serves the streamable HTTP transport.
func Handler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)
}

func ServeHTTP(server *mcp.Server, httpAddress string) error {
	logger.Info("webmd MCP handler listening at %s", httpAddress)
	return http.ListenAndServe(httpAddress, Handler(server))
}
