// Package mcp exposes the signal operations as MCP tools over stdio or
// streamable HTTP.
package mcp

import (
	"context"
	"errors"
	"net/http"

	"github.com/louisbranch/signals.agent/internal/platform/branding"
	"github.com/louisbranch/signals.agent/internal/platform/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// serverVersion identifies the MCP server version.
const serverVersion = "0.1.0"

// serverName identifies this MCP server to clients.
var serverName = branding.AppName + " MCP"

// Server hosts the signal tools.
type Server struct {
	mcpServer *mcp.Server
	logger    logging.Logger
}

// New registers the discovery and activation tools against exec. When exec
// also lists platforms, the examples tool is registered too.
func New(exec Executor, logger logging.Logger) (*Server, error) {
	if exec == nil {
		return nil, errors.New("executor is required")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Title:   branding.AppName,
		Version: serverVersion,
	}, &mcp.ServerOptions{Instructions: branding.AgentDescription})

	mcp.AddTool(mcpServer, GetSignalsTool(), GetSignalsHandler(exec))
	mcp.AddTool(mcpServer, ActivateSignalTool(), ActivateSignalHandler(exec))
	mcp.AddTool(mcpServer, CheckActivationStatusTool(), CheckActivationStatusHandler(exec))
	if lister, ok := exec.(PlatformLister); ok {
		mcp.AddTool(mcpServer, GetSignalExamplesTool(), GetSignalExamplesHandler(lister))
	}

	return &Server{mcpServer: mcpServer, logger: logger}, nil
}

// Serve runs the server on transport until ctx is canceled or the peer
// disconnects.
func (s *Server) Serve(ctx context.Context, transport mcp.Transport) error {
	s.logger.Info("mcp session starting")
	err := s.mcpServer.Run(ctx, transport)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// ServeStdio runs the server on standard input and output.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.Serve(ctx, &mcp.StdioTransport{})
}

// HTTPHandler serves the streamable HTTP transport. Bearer token details
// reach tool handlers through the SDK request metadata.
func (s *Server) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, &mcp.StreamableHTTPOptions{JSONResponse: true})
}
