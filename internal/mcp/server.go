// Package mcp exposes one surface and the resolution engine as MCP tools.
package mcp

import (
	"context"
	"errors"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"voiceui/internal/engine"
	"voiceui/internal/surface"
)

// Config holds MCP server configuration.
type Config struct {
	Engine  engine.Engine
	Surface surface.Surface
	Logger  zerolog.Logger
}

// Server wraps the MCP SDK server around a single surface.
type Server struct {
	mcpServer *mcpsdk.Server
	engine    engine.Engine
	surface   surface.Surface
	logger    zerolog.Logger

	// Commands mutate the surface; one at a time.
	mu sync.Mutex
}

// New creates an MCP server with the voice tools registered.
func New(cfg Config) (*Server, error) {
	if cfg.Surface == nil {
		return nil, errors.New("mcp: surface is required")
	}
	s := &Server{
		engine:  cfg.Engine,
		surface: cfg.Surface,
		logger:  cfg.Logger.With().Str("component", "mcp").Logger(),
	}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "voiceui",
			Version: "0.1.0",
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info().Msg("mcp server listening on stdio")
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "surface_inventory",
		Description: "List the visible interactive elements of the loaded page with their locators.",
	}, s.handleInventory)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "voice_command",
		Description: "Resolve a spoken command against the loaded page and execute it. Returns the outcome record.",
	}, s.handleCommand)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "surface_events",
		Description: "List the UI events dispatched on an in-memory page so far (click, focus, input, change, scroll).",
	}, s.handleEvents)
}
