// Package mcp exposes the planning engines to AI agents over the Model
// Context Protocol.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/planforge/planforge/internal/domain/batch"
	"github.com/planforge/planforge/internal/domain/phase"
	"github.com/planforge/planforge/internal/domain/plan"
	"github.com/planforge/planforge/internal/domain/stats"
	"github.com/planforge/planforge/internal/domain/version"
)

// ServerConfig holds the MCP server settings.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
}

// PlanReader lists and fetches plan records.
type PlanReader interface {
	List(ctx context.Context) ([]plan.Plan, error)
	Get(ctx context.Context, id string) (*plan.Plan, error)
}

// PhaseEngine exposes the phase tree operations agents drive.
type PhaseEngine interface {
	Add(ctx context.Context, planID string, req phase.CreateRequest) (*phase.Phase, error)
	Tree(ctx context.Context, planID, rootID string, includeCompleted bool) ([]*phase.TreeNode, error)
	UpdateStatus(ctx context.Context, planID, phaseID string, req phase.StatusUpdateRequest) (*phase.StatusUpdateResult, error)
	NextActions(ctx context.Context, planID string, limit int) ([]phase.Action, error)
}

// BatchRunner executes multi-entity batches.
type BatchRunner interface {
	Execute(ctx context.Context, planID string, req batch.ExecuteRequest) (*batch.ExecuteResponse, error)
}

// HistoryReader answers version history and diff queries.
type HistoryReader interface {
	History(ctx context.Context, planID, entityID string, limit, offset int) ([]version.Snapshot, error)
	Diff(ctx context.Context, planID, entityID string, fromVersion, toVersion int) (map[string]version.FieldChange, error)
}

// StatsReader returns plan statistics.
type StatsReader interface {
	Get(ctx context.Context, planID string) (*stats.Statistics, error)
}

// ServerDeps carries the service dependencies for the MCP tools. Nil
// members disable the corresponding tools gracefully.
type ServerDeps struct {
	Plans    PlanReader
	Phases   PhaseEngine
	Batches  BatchRunner
	Versions HistoryReader
	Stats    StatsReader
}

// Server wraps an mcp-go server exposing PlanForge tools and resources.
type Server struct {
	cfg        ServerConfig
	deps       ServerDeps
	mcpServer  *mcpserver.MCPServer
	httpServer *mcpserver.StreamableHTTPServer
}

// NewServer creates the MCP server and registers all tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(
			cfg.Name,
			cfg.Version,
			mcpserver.WithToolCapabilities(true),
			mcpserver.WithResourceCapabilities(false, true),
		),
	}
	s.registerTools()
	s.registerResources()
	s.httpServer = mcpserver.NewStreamableHTTPServer(
		s.mcpServer,
		mcpserver.WithStateLess(true),
	)
	return s
}

// MCPServer exposes the underlying mcp-go server, mainly for tests.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Start begins serving MCP over streamable HTTP. It returns immediately;
// serve errors are logged.
func (s *Server) Start() error {
	go func() {
		slog.Info("mcp server listening", "addr", s.cfg.Addr)
		if err := s.httpServer.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server failed", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the MCP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// toolResultJSON wraps a JSON payload as a text tool result.
func toolResultJSON(data string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(data)
}
