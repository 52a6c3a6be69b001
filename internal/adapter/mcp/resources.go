package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"planforge://plans",
			"Plan List",
			mcplib.WithResourceDescription("List of all planning documents"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handlePlansResource,
	)
}

func (s *Server) handlePlansResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Plans == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"plan service not configured"}`,
			},
		}, nil
	}
	plans, err := s.deps.Plans.List(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(plans)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
