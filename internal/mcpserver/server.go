package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all Sahaay tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("sahaay", "1.0.0")
	client := NewSahaayClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolGetTrustScore, h.HandleGetTrustScore)
	s.AddTool(ToolCheckAccess, h.HandleCheckAccess)
	s.AddTool(ToolListProblems, h.HandleListProblems)
	s.AddTool(ToolPostProblem, h.HandlePostProblem)
	s.AddTool(ToolLockEscrow, h.HandleLockEscrow)
	s.AddTool(ToolReleaseEscrow, h.HandleReleaseEscrow)
	s.AddTool(ToolDisputeEscrow, h.HandleDisputeEscrow)
	s.AddTool(ToolListNotifications, h.HandleListNotifications)

	return s
}
