package mcpadapter

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/collision-estimator/internal/core/ports"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Server exposes estimation and manual search as MCP tools.
type Server struct {
	estimator ports.EstimateService
	searcher  ports.ManualSearcher
	indexer   ports.CorpusIndexer
	mcp       *server.MCPServer
}

func NewServer(estimator ports.EstimateService, searcher ports.ManualSearcher, indexer ports.CorpusIndexer) *Server {
	s := &Server{
		estimator: estimator,
		searcher:  searcher,
		indexer:   indexer,
	}
	s.mcp = server.NewMCPServer(
		"collision-estimator",
		Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.mcp.AddTool(estimateRepairTool, s.handleEstimateRepair)
	s.mcp.AddTool(searchManualsTool, s.handleSearchManuals)
	s.mcp.AddTool(indexStatusTool, s.handleIndexStatus)
	return s
}

// Serve runs the server on stdio. Stdout carries protocol messages, so all
// logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
