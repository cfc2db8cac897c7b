// Package mcpserver exposes the agent as Model Context Protocol tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tinkerbelle-io/kube-medic/internal/engine"
	"github.com/tinkerbelle-io/kube-medic/internal/ledger"
	"github.com/tinkerbelle-io/kube-medic/internal/policy"
)

// Tool names.
const (
	ToolRunCycle      = "run_agent_cycle"
	ToolListIncidents = "list_incidents"
	ToolRestartCounts = "get_restart_counts"
)

// Engine is the agent surface served over MCP.
type Engine interface {
	RunCycle(ctx context.Context, input engine.Input) engine.Response
	ListIncidents(ctx context.Context, f ledger.Filter) ([]ledger.Incident, error)
	RestartCounts(ctx context.Context) ([]ledger.RestartCounter, error)
}

// Server wraps an mcp-go server bound to an Engine.
type Server struct {
	mcpServer *server.MCPServer
	engine    Engine
	log       *slog.Logger
}

// New registers the agent tools.
func New(eng Engine, version string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer("kube-medic", version),
		engine:    eng,
		log:       slog.Default().With("component", "mcp"),
	}

	s.mcpServer.AddTool(mcp.NewTool(ToolRunCycle,
		mcp.WithDescription("Run one monitor, analyze, decide and act cycle and return its result"),
		mcp.WithString("namespace", mcp.Description("Namespace to monitor for this run")),
	), s.handleRunCycle)

	s.mcpServer.AddTool(mcp.NewTool(ToolListIncidents,
		mcp.WithDescription("List recorded incidents, newest first"),
		mcp.WithBoolean("resolved", mcp.Description("Only incidents with this resolved state")),
		mcp.WithString("type", mcp.Description("Issue type: cpu or memory")),
		mcp.WithString("pod_name", mcp.Description("Only incidents for this pod")),
		mcp.WithString("namespace", mcp.Description("Only incidents in this namespace")),
		mcp.WithNumber("since", mcp.Description("Only incidents at or after this unix timestamp")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of incidents")),
	), s.handleListIncidents)

	s.mcpServer.AddTool(mcp.NewTool(ToolRestartCounts,
		mcp.WithDescription("Return today's automated restart count per pod"),
	), s.handleRestartCounts)

	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio serves MCP over stdin and stdout until the input closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// HTTPHandler serves MCP over streamable HTTP.
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcpServer)
}

func arguments(req mcp.CallToolRequest) map[string]interface{} {
	args, _ := req.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleRunCycle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input := engine.Input{}
	if ns, ok := arguments(req)["namespace"].(string); ok && ns != "" {
		input["namespace"] = ns
	}
	s.log.Info("agent cycle requested over MCP", "namespace", input["namespace"])

	resp := s.engine.RunCycle(ctx, input)
	if resp.Status == engine.StatusError {
		res, err := jsonResult(resp)
		if res != nil {
			res.IsError = true
		}
		return res, err
	}
	return jsonResult(resp)
}

func (s *Server) handleListIncidents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f, err := filterFromArgs(arguments(req))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	incidents, err := s.engine.ListIncidents(ctx, f)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list incidents: %v", err)), nil
	}
	return jsonResult(incidents)
}

func (s *Server) handleRestartCounts(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	counts, err := s.engine.RestartCounts(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("restart counts: %v", err)), nil
	}
	return jsonResult(counts)
}

func filterFromArgs(args map[string]interface{}) (ledger.Filter, error) {
	var f ledger.Filter
	if v, ok := args["resolved"]; ok {
		b, ok := v.(bool)
		if !ok {
			return f, fmt.Errorf("resolved must be a boolean")
		}
		f.Resolved = &b
	}
	if v, ok := args["type"].(string); ok && v != "" {
		t := policy.IssueType(v)
		if t != policy.IssueCPU && t != policy.IssueMemory {
			return f, fmt.Errorf("type must be cpu or memory, got %q", v)
		}
		f.Type = t
	}
	if v, ok := args["pod_name"].(string); ok {
		f.PodName = v
	}
	if v, ok := args["namespace"].(string); ok {
		f.Namespace = v
	}
	if v, ok := args["since"].(float64); ok {
		f.Since = int64(v)
	}
	if v, ok := args["limit"].(float64); ok {
		if v < 0 {
			return f, fmt.Errorf("limit must not be negative")
		}
		f.Limit = int(v)
	}
	return f, nil
}
