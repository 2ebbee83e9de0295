// Package tools exposes the telnet client as MCP tools and resources.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/txn2/mcp-telnet/pkg/client"
)

// Tool names.
const (
	toolTelnetClient = "telnet_client"
	toolCloseSession = "telnet_close_session"
	toolListSessions = "telnet_list_sessions"
)

var errSessionIDRequired = errors.New("session_id is required")

// Toolkit registers the telnet tools against an MCP server.
type Toolkit struct {
	client *client.Client
}

// New creates a Toolkit around a telnet client.
func New(c *client.Client) *Toolkit {
	return &Toolkit{client: c}
}

// Close releases the underlying client and every open session.
func (t *Toolkit) Close() error {
	return t.client.Close()
}

// Tools returns the tool names provided by this toolkit.
func (*Toolkit) Tools() []string {
	return []string{toolTelnetClient, toolCloseSession, toolListSessions}
}

// RegisterTools registers all tools with the MCP server.
func (t *Toolkit) RegisterTools(s *mcp.Server) {
	mcp.AddTool(s, &mcp.Tool{
		Name: toolTelnetClient,
		Description: "Connect to a telnet server, execute commands, and collect " +
			"each command's response. Sessions persist across calls: pass the " +
			"returned session_id to reuse the connection, close_session=true to " +
			"close it afterwards. Delays are seconds; command_delay paces between " +
			"write and read, response_wait bounds each read.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in telnetClientInput) (*mcp.CallToolResult, any, error) {
		return t.handleTelnetClient(ctx, req, in)
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        toolCloseSession,
		Description: "Close an active telnet session by its session_id.",
		Annotations: &mcp.ToolAnnotations{IdempotentHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, in closeSessionInput) (*mcp.CallToolResult, any, error) {
		return t.handleCloseSession(ctx, req, in)
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        toolListSessions,
		Description: "List all active telnet sessions with host, port, and age.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, in listSessionsInput) (*mcp.CallToolResult, any, error) {
		return t.handleListSessions(ctx, req, in)
	})
}

// telnetClientInput defines the input schema for the telnet_client tool.
// Timing fields are pointers so zero is distinguishable from unset.
type telnetClientInput struct {
	Host             string   `json:"host"`
	Port             int      `json:"port"`
	Commands         []string `json:"commands"`
	SessionID        string   `json:"session_id,omitempty"`
	CommandDelay     *float64 `json:"command_delay,omitempty"`
	ResponseWait     *float64 `json:"response_wait,omitempty"`
	ReadTimeout      *int     `json:"read_timeout,omitempty"`
	StripCommandEcho *bool    `json:"strip_command_echo,omitempty"`
	PromptPattern    string   `json:"prompt_pattern,omitempty"`
	CloseSession     bool     `json:"close_session,omitempty"`
}

type closeSessionInput struct {
	SessionID string `json:"session_id"`
}

type listSessionsInput struct{}

func (t *Toolkit) handleTelnetClient(ctx context.Context, _ *mcp.CallToolRequest, in telnetClientInput) (*mcp.CallToolResult, any, error) {
	req := client.Request{
		Host:          in.Host,
		Port:          in.Port,
		Commands:      in.Commands,
		SessionID:     in.SessionID,
		CommandDelay:  secondsPtr(in.CommandDelay),
		ResponseWait:  secondsPtr(in.ResponseWait),
		StripEcho:     in.StripCommandEcho,
		PromptPattern: in.PromptPattern,
		CloseSession:  in.CloseSession,
	}
	if in.ReadTimeout != nil {
		d := time.Duration(*in.ReadTimeout) * time.Second
		req.ReadTimeout = &d
	}

	result, err := t.client.Execute(ctx, req)
	if err != nil {
		slog.Error("telnet_client failed", "host", in.Host, "port", in.Port, "error", err)
		return errorResult(err), nil, nil
	}
	return jsonResult(result)
}

func (t *Toolkit) handleCloseSession(_ context.Context, _ *mcp.CallToolRequest, in closeSessionInput) (*mcp.CallToolResult, any, error) {
	if in.SessionID == "" {
		return errorResult(errSessionIDRequired), nil, nil
	}
	return jsonResult(t.client.CloseSession(in.SessionID))
}

func (t *Toolkit) handleListSessions(_ context.Context, _ *mcp.CallToolRequest, _ listSessionsInput) (*mcp.CallToolResult, any, error) {
	return jsonResult(t.client.ListSessions())
}

// jsonResult marshals a value into a JSON text tool result.
func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

// errorResult wraps an error as a tool-level failure. Tool errors are
// returned in CallToolResult.IsError, not as Go errors.
func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: "Error: " + err.Error()}},
		IsError: true,
	}
}

func secondsPtr(v *float64) *time.Duration {
	if v == nil {
		return nil
	}
	d := time.Duration(*v * float64(time.Second))
	return &d
}
