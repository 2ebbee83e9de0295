package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/mcp-telnet/pkg/client"
)

// fakeTelnet answers every command line with an echo and a canned
// response after a banner.
type fakeTelnet struct {
	host string
	port int
}

func startFakeTelnet(t *testing.T) *fakeTelnet {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				conn.Write([]byte("FakeBanner\r\n"))
				r := bufio.NewReader(conn)
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					cmd := strings.TrimRight(line, "\r\n")
					fmt.Fprintf(conn, "%s\r\nResponse to %s\r\n", cmd, cmd)
				}
			}()
		}
	}()

	t.Cleanup(func() { ln.Close() })
	return &fakeTelnet{host: "127.0.0.1", port: ln.Addr().(*net.TCPAddr).Port}
}

// newTestSession wires a toolkit into an in-memory MCP server and
// returns a connected client session.
func newTestSession(t *testing.T) (*mcp.ClientSession, *fakeTelnet) {
	t.Helper()
	ctx := context.Background()

	fake := startFakeTelnet(t)

	c := client.New(client.Config{
		ConnectTimeout: time.Second,
		CommandDelay:   20 * time.Millisecond,
		ResponseWait:   250 * time.Millisecond,
	})
	tk := New(c)
	t.Cleanup(func() { tk.Close() })

	server := mcp.NewServer(&mcp.Implementation{Name: "test-server", Version: "0.0.1"}, nil)
	tk.RegisterTools(server)
	tk.RegisterResources(server)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	_, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	mcpClient := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	session, err := mcpClient.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })

	return session, fake
}

// callTool invokes a tool and decodes its JSON text content.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) map[string]any {
	t.Helper()

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err)
	require.False(t, result.IsError, "tool returned error: %s", contentText(result))

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(contentText(result)), &out))
	return out
}

func contentText(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	if tc, ok := result.Content[0].(*mcp.TextContent); ok {
		return tc.Text
	}
	return ""
}

func TestToolkit_Tools(t *testing.T) {
	tk := New(client.New(client.Config{}))
	defer tk.Close()

	assert.Equal(t, []string{"telnet_client", "telnet_close_session", "telnet_list_sessions"}, tk.Tools())
}

func TestListTools(t *testing.T) {
	session, _ := newTestSession(t)

	result, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	names := make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"telnet_client", "telnet_close_session", "telnet_list_sessions"}, names)
}

func TestTelnetClientTool(t *testing.T) {
	session, fake := newTestSession(t)

	out := callTool(t, session, "telnet_client", map[string]any{
		"host":     fake.host,
		"port":     fake.port,
		"commands": []string{"cmd1", "cmd2"},
	})

	assert.Equal(t, fake.host, out["host"])
	assert.Equal(t, float64(fake.port), out["port"])
	assert.NotEmpty(t, out["session_id"])
	assert.Equal(t, true, out["session_active"])
	assert.Equal(t, "FakeBanner\n", out["initial_banner"])

	responses, ok := out["responses"].([]any)
	require.True(t, ok)
	require.Len(t, responses, 2)

	first := responses[0].(map[string]any)
	assert.Equal(t, "cmd1", first["command"])
	assert.Equal(t, "Response to cmd1\n", first["response"])
	assert.NotEmpty(t, first["timestamp"])
}

func TestTelnetClientTool_SessionReuseAndClose(t *testing.T) {
	session, fake := newTestSession(t)

	out := callTool(t, session, "telnet_client", map[string]any{
		"host":     fake.host,
		"port":     fake.port,
		"commands": []string{"cmd1"},
	})
	id := out["session_id"].(string)

	reused := callTool(t, session, "telnet_client", map[string]any{
		"host":       fake.host,
		"port":       fake.port,
		"session_id": id,
		"commands":   []string{"cmd2"},
	})
	assert.Equal(t, id, reused["session_id"])
	assert.Empty(t, reused["initial_banner"])

	closed := callTool(t, session, "telnet_close_session", map[string]any{
		"session_id": id,
	})
	assert.Equal(t, true, closed["success"])
	assert.Contains(t, closed["message"], id)

	again := callTool(t, session, "telnet_close_session", map[string]any{
		"session_id": id,
	})
	assert.Equal(t, false, again["success"])
	assert.Contains(t, again["message"], "not found")
}

func TestTelnetClientTool_TimingOverrides(t *testing.T) {
	session, fake := newTestSession(t)

	out := callTool(t, session, "telnet_client", map[string]any{
		"host":               fake.host,
		"port":               fake.port,
		"commands":           []string{"echo_test"},
		"command_delay":      0.0,
		"response_wait":      0.3,
		"strip_command_echo": false,
		"close_session":      true,
	})

	responses := out["responses"].([]any)
	require.Len(t, responses, 1)
	resp := responses[0].(map[string]any)
	assert.Equal(t, "echo_test\nResponse to echo_test\n", resp["response"])
	assert.Equal(t, false, out["session_active"])
}

func TestTelnetClientTool_ConnectFailure(t *testing.T) {
	session, _ := newTestSession(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "telnet_client",
		Arguments: map[string]any{
			"host":     "127.0.0.1",
			"port":     port,
			"commands": []string{"cmd1"},
		},
	})
	require.NoError(t, err, "connect failure is a tool error, not a protocol error")
	assert.True(t, result.IsError)
	assert.Contains(t, contentText(result), "Error")
}

func TestCloseSessionTool_MissingID(t *testing.T) {
	session, _ := newTestSession(t)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "telnet_close_session",
		Arguments: map[string]any{"session_id": ""},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, contentText(result), "session_id is required")
}

func TestListSessionsTool(t *testing.T) {
	session, fake := newTestSession(t)

	out := callTool(t, session, "telnet_list_sessions", nil)
	assert.Equal(t, float64(0), out["active_sessions"])

	created := callTool(t, session, "telnet_client", map[string]any{
		"host":     fake.host,
		"port":     fake.port,
		"commands": []string{"cmd1"},
	})
	id := created["session_id"].(string)

	out = callTool(t, session, "telnet_list_sessions", nil)
	assert.Equal(t, float64(1), out["active_sessions"])

	sessions, ok := out["sessions"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, sessions, id)

	info := sessions[id].(map[string]any)
	assert.Equal(t, fake.host, info["host"])
	assert.Equal(t, float64(fake.port), info["port"])
	assert.GreaterOrEqual(t, info["age_seconds"], 0.0)
}

func TestSessionResource(t *testing.T) {
	session, fake := newTestSession(t)

	created := callTool(t, session, "telnet_client", map[string]any{
		"host":     fake.host,
		"port":     fake.port,
		"commands": []string{"cmd1"},
	})
	id := created["session_id"].(string)

	result, err := session.ReadResource(context.Background(), &mcp.ReadResourceParams{
		URI: "telnet://sessions/" + id,
	})
	require.NoError(t, err)
	require.Len(t, result.Contents, 1)
	assert.Equal(t, "application/json", result.Contents[0].MIMEType)

	var res sessionResource
	require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &res))
	assert.Equal(t, id, res.SessionID)
	assert.Equal(t, fake.host, res.Host)
	assert.Equal(t, fake.port, res.Port)
	assert.False(t, res.Busy)
}

func TestSessionResource_NotFound(t *testing.T) {
	session, _ := newTestSession(t)

	_, err := session.ReadResource(context.Background(), &mcp.ReadResourceParams{
		URI: "telnet://sessions/no-such-session",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
