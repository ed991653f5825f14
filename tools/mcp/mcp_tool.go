// Package mcp exposes the tools of external MCP servers as agent tools.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/m4xw311/tinker/config"
	"github.com/m4xw311/tinker/errors"
	"github.com/m4xw311/tinker/logging"
	"github.com/m4xw311/tinker/tools"
)

// MCPClient manages the connection to a single MCP server subprocess.
type MCPClient struct {
	Name   string
	cmd    *exec.Cmd
	conn   *mcpsdk.ClientSession
	tools  map[string]*MCPTool
	logger *slog.Logger
}

// NewMCPClient starts the MCP server subprocess and discovers its tools.
func NewMCPClient(ctx context.Context, server config.MCPServer, logger *slog.Logger) (*MCPClient, error) {
	logger = logging.OrDefault(logger)
	cmd := exec.Command(server.Command, server.Args...)
	cmd.Stderr = os.Stderr
	mcpClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "tinker", Version: "v1.0.0"}, nil)
	conn, err := mcpClient.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", server.Name)
	}
	client := &MCPClient{
		Name:   server.Name,
		cmd:    cmd,
		conn:   conn,
		tools:  make(map[string]*MCPTool),
		logger: logger,
	}

	params := &mcpsdk.ListToolsParams{}
	for {
		list, err := conn.ListTools(ctx, params)
		if err != nil {
			_ = client.Stop()
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", server.Name)
		}
		for _, t := range list.Tools {
			client.tools[t.Name] = &MCPTool{
				serverName:  server.Name,
				toolName:    t.Name,
				description: describe(t),
				client:      client,
			}
		}
		if list.NextCursor == "" {
			break
		}
		params.Cursor = list.NextCursor
	}

	logger.Info("Initialized MCP client", "server", server.Name, "tools", len(client.tools))
	return client, nil
}

// Tools returns every tool the server offers.
func (c *MCPClient) Tools() []*MCPTool {
	out := make([]*MCPTool, 0, len(c.tools))
	for _, t := range c.tools {
		out = append(out, t)
	}
	return out
}

// Stop terminates the MCP server subprocess.
func (c *MCPClient) Stop() error {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		c.logger.Info("Terminating MCP server", "server", c.Name)
		return c.cmd.Process.Kill()
	}
	return nil
}

// Register starts every configured server and adds its tools to registry.
// The returned clients must be stopped by the caller. On error, clients
// already started are stopped.
func Register(ctx context.Context, registry *tools.ToolRegistry, servers []config.MCPServer, logger *slog.Logger) ([]*MCPClient, error) {
	var clients []*MCPClient
	fail := func(err error) ([]*MCPClient, error) {
		for _, c := range clients {
			_ = c.Stop()
		}
		return nil, err
	}

	for _, server := range servers {
		c, err := NewMCPClient(ctx, server, logger)
		if err != nil {
			return fail(err)
		}
		clients = append(clients, c)
		for _, t := range c.Tools() {
			if err := registry.Register(t); err != nil {
				return fail(err)
			}
		}
	}
	return clients, nil
}

// MCPTool is a tool served by an external MCP server.
type MCPTool struct {
	serverName  string
	toolName    string
	description string
	client      *MCPClient
}

// Name returns "<server>.<tool>", so toolsets can select a whole server with
// "<server>.*".
func (t *MCPTool) Name() string {
	return t.serverName + "." + t.toolName
}

func (t *MCPTool) Description() string {
	return t.description
}

// Params is nil: arguments are validated by the server against its own schema.
func (t *MCPTool) Params() []tools.Param {
	return nil
}

func (t *MCPTool) Execute(ctx context.Context, args map[string]interface{}) tools.Result {
	result, err := t.client.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      t.toolName,
		Arguments: args,
	})
	if err != nil {
		return tools.Failuref(errors.ErrCapabilityExecutionFailed, "failed to call tool '%s': %v", t.Name(), err)
	}
	text := contentText(result.Content)
	if result.IsError {
		return tools.Failure(errors.ErrCapabilityExecutionFailed, text)
	}
	return tools.Ok(text)
}

func contentText(content []mcpsdk.Content) string {
	var sb strings.Builder
	for _, c := range content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

func describe(t *mcpsdk.Tool) string {
	if t.InputSchema == nil {
		return t.Description
	}
	schema, err := json.Marshal(t.InputSchema)
	if err != nil {
		return t.Description
	}
	return t.Description + "\nInput schema: " + string(schema)
}
