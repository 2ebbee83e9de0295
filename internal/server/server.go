// Package server wires configuration into a runnable MCP server.
package server

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/txn2/mcp-telnet/pkg/auth"
	"github.com/txn2/mcp-telnet/pkg/client"
	"github.com/txn2/mcp-telnet/pkg/config"
	"github.com/txn2/mcp-telnet/pkg/tools"
)

// Version is set at build time.
var Version = "dev"

// Server bundles the MCP server with the toolkit that owns the telnet
// sessions.
type Server struct {
	cfg     *config.Config
	mcp     *mcp.Server
	toolkit *tools.Toolkit
}

// New builds a server from configuration.
func New(cfg *config.Config) *Server {
	telnetClient := client.New(client.Config{
		ConnectTimeout:  cfg.Telnet.ConnectTimeout,
		CommandDelay:    cfg.Telnet.CommandDelay,
		ResponseWait:    cfg.Telnet.ResponseWait,
		ReadTimeout:     cfg.Telnet.ReadTimeout,
		PromptPattern:   cfg.Telnet.PromptPattern,
		MaxCommands:     cfg.Telnet.MaxCommands,
		SessionTTL:      cfg.Session.TTL,
		CleanupInterval: cfg.Session.CleanupInterval,
	})

	toolkit := tools.New(telnetClient)

	version := cfg.Server.Version
	if version == "" {
		version = Version
	}
	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Server.Name,
		Version: version,
	}, nil)

	toolkit.RegisterTools(mcpServer)
	toolkit.RegisterResources(mcpServer)

	return &Server{cfg: cfg, mcp: mcpServer, toolkit: toolkit}
}

// MCP returns the underlying MCP server.
func (s *Server) MCP() *mcp.Server { return s.mcp }

// Config returns the server configuration.
func (s *Server) Config() *config.Config { return s.cfg }

// Authenticator builds the authenticator chain from configuration, or
// nil when no methods are configured.
func (s *Server) Authenticator() auth.Authenticator {
	var chain auth.Chain

	if len(s.cfg.Auth.APIKeys) > 0 {
		keys := make([]auth.APIKey, 0, len(s.cfg.Auth.APIKeys))
		for _, k := range s.cfg.Auth.APIKeys {
			keys = append(keys, auth.APIKey{Value: k.Key, Hash: k.KeyHash, Name: k.Name})
		}
		chain = append(chain, auth.NewAPIKeyAuthenticator(keys))
	}
	if s.cfg.Auth.BearerSecret != "" {
		chain = append(chain, auth.NewBearerAuthenticator([]byte(s.cfg.Auth.BearerSecret)))
	}

	if len(chain) == 0 {
		return nil
	}
	return chain
}

// Close releases the toolkit and every open telnet session.
func (s *Server) Close() error {
	return s.toolkit.Close()
}
