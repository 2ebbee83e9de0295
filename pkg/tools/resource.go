package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/yosida95/uritemplate/v3"
)

// sessionTemplateURI addresses one active session's metadata.
const sessionTemplateURI = "telnet://sessions/{session_id}"

// RegisterResources registers the session resource template.
func (t *Toolkit) RegisterResources(s *mcp.Server) {
	s.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: sessionTemplateURI,
		Name:        "Telnet Session",
		Description: "Metadata for one active telnet session: endpoint, age, and whether a call currently holds it.",
		MIMEType:    "application/json",
	}, t.handleSessionResource)
}

// sessionResource is the serialized form of one session's metadata.
type sessionResource struct {
	SessionID  string  `json:"session_id"`
	Host       string  `json:"host"`
	Port       int     `json:"port"`
	AgeSeconds float64 `json:"age_seconds"`
	Busy       bool    `json:"busy"`
}

// handleSessionResource handles telnet://sessions/{session_id} reads.
func (t *Toolkit) handleSessionResource(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI

	vars, err := parseTemplateVars(sessionTemplateURI, uri)
	if err != nil {
		return nil, mcp.ResourceNotFoundError(uri) //nolint:wrapcheck // MCP protocol error returned as-is for SDK type matching
	}
	id := vars["session_id"]
	if id == "" {
		return nil, mcp.ResourceNotFoundError(uri) //nolint:wrapcheck // MCP protocol error returned as-is for SDK type matching
	}

	info, ok := t.client.Store().Get(id)
	if !ok {
		return nil, mcp.ResourceNotFoundError(uri) //nolint:wrapcheck // MCP protocol error returned as-is for SDK type matching
	}

	data, err := json.MarshalIndent(sessionResource{
		SessionID:  info.ID,
		Host:       info.Host,
		Port:       info.Port,
		AgeSeconds: info.Age().Seconds(),
		Busy:       info.Busy,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling resource %s: %w", uri, err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}

// parseTemplateVars extracts named variables from a URI using a URI
// template.
func parseTemplateVars(templateStr, uri string) (map[string]string, error) {
	tmpl, err := uritemplate.New(templateStr)
	if err != nil {
		return nil, fmt.Errorf("invalid template %q: %w", templateStr, err)
	}

	match := tmpl.Match(uri)
	if match == nil {
		return nil, fmt.Errorf("uri %q does not match template %q", uri, templateStr)
	}

	result := make(map[string]string)
	for _, name := range tmpl.Varnames() {
		result[name] = match.Get(name).String()
	}
	return result, nil
}
