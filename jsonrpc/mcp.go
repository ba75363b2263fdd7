package jsonrpc

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
)

// ProtocolVersion is the MCP revision announced during initialize.
const ProtocolVersion = "2024-11-05"

// MCP method names used by the session driver.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
)

// MCP protocol types
type (
	Implementation struct {
		Name    string `json:"name" mapstructure:"name" validate:"required"`
		Version string `json:"version" mapstructure:"version" validate:"required"`
	}

	// ClientCapabilities is announced empty by this client.
	ClientCapabilities struct {
		Experimental map[string]any `json:"experimental,omitempty"`
		Sampling     *struct{}      `json:"sampling,omitempty"`
	}

	InitializeParams struct {
		ProtocolVersion string             `json:"protocolVersion"`
		Capabilities    ClientCapabilities `json:"capabilities"`
		ClientInfo      Implementation     `json:"clientInfo"`
	}

	InitializeResult struct {
		ProtocolVersion string         `json:"protocolVersion"`
		Capabilities    map[string]any `json:"capabilities,omitempty"`
		ServerInfo      Implementation `json:"serverInfo"`
		Instructions    string         `json:"instructions,omitempty"`
	}

	CallToolParams struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}

	ToolResult struct {
		Content           []Content       `json:"content"`
		StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
		IsError           bool            `json:"isError,omitempty"`
	}

	Content struct {
		Type     string `json:"type"`
		Text     string `json:"text,omitempty"`
		MimeType string `json:"mimeType,omitempty"`
	}
)

// NewCallToolParams builds tools/call params. Nil arguments are sent as {}.
func NewCallToolParams(name string, args map[string]any) CallToolParams {
	if args == nil {
		args = map[string]any{}
	}
	return CallToolParams{Name: name, Arguments: args}
}

// Text joins the text content items of the result.
func (r *ToolResult) Text() string {
	var parts []string
	for _, c := range r.Content {
		if c.Type == "text" && c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Decode unmarshals the tool payload into v. Structured content wins; otherwise
// the first text item is expected to hold JSON.
func (r *ToolResult) Decode(v any) error {
	if len(r.StructuredContent) > 0 {
		return json.Unmarshal(r.StructuredContent, v)
	}
	for _, c := range r.Content {
		if c.Type != "text" {
			continue
		}
		if err := json.Unmarshal([]byte(c.Text), v); err != nil {
			return errors.Wrap(err, "decode tool text content")
		}
		return nil
	}
	return errors.New("tool result has no decodable content")
}
