package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/xeipuuv/gojsonschema"

	"github.com/ordkit/ordinals-x402/pkg/logger"
)

// toolSpec binds one MCP tool to an API call.
type toolSpec struct {
	name        string
	description string
	schema      map[string]any
	invoke      func(ctx context.Context, c *PayingClient, args map[string]any) (json.RawMessage, error)
}

var toolSpecs = []toolSpec{
	{
		name:        "create_inscription",
		description: "Create a Bitcoin Ordinals inscription. This is a paid operation.",
		schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"content":         map[string]any{"type": "string", "description": "Content to inscribe"},
				"content_type":    map[string]any{"type": "string", "description": "MIME type of the content"},
				"receive_address": map[string]any{"type": "string", "description": "Bitcoin address to receive the inscription"},
				"fee_rate":        map[string]any{"type": "integer", "minimum": 1, "description": "Fee rate in sat/vB"},
			},
			"required": []any{"content", "content_type", "receive_address"},
		},
		invoke: func(ctx context.Context, c *PayingClient, args map[string]any) (json.RawMessage, error) {
			return c.Call(ctx, http.MethodPost, "/api/v1/inscriptions", args)
		},
	},
	{
		name:        "get_address",
		description: "Look up the balance and activity of a Bitcoin address. This is a paid operation.",
		schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"address": map[string]any{"type": "string", "description": "Bitcoin address"},
			},
			"required": []any{"address"},
		},
		invoke: func(ctx context.Context, c *PayingClient, args map[string]any) (json.RawMessage, error) {
			address, _ := args["address"].(string)
			return c.Call(ctx, http.MethodGet, "/api/v1/address/"+url.PathEscape(address), nil)
		},
	},
	{
		name:        "get_transaction",
		description: "Look up a Bitcoin transaction by txid. This is a paid operation.",
		schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"txid": map[string]any{"type": "string", "description": "Transaction id (hex)"},
			},
			"required": []any{"txid"},
		},
		invoke: func(ctx context.Context, c *PayingClient, args map[string]any) (json.RawMessage, error) {
			txid, _ := args["txid"].(string)
			return c.Call(ctx, http.MethodGet, "/api/v1/tx/"+url.PathEscape(txid), nil)
		},
	},
	{
		name:        "get_fees",
		description: "Get recommended Bitcoin fee rates. This is a paid operation.",
		schema:      map[string]any{"type": "object"},
		invoke: func(ctx context.Context, c *PayingClient, _ map[string]any) (json.RawMessage, error) {
			return c.Call(ctx, http.MethodGet, "/api/v1/fees", nil)
		},
	},
	{
		name:        "get_network_info",
		description: "Get the Bitcoin network and current block height. Free.",
		schema:      map[string]any{"type": "object"},
		invoke: func(ctx context.Context, c *PayingClient, _ map[string]any) (json.RawMessage, error) {
			return c.Call(ctx, http.MethodGet, "/api/v1/network", nil)
		},
	},
	{
		name:        "get_stats",
		description: "Get mempool statistics. Free.",
		schema:      map[string]any{"type": "object"},
		invoke: func(ctx context.Context, c *PayingClient, _ map[string]any) (json.RawMessage, error) {
			return c.Call(ctx, http.MethodGet, "/api/v1/stats", nil)
		},
	},
}

// MCPServer exposes the priced API as MCP tools over stdio, paying
// challenges with the bridge's credential.
type MCPServer struct {
	server *mcpsdk.Server
	client *PayingClient
	log    logger.Logger
}

// NewMCPServer builds the tool surface on top of a paying client.
func NewMCPServer(client *PayingClient, log logger.Logger) (*MCPServer, error) {
	if log == nil {
		log = logger.NoopLogger{}
	}

	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "ordinals-x402",
		Version: "1.0.0",
	}, nil)

	s := &MCPServer{server: server, client: client, log: log}

	for _, spec := range toolSpecs {
		schemaJSON, err := json.Marshal(spec.schema)
		if err != nil {
			return nil, fmt.Errorf("failed to encode schema for %s: %w", spec.name, err)
		}
		validator, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
		if err != nil {
			return nil, fmt.Errorf("invalid schema for %s: %w", spec.name, err)
		}

		spec := spec
		server.AddTool(&mcpsdk.Tool{
			Name:        spec.name,
			Description: spec.description,
			InputSchema: spec.schema,
		}, func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			return s.handleTool(ctx, spec, validator, req)
		})
	}
	return s, nil
}

func (s *MCPServer) handleTool(ctx context.Context, spec toolSpec, validator *gojsonschema.Schema, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	args := make(map[string]any)
	if req.Params.Arguments != nil {
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return toolError(fmt.Sprintf("unparseable arguments: %v", err)), nil
		}
	}

	validation, err := validator.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return toolError(fmt.Sprintf("argument validation failed: %v", err)), nil
	}
	if !validation.Valid() {
		msg := "invalid arguments"
		if errs := validation.Errors(); len(errs) > 0 {
			msg = errs[0].String()
		}
		return toolError(msg), nil
	}

	result, err := spec.invoke(ctx, s.client, args)
	if err != nil {
		s.log.Warn("tool call failed", map[string]any{"tool": spec.name, "error": err.Error()})
		return toolError(err.Error()), nil
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(result)}},
	}, nil
}

func toolError(message string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: message}},
	}
}

// Run serves MCP over stdio until ctx is cancelled. Logs must go to
// stderr only; stdout belongs to the protocol.
func (s *MCPServer) Run(ctx context.Context) error {
	s.log.Info("mcp bridge listening on stdio", nil)
	return s.server.Run(ctx, &mcpsdk.StdioTransport{})
}

// Server exposes the underlying MCP server for in-memory transports in
// tests.
func (s *MCPServer) Server() *mcpsdk.Server {
	return s.server
}
