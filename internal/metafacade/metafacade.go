// Package metafacade implements the gateway's self-describing backend: the
// /mcp endpoint answers as if the gateway itself were a single MCP server
// exposing four tools (gateway_list_servers, gateway_list_tools,
// gateway_search_tools, gateway_invoke) that collapse the whole registry's
// tool surface into O(4) instead of O(sum of backend tool counts).
// Grounded on the original gateway's _handle_meta_mcp/_meta_tools_call
// dispatch, reimplemented over this gateway's own Adapter/Registry types.
package metafacade

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jonwraymond/mcp-gateway/internal/backend"
	"github.com/jonwraymond/mcp-gateway/internal/gwerrors"
	"github.com/jonwraymond/mcp-gateway/internal/registry"
	"github.com/jonwraymond/mcp-gateway/internal/rpc"
)

const (
	serverName        = "mcp-gateway"
	serverVersion     = "1.0.0"
	serverDescription = "Universal MCP Gateway with Meta-MCP for dynamic tool discovery"
	protocolVersion   = "2024-11-05"

	defaultSearchLimit = 10
	descriptionMaxLen  = 200
)

// Facade answers the MCP protocol on behalf of the gateway itself.
type Facade struct {
	reg *registry.Registry
}

// New builds a Facade over reg.
func New(reg *registry.Registry) *Facade {
	return &Facade{reg: reg}
}

// Handle dispatches one JSON-RPC request to the meta protocol, per spec
// §4.7's method table.
func (f *Facade) Handle(ctx context.Context, req *rpc.Request) *rpc.Response {
	switch {
	case req.Method == "initialize":
		return f.initialize(req)
	case req.Method == "tools/list":
		return f.toolsList(req)
	case req.Method == "tools/call":
		return f.toolsCall(ctx, req)
	case strings.HasPrefix(req.Method, "notifications/"):
		resp, _ := rpc.NewResult(req.ID, nil)
		return resp
	default:
		return rpc.NewError(req.ID, rpc.CodeMethodNotFound, "Unknown method: "+req.Method)
	}
}

func (f *Facade) initialize(req *rpc.Request) *rpc.Response {
	resp, _ := rpc.NewResult(req.ID, map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{"tools": map[string]any{}},
		"serverInfo": map[string]any{
			"name":        serverName,
			"version":     serverVersion,
			"description": serverDescription,
		},
	})
	return resp
}

func (f *Facade) toolsList(req *rpc.Request) *rpc.Response {
	resp, _ := rpc.NewResult(req.ID, map[string]any{"tools": metaToolSchemas})
	return resp
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (f *Facade) toolsCall(ctx context.Context, req *rpc.Request) *rpc.Response {
	var params toolCallParams
	if req.Params != nil {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return rpc.NewError(req.ID, rpc.CodeInvalidParams, "invalid params: "+err.Error())
		}
	}

	var args map[string]any
	if len(params.Arguments) > 0 {
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			return rpc.NewError(req.ID, rpc.CodeInvalidParams, "invalid arguments: "+err.Error())
		}
	}
	if args == nil {
		args = map[string]any{}
	}

	var (
		result any
		callErr *gwerrors.Error
	)
	switch params.Name {
	case "gateway_list_servers":
		result = f.listServers()
	case "gateway_list_tools":
		result, callErr = f.listTools(ctx, args)
	case "gateway_search_tools":
		result, callErr = f.searchTools(ctx, args)
	case "gateway_invoke":
		result, callErr = f.invoke(ctx, args)
	default:
		return rpc.NewError(req.ID, rpc.CodeInvalidParams, "unknown tool: "+params.Name)
	}
	if callErr != nil {
		return rpc.NewError(req.ID, callErr.Code, callErr.Message)
	}

	resp, err := rpc.NewResult(req.ID, toolResultEnvelope(result))
	if err != nil {
		return rpc.NewError(req.ID, rpc.CodeServerError, "failed to encode result: "+err.Error())
	}
	return resp
}

// toolResultEnvelope wraps a value as the MCP tool-result shape: a single
// text content block carrying the JSON-encoded payload.
func toolResultEnvelope(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		raw = []byte(`{}`)
	}
	return map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": string(raw)},
		},
	}
}

type serverSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Transport   string `json:"transport"`
	Running     bool   `json:"running"`
	ToolsCount  int    `json:"tools_count"`
}

// listServers emits the registry snapshot without starting any backend.
func (f *Facade) listServers() map[string]any {
	names := f.reg.Names()
	servers := make([]serverSummary, 0, len(names))
	for _, name := range names {
		a, ok := f.reg.Get(name)
		if !ok {
			continue
		}
		servers = append(servers, serverSummary{
			Name:        name,
			Description: a.Config.Description,
			Transport:   string(a.Config.TransportType()),
			Running:     a.Running(),
			ToolsCount:  a.ToolsCount(),
		})
	}
	return map[string]any{"servers": servers}
}

func (f *Facade) listTools(ctx context.Context, args map[string]any) (map[string]any, *gwerrors.Error) {
	serverName, _ := args["server"].(string)
	if serverName == "" {
		return nil, gwerrors.Protocol(rpc.CodeInvalidParams, "missing required argument: server")
	}
	a, ok := f.reg.Get(serverName)
	if !ok {
		return nil, gwerrors.UnknownBackend(serverName)
	}
	tools, err := cachedTools(ctx, a)
	if err != nil {
		return nil, err
	}
	return map[string]any{"server": serverName, "tools": tools}, nil
}

func (f *Facade) searchTools(ctx context.Context, args map[string]any) (map[string]any, *gwerrors.Error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, gwerrors.Protocol(rpc.CodeInvalidParams, "missing required argument: query")
	}
	limit := defaultSearchLimit
	if l, ok := numberArg(args["limit"]); ok {
		limit = l
	}

	matches := make([]map[string]any, 0, limit)
	if limit <= 0 {
		return map[string]any{"matches": matches}, nil
	}

	lowerQuery := strings.ToLower(query)
	for _, name := range f.reg.Names() {
		if len(matches) >= limit {
			break
		}
		a, ok := f.reg.Get(name)
		if !ok {
			continue
		}
		tools, err := cachedTools(ctx, a)
		if err != nil {
			continue
		}
		for _, t := range tools {
			if len(matches) >= limit {
				break
			}
			toolName, _ := t["name"].(string)
			desc, _ := t["description"].(string)
			if strings.Contains(strings.ToLower(toolName), lowerQuery) ||
				strings.Contains(strings.ToLower(desc), lowerQuery) {
				matches = append(matches, map[string]any{
					"server":      name,
					"tool":        toolName,
					"description": truncate(desc, descriptionMaxLen),
				})
			}
		}
	}
	return map[string]any{"matches": matches}, nil
}

func (f *Facade) invoke(ctx context.Context, args map[string]any) (*rpc.Response, *gwerrors.Error) {
	serverName, _ := args["server"].(string)
	if serverName == "" {
		return nil, gwerrors.Protocol(rpc.CodeInvalidParams, "missing required argument: server")
	}
	toolName, _ := args["tool"].(string)
	if toolName == "" {
		return nil, gwerrors.Protocol(rpc.CodeInvalidParams, "missing required argument: tool")
	}
	a, ok := f.reg.Get(serverName)
	if !ok {
		return nil, gwerrors.UnknownBackend(serverName)
	}

	arguments, _ := args["arguments"].(map[string]any)
	if arguments == nil {
		arguments = map[string]any{}
	}
	params, err := json.Marshal(map[string]any{"name": toolName, "arguments": arguments})
	if err != nil {
		return nil, gwerrors.Protocol(rpc.CodeInvalidParams, "invalid arguments: %v", err)
	}

	callReq := &rpc.Request{
		JSONRPC: rpc.Version,
		Method:  "tools/call",
		ID:      json.RawMessage(`1`),
		Params:  params,
	}
	if err := a.Start(ctx); err != nil {
		if gwErr, ok := err.(*gwerrors.Error); ok {
			return nil, gwErr
		}
		return nil, gwerrors.Transport("%v", err)
	}
	resp, sendErr := a.Send(ctx, callReq)
	if sendErr != nil {
		if gwErr, ok := sendErr.(*gwerrors.Error); ok {
			return nil, gwErr
		}
		return nil, gwerrors.Transport("%v", sendErr)
	}
	return resp, nil
}

// cachedTools ensures a is started and returns its cached tools/list
// entries as plain maps for inspection (search, listTools).
func cachedTools(ctx context.Context, a *backend.Adapter) ([]map[string]any, *gwerrors.Error) {
	toolsResp, err := a.Tools(ctx)
	if err != nil {
		if gwErr, ok := err.(*gwerrors.Error); ok {
			return nil, gwErr
		}
		return nil, gwerrors.Transport("%v", err)
	}
	var payload struct {
		Tools []map[string]any `json:"tools"`
	}
	if toolsResp.Result != nil {
		_ = json.Unmarshal(toolsResp.Result, &payload)
	}
	return payload.Tools, nil
}

func numberArg(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// metaToolSchemas is the fixed four-tool schema returned from tools/list,
// verbatim per spec §6.
var metaToolSchemas = []map[string]any{
	{
		"name":        "gateway_list_servers",
		"description": "List all configured MCP backend servers and their status.",
		"inputSchema": map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		"name":        "gateway_list_tools",
		"description": "List the tools exposed by a specific backend server.",
		"inputSchema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"server": map[string]any{"type": "string", "description": "Backend server name"},
			},
			"required": []string{"server"},
		},
	},
	{
		"name":        "gateway_search_tools",
		"description": "Search across all backend servers for tools matching a query.",
		"inputSchema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "Case-insensitive substring to match against tool name/description"},
				"limit": map[string]any{"type": "integer", "description": "Maximum number of matches to return", "default": defaultSearchLimit},
			},
			"required": []string{"query"},
		},
	},
	{
		"name":        "gateway_invoke",
		"description": "Invoke a tool on a specific backend server.",
		"inputSchema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"server":    map[string]any{"type": "string", "description": "Backend server name"},
				"tool":      map[string]any{"type": "string", "description": "Tool name on that server"},
				"arguments": map[string]any{"type": "object", "description": "Arguments to pass to the tool", "default": map[string]any{}},
			},
			"required": []string{"server", "tool"},
		},
	},
}
