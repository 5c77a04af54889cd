package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	log "github.com/tuannvm/sprint-report/internal/logging"
)

const (
	// ProtocolVersion is the MCP revision the bridge negotiates.
	ProtocolVersion = "2024-11-05"

	methodInitialized = "notifications/initialized"
	initializeID      = 1
)

// ClientInfo identifies this client in the initialize request.
var ClientInfo = mcpgo.Implementation{
	Name:    "sprint-report",
	Version: "1.0.0",
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int   `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type initializeParams struct {
	ProtocolVersion string                   `json:"protocolVersion"`
	Capabilities    mcpgo.ClientCapabilities `json:"capabilities"`
	ClientInfo      mcpgo.Implementation     `json:"clientInfo"`
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// RPCError is the error descriptor carried by a failed response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Response is one decoded protocol line.
type Response struct {
	ID     *int            `json:"id"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// Notification reports whether the line was a server-initiated notification.
func (r *Response) Notification() bool {
	return r.ID == nil && r.Method != "" && r.Result == nil && r.Error == nil
}

type toolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError,omitempty"`
}

func encode(req request) ([]byte, error) {
	req.JSONRPC = mcpgo.JSONRPC_VERSION
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// EncodeInitialize builds the initialize request line.
func EncodeInitialize() ([]byte, error) {
	id := initializeID
	return encode(request{
		ID:     &id,
		Method: string(mcpgo.MethodInitialize),
		Params: initializeParams{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    mcpgo.ClientCapabilities{},
			ClientInfo:      ClientInfo,
		},
	})
}

// EncodeInitialized builds the initialized notification line.
func EncodeInitialized() ([]byte, error) {
	return encode(request{Method: methodInitialized})
}

// EncodeToolCall builds a tools/call request line.
func EncodeToolCall(id int, name string, args map[string]any) ([]byte, error) {
	if args == nil {
		args = map[string]any{}
	}
	return encode(request{
		ID:     &id,
		Method: string(mcpgo.MethodToolsCall),
		Params: toolCallParams{Name: name, Arguments: args},
	})
}

// ParseResponse decodes a single protocol line. A descriptor-carrying
// response is returned together with a KindToolError error.
func ParseResponse(line []byte) (*Response, error) {
	line = bytes.TrimSpace(line)
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		log.Errorf("Invalid JSON in MCP response: %s", preview(string(line)))
		return nil, newError(KindMalformed, "", "invalid JSON: "+preview(string(line)), err)
	}
	if resp.Error != nil {
		return &resp, newError(KindToolError, "",
			fmt.Sprintf("[%d] %s", resp.Error.Code, resp.Error.Message), nil)
	}
	if resp.Result == nil && !resp.Notification() {
		return nil, newError(KindMalformed, "", "response has neither result nor error: "+preview(string(line)), nil)
	}
	return &resp, nil
}

// DecodeToolResult unwraps the text-content envelope of a tool result and
// decodes the JSON document inside it.
func DecodeToolResult(resp *Response) (any, error) {
	if resp == nil || resp.Result == nil {
		return nil, newError(KindMalformed, "", "response missing result field", nil)
	}
	var tr toolResult
	if err := json.Unmarshal(resp.Result, &tr); err != nil {
		return nil, newError(KindMalformed, "", "invalid result envelope", err)
	}
	if len(tr.Content) == 0 {
		return nil, newError(KindMalformed, "", "response has empty content", nil)
	}
	text := tr.Content[0].Text
	if tr.IsError {
		return nil, newError(KindToolError, "", preview(text), nil)
	}

	var data any
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		log.Errorf("Invalid JSON in MCP response text: %s", preview(text))
		return nil, newError(KindMalformed, "", "invalid JSON in result text: "+preview(text), err)
	}
	return data, nil
}

// ParseBufferedLines parses several buffered output lines at once, skipping
// anything that is not a protocol message (container banners, log output).
func ParseBufferedLines(lines [][]byte) []*Response {
	var out []*Response
	for _, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var probe struct {
			JSONRPC string `json:"jsonrpc"`
		}
		if err := json.Unmarshal(line, &probe); err != nil || probe.JSONRPC == "" {
			log.Debugf("Skipping non-protocol line: %s", preview(string(line)))
			continue
		}
		resp, err := ParseResponse(line)
		if resp == nil {
			log.Debugf("Skipping unparseable protocol line: %v", err)
			continue
		}
		out = append(out, resp)
	}
	return out
}
