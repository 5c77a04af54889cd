// Package mcptest runs mcp-go servers in-process behind the mcp.Launcher
// interface so the bridge can be exercised without a container runtime.
package mcptest

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tuannvm/sprint-report/internal/mcp"
)

// NewServer returns an MCP server advertising tool capabilities.
func NewServer() *server.MCPServer {
	return server.NewMCPServer("mcptest", "0.0.1", server.WithToolCapabilities(true))
}

// AddJSONTool registers a tool whose result is fn's return value encoded as
// JSON text, the way mcp-atlassian answers. An error from fn becomes a tool
// result flagged isError.
func AddJSONTool(s *server.MCPServer, name string, fn func(args map[string]any) (any, error)) {
	tool := mcpgo.NewTool(name, mcpgo.WithDescription("test tool "+name))
	s.AddTool(tool, func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		out, err := fn(req.GetArguments())
		if err != nil {
			return mcpgo.NewToolResultError(err.Error()), nil
		}
		if raw, ok := out.(json.RawMessage); ok {
			return mcpgo.NewToolResultText(string(raw)), nil
		}
		b, err := json.Marshal(out)
		if err != nil {
			return nil, err
		}
		return mcpgo.NewToolResultText(string(b)), nil
	})
}

// Launcher starts a fresh stdio session on Server for every launch.
type Launcher struct {
	Server *server.MCPServer

	mu       sync.Mutex
	launches int
	removed  []string
}

// NewLauncher wraps s.
func NewLauncher(s *server.MCPServer) *Launcher {
	return &Launcher{Server: s}
}

// Launch implements mcp.Launcher.
func (l *Launcher) Launch(_ context.Context, _ string) (mcp.Process, error) {
	l.mu.Lock()
	l.launches++
	pid := 4000 + l.launches
	l.mu.Unlock()

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	p := &process{
		pid:    pid,
		stdin:  inW,
		stdout: outR,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		_ = server.NewStdioServer(l.Server).Listen(ctx, inR, outW)
		outW.Close()
	}()
	return p, nil
}

// Remove implements mcp.Launcher.
func (l *Launcher) Remove(_ context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removed = append(l.removed, name)
	return nil
}

// Launches reports how many sessions were started.
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

type process struct {
	pid    int
	stdin  *io.PipeWriter
	stdout *io.PipeReader
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *process) Stdin() io.Writer  { return p.stdin }
func (p *process) Stdout() io.Reader { return p.stdout }
func (p *process) Stderr() io.Reader { return strings.NewReader("") }
func (p *process) PID() int          { return p.pid }

func (p *process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *process) Terminate(grace time.Duration) error {
	p.cancel()
	p.stdin.Close()
	p.stdout.Close()
	select {
	case <-p.done:
	case <-time.After(grace):
	}
	return nil
}
