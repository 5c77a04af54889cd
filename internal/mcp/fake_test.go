package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// rpcMessage is what the fake server sees on its stdin.
type rpcMessage struct {
	ID     *int            `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (m rpcMessage) toolName() string {
	var p struct {
		Name string `json:"name"`
	}
	_ = json.Unmarshal(m.Params, &p)
	return p.Name
}

type fakeProcess struct {
	pid     int
	launch  int
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter

	mu         sync.Mutex
	alive      bool
	terminated int
}

func newFakeProcess(pid, launch int) *fakeProcess {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	return &fakeProcess{
		pid: pid, launch: launch,
		stdinR: inR, stdinW: inW,
		stdoutR: outR, stdoutW: outW,
		alive: true,
	}
}

func (p *fakeProcess) Stdin() io.Writer  { return p.stdinW }
func (p *fakeProcess) Stdout() io.Reader { return p.stdoutR }
func (p *fakeProcess) Stderr() io.Reader { return strings.NewReader("") }
func (p *fakeProcess) PID() int          { return p.pid }

func (p *fakeProcess) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

func (p *fakeProcess) Terminate(time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminated++
	p.alive = false
	p.stdinR.Close()
	p.stdoutW.Close()
	return nil
}

// crash simulates the server exiting on its own.
func (p *fakeProcess) crash() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive = false
	p.stdoutW.Close()
}

func (p *fakeProcess) writeLine(s string) {
	_, _ = io.WriteString(p.stdoutW, s+"\n")
}

func (p *fakeProcess) replyInit(id int) {
	p.writeLine(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":{"protocolVersion":"2024-11-05","capabilities":{},"serverInfo":{"name":"fake","version":"0"}}}`, id))
}

// replyText answers a tool call with payload wrapped in a text-content envelope.
func (p *fakeProcess) replyText(id int, payload string) {
	text, _ := json.Marshal(payload)
	p.writeLine(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":{"content":[{"type":"text","text":%s}]}}`, id, text))
}

func (p *fakeProcess) replyError(id, code int, msg string) {
	p.writeLine(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"error":{"code":%d,"message":%q}}`, id, code, msg))
}

// serve feeds every stdin message to handle until the process stops.
func (p *fakeProcess) serve(handle func(p *fakeProcess, m rpcMessage)) {
	sc := bufio.NewScanner(p.stdinR)
	for sc.Scan() {
		var m rpcMessage
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			continue
		}
		handle(p, m)
	}
}

type fakeLauncher struct {
	handle    func(p *fakeProcess, m rpcMessage)
	launchErr error

	mu       sync.Mutex
	launches int
	removed  []string
	procs    []*fakeProcess
	calls    []string
}

func (l *fakeLauncher) Launch(_ context.Context, _ string) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	l.launches++
	p := newFakeProcess(1000+l.launches, l.launches)
	l.procs = append(l.procs, p)
	go p.serve(func(p *fakeProcess, m rpcMessage) {
		if m.Method == "tools/call" {
			l.mu.Lock()
			l.calls = append(l.calls, m.toolName())
			l.mu.Unlock()
		}
		l.handle(p, m)
	})
	return p, nil
}

func (l *fakeLauncher) Remove(_ context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removed = append(l.removed, name)
	return nil
}

func (l *fakeLauncher) launchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

func (l *fakeLauncher) toolCalls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// answering returns a handler that completes the handshake and answers
// every tool call with payload.
func answering(payload string) func(p *fakeProcess, m rpcMessage) {
	return func(p *fakeProcess, m rpcMessage) {
		switch m.Method {
		case "initialize":
			p.replyInit(*m.ID)
		case "tools/call":
			p.replyText(*m.ID, payload)
		}
	}
}

// silentCalls completes the handshake and never answers tool calls.
func silentCalls(p *fakeProcess, m rpcMessage) {
	if m.Method == "initialize" {
		p.replyInit(*m.ID)
	}
}

func testConfig(l Launcher) ClientConfig {
	return ClientConfig{
		Launcher:         l,
		Name:             "mcp-test",
		CallTimeout:      100 * time.Millisecond,
		HandshakeTimeout: time.Second,
		HealthTimeout:    100 * time.Millisecond,
		DrainTimeout:     -1,
		StopGrace:        100 * time.Millisecond,
	}
}

var errNoRuntime = errors.New("exec: \"docker\": executable file not found in $PATH")
