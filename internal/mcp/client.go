package mcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	log "github.com/tuannvm/sprint-report/internal/logging"
)

const (
	DefaultCallTimeout      = 60 * time.Second
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultHealthTimeout    = 5 * time.Second
	DefaultDrainTimeout     = 500 * time.Millisecond
	DefaultStopGrace        = 5 * time.Second
	DefaultFailureThreshold = 2

	maxRequestID = 10000
)

// ClientConfig configures a Client. Zero durations fall back to the defaults,
// except DrainTimeout where a negative value disables the post-init drain.
type ClientConfig struct {
	Launcher Launcher
	// Name is the process identity; generated from NamePrefix when empty.
	Name       string
	NamePrefix string

	CallTimeout      time.Duration
	HandshakeTimeout time.Duration
	HealthTimeout    time.Duration
	DrainTimeout     time.Duration
	StopGrace        time.Duration
	FailureThreshold int

	// HealthTool and HealthArgs form the lightweight call used by CheckConnection.
	HealthTool string
	HealthArgs map[string]any
}

func (cfg *ClientConfig) applyDefaults() {
	if cfg.NamePrefix == "" {
		cfg.NamePrefix = "mcp"
	}
	if cfg.Name == "" {
		cfg.Name = ProcessName(cfg.NamePrefix)
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = DefaultHealthTimeout
	}
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultStopGrace
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
}

// Health is a snapshot of the client's failure tracking.
type Health struct {
	ConsecutiveFailures int
	Healthy             bool
}

// Client is a persistent MCP session over a single subprocess. Calls are
// serialized; one request is in flight at a time.
type Client struct {
	cfg ClientConfig

	mu       sync.Mutex
	proc     Process
	reader   *LineReader
	state    SessionState
	failures int
	healthy  bool
	// ids of requests abandoned on timeout whose late responses must be skipped
	stale map[int]struct{}
	newID func() int
}

// NewClient creates a client. No process is started until the first call.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Launcher == nil {
		return nil, errors.New("mcp: launcher is required")
	}
	cfg.applyDefaults()
	return &Client{
		cfg:     cfg,
		healthy: true,
		stale:   make(map[int]struct{}),
		newID:   func() int { return rand.IntN(maxRequestID) + 1 },
	}, nil
}

// Name returns the process identity used for the subprocess.
func (c *Client) Name() string { return c.cfg.Name }

// Health returns the current failure counters.
func (c *Client) Health() Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Health{ConsecutiveFailures: c.failures, Healthy: c.healthy}
}

// State returns the handshake state of the current process.
func (c *Client) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PID returns the pid of the live process, or 0 when none is running.
func (c *Client) PID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proc == nil {
		return 0
	}
	return c.proc.PID()
}

// EnsureRunning starts the process and completes the handshake if needed.
// It is a no-op while a ready process is alive.
func (c *Client) EnsureRunning(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureRunning(ctx)
}

func (c *Client) ensureRunning(ctx context.Context) error {
	if c.proc != nil && c.proc.Alive() && c.state == StateReady {
		return nil
	}
	if c.proc != nil {
		log.Warnf("MCP process %s is no longer running, restarting", c.cfg.Name)
		c.closeLocked()
	}

	if err := c.cfg.Launcher.Remove(ctx, c.cfg.Name); err != nil {
		log.Debugf("Stale process cleanup for %s failed: %v", c.cfg.Name, err)
	}

	proc, err := c.cfg.Launcher.Launch(ctx, c.cfg.Name)
	if err != nil {
		return newError(KindLaunch, "launch", "failed to start MCP server", err)
	}
	log.Infof("Started MCP server %s (pid %d)", c.cfg.Name, proc.PID())

	c.proc = proc
	c.reader = NewLineReader(proc.Stdout())
	c.state = StateInitializing
	c.stale = make(map[int]struct{})
	register(c)
	go drainStderr(c.cfg.Name, proc.Stderr())

	if err := c.handshake(ctx); err != nil {
		c.closeLocked()
		return err
	}
	c.state = StateReady
	log.Debugf("MCP session %s ready", c.cfg.Name)
	return nil
}

// Close terminates the process. It is safe to call repeatedly and on a
// client that never started; a later call launches a fresh process.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	unregister(c)
	return nil
}

// closeLocked stops the process and resets the session, including the
// failure count, which is per process.
func (c *Client) closeLocked() {
	c.state = StateUninitialized
	c.failures = 0
	c.healthy = true
	if c.proc == nil {
		return
	}
	proc, reader := c.proc, c.reader
	c.proc, c.reader = nil, nil

	// Stop the reader first; it drains stdout until the child exits.
	if reader != nil {
		reader.Close()
	}
	if err := proc.Terminate(c.cfg.StopGrace); err != nil {
		log.Warnf("Failed to stop MCP process %s: %v", c.cfg.Name, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.cfg.Launcher.Remove(ctx, c.cfg.Name); err != nil {
		log.Debugf("Cleanup of %s failed: %v", c.cfg.Name, err)
	}
}

func (c *Client) restart(ctx context.Context) error {
	c.closeLocked()
	return c.ensureRunning(ctx)
}

// Call invokes a tool and returns its decoded JSON payload. After
// FailureThreshold consecutive failures a timeout restarts the process and
// retries the call once.
func (c *Client) Call(ctx context.Context, tool string, args map[string]any) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.call(ctx, tool, args, c.cfg.CallTimeout)
}

func (c *Client) call(ctx context.Context, tool string, args map[string]any, timeout time.Duration) (any, error) {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var data any
		data, err = c.callOnce(ctx, tool, args, timeout)
		if err == nil {
			c.failures = 0
			c.healthy = true
			return data, nil
		}

		err = wrap(tool, err)
		c.failures++
		c.healthy = false

		if attempt > 0 || !IsKind(err, KindTimeout) || c.failures < c.cfg.FailureThreshold {
			return nil, err
		}

		log.Warnf("MCP call %s timed out %d times in a row, restarting %s", tool, c.failures, c.cfg.Name)
		if rerr := c.restart(ctx); rerr != nil {
			return nil, rerr
		}
	}
	return nil, err
}

func (c *Client) callOnce(ctx context.Context, tool string, args map[string]any, timeout time.Duration) (any, error) {
	if err := c.ensureRunning(ctx); err != nil {
		return nil, err
	}

	id := c.nextID()
	req, err := EncodeToolCall(id, tool, args)
	if err != nil {
		return nil, newError(KindInternal, tool, "encode request", err)
	}
	if _, err := c.proc.Stdin().Write(req); err != nil {
		return nil, newError(KindNoResponse, tool, "failed to send request (process may have exited)", err)
	}

	resp, err := c.readResponse(ctx, tool, id, timeout)
	if err != nil {
		return nil, err
	}
	data, err := DecodeToolResult(resp)
	if err != nil {
		return nil, withOp(err, tool)
	}
	return data, nil
}

func (c *Client) nextID() int {
	for {
		id := c.newID()
		if _, taken := c.stale[id]; !taken && id != initializeID {
			return id
		}
	}
}

func (c *Client) readResponse(ctx context.Context, tool string, id int, timeout time.Duration) (*Response, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.stale[id] = struct{}{}
			return nil, newError(KindTimeout, tool, fmt.Sprintf("no response within %s", timeout), ErrReadTimeout)
		}

		line, err := c.reader.ReadLine(ctx, remaining)
		switch {
		case errors.Is(err, ErrReadTimeout):
			c.stale[id] = struct{}{}
			return nil, newError(KindTimeout, tool, fmt.Sprintf("no response within %s", timeout), err)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			c.stale[id] = struct{}{}
			return nil, newError(KindInternal, tool, "call cancelled", err)
		case err != nil:
			return nil, newError(KindNoResponse, tool, "no response from MCP server (process may have crashed)", err)
		}

		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		resp, perr := ParseResponse(line)
		if resp != nil && resp.Notification() {
			log.Debugf("Ignoring server notification %s", resp.Method)
			continue
		}
		if resp != nil && resp.ID != nil && *resp.ID != id {
			if _, ok := c.stale[*resp.ID]; ok {
				delete(c.stale, *resp.ID)
				log.Debugf("Skipping late response to abandoned request %d", *resp.ID)
				continue
			}
			return nil, newError(KindMalformed, tool,
				fmt.Sprintf("response id %d does not match request id %d", *resp.ID, id), nil)
		}
		if perr != nil {
			return nil, withOp(perr, tool)
		}
		return resp, nil
	}
}

// CheckConnection issues the configured health call with the short health
// timeout.
func (c *Client) CheckConnection(ctx context.Context) (bool, error) {
	if c.cfg.HealthTool == "" {
		return false, newError(KindConnection, "health", "no health tool configured", nil)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.call(ctx, c.cfg.HealthTool, c.cfg.HealthArgs, c.cfg.HealthTimeout); err != nil {
		return false, newError(KindConnection, c.cfg.HealthTool, "connection test failed", err)
	}
	return true, nil
}

func withOp(err error, op string) error {
	var e *Error
	if errors.As(err, &e) && e.Op == "" {
		e.Op = op
	}
	return err
}
