package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	log "github.com/tuannvm/sprint-report/internal/logging"
)

// Process is a running protocol server with piped standard streams.
type Process interface {
	Stdin() io.Writer
	Stdout() io.Reader
	Stderr() io.Reader
	Alive() bool
	// Terminate asks the process to exit, waits up to grace and then kills it.
	Terminate(grace time.Duration) error
	PID() int
}

// Launcher starts protocol server processes under a stable name.
type Launcher interface {
	Launch(ctx context.Context, name string) (Process, error)
	// Remove deletes any leftover process registered under name. Removing a
	// name that does not exist is not an error.
	Remove(ctx context.Context, name string) error
}

// ProcessName derives a process identity unique to one client in this host process.
func ProcessName(prefix string) string {
	return fmt.Sprintf("%s-%d-%s", prefix, os.Getpid(), uuid.NewString()[:8])
}

// DockerLauncher runs the protocol server as an interactive container.
type DockerLauncher struct {
	DockerPath string
	Image      string
	// Env is forwarded to the container by name; values travel through the
	// child environment so they never show up in the process list.
	Env map[string]string
}

func (d *DockerLauncher) docker() string {
	if d.DockerPath == "" {
		return "docker"
	}
	return d.DockerPath
}

func (d *DockerLauncher) runArgs(name string) []string {
	args := []string{"run", "-i", "--rm", "--name", name}
	keys := make([]string, 0, len(d.Env))
	for k := range d.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k)
	}
	args = append(args, "-e", "LANG=C.UTF-8", d.Image)
	return args
}

// Launch starts `docker run -i` for the configured image.
func (d *DockerLauncher) Launch(ctx context.Context, name string) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := exec.LookPath(d.docker()); err != nil {
		return nil, fmt.Errorf("container runtime not found: %w", err)
	}

	// The container outlives any single request, so it is not bound to ctx.
	cmd := exec.Command(d.docker(), d.runArgs(name)...)
	cmd.Env = os.Environ()
	for k, v := range d.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	log.Debugf("Starting MCP container %s from %s", name, d.Image)
	return startProcess(cmd)
}

// Remove force-removes a container left over from an earlier run.
func (d *DockerLauncher) Remove(ctx context.Context, name string) error {
	out, err := exec.CommandContext(ctx, d.docker(), "rm", "-f", name).CombinedOutput()
	if err != nil {
		if strings.Contains(string(out), "No such container") {
			return nil
		}
		return fmt.Errorf("docker rm %s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader
	done   chan struct{}

	mu      sync.Mutex
	waitErr error
}

func startProcess(cmd *exec.Cmd) (*execProcess, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	// Non-file writers make exec copy the output and finish copying before
	// Wait returns, so no trailing output is lost when the child exits.
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &execProcess{
		cmd:   cmd,
		stdin: stdin,
		// Invalid UTF-8 is replaced with U+FFFD instead of failing the read.
		stdout: transform.NewReader(outR, unicode.UTF8.NewDecoder()),
		stderr: errR,
		done:   make(chan struct{}),
	}
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		outW.Close()
		errW.Close()
		close(p.done)
	}()
	return p, nil
}

func (p *execProcess) Stdin() io.Writer  { return p.stdin }
func (p *execProcess) Stdout() io.Reader { return p.stdout }
func (p *execProcess) Stderr() io.Reader { return p.stderr }
func (p *execProcess) PID() int          { return p.cmd.Process.Pid }

func (p *execProcess) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *execProcess) Terminate(grace time.Duration) error {
	if !p.Alive() {
		return nil
	}
	p.stdin.Close()
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		log.Debugf("SIGTERM to pid %d failed: %v", p.PID(), err)
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(grace):
	}

	log.Warnf("MCP process %d did not exit within %s, killing it", p.PID(), grace)
	if err := p.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill pid %d: %w", p.PID(), err)
	}
	select {
	case <-p.done:
		return nil
	case <-time.After(grace):
		return fmt.Errorf("pid %d still running after kill", p.PID())
	}
}

// drainStderr logs the server's diagnostic output so the pipe never fills.
func drainStderr(name string, r io.Reader) {
	if r == nil {
		return
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		log.Debugf("[%s stderr] %s", name, sc.Text())
	}
}

var (
	registryMu sync.Mutex
	registry   = make(map[*Client]struct{})
)

func register(c *Client) {
	registryMu.Lock()
	registry[c] = struct{}{}
	registryMu.Unlock()
}

func unregister(c *Client) {
	registryMu.Lock()
	delete(registry, c)
	registryMu.Unlock()
}

// CloseAll closes every client that still owns a process. Owners are
// expected to Close their clients; this is the exit-time fallback.
func CloseAll() {
	registryMu.Lock()
	clients := make([]*Client, 0, len(registry))
	for c := range registry {
		clients = append(clients, c)
	}
	registryMu.Unlock()

	for _, c := range clients {
		if err := c.Close(); err != nil {
			log.Warnf("Failed to close MCP client %s: %v", c.Name(), err)
		}
	}
}
