package mcp

import (
	"bytes"
	"context"
	"errors"

	log "github.com/tuannvm/sprint-report/internal/logging"
)

// SessionState tracks the initialize exchange for the current process.
type SessionState int

const (
	StateUninitialized SessionState = iota
	StateInitializing
	StateReady
)

func (s SessionState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// handshake runs initialize, waits for its response and only then sends the
// initialized notification. Must be called with c.mu held.
func (c *Client) handshake(ctx context.Context) error {
	const op = "initialize"

	req, err := EncodeInitialize()
	if err != nil {
		return newError(KindHandshake, op, "encode initialize request", err)
	}
	if _, err := c.proc.Stdin().Write(req); err != nil {
		return newError(KindHandshake, op, "failed to send initialize request", err)
	}

	resp, err := c.readInitializeResponse(ctx)
	if err != nil {
		return err
	}
	if resp.ID != nil && *resp.ID != initializeID {
		return newError(KindHandshake, op, "initialize response carries an unexpected id", nil)
	}

	note, err := EncodeInitialized()
	if err != nil {
		return newError(KindHandshake, op, "encode initialized notification", err)
	}
	if _, err := c.proc.Stdin().Write(note); err != nil {
		return newError(KindHandshake, op, "failed to send initialized notification", err)
	}

	if c.cfg.DrainTimeout > 0 {
		line, err := c.reader.ReadLine(ctx, c.cfg.DrainTimeout)
		switch {
		case err == nil:
			log.Debugf("Discarded post-initialization message: %s", preview(string(line)))
		case errors.Is(err, ErrReadTimeout):
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return newError(KindHandshake, op, "handshake cancelled", err)
		default:
			return newError(KindHandshake, op, "server exited after initialization", err)
		}
	}
	return nil
}

func (c *Client) readInitializeResponse(ctx context.Context) (*Response, error) {
	const op = "initialize"
	for {
		line, err := c.reader.ReadLine(ctx, c.cfg.HandshakeTimeout)
		if errors.Is(err, ErrReadTimeout) {
			return nil, newError(KindHandshake, op, "timed out waiting for initialize response", err)
		}
		if err != nil {
			return nil, newError(KindHandshake, op, "no initialize response", err)
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		resp, err := ParseResponse(line)
		if err != nil {
			return nil, newError(KindHandshake, op, "initialization error", err)
		}
		if resp.Notification() {
			continue
		}
		return resp, nil
	}
}
