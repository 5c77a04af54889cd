package mcp

import (
	"errors"
	"fmt"
)

// Kind classifies a bridge failure.
type Kind int

const (
	KindInternal Kind = iota
	KindLaunch
	KindHandshake
	KindTimeout
	KindNoResponse
	KindMalformed
	KindToolError
	KindConnection
)

func (k Kind) String() string {
	switch k {
	case KindLaunch:
		return "launch"
	case KindHandshake:
		return "handshake"
	case KindTimeout:
		return "timeout"
	case KindNoResponse:
		return "no response"
	case KindMalformed:
		return "malformed response"
	case KindToolError:
		return "tool error"
	case KindConnection:
		return "connection"
	default:
		return "internal"
	}
}

// Error is the single error type returned by the bridge.
type Error struct {
	Kind Kind
	Op   string // tool or lifecycle step that failed
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("mcp %s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("mcp %s (%s): %s", e.Kind, e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// IsKind reports whether err is a bridge error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// IsBridgeError reports whether err originated in the bridge.
func IsBridgeError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// wrap returns err unchanged when it is already a bridge error, otherwise an internal one.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return newError(KindInternal, op, "unexpected error", err)
}

func preview(s string) string {
	const max = 200
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
