package mcp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// ErrReadTimeout is returned when no line arrives within the read timeout.
var ErrReadTimeout = errors.New("timed out waiting for a line")

const lineBuffer = 64

type lineResult struct {
	line []byte
	err  error
}

// LineReader reads newline-delimited messages from a stream that cannot be
// interrupted mid-read. A single pump goroutine owns the blocking reads and
// hands complete lines over a buffered channel, so a read abandoned on
// timeout leaves its line queued for the next caller.
type LineReader struct {
	lines chan lineResult
	stop  chan struct{}
	once  sync.Once
	err   error // sticky terminal error
}

// NewLineReader starts pumping lines from r.
func NewLineReader(r io.Reader) *LineReader {
	lr := &LineReader{
		lines: make(chan lineResult, lineBuffer),
		stop:  make(chan struct{}),
	}
	go lr.pump(r)
	return lr
}

// pump reads until the stream ends. After Close it keeps reading and
// discards lines, so the writer on the other end is never blocked.
func (lr *LineReader) pump(r io.Reader) {
	defer close(lr.lines)
	br := bufio.NewReaderSize(r, 64*1024)
	stopped := false
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 && !stopped {
			stopped = !lr.send(lineResult{line: bytes.TrimRight(line, "\r\n")})
		}
		if err != nil {
			if !stopped {
				lr.send(lineResult{err: err})
			}
			return
		}
	}
}

func (lr *LineReader) send(res lineResult) bool {
	select {
	case lr.lines <- res:
		return true
	case <-lr.stop:
		return false
	}
}

// ReadLine returns the next line, waiting at most timeout. It returns
// ErrReadTimeout on timeout, ctx.Err() on cancellation and io.EOF (or the
// underlying read error) once the stream has ended.
func (lr *LineReader) ReadLine(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if lr.err != nil {
		return nil, lr.err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res, ok := <-lr.lines:
		if !ok {
			lr.err = io.EOF
			return nil, lr.err
		}
		if res.err != nil {
			lr.err = res.err
			return nil, lr.err
		}
		return res.line, nil
	case <-timer.C:
		return nil, ErrReadTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops delivering lines. The pump drains the stream until it ends.
func (lr *LineReader) Close() {
	lr.once.Do(func() { close(lr.stop) })
}

// ReadLineWithTimeout performs a single blocking line read from r on a
// worker goroutine and waits at most timeout for it. On timeout the worker
// is abandoned and its eventual result discarded. Bytes are read one at a
// time so nothing past the newline is consumed from r.
func ReadLineWithTimeout(r io.Reader, timeout time.Duration) ([]byte, error) {
	ch := make(chan lineResult, 1)
	go func() {
		var buf []byte
		b := make([]byte, 1)
		for {
			n, err := r.Read(b)
			if n > 0 {
				if b[0] == '\n' {
					ch <- lineResult{line: bytes.TrimRight(buf, "\r")}
					return
				}
				buf = append(buf, b[0])
			}
			if err != nil {
				if len(buf) > 0 {
					ch <- lineResult{line: buf}
					return
				}
				ch <- lineResult{err: err}
				return
			}
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res.line, res.err
	case <-timer.C:
		return nil, ErrReadTimeout
	}
}
