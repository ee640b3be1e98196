// Package session provides the live shell handle used for delegated
// word expansion. A session is caller-owned shared state: this package
// never restarts a dead shell, never retries a failed exchange, and
// expects at most one in-flight request per session.
package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

// Session is one live shell accepting request lines. Run writes a
// single request to the shell and blocks for everything the shell
// printed in response. The context deadline bounds the exchange.
type Session interface {
	Run(ctx context.Context, line string) (string, error)
}

// DoneMarker terminates each request's output so replies can be framed
// without a pseudo-terminal prompt. Exported so callers can refuse
// payloads that would counterfeit the frame.
const DoneMarker = "__SHEXPAND_DONE__"

// ErrClosed is returned by Run on a session that is not open.
var ErrClosed = errors.New("session is not open")

// BashSession runs a dedicated bash process over pipes. The zero value
// is not usable; call NewBashSession and Open first, and Close when
// done. A session that times out mid-exchange is left in an unknown
// state and should be closed rather than reused.
type BashSession struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	out    *bufio.Reader
	logger *slog.Logger
	open   bool
}

// NewBashSession returns an unopened session. A nil logger disables
// the probe trace.
func NewBashSession(logger *slog.Logger) *BashSession {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &BashSession{logger: logger}
}

// Open spawns the shell process. Opening an open session is a no-op.
func (s *BashSession) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return nil
	}

	cmd := exec.Command("bash", "--norc", "--noediting")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start bash: %w", err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.out = bufio.NewReader(stdout)
	s.open = true
	return nil
}

// Run sends one request line and reads the shell's output for it.
// Concurrent callers are serialized; the contract remains one in-flight
// request per session, the lock only turns misuse into waiting instead
// of interleaved replies.
func (s *BashSession) Run(ctx context.Context, line string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return "", ErrClosed
	}
	s.logger.Debug("shell request", "line", line)

	req := line + "\nprintf '%s\\n' " + DoneMarker + "\n"

	type result struct {
		out string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		if _, err := io.WriteString(s.stdin, req); err != nil {
			ch <- result{err: fmt.Errorf("write request: %w", err)}
			return
		}
		var sb strings.Builder
		for {
			ln, err := s.out.ReadString('\n')
			if strings.TrimRight(ln, "\r\n") == DoneMarker {
				ch <- result{out: sb.String()}
				return
			}
			sb.WriteString(ln)
			if err != nil {
				ch <- result{out: sb.String(), err: fmt.Errorf("read reply: %w", err)}
				return
			}
		}
	}()

	select {
	case r := <-ch:
		s.logger.Debug("shell reply", "bytes", len(r.out), "err", r.err)
		return r.out, r.err
	case <-ctx.Done():
		// The reader goroutine is abandoned; the session can no longer
		// be trusted to frame replies and should be closed.
		return "", ctx.Err()
	}
}

// Close shuts the shell down. Bash exits when its input closes.
func (s *BashSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil
	}
	s.open = false
	_ = s.stdin.Close()
	return s.cmd.Wait()
}
