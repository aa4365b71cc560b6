package gtp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/park285/goban-server/internal/obslog"
	"go.uber.org/zap"
)

const (
	DefaultQuitGrace = 3 * time.Second
	lineBuffer       = 64
)

var (
	ErrSpawn          = errors.New("engine spawn failed")
	ErrClosed         = errors.New("engine session closed")
	ErrSessionBroken  = errors.New("engine session out of sync")
	ErrInvalidCommand = errors.New("invalid gtp command")
)

// ProtocolError is an error response ("? ...") returned by the engine.
type ProtocolError struct {
	Command  string
	Response string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("gtp %q: %s", e.Command, strings.TrimSpace(e.Response))
}

type Options struct {
	QuitGrace time.Duration
	Stderr    io.Writer
	Dir       string
}

// Session owns one engine process. Exactly one command/response exchange is in
// flight at a time; the write and the read of an exchange happen under the same turn.
type Session struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan string
	done  chan struct{}

	exited  chan struct{}
	exitErr error

	turn     chan struct{}
	broken   atomic.Bool
	quitOnce sync.Once
	grace    time.Duration
	pid      int
}

func Start(path string, args []string, opt Options) (*Session, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty executable path", ErrSpawn)
	}

	cmd := exec.Command(path, args...)
	cmd.Dir = opt.Dir
	cmd.Stderr = opt.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrSpawn, err)
	}
	// The read end stays ours so that Wait cannot close it under a pending read.
	pr, pw, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrSpawn, err)
	}
	cmd.Stdout = pw

	if err := cmd.Start(); err != nil {
		stdin.Close()
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrSpawn, path, err)
	}
	pw.Close()

	grace := opt.QuitGrace
	if grace <= 0 {
		grace = DefaultQuitGrace
	}

	s := &Session{
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan string, lineBuffer),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
		turn:   make(chan struct{}, 1),
		grace:  grace,
		pid:    cmd.Process.Pid,
	}

	go s.readLoop(pr)
	go func() {
		s.exitErr = cmd.Wait()
		close(s.exited)
	}()

	obslog.L().Info("engine_spawned", zap.Int("pid", s.pid), zap.String("path", path))
	return s, nil
}

func (s *Session) PID() int { return s.pid }

// Send writes one command line and returns the raw response block, which ends at
// the first blank line or at end of stream.
func (s *Session) Send(ctx context.Context, command string) (string, error) {
	command = strings.TrimSpace(command)
	if command == "" || strings.ContainsAny(command, "\r\n") {
		return "", fmt.Errorf("%w: %q", ErrInvalidCommand, command)
	}

	select {
	case s.turn <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-s.turn }()

	if s.broken.Load() {
		return "", ErrSessionBroken
	}
	select {
	case <-s.exited:
		return "", ErrClosed
	default:
	}

	if _, err := io.WriteString(s.stdin, command+"\n"); err != nil {
		return "", fmt.Errorf("write %q: %w", command, err)
	}

	var acc strings.Builder
read:
	for {
		select {
		case <-ctx.Done():
			// The rest of this response is still in the pipe; later exchanges would
			// read it as their own.
			s.broken.Store(true)
			return "", fmt.Errorf("%w: await %q: %w", ErrSessionBroken, command, ctx.Err())
		case line, ok := <-s.lines:
			if !ok || strings.TrimSpace(line) == "" {
				break read
			}
			acc.WriteString(line)
		}
	}

	resp := acc.String()
	if strings.HasPrefix(resp, "?") {
		return "", &ProtocolError{Command: command, Response: resp}
	}
	return resp, nil
}

// Quit asks the engine to exit and kills it once the grace period has passed.
// The quit exchange and the wait for exit share that one deadline. It never
// fails and is safe to call more than once.
func (s *Session) Quit() {
	s.quitOnce.Do(func() {
		deadline := time.Now().Add(s.grace)
		ctx, cancel := context.WithDeadline(context.Background(), deadline)
		_, _ = s.Send(ctx, "quit")
		cancel()
		_ = s.stdin.Close()

		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		select {
		case <-s.exited:
			obslog.L().Info("engine_exited", zap.Int("pid", s.pid))
		case <-timer.C:
			if s.cmd.Process != nil {
				_ = s.cmd.Process.Kill()
			}
			<-s.exited
			obslog.L().Warn("engine_killed_after_timeout", zap.Int("pid", s.pid), zap.Duration("grace", s.grace))
		}
		close(s.done)
	})
}

// Exited reports whether the process has terminated.
func (s *Session) Exited() bool {
	select {
	case <-s.exited:
		return true
	default:
		return false
	}
}

func (s *Session) readLoop(r io.ReadCloser) {
	defer close(s.lines)
	defer r.Close()

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			select {
			case s.lines <- line:
			case <-s.done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}
