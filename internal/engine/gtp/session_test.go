package gtp

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess is not a real test: it is re-executed as a tiny GTP engine.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GTP_HELPER_PROCESS") != "1" {
		return
	}
	mode := os.Getenv("GTP_HELPER_MODE")
	stubborn := mode == "stubborn"

	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		cmd := strings.TrimSpace(sc.Text())
		switch {
		case cmd == "quit" && mode == "mute":
			time.Sleep(time.Minute)
		case cmd == "quit":
			fmt.Print("= \n\n")
			if !stubborn {
				os.Exit(0)
			}
		case cmd == "bogus":
			fmt.Print("? unknown command\n\n")
		case cmd == "list":
			fmt.Print("= D4 Q16\nC3\n\n")
		case strings.HasPrefix(cmd, "echo "):
			fmt.Printf("= %s\n\n", strings.TrimPrefix(cmd, "echo "))
		case cmd == "slow":
			time.Sleep(2 * time.Second)
			fmt.Print("= late\n\n")
		case cmd == "exit":
			os.Exit(0)
		default:
			fmt.Print("= \n\n")
		}
	}
	if stubborn {
		time.Sleep(time.Minute)
	}
	os.Exit(0)
}

const helperGrace = 300 * time.Millisecond

func startHelper(t *testing.T, mode string) *Session {
	t.Helper()
	t.Setenv("GTP_HELPER_PROCESS", "1")
	t.Setenv("GTP_HELPER_MODE", mode)
	s, err := Start(os.Args[0], []string{"-test.run=^TestHelperProcess$"}, Options{QuitGrace: helperGrace})
	require.NoError(t, err)
	t.Cleanup(s.Quit)
	return s
}

func TestSendReturnsResponseBlock(t *testing.T) {
	s := startHelper(t, "")
	ctx := context.Background()

	resp, err := s.Send(ctx, "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "= hello\n", resp)
	assert.Equal(t, "hello", Payload(resp))

	resp, err = s.Send(ctx, "list")
	require.NoError(t, err)
	assert.Equal(t, []string{"D4", "Q16", "C3"}, Vertices(resp))
}

func TestSendErrorMarker(t *testing.T) {
	s := startHelper(t, "")

	_, err := s.Send(context.Background(), "bogus")
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "bogus", perr.Command)
	assert.Contains(t, perr.Response, "unknown command")

	// the session stays usable after an engine-reported error
	resp, err := s.Send(context.Background(), "echo ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", Payload(resp))
}

func TestSendRejectsMultiLineCommand(t *testing.T) {
	s := startHelper(t, "")
	_, err := s.Send(context.Background(), "play B D4\ngenmove W")
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

func TestConcurrentSendsAreNotInterleaved(t *testing.T) {
	s := startHelper(t, "")
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			want := fmt.Sprintf("token-%d", n)
			resp, err := s.Send(ctx, "echo "+want)
			if err != nil {
				errs <- err
				return
			}
			if got := Payload(resp); got != want {
				errs <- fmt.Errorf("got %q want %q", got, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestSendTimeoutBreaksSession(t *testing.T) {
	s := startHelper(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := s.Send(ctx, "slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionBroken)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = s.Send(context.Background(), "echo again")
	assert.ErrorIs(t, err, ErrSessionBroken)
}

func TestQuitGraceful(t *testing.T) {
	s := startHelper(t, "")
	start := time.Now()
	s.Quit()
	assert.True(t, s.Exited())
	assert.Less(t, time.Since(start), 2*helperGrace)

	// idempotent
	s.Quit()
	_, err := s.Send(context.Background(), "echo x")
	assert.Error(t, err)
}

func TestQuitKillsStubbornEngine(t *testing.T) {
	s := startHelper(t, "stubborn")
	start := time.Now()
	s.Quit()
	assert.True(t, s.Exited())
	assert.GreaterOrEqual(t, time.Since(start), helperGrace)
}

func TestQuitSharesOneDeadline(t *testing.T) {
	s := startHelper(t, "mute")
	start := time.Now()
	s.Quit()
	elapsed := time.Since(start)
	assert.True(t, s.Exited())
	assert.GreaterOrEqual(t, elapsed, helperGrace)
	// an unanswered quit must not start a second grace period
	assert.Less(t, elapsed, helperGrace+helperGrace*2/3)
}

func TestQuitAfterEngineExited(t *testing.T) {
	s := startHelper(t, "")
	resp, err := s.Send(context.Background(), "exit")
	require.NoError(t, err)
	assert.Empty(t, resp)

	require.Eventually(t, s.Exited, time.Second, 10*time.Millisecond)
	s.Quit()

	_, err = s.Send(context.Background(), "echo x")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStartMissingExecutable(t *testing.T) {
	_, err := Start("/nonexistent/katago", nil, Options{})
	assert.ErrorIs(t, err, ErrSpawn)
}
