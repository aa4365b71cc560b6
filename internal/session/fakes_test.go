package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/goban-server/internal/engine"
)

type fakeEngine struct {
	mu   sync.Mutex
	cmds []string
	errs map[string]error

	analyzeDelay time.Duration
	analyzeReply string

	analyzeCalls atomic.Int32
	inFlight     atomic.Int32
	maxInFlight  atomic.Int32
	quits        atomic.Int32
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{errs: map[string]error{}}
}

func (f *fakeEngine) failOn(prefix string, err error) {
	f.mu.Lock()
	f.errs[prefix] = err
	f.mu.Unlock()
}

func (f *fakeEngine) Send(ctx context.Context, cmd string) (string, error) {
	f.mu.Lock()
	f.cmds = append(f.cmds, cmd)
	var failure error
	for prefix, err := range f.errs {
		if strings.HasPrefix(cmd, prefix) {
			failure = err
		}
	}
	reply := f.analyzeReply
	f.mu.Unlock()

	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	if strings.HasPrefix(cmd, "kata-search_analyze") {
		f.analyzeCalls.Add(1)
		if f.analyzeDelay > 0 {
			select {
			case <-time.After(f.analyzeDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	if failure != nil {
		return "", failure
	}

	switch {
	case strings.HasPrefix(cmd, "genmove"):
		return "= C3\n", nil
	case cmd == "final_score":
		return "= W+3.5\n", nil
	case cmd == "final_status_list dead":
		return "= D4 E5\nF6\n", nil
	case strings.HasPrefix(cmd, "kata-search_analyze"):
		if reply != "" {
			return reply, nil
		}
		return "= info move D4 visits 120 winrate 0.55 scoreLead 1.5 pv D4 Q16\n", nil
	default:
		return "= \n", nil
	}
}

func (f *fakeEngine) Quit() { f.quits.Add(1) }

func (f *fakeEngine) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cmds...)
}

type fakeLauncher struct {
	mu      sync.Mutex
	engines []*fakeEngine

	gameErr     error
	analysisErr error
	delay       time.Duration
	configure   func(*fakeEngine)

	gameLaunches     atomic.Int32
	analysisLaunches atomic.Int32
}

func (l *fakeLauncher) spawn() *fakeEngine {
	e := newFakeEngine()
	if l.configure != nil {
		l.configure(e)
	}
	l.mu.Lock()
	l.engines = append(l.engines, e)
	l.mu.Unlock()
	return e
}

func (l *fakeLauncher) LaunchGame(ctx context.Context, level int, rules string) (engine.Process, error) {
	l.gameLaunches.Add(1)
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	if l.gameErr != nil {
		return nil, l.gameErr
	}
	return l.spawn(), nil
}

func (l *fakeLauncher) LaunchAnalysis(ctx context.Context) (engine.Process, error) {
	l.analysisLaunches.Add(1)
	if l.analysisErr != nil {
		return nil, l.analysisErr
	}
	return l.spawn(), nil
}

func (l *fakeLauncher) nth(i int) *fakeEngine {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engines[i]
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.engines)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errBoom = errors.New("boom")

func newTestManager(t *testing.T, l engine.Launcher, clock *fakeClock, mutate ...func(*Options)) *Manager {
	t.Helper()
	opts := Options{
		ConcurrencyPerClient: 3,
		GameTTL:              30 * time.Minute,
		ReviewTTL:            30 * time.Minute,
		AnalysisTimeout:      5 * time.Second,
		ScratchDir:           t.TempDir(),
		Now:                  clock.Now,
	}
	for _, f := range mutate {
		f(&opts)
	}
	m := New(opts, l, nil)
	t.Cleanup(m.Wait)
	return m
}
