package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/park285/goban-server/internal/gamelog"
	"github.com/park285/goban-server/internal/sgf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepEvictsExpiredEntries(t *testing.T) {
	l := &fakeLauncher{}
	clock := newFakeClock()
	m := newTestManager(t, l, clock)
	ctx := context.Background()

	stale, err := m.NewGame(ctx, "sid-1", GameParams{})
	require.NoError(t, err)
	review := importSample(t, m, "sid-1")
	_, err = m.Analysis(ctx, "sid-1", review.ReviewID, 0, 100)
	require.NoError(t, err)

	clock.Advance(20 * time.Minute)
	fresh, err := m.NewGame(ctx, "sid-1", GameParams{})
	require.NoError(t, err)

	clock.Advance(11 * time.Minute)
	games, reviews := m.Sweep(clock.Now())
	assert.Equal(t, 1, games)
	assert.Equal(t, 1, reviews)
	m.Wait()

	assert.ErrorIs(t, m.Touch(stale.GameID), ErrNotFound)
	assert.NoError(t, m.Touch(fresh.GameID))
	_, err = m.Review("sid-1", review.ReviewID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, m.ActiveGames("sid-1"))

	// launch order: stale game, review, fresh game
	assert.Equal(t, int32(1), l.nth(0).quits.Load())
	assert.Equal(t, int32(1), l.nth(1).quits.Load())
	assert.Equal(t, int32(0), l.nth(2).quits.Load())
}

func TestSweepKeepsTouchedGames(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(t, nil, clock)
	res, err := m.NewGame(context.Background(), "sid-1", GameParams{})
	require.NoError(t, err)

	clock.Advance(25 * time.Minute)
	require.NoError(t, m.Touch(res.GameID))
	clock.Advance(25 * time.Minute)

	games, _ := m.Sweep(clock.Now())
	assert.Zero(t, games)
	assert.NoError(t, m.Touch(res.GameID))
}

func TestSweepDoesNotWaitForHangingQuit(t *testing.T) {
	clock := newFakeClock()
	release := make(chan struct{})
	l := &fakeLauncher{}
	m := newTestManager(t, l, clock)
	res, err := m.NewGame(context.Background(), "sid-1", GameParams{})
	require.NoError(t, err)

	g, _ := m.games.Load(res.GameID)
	g.(*Game).engine = &hangingEngine{fakeEngine: newFakeEngine(), release: release}

	clock.Advance(time.Hour)
	done := make(chan struct{})
	go func() {
		m.Sweep(clock.Now())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweep blocked on engine quit")
	}
	close(release)
}

type hangingEngine struct {
	*fakeEngine
	release chan struct{}
}

func (h *hangingEngine) Quit() { <-h.release }

func TestRunStopsWithContext(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(t, nil, clock, func(o *Options) { o.SweepInterval = 5 * time.Millisecond })
	res, err := m.NewGame(context.Background(), "sid-1", GameParams{})
	require.NoError(t, err)
	clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(stopped)
	}()

	// polling must not touch the game, or it never goes idle
	require.Eventually(t, func() bool { return m.ActiveGames("sid-1") == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-stopped
	assert.ErrorIs(t, m.Touch(res.GameID), ErrNotFound)
}

func TestShutdownQuitsEverything(t *testing.T) {
	l := &fakeLauncher{}
	repo := gamelog.NewMemoryRepository()
	m := New(Options{Now: newFakeClock().Now, ScratchDir: t.TempDir()}, l, repo)
	ctx := context.Background()

	_, err := m.NewGame(ctx, "sid-1", GameParams{})
	require.NoError(t, err)
	_, err = m.NewGame(ctx, "sid-2", GameParams{})
	require.NoError(t, err)
	s := importSample(t, m, "sid-1")
	_, err = m.Analysis(ctx, "sid-1", s.ReviewID, 0, 100)
	require.NoError(t, err)

	sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(sctx))

	require.Equal(t, 3, l.count())
	for i := 0; i < 3; i++ {
		assert.Equal(t, int32(1), l.nth(i).quits.Load())
	}
	recs, _ := repo.Recent(ctx, "sid-2", 0)
	require.Len(t, recs, 1)
	assert.Equal(t, "shutdown", recs[0].EndReason)

	_, err = m.NewGame(ctx, "sid-3", GameParams{})
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestNewGameRacingShutdown(t *testing.T) {
	for i := 0; i < 50; i++ {
		l := &fakeLauncher{}
		m := newTestManager(t, l, newFakeClock())
		ctx := context.Background()

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for j := 0; j < 8; j++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				params := GameParams{}
				if n%2 == 1 {
					params.PlayerColor = sgf.White
				}
				res, err := m.NewGame(ctx, fmt.Sprintf("sid-%d", n), params)
				if err != nil {
					if !errors.Is(err, ErrShuttingDown) {
						errs <- err
					}
					return
				}
				assert.False(t, res.Placeholder)
			}(j)
		}
		sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		require.NoError(t, m.Shutdown(sctx))
		cancel()
		wg.Wait()
		m.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("unexpected NewGame error: %v", err)
		}

		// every engine that was launched has been quit exactly once
		for k := 0; k < l.count(); k++ {
			assert.Equal(t, int32(1), l.nth(k).quits.Load(), "engine %d", k)
		}
	}
}
