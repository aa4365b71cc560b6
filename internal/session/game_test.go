package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/goban-server/internal/gamelog"
	"github.com/park285/goban-server/internal/sgf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentNewGameRespectsLimit(t *testing.T) {
	l := &fakeLauncher{delay: 20 * time.Millisecond}
	m := newTestManager(t, l, newFakeClock(), func(o *Options) { o.ConcurrencyPerClient = 1 })

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = m.NewGame(context.Background(), "sid-1", GameParams{})
		}(i)
	}
	close(start)
	wg.Wait()

	var ok, limited int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrConcurrencyLimit):
			limited++
			var le *LimitError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, 1, le.Active)
			assert.Equal(t, 10*time.Second, le.RetryAfter)
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, limited)
	assert.Equal(t, int32(1), l.gameLaunches.Load())
	assert.Equal(t, 1, m.ActiveGames("sid-1"))
}

func TestLimitIsPerClient(t *testing.T) {
	m := newTestManager(t, nil, newFakeClock(), func(o *Options) { o.ConcurrencyPerClient = 1 })

	_, err := m.NewGame(context.Background(), "sid-a", GameParams{})
	require.NoError(t, err)
	_, err = m.NewGame(context.Background(), "sid-b", GameParams{})
	require.NoError(t, err)
	_, err = m.NewGame(context.Background(), "sid-a", GameParams{})
	assert.ErrorIs(t, err, ErrConcurrencyLimit)
}

func TestNewGameSetsUpEngine(t *testing.T) {
	l := &fakeLauncher{}
	clock := newFakeClock()
	m := newTestManager(t, l, clock)

	res, err := m.NewGame(context.Background(), "sid-1", GameParams{BoardSize: 13})
	require.NoError(t, err)

	assert.Regexp(t, `^g-[0-9a-f-]{36}$`, res.GameID)
	assert.Equal(t, 1, res.ActiveGames)
	assert.Equal(t, clock.Now().Add(30*time.Minute), res.ExpiresAt)
	assert.False(t, res.Placeholder)
	assert.Empty(t, res.EngineMove)
	assert.Equal(t, []string{"boardsize 13", "komi 7.5", "clear_board"}, l.nth(0).commands())
}

func TestNewGameKomiAndClamping(t *testing.T) {
	l := &fakeLauncher{}
	m := newTestManager(t, l, newFakeClock())

	komi := 0.5
	_, err := m.NewGame(context.Background(), "sid-1", GameParams{BoardSize: 40, Rules: "Japanese", Komi: &komi})
	require.NoError(t, err)
	assert.Equal(t, []string{"boardsize 25", "komi 0.5", "clear_board"}, l.nth(0).commands())

	_, err = m.NewGame(context.Background(), "sid-1", GameParams{BoardSize: 2, Rules: "japanese"})
	require.NoError(t, err)
	assert.Equal(t, []string{"boardsize 5", "komi 6.5", "clear_board"}, l.nth(1).commands())
}

func TestHumanWhiteGetsEngineOpening(t *testing.T) {
	l := &fakeLauncher{}
	m := newTestManager(t, l, newFakeClock())

	res, err := m.NewGame(context.Background(), "sid-1", GameParams{PlayerColor: sgf.White})
	require.NoError(t, err)
	assert.Equal(t, "C3", res.EngineMove)
	assert.Contains(t, l.nth(0).commands(), "genmove B")
}

func TestSpawnFailureDegradesToPlaceholder(t *testing.T) {
	l := &fakeLauncher{gameErr: errBoom}
	m := newTestManager(t, l, newFakeClock())

	res, err := m.NewGame(context.Background(), "sid-1", GameParams{PlayerColor: sgf.White})
	require.NoError(t, err)
	assert.True(t, res.Placeholder)
	assert.Equal(t, PlaceholderMove, res.EngineMove)

	play, err := m.Play(context.Background(), "sid-1", res.GameID, "D4")
	require.NoError(t, err)
	assert.Equal(t, PlaceholderMove, play.EngineMove)

	hint, err := m.Hint(context.Background(), "sid-1", res.GameID)
	require.NoError(t, err)
	assert.Equal(t, PlaceholderHint, hint)

	score, err := m.Score(context.Background(), "sid-1", res.GameID)
	require.NoError(t, err)
	assert.Equal(t, PlaceholderScore, score.Result)
	assert.Empty(t, score.DeadStones)

	require.NoError(t, m.Undo(context.Background(), "sid-1", res.GameID))
}

func TestPlayFlow(t *testing.T) {
	l := &fakeLauncher{}
	m := newTestManager(t, l, newFakeClock())
	ctx := context.Background()

	res, err := m.NewGame(ctx, "sid-1", GameParams{})
	require.NoError(t, err)

	play, err := m.Play(ctx, "sid-1", res.GameID, "q16")
	require.NoError(t, err)
	assert.Equal(t, "C3", play.EngineMove)
	assert.False(t, play.Finished)

	cmds := l.nth(0).commands()
	assert.Equal(t, []string{"play B q16", "genmove W"}, cmds[len(cmds)-2:])

	_, err = m.Play(ctx, "sid-2", res.GameID, "D4")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = m.Play(ctx, "sid-1", "g-missing", "D4")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Play(ctx, "sid-1", res.GameID, "D4\ngenmove B")
	assert.ErrorIs(t, err, ErrInvalidMove)
}

func TestPlayFallsBackWhenGenmoveFails(t *testing.T) {
	l := &fakeLauncher{configure: func(e *fakeEngine) { e.failOn("genmove", errBoom) }}
	m := newTestManager(t, l, newFakeClock())

	res, err := m.NewGame(context.Background(), "sid-1", GameParams{})
	require.NoError(t, err)
	play, err := m.Play(context.Background(), "sid-1", res.GameID, "D4")
	require.NoError(t, err)
	assert.Equal(t, PlaceholderMove, play.EngineMove)
}

func TestEngineResignFinishesGame(t *testing.T) {
	l := &fakeLauncher{}
	m := newTestManager(t, l, newFakeClock())
	res, err := m.NewGame(context.Background(), "sid-1", GameParams{})
	require.NoError(t, err)

	g, err := m.ownedGame("sid-1", res.GameID)
	require.NoError(t, err)
	g.engine = &resigningEngine{fakeEngine: newFakeEngine()}

	play, err := m.Play(context.Background(), "sid-1", res.GameID, "D4")
	require.NoError(t, err)
	assert.Equal(t, "resign", play.EngineMove)
	assert.True(t, play.Finished)
	assert.Equal(t, "B+R", play.Result)
}

type resigningEngine struct{ *fakeEngine }

func (r *resigningEngine) Send(ctx context.Context, cmd string) (string, error) {
	if cmd == "genmove W" {
		return "= resign\n", nil
	}
	return r.fakeEngine.Send(ctx, cmd)
}

func TestHintUndoScore(t *testing.T) {
	l := &fakeLauncher{}
	m := newTestManager(t, l, newFakeClock())
	ctx := context.Background()

	res, err := m.NewGame(ctx, "sid-1", GameParams{BoardSize: 9})
	require.NoError(t, err)
	e := l.nth(0)

	hint, err := m.Hint(ctx, "sid-1", res.GameID)
	require.NoError(t, err)
	assert.Equal(t, "C3", hint)
	cmds := e.commands()
	assert.Equal(t, []string{"genmove B", "undo"}, cmds[len(cmds)-2:])

	_, err = m.Play(ctx, "sid-1", res.GameID, "E5")
	require.NoError(t, err)
	require.NoError(t, m.Undo(ctx, "sid-1", res.GameID))
	cmds = e.commands()
	assert.Equal(t, []string{"undo", "undo"}, cmds[len(cmds)-2:])

	score, err := m.Score(ctx, "sid-1", res.GameID)
	require.NoError(t, err)
	assert.Equal(t, "W+3.5", score.Result)
	assert.Equal(t, []string{"D4", "E5", "F6"}, score.DeadStones)
	assert.Equal(t, 9, score.BoardSize)
	assert.Equal(t, 7.5, score.Komi)
}

func TestTouch(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(t, nil, clock)
	res, err := m.NewGame(context.Background(), "sid-1", GameParams{})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	require.NoError(t, m.Touch(res.GameID))
	g, _ := m.games.Load(res.GameID)
	assert.True(t, clock.Now().Equal(g.(*Game).LastActive()))

	assert.ErrorIs(t, m.Touch("g-unknown"), ErrNotFound)
}

func TestCloseGameQuitsEngineAndFreesSlot(t *testing.T) {
	l := &fakeLauncher{}
	clock := newFakeClock()
	repo := gamelog.NewMemoryRepository()
	m := New(Options{ConcurrencyPerClient: 1, Now: clock.Now}, l, repo)
	ctx := context.Background()

	res, err := m.NewGame(ctx, "sid-1", GameParams{})
	require.NoError(t, err)
	_, err = m.Play(ctx, "sid-1", res.GameID, "D4")
	require.NoError(t, err)

	assert.True(t, m.CloseGame(res.GameID))
	assert.False(t, m.CloseGame(res.GameID))
	m.Wait()

	assert.Equal(t, int32(1), l.nth(0).quits.Load())
	assert.Equal(t, 0, m.ActiveGames("sid-1"))
	assert.ErrorIs(t, m.Touch(res.GameID), ErrNotFound)

	recs, err := repo.Recent(ctx, "sid-1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "closed", recs[0].EndReason)
	assert.Equal(t, []string{"D4", "C3"}, recs[0].Moves)

	_, err = m.NewGame(ctx, "sid-1", GameParams{})
	assert.NoError(t, err)
}
