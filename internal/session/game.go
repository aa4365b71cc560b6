package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/park285/goban-server/internal/engine"
	"github.com/park285/goban-server/internal/engine/gtp"
	"github.com/park285/goban-server/internal/gamelog"
	"github.com/park285/goban-server/internal/metrics"
	"github.com/park285/goban-server/internal/sgf"
	"go.uber.org/zap"
)

// Replies used when a game has no engine or the engine call failed.
const (
	PlaceholderMove  = "Q16"
	PlaceholderHint  = "D4"
	PlaceholderScore = "?"
)

const (
	DefaultKomi  = 6.5
	ChineseKomi  = 7.5
	gameIDPrefix = "g-"
)

type GameParams struct {
	BoardSize   int
	Komi        *float64
	Rules       string
	Level       int
	PlayerColor sgf.Color
}

func (p GameParams) normalized() GameParams {
	switch {
	case p.BoardSize == 0:
		p.BoardSize = sgf.DefaultBoardSize
	case p.BoardSize < sgf.MinBoardSize:
		p.BoardSize = sgf.MinBoardSize
	case p.BoardSize > sgf.MaxBoardSize:
		p.BoardSize = sgf.MaxBoardSize
	}
	p.Rules = strings.ToLower(strings.TrimSpace(p.Rules))
	if p.Rules == "" {
		p.Rules = engine.DefaultRules
	}
	komi := DefaultKomi
	if p.Komi != nil {
		komi = *p.Komi
	}
	if engine.IsChinese(p.Rules) {
		komi = ChineseKomi
	}
	p.Komi = &komi
	if p.Level == 0 {
		p.Level = engine.DefaultLevel
	}
	p.Level = engine.ClampLevel(p.Level)
	if !p.PlayerColor.Valid() {
		p.PlayerColor = sgf.Black
	}
	return p
}

// Game is one live game against the engine. engine is nil in placeholder mode.
type Game struct {
	ID         string
	ClientID   string
	BoardSize  int
	Komi       float64
	Rules      string
	Level      int
	HumanColor sgf.Color
	CreatedAt  time.Time

	lastActive atomic.Int64

	// mu keeps multi-command exchanges of one game from interleaving.
	mu     sync.Mutex
	engine engine.Process
	moves  []string
	result string

	// placeholder is fixed before the game is registered.
	placeholder bool
}

func (g *Game) touch(now time.Time) { g.lastActive.Store(now.UnixNano()) }

func (g *Game) LastActive() time.Time { return time.Unix(0, g.lastActive.Load()) }

// Placeholder reports whether the game started without an engine.
func (g *Game) Placeholder() bool { return g.placeholder }

func (g *Game) engineColor() sgf.Color { return g.HumanColor.Opponent() }

type NewGameResult struct {
	GameID      string
	ExpiresAt   time.Time
	ActiveGames int
	EngineMove  string
	Placeholder bool
}

// NewGame registers a game for clientID. Counting the client's games and
// registering the new one happen under the client's creation lock. A failed
// engine launch degrades the game to placeholder mode.
func (m *Manager) NewGame(ctx context.Context, clientID string, params GameParams) (*NewGameResult, error) {
	if m.stopping.Load() {
		return nil, ErrShuttingDown
	}
	p := params.normalized()

	g, active, err := m.registerGame(ctx, clientID, p)
	if err != nil {
		return nil, err
	}

	res := &NewGameResult{
		GameID:      g.ID,
		ExpiresAt:   g.CreatedAt.Add(m.opts.GameTTL),
		ActiveGames: active,
		Placeholder: g.Placeholder(),
	}
	if g.HumanColor == sgf.White {
		g.mu.Lock()
		res.EngineMove = m.engineReply(ctx, g, "open")
		g.mu.Unlock()
	}
	m.logger.Info("game_create",
		zap.String("game_id", g.ID),
		zap.String("client_id", clientID),
		zap.Int("board_size", g.BoardSize),
		zap.Int("level", g.Level),
		zap.Bool("placeholder", g.Placeholder()),
	)
	return res, nil
}

func (m *Manager) registerGame(ctx context.Context, clientID string, p GameParams) (*Game, int, error) {
	entry := m.client(clientID)
	entry.create.Lock()
	defer entry.create.Unlock()

	active := entry.count()
	if active >= m.opts.ConcurrencyPerClient {
		metrics.ConcurrencyRejections.Inc()
		return nil, active, &LimitError{Active: active, Limit: m.opts.ConcurrencyPerClient, RetryAfter: m.opts.RetryAfter}
	}

	now := m.opts.Now()
	g := &Game{
		ID:         gameIDPrefix + uuid.NewString(),
		ClientID:   clientID,
		BoardSize:  p.BoardSize,
		Komi:       *p.Komi,
		Rules:      p.Rules,
		Level:      p.Level,
		HumanColor: p.PlayerColor,
		CreatedAt:  now,
	}
	g.touch(now)
	g.engine = m.launchGameEngine(ctx, g)
	g.placeholder = g.engine == nil

	entry.add(g.ID)
	m.games.Store(g.ID, g)
	metrics.ActiveGames.Inc()

	// Shutdown may have ranged over the registry before the store above.
	if m.stopping.Load() {
		if rg, ok := m.removeGame(g.ID); ok {
			m.retireGame(rg, "shutdown")
		}
		return nil, active, ErrShuttingDown
	}
	return g, active + 1, nil
}

func (m *Manager) launchGameEngine(ctx context.Context, g *Game) engine.Process {
	if m.launcher == nil {
		return nil
	}
	p, err := m.launcher.LaunchGame(ctx, g.Level, g.Rules)
	if err != nil {
		m.logger.Warn("game_engine_unavailable", zap.String("game_id", g.ID), zap.Error(err))
		return nil
	}
	for _, cmd := range []string{gtp.BoardSize(g.BoardSize), gtp.Komi(g.Komi), gtp.ClearBoard()} {
		if _, err := p.Send(ctx, cmd); err != nil {
			m.logger.Warn("game_engine_setup_failed", zap.String("game_id", g.ID), zap.String("cmd", cmd), zap.Error(err))
		}
	}
	return p
}

// engineReply asks the engine for its move and records it. Any failure yields
// the placeholder move. Callers hold g.mu.
func (m *Manager) engineReply(ctx context.Context, g *Game, op string) string {
	if g.engine != nil {
		resp, err := g.engine.Send(ctx, gtp.GenMove(g.engineColor().GTP()))
		if err == nil {
			if mv := gtp.Move(resp); mv != "" {
				g.moves = append(g.moves, mv)
				if strings.EqualFold(mv, gtp.Resign) {
					g.result = resignResult(g.engineColor())
				}
				return mv
			}
		}
		m.logger.Warn("genmove_failed", zap.String("game_id", g.ID), zap.String("op", op), zap.Error(err))
	}
	metrics.EngineFallbacks.WithLabelValues(op).Inc()
	g.moves = append(g.moves, PlaceholderMove)
	return PlaceholderMove
}

func resignResult(loser sgf.Color) string {
	return loser.Opponent().GTP() + "+R"
}

// Touch refreshes a game's activity timestamp.
func (m *Manager) Touch(gameID string) error {
	v, ok := m.games.Load(gameID)
	if !ok {
		return ErrNotFound
	}
	v.(*Game).touch(m.opts.Now())
	return nil
}

func (m *Manager) ownedGame(clientID, gameID string) (*Game, error) {
	v, ok := m.games.Load(gameID)
	if !ok {
		return nil, ErrNotFound
	}
	g := v.(*Game)
	if g.ClientID != clientID {
		return nil, ErrForbidden
	}
	g.touch(m.opts.Now())
	return g, nil
}

type PlayResult struct {
	EngineMove string
	Finished   bool
	Result     string
}

// Play sends the human move and returns the engine's answer.
func (m *Manager) Play(ctx context.Context, clientID, gameID, vertex string) (*PlayResult, error) {
	vertex = strings.TrimSpace(vertex)
	if !gtp.IsVertex(vertex) {
		return nil, ErrInvalidMove
	}
	g, err := m.ownedGame(clientID, gameID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.engine != nil {
		if _, err := g.engine.Send(ctx, gtp.Play(g.HumanColor.GTP(), vertex)); err != nil {
			m.logger.Warn("play_rejected", zap.String("game_id", g.ID), zap.String("vertex", vertex), zap.Error(err))
		}
	}
	g.moves = append(g.moves, vertex)
	mv := m.engineReply(ctx, g, "play")
	return &PlayResult{EngineMove: mv, Finished: g.result != "", Result: g.result}, nil
}

// Hint returns the engine's suggestion for the human side without keeping it.
func (m *Manager) Hint(ctx context.Context, clientID, gameID string) (string, error) {
	g, err := m.ownedGame(clientID, gameID)
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.engine != nil {
		resp, err := g.engine.Send(ctx, gtp.GenMove(g.HumanColor.GTP()))
		if err == nil {
			mv := gtp.Move(resp)
			if _, uerr := g.engine.Send(ctx, gtp.Undo()); uerr != nil {
				m.logger.Warn("hint_undo_failed", zap.String("game_id", g.ID), zap.Error(uerr))
			}
			if mv != "" {
				return mv, nil
			}
		}
		m.logger.Warn("hint_failed", zap.String("game_id", g.ID), zap.Error(err))
	}
	metrics.EngineFallbacks.WithLabelValues("hint").Inc()
	return PlaceholderHint, nil
}

// Undo takes back the engine's reply and the human move before it.
func (m *Manager) Undo(ctx context.Context, clientID, gameID string) error {
	g, err := m.ownedGame(clientID, gameID)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	n := min(2, len(g.moves))
	if g.engine != nil {
		for i := 0; i < n; i++ {
			if _, err := g.engine.Send(ctx, gtp.Undo()); err != nil {
				m.logger.Warn("undo_failed", zap.String("game_id", g.ID), zap.Error(err))
				break
			}
		}
	}
	g.moves = g.moves[:len(g.moves)-n]
	g.result = ""
	return nil
}

type ScoreResult struct {
	Result     string
	DeadStones []string
	BoardSize  int
	Komi       float64
}

func (m *Manager) Score(ctx context.Context, clientID, gameID string) (*ScoreResult, error) {
	g, err := m.ownedGame(clientID, gameID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	res := &ScoreResult{Result: PlaceholderScore, DeadStones: []string{}, BoardSize: g.BoardSize, Komi: g.Komi}
	if g.engine == nil {
		metrics.EngineFallbacks.WithLabelValues("score").Inc()
		return res, nil
	}
	if resp, err := g.engine.Send(ctx, gtp.FinalScore()); err == nil {
		if s := gtp.Payload(resp); s != "" {
			res.Result = s
			g.result = s
		}
	} else {
		m.logger.Warn("final_score_failed", zap.String("game_id", g.ID), zap.Error(err))
	}
	if resp, err := g.engine.Send(ctx, gtp.DeadStones()); err == nil {
		res.DeadStones = gtp.Vertices(resp)
	} else {
		m.logger.Warn("dead_stones_failed", zap.String("game_id", g.ID), zap.Error(err))
	}
	return res, nil
}

// CloseGame removes the game and quits its engine in the background. Unknown
// ids are ignored.
func (m *Manager) CloseGame(gameID string) bool {
	return m.evictGame(gameID, "closed")
}

func (m *Manager) evictGame(gameID, reason string) bool {
	g, ok := m.removeGame(gameID)
	if !ok {
		return false
	}
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		m.retireGame(g, reason)
	}()
	return true
}

func (m *Manager) removeGame(gameID string) (*Game, bool) {
	v, ok := m.games.LoadAndDelete(gameID)
	if !ok {
		return nil, false
	}
	g := v.(*Game)
	metrics.ActiveGames.Dec()
	if e, ok := m.clients.Load(g.ClientID); ok {
		e.(*clientEntry).remove(gameID)
	}
	return g, true
}

// retireGame waits for any in-flight operation on g, quits its engine and
// writes the game log entry. Failures are logged only.
func (m *Manager) retireGame(g *Game, reason string) {
	g.mu.Lock()
	p := g.engine
	g.engine = nil
	rec := gamelog.Record{
		GameID:     g.ID,
		ClientID:   g.ClientID,
		BoardSize:  g.BoardSize,
		Komi:       g.Komi,
		Rules:      g.Rules,
		Level:      g.Level,
		HumanColor: string(g.HumanColor),
		Moves:      append([]string(nil), g.moves...),
		Result:     g.result,
		EndReason:  reason,
		StartedAt:  g.CreatedAt,
		EndedAt:    m.opts.Now(),
	}
	g.mu.Unlock()
	m.logger.Info("game_end", zap.String("game_id", g.ID), zap.String("reason", reason), zap.Int("moves", len(rec.Moves)))

	if p != nil {
		p.Quit()
		metrics.EngineQuits.WithLabelValues(reason).Inc()
	}
	if m.log == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.log.Save(ctx, rec); err != nil {
		m.logger.Warn("game_log_failed", zap.String("game_id", g.ID), zap.Error(err))
	}
}
