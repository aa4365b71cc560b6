package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/park285/goban-server/internal/engine"
	"github.com/park285/goban-server/internal/gamelog"
	"github.com/park285/goban-server/internal/metrics"
	"github.com/park285/goban-server/internal/obslog"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	ConcurrencyPerClient int
	GameTTL              time.Duration
	ReviewTTL            time.Duration
	SweepInterval        time.Duration
	AnalysisTimeout      time.Duration
	// RetryAfter is the delay suggested to clients refused by the concurrency limit.
	RetryAfter time.Duration
	ScratchDir string
	Now        func() time.Time
}

func (o Options) withDefaults() Options {
	if o.ConcurrencyPerClient <= 0 {
		o.ConcurrencyPerClient = 3
	}
	if o.GameTTL <= 0 {
		o.GameTTL = 30 * time.Minute
	}
	if o.ReviewTTL <= 0 {
		o.ReviewTTL = 30 * time.Minute
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
	if o.AnalysisTimeout <= 0 {
		o.AnalysisTimeout = time.Minute
	}
	if o.RetryAfter <= 0 {
		o.RetryAfter = 10 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Manager is the registry of live games and reviews. Entries live in concurrent
// maps keyed by id; per-client and per-review locks never span unrelated keys.
type Manager struct {
	opts     Options
	launcher engine.Launcher
	log      gamelog.Repository
	logger   *zap.Logger

	games   sync.Map // game id -> *Game
	reviews sync.Map // review id -> *Review
	clients sync.Map // client id -> *clientEntry

	pending  sync.WaitGroup
	stopping atomic.Bool
}

// New builds a Manager. A nil launcher puts every game in placeholder mode and
// makes review analysis unavailable; a nil repository disables the game log.
func New(opts Options, launcher engine.Launcher, log gamelog.Repository) *Manager {
	return &Manager{
		opts:     opts.withDefaults(),
		launcher: launcher,
		log:      log,
		logger:   obslog.Named("session"),
	}
}

type clientEntry struct {
	// create serialises the count-then-register step of NewGame for one client.
	create sync.Mutex

	mu    sync.Mutex
	games map[string]struct{}
}

func (m *Manager) client(id string) *clientEntry {
	if v, ok := m.clients.Load(id); ok {
		return v.(*clientEntry)
	}
	v, _ := m.clients.LoadOrStore(id, &clientEntry{games: make(map[string]struct{})})
	return v.(*clientEntry)
}

func (c *clientEntry) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.games)
}

func (c *clientEntry) add(gameID string) {
	c.mu.Lock()
	c.games[gameID] = struct{}{}
	c.mu.Unlock()
}

func (c *clientEntry) remove(gameID string) {
	c.mu.Lock()
	delete(c.games, gameID)
	c.mu.Unlock()
}

// ActiveGames returns how many games the client currently holds.
func (m *Manager) ActiveGames(clientID string) int {
	v, ok := m.clients.Load(clientID)
	if !ok {
		return 0
	}
	return v.(*clientEntry).count()
}

// quitAsync shuts an engine down off the caller's path.
func (m *Manager) quitAsync(p engine.Process, reason string) {
	if p == nil {
		return
	}
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		p.Quit()
		metrics.EngineQuits.WithLabelValues(reason).Inc()
	}()
}

// Wait blocks until background engine shutdowns and game log writes finish.
func (m *Manager) Wait() { m.pending.Wait() }

// Run sweeps expired entries every SweepInterval until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	t := time.NewTicker(m.opts.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep(m.opts.Now())
		}
	}
}

// Sweep evicts games and reviews idle for longer than their TTL. Engine
// shutdown is dispatched asynchronously so a hanging engine cannot stall it.
func (m *Manager) Sweep(now time.Time) (games, reviews int) {
	m.games.Range(func(key, value any) bool {
		g := value.(*Game)
		if now.Sub(g.LastActive()) > m.opts.GameTTL && m.evictGame(key.(string), "expired") {
			games++
		}
		return true
	})
	m.reviews.Range(func(key, value any) bool {
		r := value.(*Review)
		if now.Sub(r.LastActive()) > m.opts.ReviewTTL && m.evictReview(key.(string), "expired") {
			reviews++
		}
		return true
	})
	if games > 0 || reviews > 0 {
		metrics.SweepEvictions.WithLabelValues("game").Add(float64(games))
		metrics.SweepEvictions.WithLabelValues("review").Add(float64(reviews))
		m.logger.Info("sweep_evicted", zap.Int("games", games), zap.Int("reviews", reviews))
	}
	return games, reviews
}

// Shutdown evicts everything and waits, bounded by ctx, for every engine to exit
// and every pending game log write to finish.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stopping.Store(true)

	var eg errgroup.Group
	m.games.Range(func(key, _ any) bool {
		if g, ok := m.removeGame(key.(string)); ok {
			eg.Go(func() error {
				m.retireGame(g, "shutdown")
				return nil
			})
		}
		return true
	})
	m.reviews.Range(func(key, _ any) bool {
		if r, ok := m.removeReview(key.(string)); ok {
			eg.Go(func() error {
				m.retireReview(r, "shutdown")
				return nil
			})
		}
		return true
	})

	done := make(chan struct{})
	go func() {
		_ = eg.Wait()
		m.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.logger.Info("session_manager_stopped")
		return nil
	case <-ctx.Done():
		m.logger.Warn("session_manager_stop_timeout", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}
