package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/park285/goban-server/internal/engine"
	"github.com/park285/goban-server/internal/engine/gtp"
	"github.com/park285/goban-server/internal/goban"
	"github.com/park285/goban-server/internal/metrics"
	"github.com/park285/goban-server/internal/sgf"
	"go.uber.org/zap"
)

const (
	MinAnalysisVisits     = 50
	MaxAnalysisVisits     = 5000
	DefaultAnalysisVisits = 500

	reviewIDPrefix = "r-"
)

type SourceKind string

const (
	SourceUpload SourceKind = "upload"
	SourceRemote SourceKind = "remote"
)

type Source struct {
	Kind SourceKind `json:"type"`
	URL  string     `json:"url,omitempty"`
}

// Review is an imported record opened for move-by-move analysis.
type Review struct {
	ID        string
	ClientID  string
	Source    Source
	CreatedAt time.Time
	Game      *goban.Game

	raw        string
	lastActive atomic.Int64
	closed     atomic.Bool

	cache sync.Map // move index -> gtp.Analysis

	// turn is a one-slot lock that serialises analysis on this review and
	// guards engine. Waiting for it honours the caller's context.
	turn   chan struct{}
	engine engine.Process
}

func (r *Review) lock(ctx context.Context) error {
	select {
	case r.turn <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Review) unlock() { <-r.turn }

func (r *Review) touch(now time.Time) { r.lastActive.Store(now.UnixNano()) }

func (r *Review) LastActive() time.Time { return time.Unix(0, r.lastActive.Load()) }

// Raw returns the imported record text.
func (r *Review) Raw() string { return r.raw }

type ReviewSummary struct {
	ReviewID string `json:"reviewId"`
	*goban.Game
	Source    Source    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
}

func (r *Review) summary() *ReviewSummary {
	return &ReviewSummary{ReviewID: r.ID, Game: r.Game, Source: r.Source, CreatedAt: r.CreatedAt}
}

// ImportReview parses text and registers a review. Nothing is registered when
// parsing fails.
func (m *Manager) ImportReview(clientID, text string, source Source) (*ReviewSummary, error) {
	if m.stopping.Load() {
		return nil, ErrShuttingDown
	}
	g, err := goban.Load(text)
	if err != nil {
		return nil, err
	}
	if source.Kind == "" {
		source.Kind = SourceUpload
	}

	now := m.opts.Now()
	r := &Review{
		ID:        reviewIDPrefix + uuid.NewString(),
		ClientID:  clientID,
		Source:    source,
		CreatedAt: now,
		Game:      g,
		raw:       text,
		turn:      make(chan struct{}, 1),
	}
	r.touch(now)
	m.reviews.Store(r.ID, r)
	metrics.ActiveReviews.Inc()

	m.logger.Info("review_import",
		zap.String("review_id", r.ID),
		zap.String("client_id", clientID),
		zap.String("source", string(source.Kind)),
		zap.Int("moves", len(g.Moves)),
	)
	return r.summary(), nil
}

func (m *Manager) ownedReview(clientID, reviewID string) (*Review, error) {
	v, ok := m.reviews.Load(reviewID)
	if !ok {
		return nil, ErrNotFound
	}
	r := v.(*Review)
	if r.ClientID != clientID {
		return nil, ErrForbidden
	}
	r.touch(m.opts.Now())
	return r, nil
}

func (m *Manager) Review(clientID, reviewID string) (*ReviewSummary, error) {
	r, err := m.ownedReview(clientID, reviewID)
	if err != nil {
		return nil, err
	}
	return r.summary(), nil
}

// ReviewRecord returns the review itself for callers that build on its record.
func (m *Manager) ReviewRecord(clientID, reviewID string) (*Review, error) {
	return m.ownedReview(clientID, reviewID)
}

type Position struct {
	MoveIndex int            `json:"moveIndex"`
	Stones    goban.Snapshot `json:"stones"`
	ToPlay    sgf.Color      `json:"toPlay"`
	LastMove  *sgf.Move      `json:"lastMove,omitempty"`
}

// ReviewPosition replays the record up to moveIndex moves.
func (m *Manager) ReviewPosition(clientID, reviewID string, moveIndex int) (*Position, error) {
	r, err := m.ownedReview(clientID, reviewID)
	if err != nil {
		return nil, err
	}
	if moveIndex < 0 || moveIndex > len(r.Game.Moves) {
		return nil, ErrOutOfRange
	}
	pos := &Position{
		MoveIndex: moveIndex,
		Stones:    r.Game.At(moveIndex),
		ToPlay:    goban.ToPlay(r.Game.Setup, r.Game.Moves, moveIndex),
	}
	if moveIndex > 0 {
		mv := r.Game.Moves[moveIndex-1]
		pos.LastMove = &mv
	}
	return pos, nil
}

func ClampVisits(v int) int {
	if v <= 0 {
		v = DefaultAnalysisVisits
	}
	return min(max(v, MinAnalysisVisits), MaxAnalysisVisits)
}

// Analysis returns the engine's analysis of the position after moveIndex moves.
// Cached results are returned without locking. On a miss the review's lock is
// held for the whole engine exchange, so one review never runs two analyses at
// once while different reviews proceed independently.
func (m *Manager) Analysis(ctx context.Context, clientID, reviewID string, moveIndex, visits int) (gtp.Analysis, error) {
	r, err := m.ownedReview(clientID, reviewID)
	if err != nil {
		return gtp.Analysis{}, err
	}
	if moveIndex < 0 || moveIndex > len(r.Game.Moves) {
		return gtp.Analysis{}, ErrOutOfRange
	}
	if a, ok := r.cache.Load(moveIndex); ok {
		metrics.AnalysisRequests.WithLabelValues("hit").Inc()
		return a.(gtp.Analysis), nil
	}

	if err := r.lock(ctx); err != nil {
		metrics.AnalysisRequests.WithLabelValues("error").Inc()
		return gtp.Analysis{}, err
	}
	defer r.unlock()

	// another request may have filled the slot while we waited
	if a, ok := r.cache.Load(moveIndex); ok {
		metrics.AnalysisRequests.WithLabelValues("hit").Inc()
		return a.(gtp.Analysis), nil
	}

	a, err := m.analyze(ctx, r, moveIndex, ClampVisits(visits))
	if err != nil {
		metrics.AnalysisRequests.WithLabelValues("error").Inc()
		return gtp.Analysis{}, err
	}
	metrics.AnalysisRequests.WithLabelValues("miss").Inc()

	if !r.closed.Load() {
		r.cache.Store(moveIndex, a)
	}
	return a, nil
}

// analyze runs one engine analysis. Callers hold the review's turn.
func (m *Manager) analyze(ctx context.Context, r *Review, moveIndex, visits int) (gtp.Analysis, error) {
	if r.closed.Load() {
		return gtp.Analysis{}, ErrNotFound
	}
	if err := m.ensureReviewEngine(ctx, r); err != nil {
		return gtp.Analysis{}, err
	}

	path, cleanup, err := m.writeScratch(r)
	if err != nil {
		return gtp.Analysis{}, err
	}
	defer cleanup()

	actx, cancel := context.WithTimeout(ctx, m.opts.AnalysisTimeout)
	defer cancel()

	color := goban.ToPlay(r.Game.Setup, r.Game.Moves, moveIndex)
	started := time.Now()
	var resp string
	for _, cmd := range []string{
		gtp.LoadSGF(path, moveIndex+1),
		gtp.SetMaxVisits(visits),
		gtp.SearchAnalyze(color.GTP()),
	} {
		resp, err = r.engine.Send(actx, cmd)
		if err != nil {
			m.dropBrokenEngine(r, err)
			return gtp.Analysis{}, fmt.Errorf("analysis %s@%d: %w", r.ID, moveIndex, err)
		}
	}
	metrics.AnalysisDuration.Observe(time.Since(started).Seconds())

	a, err := gtp.ParseAnalysis(resp)
	if err != nil {
		m.logger.Warn("analysis_unparseable", zap.String("review_id", r.ID), zap.Int("move_index", moveIndex))
		return gtp.Analysis{}, err
	}
	return a, nil
}

func (m *Manager) ensureReviewEngine(ctx context.Context, r *Review) error {
	if r.engine != nil {
		return nil
	}
	if m.launcher == nil {
		return ErrEngineUnavailable
	}
	p, err := m.launcher.LaunchAnalysis(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
	}
	// evicted while the engine was starting
	if r.closed.Load() {
		m.quitAsync(p, "evicted")
		return ErrNotFound
	}
	r.engine = p
	return nil
}

// dropBrokenEngine discards an engine whose conversation can no longer be
// trusted; the next analysis starts a fresh one.
func (m *Manager) dropBrokenEngine(r *Review, err error) {
	var perr *gtp.ProtocolError
	if errors.As(err, &perr) {
		return
	}
	m.logger.Warn("review_engine_dropped", zap.String("review_id", r.ID), zap.Error(err))
	m.quitAsync(r.engine, "broken")
	r.engine = nil
}

func (m *Manager) writeScratch(r *Review) (string, func(), error) {
	f, err := os.CreateTemp(m.opts.ScratchDir, "review-*.sgf")
	if err != nil {
		return "", nil, fmt.Errorf("scratch file: %w", err)
	}
	cleanup := func() {
		if err := os.Remove(f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn("scratch_cleanup_failed", zap.String("path", f.Name()), zap.Error(err))
		}
	}
	if _, err := f.WriteString(r.raw); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("scratch file: %w", err)
	}
	return f.Name(), cleanup, nil
}

// CachedAnalysis reads the cache only; it never starts an engine.
func (m *Manager) CachedAnalysis(reviewID string, moveIndex int) (gtp.Analysis, bool) {
	v, ok := m.reviews.Load(reviewID)
	if !ok {
		return gtp.Analysis{}, false
	}
	a, ok := v.(*Review).cache.Load(moveIndex)
	if !ok {
		return gtp.Analysis{}, false
	}
	return a.(gtp.Analysis), true
}

func (m *Manager) CloseReview(clientID, reviewID string) error {
	if _, err := m.ownedReview(clientID, reviewID); err != nil {
		return err
	}
	m.evictReview(reviewID, "closed")
	return nil
}

func (m *Manager) evictReview(reviewID, reason string) bool {
	r, ok := m.removeReview(reviewID)
	if !ok {
		return false
	}
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		m.retireReview(r, reason)
	}()
	return true
}

func (m *Manager) removeReview(reviewID string) (*Review, bool) {
	v, ok := m.reviews.LoadAndDelete(reviewID)
	if !ok {
		return nil, false
	}
	r := v.(*Review)
	r.closed.Store(true)
	metrics.ActiveReviews.Dec()
	return r, true
}

// retireReview waits for an in-flight analysis to finish before quitting the
// review's engine.
func (m *Manager) retireReview(r *Review, reason string) {
	_ = r.lock(context.Background())
	p := r.engine
	r.engine = nil
	r.unlock()

	m.logger.Info("review_end", zap.String("review_id", r.ID), zap.String("reason", reason))
	if p != nil {
		p.Quit()
		metrics.EngineQuits.WithLabelValues(reason).Inc()
	}
}
