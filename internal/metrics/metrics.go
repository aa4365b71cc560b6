// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "goban"

var (
	// EngineSpawns counts engine launches. Labels: profile (game, analysis), result (ok, error).
	EngineSpawns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "spawns_total",
		Help:      "Engine process launches by profile and result.",
	}, []string{"profile", "result"})

	EngineQuits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "quits_total",
		Help:      "Engine shutdowns by reason.",
	}, []string{"reason"})

	ActiveGames = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "active_games",
		Help:      "Games currently registered.",
	})

	ActiveReviews = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "active_reviews",
		Help:      "Reviews currently registered.",
	})

	// ConcurrencyRejections counts new-game requests refused by the per-client limit.
	ConcurrencyRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "concurrency_rejections_total",
		Help:      "New games refused because the client was at its limit.",
	})

	SweepEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "sweep_evictions_total",
		Help:      "Entries evicted by the inactivity sweep.",
	}, []string{"kind"})

	// AnalysisRequests labels: outcome (hit, miss, error).
	AnalysisRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "analysis",
		Name:      "requests_total",
		Help:      "Analysis requests by cache outcome.",
	}, []string{"outcome"})

	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "analysis",
		Name:      "engine_seconds",
		Help:      "Time spent in the engine for one uncached analysis.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	})

	EngineFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "game",
		Name:      "placeholder_replies_total",
		Help:      "Game replies served from the placeholder path.",
	}, []string{"op"})

	// HTTPRequests labels: route (the matched pattern, or "static"), code.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"route", "code"})

	ExercisesSaved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "exercise",
		Name:      "saved_total",
		Help:      "Exercises built and stored.",
	})
)
