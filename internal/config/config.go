package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/park285/goban-server/internal/obslog"
)

type AppConfig struct {
	Port int

	EnginePath     string
	ModelPath      string
	GTPConfigPath  string
	AnalysisConfig string
	LevelsFile     string

	ConcurrencyPerClient int
	GameTTL              time.Duration
	ReviewTTL            time.Duration
	SweepInterval        time.Duration
	EngineQuitGrace      time.Duration
	AnalysisTimeout      time.Duration
	ScratchDir           string

	RedisURL    string
	DatabaseURL string
	ExerciseTTL time.Duration

	StaticDir          string
	RemoteSGFMaxBytes  int
	RemoteFetchTimeout time.Duration

	Log obslog.Options
}

// EngineConfigured reports whether every path needed for live play is set.
func (c *AppConfig) EngineConfigured() bool {
	return c.EnginePath != "" && c.ModelPath != "" && c.GTPConfigPath != ""
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		Port:                 8080,
		ConcurrencyPerClient: 3,
		GameTTL:              30 * time.Minute,
		ReviewTTL:            30 * time.Minute,
		SweepInterval:        60 * time.Second,
		EngineQuitGrace:      3 * time.Second,
		AnalysisTimeout:      60 * time.Second,
		ScratchDir:           os.TempDir(),
		ExerciseTTL:          7 * 24 * time.Hour,
		StaticDir:            "frontend/public",
		RemoteSGFMaxBytes:    1 << 20,
		RemoteFetchTimeout:   10 * time.Second,
	}

	if n, ok := intEnv("PORT"); ok {
		if n <= 0 || n > 65535 {
			return nil, fmt.Errorf("PORT out of range: %d", n)
		}
		cfg.Port = n
	}

	cfg.EnginePath = env("ENGINE_PATH")
	cfg.ModelPath = env("MODEL_PATH")
	cfg.GTPConfigPath = env("GTP_CONFIG_PATH")
	cfg.AnalysisConfig = env("ANALYSIS_CONFIG_PATH")
	if cfg.AnalysisConfig == "" {
		cfg.AnalysisConfig = cfg.GTPConfigPath
	}
	cfg.LevelsFile = env("ENGINE_LEVELS_FILE")

	if n, ok := intEnv("CONCURRENCY_PER_SID"); ok && n > 0 {
		cfg.ConcurrencyPerClient = n
	}
	if n, ok := intEnv("GAME_TTL_MINUTES"); ok && n > 0 {
		cfg.GameTTL = time.Duration(n) * time.Minute
	}
	if n, ok := intEnv("REVIEW_TTL_MINUTES"); ok && n > 0 {
		cfg.ReviewTTL = time.Duration(n) * time.Minute
	}
	if n, ok := intEnv("SWEEP_INTERVAL_SEC"); ok && n > 0 {
		cfg.SweepInterval = time.Duration(n) * time.Second
	}
	if n, ok := intEnv("ENGINE_QUIT_GRACE_MS"); ok && n > 0 {
		cfg.EngineQuitGrace = time.Duration(n) * time.Millisecond
	}
	if n, ok := intEnv("ANALYSIS_TIMEOUT_SEC"); ok && n > 0 {
		cfg.AnalysisTimeout = time.Duration(n) * time.Second
	}
	if v := env("SCRATCH_DIR"); v != "" {
		cfg.ScratchDir = v
	}

	cfg.RedisURL = env("REDIS_URL")
	cfg.DatabaseURL = env("DATABASE_URL")
	if n, ok := intEnv("EXERCISE_TTL_HOURS"); ok && n > 0 {
		cfg.ExerciseTTL = time.Duration(n) * time.Hour
	}

	if v := env("STATIC_DIR"); v != "" {
		cfg.StaticDir = v
	}
	if n, ok := intEnv("REMOTE_SGF_MAX_BYTES"); ok && n > 0 {
		cfg.RemoteSGFMaxBytes = n
	}
	if n, ok := intEnv("REMOTE_FETCH_TIMEOUT_SEC"); ok && n > 0 {
		cfg.RemoteFetchTimeout = time.Duration(n) * time.Second
	}

	cfg.Log = obslog.Options{
		Level:   envDefault("LOG_LEVEL", "info"),
		Format:  envDefault("LOG_FORMAT", "legacy"),
		Console: boolEnv("LOG_TO_CONSOLE", true),
		ToFile:  boolEnv("LOG_TO_FILE", false),
		File:    env("LOG_FILE"),
		Caller:  boolEnv("LOG_CALLER", false),
	}

	// Engine paths are all-or-nothing.
	set := 0
	for _, v := range []string{cfg.EnginePath, cfg.ModelPath, cfg.GTPConfigPath} {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != 3 {
		return nil, errors.New("ENGINE_PATH, MODEL_PATH and GTP_CONFIG_PATH must be set together")
	}

	return cfg, nil
}

func env(k string) string { return strings.TrimSpace(os.Getenv(k)) }

func envDefault(k, def string) string {
	if v := env(k); v != "" {
		return v
	}
	return def
}

func intEnv(k string) (int, bool) {
	v := env(k)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func boolEnv(k string, def bool) bool {
	v := env(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
