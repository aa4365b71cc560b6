package engine

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/park285/goban-server/internal/engine/gtp"
	"github.com/park285/goban-server/internal/metrics"
	"github.com/park285/goban-server/internal/obslog"
	"go.uber.org/zap"
)

const DefaultRules = "chinese"

var ErrNotConfigured = fmt.Errorf("%w: engine paths not configured", gtp.ErrSpawn)

// Process is one engine conversation.
type Process interface {
	Send(ctx context.Context, command string) (string, error)
	Quit()
}

// Launcher starts engine processes for the two workloads.
type Launcher interface {
	LaunchGame(ctx context.Context, level int, rules string) (Process, error)
	LaunchAnalysis(ctx context.Context) (Process, error)
}

type Config struct {
	EnginePath     string
	ModelPath      string
	GameConfig     string
	AnalysisConfig string
	QuitGrace      time.Duration
	Stderr         io.Writer
}

func (c Config) Enabled() bool {
	return c.EnginePath != "" && c.ModelPath != "" && c.GameConfig != ""
}

// analysisOverrides keep review engines single-minded: no pondering between
// requests and a small, fixed thread count.
var analysisOverrides = []string{
	"numSearchThreads=2",
	"ponderingEnabled=false",
}

type KataGo struct {
	cfg    Config
	levels *Levels
}

func NewKataGo(cfg Config, levels *Levels) *KataGo {
	if cfg.AnalysisConfig == "" {
		cfg.AnalysisConfig = cfg.GameConfig
	}
	return &KataGo{cfg: cfg, levels: levels}
}

func (k *KataGo) Enabled() bool { return k.cfg.Enabled() }

func (k *KataGo) GameArgs(level int, rules string) []string {
	args := []string{"gtp", "-model", k.cfg.ModelPath, "-config", k.cfg.GameConfig}
	for _, kv := range k.levels.Get(level).Overrides() {
		args = append(args, "-override-config", kv)
	}
	return append(args, "-override-config", "rules="+normalizeRules(rules))
}

func (k *KataGo) AnalysisArgs() []string {
	args := []string{"gtp", "-model", k.cfg.ModelPath, "-config", k.cfg.AnalysisConfig}
	for _, kv := range analysisOverrides {
		args = append(args, "-override-config", kv)
	}
	return append(args, "-override-config", "rules="+DefaultRules)
}

func (k *KataGo) LaunchGame(ctx context.Context, level int, rules string) (Process, error) {
	return k.launch(ctx, "game", k.GameArgs(level, rules))
}

func (k *KataGo) LaunchAnalysis(ctx context.Context) (Process, error) {
	return k.launch(ctx, "analysis", k.AnalysisArgs())
}

func (k *KataGo) launch(ctx context.Context, profile string, args []string) (Process, error) {
	if !k.cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := gtp.Start(k.cfg.EnginePath, args, gtp.Options{QuitGrace: k.cfg.QuitGrace, Stderr: k.cfg.Stderr})
	if err != nil {
		metrics.EngineSpawns.WithLabelValues(profile, "error").Inc()
		obslog.L().Warn("engine_spawn_failed", zap.String("profile", profile), zap.Error(err))
		return nil, err
	}
	metrics.EngineSpawns.WithLabelValues(profile, "ok").Inc()
	obslog.L().Debug("engine_launched", zap.String("profile", profile), zap.Int("pid", s.PID()))
	return s, nil
}

func normalizeRules(rules string) string {
	r := strings.ToLower(strings.TrimSpace(rules))
	if r == "" {
		return DefaultRules
	}
	return r
}

// IsChinese reports whether rules select the area-scoring ruleset with its fixed komi.
func IsChinese(rules string) bool { return normalizeRules(rules) == DefaultRules }
