package engine

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

const (
	MinLevel     = 1
	MaxLevel     = 5
	DefaultLevel = 3
)

//go:embed levels.yaml
var defaultLevels []byte

// Level is one difficulty profile, expressed as KataGo -override-config values.
type Level struct {
	Level                         int     `yaml:"level"`
	Name                          string  `yaml:"name"`
	MaxVisits                     int     `yaml:"maxVisits"`
	MaxTime                       float64 `yaml:"maxTime"`
	RootPolicyTemperature         float64 `yaml:"rootPolicyTemperature"`
	ChosenMoveTemperatureEarly    float64 `yaml:"chosenMoveTemperatureEarly"`
	ChosenMoveTemperatureHalflife int     `yaml:"chosenMoveTemperatureHalflife"`
	AllowResignation              bool    `yaml:"allowResignation"`
	ResignThreshold               float64 `yaml:"resignThreshold"`
}

// Overrides renders the level as ordered "key=value" pairs. The resign threshold
// is only emitted when resignation is allowed.
func (l Level) Overrides() []string {
	out := []string{
		"maxVisits=" + strconv.Itoa(l.MaxVisits),
		"maxTime=" + fmt2(l.MaxTime),
		"rootPolicyTemperature=" + fmt2(l.RootPolicyTemperature),
		"chosenMoveTemperatureEarly=" + fmt2(l.ChosenMoveTemperatureEarly),
		"chosenMoveTemperatureHalflife=" + strconv.Itoa(l.ChosenMoveTemperatureHalflife),
		"allowResignation=" + strconv.FormatBool(l.AllowResignation),
	}
	if l.AllowResignation {
		out = append(out, "resignThreshold="+fmt2(l.ResignThreshold))
	}
	return out
}

func fmt2(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

type levelFile struct {
	Levels []Level `yaml:"levels"`
}

// Levels is the difficulty catalog: embedded defaults, optionally replaced
// level-by-level from an override file.
type Levels struct {
	byLevel map[int]Level
}

func LoadLevels(overrideFile string) (*Levels, error) {
	ls := &Levels{byLevel: make(map[int]Level)}
	if err := ls.apply(defaultLevels); err != nil {
		return nil, fmt.Errorf("embedded levels: %w", err)
	}
	if p := strings.TrimSpace(overrideFile); p != "" {
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read levels file: %w", err)
		}
		if err := ls.apply(raw); err != nil {
			return nil, fmt.Errorf("levels file %s: %w", p, err)
		}
	}
	for l := MinLevel; l <= MaxLevel; l++ {
		if _, ok := ls.byLevel[l]; !ok {
			return nil, fmt.Errorf("level %d missing", l)
		}
	}
	return ls, nil
}

func (ls *Levels) apply(raw []byte) error {
	var f levelFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return err
	}
	for _, l := range f.Levels {
		if l.Level < MinLevel || l.Level > MaxLevel {
			return fmt.Errorf("level %d out of range", l.Level)
		}
		if l.MaxVisits <= 0 {
			return errors.New("maxVisits must be positive")
		}
		ls.byLevel[l.Level] = l
	}
	return nil
}

// Get clamps n into the known range.
func (ls *Levels) Get(n int) Level {
	return ls.byLevel[ClampLevel(n)]
}

func (ls *Levels) All() []Level {
	out := make([]Level, 0, len(ls.byLevel))
	for _, l := range ls.byLevel {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out
}

func ClampLevel(n int) int {
	return min(max(n, MinLevel), MaxLevel)
}
