package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/park285/goban-server/internal/config"
	"github.com/park285/goban-server/internal/engine"
	"github.com/park285/goban-server/internal/engine/gtp"
)

func main() {
	profile := flag.String("profile", "game", "engine profile to start: game or analysis")
	level := flag.Int("level", engine.DefaultLevel, "difficulty level for the game profile")
	genmove := flag.Bool("genmove", false, "ask for one move on an empty 9x9 board")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if !cfg.EngineConfigured() {
		log.Fatal("ENGINE_PATH, MODEL_PATH and GTP_CONFIG_PATH are required")
	}
	levels, err := engine.LoadLevels(cfg.LevelsFile)
	if err != nil {
		log.Fatalf("levels error: %v", err)
	}
	kata := engine.NewKataGo(engine.Config{
		EnginePath:     cfg.EnginePath,
		ModelPath:      cfg.ModelPath,
		GameConfig:     cfg.GTPConfigPath,
		AnalysisConfig: cfg.AnalysisConfig,
		QuitGrace:      cfg.EngineQuitGrace,
		Stderr:         os.Stderr,
	}, levels)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var p engine.Process
	switch *profile {
	case "analysis":
		log.Printf("args: %v", kata.AnalysisArgs())
		p, err = kata.LaunchAnalysis(ctx)
	default:
		log.Printf("args: %v", kata.GameArgs(*level, engine.DefaultRules))
		p, err = kata.LaunchGame(ctx, *level, engine.DefaultRules)
	}
	if err != nil {
		log.Fatalf("spawn error: %v", err)
	}
	defer p.Quit()

	for _, cmd := range []string{"name", "version", "protocol_version"} {
		resp, err := p.Send(ctx, cmd)
		if err != nil {
			log.Printf("%s error: %v", cmd, err)
			continue
		}
		log.Printf("%s: %s", cmd, gtp.Payload(resp))
	}
	if resp, err := p.Send(ctx, "list_commands"); err == nil {
		log.Printf("commands: %d", len(strings.Fields(gtp.Payload(resp))))
	}

	if !*genmove {
		return
	}
	for _, cmd := range []string{gtp.BoardSize(9), gtp.Komi(7.5), gtp.ClearBoard()} {
		if _, err := p.Send(ctx, cmd); err != nil {
			log.Fatalf("%s error: %v", cmd, err)
		}
	}
	started := time.Now()
	resp, err := p.Send(ctx, gtp.GenMove("B"))
	if err != nil {
		log.Fatalf("genmove error: %v", err)
	}
	log.Printf("genmove B: %s (%s)", gtp.Move(resp), time.Since(started).Round(time.Millisecond))
}
