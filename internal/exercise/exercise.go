package exercise

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/goban-server/internal/engine/gtp"
	"github.com/park285/goban-server/internal/goban"
	"github.com/park285/goban-server/internal/sgf"
)

var (
	ErrInvalid  = errors.New("invalid exercise")
	ErrNoAnswer = errors.New("exercise has no answer")
	ErrNotFound = errors.New("exercise not found")
)

const DefaultCategory = "general"

type Answer struct {
	Primary      string   `json:"primary"`
	Alternatives []string `json:"alternatives"`
}

// Exercise is a "find the next move" problem cut from a record.
type Exercise struct {
	ID        string         `json:"id"`
	ClientID  string         `json:"clientId,omitempty"`
	Category  string         `json:"category"`
	BoardSize int            `json:"boardSize"`
	Stones    goban.Snapshot `json:"stones"`
	ToPlay    sgf.Color      `json:"toPlay"`
	Answer    Answer         `json:"answer"`
	Analysis  *gtp.Analysis  `json:"analysis,omitempty"`
	SourceSGF string         `json:"sourceSgf,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

type Input struct {
	Category  string
	BoardSize int
	Setup     sgf.Setup
	Moves     []sgf.Move
	MoveIndex int
	Analysis  *gtp.Analysis
	SourceSGF string
}

// Build cuts the position after MoveIndex moves. The primary answer is the
// record's next move; without one, the head of the engine's principal variation
// is used. The variation head is kept as an alternative when it differs.
func Build(in Input) (*Exercise, error) {
	if in.BoardSize < sgf.MinBoardSize || in.BoardSize > sgf.MaxBoardSize {
		return nil, fmt.Errorf("%w: board size %d", ErrInvalid, in.BoardSize)
	}
	if in.MoveIndex < 0 || in.MoveIndex > len(in.Moves) {
		return nil, fmt.Errorf("%w: move index %d of %d", ErrInvalid, in.MoveIndex, len(in.Moves))
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = DefaultCategory
	}

	var primary string
	if in.MoveIndex < len(in.Moves) {
		primary = in.Moves[in.MoveIndex].Coord
	}
	var engineBest string
	if in.Analysis != nil && len(in.Analysis.PV) > 0 {
		engineBest = goban.VertexToCoord(in.Analysis.PV[0], in.BoardSize)
	}
	if primary == "" {
		primary = engineBest
	}
	if primary == "" {
		return nil, ErrNoAnswer
	}
	alts := []string{}
	if engineBest != "" && engineBest != primary {
		alts = append(alts, engineBest)
	}

	return &Exercise{
		ID:        "ex-" + uuid.NewString(),
		Category:  category,
		BoardSize: in.BoardSize,
		Stones:    goban.After(in.BoardSize, in.Setup, in.Moves, in.MoveIndex),
		ToPlay:    goban.ToPlay(in.Setup, in.Moves, in.MoveIndex),
		Answer:    Answer{Primary: primary, Alternatives: alts},
		Analysis:  in.Analysis,
		SourceSGF: in.SourceSGF,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// FromGame builds an exercise from an already parsed record.
func FromGame(g *goban.Game, moveIndex int, category string, analysis *gtp.Analysis, source string) (*Exercise, error) {
	return Build(Input{
		Category:  category,
		BoardSize: g.BoardSize,
		Setup:     g.Setup,
		Moves:     g.Moves,
		MoveIndex: moveIndex,
		Analysis:  analysis,
		SourceSGF: source,
	})
}

// FromSGF builds an exercise from editor text, which may hold irregular
// positions; replay never rejects them.
func FromSGF(text string, moveIndex int, category string) (*Exercise, error) {
	g, err := goban.Load(text)
	if err != nil {
		return nil, err
	}
	return FromGame(g, moveIndex, category, nil, text)
}
