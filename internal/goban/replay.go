package goban

import (
	"github.com/park285/goban-server/internal/sgf"
)

// Snapshot lists occupied points per colour in row-major order.
type Snapshot struct {
	Black []string `json:"black"`
	White []string `json:"white"`
}

func (s Snapshot) Count() int { return len(s.Black) + len(s.White) }

// Replay rebuilds the board from scratch: setup black, then white, then empty
// overrides, then the first upto moves. Passes and off-board coordinates leave
// the board untouched.
func Replay(size int, setup sgf.Setup, moves []sgf.Move, upto int) *Board {
	b := NewBoard(size)
	place := func(coords []string, c Cell) {
		for _, coord := range coords {
			if p, ok := sgf.ToPoint(coord, size); ok {
				b.Place(p, c)
			}
		}
	}
	place(setup.Black, BlackStone)
	place(setup.White, WhiteStone)
	place(setup.Empty, Empty)

	upto = min(max(upto, 0), len(moves))
	for _, mv := range moves[:upto] {
		if mv.IsPass() {
			continue
		}
		if p, ok := sgf.ToPoint(mv.Coord, size); ok {
			b.Play(p, mv.Color)
		}
	}
	return b
}

func After(size int, setup sgf.Setup, moves []sgf.Move, upto int) Snapshot {
	return Replay(size, setup, moves, upto).Snapshot()
}

func (b *Board) Snapshot() Snapshot {
	s := Snapshot{Black: []string{}, White: []string{}}
	for y := 0; y < b.size; y++ {
		for x := 0; x < b.size; x++ {
			p := sgf.Point{X: x, Y: y}
			switch b.At(p) {
			case BlackStone:
				s.Black = append(s.Black, sgf.ToCoord(p))
			case WhiteStone:
				s.White = append(s.White, sgf.ToCoord(p))
			}
		}
	}
	return s
}

// ToPlay is the colour to move at moveIndex: the colour of the next recorded
// move, else the opposite of the previous one, else the setup's PL, else black.
func ToPlay(setup sgf.Setup, moves []sgf.Move, moveIndex int) sgf.Color {
	if moveIndex >= 0 && moveIndex < len(moves) {
		return moves[moveIndex].Color
	}
	if moveIndex > 0 && moveIndex <= len(moves) {
		return moves[moveIndex-1].Color.Opponent()
	}
	if setup.ToPlay.Valid() {
		return setup.ToPlay
	}
	return sgf.Black
}

// Game is a parsed record together with its final position.
type Game struct {
	*sgf.Record
	Final Snapshot `json:"finalStones"`
}

func Load(text string) (*Game, error) {
	rec, err := sgf.Parse(text)
	if err != nil {
		return nil, err
	}
	return &Game{
		Record: rec,
		Final:  After(rec.BoardSize, rec.Setup, rec.Moves, len(rec.Moves)),
	}, nil
}

// At returns the snapshot after moveIndex moves.
func (g *Game) At(moveIndex int) Snapshot {
	return After(g.BoardSize, g.Setup, g.Moves, moveIndex)
}
