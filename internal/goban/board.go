package goban

import (
	"github.com/park285/goban-server/internal/sgf"
)

type Cell uint8

const (
	Empty Cell = iota
	BlackStone
	WhiteStone
)

func cellOf(c sgf.Color) Cell {
	if c == sgf.White {
		return WhiteStone
	}
	return BlackStone
}

// Board is a size×size grid stored row-major.
type Board struct {
	size  int
	cells []Cell
}

func NewBoard(size int) *Board {
	return &Board{size: size, cells: make([]Cell, size*size)}
}

func (b *Board) Size() int { return b.size }

func (b *Board) index(p sgf.Point) int { return p.Y*b.size + p.X }

func (b *Board) At(p sgf.Point) Cell { return b.cells[b.index(p)] }

func (b *Board) set(p sgf.Point, c Cell) { b.cells[b.index(p)] = c }

func (b *Board) Count() int {
	n := 0
	for _, c := range b.cells {
		if c != Empty {
			n++
		}
	}
	return n
}

// Place puts a stone on p without any capture logic; setup directives use it.
func (b *Board) Place(p sgf.Point, c Cell) { b.set(p, c) }

// Play places a stone and resolves captures: opposing neighbour groups without
// liberties are removed first, and only when nothing was captured is the placed
// stone's own group checked for suicide. Occupied points are overwritten.
func (b *Board) Play(p sgf.Point, color sgf.Color) {
	own := cellOf(color)
	enemy := cellOf(color.Opponent())
	b.set(p, own)

	captured := false
	for _, n := range b.neighbors(p) {
		if b.At(n) != enemy {
			continue
		}
		group, libs := b.group(n)
		if libs == 0 {
			captured = true
			b.clear(group)
		}
	}
	if captured {
		return
	}
	if group, libs := b.group(p); libs == 0 {
		b.clear(group)
	}
}

func (b *Board) clear(points []sgf.Point) {
	for _, p := range points {
		b.set(p, Empty)
	}
}

// group flood-fills the 4-connected group at p and counts its distinct liberties.
func (b *Board) group(p sgf.Point) ([]sgf.Point, int) {
	color := b.At(p)
	seen := make([]bool, len(b.cells))
	libSeen := make([]bool, len(b.cells))
	stack := []sgf.Point{p}
	seen[b.index(p)] = true

	var (
		stones []sgf.Point
		libs   int
	)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		stones = append(stones, cur)
		for _, n := range b.neighbors(cur) {
			i := b.index(n)
			switch b.cells[i] {
			case color:
				if !seen[i] {
					seen[i] = true
					stack = append(stack, n)
				}
			case Empty:
				if !libSeen[i] {
					libSeen[i] = true
					libs++
				}
			}
		}
	}
	return stones, libs
}

func (b *Board) neighbors(p sgf.Point) []sgf.Point {
	out := make([]sgf.Point, 0, 4)
	if p.X > 0 {
		out = append(out, sgf.Point{X: p.X - 1, Y: p.Y})
	}
	if p.Y > 0 {
		out = append(out, sgf.Point{X: p.X, Y: p.Y - 1})
	}
	if p.X+1 < b.size {
		out = append(out, sgf.Point{X: p.X + 1, Y: p.Y})
	}
	if p.Y+1 < b.size {
		out = append(out, sgf.Point{X: p.X, Y: p.Y + 1})
	}
	return out
}
