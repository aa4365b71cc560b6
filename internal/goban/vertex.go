package goban

import (
	"strconv"
	"strings"

	"github.com/park285/goban-server/internal/sgf"
)

// Engine vertices use column letters without I and count rows from the bottom.
const columnLetters = "ABCDEFGHJKLMNOPQRSTUVWXYZ"

func ColumnLabel(x int) string {
	if x < 0 || x >= len(columnLetters) {
		return ""
	}
	return columnLetters[x : x+1]
}

func ToVertex(p sgf.Point, size int) string {
	if p.X < 0 || p.Y < 0 || p.X >= size || p.Y >= size {
		return ""
	}
	return ColumnLabel(p.X) + strconv.Itoa(size-p.Y)
}

func FromVertex(vertex string, size int) (sgf.Point, bool) {
	v := strings.ToUpper(strings.TrimSpace(vertex))
	if len(v) < 2 {
		return sgf.Point{}, false
	}
	x := strings.IndexByte(columnLetters, v[0])
	row, err := strconv.Atoi(v[1:])
	if x < 0 || err != nil || row < 1 || row > size || x >= size {
		return sgf.Point{}, false
	}
	return sgf.Point{X: x, Y: size - row}, true
}

// CoordToVertex converts a record coordinate; an empty or off-board coordinate
// becomes "pass".
func CoordToVertex(coord string, size int) string {
	p, ok := sgf.ToPoint(coord, size)
	if !ok {
		return "pass"
	}
	return ToVertex(p, size)
}

// VertexToCoord returns "" for passes and anything that is not on the board.
func VertexToCoord(vertex string, size int) string {
	p, ok := FromVertex(vertex, size)
	if !ok {
		return ""
	}
	return sgf.ToCoord(p)
}
