package sgf

import "strings"

const (
	MinBoardSize     = 5
	MaxBoardSize     = 25
	DefaultBoardSize = 19
)

// Point is a zero-based column/row pair; (0,0) is the top-left corner.
type Point struct {
	X int
	Y int
}

// ToPoint decodes a two-letter coordinate such as "dd". It rejects anything
// outside [0, size) on either axis.
func ToPoint(coord string, size int) (Point, bool) {
	if len(coord) != 2 {
		return Point{}, false
	}
	x := int(coord[0]) - 'a'
	y := int(coord[1]) - 'a'
	if x < 0 || y < 0 || x >= size || y >= size {
		return Point{}, false
	}
	return Point{X: x, Y: y}, true
}

func ToCoord(p Point) string {
	return string([]byte{byte('a' + p.X), byte('a' + p.Y)})
}

// normalizeCoord lower-cases a raw property value and keeps it only when it is a
// two-character token.
func normalizeCoord(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	if len(t) != 2 {
		return ""
	}
	return t
}

// expandPoints handles both single points and the compressed "aa:cc" rectangle form.
func expandPoints(values []string) []string {
	var out []string
	for _, raw := range values {
		from, to, ok := strings.Cut(raw, ":")
		if !ok {
			if c := normalizeCoord(raw); c != "" {
				out = append(out, c)
			}
			continue
		}
		a, b := normalizeCoord(from), normalizeCoord(to)
		if !isLetters(a) || !isLetters(b) {
			continue
		}
		x0, x1 := order(a[0], b[0])
		y0, y1 := order(a[1], b[1])
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				out = append(out, string([]byte{x, y}))
			}
		}
	}
	return out
}

func order(a, b byte) (byte, byte) {
	if a > b {
		return b, a
	}
	return a, b
}

func isLetters(c string) bool {
	return len(c) == 2 && c[0] >= 'a' && c[0] <= 'z' && c[1] >= 'a' && c[1] <= 'z'
}
