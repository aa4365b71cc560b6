package sgf

// Color is a stone colour as it appears in records and outward payloads.
type Color string

const (
	Black Color = "black"
	White Color = "white"
)

func (c Color) Opponent() Color {
	if c == Black {
		return White
	}
	return Black
}

// GTP returns the single-letter engine token for the colour.
func (c Color) GTP() string {
	if c == White {
		return "W"
	}
	return "B"
}

func ColorFromGTP(tok string) (Color, bool) {
	switch tok {
	case "B", "b":
		return Black, true
	case "W", "w":
		return White, true
	}
	return "", false
}

func (c Color) Valid() bool { return c == Black || c == White }

type Meta struct {
	Black   string   `json:"black,omitempty"`
	White   string   `json:"white,omitempty"`
	Result  string   `json:"result,omitempty"`
	Rules   string   `json:"rules,omitempty"`
	Komi    *float64 `json:"komi,omitempty"`
	Comment string   `json:"comment,omitempty"`
}

// Move is one main-line move. An empty Coord is a pass.
type Move struct {
	Index   int    `json:"index"`
	Color   Color  `json:"color"`
	Coord   string `json:"coord,omitempty"`
	Comment string `json:"comment,omitempty"`
}

func (m Move) IsPass() bool { return m.Coord == "" }

type Setup struct {
	Black  []string `json:"black,omitempty"`
	White  []string `json:"white,omitempty"`
	Empty  []string `json:"empty,omitempty"`
	ToPlay Color    `json:"toPlay,omitempty"`
}

func (s Setup) Count() int { return len(s.Black) + len(s.White) }

type Record struct {
	BoardSize int     `json:"boardSize"`
	Komi      float64 `json:"komi"`
	Meta      Meta    `json:"meta"`
	Moves     []Move  `json:"moves"`
	Setup     Setup   `json:"initialSetup"`
}
