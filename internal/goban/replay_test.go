package goban

import (
	"math/rand/v2"
	"testing"

	"github.com/park285/goban-server/internal/sgf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func moves(color sgf.Color, coords ...string) []sgf.Move {
	out := make([]sgf.Move, 0, len(coords))
	for i, c := range coords {
		out = append(out, sgf.Move{Index: i + 1, Color: color, Coord: c})
		color = color.Opponent()
	}
	return out
}

func TestLoadFinalSnapshot(t *testing.T) {
	g, err := Load("(;SZ[9]KM[6.5]PB[Black]PW[White];B[dd];W[ee];B[cc])")
	require.NoError(t, err)

	assert.Equal(t, 9, g.BoardSize)
	assert.ElementsMatch(t, []string{"dd", "cc"}, g.Final.Black)
	assert.ElementsMatch(t, []string{"ee"}, g.Final.White)
}

func TestLoadPropagatesParseFailure(t *testing.T) {
	_, err := Load("(;SZ[9")
	assert.ErrorIs(t, err, sgf.ErrParse)
}

func TestSingleStoneCapture(t *testing.T) {
	setup := sgf.Setup{
		Black: []string{"dc", "de", "cd"},
		White: []string{"dd"},
	}
	snap := After(9, setup, []sgf.Move{{Index: 1, Color: sgf.Black, Coord: "ed"}}, 1)

	assert.ElementsMatch(t, []string{"dc", "de", "cd", "ed"}, snap.Black)
	assert.Empty(t, snap.White)
}

func TestGroupCapture(t *testing.T) {
	// two white stones on the edge, surrounded except for one point
	setup := sgf.Setup{
		Black: []string{"ca", "cb", "ab"},
		White: []string{"aa", "ba"},
	}
	snap := After(9, setup, moves(sgf.Black, "bb"), 1)

	assert.Empty(t, snap.White)
	assert.Len(t, snap.Black, 4)
}

func TestSuicideRemovesPlacedStone(t *testing.T) {
	setup := sgf.Setup{Black: []string{"ba", "ab"}}
	snap := After(9, setup, moves(sgf.White, "aa"), 1)

	assert.ElementsMatch(t, []string{"ba", "ab"}, snap.Black)
	assert.Empty(t, snap.White)
}

func TestSuicideRemovesWholeGroup(t *testing.T) {
	setup := sgf.Setup{
		Black: []string{"ca", "bb", "ab"},
		White: []string{"ba"},
	}
	snap := After(9, setup, moves(sgf.White, "aa"), 1)

	assert.Empty(t, snap.White)
	assert.Len(t, snap.Black, 3)
}

func TestCaptureTakesPrecedenceOverSuicide(t *testing.T) {
	// white at aa has no liberty after placement, but it takes the black stone at ba
	setup := sgf.Setup{
		Black: []string{"ba", "ab", "bb"},
		White: []string{"ca", "cb", "ac", "bc"},
	}
	b := Replay(9, setup, moves(sgf.White, "aa"), 1)

	assert.Equal(t, WhiteStone, b.At(sgf.Point{X: 0, Y: 0}))
	assert.Equal(t, Empty, b.At(sgf.Point{X: 1, Y: 0}))
	assert.Equal(t, Empty, b.At(sgf.Point{X: 0, Y: 1}))
	assert.Equal(t, Empty, b.At(sgf.Point{X: 1, Y: 1}))
}

func TestSetupOrderLaterDirectivesWin(t *testing.T) {
	setup := sgf.Setup{
		Black: []string{"aa", "bb", "cc"},
		White: []string{"bb"},
		Empty: []string{"cc", "zz"},
	}
	snap := After(9, setup, nil, 0)

	assert.Equal(t, []string{"aa"}, snap.Black)
	assert.Equal(t, []string{"bb"}, snap.White)
}

func TestPassAndOverwrite(t *testing.T) {
	ms := []sgf.Move{
		{Index: 1, Color: sgf.Black, Coord: "ee"},
		{Index: 2, Color: sgf.White},
		{Index: 3, Color: sgf.White, Coord: "ee"},
	}
	assert.Equal(t, Snapshot{Black: []string{"ee"}, White: []string{}}, After(9, sgf.Setup{}, ms, 2))
	assert.Equal(t, Snapshot{Black: []string{}, White: []string{"ee"}}, After(9, sgf.Setup{}, ms, 3))
}

func TestReplayClampsIndex(t *testing.T) {
	ms := moves(sgf.Black, "aa", "bb")
	assert.Equal(t, 2, After(9, sgf.Setup{}, ms, 99).Count())
	assert.Equal(t, 0, After(9, sgf.Setup{}, ms, -1).Count())
}

func TestStoneCountNeverExceedsPlacements(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for round := 0; round < 200; round++ {
		size := 5 + r.IntN(5)
		var setup sgf.Setup
		for i := r.IntN(6); i > 0; i-- {
			setup.Black = append(setup.Black, sgf.ToCoord(sgf.Point{X: r.IntN(size), Y: r.IntN(size)}))
			setup.White = append(setup.White, sgf.ToCoord(sgf.Point{X: r.IntN(size), Y: r.IntN(size)}))
		}
		var ms []sgf.Move
		color := sgf.Black
		n := r.IntN(80)
		for i := 0; i < n; i++ {
			coord := ""
			if r.IntN(10) > 0 {
				coord = sgf.ToCoord(sgf.Point{X: r.IntN(size), Y: r.IntN(size)})
			}
			ms = append(ms, sgf.Move{Index: i + 1, Color: color, Coord: coord})
			color = color.Opponent()
		}
		for upto := 0; upto <= len(ms); upto++ {
			snap := After(size, setup, ms, upto)
			require.LessOrEqual(t, snap.Count(), setup.Count()+upto)
		}
	}
}

func TestToPlay(t *testing.T) {
	ms := moves(sgf.Black, "aa", "bb", "cc")
	assert.Equal(t, sgf.Black, ToPlay(sgf.Setup{}, ms, 0))
	assert.Equal(t, sgf.White, ToPlay(sgf.Setup{}, ms, 1))
	assert.Equal(t, sgf.White, ToPlay(sgf.Setup{}, ms, 3))
	assert.Equal(t, sgf.White, ToPlay(sgf.Setup{ToPlay: sgf.White}, nil, 0))
	assert.Equal(t, sgf.Black, ToPlay(sgf.Setup{}, nil, 0))
}

func TestGameAt(t *testing.T) {
	g, err := Load("(;SZ[9];B[dd];W[ee];B[cc])")
	require.NoError(t, err)
	assert.Equal(t, []string{"dd"}, g.At(1).Black)
	assert.Empty(t, g.At(1).White)
	assert.Equal(t, g.Final, g.At(3))
}
