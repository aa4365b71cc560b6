package exercise

import (
	"testing"

	"github.com/park285/goban-server/internal/engine/gtp"
	"github.com/park285/goban-server/internal/sgf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSGFUsesNextRecordMove(t *testing.T) {
	ex, err := FromSGF("(;SZ[9];B[dd];W[ee];B[cc])", 2, "joseki")
	require.NoError(t, err)

	assert.Contains(t, ex.ID, "ex-")
	assert.Equal(t, "joseki", ex.Category)
	assert.Equal(t, 9, ex.BoardSize)
	assert.Equal(t, []string{"dd"}, ex.Stones.Black)
	assert.Equal(t, []string{"ee"}, ex.Stones.White)
	assert.Equal(t, sgf.Black, ex.ToPlay)
	assert.Equal(t, Answer{Primary: "cc", Alternatives: []string{}}, ex.Answer)
	assert.NotEmpty(t, ex.SourceSGF)
}

func TestBuildFallsBackToVariationHead(t *testing.T) {
	an := &gtp.Analysis{Winrate: 0.6, PV: []string{"C7", "D6"}}
	ex, err := Build(Input{
		BoardSize: 9,
		Moves:     []sgf.Move{{Index: 1, Color: sgf.Black, Coord: "dd"}},
		MoveIndex: 1,
		Analysis:  an,
	})
	require.NoError(t, err)

	assert.Equal(t, DefaultCategory, ex.Category)
	assert.Equal(t, "cc", ex.Answer.Primary)
	assert.Empty(t, ex.Answer.Alternatives)
	assert.Equal(t, sgf.White, ex.ToPlay)
	assert.Same(t, an, ex.Analysis)
}

func TestBuildKeepsDifferingVariationHeadAsAlternative(t *testing.T) {
	ex, err := Build(Input{
		BoardSize: 9,
		Moves:     []sgf.Move{{Index: 1, Color: sgf.Black, Coord: "dd"}},
		MoveIndex: 0,
		Analysis:  &gtp.Analysis{PV: []string{"E5"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "dd", ex.Answer.Primary)
	assert.Equal(t, []string{"ee"}, ex.Answer.Alternatives)
}

func TestBuildRejects(t *testing.T) {
	ms := []sgf.Move{{Index: 1, Color: sgf.Black, Coord: "dd"}}

	_, err := Build(Input{BoardSize: 9, Moves: ms, MoveIndex: 2})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Build(Input{BoardSize: 3, Moves: ms})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Build(Input{BoardSize: 9, Moves: ms, MoveIndex: 1})
	assert.ErrorIs(t, err, ErrNoAnswer)

	_, err = Build(Input{BoardSize: 9, Moves: ms, MoveIndex: 1, Analysis: &gtp.Analysis{PV: []string{"pass"}}})
	assert.ErrorIs(t, err, ErrNoAnswer)
}

func TestFromSGFParseFailure(t *testing.T) {
	_, err := FromSGF("(;SZ[9", 0, "")
	assert.ErrorIs(t, err, sgf.ErrParse)
}

func TestFromSGFIrregularPosition(t *testing.T) {
	// editor positions may hold stones that could never arise in play
	ex, err := FromSGF("(;SZ[9]AB[aa][ba][ab]AW[bb]PL[W];W[cc])", 0, "life")
	require.NoError(t, err)

	assert.Len(t, ex.Stones.Black, 3)
	assert.Equal(t, sgf.White, ex.ToPlay)
	assert.Equal(t, "cc", ex.Answer.Primary)
}
