package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strconv"
	"strings"

	"github.com/park285/goban-server/internal/goban"
	"github.com/park285/goban-server/internal/sgf"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

var ErrBoardSize = errors.New("board size out of range")

type Options struct {
	// LastMove is a record coordinate marked on the stone that occupies it.
	LastMove string
	Title    string
}

const (
	cellSize      = 32
	labelMargin   = 36
	titleHeight   = 40
	titleGap      = 12
	panelRadius   = 10
	titlePaddingX = 20
	starRadius    = 3
)

var (
	woodColor       = color.RGBA{220, 179, 92, 255}
	gridColor       = color.RGBA{60, 42, 20, 255}
	labelColor      = color.NRGBA{R: 70, G: 48, B: 22, A: 255}
	panelColor      = color.NRGBA{R: 28, G: 31, B: 46, A: 250}
	panelTextColor  = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	markOnBlack     = color.NRGBA{R: 245, G: 245, B: 245, A: 255}
	markOnWhite     = color.NRGBA{R: 20, G: 20, B: 20, A: 255}
	backgroundColor = color.RGBA{245, 240, 228, 255}
)

type layout struct {
	size   int
	origin image.Point
	width  int
	height int
}

func layoutFor(size int, title string) layout {
	top := labelMargin
	if strings.TrimSpace(title) != "" {
		top += titleHeight + titleGap
	}
	board := size * cellSize
	return layout{
		size:   size,
		origin: image.Point{X: labelMargin, Y: top},
		width:  board + labelMargin*2,
		height: board + top + labelMargin,
	}
}

// point is the pixel centre of the intersection at column x, row y.
func (l layout) point(x, y int) image.Point {
	return image.Point{
		X: l.origin.X + cellSize/2 + x*cellSize,
		Y: l.origin.Y + cellSize/2 + y*cellSize,
	}
}

func (l layout) boardRect() image.Rectangle {
	return image.Rect(l.origin.X, l.origin.Y, l.origin.X+l.size*cellSize, l.origin.Y+l.size*cellSize)
}

// PNG draws the position as a PNG image.
func PNG(ctx context.Context, boardSize int, snap goban.Snapshot, opts Options) ([]byte, error) {
	if boardSize < sgf.MinBoardSize || boardSize > sgf.MaxBoardSize {
		return nil, fmt.Errorf("%w: %d", ErrBoardSize, boardSize)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := layoutFor(boardSize, opts.Title)
	img := image.NewRGBA(image.Rect(0, 0, l.width, l.height))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)
	imagedraw.Draw(img, l.boardRect(), image.NewUniform(woodColor), image.Point{}, imagedraw.Src)

	drawGrid(img, l)
	drawLabels(img, l)
	drawTitle(img, l, opts.Title)

	if err := drawStones(img, l, sgf.Black, snap.Black); err != nil {
		return nil, err
	}
	if err := drawStones(img, l, sgf.White, snap.White); err != nil {
		return nil, err
	}
	drawLastMove(img, l, snap, opts.LastMove)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func drawGrid(img *image.RGBA, l layout) {
	line := image.NewUniform(gridColor)
	first := l.point(0, 0)
	last := l.point(l.size-1, l.size-1)
	for i := 0; i < l.size; i++ {
		p := l.point(i, i)
		imagedraw.Draw(img, image.Rect(first.X, p.Y, last.X+1, p.Y+1), line, image.Point{}, imagedraw.Src)
		imagedraw.Draw(img, image.Rect(p.X, first.Y, p.X+1, last.Y+1), line, image.Point{}, imagedraw.Src)
	}
	for _, s := range starPoints(l.size) {
		drawDisc(img, l.point(s.X, s.Y), starRadius, gridColor)
	}
}

// starPoints follows the usual hoshi layout: the third or fourth line from
// each edge, plus side and centre points on odd boards large enough to hold them.
func starPoints(size int) []image.Point {
	if size < 7 {
		if size%2 == 1 {
			return []image.Point{{X: size / 2, Y: size / 2}}
		}
		return nil
	}
	edge := 3
	if size < 13 {
		edge = 2
	}
	lines := []int{edge, size - 1 - edge}
	if size%2 == 1 && size >= 9 {
		lines = []int{edge, size / 2, size - 1 - edge}
	}
	out := make([]image.Point, 0, len(lines)*len(lines))
	for _, y := range lines {
		for _, x := range lines {
			out = append(out, image.Point{X: x, Y: y})
		}
	}
	if size%2 == 1 && size < 9 {
		out = append(out, image.Point{X: size / 2, Y: size / 2})
	}
	return out
}

func drawLabels(img *image.RGBA, l layout) {
	drawer := &font.Drawer{Dst: img, Face: basicfont.Face7x13, Src: image.NewUniform(labelColor)}
	ascent := basicfont.Face7x13.Metrics().Ascent.Ceil()
	for i := 0; i < l.size; i++ {
		p := l.point(i, i)
		col := goban.ColumnLabel(i)
		drawCenteredText(drawer, col, p.X, l.origin.Y-labelMargin/2+ascent/2)
		drawCenteredText(drawer, col, p.X, l.boardRect().Max.Y+labelMargin/2+ascent/2)

		row := strconv.Itoa(l.size - i)
		drawCenteredText(drawer, row, l.origin.X-labelMargin/2, p.Y+ascent/2)
		drawCenteredText(drawer, row, l.boardRect().Max.X+labelMargin/2, p.Y+ascent/2)
	}
}

func drawTitle(img *image.RGBA, l layout, title string) {
	title = strings.TrimSpace(title)
	if title == "" {
		return
	}
	face := basicfont.Face7x13
	rect := image.Rect(l.origin.X, labelMargin/2, l.boardRect().Max.X, labelMargin/2+titleHeight)
	drawRoundedPanel(img, rect, panelRadius, panelColor)
	title = truncateWithEllipsis(face, title, rect.Dx()-titlePaddingX*2)
	drawCenteredString(&font.Drawer{Dst: img, Face: face}, rect, title, panelTextColor)
}

func drawStones(img *image.RGBA, l layout, c sgf.Color, coords []string) error {
	if len(coords) == 0 {
		return nil
	}
	stone, err := stoneImage(c, cellSize)
	if err != nil {
		return err
	}
	for _, coord := range coords {
		p, ok := sgf.ToPoint(coord, l.size)
		if !ok {
			continue
		}
		center := l.point(p.X, p.Y)
		dst := image.Rect(center.X-cellSize/2, center.Y-cellSize/2, center.X+cellSize/2, center.Y+cellSize/2)
		imagedraw.Draw(img, dst, stone, image.Point{}, imagedraw.Over)
	}
	return nil
}

func drawLastMove(img *image.RGBA, l layout, snap goban.Snapshot, coord string) {
	p, ok := sgf.ToPoint(coord, l.size)
	if !ok {
		return
	}
	var mark color.Color
	switch {
	case contains(snap.Black, coord):
		mark = markOnBlack
	case contains(snap.White, coord):
		mark = markOnWhite
	default:
		return
	}
	drawDisc(img, l.point(p.X, p.Y), cellSize/6, mark)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
