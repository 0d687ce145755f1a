// Package render draws board snapshots as PNG images.
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
	"sync"

	"github.com/park285/xiangqi-server/internal/xiangqi"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var ErrNilBoard = errors.New("board is nil")

type RenderOptions struct {
	LastMove  *xiangqi.Move
	Selection *xiangqi.Position
	Hints     []xiangqi.Position
	HUDHeader string
	HUDTurn   string
	// Flip draws Black at the bottom.
	Flip bool
}

type BoardRenderer interface {
	RenderPNG(ctx context.Context, board *xiangqi.Board, opts RenderOptions) ([]byte, error)
}

type svgBoardRenderer struct {
	gridOnce sync.Once
	grid     *image.RGBA
	gridErr  error
}

func NewSVGBoardRenderer() BoardRenderer {
	return &svgBoardRenderer{}
}

const (
	cellSize     = 56
	boardPad     = cellSize / 2
	boardW       = 8*cellSize + 2*boardPad
	boardH       = 9*cellSize + 2*boardPad
	sideMargin   = 24
	hudHeight    = 40
	hudGap       = 12
	bottomMargin = 28
	discSize     = cellSize - 6
	panelRadius  = 10
)

var (
	backgroundColor = color.RGBA{36, 30, 26, 255}
	hudPanelColor   = color.NRGBA{R: 28, G: 31, B: 46, A: 250}
	hudTextPrimary  = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	hudTurnColor    = color.NRGBA{R: 204, G: 210, B: 236, A: 255}
	lastMoveFill    = color.NRGBA{R: 255, G: 228, B: 120, A: 150}
	selectionFill   = color.NRGBA{R: 90, G: 200, B: 120, A: 150}
	hintFill        = color.NRGBA{R: 40, G: 150, B: 80, A: 200}
	redLabel        = color.NRGBA{R: 178, G: 34, B: 34, A: 255}
	blackLabel      = color.NRGBA{R: 20, G: 20, B: 20, A: 255}
	coordinateColor = color.NRGBA{R: 220, G: 200, B: 160, A: 255}
)

// SVG colours
const (
	boardFill  = "#e8c48c"
	gridStroke = "#5a3a1a"
	pieceFill  = "#f6e7c8"
	redRing    = "#b22222"
	blackRing  = "#1e1e1e"
)

func (r *svgBoardRenderer) RenderPNG(ctx context.Context, board *xiangqi.Board, opts RenderOptions) ([]byte, error) {
	if board == nil {
		return nil, ErrNilBoard
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	totalWidth := boardW + sideMargin*2
	totalHeight := hudHeight + hudGap + boardH + bottomMargin + sideMargin
	boardRect := image.Rect(sideMargin, sideMargin+hudHeight+hudGap, sideMargin+boardW, sideMargin+hudHeight+hudGap+boardH)
	// pixel position of intersection (0,0) before flipping
	origin := image.Point{X: boardRect.Min.X + boardPad, Y: boardRect.Min.Y + boardPad}

	img := image.NewRGBA(image.Rect(0, 0, totalWidth, totalHeight))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	grid, err := r.gridImage()
	if err != nil {
		return nil, err
	}
	imagedraw.Draw(img, boardRect, grid, image.Point{}, imagedraw.Over)

	drawHUD(img, opts, image.Rect(sideMargin, sideMargin, sideMargin+boardW, sideMargin+hudHeight))

	pt := func(p xiangqi.Position) image.Point { return intersection(p, origin, opts.Flip) }
	if m := opts.LastMove; m != nil {
		drawDisc(img, pt(m.From), discSize/2, lastMoveFill)
		drawDisc(img, pt(m.To), discSize/2+3, lastMoveFill)
	}
	if sel := opts.Selection; sel != nil && sel.IsValid() {
		drawDisc(img, pt(*sel), discSize/2+4, selectionFill)
	}
	if err := drawPieces(img, board, pt); err != nil {
		return nil, err
	}
	for _, h := range opts.Hints {
		if h.IsValid() {
			drawDisc(img, pt(h), 6, hintFill)
		}
	}
	drawCoordinates(img, origin, opts.Flip)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return pngBuf.Bytes(), nil
}

func (r *svgBoardRenderer) gridImage() (*image.RGBA, error) {
	r.gridOnce.Do(func() {
		r.grid, r.gridErr = rasterizeSVG(boardSVG(cellSize, boardPad), boardW, boardH)
	})
	return r.grid, r.gridErr
}

func intersection(p xiangqi.Position, origin image.Point, flip bool) image.Point {
	row, col := p.Row, p.Col
	if flip {
		row, col = xiangqi.Rows-1-row, xiangqi.Cols-1-col
	}
	return image.Point{X: origin.X + col*cellSize, Y: origin.Y + row*cellSize}
}

func drawPieces(img *image.RGBA, board *xiangqi.Board, pt func(xiangqi.Position) image.Point) error {
	drawer := &font.Drawer{Dst: img, Face: basicfont.Face7x13}
	for _, side := range []xiangqi.Side{xiangqi.Red, xiangqi.Black} {
		disc, err := renderDisc(side, discSize)
		if err != nil {
			return err
		}
		label := redLabel
		if side == xiangqi.Black {
			label = blackLabel
		}
		for _, p := range board.PiecesOf(side) {
			c := pt(p.Pos)
			rect := image.Rect(c.X-discSize/2, c.Y-discSize/2, c.X-discSize/2+discSize, c.Y-discSize/2+discSize)
			imagedraw.Draw(img, rect, disc, image.Point{}, imagedraw.Over)
			drawCenteredString(drawer, image.Rect(c.X-8, c.Y-8, c.X+8, c.Y+8), pieceLabel(p), label)
		}
	}
	return nil
}

func drawHUD(img *image.RGBA, opts RenderOptions, rect image.Rectangle) {
	header := strings.TrimSpace(opts.HUDHeader)
	turn := strings.TrimSpace(opts.HUDTurn)
	if header == "" && turn == "" {
		return
	}
	drawRoundedPanel(img, rect, panelRadius, hudPanelColor)
	drawer := &font.Drawer{Dst: img, Face: basicfont.Face7x13}
	if turn == "" {
		drawCenteredString(drawer, rect, truncateWithEllipsis(drawer.Face, header, rect.Dx()-24), hudTextPrimary)
		return
	}
	left := image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X-rect.Dx()/3, rect.Max.Y)
	right := image.Rect(left.Max.X, rect.Min.Y, rect.Max.X, rect.Max.Y)
	drawCenteredString(drawer, left, truncateWithEllipsis(drawer.Face, header, left.Dx()-24), hudTextPrimary)
	drawCenteredString(drawer, right, truncateWithEllipsis(drawer.Face, turn, right.Dx()-16), hudTurnColor)
}

func drawCoordinates(img *image.RGBA, origin image.Point, flip bool) {
	drawer := &font.Drawer{Dst: img, Face: basicfont.Face7x13, Src: image.NewUniform(coordinateColor)}
	ascent := drawer.Face.Metrics().Ascent.Ceil()
	bottom := intersection(xiangqi.Pos(xiangqi.Rows-1, 0), origin, false).Y + boardPad + ascent + 4
	for c := 0; c < xiangqi.Cols; c++ {
		x := intersection(xiangqi.Pos(0, c), origin, flip).X
		drawCenteredText(drawer, strconv.Itoa(c), x, bottom)
	}
	left := origin.X - boardPad - sideMargin/2
	for r := 0; r < xiangqi.Rows; r++ {
		y := intersection(xiangqi.Pos(r, 0), origin, flip).Y
		drawCenteredText(drawer, strconv.Itoa(r), left, y+ascent/2)
	}
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}

func drawCenteredString(drawer *font.Drawer, rect image.Rectangle, text string, clr color.Color) {
	text = strings.TrimSpace(text)
	if drawer == nil || text == "" {
		return
	}
	metrics := drawer.Face.Metrics()
	width := drawer.MeasureString(text).Round()
	x := rect.Min.X + (rect.Dx()-width)/2
	baseline := rect.Min.Y + (rect.Dy()+metrics.Ascent.Ceil()-metrics.Descent.Ceil())/2
	drawer.Src = image.NewUniform(clr)
	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)
}

func truncateWithEllipsis(face font.Face, text string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	d := font.Drawer{Face: face}
	if d.MeasureString(text).Round() <= maxWidth {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + "..."
		if d.MeasureString(candidate).Round() <= maxWidth {
			return candidate
		}
	}
	return "..."
}
