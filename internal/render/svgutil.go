package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// rasterizeSVG draws an SVG document into a w x h transparent image.
func rasterizeSVG(data []byte, w, h int) (*image.RGBA, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(w), float64(h))

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	raster := rasterx.NewDasher(w, h, scanner)
	icon.Draw(raster, 1.0)
	return img, nil
}

// boardSVG is the empty board: grid with the river gap and both palaces.
// Intersection (0,0) sits at (pad, pad).
func boardSVG(cell, pad int) []byte {
	w, h := 8*cell+2*pad, 9*cell+2*pad
	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, w, h, w, h)
	fmt.Fprintf(&b, `<rect x="0" y="0" width="%d" height="%d" fill="%s"/>`, w, h, boardFill)
	line := func(x1, y1, x2, y2 int) {
		fmt.Fprintf(&b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="%s" stroke-width="2"/>`, x1, y1, x2, y2, gridStroke)
	}
	x := func(col int) int { return pad + col*cell }
	y := func(row int) int { return pad + row*cell }

	for r := 0; r < 10; r++ {
		line(x(0), y(r), x(8), y(r))
	}
	for c := 0; c < 9; c++ {
		if c == 0 || c == 8 {
			line(x(c), y(0), x(c), y(9))
			continue
		}
		line(x(c), y(0), x(c), y(4))
		line(x(c), y(5), x(c), y(9))
	}
	for _, top := range []int{0, 7} {
		line(x(3), y(top), x(5), y(top+2))
		line(x(5), y(top), x(3), y(top+2))
	}
	fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" fill="none" stroke="%s" stroke-width="4"/>`,
		pad-6, pad-6, 8*cell+12, 9*cell+12, gridStroke)
	b.WriteString(`</svg>`)
	return []byte(b.String())
}

// discSVG is a piece token: a filled disc with an outer and inner ring.
func discSVG(ring string) []byte {
	return []byte(fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="100" height="100" viewBox="0 0 100 100">`+
		`<circle cx="50" cy="50" r="46" fill="%s" stroke="%s" stroke-width="6"/>`+
		`<circle cx="50" cy="50" r="36" fill="none" stroke="%s" stroke-width="2"/>`+
		`</svg>`, pieceFill, ring, ring))
}
