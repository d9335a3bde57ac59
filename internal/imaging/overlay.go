package imaging

import (
	"image"
	"image/color"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Overlay is one face's rendering instruction: where to draw, how
// heavy the outline is and what to write next to it.
type Overlay struct {
	Box   image.Rectangle
	Color color.RGBA
	// Thin selects a 1px outline; confirmed faces get 2px.
	Thin bool
	// Label is the text block next to the box; may span multiple
	// lines (debug mode) or be empty.
	Label string
}

const (
	thinOutline  = 1
	thickOutline = 2
	labelPadding = 4
	labelLineH   = 16 // basicfont glyph height plus spacing
	labelGlyphH  = 13
)

// Render draws every overlay onto a copy of frame and returns it; the
// input frame is never touched.
func Render(frame image.Image, overlays []Overlay) image.Image {
	bounds := frame.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, frame, bounds.Min, draw.Src)

	for _, o := range overlays {
		drawBox(dst, o)
		drawLabel(dst, o)
	}

	return dst
}

func drawBox(dst *image.RGBA, o Overlay) {
	width := thickOutline
	if o.Thin {
		width = thinOutline
	}

	x1, y1 := o.Box.Min.X, o.Box.Min.Y
	x2, y2 := o.Box.Max.X, o.Box.Max.Y
	for w := range width {
		drawHLine(dst, x1, x2, y1+w, o.Color)
		drawHLine(dst, x1, x2, y2-w, o.Color)
		drawVLine(dst, y1, y2, x1+w, o.Color)
		drawVLine(dst, y1, y2, x2-w, o.Color)
	}
}

// drawHLine draws a horizontal line on the image.
func drawHLine(dst *image.RGBA, x1, x2, y int, c color.RGBA) {
	bounds := dst.Bounds()
	if y < bounds.Min.Y || y >= bounds.Max.Y {
		return
	}
	for x := x1; x <= x2; x++ {
		if x >= bounds.Min.X && x < bounds.Max.X {
			dst.Set(x, y, c)
		}
	}
}

// drawVLine draws a vertical line on the image.
func drawVLine(dst *image.RGBA, y1, y2, x int, c color.RGBA) {
	bounds := dst.Bounds()
	if x < bounds.Min.X || x >= bounds.Max.X {
		return
	}
	for y := y1; y <= y2; y++ {
		if y >= bounds.Min.Y && y < bounds.Max.Y {
			dst.Set(x, y, c)
		}
	}
}

// drawLabel places the overlay's text block above the box, or below
// it when there is no room above.
func drawLabel(dst *image.RGBA, o Overlay) {
	if o.Label == "" {
		return
	}
	lines := strings.Split(o.Label, "\n")

	top := o.Box.Min.Y - labelPadding - (len(lines)-1)*labelLineH
	if top-labelGlyphH < dst.Bounds().Min.Y {
		top = o.Box.Max.Y + labelGlyphH + labelPadding
	}

	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(o.Color),
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		drawer.Dot = fixed.P(o.Box.Min.X+labelPadding, top+i*labelLineH)
		drawer.DrawString(line)
	}
}
