package imaging

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// DefaultLineWidth is the box outline thickness in pixels.
const DefaultLineWidth = 2

// OverlayBox is one box to render on an overlay.
type OverlayBox struct {
	// X1, Y1, X2, Y2 are the box corners in pixel coordinates.
	X1, Y1, X2, Y2 float64

	// Color is the outline and label background colour.
	Color color.RGBA

	// Text is drawn above the box when non-empty.
	Text string
}

// DrawOverlay draws boxes and their labels onto dst in order.
//
// Box coordinates are rounded to the nearest pixel and clipped to dst's bounds;
// boxes entirely outside the image are skipped. Labels sit just above the box
// when there is room, otherwise just inside its top edge.
func DrawOverlay(dst *image.RGBA, boxes []OverlayBox, lineWidth int) {
	if lineWidth <= 0 {
		lineWidth = DefaultLineWidth
	}
	bounds := dst.Bounds()

	for _, b := range boxes {
		rect := image.Rect(
			int(math.Round(b.X1)), int(math.Round(b.Y1)),
			int(math.Round(b.X2)), int(math.Round(b.Y2)),
		)
		if rect.Dx() == 0 {
			rect.Max.X++
		}
		if rect.Dy() == 0 {
			rect.Max.Y++
		}
		if !rect.Overlaps(bounds) {
			continue
		}
		// Outlines grow inwards, so clip first to keep edges past the border visible.
		rect = rect.Intersect(bounds)
		drawRectOutline(dst, rect, b.Color, lineWidth)
		if b.Text != "" {
			drawLabel(dst, rect.Min.X, rect.Min.Y, b.Text, b.Color)
		}
	}
}

// drawRectOutline draws an axis-aligned rectangle outline of the given width,
// growing inwards from rect's edges.
func drawRectOutline(dst *image.RGBA, rect image.Rectangle, c color.RGBA, width int) {
	src := image.NewUniform(c)
	w := width
	if dx := rect.Dx(); dx < 2*w {
		w = max(1, dx/2)
	}
	h := width
	if dy := rect.Dy(); dy < 2*h {
		h = max(1, dy/2)
	}

	edges := []image.Rectangle{
		image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+h), // top
		image.Rect(rect.Min.X, rect.Max.Y-h, rect.Max.X, rect.Max.Y), // bottom
		image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+w, rect.Max.Y), // left
		image.Rect(rect.Max.X-w, rect.Min.Y, rect.Max.X, rect.Max.Y), // right
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), src, image.Point{}, draw.Src)
	}
}

// drawLabel draws text on a filled background anchored at the box's top-left corner.
func drawLabel(dst *image.RGBA, x, y int, text string, bg color.RGBA) {
	face := basicfont.Face7x13
	bounds := dst.Bounds()

	textWidth := font.MeasureString(face, text).Ceil()
	metrics := face.Metrics()
	textHeight := (metrics.Ascent + metrics.Descent).Ceil()
	const pad = 2

	labelHeight := textHeight + 2*pad
	top := y - labelHeight
	if top < bounds.Min.Y {
		top = max(y, bounds.Min.Y)
	}
	left := x
	if left+textWidth+2*pad > bounds.Max.X {
		left = bounds.Max.X - textWidth - 2*pad
	}
	if left < bounds.Min.X {
		left = bounds.Min.X
	}

	bgRect := image.Rect(left, top, left+textWidth+2*pad, top+labelHeight).Intersect(bounds)
	draw.Draw(dst, bgRect, image.NewUniform(bg), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(TextColor(bg)),
		Face: face,
		Dot:  fixed.P(left+pad, top+pad+metrics.Ascent.Ceil()),
	}
	d.DrawString(text)
}
