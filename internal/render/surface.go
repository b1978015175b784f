package render

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
)

// haloAlpha scales the bar colour for the glow drawn under it
const haloAlpha = 0.3

// Surface is an opaque RGBA raster with the handful of primitives the
// visualizer paints with. Drawing is anti-aliased and composited over the
// existing content.
type Surface struct {
	img *image.RGBA
	dc  *gg.Context
}

// NewSurface creates a black surface of the given size
func NewSurface(width, height int) *Surface {
	s := &Surface{}
	s.Resize(width, height)
	return s
}

// Resize replaces the raster with a black one of the new size. Content is not preserved.
func (s *Surface) Resize(width, height int) {
	s.img = image.NewRGBA(image.Rect(0, 0, max(width, 1), max(height, 1)))
	s.dc = gg.NewContextForRGBA(s.img)
	s.dc.SetColor(color.Black)
	s.dc.Clear()
}

// Size returns the surface dimensions
func (s *Surface) Size() (width, height int) {
	return s.dc.Width(), s.dc.Height()
}

// Image exposes the raster; callers must not retain it across frames
func (s *Surface) Image() *image.RGBA {
	return s.img
}

// Snapshot copies the current raster into dst, allocating when dst has the wrong size
func (s *Surface) Snapshot(dst *image.RGBA) *image.RGBA {
	if dst == nil || dst.Bounds() != s.img.Bounds() {
		dst = image.NewRGBA(s.img.Bounds())
	}
	copy(dst.Pix, s.img.Pix)
	return dst
}

// Fade composites c over the whole surface, leaving a trail of the previous frame
func (s *Surface) Fade(c color.NRGBA) {
	s.dc.DrawRectangle(0, 0, float64(s.dc.Width()), float64(s.dc.Height()))
	s.dc.SetColor(c)
	s.dc.Fill()
}

// FillDisc paints a filled circle of radius r
func (s *Surface) FillDisc(cx, cy, r float64, c color.NRGBA) {
	if r <= 0 || c.A == 0 {
		return
	}
	s.dc.DrawCircle(cx, cy, r)
	s.dc.SetColor(c)
	s.dc.Fill()
}

// StrokeCircle paints a ring of the given line width centred on radius r
func (s *Surface) StrokeCircle(cx, cy, r, width float64, c color.NRGBA) {
	if r <= 0 || width <= 0 || c.A == 0 {
		return
	}
	s.dc.DrawCircle(cx, cy, r)
	s.dc.SetLineWidth(width)
	s.dc.SetColor(c)
	s.dc.Stroke()
}

// Line paints a round-capped segment. A positive glow first paints a wider,
// fainter halo whose extent is glow pixels on each side. A zero-length
// segment paints nothing.
func (s *Surface) Line(x0, y0, x1, y1, width, glow float64, c color.NRGBA) {
	if width <= 0 || c.A == 0 || (x0 == x1 && y0 == y1) {
		return
	}
	s.dc.SetLineCapRound()
	if glow > 0 {
		halo := c
		halo.A = uint8(float64(c.A) * haloAlpha)
		s.segment(x0, y0, x1, y1, width+2*glow, halo)
	}
	s.segment(x0, y0, x1, y1, width, c)
}

func (s *Surface) segment(x0, y0, x1, y1, width float64, c color.NRGBA) {
	s.dc.DrawLine(x0, y0, x1, y1)
	s.dc.SetLineWidth(width)
	s.dc.SetColor(c)
	s.dc.Stroke()
}
