// Package palette converts the HSL colours used by the visualizer into RGBA.
package palette

import (
	"fmt"
	"image/color"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// HSL converts hue (degrees), saturation and lightness (both 0-1) to an opaque colour
func HSL(h, s, l float64) color.NRGBA {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}

	r, g, b := colorful.Hsl(h, clamp01(s), clamp01(l)).Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}
}

// CSS formats a fully saturated, half-lightness hue the way the canvas API expects it
func CSS(h float64) string {
	return fmt.Sprintf("hsl(%g, 100%%, 50%%)", h)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
