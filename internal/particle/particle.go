// Package particle implements the orbiting particle population that the
// render loop perturbs with bass energy.
package particle

import (
	"image/color"
	"math"
	"math/rand/v2"

	"github.com/rishpaul04/Resonance/internal/palette"
)

const (
	// MinRadius is the distance below which a particle is reborn
	MinRadius = 50.0
	// Decay is the inward drift per frame, independent of bass
	Decay = 0.5
	// BassDivisor scales bass energy into extra angular speed
	BassDivisor = 10000.0
)

// Canvas is the drawing surface a particle paints onto
type Canvas interface {
	FillDisc(cx, cy, r float64, c color.NRGBA)
}

// Particle is a point orbiting the centre in polar coordinates
type Particle struct {
	Angle  float64 // radians
	Radius float64 // distance from centre
	Speed  float64 // radians per frame
	Size   float64 // disc radius
	Hue    float64 // degrees, cyan to blue band
}

// Reset re-initialises every attribute in place
func (p *Particle) Reset(rng *rand.Rand) {
	p.Angle = rng.Float64() * 2 * math.Pi
	p.Radius = rng.Float64()*300 + 100
	p.Speed = rng.Float64()*0.02 + 0.005
	p.Size = rng.Float64()*2 + 0.5
	p.Hue = rng.Float64()*60 + 180
}

// Update advances the particle one frame and reports whether it was reborn
func (p *Particle) Update(bass float64, rng *rand.Rand) bool {
	p.Angle += p.Speed + bass/BassDivisor
	p.Radius -= Decay
	if p.Radius < MinRadius {
		p.Reset(rng)
		return true
	}
	return false
}

// Position projects the particle around the given centre
func (p *Particle) Position(cx, cy float64) (x, y float64) {
	return cx + math.Cos(p.Angle)*p.Radius, cy + math.Sin(p.Angle)*p.Radius
}

// Color returns the particle colour
func (p *Particle) Color() color.NRGBA {
	return palette.HSL(p.Hue, 1, 0.5)
}

// CSS returns the particle colour as a hue string
func (p *Particle) CSS() string {
	return palette.CSS(p.Hue)
}

// Draw paints a filled disc of Size at the particle position
func (p *Particle) Draw(c Canvas, cx, cy float64) {
	x, y := p.Position(cx, cy)
	c.FillDisc(x, y, p.Size, p.Color())
}
