package particle

import (
	"math/rand/v2"
	"time"
)

// DefaultCount is the population size of the visualizer
const DefaultCount = 150

// Field is a fixed-size population of particles. It is owned by the render
// loop goroutine and is not safe for concurrent use.
type Field struct {
	particles []Particle
	rng       *rand.Rand
	respawns  uint64
}

// NewSource returns a random source seeded from seed, or from the clock when seed is zero
func NewSource(seed int64) *rand.Rand {
	s := uint64(seed)
	if seed == 0 {
		s = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))
}

// NewField creates count particles in randomized orbital state
func NewField(count int, rng *rand.Rand) *Field {
	if count < 1 {
		count = DefaultCount
	}
	if rng == nil {
		rng = NewSource(0)
	}

	f := &Field{
		particles: make([]Particle, count),
		rng:       rng,
	}
	f.Initialize()
	return f
}

// Initialize re-randomises every particle without changing the population size
func (f *Field) Initialize() {
	for i := range f.particles {
		f.particles[i].Reset(f.rng)
	}
}

// Len returns the population size
func (f *Field) Len() int {
	return len(f.particles)
}

// Particles exposes the population for inspection
func (f *Field) Particles() []Particle {
	return f.particles
}

// Respawns returns how many rebirths have happened since creation
func (f *Field) Respawns() uint64 {
	return f.respawns
}

// Step updates every particle with the frame's bass energy and draws it
// against the centre. A nil canvas only advances the simulation.
func (f *Field) Step(bass float64, c Canvas, cx, cy float64) {
	for i := range f.particles {
		p := &f.particles[i]
		if p.Update(bass, f.rng) {
			f.respawns++
		}
		if c != nil {
			p.Draw(c, cx, cy)
		}
	}
}
