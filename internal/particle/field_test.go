package particle

import (
	"image/color"
	"math"
	"testing"
)

type recordingCanvas struct {
	discs int
	last  [3]float64
}

func (r *recordingCanvas) FillDisc(cx, cy, rad float64, _ color.NRGBA) {
	r.discs++
	r.last = [3]float64{cx, cy, rad}
}

func TestNewFieldRanges(t *testing.T) {
	f := NewField(DefaultCount, NewSource(42))

	if f.Len() != 150 {
		t.Fatalf("Expected 150 particles, got %d", f.Len())
	}

	for i, p := range f.Particles() {
		if p.Angle < 0 || p.Angle >= 2*math.Pi {
			t.Errorf("particle %d: angle %f out of range", i, p.Angle)
		}
		if p.Radius < 100 || p.Radius >= 400 {
			t.Errorf("particle %d: radius %f out of range", i, p.Radius)
		}
		if p.Speed < 0.005 || p.Speed >= 0.025 {
			t.Errorf("particle %d: speed %f out of range", i, p.Speed)
		}
		if p.Size < 0.5 || p.Size >= 2.5 {
			t.Errorf("particle %d: size %f out of range", i, p.Size)
		}
		if p.Hue < 180 || p.Hue >= 240 {
			t.Errorf("particle %d: hue %f out of range", i, p.Hue)
		}
	}
}

func TestFieldSizeIsInvariant(t *testing.T) {
	f := NewField(DefaultCount, NewSource(7))

	// 800 frames is enough for every particle to respawn at least once.
	for frame := 0; frame < 800; frame++ {
		f.Step(float64(frame%256), nil, 0, 0)
		if f.Len() != 150 {
			t.Fatalf("frame %d: expected 150 particles, got %d", frame, f.Len())
		}
	}

	if f.Respawns() < 150 {
		t.Errorf("Expected at least 150 respawns, got %d", f.Respawns())
	}
}

func TestRadiusDecreasesUntilRespawn(t *testing.T) {
	f := NewField(DefaultCount, NewSource(99))

	for frame := 0; frame < 1000; frame++ {
		before := make([]float64, f.Len())
		for i, p := range f.Particles() {
			before[i] = p.Radius
		}

		f.Step(128, nil, 0, 0)

		for i, p := range f.Particles() {
			switch {
			case p.Radius == before[i]-Decay:
			case before[i]-Decay < MinRadius:
				if p.Radius < 100 || p.Radius >= 400 {
					t.Fatalf("frame %d particle %d: respawned radius %f out of range", frame, i, p.Radius)
				}
			default:
				t.Fatalf("frame %d particle %d: radius went %f -> %f", frame, i, before[i], p.Radius)
			}
		}
	}
}

func TestUpdateAddsBassToAngle(t *testing.T) {
	rng := NewSource(1)
	p := Particle{Angle: 1, Radius: 300, Speed: 0.01, Size: 1, Hue: 200}

	p.Update(255, rng)

	want := 1 + 0.01 + 255.0/10000
	if math.Abs(p.Angle-want) > 1e-12 {
		t.Errorf("Expected angle %f, got %f", want, p.Angle)
	}
	if p.Radius != 299.5 {
		t.Errorf("Expected radius 299.5, got %f", p.Radius)
	}
}

func TestDrawProjectsAroundCentre(t *testing.T) {
	p := Particle{Angle: math.Pi / 2, Radius: 100, Size: 2, Hue: 180}
	c := &recordingCanvas{}

	p.Draw(c, 50, 60)

	if c.discs != 1 {
		t.Fatalf("Expected one disc, got %d", c.discs)
	}
	if math.Abs(c.last[0]-50) > 1e-9 || math.Abs(c.last[1]-160) > 1e-9 || c.last[2] != 2 {
		t.Errorf("Unexpected disc %v", c.last)
	}
	if p.CSS() != "hsl(180, 100%, 50%)" {
		t.Errorf("Unexpected css %s", p.CSS())
	}
}

func TestStepDrawsEveryParticle(t *testing.T) {
	f := NewField(DefaultCount, NewSource(3))
	c := &recordingCanvas{}

	f.Step(0, c, 0, 0)

	if c.discs != 150 {
		t.Errorf("Expected 150 discs, got %d", c.discs)
	}
}
