package render

import (
	"image/color"
	"testing"
)

func TestFadeMovesTowardTrailColour(t *testing.T) {
	s := NewSurface(4, 4)
	s.FillDisc(2, 2, 10, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	s.Fade(fadeColor)

	c := s.Image().RGBAAt(1, 1)
	// 255*0.8 + 5*0.2
	if c.R < 204 || c.R > 206 {
		t.Errorf("Expected ~205 after one fade, got %d", c.R)
	}

	for i := 0; i < 200; i++ {
		s.Fade(fadeColor)
	}
	c = s.Image().RGBAAt(1, 1)
	if c.R > 8 {
		t.Errorf("Expected trail to settle near 5, got %d", c.R)
	}
	if c.A != 255 {
		t.Errorf("Expected opaque surface, got alpha %d", c.A)
	}
}

func TestFillDiscCoverage(t *testing.T) {
	s := NewSurface(50, 50)
	red := color.NRGBA{R: 255, A: 255}

	s.FillDisc(25, 25, 10, red)

	if got := s.Image().RGBAAt(25, 25); got.R != 255 {
		t.Errorf("Expected full red at centre, got %+v", got)
	}
	if got := s.Image().RGBAAt(2, 2); got.R != 0 {
		t.Errorf("Expected untouched corner, got %+v", got)
	}
}

func TestShapesClipToBounds(t *testing.T) {
	s := NewSurface(10, 10)
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}

	s.FillDisc(-50, -50, 100, white)
	s.StrokeCircle(5, 5, 40, 2, white)
	s.Line(-100, 5, 100, 5, 3, 15, white)
}

func TestLineGlowWidensStroke(t *testing.T) {
	plain := NewSurface(40, 40)
	glow := NewSurface(40, 40)
	c := color.NRGBA{G: 255, A: 255}

	plain.Line(5, 20, 35, 20, 3, 0, c)
	glow.Line(5, 20, 35, 20, 3, 8, c)

	if got := plain.Image().RGBAAt(20, 26); got.G != 0 {
		t.Errorf("Expected no paint beyond plain stroke, got %+v", got)
	}
	if got := glow.Image().RGBAAt(20, 26); got.G == 0 {
		t.Error("Expected halo beyond glowing stroke")
	}
}

func TestResizeClearsToBlack(t *testing.T) {
	s := NewSurface(10, 10)
	s.FillDisc(5, 5, 5, color.NRGBA{R: 255, A: 255})

	s.Resize(20, 5)

	w, h := s.Size()
	if w != 20 || h != 5 {
		t.Fatalf("Expected 20x5, got %dx%d", w, h)
	}
	if got := s.Image().RGBAAt(5, 2); got.R != 0 || got.A != 255 {
		t.Errorf("Expected opaque black, got %+v", got)
	}
}

func TestStrokeCircleLeavesCentre(t *testing.T) {
	s := NewSurface(60, 60)
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}

	s.StrokeCircle(30, 30, 20, 2, white)

	if got := s.Image().RGBAAt(30, 30); got.R != 0 {
		t.Errorf("Expected untouched centre, got %+v", got)
	}
	if got := s.Image().RGBAAt(50, 30); got.R == 0 {
		t.Error("Expected ring on the circumference")
	}
}

func TestZeroLengthLinePaintsNothing(t *testing.T) {
	s := NewSurface(20, 20)
	s.Line(10, 10, 10, 10, 3, 15, color.NRGBA{R: 255, A: 255})

	for i := 0; i < len(s.Image().Pix); i += 4 {
		if s.Image().Pix[i] != 0 {
			t.Fatalf("Expected blank surface, found paint at byte %d", i)
		}
	}
}
