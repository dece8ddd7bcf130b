package geometry

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestBirth_DropPoint(t *testing.T) {
	g := Birth(&Point{X: 200, Y: 150}, 400, 400)

	want := Geometry{X: 150, Y: 100, Width: 100, Height: 100}
	if g != want {
		t.Errorf("Birth() = %+v, want %+v", g, want)
	}
}

func TestBirth_Centered(t *testing.T) {
	g := Birth(nil, 400, 300)

	want := Geometry{X: 150, Y: 100, Width: 100, Height: 100}
	if g != want {
		t.Errorf("Birth() = %+v, want %+v", g, want)
	}
}

func TestApplyDrag_PreservesSizeAndRotation(t *testing.T) {
	start := Geometry{X: 10, Y: 20, Width: 80, Height: 60, Rotation: 45}

	g := ApplyDrag(start, Point{X: 100, Y: 100}, Point{X: 130, Y: 90})

	if g.X != 40 || g.Y != 10 {
		t.Errorf("position = (%v, %v), want (40, 10)", g.X, g.Y)
	}
	if g.Width != 80 || g.Height != 60 || g.Rotation != 45 {
		t.Errorf("size or rotation changed: %+v", g)
	}
}

func TestApplyDrag_OffCanvas(t *testing.T) {
	start := Geometry{X: 0, Y: 0, Width: 100, Height: 100}

	g := ApplyDrag(start, Point{}, Point{X: -500, Y: -500})

	if g.X != -500 || g.Y != -500 {
		t.Errorf("position = (%v, %v), want (-500, -500)", g.X, g.Y)
	}
}

func TestApplyResize_SEClamp(t *testing.T) {
	start := Geometry{X: 30, Y: 40, Width: 100, Height: 100}

	g := ApplyResize(start, SE, Point{X: 50, Y: -200})

	if g.Width != 150 {
		t.Errorf("Width = %v, want 150", g.Width)
	}
	if g.Height != MinSize {
		t.Errorf("Height = %v, want %v", g.Height, MinSize)
	}
	if g.X != 30 || g.Y != 40 {
		t.Errorf("position = (%v, %v), want unchanged (30, 40)", g.X, g.Y)
	}
}

func TestApplyResize_Handles(t *testing.T) {
	start := Geometry{X: 100, Y: 100, Width: 100, Height: 100, Rotation: 30}
	delta := Point{X: 10, Y: 20}

	tests := []struct {
		handle Handle
		want   Geometry
	}{
		{NW, Geometry{X: 110, Y: 120, Width: 90, Height: 80, Rotation: 30}},
		{NE, Geometry{X: 100, Y: 120, Width: 110, Height: 80, Rotation: 30}},
		{SW, Geometry{X: 110, Y: 100, Width: 90, Height: 120, Rotation: 30}},
		{SE, Geometry{X: 100, Y: 100, Width: 110, Height: 120, Rotation: 30}},
	}

	for _, tc := range tests {
		t.Run(string(tc.handle), func(t *testing.T) {
			got := ApplyResize(start, tc.handle, delta)
			if got != tc.want {
				t.Errorf("ApplyResize(%s) = %+v, want %+v", tc.handle, got, tc.want)
			}
		})
	}
}

func TestApplyResize_NWClampDrifts(t *testing.T) {
	start := Geometry{X: 0, Y: 0, Width: 100, Height: 100}

	g := ApplyResize(start, NW, Point{X: 95, Y: 95})

	if g.Width != MinSize || g.Height != MinSize {
		t.Fatalf("size = %vx%v, want clamped to %v", g.Width, g.Height, MinSize)
	}
	// The offset follows the raw delta, so the bottom-right corner moves
	// from 100 to 115.
	if g.X != 95 || g.Y != 95 {
		t.Errorf("position = (%v, %v), want (95, 95)", g.X, g.Y)
	}
}

func TestApplyRotate_Unwrapped(t *testing.T) {
	center := Point{X: 0, Y: 0}
	rad := 100 * math.Pi / 180
	pointer := Point{X: math.Cos(rad), Y: math.Sin(rad)}

	// Sweep from -90 to 100: a 190 degree turn.
	startAngle := Angle(center, Point{X: 0, Y: -1})
	rotation := ApplyRotate(center, startAngle, 0, pointer)
	if !almostEqual(rotation, 190) {
		t.Fatalf("rotation = %v, want 190", rotation)
	}

	// A fresh session anchored at the same pointer starts from 190.
	second := ApplyRotate(center, Angle(center, pointer), rotation, pointer)
	if !almostEqual(second, 190) {
		t.Errorf("second session read back %v, want 190", second)
	}
}

func TestApplyRotate_Accumulates(t *testing.T) {
	center := Point{X: 50, Y: 50}
	start := Angle(center, Point{X: 100, Y: 50})

	r := ApplyRotate(center, start, 350, Point{X: 50, Y: 100})

	if !almostEqual(r, 440) {
		t.Errorf("rotation = %v, want 440", r)
	}
}

func TestNudge_PreservesRotation(t *testing.T) {
	g := Nudge(Geometry{X: 1, Y: 2, Width: 30, Height: 40, Rotation: 75}, 10, -1)

	want := Geometry{X: 11, Y: 1, Width: 30, Height: 40, Rotation: 75}
	if g != want {
		t.Errorf("Nudge() = %+v, want %+v", g, want)
	}
}

func TestNormalizeDegrees(t *testing.T) {
	cases := map[float64]float64{
		0:    0,
		190:  -170,
		180:  180,
		-180: 180,
		540:  180,
		-190: 170,
		720:  0,
	}
	for in, want := range cases {
		if got := NormalizeDegrees(in); !almostEqual(got, want) {
			t.Errorf("NormalizeDegrees(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestBounds_Rotated(t *testing.T) {
	g := Geometry{X: 0, Y: 0, Width: 100, Height: 50, Rotation: 90}

	b := Bounds(g)

	if !almostEqual(b.Dx(), 50) || !almostEqual(b.Dy(), 100) {
		t.Errorf("Bounds() size = %vx%v, want 50x100", b.Dx(), b.Dy())
	}
	if !almostEqual(b.MinX, 25) || !almostEqual(b.MinY, -25) {
		t.Errorf("Bounds() min = (%v, %v), want (25, -25)", b.MinX, b.MinY)
	}
}

func TestTransform(t *testing.T) {
	if got := Transform(Geometry{}); got != "none" {
		t.Errorf("Transform() = %q, want none", got)
	}
	if got := Transform(Geometry{Rotation: 190}); got != "rotate(190deg)" {
		t.Errorf("Transform() = %q, want rotate(190deg)", got)
	}
	if got := Transform(Geometry{Rotation: -12.5}); got != "rotate(-12.5deg)" {
		t.Errorf("Transform() = %q, want rotate(-12.5deg)", got)
	}
}

func TestParsePx(t *testing.T) {
	v, err := ParsePx(" 150px ")
	if err != nil || v != 150 {
		t.Errorf("ParsePx() = %v, %v; want 150", v, err)
	}
	if _, err := ParsePx("px"); err == nil {
		t.Error("ParsePx(px) should fail")
	}
}

func TestParseHandle(t *testing.T) {
	h, err := ParseHandle("NE")
	if err != nil || h != NE {
		t.Errorf("ParseHandle(NE) = %v, %v", h, err)
	}
	if _, err := ParseHandle("n"); err == nil {
		t.Error("ParseHandle(n) should fail")
	}
	if NW.Cursor() != "nw-resize" {
		t.Errorf("Cursor() = %q", NW.Cursor())
	}
}
