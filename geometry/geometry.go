package geometry

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// MinSize is the smallest width or height a layer can be resized to.
	MinSize = 20.0

	// DefaultSize is the width and height of a freshly added layer.
	DefaultSize = 100.0
)

type (
	// Point is a position in canvas pixels.
	Point struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}

	// Geometry is the authoritative placement of a layer. X and Y are the
	// top-left corner before rotation. Rotation is in degrees and is never
	// wrapped; see NormalizeDegrees for display.
	Geometry struct {
		X        float64 `json:"x"`
		Y        float64 `json:"y"`
		Width    float64 `json:"width"`
		Height   float64 `json:"height"`
		Rotation float64 `json:"rotation"`
	}

	// Rect is an axis-aligned box.
	Rect struct {
		MinX, MinY, MaxX, MaxY float64
	}
)

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Add returns p + q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Dx returns the width of the box.
func (r Rect) Dx() float64 { return r.MaxX - r.MinX }

// Dy returns the height of the box.
func (r Rect) Dy() float64 { return r.MaxY - r.MinY }

// Birth returns the geometry of a new layer. With a drop point the layer is
// centered on it, otherwise it is centered on a canvas of the given size.
func Birth(drop *Point, canvasWidth, canvasHeight float64) Geometry {
	g := Geometry{Width: DefaultSize, Height: DefaultSize}
	if drop != nil {
		g.X = drop.X - DefaultSize/2
		g.Y = drop.Y - DefaultSize/2
		return g
	}
	g.X = (canvasWidth - DefaultSize) / 2
	g.Y = (canvasHeight - DefaultSize) / 2
	return g
}

// Center returns the rotation pivot of g.
func Center(g Geometry) Point {
	return Point{X: g.X + g.Width/2, Y: g.Y + g.Height/2}
}

// ApplyDrag moves start by the pointer travel since anchor. Layers are not
// clamped to the canvas, they may be dragged partially or fully off it.
func ApplyDrag(start Geometry, anchor, current Point) Geometry {
	d := current.Sub(anchor)
	g := start
	g.X = start.X + d.X
	g.Y = start.Y + d.Y
	return g
}

// ApplyResize resizes start by the pointer travel delta using handle h,
// keeping the corner opposite to h in place. Width and height are clamped
// to MinSize but the position shift is not re-clamped, so the anchored
// corner drifts once the minimum is reached.
func ApplyResize(start Geometry, h Handle, delta Point) Geometry {
	g := start
	switch h {
	case NW:
		g.Width = start.Width - delta.X
		g.Height = start.Height - delta.Y
		g.X = start.X + delta.X
		g.Y = start.Y + delta.Y
	case NE:
		g.Width = start.Width + delta.X
		g.Height = start.Height - delta.Y
		g.Y = start.Y + delta.Y
	case SW:
		g.Width = start.Width - delta.X
		g.Height = start.Height + delta.Y
		g.X = start.X + delta.X
	case SE:
		g.Width = start.Width + delta.X
		g.Height = start.Height + delta.Y
	}
	g.Width = math.Max(MinSize, g.Width)
	g.Height = math.Max(MinSize, g.Height)
	return g
}

// Angle returns the direction from center to p in degrees, in (-180, 180].
func Angle(center, p Point) float64 {
	return math.Atan2(p.Y-center.Y, p.X-center.X) * 180 / math.Pi
}

// ApplyRotate returns the rotation after the pointer moved to current. The
// result accumulates without wrapping so a continuous multi-turn gesture
// never jumps.
func ApplyRotate(center Point, startAngle, startRotation float64, current Point) float64 {
	return startRotation + (Angle(center, current) - startAngle)
}

// Nudge translates g by (dx, dy). Size and rotation are untouched.
func Nudge(g Geometry, dx, dy float64) Geometry {
	g.X += dx
	g.Y += dy
	return g
}

// NormalizeDegrees maps deg into (-180, 180]. It is meant for display only.
func NormalizeDegrees(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d <= -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return d
}

// Bounds returns the axis-aligned box covering g after rotation about its
// center.
func Bounds(g Geometry) Rect {
	c := Center(g)
	rad := g.Rotation * math.Pi / 180
	cos, sin := math.Abs(math.Cos(rad)), math.Abs(math.Sin(rad))
	hw := (g.Width*cos + g.Height*sin) / 2
	hh := (g.Width*sin + g.Height*cos) / 2
	return Rect{MinX: c.X - hw, MinY: c.Y - hh, MaxX: c.X + hw, MaxY: c.Y + hh}
}

// Transform composes the presentation transform for g. Position and size are
// carried by separate style properties, so only rotation appears here.
func Transform(g Geometry) string {
	if g.Rotation == 0 {
		return "none"
	}
	return fmt.Sprintf("rotate(%sdeg)", FormatNumber(g.Rotation))
}

// Px formats v as a CSS pixel length.
func Px(v float64) string {
	return FormatNumber(v) + "px"
}

// FormatNumber formats v without a trailing fraction when it is integral.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParsePx parses a CSS pixel length such as "150px" or "150".
func ParsePx(s string) (float64, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "px"))
	if s == "" {
		return 0, fmt.Errorf("empty length")
	}
	return strconv.ParseFloat(s, 64)
}
