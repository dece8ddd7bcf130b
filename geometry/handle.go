package geometry

import (
	"fmt"
	"strings"
)

// Handle identifies the corner grip that started a resize.
type Handle string

const (
	NW Handle = "nw"
	NE Handle = "ne"
	SW Handle = "sw"
	SE Handle = "se"
)

// Handles lists the resize grips in the order they are attached to a layer.
var Handles = []Handle{NW, NE, SW, SE}

// ParseHandle accepts "nw", "NE", etc.
func ParseHandle(s string) (Handle, error) {
	h := Handle(strings.ToLower(strings.TrimSpace(s)))
	switch h {
	case NW, NE, SW, SE:
		return h, nil
	}
	return "", fmt.Errorf("unknown resize handle %q", s)
}

// Cursor returns the CSS cursor shown while resizing from h.
func (h Handle) Cursor() string {
	return string(h) + "-resize"
}

// Corner returns the position of h on g before rotation.
func (h Handle) Corner(g Geometry) Point {
	switch h {
	case NW:
		return Point{X: g.X, Y: g.Y}
	case NE:
		return Point{X: g.X + g.Width, Y: g.Y}
	case SW:
		return Point{X: g.X, Y: g.Y + g.Height}
	default:
		return Point{X: g.X + g.Width, Y: g.Y + g.Height}
	}
}
