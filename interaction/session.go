package interaction

import "github.com/nothing010101/pfp/geometry"

// Session is the gesture in progress. Exactly one value exists at a time:
// Idle, Dragging, Resizing or Rotating.
type Session interface {
	// Name is the state name reported to clients.
	Name() string
	isSession()
}

type (
	Idle struct{}

	Dragging struct {
		LayerID string
		Anchor  geometry.Point
		Start   geometry.Geometry
	}

	Resizing struct {
		LayerID string
		Handle  geometry.Handle
		Anchor  geometry.Point
		Start   geometry.Geometry
	}

	Rotating struct {
		LayerID       string
		Center        geometry.Point
		StartAngle    float64
		StartRotation float64
		Start         geometry.Geometry
	}
)

func (Idle) Name() string     { return "idle" }
func (Dragging) Name() string { return "dragging" }
func (Resizing) Name() string { return "resizing" }
func (Rotating) Name() string { return "rotating" }

func (Idle) isSession()     {}
func (Dragging) isSession() {}
func (Resizing) isSession() {}
func (Rotating) isSession() {}

// TargetOf returns the layer a session manipulates, or "" when idle.
func TargetOf(s Session) string {
	switch v := s.(type) {
	case Dragging:
		return v.LayerID
	case Resizing:
		return v.LayerID
	case Rotating:
		return v.LayerID
	}
	return ""
}
