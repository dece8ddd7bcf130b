package interaction

import (
	"fmt"

	"github.com/nothing010101/pfp/geometry"
	"github.com/nothing010101/pfp/layers"
)

// HitKind is what the pointer landed on.
type HitKind string

const (
	HitCanvas       HitKind = "canvas"
	HitBody         HitKind = "body"
	HitResizeHandle HitKind = "resize-handle"
	HitRotateHandle HitKind = "rotate-handle"
)

// Hit is the resolved target of a pointer-down. Handle is set for resize
// handle hits only.
type Hit struct {
	Kind    HitKind         `json:"kind"`
	LayerID string          `json:"layerId,omitempty"`
	Handle  geometry.Handle `json:"handle,omitempty"`
}

// Target is the layer store as seen by the machine.
type Target interface {
	Get(id string) (layers.Layer, bool)
	Update(id string, g geometry.Geometry) error
	SetActive(id string) error
}

// Affordances shows which gesture is running.
type Affordances interface {
	DragStarted(layerID string)
	DragEnded(layerID string)
	ResizeStarted(layerID string, h geometry.Handle)
	ResizeEnded(layerID string)
	RotateStarted(layerID string)
	RotateEnded(layerID string)
}

// Machine turns pointer and touch input into layer geometry updates. It is
// not safe for concurrent use; callers deliver one event at a time.
type Machine struct {
	target  Target
	aff     Affordances
	session Session
}

// NewMachine returns an idle machine. aff may be nil.
func NewMachine(target Target, aff Affordances) *Machine {
	return &Machine{target: target, aff: aff, session: Idle{}}
}

func (m *Machine) Session() Session { return m.session }

// PointerDown starts a session for the hit. Handles are resolved by the
// caller before the body, so a handle hit never starts a drag. A session
// still running is ended first.
func (m *Machine) PointerDown(h Hit, p geometry.Point) error {
	m.end()

	switch h.Kind {
	case HitCanvas:
		return nil
	case HitResizeHandle, HitRotateHandle, HitBody:
	default:
		return fmt.Errorf("unknown hit kind %q", h.Kind)
	}

	l, ok := m.target.Get(h.LayerID)
	if !ok {
		return fmt.Errorf("layer with id %s: %w", h.LayerID, layers.ErrLayerNotFound)
	}
	g := l.Geometry

	switch h.Kind {
	case HitResizeHandle:
		handle, err := geometry.ParseHandle(string(h.Handle))
		if err != nil {
			return err
		}
		m.session = Resizing{LayerID: l.ID, Handle: handle, Anchor: p, Start: g}
		if m.aff != nil {
			m.aff.ResizeStarted(l.ID, handle)
		}
	case HitRotateHandle:
		center := geometry.Center(g)
		m.session = Rotating{
			LayerID:       l.ID,
			Center:        center,
			StartAngle:    geometry.Angle(center, p),
			StartRotation: g.Rotation,
			Start:         g,
		}
		if m.aff != nil {
			m.aff.RotateStarted(l.ID)
		}
	case HitBody:
		if err := m.target.SetActive(l.ID); err != nil {
			return err
		}
		m.session = Dragging{LayerID: l.ID, Anchor: p, Start: g}
		if m.aff != nil {
			m.aff.DragStarted(l.ID)
		}
	}
	return nil
}

// PointerMove applies the running session to its start geometry. If the
// target layer disappeared the session ends quietly.
func (m *Machine) PointerMove(p geometry.Point) error {
	var (
		id string
		g  geometry.Geometry
	)
	switch s := m.session.(type) {
	case Idle:
		return nil
	case Dragging:
		id, g = s.LayerID, geometry.ApplyDrag(s.Start, s.Anchor, p)
	case Resizing:
		id, g = s.LayerID, geometry.ApplyResize(s.Start, s.Handle, p.Sub(s.Anchor))
	case Rotating:
		id = s.LayerID
		current, ok := m.target.Get(id)
		if !ok {
			m.end()
			return nil
		}
		g = current.Geometry
		g.Rotation = geometry.ApplyRotate(s.Center, s.StartAngle, s.StartRotation, p)
	}

	if _, ok := m.target.Get(id); !ok {
		m.end()
		return nil
	}
	return m.target.Update(id, g)
}

// PointerUp ends the session. Touch end and touch cancel map here too.
func (m *Machine) PointerUp() {
	m.end()
}

// Cancel ends the session without further geometry changes.
func (m *Machine) Cancel() {
	m.end()
}

func (m *Machine) end() {
	prev := m.session
	m.session = Idle{}
	if m.aff == nil {
		return
	}
	switch s := prev.(type) {
	case Dragging:
		m.aff.DragEnded(s.LayerID)
	case Resizing:
		m.aff.ResizeEnded(s.LayerID)
	case Rotating:
		m.aff.RotateEnded(s.LayerID)
	}
}
