package scene

import "github.com/nothing010101/pfp/geometry"

// The methods below show which gesture is running. Unknown layer ids are
// ignored: the layer may have been deleted mid-gesture.

func (s *Scene) DragStarted(layerID string) {
	if n := s.byLayer[layerID]; n != nil {
		n.SetStyle("cursor", CursorGrabbing)
	}
}

func (s *Scene) DragEnded(layerID string) {
	if n := s.byLayer[layerID]; n != nil {
		n.SetStyle("cursor", CursorMove)
	}
}

func (s *Scene) ResizeStarted(layerID string, h geometry.Handle) {
	if n := s.byLayer[layerID]; n != nil {
		n.AddClass(ClassResizing)
	}
	s.bodyCursor = h.Cursor()
}

func (s *Scene) ResizeEnded(layerID string) {
	if n := s.byLayer[layerID]; n != nil {
		n.RemoveClass(ClassResizing)
	}
	s.bodyCursor = CursorDefault
}

func (s *Scene) RotateStarted(layerID string) {
	if n := s.byLayer[layerID]; n != nil {
		n.AddClass(ClassRotating)
	}
	s.bodyCursor = CursorGrabbing
}

func (s *Scene) RotateEnded(layerID string) {
	if n := s.byLayer[layerID]; n != nil {
		n.RemoveClass(ClassRotating)
	}
	s.bodyCursor = CursorDefault
}

// SetCanvasClass toggles a class on the canvas element, e.g. the
// long-press indicator.
func (s *Scene) SetCanvasClass(c string, on bool) {
	if on {
		s.Root.AddClass(c)
	} else {
		s.Root.RemoveClass(c)
	}
}
