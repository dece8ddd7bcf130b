package scene

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nothing010101/pfp/geometry"
	"github.com/nothing010101/pfp/layers"
)

// Class names used by the presentation.
const (
	ClassCanvas       = "canvas"
	ClassBackground   = "canvas-background"
	ClassLayer        = "layer"
	ClassActive       = "active"
	ClassResizing     = "resizing"
	ClassRotating     = "rotating"
	ClassResizeHandle = "resize-handle"
	ClassRotateHandle = "rotate-handle"
	ClassExportMode   = "export-mode"
	ClassLongPress    = "long-press-active"
	ClassDragOver     = "drag-over"
)

const (
	CursorDefault  = "default"
	CursorMove     = "move"
	CursorGrabbing = "grabbing"

	canvasBorder = "2px dashed #cccccc"
	canvasRadius = "12px"
)

// Scene is the presentation projection of a layer store. It is rebuilt
// from layer data by Sync and never read back into the store. Interaction
// indicators (transient classes and cursors) live only here.
type Scene struct {
	Root       *Node
	Background *Node

	width, height float64
	byLayer       map[string]*Node
	bodyCursor    string
}

func New(width, height float64) *Scene {
	root := NewNode("div", "canvas", ClassCanvas)
	root.SetStyle("position", "relative")
	root.SetStyle("overflow", "hidden")
	root.SetStyle("width", geometry.Px(width))
	root.SetStyle("height", geometry.Px(height))
	root.SetStyle("border", canvasBorder)
	root.SetStyle("border-radius", canvasRadius)

	bg := NewNode("div", "canvas-background", ClassBackground)
	bg.SetStyle("position", "absolute")
	bg.SetStyle("inset", "0")
	bg.SetStyle("background-color", layers.DefaultBackground)
	root.AppendChild(bg)

	return &Scene{
		Root:       root,
		Background: bg,
		width:      width,
		height:     height,
		byLayer:    make(map[string]*Node),
		bodyCursor: CursorDefault,
	}
}

func (s *Scene) Size() (float64, float64) { return s.width, s.height }

// BodyCursor is the document cursor outside the canvas.
func (s *Scene) BodyCursor() string { return s.bodyCursor }

// LayerNode returns the element bound to a layer id.
func (s *Scene) LayerNode(id string) *Node { return s.byLayer[id] }

// LayerNodes returns layer elements in paint order.
func (s *Scene) LayerNodes() []*Node {
	out := make([]*Node, 0, len(s.byLayer))
	for _, c := range s.Root.Children {
		if c.HasClass(ClassLayer) {
			out = append(out, c)
		}
	}
	return out
}

// Sync projects the layers onto the tree. Existing elements are reused so
// that transient indicators survive geometry updates.
func (s *Scene) Sync(ls []layers.Layer, active, background string) {
	s.Background.SetStyle("background-color", background)

	keep := make(map[string]bool, len(ls))
	children := []*Node{s.Background}
	for _, l := range ls {
		n, ok := s.byLayer[l.ID]
		if !ok {
			n = newLayerNode(l)
			s.byLayer[l.ID] = n
		}
		project(n, l, l.ID == active)
		keep[l.ID] = true
		n.parent = s.Root
		children = append(children, n)
	}
	for id, n := range s.byLayer {
		if !keep[id] {
			n.parent = nil
			delete(s.byLayer, id)
		}
	}
	s.Root.Children = children
}

func newLayerNode(l layers.Layer) *Node {
	n := NewNode("div", l.ID, ClassLayer)
	n.SetAttr("data-layer-id", l.ID)
	n.SetStyle("position", "absolute")
	n.SetStyle("cursor", CursorMove)

	img := NewNode("img", l.ID+"-img")
	img.SetAttr("src", l.Asset.URI)
	img.SetAttr("alt", l.Asset.Name)
	img.SetAttr("draggable", "false")
	img.SetStyle("width", "100%")
	img.SetStyle("height", "100%")
	img.SetStyle("pointer-events", "none")
	n.AppendChild(img)

	for _, h := range geometry.Handles {
		handle := NewNode("div", l.ID+"-"+string(h), ClassResizeHandle, string(h))
		handle.SetAttr("data-handle", string(h))
		handle.SetStyle("cursor", h.Cursor())
		n.AppendChild(handle)
	}

	rotate := NewNode("div", l.ID+"-rotate", ClassRotateHandle)
	rotate.SetStyle("cursor", CursorGrabbing)
	n.AppendChild(rotate)
	return n
}

func project(n *Node, l layers.Layer, active bool) {
	g := l.Geometry
	n.SetStyle("left", geometry.Px(g.X))
	n.SetStyle("top", geometry.Px(g.Y))
	n.SetStyle("width", geometry.Px(g.Width))
	n.SetStyle("height", geometry.Px(g.Height))
	n.SetStyle("transform", geometry.Transform(g))
	n.SetStyle("z-index", strconv.Itoa(l.ZIndex))
	if l.Visible {
		n.SetStyle("display", "block")
	} else {
		n.SetStyle("display", "none")
	}
	if active {
		n.AddClass(ClassActive)
	} else {
		n.RemoveClass(ClassActive)
	}
	if img := imageOf(n); img != nil && img.Attr("src") != l.Asset.URI {
		img.SetAttr("src", l.Asset.URI)
		img.SetAttr("alt", l.Asset.Name)
	}
}

// ImageOf returns the image element of a layer element.
func ImageOf(n *Node) *Node { return imageOf(n) }

func imageOf(n *Node) *Node {
	for _, c := range n.Children {
		if c.Tag == "img" {
			return c
		}
	}
	return nil
}

// ParseRotation reads the angle out of a rotate(<deg>deg) transform. Any
// other value is treated as no rotation.
func ParseRotation(transform string) (float64, error) {
	t := strings.TrimSpace(transform)
	if t == "" || t == "none" {
		return 0, nil
	}
	if !strings.HasPrefix(t, "rotate(") || !strings.HasSuffix(t, "deg)") {
		return 0, fmt.Errorf("unsupported transform %q", transform)
	}
	return strconv.ParseFloat(strings.TrimSuffix(strings.TrimPrefix(t, "rotate("), "deg)"), 64)
}
