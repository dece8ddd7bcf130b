package render

import (
	"github.com/nothing010101/pfp/geometry"
	"github.com/nothing010101/pfp/scene"
)

const transparentBorder = "2px solid transparent"

// Neutralize hides every interaction affordance under root. Each change is
// recorded on o so that o.Restore puts the tree back exactly as it was.
func Neutralize(o *scene.Override, root *scene.Node) {
	o.AddClass(root, scene.ClassExportMode)
	o.SetStyle(root, "border", "none")
	o.SetStyle(root, "border-radius", "0")

	root.Walk(func(n *scene.Node) bool {
		switch {
		case n.HasClass(scene.ClassResizeHandle), n.HasClass(scene.ClassRotateHandle):
			o.SetStyle(n, "display", "none")
			return false
		case n.HasClass(scene.ClassLayer):
			o.SetStyle(n, "border", transparentBorder)
			o.SetStyle(n, "cursor", scene.CursorDefault)
			o.RemoveClass(n, scene.ClassActive)
			o.RemoveClass(n, scene.ClassResizing)
			o.RemoveClass(n, scene.ClassRotating)
		}
		return true
	})
}

// PinImages fixes the width and height of every visible layer image to its
// computed pixel size. It returns the number of images pinned.
func PinImages(o *scene.Override, root *scene.Node) (int, error) {
	pinned := 0
	for _, n := range root.Children {
		if !n.HasClass(scene.ClassLayer) || hidden(n) {
			continue
		}
		img := scene.ImageOf(n)
		if img == nil || hidden(img) {
			continue
		}
		w, err := img.ComputedPx("width")
		if err != nil {
			return pinned, err
		}
		h, err := img.ComputedPx("height")
		if err != nil {
			return pinned, err
		}
		o.SetStyle(img, "width", geometry.Px(w))
		o.SetStyle(img, "height", geometry.Px(h))
		pinned++
	}
	return pinned, nil
}

func hidden(n *scene.Node) bool {
	v, _ := n.StyleValue("display")
	return v == "none"
}
