package render

import (
	"context"
	"fmt"
	"image"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/gogpu/gg"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/nothing010101/pfp/geometry"
	"github.com/nothing010101/pfp/scene"
)

const (
	outlineColor = "#007bff"
	handleSize   = 10.0
)

// Options configure one rasterization.
type Options struct {
	Background       string
	Scale            float64
	Width, Height    float64
	AllowCrossOrigin bool
}

// Rasterizer turns a frozen scene tree into pixels.
type Rasterizer interface {
	Rasterize(ctx context.Context, root *scene.Node, opts Options) (image.Image, error)
}

// GGRasterizer paints the tree with gogpu/gg. Only what the editor emits is
// understood: the canvas box and border, absolutely positioned layers with
// an optional rotate() transform, their image and their handles.
type GGRasterizer struct {
	Images ImageSource
}

func NewGGRasterizer(images ImageSource) *GGRasterizer {
	return &GGRasterizer{Images: images}
}

func (r *GGRasterizer) Rasterize(ctx context.Context, root *scene.Node, opts Options) (image.Image, error) {
	scale := opts.Scale
	if scale <= 0 {
		scale = 1
	}
	w := int(math.Round(opts.Width * scale))
	h := int(math.Round(opts.Height * scale))
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("empty canvas %vx%v", opts.Width, opts.Height)
	}

	dc := gg.NewContext(w, h)
	defer dc.Close()
	dc.ClearWithColor(gg.Hex(opts.Background))

	for _, n := range paintOrder(root) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.drawLayer(ctx, dc, n, scale, opts.AllowCrossOrigin); err != nil {
			return nil, err
		}
	}

	if bw, color, dashed, ok := parseBorder(styleOf(root, "border")); ok {
		dc.SetHexColor(color)
		dc.SetLineWidth(bw * scale)
		if dashed {
			dc.SetDash(6*scale, 4*scale)
		}
		inset := bw * scale / 2
		dc.DrawRectangle(inset, inset, float64(w)-2*inset, float64(h)-2*inset)
		if err := dc.Stroke(); err != nil {
			return nil, err
		}
		dc.ClearDash()
	}

	_ = dc.FlushGPU()
	return dc.Image(), nil
}

func (r *GGRasterizer) drawLayer(ctx context.Context, dc *gg.Context, n *scene.Node, scale float64, allowRemote bool) error {
	g, err := layerGeometry(n)
	if err != nil {
		return err
	}
	log := logrus.WithField("layer_id", n.ID)

	canvas := image.Rect(0, 0, dc.Width(), dc.Height())
	if img := scene.ImageOf(n); img != nil && !hidden(img) && onCanvas(g, scale, canvas) {
		iw, err := img.ComputedPx("width")
		if err != nil {
			return err
		}
		ih, err := img.ComputedPx("height")
		if err != nil {
			return err
		}
		src, err := r.Images.Load(ctx, img.Attr("src"), allowRemote)
		if err != nil {
			// A broken image leaves a hole, the rest of the portrait is kept.
			log.WithError(err).Warn("Skipping layer image")
		} else {
			drawImage(dc, src, g, iw, ih, scale, canvas)
		}
	}

	if n.HasClass(scene.ClassActive) {
		dc.SetHexColor(outlineColor)
		dc.SetLineWidth(2 * scale)
		dc.DrawRectangle(g.X*scale, g.Y*scale, g.Width*scale, g.Height*scale)
		if err := dc.Stroke(); err != nil {
			return err
		}
	}
	for _, c := range n.Children {
		if !c.HasClass(scene.ClassResizeHandle) || hidden(c) {
			continue
		}
		h, err := geometry.ParseHandle(c.Attr("data-handle"))
		if err != nil {
			continue
		}
		corner := h.Corner(g)
		dc.SetHexColor(outlineColor)
		dc.DrawRectangle((corner.X-handleSize/2)*scale, (corner.Y-handleSize/2)*scale, handleSize*scale, handleSize*scale)
		if err := dc.Fill(); err != nil {
			return err
		}
	}
	return nil
}

// onCanvas reports whether the rotated layer box, in device pixels,
// touches the canvas.
func onCanvas(g geometry.Geometry, scale float64, canvas image.Rectangle) bool {
	b := geometry.Bounds(geometry.Geometry{
		X:        g.X * scale,
		Y:        g.Y * scale,
		Width:    g.Width * scale,
		Height:   g.Height * scale,
		Rotation: g.Rotation,
	})
	return b.MaxX > float64(canvas.Min.X) && b.MaxY > float64(canvas.Min.Y) &&
		b.MinX < float64(canvas.Max.X) && b.MinY < float64(canvas.Max.Y)
}

// drawImage paints src into the layer box. Unrotated layers that fit the
// canvas go straight through gg. Everything else is resampled into a sprite
// clipped to the canvas, so memory never exceeds the canvas size however
// large the layer is.
func drawImage(dc *gg.Context, src image.Image, g geometry.Geometry, iw, ih, scale float64, canvas image.Rectangle) {
	rad := g.Rotation * math.Pi / 180
	sin, cos := math.Sincos(rad)
	c := geometry.Center(g)
	cx, cy := c.X*scale, c.Y*scale
	lw, lh := g.Width*scale, g.Height*scale
	dw, dh := iw*scale, ih*scale

	// Bounding box of the rotated image rectangle, relative to the canvas.
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range [][2]float64{{0, 0}, {dw, 0}, {0, dh}, {dw, dh}} {
		u, v := p[0]-lw/2, p[1]-lh/2
		x := cos*u - sin*v + cx
		y := sin*u + cos*v + cy
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	box := image.Rect(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX)), int(math.Ceil(maxY)))

	if geometry.NormalizeDegrees(g.Rotation) == 0 && box.In(canvas) {
		dc.DrawImageEx(gg.ImageBufFromImage(src), gg.DrawImageOptions{
			X:             g.X * scale,
			Y:             g.Y * scale,
			DstWidth:      dw,
			DstHeight:     dh,
			Interpolation: gg.InterpBilinear,
			Opacity:       1,
			BlendMode:     gg.BlendNormal,
		})
		return
	}

	clip := box.Intersect(canvas)
	if clip.Empty() {
		return
	}
	ox, oy := float64(clip.Min.X), float64(clip.Min.Y)
	sprite := image.NewRGBA(image.Rect(0, 0, clip.Dx(), clip.Dy()))

	sb := src.Bounds()
	kx := dw / float64(sb.Dx())
	ky := dh / float64(sb.Dy())
	m := f64.Aff3{
		cos * kx, -sin * ky, -cos*lw/2 + sin*lh/2 + cx - ox,
		sin * kx, cos * ky, -sin*lw/2 - cos*lh/2 + cy - oy,
	}
	m[2] -= m[0]*float64(sb.Min.X) + m[1]*float64(sb.Min.Y)
	m[5] -= m[3]*float64(sb.Min.X) + m[4]*float64(sb.Min.Y)
	draw.BiLinear.Transform(sprite, m, src, sb, draw.Over, nil)

	dc.DrawImageEx(gg.ImageBufFromImage(sprite), gg.DrawImageOptions{
		X:             ox,
		Y:             oy,
		Interpolation: gg.InterpNearest,
		Opacity:       1,
		BlendMode:     gg.BlendNormal,
	})
}

// paintOrder returns the visible layer elements sorted by z-index. Ties keep
// document order.
func paintOrder(root *scene.Node) []*scene.Node {
	var out []*scene.Node
	for _, n := range root.Children {
		if n.HasClass(scene.ClassLayer) && !hidden(n) {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return zIndex(out[i]) < zIndex(out[j])
	})
	return out
}

func zIndex(n *scene.Node) int {
	z, err := strconv.Atoi(styleOf(n, "z-index"))
	if err != nil {
		return 0
	}
	return z
}

func layerGeometry(n *scene.Node) (geometry.Geometry, error) {
	var g geometry.Geometry
	for prop, dst := range map[string]*float64{
		"left":   &g.X,
		"top":    &g.Y,
		"width":  &g.Width,
		"height": &g.Height,
	} {
		v, err := geometry.ParsePx(styleOf(n, prop))
		if err != nil {
			return g, fmt.Errorf("layer %s %s: %w", n.ID, prop, err)
		}
		*dst = v
	}
	rot, err := scene.ParseRotation(styleOf(n, "transform"))
	if err != nil {
		return g, fmt.Errorf("layer %s: %w", n.ID, err)
	}
	g.Rotation = rot
	return g, nil
}

func styleOf(n *scene.Node, prop string) string {
	v, _ := n.StyleValue(prop)
	return v
}

// parseBorder reads a "<width> <style> <color>" shorthand. ok is false when
// nothing would be painted.
func parseBorder(s string) (width float64, color string, dashed, ok bool) {
	fields := strings.Fields(s)
	if len(fields) < 3 {
		return 0, "", false, false
	}
	width, err := geometry.ParsePx(fields[0])
	if err != nil || width <= 0 {
		return 0, "", false, false
	}
	color = fields[len(fields)-1]
	if !strings.HasPrefix(color, "#") {
		return 0, "", false, false
	}
	return width, color, fields[1] == "dashed", true
}
