package editor

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/nothing010101/pfp/core"
	"github.com/nothing010101/pfp/geometry"
	"github.com/nothing010101/pfp/interaction"
	"github.com/nothing010101/pfp/render"
	"github.com/nothing010101/pfp/scene"
	"github.com/nothing010101/pfp/stores/memory"
)

type rasterizerFunc func(ctx context.Context, root *scene.Node, opts render.Options) (image.Image, error)

func (f rasterizerFunc) Rasterize(ctx context.Context, root *scene.Node, opts render.Options) (image.Image, error) {
	return f(ctx, root, opts)
}

func solid(_ context.Context, _ *scene.Node, opts render.Options) (image.Image, error) {
	w := int(opts.Width * opts.Scale)
	h := int(opts.Height * opts.Scale)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(0, 0, color.RGBA{R: 0xff, A: 0xff})
	return img, nil
}

func newWorkspace(t *testing.T, r render.Rasterizer, opts ...Option) *Workspace {
	t.Helper()
	p := render.NewPipeline(r, render.WithSettleDelay(0), render.WithScale(1))
	w := New("ws-1", append([]Option{WithCanvasSize(40, 40), WithPipeline(p)}, opts...)...)
	t.Cleanup(w.Close)
	return w
}

var hat = core.Asset{Name: "hat", Category: core.CategoryHat, URI: "data:image/png;base64,AAAA"}

func hasNotification(w *Workspace, msg string) bool {
	for _, n := range w.Notifications() {
		if n.Message == msg {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWorkspace_AddAssetSelectsLayer(t *testing.T) {
	w := newWorkspace(t, rasterizerFunc(solid))

	var states []State
	unsubscribe := w.Subscribe(func(ev Event) {
		if ev.Type == EventState {
			states = append(states, *ev.State)
		}
	})
	defer unsubscribe()

	l, err := w.AddAsset(hat, &geometry.Point{X: 20, Y: 20})
	if err != nil {
		t.Fatalf("AddAsset() failed: %v", err)
	}

	st := w.State()
	if st.Active != l.ID || st.CountLabel != "1 layer" || len(st.ListOrder) != 1 {
		t.Errorf("state = %+v", st)
	}
	if n := st.Scene.Find(l.ID); n == nil || !n.HasClass(scene.ClassActive) {
		t.Error("added layer should be projected as active")
	}
	if len(states) != 1 || states[0].Revision == 0 {
		t.Errorf("published states = %+v", states)
	}
	if len(w.Notifications()) != 0 {
		t.Errorf("general notifications should be suppressed: %+v", w.Notifications())
	}
}

func TestWorkspace_ListOrderIsTopFirst(t *testing.T) {
	w := newWorkspace(t, rasterizerFunc(solid))
	a, _ := w.AddAsset(hat, nil)
	b, _ := w.AddAsset(hat, nil)

	if err := w.MoveDown(b.ID); err != nil {
		t.Fatalf("MoveDown() failed: %v", err)
	}
	st := w.State()
	if st.ListOrder[0] != a.ID || st.ListOrder[1] != b.ID {
		t.Errorf("ListOrder = %v, want [%s %s]", st.ListOrder, a.ID, b.ID)
	}

	visible, err := w.ToggleVisible(a.ID)
	if err != nil || visible {
		t.Errorf("ToggleVisible() = %v, %v", visible, err)
	}
	if err := w.DeleteLayer("layer-99"); !core.IsCode(err, core.CodeNotFound) {
		t.Errorf("DeleteLayer(unknown) = %v, want NOT_FOUND", err)
	}
}

func TestWorkspace_DropMalformedPayload(t *testing.T) {
	w := newWorkspace(t, rasterizerFunc(solid))

	_, err := w.Drop([]byte("{"), geometry.Point{X: 10, Y: 10})
	if !core.IsCode(err, core.CodeInputParse) {
		t.Fatalf("Drop() error = %v, want INPUT_PARSE", err)
	}
	if w.Len() != 0 {
		t.Error("malformed drop should not add a layer")
	}
	if !hasNotification(w, DropFailedMessage) {
		t.Errorf("notifications = %+v", w.Notifications())
	}

	l, err := w.Drop([]byte(`{"name":"cap","url":"https://x/cap.png"}`), geometry.Point{X: 10, Y: 10})
	if err != nil {
		t.Fatalf("Drop() failed: %v", err)
	}
	if l.Geometry.X != -40 || l.Asset.URI != "https://x/cap.png" {
		t.Errorf("layer = %+v", l)
	}
}

func TestWorkspace_DragOverHighlight(t *testing.T) {
	w := newWorkspace(t, rasterizerFunc(solid))

	w.DragOver(true)
	if !w.State().Scene.HasClass(scene.ClassDragOver) {
		t.Fatal("canvas should be highlighted while dragging over it")
	}

	if _, err := w.Drop([]byte(`{"name":"cap","uri":"data:,"}`), geometry.Point{X: 10, Y: 10}); err != nil {
		t.Fatalf("Drop() failed: %v", err)
	}
	if w.State().Scene.HasClass(scene.ClassDragOver) {
		t.Error("drop should clear the highlight")
	}
}

func TestWorkspace_PaletteTap(t *testing.T) {
	w := newWorkspace(t, rasterizerFunc(solid))

	w.PaletteTouchStart("c1", hat, geometry.Point{X: 5, Y: 5})
	w.PaletteTouchMove("c1", geometry.Point{X: 8, Y: 9})
	l, added, err := w.PaletteTouchEnd("c1")
	if err != nil || !added {
		t.Fatalf("PaletteTouchEnd() = %v, %v", added, err)
	}
	if l.Geometry.X != -30 || l.Geometry.Y != -30 {
		t.Errorf("tap should add at the canvas center, got %+v", l.Geometry)
	}

	w.PaletteTouchStart("c1", hat, geometry.Point{X: 5, Y: 5})
	w.PaletteTouchMove("c1", geometry.Point{X: 50, Y: 5})
	if _, added, _ := w.PaletteTouchEnd("c1"); added {
		t.Error("a palette drag should not add a layer")
	}
	if _, added, _ := w.PaletteTouchEnd("unknown"); added {
		t.Error("unknown client should not add a layer")
	}
}

func TestWorkspace_PointerDrag(t *testing.T) {
	w := newWorkspace(t, rasterizerFunc(solid))
	l, _ := w.AddAsset(hat, &geometry.Point{X: 100, Y: 100})
	_ = w.ClearSelection()

	if err := w.PointerDown(interaction.Hit{Kind: interaction.HitBody, LayerID: l.ID}, geometry.Point{X: 100, Y: 100}); err != nil {
		t.Fatalf("PointerDown() failed: %v", err)
	}
	if st := w.State(); st.Session != "dragging" || st.Active != l.ID {
		t.Errorf("state = %s active %q", st.Session, st.Active)
	}
	_ = w.PointerMove(geometry.Point{X: 110, Y: 95})
	_ = w.PointerUp()

	st := w.State()
	if st.Session != "idle" {
		t.Errorf("session = %s, want idle", st.Session)
	}
	if g := st.Layers[0].Geometry; g.X != 60 || g.Y != 45 {
		t.Errorf("geometry = %+v, want (60, 45)", g)
	}
}

func TestWorkspace_Keys(t *testing.T) {
	w := newWorkspace(t, rasterizerFunc(solid))
	l, _ := w.AddAsset(hat, &geometry.Point{X: 100, Y: 100})
	_ = w.PointerDown(interaction.Hit{Kind: interaction.HitRotateHandle, LayerID: l.ID}, geometry.Point{X: 150, Y: 100})
	_ = w.PointerMove(geometry.Point{X: 100, Y: 150})
	_ = w.PointerUp()

	cmd, err := w.Key(interaction.KeyEvent{Key: "ArrowRight", Shift: true})
	if err != nil || cmd.Kind != interaction.CommandNudge {
		t.Fatalf("Key() = %+v, %v", cmd, err)
	}
	g := w.State().Layers[0].Geometry
	if g.X != 60 || g.Y != 50 || math.Abs(g.Rotation-90) > 1e-9 {
		t.Errorf("nudged geometry = %+v", g)
	}

	_, _ = w.Key(interaction.KeyEvent{Key: "Escape"})
	if w.State().Active != "" {
		t.Error("escape should clear the selection")
	}
	if cmd, _ := w.Key(interaction.KeyEvent{Key: "Delete"}); cmd.Kind != interaction.CommandNone {
		t.Errorf("delete without selection = %+v", cmd)
	}

	_ = w.Select(l.ID)
	_, _ = w.Key(interaction.KeyEvent{Key: "Backspace"})
	if w.Len() != 0 {
		t.Error("backspace should delete the active layer")
	}

	_, _ = w.AddAsset(hat, nil)
	_, _ = w.Key(interaction.KeyEvent{Key: "z", Ctrl: true})
	if w.Len() != 0 || w.State().Background != "#ffffff" {
		t.Error("ctrl+z should reset the canvas")
	}
	if !hasNotification(w, ResetMessage) {
		t.Errorf("notifications = %+v", w.Notifications())
	}
}

func TestWorkspace_SetBackground(t *testing.T) {
	w := newWorkspace(t, rasterizerFunc(solid))

	if err := w.SetBackground("#000000", true); err != nil {
		t.Fatalf("SetBackground() failed: %v", err)
	}
	st := w.State()
	if st.Background != "#000000" {
		t.Errorf("Background = %q", st.Background)
	}
	if v, _ := st.Scene.Find("canvas-background").StyleValue("background-color"); v != "#000000" {
		t.Errorf("background node color = %q", v)
	}
	if err := w.SetBackground("red", false); !core.IsCode(err, core.CodeValidation) {
		t.Errorf("SetBackground(red) = %v, want VALIDATION", err)
	}
}

func TestWorkspace_ExportRestoresExactly(t *testing.T) {
	var w *Workspace
	var during State
	failing := rasterizerFunc(func(_ context.Context, root *scene.Node, _ render.Options) (image.Image, error) {
		during = w.State()
		if !root.HasClass(scene.ClassExportMode) {
			t.Error("frame should be in export mode")
		}
		for _, n := range root.FindByClass(scene.ClassActive) {
			t.Errorf("frame still has active node %s", n.ID)
		}
		return nil, errors.New("tainted canvas")
	})
	w = newWorkspace(t, failing)

	first, _ := w.AddAsset(hat, &geometry.Point{X: 10, Y: 10})
	_, _ = w.AddAsset(hat, &geometry.Point{X: 30, Y: 30})
	_ = w.Select(first.ID)
	before := w.State()

	_, err := w.Export(context.Background())
	if !core.IsCode(err, core.CodeExport) {
		t.Fatalf("Export() error = %v, want EXPORT", err)
	}
	if !during.Exporting || during.Active != "" {
		t.Errorf("during export: exporting=%v active=%q", during.Exporting, during.Active)
	}

	after := w.State()
	if !before.Scene.Equal(after.Scene) {
		t.Error("scene not restored exactly after a failed export")
	}
	if after.Active != first.ID || after.Exporting {
		t.Errorf("after export: active=%q exporting=%v", after.Active, after.Exporting)
	}
	if !hasNotification(w, ExportFailedMessage) {
		t.Errorf("notifications = %+v", w.Notifications())
	}
}

func layerNode(root *scene.Node, id string) *scene.Node {
	for _, n := range root.FindByClass(scene.ClassLayer) {
		if n.ID == id {
			return n
		}
	}
	return nil
}

func TestWorkspace_GestureStartedDuringExport(t *testing.T) {
	tests := []struct {
		name    string
		hit     interaction.HitKind
		session string
		check   func(n *scene.Node) bool
	}{
		{"resize", interaction.HitResizeHandle, "resizing", func(n *scene.Node) bool { return n.HasClass(scene.ClassResizing) }},
		{"rotate", interaction.HitRotateHandle, "rotating", func(n *scene.Node) bool { return n.HasClass(scene.ClassRotating) }},
		{"drag", interaction.HitBody, "dragging", func(n *scene.Node) bool {
			v, _ := n.StyleValue("cursor")
			return v == scene.CursorGrabbing
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var w *Workspace
			var id string
			grab := rasterizerFunc(func(ctx context.Context, root *scene.Node, opts render.Options) (image.Image, error) {
				hit := interaction.Hit{Kind: tc.hit, LayerID: id, Handle: geometry.SE}
				if err := w.PointerDown(hit, geometry.Point{X: 20, Y: 20}); err != nil {
					t.Errorf("PointerDown() during export failed: %v", err)
				}
				return solid(ctx, root, opts)
			})
			w = newWorkspace(t, grab)
			l, _ := w.AddAsset(hat, nil)
			id = l.ID

			if _, err := w.Export(context.Background()); err != nil {
				t.Fatalf("Export() failed: %v", err)
			}

			st := w.State()
			if st.Session != tc.session {
				t.Errorf("session = %s, want %s", st.Session, tc.session)
			}
			n := layerNode(st.Scene, id)
			if n == nil {
				t.Fatalf("layer %s missing from scene", id)
			}
			if !tc.check(n) {
				t.Errorf("gesture indicator lost after export: classes %v style %v", n.Classes, n.Style)
			}
			if st.Active != id {
				t.Errorf("active = %q, want %q", st.Active, id)
			}
		})
	}
}

func TestWorkspace_ExportKeepsHistory(t *testing.T) {
	exports := memory.NewStore(2)
	w := newWorkspace(t, rasterizerFunc(solid), WithExportStore(exports))
	_, _ = w.AddAsset(hat, nil)

	var mu sync.Mutex
	var info *ExportInfo
	w.Subscribe(func(ev Event) {
		if ev.Type == EventExported {
			mu.Lock()
			info = ev.Export
			mu.Unlock()
		}
	})

	res, err := w.Export(context.Background())
	if err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	if res.ID == "" || res.Width != 40 || res.Height != 40 {
		t.Errorf("result = id %q %dx%d", res.ID, res.Width, res.Height)
	}

	got, err := exports.GetExport(context.Background(), res.ID)
	if err != nil {
		t.Fatalf("GetExport() failed: %v", err)
	}
	if got.WorkspaceID != "ws-1" || len(got.Data) != len(res.PNG) {
		t.Errorf("stored export = %+v", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if info == nil || info.ID != res.ID || info.Filename != render.Filename(res.CreatedAt) {
		t.Errorf("exported event = %+v", info)
	}
	if !hasNotification(w, ExportedMessage) {
		t.Errorf("notifications = %+v", w.Notifications())
	}
	if w.State().Active == "" {
		t.Error("selection should survive a successful export")
	}
}

func TestWorkspace_ExportInProgress(t *testing.T) {
	entered := make(chan struct{})
	unblock := make(chan struct{})
	blocking := rasterizerFunc(func(ctx context.Context, root *scene.Node, opts render.Options) (image.Image, error) {
		close(entered)
		<-unblock
		return solid(ctx, root, opts)
	})
	w := newWorkspace(t, blocking)

	done := make(chan error, 1)
	go func() {
		_, err := w.Export(context.Background())
		done <- err
	}()
	<-entered

	_, err := w.Export(context.Background())
	if !core.IsCode(err, core.CodeExportInProgress) {
		t.Errorf("second Export() = %v, want EXPORT_IN_PROGRESS", err)
	}
	if hasNotification(w, ExportFailedMessage) {
		t.Error("a rejected export should not report a failure")
	}

	close(unblock)
	if err := <-done; err != nil {
		t.Errorf("first Export() failed: %v", err)
	}
}

func TestWorkspace_LongPressExports(t *testing.T) {
	exported := make(chan struct{}, 1)
	w := newWorkspace(t, rasterizerFunc(solid), WithLongPressDelay(50*time.Millisecond))
	w.Subscribe(func(ev Event) {
		if ev.Type == EventExported {
			select {
			case exported <- struct{}{}:
			default:
			}
		}
	})

	w.LongPressStart("c1")
	if !w.State().Scene.HasClass(scene.ClassLongPress) {
		t.Error("long press indicator should be shown while pending")
	}

	select {
	case <-exported:
	case <-time.After(2 * time.Second):
		t.Fatal("long press did not export")
	}
	waitFor(t, "indicator cleared", func() bool {
		return !w.State().Scene.HasClass(scene.ClassLongPress)
	})
}

func TestWorkspace_LongPressCancel(t *testing.T) {
	w := newWorkspace(t, rasterizerFunc(func(context.Context, *scene.Node, render.Options) (image.Image, error) {
		t.Error("cancelled long press exported")
		return nil, errors.New("unexpected")
	}), WithLongPressDelay(30*time.Millisecond))

	w.LongPressStart("c1")
	w.LongPressCancel("c1")
	if w.State().Scene.HasClass(scene.ClassLongPress) {
		t.Error("indicator should be cleared on cancel")
	}
	time.Sleep(60 * time.Millisecond)
}

func TestWorkspace_LongPressIgnoredDuringGesture(t *testing.T) {
	w := newWorkspace(t, rasterizerFunc(solid), WithLongPressDelay(time.Hour))
	l, _ := w.AddAsset(hat, nil)
	_ = w.PointerDown(interaction.Hit{Kind: interaction.HitBody, LayerID: l.ID}, geometry.Point{})

	w.LongPressStart("c1")
	if w.State().Scene.HasClass(scene.ClassLongPress) {
		t.Error("long press should not arm while dragging")
	}
}

func TestWorkspace_MobileTip(t *testing.T) {
	w := newWorkspace(t, rasterizerFunc(solid), WithTipDelay(10*time.Millisecond))

	w.ClientJoined("desktop", false)
	w.ClientJoined("phone", true)
	waitFor(t, "tip", func() bool { return hasNotification(w, TipMessage) })

	tips := 0
	w.Subscribe(func(ev Event) {
		if ev.Type == EventNotification && ev.Notification.Kind == core.KindTip {
			tips++
		}
	})
	w.ClientJoined("phone", true)
	time.Sleep(30 * time.Millisecond)
	if tips != 0 {
		t.Error("tip should be shown once per client")
	}
}

func TestWorkspace_DocumentRoundTrip(t *testing.T) {
	w := newWorkspace(t, rasterizerFunc(solid))
	_, _ = w.AddAsset(hat, &geometry.Point{X: 10, Y: 10})
	_ = w.SetBackground("#e0f7fa", true)

	data, err := w.Document()
	if err != nil {
		t.Fatalf("Document() failed: %v", err)
	}

	other := newWorkspace(t, rasterizerFunc(solid))
	if err := other.Load(data); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	st := other.State()
	if len(st.Layers) != 1 || st.Background != "#e0f7fa" || st.Active != "layer-1" {
		t.Errorf("loaded state = %+v", st)
	}

	next, _ := other.AddAsset(hat, nil)
	if next.ID != "layer-2" {
		t.Errorf("counter not restored, next id = %s", next.ID)
	}

	if err := other.Load([]byte("not json")); !core.IsCode(err, core.CodeInputParse) {
		t.Errorf("Load(garbage) = %v, want INPUT_PARSE", err)
	}
}
