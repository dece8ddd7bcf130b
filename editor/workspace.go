package editor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nothing010101/pfp/core"
	"github.com/nothing010101/pfp/geometry"
	"github.com/nothing010101/pfp/interaction"
	"github.com/nothing010101/pfp/layers"
	"github.com/nothing010101/pfp/notify"
	"github.com/nothing010101/pfp/render"
	"github.com/nothing010101/pfp/scene"
)

const (
	DefaultCanvasSize = 400.0

	// TipDelay is how long after a mobile client joins the save tip appears.
	TipDelay = 2 * time.Second

	TipMessage          = "Tip: Long-press the canvas or tap Export to save your portrait!"
	ExportedMessage     = "Portrait exported successfully!"
	ExportFailedMessage = "Export failed. Please try again."
	ResetMessage        = "Canvas reset successfully"
	DropFailedMessage   = "Error adding asset to canvas"
)

type (
	// State is what clients render: the layer data plus the projected scene.
	State struct {
		ID         string         `json:"id"`
		Revision   uint64         `json:"revision"`
		Width      float64        `json:"width"`
		Height     float64        `json:"height"`
		Background string         `json:"background"`
		Layers     []layers.Layer `json:"layers"`
		ListOrder  []string       `json:"listOrder"`
		CountLabel string         `json:"countLabel"`
		Active     string         `json:"active,omitempty"`
		Session    string         `json:"session"`
		BodyCursor string         `json:"bodyCursor"`
		Exporting  bool           `json:"exporting"`
		Scene      *scene.Node    `json:"scene"`
	}

	// ExportInfo describes a finished export.
	ExportInfo struct {
		ID        string `json:"id,omitempty"`
		Filename  string `json:"filename"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		CreatedAt int64  `json:"createdAt"`
	}

	// Exported is a finished export. ID is set when it was kept in the
	// export history.
	Exported struct {
		render.Result
		ID string
	}

	EventType string

	Event struct {
		Type         EventType          `json:"type"`
		State        *State             `json:"state,omitempty"`
		Notification *core.Notification `json:"notification,omitempty"`
		Export       *ExportInfo        `json:"export,omitempty"`
	}

	Subscriber func(Event)

	// Workspace is one editing session: a layer store, its interaction
	// machine, its scene and its export pipeline. Every handler runs to
	// completion under the workspace lock; subscribers must not call back
	// into the workspace.
	Workspace struct {
		id string

		mu        sync.Mutex
		store     *layers.Store
		machine   *interaction.Machine
		scene     *scene.Scene
		revision  uint64
		exporting bool
		palette   map[string]*interaction.PaletteTouch
		presses   map[string]*interaction.LongPress
		tips      map[string]*time.Timer
		tipped    map[string]bool

		notifier *notify.Sink
		pipeline *render.Pipeline
		exports  core.ExportStore
		tipDelay time.Duration
		lpDelay  time.Duration

		subMu       sync.Mutex
		subscribers map[int]Subscriber
		nextSub     int
	}

	Option func(*Workspace)
)

const (
	EventState        EventType = "workspace-state"
	EventNotification EventType = "notification"
	EventExported     EventType = "exported"
)

func WithCanvasSize(width, height float64) Option {
	return func(w *Workspace) { w.store = layers.NewStore(width, height) }
}

func WithPipeline(p *render.Pipeline) Option { return func(w *Workspace) { w.pipeline = p } }

// WithExportStore keeps every successful export in s.
func WithExportStore(s core.ExportStore) Option { return func(w *Workspace) { w.exports = s } }

func WithTipDelay(d time.Duration) Option { return func(w *Workspace) { w.tipDelay = d } }

func WithLongPressDelay(d time.Duration) Option { return func(w *Workspace) { w.lpDelay = d } }

func New(id string, opts ...Option) *Workspace {
	w := &Workspace{
		id:          id,
		store:       layers.NewStore(DefaultCanvasSize, DefaultCanvasSize),
		palette:     make(map[string]*interaction.PaletteTouch),
		presses:     make(map[string]*interaction.LongPress),
		tips:        make(map[string]*time.Timer),
		tipped:      make(map[string]bool),
		tipDelay:    TipDelay,
		subscribers: make(map[int]Subscriber),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.scene = scene.New(w.store.CanvasSize())
	if w.pipeline == nil {
		w.pipeline = render.NewPipeline(render.NewGGRasterizer(render.NewLoader(0)))
	}
	w.notifier = notify.NewSink(notify.WithPublisher(func(n core.Notification) {
		w.broadcast(Event{Type: EventNotification, Notification: &n})
	}))
	w.machine = interaction.NewMachine(w.store, w.scene)
	w.store.Observe(layers.ObserverFunc(func(c layers.Change) {
		w.revision++
		logrus.WithFields(logrus.Fields{
			"workspace_id": w.id,
			"change":       c.Kind,
			"layer_id":     c.LayerID,
		}).Debug("Layers changed")
	}))
	w.scene.Sync(w.store.Layers(), w.store.ActiveID(), w.store.Background())
	return w
}

func (w *Workspace) ID() string { return w.id }

// Observe registers an observer on the layer store. It runs under the
// workspace lock.
func (w *Workspace) Observe(o layers.Observer) { w.store.Observe(o) }

// Subscribe registers fn for state, notification and export events. The
// returned func removes it.
func (w *Workspace) Subscribe(fn Subscriber) func() {
	w.subMu.Lock()
	id := w.nextSub
	w.nextSub++
	w.subscribers[id] = fn
	w.subMu.Unlock()

	return func() {
		w.subMu.Lock()
		delete(w.subscribers, id)
		w.subMu.Unlock()
	}
}

func (w *Workspace) broadcast(ev Event) {
	w.subMu.Lock()
	subs := make([]Subscriber, 0, len(w.subscribers))
	for _, fn := range w.subscribers {
		subs = append(subs, fn)
	}
	w.subMu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// do runs fn under the workspace lock, re-projects the scene and publishes
// the new state.
func (w *Workspace) do(fn func() error) error {
	w.mu.Lock()
	err := fn()
	w.syncLocked()
	st := w.stateLocked()
	w.mu.Unlock()

	w.broadcast(Event{Type: EventState, State: &st})
	return err
}

func (w *Workspace) syncLocked() {
	w.scene.Sync(w.store.Layers(), w.store.ActiveID(), w.store.Background())
}

func (w *Workspace) stateLocked() State {
	width, height := w.scene.Size()
	list := w.store.ListOrder()
	order := make([]string, len(list))
	for i, l := range list {
		order[i] = l.ID
	}
	return State{
		ID:         w.id,
		Revision:   w.revision,
		Width:      width,
		Height:     height,
		Background: w.store.Background(),
		Layers:     w.store.Layers(),
		ListOrder:  order,
		CountLabel: w.store.CountLabel(),
		Active:     w.store.ActiveID(),
		Session:    w.machine.Session().Name(),
		BodyCursor: w.scene.BodyCursor(),
		Exporting:  w.exporting,
		Scene:      w.scene.Root.Clone(),
	}
}

func (w *Workspace) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stateLocked()
}

// Len is the number of layers.
func (w *Workspace) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.store.Len()
}

// Notifications returns the notifications still on screen.
func (w *Workspace) Notifications() []core.Notification {
	return w.notifier.Active()
}

// AddAsset puts a new layer on top and selects it. A nil drop point centers
// it on the canvas.
func (w *Workspace) AddAsset(asset core.Asset, drop *geometry.Point) (layers.Layer, error) {
	var l layers.Layer
	err := w.do(func() error {
		l = w.addLocked(asset, drop)
		return nil
	})
	return l, err
}

func (w *Workspace) addLocked(asset core.Asset, drop *geometry.Point) layers.Layer {
	l := w.store.Add(asset, drop)
	_ = w.store.SetActive(l.ID)
	w.notifier.Success(core.KindGeneral, fmt.Sprintf("Added %s to canvas", asset.Name))
	logrus.WithFields(logrus.Fields{
		"workspace_id": w.id,
		"layer_id":     l.ID,
		"asset":        asset.Name,
	}).Info("Layer added successfully")
	return l
}

// DragOver toggles the drop target highlight while a palette asset is
// dragged over the canvas.
func (w *Workspace) DragOver(on bool) {
	_ = w.do(func() error {
		w.scene.SetCanvasClass(scene.ClassDragOver, on)
		return nil
	})
}

// Drop adds the asset carried by a drag-and-drop payload at p. A malformed
// payload changes nothing.
func (w *Workspace) Drop(payload []byte, p geometry.Point) (layers.Layer, error) {
	w.DragOver(false)
	asset, err := interaction.ParseDropPayload(payload)
	if err != nil {
		logrus.WithField("workspace_id", w.id).WithError(err).Warn("Rejected drop")
		w.notifier.Error(DropFailedMessage)
		return layers.Layer{}, err
	}
	return w.AddAsset(asset, &p)
}

func (w *Workspace) PaletteTouchStart(clientID string, asset core.Asset, p geometry.Point) {
	w.mu.Lock()
	defer w.mu.Unlock()

	pt := w.palette[clientID]
	if pt == nil {
		pt = &interaction.PaletteTouch{}
		w.palette[clientID] = pt
	}
	pt.Start(asset, p)
}

func (w *Workspace) PaletteTouchMove(clientID string, p geometry.Point) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if pt := w.palette[clientID]; pt != nil {
		pt.Move(p)
	}
}

// PaletteTouchEnd finishes a palette touch. A tap adds the asset at the
// default position; added reports whether that happened.
func (w *Workspace) PaletteTouchEnd(clientID string) (l layers.Layer, added bool, err error) {
	w.mu.Lock()
	pt := w.palette[clientID]
	if pt == nil {
		w.mu.Unlock()
		return layers.Layer{}, false, nil
	}
	asset, tap := pt.End()
	w.mu.Unlock()

	if !tap {
		return layers.Layer{}, false, nil
	}
	l, err = w.AddAsset(asset, nil)
	return l, err == nil, err
}

func (w *Workspace) DeleteLayer(id string) error {
	return w.do(func() error { return w.store.Delete(id) })
}

func (w *Workspace) MoveUp(id string) error {
	return w.do(func() error { return w.store.MoveUp(id) })
}

func (w *Workspace) MoveDown(id string) error {
	return w.do(func() error { return w.store.MoveDown(id) })
}

func (w *Workspace) ToggleVisible(id string) (bool, error) {
	var visible bool
	err := w.do(func() error {
		var err error
		visible, err = w.store.ToggleVisible(id)
		return err
	})
	return visible, err
}

func (w *Workspace) Select(id string) error {
	return w.do(func() error { return w.store.SetActive(id) })
}

func (w *Workspace) ClearSelection() error {
	return w.do(func() error {
		w.store.ClearActive()
		return nil
	})
}

// SetBackground changes the canvas color. Preset picks are announced,
// picker input is not.
func (w *Workspace) SetBackground(color string, preset bool) error {
	return w.do(func() error {
		if err := w.store.SetBackground(color); err != nil {
			return err
		}
		if preset {
			w.notifier.Success(core.KindGeneral, "Background color changed to "+w.store.Background())
		}
		return nil
	})
}

func (w *Workspace) Reset() error {
	return w.do(func() error {
		w.resetLocked()
		return nil
	})
}

func (w *Workspace) resetLocked() {
	w.machine.Cancel()
	w.store.Reset()
	w.notifier.Success(core.KindReset, ResetMessage)
	logrus.WithField("workspace_id", w.id).Info("Workspace reset successfully")
}

func (w *Workspace) PointerDown(h interaction.Hit, p geometry.Point) error {
	return w.do(func() error { return w.machine.PointerDown(h, p) })
}

func (w *Workspace) PointerMove(p geometry.Point) error {
	return w.do(func() error { return w.machine.PointerMove(p) })
}

// PointerUp ends the running session. Touch end and touch cancel map here.
func (w *Workspace) PointerUp() error {
	return w.do(func() error {
		w.machine.PointerUp()
		return nil
	})
}

// Key applies a key press. An export command is started in the background.
func (w *Workspace) Key(ev interaction.KeyEvent) (interaction.Command, error) {
	var cmd interaction.Command
	err := w.do(func() error {
		cmd = interaction.Key(ev, w.store.ActiveID() != "")
		switch cmd.Kind {
		case interaction.CommandDelete:
			return w.store.Delete(w.store.ActiveID())
		case interaction.CommandClearSelection:
			w.store.ClearActive()
		case interaction.CommandReset:
			w.resetLocked()
		case interaction.CommandNudge:
			if l, ok := w.store.Active(); ok {
				return w.store.Update(l.ID, geometry.Nudge(l.Geometry, cmd.DX, cmd.DY))
			}
		}
		return nil
	})
	if cmd.Kind == interaction.CommandExport {
		w.ExportAsync(context.Background())
	}
	return cmd, err
}

// LongPressStart arms the long-press export for a touch on the empty
// canvas. It does nothing while a gesture is running.
func (w *Workspace) LongPressStart(clientID string) {
	w.mu.Lock()
	if _, idle := w.machine.Session().(interaction.Idle); !idle {
		w.mu.Unlock()
		return
	}
	lp := w.presses[clientID]
	if lp == nil {
		lp = &interaction.LongPress{Delay: w.lpDelay}
		w.presses[clientID] = lp
	}
	w.mu.Unlock()

	lp.Start(func() {
		logrus.WithField("workspace_id", w.id).Info("Long press export triggered")
		w.ExportAsync(context.Background())
	}, w.setLongPressIndicator)
}

// LongPressCancel disarms a pending long press (touch moved or ended).
func (w *Workspace) LongPressCancel(clientID string) {
	w.mu.Lock()
	lp := w.presses[clientID]
	w.mu.Unlock()

	if lp != nil && lp.Cancel() {
		w.setLongPressIndicator(false)
	}
}

func (w *Workspace) setLongPressIndicator(on bool) {
	_ = w.do(func() error {
		w.scene.SetCanvasClass(scene.ClassLongPress, on)
		return nil
	})
}

// ClientJoined schedules the one-time save tip for mobile clients.
func (w *Workspace) ClientJoined(clientID string, mobile bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !mobile || w.tipped[clientID] {
		return
	}
	w.tipped[clientID] = true
	w.tips[clientID] = time.AfterFunc(w.tipDelay, func() {
		w.mu.Lock()
		delete(w.tips, clientID)
		w.mu.Unlock()
		w.notifier.Info(core.KindTip, TipMessage)
	})
}

// ClientLeft drops the per-client input state.
func (w *Workspace) ClientLeft(clientID string) {
	w.mu.Lock()
	lp := w.presses[clientID]
	delete(w.presses, clientID)
	delete(w.palette, clientID)
	if t := w.tips[clientID]; t != nil {
		t.Stop()
		delete(w.tips, clientID)
	}
	w.mu.Unlock()

	if lp != nil && lp.Cancel() {
		w.setLongPressIndicator(false)
	}
}

// EnterExportMode hides the affordances, clears the selection and pins the
// image sizes. The returned release undoes all of it and restores the
// selection unless another layer was picked meanwhile.
func (w *Workspace) EnterExportMode(ctx context.Context) (render.Frame, func(), error) {
	w.mu.Lock()
	if err := ctx.Err(); err != nil {
		w.mu.Unlock()
		return render.Frame{}, nil, err
	}

	prev := w.store.ActiveID()
	o := &scene.Override{}
	restore := func() {
		o.Restore()
		w.exporting = false
		if prev != "" && w.store.ActiveID() == "" {
			if _, ok := w.store.Get(prev); ok {
				_ = w.store.SetActive(prev)
			}
		}
		w.syncLocked()
	}

	render.Neutralize(o, w.scene.Root)
	w.store.ClearActive()
	if _, err := render.PinImages(o, w.scene.Root); err != nil {
		restore()
		w.mu.Unlock()
		return render.Frame{}, nil, err
	}

	width, height := w.scene.Size()
	frame := render.Frame{
		Root:       w.scene.Root.Clone(),
		Background: w.store.Background(),
		Width:      width,
		Height:     height,
	}
	w.exporting = true
	st := w.stateLocked()
	w.mu.Unlock()
	w.broadcast(Event{Type: EventState, State: &st})

	var once sync.Once
	release := func() {
		once.Do(func() {
			w.mu.Lock()
			restore()
			st := w.stateLocked()
			w.mu.Unlock()
			w.broadcast(Event{Type: EventState, State: &st})
		})
	}
	return frame, release, nil
}

// Export renders the canvas to PNG, keeps it in the export history when
// one is configured and announces the result.
func (w *Workspace) Export(ctx context.Context) (*Exported, error) {
	log := logrus.WithField("workspace_id", w.id)

	res, err := w.pipeline.Export(ctx, w)
	if err != nil {
		if core.IsCode(err, core.CodeExportInProgress) {
			log.Warn("Export already running")
			return nil, err
		}
		w.notifier.Error(ExportFailedMessage)
		return nil, err
	}

	out := &Exported{Result: *res}
	if w.exports != nil {
		id, err := w.exports.SaveExport(ctx, &core.Export{
			WorkspaceID: w.id,
			Width:       res.Width,
			Height:      res.Height,
			CreatedAt:   res.CreatedAt.UnixMilli(),
			Data:        res.PNG,
		})
		if err != nil {
			log.WithError(err).Warn("Failed to keep export in history")
		} else {
			out.ID = id
		}
	}

	w.notifier.Success(core.KindExport, ExportedMessage)
	w.broadcast(Event{Type: EventExported, Export: &ExportInfo{
		ID:        out.ID,
		Filename:  render.Filename(res.CreatedAt),
		Width:     res.Width,
		Height:    res.Height,
		CreatedAt: res.CreatedAt.UnixMilli(),
	}})
	log.WithField("export_id", out.ID).Info("Workspace exported successfully")
	return out, nil
}

// ExportAsync runs Export on its own goroutine.
func (w *Workspace) ExportAsync(ctx context.Context) {
	go func() {
		_, _ = w.Export(ctx)
	}()
}

// Document serializes the composition.
func (w *Workspace) Document() ([]byte, error) {
	w.mu.Lock()
	snap := w.store.Snapshot()
	w.mu.Unlock()
	return json.Marshal(snap)
}

// Load replaces the composition with a serialized one. A running gesture
// is cancelled first.
func (w *Workspace) Load(data []byte) error {
	var snap layers.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return core.Wrap(core.CodeInputParse, err, "malformed composition")
	}
	return w.do(func() error {
		w.machine.Cancel()
		return w.store.Restore(snap)
	})
}

// Close stops pending timers.
func (w *Workspace) Close() {
	w.mu.Lock()
	presses := w.presses
	w.presses = make(map[string]*interaction.LongPress)
	for id, t := range w.tips {
		t.Stop()
		delete(w.tips, id)
	}
	w.mu.Unlock()

	for _, lp := range presses {
		lp.Cancel()
	}
}
