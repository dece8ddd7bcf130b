package layers

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/nothing010101/pfp/core"
	"github.com/nothing010101/pfp/geometry"
)

const (
	// DefaultBackground is the background color of a fresh or reset canvas.
	DefaultBackground = "#ffffff"

	// ZStep separates the paint-order signal of adjacent layers.
	ZStep = 10

	idPrefix = "layer-"
)

// Presets are the background colors offered next to the picker.
var Presets = []string{"#ffffff", "#f0f0f0", "#000000", "#ffe4e1", "#e0f7fa", "#fff9c4", "#e8f5e9", "#ede7f6"}

var (
	ErrLayerNotFound = errors.New("layer not found")

	hexColor = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
)

type (
	// Layer is a positioned image overlay. Its place in the store sequence
	// is its paint order; ZIndex mirrors that place for the presentation.
	Layer struct {
		ID       string            `json:"id"`
		Asset    core.Asset        `json:"asset"`
		Geometry geometry.Geometry `json:"geometry"`
		Visible  bool              `json:"visible"`
		ZIndex   int               `json:"zIndex"`
	}

	// Snapshot is the serializable content of a store.
	Snapshot struct {
		Layers     []Layer `json:"layers"`
		Active     string  `json:"active,omitempty"`
		Background string  `json:"background"`
		Counter    int     `json:"counter"`
	}

	// Store is the ordered layer collection of one canvas. Index 0 is painted
	// first. Every operation is applied before it returns.
	Store struct {
		mu         sync.RWMutex
		layers     []*Layer
		active     string
		background string
		counter    int
		width      float64
		height     float64
		observers  []Observer
	}
)

// NewStore returns an empty store for a canvas of the given size. The size
// is used to center layers added without a drop point.
func NewStore(width, height float64) *Store {
	return &Store{
		background: DefaultBackground,
		width:      width,
		height:     height,
	}
}

func notFound(id string) error {
	return core.Wrap(core.CodeNotFound, ErrLayerNotFound, fmt.Sprintf("layer with id %s", id))
}

// Add creates a layer for asset on top of the stack. With a drop point the
// layer is centered on it, otherwise on the canvas.
func (s *Store) Add(asset core.Asset, drop *geometry.Point) Layer {
	s.mu.Lock()
	s.counter++
	l := &Layer{
		ID:       idPrefix + strconv.Itoa(s.counter),
		Asset:    asset,
		Geometry: geometry.Birth(drop, s.width, s.height),
		Visible:  true,
	}
	s.layers = append(s.layers, l)
	s.reindex()
	added := *l
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeAdded, LayerID: added.ID})
	return added
}

// Delete removes the layer. Deleting the active layer clears the selection.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return notFound(id)
	}
	s.layers = append(s.layers[:i], s.layers[i+1:]...)
	if s.active == id {
		s.active = ""
	}
	s.reindex()
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeRemoved, LayerID: id})
	return nil
}

// MoveUp swaps the layer with the one painted above it. It is a no-op for
// the top layer.
func (s *Store) MoveUp(id string) error {
	return s.swap(id, 1)
}

// MoveDown swaps the layer with the one painted below it. It is a no-op for
// the bottom layer.
func (s *Store) MoveDown(id string) error {
	return s.swap(id, -1)
}

func (s *Store) swap(id string, dir int) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return notFound(id)
	}
	j := i + dir
	if j < 0 || j >= len(s.layers) {
		s.mu.Unlock()
		return nil
	}
	s.layers[i], s.layers[j] = s.layers[j], s.layers[i]
	s.layers[i].ZIndex = i * ZStep
	s.layers[j].ZIndex = j * ZStep
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeMoved, LayerID: id})
	return nil
}

// SetActive selects the layer for manipulation. An empty id clears the
// selection.
func (s *Store) SetActive(id string) error {
	if id == "" {
		s.ClearActive()
		return nil
	}

	s.mu.Lock()
	if s.indexOf(id) < 0 {
		s.mu.Unlock()
		return notFound(id)
	}
	changed := s.active != id
	s.active = id
	s.mu.Unlock()

	if changed {
		s.emit(Change{Kind: ChangeSelected, LayerID: id})
	}
	return nil
}

func (s *Store) ClearActive() {
	s.mu.Lock()
	prev := s.active
	s.active = ""
	s.mu.Unlock()

	if prev != "" {
		s.emit(Change{Kind: ChangeSelected})
	}
}

// ToggleVisible flips the visibility flag and returns the new value.
func (s *Store) ToggleVisible(id string) (bool, error) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return false, notFound(id)
	}
	s.layers[i].Visible = !s.layers[i].Visible
	visible := s.layers[i].Visible
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeUpdated, LayerID: id})
	return visible, nil
}

// Update replaces the geometry of a layer. Width and height below
// geometry.MinSize are raised to it.
func (s *Store) Update(id string, g geometry.Geometry) error {
	if g.Width < geometry.MinSize {
		g.Width = geometry.MinSize
	}
	if g.Height < geometry.MinSize {
		g.Height = geometry.MinSize
	}

	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return notFound(id)
	}
	if s.layers[i].Geometry == g {
		s.mu.Unlock()
		return nil
	}
	s.layers[i].Geometry = g
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeUpdated, LayerID: id})
	return nil
}

// Reset clears every layer and the selection, restarts the id counter and
// restores the default background.
func (s *Store) Reset() {
	s.mu.Lock()
	s.layers = nil
	s.active = ""
	s.counter = 0
	s.background = DefaultBackground
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeReset})
}

// SetBackground sets the canvas color. Only #rgb and #rrggbb are accepted.
func (s *Store) SetBackground(color string) error {
	color = strings.TrimSpace(color)
	if !hexColor.MatchString(color) {
		return core.Errorf(core.CodeValidation, "invalid background color %q", color)
	}
	color = strings.ToLower(color)

	s.mu.Lock()
	s.background = color
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeBackground})
	return nil
}

// Snapshot copies the store content.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		Layers:     s.copyLayers(),
		Active:     s.active,
		Background: s.background,
		Counter:    s.counter,
	}
}

// Restore replaces the store content with snap. The snapshot is checked
// before anything is replaced, so a rejected snapshot leaves the store as
// it was.
func (s *Store) Restore(snap Snapshot) error {
	seen := make(map[string]bool, len(snap.Layers))
	counter := snap.Counter
	restored := make([]*Layer, 0, len(snap.Layers))
	for _, l := range snap.Layers {
		if l.ID == "" || seen[l.ID] {
			return core.Errorf(core.CodeValidation, "duplicate or empty layer id %q", l.ID)
		}
		seen[l.ID] = true
		if n, err := strconv.Atoi(strings.TrimPrefix(l.ID, idPrefix)); err == nil && n > counter {
			counter = n
		}
		l.Geometry.Width = max(l.Geometry.Width, geometry.MinSize)
		l.Geometry.Height = max(l.Geometry.Height, geometry.MinSize)
		copied := l
		restored = append(restored, &copied)
	}
	if snap.Active != "" && !seen[snap.Active] {
		return core.Errorf(core.CodeValidation, "active layer %q is not in the snapshot", snap.Active)
	}
	background := DefaultBackground
	if snap.Background != "" {
		if !hexColor.MatchString(snap.Background) {
			return core.Errorf(core.CodeValidation, "invalid background color %q", snap.Background)
		}
		background = strings.ToLower(snap.Background)
	}

	s.mu.Lock()
	s.layers = restored
	s.active = snap.Active
	s.background = background
	s.counter = counter
	s.reindex()
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeReset})
	return nil
}

// Layers returns copies of the layers in paint order, bottom first.
func (s *Store) Layers() []Layer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLayers()
}

// ListOrder returns copies of the layers as the layer list shows them, top
// first.
func (s *Store) ListOrder() []Layer {
	out := s.Layers()
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (s *Store) Get(id string) (Layer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return Layer{}, false
	}
	return *s.layers[i], true
}

// Active returns the selected layer, if any.
func (s *Store) Active() (Layer, bool) {
	s.mu.RLock()
	id := s.active
	s.mu.RUnlock()

	if id == "" {
		return Layer{}, false
	}
	return s.Get(id)
}

func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.layers)
}

func (s *Store) Background() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.background
}

// Counter is the number of ids handed out since the last reset.
func (s *Store) Counter() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counter
}

// CanvasSize returns the canvas dimensions the store centers layers on.
func (s *Store) CanvasSize() (float64, float64) {
	return s.width, s.height
}

// CountLabel renders the layer count for the layer list header.
func (s *Store) CountLabel() string {
	n := s.Len()
	if n == 1 {
		return "1 layer"
	}
	return fmt.Sprintf("%d layers", n)
}

func (s *Store) indexOf(id string) int {
	for i, l := range s.layers {
		if l.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) reindex() {
	for i, l := range s.layers {
		l.ZIndex = i * ZStep
	}
}

func (s *Store) copyLayers() []Layer {
	out := make([]Layer, len(s.layers))
	for i, l := range s.layers {
		out[i] = *l
	}
	return out
}
