package interaction

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/nothing010101/pfp/core"
	"github.com/nothing010101/pfp/geometry"
)

// TapThreshold is the travel in either axis above which a palette touch
// counts as a drag instead of a tap.
const TapThreshold = 10.0

// PaletteTouch follows one touch on a palette asset.
type PaletteTouch struct {
	asset  core.Asset
	start  geometry.Point
	moved  bool
	active bool
}

func (t *PaletteTouch) Start(asset core.Asset, p geometry.Point) {
	*t = PaletteTouch{asset: asset, start: p, active: true}
}

func (t *PaletteTouch) Move(p geometry.Point) {
	if !t.active {
		return
	}
	if math.Abs(p.X-t.start.X) > TapThreshold || math.Abs(p.Y-t.start.Y) > TapThreshold {
		t.moved = true
	}
}

// End finishes the touch. tap is true when the finger stayed within
// TapThreshold, in which case the asset should be added at the default
// position.
func (t *PaletteTouch) End() (asset core.Asset, tap bool) {
	if !t.active {
		return core.Asset{}, false
	}
	asset, tap = t.asset, !t.moved
	*t = PaletteTouch{}
	return asset, tap
}

type dropPayload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	URI      string `json:"uri"`
	URL      string `json:"url"`
}

// ParseDropPayload decodes the asset record carried by a drag-and-drop.
// Malformed payloads yield a CodeInputParse error.
func ParseDropPayload(data []byte) (core.Asset, error) {
	var p dropPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return core.Asset{}, core.Wrap(core.CodeInputParse, err, "malformed drop payload")
	}
	uri := strings.TrimSpace(p.URI)
	if uri == "" {
		uri = strings.TrimSpace(p.URL)
	}
	if uri == "" {
		return core.Asset{}, core.Errorf(core.CodeInputParse, "drop payload has no image uri")
	}
	return core.Asset{ID: p.ID, Name: p.Name, Category: p.Category, URI: uri}, nil
}
