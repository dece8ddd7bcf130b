package render

import (
	"bytes"
	"context"
	"image/png"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nothing010101/pfp/core"
	"github.com/nothing010101/pfp/scene"
)

const (
	DefaultSettleDelay = 150 * time.Millisecond
	DefaultScale       = 2.0
)

// ErrExportInProgress rejects an export requested while another one is
// still running on the same pipeline.
var ErrExportInProgress = core.Errorf(core.CodeExportInProgress, "an export is already running")

type (
	// Frame is the frozen copy of the scene handed to the rasterizer.
	Frame struct {
		Root          *scene.Node
		Background    string
		Width, Height float64
	}

	// Host owns the live scene. EnterExportMode hides the affordances, pins
	// image sizes and returns a frozen frame together with a release func
	// that undoes every change. release must be safe to call once on any
	// exit path.
	Host interface {
		EnterExportMode(ctx context.Context) (Frame, func(), error)
	}

	Result struct {
		PNG       []byte
		Width     int
		Height    int
		CreatedAt time.Time
	}

	Pipeline struct {
		rasterizer       Rasterizer
		settleDelay      time.Duration
		scale            float64
		allowCrossOrigin bool
		now              func() time.Time

		busy sync.Mutex
	}

	Option func(*Pipeline)
)

func WithSettleDelay(d time.Duration) Option { return func(p *Pipeline) { p.settleDelay = d } }

func WithScale(s float64) Option { return func(p *Pipeline) { p.scale = s } }

func WithClock(now func() time.Time) Option { return func(p *Pipeline) { p.now = now } }

// WithCrossOrigin controls whether remote images may be painted.
func WithCrossOrigin(allow bool) Option { return func(p *Pipeline) { p.allowCrossOrigin = allow } }

func NewPipeline(r Rasterizer, opts ...Option) *Pipeline {
	p := &Pipeline{
		rasterizer:       r,
		settleDelay:      DefaultSettleDelay,
		scale:            DefaultScale,
		allowCrossOrigin: true,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Export renders the host's scene to PNG. The host's release func runs on
// every path out of Export, including rasterizer errors and panics.
func (p *Pipeline) Export(ctx context.Context, host Host) (res *Result, err error) {
	if !p.busy.TryLock() {
		return nil, ErrExportInProgress
	}
	defer p.busy.Unlock()

	log := logrus.WithField("scale", p.scale)

	frame, release, err := host.EnterExportMode(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to enter export mode")
		return nil, core.Wrap(core.CodeExport, err, "failed to prepare export")
	}
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, core.Errorf(core.CodeExport, "rasterizer panicked: %v", r)
		}
		release()
		if err != nil {
			log.WithError(err).Error("Export failed")
		}
	}()

	if p.settleDelay > 0 {
		t := time.NewTimer(p.settleDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, core.Wrap(core.CodeExport, ctx.Err(), "export cancelled")
		case <-t.C:
		}
	}

	img, err := p.rasterizer.Rasterize(ctx, frame.Root, Options{
		Background:       frame.Background,
		Scale:            p.scale,
		Width:            frame.Width,
		Height:           frame.Height,
		AllowCrossOrigin: p.allowCrossOrigin,
	})
	if err != nil {
		return nil, core.Wrap(core.CodeExport, err, "failed to rasterize")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, core.Wrap(core.CodeExport, err, "failed to encode png")
	}

	b := img.Bounds()
	res = &Result{PNG: buf.Bytes(), Width: b.Dx(), Height: b.Dy(), CreatedAt: p.now()}
	log.WithFields(logrus.Fields{
		"width":  res.Width,
		"height": res.Height,
		"bytes":  len(res.PNG),
	}).Info("Exported successfully")
	return res, nil
}
