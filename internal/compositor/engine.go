// Package compositor turns window events into composited frames. An Engine
// owns the window registry, the pending damage, the fade scheduler and the
// ignore ledger for one display, and is driven from a single loop: every
// method must be called from the same goroutine.
package compositor

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/1broseidon/shade/internal/fade"
	"github.com/1broseidon/shade/internal/geom"
	"github.com/1broseidon/shade/internal/ignore"
	"github.com/1broseidon/shade/internal/platform"
	"github.com/1broseidon/shade/internal/registry"
	"github.com/1broseidon/shade/internal/shadow"
)

// ErrFatal marks failures the compositor cannot recover from, such as
// failing to allocate the pictures every frame depends on.
var ErrFatal = errors.New("fatal compositor error")

// maxIdleShadows bounds the unreferenced masks kept by the shadow cache.
const maxIdleShadows = 16

// Stats are running counters since the engine started.
type Stats struct {
	Events         uint64
	Frames         uint64
	IgnoredErrors  uint64
	ProtocolErrors uint64
}

// Engine is the compositor's explicit context.
type Engine struct {
	backend platform.Backend
	logger  *slog.Logger
	opts    Options

	reg     *registry.Registry
	fades   *fade.Scheduler[registry.Handle]
	ledger  ignore.Ledger
	shadows *shadow.Cache[platform.Picture]

	root     platform.WindowID
	screen   geom.Rect
	damage   geom.Region
	exposed  geom.Region
	rootTile platform.Picture

	started time.Time
	stats   Stats
}

// New returns an engine for backend. Call Start before feeding events.
func New(backend platform.Backend, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		backend: backend,
		logger:  logger,
		opts:    opts,
		reg:     registry.New(),
		started: time.Now(),
	}
	e.fades = fade.NewScheduler[registry.Handle]((*fadeTarget)(e))
	e.shadows = shadow.NewCache[platform.Picture](backend.MaskPicture, e.freePicture, maxIdleShadows)
	return e
}

// Start adopts the windows that already exist, in stacking order, and
// schedules a full repaint.
func (e *Engine) Start() error {
	e.root = e.backend.Root()
	w, h := e.backend.ScreenSize()
	e.screen = geom.R(0, 0, w, h)

	stack, err := e.backend.Stack()
	if err != nil {
		return fmt.Errorf("query stack: %w", err)
	}
	var prev platform.WindowID
	for _, id := range stack {
		e.addWindow(id, prev, false)
		prev = id
	}
	e.DamageScreen()
	e.logger.Info("compositor started", "windows", e.reg.Len(), "screen", e.screen.String())
	return nil
}

// Close releases every resource the engine holds.
func (e *Engine) Close() {
	for _, w := range e.reg.Windows() {
		e.fades.Cancel(w.Handle)
		_ = e.reg.Remove(w, (*teardown)(e))
	}
	e.shadows.Purge()
	e.dropRootTile()
}

// Options returns the active options.
func (e *Engine) Options() Options { return e.opts }

// Reconfigure applies new options to every tracked window and repaints
// the whole screen.
func (e *Engine) Reconfigure(opts Options) {
	e.opts = opts
	for _, w := range e.reg.Windows() {
		e.releaseShadow(w)
		if w.Destroyed {
			continue
		}
		e.applyRules(w)
		if !e.fades.Active(w.Handle) && w.State.Visible() {
			e.setOpacity(w, w.TargetOpacity)
		}
		w.Invalidate()
	}
	e.shadows.Purge()
	e.dropRootTile()
	e.DamageScreen()
	e.logger.Info("compositor reconfigured", "shadows", opts.Shadow.Enabled, "fades", opts.Fade.Enabled)
}

// Tick advances running fades once. It reports whether any window's
// opacity changed.
func (e *Engine) Tick() bool {
	return e.fades.Tick()
}

// NextTimeout returns how long the loop may wait for events before the
// next Tick is due. ok is false when nothing is animating.
func (e *Engine) NextTimeout() (time.Duration, bool) {
	if _, ok := e.fades.NextTimeout(); !ok {
		return 0, false
	}
	return e.opts.Fade.Delta, true
}

// FadeTicksLeft returns the most ticks any running fade still needs.
func (e *Engine) FadeTicksLeft() int { return e.fades.Remaining() }

// AddDamage marks r as needing repaint.
func (e *Engine) AddDamage(r geom.Region) {
	if r.Empty() {
		return
	}
	e.damage = e.damage.Union(r)
}

// DamageScreen marks the whole screen as needing repaint.
func (e *Engine) DamageScreen() {
	e.AddDamage(geom.NewRegion(e.screen))
}

// PendingDamage returns the area awaiting repaint.
func (e *Engine) PendingDamage() geom.Region { return e.damage }

// Stats returns the running counters.
func (e *Engine) Stats() Stats { return e.stats }

// Registry exposes the tracked windows for inspection.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// Ledger exposes the ignore ledger for inspection.
func (e *Engine) Ledger() *ignore.Ledger { return &e.ledger }

// Status is a snapshot of the engine for status reporting.
type Status struct {
	Uptime       time.Duration
	Screen       geom.Rect
	Tracked      int
	Mapped       int
	ActiveFades  int
	PendingRects int
	Ignored      int
	Stats        Stats
}

// Status returns a snapshot of the engine.
func (e *Engine) Status() Status {
	s := Status{
		Uptime:       time.Since(e.started),
		Screen:       e.screen,
		Tracked:      e.reg.Len(),
		ActiveFades:  e.fades.Len(),
		PendingRects: e.damage.Len(),
		Ignored:      e.ledger.Len(),
		Stats:        e.stats,
	}
	e.reg.TopDown(func(w *registry.Window) bool {
		if w.State.Visible() {
			s.Mapped++
		}
		return true
	})
	return s
}

// WindowInfo describes one tracked window.
type WindowInfo struct {
	ID        platform.WindowID
	Client    platform.WindowID
	Geometry  geom.Rect
	Border    int
	Mode      string
	Opacity   float64
	Type      string
	State     string
	Shadow    bool
	DamageSeq uint64
}

// Windows describes the tracked windows, top first.
func (e *Engine) Windows() []WindowInfo {
	out := make([]WindowInfo, 0, e.reg.Len())
	e.reg.TopDown(func(w *registry.Window) bool {
		out = append(out, WindowInfo{
			ID:        w.ID,
			Client:    w.Client,
			Geometry:  w.Geometry,
			Border:    w.BorderWidth,
			Mode:      w.Mode.String(),
			Opacity:   w.Opacity,
			Type:      w.Type.String(),
			State:     w.State.String(),
			Shadow:    w.Shadow.Enabled,
			DamageSeq: w.DamageSeq,
		})
		return true
	})
	return out
}

func (e *Engine) fatal(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrFatal, what, err)
}
