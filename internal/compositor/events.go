package compositor

import (
	"fmt"

	"github.com/1broseidon/shade/internal/fade"
	"github.com/1broseidon/shade/internal/geom"
	"github.com/1broseidon/shade/internal/platform"
	"github.com/1broseidon/shade/internal/registry"
)

// Property atoms the engine reacts to.
const (
	atomOpacity      = "_NET_WM_WINDOW_OPACITY"
	atomWindowType   = "_NET_WM_WINDOW_TYPE"
	atomFrameExtents = "_NET_FRAME_EXTENTS"
	atomWMState      = "WM_STATE"
	atomRootPixmap   = "_XROOTPMAP_ID"
	atomRootSetID    = "_XSETROOT_ID"
)

func hexID(id platform.WindowID) string {
	return fmt.Sprintf("0x%x", uint32(id))
}

// HandleEvent applies one event. Errors the engine expected are dropped
// here; it returns an error only when the compositor cannot continue.
func (e *Engine) HandleEvent(ev platform.Event) error {
	e.stats.Events++

	if errEv, ok := ev.(platform.ErrorEvent); ok {
		e.handleError(errEv)
		return nil
	}
	e.ledger.Expire(uint64(ev.Seq()))

	switch ev := ev.(type) {
	case platform.CreateEvent:
		if ev.Parent == e.root {
			e.addWindow(ev.Window, 0, true)
		}
	case platform.ConfigureEvent:
		return e.handleConfigure(ev)
	case platform.DestroyEvent:
		if w, err := e.reg.Find(ev.Window); err == nil {
			e.destroyWindow(w, true)
		}
	case platform.MapEvent:
		if w, err := e.reg.Find(ev.Window); err == nil {
			e.mapWindow(w, true)
		}
	case platform.UnmapEvent:
		if w, err := e.reg.Find(ev.Window); err == nil {
			e.unmapWindow(w)
		}
	case platform.ReparentEvent:
		e.handleReparent(ev)
	case platform.CirculateEvent:
		e.handleCirculate(ev)
	case platform.ExposeEvent:
		if e.isRoot(ev.Window) {
			e.exposed = e.exposed.UnionRect(ev.Rect)
			if !ev.More {
				e.AddDamage(e.exposed)
				e.exposed = geom.Region{}
			}
		}
	case platform.PropertyEvent:
		e.handleProperty(ev)
	case platform.DamageEvent:
		if w, err := e.reg.Find(ev.Window); err == nil {
			e.repair(w)
		}
	case platform.ShapeEvent:
		if w, err := e.reg.Find(ev.Window); err == nil {
			e.invalidate(w)
			e.damageWindow(w)
		}
	}
	return nil
}

func (e *Engine) handleError(ev platform.ErrorEvent) {
	if e.ledger.ShouldIgnore(ev.Class, uint64(ev.Sequence)) {
		e.stats.IgnoredErrors++
		e.logger.Debug("ignored expected protocol error", "seq", ev.Sequence, "class", ev.Class.String(), "error", ev.Name)
		return
	}
	e.stats.ProtocolErrors++
	e.logger.Warn("protocol error", "seq", ev.Sequence, "class", ev.Class.String(), "error", ev.Error())
}

func (e *Engine) handleConfigure(ev platform.ConfigureEvent) error {
	if e.isRoot(ev.Window) {
		return e.resizeScreen(ev.Geometry)
	}
	w, err := e.reg.Find(ev.Window)
	if err != nil {
		return nil
	}

	e.invalidate(w)
	resized := ev.Geometry.Width != w.Geometry.Width ||
		ev.Geometry.Height != w.Geometry.Height ||
		ev.BorderWidth != w.BorderWidth
	if resized {
		e.releaseContents(w)
		e.releaseShadow(w)
	}
	w.Geometry = ev.Geometry
	w.BorderWidth = ev.BorderWidth
	w.OverrideRedirect = ev.OverrideRedirect

	if err := e.reg.Restack(w, ev.Above); err != nil {
		e.logger.Debug("restack failed", "window", w.String(), "error", err)
	}
	e.damageWindow(w)
	return nil
}

func (e *Engine) resizeScreen(g geom.Rect) error {
	if g.Width == e.screen.Width && g.Height == e.screen.Height {
		return nil
	}
	e.screen = geom.R(0, 0, g.Width, g.Height)
	if err := e.backend.ResizeBuffer(g.Width, g.Height); err != nil {
		return e.fatal("resize back buffer", err)
	}
	e.dropRootTile()
	e.logger.Info("screen resized", "screen", e.screen.String())
	e.DamageScreen()
	return nil
}

func (e *Engine) handleCirculate(ev platform.CirculateEvent) {
	w, err := e.reg.Find(ev.Window)
	if err != nil {
		return
	}
	if ev.Place == platform.PlaceOnTop {
		err = e.reg.RaiseToTop(w)
	} else {
		err = e.reg.LowerToBottom(w)
	}
	if err != nil {
		e.logger.Debug("circulate failed", "window", w.String(), "error", err)
	}
	e.damageWindow(w)
}

// handleReparent tracks windows moved under the root and drops windows
// moved into a frame. A frame gaining a client learns its decorations.
func (e *Engine) handleReparent(ev platform.ReparentEvent) {
	if ev.Parent == e.root {
		e.addWindow(ev.Window, 0, true)
		return
	}
	if w, err := e.reg.Find(ev.Window); err == nil {
		e.destroyWindow(w, false)
	}

	top, err := e.reg.FindTopLevel(ev.Parent, e.root, e.backend.Parent)
	if err != nil || top.Client != 0 {
		return
	}
	client := e.findClient(ev.Window, 0)
	if client == 0 {
		client = ev.Window
	}
	e.invalidate(top)
	top.Client = client
	if top.State.Visible() {
		e.watchClient(top)
	}
	e.readFrameExtents(top)
	e.damageWindow(top)
}

func (e *Engine) handleProperty(ev platform.PropertyEvent) {
	if e.isRoot(ev.Window) {
		if ev.Atom == atomRootPixmap || ev.Atom == atomRootSetID {
			e.dropRootTile()
			e.DamageScreen()
		}
		return
	}

	switch ev.Atom {
	case atomOpacity, atomWindowType, atomFrameExtents, atomWMState:
	default:
		return
	}
	w, err := e.reg.FindTopLevel(ev.Window, e.root, e.backend.Parent)
	if err != nil {
		return
	}

	switch ev.Atom {
	case atomOpacity:
		e.readOpacityProperty(w)
		e.applyRules(w)
		e.retarget(w)
	case atomWindowType:
		e.invalidate(w)
		w.Type = e.determineType(w.ID, 0)
		e.applyRules(w)
		e.retarget(w)
		e.damageWindow(w)
	case atomFrameExtents:
		if w.Client == 0 || w.Client == ev.Window || w.ID == ev.Window {
			e.invalidate(w)
			e.readFrameExtents(w)
			e.damageWindow(w)
		}
	case atomWMState:
		if w.Client == 0 {
			e.invalidate(w)
			w.Client = e.findClient(w.ID, 0)
			e.readFrameExtents(w)
			e.damageWindow(w)
		}
	}
}

// retarget moves a visible window towards its new resting opacity. Exit
// fades keep running so the window still disappears.
func (e *Engine) retarget(w *registry.Window) {
	switch w.State {
	case registry.StateMapping, registry.StateMapped:
	default:
		return
	}
	if !e.opts.Fade.OpacityChange || !w.Fade {
		e.fades.Cancel(w.Handle)
		e.setOpacity(w, w.TargetOpacity)
		w.State = registry.StateMapped
		return
	}
	e.fades.Set(w.Handle, fade.Request{
		Start:        w.Opacity,
		Finish:       w.TargetOpacity,
		Step:         e.opts.Fade.OutStep,
		Action:       fade.ActionNone,
		InvokeIfNoop: true,
		Override:     true,
	})
}
