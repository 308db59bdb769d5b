package compositor

import (
	"errors"

	"github.com/1broseidon/shade/internal/fade"
	"github.com/1broseidon/shade/internal/geom"
	"github.com/1broseidon/shade/internal/platform"
	"github.com/1broseidon/shade/internal/registry"
	"github.com/1broseidon/shade/internal/wintype"
)

// maxTreeDepth bounds descents into a window's children.
const maxTreeDepth = 16

// addWindow starts tracking id directly above prev. Windows found mapped
// during the initial scan are shown immediately, without a fade.
func (e *Engine) addWindow(id, prev platform.WindowID, animate bool) *registry.Window {
	attrs, err := e.backend.Attributes(id)
	if err != nil {
		// The window went away before we could look at it.
		e.logger.Debug("skip vanished window", "window", hexID(id), "error", err)
		return nil
	}
	w, err := e.reg.Add(id, prev)
	if err != nil {
		if errors.Is(err, registry.ErrExists) {
			e.logger.Debug("window already tracked", "window", hexID(id))
		}
		return nil
	}
	w.Geometry = attrs.Geometry
	w.BorderWidth = attrs.BorderWidth
	w.OverrideRedirect = attrs.OverrideRedirect
	w.InputOnly = attrs.InputOnly
	w.HasAlpha = attrs.HasAlpha
	w.State = registry.StateUnmapped

	if !w.InputOnly {
		d, err := e.backend.CreateDamage(id)
		if err != nil {
			e.logger.Debug("create damage failed", "window", w.String(), "error", err)
		} else {
			w.Damage = d
		}
	}
	e.determineMode(w)

	if attrs.Viewable {
		e.mapWindow(w, animate)
	}
	return w
}

// mapWindow moves w into the mapped states, fading it in when enabled.
func (e *Engine) mapWindow(w *registry.Window, animate bool) {
	switch w.State {
	case registry.StateMapping, registry.StateMapped, registry.StateDestroying:
		return
	}
	if err := e.backend.Watch(w.ID); err != nil {
		e.logger.Debug("watch window failed", "window", w.String(), "error", err)
	}

	// Contents named before an unmap are stale once the window maps
	// again.
	e.releaseContents(w)

	w.Client = e.findClient(w.ID, 0)
	e.watchClient(w)
	e.readFrameExtents(w)
	w.Type = e.determineType(w.ID, 0)
	e.readOpacityProperty(w)
	e.applyRules(w)
	w.Invalidate()

	w.State = registry.StateMapping
	start := w.TargetOpacity
	if animate && w.Fade && !w.InputOnly {
		start = 0
	}
	e.setOpacity(w, start)
	e.damageWindow(w)
	e.fades.Set(w.Handle, fade.Request{
		Start:        start,
		Finish:       w.TargetOpacity,
		Step:         e.opts.Fade.InStep,
		Action:       fade.ActionNone,
		InvokeIfNoop: true,
		Override:     true,
	})
}

// unmapWindow starts hiding w, fading it out when enabled.
func (e *Engine) unmapWindow(w *registry.Window) {
	switch w.State {
	case registry.StateUnmapped, registry.StateUnmapping, registry.StateDestroying:
		return
	}
	w.State = registry.StateUnmapping
	if !w.Fade {
		e.fades.Cancel(w.Handle)
		e.finishUnmap(w)
		return
	}
	e.fades.Set(w.Handle, fade.Request{
		Start:        w.Opacity,
		Finish:       0,
		Step:         e.opts.Fade.OutStep,
		Action:       fade.ActionFinishUnmap,
		InvokeIfNoop: true,
		Override:     true,
	})
}

func (e *Engine) finishUnmap(w *registry.Window) {
	if w.ExtentsValid || w.State.Visible() {
		e.AddDamage(e.extentsOf(w))
	}
	w.State = registry.StateUnmapped
	e.releaseSurfaces(w)
	e.unwatch(w.ID)
	e.unwatchClient(w)
	w.Invalidate()
	w.Clip = geom.Region{}
}

// destroyWindow forgets w's id at once and removes the window after its
// exit fade, if any.
func (e *Engine) destroyWindow(w *registry.Window, animate bool) {
	if w.Destroyed {
		return
	}
	visible := w.State.Visible()
	e.reg.MarkDestroyed(w)
	if !visible || !animate || !w.Fade {
		e.finishDestroy(w)
		return
	}
	w.State = registry.StateDestroying
	e.fades.Set(w.Handle, fade.Request{
		Start:        w.Opacity,
		Finish:       0,
		Step:         e.opts.Fade.OutStep,
		Action:       fade.ActionFinishDestroy,
		InvokeIfNoop: true,
		Override:     true,
	})
}

func (e *Engine) finishDestroy(w *registry.Window) {
	e.fades.Cancel(w.Handle)
	if err := e.reg.Remove(w, (*teardown)(e)); err != nil {
		e.logger.Debug("remove window", "window", w.String(), "error", err)
	}
}

// applyRules resolves the per-type settings and the resting opacity.
func (e *Engine) applyRules(w *registry.Window) {
	rule := e.opts.rule(w.Type)
	enabled := e.opts.Shadow.Enabled && rule.Shadow && !w.InputOnly
	if enabled != w.Shadow.Enabled {
		e.invalidate(w)
		e.releaseShadow(w)
	}
	w.Shadow.Enabled = enabled
	w.Fade = e.opts.Fade.Enabled && rule.Fade
	if w.HasPropOpacity {
		w.TargetOpacity = w.PropOpacity
	} else {
		w.TargetOpacity = rule.Opacity
	}
}

// watchClient selects property changes on w's client when it is a
// separate window inside the frame.
func (e *Engine) watchClient(w *registry.Window) {
	want := w.Client
	if want == w.ID {
		want = 0
	}
	if want == w.WatchedClient {
		return
	}
	e.unwatchClient(w)
	if want == 0 {
		return
	}
	if err := e.backend.Watch(want); err != nil {
		e.logger.Debug("watch client failed", "window", w.String(), "client", hexID(want), "error", err)
		return
	}
	w.WatchedClient = want
}

func (e *Engine) unwatchClient(w *registry.Window) {
	if w.WatchedClient == 0 {
		return
	}
	e.unwatch(w.WatchedClient)
	w.WatchedClient = 0
}

func (e *Engine) readOpacityProperty(w *registry.Window) {
	w.PropOpacity, w.HasPropOpacity = e.backend.Opacity(w.ID)
	if !w.HasPropOpacity && w.Client != 0 && w.Client != w.ID {
		w.PropOpacity, w.HasPropOpacity = e.backend.Opacity(w.Client)
	}
}

func (e *Engine) readFrameExtents(w *registry.Window) {
	w.Frame = platform.Extents{}
	if w.Client == 0 {
		return
	}
	if ext, ok := e.backend.FrameExtents(w.Client); ok {
		w.Frame = ext
	}
}

// findClient returns the first window at or below id carrying WM_STATE,
// searching depth first, or zero.
func (e *Engine) findClient(id platform.WindowID, depth int) platform.WindowID {
	if e.backend.IsClient(id) {
		return id
	}
	if depth >= maxTreeDepth {
		return 0
	}
	children, err := e.backend.Children(id)
	if err != nil {
		return 0
	}
	for i := len(children) - 1; i >= 0; i-- {
		if c := e.findClient(children[i], depth+1); c != 0 {
			return c
		}
	}
	return 0
}

// determineType returns the first window type set on id or, depth first,
// on its descendants. Top-level windows default to normal.
func (e *Engine) determineType(id platform.WindowID, depth int) wintype.Type {
	if atoms, err := e.backend.WindowTypes(id); err == nil {
		if t := wintype.FromAtoms(atoms); t != wintype.Unknown {
			return t
		}
	}
	if depth < maxTreeDepth {
		if children, err := e.backend.Children(id); err == nil {
			for _, c := range children {
				if t := e.determineType(c, depth+1); t != wintype.Unknown {
					return t
				}
			}
		}
	}
	if depth == 0 {
		return wintype.Normal
	}
	return wintype.Unknown
}

// fadeTarget routes fade progress to windows by handle. A handle whose
// window has gone simply resolves to nothing.
type fadeTarget Engine

func (t *fadeTarget) Apply(h registry.Handle, v float64) {
	e := (*Engine)(t)
	if w, ok := e.reg.Get(h); ok {
		e.setOpacity(w, v)
	}
}

func (t *fadeTarget) Complete(h registry.Handle, action fade.Action) {
	e := (*Engine)(t)
	w, ok := e.reg.Get(h)
	if !ok {
		return
	}
	switch action {
	case fade.ActionNone:
		if w.State == registry.StateMapping {
			w.State = registry.StateMapped
		}
	case fade.ActionFinishUnmap:
		if w.State == registry.StateUnmapping {
			e.finishUnmap(w)
		}
	case fade.ActionFinishDestroy:
		e.finishDestroy(w)
	}
}
