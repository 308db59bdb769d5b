package compositor

import (
	"github.com/1broseidon/shade/internal/geom"
	"github.com/1broseidon/shade/internal/platform"
	"github.com/1broseidon/shade/internal/registry"
)

// extentsOf returns the largest area w can touch: its outer rectangle
// grown by the frame extents, bounded together with its shadow.
func (e *Engine) extentsOf(w *registry.Window) geom.Region {
	if w.ExtentsValid {
		return w.Extents
	}
	outer := w.Outer()
	body := geom.R(
		outer.X-w.Frame.Left,
		outer.Y-w.Frame.Top,
		outer.Width+w.Frame.Left+w.Frame.Right,
		outer.Height+w.Frame.Top+w.Frame.Bottom,
	)
	if w.Shadow.Enabled {
		r := e.opts.Shadow.Radius
		w.Shadow.DX = e.opts.Shadow.OffsetX
		w.Shadow.DY = e.opts.Shadow.OffsetY
		w.Shadow.Width = outer.Width + 2*r
		w.Shadow.Height = outer.Height + 2*r
		body = body.Bounds(w.Shadow.Rect(outer.X, outer.Y))
	}
	w.Extents = geom.NewRegion(body)
	w.ExtentsValid = true
	return w.Extents
}

// borderShapeOf returns w's true outline in screen coordinates: its
// outer rectangle clipped by the bounding shape.
func (e *Engine) borderShapeOf(w *registry.Window) geom.Region {
	if w.ShapeValid {
		return w.BorderShape
	}
	outer := w.Outer()
	full := geom.NewRegion(outer)
	shape, err := e.backend.BoundingShape(w.ID)
	if err != nil {
		e.logger.Debug("bounding shape unavailable", "window", w.String(), "error", err)
		w.BorderShape = full
	} else {
		w.BorderShape = shape.Translate(outer.X, outer.Y).Intersect(full)
	}
	w.ShapeValid = true
	return w.BorderShape
}

// invalidate damages what w covered before a change and drops its
// cached regions; the caller damages the new area once it has applied
// the change.
func (e *Engine) invalidate(w *registry.Window) {
	if w.State.Visible() && w.ExtentsValid {
		e.AddDamage(w.Extents)
	}
	w.Invalidate()
}

// damageWindow adds w's current extents to the pending damage.
func (e *Engine) damageWindow(w *registry.Window) {
	if w.State.Visible() {
		e.AddDamage(e.extentsOf(w))
	}
}

// repair folds a damage notification into the pending damage. The
// fetched parts are relative to the window's inner origin. Until a window
// has been painted after its extents changed, the whole extents are
// damaged with them, since the old contents may be anywhere inside.
func (e *Engine) repair(w *registry.Window) {
	w.DamageSeq++
	if w.Damage == 0 {
		return
	}
	parts, seq, err := e.backend.FetchDamage(w.Damage)
	if err != nil {
		e.logger.Debug("fetch damage failed", "window", w.String(), "seq", seq, "error", err)
		return
	}
	if !w.State.Visible() {
		return
	}
	b := w.BorderWidth
	parts = parts.Translate(w.Geometry.X+b, w.Geometry.Y+b)
	if !w.Painted {
		parts = parts.Union(e.extentsOf(w))
	}
	e.AddDamage(parts)
}

// determineMode derives the blend mode from the visual and the current
// opacity, damaging the window when the mode changes.
func (e *Engine) determineMode(w *registry.Window) {
	mode := registry.ModeOpaque
	switch {
	case w.HasAlpha:
		mode = registry.ModeAlpha
	case w.Opacity < 1:
		mode = registry.ModeTranslucent
	}
	if mode != w.Mode {
		w.Mode = mode
		e.damageWindow(w)
	}
}

// setOpacity changes the drawn opacity of w and damages it.
func (e *Engine) setOpacity(w *registry.Window, v float64) {
	v = min(max(v, 0), 1)
	if v == w.Opacity {
		return
	}
	w.Opacity = v
	e.determineMode(w)
	e.damageWindow(w)
}

// screenRegion is the full screen as a region.
func (e *Engine) screenRegion() geom.Region {
	return geom.NewRegion(e.screen)
}

func (e *Engine) isRoot(id platform.WindowID) bool {
	return id == e.root
}
