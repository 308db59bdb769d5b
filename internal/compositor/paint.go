package compositor

import (
	"github.com/1broseidon/shade/internal/geom"
	"github.com/1broseidon/shade/internal/platform"
	"github.com/1broseidon/shade/internal/registry"
	"github.com/1broseidon/shade/internal/shadow"
)

// Paint renders a frame if any damage is pending.
func (e *Engine) Paint() error {
	if e.damage.Empty() {
		return nil
	}
	return e.PaintAll(e.damage)
}

// PaintAll composites one frame covering region, or the whole screen when
// region is empty, and clears the pending damage.
//
// Windows are walked top down first: opaque bodies are copied straight to
// the back buffer and removed from the area still to be drawn, and every
// window remembers what was left of that area as its clip. The background
// fills whatever no opaque body covered. Then shadows and blended bodies
// are drawn bottom up, each inside its clip, so every pixel ends up as the
// topmost window covering it over everything beneath.
func (e *Engine) PaintAll(region geom.Region) error {
	screen := e.screenRegion()
	if region.Empty() {
		region = screen
	}
	region = region.Intersect(screen)

	if err := e.ensureRootTile(); err != nil {
		return err
	}

	remaining := region
	var drawn []*registry.Window
	e.reg.TopDown(func(w *registry.Window) bool {
		w.Clip = geom.Region{}
		if !e.prepare(w) {
			return true
		}
		if w.Mode == registry.ModeOpaque {
			shape := e.borderShapeOf(w)
			body := remaining.Intersect(shape)
			if !body.Empty() {
				e.composite(w, platform.Composite{
					Op:   platform.OpSrc,
					Src:  w.Picture,
					Dst:  bodyRect(w),
					Clip: body,
				})
			}
			remaining = remaining.Subtract(shape)
		}
		w.Clip = remaining
		w.Painted = true
		drawn = append(drawn, w)
		return true
	})

	if !remaining.Empty() {
		if err := e.backend.Composite(platform.Composite{
			Op:   platform.OpSrc,
			Src:  e.rootTile,
			Dst:  e.screen,
			Clip: remaining,
		}); err != nil {
			return e.fatal("paint background", err)
		}
	}

	for i := len(drawn) - 1; i >= 0; i-- {
		w := drawn[i]
		if w.Clip.Empty() {
			continue
		}
		if err := e.paintShadow(w); err != nil {
			return err
		}
		if w.Mode == registry.ModeOpaque {
			continue
		}
		mask := w.AlphaPict
		if w.Mode == registry.ModeAlpha && w.Opacity >= 1 {
			mask = 0
		}
		e.composite(w, platform.Composite{
			Op:   platform.OpOver,
			Src:  w.Picture,
			Mask: mask,
			Dst:  bodyRect(w),
			Clip: w.Clip.Intersect(e.borderShapeOf(w)),
		})
	}

	if err := e.backend.Present(region); err != nil {
		return e.fatal("present frame", err)
	}
	if err := e.backend.Flush(); err != nil {
		return e.fatal("flush", err)
	}
	e.damage = geom.Region{}
	e.stats.Frames++
	return nil
}

// prepare readies w for this frame and reports whether it has anything to
// draw.
func (e *Engine) prepare(w *registry.Window) bool {
	if !w.State.Visible() || w.InputOnly || w.Opacity <= 0 {
		return false
	}
	if !e.extentsOf(w).Bounds().Overlaps(e.screen) {
		return false
	}
	if w.Picture == 0 {
		pixmap, err := e.backend.NameWindowPixmap(w.ID)
		if err != nil {
			e.logger.Debug("name window pixmap failed", "window", w.String(), "error", err)
			pixmap = 0
		}
		pict, err := e.backend.CreatePicture(w.ID, pixmap)
		if err != nil {
			e.logger.Debug("create window picture failed", "window", w.String(), "error", err)
			e.freePixmap(pixmap)
			return false
		}
		w.Pixmap, w.Picture = pixmap, pict
	}
	if w.Mode != registry.ModeOpaque || w.Shadow.Enabled {
		if w.AlphaPict == 0 || w.AlphaValue != w.Opacity {
			e.releaseAlpha(w)
			// A black picture at the window's opacity masks translucent
			// bodies and tints shadows.
			pict, err := e.backend.SolidPicture(0, 0, 0, w.Opacity)
			if err != nil {
				e.logger.Warn("create alpha picture failed", "window", w.String(), "error", err)
				return false
			}
			w.AlphaPict, w.AlphaValue = pict, w.Opacity
		}
	}
	return true
}

func (e *Engine) paintShadow(w *registry.Window) error {
	if !w.Shadow.Enabled {
		return nil
	}
	outer := w.Outer()
	e.extentsOf(w)
	// The mask grows the body by the radius on every side, which is the
	// shadow size extentsOf computed.
	key := shadow.KeyFor(e.opts.Shadow.Radius, e.opts.Shadow.Opacity, outer.Width, outer.Height)
	if !w.Shadow.Held || w.Shadow.Key != key {
		e.releaseShadow(w)
		pict, err := e.shadows.Acquire(key)
		if err != nil {
			return e.fatal("render shadow", err)
		}
		w.Shadow.Picture, w.Shadow.Key, w.Shadow.Held = pict, key, true
	}
	rect := w.Shadow.Rect(outer.X, outer.Y)
	clip := w.Clip.IntersectRect(rect)
	if e.opts.Shadow.ClearUnderBody && w.Mode != registry.ModeOpaque {
		clip = clip.Subtract(e.borderShapeOf(w))
	}
	if clip.Empty() {
		return nil
	}
	e.composite(w, platform.Composite{
		Op:   platform.OpOver,
		Src:  w.AlphaPict,
		Mask: w.Shadow.Picture,
		Dst:  rect,
		Clip: clip,
	})
	return nil
}

// bodyRect is where w's picture lands on screen. A picture made on the
// window itself, when its pixmap could not be named, starts inside the
// border.
func bodyRect(w *registry.Window) geom.Rect {
	if w.Pixmap == 0 {
		b := w.BorderWidth
		return geom.R(w.Geometry.X+b, w.Geometry.Y+b, w.Geometry.Width, w.Geometry.Height)
	}
	return w.Outer()
}

// composite draws part of one window. Failures are races with the window
// going away and only cost this frame's pixels.
func (e *Engine) composite(w *registry.Window, c platform.Composite) {
	if err := e.backend.Composite(c); err != nil {
		e.logger.Debug("composite failed", "window", w.String(), "op", c.Op.String(), "error", err)
	}
}

func (e *Engine) ensureRootTile() error {
	if e.rootTile != 0 {
		return nil
	}
	pict, err := e.backend.RootTile(e.opts.Background)
	if err != nil {
		return e.fatal("create root tile", err)
	}
	e.rootTile = pict
	return nil
}
