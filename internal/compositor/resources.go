package compositor

import (
	"github.com/1broseidon/shade/internal/ignore"
	"github.com/1broseidon/shade/internal/platform"
	"github.com/1broseidon/shade/internal/registry"
	"github.com/1broseidon/shade/internal/shadow"
)

// Every release below records its request in the ledger: the server may
// already have freed the resource along with its window, and the error it
// sends back is expected.

func (e *Engine) freePicture(p platform.Picture) {
	if p == 0 {
		return
	}
	e.ledger.Record(ignore.Picture, uint64(e.backend.FreePicture(p)))
}

func (e *Engine) freePixmap(p platform.Pixmap) {
	if p == 0 {
		return
	}
	e.ledger.Record(ignore.Pixmap, uint64(e.backend.FreePixmap(p)))
}

func (e *Engine) destroyDamage(d platform.Damage) {
	if d == 0 {
		return
	}
	e.ledger.Record(ignore.Damage, uint64(e.backend.DestroyDamage(d)))
}

func (e *Engine) unwatch(id platform.WindowID) {
	e.ledger.Record(ignore.Window, uint64(e.backend.Unwatch(id)))
}

// releaseContents frees the window's pixmap and the pictures drawn from
// it. They are recreated on the next paint.
func (e *Engine) releaseContents(w *registry.Window) {
	e.freePicture(w.Picture)
	w.Picture = 0
	e.freePixmap(w.Pixmap)
	w.Pixmap = 0
}

func (e *Engine) releaseAlpha(w *registry.Window) {
	e.freePicture(w.AlphaPict)
	w.AlphaPict = 0
}

func (e *Engine) releaseShadow(w *registry.Window) {
	if w.Shadow.Held {
		e.shadows.Release(w.Shadow.Key)
	}
	w.Shadow.Held = false
	w.Shadow.Picture = 0
	w.Shadow.Key = shadow.Key{}
}

// releaseSurfaces frees everything a window needs only while visible.
func (e *Engine) releaseSurfaces(w *registry.Window) {
	e.releaseContents(w)
	e.releaseAlpha(w)
	e.releaseShadow(w)
}

func (e *Engine) dropRootTile() {
	e.freePicture(e.rootTile)
	e.rootTile = 0
}

// teardown is the single release path for a window leaving the registry,
// whether its exit fade finished, it was destroyed without one, or the
// engine is shutting down.
type teardown Engine

func (t *teardown) Release(w *registry.Window) {
	e := (*Engine)(t)
	if w.State.Visible() && w.ExtentsValid {
		e.AddDamage(w.Extents)
	}
	e.releaseSurfaces(w)
	e.destroyDamage(w.Damage)
	w.Damage = 0
}
