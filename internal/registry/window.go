package registry

import (
	"fmt"

	"github.com/1broseidon/shade/internal/geom"
	"github.com/1broseidon/shade/internal/platform"
	"github.com/1broseidon/shade/internal/shadow"
	"github.com/1broseidon/shade/internal/wintype"
)

// Mode is how a window body is blended.
type Mode int

const (
	ModeOpaque Mode = iota
	ModeTranslucent
	ModeAlpha
)

func (m Mode) String() string {
	switch m {
	case ModeOpaque:
		return "opaque"
	case ModeTranslucent:
		return "translucent"
	case ModeAlpha:
		return "alpha"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// State is a window's position in its lifecycle.
type State int

const (
	StateUnmapped State = iota
	StateMapping
	StateMapped
	StateUnmapping
	StateDestroying
)

func (s State) String() string {
	switch s {
	case StateUnmapped:
		return "unmapped"
	case StateMapping:
		return "mapping"
	case StateMapped:
		return "mapped"
	case StateUnmapping:
		return "unmapping"
	case StateDestroying:
		return "destroying"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Visible reports whether a window in state s is drawn.
func (s State) Visible() bool {
	return s == StateMapping || s == StateMapped || s == StateUnmapping || s == StateDestroying
}

// Shadow is the per-window drop-shadow state.
type Shadow struct {
	Enabled bool
	// Offset and size of the shadow relative to the window's outer
	// top-left corner.
	DX, DY        int
	Width, Height int
	// Picture is held from the shadow cache under Key while Held is set.
	Picture platform.Picture
	Key     shadow.Key
	Held    bool
}

// Rect returns the shadow's screen rectangle for a window whose outer
// top-left corner is at (x, y).
func (s Shadow) Rect(x, y int) geom.Rect {
	return geom.R(x+s.DX, y+s.DY, s.Width, s.Height)
}

// Window is one tracked top-level window. It is owned by the Registry;
// pointers returned by lookups stay valid until the window is removed.
type Window struct {
	ID     platform.WindowID
	Client platform.WindowID
	Handle Handle

	Geometry         geom.Rect
	BorderWidth      int
	OverrideRedirect bool
	InputOnly        bool
	HasAlpha         bool
	Frame            platform.Extents
	// WatchedClient is the client below the frame whose property changes
	// are selected, zero when none is.
	WatchedClient    platform.WindowID

	Pixmap     platform.Pixmap
	Picture    platform.Picture
	AlphaPict  platform.Picture
	AlphaValue float64
	Damage     platform.Damage

	Mode Mode
	// Opacity is the value drawn this frame, moved by fades.
	Opacity float64
	// TargetOpacity is where the window rests once no fade runs, taken
	// from the opacity property or the per-type rule.
	TargetOpacity float64
	// PropOpacity is the _NET_WM_WINDOW_OPACITY value; HasPropOpacity
	// is false when the property is unset.
	PropOpacity    float64
	HasPropOpacity bool
	Type           wintype.Type
	Fade           bool
	Shadow         Shadow

	// Cached regions, recomputed when their Valid flag is cleared.
	Extents      geom.Region
	BorderShape  geom.Region
	Clip         geom.Region
	ExtentsValid bool
	ShapeValid   bool
	// Painted is cleared whenever the window's extents change, and set
	// once the window has been drawn since.
	Painted bool
	// DamageSeq counts damage notifications received.
	DamageSeq uint64

	State     State
	Destroyed bool
}

// Outer returns the window's screen rectangle including its border.
func (w *Window) Outer() geom.Rect {
	b := w.BorderWidth
	return geom.R(w.Geometry.X, w.Geometry.Y, w.Geometry.Width+2*b, w.Geometry.Height+2*b)
}

// Invalidate drops the cached extents and border shape.
func (w *Window) Invalidate() {
	w.ExtentsValid = false
	w.ShapeValid = false
	w.Painted = false
}

func (w *Window) String() string {
	return fmt.Sprintf("0x%x", uint32(w.ID))
}
