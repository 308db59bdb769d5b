package platform

import (
	"image"

	"github.com/1broseidon/shade/internal/geom"
)

// WindowID is a platform-neutral window identifier.
type WindowID uint32

// Pixmap is an off-screen pixel surface holding a redirected window's
// contents.
type Pixmap uint32

// Picture is a compositing handle: a surface prepared for alpha-blended
// drawing.
type Picture uint32

// Damage is a per-window damage tracking object.
type Damage uint32

// Sequence is a request sequence number, widened so it never wraps during
// the life of a connection.
type Sequence uint64

// Extents are decoration sizes around a client window.
type Extents struct {
	Left   int
	Right  int
	Top    int
	Bottom int
}

// Attributes is the subset of window state the compositor tracks.
type Attributes struct {
	// Geometry is the position and inner size, excluding the border.
	Geometry         geom.Rect
	BorderWidth      int
	OverrideRedirect bool
	// Viewable is true when the window and all its ancestors are mapped.
	Viewable  bool
	InputOnly bool
	// HasAlpha is true when the window's visual carries an alpha channel.
	HasAlpha bool
}

// Op selects how a source is blended onto the back buffer.
type Op int

const (
	// OpSrc replaces destination pixels.
	OpSrc Op = iota
	// OpOver blends the source over the destination.
	OpOver
)

func (o Op) String() string {
	if o == OpSrc {
		return "src"
	}
	return "over"
}

// Composite describes one blend onto the back buffer. Src and Mask are
// sampled from their own origins, aligned with the top-left corner of Dst.
// Repeating pictures (solid colours, alpha values, tiles) cover Dst
// entirely. Only pixels inside both Dst and Clip are touched.
type Composite struct {
	Op   Op
	Src  Picture
	Mask Picture
	Dst  geom.Rect
	Clip geom.Region
}

// Backend is the binding layer between the compositor and a display
// server. All methods are called from the compositor's single loop.
//
// Methods that release a resource return the sequence of the request they
// issued, so the caller can record it in its ignore ledger before the
// server reports the resource as already gone.
type Backend interface {
	Root() WindowID
	ScreenSize() (width, height int)

	// Stack returns the top-level windows from bottom to top.
	Stack() ([]WindowID, error)
	Attributes(w WindowID) (Attributes, error)
	Parent(w WindowID) (WindowID, error)
	// Children returns w's children from bottom to top.
	Children(w WindowID) ([]WindowID, error)
	// IsClient reports whether w carries WM_STATE.
	IsClient(w WindowID) bool
	// WindowTypes returns the _NET_WM_WINDOW_TYPE atom names set on w.
	WindowTypes(w WindowID) ([]string, error)
	// Opacity returns _NET_WM_WINDOW_OPACITY scaled to [0,1].
	Opacity(w WindowID) (float64, bool)
	// FrameExtents returns _NET_FRAME_EXTENTS.
	FrameExtents(w WindowID) (Extents, bool)
	// BoundingShape returns w's bounding region relative to its outer
	// top-left corner, border included.
	BoundingShape(w WindowID) (geom.Region, error)
	// Watch subscribes to property and shape changes on w.
	Watch(w WindowID) error
	Unwatch(w WindowID) Sequence

	NameWindowPixmap(w WindowID) (Pixmap, error)
	FreePixmap(p Pixmap) Sequence
	// CreatePicture wraps p, or w directly when p is zero.
	CreatePicture(w WindowID, p Pixmap) (Picture, error)
	FreePicture(p Picture) Sequence
	CreateDamage(w WindowID) (Damage, error)
	DestroyDamage(d Damage) Sequence
	// FetchDamage returns and clears the damaged area of d, relative to
	// the window's inner origin.
	FetchDamage(d Damage) (geom.Region, Sequence, error)

	// SolidPicture returns a repeating picture of one colour.
	SolidPicture(r, g, b, a float64) (Picture, error)
	// MaskPicture uploads an alpha mask.
	MaskPicture(mask *image.Alpha) (Picture, error)
	// RootTile returns a repeating picture of the desktop background,
	// falling back to fallback when no background pixmap is set.
	RootTile(fallback [3]uint8) (Picture, error)

	Composite(c Composite) error
	// Present copies clip from the back buffer to the screen.
	Present(clip geom.Region) error
	ResizeBuffer(width, height int) error
	Flush() error

	// Events delivers protocol events and asynchronous errors. The channel
	// is closed when the connection ends.
	Events() <-chan Event
	Close()
}
