package platform

import (
	"fmt"

	"github.com/1broseidon/shade/internal/geom"
	"github.com/1broseidon/shade/internal/ignore"
)

// Event is a protocol notification or asynchronous error. Seq is the
// sequence number of the last request the server had processed when the
// event was generated.
type Event interface {
	Seq() Sequence
}

// Header carries the fields shared by every event.
type Header struct {
	Sequence Sequence
}

func (h Header) Seq() Sequence { return h.Sequence }

// Place is where a circulated window ends up.
type Place int

const (
	PlaceOnTop Place = iota
	PlaceOnBottom
)

type CreateEvent struct {
	Header
	Window           WindowID
	Parent           WindowID
	Geometry         geom.Rect
	BorderWidth      int
	OverrideRedirect bool
}

type DestroyEvent struct {
	Header
	Window WindowID
}

type MapEvent struct {
	Header
	Window WindowID
}

type UnmapEvent struct {
	Header
	Window WindowID
}

type ReparentEvent struct {
	Header
	Window WindowID
	Parent WindowID
	X, Y   int
}

// ConfigureEvent reports new geometry. Above is the sibling the window now
// sits directly above, or zero when it is at the bottom.
type ConfigureEvent struct {
	Header
	Window           WindowID
	Above            WindowID
	Geometry         geom.Rect
	BorderWidth      int
	OverrideRedirect bool
}

type CirculateEvent struct {
	Header
	Window WindowID
	Place  Place
}

// ExposeEvent reports one exposed rectangle of w. More is set while the
// server has further rectangles of the same exposure queued.
type ExposeEvent struct {
	Header
	Window WindowID
	Rect   geom.Rect
	More   bool
}

type PropertyEvent struct {
	Header
	Window WindowID
	Atom   string
}

type DamageEvent struct {
	Header
	Window WindowID
	Damage Damage
}

type ShapeEvent struct {
	Header
	Window WindowID
}

// ErrorEvent is an asynchronous protocol error. Class is the kind of
// resource the failing request referred to, or ignore.None when the
// error does not name one.
type ErrorEvent struct {
	Header
	Class ignore.Class
	Name  string
	BadID uint32
}

func (e ErrorEvent) Error() string {
	return fmt.Sprintf("%s (seq %d, id 0x%x)", e.Name, e.Sequence, e.BadID)
}
