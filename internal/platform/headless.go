package platform

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"slices"

	"golang.org/x/image/draw"

	"github.com/1broseidon/shade/internal/geom"
	"github.com/1broseidon/shade/internal/ignore"
)

const headlessRoot WindowID = 1

var errHeadlessGone = errors.New("resource does not exist")

// WindowSpec describes a window created on a Headless display.
type WindowSpec struct {
	// ID is assigned automatically when zero.
	ID               WindowID
	Parent           WindowID
	Geometry         geom.Rect
	BorderWidth      int
	OverrideRedirect bool
	InputOnly        bool
	HasAlpha         bool
	// Color fills the window, border included. It is premultiplied.
	Color color.RGBA
	// Client marks the window as carrying WM_STATE.
	Client bool
	Types  []string
}

type headlessWindow struct {
	id       WindowID
	parent   WindowID
	children []WindowID
	attrs    Attributes
	mapped   bool
	client   bool
	types    []string
	opacity  *float64
	frame    *Extents
	shape    *geom.Region
	watched  bool
	content  *image.RGBA
	color    color.RGBA
}

type headlessPicture struct {
	img image.Image
	// win is set for pictures created directly on a window; they stop
	// working when the window goes away.
	win WindowID
}

type headlessDamage struct {
	win    WindowID
	region geom.Region
}

// Headless is an in-memory display server with software compositing. It
// implements Backend for tests and offline trace replay, and offers a
// scripting API that mutates the window tree and queues the events a real
// server would send to a compositor watching the root window.
//
// Headless is not safe for concurrent use.
type Headless struct {
	width, height int
	seq           Sequence
	nextID        uint32

	windows  map[WindowID]*headlessWindow
	pixmaps  map[Pixmap]*image.RGBA
	pictures map[Picture]*headlessPicture
	damages  map[Damage]*headlessDamage

	rootColor *color.RGBA
	back      *image.RGBA
	front     *image.RGBA
	events    chan Event
	closed    bool

	// Composites counts Composite calls, for tests that check pruning.
	Composites     int
	// NoNamedPixmaps makes NameWindowPixmap fail, as on servers without
	// composite 0.2.
	NoNamedPixmaps bool
}

var _ Backend = (*Headless)(nil)

// NewHeadless returns a display of the given size with an empty root.
func NewHeadless(width, height int) *Headless {
	h := &Headless{
		width:    width,
		height:   height,
		nextID:   0x200000,
		windows:  make(map[WindowID]*headlessWindow),
		pixmaps:  make(map[Pixmap]*image.RGBA),
		pictures: make(map[Picture]*headlessPicture),
		damages:  make(map[Damage]*headlessDamage),
		back:     image.NewRGBA(image.Rect(0, 0, width, height)),
		front:    image.NewRGBA(image.Rect(0, 0, width, height)),
		events:   make(chan Event, 1<<14),
	}
	h.windows[headlessRoot] = &headlessWindow{
		id:     headlessRoot,
		attrs:  Attributes{Geometry: geom.R(0, 0, width, height), Viewable: true},
		mapped: true,
	}
	return h
}

// Front returns the image last presented to the screen.
func (h *Headless) Front() *image.RGBA { return h.front }

// Pixel returns the presented colour at (x, y).
func (h *Headless) Pixel(x, y int) color.RGBA { return h.front.RGBAAt(x, y) }

func (h *Headless) request() Sequence {
	h.seq++
	return h.seq
}

func (h *Headless) emit(ev Event) {
	if h.closed {
		return
	}
	select {
	case h.events <- ev:
	default:
	}
}

func (h *Headless) header() Header { return Header{Sequence: h.seq} }

func (h *Headless) fail(seq Sequence, class ignore.Class, name string, id uint32) {
	h.emit(ErrorEvent{Header: Header{Sequence: seq}, Class: class, Name: name, BadID: id})
}

func (h *Headless) alloc() uint32 {
	h.nextID++
	return h.nextID
}

// Scripting API.

// CreateWindow adds a window and returns its id.
func (h *Headless) CreateWindow(spec WindowSpec) WindowID {
	id := spec.ID
	if id == 0 {
		id = WindowID(h.alloc())
	}
	parent := spec.Parent
	if parent == 0 {
		parent = headlessRoot
	}
	w := &headlessWindow{
		id:     id,
		parent: parent,
		attrs: Attributes{
			Geometry:         spec.Geometry,
			BorderWidth:      spec.BorderWidth,
			OverrideRedirect: spec.OverrideRedirect,
			InputOnly:        spec.InputOnly,
			HasAlpha:         spec.HasAlpha,
		},
		client: spec.Client,
		types:  slices.Clone(spec.Types),
		color:  spec.Color,
	}
	w.content = h.newContent(w)
	h.windows[id] = w
	if p, ok := h.windows[parent]; ok {
		p.children = append(p.children, id)
	}

	h.request()
	if parent == headlessRoot {
		h.emit(CreateEvent{
			Header:           h.header(),
			Window:           id,
			Parent:           parent,
			Geometry:         spec.Geometry,
			BorderWidth:      spec.BorderWidth,
			OverrideRedirect: spec.OverrideRedirect,
		})
	}
	return id
}

func (h *Headless) newContent(w *headlessWindow) *image.RGBA {
	b := w.attrs.BorderWidth
	g := w.attrs.Geometry
	img := image.NewRGBA(image.Rect(0, 0, max(g.Width+2*b, 0), max(g.Height+2*b, 0)))
	draw.Draw(img, img.Bounds(), image.NewUniform(w.color), image.Point{}, draw.Src)
	return img
}

// MapWindow maps id.
func (h *Headless) MapWindow(id WindowID) {
	w, ok := h.windows[id]
	if !ok || w.mapped {
		return
	}
	w.mapped = true
	h.request()
	if w.parent == headlessRoot {
		h.emit(MapEvent{Header: h.header(), Window: id})
	}
}

// UnmapWindow unmaps id.
func (h *Headless) UnmapWindow(id WindowID) {
	w, ok := h.windows[id]
	if !ok || !w.mapped {
		return
	}
	w.mapped = false
	h.request()
	if w.parent == headlessRoot {
		h.emit(UnmapEvent{Header: h.header(), Window: id})
	}
}

// DestroyWindow destroys id and its descendants. Damage objects and
// pictures bound to destroyed windows go with them; named pixmaps stay.
func (h *Headless) DestroyWindow(id WindowID) {
	w, ok := h.windows[id]
	if !ok || id == headlessRoot {
		return
	}
	if w.mapped {
		h.UnmapWindow(id)
	}
	h.request()
	h.destroyTree(id)
	if p, ok := h.windows[w.parent]; ok {
		p.children = slices.DeleteFunc(p.children, func(c WindowID) bool { return c == id })
	}
	if w.parent == headlessRoot {
		h.emit(DestroyEvent{Header: h.header(), Window: id})
	}
}

func (h *Headless) destroyTree(id WindowID) {
	w, ok := h.windows[id]
	if !ok {
		return
	}
	for _, c := range w.children {
		h.destroyTree(c)
	}
	delete(h.windows, id)
	for d, dmg := range h.damages {
		if dmg.win == id {
			delete(h.damages, d)
		}
	}
	for p, pic := range h.pictures {
		if pic.win == id {
			delete(h.pictures, p)
		}
	}
}

// ConfigureWindow moves or resizes id. Resizing reallocates its contents,
// so previously named pixmaps keep the old image.
func (h *Headless) ConfigureWindow(id WindowID, g geom.Rect, border int) {
	w, ok := h.windows[id]
	if !ok {
		return
	}
	old := w.attrs
	w.attrs.Geometry = g
	w.attrs.BorderWidth = border
	if old.Geometry.Width != g.Width || old.Geometry.Height != g.Height || old.BorderWidth != border {
		w.content = h.newContent(w)
	}
	h.request()
	h.emitConfigure(w)
}

// RestackAbove places id directly above sibling, or at the bottom when
// sibling is zero.
func (h *Headless) RestackAbove(id, sibling WindowID) {
	w, ok := h.windows[id]
	if !ok {
		return
	}
	p := h.windows[w.parent]
	p.children = slices.DeleteFunc(p.children, func(c WindowID) bool { return c == id })
	pos := 0
	if sibling != 0 {
		if i := slices.Index(p.children, sibling); i >= 0 {
			pos = i + 1
		}
	}
	p.children = slices.Insert(p.children, pos, id)
	h.request()
	h.emitConfigure(w)
}

// Raise moves id to the top of its siblings.
func (h *Headless) Raise(id WindowID) {
	w, ok := h.windows[id]
	if !ok {
		return
	}
	siblings := h.windows[w.parent].children
	top := siblings[len(siblings)-1]
	if top == id {
		return
	}
	h.RestackAbove(id, top)
}

// Circulate moves id to the top or bottom and reports it as a circulate
// notification.
func (h *Headless) Circulate(id WindowID, place Place) {
	w, ok := h.windows[id]
	if !ok {
		return
	}
	p := h.windows[w.parent]
	p.children = slices.DeleteFunc(p.children, func(c WindowID) bool { return c == id })
	if place == PlaceOnTop {
		p.children = append(p.children, id)
	} else {
		p.children = slices.Insert(p.children, 0, id)
	}
	h.request()
	if w.parent == headlessRoot {
		h.emit(CirculateEvent{Header: h.header(), Window: id, Place: place})
	}
}

// Reparent moves id under parent at (x, y).
func (h *Headless) Reparent(id, parent WindowID, x, y int) {
	w, ok := h.windows[id]
	np, ok2 := h.windows[parent]
	if !ok || !ok2 {
		return
	}
	old := h.windows[w.parent]
	old.children = slices.DeleteFunc(old.children, func(c WindowID) bool { return c == id })
	np.children = append(np.children, id)
	w.parent = parent
	w.attrs.Geometry.X, w.attrs.Geometry.Y = x, y
	h.request()
	h.emit(ReparentEvent{Header: h.header(), Window: id, Parent: parent, X: x, Y: y})
}

func (h *Headless) emitConfigure(w *headlessWindow) {
	if w.parent != headlessRoot {
		return
	}
	var above WindowID
	siblings := h.windows[headlessRoot].children
	if i := slices.Index(siblings, w.id); i > 0 {
		above = siblings[i-1]
	}
	h.emit(ConfigureEvent{
		Header:           h.header(),
		Window:           w.id,
		Above:            above,
		Geometry:         w.attrs.Geometry,
		BorderWidth:      w.attrs.BorderWidth,
		OverrideRedirect: w.attrs.OverrideRedirect,
	})
}

// Draw fills rect, relative to id's inner origin, with c and reports the
// change to every damage object on id.
func (h *Headless) Draw(id WindowID, rect geom.Rect, c color.RGBA) {
	w, ok := h.windows[id]
	if !ok {
		return
	}
	b := w.attrs.BorderWidth
	r := rect.Translate(b, b)
	draw.Draw(w.content, image.Rect(r.X, r.Y, r.Right(), r.Bottom()), image.NewUniform(c), image.Point{}, draw.Src)
	h.request()
	for d, dmg := range h.damages {
		if dmg.win != id {
			continue
		}
		dmg.region = dmg.region.UnionRect(rect)
		h.emit(DamageEvent{Header: h.header(), Window: id, Damage: d})
	}
}

// setProperty reports a property change to the compositor, which hears
// about the root and the windows it watches.
func (h *Headless) setProperty(id WindowID, atom string) {
	h.request()
	if w, ok := h.windows[id]; ok && (w.watched || id == headlessRoot) {
		h.emit(PropertyEvent{Header: h.header(), Window: id, Atom: atom})
	}
}

// SetOpacity sets _NET_WM_WINDOW_OPACITY on id.
func (h *Headless) SetOpacity(id WindowID, v float64) {
	if w, ok := h.windows[id]; ok {
		w.opacity = &v
		h.setProperty(id, "_NET_WM_WINDOW_OPACITY")
	}
}

// ClearOpacity removes _NET_WM_WINDOW_OPACITY from id.
func (h *Headless) ClearOpacity(id WindowID) {
	if w, ok := h.windows[id]; ok {
		w.opacity = nil
		h.setProperty(id, "_NET_WM_WINDOW_OPACITY")
	}
}

// SetWindowTypes sets _NET_WM_WINDOW_TYPE on id.
func (h *Headless) SetWindowTypes(id WindowID, types ...string) {
	if w, ok := h.windows[id]; ok {
		w.types = slices.Clone(types)
		h.setProperty(id, "_NET_WM_WINDOW_TYPE")
	}
}

// SetFrameExtents sets _NET_FRAME_EXTENTS on id.
func (h *Headless) SetFrameExtents(id WindowID, e Extents) {
	if w, ok := h.windows[id]; ok {
		w.frame = &e
		h.setProperty(id, "_NET_FRAME_EXTENTS")
	}
}

// SetShape sets the bounding shape of id, relative to its outer corner.
func (h *Headless) SetShape(id WindowID, shape geom.Region) {
	w, ok := h.windows[id]
	if !ok {
		return
	}
	w.shape = &shape
	h.request()
	if w.watched {
		h.emit(ShapeEvent{Header: h.header(), Window: id})
	}
}

// SetRootBackground sets the desktop background colour, as a wallpaper
// setter publishing _XROOTPMAP_ID would.
func (h *Headless) SetRootBackground(c color.RGBA) {
	h.rootColor = &c
	h.setProperty(headlessRoot, "_XROOTPMAP_ID")
}

// ResizeScreen changes the root size and reports it.
func (h *Headless) ResizeScreen(width, height int) {
	h.width, h.height = width, height
	root := h.windows[headlessRoot]
	root.attrs.Geometry = geom.R(0, 0, width, height)
	h.request()
	h.emit(ConfigureEvent{Header: h.header(), Window: headlessRoot, Geometry: root.attrs.Geometry})
}

// Expose reports rects of the root as exposed.
func (h *Headless) Expose(rects ...geom.Rect) {
	h.request()
	for i, r := range rects {
		h.emit(ExposeEvent{Header: h.header(), Window: headlessRoot, Rect: r, More: i < len(rects)-1})
	}
}

// Backend implementation.

func (h *Headless) Root() WindowID { return headlessRoot }

func (h *Headless) ScreenSize() (int, int) { return h.width, h.height }

func (h *Headless) Stack() ([]WindowID, error) {
	return slices.Clone(h.windows[headlessRoot].children), nil
}

func (h *Headless) window(id WindowID) (*headlessWindow, error) {
	w, ok := h.windows[id]
	if !ok {
		return nil, fmt.Errorf("window 0x%x: %w", uint32(id), errHeadlessGone)
	}
	return w, nil
}

func (h *Headless) viewable(w *headlessWindow) bool {
	for w != nil {
		if !w.mapped {
			return false
		}
		if w.id == headlessRoot {
			return true
		}
		w = h.windows[w.parent]
	}
	return false
}

func (h *Headless) Attributes(id WindowID) (Attributes, error) {
	h.request()
	w, err := h.window(id)
	if err != nil {
		return Attributes{}, err
	}
	a := w.attrs
	a.Viewable = h.viewable(w)
	return a, nil
}

func (h *Headless) Parent(id WindowID) (WindowID, error) {
	w, err := h.window(id)
	if err != nil {
		return 0, err
	}
	return w.parent, nil
}

func (h *Headless) Children(id WindowID) ([]WindowID, error) {
	w, err := h.window(id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(w.children), nil
}

func (h *Headless) IsClient(id WindowID) bool {
	w, ok := h.windows[id]
	return ok && w.client
}

func (h *Headless) WindowTypes(id WindowID) ([]string, error) {
	w, err := h.window(id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(w.types), nil
}

func (h *Headless) Opacity(id WindowID) (float64, bool) {
	w, ok := h.windows[id]
	if !ok || w.opacity == nil {
		return 0, false
	}
	return *w.opacity, true
}

func (h *Headless) FrameExtents(id WindowID) (Extents, bool) {
	w, ok := h.windows[id]
	if !ok || w.frame == nil {
		return Extents{}, false
	}
	return *w.frame, true
}

func (h *Headless) BoundingShape(id WindowID) (geom.Region, error) {
	w, err := h.window(id)
	if err != nil {
		return geom.Region{}, err
	}
	if w.shape != nil {
		return *w.shape, nil
	}
	b := w.attrs.BorderWidth
	return geom.NewRegion(geom.R(0, 0, w.attrs.Geometry.Width+2*b, w.attrs.Geometry.Height+2*b)), nil
}

func (h *Headless) Watch(id WindowID) error {
	h.request()
	w, err := h.window(id)
	if err != nil {
		return err
	}
	w.watched = true
	return nil
}

func (h *Headless) Unwatch(id WindowID) Sequence {
	seq := h.request()
	w, ok := h.windows[id]
	if !ok {
		h.fail(seq, ignore.Window, "BadWindow", uint32(id))
		return seq
	}
	w.watched = false
	return seq
}

func (h *Headless) NameWindowPixmap(id WindowID) (Pixmap, error) {
	h.request()
	w, err := h.window(id)
	if err != nil {
		return 0, err
	}
	if !h.viewable(w) {
		return 0, fmt.Errorf("name pixmap of unviewable window 0x%x", uint32(id))
	}
	if h.NoNamedPixmaps {
		return 0, fmt.Errorf("name pixmap of window 0x%x: not supported", uint32(id))
	}
	p := Pixmap(h.alloc())
	h.pixmaps[p] = w.content
	return p, nil
}

func (h *Headless) FreePixmap(p Pixmap) Sequence {
	seq := h.request()
	if _, ok := h.pixmaps[p]; !ok {
		h.fail(seq, ignore.Pixmap, "BadPixmap", uint32(p))
		return seq
	}
	delete(h.pixmaps, p)
	return seq
}

func (h *Headless) CreatePicture(id WindowID, p Pixmap) (Picture, error) {
	h.request()
	pic := &headlessPicture{}
	if p != 0 {
		img, ok := h.pixmaps[p]
		if !ok {
			return 0, fmt.Errorf("pixmap 0x%x: %w", uint32(p), errHeadlessGone)
		}
		pic.img = img
	} else {
		w, err := h.window(id)
		if err != nil {
			return 0, err
		}
		// A window picture covers the inside of the border only.
		b := w.attrs.BorderWidth
		inner := image.Rect(b, b, b+w.attrs.Geometry.Width, b+w.attrs.Geometry.Height)
		pic.img, pic.win = w.content.SubImage(inner), id
	}
	handle := Picture(h.alloc())
	h.pictures[handle] = pic
	return handle, nil
}

func (h *Headless) FreePicture(p Picture) Sequence {
	seq := h.request()
	if _, ok := h.pictures[p]; !ok {
		h.fail(seq, ignore.Picture, "BadPicture", uint32(p))
		return seq
	}
	delete(h.pictures, p)
	return seq
}

func (h *Headless) CreateDamage(id WindowID) (Damage, error) {
	h.request()
	if _, err := h.window(id); err != nil {
		return 0, err
	}
	d := Damage(h.alloc())
	h.damages[d] = &headlessDamage{win: id}
	return d, nil
}

func (h *Headless) DestroyDamage(d Damage) Sequence {
	seq := h.request()
	if _, ok := h.damages[d]; !ok {
		h.fail(seq, ignore.Damage, "BadDamage", uint32(d))
		return seq
	}
	delete(h.damages, d)
	return seq
}

func (h *Headless) FetchDamage(d Damage) (geom.Region, Sequence, error) {
	seq := h.request()
	dmg, ok := h.damages[d]
	if !ok {
		h.fail(seq, ignore.Damage, "BadDamage", uint32(d))
		return geom.Region{}, seq, nil
	}
	r := dmg.region
	dmg.region = geom.Region{}
	return r, seq, nil
}

func premultiply(v, a float64) uint8 {
	return uint8(v*a*255 + 0.5)
}

func (h *Headless) SolidPicture(r, g, b, a float64) (Picture, error) {
	h.request()
	c := color.RGBA{R: premultiply(r, a), G: premultiply(g, a), B: premultiply(b, a), A: uint8(a*255 + 0.5)}
	p := Picture(h.alloc())
	h.pictures[p] = &headlessPicture{img: image.NewUniform(c)}
	return p, nil
}

func (h *Headless) MaskPicture(mask *image.Alpha) (Picture, error) {
	h.request()
	p := Picture(h.alloc())
	h.pictures[p] = &headlessPicture{img: mask}
	return p, nil
}

func (h *Headless) RootTile(fallback [3]uint8) (Picture, error) {
	c := color.RGBA{R: fallback[0], G: fallback[1], B: fallback[2], A: 0xff}
	if h.rootColor != nil {
		c = *h.rootColor
	}
	h.request()
	p := Picture(h.alloc())
	h.pictures[p] = &headlessPicture{img: image.NewUniform(c)}
	return p, nil
}

func (h *Headless) picture(p Picture) (*headlessPicture, error) {
	pic, ok := h.pictures[p]
	if !ok {
		return nil, fmt.Errorf("picture 0x%x: %w", uint32(p), errHeadlessGone)
	}
	return pic, nil
}

func (h *Headless) Composite(c Composite) error {
	h.request()
	h.Composites++
	src, err := h.picture(c.Src)
	if err != nil {
		return err
	}
	var mask image.Image
	if c.Mask != 0 {
		m, err := h.picture(c.Mask)
		if err != nil {
			return err
		}
		mask = m.img
	}

	op := draw.Over
	if c.Op == OpSrc {
		op = draw.Src
	}
	screen := geom.R(0, 0, h.width, h.height)
	for _, r := range c.Clip.IntersectRect(c.Dst.Intersect(screen)).Rects() {
		dr := image.Rect(r.X, r.Y, r.Right(), r.Bottom())
		off := image.Pt(r.X-c.Dst.X, r.Y-c.Dst.Y)
		sp := src.img.Bounds().Min.Add(off)
		if mask == nil {
			draw.Draw(h.back, dr, src.img, sp, op)
			continue
		}
		draw.DrawMask(h.back, dr, src.img, sp, mask, mask.Bounds().Min.Add(off), op)
	}
	return nil
}

func (h *Headless) Present(clip geom.Region) error {
	h.request()
	for _, r := range clip.IntersectRect(geom.R(0, 0, h.width, h.height)).Rects() {
		dr := image.Rect(r.X, r.Y, r.Right(), r.Bottom())
		draw.Draw(h.front, dr, h.back, dr.Min, draw.Src)
	}
	return nil
}

func (h *Headless) ResizeBuffer(width, height int) error {
	resize := func(old *image.RGBA) *image.RGBA {
		img := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.Draw(img, img.Bounds(), old, image.Point{}, draw.Src)
		return img
	}
	h.back = resize(h.back)
	h.front = resize(h.front)
	return nil
}

func (h *Headless) Flush() error { return nil }

func (h *Headless) Events() <-chan Event { return h.events }

// Close ends the session: the event channel is closed and later
// scripting calls queue nothing.
func (h *Headless) Close() {
	if !h.closed {
		h.closed = true
		close(h.events)
	}
}
