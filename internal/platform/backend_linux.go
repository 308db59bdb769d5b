//go:build linux

package platform

import (
	"fmt"
	"image"
	"math"

	"github.com/1broseidon/shade/internal/geom"
	"github.com/1broseidon/shade/internal/ignore"
	"github.com/1broseidon/shade/internal/x11"
	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/damage"
	"github.com/BurntSushi/xgb/render"
	"github.com/BurntSushi/xgb/shape"
	"github.com/BurntSushi/xgb/xfixes"
	"github.com/BurntSushi/xgb/xproto"
)

// maxPutImage bounds the pixel data of one PutImage request, within the
// smallest request size every server accepts.
const maxPutImage = 256*1024 - 64

// LinuxBackend drives an X server through Composite, Damage, XFixes and
// Render. Windows are redirected off-screen and painted into a back
// buffer that Present copies onto the root window.
type LinuxBackend struct {
	conn    *x11.Connection
	formats *x11.Formats
	events  chan Event

	rootFormat render.Pictformat
	rootPict   render.Picture
	buffer     xproto.Pixmap
	bufferPict render.Picture
	width      int
	height     int

	// scratch receives the parts fetched from damage objects.
	scratch xfixes.Region
}

var _ Backend = (*LinuxBackend)(nil)

// OpenLinux connects to display, takes the compositing manager selection
// and redirects the screen. The server keeps the redirection until the
// connection closes.
func OpenLinux(display string) (*LinuxBackend, error) {
	conn, err := x11.NewConnection(display)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X11: %w", err)
	}
	b, err := newLinuxBackend(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return b, nil
}

func newLinuxBackend(conn *x11.Connection) (*LinuxBackend, error) {
	if err := conn.Claim(); err != nil {
		return nil, err
	}
	formats, err := conn.QueryFormats()
	if err != nil {
		return nil, err
	}
	rootFormat, ok := formats.ForVisual(conn.Screen.RootVisual)
	if !ok {
		return nil, fmt.Errorf("no picture format for the root visual")
	}

	b := &LinuxBackend{
		conn:       conn,
		formats:    formats,
		events:     make(chan Event, 1024),
		rootFormat: rootFormat,
		width:      int(conn.Screen.WidthInPixels),
		height:     int(conn.Screen.HeightInPixels),
	}

	if err := conn.Redirect(); err != nil {
		return nil, err
	}
	x := conn.Conn()
	if b.rootPict, err = render.NewPictureId(x); err != nil {
		return nil, err
	}
	err = render.CreatePictureChecked(x, b.rootPict, xproto.Drawable(conn.Root), rootFormat,
		render.CpSubwindowMode, []uint32{xproto.SubwindowModeIncludeInferiors}).Check()
	if err != nil {
		return nil, fmt.Errorf("create root picture: %w", err)
	}
	if b.scratch, err = xfixes.NewRegionId(x); err != nil {
		return nil, err
	}
	xfixes.CreateRegion(x, b.scratch, nil)
	if err := b.ResizeBuffer(b.width, b.height); err != nil {
		return nil, err
	}

	go b.translate(conn.Pump(1024))
	return b, nil
}

func (b *LinuxBackend) x() *xgb.Conn { return b.conn.Conn() }

func (b *LinuxBackend) seq(s uint16) Sequence {
	return Sequence(b.conn.Extend(s))
}

func (b *LinuxBackend) Root() WindowID { return WindowID(b.conn.Root) }

func (b *LinuxBackend) ScreenSize() (int, int) { return b.width, b.height }

func (b *LinuxBackend) Stack() ([]WindowID, error) {
	return b.Children(b.Root())
}

func (b *LinuxBackend) Attributes(w WindowID) (Attributes, error) {
	attrs, err := xproto.GetWindowAttributes(b.x(), xproto.Window(w)).Reply()
	if err != nil {
		return Attributes{}, err
	}
	g, err := xproto.GetGeometry(b.x(), xproto.Drawable(w)).Reply()
	if err != nil {
		return Attributes{}, err
	}
	inputOnly := attrs.Class == xproto.WindowClassInputOnly
	return Attributes{
		Geometry:         geom.R(int(g.X), int(g.Y), int(g.Width), int(g.Height)),
		BorderWidth:      int(g.BorderWidth),
		OverrideRedirect: attrs.OverrideRedirect,
		Viewable:         attrs.MapState == xproto.MapStateViewable,
		InputOnly:        inputOnly,
		HasAlpha:         !inputOnly && b.formats.HasAlpha(attrs.Visual),
	}, nil
}

func (b *LinuxBackend) Parent(w WindowID) (WindowID, error) {
	tree, err := xproto.QueryTree(b.x(), xproto.Window(w)).Reply()
	if err != nil {
		return 0, err
	}
	return WindowID(tree.Parent), nil
}

func (b *LinuxBackend) Children(w WindowID) ([]WindowID, error) {
	tree, err := xproto.QueryTree(b.x(), xproto.Window(w)).Reply()
	if err != nil {
		return nil, err
	}
	ids := make([]WindowID, len(tree.Children))
	for i, c := range tree.Children {
		ids[i] = WindowID(c)
	}
	return ids, nil
}

func (b *LinuxBackend) IsClient(w WindowID) bool {
	return b.conn.HasWMState(xproto.Window(w))
}

func (b *LinuxBackend) WindowTypes(w WindowID) ([]string, error) {
	return b.conn.WindowTypes(xproto.Window(w))
}

func (b *LinuxBackend) Opacity(w WindowID) (float64, bool) {
	return b.conn.Opacity(xproto.Window(w))
}

func (b *LinuxBackend) FrameExtents(w WindowID) (Extents, bool) {
	l, r, t, bo, ok := b.conn.GetFrameExtents(xproto.Window(w))
	if !ok {
		return Extents{}, false
	}
	return Extents{Left: l, Right: r, Top: t, Bottom: bo}, true
}

// BoundingShape queries the SHAPE bounding rectangles, which the server
// reports relative to the inner origin.
func (b *LinuxBackend) BoundingShape(w WindowID) (geom.Region, error) {
	g, err := xproto.GetGeometry(b.x(), xproto.Drawable(w)).Reply()
	if err != nil {
		return geom.Region{}, err
	}
	bw := int(g.BorderWidth)
	outer := geom.R(0, 0, int(g.Width)+2*bw, int(g.Height)+2*bw)
	if !b.conn.HasShape {
		return geom.NewRegion(outer), nil
	}
	reply, err := shape.GetRectangles(b.x(), xproto.Window(w), shape.SkBounding).Reply()
	if err != nil {
		return geom.Region{}, err
	}
	return fromRectangles(reply.Rectangles).Translate(bw, bw), nil
}

func (b *LinuxBackend) Watch(w WindowID) error {
	err := xproto.ChangeWindowAttributesChecked(b.x(), xproto.Window(w),
		xproto.CwEventMask, []uint32{xproto.EventMaskPropertyChange}).Check()
	if err != nil {
		return err
	}
	if b.conn.HasShape {
		shape.SelectInput(b.x(), xproto.Window(w), true)
	}
	return nil
}

func (b *LinuxBackend) Unwatch(w WindowID) Sequence {
	c := xproto.ChangeWindowAttributes(b.x(), xproto.Window(w), xproto.CwEventMask, []uint32{0})
	last := c.Sequence
	if b.conn.HasShape {
		last = shape.SelectInput(b.x(), xproto.Window(w), false).Sequence
	}
	return b.seq(last)
}

func (b *LinuxBackend) NameWindowPixmap(w WindowID) (Pixmap, error) {
	pid, err := xproto.NewPixmapId(b.x())
	if err != nil {
		return 0, err
	}
	if err := composite.NameWindowPixmapChecked(b.x(), xproto.Window(w), pid).Check(); err != nil {
		return 0, err
	}
	return Pixmap(pid), nil
}

func (b *LinuxBackend) FreePixmap(p Pixmap) Sequence {
	return b.seq(xproto.FreePixmap(b.x(), xproto.Pixmap(p)).Sequence)
}

func (b *LinuxBackend) CreatePicture(w WindowID, p Pixmap) (Picture, error) {
	attrs, err := xproto.GetWindowAttributes(b.x(), xproto.Window(w)).Reply()
	if err != nil {
		return 0, err
	}
	format, ok := b.formats.ForVisual(attrs.Visual)
	if !ok {
		return 0, fmt.Errorf("no picture format for visual 0x%x", uint32(attrs.Visual))
	}
	drawable := xproto.Drawable(w)
	if p != 0 {
		drawable = xproto.Drawable(p)
	}
	pid, err := render.NewPictureId(b.x())
	if err != nil {
		return 0, err
	}
	err = render.CreatePictureChecked(b.x(), pid, drawable, format,
		render.CpSubwindowMode, []uint32{xproto.SubwindowModeIncludeInferiors}).Check()
	if err != nil {
		return 0, err
	}
	return Picture(pid), nil
}

func (b *LinuxBackend) FreePicture(p Picture) Sequence {
	return b.seq(render.FreePicture(b.x(), render.Picture(p)).Sequence)
}

func (b *LinuxBackend) CreateDamage(w WindowID) (Damage, error) {
	did, err := damage.NewDamageId(b.x())
	if err != nil {
		return 0, err
	}
	err = damage.CreateChecked(b.x(), did, xproto.Drawable(w), damage.ReportLevelNonEmpty).Check()
	if err != nil {
		return 0, err
	}
	return Damage(did), nil
}

func (b *LinuxBackend) DestroyDamage(d Damage) Sequence {
	return b.seq(damage.Destroy(b.x(), damage.Damage(d)).Sequence)
}

func (b *LinuxBackend) FetchDamage(d Damage) (geom.Region, Sequence, error) {
	c := damage.Subtract(b.x(), damage.Damage(d), 0, b.scratch)
	seq := b.seq(c.Sequence)
	reply, err := xfixes.FetchRegion(b.x(), b.scratch).Reply()
	if err != nil {
		return geom.Region{}, seq, err
	}
	return fromRectangles(reply.Rectangles), seq, nil
}

func (b *LinuxBackend) SolidPicture(r, g, bl, a float64) (Picture, error) {
	pid, err := render.NewPictureId(b.x())
	if err != nil {
		return 0, err
	}
	// Render colours are premultiplied.
	c := render.Color{
		Red:   channel(r * a),
		Green: channel(g * a),
		Blue:  channel(bl * a),
		Alpha: channel(a),
	}
	if err := render.CreateSolidFillChecked(b.x(), pid, c).Check(); err != nil {
		return 0, err
	}
	return Picture(pid), nil
}

// MaskPicture uploads mask into an 8-bit pixmap, splitting the pixels over
// as many PutImage requests as needed.
func (b *LinuxBackend) MaskPicture(mask *image.Alpha) (Picture, error) {
	x := b.x()
	width, height := mask.Rect.Dx(), mask.Rect.Dy()
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("empty mask %dx%d", width, height)
	}

	pix, err := xproto.NewPixmapId(x)
	if err != nil {
		return 0, err
	}
	err = xproto.CreatePixmapChecked(x, 8, pix, xproto.Drawable(b.conn.Root), uint16(width), uint16(height)).Check()
	if err != nil {
		return 0, err
	}
	defer xproto.FreePixmap(x, pix)

	gc, err := xproto.NewGcontextId(x)
	if err != nil {
		return 0, err
	}
	xproto.CreateGC(x, gc, xproto.Drawable(pix), 0, nil)
	defer xproto.FreeGC(x, gc)

	// Rows are padded to 32 bits on the wire.
	stride := (width + 3) &^ 3
	rows := max(1, maxPutImage/stride)
	for y0 := 0; y0 < height; y0 += rows {
		n := min(rows, height-y0)
		data := make([]byte, stride*n)
		for y := 0; y < n; y++ {
			src := mask.Pix[(y0+y)*mask.Stride:]
			copy(data[y*stride:], src[:width])
		}
		xproto.PutImage(x, xproto.ImageFormatZPixmap, xproto.Drawable(pix), gc,
			uint16(width), uint16(n), 0, int16(y0), 0, 8, data)
	}

	pid, err := render.NewPictureId(x)
	if err != nil {
		return 0, err
	}
	if err := render.CreatePictureChecked(x, pid, xproto.Drawable(pix), b.formats.A8, 0, nil).Check(); err != nil {
		return 0, err
	}
	return Picture(pid), nil
}

func (b *LinuxBackend) RootTile(fallback [3]uint8) (Picture, error) {
	if pix, ok := b.conn.RootPixmap(); ok {
		pid, err := render.NewPictureId(b.x())
		if err != nil {
			return 0, err
		}
		err = render.CreatePictureChecked(b.x(), pid, xproto.Drawable(pix), b.rootFormat,
			render.CpRepeat, []uint32{render.RepeatNormal}).Check()
		if err == nil {
			return Picture(pid), nil
		}
		// The advertised pixmap may already be gone.
	}
	return b.SolidPicture(float64(fallback[0])/255, float64(fallback[1])/255, float64(fallback[2])/255, 1)
}

func (b *LinuxBackend) Composite(c Composite) error {
	clip := c.Clip.IntersectRect(c.Dst)
	if clip.Empty() {
		return nil
	}
	x := b.x()
	render.SetPictureClipRectangles(x, b.bufferPict, 0, 0, toRectangles(clip))
	render.Composite(x, renderOp(c.Op),
		render.Picture(c.Src), render.Picture(c.Mask), b.bufferPict,
		0, 0, 0, 0,
		int16(c.Dst.X), int16(c.Dst.Y), uint16(c.Dst.Width), uint16(c.Dst.Height))
	return nil
}

func (b *LinuxBackend) Present(clip geom.Region) error {
	clip = clip.IntersectRect(geom.R(0, 0, b.width, b.height))
	if clip.Empty() {
		return nil
	}
	x := b.x()
	render.SetPictureClipRectangles(x, b.rootPict, 0, 0, toRectangles(clip))
	render.Composite(x, render.PictOpSrc, b.bufferPict, 0, b.rootPict,
		0, 0, 0, 0, 0, 0, uint16(b.width), uint16(b.height))
	return nil
}

func (b *LinuxBackend) ResizeBuffer(width, height int) error {
	x := b.x()
	if b.bufferPict != 0 {
		render.FreePicture(x, b.bufferPict)
		xproto.FreePixmap(x, b.buffer)
		b.bufferPict, b.buffer = 0, 0
	}
	pix, err := xproto.NewPixmapId(x)
	if err != nil {
		return err
	}
	err = xproto.CreatePixmapChecked(x, b.conn.Screen.RootDepth, pix, xproto.Drawable(b.conn.Root),
		uint16(width), uint16(height)).Check()
	if err != nil {
		return fmt.Errorf("create back buffer: %w", err)
	}
	pid, err := render.NewPictureId(x)
	if err != nil {
		return err
	}
	if err := render.CreatePictureChecked(x, pid, xproto.Drawable(pix), b.rootFormat, 0, nil).Check(); err != nil {
		return fmt.Errorf("create back buffer picture: %w", err)
	}
	b.buffer, b.bufferPict = pix, pid
	b.width, b.height = width, height
	return nil
}

// Flush waits for the server to process everything sent so far.
func (b *LinuxBackend) Flush() error {
	_, err := xproto.GetInputFocus(b.x()).Reply()
	return err
}

func (b *LinuxBackend) Events() <-chan Event { return b.events }

func (b *LinuxBackend) Close() {
	b.conn.Close()
}

// translate turns wire events into platform events until the connection
// closes.
func (b *LinuxBackend) translate(in <-chan x11.Delivery) {
	defer close(b.events)
	for d := range in {
		var ev Event
		if d.Err != nil {
			ev = b.translateError(d.Err)
		} else {
			ev = b.translateEvent(d.Event)
		}
		if ev != nil {
			b.events <- ev
		}
	}
}

func (b *LinuxBackend) translateEvent(raw xgb.Event) Event {
	switch ev := raw.(type) {
	case xproto.CreateNotifyEvent:
		return CreateEvent{
			Header:           Header{b.seq(ev.Sequence)},
			Window:           WindowID(ev.Window),
			Parent:           WindowID(ev.Parent),
			Geometry:         geom.R(int(ev.X), int(ev.Y), int(ev.Width), int(ev.Height)),
			BorderWidth:      int(ev.BorderWidth),
			OverrideRedirect: ev.OverrideRedirect,
		}
	case xproto.DestroyNotifyEvent:
		return DestroyEvent{Header: Header{b.seq(ev.Sequence)}, Window: WindowID(ev.Window)}
	case xproto.MapNotifyEvent:
		return MapEvent{Header: Header{b.seq(ev.Sequence)}, Window: WindowID(ev.Window)}
	case xproto.UnmapNotifyEvent:
		return UnmapEvent{Header: Header{b.seq(ev.Sequence)}, Window: WindowID(ev.Window)}
	case xproto.ReparentNotifyEvent:
		return ReparentEvent{
			Header: Header{b.seq(ev.Sequence)},
			Window: WindowID(ev.Window),
			Parent: WindowID(ev.Parent),
			X:      int(ev.X),
			Y:      int(ev.Y),
		}
	case xproto.ConfigureNotifyEvent:
		return ConfigureEvent{
			Header:           Header{b.seq(ev.Sequence)},
			Window:           WindowID(ev.Window),
			Above:            WindowID(ev.AboveSibling),
			Geometry:         geom.R(int(ev.X), int(ev.Y), int(ev.Width), int(ev.Height)),
			BorderWidth:      int(ev.BorderWidth),
			OverrideRedirect: ev.OverrideRedirect,
		}
	case xproto.CirculateNotifyEvent:
		place := PlaceOnTop
		if ev.Place == xproto.PlaceOnBottom {
			place = PlaceOnBottom
		}
		return CirculateEvent{Header: Header{b.seq(ev.Sequence)}, Window: WindowID(ev.Window), Place: place}
	case xproto.ExposeEvent:
		return ExposeEvent{
			Header: Header{b.seq(ev.Sequence)},
			Window: WindowID(ev.Window),
			Rect:   geom.R(int(ev.X), int(ev.Y), int(ev.Width), int(ev.Height)),
			More:   ev.Count > 0,
		}
	case xproto.PropertyNotifyEvent:
		return PropertyEvent{
			Header: Header{b.seq(ev.Sequence)},
			Window: WindowID(ev.Window),
			Atom:   b.conn.AtomName(ev.Atom),
		}
	case damage.NotifyEvent:
		return DamageEvent{
			Header: Header{b.seq(ev.Sequence)},
			Window: WindowID(ev.Drawable),
			Damage: Damage(ev.Damage),
		}
	case shape.NotifyEvent:
		if ev.ShapeKind != shape.SkBounding {
			return nil
		}
		return ShapeEvent{Header: Header{b.seq(ev.Sequence)}, Window: WindowID(ev.AffectedWindow)}
	}
	return nil
}

func (b *LinuxBackend) translateError(err xgb.Error) Event {
	return ErrorEvent{
		Header: Header{b.seq(err.SequenceId())},
		Class:  errorClass(err),
		Name:   err.Error(),
		BadID:  err.BadId(),
	}
}

// errorClass maps an error to the kind of resource it names.
func errorClass(err xgb.Error) ignore.Class {
	switch err.(type) {
	case render.PictureError:
		return ignore.Picture
	case xproto.PixmapError:
		return ignore.Pixmap
	case damage.BadDamageError:
		return ignore.Damage
	case xfixes.BadRegionError:
		return ignore.Region
	case xproto.WindowError, xproto.DrawableError:
		return ignore.Window
	}
	return ignore.None
}

func renderOp(op Op) byte {
	if op == OpSrc {
		return render.PictOpSrc
	}
	return render.PictOpOver
}

func channel(v float64) uint16 {
	return uint16(math.Round(min(max(v, 0), 1) * 0xffff))
}

func fromRectangles(rects []xproto.Rectangle) geom.Region {
	out := make([]geom.Rect, len(rects))
	for i, r := range rects {
		out[i] = geom.R(int(r.X), int(r.Y), int(r.Width), int(r.Height))
	}
	return geom.NewRegion(out...)
}

func toRectangles(r geom.Region) []xproto.Rectangle {
	rects := r.Rects()
	out := make([]xproto.Rectangle, len(rects))
	for i, rc := range rects {
		out[i] = xproto.Rectangle{
			X:      int16(rc.X),
			Y:      int16(rc.Y),
			Width:  uint16(rc.Width),
			Height: uint16(rc.Height),
		}
	}
	return out
}
