package x11

import (
	"errors"
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/damage"
	"github.com/BurntSushi/xgb/render"
	"github.com/BurntSushi/xgb/shape"
	"github.com/BurntSushi/xgb/xfixes"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/xprop"
)

// ErrOtherCompositor is returned by Claim when another compositing manager
// already owns the screen.
var ErrOtherCompositor = errors.New("another compositing manager is running")

// Connection manages the X11 connection, the extensions compositing needs
// and the sequence numbers shared between requests and events.
type Connection struct {
	XUtil  *xgbutil.XUtil
	Root   xproto.Window
	Screen *xproto.ScreenInfo

	// HasShape is false when the server lacks the SHAPE extension; windows
	// are then treated as rectangles.
	HasShape bool

	owner xproto.Window
	seq   sequencer

	namesMu sync.Mutex
	names   map[xproto.Atom]string
}

// NewConnection connects to display (the DISPLAY variable when empty) and
// initializes the Composite, Damage, XFixes and Render extensions.
func NewConnection(display string) (*Connection, error) {
	xu, err := xgbutil.NewConnDisplay(display)
	if err != nil {
		return nil, err
	}
	c := &Connection{
		XUtil:  xu,
		Root:   xu.RootWin(),
		Screen: xu.Screen(),
		names:  make(map[xproto.Atom]string),
	}
	if err := c.initExtensions(); err != nil {
		xu.Conn().Close()
		return nil, err
	}
	return c, nil
}

func (c *Connection) initExtensions() error {
	conn := c.Conn()

	if err := composite.Init(conn); err != nil {
		return fmt.Errorf("composite extension: %w", err)
	}
	if _, err := composite.QueryVersion(conn, 0, 4).Reply(); err != nil {
		return fmt.Errorf("composite version: %w", err)
	}
	if err := damage.Init(conn); err != nil {
		return fmt.Errorf("damage extension: %w", err)
	}
	if _, err := damage.QueryVersion(conn, 1, 1).Reply(); err != nil {
		return fmt.Errorf("damage version: %w", err)
	}
	if err := xfixes.Init(conn); err != nil {
		return fmt.Errorf("xfixes extension: %w", err)
	}
	if _, err := xfixes.QueryVersion(conn, 2, 0).Reply(); err != nil {
		return fmt.Errorf("xfixes version: %w", err)
	}
	if err := render.Init(conn); err != nil {
		return fmt.Errorf("render extension: %w", err)
	}
	if _, err := render.QueryVersion(conn, 0, 11).Reply(); err != nil {
		return fmt.Errorf("render version: %w", err)
	}
	c.HasShape = shape.Init(conn) == nil
	return nil
}

// Conn returns the raw protocol connection.
func (c *Connection) Conn() *xgb.Conn {
	return c.XUtil.Conn()
}

// Claim takes the _NET_WM_CM_Sn selection for the default screen through
// a hidden window, so only one compositor runs per screen.
func (c *Connection) Claim() error {
	conn := c.Conn()
	name := fmt.Sprintf("_NET_WM_CM_S%d", conn.DefaultScreen)
	sel, err := xprop.Atm(c.XUtil, name)
	if err != nil {
		return fmt.Errorf("intern %s: %w", name, err)
	}

	reply, err := xproto.GetSelectionOwner(conn, sel).Reply()
	if err != nil {
		return fmt.Errorf("query %s owner: %w", name, err)
	}
	if reply.Owner != 0 {
		return fmt.Errorf("%w (%s held by 0x%x)", ErrOtherCompositor, name, uint32(reply.Owner))
	}

	wid, err := xproto.NewWindowId(conn)
	if err != nil {
		return err
	}
	err = xproto.CreateWindowChecked(conn, xproto.WindowClassCopyFromParent, wid, c.Root,
		-1, -1, 1, 1, 0, xproto.WindowClassInputOnly, xproto.WindowClassCopyFromParent,
		xproto.CwOverrideRedirect, []uint32{1}).Check()
	if err != nil {
		return fmt.Errorf("create selection window: %w", err)
	}
	if err := xproto.SetSelectionOwnerChecked(conn, wid, sel, xproto.TimeCurrentTime).Check(); err != nil {
		return fmt.Errorf("acquire %s: %w", name, err)
	}
	c.owner = wid
	return nil
}

// Redirect subscribes to the root's structure events and redirects every
// top-level window off-screen for manual compositing.
func (c *Connection) Redirect() error {
	conn := c.Conn()
	mask := uint32(xproto.EventMaskExposure |
		xproto.EventMaskStructureNotify |
		xproto.EventMaskSubstructureNotify |
		xproto.EventMaskPropertyChange)
	if err := xproto.ChangeWindowAttributesChecked(conn, c.Root, xproto.CwEventMask, []uint32{mask}).Check(); err != nil {
		return fmt.Errorf("select root events: %w", err)
	}
	if err := composite.RedirectSubwindowsChecked(conn, c.Root, composite.RedirectManual).Check(); err != nil {
		return fmt.Errorf("redirect subwindows: %w", err)
	}
	return nil
}

// Extend widens a 16-bit wire sequence to the connection's full count.
func (c *Connection) Extend(s uint16) uint64 {
	return c.seq.extend(s)
}

// AtomName resolves an atom, caching the answer. Unknown atoms come back
// empty.
func (c *Connection) AtomName(a xproto.Atom) string {
	c.namesMu.Lock()
	name, ok := c.names[a]
	c.namesMu.Unlock()
	if ok {
		return name
	}
	name, err := xprop.AtomName(c.XUtil, a)
	if err != nil {
		return ""
	}
	c.namesMu.Lock()
	c.names[a] = name
	c.namesMu.Unlock()
	return name
}

// Close releases the selection window and disconnects from the server.
func (c *Connection) Close() {
	if c.owner != 0 {
		xproto.DestroyWindow(c.Conn(), c.owner)
		c.owner = 0
	}
	c.Conn().Close()
}

// sequencer tracks the highest sequence seen so far. Requests and events
// both move it forward; a wire value more than half the 16-bit space
// behind it belongs to the next wrap.
type sequencer struct {
	mu   sync.Mutex
	last uint64
}

func (s *sequencer) extend(v uint16) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	full := s.last&^0xffff | uint64(v)
	switch {
	case full+0x8000 < s.last:
		full += 0x10000
	case full > s.last+0x8000 && full >= 0x10000:
		full -= 0x10000
	}
	if full > s.last {
		s.last = full
	}
	return full
}
