package x11

import (
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/xprop"
)

// Opacity returns _NET_WM_WINDOW_OPACITY scaled to [0,1].
func (c *Connection) Opacity(w xproto.Window) (float64, bool) {
	v, err := ewmh.WmWindowOpacityGet(c.XUtil, w)
	if err != nil {
		return 0, false
	}
	return v, true
}

// WindowTypes returns the atom names in _NET_WM_WINDOW_TYPE.
func (c *Connection) WindowTypes(w xproto.Window) ([]string, error) {
	return ewmh.WmWindowTypeGet(c.XUtil, w)
}

// GetFrameExtents returns the window decoration sizes, if the window
// manager published any.
func (c *Connection) GetFrameExtents(w xproto.Window) (left, right, top, bottom int, ok bool) {
	extents, err := ewmh.FrameExtentsGet(c.XUtil, w)
	if err != nil {
		return 0, 0, 0, 0, false
	}
	return extents.Left, extents.Right, extents.Top, extents.Bottom, true
}

// HasWMState reports whether w is a client window managed by an ICCCM
// window manager.
func (c *Connection) HasWMState(w xproto.Window) bool {
	_, err := icccm.WmStateGet(c.XUtil, w)
	return err == nil
}

// RootPixmap returns the desktop background pixmap advertised by the
// background setter, trying _XROOTPMAP_ID then _XSETROOT_ID.
func (c *Connection) RootPixmap() (xproto.Pixmap, bool) {
	for _, name := range []string{"_XROOTPMAP_ID", "_XSETROOT_ID"} {
		id, err := xprop.PropValNum(xprop.GetProperty(c.XUtil, c.Root, name))
		if err == nil && id != 0 {
			return xproto.Pixmap(id), true
		}
	}
	return 0, false
}
