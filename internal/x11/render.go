package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/render"
	"github.com/BurntSushi/xgb/xproto"
)

// Formats indexes the server's picture formats.
type Formats struct {
	// A8 is the 8-bit alpha-only format used for masks.
	A8 render.Pictformat

	info     map[render.Pictformat]render.Pictforminfo
	byVisual map[xproto.Visualid]render.Pictformat
}

// QueryFormats loads the picture formats the server supports.
func (c *Connection) QueryFormats() (*Formats, error) {
	reply, err := render.QueryPictFormats(c.Conn()).Reply()
	if err != nil {
		return nil, fmt.Errorf("query picture formats: %w", err)
	}
	f := &Formats{
		info:     make(map[render.Pictformat]render.Pictforminfo, len(reply.Formats)),
		byVisual: make(map[xproto.Visualid]render.Pictformat),
	}
	for _, info := range reply.Formats {
		f.info[info.Id] = info
		d := info.Direct
		if f.A8 == 0 && info.Type == render.PictTypeDirect && info.Depth == 8 &&
			d.AlphaMask == 0xff && d.RedMask == 0 && d.GreenMask == 0 && d.BlueMask == 0 {
			f.A8 = info.Id
		}
	}
	for _, screen := range reply.Screens {
		for _, depth := range screen.Depths {
			for _, v := range depth.Visuals {
				f.byVisual[v.Visual] = v.Format
			}
		}
	}
	if f.A8 == 0 {
		return nil, fmt.Errorf("server has no A8 picture format")
	}
	return f, nil
}

// ForVisual returns the picture format matching a visual.
func (f *Formats) ForVisual(v xproto.Visualid) (render.Pictformat, bool) {
	id, ok := f.byVisual[v]
	return id, ok
}

// HasAlpha reports whether a visual's format carries an alpha channel.
func (f *Formats) HasAlpha(v xproto.Visualid) bool {
	id, ok := f.byVisual[v]
	if !ok {
		return false
	}
	info := f.info[id]
	return info.Type == render.PictTypeDirect && info.Direct.AlphaMask != 0
}
