package replay

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"

	"golang.org/x/image/draw"

	"github.com/1broseidon/shade/internal/compositor"
	"github.com/1broseidon/shade/internal/config"
	"github.com/1broseidon/shade/internal/geom"
	"github.com/1broseidon/shade/internal/platform"
)

// Result is the outcome of a replay.
type Result struct {
	Frame  *image.RGBA
	Status compositor.Status
}

type player struct {
	hb     *platform.Headless
	engine *compositor.Engine
	names  map[string]platform.WindowID
}

// Run applies every step of t to a fresh headless display, painting
// after each step as the daemon loop does, and returns the final frame.
func Run(t *Trace, opts compositor.Options, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &player{
		hb:    platform.NewHeadless(t.Screen.Width, t.Screen.Height),
		names: map[string]platform.WindowID{},
	}
	p.engine = compositor.New(p.hb, opts, logger)
	if err := p.engine.Start(); err != nil {
		return nil, err
	}
	defer p.engine.Close()

	for i, s := range t.Steps {
		if err := p.apply(s); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		if err := p.drain(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		if err := p.engine.Paint(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	frame := image.NewRGBA(p.hb.Front().Bounds())
	draw.Copy(frame, image.Point{}, p.hb.Front(), frame.Bounds(), draw.Src, nil)
	return &Result{Frame: frame, Status: p.engine.Status()}, nil
}

func (p *player) drain() error {
	for {
		select {
		case ev := <-p.hb.Events():
			if err := p.engine.HandleEvent(ev); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (p *player) window(name string) (platform.WindowID, error) {
	id, ok := p.names[name]
	if !ok {
		return 0, fmt.Errorf("unknown window %q", name)
	}
	return id, nil
}

func parseColor(s string) (color.RGBA, error) {
	c, err := config.ParseColor(s)
	if err != nil {
		return color.RGBA{}, err
	}
	return color.RGBA{R: c[0], G: c[1], B: c[2], A: 0xff}, nil
}

func rect(b Box) geom.Rect { return geom.R(b.X, b.Y, b.Width, b.Height) }

func (p *player) apply(s Step) error {
	kind, err := s.kind()
	if err != nil {
		return err
	}
	switch kind {
	case "create":
		return p.create(s.Create)
	case "map", "unmap", "destroy", "raise", "lower":
		name := s.Map + s.Unmap + s.Destroy + s.Raise + s.Lower
		id, err := p.window(name)
		if err != nil {
			return err
		}
		switch kind {
		case "map":
			p.hb.MapWindow(id)
		case "unmap":
			p.hb.UnmapWindow(id)
		case "destroy":
			p.hb.DestroyWindow(id)
			delete(p.names, name)
		case "raise":
			p.hb.Circulate(id, platform.PlaceOnTop)
		case "lower":
			p.hb.Circulate(id, platform.PlaceOnBottom)
		}
	case "configure":
		id, err := p.window(s.Configure.Window)
		if err != nil {
			return err
		}
		p.hb.ConfigureWindow(id, rect(s.Configure.Box), s.Configure.Border)
	case "restack":
		id, err := p.window(s.Restack.Window)
		if err != nil {
			return err
		}
		var above platform.WindowID
		if s.Restack.Above != "" {
			if above, err = p.window(s.Restack.Above); err != nil {
				return err
			}
		}
		p.hb.RestackAbove(id, above)
	case "opacity":
		id, err := p.window(s.Opacity.Window)
		if err != nil {
			return err
		}
		if s.Opacity.Value == nil {
			p.hb.ClearOpacity(id)
		} else {
			p.hb.SetOpacity(id, *s.Opacity.Value)
		}
	case "draw":
		id, err := p.window(s.Draw.Window)
		if err != nil {
			return err
		}
		c, err := parseColor(s.Draw.Color)
		if err != nil {
			return err
		}
		p.hb.Draw(id, rect(s.Draw.Box), c)
	case "types":
		id, err := p.window(s.Types.Window)
		if err != nil {
			return err
		}
		p.hb.SetWindowTypes(id, s.Types.Types...)
	case "background":
		c, err := parseColor(s.Background)
		if err != nil {
			return err
		}
		p.hb.SetRootBackground(c)
	case "resize":
		p.hb.ResizeScreen(s.Resize.Width, s.Resize.Height)
	case "expose":
		rects := make([]geom.Rect, len(s.Expose))
		for i, b := range s.Expose {
			rects[i] = rect(b)
		}
		p.hb.Expose(rects...)
	case "tick":
		for i := 0; i < s.Tick; i++ {
			if !p.engine.Tick() {
				break
			}
		}
	case "repaint":
		p.engine.DamageScreen()
	}
	return nil
}

func (p *player) create(c *CreateStep) error {
	if c.Name == "" {
		return fmt.Errorf("create needs a name")
	}
	if _, dup := p.names[c.Name]; dup {
		return fmt.Errorf("window %q already exists", c.Name)
	}
	col, err := parseColor(c.Color)
	if err != nil {
		return err
	}
	spec := platform.WindowSpec{
		Geometry:         rect(c.Box),
		BorderWidth:      c.Border,
		OverrideRedirect: c.OverrideRedirect,
		Color:            col,
		Client:           c.Client,
		Types:            c.Types,
	}
	if c.Parent != "" {
		if spec.Parent, err = p.window(c.Parent); err != nil {
			return err
		}
	}
	p.names[c.Name] = p.hb.CreateWindow(spec)
	return nil
}

// Scale enlarges img by an integer factor with nearest-neighbour
// sampling, so single pixels stay visible in the written frame.
func Scale(img *image.RGBA, factor int) *image.RGBA {
	if factor <= 1 {
		return img
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.NearestNeighbor.Scale(out, out.Bounds(), img, b, draw.Src, nil)
	return out
}
