package compositor

import (
	"time"

	"github.com/1broseidon/shade/internal/wintype"
)

// ShadowOptions control drop shadows.
type ShadowOptions struct {
	Enabled bool
	Radius  int
	Opacity float64
	OffsetX int
	OffsetY int
	// ClearUnderBody keeps the shadow from being drawn beneath a
	// translucent window's own body.
	ClearUnderBody bool
}

// FadeOptions control opacity transitions.
type FadeOptions struct {
	// Enabled fades windows in on map and out on unmap and destroy.
	Enabled bool
	// OpacityChange also fades when the opacity property changes.
	OpacityChange bool
	InStep        float64
	OutStep       float64
	// Delta is the time between fade ticks.
	Delta time.Duration
}

// TypeRule overrides behaviour for one window type.
type TypeRule struct {
	// Opacity applies when the window sets no opacity property.
	Opacity float64
	Shadow  bool
	Fade    bool
}

// Options configure an Engine.
type Options struct {
	Shadow ShadowOptions
	Fade   FadeOptions
	Types  [wintype.Count]TypeRule
	// Background fills the root when no wallpaper pixmap is set.
	Background [3]uint8
}

// DefaultOptions returns the built-in behaviour: no shadows or fades,
// every window type opaque.
func DefaultOptions() Options {
	o := Options{
		Shadow: ShadowOptions{
			Radius:  12,
			Opacity: 0.75,
			OffsetX: -15,
			OffsetY: -15,
		},
		Fade: FadeOptions{
			InStep:  0.028,
			OutStep: 0.03,
			Delta:   10 * time.Millisecond,
		},
		Background: [3]uint8{0x80, 0x80, 0x80},
	}
	for i := range o.Types {
		o.Types[i] = TypeRule{Opacity: 1, Shadow: true, Fade: true}
	}
	return o
}

func (o Options) rule(t wintype.Type) TypeRule {
	if t < 0 || int(t) >= len(o.Types) {
		return TypeRule{Opacity: 1, Shadow: true, Fade: true}
	}
	return o.Types[t]
}
