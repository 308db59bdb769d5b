package daemon

import (
	"time"

	"github.com/1broseidon/shade/internal/compositor"
	"github.com/1broseidon/shade/internal/config"
	"github.com/1broseidon/shade/internal/wintype"
)

// EngineOptions converts a validated config into compositor options.
func EngineOptions(cfg *config.Config) compositor.Options {
	opts := compositor.DefaultOptions()
	opts.Shadow = compositor.ShadowOptions{
		Enabled:        cfg.Shadow.Enabled,
		Radius:         cfg.Shadow.Radius,
		Opacity:        cfg.Shadow.Opacity,
		OffsetX:        cfg.Shadow.OffsetX,
		OffsetY:        cfg.Shadow.OffsetY,
		ClearUnderBody: cfg.Shadow.ClearUnderWindow,
	}
	opts.Fade = compositor.FadeOptions{
		Enabled:       cfg.Fade.Enabled,
		OpacityChange: cfg.Fade.OpacityChange,
		InStep:        cfg.Fade.InStep,
		OutStep:       cfg.Fade.OutStep,
		Delta:         time.Duration(cfg.Fade.DeltaMS) * time.Millisecond,
	}
	for _, t := range wintype.All() {
		rule, ok := cfg.Rule(t)
		if !ok {
			continue
		}
		if rule.Opacity != nil {
			opts.Types[t].Opacity = *rule.Opacity
		}
		if rule.Shadow != nil {
			opts.Types[t].Shadow = *rule.Shadow
		}
		if rule.Fade != nil {
			opts.Types[t].Fade = *rule.Fade
		}
	}
	if bg, err := config.ParseColor(cfg.Background); err == nil {
		opts.Background = bg
	}
	return opts
}
