package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// IncludeList accepts a single path or a list of paths. Directories
// include every .yaml file inside them.
type IncludeList []string

func (l *IncludeList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag != "!!str" {
			return fmt.Errorf("include must be a string or list of strings")
		}
		*l = []string{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode || item.Tag != "!!str" {
				return fmt.Errorf("include entries must be strings")
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("include must be a string or list of strings")
	}
}

// The Raw types mirror Config with every field optional, so a file only
// overrides what it sets.

type RawShadow struct {
	Enabled          *bool    `yaml:"enabled"`
	Radius           *int     `yaml:"radius"`
	Opacity          *float64 `yaml:"opacity"`
	OffsetX          *int     `yaml:"offset_x"`
	OffsetY          *int     `yaml:"offset_y"`
	ClearUnderWindow *bool    `yaml:"clear_under_window"`
}

type RawFade struct {
	Enabled       *bool    `yaml:"enabled"`
	OpacityChange *bool    `yaml:"opacity_change"`
	InStep        *float64 `yaml:"in_step"`
	OutStep       *float64 `yaml:"out_step"`
	DeltaMS       *int     `yaml:"delta_ms"`
}

type RawConfig struct {
	Include     IncludeList         `yaml:"include"`
	Display     *string             `yaml:"display"`
	LogLevel    *string             `yaml:"log_level"`
	Shadow      *RawShadow          `yaml:"shadow"`
	Fade        *RawFade            `yaml:"fade"`
	WindowTypes map[string]TypeRule `yaml:"window_types"`
	Background  *string             `yaml:"background"`
	WatchConfig *bool               `yaml:"watch_config"`
}

// merge returns r with every field o sets replaced. Window type rules
// merge per field.
func (r RawConfig) merge(o RawConfig) RawConfig {
	out := r
	if o.Display != nil {
		out.Display = o.Display
	}
	if o.LogLevel != nil {
		out.LogLevel = o.LogLevel
	}
	if o.Shadow != nil {
		out.Shadow = mergeShadow(out.Shadow, o.Shadow)
	}
	if o.Fade != nil {
		out.Fade = mergeFade(out.Fade, o.Fade)
	}
	if o.WindowTypes != nil {
		types := make(map[string]TypeRule, len(r.WindowTypes)+len(o.WindowTypes))
		for name, rule := range r.WindowTypes {
			types[name] = rule
		}
		for name, rule := range o.WindowTypes {
			types[name] = mergeRule(types[name], rule)
		}
		out.WindowTypes = types
	}
	if o.Background != nil {
		out.Background = o.Background
	}
	if o.WatchConfig != nil {
		out.WatchConfig = o.WatchConfig
	}
	return out
}

func mergeShadow(base, o *RawShadow) *RawShadow {
	out := RawShadow{}
	if base != nil {
		out = *base
	}
	if o.Enabled != nil {
		out.Enabled = o.Enabled
	}
	if o.Radius != nil {
		out.Radius = o.Radius
	}
	if o.Opacity != nil {
		out.Opacity = o.Opacity
	}
	if o.OffsetX != nil {
		out.OffsetX = o.OffsetX
	}
	if o.OffsetY != nil {
		out.OffsetY = o.OffsetY
	}
	if o.ClearUnderWindow != nil {
		out.ClearUnderWindow = o.ClearUnderWindow
	}
	return &out
}

func mergeFade(base, o *RawFade) *RawFade {
	out := RawFade{}
	if base != nil {
		out = *base
	}
	if o.Enabled != nil {
		out.Enabled = o.Enabled
	}
	if o.OpacityChange != nil {
		out.OpacityChange = o.OpacityChange
	}
	if o.InStep != nil {
		out.InStep = o.InStep
	}
	if o.OutStep != nil {
		out.OutStep = o.OutStep
	}
	if o.DeltaMS != nil {
		out.DeltaMS = o.DeltaMS
	}
	return &out
}

func mergeRule(base, o TypeRule) TypeRule {
	if o.Opacity != nil {
		base.Opacity = o.Opacity
	}
	if o.Shadow != nil {
		base.Shadow = o.Shadow
	}
	if o.Fade != nil {
		base.Fade = o.Fade
	}
	return base
}

// BuildEffectiveConfig applies raw over the defaults.
func BuildEffectiveConfig(raw RawConfig) *Config {
	cfg := DefaultConfig()
	if raw.Display != nil {
		cfg.Display = *raw.Display
	}
	if raw.LogLevel != nil {
		cfg.LogLevel = *raw.LogLevel
	}
	if s := raw.Shadow; s != nil {
		setIf(&cfg.Shadow.Enabled, s.Enabled)
		setIf(&cfg.Shadow.Radius, s.Radius)
		setIf(&cfg.Shadow.Opacity, s.Opacity)
		setIf(&cfg.Shadow.OffsetX, s.OffsetX)
		setIf(&cfg.Shadow.OffsetY, s.OffsetY)
		setIf(&cfg.Shadow.ClearUnderWindow, s.ClearUnderWindow)
	}
	if f := raw.Fade; f != nil {
		setIf(&cfg.Fade.Enabled, f.Enabled)
		setIf(&cfg.Fade.OpacityChange, f.OpacityChange)
		setIf(&cfg.Fade.InStep, f.InStep)
		setIf(&cfg.Fade.OutStep, f.OutStep)
		setIf(&cfg.Fade.DeltaMS, f.DeltaMS)
	}
	for name, rule := range raw.WindowTypes {
		cfg.WindowTypes[name] = rule
	}
	if raw.Background != nil {
		cfg.Background = *raw.Background
	}
	if raw.WatchConfig != nil {
		cfg.WatchConfig = *raw.WatchConfig
	}
	return cfg
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
