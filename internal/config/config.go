package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/1broseidon/shade/internal/wintype"
)

// ShadowConfig configures drop shadows.
type ShadowConfig struct {
	Enabled bool    `yaml:"enabled"`
	Radius  int     `yaml:"radius"`
	Opacity float64 `yaml:"opacity"`
	OffsetX int     `yaml:"offset_x"`
	OffsetY int     `yaml:"offset_y"`
	// ClearUnderWindow skips the part of the shadow beneath a translucent
	// window's own body.
	ClearUnderWindow bool `yaml:"clear_under_window"`
}

// FadeConfig configures opacity transitions.
type FadeConfig struct {
	Enabled       bool    `yaml:"enabled"`
	OpacityChange bool    `yaml:"opacity_change"`
	InStep        float64 `yaml:"in_step"`
	OutStep       float64 `yaml:"out_step"`
	DeltaMS       int     `yaml:"delta_ms"`
}

// TypeRule overrides the defaults for one window type. Nil fields keep
// the default.
type TypeRule struct {
	Opacity *float64 `yaml:"opacity,omitempty"`
	Shadow  *bool    `yaml:"shadow,omitempty"`
	Fade    *bool    `yaml:"fade,omitempty"`
}

// Config is the effective daemon configuration.
type Config struct {
	Display     string              `yaml:"display"`
	LogLevel    string              `yaml:"log_level"`
	Shadow      ShadowConfig        `yaml:"shadow"`
	Fade        FadeConfig          `yaml:"fade"`
	WindowTypes map[string]TypeRule `yaml:"window_types"`
	Background  string              `yaml:"background"`
	WatchConfig bool                `yaml:"watch_config"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Shadow: ShadowConfig{
			Radius:  12,
			Opacity: 0.75,
			OffsetX: -15,
			OffsetY: -15,
		},
		Fade: FadeConfig{
			InStep:  0.028,
			OutStep: 0.03,
			DeltaMS: 10,
		},
		WindowTypes: map[string]TypeRule{},
		Background:  "#808080",
		WatchConfig: true,
	}
}

// ValidationError reports an invalid value, located in the file that set
// it when known.
type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.Kind == SourceFile && e.Source.File != "" && e.Source.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.Source.File, e.Source.Line, e.Source.Column, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Validate checks every value against its allowed range.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return &ValidationError{Path: "log_level", Err: err}
	}
	if c.Shadow.Radius < 0 || c.Shadow.Radius > 64 {
		return &ValidationError{Path: "shadow.radius", Err: fmt.Errorf("radius must be between 0 and 64")}
	}
	if !unit(c.Shadow.Opacity) {
		return &ValidationError{Path: "shadow.opacity", Err: fmt.Errorf("opacity must be between 0 and 1")}
	}
	if c.Fade.InStep <= 0 || c.Fade.InStep > 1 {
		return &ValidationError{Path: "fade.in_step", Err: fmt.Errorf("in_step must be in (0, 1]")}
	}
	if c.Fade.OutStep <= 0 || c.Fade.OutStep > 1 {
		return &ValidationError{Path: "fade.out_step", Err: fmt.Errorf("out_step must be in (0, 1]")}
	}
	if c.Fade.DeltaMS < 1 {
		return &ValidationError{Path: "fade.delta_ms", Err: fmt.Errorf("delta_ms must be >= 1")}
	}
	for _, name := range c.sortedTypeNames() {
		if _, err := wintype.Parse(name); err != nil {
			return &ValidationError{Path: "window_types." + name, Err: err}
		}
		rule := c.WindowTypes[name]
		if rule.Opacity != nil && !unit(*rule.Opacity) {
			return &ValidationError{Path: "window_types." + name + ".opacity", Err: fmt.Errorf("opacity must be between 0 and 1")}
		}
	}
	if _, err := ParseColor(c.Background); err != nil {
		return &ValidationError{Path: "background", Err: err}
	}
	return nil
}

func unit(v float64) bool { return v >= 0 && v <= 1 }

func (c *Config) sortedTypeNames() []string {
	names := make([]string, 0, len(c.WindowTypes))
	for name := range c.WindowTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Rule returns the merged override for t.
func (c *Config) Rule(t wintype.Type) (TypeRule, bool) {
	for _, name := range c.sortedTypeNames() {
		if parsed, err := wintype.Parse(name); err == nil && parsed == t {
			return c.WindowTypes[name], true
		}
	}
	return TypeRule{}, false
}

// ParseLogLevel maps a config level name to a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log_level must be one of: debug, info, warning, error")
}

// ParseColor parses a #rrggbb colour.
func ParseColor(s string) ([3]uint8, error) {
	var out [3]uint8
	hex, ok := strings.CutPrefix(strings.TrimSpace(s), "#")
	if !ok || len(hex) != 6 {
		return out, fmt.Errorf("colour %q must have the form #rrggbb", s)
	}
	for i := range out {
		v, err := strconv.ParseUint(hex[2*i:2*i+2], 16, 8)
		if err != nil {
			return out, fmt.Errorf("colour %q must have the form #rrggbb", s)
		}
		out[i] = uint8(v)
	}
	return out, nil
}

// Marshal renders the effective config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Save writes the config to the default path.
func (c *Config) Save() error {
	path, err := DefaultConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config to path, creating its directory.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := c.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
