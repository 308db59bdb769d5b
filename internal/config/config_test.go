package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/1broseidon/shade/internal/wintype"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestLoadFromPath_MissingFileUsesDefaults(t *testing.T) {
	res, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Config.Shadow.Radius != 12 || res.Config.Fade.DeltaMS != 10 {
		t.Fatalf("expected defaults, got %+v", res.Config)
	}
	if len(res.Files) != 0 {
		t.Fatalf("expected no files loaded, got %v", res.Files)
	}
}

func TestLoadFromPath_EmptyFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "# empty\n")

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Config.Background != "#808080" {
		t.Fatalf("expected default background, got %q", res.Config.Background)
	}
}

func TestLoadFromPath_OverridesOnlyWhatIsSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, strings.Join([]string{
		"shadow:",
		"  enabled: true",
		"  radius: 6",
		"fade:",
		"  out_step: 0.1",
		"window_types:",
		"  dock:",
		"    shadow: false",
		"  tooltip:",
		"    opacity: 0.9",
		"",
	}, "\n"))

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg := res.Config
	if !cfg.Shadow.Enabled || cfg.Shadow.Radius != 6 {
		t.Fatalf("shadow overrides not applied: %+v", cfg.Shadow)
	}
	if cfg.Shadow.Opacity != 0.75 || cfg.Shadow.OffsetX != -15 {
		t.Fatalf("unset shadow fields lost their defaults: %+v", cfg.Shadow)
	}
	if cfg.Fade.OutStep != 0.1 || cfg.Fade.InStep != 0.028 {
		t.Fatalf("fade merge wrong: %+v", cfg.Fade)
	}
	dock, ok := cfg.Rule(wintype.Dock)
	if !ok || dock.Shadow == nil || *dock.Shadow {
		t.Fatalf("expected dock shadow override, got %+v", dock)
	}
	if dock.Opacity != nil {
		t.Fatalf("dock opacity should stay unset, got %v", *dock.Opacity)
	}
	tip, ok := cfg.Rule(wintype.Tooltip)
	if !ok || tip.Opacity == nil || *tip.Opacity != 0.9 {
		t.Fatalf("expected tooltip opacity override, got %+v", tip)
	}
	if _, ok := cfg.Rule(wintype.Normal); ok {
		t.Fatalf("normal windows have no override")
	}
}

func TestLoadFromPath_UnknownKeyRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "shadow:\n  blur: 3\n")

	if _, err := LoadFromPath(path); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestLoadFromPath_ValidationErrorHasSourceContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "fade:\n  enabled: true\n  in_step: 2\n")

	_, err := LoadFromPath(path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Path != "fade.in_step" {
		t.Fatalf("expected path fade.in_step, got %q", verr.Path)
	}
	if verr.Source.Line != 3 {
		t.Fatalf("expected line 3, got %d", verr.Source.Line)
	}
	if !strings.Contains(err.Error(), ":3:") {
		t.Fatalf("expected line in message, got %q", err.Error())
	}
}

func TestLoadFromPath_IncludesMergeBeforeTheFile(t *testing.T) {
	dir := t.TempDir()
	confd := filepath.Join(dir, "conf.d")
	if err := os.Mkdir(confd, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(confd, "10-shadow.yaml"), "shadow:\n  enabled: true\n  radius: 4\n")
	writeFile(t, filepath.Join(confd, "20-fade.yml"), "fade:\n  enabled: true\n")
	writeFile(t, filepath.Join(confd, "notes.txt"), "not yaml")
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "include: conf.d\nshadow:\n  radius: 8\n")

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !res.Config.Shadow.Enabled || res.Config.Shadow.Radius != 8 {
		t.Fatalf("expected included enable with local radius, got %+v", res.Config.Shadow)
	}
	if !res.Config.Fade.Enabled {
		t.Fatalf("expected fade enabled from include")
	}
	if len(res.Files) != 3 {
		t.Fatalf("expected 3 files loaded, got %v", res.Files)
	}
}

func TestLoadFromPath_IncludeCycle(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	writeFile(t, a, "include: b.yaml\n")
	writeFile(t, b, "include: a.yaml\n")

	_, err := LoadFromPath(a)
	if err == nil || !strings.Contains(err.Error(), "include cycle") {
		t.Fatalf("expected include cycle error, got %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	opacity := 1.5
	cases := map[string]func(*Config){
		"log_level":              func(c *Config) { c.LogLevel = "loud" },
		"shadow.radius":          func(c *Config) { c.Shadow.Radius = 65 },
		"shadow.opacity":         func(c *Config) { c.Shadow.Opacity = -0.1 },
		"fade.out_step":          func(c *Config) { c.Fade.OutStep = 0 },
		"fade.delta_ms":          func(c *Config) { c.Fade.DeltaMS = 0 },
		"window_types.sidebar":   func(c *Config) { c.WindowTypes["sidebar"] = TypeRule{} },
		"window_types.menu.opacity": func(c *Config) {
			c.WindowTypes["menu"] = TypeRule{Opacity: &opacity}
		},
		"background": func(c *Config) { c.Background = "grey" },
	}
	for path, mutate := range cases {
		cfg := DefaultConfig()
		mutate(cfg)
		var verr *ValidationError
		if err := cfg.Validate(); !errors.As(err, &verr) || verr.Path != path {
			t.Errorf("%s: expected validation error at that path, got %v", path, err)
		}
	}
}

func TestParseColor(t *testing.T) {
	got, err := ParseColor("#1a2B3c")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != [3]uint8{0x1a, 0x2b, 0x3c} {
		t.Fatalf("unexpected colour %v", got)
	}
	for _, bad := range []string{"", "1a2b3c", "#1a2b3", "#zz0000"} {
		if _, err := ParseColor(bad); err == nil {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}

func TestMarshalRoundTripsThroughLoader(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Shadow.Enabled = true
	data, err := cfg.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, string(data))

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("printed config must load strictly: %v", err)
	}
	if !res.Config.Shadow.Enabled {
		t.Fatalf("expected shadow enabled after reload")
	}
}

func TestSaveToCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "shade", "config.yaml")
	cfg := DefaultConfig()
	cfg.Fade.Enabled = true
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load saved config: %v", err)
	}
	if !res.Config.Fade.Enabled || len(res.Files) != 1 {
		t.Fatalf("unexpected reload %+v files=%v", res.Config.Fade, res.Files)
	}
}
