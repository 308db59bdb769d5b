package main

import (
	"errors"
	"flag"
	"io"
	"testing"

	"github.com/1broseidon/shade/internal/config"
)

func parseDaemonFlags(t *testing.T, args ...string) (*daemonFlags, *flag.FlagSet) {
	t.Helper()
	fs := flag.NewFlagSet("daemon", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var f daemonFlags
	f.register(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse %v: %v", args, err)
	}
	return &f, fs
}

func TestFlagsOverrideOnlyWhenSet(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Shadow.Enabled = true
	cfg.Shadow.Radius = 20
	cfg.Fade.DeltaMS = 30

	f, fs := parseDaemonFlags(t, "-shadow-radius", "5", "-fade", "-type-opacity", "dock=0.7")
	f.apply(fs, cfg)

	if cfg.Shadow.Radius != 5 {
		t.Fatalf("radius flag should win, got %d", cfg.Shadow.Radius)
	}
	if !cfg.Shadow.Enabled {
		t.Fatalf("an unset -shadow flag must not disable shadows from the file")
	}
	if !cfg.Fade.Enabled || cfg.Fade.DeltaMS != 30 {
		t.Fatalf("unexpected fade %+v", cfg.Fade)
	}
	rule, ok := cfg.WindowTypes["dock"]
	if !ok || rule.Opacity == nil || *rule.Opacity != 0.7 {
		t.Fatalf("type opacity not applied: %+v", cfg.WindowTypes)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("flags produced an invalid config: %v", err)
	}
}

func TestTypeOpacityRejectsMalformedValue(t *testing.T) {
	fs := flag.NewFlagSet("daemon", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var f daemonFlags
	f.register(fs)
	if err := fs.Parse([]string{"-type-opacity", "dock"}); err == nil {
		t.Fatalf("expected type=value to be required")
	}
}

func TestLookup(t *testing.T) {
	cfg := config.DefaultConfig()
	got, err := lookup(cfg, "shadow.radius")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got != 12 {
		t.Fatalf("expected 12, got %v (%T)", got, got)
	}
	if _, err := lookup(cfg, "shadow.nope"); err == nil {
		t.Fatalf("expected unknown key error")
	}
	if _, err := lookup(cfg, "shadow.radius.deeper"); err == nil {
		t.Fatalf("expected scalar traversal error")
	}
}

func TestConfigExitCode(t *testing.T) {
	verr := &config.ValidationError{Path: "shadow.radius", Err: errors.New("bad")}
	if got := configExitCode(verr); got != 2 {
		t.Fatalf("validation errors exit 2, got %d", got)
	}
	if got := configExitCode(errors.New("permission denied")); got != 1 {
		t.Fatalf("other errors exit 1, got %d", got)
	}
}
