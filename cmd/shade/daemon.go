package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"github.com/1broseidon/shade/internal/compositor"
	"github.com/1broseidon/shade/internal/config"
	"github.com/1broseidon/shade/internal/daemon"
	"github.com/1broseidon/shade/internal/platform"
	"github.com/1broseidon/shade/internal/runtimepath"
)

// detachedEnv marks the re-executed child of "daemon -b".
const detachedEnv = "SHADE_DETACHED"

// daemonFlags holds command-line overrides. They apply only when set on
// the command line, so the config file keeps the rest.
type daemonFlags struct {
	configPath string
	background bool
	noIPC      bool

	display  string
	logLevel string

	shadow        bool
	shadowRadius  int
	shadowOpacity float64
	shadowX       int
	shadowY       int
	clearUnder    bool

	fade          bool
	fadeOpacity   bool
	fadeIn        float64
	fadeOut       float64
	fadeDelta     int
	typeOpacities map[string]float64
}

func (f *daemonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "Config file path (default: ~/.config/shade/config.yaml)")
	fs.BoolVar(&f.background, "b", false, "Detach and run in the background")
	fs.BoolVar(&f.noIPC, "no-ipc", false, "Do not listen on the control socket")
	fs.StringVar(&f.display, "display", "", "X display to composite")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warning, error")

	fs.BoolVar(&f.shadow, "shadow", false, "Draw drop shadows")
	fs.IntVar(&f.shadowRadius, "shadow-radius", 0, "Shadow blur radius")
	fs.Float64Var(&f.shadowOpacity, "shadow-opacity", 0, "Shadow opacity")
	fs.IntVar(&f.shadowX, "shadow-offset-x", 0, "Shadow horizontal offset")
	fs.IntVar(&f.shadowY, "shadow-offset-y", 0, "Shadow vertical offset")
	fs.BoolVar(&f.clearUnder, "clear-under-window", false, "Do not draw shadows beneath translucent windows")

	fs.BoolVar(&f.fade, "fade", false, "Fade windows on map, unmap and destroy")
	fs.BoolVar(&f.fadeOpacity, "fade-opacity", false, "Also fade opacity property changes")
	fs.Float64Var(&f.fadeIn, "fade-in-step", 0, "Opacity step per tick when fading in")
	fs.Float64Var(&f.fadeOut, "fade-out-step", 0, "Opacity step per tick when fading out")
	fs.IntVar(&f.fadeDelta, "fade-delta", 0, "Milliseconds between fade ticks")

	f.typeOpacities = map[string]float64{}
	fs.Func("type-opacity", "Default opacity for a window type, as type=value (repeatable)", func(s string) error {
		name, value, ok := strings.Cut(s, "=")
		if !ok {
			return fmt.Errorf("expected type=value, got %q", s)
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("opacity for %s: %w", name, err)
		}
		f.typeOpacities[strings.TrimSpace(name)] = v
		return nil
	})
}

// apply writes the explicitly set flags over cfg.
func (f *daemonFlags) apply(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "display":
			cfg.Display = f.display
		case "log-level":
			cfg.LogLevel = f.logLevel
		case "shadow":
			cfg.Shadow.Enabled = f.shadow
		case "shadow-radius":
			cfg.Shadow.Radius = f.shadowRadius
		case "shadow-opacity":
			cfg.Shadow.Opacity = f.shadowOpacity
		case "shadow-offset-x":
			cfg.Shadow.OffsetX = f.shadowX
		case "shadow-offset-y":
			cfg.Shadow.OffsetY = f.shadowY
		case "clear-under-window":
			cfg.Shadow.ClearUnderWindow = f.clearUnder
		case "fade":
			cfg.Fade.Enabled = f.fade
		case "fade-opacity":
			cfg.Fade.OpacityChange = f.fadeOpacity
		case "fade-in-step":
			cfg.Fade.InStep = f.fadeIn
		case "fade-out-step":
			cfg.Fade.OutStep = f.fadeOut
		case "fade-delta":
			cfg.Fade.DeltaMS = f.fadeDelta
		}
	})
	for name, v := range f.typeOpacities {
		if cfg.WindowTypes == nil {
			cfg.WindowTypes = map[string]config.TypeRule{}
		}
		rule := cfg.WindowTypes[name]
		rule.Opacity = &v
		cfg.WindowTypes[name] = rule
	}
}

func runDaemon(args []string) int {
	fs := flag.NewFlagSet("daemon", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: shade daemon [options]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Composite the X display. Flags override the config file.")
		fmt.Fprintln(os.Stderr, "")
		fs.PrintDefaults()
	}
	var flags daemonFlags
	flags.register(fs)
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "daemon takes no arguments")
		return 2
	}

	path := flags.configPath
	if path == "" {
		p, err := config.DefaultConfigPath()
		if err != nil {
			log.Fatalf("Failed to resolve config path: %v", err)
		}
		path = p
	}
	res, err := config.LoadFromPath(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return configExitCode(err)
	}
	cfg := res.Config
	flags.apply(fs, cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if flags.background && os.Getenv(detachedEnv) == "" {
		return detach(args)
	}

	level := new(slog.LevelVar)
	if l, err := config.ParseLogLevel(cfg.LogLevel); err == nil {
		level.Set(l)
	}
	logger := newLogger(level)

	backend, err := platform.OpenLinux(cfg.Display)
	if err != nil {
		log.Fatalf("Failed to start compositor: %v", err)
	}
	defer backend.Close()

	if pidPath, err := runtimepath.PIDPath(); err == nil {
		if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0600); err != nil {
			logger.Warn("failed to write pid file", "path", pidPath, "error", err)
		} else {
			defer os.Remove(pidPath)
		}
	}

	var socket string
	if !flags.noIPC {
		if socket, err = runtimepath.SocketPath(); err != nil {
			logger.Warn("IPC disabled", "error", err)
		}
	}

	d := daemon.New(daemon.Config{
		Backend:    backend,
		Settings:   cfg,
		ConfigPath: path,
		SocketPath: socket,
		Overrides:  func(c *config.Config) { flags.apply(fs, c) },
		Level:      level,
		Logger:     logger,
	})
	logger.Info("shade started", "config", path, "shadow", cfg.Shadow.Enabled, "fade", cfg.Fade.Enabled)

	if err := d.Run(context.Background()); err != nil {
		if errors.Is(err, compositor.ErrFatal) {
			logger.Error("compositor failed", "error", err)
		} else {
			logger.Error("compositor stopped", "error", err)
		}
		return 1
	}
	logger.Info("shade stopped")
	return 0
}

// configExitCode maps config load failures: invalid values exit 2,
// unreadable files 1.
func configExitCode(err error) int {
	var verr *config.ValidationError
	if errors.As(err, &verr) {
		return 2
	}
	return 1
}

// detach re-executes the daemon in its own session with stdio on
// /dev/null and returns once the child has started.
func detach(args []string) int {
	exe, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to find executable: %v\n", err)
		return 1
	}
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open %s: %v\n", os.DevNull, err)
		return 1
	}
	defer devNull.Close()

	cmd := exec.Command(exe, append([]string{"daemon"}, args...)...)
	cmd.Env = append(os.Environ(), detachedEnv+"=1")
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start daemon: %v\n", err)
		return 1
	}
	fmt.Printf("shade daemon started (pid %d)\n", cmd.Process.Pid)
	return 0
}
