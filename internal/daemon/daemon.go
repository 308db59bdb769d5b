package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/1broseidon/shade/internal/compositor"
	"github.com/1broseidon/shade/internal/config"
	"github.com/1broseidon/shade/internal/ipc"
	"github.com/1broseidon/shade/internal/platform"
)

// ErrDisconnected is returned by Run when the display connection ends.
var ErrDisconnected = errors.New("display connection closed")

// maxBatch bounds the events handled between two frames.
const maxBatch = 256

// Config holds what a daemon needs to run.
type Config struct {
	Backend platform.Backend
	// Settings is the validated config the daemon starts with.
	Settings *config.Config
	// ConfigPath is re-read on reload and watched when Settings asks for
	// it. Empty disables both.
	ConfigPath string
	// SocketPath enables the IPC server when set.
	SocketPath string
	// Overrides is applied to every freshly loaded config before it is
	// validated, so command-line settings survive reloads.
	Overrides func(*config.Config)
	// Level, when set, follows log_level across reloads.
	Level  *slog.LevelVar
	Logger *slog.Logger
	// Signals replaces the process signal subscription, for tests.
	Signals <-chan os.Signal
}

// Daemon runs the compositor loop. Everything that touches the engine
// happens on the goroutine inside Run.
type Daemon struct {
	cfg      Config
	settings *config.Config
	engine   *compositor.Engine
	logger   *slog.Logger

	calls   chan func()
	reloads chan string
	stopped chan struct{}

	// nextTick is when the next fade step is due, zero while no fade runs.
	nextTick time.Time
}

// New prepares a daemon; Run starts it.
func New(cfg Config) *Daemon {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	settings := cfg.Settings
	if settings == nil {
		settings = config.DefaultConfig()
	}
	return &Daemon{
		cfg:      cfg,
		settings: settings,
		engine:   compositor.New(cfg.Backend, EngineOptions(settings), logger),
		logger:   logger,
		calls:    make(chan func()),
		reloads:  make(chan string, 1),
		stopped:  make(chan struct{}),
	}
}

// Run starts the engine and serves events until ctx ends, a terminating
// signal arrives or the engine fails. Fatal engine errors wrap
// compositor.ErrFatal.
func (d *Daemon) Run(ctx context.Context) error {
	var srv *ipc.Server
	defer func() {
		// Release callers waiting on the loop before the server waits
		// for their connections.
		close(d.stopped)
		if srv != nil {
			srv.Stop()
		}
	}()

	if err := d.engine.Start(); err != nil {
		return err
	}
	defer d.engine.Close()
	if err := d.engine.Paint(); err != nil {
		return err
	}

	signals := d.cfg.Signals
	if signals == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)
		signals = ch
	}

	if d.cfg.SocketPath != "" {
		s := ipc.NewServer(d.cfg.SocketPath, (*loopHandler)(d), d.logger)
		if err := s.Start(); err != nil {
			return err
		}
		srv = s
	}

	if d.cfg.ConfigPath != "" && d.settings.WatchConfig {
		stop, err := watchConfig(d.logger, d.cfg.ConfigPath, d.reloads)
		if err != nil {
			d.logger.Warn("config watch disabled", "error", err)
		} else {
			defer stop()
		}
	}

	events := d.cfg.Backend.Events()
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		var tick <-chan time.Time
		if d.scheduleTick() {
			timer.Reset(max(time.Until(d.nextTick), 0))
			tick = timer.C
		}

		select {
		case <-ctx.Done():
			return nil
		case sig := <-signals:
			if sig == syscall.SIGHUP {
				d.reload("SIGHUP")
				break
			}
			d.logger.Info("shutting down", "signal", sig.String())
			return nil
		case ev, ok := <-events:
			if !ok {
				return ErrDisconnected
			}
			if err := d.handleBatch(ev, events); err != nil {
				return err
			}
		case <-tick:
			d.runTicks()
		case fn := <-d.calls:
			fn()
		case reason := <-d.reloads:
			d.reload(reason)
		}
		if tick != nil && !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}

		if err := d.engine.Paint(); err != nil {
			return err
		}
	}
}

// handleBatch applies ev and whatever else is already queued, up to a
// bound, so a burst of events costs one frame.
func (d *Daemon) handleBatch(ev platform.Event, events <-chan platform.Event) error {
	if err := d.engine.HandleEvent(ev); err != nil {
		return err
	}
	for i := 1; i < maxBatch; i++ {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := d.engine.HandleEvent(ev); err != nil {
				return err
			}
		default:
			return nil
		}
	}
	return nil
}

// scheduleTick keeps nextTick in step with the fade scheduler and reports
// whether a tick is pending.
func (d *Daemon) scheduleTick() bool {
	delta, ok := d.engine.NextTimeout()
	if !ok {
		d.nextTick = time.Time{}
		return false
	}
	if d.nextTick.IsZero() {
		d.nextTick = time.Now().Add(delta)
	}
	return true
}

// runTicks advances fades by every step that elapsed since the last one,
// but never more than the fades still need.
func (d *Daemon) runTicks() {
	delta := d.engine.Options().Fade.Delta
	if delta <= 0 {
		delta = time.Millisecond
	}
	late := time.Since(d.nextTick)
	steps := 1 + int(late/delta)
	if left := d.engine.FadeTicksLeft(); steps > left {
		steps = max(left, 1)
	}
	for i := 0; i < steps; i++ {
		if !d.engine.Tick() {
			break
		}
	}
	d.nextTick = d.nextTick.Add(time.Duration(steps) * delta)
	if time.Until(d.nextTick) < -delta {
		// The loop fell far behind; restart the cadence from now.
		d.nextTick = time.Now().Add(delta)
	}
}

// reload re-reads the config file and applies it. A broken file keeps
// the running settings.
func (d *Daemon) reload(reason string) error {
	if d.cfg.ConfigPath == "" {
		return fmt.Errorf("no config file to reload")
	}
	res, err := config.LoadFromPath(d.cfg.ConfigPath)
	if err != nil {
		d.logger.Warn("config reload failed", "reason", reason, "error", err)
		return err
	}
	if d.cfg.Overrides != nil {
		d.cfg.Overrides(res.Config)
		if err := res.Config.Validate(); err != nil {
			d.logger.Warn("config reload failed", "reason", reason, "error", err)
			return err
		}
	}
	d.settings = res.Config
	if d.cfg.Level != nil {
		if level, err := config.ParseLogLevel(res.Config.LogLevel); err == nil {
			d.cfg.Level.Set(level)
		}
	}
	d.engine.Reconfigure(EngineOptions(res.Config))
	d.logger.Info("config reloaded", "reason", reason, "path", d.cfg.ConfigPath)
	return nil
}

// call runs fn on the loop and waits for it. It reports false when the
// loop has stopped.
func (d *Daemon) call(fn func()) bool {
	done := make(chan struct{})
	select {
	case d.calls <- func() { fn(); close(done) }:
	case <-d.stopped:
		return false
	}
	select {
	case <-done:
		return true
	case <-d.stopped:
		return false
	}
}

// loopHandler serves IPC commands by running them on the loop.
type loopHandler Daemon

func (h *loopHandler) Status() ipc.StatusData {
	d := (*Daemon)(h)
	var out ipc.StatusData
	d.call(func() {
		s := d.engine.Status()
		out = ipc.StatusData{
			UptimeSeconds:  int64(s.Uptime.Seconds()),
			ScreenWidth:    s.Screen.Width,
			ScreenHeight:   s.Screen.Height,
			TrackedWindows: s.Tracked,
			MappedWindows:  s.Mapped,
			ActiveFades:    s.ActiveFades,
			PendingRects:   s.PendingRects,
			FramesPainted:  s.Stats.Frames,
			EventsHandled:  s.Stats.Events,
			IgnoredErrors:  s.Stats.IgnoredErrors,
			ProtocolErrors: s.Stats.ProtocolErrors,
			ConfigPath:     d.cfg.ConfigPath,
		}
	})
	return out
}

func (h *loopHandler) Windows() []ipc.WindowData {
	d := (*Daemon)(h)
	var out []ipc.WindowData
	d.call(func() {
		for _, w := range d.engine.Windows() {
			out = append(out, ipc.WindowData{
				ID:        uint32(w.ID),
				Client:    uint32(w.Client),
				X:         w.Geometry.X,
				Y:         w.Geometry.Y,
				Width:     w.Geometry.Width,
				Height:    w.Geometry.Height,
				Border:    w.Border,
				Mode:      w.Mode,
				Opacity:   w.Opacity,
				Type:      w.Type,
				State:     w.State,
				Shadow:    w.Shadow,
				DamageSeq: w.DamageSeq,
			})
		}
	})
	return out
}

func (h *loopHandler) Reload() error {
	d := (*Daemon)(h)
	var err error
	if !d.call(func() { err = d.reload("ipc") }) {
		return errors.New("daemon is shutting down")
	}
	return err
}

func (h *loopHandler) Repaint() {
	d := (*Daemon)(h)
	d.call(d.engine.DamageScreen)
}
