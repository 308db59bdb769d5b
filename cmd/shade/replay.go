package main

import (
	"flag"
	"fmt"
	"image/png"
	"log/slog"
	"os"

	"github.com/1broseidon/shade/internal/config"
	"github.com/1broseidon/shade/internal/daemon"
	"github.com/1broseidon/shade/internal/replay"
)

func runReplay(args []string) int {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: shade replay [options] <trace.yaml>")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Run a scripted trace on an offscreen display and write the final frame.")
		fmt.Fprintln(os.Stderr, "")
		fs.PrintDefaults()
	}
	out := fs.String("o", "frame.png", "Output PNG path")
	configPath := fs.String("config", "", "Config file for shadow, fade and type settings (default: built-in defaults)")
	scale := fs.Int("scale", 1, "Integer zoom applied to the written frame")
	verbose := fs.Bool("v", false, "Log engine activity at debug level")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		res, err := config.LoadFromPath(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return configExitCode(err)
		}
		cfg = res.Config
	}

	trace, err := replay.Load(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)
	if *verbose {
		level.Set(slog.LevelDebug)
	}
	res, err := replay.Run(trace, daemon.EngineOptions(cfg), newLogger(level))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	f, err := os.Create(*out)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := png.Encode(f, replay.Scale(res.Frame, *scale)); err != nil {
		f.Close()
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := f.Close(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("wrote %s (%d windows, %d mapped, %d frames)\n",
		*out, res.Status.Tracked, res.Status.Mapped, res.Status.Stats.Frames)
	return 0
}
