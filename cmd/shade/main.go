package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/1broseidon/shade/internal/ipc"
	"github.com/1broseidon/shade/internal/tui"
)

func main() {
	if len(os.Args) < 2 {
		printMainUsage(os.Stdout)
		os.Exit(0)
	}

	switch os.Args[1] {
	case "daemon":
		os.Exit(runDaemon(os.Args[2:]))
	case "status":
		os.Exit(runStatus(os.Args[2:]))
	case "windows":
		os.Exit(runWindows(os.Args[2:]))
	case "reload":
		os.Exit(runSimple("reload", "Re-read the config file in the running daemon.", os.Args[2:], (*ipc.Client).Reload))
	case "repaint":
		os.Exit(runSimple("repaint", "Redraw the whole screen.", os.Args[2:], (*ipc.Client).Repaint))
	case "top":
		os.Exit(runTop(os.Args[2:]))
	case "config":
		os.Exit(runConfig(os.Args[2:]))
	case "replay":
		os.Exit(runReplay(os.Args[2:]))
	case "help", "-h", "--help":
		printMainUsage(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printMainUsage(os.Stderr)
		os.Exit(2)
	}
}

func printMainUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: shade <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  daemon              Start the compositor (foreground, -b to detach)")
	fmt.Fprintln(w, "  status              Show daemon status")
	fmt.Fprintln(w, "  windows             List tracked windows, top first")
	fmt.Fprintln(w, "  reload              Reload the config file")
	fmt.Fprintln(w, "  repaint             Redraw the whole screen")
	fmt.Fprintln(w, "  top                 Live view of windows and frame rate")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  config validate     Validate configuration")
	fmt.Fprintln(w, "  config print        Print configuration")
	fmt.Fprintln(w, "  config explain      Show where a config value comes from")
	fmt.Fprintln(w, "  config init         Write the default configuration")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  replay              Render a scripted trace to a PNG")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'shade <command> --help' for command-specific options.")
}

// newLogger writes text to an interactive stderr and JSON otherwise.
func newLogger(level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func parseNoArgs(name, about string, args []string) (bool, int) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: shade %s\n\n%s\n", name, about)
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return false, 0
		}
		return false, 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintf(os.Stderr, "%s takes no arguments\n", name)
		fs.Usage()
		return false, 2
	}
	return true, 0
}

func runSimple(name, about string, args []string, do func(*ipc.Client) error) int {
	if ok, code := parseNoArgs(name, about, args); !ok {
		return code
	}
	if err := do(ipc.NewClient()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func runStatus(args []string) int {
	if ok, code := parseNoArgs("status", "Show daemon status via IPC.", args); !ok {
		return code
	}
	status, err := ipc.NewClient().GetStatus()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("uptime_seconds:  %d\n", status.UptimeSeconds)
	fmt.Printf("screen:          %dx%d\n", status.ScreenWidth, status.ScreenHeight)
	fmt.Printf("tracked_windows: %d\n", status.TrackedWindows)
	fmt.Printf("mapped_windows:  %d\n", status.MappedWindows)
	fmt.Printf("active_fades:    %d\n", status.ActiveFades)
	fmt.Printf("pending_rects:   %d\n", status.PendingRects)
	fmt.Printf("frames_painted:  %d\n", status.FramesPainted)
	fmt.Printf("events_handled:  %d\n", status.EventsHandled)
	fmt.Printf("ignored_errors:  %d\n", status.IgnoredErrors)
	fmt.Printf("protocol_errors: %d\n", status.ProtocolErrors)
	if status.ConfigPath != "" {
		fmt.Printf("config:          %s\n", status.ConfigPath)
	}
	return 0
}

func runWindows(args []string) int {
	if ok, code := parseNoArgs("windows", "List tracked windows, top of the stack first.", args); !ok {
		return code
	}
	data, err := ipc.NewClient().ListWindows()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCLIENT\tGEOMETRY\tTYPE\tMODE\tOPACITY\tSTATE\tSHADOW")
	for _, w := range data.Windows {
		client := "-"
		if w.Client != 0 && w.Client != w.ID {
			client = fmt.Sprintf("0x%x", w.Client)
		}
		fmt.Fprintf(tw, "0x%x\t%s\t%dx%d+%d+%d\t%s\t%s\t%.2f\t%s\t%v\n",
			w.ID, client, w.Width, w.Height, w.X, w.Y, w.Type, w.Mode, w.Opacity, w.State, w.Shadow)
	}
	tw.Flush()
	return 0
}

func runTop(args []string) int {
	fs := flag.NewFlagSet("top", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: shade top [--interval D]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Show a live view of the running compositor.")
	}
	interval := fs.Duration("interval", time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "top requires an interactive terminal")
		return 1
	}
	if err := tui.Run(ipc.NewClient(), max(*interval, 100*time.Millisecond)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
