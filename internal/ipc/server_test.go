package ipc

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type fakeHandler struct {
	mu        sync.Mutex
	reloads   int
	repaints  int
	reloadErr error
	windows   []WindowData
}

func (f *fakeHandler) Status() StatusData {
	return StatusData{TrackedWindows: len(f.windows), FramesPainted: 7}
}

func (f *fakeHandler) Windows() []WindowData { return f.windows }

func (f *fakeHandler) Reload() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
	return f.reloadErr
}

func (f *fakeHandler) Repaint() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repaints++
}

func startServer(t *testing.T, h Handler) (*Server, *Client, string) {
	t.Helper()
	dir, err := os.MkdirTemp("", "shade-ipc")
	if err != nil {
		t.Fatalf("tempdir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "shade.sock")

	srv := NewServer(path, h, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv, NewClientAt(path), path
}

func TestStatusAndWindowsRoundTrip(t *testing.T) {
	h := &fakeHandler{windows: []WindowData{
		{ID: 0x400001, Width: 100, Height: 50, Mode: "opaque", Opacity: 1, Type: "normal", State: "mapped"},
		{ID: 0x400002, Client: 0x400003, Mode: "translucent", Opacity: 0.5, Type: "dock", State: "fading-in"},
	}}
	_, client, _ := startServer(t, h)

	status, err := client.GetStatus()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.TrackedWindows != 2 || status.FramesPainted != 7 {
		t.Fatalf("unexpected status %+v", status)
	}

	got, err := client.ListWindows()
	if err != nil {
		t.Fatalf("windows: %v", err)
	}
	if diff := cmp.Diff(h.windows, got.Windows); diff != "" {
		t.Fatalf("windows mismatch (-want +got):\n%s", diff)
	}
}

func TestReloadAndRepaintReachHandler(t *testing.T) {
	h := &fakeHandler{}
	_, client, _ := startServer(t, h)

	if err := client.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if err := client.Repaint(); err != nil {
		t.Fatalf("repaint: %v", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.reloads != 1 || h.repaints != 1 {
		t.Fatalf("expected one reload and one repaint, got %d and %d", h.reloads, h.repaints)
	}
}

func TestReloadErrorIsReported(t *testing.T) {
	h := &fakeHandler{reloadErr: errors.New("shadow.radius: radius must be between 0 and 64")}
	_, client, _ := startServer(t, h)

	err := client.Reload()
	if err == nil || !strings.Contains(err.Error(), "shadow.radius") {
		t.Fatalf("expected reload error to carry the cause, got %v", err)
	}
}

func TestUnknownCommand(t *testing.T) {
	_, _, path := startServer(t, &fakeHandler{})

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte(`{"command":"EXPLODE"}` + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "Unknown command: EXPLODE") {
		t.Fatalf("unexpected response %q", data)
	}
}

func TestStopRemovesSocket(t *testing.T) {
	srv, _, path := startServer(t, &fakeHandler{})
	srv.Stop()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected socket removed, stat err = %v", err)
	}
}
